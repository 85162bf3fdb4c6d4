package score

// syllables maps the movable-do syllables (and their enharmonic aliases) to
// a note-within-octave offset 0..11, per spec.md §4.2.
var syllables = map[string]int{
	"do": 0,
	"di": 1, "ra": 1,
	"re": 2,
	"ri": 3, "me": 3,
	"mi": 4,
	"fa": 5,
	"fi": 6, "se": 6,
	"so": 7, "sol": 7,
	"si": 8, "le": 8,
	"la": 9,
	"li": 10, "te": 10,
	"ti": 11,
}

// dynamics maps the dynamic words to fixed MIDI velocities, per spec.md §4.2.
var dynamics = map[string]byte{
	"pppp": 8,
	"ppp":  20,
	"pp":   31,
	"p":    42,
	"mp":   53,
	"mf":   64,
	"f":    80,
	"ff":   96,
	"fff":  112,
	"ffff": 127,
}

// defaultOctave is the octave assumed before any absolute pitch has been set
// on a channel, matching spec.md §8 property 5's worked example (octave 5
// "do" resolves to MIDI note 60).
const defaultOctave = 5

// absoluteNote computes the MIDI note number for a syllable at a given
// octave: note = octave*12 + offset (spec.md §8 property 5 fixes this
// convention: octave 5 "do" = 60, and relative token "7" from it = 67).
func absoluteNote(octave, offset int) int {
	return octave*12 + offset
}

// isDrumChannel reports whether a zero-based channel index is the drum
// channel (channel 10 one-based, index 9, spec.md §4.1).
func isDrumChannel(channel int) bool {
	return channel == 9
}
