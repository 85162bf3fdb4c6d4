package timeline

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestSortedTimelineProperty checks spec.md §8 property 1: for any sequence
// of note durations pushed as note-on/note-off pairs, consecutive buckets
// are strictly increasing and at least Epsilon apart. Grounded on
// zurustar-son-et's pkg/vm/audio/midi_property_test.go use of
// gopter.NewProperties/prop.ForAll to check a playback invariant.
func TestSortedTimelineProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("consecutive buckets are strictly increasing by at least epsilon", prop.ForAll(
		func(durations []float64) bool {
			tl := New()
			for i, d := range durations {
				note := byte(60 + i%40)
				tl.PushEvent(Event{Kind: KindNoteOn, Data1: note, Duration: d})
				tl.PushEvent(Event{Kind: KindNoteOff, Data1: note, Duration: d})
			}

			for b := tl.Start(); b != nil && b.Next() != nil; b = b.Next() {
				if b.Next().Start-b.Start < Epsilon {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(0.05, 4.0)),
	))

	properties.TestingRun(t)
}

// TestNoteOnOffPairingProperty checks a count-only form of spec.md §8
// property 2: for every pitch, the timeline holds as many note-offs as
// note-ons. Event times and channels are not compared.
func TestNoteOnOffPairingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every note-on has exactly one matching note-off", prop.ForAll(
		func(durations []float64) bool {
			tl := New()
			for i, d := range durations {
				note := byte(40 + i%60)
				tl.PushEvent(Event{Kind: KindNoteOn, Data1: note, Channel: 2, Duration: d})
				tl.PushEvent(Event{Kind: KindNoteOff, Data1: note, Channel: 2, Duration: d})
			}

			onCount := map[byte]int{}
			offCount := map[byte]int{}
			for b := tl.Start(); b != nil; b = b.Next() {
				for _, e := range b.Events {
					if e.Kind == KindNoteOn {
						onCount[e.Data1]++
					}
					if e.Kind == KindNoteOff {
						offCount[e.Data1]++
					}
				}
			}
			for note, n := range onCount {
				if offCount[note] != n {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(0.05, 4.0)),
	))

	properties.TestingRun(t)
}
