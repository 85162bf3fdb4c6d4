package scheduler

import (
	"time"

	"github.com/scorewright/scoreline/logging"
	"github.com/scorewright/scoreline/midi"
	"github.com/scorewright/scoreline/timeline"
)

// InputReader is the blocking note-event source the accompanist waits on;
// satisfied by *midi.Input.
type InputReader interface {
	Read() midi.InEvent
}

// Accompanist walks the same timeline as Scheduler, but events tagged with
// the performer's chosen tag are not emitted: instead the accompanist
// blocks on live input until a matching note is played, per spec.md §4.6.
// It does not interpolate hairpins or pitch-wheel slides.
type Accompanist struct {
	sink  MIDISink
	input InputReader
	tl    *timeline.Timeline
	tag   byte

	bpm  int
	conv float64

	transpose int
	waitDebt  time.Duration
}

// NewAccompanist constructs an Accompanist matching events tagged tag.
func NewAccompanist(sink MIDISink, input InputReader, tl *timeline.Timeline, tag byte, transposeSemitones int) *Accompanist {
	return &Accompanist{
		sink:      sink,
		input:     input,
		tl:        tl,
		tag:       tag,
		bpm:       120,
		conv:      2.4e8 / 120,
		transpose: transposeSemitones,
	}
}

// Run walks the whole timeline, waiting for live input on tagged events.
func (a *Accompanist) Run() error {
	cur := a.tl.Start()
	if cur == nil {
		return nil
	}

	a.serviceBucket(cur)
	for cur.Next() != nil {
		next := cur.Next()

		gapUS := (next.Start - cur.Start) * a.conv
		sleep := time.Duration(gapUS)*time.Microsecond - a.waitDebt
		a.waitDebt = 0
		if sleep > 0 {
			time.Sleep(sleep)
		}

		a.serviceBucket(next)
		cur = next
	}
	return nil
}

func (a *Accompanist) serviceBucket(b *timeline.Bucket) {
	pending := taggedEvents(b, a.tag)

	for _, e := range b.Events {
		switch e.Kind {
		case timeline.KindTempo:
			a.bpm = e.BPM
			a.conv = 2.4e8 / float64(e.BPM)

		case timeline.KindNoteOn, timeline.KindNoteOff:
			if e.Tag == a.tag {
				continue // matched against live input below, never emitted
			}
			a.emitNote(e)

		case timeline.KindProgramChange:
			if err := a.sink.ProgramChange(e.Channel, e.Data1); err != nil {
				logging.Warn(0, "send program change: %v", err)
			}

		case timeline.KindController:
			if e.IsHairpin() {
				continue // hairpin/slide interpolation is skipped in accompaniment mode
			}
			if err := a.sink.ControlChange(e.Channel, e.Data1, e.Data2); err != nil {
				logging.Warn(0, "send controller: %v", err)
			}
		}
	}

	if len(pending) > 0 {
		started := time.Now()
		a.waitForAll(pending)
		a.waitDebt += time.Since(started)
	}
}

// taggedEvents collects every note-on/note-off in b carrying tag, in bucket
// order, the pool waitForAll matches live input against (spec.md §4.6).
func taggedEvents(b *timeline.Bucket, tag byte) []timeline.Event {
	var pending []timeline.Event
	for _, e := range b.Events {
		if (e.Kind == timeline.KindNoteOn || e.Kind == timeline.KindNoteOff) && e.Tag == tag {
			pending = append(pending, e)
		}
	}
	return pending
}

// waitForAll blocks reading input events until every member of pending has
// been matched, against any unplayed member of the set rather than only the
// one next in bucket order — a human may play a bucket's tagged notes in any
// order, and matching strictly by position would permanently strand an
// event that arrived out of turn (spec.md §4.6: "matching each incoming
// event to an unplayed tagged event in the bucket").
func (a *Accompanist) waitForAll(pending []timeline.Event) {
	played := make([]bool, len(pending))
	remaining := len(pending)
	for remaining > 0 {
		in := a.input.Read()
		gotOn := in.IsNoteOn && in.Velocity > 0
		for i, want := range pending {
			if played[i] {
				continue
			}
			wantOn := want.Kind == timeline.KindNoteOn
			if in.Note == want.Data1 && gotOn == wantOn {
				played[i] = true
				remaining--
				break
			}
		}
	}
}

func (a *Accompanist) emitNote(e timeline.Event) {
	note := e.Data1
	if !isDrumChannel(e.Channel) {
		note = transposeNote(note, a.transpose)
	}
	if e.Kind == timeline.KindNoteOn {
		if err := a.sink.NoteOn(e.Channel, note, e.Data2); err != nil {
			logging.Warn(0, "send note-on: %v", err)
		}
		return
	}
	if err := a.sink.NoteOff(e.Channel, note); err != nil {
		logging.Warn(0, "send note-off: %v", err)
	}
}
