// Package scheduler walks a compiled timeline.Timeline and drives a
// MIDISink in real time: Scheduler for ordinary playback with hairpin and
// pitch-wheel interpolation, Accompanist for auto-accompaniment, which
// substitutes live input for a tagged subset of events.
package scheduler

import (
	"time"

	"github.com/scorewright/scoreline/logging"
	"github.com/scorewright/scoreline/timeline"
)

// exprStepUS is the scheduler's fine-grained tick slice (spec.md §4.5's
// EXPR_STEP, ≈1.5 ms), the granularity at which hairpin/slide ramps update.
const exprStepUS = 1500.0

// Scheduler walks a timeline in real time, driving sink with note and
// controller events and interpolating hairpin/pitch-wheel ramps between
// buckets.
type Scheduler struct {
	sink MIDISink
	tl   *timeline.Timeline

	bpm  int
	conv float64 // microseconds per beat

	channels [16]channelState

	randomness int // percent velocity randomization
	transpose  int // semitones

	sw *stopwatch
}

// New constructs a Scheduler at the default 120 bpm (overridden by any
// KindTempo event the timeline emits before the first bucket, per spec.md
// §4.1's bpm directive).
func New(sink MIDISink, tl *timeline.Timeline, randomnessPercent, transposeSemitones int) *Scheduler {
	return &Scheduler{
		sink:       sink,
		tl:         tl,
		bpm:        120,
		conv:       2.4e8 / 120,
		channels:   newChannelStates(),
		randomness: randomnessPercent,
		transpose:  transposeSemitones,
		sw:         newStopwatch(),
	}
}

// Run walks the whole timeline from start to tail.
func (s *Scheduler) Run() error {
	cur := s.tl.Start()
	if cur == nil {
		return nil
	}

	s.dispatchBucket(cur)
	for cur.Next() != nil {
		next := cur.Next()
		s.runGap(next.Start - cur.Start)
		s.dispatchBucket(next)
		cur = next
	}
	return nil
}

// runGap sleeps and services continuous controllers across the gap between
// two buckets, subdivided into exprStepUS-sized ticks, per spec.md §4.5.
func (s *Scheduler) runGap(gapBeats float64) {
	if gapBeats <= 0 {
		return
	}
	gapUS := gapBeats * s.conv
	ticks := int(gapUS / exprStepUS)
	tickBeats := exprStepUS / s.conv

	for i := 0; i < ticks; i++ {
		s.tickAll(tickBeats)
		s.sw.sleep(time.Duration(exprStepUS) * time.Microsecond)
	}

	remainder := gapUS - float64(ticks)*exprStepUS
	if remainder > 0 {
		s.sw.sleep(time.Duration(remainder) * time.Microsecond)
	}

	for ch := range s.channels {
		if s.channels[ch].needsRecenter() {
			s.channels[ch].recenter()
			if err := s.sink.PitchBend(uint8(ch), centeredBend); err != nil {
				logging.Warn(0, "recenter pitch wheel on channel %d: %v", ch+1, err)
			}
		}
	}
}

func (s *Scheduler) tickAll(tickBeats float64) {
	for ch := range s.channels {
		sendVol, vol, sendBend, bend := s.channels[ch].tick(tickBeats)
		if sendVol {
			if err := s.sink.ControlChange(uint8(ch), 7, vol); err != nil {
				logging.Warn(0, "send volume on channel %d: %v", ch+1, err)
			}
		}
		if sendBend {
			if err := s.sink.PitchBend(uint8(ch), bend); err != nil {
				logging.Warn(0, "send pitch bend on channel %d: %v", ch+1, err)
			}
		}
	}
}

// dispatchBucket emits every event in b, in insertion order, per spec.md
// §4.5's per-kind dispatch rules.
func (s *Scheduler) dispatchBucket(b *timeline.Bucket) {
	for _, e := range b.Events {
		switch e.Kind {
		case timeline.KindTempo:
			s.bpm = e.BPM
			s.conv = 2.4e8 / float64(e.BPM)

		case timeline.KindController:
			ch := &s.channels[e.Channel]
			if e.IsHairpin() {
				ch.startHairpin(e.HairpinCrescendo, e.HairpinPercent, e.Duration, 0)
				continue
			}
			if e.Data1 == 7 {
				ch.volRef = e.Data2
				ch.volCurrent = float64(e.Data2)
				ch.lastSentVol = int(e.Data2)
			}
			if err := s.sink.ControlChange(e.Channel, e.Data1, e.Data2); err != nil {
				logging.Warn(0, "send controller: %v", err)
			}

		case timeline.KindProgramChange:
			if err := s.sink.ProgramChange(e.Channel, e.Data1); err != nil {
				logging.Warn(0, "send program change: %v", err)
			}

		case timeline.KindBend:
			s.channels[e.Channel].startSlide(e.Semitones, e.Duration, 0)

		case timeline.KindNoteOn:
			note := e.Data1
			if !isDrumChannel(e.Channel) {
				note = transposeNote(note, s.transpose)
			}
			vel := randomizeVelocity(e.Data2, s.randomness)
			if err := s.sink.NoteOn(e.Channel, note, vel); err != nil {
				logging.Warn(0, "send note-on: %v", err)
			}

		case timeline.KindNoteOff:
			note := e.Data1
			if !isDrumChannel(e.Channel) {
				note = transposeNote(note, s.transpose)
			}
			if err := s.sink.NoteOff(e.Channel, note); err != nil {
				logging.Warn(0, "send note-off: %v", err)
			}
		}
	}
}
