package timeline

import "testing"

func TestPushEventCreatesOrderedBuckets(t *testing.T) {
	tl := New()

	tl.PushEvent(Event{Kind: KindNoteOn, Data1: 60, Duration: 1})
	tl.PushEvent(Event{Kind: KindNoteOff, Data1: 60})

	tl.PushEvent(Event{Kind: KindNoteOn, Data1: 62, Duration: 1})
	tl.PushEvent(Event{Kind: KindNoteOff, Data1: 62})

	var starts []float64
	for b := tl.Start(); b != nil; b = b.Next() {
		starts = append(starts, b.Start)
	}

	want := []float64{0, 1, 2}
	if len(starts) != len(want) {
		t.Fatalf("got %d buckets, want %d: %v", len(starts), len(want), starts)
	}
	for i, w := range want {
		if diff := starts[i] - w; diff > Epsilon || diff < -Epsilon {
			t.Errorf("bucket %d start = %v, want %v", i, starts[i], w)
		}
	}
}

func TestMetaEventsDoNotAdvanceTime(t *testing.T) {
	tl := New()

	before := tl.Now()
	tl.PushEvent(Event{Kind: KindController, Data1: 7, Data2: 100})
	tl.PushEvent(Event{Kind: KindPitchWheel, Semitones: 2})
	after := tl.Now()

	if before != after {
		t.Errorf("meta events advanced current_time: before=%v after=%v", before, after)
	}
}

func TestNoteOnOffPairingLandsAtDurationOffset(t *testing.T) {
	tl := New()
	// As in the parser's flushTie, the note-off alone carries the duration.
	tl.PushEvent(Event{Kind: KindNoteOn, Data1: 60})
	ref, err := tl.PushEvent(Event{Kind: KindNoteOff, Data1: 60, Duration: 0.5})
	if err != nil {
		t.Fatalf("PushEvent: %v", err)
	}

	if got := ref.Get().Duration; got != 0.5 {
		t.Errorf("note-off duration = %v, want 0.5", got)
	}

	tail := tl.Tail()
	if diff := tail.Start - 0.5; diff > Epsilon || diff < -Epsilon {
		t.Errorf("note-off bucket start = %v, want 0.5", tail.Start)
	}
}

func TestPushRestAdvancesCursorOnly(t *testing.T) {
	tl := New()
	tl.PushRest(2)
	if tl.Now() != 2 {
		t.Errorf("Now() = %v, want 2", tl.Now())
	}
	if tl.Start() != nil {
		t.Errorf("PushRest must not create a bucket")
	}
}

func TestNewGroupMovesHeadToTail(t *testing.T) {
	tl := New()
	tl.PushEvent(Event{Kind: KindNoteOn, Data1: 60, Duration: 1})
	tl.PushEvent(Event{Kind: KindNoteOff, Data1: 60})

	tl.NewGroup()
	if tl.Head() != tl.Tail() {
		t.Errorf("NewGroup did not move head to tail")
	}
	if tl.Now() != 1 {
		t.Errorf("NewGroup did not advance group-time cursor: Now()=%v", tl.Now())
	}
}

func TestNewLineResetsToGroupStart(t *testing.T) {
	tl := New()
	tl.PushEvent(Event{Kind: KindNoteOn, Data1: 60, Duration: 1})
	tl.PushEvent(Event{Kind: KindNoteOff, Data1: 60})

	// Second row of the same polyphonic group starts over at time 0.
	tl.NewLine()
	if tl.Now() != 0 {
		t.Errorf("NewLine() left Now() = %v, want 0", tl.Now())
	}
}

func TestWithinEpsilonSharesBucket(t *testing.T) {
	tl := New()
	tl.PushEvent(Event{Kind: KindNoteOn, Data1: 60, Duration: 1})
	tl.PushEvent(Event{Kind: KindNoteOff, Data1: 60})

	tl.NewLine()
	tl.PushRest(1 + Epsilon/2)
	tl.PushEvent(Event{Kind: KindNoteOn, Data1: 64, Duration: 1})

	count := 0
	for b := tl.Start(); b != nil; b = b.Next() {
		count++
	}
	if count != 2 {
		t.Errorf("got %d buckets, want 2 (second note should share the first bucket)", count)
	}
}

func TestSectionRecordAndReplay(t *testing.T) {
	tl := New()
	tl.Rec(1)

	tl.PushEvent(Event{Kind: KindNoteOn, Data1: 60, Duration: 1})
	tl.PushEvent(Event{Kind: KindNoteOff, Data1: 60})
	tl.PushEvent(Event{Kind: KindNoteOn, Data1: 62, Duration: 1})
	tl.PushEvent(Event{Kind: KindNoteOff, Data1: 62})
	tl.PushEvent(Event{Kind: KindNoteOn, Data1: 64, Duration: 1})
	tl.PushEvent(Event{Kind: KindNoteOff, Data1: 64})

	if err := tl.Stop(1); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	beforePlay := tl.Tail().Start
	if err := tl.Play(1, 2); err != nil {
		t.Fatalf("Play: %v", err)
	}

	var noteOns int
	for b := tl.Start(); b != nil; b = b.Next() {
		for _, e := range b.Events {
			if e.Kind == KindNoteOn {
				noteOns++
			}
		}
	}
	if noteOns != 9 { // 3 inline + 3*2 replayed
		t.Errorf("got %d note-ons, want 9", noteOns)
	}

	if tl.Tail().Start <= beforePlay {
		t.Errorf("Play did not extend the timeline tail")
	}
}

func TestBucketCapacityReachesExactly64ThenErrors(t *testing.T) {
	tl := New()

	// All 64 events share one instant: meta-note controller events never
	// advance current_time, so every push lands in the same bucket.
	for i := 0; i < bucketMaxCap; i++ {
		if _, err := tl.PushEvent(Event{Kind: KindController, Data1: 7, Data2: 1}); err != nil {
			t.Fatalf("push %d: want no error up to %d events, got %v", i, bucketMaxCap, err)
		}
	}
	if got := len(tl.Tail().Events); got != bucketMaxCap {
		t.Fatalf("bucket holds %d events, want %d", got, bucketMaxCap)
	}

	if _, err := tl.PushEvent(Event{Kind: KindController, Data1: 7, Data2: 1}); err == nil {
		t.Fatalf("want error on the 65th event in one bucket")
	}
}

func TestSortedBucketsStrictlyIncreasing(t *testing.T) {
	tl := New()
	tl.PushEvent(Event{Kind: KindNoteOn, Data1: 60, Duration: 0.25})
	tl.PushEvent(Event{Kind: KindNoteOff, Data1: 60})
	tl.PushEvent(Event{Kind: KindNoteOn, Data1: 62, Duration: 0.25})
	tl.PushEvent(Event{Kind: KindNoteOff, Data1: 62})

	for b := tl.Start(); b != nil && b.Next() != nil; b = b.Next() {
		if b.Next().Start <= b.Start {
			t.Errorf("bucket order violated: %v then %v", b.Start, b.Next().Start)
		}
		if b.Next().Start-b.Start < Epsilon {
			t.Errorf("adjacent buckets closer than epsilon: %v, %v", b.Start, b.Next().Start)
		}
	}
}
