// Package timeline implements the time-sorted polyphonic event list the
// score compiler builds and the playback scheduler walks: sorted-insertion
// buckets per spec.md §3/§4.3, plus the section record/replay engine
// (section.go) that operates on the same bucket chain.
package timeline

import "fmt"

// Epsilon is the bucket-coalescing tolerance: two prospective bucket starts
// within this many beats of one another are the same bucket.
const Epsilon = 1.0 / 256.0

const (
	bucketInitCap = 3
	bucketMaxCap  = 64
)

// Bucket holds every event that starts at the same musical instant. Buckets
// are singly linked in strictly ascending Start order.
type Bucket struct {
	Start  float64
	Events []Event
	next   *Bucket
}

// Next returns the following bucket, or nil at the end of the timeline.
func (b *Bucket) Next() *Bucket { return b.next }

func newBucket(start float64) *Bucket {
	return &Bucket{Start: start, Events: make([]Event, 0, bucketInitCap)}
}

// appendEvent grows b.Events under the spec's manual capacity policy: start
// at 3, double on growth, clamp the growth target to 64, and only report
// overflow once the bucket is already at the 64-event ceiling and cannot
// grow further (spec.md §4.3: "cap at 64 (fatal overflow beyond that)"),
// matching original_source/queue.c's add_note, which clamps events_size to
// MAXEVENTS before checking and so permits exactly 64 events rather than
// stopping one growth-step short.
func appendEvent(b *Bucket, e Event) (int, error) {
	if len(b.Events) == cap(b.Events) {
		newCap := cap(b.Events) * 2
		if newCap > bucketMaxCap {
			newCap = bucketMaxCap
		}
		if newCap == cap(b.Events) {
			return 0, fmt.Errorf("bucket at %.6f overflowed %d events", b.Start, bucketMaxCap)
		}
		grown := make([]Event, len(b.Events), newCap)
		copy(grown, b.Events)
		b.Events = grown
	}
	b.Events = append(b.Events, e)
	return len(b.Events) - 1, nil
}

// EventRef is a stable (bucket, index) reference returned by PushEvent. It is
// resolved lazily rather than held as a pointer into the event slice, since a
// bucket's Events may reallocate on growth (Design Note 2).
type EventRef struct {
	bucket *Bucket
	index  int
}

// Valid reports whether the reference still addresses a live event.
func (r EventRef) Valid() bool {
	return r.bucket != nil && r.index >= 0 && r.index < len(r.bucket.Events)
}

// Get resolves the reference to the event it currently names.
func (r EventRef) Get() *Event {
	return &r.bucket.Events[r.index]
}

// Timeline is the sorted bucket chain plus the three cursors spec.md §3
// names: start (head of the whole score), tail (append target), and head
// (the insertion-sort entry point for the current polyphonic group).
type Timeline struct {
	start *Bucket
	tail  *Bucket
	head  *Bucket

	now        float64
	groupStart float64

	sections   map[int]*Section
	pendingRec map[int]pendingMark
}

// New returns an empty timeline positioned at beat 0.
func New() *Timeline {
	return &Timeline{
		sections:   make(map[int]*Section),
		pendingRec: make(map[int]pendingMark),
	}
}

// Start returns the first bucket of the whole score (nil if empty).
func (t *Timeline) Start() *Bucket { return t.start }

// Tail returns the last bucket (nil if empty).
func (t *Timeline) Tail() *Bucket { return t.tail }

// Head returns the current polyphonic group's insertion-sort entry point.
func (t *Timeline) Head() *Bucket { return t.head }

// Now returns the current-time cursor, in beats from score origin.
func (t *Timeline) Now() float64 { return t.now }

// NewLine resets the current-time cursor to the current group's start time,
// so that multiple score rows in the same polyphonic group lay atop one
// another starting at the same origin (spec.md §4.2).
func (t *Timeline) NewLine() {
	t.now = t.groupStart
}

// NewGroup restarts the polyphonic group at a blank source line: the
// group-time cursor advances to the current tail time, and the insertion-
// sort head moves to the tail (spec.md §3, §4.2).
func (t *Timeline) NewGroup() {
	if t.tail == nil {
		return
	}
	t.groupStart = t.tail.Start
	t.head = t.tail
	t.now = t.groupStart
}

// PushRest advances the current-time cursor by d beats without creating or
// touching any bucket (spec.md §4.3 step 5).
func (t *Timeline) PushRest(d float64) {
	t.now += d
}

// PushEvent inserts e into the bucket at its computed start time, creating a
// new bucket if none exists within Epsilon, and advances the current-time
// cursor unless e is a meta-note event (spec.md §4.3). It returns an error
// if the target bucket has already reached its 64-event capacity ceiling;
// this is a fatal condition the caller must surface (spec.md §7).
func (t *Timeline) PushEvent(e Event) (EventRef, error) {
	ts := t.now
	if e.Kind == KindNoteOff {
		ts = t.now + e.Duration
	}

	b := t.findOrInsertBucket(ts)
	idx, err := appendEvent(b, e)
	if err != nil {
		return EventRef{}, err
	}

	if !e.IsMeta() {
		t.now += e.Duration
	}

	return EventRef{bucket: b, index: idx}, nil
}

// findOrInsertBucket locates the bucket at time ts (within Epsilon),
// starting the search from head as spec.md §4.3 step 2 requires, splicing a
// new bucket into the chain if none matches.
func (t *Timeline) findOrInsertBucket(ts float64) *Bucket {
	if t.start == nil {
		nb := newBucket(ts)
		t.start, t.tail, t.head = nb, nb, nb
		return nb
	}

	prev := t.predecessor(t.head)
	cur := t.head
	for cur != nil {
		if approxEqual(cur.Start, ts) {
			return cur
		}
		if cur.Start > ts {
			break
		}
		prev = cur
		cur = cur.next
	}

	nb := newBucket(ts)
	nb.next = cur
	if prev == nil {
		t.start = nb
		if t.head == cur {
			t.head = nb
		}
	} else {
		prev.next = nb
	}
	if cur == nil {
		t.tail = nb
	}
	return nb
}

// predecessor returns the bucket immediately before b in the chain, or nil
// if b is the first bucket (or b is nil).
func (t *Timeline) predecessor(b *Bucket) *Bucket {
	if b == nil || t.start == b {
		return nil
	}
	for cur := t.start; cur != nil; cur = cur.next {
		if cur.next == b {
			return cur
		}
	}
	return nil
}

func approxEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < Epsilon
}
