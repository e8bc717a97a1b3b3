package watcher

import (
	"testing"

	"gocv.io/x/gocv"
)

func markedFrame(t *testing.T, mark uint8) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC1)
	t.Cleanup(func() { m.Close() })
	m.SetUCharAt(0, 0, mark)
	return m
}

func TestFrameRingEvictsOldest(t *testing.T) {
	r := NewFrameRing(3)
	defer r.Close()

	for i := uint8(1); i <= 5; i++ {
		r.Add(markedFrame(t, i))
	}
	if got := r.Len(); got != 3 {
		t.Fatalf("Len = %d, want 3", got)
	}

	drained := r.Drain()
	if len(drained) != 3 {
		t.Fatalf("drained %d frames, want 3", len(drained))
	}
	// Oldest-first: frames 1 and 2 were evicted.
	for i, want := range []uint8{3, 4, 5} {
		if got := drained[i].GetUCharAt(0, 0); got != want {
			t.Fatalf("drained[%d] mark = %d, want %d", i, got, want)
		}
		drained[i].Close()
	}

	if got := r.Len(); got != 0 {
		t.Fatalf("Len after Drain = %d, want 0", got)
	}
}

func TestFrameRingClonesOnAdd(t *testing.T) {
	r := NewFrameRing(2)
	defer r.Close()

	m := markedFrame(t, 7)
	r.Add(m)
	m.SetUCharAt(0, 0, 99) // mutating the source must not touch the ring

	drained := r.Drain()
	if len(drained) != 1 {
		t.Fatalf("drained %d frames, want 1", len(drained))
	}
	defer drained[0].Close()
	if got := drained[0].GetUCharAt(0, 0); got != 7 {
		t.Fatalf("ring frame mark = %d, want 7 (not a clone?)", got)
	}
}

func TestFrameRingNilSafe(t *testing.T) {
	var r *FrameRing // capacity 0 means disabled

	r.Add(markedFrame(t, 1))
	if got := r.Drain(); got != nil {
		t.Fatalf("Drain on nil ring = %v, want nil", got)
	}
	if got := r.Len(); got != 0 {
		t.Fatalf("Len on nil ring = %d, want 0", got)
	}
	r.Close()

	if NewFrameRing(0) != nil {
		t.Fatal("NewFrameRing(0) should return nil")
	}
}
