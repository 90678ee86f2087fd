package audio_test

import (
	"testing"

	"github.com/MrWong99/wakepipe/pkg/audio"
)

func TestFrameRing_DropsOldest(t *testing.T) {
	t.Parallel()

	var evicted []uint64
	r := audio.NewFrameRing(3, audio.WithDropHook(func(f audio.AudioFrame) {
		evicted = append(evicted, f.Seq)
	}))

	for seq := uint64(1); seq <= 5; seq++ {
		r.Push(audio.AudioFrame{Seq: seq})
	}
	r.Close()

	if got := r.Dropped(); got != 2 {
		t.Errorf("Dropped = %d, want 2", got)
	}
	if len(evicted) != 2 || evicted[0] != 1 || evicted[1] != 2 {
		t.Errorf("evicted = %v, want [1 2]", evicted)
	}

	var got []uint64
	for f := range r.Frames() {
		got = append(got, f.Seq)
	}
	want := []uint64{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("frames = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d: seq %d, want %d", i, got[i], want[i])
		}
	}
}

func TestFrameRing_OrderPreservedUnderConcurrentConsumer(t *testing.T) {
	t.Parallel()

	r := audio.NewFrameRing(4)
	done := make(chan []uint64)
	go func() {
		var seen []uint64
		for f := range r.Frames() {
			seen = append(seen, f.Seq)
		}
		done <- seen
	}()

	const n = 10000
	for seq := uint64(1); seq <= n; seq++ {
		r.Push(audio.AudioFrame{Seq: seq})
	}
	r.Close()
	seen := <-done

	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("sequence not increasing at %d: %d after %d", i, seen[i], seen[i-1])
		}
	}
	if uint64(len(seen))+r.Dropped() != n {
		t.Errorf("received %d + dropped %d != %d", len(seen), r.Dropped(), n)
	}
}

func TestFrameRing_DefaultSize(t *testing.T) {
	t.Parallel()

	r := audio.NewFrameRing(0)
	for i := range audio.DefaultRingSize {
		r.Push(audio.AudioFrame{Seq: uint64(i + 1)})
	}
	if r.Dropped() != 0 {
		t.Errorf("Dropped = %d, want 0", r.Dropped())
	}
	if r.Len() != audio.DefaultRingSize {
		t.Errorf("Len = %d, want %d", r.Len(), audio.DefaultRingSize)
	}
}
