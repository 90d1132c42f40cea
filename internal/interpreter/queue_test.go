package interpreter

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	for i := 1; i <= 3; i++ {
		q.Push(Outputf("%d", i))
	}

	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}
	for i := 1; i <= 3; i++ {
		ev, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop %d: queue empty", i)
		}
		if ev.Text != fmt.Sprint(i) {
			t.Errorf("TryPop %d = %q", i, ev.Text)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Error("TryPop on empty queue returned an event")
	}

	pushed, popped := q.Stats()
	if pushed != 3 || popped != 3 {
		t.Errorf("Stats() = %d, %d, want 3, 3", pushed, popped)
	}
}

func TestQueue_PopWait(t *testing.T) {
	t.Run("times_out_empty", func(t *testing.T) {
		q := NewQueue()
		start := time.Now()
		if _, ok := q.PopWait(50 * time.Millisecond); ok {
			t.Fatal("PopWait returned an event from an empty queue")
		}
		if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
			t.Errorf("PopWait returned after %v, expected to wait", elapsed)
		}
	})

	t.Run("wakes_on_push", func(t *testing.T) {
		q := NewQueue()
		go func() {
			time.Sleep(20 * time.Millisecond)
			q.Push(Output("late"))
		}()

		start := time.Now()
		ev, ok := q.PopWait(2 * time.Second)
		if !ok || ev.Text != "late" {
			t.Fatalf("PopWait = %v, %v", ev, ok)
		}
		if time.Since(start) > time.Second {
			t.Error("PopWait did not wake on push")
		}
	})

	t.Run("stale_notification", func(t *testing.T) {
		q := NewQueue()
		q.Push(Output("a"))
		q.TryPop() // leaves a pending notification behind

		if _, ok := q.PopWait(30 * time.Millisecond); ok {
			t.Error("stale notification produced an event")
		}
	})
}

func TestQueue_Discard(t *testing.T) {
	q := NewQueue()
	q.Push(Output("a"))
	q.Push(Output("b"))
	q.TryPop()
	q.Push(Output("c"))

	if n := q.Discard(); n != 2 {
		t.Errorf("Discard() = %d, want 2", n)
	}
	if q.Len() != 0 {
		t.Errorf("Len() after Discard = %d", q.Len())
	}

	q.Push(Output("d"))
	if ev, _ := q.TryPop(); ev.Text != "d" {
		t.Errorf("after Discard got %q, want d", ev.Text)
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := NewQueue()
	const perProducer = 500

	var wg sync.WaitGroup
	for _, s := range []Stream{StreamStdout, StreamStderr} {
		wg.Add(1)
		go func(s Stream) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(Event{Kind: KindOutput, Text: fmt.Sprint(i), Stream: s})
			}
		}(s)
	}
	wg.Wait()

	// Each producer's events keep their relative order.
	next := map[Stream]int{}
	for {
		ev, ok := q.TryPop()
		if !ok {
			break
		}
		if ev.Text != fmt.Sprint(next[ev.Stream]) {
			t.Fatalf("%s: got %s, want %d", ev.Stream, ev.Text, next[ev.Stream])
		}
		next[ev.Stream]++
	}
	if next[StreamStdout] != perProducer || next[StreamStderr] != perProducer {
		t.Errorf("consumed %v, want %d each", next, perProducer)
	}
}
