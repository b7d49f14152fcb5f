package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rcrelay/rcrelay/internal/control"
)

func kw(s string) control.Command {
	return control.Command{Source: control.SourceNetwork, Keyword: s}
}

func drain(t *testing.T, d *Dispatcher) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var got []string
	for {
		cmd, err := d.Next(ctx)
		if errors.Is(err, ErrClosed) {
			return got
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		got = append(got, cmd.Keyword)
	}
}

func TestDispatcherFIFO(t *testing.T) {
	d := NewDispatcher(8)
	for _, s := range []string{"A", "B", "C"} {
		if err := d.Post(kw(s)); err != nil {
			t.Fatal(err)
		}
	}
	d.Close()

	got := drain(t, d)
	if len(got) != 3 || got[0] != "A" || got[1] != "B" || got[2] != "C" {
		t.Fatalf("order = %v", got)
	}
	if d.Posted() != 3 || d.Dropped() != 0 {
		t.Fatalf("posted=%d dropped=%d", d.Posted(), d.Dropped())
	}
}

func TestDispatcherDropsOldestWhenFull(t *testing.T) {
	d := NewDispatcher(2)
	for _, s := range []string{"A", "B", "C", "D"} {
		if err := d.Post(kw(s)); err != nil {
			t.Fatal(err)
		}
	}
	if d.Len() != 2 {
		t.Fatalf("len = %d", d.Len())
	}
	d.Close()

	got := drain(t, d)
	if len(got) != 2 || got[0] != "C" || got[1] != "D" {
		t.Fatalf("kept = %v, want [C D]", got)
	}
	if d.Dropped() != 2 {
		t.Fatalf("dropped = %d", d.Dropped())
	}
}

func TestDispatcherSentinelIsLast(t *testing.T) {
	d := NewDispatcher(4)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = d.Post(kw("x"))
			}
		}()
	}

	done := make(chan int)
	go func() {
		n := 0
		for {
			if _, err := d.Next(context.Background()); err != nil {
				done <- n
				return
			}
			n++
		}
	}()

	wg.Wait()
	d.Close()
	d.Close()

	select {
	case n := <-done:
		if n == 0 || uint64(n) != d.Posted()-d.Dropped() {
			t.Fatalf("consumed %d, posted %d, dropped %d", n, d.Posted(), d.Dropped())
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("consumer never saw the sentinel")
	}

	if err := d.Post(kw("late")); !errors.Is(err, ErrClosed) {
		t.Fatalf("post after close = %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := d.Next(context.Background()); !errors.Is(err, ErrClosed) {
			t.Fatalf("next after sentinel = %v", err)
		}
	}
}

func TestDispatcherNextHonoursContext(t *testing.T) {
	d := NewDispatcher(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := d.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if cap(d.queue) != DefaultQueueSize+1 {
		t.Fatalf("default capacity = %d", cap(d.queue))
	}
}
