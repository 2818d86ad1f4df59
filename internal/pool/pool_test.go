package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool(t *testing.T) {
	p := New(t.Context(), 2)

	// Add a task that returns a deadline in the future.
	p.Add("a", func(context.Context) time.Time {
		return time.Now().Add(100 * time.Millisecond)
	})

	// Add a task that returns a deadline in the past.
	p.Add("b", func(context.Context) time.Time {
		return time.Now().Add(-100 * time.Millisecond)
	})

	// Add a task that returns a deadline in the future.
	p.Add("c", func(context.Context) time.Time {
		return time.Now().Add(200 * time.Millisecond)
	})

	// Wait for a short period to allow tasks to be processed.
	time.Sleep(300 * time.Millisecond)

	// The pool should have processed all tasks without deadlock.
	// If it had gotten stuck, we'd never reach this line.
	t.Log("All tasks processed successfully")
}

type run struct {
	left     int
	ran      atomic.Int32
	sleep    time.Duration
	deadline time.Duration
}

func (t *run) Execute(context.Context) time.Time {
	if t.left > 0 {
		time.Sleep(t.sleep)
		t.left--
		t.ran.Add(1)
		return time.Now().Add(t.deadline)
	}

	var zero time.Time
	return zero // dequeue task
}

func TestTrigger(t *testing.T) {
	t.Run("trigger pulls queued task up from", func(t *testing.T) {
		p := New(t.Context(), 2)

		rx := &run{left: 3, deadline: 200 * time.Millisecond}

		p.Add("t", rx.Execute) // will run once (run #1), and be queued for 200 ms

		_ = p.Trigger("t") // pulled in front, run #2
		time.Sleep(50 * time.Millisecond)
		_ = p.Trigger("t")                 // pulled in front, run #3
		time.Sleep(300 * time.Millisecond) // no other runs, third run dequeued

		if exp, act := int32(3), rx.ran.Load(); exp != act {
			t.Errorf("expected counter of %d, got %d", exp, act)
		}
	})

	t.Run("trigger reruns executing task right away", func(t *testing.T) {
		p := New(t.Context(), 2)

		// if it wasn't triggered, we'd not see a second run: the next deadline is 1s
		rx := &run{left: 3, sleep: 100 * time.Millisecond, deadline: time.Second}

		p.Add("t", rx.Execute) // will run once (run #1), and be queued for 200 ms
		time.Sleep(50 * time.Millisecond)
		_ = p.Trigger("t") // re-run after it's done, run #2

		time.Sleep(300 * time.Millisecond)

		if exp, act := int32(2), rx.ran.Load(); exp != act {
			t.Errorf("expected counter of %d, got %d", exp, act)
		}
	})
}

func TestTriggerWhileRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	p := New(ctx, 2)

	var runs atomic.Int32
	started := make(chan struct{}, 16)
	p.Add("js/app", func(context.Context) time.Time {
		started <- struct{}{}
		time.Sleep(20 * time.Millisecond)
		runs.Add(1)
		return time.Now().Add(time.Hour)
	})

	<-started
	for range 5 {
		if err := p.Trigger("js/app"); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
	}

	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected a rerun after triggering, got %d runs", runs.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	p.Wait()
}

func TestTriggerDoesNotReviveRemovedTask(t *testing.T) {
	p := New(t.Context(), 1)

	var runs atomic.Int32
	started := make(chan struct{})
	p.Add("css/main", func(context.Context) time.Time {
		runs.Add(1)
		close(started)
		time.Sleep(20 * time.Millisecond)
		return time.Time{}
	})

	<-started
	if err := p.Trigger("css/main"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if act := runs.Load(); act != 1 {
		t.Fatalf("expected a single run, got %d", act)
	}
	if err := p.Trigger("css/main"); err == nil {
		t.Fatal("expected removed task to be unknown")
	}
}

func TestStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	p := New(ctx, 1)

	var runs atomic.Int32
	p.Add("css/main", func(context.Context) time.Time {
		runs.Add(1)
		return time.Now().Add(50 * time.Millisecond)
	})

	time.Sleep(20 * time.Millisecond)
	cancel()
	p.Wait()
	time.Sleep(100 * time.Millisecond)

	if act := runs.Load(); act != 1 {
		t.Fatalf("expected a single run before cancellation, got %d", act)
	}
}

func TestTriggerUnknown(t *testing.T) {
	p := New(t.Context(), 1)

	if err := p.Trigger("js/missing"); err == nil {
		t.Fatal("expected error")
	}
}
