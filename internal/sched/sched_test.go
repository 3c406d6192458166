package sched

import (
	"context"
	"testing"
	"time"
)

func TestVirtualClockFiresInOrder(t *testing.T) {
	s := NewVirtual(time.Unix(0, 0))
	var order []int
	s.Schedule(func(context.Context) { order = append(order, 2) }, 200*time.Millisecond)
	s.Schedule(func(context.Context) { order = append(order, 1) }, 100*time.Millisecond)
	s.Schedule(func(context.Context) { order = append(order, 3) }, 300*time.Millisecond)

	s.Tick(350 * time.Millisecond)

	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestFIFOOnEqualDeadline(t *testing.T) {
	s := NewVirtual(time.Unix(0, 0))
	var order []int
	s.Schedule(func(context.Context) { order = append(order, 1) }, 100*time.Millisecond)
	s.Schedule(func(context.Context) { order = append(order, 2) }, 100*time.Millisecond)
	s.Tick(100 * time.Millisecond)
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected FIFO order [1 2], got %v", order)
	}
}

func TestCancelPendingTask(t *testing.T) {
	s := NewVirtual(time.Unix(0, 0))
	fired := false
	h := s.Schedule(func(context.Context) { fired = true }, 100*time.Millisecond)
	h.Cancel()
	s.Tick(200 * time.Millisecond)
	if fired {
		t.Error("cancelled task should not fire")
	}
}

func TestPeriodicFiresRepeatedly(t *testing.T) {
	s := NewVirtual(time.Unix(0, 0))
	count := 0
	h := s.SchedulePeriodic(func(context.Context) { count++ }, 0, 100*time.Millisecond)
	s.Tick(350 * time.Millisecond)
	if count != 4 {
		t.Errorf("got %d fires, want 4", count)
	}
	h.Cancel()
	s.Tick(1000 * time.Millisecond)
	if count != 4 {
		t.Errorf("expected no further fires after cancel, got %d", count)
	}
}

func TestErrorSinkCatchesPanic(t *testing.T) {
	var caught error
	s := NewVirtual(time.Unix(0, 0), WithErrorSink(func(err error) { caught = err }))
	s.Schedule(func(context.Context) { panic("boom") }, 0)
	s.Tick(0)
	if caught == nil {
		t.Error("expected panic to be caught by error sink")
	}
}
