package schedule

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManual_TimersFireInDeadlineOrder(t *testing.T) {
	m := NewManual(epoch)
	var got []string

	m.After(30*time.Millisecond, func() { got = append(got, "b") })
	m.After(10*time.Millisecond, func() { got = append(got, "a") })
	m.After(50*time.Millisecond, func() { got = append(got, "c") })

	m.Advance(40 * time.Millisecond)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected [a b], got %v", got)
	}
	if !m.Now().Equal(epoch.Add(40 * time.Millisecond)) {
		t.Errorf("clock should land on target, got %v", m.Now().Sub(epoch))
	}

	m.Advance(10 * time.Millisecond)
	if len(got) != 3 {
		t.Fatalf("expected c to fire, got %v", got)
	}
}

func TestManual_TimerSeesItsDeadline(t *testing.T) {
	m := NewManual(epoch)
	var at time.Duration
	m.After(25*time.Millisecond, func() { at = m.Now().Sub(epoch) })
	m.Advance(time.Second)
	if at != 25*time.Millisecond {
		t.Errorf("timer should observe its own deadline, got %v", at)
	}
}

func TestManual_CancelTimer(t *testing.T) {
	m := NewManual(epoch)
	fired := false
	h := m.After(10*time.Millisecond, func() { fired = true })
	m.CancelTimer(h)
	m.CancelTimer(h)
	m.Advance(time.Second)
	if fired {
		t.Error("cancelled timer fired")
	}
	if m.PendingTimers() != 0 {
		t.Errorf("expected no pending timers, got %d", m.PendingTimers())
	}
}

func TestManual_NestedTimer(t *testing.T) {
	m := NewManual(epoch)
	count := 0
	m.After(10*time.Millisecond, func() {
		count++
		m.After(10*time.Millisecond, func() { count++ })
	})
	m.Advance(25 * time.Millisecond)
	if count != 2 {
		t.Errorf("nested timer within window should fire, count=%d", count)
	}
}

func TestManual_RunFrame(t *testing.T) {
	m := NewManual(epoch)
	var got []int

	m.RequestFrame(func() { got = append(got, 1) })
	h := m.RequestFrame(func() { got = append(got, 2) })
	m.RequestFrame(func() {
		got = append(got, 3)
		m.RequestFrame(func() { got = append(got, 4) })
	})
	m.CancelFrame(h)

	if n := m.RunFrame(); n != 2 {
		t.Errorf("expected 2 callbacks, ran %d", n)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("unexpected order %v", got)
	}
	if m.PendingFrames() != 1 {
		t.Errorf("callback requested during frame should wait, pending=%d", m.PendingFrames())
	}
	m.RunFrame()
	if len(got) != 3 || got[2] != 4 {
		t.Errorf("expected deferred callback in next frame, got %v", got)
	}
	if m.FramesRun() != 2 {
		t.Errorf("expected 2 frames run, got %d", m.FramesRun())
	}
}

func TestManual_PanicIsolation(t *testing.T) {
	m := NewManual(epoch)
	ran := false
	m.RequestFrame(func() { panic("boom") })
	m.RequestFrame(func() { ran = true })
	m.RunFrame()
	if !ran {
		t.Error("sibling callback should run after a panic")
	}
	if m.Panics() != 1 {
		t.Errorf("expected 1 panic, got %d", m.Panics())
	}
}

func TestManual_NextDeadline(t *testing.T) {
	m := NewManual(epoch)
	if _, ok := m.NextDeadline(); ok {
		t.Error("no deadline expected")
	}
	m.After(50*time.Millisecond, func() {})
	m.After(20*time.Millisecond, func() {})
	d, ok := m.NextDeadline()
	if !ok || !d.Equal(epoch.Add(20*time.Millisecond)) {
		t.Errorf("unexpected deadline %v %v", d, ok)
	}
}

var _ Scheduler = (*Manual)(nil)
var _ Scheduler = (*Loop)(nil)
