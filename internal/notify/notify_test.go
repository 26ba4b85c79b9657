package notify

import (
	"testing"
)

func TestSet_NotifyInOrder(t *testing.T) {
	var s Set[int]
	var got []string

	s.SubscribeFunc(func(v int) { got = append(got, "a") })
	s.SubscribeFunc(func(v int) { got = append(got, "b") })

	s.Notify(1)

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("expected [a b], got %v", got)
	}
}

func TestSet_Unsubscribe(t *testing.T) {
	var s Set[string]
	count := 0

	sub := s.SubscribeFunc(func(string) { count++ })
	s.Notify("x")
	sub.Unsubscribe()
	sub.Unsubscribe()
	s.Notify("y")

	if count != 1 {
		t.Errorf("expected 1 delivery, got %d", count)
	}
	if s.Len() != 0 {
		t.Errorf("expected no observers, got %d", s.Len())
	}

	var nilSub *Subscription
	nilSub.Unsubscribe()
}

func TestSet_PanicIsolated(t *testing.T) {
	s := NewSet[int](nil)
	delivered := false

	s.SubscribeFunc(func(int) { panic("boom") })
	s.SubscribeFunc(func(int) { delivered = true })

	if failed := s.Notify(7); failed != 1 {
		t.Errorf("expected 1 failure, got %d", failed)
	}
	if !delivered {
		t.Error("second observer should still be notified")
	}
}

func TestSet_UnsubscribeDuringNotify(t *testing.T) {
	var s Set[int]
	var second *Subscription
	calls := 0

	s.SubscribeFunc(func(int) { second.Unsubscribe() })
	second = s.SubscribeFunc(func(int) { calls++ })

	s.Notify(1)
	s.Notify(2)

	if calls != 1 {
		t.Errorf("snapshot delivery should reach the second observer once, got %d", calls)
	}
}

type recorder struct{ values []int }

func (r *recorder) Notify(v int) { r.values = append(r.values, v) }

func TestSet_ObserverInterface(t *testing.T) {
	var s Set[int]
	r := &recorder{}
	s.Subscribe(r)
	s.Notify(3)
	s.Notify(4)
	if len(r.values) != 2 || r.values[1] != 4 {
		t.Errorf("unexpected values %v", r.values)
	}
	s.Clear()
	s.Notify(5)
	if len(r.values) != 2 {
		t.Error("Clear should drop observers")
	}
}
