package timeout

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestArmFiresAtDeadline(t *testing.T) {
	s := NewService()
	var fired atomic.Bool

	s.Arm(Key{Atom: "call", ID: "c1"}, time.Now().Add(20*time.Millisecond), func() {
		fired.Store(true)
	})

	time.Sleep(100 * time.Millisecond)
	if !fired.Load() {
		t.Fatal("expected timer to fire")
	}
}

func TestCancelPreventsFiring(t *testing.T) {
	s := NewService()
	var fired atomic.Bool

	s.Arm(Key{Atom: "call", ID: "c1"}, time.Now().Add(20*time.Millisecond), func() {
		fired.Store(true)
	})
	s.Cancel(Key{Atom: "call", ID: "c1"})

	time.Sleep(100 * time.Millisecond)
	if fired.Load() {
		t.Fatal("expected cancelled timer to never fire")
	}
}

func TestReArmReplacesPreviousTimer(t *testing.T) {
	s := NewService()
	var count atomic.Int32

	key := Key{Atom: "invitation", ID: "i1"}
	s.Arm(key, time.Now().Add(10*time.Millisecond), func() { count.Add(1) })
	s.Arm(key, time.Now().Add(200*time.Millisecond), func() { count.Add(1) })

	time.Sleep(60 * time.Millisecond)
	if count.Load() != 0 {
		t.Fatalf("expected re-arm to cancel the first timer, count=%d", count.Load())
	}

	time.Sleep(200 * time.Millisecond)
	if count.Load() != 1 {
		t.Fatalf("expected exactly one fire, count=%d", count.Load())
	}
}

func TestCancelAllStopsEveryTimer(t *testing.T) {
	s := NewService()
	var count atomic.Int32

	for i := 0; i < 5; i++ {
		s.Arm(Key{Atom: "call", ID: string(rune('a' + i))}, time.Now().Add(20*time.Millisecond), func() {
			count.Add(1)
		})
	}
	s.CancelAll()

	time.Sleep(100 * time.Millisecond)
	if count.Load() != 0 {
		t.Fatalf("expected no timers to fire after CancelAll, count=%d", count.Load())
	}
}
