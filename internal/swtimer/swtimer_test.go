package swtimer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestManualOneShotFiresOnce(t *testing.T) {
	m := NewManual()
	var fired int
	m.AfterFunc(5*time.Second, func() { fired++ })

	m.Advance(4 * time.Second)
	if fired != 0 {
		t.Fatalf("fired = %d before deadline", fired)
	}
	m.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("fired = %d at deadline, want 1", fired)
	}
	m.Advance(time.Minute)
	if fired != 1 {
		t.Errorf("one-shot fired again: %d", fired)
	}
}

func TestManualResetPushesDeadline(t *testing.T) {
	m := NewManual()
	var fired int
	tm := m.AfterFunc(10*time.Second, func() { fired++ })

	m.Advance(8 * time.Second)
	tm.Reset(10 * time.Second)
	m.Advance(8 * time.Second)
	if fired != 0 {
		t.Fatalf("timer fired before reset deadline")
	}
	m.Advance(2 * time.Second)
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
}

func TestManualStop(t *testing.T) {
	m := NewManual()
	var fired int
	tm := m.Every(time.Second, func() { fired++ })
	m.Advance(3 * time.Second)
	tm.Stop()
	m.Advance(10 * time.Second)
	if fired != 3 {
		t.Errorf("fired = %d, want 3", fired)
	}
	if m.Armed() != 0 {
		t.Errorf("Armed() = %d, want 0", m.Armed())
	}
}

func TestManualFiresInDeadlineOrder(t *testing.T) {
	m := NewManual()
	var order []string
	m.AfterFunc(3*time.Second, func() { order = append(order, "idle") })
	m.AfterFunc(1*time.Second, func() { order = append(order, "dim") })
	m.Every(2*time.Second, func() { order = append(order, "tick") })

	m.Advance(4 * time.Second)
	want := []string{"dim", "tick", "idle", "tick"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestRealOneShot(t *testing.T) {
	var fired atomic.Int32
	done := make(chan struct{})
	Real.AfterFunc(5*time.Millisecond, func() {
		fired.Add(1)
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("real one-shot never fired")
	}
	if fired.Load() != 1 {
		t.Errorf("fired = %d, want 1", fired.Load())
	}
}

func TestRealPeriodicStop(t *testing.T) {
	var fired atomic.Int32
	tm := Real.Every(2*time.Millisecond, func() { fired.Add(1) })
	time.Sleep(20 * time.Millisecond)
	tm.Stop()
	n := fired.Load()
	if n == 0 {
		t.Fatal("periodic timer never fired")
	}
	time.Sleep(20 * time.Millisecond)
	if fired.Load() > n+1 {
		t.Errorf("periodic timer kept firing after Stop: %d -> %d", n, fired.Load())
	}
}
