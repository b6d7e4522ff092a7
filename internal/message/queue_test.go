package message

import (
	"sync"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(4)
	q.PushMessage(ButtonPressed)
	q.PushMessage(TouchEvent)
	q.PushMessage(BleConnected)

	want := []Kind{ButtonPressed, TouchEvent, BleConnected}
	for i, w := range want {
		got, ok := q.Receive(0)
		if !ok {
			t.Fatalf("Receive #%d: queue empty", i)
		}
		if got != w {
			t.Errorf("Receive #%d = %v, want %v", i, got, w)
		}
	}
	if _, ok := q.Receive(0); ok {
		t.Error("Receive on drained queue returned a message")
	}
}

func TestQueueFullDrops(t *testing.T) {
	q := NewQueue(2)
	if !q.PushMessage(ButtonPressed) || !q.PushMessage(ButtonPressed) {
		t.Fatal("PushMessage failed before queue was full")
	}
	if q.PushMessage(TouchEvent) {
		t.Error("PushMessage on full queue = true, want false")
	}
	if q.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", q.Dropped())
	}
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
}

func TestQueueReceiveTimesOut(t *testing.T) {
	q := NewQueue(1)
	start := time.Now()
	if _, ok := q.Receive(10 * time.Millisecond); ok {
		t.Fatal("Receive returned a message from an empty queue")
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("Receive returned before the wait elapsed")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue(64)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 8; j++ {
				q.PushMessage(OnNewTime)
			}
		}()
	}
	wg.Wait()
	if q.Len() != 32 {
		t.Errorf("Len() = %d, want 32", q.Len())
	}
}

func TestKindString(t *testing.T) {
	if got := FirmwareUpdateFinished.String(); got != "FirmwareUpdateFinished" {
		t.Errorf("String() = %q", got)
	}
	if got := Kind(200).String(); got != "Kind(200)" {
		t.Errorf("String() = %q", got)
	}
}

func TestIsInteraction(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{ButtonPressed, true},
		{TouchEvent, true},
		{UpdateTimeOut, true},
		{TimerIdleExpired, false},
		{BleConnected, false},
		{ChargingStateChanged, false},
	}
	for _, tt := range tests {
		if got := tt.kind.IsInteraction(); got != tt.want {
			t.Errorf("%v.IsInteraction() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestPushFromISR(t *testing.T) {
	q := NewQueue(1)
	if !q.PushFromISR(ButtonEdge(true)) {
		t.Fatal("PushFromISR on empty queue = false")
	}
	if q.PushFromISR(ButtonEdge(false)) {
		t.Error("PushFromISR on full queue = true, want false")
	}
	if q.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", q.Dropped())
	}
	if k, _ := q.Receive(0); k != ButtonDown {
		t.Errorf("Receive = %v, want ButtonDown", k)
	}
}

func TestButtonEdgeKinds(t *testing.T) {
	if ButtonEdge(true) != ButtonDown || ButtonEdge(false) != ButtonUp {
		t.Errorf("ButtonEdge = %v/%v", ButtonEdge(true), ButtonEdge(false))
	}
	for _, k := range []Kind{ButtonDown, ButtonUp} {
		if k.IsInteraction() {
			t.Errorf("%v counts as interaction; only the classified gesture should", k)
		}
		if k.String() == "" {
			t.Errorf("kind %d has no name", k)
		}
	}
}
