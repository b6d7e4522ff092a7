package clock

import (
	"testing"
	"time"
)

func TestSetKeepsTicking(t *testing.T) {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	host := base
	c := NewWithSource(func() time.Time { return host })

	if c.Synced() {
		t.Fatal("new clock reports synced")
	}
	target := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c.Set(target)
	if !c.Now().Equal(target) {
		t.Fatalf("Now() = %v, want %v", c.Now(), target)
	}
	host = host.Add(90 * time.Second)
	if want := target.Add(90 * time.Second); !c.Now().Equal(want) {
		t.Errorf("Now() = %v, want %v", c.Now(), want)
	}
	if !c.Synced() {
		t.Error("Synced() = false after Set")
	}
}
