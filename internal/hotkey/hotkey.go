//go:build cgo

// Package hotkey maps a global desktop key combination onto the watch's
// side button using gohook. Holding the keys holds the button, so the
// button classifier sees the same press and release edges it would get
// from the GPIO interrupt.
package hotkey

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	hook "github.com/robotn/gohook"
)

// EdgeFunc receives button level changes.
type EdgeFunc func(pressed bool)

// Listener turns a key combination into button edges.
type Listener struct {
	keys []string
	edge EdgeFunc
	done chan struct{}
	once sync.Once

	mu   sync.Mutex
	down bool
}

// ParseKeys splits a combination such as "ctrl+shift+b" into the lowercase
// key names gohook expects.
func ParseKeys(combo string) ([]string, error) {
	var keys []string
	for _, k := range strings.Split(strings.ToLower(combo), "+") {
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, fmt.Errorf("hotkey: empty key in %q", combo)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// NewListener creates a Listener that reports edges to edge.
func NewListener(keys []string, edge EdgeFunc) *Listener {
	return &Listener{
		keys: keys,
		edge: edge,
		done: make(chan struct{}),
	}
}

// Start hooks the keyboard. It blocks until Stop is called; run it in a
// goroutine.
func (l *Listener) Start() {
	hook.Register(hook.KeyDown, l.keys, func(hook.Event) { l.set(true) })
	hook.Register(hook.KeyUp, l.keys, func(hook.Event) { l.set(false) })

	slog.Info("[HOTKEY] listening", "keys", strings.Join(l.keys, "+"))
	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	l.set(false)
}

// set forwards a level change. Key auto-repeat sends KeyDown over and over
// while held; only the first one is an edge.
func (l *Listener) set(pressed bool) {
	l.mu.Lock()
	if l.down == pressed {
		l.mu.Unlock()
		return
	}
	l.down = pressed
	l.mu.Unlock()
	slog.Debug("[HOTKEY] button", "pressed", pressed)
	l.edge(pressed)
}

// Stop unhooks the keyboard. It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
