//go:build cgo

package main

import (
	"github.com/chaz8081/praxiom-core/internal/hotkey"
)

// startHotkey holds the side button while combo is held. It returns the
// function that unhooks the keyboard.
func startHotkey(combo string, edge func(bool)) (func(), error) {
	keys, err := hotkey.ParseKeys(combo)
	if err != nil {
		return nil, err
	}
	l := hotkey.NewListener(keys, edge)
	go l.Start()
	return l.Stop, nil
}
