//go:build !cgo

package main

import "errors"

func startHotkey(string, func(bool)) (func(), error) {
	return nil, errors.New("the global hotkey needs a cgo build")
}
