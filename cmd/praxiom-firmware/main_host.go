//go:build !(tinygo && pinetime)

package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "praxiom-firmware only builds for the watch: tinygo build -target=pinetime ./cmd/praxiom-firmware")
	fmt.Fprintln(os.Stderr, "Use ./cmd/praxiom-sim to run the core on this machine.")
	os.Exit(2)
}
