package tinygo

import (
	"log/slog"

	"github.com/chaz8081/praxiom-core/internal/gatt"
	"github.com/chaz8081/praxiom-core/internal/host"
)

// initialValue reads a readable attribute for the value the library serves
// until the first notification. A failed read registers the characteristic
// empty.
func initialValue(t *host.Table, a *host.Attr) []byte {
	if !a.Char.Permissions().Has(gatt.PermRead) {
		return nil
	}
	v, err := t.Read(gatt.ConnNone, a.Char.Handle())
	if err != nil {
		slog.Warn("[BLE] tinygo: initial read failed, serving an empty value",
			"char", a.Char.UUID(), "att", gatt.Code(err), "error", err)
		return nil
	}
	return v
}
