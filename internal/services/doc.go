// Package services holds the GATT services the watch exposes. Each one is a
// gatt.Handler: it owns an immutable descriptor, validates every write
// before touching its state, and pushes notifications through a
// gatt.Channel. Multi-byte fields are little-endian.
package services

import "github.com/chaz8081/praxiom-core/internal/gatt"

// Compile-time interface satisfaction checks.
var (
	_ gatt.Handler         = (*Battery)(nil)
	_ gatt.Subscriber      = (*Battery)(nil)
	_ gatt.ConnectionAware = (*Battery)(nil)

	_ gatt.Handler         = (*CurrentTime)(nil)
	_ gatt.Subscriber      = (*CurrentTime)(nil)
	_ gatt.ConnectionAware = (*CurrentTime)(nil)

	_ gatt.Handler = (*AlertNotification)(nil)
	_ gatt.Handler = (*DeviceInfo)(nil)
	_ gatt.Handler = (*ImmediateAlert)(nil)

	_ gatt.Handler         = (*Health)(nil)
	_ gatt.Subscriber      = (*Health)(nil)
	_ gatt.ConnectionAware = (*Health)(nil)
)
