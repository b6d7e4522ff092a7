// Package gatt is the service-unit framework shared by every GATT service:
// immutable service and characteristic descriptors, permission bits, the
// access contract a host dispatches reads and writes through, ATT error
// codes, and the notification channel each notify-capable characteristic
// pushes through.
package gatt

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// baseUUID is the Bluetooth base UUID 0000xxxx-0000-1000-8000-00805F9B34FB.
var baseUUID = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// UUID16 expands a SIG-assigned 16-bit UUID onto the Bluetooth base UUID.
func UUID16(short uint16) uuid.UUID {
	u := baseUUID
	binary.BigEndian.PutUint16(u[2:4], short)
	return u
}

// Short returns the 16-bit form of u when u sits on the Bluetooth base UUID.
func Short(u uuid.UUID) (uint16, bool) {
	v := u
	v[2], v[3] = 0, 0
	if v != baseUUID {
		return 0, false
	}
	return binary.BigEndian.Uint16(u[2:4]), true
}

// ReverseBytes returns u in the little-endian byte order used on air and by
// most stacks' 128-bit UUID structs.
func ReverseBytes(u uuid.UUID) [16]byte {
	var out [16]byte
	for i := range u {
		out[15-i] = u[i]
	}
	return out
}
