// Package crypto derives the watch's stable BLE identity from its hardware
// device ID.
package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const addressInfo = "praxiom static address"

// ErrEmptyDeviceID is returned when the board reports no identity.
var ErrEmptyDeviceID = errors.New("ble/crypto: empty device id")

// DeriveStaticAddress returns a static random address derived from the
// device ID with HKDF-SHA256. The two most significant bits of the most
// significant byte are set to 0b11, marking it static random, and the
// remaining bits are never all zero or all one. The address is returned in
// the usual display order, most significant byte first.
func DeriveStaticAddress(deviceID []byte) ([6]byte, error) {
	var addr [6]byte
	if len(deviceID) == 0 {
		return addr, ErrEmptyDeviceID
	}
	r := hkdf.New(sha256.New, deviceID, nil, []byte(addressInfo))
	for {
		if _, err := io.ReadFull(r, addr[:]); err != nil {
			return addr, fmt.Errorf("ble/crypto: HKDF: %w", err)
		}
		addr[0] |= 0xC0
		if validRandomPart(addr) {
			return addr, nil
		}
	}
}

// validRandomPart reports whether the 46 random bits are neither all zero
// nor all one.
func validRandomPart(a [6]byte) bool {
	allZero, allOne := a[0]&0x3F == 0, a[0]&0x3F == 0x3F
	for _, b := range a[1:] {
		allZero = allZero && b == 0
		allOne = allOne && b == 0xFF
	}
	return !allZero && !allOne
}

// FormatAddress renders a in colon-separated hex.
func FormatAddress(a [6]byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}
