package services

import (
	"github.com/chaz8081/praxiom-core/internal/gatt"
)

// DeviceInfo is the Device Information Service (0x180A).
type DeviceInfo struct {
	desc   *gatt.ServiceDescriptor
	values map[*gatt.Characteristic]string
}

// DeviceInfoStrings are the values exposed by DeviceInfo.
type DeviceInfoStrings struct {
	Manufacturer string
	Model        string
	Serial       string
	Firmware     string
	Hardware     string
	Software     string
}

// NewDeviceInfo returns the read-only service.
func NewDeviceInfo(v DeviceInfoStrings) *DeviceInfo {
	s := &DeviceInfo{values: make(map[*gatt.Characteristic]string)}
	var chars []*gatt.Characteristic
	for _, e := range []struct {
		uuid uint16
		val  string
	}{
		{0x2A29, v.Manufacturer},
		{0x2A24, v.Model},
		{0x2A25, v.Serial},
		{0x2A26, v.Firmware},
		{0x2A27, v.Hardware},
		{0x2A28, v.Software},
	} {
		c := gatt.NewCharacteristic(gatt.UUID16(e.uuid), gatt.PermRead)
		s.values[c] = e.val
		chars = append(chars, c)
	}
	s.desc = gatt.NewService(gatt.UUID16(0x180A), chars...)
	return s
}

func (s *DeviceInfo) Descriptor() *gatt.ServiceDescriptor { return s.desc }

func (s *DeviceInfo) OnAccess(a *gatt.Access) error {
	c, ok := s.desc.Lookup(a.Handle)
	if !ok {
		return gatt.ErrInvalidHandle
	}
	if a.Op != gatt.OpRead {
		return gatt.ErrWriteNotPermitted
	}
	_, err := a.Out.Write([]byte(s.values[c]))
	return err
}
