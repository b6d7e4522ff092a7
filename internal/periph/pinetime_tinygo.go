//go:build tinygo && pinetime

package periph

import (
	"encoding/binary"
	"machine"
	"sync/atomic"
	"time"

	"tinygo.org/x/drivers/st7789"
)

// PineTime pin map.
const (
	pinButton       = machine.P0_13
	pinButtonEnable = machine.P0_15
	pinCharging     = machine.P0_12 // low while charging
	pinPowerPresent = machine.P0_19 // low while on the cradle
	pinLCDCS        = machine.P0_25
	pinLCDDC        = machine.P0_18
	pinLCDReset     = machine.P0_26
	pinBacklightLow = machine.P0_14
	pinBacklightMid = machine.P0_22
	pinBacklightHi  = machine.P0_23
	pinMotor        = machine.P0_16 // active low
	pinBatteryADC   = machine.P0_31
	pinTouchReset   = machine.P0_10
)

const (
	touchAddr  = 0x15
	motionAddr = 0x18
)

// Callbacks are invoked from interrupt context. They must only enqueue.
type Callbacks struct {
	ButtonEdge     func(pressed bool)
	ChargingChange func()
}

// NewPineTimeBoard configures every peripheral of a PineTime and returns the
// board. The watchdog is started with the given timeout.
func NewPineTimeBoard(cb Callbacks, watchdogTimeout time.Duration) (*Board, error) {
	machine.SPI0.Configure(machine.SPIConfig{
		Frequency: 8000000,
		SCK:       machine.P0_02,
		SDO:       machine.P0_03,
		SDI:       machine.P0_04,
		Mode:      3,
	})
	if err := machine.I2C1.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.P0_06,
		SCL:       machine.P0_07,
	}); err != nil {
		return nil, err
	}

	disp := st7789.New(machine.SPI0, pinLCDReset, pinLCDDC, pinLCDCS, pinBacklightHi)
	disp.Configure(st7789.Config{
		Width:    240,
		Height:   240,
		Rotation: st7789.NO_ROTATION,
	})

	for _, p := range []machine.Pin{pinBacklightLow, pinBacklightMid, pinBacklightHi, pinMotor, pinButtonEnable, pinTouchReset} {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	}
	pinMotor.High()
	pinButtonEnable.High()
	pinTouchReset.High()

	pinButton.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
	if cb.ButtonEdge != nil {
		if err := pinButton.SetInterrupt(machine.PinToggle, func(p machine.Pin) {
			cb.ButtonEdge(p.Get())
		}); err != nil {
			return nil, err
		}
	}
	pinCharging.Configure(machine.PinConfig{Mode: machine.PinInput})
	pinPowerPresent.Configure(machine.PinConfig{Mode: machine.PinInput})
	if cb.ChargingChange != nil {
		if err := pinCharging.SetInterrupt(machine.PinToggle, func(machine.Pin) {
			cb.ChargingChange()
		}); err != nil {
			return nil, err
		}
	}

	machine.InitADC()
	adc := machine.ADC{Pin: pinBatteryADC}
	adc.Configure(machine.ADCConfig{})

	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: uint32(watchdogTimeout.Milliseconds())})
	if err := machine.Watchdog.Start(); err != nil {
		return nil, err
	}

	d := &ptDisplay{dev: &disp}
	d.SetBrightness(2)
	return &Board{
		Display:   d,
		HeartRate: &ptHeartRate{},
		Motion:    &ptMotion{bus: machine.I2C1},
		Touch:     &ptTouch{bus: machine.I2C1},
		Battery:   &ptBattery{adc: adc},
		Motor:     &ptMotor{},
		Flash:     ptFlash{},
		Watchdog:  ptWatchdog{},
		Radio:     &ptRadio{on: 1},
		Identity:  ptIdentity{},
	}, nil
}

type ptDisplay struct{ dev *st7789.Device }

func (d *ptDisplay) Sleep() error {
	d.SetBrightness(0)
	return d.dev.Sleep(true)
}

func (d *ptDisplay) Wakeup() error {
	return d.dev.Sleep(false)
}

// SetBrightness drives the three backlight transistors, all active low.
func (d *ptDisplay) SetBrightness(level uint8) {
	pinBacklightLow.Set(level < 1)
	pinBacklightMid.Set(level < 2)
	pinBacklightHi.Set(level < 3)
}

// ptHeartRate powers the HRS3300 down by its enable register.
type ptHeartRate struct{}

func (ptHeartRate) Enable() error  { return machine.I2C1.WriteRegister(0x44, 0x01, []byte{0x68}) }
func (ptHeartRate) Disable() error { return machine.I2C1.WriteRegister(0x44, 0x01, []byte{0x08}) }

// ptMotion reads raw BMA421 acceleration and applies the wake heuristics.
type ptMotion struct {
	bus      *machine.I2C
	x, y, z  int16
	lastY    int16
	lastZ    int16
	shakeAcc uint16
}

func (m *ptMotion) Enable() error  { return m.bus.WriteRegister(motionAddr, 0x7D, []byte{0x04}) }
func (m *ptMotion) Disable() error { return m.bus.WriteRegister(motionAddr, 0x7D, []byte{0x00}) }

func (m *ptMotion) Update() error {
	var buf [6]byte
	if err := m.bus.ReadRegister(motionAddr, 0x12, buf[:]); err != nil {
		return err
	}
	m.lastY, m.lastZ = m.y, m.z
	m.x = int16(binary.LittleEndian.Uint16(buf[0:])) >> 4
	m.y = int16(binary.LittleEndian.Uint16(buf[2:])) >> 4
	m.z = int16(binary.LittleEndian.Uint16(buf[4:])) >> 4
	return nil
}

func (m *ptMotion) ShouldShakeWake(threshold uint16) bool {
	delta := abs16(m.y-m.lastY) + abs16(m.z-m.lastZ)
	m.shakeAcc = m.shakeAcc/2 + uint16(delta)
	return m.shakeAcc > threshold
}

func (m *ptMotion) ShouldRaiseWake() bool {
	return m.y-m.lastY > 64 && m.z < 0 && abs16(m.x) < 256
}

func abs16(v int16) int16 {
	if v < 0 {
		return -v
	}
	return v
}

// ptTouch reads the CST816S gesture registers.
type ptTouch struct{ bus *machine.I2C }

func (t *ptTouch) Info() TouchInfo {
	var buf [3]byte
	if err := t.bus.ReadRegister(touchAddr, 0x00, buf[:]); err != nil {
		return TouchInfo{}
	}
	info := TouchInfo{Valid: true, Touching: buf[2]&0x0F > 0}
	switch buf[1] {
	case 0x01:
		info.Gesture = GestureSlideDown
	case 0x02:
		info.Gesture = GestureSlideUp
	case 0x03:
		info.Gesture = GestureSlideLeft
	case 0x04:
		info.Gesture = GestureSlideRight
	case 0x05:
		info.Gesture = GestureSingleTap
	case 0x0B:
		info.Gesture = GestureDoubleTap
	case 0x0C:
		info.Gesture = GestureLongPress
	}
	return info
}

type ptBattery struct{ adc machine.ADC }

// Sample converts the halved battery voltage on the 3.6 V full-scale ADC and
// maps 3.5 V to 4.18 V linearly onto 0 to 100 percent.
func (b *ptBattery) Sample() (BatteryReading, error) {
	raw := uint32(b.adc.Get())
	mv := uint16(raw * 3600 * 2 / 65535)
	r := BatteryReading{
		Millivolts:   mv,
		Charging:     !pinCharging.Get(),
		PowerPresent: !pinPowerPresent.Get(),
	}
	switch {
	case mv >= 4180:
		r.Percent = 100
	case mv <= 3500:
		r.Percent = 0
	default:
		r.Percent = uint8(uint32(mv-3500) * 100 / 680)
	}
	return r, nil
}

type ptMotor struct{ ringing atomic.Bool }

func (m *ptMotor) RunFor(d time.Duration) {
	pinMotor.Low()
	time.AfterFunc(d, func() {
		if !m.ringing.Load() {
			pinMotor.High()
		}
	})
}

func (m *ptMotor) StartRinging() {
	m.ringing.Store(true)
	pinMotor.Low()
}

func (m *ptMotor) StopRinging() {
	m.ringing.Store(false)
	pinMotor.High()
}

// ptFlash sends the SPI NOR deep power-down and release commands.
type ptFlash struct{}

const pinFlashCS = machine.P0_05

func (ptFlash) Sleep() error  { return flashCommand(0xB9) }
func (ptFlash) Wakeup() error { return flashCommand(0xAB) }

func flashCommand(op byte) error {
	pinFlashCS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinFlashCS.Low()
	_, err := machine.SPI0.Transfer(op)
	pinFlashCS.High()
	return err
}

type ptWatchdog struct{}

func (ptWatchdog) Kick() { machine.Watchdog.Update() }

// ptRadio gates the radio in software: the SoftDevice owns the RADIO
// peripheral, so power-off means the BLE layer stops advertising and
// refuses to restart until power returns.
type ptRadio struct{ on uint32 }

func (r *ptRadio) SetPower(on bool) error {
	v := uint32(0)
	if on {
		v = 1
	}
	atomic.StoreUint32(&r.on, v)
	return nil
}

func (r *ptRadio) Powered() bool { return atomic.LoadUint32(&r.on) == 1 }

type ptIdentity struct{}

func (ptIdentity) DeviceID() []byte { return machine.DeviceID() }

var _ BlockDevice = machine.Flash
