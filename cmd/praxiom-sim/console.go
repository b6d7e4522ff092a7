package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/praxiom-core/internal/app"
	"github.com/chaz8081/praxiom-core/internal/ble"
	"github.com/chaz8081/praxiom-core/internal/gatt"
	"github.com/chaz8081/praxiom-core/internal/host/sim"
	"github.com/chaz8081/praxiom-core/internal/message"
	"github.com/chaz8081/praxiom-core/internal/notification"
	"github.com/chaz8081/praxiom-core/internal/periph"
	"github.com/chaz8081/praxiom-core/internal/services"
)

var errNoPhone = errors.New("phone commands need the sim backend")

// phoneAddress is the simulated phone's public address.
var phoneAddress = ble.Address{0xA4, 0xC1, 0x38, 0x10, 0x20, 0x30}

// chars names the watch characteristics the phone commands accept.
var chars = map[string]uuid.UUID{
	"battery": gatt.UUID16(0x2A19),
	"time":    services.CurrentTimeCharUUID,
	"alert":   services.NewAlertCharUUID,
	"bioage":  services.BioAgeCharUUID,
	"health":  services.PackageCharUUID,
}

const help = `watch:
  press | release         side button edge
  click                   press and release
  tap | doubletap         touch panel gesture
  shake | raise           motion wake gestures
  battery <pct> [charging]
  radio                   toggle the radio
  timeout <duration>      screen timeout, e.g. 30s
  sleep | wake
  status | notes
phone (sim backend):
  connect | disconnect | pair
  subscribe <char> [off]  chars: battery time alert bioage health
  read <char>
  alert <text> | call <name>
  bioage <deci-years>
  settime                 phone notifies its current time
quit`

type console struct {
	app   *app.App
	board *periph.SimBoard
	phone *sim.Host
}

// run reads commands until EOF or quit.
func (c *console) run(in io.Reader, out io.Writer) {
	sc := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) > 0 {
			if fields[0] == "quit" || fields[0] == "exit" {
				return
			}
			if err := c.exec(out, fields[0], fields[1:]); err != nil {
				fmt.Fprintln(out, "error:", err)
			}
		}
		fmt.Fprint(out, "> ")
	}
}

func (c *console) exec(out io.Writer, cmd string, args []string) error {
	switch cmd {
	case "help", "?":
		fmt.Fprintln(out, help)
	case "press":
		c.app.Queue.PushMessage(message.ButtonDown)
	case "release":
		c.app.Queue.PushMessage(message.ButtonUp)
	case "click":
		c.app.Queue.PushMessage(message.ButtonDown)
		c.app.Queue.PushMessage(message.ButtonUp)
	case "tap":
		c.touch(periph.GestureSingleTap)
	case "doubletap":
		c.touch(periph.GestureDoubleTap)
	case "shake":
		c.board.SimMotion.Shake()
	case "raise":
		c.board.SimMotion.RaiseWrist()
	case "battery":
		return c.battery(args)
	case "radio":
		c.app.Queue.PushMessage(message.RadioToggleRequested)
	case "timeout":
		return c.timeout(args)
	case "sleep":
		c.app.Queue.PushMessage(message.GoToSleep)
	case "wake":
		c.app.Queue.PushMessage(message.GoToRunning)
	case "status":
		c.status(out)
	case "notes":
		for _, n := range c.app.Notes.All() {
			fmt.Fprintf(out, "  #%d %s %q %q\n", n.ID, n.Received.Format(time.TimeOnly), n.Title, n.Message)
		}
	default:
		return c.execPhone(out, cmd, args)
	}
	return nil
}

func (c *console) execPhone(out io.Writer, cmd string, args []string) error {
	if c.phone == nil {
		return errNoPhone
	}
	switch cmd {
	case "connect":
		conn, err := c.phone.Connect(phonePeer(c.app.Clock.Now()))
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "connected, handle", conn)
	case "disconnect":
		return c.phone.PeerDisconnect()
	case "pair":
		return c.phone.Pair(ble.PeerSecurity{LTKPresent: true})
	case "subscribe":
		u, err := charArg(args)
		if err != nil {
			return err
		}
		on := len(args) < 2 || args[1] != "off"
		return c.phone.Subscribe(u, on)
	case "read":
		u, err := charArg(args)
		if err != nil {
			return err
		}
		v, err := c.phone.ReadChar(u)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "% x\n", v)
	case "alert", "call":
		if len(args) == 0 {
			return fmt.Errorf("usage: %s <text>", cmd)
		}
		cat := notification.CategorySMS
		if cmd == "call" {
			cat = notification.CategoryCall
		}
		payload := append([]byte{byte(cat), 1}, strings.Join(args, " ")...)
		return c.phone.WriteChar(services.NewAlertCharUUID, payload, true)
	case "bioage":
		if len(args) != 1 {
			return errors.New("usage: bioage <deci-years>")
		}
		v, err := strconv.ParseUint(args[0], 10, 16)
		if err != nil {
			return fmt.Errorf("bioage: %w", err)
		}
		return c.phone.WriteChar(services.BioAgeCharUUID, binary.LittleEndian.AppendUint16(nil, uint16(v)), true)
	case "settime":
		v := services.EncodeCurrentTime(time.Now(), 1)
		sent, err := c.phone.PeerNotify(services.CurrentTimeCharUUID, v[:])
		if err != nil {
			return err
		}
		if !sent {
			fmt.Fprintln(out, "watch has not subscribed to the phone's time yet")
		}
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}

func (c *console) touch(g periph.Gesture) {
	c.board.SimTouch.Set(periph.TouchInfo{Valid: true, Gesture: g})
	c.app.Queue.PushMessage(message.TouchEvent)
}

func (c *console) battery(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: battery <pct> [charging]")
	}
	pct, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil || pct > 100 {
		return fmt.Errorf("battery: bad percent %q", args[0])
	}
	charging := len(args) > 1 && args[1] == "charging"
	c.board.SimBattery.Set(periph.BatteryReading{
		Millivolts:   uint16(3300 + 9*pct),
		Percent:      uint8(pct),
		Charging:     charging,
		PowerPresent: charging,
	})
	c.app.Queue.PushMessage(message.BatteryTimerExpired)
	return nil
}

func (c *console) timeout(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: timeout <duration>")
	}
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return fmt.Errorf("timeout: %w", err)
	}
	if !c.app.Settings.SetScreenTimeout(d) {
		return fmt.Errorf("timeout: %s is not longer than the %s dim lead", d, c.app.Settings.DimLead())
	}
	c.app.Queue.PushMessage(message.UpdateTimeOut)
	return nil
}

func (c *console) status(out io.Writer) {
	conn := "none"
	if h := c.app.Controller.ConnHandle(); h.Valid() {
		conn = strconv.Itoa(int(h))
	}
	rec := c.app.Health.Record()
	fmt.Fprintf(out, "  state:   %s\n", c.app.Task.State())
	fmt.Fprintf(out, "  address: %s  conn: %s  radio: %t\n", c.app.Controller.Address(), conn, c.app.Controller.RadioEnabled())
	fmt.Fprintf(out, "  battery: %d%%\n", c.app.Battery.Level())
	fmt.Fprintf(out, "  clock:   %s (synced %t)\n", c.app.Clock.Now().Format(time.DateTime), c.app.Clock.Synced())
	fmt.Fprintf(out, "  health:  bio-age %d, oral %d, systemic %d, fitness %d\n", rec.BioAge, rec.Oral, rec.Systemic, rec.Fitness)
	fmt.Fprintf(out, "  queue:   %d pending, %d dropped\n", c.app.Queue.Len(), c.app.Queue.Dropped())
}

func charArg(args []string) (uuid.UUID, error) {
	if len(args) == 0 {
		return uuid.Nil, errors.New("missing characteristic name")
	}
	u, ok := chars[args[0]]
	if !ok {
		return uuid.Nil, fmt.Errorf("unknown characteristic %q", args[0])
	}
	return u, nil
}

// phonePeer is a phone serving Current Time and Alert Notification.
func phonePeer(now time.Time) sim.Peer {
	ct := services.EncodeCurrentTime(now, 0)
	return sim.Peer{
		Address: phoneAddress,
		Services: []sim.PeerService{
			{
				UUID: services.CurrentTimeServiceUUID,
				Chars: []sim.PeerChar{
					{UUID: services.CurrentTimeCharUUID, Properties: sim.PropRead | sim.PropNotify, Value: ct[:]},
				},
			},
			{
				UUID: gatt.UUID16(0x1811),
				Chars: []sim.PeerChar{
					{UUID: gatt.UUID16(0x2A47), Properties: sim.PropRead, Value: []byte{0xFF, 0x03}},
					{UUID: services.NewAlertCharUUID, Properties: sim.PropNotify},
					{UUID: gatt.UUID16(0x2A44), Properties: sim.PropWrite},
				},
			},
		},
	}
}
