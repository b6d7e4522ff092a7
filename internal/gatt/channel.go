package gatt

import (
	"fmt"
	"sync"
)

// Channel is the notification path of one notify-capable characteristic.
// A push goes out only while the peer is subscribed and a link is up;
// otherwise it is skipped without error.
type Channel struct {
	notifier Notifier
	conn     ConnView
	char     *Characteristic

	mu      sync.Mutex
	enabled bool
}

// NewChannel binds a characteristic to the host's notify primitive.
func NewChannel(n Notifier, conn ConnView, c *Characteristic) *Channel {
	return &Channel{notifier: n, conn: conn, char: c}
}

// SetEnabled records the peer's CCCD state.
func (ch *Channel) SetEnabled(on bool) {
	ch.mu.Lock()
	ch.enabled = on
	ch.mu.Unlock()
}

// Enabled reports whether the peer has subscribed.
func (ch *Channel) Enabled() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.enabled
}

// Push sends data to the subscribed peer. It reports whether a notification
// was handed to the host. Host failures are returned and the payload is
// dropped.
func (ch *Channel) Push(data []byte) (bool, error) {
	if !ch.Enabled() {
		return false, nil
	}
	conn := ch.conn.ConnHandle()
	if !conn.Valid() {
		return false, nil
	}
	h := ch.char.Handle()
	if h == 0 {
		return false, fmt.Errorf("gatt: notify on unregistered characteristic %s", ch.char.UUID())
	}
	if err := ch.notifier.Notify(conn, h, data); err != nil {
		return false, fmt.Errorf("gatt: notify handle %d: %w", h, err)
	}
	return true, nil
}
