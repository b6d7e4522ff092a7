// Package notification keeps the most recent alerts received from the phone.
package notification

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Category follows the Alert Notification Service category IDs.
type Category uint8

const (
	CategorySimpleAlert Category = iota
	CategoryEmail
	CategoryNews
	CategoryCall
	CategoryMissedCall
	CategorySMS
	CategoryVoiceMail
	CategorySchedule
	CategoryHighPriority
	CategoryInstantMessage
)

// MaxMessageSize caps the stored text; longer payloads are cut.
const MaxMessageSize = 100

// Capacity is the ring size.
const Capacity = 5

// Notification is one stored alert. Title and Message come from a payload
// whose first NUL byte, if any, separates them.
type Notification struct {
	ID       uint32
	Category Category
	Count    uint8
	Title    string
	Message  string
	Received time.Time
}

// Manager is a bounded ring of notifications. The oldest entry is
// overwritten once the ring is full.
type Manager struct {
	mu     sync.Mutex
	ring   [Capacity]Notification
	head   int
	size   int
	nextID uint32
}

// New returns an empty manager.
func New() *Manager {
	return &Manager{nextID: 1}
}

// Push stores a notification built from raw text and returns it with its
// assigned ID.
func (m *Manager) Push(cat Category, count uint8, text []byte, at time.Time) Notification {
	text = Clip(text, MaxMessageSize)
	title, msg, found := strings.Cut(string(text), "\x00")
	if !found {
		title, msg = "", title
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := Notification{
		ID:       m.nextID,
		Category: cat,
		Count:    count,
		Title:    strings.TrimRight(title, "\x00"),
		Message:  strings.TrimRight(msg, "\x00"),
		Received: at,
	}
	m.nextID++
	m.ring[m.head] = n
	m.head = (m.head + 1) % Capacity
	if m.size < Capacity {
		m.size++
	}
	return n
}

// Last returns the newest notification.
func (m *Manager) Last() (Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.size == 0 {
		return Notification{}, false
	}
	return m.ring[(m.head+Capacity-1)%Capacity], true
}

// All returns stored notifications, newest first.
func (m *Manager) All() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, 0, m.size)
	for i := 1; i <= m.size; i++ {
		out = append(out, m.ring[(m.head+Capacity-i)%Capacity])
	}
	return out
}

// Len returns the number of stored notifications.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// Clear drops every notification.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.size = 0
	m.head = 0
}

// Clip shortens text to at most max bytes without splitting a UTF-8
// sequence.
func Clip(text []byte, max int) []byte {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
