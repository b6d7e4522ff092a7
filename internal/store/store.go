package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoBond is returned by ReadBondID when no peer has bonded.
var ErrNoBond = errors.New("store: no bond recorded")

// Backend loads and saves the encoded record as a whole. A backend with
// nothing saved yet returns nil, nil from Load.
type Backend interface {
	Load() ([]byte, error)
	Save(data []byte) error
}

// Store is the persisted record with write-through semantics: every update
// rewrites the backend before returning.
type Store struct {
	mu      sync.Mutex
	backend Backend
	rec     Record
}

// Open loads the record from b. A corrupt record is logged and replaced by
// an empty one so a bad write never bricks the bond or health paths.
func Open(b Backend) (*Store, error) {
	data, err := b.Load()
	if err != nil {
		return nil, fmt.Errorf("store: loading: %w", err)
	}
	s := &Store{backend: b}
	if len(data) > 0 {
		rec, err := Unmarshal(data)
		if err != nil {
			slog.Warn("[STORE] discarding unreadable record", "error", err)
		} else {
			s.rec = rec
		}
	}
	return s, nil
}

// NewMemory returns a store that keeps the record in memory only.
func NewMemory() *Store {
	s, _ := Open(&MemoryBackend{})
	return s
}

// ReadBondID returns the stored peer identity key.
func (s *Store) ReadBondID() ([16]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.rec.HasBond {
		return [16]byte{}, ErrNoBond
	}
	return s.rec.BondID, nil
}

// WriteBondID stores id.
func (s *Store) WriteBondID(id [16]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.rec
	next.BondID = id
	next.HasBond = true
	return s.commit(next)
}

// ClearBond forgets the bonded peer.
func (s *Store) ClearBond() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.rec
	next.BondID = [16]byte{}
	next.HasBond = false
	return s.commit(next)
}

// LoadHealth returns the stored health record.
func (s *Store) LoadHealth() Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Health
}

// SaveHealth stores h.
func (s *Store) SaveHealth(h Health) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.rec
	next.Health = h
	return s.commit(next)
}

// commit saves next and adopts it only when the backend accepted it.
func (s *Store) commit(next Record) error {
	if err := s.backend.Save(Marshal(next)); err != nil {
		return fmt.Errorf("store: saving: %w", err)
	}
	s.rec = next
	return nil
}

// MemoryBackend keeps the encoded record in memory.
type MemoryBackend struct {
	mu   sync.Mutex
	data []byte
	// FailSave, when set, is returned from Save.
	FailSave error
}

func (m *MemoryBackend) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemoryBackend) Save(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave != nil {
		return m.FailSave
	}
	m.data = append([]byte(nil), data...)
	return nil
}

// FileBackend stores the record in one file, replaced atomically.
type FileBackend struct {
	Path string
}

func (f FileBackend) Load() ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// Save writes a temp file in the same directory and renames it over the
// target.
func (f FileBackend) Save(data []byte) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".praxiom-store-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}
