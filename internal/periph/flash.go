package periph

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// BlockDevice is an erasable flash region. machine.Flash satisfies it on
// TinyGo targets.
type BlockDevice interface {
	io.ReaderAt
	io.WriterAt
	EraseBlockSize() int64
	EraseBlocks(start, length int64) error
}

// FlashBackend stores one record at the start of a block device, prefixed
// by its little-endian length. An erased or absent record loads as nil, so
// a fresh watch starts from defaults.
type FlashBackend struct {
	Dev BlockDevice
}

var errRecordTooLarge = errors.New("periph: record exceeds one flash block")

const flashHeader = 4

func (f FlashBackend) Load() ([]byte, error) {
	var hdr [flashHeader]byte
	if _, err := f.Dev.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("periph: reading record header: %w", err)
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n == 0 || n == 0xFFFFFFFF || int64(n)+flashHeader > f.Dev.EraseBlockSize() {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := f.Dev.ReadAt(buf, flashHeader); err != nil {
		return nil, fmt.Errorf("periph: reading record: %w", err)
	}
	return buf, nil
}

func (f FlashBackend) Save(data []byte) error {
	if int64(len(data))+flashHeader > f.Dev.EraseBlockSize() {
		return errRecordTooLarge
	}
	if err := f.Dev.EraseBlocks(0, 1); err != nil {
		return fmt.Errorf("periph: erasing record block: %w", err)
	}
	rec := make([]byte, flashHeader+len(data))
	binary.LittleEndian.PutUint32(rec, uint32(len(data)))
	copy(rec[flashHeader:], data)
	if _, err := f.Dev.WriteAt(rec, 0); err != nil {
		return fmt.Errorf("periph: writing record: %w", err)
	}
	return nil
}
