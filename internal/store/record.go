// Package store persists the little state the watch keeps across reboots:
// the bonded peer's identity key and the last health record received.
package store

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Health is the last health data package written by the phone.
type Health struct {
	BioAge   uint16 // deci-years
	Oral     uint8
	Systemic uint8
	Fitness  uint8
	LastSync time.Time
}

// Record is everything the store holds.
type Record struct {
	BondID  [16]byte
	HasBond bool
	Health  Health
}

// Field numbers of the persisted record.
const (
	fieldBondID   protowire.Number = 1
	fieldBioAge   protowire.Number = 2
	fieldOral     protowire.Number = 3
	fieldSystemic protowire.Number = 4
	fieldFitness  protowire.Number = 5
	fieldLastSync protowire.Number = 6
)

// Marshal encodes r in protobuf wire format.
//
//	field 1 (bytes):  bond id, 16 bytes, omitted when no bond
//	field 2 (uint32): bio-age in deci-years
//	field 3 (uint32): oral score
//	field 4 (uint32): systemic score
//	field 5 (uint32): fitness score
//	field 6 (int64):  last sync, unix seconds, omitted when zero
func Marshal(r Record) []byte {
	var buf []byte
	if r.HasBond {
		buf = protowire.AppendTag(buf, fieldBondID, protowire.BytesType)
		buf = protowire.AppendBytes(buf, r.BondID[:])
	}
	buf = appendUint(buf, fieldBioAge, uint64(r.Health.BioAge))
	buf = appendUint(buf, fieldOral, uint64(r.Health.Oral))
	buf = appendUint(buf, fieldSystemic, uint64(r.Health.Systemic))
	buf = appendUint(buf, fieldFitness, uint64(r.Health.Fitness))
	if !r.Health.LastSync.IsZero() {
		buf = protowire.AppendTag(buf, fieldLastSync, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(r.Health.LastSync.Unix()))
	}
	return buf
}

func appendUint(buf []byte, n protowire.Number, v uint64) []byte {
	if v == 0 {
		return buf
	}
	buf = protowire.AppendTag(buf, n, protowire.VarintType)
	return protowire.AppendVarint(buf, v)
}

// Unmarshal decodes a record written by Marshal. Unknown fields are skipped.
func Unmarshal(data []byte) (Record, error) {
	var r Record
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Record{}, fmt.Errorf("store: reading tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldBondID && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Record{}, fmt.Errorf("store: reading bond id: %w", protowire.ParseError(n))
			}
			if len(v) != len(r.BondID) {
				return Record{}, fmt.Errorf("store: bond id is %d bytes, want %d", len(v), len(r.BondID))
			}
			copy(r.BondID[:], v)
			r.HasBond = true
			data = data[n:]
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Record{}, fmt.Errorf("store: reading field %d: %w", num, protowire.ParseError(n))
			}
			if err := r.setVarint(num, v); err != nil {
				return Record{}, err
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Record{}, fmt.Errorf("store: skipping field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return r, nil
}

var errFieldRange = errors.New("store: field out of range")

func (r *Record) setVarint(num protowire.Number, v uint64) error {
	small := func(max uint64) error {
		if v > max {
			return fmt.Errorf("%w: field %d = %d", errFieldRange, num, v)
		}
		return nil
	}
	switch num {
	case fieldBioAge:
		if err := small(0xFFFF); err != nil {
			return err
		}
		r.Health.BioAge = uint16(v)
	case fieldOral:
		if err := small(0xFF); err != nil {
			return err
		}
		r.Health.Oral = uint8(v)
	case fieldSystemic:
		if err := small(0xFF); err != nil {
			return err
		}
		r.Health.Systemic = uint8(v)
	case fieldFitness:
		if err := small(0xFF); err != nil {
			return err
		}
		r.Health.Fitness = uint8(v)
	case fieldLastSync:
		r.Health.LastSync = time.Unix(int64(v), 0).UTC()
	}
	return nil
}
