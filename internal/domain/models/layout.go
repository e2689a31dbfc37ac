package models

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/holiman/uint256"
)

// StorageItem is a single state variable (or struct member) in a storage layout
type StorageItem struct {
	Contract string `json:"contract"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Src      string `json:"src,omitempty"`
	Offset   uint64 `json:"offset,omitempty"`
	Slot     string `json:"slot,omitempty"`
}

// TypeItem describes a type referenced by a storage item. Containers reference other types
// by id through Base, Key and Value; structs list their members.
type TypeItem struct {
	Label         string        `json:"label"`
	NumberOfBytes string        `json:"numberOfBytes,omitempty"`
	Encoding      string        `json:"encoding,omitempty"`
	Base          string        `json:"base,omitempty"`
	Key           string        `json:"key,omitempty"`
	Value         string        `json:"value,omitempty"`
	Members       []StorageItem `json:"members,omitempty"`
}

// StorageLayout is the ordered list of a contract's storage variables plus the type table.
// Namespaced (ERC-7201) layouts are kept apart, keyed by namespace id.
type StorageLayout struct {
	Storage    []StorageItem            `json:"storage"`
	Types      map[string]TypeItem      `json:"types"`
	Namespaces map[string][]StorageItem `json:"namespaces,omitempty"`
}

// Location returns a human readable "Contract.label" reference
func (s StorageItem) Location() string {
	if s.Contract == "" {
		return s.Label
	}
	return fmt.Sprintf("%s.%s", s.Contract, s.Label)
}

// SlotNumber parses the decimal (or 0x-prefixed) slot of the item
func (s StorageItem) SlotNumber() (*uint256.Int, error) {
	if s.Slot == "" {
		return uint256.NewInt(0), nil
	}
	b, ok := new(big.Int).SetString(s.Slot, 0)
	if !ok || b.Sign() < 0 {
		return nil, fmt.Errorf("not a number")
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("slot overflows 256 bits")
	}
	return v, nil
}

// Position returns the absolute byte position of the item: slot*32 + offset
func (s StorageItem) Position() (*uint256.Int, error) {
	slot, err := s.SlotNumber()
	if err != nil {
		return nil, fmt.Errorf("invalid slot %q for %s: %w", s.Slot, s.Location(), err)
	}
	pos := new(uint256.Int).Mul(slot, uint256.NewInt(32))
	return pos.Add(pos, uint256.NewInt(s.Offset)), nil
}

// Size returns the number of bytes occupied by the type, 0 if unknown
func (t TypeItem) Size() uint64 {
	n, err := strconv.ParseUint(t.NumberOfBytes, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// TypeOf returns the type entry for a storage item
func (l *StorageLayout) TypeOf(id string) (TypeItem, bool) {
	if l == nil || l.Types == nil {
		return TypeItem{}, false
	}
	t, ok := l.Types[id]
	return t, ok
}

// IsEmpty reports whether the layout declares no variables at all
func (l *StorageLayout) IsEmpty() bool {
	if l == nil {
		return true
	}
	if len(l.Storage) > 0 {
		return false
	}
	for _, items := range l.Namespaces {
		if len(items) > 0 {
			return false
		}
	}
	return true
}

// LayoutOp tags a single storage layout change
type LayoutOp string

const (
	LayoutOpAppend       LayoutOp = "append"
	LayoutOpInsert       LayoutOp = "insert"
	LayoutOpDelete       LayoutOp = "delete"
	LayoutOpTypeChange   LayoutOp = "typechange"
	LayoutOpLayoutChange LayoutOp = "layoutchange"
	LayoutOpRename       LayoutOp = "rename"
	LayoutOpReplace      LayoutOp = "replace"
)

// LayoutChange is one operation produced by comparing two storage layouts
type LayoutChange struct {
	Op        LayoutOp     `json:"op"`
	Namespace string       `json:"namespace,omitempty"`
	Original  *StorageItem `json:"original,omitempty"`
	Updated   *StorageItem `json:"updated,omitempty"`
	Detail    string       `json:"detail,omitempty"`
	// Safe marks changes that were recognised as harmless, such as variables taking space
	// from a storage gap
	Safe bool `json:"safe,omitempty"`
}

// Subject returns the variable the change is about
func (c LayoutChange) Subject() *StorageItem {
	if c.Original != nil {
		return c.Original
	}
	return c.Updated
}
