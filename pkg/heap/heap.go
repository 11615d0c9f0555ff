// Package heap implements the arena the interpreter's alloca/load/store
// instructions address: a process-lifetime collection of fixed regions,
// each returned as a single opaque 64-bit address. Regions are never
// freed or moved, so an address handed to a guest program — or baked as
// a literal into emitted native code — stays valid for the rest of the
// run. See SPEC_FULL.md §3 "Heap" and §5 "Shared resources".
package heap

import (
	"encoding/binary"
	"fmt"
)

// minRegion is the smallest region Alloc ever hands out; it keeps every
// address 8-byte aligned so Load64/Store64 never need to special-case a
// short tail.
const minRegion = 8

// Heap is an arena of independently-allocated byte regions. The zero
// value is ready to use.
type Heap struct {
	regions [][]byte
}

// New returns an empty heap.
func New() *Heap {
	return &Heap{}
}

// Alloc reserves a fresh, zeroed region of at least n bytes and returns
// its address. n <= 0 still yields a valid minRegion-sized address — a
// zero-sized alloca is legal IR and must still produce a dereferenceable
// pointer.
func (h *Heap) Alloc(n int64) int64 {
	if n < minRegion {
		n = minRegion
	}
	n = align8(n)
	h.regions = append(h.regions, make([]byte, n))
	return encodeAddr(len(h.regions) - 1)
}

// Load64 reads the 8-byte little-endian integer at addr.
func (h *Heap) Load64(addr int64) (int64, error) {
	region, off, err := h.resolve(addr)
	if err != nil {
		return 0, err
	}
	if off+8 > int64(len(region)) {
		return 0, fmt.Errorf("heap: load out of bounds at address %d", addr)
	}
	return int64(binary.LittleEndian.Uint64(region[off : off+8])), nil
}

// Store64 writes v as an 8-byte little-endian integer at addr.
func (h *Heap) Store64(addr int64, v int64) error {
	region, off, err := h.resolve(addr)
	if err != nil {
		return err
	}
	if off+8 > int64(len(region)) {
		return fmt.Errorf("heap: store out of bounds at address %d", addr)
	}
	binary.LittleEndian.PutUint64(region[off:off+8], uint64(v))
	return nil
}

func (h *Heap) resolve(addr int64) ([]byte, int64, error) {
	if addr == 0 {
		return nil, 0, fmt.Errorf("null pointer dereference")
	}
	idx, off := decodeAddr(addr)
	if idx < 0 || idx >= len(h.regions) {
		return nil, 0, fmt.Errorf("heap: address %d does not name a live region", addr)
	}
	return h.regions[idx], off, nil
}

// Addresses are encoded as (regionIndex+1)<<regionShift | offset, so that
// 0 is never a valid address (it always means "null") and any address can
// be resolved to its region without scanning the arena.
const regionShift = 32

func encodeAddr(idx int) int64 {
	return int64(idx+1) << regionShift
}

func decodeAddr(addr int64) (idx int, offset int64) {
	return int(addr>>regionShift) - 1, addr & (1<<regionShift - 1)
}

func align8(n int64) int64 {
	return (n + 7) &^ 7
}
