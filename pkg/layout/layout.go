// Package layout implements the data-layout oracle consumed by the GEP
// lowering in pkg/tier and by the interpreter's own address arithmetic: a
// fixed, no-padding convention for sizeof/field-offset/element-type queries
// over github.com/llir/llvm's ir/types. This is not meant to reproduce any
// real platform ABI — see SPEC_FULL.md §4.2 and §9 "Jagged array allocation."
package layout

import (
	"fmt"

	"github.com/llir/llvm/ir/types"
)

// PointerSize is the storage size of every pointer-typed value.
const PointerSize = 8

// SlotSize is the size of every environment/shadow slot, regardless of the
// IR type occupying it: every SSA value lives in one 64-bit integer slot.
const SlotSize = 8

// SizeOf returns the storage size, in bytes, of t under this engine's fixed
// layout convention: integers round up to whole bytes, pointers are 8 bytes,
// arrays are NLen*SizeOf(elem), and structs are the unpadded sum of their
// fields' sizes.
func SizeOf(t types.Type) int64 {
	switch t := t.(type) {
	case *types.IntType:
		return int64((t.BitSize + 7) / 8)
	case *types.PointerType:
		return PointerSize
	case *types.ArrayType:
		return int64(t.Len) * SizeOf(t.ElemType)
	case *types.StructType:
		var n int64
		for _, f := range t.Fields {
			n += SizeOf(f)
		}
		return n
	default:
		// Not part of the supported integer/aggregate subset (SPEC_FULL.md §1).
		return SlotSize
	}
}

// FieldOffset returns the byte offset of field idx within struct type t,
// under the same no-padding convention as SizeOf.
func FieldOffset(t *types.StructType, idx int64) (int64, error) {
	if idx < 0 || idx >= int64(len(t.Fields)) {
		return 0, fmt.Errorf("struct field index out of range: %d (struct has %d fields)", idx, len(t.Fields))
	}
	var off int64
	for i := int64(0); i < idx; i++ {
		off += SizeOf(t.Fields[i])
	}
	return off, nil
}

// ElemType returns the element type one level below t: the pointee of a
// pointer, or the element type of an array. It is a fatal-caller-checked
// programming error to call ElemType on anything else.
func ElemType(t types.Type) (types.Type, error) {
	switch t := t.(type) {
	case *types.PointerType:
		return t.ElemType, nil
	case *types.ArrayType:
		return t.ElemType, nil
	default:
		return nil, fmt.Errorf("unsupported aggregate kind traversed: %T has no element type", t)
	}
}

// IsInteger reports whether t is one of the integer types this engine knows
// how to hold in a 64-bit slot.
func IsInteger(t types.Type) bool {
	_, ok := t.(*types.IntType)
	return ok
}
