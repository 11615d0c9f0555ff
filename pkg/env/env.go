// Package env is the execution environment: the value maps the
// interpreter and the segment builder read and write through, plus the
// heap-backed alloca implementation. See SPEC_FULL.md §3 "Value
// environment" / §4.5.
package env

import (
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"

	"github.com/oisee/rv64ir/pkg/heap"
	"github.com/oisee/rv64ir/pkg/layout"
)

// Env holds the module-scope globals map, the current frame's locals
// map, and the heap. Locals are swapped out wholesale on call/return by
// pkg/engine's Call, which owns the call stack; Env itself only ever sees
// "the current frame".
type Env struct {
	globals map[value.Value]int64
	locals  map[value.Value]int64
	isGlobal map[value.Value]bool
	heap    *heap.Heap
}

// New returns an environment with an empty global map, no current
// locals installed, and a fresh heap.
func New() *Env {
	return &Env{
		globals:  make(map[value.Value]int64),
		isGlobal: make(map[value.Value]bool),
		heap:     heap.New(),
	}
}

// Heap exposes the underlying arena, used by pkg/interp for load/store
// and by pkg/tier's segment builder when pre-allocating alloca regions.
func (e *Env) Heap() *heap.Heap { return e.heap }

// MarkGlobal records v as a global value; Set and Get route accordingly.
func (e *Env) MarkGlobal(v value.Value, initial int64) {
	e.isGlobal[v] = true
	e.globals[v] = initial
}

// PushFrame installs a fresh locals map, returning the previous one so
// the caller (pkg/engine's Call) can restore it on return.
func (e *Env) PushFrame() map[value.Value]int64 {
	old := e.locals
	e.locals = make(map[value.Value]int64)
	return old
}

// PopFrame restores a locals map saved by a prior PushFrame.
func (e *Env) PopFrame(saved map[value.Value]int64) {
	e.locals = saved
}

// Locals returns the current frame's map directly, without going through
// Get/Set's constant and global-vs-local branches.
func (e *Env) Locals() map[value.Value]int64 { return e.locals }

// Get resolves v to its 64-bit value: a constant integer is returned
// directly; otherwise v is looked up in globals, then in the current
// frame's locals.
func (e *Env) Get(v value.Value) (int64, error) {
	if c, ok := v.(*constant.Int); ok {
		return c.X.Int64(), nil
	}
	if e.isGlobal[v] {
		return e.globals[v], nil
	}
	if x, ok := e.locals[v]; ok {
		return x, nil
	}
	return 0, errors.New("value not computed yet")
}

// Set writes x as the value of v: to globals if v was registered via
// MarkGlobal, otherwise to the current frame's locals.
func (e *Env) Set(v value.Value, x int64) {
	if e.isGlobal[v] {
		e.globals[v] = x
		return
	}
	e.locals[v] = x
}

// Alloc implements the alloca allocation rules from SPEC_FULL.md §3:
// an integer allocates one slot; an array of scalars allocates one
// contiguous region; an array of arrays allocates a vector of pointers
// to recursively allocated subarrays (jagged allocation); a struct
// allocates one contiguous region sized by the layout oracle.
func (e *Env) Alloc(t types.Type) (int64, error) {
	switch t := t.(type) {
	case *types.ArrayType:
		if _, nested := t.ElemType.(*types.ArrayType); nested {
			base := e.heap.Alloc(int64(t.Len) * layout.PointerSize)
			for i := int64(0); i < int64(t.Len); i++ {
				sub, err := e.Alloc(t.ElemType)
				if err != nil {
					return 0, err
				}
				if err := e.heap.Store64(base+i*layout.PointerSize, sub); err != nil {
					return 0, err
				}
			}
			return base, nil
		}
		return e.heap.Alloc(layout.SizeOf(t)), nil
	case *types.StructType:
		return e.heap.Alloc(layout.SizeOf(t)), nil
	default:
		return e.heap.Alloc(layout.SlotSize), nil
	}
}
