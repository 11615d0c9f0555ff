package env

import (
	"testing"

	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

func TestGetConstantIntDoesNotNeedAFrame(t *testing.T) {
	e := New()
	c := constant.NewInt(types.I64, 7)
	got, err := e.Get(c)
	if err != nil {
		t.Fatalf("Get(constant): %v", err)
	}
	if got != 7 {
		t.Errorf("got %d, want 7", got)
	}
}

func TestLocalsScopedToCurrentFrame(t *testing.T) {
	e := New()
	saved := e.PushFrame()
	var v value.Value = &phonyValue{} // non-constant identity key
	_ = saved
	e.Set(v, 11)
	got, err := e.Get(v)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 11 {
		t.Errorf("got %d, want 11", got)
	}
}

func TestPushPopFrameIsolatesLocals(t *testing.T) {
	e := New()
	outer := e.PushFrame()
	inner := e.PushFrame()
	e.PopFrame(outer)
	_ = inner
	// after popping back to outer's saved (nil) locals map, Locals()
	// should reflect that restored map, not the inner frame's.
	if outer != nil || e.Locals() != nil {
		t.Error("PopFrame did not restore the saved locals map")
	}
}

func TestGlobalsSurviveFrameChanges(t *testing.T) {
	e := New()
	var g value.Value = &phonyValue{}
	e.MarkGlobal(g, 5)
	e.PushFrame()
	got, err := e.Get(g)
	if err != nil || got != 5 {
		t.Fatalf("got %d, %v; want 5, nil", got, err)
	}
	e.Set(g, 6)
	e.PopFrame(nil)
	got, err = e.Get(g)
	if err != nil || got != 6 {
		t.Fatalf("global write did not persist across frames: got %d, %v", got, err)
	}
}

func TestGetUnboundLocalFails(t *testing.T) {
	e := New()
	e.PushFrame()
	// a never-Set, non-constant, non-global value.Value has no stored
	// binding; use a real IR value identity that isn't a constant.Int
	// to exercise the "not computed yet" path rather than the literal
	// fast path.
	var missing value.Value = &phonyValue{}
	if _, err := e.Get(missing); err == nil {
		t.Fatal("expected an error for an unbound value")
	}
}

func TestAllocIntReturnsNonNullAddress(t *testing.T) {
	e := New()
	addr, err := e.Alloc(types.I64)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if addr == 0 {
		t.Fatal("Alloc returned a null address")
	}
}

func TestAllocArrayOfScalarsIsContiguous(t *testing.T) {
	e := New()
	arr := types.NewArray(4, types.I64)
	addr, err := e.Alloc(arr)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	for i := int64(0); i < 4; i++ {
		if err := e.Heap().Store64(addr+i*8, i); err != nil {
			t.Fatalf("Store64 at %d: %v", i, err)
		}
	}
	for i := int64(0); i < 4; i++ {
		v, err := e.Heap().Load64(addr + i*8)
		if err != nil || v != i {
			t.Fatalf("offset %d: got %d, %v; want %d, nil", i, v, err, i)
		}
	}
}

func TestAllocNestedArrayIsJagged(t *testing.T) {
	e := New()
	nested := types.NewArray(2, types.NewArray(3, types.I64))
	base, err := e.Alloc(nested)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	row0, err := e.Heap().Load64(base)
	if err != nil {
		t.Fatalf("Load64(base): %v", err)
	}
	row1, err := e.Heap().Load64(base + 8)
	if err != nil {
		t.Fatalf("Load64(base+8): %v", err)
	}
	if row0 == 0 || row1 == 0 {
		t.Fatal("nested array rows were not allocated")
	}
	if row0 == row1 {
		t.Fatal("nested array rows alias the same region")
	}
}

// phonyValue is a value.Value identity distinct from any constant.Int,
// used only as a map key never installed by Set.
type phonyValue struct{ value.Value }
