package layout

import (
	"testing"

	"github.com/llir/llvm/ir/types"
)

func TestSizeOfInt(t *testing.T) {
	cases := []struct {
		bits uint64
		want int64
	}{
		{1, 1},
		{8, 1},
		{32, 4},
		{64, 8},
	}
	for _, c := range cases {
		got := SizeOf(types.NewInt(c.bits))
		if got != c.want {
			t.Errorf("SizeOf(i%d) = %d, want %d", c.bits, got, c.want)
		}
	}
}

func TestSizeOfPointer(t *testing.T) {
	if got := SizeOf(types.NewPointer(types.I64)); got != PointerSize {
		t.Errorf("SizeOf(pointer) = %d, want %d", got, PointerSize)
	}
}

func TestSizeOfArray(t *testing.T) {
	arr := types.NewArray(4, types.I64)
	if got := SizeOf(arr); got != 32 {
		t.Errorf("SizeOf([4 x i64]) = %d, want 32", got)
	}
}

func TestSizeOfNestedArray(t *testing.T) {
	arr := types.NewArray(3, types.NewArray(2, types.I64))
	if got := SizeOf(arr); got != 48 {
		t.Errorf("SizeOf([3 x [2 x i64]]) = %d, want 48", got)
	}
}

func TestSizeOfStructIsUnpadded(t *testing.T) {
	st := types.NewStruct(types.I8, types.I64, types.I8)
	if got := SizeOf(st); got != 10 {
		t.Errorf("SizeOf({i8, i64, i8}) = %d, want 10 (no padding)", got)
	}
}

func TestFieldOffset(t *testing.T) {
	st := types.NewStruct(types.I8, types.I64, types.I8)
	off, err := FieldOffset(st, 0)
	if err != nil || off != 0 {
		t.Errorf("field 0: off=%d err=%v, want 0, nil", off, err)
	}
	off, err = FieldOffset(st, 1)
	if err != nil || off != 1 {
		t.Errorf("field 1: off=%d err=%v, want 1, nil", off, err)
	}
	off, err = FieldOffset(st, 2)
	if err != nil || off != 9 {
		t.Errorf("field 2: off=%d err=%v, want 9, nil", off, err)
	}
}

func TestFieldOffsetOutOfRange(t *testing.T) {
	st := types.NewStruct(types.I64)
	if _, err := FieldOffset(st, 1); err == nil {
		t.Fatal("expected out-of-range error")
	}
	if _, err := FieldOffset(st, -1); err == nil {
		t.Fatal("expected out-of-range error for negative index")
	}
}

func TestElemType(t *testing.T) {
	ptr := types.NewPointer(types.I32)
	et, err := ElemType(ptr)
	if err != nil || et != types.I32 {
		t.Errorf("ElemType(pointer) = %v, %v; want i32, nil", et, err)
	}

	arr := types.NewArray(4, types.I8)
	et, err = ElemType(arr)
	if err != nil || et != types.I8 {
		t.Errorf("ElemType(array) = %v, %v; want i8, nil", et, err)
	}

	if _, err := ElemType(types.I64); err == nil {
		t.Fatal("expected error for scalar type")
	}
}

func TestIsInteger(t *testing.T) {
	if !IsInteger(types.I64) {
		t.Error("IsInteger(i64) = false, want true")
	}
	if IsInteger(types.NewPointer(types.I64)) {
		t.Error("IsInteger(pointer) = true, want false")
	}
}
