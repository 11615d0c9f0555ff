// Package interp implements the per-instruction SSA evaluation rules the
// tree-walking tier uses: visitInst from SPEC_FULL.md §4.6, minus the
// terminator and leading-phi handling, which need frame/call-stack
// bookkeeping and live on pkg/engine.Engine instead (see DESIGN.md for
// why that split avoids a circular import between interp and engine).
package interp

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"

	"github.com/oisee/rv64ir/pkg/env"
	"github.com/oisee/rv64ir/pkg/layout"
)

// Caller lets Visit evaluate a Call instruction without importing
// pkg/engine: the engine implements this with its own Call method, which
// owns the call stack.
type Caller interface {
	Call(callee *ir.Func, args []int64) (int64, error)
}

// Visit evaluates one non-terminator instruction against e, returning
// its result. Phi is handled here too (selecting the first incoming
// value, per the preserved baseline bug — SPEC_FULL.md §9 "Phi
// selection") so it behaves correctly even if reached outside the
// leading-phi buffer in execBlock.
func Visit(e *env.Env, i ir.Instruction, caller Caller) (int64, error) {
	switch i := i.(type) {
	case *ir.InstAdd:
		return binOp(e, i.X, i.Y, func(a, b int64) (int64, error) { return a + b, nil })
	case *ir.InstSub:
		return binOp(e, i.X, i.Y, func(a, b int64) (int64, error) { return a - b, nil })
	case *ir.InstMul:
		return binOp(e, i.X, i.Y, func(a, b int64) (int64, error) { return a * b, nil })
	case *ir.InstSDiv:
		return binOp(e, i.X, i.Y, func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, errors.New("divide by zero")
			}
			return a / b, nil
		})
	case *ir.InstSRem:
		return binOp(e, i.X, i.Y, func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, errors.New("mod by zero")
			}
			return a % b, nil
		})
	case *ir.InstAnd:
		return binOp(e, i.X, i.Y, func(a, b int64) (int64, error) { return a & b, nil })
	case *ir.InstOr:
		return binOp(e, i.X, i.Y, func(a, b int64) (int64, error) { return a | b, nil })
	case *ir.InstXor:
		return binOp(e, i.X, i.Y, func(a, b int64) (int64, error) { return a ^ b, nil })
	case *ir.InstShl:
		return binOp(e, i.X, i.Y, func(a, b int64) (int64, error) { return a << uint(b), nil })
	case *ir.InstAShr:
		return binOp(e, i.X, i.Y, func(a, b int64) (int64, error) { return a >> uint(b), nil })
	case *ir.InstICmp:
		return evalICmp(e, i)
	case *ir.InstCall:
		return evalCall(e, i, caller)
	case *ir.InstPhi:
		return evalPhi(e, i)
	case *ir.InstAlloca:
		return e.Alloc(i.ElemType)
	case *ir.InstLoad:
		ptr, err := e.Get(i.Src)
		if err != nil {
			return 0, err
		}
		return e.Heap().Load64(ptr)
	case *ir.InstStore:
		return evalStore(e, i)
	case *ir.InstGetElementPtr:
		return evalGEP(e, i)
	case *ir.InstSExt:
		return e.Get(i.From)
	default:
		return 0, errors.Errorf("unsupported instruction: %T", i)
	}
}

func binOp(e *env.Env, xv, yv value.Value, f func(a, b int64) (int64, error)) (int64, error) {
	x, err := e.Get(xv)
	if err != nil {
		return 0, err
	}
	y, err := e.Get(yv)
	if err != nil {
		return 0, err
	}
	return f(x, y)
}

func evalICmp(e *env.Env, i *ir.InstICmp) (int64, error) {
	x, err := e.Get(i.X)
	if err != nil {
		return 0, err
	}
	y, err := e.Get(i.Y)
	if err != nil {
		return 0, err
	}
	var cond bool
	switch i.Pred {
	case enum.IPredEQ:
		cond = x == y
	case enum.IPredNE:
		cond = x != y
	case enum.IPredSGT:
		cond = x > y
	case enum.IPredSGE:
		cond = x >= y
	case enum.IPredSLT:
		cond = x < y
	case enum.IPredSLE:
		cond = x <= y
	default:
		return 0, errors.Errorf("unsupported icmp predicate: %v", i.Pred)
	}
	if cond {
		return 1, nil
	}
	return 0, nil
}

func evalCall(e *env.Env, i *ir.InstCall, caller Caller) (int64, error) {
	callee, ok := i.Callee.(*ir.Func)
	if !ok || len(callee.Blocks) == 0 {
		return 0, errors.New("external function call")
	}
	args := make([]int64, len(i.Args))
	for idx, a := range i.Args {
		v, err := e.Get(a)
		if err != nil {
			return 0, err
		}
		args[idx] = v
	}
	return caller.Call(callee, args)
}

func evalPhi(e *env.Env, i *ir.InstPhi) (int64, error) {
	if len(i.Incs) == 0 {
		return 0, errors.New("phi with no incoming values")
	}
	return e.Get(i.Incs[0].X)
}

func evalStore(e *env.Env, i *ir.InstStore) (int64, error) {
	ptr, err := e.Get(i.Dst)
	if err != nil {
		return 0, err
	}
	val, err := e.Get(i.Src)
	if err != nil {
		return 0, err
	}
	if err := e.Heap().Store64(ptr, val); err != nil {
		return 0, err
	}
	return 0, nil
}

func evalGEP(e *env.Env, i *ir.InstGetElementPtr) (int64, error) {
	base, err := e.Get(i.Src)
	if err != nil {
		return 0, err
	}
	if base == 0 {
		return 0, errors.New("null pointer dereference")
	}
	if len(i.Indices) == 0 {
		return base, nil
	}

	curType := i.ElemType
	offset := int64(0)

	first, err := e.Get(i.Indices[0])
	if err != nil {
		return 0, err
	}
	if first != 0 {
		offset += first * layout.SizeOf(curType)
	}

	for _, idxOperand := range i.Indices[1:] {
		switch t := curType.(type) {
		case *types.StructType:
			c, ok := idxOperand.(*constant.Int)
			if !ok {
				return 0, errors.New("non-constant struct index in address arithmetic")
			}
			fieldNo := c.X.Int64()
			off, err := layout.FieldOffset(t, fieldNo)
			if err != nil {
				return 0, err
			}
			offset += off
			curType = t.Fields[fieldNo]
		case *types.ArrayType:
			idx, err := e.Get(idxOperand)
			if err != nil {
				return 0, err
			}
			offset += idx * layout.SizeOf(t.ElemType)
			curType = t.ElemType
		default:
			return 0, errors.New("unsupported aggregate kind traversed")
		}
	}

	return base + offset, nil
}
