package tier

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"

	"github.com/oisee/rv64ir/pkg/env"
	"github.com/oisee/rv64ir/pkg/layout"
	"github.com/oisee/rv64ir/pkg/rv64"
)

// builder accumulates one segment's encoded instruction stream and its
// shadow environment while walking a block prefix. See SPEC_FULL.md §4.4.
type builder struct {
	env    *env.Env
	arena  *slotArena
	shadow map[value.Value]int64
	code   []byte
	disasm []string
}

// Build compiles the block b starting at instruction index i into a
// Segment, stopping at the first terminator or call. arena is the
// engine-wide shadow slot arena shared by every segment so addresses
// stay unique and stable across the whole run.
func Build(b *ir.Block, i int, e *env.Env, arena *slotArena) (*Segment, error) {
	bld := &builder{
		env:    e,
		arena:  arena,
		shadow: make(map[value.Value]int64),
	}
	if err := bld.prologue(); err != nil {
		return nil, err
	}

	var terminator interface{}
	var continuation *Segment

	insts := b.Insts
	for ; i < len(insts); i++ {
		inst := insts[i]
		switch inst := inst.(type) {
		case *ir.InstAdd:
			if err := bld.binary(rv64.OpAdd, inst, inst.X, inst.Y); err != nil {
				return nil, err
			}
		case *ir.InstSub:
			if err := bld.binary(rv64.OpSub, inst, inst.X, inst.Y); err != nil {
				return nil, err
			}
		case *ir.InstMul:
			if err := bld.binary(rv64.OpMul, inst, inst.X, inst.Y); err != nil {
				return nil, err
			}
		case *ir.InstSDiv:
			if err := bld.binary(rv64.OpDiv, inst, inst.X, inst.Y); err != nil {
				return nil, err
			}
		case *ir.InstSRem:
			if err := bld.binary(rv64.OpRem, inst, inst.X, inst.Y); err != nil {
				return nil, err
			}
		case *ir.InstAnd:
			if err := bld.binary(rv64.OpAnd, inst, inst.X, inst.Y); err != nil {
				return nil, err
			}
		case *ir.InstOr:
			if err := bld.binary(rv64.OpOr, inst, inst.X, inst.Y); err != nil {
				return nil, err
			}
		case *ir.InstXor:
			if err := bld.binary(rv64.OpXor, inst, inst.X, inst.Y); err != nil {
				return nil, err
			}
		case *ir.InstShl:
			if err := bld.binary(rv64.OpSll, inst, inst.X, inst.Y); err != nil {
				return nil, err
			}
		case *ir.InstAShr:
			if err := bld.binary(rv64.OpSra, inst, inst.X, inst.Y); err != nil {
				return nil, err
			}
		case *ir.InstICmp:
			if err := bld.compare(inst); err != nil {
				return nil, err
			}
		case *ir.InstLoad:
			if err := bld.load(inst); err != nil {
				return nil, err
			}
		case *ir.InstStore:
			if err := bld.store(inst); err != nil {
				return nil, err
			}
		case *ir.InstGetElementPtr:
			if err := bld.gep(inst); err != nil {
				return nil, err
			}
		case *ir.InstAlloca:
			if err := bld.alloca(inst); err != nil {
				return nil, err
			}
		case *ir.InstCall:
			terminator = inst
			sub, err := Build(b, i+1, e, arena)
			if err != nil {
				return nil, err
			}
			continuation = sub
		default:
			// Other instruction kinds are silently skipped at this tier,
			// matching the distilled spec's builder algorithm.
		}
		if terminator != nil {
			break
		}
	}

	if terminator == nil {
		terminator = b.Term
	}

	if err := bld.epilogue(); err != nil {
		return nil, err
	}

	region, err := mapExecutable(bld.code)
	if err != nil {
		return nil, err
	}

	return &Segment{
		Region:       region,
		Disasm:       bld.disasm,
		Shadow:       bld.shadow,
		Terminator:   terminator,
		Continuation: continuation,
	}, nil
}

func (b *builder) emit(code []byte, asm string, err error) error {
	if err != nil {
		return err
	}
	b.code = append(b.code, code...)
	b.disasm = append(b.disasm, asm)
	return nil
}

func (b *builder) prologue() error {
	for idx, reg := range rv64.Scratch {
		if err := b.emit(rv64.Sd(reg, rv64.Sp, int32(-8*(idx+1)))); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) epilogue() error {
	for idx := len(rv64.Scratch) - 1; idx >= 0; idx-- {
		if err := b.emit(rv64.Ld(rv64.Scratch[idx], rv64.Sp, int32(-8*(idx+1)))); err != nil {
			return err
		}
	}
	code, asm := rv64.Ret()
	b.code = append(b.code, code...)
	b.disasm = append(b.disasm, asm)
	return nil
}

// slot returns v's shadow slot, allocating one on first touch.
func (b *builder) slot(v value.Value) int64 {
	if s, ok := b.shadow[v]; ok {
		return s
	}
	s := b.arena.alloc()
	b.shadow[v] = s
	return s
}

// materialize loads v's value into reg: a literal Li for constants, or
// a Li-of-address followed by a Ld for anything else.
func (b *builder) materialize(reg rv64.Reg, v value.Value) error {
	if c, ok := v.(*constant.Int); ok {
		return b.emit(rv64.Li(reg, c.X.Int64()))
	}
	addr := b.arena.rawAddr(b.slot(v))
	if err := b.emit(rv64.Li(reg, addr)); err != nil {
		return err
	}
	return b.emit(rv64.Ld(reg, reg, 0))
}

// spill writes reg back to v's shadow slot using s4 as the address
// scratch, mirroring materialize's Li/Ld pair.
func (b *builder) spill(reg rv64.Reg, v value.Value) error {
	addr := b.arena.rawAddr(b.slot(v))
	if err := b.emit(rv64.Li(rv64.S4, addr)); err != nil {
		return err
	}
	return b.emit(rv64.Sd(reg, rv64.S4, 0))
}

func (b *builder) binary(op rv64.BinOp, result value.Value, x, y value.Value) error {
	if err := b.materialize(rv64.S1, x); err != nil {
		return err
	}
	if err := b.materialize(rv64.S2, y); err != nil {
		return err
	}
	if err := b.emit(rv64.Bin(op, rv64.S0, rv64.S1, rv64.S2)); err != nil {
		return err
	}
	return b.spill(rv64.S0, result)
}

// compare lowers every icmp predicate to a legal RV64 sequence rather
// than ever encoding a synthetic opcode — see SPEC_FULL.md §9 and
// DESIGN.md for why this also fixes the source's unencodable `sle`.
func (b *builder) compare(i *ir.InstICmp) error {
	if err := b.materialize(rv64.S1, i.X); err != nil {
		return err
	}
	if err := b.materialize(rv64.S2, i.Y); err != nil {
		return err
	}
	switch i.Pred {
	case enum.IPredSLT:
		if err := b.emit(rv64.Bin(rv64.OpSlt, rv64.S0, rv64.S1, rv64.S2)); err != nil {
			return err
		}
	case enum.IPredSGT:
		if err := b.emit(rv64.Bin(rv64.OpSlt, rv64.S0, rv64.S2, rv64.S1)); err != nil {
			return err
		}
	case enum.IPredSLE:
		if err := b.emit(rv64.Bin(rv64.OpSlt, rv64.S0, rv64.S2, rv64.S1)); err != nil {
			return err
		}
		if err := b.emit(rv64.Xori(rv64.S0, rv64.S0, 1)); err != nil {
			return err
		}
	case enum.IPredSGE:
		if err := b.emit(rv64.Bin(rv64.OpSlt, rv64.S0, rv64.S1, rv64.S2)); err != nil {
			return err
		}
		if err := b.emit(rv64.Xori(rv64.S0, rv64.S0, 1)); err != nil {
			return err
		}
	case enum.IPredEQ:
		if err := b.emit(rv64.Bin(rv64.OpXor, rv64.S0, rv64.S1, rv64.S2)); err != nil {
			return err
		}
		if err := b.emit(rv64.Sltiu(rv64.S0, rv64.S0, 1)); err != nil {
			return err
		}
	case enum.IPredNE:
		if err := b.emit(rv64.Bin(rv64.OpXor, rv64.S0, rv64.S1, rv64.S2)); err != nil {
			return err
		}
		if err := b.emit(rv64.Bin(rv64.OpSltu, rv64.S0, rv64.Zero, rv64.S0)); err != nil {
			return err
		}
	default:
		return errors.Errorf("encoder: unsupported icmp predicate: %v", i.Pred)
	}
	return b.spill(rv64.S0, i)
}

func (b *builder) load(i *ir.InstLoad) error {
	if err := b.materialize(rv64.S0, i.Src); err != nil {
		return err
	}
	if err := b.emit(rv64.Ld(rv64.S0, rv64.S0, 0)); err != nil {
		return err
	}
	return b.spill(rv64.S0, i)
}

func (b *builder) store(i *ir.InstStore) error {
	if err := b.materialize(rv64.S0, i.Src); err != nil {
		return err
	}
	if err := b.materialize(rv64.S1, i.Dst); err != nil {
		return err
	}
	return b.emit(rv64.Sd(rv64.S0, rv64.S1, 0))
}

func (b *builder) gep(i *ir.InstGetElementPtr) error {
	if err := b.materialize(rv64.S0, i.Src); err != nil {
		return err
	}

	curType := i.ElemType
	if len(i.Indices) > 0 {
		if c, ok := i.Indices[0].(*constant.Int); !ok || c.X.Int64() != 0 {
			if err := b.materialize(rv64.S1, i.Indices[0]); err != nil {
				return err
			}
			if err := b.emit(rv64.Li(rv64.S2, layout.SizeOf(curType))); err != nil {
				return err
			}
			if err := b.emit(rv64.Bin(rv64.OpMul, rv64.S1, rv64.S1, rv64.S2)); err != nil {
				return err
			}
			if err := b.emit(rv64.Bin(rv64.OpAdd, rv64.S0, rv64.S0, rv64.S1)); err != nil {
				return err
			}
		}
	}

	for _, idxOperand := range i.Indices[min(1, len(i.Indices)):] {
		switch t := curType.(type) {
		case *types.StructType:
			c, ok := idxOperand.(*constant.Int)
			if !ok {
				return errors.New("non-constant struct index in address arithmetic")
			}
			fieldNo := c.X.Int64()
			off, err := layout.FieldOffset(t, fieldNo)
			if err != nil {
				return err
			}
			curType = t.Fields[fieldNo]
			if err := b.emit(rv64.Li(rv64.S1, off)); err != nil {
				return err
			}
			if err := b.emit(rv64.Bin(rv64.OpAdd, rv64.S0, rv64.S0, rv64.S1)); err != nil {
				return err
			}
		case *types.ArrayType:
			if err := b.materialize(rv64.S1, idxOperand); err != nil {
				return err
			}
			if err := b.emit(rv64.Li(rv64.S2, layout.SizeOf(t.ElemType))); err != nil {
				return err
			}
			curType = t.ElemType
			if err := b.emit(rv64.Bin(rv64.OpMul, rv64.S1, rv64.S1, rv64.S2)); err != nil {
				return err
			}
			if err := b.emit(rv64.Bin(rv64.OpAdd, rv64.S0, rv64.S0, rv64.S1)); err != nil {
				return err
			}
		default:
			return errors.New("unsupported aggregate kind traversed")
		}
	}

	return b.spill(rv64.S0, i)
}

func (b *builder) alloca(i *ir.InstAlloca) error {
	addr, err := b.env.Alloc(i.ElemType)
	if err != nil {
		return err
	}
	b.arena.set(b.slot(i), addr)
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
