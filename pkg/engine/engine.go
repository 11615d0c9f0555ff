// Package engine ties the value environment, the tree-walking
// interpreter, and the native tier together into the one user-facing
// entry point: load a module, find main, run it to completion. See
// SPEC_FULL.md §4.9 "Engine".
package engine

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"

	"github.com/oisee/rv64ir/pkg/env"
	"github.com/oisee/rv64ir/pkg/interp"
	"github.com/oisee/rv64ir/pkg/tier"
	"github.com/oisee/rv64ir/pkg/trace"
)

// Options configures an Engine. A zero value runs with the default
// promotion threshold and native execution enabled whenever the host
// supports it.
type Options struct {
	// Threshold is the number of times a block must execute under the
	// interpreter before its *next* entry is served from a compiled
	// segment. 0 means tier.DefaultThreshold. Ignored when ForceNative
	// is set.
	Threshold uint64
	// ForceNative compiles every block from its first entry (--force-native,
	// "threshold 0" in SPEC_FULL.md §6) — kept as its own field rather than
	// overloading Threshold's zero value, since a zero Threshold would
	// otherwise be indistinguishable from "not set, use the default".
	ForceNative bool
	// InterpretOnly disables the native tier entirely: blocks are still
	// counted and "promoted" for stats purposes, but always run through
	// the tree-walker. See SPEC_FULL.md §6 "--interpret-only".
	InterpretOnly bool
}

// Engine executes one loaded module's functions against a single shared
// environment and tiering controller. It implements interp.Caller so the
// tree-walker can recurse into a callee without either package importing
// the other.
type Engine struct {
	mod      *ir.Module
	env      *env.Env
	ctrl     *tier.Controller
	opts     Options
	nativeOK bool
	trace    *trace.Table
	curFunc  string
}

// New prepares an engine for mod: every package-scope global is seeded
// into the environment (an initial scalar constant if present, otherwise
// zero — see SPEC_FULL.md §3 "Globals").
func New(mod *ir.Module, opts Options) *Engine {
	e := env.New()
	for _, g := range mod.Globals {
		initial := int64(0)
		if c, ok := g.Init.(*constant.Int); ok {
			initial = c.X.Int64()
		}
		e.MarkGlobal(g, initial)
	}
	threshold := opts.Threshold
	switch {
	case opts.ForceNative:
		threshold = 0
	case threshold == 0:
		threshold = tier.DefaultThreshold
	}
	return &Engine{
		mod:      mod,
		env:      e,
		ctrl:     tier.NewController(threshold),
		opts:     opts,
		nativeOK: !opts.InterpretOnly && tier.Available(),
		trace:    trace.NewTable(),
	}
}

// Controller exposes the tiering controller for diagnostics (pkg/trace).
func (eng *Engine) Controller() *tier.Controller { return eng.ctrl }

// Trace exposes the engine's diagnostics table, populated incrementally
// as blocks run; cmd/rv64ir reads it for the stats subcommand and --profile.
func (eng *Engine) Trace() *trace.Table { return eng.trace }

// Env exposes the environment backing this engine, for cmd/rv64ir's
// disasm subcommand, which compiles segments for inspection without
// ever calling Run.
func (eng *Engine) Env() *env.Env { return eng.env }

// Run locates "main" and executes it with no arguments, per SPEC_FULL.md
// §6 "Guest program contract". A missing main or a main that takes
// arguments is reported as a *RunError before anything executes.
func (eng *Engine) Run() (int64, error) {
	for _, f := range eng.mod.Funcs {
		if f.Name() == "main" {
			if len(f.Params) != 0 {
				return 0, runErrorf("main() with arguments not supported")
			}
			ret, err := eng.Call(f, nil)
			return ret, wrapRunError(err)
		}
	}
	return 0, runErrorf("no function called 'main'")
}

// Call executes callee with args bound to its parameters in a fresh
// frame, implementing interp.Caller. Frames are pushed and popped via
// env.PushFrame/PopFrame, mirroring the original's locals pointer-swap.
func (eng *Engine) Call(callee *ir.Func, args []int64) (int64, error) {
	if len(callee.Params) != len(args) {
		return 0, errors.Errorf("engine: %s expects %d arguments, got %d", callee.Name(), len(callee.Params), len(args))
	}
	savedFunc := eng.curFunc
	eng.curFunc = callee.Name()
	defer func() { eng.curFunc = savedFunc }()

	saved := eng.env.PushFrame()
	defer eng.env.PopFrame(saved)

	for i, p := range callee.Params {
		eng.env.Set(p, args[i])
	}

	if len(callee.Blocks) == 0 {
		return 0, errors.Errorf("engine: %s has no body", callee.Name())
	}

	cur := callee.Blocks[0]
	var prev *ir.Block
	for {
		next, ret, done, err := eng.execBlock(cur, prev)
		if err != nil {
			return 0, err
		}
		if done {
			return ret, nil
		}
		prev, cur = cur, next
	}
}

// execBlock runs one basic block to its terminator, tiering it through
// either the native segment or the tree-walker as appropriate, and
// reports where control goes next.
func (eng *Engine) execBlock(b *ir.Block, prev *ir.Block) (next *ir.Block, ret int64, done bool, err error) {
	if err := eng.resolvePhis(b, prev); err != nil {
		return nil, 0, false, err
	}

	promoted := eng.ctrl.Touch(b)
	seg, cached := eng.ctrl.Segment(b)
	if !cached && promoted {
		seg, err = eng.ctrl.Compile(b, eng.env)
		if err != nil {
			return nil, 0, false, err
		}
		cached = true
	}

	var disasm []string
	if seg != nil {
		disasm = seg.Disasm
	}
	eng.trace.Record(eng.curFunc, b.Ident(), eng.ctrl.Count(b), cached, disasm)

	if cached && eng.nativeOK {
		return eng.runSegment(seg)
	}
	return eng.interpretBlock(b)
}

// resolvePhis evaluates b's leading run of phi instructions against prev
// (the block control arrived from), buffering every result and only then
// flushing them all to eng.env — spec.md §4.4's "collect all leading phi
// results into a phi buffer before any non-phi executes, then flush the
// buffer to locals", mirrored from jitrunner.cpp:194-204's PhiBuffer.
// Evaluating and writing one phi at a time instead would let a later
// phi's Incs[0] (when it names an earlier phi in the same block) observe
// that phi's already-updated value instead of its pre-block value — a
// simultaneous-update correctness gap a single-phi block can't expose.
// Phi always resolves against the first incoming value regardless of
// which predecessor prev actually is — a baseline quirk preserved at
// every tier, see SPEC_FULL.md §9 "Phi selection".
func (eng *Engine) resolvePhis(b *ir.Block, prev *ir.Block) error {
	buf := make(map[value.Value]int64)
	for _, inst := range b.Insts {
		phi, ok := inst.(*ir.InstPhi)
		if !ok {
			break
		}
		v, err := interp.Visit(eng.env, phi, eng)
		if err != nil {
			return err
		}
		buf[phi] = v
	}
	for phi, v := range buf {
		eng.env.Set(phi, v)
	}
	return nil
}

// interpretBlock tree-walks b's non-phi instructions and dispatches its
// terminator, recursing through Call for any call encountered.
func (eng *Engine) interpretBlock(b *ir.Block) (*ir.Block, int64, bool, error) {
	for _, inst := range b.Insts {
		if _, ok := inst.(*ir.InstPhi); ok {
			continue
		}
		v, err := interp.Visit(eng.env, inst, eng)
		if err != nil {
			return nil, 0, false, err
		}
		// InstStore is the one instruction kind with no SSA result to
		// bind: it writes through the heap directly inside Visit.
		if named, ok := inst.(value.Value); ok {
			eng.env.Set(named, v)
		}
	}
	return eng.dispatchTerm(b.Term)
}

// runSegment invokes seg's compiled native code, pre- and post-syncing its
// shadow slots against the environment, then follows its Continuation
// chain across any call boundaries until it reaches the block's real
// terminator — mirroring the original's runBasicBlockExecutor recursion
// through next_segment.
func (eng *Engine) runSegment(seg *tier.Segment) (*ir.Block, int64, bool, error) {
	for {
		if err := eng.presync(seg); err != nil {
			return nil, 0, false, err
		}
		tier.Invoke(seg.Region)
		if err := eng.postsync(seg); err != nil {
			return nil, 0, false, err
		}

		if call, ok := seg.Terminator.(*ir.InstCall); ok {
			result, err := interp.Visit(eng.env, call, eng)
			if err != nil {
				return nil, 0, false, err
			}
			eng.env.Set(call, result)
			if seg.Continuation == nil {
				return nil, 0, false, errors.New("engine: compiled call has no continuation segment")
			}
			seg = seg.Continuation
			continue
		}
		return eng.dispatchTerm(seg.Terminator)
	}
}

// presync writes every shadow-slotted value's current environment value
// into its slot, so the compiled code sees live state on entry. Values
// the segment only ever writes (never reads before writing) are synced
// too: the cost is one extra store, paid for the simplicity of never
// special-casing def-only slots.
func (eng *Engine) presync(seg *tier.Segment) error {
	for v, addr := range seg.Shadow {
		x, err := eng.env.Get(v)
		if err != nil {
			// Not yet computed (a pure def-site, e.g. this instruction's
			// own result slot) — nothing to push in.
			continue
		}
		eng.ctrl.SlotSet(addr, x)
	}
	return nil
}

// postsync reads every shadow-slotted value back out of its slot and
// installs it into the environment, making the compiled segment's effects
// visible to the interpreter and to any later segment.
func (eng *Engine) postsync(seg *tier.Segment) error {
	for v, addr := range seg.Shadow {
		eng.env.Set(v, eng.ctrl.SlotGet(addr))
	}
	return nil
}

// dispatchTerm evaluates a block's real terminator (term is always an
// ir.Terminator — *ir.TermRet, *ir.TermBr, or *ir.TermCondBr for the
// integer subset this engine supports) and reports where control goes
// next.
func (eng *Engine) dispatchTerm(term interface{}) (*ir.Block, int64, bool, error) {
	switch t := term.(type) {
	case *ir.TermRet:
		if t.X == nil {
			return nil, 0, true, nil
		}
		v, err := eng.env.Get(t.X)
		if err != nil {
			return nil, 0, false, err
		}
		return nil, v, true, nil
	case *ir.TermBr:
		return t.Target, 0, false, nil
	case *ir.TermCondBr:
		cond, err := eng.env.Get(t.Cond)
		if err != nil {
			return nil, 0, false, err
		}
		if cond != 0 {
			return t.TargetTrue, 0, false, nil
		}
		return t.TargetFalse, 0, false, nil
	default:
		return nil, 0, false, errors.Errorf("engine: unsupported terminator: %T", term)
	}
}
