package tier

import (
	"github.com/llir/llvm/ir"

	"github.com/oisee/rv64ir/pkg/env"
)

// DefaultThreshold is the number of interpreted executions after which a
// block's next entry is promoted to a compiled segment, matching the original's
// single-visit threshold (SPEC_FULL.md §4.8 "Promotion threshold").
const DefaultThreshold = 1

// Controller tracks per-block execution counts and owns the compiled
// segment cache. Promotion is one-way: once a block has a cached root
// segment it stays cached and promoted, even if the engine is re-entered
// with a fresh call frame (SPEC_FULL.md §9 "One-way tiering"). Whether
// that segment actually runs natively is decided by pkg/engine.
type Controller struct {
	Threshold uint64
	counters  map[*ir.Block]uint64
	segments  map[*ir.Block]*Segment
	arena     *slotArena
}

// NewController returns a controller with the given promotion threshold
// and a fresh, engine-wide shadow slot arena. threshold 0 is --force-native
// ("compile from the first entry") and needs no coercion: Touch's strict
// `>` comparison already promotes on the first touch when Threshold is 0.
func NewController(threshold uint64) *Controller {
	return &Controller{
		Threshold: threshold,
		counters:  make(map[*ir.Block]uint64),
		segments:  make(map[*ir.Block]*Segment),
		arena:     newSlotArena(),
	}
}

// Touch increments b's execution counter and reports whether it has now
// crossed the promotion threshold: once a block has been executed
// Threshold times under the interpreter, its *next* entry is served from
// the compiled tier (spec.md §4.4/§4.5; original_source/src/jitrunner/
// jitrunner.cpp:185's `if (bb_map[BB] > threshold)`), so at the default
// threshold of 1 a block promotes on its second entry, not its first.
func (c *Controller) Touch(b *ir.Block) bool {
	c.counters[b]++
	return c.counters[b] > c.Threshold
}

// Segment returns b's cached root segment, if one has been built.
func (c *Controller) Segment(b *ir.Block) (*Segment, bool) {
	seg, ok := c.segments[b]
	return seg, ok
}

// Compile builds and caches b's root segment, starting at instruction
// index 0. Re-compiling an already-cached block is a programming error in
// the caller — pkg/engine's execBlock checks Segment first.
func (c *Controller) Compile(b *ir.Block, e *env.Env) (*Segment, error) {
	seg, err := Build(b, 0, e, c.arena)
	if err != nil {
		return nil, err
	}
	c.segments[b] = seg
	return seg, nil
}

// Count returns b's current execution count, for diagnostics (pkg/trace).
func (c *Controller) Count(b *ir.Block) uint64 {
	return c.counters[b]
}

// SlotGet and SlotSet give pkg/engine access to a segment's shadow slots
// for pre-sync (write live values in before Invoke) and post-sync (read
// them back out after), without exposing the arena's paging scheme.
func (c *Controller) SlotGet(addr int64) int64 {
	return c.arena.get(addr)
}

func (c *Controller) SlotSet(addr int64, v int64) {
	c.arena.set(addr, v)
}
