// Package trace collects per-block tiering diagnostics during a run and
// can persist them to a gob file for later inspection, adapted from the
// teacher's pkg/result table/checkpoint pair. See SPEC_FULL.md §4.10
// "Diagnostics".
package trace

import (
	"encoding/gob"
	"os"
	"sort"
	"sync"
)

// BlockStat is one basic block's tiering history: how many times it ran,
// and whether it was ever promoted to a compiled segment.
type BlockStat struct {
	Func     string
	Block    string
	Count    uint64
	Promoted bool
	Disasm   []string
}

func init() {
	gob.Register(BlockStat{})
}

// Table accumulates BlockStat entries across a run. Safe for concurrent
// use, though the engine itself only ever calls it from one goroutine
// today — mirroring the teacher's table, which guards against a future
// parallel caller rather than a present one.
type Table struct {
	mu      sync.Mutex
	entries map[string]*BlockStat
}

// NewTable returns an empty stats table.
func NewTable() *Table {
	return &Table{entries: make(map[string]*BlockStat)}
}

// Record upserts the stat for fn/block, overwriting count/promoted/disasm
// with the latest values the engine observed.
func (t *Table) Record(fn, block string, count uint64, promoted bool, disasm []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := fn + "/" + block
	t.entries[key] = &BlockStat{
		Func:     fn,
		Block:    block,
		Count:    count,
		Promoted: promoted,
		Disasm:   disasm,
	}
}

// Stats returns every recorded block, sorted by execution count
// descending then by function/block name, so stats output is stable
// across runs.
func (t *Table) Stats() []BlockStat {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]BlockStat, 0, len(t.entries))
	for _, s := range t.entries {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Func != out[j].Func {
			return out[i].Func < out[j].Func
		}
		return out[i].Block < out[j].Block
	})
	return out
}

// Dump holds a complete run's diagnostics for --profile output.
type Dump struct {
	Blocks []BlockStat
}

// Save writes the table's current contents to path as a gob file.
func (t *Table) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(Dump{Blocks: t.Stats()})
}

// Load reads a dump previously written by Save.
func Load(path string) (*Dump, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var d Dump
	if err := gob.NewDecoder(f).Decode(&d); err != nil {
		return nil, err
	}
	return &d, nil
}
