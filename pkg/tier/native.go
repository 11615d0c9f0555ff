package tier

import (
	"runtime"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Available reports whether the host can actually execute emitted RV64
// segments rather than only encode and disassemble them. Promotion still
// happens on any host (so --threshold/--stats behave identically
// everywhere); pkg/engine checks this once in New and, when it's false,
// runs promoted blocks through the tree-walker instead. See SPEC_FULL.md §4.7 "Host gating".
func Available() bool {
	return runtime.GOARCH == "riscv64"
}

// mapExecutable copies code into a fresh anonymous, executable mapping and
// returns it. On non-riscv64 hosts the mapping still succeeds (mmap itself
// is architecture-agnostic) — it is simply never jumped into, since
// Available reports false and the engine stays on the tree-walking tier.
func mapExecutable(code []byte) ([]byte, error) {
	if len(code) == 0 {
		return nil, nil
	}
	region, err := unix.Mmap(-1, 0, len(code), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errors.Wrap(err, "tier: mmap executable region")
	}
	copy(region, code)
	if err := unix.Mprotect(region, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return nil, errors.Wrap(err, "tier: mprotect executable region")
	}
	return region, nil
}

// nativeFunc is the shape every compiled segment is invoked through: no
// arguments, no return value. Segments communicate entirely through the
// shadow slot arena, whose slot addresses the segment's body loads as Li
// literals baked in at build time.
type nativeFunc func()

// funcval is the runtime's internal representation of a func value: a
// single word holding the address of the function's code. Go never lets
// you construct a func from a bare code pointer directly, so Invoke builds
// one by pointing a *funcval at a local code-pointer word and reinterpret-
// casting that pointer as a nativeFunc — the same "funcval trick" used to
// call into JIT-emitted machine code from pure Go. See SPEC_FULL.md §4.7.
type funcval struct {
	fn uintptr
}

// Invoke jumps into region, which must hold a segment compiled by Build on
// a riscv64 host. Callers must check Available first.
func Invoke(region []byte) {
	fv := &funcval{fn: uintptr(unsafe.Pointer(&region[0]))}
	f := *(*nativeFunc)(unsafe.Pointer(&fv))
	f()
}
