// Package loader adapts github.com/llir/llvm's textual-IR parser into the
// single entry point the rest of this repository treats as "the IR loader":
// a file path in, a *ir.Module out, or a fatal error.
package loader

import (
	"path/filepath"
	"strings"

	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir"
	"github.com/pkg/errors"
)

// Load parses the IR module at path. Only textual LLVM IR (.ll, or no
// extension) is supported; bitcode (.bc) is a named, intentional gap — this
// repository does not vendor a bitcode reader.
func Load(path string) (*ir.Module, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".bc" {
		return nil, errors.Errorf("load error: bitcode input not supported, use textual .ll: %s", path)
	}

	mod, err := asm.ParseFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load error: %s", path)
	}
	return mod, nil
}
