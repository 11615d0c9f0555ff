package main

import (
	"fmt"
	"os"

	"github.com/llir/llvm/ir"
	"github.com/spf13/cobra"

	"github.com/oisee/rv64ir/pkg/engine"
	"github.com/oisee/rv64ir/pkg/loader"
	"github.com/oisee/rv64ir/pkg/tier"
	"github.com/oisee/rv64ir/pkg/trace"
)

func main() {
	var threshold uint64
	var forceNative bool
	var interpretOnly bool
	var profile string

	rootCmd := &cobra.Command{
		Use:   "rv64ir <file.ll>",
		Short: "Tiered IR engine — tree-walking interpreter with RV64 hot-path compilation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(args[0], threshold, forceNative, interpretOnly)
			if err != nil {
				return err
			}
			code, err := eng.Run()
			if profile != "" {
				if saveErr := eng.Trace().Save(profile); saveErr != nil {
					fmt.Fprintf(os.Stderr, "warning: failed to write profile: %v\n", saveErr)
				}
			}
			if err != nil {
				return err
			}
			fmt.Printf("Program exited with code: %d\n", code)
			return nil
		},
		// main prints the one "Error: ..." line itself.
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.PersistentFlags().Uint64Var(&threshold, "threshold", tier.DefaultThreshold, "block executions before native compilation")
	rootCmd.PersistentFlags().BoolVar(&forceNative, "force-native", false, "compile every block from its first execution (threshold 0)")
	rootCmd.PersistentFlags().BoolVar(&interpretOnly, "interpret-only", false, "never promote to the native tier")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "write a pkg/trace diagnostics dump to this path on exit")

	disasmCmd := &cobra.Command{
		Use:   "disasm <file.ll>",
		Short: "Print a per-block instruction listing, optionally with compiled segment disassembly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDisasm(args[0], forceNative)
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats <file.ll>",
		Short: "Run the program and print its block-hotness table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(args[0], threshold, forceNative, interpretOnly)
		},
	}

	rootCmd.AddCommand(disasmCmd, statsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildEngine(path string, threshold uint64, forceNative, interpretOnly bool) (*engine.Engine, error) {
	mod, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	return engine.New(mod, engine.Options{
		Threshold:     threshold,
		ForceNative:   forceNative,
		InterpretOnly: interpretOnly,
	}), nil
}

func runDisasm(path string, forceNative bool) error {
	mod, err := loader.Load(path)
	if err != nil {
		return err
	}
	for _, f := range mod.Funcs {
		if len(f.Blocks) == 0 {
			continue
		}
		fmt.Printf("func %s:\n", f.Name())
		for _, b := range f.Blocks {
			printBlock(b)
			if forceNative {
				if err := printCompiledSegment(mod, b); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func printBlock(b *ir.Block) {
	fmt.Printf("  %s:\n", b.Ident())
	for _, inst := range b.Insts {
		fmt.Printf("    %s\n", inst.LLString())
	}
	fmt.Printf("    %s\n", b.Term.LLString())
}

func printCompiledSegment(mod *ir.Module, b *ir.Block) error {
	eng := engine.New(mod, engine.Options{Threshold: 0})
	seg, err := eng.Controller().Compile(b, eng.Env())
	if err != nil {
		return fmt.Errorf("compile %s: %w", b.Ident(), err)
	}
	fmt.Printf("    ; compiled segment:\n")
	for _, line := range seg.Disasm {
		fmt.Printf("    ;   %s\n", line)
	}
	return nil
}

func runStats(path string, threshold uint64, forceNative, interpretOnly bool) error {
	eng, err := buildEngine(path, threshold, forceNative, interpretOnly)
	if err != nil {
		return err
	}
	if _, err := eng.Run(); err != nil {
		return err
	}
	printStats(eng.Trace())
	return nil
}

func printStats(t *trace.Table) {
	fmt.Printf("%-24s %-10s %8s  %s\n", "FUNC", "BLOCK", "COUNT", "PROMOTED")
	for _, s := range t.Stats() {
		fmt.Printf("%-24s %-10s %8d  %v\n", s.Func, s.Block, s.Count, s.Promoted)
	}
}
