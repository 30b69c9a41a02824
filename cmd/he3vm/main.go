// Command he3vm loads and runs a He3 module image (spec.md §4.5's
// load_module through §4.8's execute_method), and inspects one without
// running it. Grounded on the teacher's cmd/run flag-based CLI, rebuilt on
// cobra/pflag.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mootwise/he3vm/heap"
	"github.com/mootwise/he3vm/moduleio"
	"github.com/mootwise/he3vm/objsys"
	"github.com/mootwise/he3vm/registry"
	"github.com/mootwise/he3vm/vmrun"
)

var version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(out, errOut *os.File) *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "he3vm",
		Short:         "he3vm runs and inspects He3 module images",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if verbose {
			l, _ := zap.NewDevelopment()
			vmrun.SetLogger(l)
			registry.SetLogger(l)
			moduleio.SetLogger(l)
		}
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.AddCommand(newRunCmd(out, errOut))
	rootCmd.AddCommand(newInspectCmd(out, errOut))
	return rootCmd
}

func newRunCmd(out, errOut *os.File) *cobra.Command {
	var slabSize int

	cmd := &cobra.Command{
		Use:   "run <module.image>",
		Short: "Load a module image and execute its entry point",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("he3vm: reading %s: %w", args[0], err)
			}

			h, err := heap.New(slabSize)
			if err != nil {
				return fmt.Errorf("he3vm: %w", err)
			}
			defer h.Close()

			reg := registry.New()
			if _, err := reg.LoadModule(data); err != nil {
				return fmt.Errorf("he3vm: loading module: %w", err)
			}

			it := vmrun.New(reg, h)
			it.SetOutput(out)

			result, err := it.Run(context.Background())
			if err != nil {
				return fmt.Errorf("he3vm: %w", err)
			}
			fmt.Fprintf(out, "he3vm: entry point returned %s\n", formatValue(result))
			return nil
		},
	}
	cmd.Flags().IntVar(&slabSize, "heap-size", heap.DefaultSlabSize, "heap slab size in bytes")
	return cmd
}

func newInspectCmd(out, errOut *os.File) *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "inspect <module.image>",
		Short: "Print a module image's header and tables without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("he3vm: reading %s: %w", path, err)
			}
			img, err := moduleio.Load(data)
			if err != nil {
				return fmt.Errorf("he3vm: %w", err)
			}

			if interactive {
				return runInspectorTUI(path, img)
			}
			printImageSummary(out, img)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "open a read-only TUI module browser")
	return cmd
}

func printImageSummary(out *os.File, img *moduleio.Image) {
	fmt.Fprintf(out, "module: %s %s\n", img.ModuleName, img.ModuleVersion)
	fmt.Fprintf(out, "format: v%d.%d  entry point method id: %d\n",
		img.Header.VersionMajor, img.Header.VersionMinor, img.Header.EntryPointMethodID)
	fmt.Fprintf(out, "types: %d  methods: %d  fields: %d  interfaces: %d  constants: %d  bytecode: %d bytes\n",
		len(img.Types), len(img.Methods), len(img.Fields), len(img.Interfaces), len(img.Constants), len(img.Bytecode))
	fmt.Fprintln(out)

	byType := make(map[uint32][]moduleio.MethodEntry)
	for _, m := range img.Methods {
		byType[m.OwningTypeID] = append(byType[m.OwningTypeID], m)
	}
	for _, t := range img.Types {
		fmt.Fprintf(out, "class %s (type id %d", resolveStr(img, t.NameOffset), t.TypeID)
		if t.ParentTypeID != 0 {
			fmt.Fprintf(out, ", extends type %d", t.ParentTypeID)
		}
		fmt.Fprintln(out, ")")
		for _, m := range byType[t.TypeID] {
			fmt.Fprintf(out, "  method %s (id %d, params=%d, locals=%d)\n",
				resolveStr(img, m.NameOffset), m.MethodID, m.ParamCount, m.LocalCount)
		}
	}
}

// formatValue renders a Run/Call result for the CLI the same way
// Sys.println's own formatting dispatches on Value.Kind (objsys/sys.go),
// except object refs print their heap address since no registry is in
// scope here to resolve a class name.
func formatValue(v objsys.Value) string {
	switch v.Kind {
	case objsys.KindI64:
		return fmt.Sprintf("%d", v.I64)
	case objsys.KindF64:
		return fmt.Sprintf("%g", v.F64)
	case objsys.KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case objsys.KindStringID:
		return fmt.Sprintf("<string id %d>", v.StringID)
	case objsys.KindObjectRef:
		return fmt.Sprintf("<object @%d>", v.Obj)
	default:
		return "null"
	}
}

// resolveStr resolves a TypeEntry/MethodEntry/FieldEntry NameOffset, which
// is a 1-based string-table id (bytecode.StringTable.Intern) — unlike the
// header's module_name_off/module_ver_off, which are blob byte offsets.
func resolveStr(img *moduleio.Image, nameOffset uint32) string {
	if int(nameOffset) < 1 || int(nameOffset) > len(img.Strings) {
		return "?"
	}
	return img.Strings[nameOffset-1]
}
