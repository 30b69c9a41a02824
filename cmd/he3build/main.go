// Command he3build compiles a He3 project file into a module image
// (spec.md §4.4's link_module, fronted by the translate/emit pipeline
// spec.md §4.2/§4.3 describe). Grounded on the teacher's cmd/run flag-based
// CLI, rebuilt on cobra/pflag the way the pack's raymyers-ralph-cc-go
// compiler frontend structures its command tree.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mootwise/he3vm/bytecode"
	"github.com/mootwise/he3vm/internal/buildpipeline"
	"github.com/mootwise/he3vm/internal/projectfile"
	"github.com/mootwise/he3vm/moduleio"
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
		Use:           "he3build",
		Short:         "he3build compiles a He3 project into a module image",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if verbose {
			l, _ := zap.NewDevelopment()
			bytecode.SetLogger(l)
			moduleio.SetLogger(l)
		}
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.AddCommand(newCompileCmd(out, errOut))
	return rootCmd
}

func newCompileCmd(out, errOut *os.File) *cobra.Command {
	var (
		outputPath   string
		reportFormat string
	)

	cmd := &cobra.Command{
		Use:   "compile <project-file>",
		Short: "Compile a JSON project file into a .he3mod module image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("he3build: reading %s: %w", path, err)
			}
			proj, err := projectfile.Decode(data)
			if err != nil {
				return fmt.Errorf("he3build: %w", err)
			}

			image, diags := buildpipeline.Compile(proj)
			if diags.Err() != nil {
				return writeDiagnostics(errOut, reportFormat, diags.Errors())
			}

			if outputPath == "" {
				outputPath = defaultOutputPath(path, proj.ModuleName)
			}
			if err := os.WriteFile(outputPath, image, 0o644); err != nil {
				return fmt.Errorf("he3build: writing %s: %w", outputPath, err)
			}
			fmt.Fprintf(out, "he3build: wrote %s (%d bytes)\n", outputPath, len(image))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output module image path (default: <project-file-stem>.he3mod)")
	cmd.Flags().StringVar(&reportFormat, "report-format", "text", "diagnostics report format: text or yaml")
	return cmd
}

func defaultOutputPath(projectPath, moduleName string) string {
	stem := moduleName
	if stem == "" {
		base := filepath.Base(projectPath)
		stem = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return stem + ".he3mod"
}

// diagnosticsReport is the --report-format=yaml shape: one entry per
// recorded error, loose enough to survive herr.Error's unstructured Detail
// string without requiring every error kind to be special-cased here.
type diagnosticsReport struct {
	Errors []string `yaml:"errors"`
}

func writeDiagnostics(errOut *os.File, format string, errs []error) error {
	switch format {
	case "yaml":
		report := diagnosticsReport{}
		for _, e := range errs {
			report.Errors = append(report.Errors, e.Error())
		}
		enc := yaml.NewEncoder(errOut)
		defer enc.Close()
		if err := enc.Encode(report); err != nil {
			return err
		}
	default:
		for _, e := range errs {
			fmt.Fprintf(errOut, "he3build: error: %v\n", e)
		}
	}
	return fmt.Errorf("he3build: compilation failed with %d error(s)", len(errs))
}
