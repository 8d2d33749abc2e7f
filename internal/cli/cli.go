// Package cli handles command line interface logic
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/invopop/jsonschema"
	"github.com/retroenv/retrocfg/internal/config"
	"github.com/retroenv/retrocfg/internal/options"
	"github.com/retroenv/retrocfg/internal/program"
	"github.com/retroenv/retrocfg/internal/writer"
	"github.com/spf13/cobra"
)

// RunFunc processes the binary described by the parsed program options.
type RunFunc func(ctx context.Context, opts options.Program) error

// NewRootCommand returns the root command that passes the parsed options of
// a recovery run to the given function.
func NewRootCommand(version string, run RunFunc) *cobra.Command {
	var opts options.Program

	root := &cobra.Command{
		Use:   "retrocfg [flags] <binary>",
		Short: "Recover the control flow graph of a binary",
		Long: `retrocfg recovers functions, basic blocks, cross references, jump tables,
data segments and external references of an x86 or x86-64 ELF binary and
writes them as a control flow graph module.`,
		Example: `
# Recover all exported functions into main.cfg
retrocfg ./main

# Start only from the given symbols and verify the result
retrocfg --entry-symbol main --verify -o main.cfg ./main

# Render the call graph
retrocfg -f callgraph -o main.dot ./main
  `,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Input = args[0]
			if err := normalizeOptions(&opts); err != nil {
				return err
			}
			return run(cmd.Context(), opts)
		},
	}

	readOptionFlags(root, &opts)
	root.AddCommand(newInspectCommand(), newSchemaCommand(), newVersionCommand(version))
	return root
}

func readOptionFlags(root *cobra.Command, opts *options.Program) {
	flags := root.Flags()
	flags.StringArrayVar(&opts.EntrySymbols, "entry-symbol", nil, "symbol to start the recovery from, repeatable (default all exported functions)")
	flags.StringArrayVar(&opts.StdDefs, "std-defs", nil, "additional definitions file loaded after the default one, repeatable")
	flags.StringVar(&opts.DefsDir, "defs-dir", config.DefaultDefsDir(), "directory containing the default <os>.txt definitions (env "+config.DefsDirEnv+")")
	flags.StringVar(&opts.OS, "os", "", "operating system of the default definitions, overrides the detected one")
	flags.StringVarP(&opts.Output, "output", "o", "", "name of the output file (default <binary>.<format extension>)")
	flags.StringVarP(&opts.Format, "format", "f", options.FormatCFG, "output format ("+strings.Join(options.Formats, ", ")+")")
	flags.BoolVar(&opts.Verify, "verify", false, "verify the recovered module and the written output")

	persistent := root.PersistentFlags()
	persistent.BoolVarP(&opts.Debug, "debug", "d", false, "enable debug logging")
	persistent.BoolVarP(&opts.Quiet, "quiet", "q", false, "perform operations quietly")
}

// normalizeOptions normalizes and validates option values
func normalizeOptions(opts *options.Program) error {
	opts.Format = strings.ToLower(opts.Format)
	if !slices.Contains(options.Formats, opts.Format) {
		return fmt.Errorf("%w '%s', valid formats: %s",
			writer.ErrUnsupportedFormat, opts.Format, strings.Join(options.Formats, ", "))
	}
	return nil
}

// Execute runs the root command. Styled output is only used when stdout is
// a terminal.
func Execute(ctx context.Context, root *cobra.Command) error {
	if !term.IsTerminal(os.Stdout.Fd()) {
		if err := root.ExecuteContext(ctx); err != nil {
			return fmt.Errorf("executing command: %w", err)
		}
		return nil
	}

	if err := fang.Execute(ctx, root, fang.WithNotifySignal(os.Interrupt)); err != nil {
		return fmt.Errorf("executing command: %w", err)
	}
	return nil
}

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.cfg>",
		Short: "Decode a recovered module and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading module file: %w", err)
			}
			module, err := writer.Decode(data)
			if err != nil {
				return fmt.Errorf("decoding module file '%s': %w", args[0], err)
			}
			return writer.WriteJSON(cmd.OutOrStdout(), module)
		},
	}
}

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "schema",
		Short:  "Generate the JSON schema of the json output format",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reflector := new(jsonschema.Reflector)
			bts, err := json.MarshalIndent(reflector.Reflect(&program.Module{}), "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal schema: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(bts))
			return err
		},
	}
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "retrocfg %s\n", version)
			return err
		},
	}
}
