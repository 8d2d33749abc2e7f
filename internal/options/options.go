// Package options contains the program options.
package options

import "path/filepath"

// Output formats.
const (
	FormatCFG       = "cfg"
	FormatJSON      = "json"
	FormatDOT       = "dot"
	FormatCallGraph = "callgraph"
)

// Formats lists all supported output formats.
var Formats = []string{FormatCFG, FormatJSON, FormatDOT, FormatCallGraph}

// Parameters contains file path options.
type Parameters struct {
	Input   string // binary to recover
	Output  string // output file, derived from the input if empty
	DefsDir string // directory containing the default <os>.txt definitions
	OS      string // operating system override for the default definitions
}

// Flags contains behavior options.
type Flags struct {
	Format string // output format, one of Formats
	Verify bool   // verify the recovered module before writing it
	Debug  bool
	Quiet  bool
}

// Program options of the recovery tool.
type Program struct {
	Parameters
	Flags

	EntrySymbols []string // explicit entry symbols, all exported functions if empty
	StdDefs      []string // additional definitions files, loaded in order
}

// Recovery defines options to control the control flow recovery.
type Recovery struct {
	Name         string   // module name
	EntrySymbols []string // explicit entry symbols
}

// NewRecovery returns the recovery options for the program options.
func NewRecovery(opts Program) Recovery {
	return Recovery{
		Name:         filepath.Base(opts.Input),
		EntrySymbols: opts.EntrySymbols,
	}
}
