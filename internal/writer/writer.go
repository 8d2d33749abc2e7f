// Package writer serializes a recovered module.
package writer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/retroenv/retrocfg/internal/options"
	"github.com/retroenv/retrocfg/internal/program"
)

// ErrUnsupportedFormat is returned for an unknown output format.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Writer serializes a module in one of the supported output formats.
type Writer struct {
	module  *program.Module
	options Options
	writer  io.Writer
}

// Options of the writer.
type Options struct {
	Format string // one of options.Formats, cfg if empty
	Title  string // graph title for the dot formats, the module name if empty
}

// New creates a new writer.
func New(module *program.Module, writer io.Writer, options Options) *Writer {
	return &Writer{
		module:  module,
		options: options,
		writer:  writer,
	}
}

// Write writes the module in the configured format.
func (w Writer) Write() error {
	switch w.options.Format {
	case options.FormatCFG, "":
		if _, err := w.writer.Write(Encode(w.module)); err != nil {
			return fmt.Errorf("writing cfg data: %w", err)
		}
		return nil

	case options.FormatJSON:
		return WriteJSON(w.writer, w.module)

	case options.FormatDOT:
		return w.writeString(ControlFlowDOT(w.module, w.title()))

	case options.FormatCallGraph:
		return w.writeString(CallGraphDOT(w.module, w.title()))

	default:
		return fmt.Errorf("%w '%s'", ErrUnsupportedFormat, w.options.Format)
	}
}

// WriteJSON writes the module as indented JSON.
func WriteJSON(writer io.Writer, module *program.Module) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(module); err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	return nil
}

func (w Writer) title() string {
	if w.options.Title != "" {
		return w.options.Title
	}
	return w.module.Name
}

func (w Writer) writeString(s string) error {
	if _, err := io.WriteString(w.writer, s); err != nil {
		return fmt.Errorf("writing graph: %w", err)
	}
	return nil
}
