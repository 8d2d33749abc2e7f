package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/retroenv/retrocfg/internal/defs"
	"github.com/retroenv/retrocfg/internal/detector"
	"github.com/retroenv/retrocfg/internal/disasm"
	"github.com/retroenv/retrocfg/internal/options"
	"github.com/retroenv/retrocfg/internal/provider/x86elf/elftest"
	"github.com/retroenv/retrocfg/internal/writer"
	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

func TestNew(t *testing.T) {
	logger := log.NewTestLogger(t)
	p := New(logger)

	assert.NotNil(t, p)
	assert.NotNil(t, p.logger)
	assert.NotNil(t, p.detector)
	assert.NotNil(t, p.loader)
}

func testOptions(t *testing.T, format string) options.Program {
	t.Helper()
	dir := t.TempDir()

	input := filepath.Join(dir, "sample")
	assert.NoError(t, os.WriteFile(input, elftest.Sample().Bytes(), 0600))

	defsDir := filepath.Join(dir, "defs")
	assert.NoError(t, os.Mkdir(defsDir, 0700))
	linux := "printf 1 C N\nexit 1 C Y\nDATA: errno 4\n"
	assert.NoError(t, os.WriteFile(filepath.Join(defsDir, "linux.txt"), []byte(linux), 0600))

	return options.Program{
		Parameters: options.Parameters{Input: input, DefsDir: defsDir},
		Flags:      options.Flags{Format: format, Verify: true, Quiet: true},
	}
}

func TestExecute(t *testing.T) {
	logger := log.NewTestLogger(t)
	p := New(logger)
	opts := testOptions(t, options.FormatCFG)

	var buf bytes.Buffer
	module, err := p.Execute(context.Background(), opts, &buf)
	assert.NoError(t, err)

	assert.Equal(t, "sample", module.Name)
	assert.Len(t, module.Functions, 1)
	main := module.Functions[0]
	assert.Equal(t, uint64(elftest.SampleMain), main.Address)
	assert.True(t, main.IsEntrypoint)
	assert.Len(t, main.Blocks, 5)

	assert.Len(t, module.ExternalFunctions, 1)
	printf := module.ExternalFunctions[0]
	assert.Equal(t, "printf", printf.Name)
	assert.Equal(t, 1, printf.ArgumentCount)
	assert.False(t, printf.NoReturn)

	decoded, err := writer.Decode(buf.Bytes())
	assert.NoError(t, err)
	assert.Equal(t, module.Name, decoded.Name)
	assert.Len(t, decoded.Functions, 1)
}

func TestExecuteFormats(t *testing.T) {
	tests := []struct {
		format   string
		contains string
	}{
		{options.FormatJSON, `"name": "printf"`},
		{options.FormatDOT, "digraph"},
		{options.FormatCallGraph, "printf"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			p := New(log.NewTestLogger(t))
			opts := testOptions(t, tt.format)

			var buf bytes.Buffer
			_, err := p.Execute(context.Background(), opts, &buf)
			assert.NoError(t, err)
			assert.True(t, strings.Contains(buf.String(), tt.contains))
		})
	}
}

func TestExecuteErrors(t *testing.T) {
	t.Run("unsupported binary", func(t *testing.T) {
		p := New(log.NewTestLogger(t))
		opts := testOptions(t, options.FormatCFG)
		assert.NoError(t, os.WriteFile(opts.Input, []byte("#!/bin/sh\n"), 0600))

		_, err := p.Execute(context.Background(), opts, &bytes.Buffer{})
		assert.True(t, errors.Is(err, detector.ErrUnsupported))
	})

	t.Run("malformed definitions", func(t *testing.T) {
		p := New(log.NewTestLogger(t))
		opts := testOptions(t, options.FormatCFG)
		broken := filepath.Join(t.TempDir(), "broken.txt")
		assert.NoError(t, os.WriteFile(broken, []byte("printf 1 X N\n"), 0600))
		opts.StdDefs = []string{broken}

		_, err := p.Execute(context.Background(), opts, &bytes.Buffer{})
		assert.True(t, errors.Is(err, defs.ErrMalformed))
	})

	t.Run("missing entry symbol", func(t *testing.T) {
		p := New(log.NewTestLogger(t))
		opts := testOptions(t, options.FormatCFG)
		opts.EntrySymbols = []string{"does_not_exist"}

		_, err := p.Execute(context.Background(), opts, &bytes.Buffer{})
		assert.True(t, errors.Is(err, disasm.ErrEntrypointNotFound))
	})

	t.Run("cancelled context", func(t *testing.T) {
		p := New(log.NewTestLogger(t))
		opts := testOptions(t, options.FormatCFG)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Execute(ctx, opts, &bytes.Buffer{})
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestExecuteMissingUserDefinitions(t *testing.T) {
	p := New(log.NewTestLogger(t))
	opts := testOptions(t, options.FormatCFG)
	opts.StdDefs = []string{filepath.Join(t.TempDir(), "missing.txt")}

	module, err := p.Execute(context.Background(), opts, &bytes.Buffer{})
	assert.NoError(t, err)
	assert.Len(t, module.Functions, 1)
	assert.Len(t, module.ExternalFunctions, 1)
	assert.Equal(t, 1, module.ExternalFunctions[0].ArgumentCount)
}

func TestLoadDefinitions(t *testing.T) {
	p := New(log.NewTestLogger(t))
	opts := testOptions(t, options.FormatCFG)

	user := filepath.Join(t.TempDir(), "user.txt")
	assert.NoError(t, os.WriteFile(user, []byte("printf 2 E N\n"), 0600))
	opts.StdDefs = []string{user}

	table, err := p.loadDefinitions(opts, detector.Target{OS: "linux", AddressSize: 8})
	assert.NoError(t, err)
	printf, ok := table.Resolve("printf")
	assert.True(t, ok)
	assert.Equal(t, 2, printf.ArgumentCount)
	assert.Equal(t, defs.CalleeCleanup, printf.CallingConvention)
	size, ok := table.ResolveData("errno")
	assert.True(t, ok)
	assert.Equal(t, 4, size)

	table, err = p.loadDefinitions(opts, detector.Target{OS: "freebsd", AddressSize: 8})
	assert.NoError(t, err)
	_, ok = table.Resolve("exit")
	assert.False(t, ok)
}
