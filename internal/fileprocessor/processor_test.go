package fileprocessor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/retroenv/retrocfg/internal/options"
	"github.com/retroenv/retrocfg/internal/provider/x86elf/elftest"
	"github.com/retroenv/retrocfg/internal/writer"
	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

func TestGenerateOutputFilename(t *testing.T) {
	tests := []struct {
		input  string
		format string
		want   string
	}{
		{"bin/main", options.FormatCFG, "bin/main.cfg"},
		{"libfoo.so", options.FormatJSON, "libfoo.so.json"},
		{"main", options.FormatDOT, "main.dot"},
		{"main", options.FormatCallGraph, "main.dot"},
		{"main", "yaml", "main.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateOutputFilename(tt.input, tt.format))
		})
	}
}

func TestProcessFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "sample")
	assert.NoError(t, os.WriteFile(input, elftest.Sample().Bytes(), 0600))

	opts := options.Program{
		Parameters: options.Parameters{
			Input:  input,
			Output: GenerateOutputFilename(input, options.FormatCFG),
		},
		Flags: options.Flags{Format: options.FormatCFG, Verify: true, Quiet: true},
	}

	err := ProcessFile(context.Background(), log.NewTestLogger(t), opts)
	assert.NoError(t, err)

	data, err := os.ReadFile(opts.Output)
	assert.NoError(t, err)
	module, err := writer.Decode(data)
	assert.NoError(t, err)
	assert.Len(t, module.Functions, 1)
	assert.Equal(t, "main", module.Functions[0].Name)
}

func TestProcessFileInvalidOutput(t *testing.T) {
	opts := options.Program{
		Parameters: options.Parameters{
			Input:  "main",
			Output: filepath.Join(t.TempDir(), "missing", "main.cfg"),
		},
		Flags: options.Flags{Format: options.FormatCFG},
	}

	err := ProcessFile(context.Background(), log.NewTestLogger(t), opts)
	assert.ErrorContains(t, err, "creating writer")
}

func TestProcessFileRemovesOutputOnError(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "sample")
	assert.NoError(t, os.WriteFile(input, elftest.Sample().Bytes(), 0600))

	opts := options.Program{
		Parameters: options.Parameters{
			Input:  input,
			Output: GenerateOutputFilename(input, options.FormatCFG),
		},
		Flags:        options.Flags{Format: options.FormatCFG, Quiet: true},
		EntrySymbols: []string{"does_not_exist"},
	}

	err := ProcessFile(context.Background(), log.NewTestLogger(t), opts)
	assert.Error(t, err)

	_, err = os.Stat(opts.Output)
	assert.True(t, os.IsNotExist(err))
}
