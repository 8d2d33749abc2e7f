package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/retroenv/retrocfg/internal/options"
	"github.com/retroenv/retrocfg/internal/program"
	"github.com/retroenv/retrocfg/internal/writer"
	"github.com/retroenv/retrogolib/assert"
)

func execute(t *testing.T, args ...string) (options.Program, string, error) {
	t.Helper()

	var got options.Program
	root := NewRootCommand("1.0.0", func(_ context.Context, opts options.Program) error {
		got = opts
		return nil
	})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return got, out.String(), err
}

//nolint:funlen
func TestRootCommandOptions(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want options.Program
	}{
		{
			name: "defaults",
			args: []string{"main.elf"},
			want: options.Program{
				Parameters: options.Parameters{Input: "main.elf", DefsDir: "defs"},
				Flags:      options.Flags{Format: options.FormatCFG},
			},
		},
		{
			name: "repeatable flags",
			args: []string{
				"--entry-symbol", "main", "--entry-symbol", "init",
				"--std-defs", "a.txt", "--std-defs", "b.txt",
				"main.elf",
			},
			want: options.Program{
				Parameters:   options.Parameters{Input: "main.elf", DefsDir: "defs"},
				Flags:        options.Flags{Format: options.FormatCFG},
				EntrySymbols: []string{"main", "init"},
				StdDefs:      []string{"a.txt", "b.txt"},
			},
		},
		{
			name: "output and behavior flags",
			args: []string{
				"-o", "out.json", "-f", "JSON", "--verify", "-d", "-q",
				"--os", "freebsd", "--defs-dir", "/usr/share/retrocfg",
				"main.elf",
			},
			want: options.Program{
				Parameters: options.Parameters{
					Input:   "main.elf",
					Output:  "out.json",
					DefsDir: "/usr/share/retrocfg",
					OS:      "freebsd",
				},
				Flags: options.Flags{
					Format: options.FormatJSON,
					Verify: true,
					Debug:  true,
					Quiet:  true,
				},
			},
		},
	}

	t.Setenv("RETROCFG_DEFS_DIR", "defs")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := execute(t, tt.args...)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRootCommandErrors(t *testing.T) {
	_, _, err := execute(t, "-f", "asm", "main.elf")
	assert.True(t, errors.Is(err, writer.ErrUnsupportedFormat))

	_, _, err = execute(t)
	assert.Error(t, err)

	_, _, err = execute(t, "a.elf", "b.elf")
	assert.Error(t, err)
}

func TestRunError(t *testing.T) {
	failure := errors.New("failure")
	root := NewRootCommand("1.0.0", func(context.Context, options.Program) error {
		return failure
	})
	root.SetArgs([]string{"main.elf"})

	err := root.ExecuteContext(context.Background())
	assert.True(t, errors.Is(err, failure))
}

func TestInspectCommand(t *testing.T) {
	module := program.New("test.elf", 8)
	module.AddFunction(&program.Function{Address: 0x1000, Name: "main", IsEntrypoint: true})

	path := filepath.Join(t.TempDir(), "test.cfg")
	assert.NoError(t, os.WriteFile(path, writer.Encode(module), 0600))

	_, out, err := execute(t, "inspect", path)
	assert.NoError(t, err)
	assert.True(t, strings.Contains(out, `"name": "test.elf"`))
	assert.True(t, strings.Contains(out, `"name": "main"`))

	invalid := filepath.Join(t.TempDir(), "invalid.cfg")
	assert.NoError(t, os.WriteFile(invalid, []byte{0x0a, 0x05, 'a'}, 0600))
	_, _, err = execute(t, "inspect", invalid)
	assert.ErrorContains(t, err, "decoding module file")
}

func TestSchemaCommand(t *testing.T) {
	_, out, err := execute(t, "schema")
	assert.NoError(t, err)
	assert.True(t, strings.Contains(out, `"external_functions"`))
	assert.True(t, strings.Contains(out, `"control_flow"`))
}

func TestVersionCommand(t *testing.T) {
	_, out, err := execute(t, "version")
	assert.NoError(t, err)
	assert.Equal(t, "retrocfg 1.0.0\n", out)
}
