package defs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func writeDefs(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

//nolint:funlen // test functions can be long
func TestParse(t *testing.T) {
	t.Run("function and data records", func(t *testing.T) {
		table := New(8)
		input := `# comment line

DATA: stdin PTR
DATA: errno 4
exit 1 C Y
printf 1 C N int printf(const char *, ...)
Sleep 1 E N
fastfn 2 F N
`
		assert.NoError(t, table.Parse("test.txt", strings.NewReader(input)))
		assert.Equal(t, 6, table.Len())

		size, ok := table.ResolveData("stdin")
		assert.True(t, ok)
		assert.Equal(t, 8, size)

		size, ok = table.ResolveData("errno")
		assert.True(t, ok)
		assert.Equal(t, 4, size)

		fun, ok := table.Resolve("exit")
		assert.True(t, ok)
		assert.Equal(t, 1, fun.ArgumentCount)
		assert.Equal(t, CallerCleanup, fun.CallingConvention)
		assert.True(t, fun.NoReturn)

		fun, ok = table.Resolve("printf")
		assert.True(t, ok)
		assert.False(t, fun.NoReturn)
		assert.Equal(t, "int printf(const char *, ...)", fun.Signature)

		fun, ok = table.Resolve("Sleep")
		assert.True(t, ok)
		assert.Equal(t, CalleeCleanup, fun.CallingConvention)

		fun, ok = table.Resolve("fastfn")
		assert.True(t, ok)
		assert.Equal(t, FastCall, fun.CallingConvention)

		_, ok = table.Resolve("missing")
		assert.False(t, ok)
	})

	t.Run("pointer width follows address size", func(t *testing.T) {
		table := New(4)
		assert.NoError(t, table.Parse("test.txt", strings.NewReader("DATA: environ PTR\n")))
		size, ok := table.ResolveData("environ")
		assert.True(t, ok)
		assert.Equal(t, 4, size)
	})

	tests := []struct {
		name  string
		input string
	}{
		{name: "unknown calling convention", input: "exit 1 X Y\n"},
		{name: "unknown return type", input: "exit 1 C R\n"},
		{name: "non numeric argument count", input: "exit one C Y\n"},
		{name: "too few fields", input: "exit 1 C\n"},
		{name: "data without size", input: "DATA: stdin\n"},
		{name: "data with invalid size", input: "DATA: stdin big\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := New(8)
			err := table.Parse("bad.txt", strings.NewReader(tt.input))
			assert.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
			assert.ErrorContains(t, err, "bad.txt:1")
		})
	}
}

func TestLoadFilesShadowing(t *testing.T) {
	first := writeDefs(t, "first.txt", "abort 0 C Y\nDATA: optarg PTR\n")
	second := writeDefs(t, "second.txt", "abort 2 E N\n")

	table := New(8)
	missing, err := table.LoadFiles(first, second)
	assert.NoError(t, err)
	assert.Len(t, missing, 0)

	fun, ok := table.Resolve("abort")
	assert.True(t, ok)
	assert.Equal(t, 2, fun.ArgumentCount)
	assert.Equal(t, CalleeCleanup, fun.CallingConvention)
	assert.False(t, fun.NoReturn)

	_, ok = table.ResolveData("optarg")
	assert.True(t, ok)
}

func TestLoadMissingFile(t *testing.T) {
	table := New(8)
	err := table.Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadFilesMissing(t *testing.T) {
	absent := filepath.Join(t.TempDir(), "absent.txt")
	present := writeDefs(t, "present.txt", "puts 1 C N\n")
	broken := writeDefs(t, "broken.txt", "puts 1 C maybe\n")

	table := New(8)
	missing, err := table.LoadFiles(absent, present)
	assert.NoError(t, err)
	assert.Equal(t, []string{absent}, missing)
	_, ok := table.Resolve("puts")
	assert.True(t, ok)

	_, err = table.LoadFiles(absent, broken)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestLoadDefaultLinuxDefinitions(t *testing.T) {
	table := New(8)
	assert.NoError(t, table.Load(filepath.Join("..", "..", "defs", "linux.txt")))

	exit, ok := table.Resolve("exit")
	assert.True(t, ok)
	assert.True(t, exit.NoReturn)
	assert.Equal(t, 1, exit.ArgumentCount)

	printf, ok := table.Resolve("printf")
	assert.True(t, ok)
	assert.False(t, printf.NoReturn)
	assert.Equal(t, "int printf(const char *, ...)", printf.Signature)

	size, ok := table.ResolveData("stdout")
	assert.True(t, ok)
	assert.Equal(t, 8, size)
}
