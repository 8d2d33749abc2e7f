package x86elf

import (
	"bytes"
	"debug/elf"
	"errors"
	"testing"

	"github.com/retroenv/retrocfg/internal/provider"
	"github.com/retroenv/retrocfg/internal/provider/x86elf/elftest"
	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

func openSample(t *testing.T) *File {
	t.Helper()
	ef, err := elf.NewFile(bytes.NewReader(elftest.Sample().Bytes()))
	assert.NoError(t, err)
	f, err := New(log.NewTestLogger(t), ef)
	assert.NoError(t, err)
	return f
}

func TestNew(t *testing.T) {
	f := openSample(t)

	assert.Equal(t, 8, f.AddressSize())
	assert.Equal(t, uint64(elftest.SampleMain), f.Entry())

	sections := f.Sections()
	names := make([]string, 0, len(sections))
	for _, sect := range sections {
		names = append(names, sect.Name)
	}
	assert.Equal(t, []string{".text", ".plt", ".rodata", ".got.plt", ".bss"}, names)

	assert.Equal(t, provider.Read|provider.Execute, sections[0].Permissions)
	assert.Equal(t, provider.Read|provider.Write, sections[3].Permissions)
	assert.True(t, sections[3].External)
	assert.False(t, sections[2].External)
	assert.Equal(t, uint64(0x10), sections[4].Length)
}

func TestNewUnsupported(t *testing.T) {
	sample := elftest.Sample()
	sample.Machine = elf.EM_AARCH64
	ef, err := elf.NewFile(bytes.NewReader(sample.Bytes()))
	assert.NoError(t, err)

	_, err = New(log.NewTestLogger(t), ef)
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestSymbols(t *testing.T) {
	f := openSample(t)

	main, ok := f.SymbolByName("main")
	assert.True(t, ok)
	assert.Equal(t, uint64(elftest.SampleMain), main.Address)
	assert.Equal(t, provider.FunctionSymbol, main.Kind)
	assert.True(t, main.Exported)
	assert.False(t, main.IsImported())

	table, ok := f.SymbolAt(elftest.SampleTable)
	assert.True(t, ok)
	assert.Equal(t, provider.DataSymbol, table.Kind)
	assert.False(t, table.Exported)

	stub, ok := f.SymbolAt(elftest.SamplePrintf)
	assert.True(t, ok)
	assert.Equal(t, "printf", stub.Name)
	assert.True(t, stub.IsImported())
	assert.Equal(t, provider.FunctionSymbol, stub.Kind)

	slot, ok := f.SymbolAt(elftest.SamplePrintfGOT)
	assert.True(t, ok)
	assert.Equal(t, "printf", slot.Name)
	assert.True(t, slot.IsImported())

	symbols := f.Symbols()
	for i := 1; i < len(symbols); i++ {
		assert.True(t, symbols[i-1].Address < symbols[i].Address)
	}
}

func TestReadBytes(t *testing.T) {
	f := openSample(t)

	data, err := f.ReadBytes(elftest.SampleMain, 3)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x83, 0xff, 0x03}, data)

	data, err = f.ReadBytes(0x404008, 8)
	assert.NoError(t, err)
	assert.Equal(t, make([]byte, 8), data)

	_, err = f.ReadBytes(0x500000, 1)
	assert.True(t, errors.Is(err, ErrOutOfRange))

	_, err = f.ReadBytes(elftest.SampleTable+12, 8)
	assert.True(t, errors.Is(err, ErrOutOfRange))

	assert.True(t, f.IsValidAddress(elftest.SampleTable))
	assert.False(t, f.IsValidAddress(0x400000))
}

func TestInstructionLength(t *testing.T) {
	f := openSample(t)

	tests := []struct {
		name     string
		address  uint64
		expected int
	}{
		{"cmp", elftest.SampleMain, 3},
		{"lea", 0x401007, 7},
		{"ret", 0x40101c, 1},
		{"data", elftest.SampleTable, 0},
		{"unmapped", 0x500000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, f.InstructionLength(tt.address))
		})
	}
}
