package writer

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/retroenv/retrocfg/internal/options"
	"github.com/retroenv/retrocfg/internal/program"
	"github.com/retroenv/retrogolib/assert"
	"google.golang.org/protobuf/encoding/protowire"
)

func testModule() *program.Module {
	m := program.New("test.elf", 8)
	m.AddFunction(&program.Function{
		Address:      0x1000,
		Name:         "_Z4mainv",
		IsEntrypoint: true,
		Blocks: []*program.Block{
			{
				Address: 0x1000,
				Instructions: []*program.Instruction{
					{
						Address:          0x1000,
						Bytes:            []byte{0xe8, 0xfb, 0x0f, 0x00, 0x00},
						ExternalCallName: "printf",
						References: []*program.CrossReference{
							{
								Target:      0x2000,
								OperandType: program.ControlFlowOperand,
								TargetType:  program.CodeTarget,
								Location:    program.External,
								Name:        "printf",
							},
						},
					},
					{
						Address: 0x1005,
						Bytes:   []byte{0xff, 0x24, 0xc5, 0x00, 0x18, 0x00, 0x00},
						JumpTable: &program.JumpTable{
							BaseAddress: 0x1800,
							Offset:      -8,
							Targets:     []uint64{0x1010, 0x1020},
						},
					},
				},
				Successors: []uint64{0x1010, 0x1020},
			},
			{
				Address: 0x1010,
				Instructions: []*program.Instruction{
					{Address: 0x1010, Bytes: []byte{0xc3}},
				},
			},
			{
				Address: 0x1020,
				Instructions: []*program.Instruction{
					{Address: 0x1020, Bytes: []byte{0x0f, 0x0b}, LocalNoReturn: true},
				},
			},
		},
	})
	m.Segments = []*program.Segment{
		{
			Name:     ".rodata",
			Address:  0x1800,
			Data:     []byte{0x10, 0x10, 0, 0, 0, 0, 0, 0},
			ReadOnly: true,
			Variables: []*program.Variable{
				{Address: 0x1800, Name: "table"},
			},
			References: []*program.DataReference{
				{Address: 0x1800, Width: 8, Target: 0x1010, TargetIsCode: false},
			},
		},
	}
	m.ExternalFunctions = []*program.ExternalFunction{
		{
			Name:              "printf",
			Address:           0x2000,
			ArgumentCount:     1,
			CallingConvention: program.CallerCleanup,
			HasReturn:         true,
			Signature:         "int printf(const char *, ...)",
		},
	}
	m.ExternalVariables = []*program.ExternalVariable{
		{Name: "errno", Address: 0x2800, Size: 8, IsWeak: true},
	}
	return m
}

func TestEncodeDecode(t *testing.T) {
	m := testModule()

	decoded, err := Decode(Encode(m))
	assert.NoError(t, err)
	assert.Equal(t, m, decoded)
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	var data []byte
	data = protowire.AppendTag(data, 99, protowire.VarintType)
	data = protowire.AppendVarint(data, 1)
	data = protowire.AppendTag(data, 98, protowire.Fixed32Type)
	data = protowire.AppendFixed32(data, 1)
	data = appendString(data, moduleName, "skip")

	m, err := Decode(data)
	assert.NoError(t, err)
	assert.Equal(t, "skip", m.Name)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		err  string
	}{
		{"truncated tag", []byte{0x80}, "decoding module"},
		{"truncated length", []byte{0x0a, 0x05, 'a'}, "field 1"},
		{"message as varint", []byte{0x18, 0x01}, ErrWireType.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			assert.ErrorContains(t, err, tt.err)
		})
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	w := New(testModule(), &buf, Options{Format: options.FormatJSON})
	assert.NoError(t, w.Write())

	s := buf.String()
	assert.True(t, strings.Contains(s, `"name": "test.elf"`))
	assert.True(t, strings.Contains(s, `"operand_type": "control_flow"`))
	assert.True(t, strings.Contains(s, `"calling_convention": "caller_cleanup"`))
}

func TestWriteCFG(t *testing.T) {
	var buf bytes.Buffer
	m := testModule()
	w := New(m, &buf, Options{})
	assert.NoError(t, w.Write())
	assert.Equal(t, Encode(m), buf.Bytes())
}

func TestWriteDOT(t *testing.T) {
	tests := []struct {
		format   string
		expected string
	}{
		{options.FormatDOT, "digraph"},
		{options.FormatCallGraph, "printf"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			w := New(testModule(), &buf, Options{Format: tt.format})
			assert.NoError(t, w.Write())
			assert.True(t, strings.Contains(buf.String(), tt.expected))
		})
	}
}

func TestWriteUnsupported(t *testing.T) {
	var buf bytes.Buffer
	w := New(testModule(), &buf, Options{Format: "asm"})
	assert.True(t, errors.Is(w.Write(), ErrUnsupportedFormat))
}

func TestCallees(t *testing.T) {
	m := testModule()
	fn := m.Functions[0]
	names := functionNames(m)

	assert.Equal(t, "main()", names[0x1000])
	assert.Equal(t, []string{"printf"}, callees(fn.Blocks[0].Instructions[0], blockIndex(fn), names))
	assert.Len(t, callees(fn.Blocks[0].Instructions[1], blockIndex(fn), names), 0)
}
