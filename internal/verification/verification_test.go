package verification

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/retroenv/retrocfg/internal/program"
	"github.com/retroenv/retrocfg/internal/writer"
	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

func validModule() *program.Module {
	m := program.New("test", 4)
	m.AddFunction(&program.Function{
		Address: 0x1000,
		Blocks: []*program.Block{
			{
				Address: 0x1000,
				Instructions: []*program.Instruction{
					{Address: 0x1000, Bytes: []byte{0x90}},
					{Address: 0x1001, Bytes: []byte{0xff, 0x24, 0x85, 0x00, 0x20, 0x00, 0x00},
						JumpTable: &program.JumpTable{BaseAddress: 0x2000, Targets: []uint64{0x1008}}},
				},
				Successors: []uint64{0x1008},
			},
			{
				Address: 0x1008,
				Instructions: []*program.Instruction{
					{Address: 0x1008, Bytes: []byte{0xc3}},
				},
			},
		},
	})
	return m
}

//nolint:funlen
func TestVerifyModule(t *testing.T) {
	tests := []struct {
		name   string
		modify func(m *program.Module)
		err    string
	}{
		{
			name:   "valid",
			modify: func(*program.Module) {},
		},
		{
			name: "duplicate function",
			modify: func(m *program.Module) {
				m.AddFunction(&program.Function{Address: 0x1000})
			},
			err: "duplicate function at 0x1000",
		},
		{
			name: "gap between instructions",
			modify: func(m *program.Module) {
				m.Functions[0].Blocks[0].Instructions[1].Address = 0x1002
			},
			err: "instruction at 0x1002, expected 0x1001",
		},
		{
			name: "empty instruction",
			modify: func(m *program.Module) {
				m.Functions[0].Blocks[1].Instructions[0].Bytes = nil
			},
			err: "empty instruction at 0x1008",
		},
		{
			name: "unknown successor",
			modify: func(m *program.Module) {
				m.Functions[0].Blocks[1].Successors = []uint64{0x3000}
			},
			err: "unknown successor 0x3000",
		},
		{
			name: "successor at other function",
			modify: func(m *program.Module) {
				m.AddFunction(&program.Function{Address: 0x1100})
				m.Functions[0].Blocks[1].Successors = []uint64{0x1100}
			},
		},
		{
			name: "successor at queued control flow target",
			modify: func(m *program.Module) {
				ins := m.Functions[0].Blocks[1].Instructions[0]
				ins.AddReference(&program.CrossReference{
					Target:      0x1200,
					OperandType: program.ControlFlowOperand,
					TargetType:  program.CodeTarget,
				})
				m.Functions[0].Blocks[1].Successors = []uint64{0x1200}
			},
		},
		{
			name: "successor at external function",
			modify: func(m *program.Module) {
				m.ExternalFunctions = []*program.ExternalFunction{{Name: "exit", Address: 0x2800}}
				m.Functions[0].Blocks[1].Successors = []uint64{0x2800}
			},
		},
		{
			name: "unmasked jump table target",
			modify: func(m *program.Module) {
				m.Functions[0].Blocks[0].Instructions[1].JumpTable.Targets = []uint64{0x1_0000_1008}
			},
			err: "unmasked target 0x100001008",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validModule()
			tt.modify(m)

			err := VerifyModule(m, 4)
			if tt.err == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.err)
		})
	}
}

func TestVerifyOutput(t *testing.T) {
	logger := log.NewTestLogger(t)
	m := validModule()
	path := filepath.Join(t.TempDir(), "test.cfg")

	assert.NoError(t, os.WriteFile(path, writer.Encode(m), 0o600))
	assert.NoError(t, VerifyOutput(logger, path, m))

	m.Functions[0].Name = "changed"
	assert.Error(t, VerifyOutput(logger, path, m))

	assert.Error(t, VerifyOutput(logger, "", m))
}

func TestCheckBufferEqual(t *testing.T) {
	logger := log.NewTestLogger(t)

	assert.NoError(t, checkBufferEqual(logger, []byte{1, 2}, []byte{1, 2}))
	assert.ErrorContains(t, checkBufferEqual(logger, []byte{1}, []byte{1, 2}), "mismatched lengths")
	assert.ErrorContains(t, checkBufferEqual(logger, []byte{1, 2}, []byte{1, 3}), "1 offset mismatches")
}
