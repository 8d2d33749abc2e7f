package x86elf

import (
	"testing"

	"github.com/retroenv/retrocfg/internal/il"
	"github.com/retroenv/retrocfg/internal/provider"
	"github.com/retroenv/retrocfg/internal/provider/x86elf/elftest"
	"github.com/retroenv/retrogolib/assert"
)

func TestFunctionAt(t *testing.T) {
	f := openSample(t)

	fn, ok := f.FunctionAt(elftest.SampleMain)
	assert.True(t, ok)
	assert.Equal(t, "main", fn.Name)
	assert.True(t, fn.CanReturn)

	type block struct {
		start, end uint64
		successors []uint64
	}
	expected := []block{
		{elftest.SampleMain, elftest.SampleDispatch, []uint64{elftest.SampleDefault, elftest.SampleDispatch}},
		{elftest.SampleDispatch, elftest.SampleCaseOne, []uint64{elftest.SampleCaseOne, elftest.SampleCaseTwo}},
		{elftest.SampleCaseOne, elftest.SampleCaseTwo, nil},
		{elftest.SampleCaseTwo, elftest.SampleDefault, nil},
		{elftest.SampleDefault, elftest.SampleMainEnd, nil},
	}
	var blocks []block
	for _, b := range fn.Blocks {
		blocks = append(blocks, block{b.Start, b.End, b.Successors})
	}
	assert.Equal(t, expected, blocks)

	again, ok := f.FunctionAt(elftest.SampleMain)
	assert.True(t, ok)
	assert.True(t, fn == again)
}

func TestFunctionAtRejectsStubs(t *testing.T) {
	f := openSample(t)

	_, ok := f.FunctionAt(elftest.SamplePrintf)
	assert.False(t, ok)
	_, ok = f.FunctionAt(elftest.SampleCaseOne)
	assert.False(t, ok)
}

func TestFunctionContaining(t *testing.T) {
	f := openSample(t)

	fn, ok := f.FunctionContaining(elftest.SampleCaseTwo + 1)
	assert.True(t, ok)
	assert.Equal(t, uint64(elftest.SampleMain), fn.Start)

	_, ok = f.FunctionContaining(elftest.SampleTable)
	assert.False(t, ok)
}

func TestLiftedInstructions(t *testing.T) {
	f := openSample(t)
	fn, ok := f.FunctionAt(elftest.SampleMain)
	assert.True(t, ok)

	dispatch, ok := fn.BlockAt(elftest.SampleDispatch)
	assert.True(t, ok)
	jump := dispatch.Instructions[len(dispatch.Instructions)-1]
	assert.Equal(t, il.KindJump, jump.Kind)
	assert.Equal(t, "rax", jump.Dest.Reg)

	entry, ok := fn.BlockAt(elftest.SampleMain)
	assert.True(t, ok)
	branch := entry.Instructions[1]
	assert.Equal(t, il.KindIf, branch.Kind)
	assert.Equal(t, uint64(elftest.SampleDefault), branch.True)
	assert.Equal(t, uint64(elftest.SampleDispatch), branch.False)

	call, ok := fn.BlockAt(elftest.SampleDefault)
	assert.True(t, ok)
	assert.Equal(t, il.KindCall, call.Instructions[0].Kind)
	assert.Equal(t, il.ConstPtr(elftest.SamplePrintf), call.Instructions[0].Dest)
	assert.Equal(t, il.KindRet, call.Instructions[2].Kind)

	for i, ins := range append(entry.Instructions, dispatch.Instructions...) {
		assert.Equal(t, i, ins.Index)
	}
}

func TestMedium(t *testing.T) {
	f := openSample(t)
	fn, ok := f.FunctionAt(elftest.SampleMain)
	assert.True(t, ok)

	idx, ok := fn.MediumIndex(elftest.SampleIndexLoad)
	assert.True(t, ok)
	load := fn.Medium[idx]
	assert.Equal(t, il.MediumSetVar, load.Op)
	assert.Equal(t, "rax", load.Dest)
	assert.Equal(t, "sx([add(&0x402000, mul(rdi, 0x4))])", load.Src.String())

	idx, ok = fn.MediumIndex(elftest.SampleIndexLoad + 4)
	assert.True(t, ok)
	assert.Equal(t, "add(rax, &0x402000)", fn.Medium[idx].Src.String())

	for i, mi := range fn.Medium {
		assert.Equal(t, i, mi.Index)
	}
}

func TestRegisterValueAt(t *testing.T) {
	f := openSample(t)
	fn, ok := f.FunctionAt(elftest.SampleMain)
	assert.True(t, ok)

	tests := []struct {
		name     string
		address  uint64
		reg      string
		expected provider.RegisterValue
	}{
		{
			name:     "guarded index",
			address:  elftest.SampleIndexLoad,
			reg:      "rdi",
			expected: provider.RegisterValue{Type: provider.RangeValue, Start: 0, End: 3, Step: 1},
		},
		{
			name:     "table address",
			address:  elftest.SampleIndexLoad,
			reg:      "rdx",
			expected: provider.RegisterValue{Type: provider.ConstantValue, Value: elftest.SampleTable},
		},
		{
			name:     "clobbered by call",
			address:  elftest.SampleDefault + 5,
			reg:      "rax",
			expected: provider.RegisterValue{},
		},
		{
			name:     "zeroed",
			address:  elftest.SampleDefault + 7,
			reg:      "rax",
			expected: provider.RegisterValue{Type: provider.ConstantValue},
		},
		{
			name:     "unguarded entry value",
			address:  elftest.SampleMain + 3,
			reg:      "rdi",
			expected: provider.RegisterValue{},
		},
		{
			name:     "outside of function",
			address:  elftest.SampleTable,
			reg:      "rdi",
			expected: provider.RegisterValue{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, f.RegisterValueAt(fn, tt.address, tt.reg))
		})
	}
}
