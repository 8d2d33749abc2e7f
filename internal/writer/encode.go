package writer

import (
	"github.com/retroenv/retrocfg/internal/program"
	"google.golang.org/protobuf/encoding/protowire"
)

// Encode returns the cfg wire format of the module.
func Encode(module *program.Module) []byte {
	return appendModule(nil, module)
}

func appendModule(b []byte, m *program.Module) []byte {
	b = appendString(b, moduleName, m.Name)
	b = appendVarint(b, moduleAddressSize, uint64(m.AddressSize))
	for _, fn := range m.Functions {
		b = appendMessage(b, moduleFunctions, fn, appendFunction)
	}
	for _, seg := range m.Segments {
		b = appendMessage(b, moduleSegments, seg, appendSegment)
	}
	for _, ext := range m.ExternalFunctions {
		b = appendMessage(b, moduleExternalFunctions, ext, appendExternalFunction)
	}
	for _, ext := range m.ExternalVariables {
		b = appendMessage(b, moduleExternalVariables, ext, appendExternalVariable)
	}
	return b
}

func appendFunction(b []byte, fn *program.Function) []byte {
	b = appendVarint(b, functionAddress, fn.Address)
	b = appendString(b, functionName, fn.Name)
	b = appendBool(b, functionIsEntrypoint, fn.IsEntrypoint)
	for _, block := range fn.Blocks {
		b = appendMessage(b, functionBlocks, block, appendBlock)
	}
	return b
}

func appendBlock(b []byte, block *program.Block) []byte {
	b = appendVarint(b, blockAddress, block.Address)
	for _, ins := range block.Instructions {
		b = appendMessage(b, blockInstructions, ins, appendInstruction)
	}
	for _, succ := range block.Successors {
		b = protowire.AppendTag(b, blockSuccessors, protowire.VarintType)
		b = protowire.AppendVarint(b, succ)
	}
	return b
}

func appendInstruction(b []byte, ins *program.Instruction) []byte {
	b = appendVarint(b, instructionAddress, ins.Address)
	b = appendBytes(b, instructionBytes, ins.Bytes)
	b = appendBool(b, instructionLocalNoReturn, ins.LocalNoReturn)
	b = appendString(b, instructionExternalCallName, ins.ExternalCallName)
	for _, ref := range ins.References {
		b = appendMessage(b, instructionReferences, ref, appendReference)
	}
	if ins.JumpTable != nil {
		b = appendMessage(b, instructionJumpTable, ins.JumpTable, appendJumpTable)
	}
	return b
}

func appendReference(b []byte, ref *program.CrossReference) []byte {
	b = appendVarint(b, referenceTarget, ref.Target)
	b = appendVarint(b, referenceOperandType, uint64(ref.OperandType))
	b = appendVarint(b, referenceTargetType, uint64(ref.TargetType))
	b = appendVarint(b, referenceLocation, uint64(ref.Location))
	b = appendString(b, referenceName, ref.Name)
	return b
}

func appendJumpTable(b []byte, table *program.JumpTable) []byte {
	b = appendVarint(b, jumpTableBaseAddress, table.BaseAddress)
	b = appendVarint(b, jumpTableOffset, protowire.EncodeZigZag(table.Offset))
	for _, target := range table.Targets {
		b = protowire.AppendTag(b, jumpTableTargets, protowire.VarintType)
		b = protowire.AppendVarint(b, target)
	}
	return b
}

func appendSegment(b []byte, seg *program.Segment) []byte {
	b = appendString(b, segmentName, seg.Name)
	b = appendVarint(b, segmentAddress, seg.Address)
	b = appendBytes(b, segmentData, seg.Data)
	b = appendBool(b, segmentReadOnly, seg.ReadOnly)
	b = appendBool(b, segmentIsExternal, seg.IsExternal)
	for _, v := range seg.Variables {
		b = appendMessage(b, segmentVariables, v, appendVariable)
	}
	for _, ref := range seg.References {
		b = appendMessage(b, segmentReferences, ref, appendDataReference)
	}
	return b
}

func appendVariable(b []byte, v *program.Variable) []byte {
	b = appendVarint(b, variableAddress, v.Address)
	b = appendString(b, variableName, v.Name)
	return b
}

func appendDataReference(b []byte, ref *program.DataReference) []byte {
	b = appendVarint(b, dataReferenceAddress, ref.Address)
	b = appendVarint(b, dataReferenceWidth, uint64(ref.Width))
	b = appendVarint(b, dataReferenceTarget, ref.Target)
	b = appendString(b, dataReferenceTargetName, ref.TargetName)
	b = appendBool(b, dataReferenceTargetIsCode, ref.TargetIsCode)
	return b
}

func appendExternalFunction(b []byte, ext *program.ExternalFunction) []byte {
	b = appendString(b, externalFunctionName, ext.Name)
	b = appendVarint(b, externalFunctionAddress, ext.Address)
	b = appendVarint(b, externalFunctionArgumentCount, uint64(ext.ArgumentCount))
	b = appendVarint(b, externalFunctionCallingConvention, uint64(ext.CallingConvention))
	b = appendBool(b, externalFunctionHasReturn, ext.HasReturn)
	b = appendBool(b, externalFunctionNoReturn, ext.NoReturn)
	b = appendBool(b, externalFunctionIsWeak, ext.IsWeak)
	b = appendString(b, externalFunctionSignature, ext.Signature)
	return b
}

func appendExternalVariable(b []byte, ext *program.ExternalVariable) []byte {
	b = appendString(b, externalVariableName, ext.Name)
	b = appendVarint(b, externalVariableAddress, ext.Address)
	b = appendVarint(b, externalVariableSize, uint64(ext.Size))
	b = appendBool(b, externalVariableIsWeak, ext.IsWeak)
	return b
}

// appendMessage appends a length delimited sub message.
func appendMessage[T any](b []byte, num protowire.Number, v T, appendFunc func([]byte, T) []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, appendFunc(nil, v))
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, protowire.EncodeBool(v))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, data []byte) []byte {
	if len(data) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, data)
}
