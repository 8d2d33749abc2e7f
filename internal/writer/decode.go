package writer

import (
	"errors"
	"fmt"
	"slices"

	"github.com/retroenv/retrocfg/internal/program"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrWireType is returned when a known field is encoded with an unexpected wire type.
var ErrWireType = errors.New("unexpected wire type")

// field is a single decoded field of a message.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

// Decode parses the cfg wire format into a module.
func Decode(data []byte) (*program.Module, error) {
	m := &program.Module{}
	err := decodeMessage(data, func(f field) error {
		switch f.num {
		case moduleName:
			m.Name = string(f.bytes)
		case moduleAddressSize:
			m.AddressSize = int(f.varint)
		case moduleFunctions:
			return decodeInto(f, &m.Functions, decodeFunction)
		case moduleSegments:
			return decodeInto(f, &m.Segments, decodeSegment)
		case moduleExternalFunctions:
			return decodeInto(f, &m.ExternalFunctions, decodeExternalFunction)
		case moduleExternalVariables:
			return decodeInto(f, &m.ExternalVariables, decodeExternalVariable)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decoding module: %w", err)
	}
	return m, nil
}

func decodeFunction(data []byte) (*program.Function, error) {
	fn := &program.Function{}
	err := decodeMessage(data, func(f field) error {
		switch f.num {
		case functionAddress:
			fn.Address = f.varint
		case functionName:
			fn.Name = string(f.bytes)
		case functionIsEntrypoint:
			fn.IsEntrypoint = protowire.DecodeBool(f.varint)
		case functionBlocks:
			return decodeInto(f, &fn.Blocks, decodeBlock)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("function: %w", err)
	}
	return fn, nil
}

func decodeBlock(data []byte) (*program.Block, error) {
	block := &program.Block{}
	err := decodeMessage(data, func(f field) error {
		switch f.num {
		case blockAddress:
			block.Address = f.varint
		case blockInstructions:
			return decodeInto(f, &block.Instructions, decodeInstruction)
		case blockSuccessors:
			block.Successors = append(block.Successors, f.varint)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("block: %w", err)
	}
	return block, nil
}

func decodeInstruction(data []byte) (*program.Instruction, error) {
	ins := &program.Instruction{}
	err := decodeMessage(data, func(f field) error {
		switch f.num {
		case instructionAddress:
			ins.Address = f.varint
		case instructionBytes:
			ins.Bytes = slices.Clone(f.bytes)
		case instructionLocalNoReturn:
			ins.LocalNoReturn = protowire.DecodeBool(f.varint)
		case instructionExternalCallName:
			ins.ExternalCallName = string(f.bytes)
		case instructionReferences:
			return decodeInto(f, &ins.References, decodeReference)
		case instructionJumpTable:
			table, err := decodeJumpTable(f.bytes)
			if err != nil {
				return err
			}
			ins.JumpTable = table
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("instruction: %w", err)
	}
	return ins, nil
}

func decodeReference(data []byte) (*program.CrossReference, error) {
	ref := &program.CrossReference{}
	err := decodeMessage(data, func(f field) error {
		switch f.num {
		case referenceTarget:
			ref.Target = f.varint
		case referenceOperandType:
			ref.OperandType = program.OperandType(f.varint)
		case referenceTargetType:
			ref.TargetType = program.TargetType(f.varint)
		case referenceLocation:
			ref.Location = program.Location(f.varint)
		case referenceName:
			ref.Name = string(f.bytes)
		}
		return nil
	})
	return ref, err
}

func decodeJumpTable(data []byte) (*program.JumpTable, error) {
	table := &program.JumpTable{}
	err := decodeMessage(data, func(f field) error {
		switch f.num {
		case jumpTableBaseAddress:
			table.BaseAddress = f.varint
		case jumpTableOffset:
			table.Offset = protowire.DecodeZigZag(f.varint)
		case jumpTableTargets:
			table.Targets = append(table.Targets, f.varint)
		}
		return nil
	})
	return table, err
}

func decodeSegment(data []byte) (*program.Segment, error) {
	seg := &program.Segment{}
	err := decodeMessage(data, func(f field) error {
		switch f.num {
		case segmentName:
			seg.Name = string(f.bytes)
		case segmentAddress:
			seg.Address = f.varint
		case segmentData:
			seg.Data = slices.Clone(f.bytes)
		case segmentReadOnly:
			seg.ReadOnly = protowire.DecodeBool(f.varint)
		case segmentIsExternal:
			seg.IsExternal = protowire.DecodeBool(f.varint)
		case segmentVariables:
			return decodeInto(f, &seg.Variables, decodeVariable)
		case segmentReferences:
			return decodeInto(f, &seg.References, decodeDataReference)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	return seg, nil
}

func decodeVariable(data []byte) (*program.Variable, error) {
	v := &program.Variable{}
	err := decodeMessage(data, func(f field) error {
		switch f.num {
		case variableAddress:
			v.Address = f.varint
		case variableName:
			v.Name = string(f.bytes)
		}
		return nil
	})
	return v, err
}

func decodeDataReference(data []byte) (*program.DataReference, error) {
	ref := &program.DataReference{}
	err := decodeMessage(data, func(f field) error {
		switch f.num {
		case dataReferenceAddress:
			ref.Address = f.varint
		case dataReferenceWidth:
			ref.Width = int(f.varint)
		case dataReferenceTarget:
			ref.Target = f.varint
		case dataReferenceTargetName:
			ref.TargetName = string(f.bytes)
		case dataReferenceTargetIsCode:
			ref.TargetIsCode = protowire.DecodeBool(f.varint)
		}
		return nil
	})
	return ref, err
}

func decodeExternalFunction(data []byte) (*program.ExternalFunction, error) {
	ext := &program.ExternalFunction{}
	err := decodeMessage(data, func(f field) error {
		switch f.num {
		case externalFunctionName:
			ext.Name = string(f.bytes)
		case externalFunctionAddress:
			ext.Address = f.varint
		case externalFunctionArgumentCount:
			ext.ArgumentCount = int(f.varint)
		case externalFunctionCallingConvention:
			ext.CallingConvention = program.CallingConvention(f.varint)
		case externalFunctionHasReturn:
			ext.HasReturn = protowire.DecodeBool(f.varint)
		case externalFunctionNoReturn:
			ext.NoReturn = protowire.DecodeBool(f.varint)
		case externalFunctionIsWeak:
			ext.IsWeak = protowire.DecodeBool(f.varint)
		case externalFunctionSignature:
			ext.Signature = string(f.bytes)
		}
		return nil
	})
	return ext, err
}

func decodeExternalVariable(data []byte) (*program.ExternalVariable, error) {
	ext := &program.ExternalVariable{}
	err := decodeMessage(data, func(f field) error {
		switch f.num {
		case externalVariableName:
			ext.Name = string(f.bytes)
		case externalVariableAddress:
			ext.Address = f.varint
		case externalVariableSize:
			ext.Size = int(f.varint)
		case externalVariableIsWeak:
			ext.IsWeak = protowire.DecodeBool(f.varint)
		}
		return nil
	})
	return ext, err
}

// decodeInto decodes a length delimited sub message and appends it to the list.
func decodeInto[T any](f field, list *[]T, decodeFunc func([]byte) (T, error)) error {
	if f.typ != protowire.BytesType {
		return fmt.Errorf("field %d: %w", f.num, ErrWireType)
	}
	v, err := decodeFunc(f.bytes)
	if err != nil {
		return err
	}
	*list = append(*list, v)
	return nil
}

// decodeMessage calls the handler for every field of the message. Groups and
// fixed size fields are skipped.
func decodeMessage(data []byte, handle func(f field) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(data)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		data = data[n:]

		if typ != protowire.VarintType && typ != protowire.BytesType {
			continue
		}
		if err := handle(f); err != nil {
			return err
		}
	}
	return nil
}
