package program

import (
	"fmt"

	"github.com/invopop/jsonschema"
)

// OperandType defines how an instruction operand references its target.
type OperandType uint8

// operand types.
const (
	ImmediateOperand OperandType = iota
	MemoryOperand
	MemoryDisplacementOperand
	ControlFlowOperand
)

// TargetType defines whether a reference points to code or data.
type TargetType uint8

// target types.
const (
	CodeTarget TargetType = iota
	DataTarget
)

// Location defines whether a reference target is inside of the module.
type Location uint8

// locations.
const (
	Internal Location = iota
	External
)

// CallingConvention of an external function.
type CallingConvention uint8

// calling conventions.
const (
	CallerCleanup CallingConvention = iota
	CalleeCleanup
	FastCall
)

var (
	operandTypeNames       = []string{"immediate", "memory", "memory_displacement", "control_flow"}
	targetTypeNames        = []string{"code", "data"}
	locationNames          = []string{"internal", "external"}
	callingConventionNames = []string{"caller_cleanup", "callee_cleanup", "fastcall"}
)

func enumName(names []string, value uint8) string {
	if int(value) < len(names) {
		return names[value]
	}
	return fmt.Sprintf("unknown(%d)", value)
}

func parseEnum(names []string, text []byte) (uint8, error) {
	for i, name := range names {
		if name == string(text) {
			return uint8(i), nil
		}
	}
	return 0, fmt.Errorf("unsupported value '%s'", text)
}

func enumSchema(names []string) *jsonschema.Schema {
	values := make([]any, len(names))
	for i, name := range names {
		values[i] = name
	}
	return &jsonschema.Schema{Type: "string", Enum: values}
}

func (o OperandType) String() string { return enumName(operandTypeNames, uint8(o)) }

// MarshalText implements encoding.TextMarshaler.
func (o OperandType) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *OperandType) UnmarshalText(text []byte) error {
	v, err := parseEnum(operandTypeNames, text)
	*o = OperandType(v)
	return err
}

// JSONSchema describes the type for the schema command.
func (OperandType) JSONSchema() *jsonschema.Schema { return enumSchema(operandTypeNames) }

func (t TargetType) String() string { return enumName(targetTypeNames, uint8(t)) }

// MarshalText implements encoding.TextMarshaler.
func (t TargetType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TargetType) UnmarshalText(text []byte) error {
	v, err := parseEnum(targetTypeNames, text)
	*t = TargetType(v)
	return err
}

// JSONSchema describes the type for the schema command.
func (TargetType) JSONSchema() *jsonschema.Schema { return enumSchema(targetTypeNames) }

func (l Location) String() string { return enumName(locationNames, uint8(l)) }

// MarshalText implements encoding.TextMarshaler.
func (l Location) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Location) UnmarshalText(text []byte) error {
	v, err := parseEnum(locationNames, text)
	*l = Location(v)
	return err
}

// JSONSchema describes the type for the schema command.
func (Location) JSONSchema() *jsonschema.Schema { return enumSchema(locationNames) }

func (c CallingConvention) String() string { return enumName(callingConventionNames, uint8(c)) }

// MarshalText implements encoding.TextMarshaler.
func (c CallingConvention) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CallingConvention) UnmarshalText(text []byte) error {
	v, err := parseEnum(callingConventionNames, text)
	*c = CallingConvention(v)
	return err
}

// JSONSchema describes the type for the schema command.
func (CallingConvention) JSONSchema() *jsonschema.Schema { return enumSchema(callingConventionNames) }
