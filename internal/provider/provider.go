// Package provider contains the interface to a binary analysis engine.
// It acts as a bridge between the recovery engine and the engine specific code
// that decodes, lifts and analyzes machine code.
package provider

import (
	"github.com/retroenv/retrocfg/internal/defs"
	"github.com/retroenv/retrocfg/internal/il"
)

// Provider exposes the analysis results of one loaded binary.
type Provider interface {
	// AddressSize returns the pointer width in bytes.
	AddressSize() int

	// SymbolByName returns the symbol with the given raw name.
	SymbolByName(name string) (Symbol, bool)
	// SymbolAt returns the symbol starting at the address.
	SymbolAt(address uint64) (Symbol, bool)
	// Symbols returns all symbols sorted by address.
	Symbols() []Symbol

	// FunctionAt returns the function that starts at the address.
	FunctionAt(address uint64) (*Function, bool)
	// FunctionContaining returns the function whose code contains the address.
	FunctionContaining(address uint64) (*Function, bool)

	// ReadBytes reads n bytes at the address.
	ReadBytes(address uint64, n int) ([]byte, error)
	// InstructionLength returns the length of the instruction at the address
	// or 0 if no instruction can be decoded.
	InstructionLength(address uint64) int
	// IsValidAddress returns whether the address is mapped by the binary.
	IsValidAddress(address uint64) bool

	// Sections returns all loaded sections sorted by address.
	Sections() []Section

	// RegisterValueAt returns the possible values of the register before the
	// instruction at the address executes.
	RegisterValueAt(fn *Function, address uint64, reg string) RegisterValue
}

// SymbolKind is the kind of object a symbol names.
type SymbolKind int

// Symbol kinds.
const (
	FunctionSymbol SymbolKind = iota
	DataSymbol
)

// Binding describes whether a symbol is defined by the binary or imported.
type Binding int

// Symbol bindings.
const (
	Defined Binding = iota
	Imported
)

// Symbol is a named address of the binary.
type Symbol struct {
	Name     string
	Address  uint64
	Size     uint64
	Kind     SymbolKind
	Binding  Binding
	Exported bool
	Weak     bool
}

// IsImported returns whether the symbol is resolved by the dynamic loader.
func (s Symbol) IsImported() bool {
	return s.Binding == Imported
}

// Function is an analyzed function of the binary.
type Function struct {
	Start uint64
	Name  string

	CanReturn         bool
	HasReturnValue    bool
	ParameterCount    int
	CallingConvention defs.CallingConvention
	TypeKnown         bool // the fields above come from type information

	Blocks []*BasicBlock
	Medium []il.MediumInstruction
}

// MediumIndex returns the index into the medium-level instruction list for
// the native instruction address.
func (f *Function) MediumIndex(address uint64) (int, bool) {
	for i, ins := range f.Medium {
		if ins.Address == address {
			return i, true
		}
	}
	return 0, false
}

// BlockAt returns the basic block starting at the address.
func (f *Function) BlockAt(address uint64) (*BasicBlock, bool) {
	for _, block := range f.Blocks {
		if block.Start == address {
			return block, true
		}
	}
	return nil, false
}

// BasicBlock is a straight line sequence of instructions in [Start, End).
type BasicBlock struct {
	Start      uint64
	End        uint64
	Successors []uint64

	// Instructions holds the lifted form ordered by address. An address can
	// have multiple entries when one machine instruction lifts to several.
	Instructions []il.Instruction
}

// Permissions of a section.
type Permissions uint8

// Section permission flags.
const (
	Read Permissions = 1 << iota
	Write
	Execute
)

// Section is a loaded memory region of the binary.
type Section struct {
	Name        string
	Start       uint64
	Length      uint64
	Align       uint64
	Permissions Permissions
	External    bool // holds addresses resolved by the dynamic loader
}

// End returns the first address after the section.
func (s Section) End() uint64 {
	return s.Start + s.Length
}

// Contains returns whether the address is inside of the section.
func (s Section) Contains(address uint64) bool {
	return address >= s.Start && address < s.End()
}

// ValueType is the kind of result of a register value query.
type ValueType int

// Register value types.
const (
	UnknownValue ValueType = iota
	ConstantValue
	RangeValue
	LookupTableValue
)

// RegisterValue describes the possible values of a register.
type RegisterValue struct {
	Type  ValueType
	Value uint64 // ConstantValue

	// RangeValue bounds, End is inclusive.
	Start uint64
	End   uint64
	Step  uint64

	Targets []uint64 // LookupTableValue
}
