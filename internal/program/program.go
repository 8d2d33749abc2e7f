// Package program represents the recovered control flow graph of a binary.
package program

import (
	"fmt"
	"sort"
	"strings"
)

// Module is the root of a recovered binary.
type Module struct {
	Name        string `json:"name"`
	AddressSize int    `json:"address_size"`

	Functions         []*Function         `json:"functions"`
	Segments          []*Segment          `json:"segments"`
	ExternalFunctions []*ExternalFunction `json:"external_functions"`
	ExternalVariables []*ExternalVariable `json:"external_variables"`
}

// New creates a new empty module.
func New(name string, addressSize int) *Module {
	return &Module{
		Name:        name,
		AddressSize: addressSize,
	}
}

// AddFunction appends a function to the module.
func (m *Module) AddFunction(fn *Function) {
	m.Functions = append(m.Functions, fn)
}

// FunctionAt returns the function with the given entry address.
func (m *Module) FunctionAt(address uint64) (*Function, bool) {
	for _, fn := range m.Functions {
		if fn.Address == address {
			return fn, true
		}
	}
	return nil, false
}

// Entrypoints returns all functions that are flagged as entrypoint.
func (m *Module) Entrypoints() []*Function {
	var entries []*Function
	for _, fn := range m.Functions {
		if fn.IsEntrypoint {
			entries = append(entries, fn)
		}
	}
	return entries
}

// SortExternals orders the external functions and variables by name.
func (m *Module) SortExternals() {
	sort.Slice(m.ExternalFunctions, func(i, j int) bool {
		return m.ExternalFunctions[i].Name < m.ExternalFunctions[j].Name
	})
	sort.Slice(m.ExternalVariables, func(i, j int) bool {
		return m.ExternalVariables[i].Name < m.ExternalVariables[j].Name
	})
}

// Function is a recovered function.
type Function struct {
	Address      uint64   `json:"address"`
	Name         string   `json:"name,omitempty"`
	IsEntrypoint bool     `json:"is_entrypoint,omitempty"`
	Blocks       []*Block `json:"blocks"`
}

// Block is a basic block of a function.
type Block struct {
	Address      uint64         `json:"address"`
	Instructions []*Instruction `json:"instructions"`
	Successors   []uint64       `json:"successors,omitempty"`
}

// End returns the first address after the last instruction of the block.
func (b *Block) End() uint64 {
	if len(b.Instructions) == 0 {
		return b.Address
	}
	last := b.Instructions[len(b.Instructions)-1]
	return last.Address + uint64(last.Length())
}

// Instruction is a single machine instruction with its references.
type Instruction struct {
	Address          uint64            `json:"address"`
	Bytes            []byte            `json:"bytes"`
	LocalNoReturn    bool              `json:"local_noreturn,omitempty"`
	ExternalCallName string            `json:"external_call_name,omitempty"`
	References       []*CrossReference `json:"references,omitempty"`
	JumpTable        *JumpTable        `json:"jump_table,omitempty"`
}

// Length returns the size of the instruction in bytes.
func (i *Instruction) Length() int {
	return len(i.Bytes)
}

// AddReference adds the reference unless an equal reference already exists.
// It returns the reference that is stored in the instruction.
func (i *Instruction) AddReference(ref *CrossReference) *CrossReference {
	for _, existing := range i.References {
		if existing.Target == ref.Target && existing.OperandType == ref.OperandType {
			return existing
		}
	}
	i.References = append(i.References, ref)
	return ref
}

// CrossReference is a reference from an instruction operand to an address.
type CrossReference struct {
	Target      uint64      `json:"target"`
	OperandType OperandType `json:"operand_type"`
	TargetType  TargetType  `json:"target_type"`
	Location    Location    `json:"location"`
	Name        string      `json:"name,omitempty"`
}

// JumpTable contains the resolved targets of an indirect jump.
type JumpTable struct {
	BaseAddress uint64   `json:"base_address"`
	Offset      int64    `json:"offset"`
	Targets     []uint64 `json:"targets"`
}

// ExternalFunction is a function imported from another module.
type ExternalFunction struct {
	Name              string            `json:"name"`
	Address           uint64            `json:"address"`
	ArgumentCount     int               `json:"argument_count"`
	CallingConvention CallingConvention `json:"calling_convention"`
	HasReturn         bool              `json:"has_return"`
	NoReturn          bool              `json:"no_return"`
	IsWeak            bool              `json:"is_weak"`
	Signature         string            `json:"signature,omitempty"`
}

// ExternalVariable is a variable imported from another module.
type ExternalVariable struct {
	Name    string `json:"name"`
	Address uint64 `json:"address"`
	Size    int    `json:"size"`
	IsWeak  bool   `json:"is_weak"`
}

// Segment is a loaded section of the binary.
type Segment struct {
	Name       string           `json:"name"`
	Address    uint64           `json:"address"`
	Data       []byte           `json:"data"`
	ReadOnly   bool             `json:"read_only"`
	IsExternal bool             `json:"is_external"`
	Variables  []*Variable      `json:"variables,omitempty"`
	References []*DataReference `json:"references,omitempty"`
}

// Variable is a named address inside of a segment.
type Variable struct {
	Address uint64 `json:"address"`
	Name    string `json:"name"`
}

// DataReference is an address stored in segment data.
type DataReference struct {
	Address      uint64 `json:"address"`
	Width        int    `json:"width"`
	Target       uint64 `json:"target"`
	TargetName   string `json:"target_name,omitempty"`
	TargetIsCode bool   `json:"target_is_code"`
}

// HexBytes returns the instruction bytes as space separated hex string.
func (i *Instruction) HexBytes() string {
	var buf strings.Builder
	for j, b := range i.Bytes {
		if j > 0 {
			buf.WriteByte(' ')
		}
		fmt.Fprintf(&buf, "%02X", b)
	}
	return buf.String()
}
