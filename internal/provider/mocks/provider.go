// Package mocks provides an in-memory implementation of provider.Provider for testing.
package mocks

import (
	"fmt"
	"sort"

	"github.com/retroenv/retrocfg/internal/provider"
)

// Provider is a configurable fake analysis provider. All addresses inside of
// the Memory window are valid.
type Provider struct {
	Size int

	Base   uint64
	Memory []byte

	Lengths   map[uint64]int
	Functions map[uint64]*provider.Function
	SymbolSet []provider.Symbol
	Segments  []provider.Section

	// Values maps function start, instruction address and register name to a value.
	Values map[ValueKey]provider.RegisterValue
}

// ValueKey identifies a register value query.
type ValueKey struct {
	Function uint64
	Address  uint64
	Register string
}

// New returns a fake provider with memorySize zeroed bytes mapped at base.
func New(addressSize int, base uint64, memorySize int) *Provider {
	return &Provider{
		Size:      addressSize,
		Base:      base,
		Memory:    make([]byte, memorySize),
		Lengths:   make(map[uint64]int),
		Functions: make(map[uint64]*provider.Function),
		Values:    make(map[ValueKey]provider.RegisterValue),
	}
}

// AddFunction registers the function and the lengths of all its lifted instructions.
func (p *Provider) AddFunction(fn *provider.Function) {
	p.Functions[fn.Start] = fn
	for _, block := range fn.Blocks {
		for _, ins := range block.Instructions {
			if _, ok := p.Lengths[ins.Address]; !ok {
				p.Lengths[ins.Address] = ins.Length
			}
		}
	}
}

// AddSymbol registers a symbol.
func (p *Provider) AddSymbol(sym provider.Symbol) {
	p.SymbolSet = append(p.SymbolSet, sym)
	sort.SliceStable(p.SymbolSet, func(i, j int) bool {
		return p.SymbolSet[i].Address < p.SymbolSet[j].Address
	})
}

// Write copies data into memory at the address.
func (p *Provider) Write(address uint64, data []byte) {
	copy(p.Memory[address-p.Base:], data)
}

// SetValue sets the result of a register value query.
func (p *Provider) SetValue(function, address uint64, reg string, value provider.RegisterValue) {
	p.Values[ValueKey{Function: function, Address: address, Register: reg}] = value
}

func (p *Provider) AddressSize() int {
	return p.Size
}

func (p *Provider) SymbolByName(name string) (provider.Symbol, bool) {
	for _, sym := range p.SymbolSet {
		if sym.Name == name {
			return sym, true
		}
	}
	return provider.Symbol{}, false
}

func (p *Provider) SymbolAt(address uint64) (provider.Symbol, bool) {
	for _, sym := range p.SymbolSet {
		if sym.Address == address {
			return sym, true
		}
	}
	return provider.Symbol{}, false
}

func (p *Provider) Symbols() []provider.Symbol {
	return p.SymbolSet
}

func (p *Provider) FunctionAt(address uint64) (*provider.Function, bool) {
	fn, ok := p.Functions[address]
	return fn, ok
}

func (p *Provider) FunctionContaining(address uint64) (*provider.Function, bool) {
	for _, fn := range p.Functions {
		for _, block := range fn.Blocks {
			if address >= block.Start && address < block.End {
				return fn, true
			}
		}
	}
	return nil, false
}

func (p *Provider) ReadBytes(address uint64, n int) ([]byte, error) {
	if address < p.Base || address+uint64(n) > p.Base+uint64(len(p.Memory)) {
		return nil, fmt.Errorf("address 0x%x out of range", address)
	}
	start := address - p.Base
	data := make([]byte, n)
	copy(data, p.Memory[start:start+uint64(n)])
	return data, nil
}

func (p *Provider) InstructionLength(address uint64) int {
	return p.Lengths[address]
}

func (p *Provider) IsValidAddress(address uint64) bool {
	return address >= p.Base && address < p.Base+uint64(len(p.Memory))
}

func (p *Provider) Sections() []provider.Section {
	return p.Segments
}

func (p *Provider) RegisterValueAt(fn *provider.Function, address uint64, reg string) provider.RegisterValue {
	var start uint64
	if fn != nil {
		start = fn.Start
	}
	return p.Values[ValueKey{Function: start, Address: address, Register: reg}]
}
