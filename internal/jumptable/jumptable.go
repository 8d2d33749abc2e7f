// Package jumptable reconstructs the target tables of indirect jumps from the
// lifted instruction data flow.
package jumptable

import (
	"encoding/binary"

	"github.com/retroenv/retrocfg/internal/il"
	"github.com/retroenv/retrocfg/internal/program"
	"github.com/retroenv/retrocfg/internal/provider"
	"github.com/retroenv/retrogolib/log"
)

// MaxBackwardScan is the number of medium-level instructions that are searched
// backwards from an indirect jump for the table load.
const MaxBackwardScan = 16

// maxEntries limits the enumeration of index ranges.
const maxEntries = 4096

// Resolver detects jump tables of indirect jumps.
type Resolver struct {
	logger *log.Logger
	prov   provider.Provider

	addressSize int
	mask        uint64
}

// location of a table in memory and the register that indexes it.
type location struct {
	base   uint64
	offset int64
	index  string
	scale  uint64
	at     uint64 // address to query the index register value at
}

// New returns a new jump table resolver.
func New(logger *log.Logger, prov provider.Provider) *Resolver {
	size := prov.AddressSize()
	return &Resolver{
		logger:      logger,
		prov:        prov,
		addressSize: size,
		mask:        AddressMask(size),
	}
}

// AddressMask returns the mask of all valid bits of an address of the given
// size in bytes.
func AddressMask(addressSize int) uint64 {
	if addressSize <= 0 || addressSize >= 8 {
		return ^uint64(0)
	}
	return ^uint64(0) >> (64 - 8*uint(addressSize))
}

// IsCandidate returns whether the instruction is an indirect jump that could
// use a jump table. Jumps to constants and through constant memory slots are
// direct or thunks.
func IsCandidate(ins il.Instruction) bool {
	if ins.Kind != il.KindJump && ins.Kind != il.KindJumpTo {
		return false
	}
	dest := ins.Dest
	if dest == nil || dest.IsConstant() {
		return false
	}
	if dest.Op == il.OpLoad && dest.Left().IsConstant() {
		return false
	}
	return true
}

// Resolve returns the jump table used by the indirect jump instruction.
func (r *Resolver) Resolve(fn *provider.Function, ins il.Instruction) (*program.JumpTable, bool) {
	if !IsCandidate(ins) {
		return nil, false
	}

	// targets that the provider already knows for the jump destination
	var successors []uint64
	if ins.Dest.Op == il.OpReg {
		value := r.prov.RegisterValueAt(fn, ins.Address, ins.Dest.Reg)
		if value.Type == provider.LookupTableValue {
			successors = value.Targets
		}
	}

	loc, ok := r.searchDisplacement(ins)
	if !ok {
		loc, ok = r.searchMedium(fn, ins)
	}
	if !ok {
		r.logger.Debug("No jump table found for indirect jump",
			log.Hex("address", ins.Address),
			log.String("destination", ins.Dest.String()))
		return nil, false
	}

	table := &program.JumpTable{
		BaseAddress: (loc.base + uint64(loc.offset)) & r.mask,
		Offset:      loc.offset,
	}

	targets, ok := r.enumerate(fn, loc, table.BaseAddress)
	if !ok {
		targets = successors
	}
	if len(targets) == 0 {
		r.logger.Debug("Jump table index range not resolvable",
			log.Hex("address", ins.Address),
			log.String("index", loc.index))
		return nil, false
	}

	for _, target := range targets {
		table.Targets = append(table.Targets, target&r.mask)
	}

	r.logger.Debug("Jump table found",
		log.Hex("address", ins.Address),
		log.Hex("base", table.BaseAddress),
		log.Int("offset", int(table.Offset)),
		log.Int("entries", len(table.Targets)))
	return table, true
}

// searchDisplacement handles a jump destination of the form
// load(base + index*scale).
func (r *Resolver) searchDisplacement(ins il.Instruction) (location, bool) {
	if ins.Dest.Op != il.OpLoad {
		return location{}, false
	}
	base, ok := searchBase(ins.Dest, 0)
	if !ok {
		return location{}, false
	}

	loc := location{
		base: base,
		at:   ins.Address,
	}
	loc.index, loc.scale = searchIndex(ins.Dest)
	return loc, true
}

// searchMedium walks backwards from a jump through a register to the
// assignment that loads the jump destination from memory. The register is
// followed through copies and through arithmetic on itself, assignments to
// other registers are skipped.
func (r *Resolver) searchMedium(fn *provider.Function, ins il.Instruction) (location, bool) {
	idx, ok := fn.MediumIndex(ins.Address)
	if !ok {
		return location{}, false
	}

	if ins.Dest.Op == il.OpLoad {
		// the base register of the memory operand holds a known constant
		if load := unwrapLoad(fn.Medium[idx].Src); load != nil {
			return r.mediumLocation(ins, fn.Medium[idx], load)
		}
		return location{}, false
	}
	if ins.Dest.Op != il.OpReg {
		return location{}, false
	}

	tracked := ins.Dest.Reg
	for i := 0; i < MaxBackwardScan && idx-i >= 0; i++ {
		mi := fn.Medium[idx-i]
		if mi.Op != il.MediumSetVar || mi.Dest != tracked {
			continue
		}

		if load := unwrapLoad(mi.Src); load != nil {
			return r.mediumLocation(ins, mi, load)
		}

		next, ok := trackedSource(mi.Src, tracked)
		if !ok {
			r.logger.Debug("Jump destination is not loaded from memory",
				log.Hex("address", ins.Address),
				log.Hex("assignment", mi.Address),
				log.String("register", tracked))
			return location{}, false
		}
		tracked = next
	}

	r.logger.Debug("Jump table backward scan limit reached",
		log.Hex("address", ins.Address),
		log.Int("limit", MaxBackwardScan))
	return location{}, false
}

func (r *Resolver) mediumLocation(ins il.Instruction, mi il.MediumInstruction, load *il.Expr) (location, bool) {
	base, ok := searchMediumConstant(load, true, false, 0)
	if !ok {
		r.logger.Debug("Jump destination load has no constant base",
			log.Hex("address", ins.Address),
			log.Hex("assignment", mi.Address))
		return location{}, false
	}
	offset, _ := searchMediumConstant(load, false, false, 0)

	loc := location{
		base:   base,
		offset: int64(offset),
		at:     mi.Address,
	}
	loc.index, loc.scale = searchIndex(load)
	return loc, true
}

// enumerate reads all table entries for the possible index register values.
func (r *Resolver) enumerate(fn *provider.Function, loc location, base uint64) ([]uint64, bool) {
	if loc.index == "" {
		return nil, false
	}

	value := r.prov.RegisterValueAt(fn, loc.at, loc.index)
	var indexes []uint64
	switch value.Type {
	case provider.LookupTableValue:
		return value.Targets, true

	case provider.ConstantValue:
		indexes = []uint64{value.Value}

	case provider.RangeValue:
		step := value.Step
		if step == 0 {
			step = 1
		}
		if value.End < value.Start {
			return nil, false
		}
		count := (value.End-value.Start)/step + 1
		if count > maxEntries {
			return nil, false
		}
		for i := range count {
			indexes = append(indexes, value.Start+i*step)
		}

	default:
		return nil, false
	}

	scale := loc.scale
	if scale == 0 {
		scale = uint64(r.addressSize)
	}
	width := entryWidth(scale, r.addressSize)

	targets := make([]uint64, 0, len(indexes))
	for _, index := range indexes {
		address := (base + index*scale) & r.mask
		data, err := r.prov.ReadBytes(address, width)
		if err != nil {
			r.logger.Debug("Reading jump table entry failed",
				log.Hex("address", address),
				log.Err(err))
			break
		}

		var target uint64
		if width < r.addressSize {
			entry := int64(int32(binary.LittleEndian.Uint32(data)))
			target = base + uint64(entry)
		} else {
			target = readWord(data)
		}
		targets = append(targets, target)
	}
	return targets, len(targets) > 0
}

// entryWidth clamps the table stride to the range [4, addressSize].
func entryWidth(scale uint64, addressSize int) int {
	width := int(min(scale, 8))
	width = max(width, 4)
	return min(width, addressSize)
}

// readWord decodes a little endian value of up to 8 bytes.
func readWord(data []byte) uint64 {
	var value uint64
	for i := len(data) - 1; i >= 0; i-- {
		value = value<<8 | uint64(data[i])
	}
	return value
}
