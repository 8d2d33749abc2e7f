package x86elf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"strings"

	"github.com/retroenv/retrocfg/internal/provider"
	"github.com/retroenv/retrogolib/log"
	"golang.org/x/arch/x86/x86asm"
)

// defaultPLTEntrySize is used for PLT sections without an entry size.
const defaultPLTEntrySize = 16

// pltSections contain the import stubs that jump through a GOT slot.
var pltSections = []string{".plt", ".plt.sec", ".plt.got"}

// relocation is a dynamic relocation that references a dynamic symbol.
type relocation struct {
	offset uint64
	typ    uint32
	symbol int // index into the dynamic symbol table, 0 for none
}

// loadSymbols adds all defined symbols of the static and dynamic symbol table.
func (f *File) loadSymbols(ef *elf.File) {
	static, err := ef.Symbols()
	if err != nil {
		f.logger.Debug("No static symbols", log.Err(err))
	}
	dynamic, err := ef.DynamicSymbols()
	if err != nil {
		f.logger.Debug("No dynamic symbols", log.Err(err))
	}

	for _, syms := range [][]elf.Symbol{static, dynamic} {
		for _, sym := range syms {
			if sym.Name == "" || sym.Section == elf.SHN_UNDEF || sym.Value == 0 {
				continue
			}

			var kind provider.SymbolKind
			switch elf.ST_TYPE(sym.Info) {
			case elf.STT_FUNC, elf.STT_GNU_IFUNC:
				kind = provider.FunctionSymbol
			case elf.STT_OBJECT, elf.STT_COMMON, elf.STT_NOTYPE:
				kind = provider.DataSymbol
			default:
				continue
			}

			bind := elf.ST_BIND(sym.Info)
			s := provider.Symbol{
				Name:    sym.Name,
				Address: sym.Value,
				Size:    sym.Size,
				Kind:    kind,
				Binding: provider.Defined,
				Exported: (bind == elf.STB_GLOBAL || bind == elf.STB_WEAK) &&
					elf.ST_VISIBILITY(sym.Other) == elf.STV_DEFAULT,
				Weak: bind == elf.STB_WEAK,
			}
			f.addSymbol(s)

			if kind == provider.FunctionSymbol && f.isExecutable(s.Address) {
				f.entries.Add(s.Address)
			}
		}
	}
}

// addSymbol adds the symbol, merging it with an existing defined symbol at the
// same address. Imported symbols replace defined ones.
func (f *File) addSymbol(sym provider.Symbol) {
	existing, ok := f.symbols.Get(sym.Address)
	if !ok || sym.IsImported() {
		f.symbols.Set(sym.Address, sym.Name, sym)
		return
	}
	if existing.IsImported() {
		f.symbols.AddName(sym.Address, sym.Name)
		return
	}

	merged := existing
	merged.Exported = existing.Exported || sym.Exported
	if existing.Kind != provider.FunctionSymbol && sym.Kind == provider.FunctionSymbol {
		merged.Name = sym.Name
		merged.Kind = sym.Kind
	}
	if merged.Size == 0 {
		merged.Size = sym.Size
	}
	f.symbols.Set(sym.Address, merged.Name, merged)
	f.symbols.AddName(sym.Address, sym.Name)
}

// loadImports adds imported symbols for all PLT stubs, GOT slots and copied
// variables that are resolved by the dynamic loader.
func (f *File) loadImports(ef *elf.File) {
	dynamic, err := ef.DynamicSymbols()
	if err != nil || len(dynamic) == 0 {
		return
	}

	slots := make(map[uint64]elf.Symbol)
	for _, rel := range f.relocations(ef) {
		if rel.symbol <= 0 || rel.symbol > len(dynamic) {
			continue
		}
		sym := dynamic[rel.symbol-1] // symbol 0 is not returned by DynamicSymbols
		if sym.Name == "" {
			continue
		}

		switch f.relocationKind(ef.Machine, rel.typ) {
		case jumpSlotRelocation:
			slots[rel.offset] = sym
			f.addImport(sym, rel.offset, provider.FunctionSymbol, uint64(f.addressSize))

		case globalDataRelocation:
			if sym.Section != elf.SHN_UNDEF {
				continue
			}
			slots[rel.offset] = sym
			f.addImport(sym, rel.offset, importKind(sym), importSize(sym, f.addressSize))

		case copyRelocation:
			f.addImport(sym, rel.offset, provider.DataSymbol, sym.Size)

		default:
		}
	}

	f.loadStubs(ef, slots)
}

func (f *File) addImport(sym elf.Symbol, address uint64, kind provider.SymbolKind, size uint64) {
	f.addSymbol(provider.Symbol{
		Name:    sym.Name,
		Address: address,
		Size:    size,
		Kind:    kind,
		Binding: provider.Imported,
		Weak:    elf.ST_BIND(sym.Info) == elf.STB_WEAK,
	})
	f.stubs.Add(address)
}

// loadStubs decodes the PLT sections and adds an imported function symbol for
// every stub that jumps through a known import slot.
func (f *File) loadStubs(ef *elf.File, slots map[uint64]elf.Symbol) {
	gotBase := f.sectionStart(ef, ".got.plt")
	if gotBase == 0 {
		gotBase = f.sectionStart(ef, ".got")
	}

	for _, name := range pltSections {
		sect := ef.Section(name)
		if sect == nil || sect.Type == elf.SHT_NOBITS {
			continue
		}
		data, err := sect.Data()
		if err != nil {
			continue
		}
		entrySize := sect.Entsize
		if entrySize == 0 {
			entrySize = defaultPLTEntrySize
		}

		for offset := 0; offset < len(data); {
			inst, err := x86asm.Decode(data[offset:], f.mode)
			if err != nil || inst.Len == 0 {
				offset++
				continue
			}
			address := sect.Addr + uint64(offset)
			offset += inst.Len

			slot, ok := f.stubSlot(inst, address, gotBase)
			if !ok {
				continue
			}
			sym, ok := slots[slot]
			if !ok {
				continue
			}

			stub := sect.Addr + (address-sect.Addr)/entrySize*entrySize
			if _, exists := f.symbols.Get(stub); exists && f.stubs.Contains(stub) {
				continue
			}
			f.addImport(sym, stub, provider.FunctionSymbol, entrySize)
		}
	}
}

// stubSlot returns the import slot that an indirect jump of a stub uses.
func (f *File) stubSlot(inst x86asm.Inst, address, gotBase uint64) (uint64, bool) {
	if inst.Op != x86asm.JMP {
		return 0, false
	}
	mem, ok := inst.Args[0].(x86asm.Mem)
	if !ok || mem.Index != 0 {
		return 0, false
	}

	switch {
	case mem.Base == x86asm.RIP:
		return address + uint64(inst.Len) + uint64(mem.Disp), true
	case mem.Base == 0:
		return uint64(uint32(mem.Disp)), true
	case mem.Base == x86asm.EBX && gotBase != 0:
		return uint64(uint32(gotBase + uint64(mem.Disp))), true
	default:
		return 0, false
	}
}

func (f *File) sectionStart(ef *elf.File, name string) uint64 {
	if sect := ef.Section(name); sect != nil {
		return sect.Addr
	}
	return 0
}

type relocationKind int

const (
	otherRelocation relocationKind = iota
	jumpSlotRelocation
	globalDataRelocation
	copyRelocation
)

func (f *File) relocationKind(machine elf.Machine, typ uint32) relocationKind {
	if machine == elf.EM_X86_64 {
		switch elf.R_X86_64(typ) {
		case elf.R_X86_64_JMP_SLOT:
			return jumpSlotRelocation
		case elf.R_X86_64_GLOB_DAT:
			return globalDataRelocation
		case elf.R_X86_64_COPY:
			return copyRelocation
		default:
			return otherRelocation
		}
	}

	switch elf.R_386(typ) {
	case elf.R_386_JMP_SLOT:
		return jumpSlotRelocation
	case elf.R_386_GLOB_DAT:
		return globalDataRelocation
	case elf.R_386_COPY:
		return copyRelocation
	default:
		return otherRelocation
	}
}

// relocations returns the entries of all relocation sections that reference
// the dynamic symbol table.
func (f *File) relocations(ef *elf.File) []*relocation {
	var result []*relocation
	for _, sect := range ef.Sections {
		if sect.Type != elf.SHT_RELA && sect.Type != elf.SHT_REL {
			continue
		}
		if int(sect.Link) >= len(ef.Sections) || ef.Sections[sect.Link].Type != elf.SHT_DYNSYM {
			continue
		}
		data, err := sect.Data()
		if err != nil {
			f.logger.Warn("Reading relocation section failed",
				log.String("name", sect.Name),
				log.Err(err))
			continue
		}

		rels, err := parseRelocations(ef, sect.Type == elf.SHT_RELA, data)
		if err != nil {
			f.logger.Warn("Parsing relocation section failed",
				log.String("name", sect.Name),
				log.Err(err))
		}
		result = append(result, rels...)
	}
	return result
}

func parseRelocations(ef *elf.File, rela bool, data []byte) ([]*relocation, error) {
	reader := bytes.NewReader(data)
	var result []*relocation

	for reader.Len() > 0 {
		var (
			offset, info uint64
			err          error
		)

		switch {
		case ef.Class == elf.ELFCLASS64 && rela:
			var rel elf.Rela64
			err = binary.Read(reader, ef.ByteOrder, &rel)
			offset, info = rel.Off, rel.Info
		case ef.Class == elf.ELFCLASS64:
			var rel elf.Rel64
			err = binary.Read(reader, ef.ByteOrder, &rel)
			offset, info = rel.Off, rel.Info
		case rela:
			var rel elf.Rela32
			err = binary.Read(reader, ef.ByteOrder, &rel)
			offset, info = uint64(rel.Off), uint64(rel.Info)
		default:
			var rel elf.Rel32
			err = binary.Read(reader, ef.ByteOrder, &rel)
			offset, info = uint64(rel.Off), uint64(rel.Info)
		}
		if err != nil {
			return result, err
		}

		r := &relocation{offset: offset}
		if ef.Class == elf.ELFCLASS64 {
			r.typ = elf.R_TYPE64(info)
			r.symbol = int(elf.R_SYM64(info))
		} else {
			r.typ = elf.R_TYPE32(uint32(info))
			r.symbol = int(elf.R_SYM32(uint32(info)))
		}
		result = append(result, r)
	}
	return result, nil
}

func importKind(sym elf.Symbol) provider.SymbolKind {
	if elf.ST_TYPE(sym.Info) == elf.STT_FUNC {
		return provider.FunctionSymbol
	}
	return provider.DataSymbol
}

func importSize(sym elf.Symbol, addressSize int) uint64 {
	if sym.Size != 0 {
		return sym.Size
	}
	return uint64(addressSize)
}

// importName returns the name of an imported symbol without version suffix.
func importName(name string) string {
	if i := strings.IndexByte(name, '@'); i > 0 {
		return name[:i]
	}
	return name
}
