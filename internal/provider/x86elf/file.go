// Package x86elf implements the analysis provider for x86 and x86-64 ELF binaries.
// Functions are discovered on demand by recursive descent, decoded with x86asm
// and lifted to the il instruction model.
package x86elf

import (
	"debug/elf"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/retroenv/retrocfg/internal/jumptable"
	"github.com/retroenv/retrocfg/internal/provider"
	"github.com/retroenv/retrocfg/internal/symbols"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrogolib/set"
	"golang.org/x/arch/x86/x86asm"
)

var (
	// ErrUnsupported is returned for binaries that are not x86 ELF files.
	ErrUnsupported = errors.New("unsupported binary")
	// ErrOutOfRange is returned when reading unmapped memory.
	ErrOutOfRange = errors.New("address out of range")
)

var _ provider.Provider = (*File)(nil)

// File is an opened ELF binary.
type File struct {
	logger *log.Logger

	mode        int // decoder mode in bits
	addressSize int
	entry       uint64

	sections []provider.Section
	data     [][]byte // contents of sections, same index

	symbols *symbols.Manager[provider.Symbol]
	entries set.Set[uint64] // known function starts
	stubs   set.Set[uint64] // import stubs and slots

	decoded    map[uint64]x86asm.Inst
	functions  map[uint64]*provider.Function
	building   set.Set[uint64]
	jumpTables *jumptable.Resolver
}

// Open opens and parses the ELF file at the given path.
func Open(logger *log.Logger, path string) (*File, error) {
	ef, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening elf file: %w", ErrUnsupported, err)
	}
	defer func() { _ = ef.Close() }()

	return New(logger, ef)
}

// New creates the provider for a parsed ELF file. All needed data is read
// from the file, it can be closed after New returns.
func New(logger *log.Logger, ef *elf.File) (*File, error) {
	f := &File{
		logger:    logger,
		entry:     ef.Entry,
		symbols:   symbols.New[provider.Symbol](),
		entries:   set.New[uint64](),
		stubs:     set.New[uint64](),
		decoded:   make(map[uint64]x86asm.Inst),
		functions: make(map[uint64]*provider.Function),
		building:  set.New[uint64](),
	}

	switch ef.Machine {
	case elf.EM_X86_64:
		f.mode = 64
	case elf.EM_386:
		f.mode = 32
	default:
		return nil, fmt.Errorf("%w: machine %s", ErrUnsupported, ef.Machine)
	}
	if ef.Class == elf.ELFCLASS64 {
		f.addressSize = 8
	} else {
		f.addressSize = 4
	}

	if err := f.loadSections(ef); err != nil {
		return nil, err
	}
	f.loadSymbols(ef)
	f.loadImports(ef)

	if _, ok := f.symbols.Get(f.entry); !ok && f.isExecutable(f.entry) {
		f.addSymbol(provider.Symbol{
			Name:     "_start",
			Address:  f.entry,
			Kind:     provider.FunctionSymbol,
			Exported: true,
		})
	}
	if f.isExecutable(f.entry) {
		f.entries.Add(f.entry)
	}

	f.jumpTables = jumptable.New(logger, f)

	logger.Debug("Loaded ELF file",
		log.Int("address_size", f.addressSize),
		log.Int("sections", len(f.sections)),
		log.Int("symbols", f.symbols.Len()),
		log.Hex("entry", f.entry))
	return f, nil
}

func (f *File) loadSections(ef *elf.File) error {
	for _, sect := range ef.Sections {
		if sect.Flags&elf.SHF_ALLOC == 0 || sect.Addr == 0 {
			continue
		}
		if sect.Type == elf.SHT_NOBITS && sect.Flags&elf.SHF_TLS != 0 {
			continue
		}

		var data []byte
		if sect.Type == elf.SHT_NOBITS {
			data = make([]byte, sect.Size)
		} else {
			var err error
			data, err = sect.Data()
			if err != nil {
				return fmt.Errorf("reading section '%s': %w", sect.Name, err)
			}
		}

		perms := provider.Read
		if sect.Flags&elf.SHF_WRITE != 0 {
			perms |= provider.Write
		}
		if sect.Flags&elf.SHF_EXECINSTR != 0 {
			perms |= provider.Execute
		}

		f.sections = append(f.sections, provider.Section{
			Name:        sect.Name,
			Start:       sect.Addr,
			Length:      uint64(len(data)),
			Align:       sect.Addralign,
			Permissions: perms,
			External:    sect.Name == ".got" || sect.Name == ".got.plt",
		})
		f.data = append(f.data, data)
	}

	indexes := make([]int, len(f.sections))
	for i := range indexes {
		indexes[i] = i
	}
	sort.SliceStable(indexes, func(i, j int) bool {
		return f.sections[indexes[i]].Start < f.sections[indexes[j]].Start
	})
	sections := make([]provider.Section, len(indexes))
	data := make([][]byte, len(indexes))
	for i, idx := range indexes {
		sections[i] = f.sections[idx]
		data[i] = f.data[idx]
	}
	f.sections, f.data = sections, data
	return nil
}

// AddressSize returns the pointer width in bytes.
func (f *File) AddressSize() int {
	return f.addressSize
}

// Entry returns the entry point of the binary.
func (f *File) Entry() uint64 {
	return f.entry
}

// Sections returns all loaded sections sorted by address.
func (f *File) Sections() []provider.Section {
	return slices.Clone(f.sections)
}

// IsValidAddress returns whether the address is mapped by a loaded section.
func (f *File) IsValidAddress(address uint64) bool {
	_, ok := f.sectionIndex(address)
	return ok
}

// ReadBytes reads n bytes at the address. The range has to be inside of a
// single section.
func (f *File) ReadBytes(address uint64, n int) ([]byte, error) {
	idx, ok := f.sectionIndex(address)
	if !ok || n < 0 {
		return nil, fmt.Errorf("%w: 0x%x", ErrOutOfRange, address)
	}
	offset := address - f.sections[idx].Start
	if offset+uint64(n) > uint64(len(f.data[idx])) {
		return nil, fmt.Errorf("%w: 0x%x+%d", ErrOutOfRange, address, n)
	}
	return slices.Clone(f.data[idx][offset : offset+uint64(n)]), nil
}

// SymbolByName returns the symbol with the given raw name.
func (f *File) SymbolByName(name string) (provider.Symbol, bool) {
	return f.symbols.ByName(name)
}

// SymbolAt returns the symbol starting at the address.
func (f *File) SymbolAt(address uint64) (provider.Symbol, bool) {
	return f.symbols.Get(address)
}

// Symbols returns all symbols sorted by address.
func (f *File) Symbols() []provider.Symbol {
	return f.symbols.Sorted()
}

func (f *File) sectionIndex(address uint64) (int, bool) {
	i := sort.Search(len(f.sections), func(i int) bool {
		return f.sections[i].End() > address
	})
	if i < len(f.sections) && f.sections[i].Contains(address) {
		return i, true
	}
	return 0, false
}

// isExecutable returns whether the address is inside of a code section.
func (f *File) isExecutable(address uint64) bool {
	idx, ok := f.sectionIndex(address)
	return ok && f.sections[idx].Permissions&provider.Execute != 0
}

// codeAt returns the section data starting at the address.
func (f *File) codeAt(address uint64) []byte {
	idx, ok := f.sectionIndex(address)
	if !ok {
		return nil
	}
	return f.data[idx][address-f.sections[idx].Start:]
}
