// Package elftest builds small 64 bit little endian ELF files in memory for
// tests of the ELF based packages.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

const (
	headerSize  = 64
	sectionSize = 64
	symbolSize  = 24
	relaSize    = 24
	dataAlign   = 16
)

// Section describes a section with contents.
type Section struct {
	Name      string
	Type      elf.SectionType
	Flags     elf.SectionFlag
	Addr      uint64
	Data      []byte
	Size      uint64 // size of SHT_NOBITS sections
	EntrySize uint64
	Align     uint64
}

// Symbol describes a symbol table entry. An empty section name creates an
// undefined symbol.
type Symbol struct {
	Name    string
	Value   uint64
	Size    uint64
	Type    elf.SymType
	Bind    elf.SymBind
	Section string
}

// Relocation describes a dynamic relocation that references the dynamic
// symbol with the 1 based index Symbol.
type Relocation struct {
	Offset uint64
	Type   elf.R_X86_64
	Symbol uint32
}

// File describes the contents of an ELF file.
type File struct {
	Machine elf.Machine
	OSABI   elf.OSABI
	Entry   uint64

	Sections       []Section
	Symbols        []Symbol
	DynamicSymbols []Symbol
	Relocations    []Relocation
}

type section struct {
	header elf.Section64
	name   string
	data   []byte
}

// Bytes returns the encoded ELF file.
func (f *File) Bytes() []byte {
	sections := []*section{{}}
	for _, s := range f.Sections {
		sect := &section{
			name: s.Name,
			data: s.Data,
			header: elf.Section64{
				Type:      uint32(s.Type),
				Flags:     uint64(s.Flags),
				Addr:      s.Addr,
				Size:      uint64(len(s.Data)),
				Addralign: max(s.Align, 1),
				Entsize:   s.EntrySize,
			},
		}
		if s.Type == elf.SHT_NOBITS {
			sect.data = nil
			sect.header.Size = s.Size
		}
		sections = append(sections, sect)
	}

	index := func(name string) uint16 {
		for i, sect := range sections {
			if i > 0 && sect.name == name {
				return uint16(i)
			}
		}
		return uint16(elf.SHN_UNDEF)
	}

	if len(f.Symbols) > 0 {
		sections = appendSymbolTable(sections, f.Symbols, elf.SHT_SYMTAB, ".symtab", ".strtab", index)
	}
	if len(f.DynamicSymbols) > 0 {
		sections = appendSymbolTable(sections, f.DynamicSymbols, elf.SHT_DYNSYM, ".dynsym", ".dynstr", index)
		if len(f.Relocations) > 0 {
			sections = append(sections, relocationSection(f.Relocations, uint32(len(sections)-2)))
		}
	}

	shstrtab := &section{name: ".shstrtab", header: elf.Section64{Type: uint32(elf.SHT_STRTAB), Addralign: 1}}
	sections = append(sections, shstrtab)
	names := newStringTable()
	for _, sect := range sections[1:] {
		sect.header.Name = names.add(sect.name)
	}
	shstrtab.data = names.bytes()
	shstrtab.header.Size = uint64(len(shstrtab.data))

	var body bytes.Buffer
	offset := uint64(headerSize)
	for _, sect := range sections[1:] {
		for offset%dataAlign != 0 {
			body.WriteByte(0)
			offset++
		}
		sect.header.Off = offset
		body.Write(sect.data)
		offset += uint64(len(sect.data))
	}
	for offset%dataAlign != 0 {
		body.WriteByte(0)
		offset++
	}

	header := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(f.Machine),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     f.Entry,
		Shoff:     offset,
		Ehsize:    headerSize,
		Shentsize: sectionSize,
		Shnum:     uint16(len(sections)),
		Shstrndx:  uint16(len(sections) - 1),
	}
	copy(header.Ident[:], elf.ELFMAG)
	header.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	header.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	header.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	header.Ident[elf.EI_OSABI] = byte(f.OSABI)

	var buf bytes.Buffer
	write(&buf, header)
	buf.Write(body.Bytes())
	for _, sect := range sections {
		write(&buf, sect.header)
	}
	return buf.Bytes()
}

func appendSymbolTable(sections []*section, symbols []Symbol, typ elf.SectionType,
	name, strName string, index func(string) uint16) []*section {

	names := newStringTable()
	var data bytes.Buffer
	write(&data, elf.Sym64{})
	for _, sym := range symbols {
		write(&data, elf.Sym64{
			Name:  names.add(sym.Name),
			Info:  elf.ST_INFO(sym.Bind, sym.Type),
			Shndx: index(sym.Section),
			Value: sym.Value,
			Size:  sym.Size,
		})
	}

	strtab := &section{
		name:   strName,
		data:   names.bytes(),
		header: elf.Section64{Type: uint32(elf.SHT_STRTAB), Addralign: 1},
	}
	strtab.header.Size = uint64(len(strtab.data))

	symtab := &section{
		name: name,
		data: data.Bytes(),
		header: elf.Section64{
			Type:      uint32(typ),
			Size:      uint64(data.Len()),
			Link:      uint32(len(sections) + 1),
			Info:      1,
			Addralign: 8,
			Entsize:   symbolSize,
		},
	}
	return append(sections, symtab, strtab)
}

func relocationSection(relocations []Relocation, dynsym uint32) *section {
	var data bytes.Buffer
	for _, rel := range relocations {
		write(&data, elf.Rela64{
			Off:  rel.Offset,
			Info: elf.R_INFO(rel.Symbol, uint32(rel.Type)),
		})
	}
	return &section{
		name: ".rela.plt",
		data: data.Bytes(),
		header: elf.Section64{
			Type:      uint32(elf.SHT_RELA),
			Size:      uint64(data.Len()),
			Link:      dynsym,
			Addralign: 8,
			Entsize:   relaSize,
		},
	}
}

type stringTable struct {
	buf bytes.Buffer
}

func newStringTable() *stringTable {
	t := &stringTable{}
	t.buf.WriteByte(0)
	return t
}

func (t *stringTable) add(s string) uint32 {
	if s == "" {
		return 0
	}
	offset := uint32(t.buf.Len())
	t.buf.WriteString(s)
	t.buf.WriteByte(0)
	return offset
}

func (t *stringTable) bytes() []byte {
	return t.buf.Bytes()
}

func write(buf *bytes.Buffer, data any) {
	// writing fixed size values to a buffer can not fail
	_ = binary.Write(buf, binary.LittleEndian, data)
}
