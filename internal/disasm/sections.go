package disasm

import (
	"github.com/retroenv/retrocfg/internal/program"
	"github.com/retroenv/retrocfg/internal/provider"
	"github.com/retroenv/retrogolib/log"
)

const minSectionEntryWidth = 4

// recoverSections converts all provider sections to module segments.
func (dis *Disasm) recoverSections() {
	symbols := dis.prov.Symbols()

	for _, sect := range dis.prov.Sections() {
		dis.logger.Debug("Processing section",
			log.String("name", sect.Name),
			log.Hex("address", sect.Start),
			log.Hex("length", sect.Length))

		segment := &program.Segment{
			Name:       sect.Name,
			Address:    sect.Start,
			ReadOnly:   sect.Permissions&provider.Write == 0,
			IsExternal: sect.External,
		}

		data, err := dis.prov.ReadBytes(sect.Start, int(sect.Length))
		if err != nil {
			dis.logger.Warn("Reading section data failed",
				log.String("name", sect.Name),
				log.Err(err))
		}
		segment.Data = data

		for _, sym := range symbols {
			if sect.Contains(sym.Address) {
				segment.Variables = append(segment.Variables, &program.Variable{
					Address: sym.Address,
					Name:    sym.Name,
				})
			}
		}

		segment.References = dis.sectionReferences(sect, data)
		dis.module.Segments = append(dis.module.Segments, segment)
	}
}

// sectionReferences scans the section data for words that are valid addresses.
func (dis *Disasm) sectionReferences(sect provider.Section, data []byte) []*program.DataReference {
	width := sectionEntryWidth(sect.Align, dis.addressSize)

	var refs []*program.DataReference
	for offset := 0; offset+width <= len(data); offset += width {
		target := readWord(data[offset : offset+width])
		if !dis.prov.IsValidAddress(target) {
			continue
		}

		ref := &program.DataReference{
			Address: sect.Start + uint64(offset),
			Width:   width,
			Target:  target,
		}
		if sym, ok := dis.prov.SymbolAt(target); ok {
			ref.TargetName = sym.Name
		}
		_, ref.TargetIsCode = dis.prov.FunctionAt(target)
		refs = append(refs, ref)
	}
	return refs
}

// sectionEntryWidth clamps the section alignment to [4, addressSize].
func sectionEntryWidth(align uint64, addressSize int) int {
	width := int(min(align, uint64(addressSize)))
	return max(width, min(minSectionEntryWidth, addressSize))
}
