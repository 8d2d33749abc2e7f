package elftest

import (
	"debug/elf"
	"encoding/binary"
)

// Addresses of the sample binary.
const (
	SampleMain      = 0x401000 // main function
	SampleDispatch  = 0x401005 // block that jumps through the table
	SampleIndexLoad = 0x40100e // load of the table entry
	SampleCaseOne   = 0x401017
	SampleCaseTwo   = 0x40101d
	SampleDefault   = 0x401023 // calls printf
	SampleMainEnd   = 0x40102b
	SamplePrintf    = 0x401210 // PLT stub of printf
	SampleTable     = 0x402000
	SamplePrintfGOT = 0x403018
)

// sampleText is a switch over edi with 4 cases that uses a table of 32 bit
// offsets relative to the table start.
var sampleText = []byte{
	// cmp edi, 3
	0x83, 0xff, 0x03,
	// ja 0x401023
	0x77, 0x1e,
	// mov edi, edi
	0x89, 0xff,
	// lea rdx, [rip+0xff2]
	0x48, 0x8d, 0x15, 0xf2, 0x0f, 0x00, 0x00,
	// movsxd rax, dword [rdx+rdi*4]
	0x48, 0x63, 0x04, 0xba,
	// add rax, rdx
	0x48, 0x01, 0xd0,
	// jmp rax
	0xff, 0xe0,
	// mov eax, 1
	0xb8, 0x01, 0x00, 0x00, 0x00,
	// ret
	0xc3,
	// mov eax, 2
	0xb8, 0x02, 0x00, 0x00, 0x00,
	// ret
	0xc3,
	// call printf
	0xe8, 0xe8, 0x01, 0x00, 0x00,
	// xor eax, eax
	0x31, 0xc0,
	// ret
	0xc3,
}

var samplePLT = []byte{
	// push [rip+0x1e02]
	0xff, 0x35, 0x02, 0x1e, 0x00, 0x00,
	// jmp [rip+0x1e04]
	0xff, 0x25, 0x04, 0x1e, 0x00, 0x00,
	// nop
	0x0f, 0x1f, 0x40, 0x00,
	// jmp [rip+0x1e02]
	0xff, 0x25, 0x02, 0x1e, 0x00, 0x00,
	// push 0
	0x68, 0x00, 0x00, 0x00, 0x00,
	// jmp 0x401200
	0xe9, 0xe0, 0xff, 0xff, 0xff,
}

// Sample returns a dynamically linked x86-64 binary with a main function
// that dispatches through a jump table and calls the imported printf.
func Sample() *File {
	table := make([]byte, 16)
	for i, target := range []uint64{SampleCaseOne, SampleCaseTwo, SampleCaseTwo, SampleCaseOne} {
		binary.LittleEndian.PutUint32(table[i*4:], uint32(target-SampleTable))
	}

	return &File{
		Machine: elf.EM_X86_64,
		OSABI:   elf.ELFOSABI_NONE,
		Entry:   SampleMain,
		Sections: []Section{
			{
				Name:  ".text",
				Type:  elf.SHT_PROGBITS,
				Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR,
				Addr:  SampleMain,
				Data:  sampleText,
				Align: 16,
			},
			{
				Name:      ".plt",
				Type:      elf.SHT_PROGBITS,
				Flags:     elf.SHF_ALLOC | elf.SHF_EXECINSTR,
				Addr:      0x401200,
				Data:      samplePLT,
				EntrySize: 16,
				Align:     16,
			},
			{
				Name:  ".rodata",
				Type:  elf.SHT_PROGBITS,
				Flags: elf.SHF_ALLOC,
				Addr:  SampleTable,
				Data:  table,
				Align: 4,
			},
			{
				Name:  ".got.plt",
				Type:  elf.SHT_PROGBITS,
				Flags: elf.SHF_ALLOC | elf.SHF_WRITE,
				Addr:  0x403000,
				Data:  make([]byte, 0x20),
				Align: 8,
			},
			{
				Name:  ".bss",
				Type:  elf.SHT_NOBITS,
				Flags: elf.SHF_ALLOC | elf.SHF_WRITE,
				Addr:  0x404000,
				Size:  0x10,
				Align: 8,
			},
		},
		Symbols: []Symbol{
			{Name: "main", Value: SampleMain, Size: SampleMainEnd - SampleMain, Type: elf.STT_FUNC, Bind: elf.STB_GLOBAL, Section: ".text"},
			{Name: "jump_table", Value: SampleTable, Size: 16, Type: elf.STT_OBJECT, Bind: elf.STB_LOCAL, Section: ".rodata"},
			{Name: "counter", Value: 0x404000, Size: 8, Type: elf.STT_OBJECT, Bind: elf.STB_GLOBAL, Section: ".bss"},
		},
		DynamicSymbols: []Symbol{
			{Name: "printf", Type: elf.STT_FUNC, Bind: elf.STB_GLOBAL},
		},
		Relocations: []Relocation{
			{Offset: SamplePrintfGOT, Type: elf.R_X86_64_JMP_SLOT, Symbol: 1},
		},
	}
}
