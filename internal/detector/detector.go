// Package detector handles binary format and operating system detection.
package detector

import (
	"debug/elf"
	"errors"
	"fmt"
	"strings"

	"github.com/retroenv/retrocfg/internal/options"
	"github.com/retroenv/retrogolib/log"
)

// ErrUnsupported is returned for inputs that are not x86 or x86-64 ELF files.
var ErrUnsupported = errors.New("unsupported binary format")

// Target describes the detected properties of a binary.
type Target struct {
	OS          string // name of the default definitions file without extension
	AddressSize int    // pointer width in bytes
}

var osNames = map[elf.OSABI]string{
	elf.ELFOSABI_NONE:    "linux",
	elf.ELFOSABI_LINUX:   "linux",
	elf.ELFOSABI_FREEBSD: "freebsd",
	elf.ELFOSABI_NETBSD:  "netbsd",
	elf.ELFOSABI_OPENBSD: "openbsd",
	elf.ELFOSABI_SOLARIS: "solaris",
}

// Detector handles binary detection from the file header and options.
type Detector struct {
	logger *log.Logger
}

// New creates a new binary detector.
func New(logger *log.Logger) *Detector {
	return &Detector{
		logger: logger,
	}
}

// Detect determines the target of the input binary. An operating system
// that is explicitly specified in the options overrides the detected one.
func (d *Detector) Detect(opts options.Program) (Target, error) {
	ef, err := elf.Open(opts.Input)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	defer func() { _ = ef.Close() }()

	target, err := detectFromHeader(ef.FileHeader)
	if err != nil {
		return Target{}, err
	}

	if opts.OS != "" {
		target.OS = strings.ToLower(opts.OS)
	} else {
		d.logger.Debug("Auto-detected operating system",
			log.String("os", target.OS),
			log.String("file", opts.Input))
	}
	return target, nil
}

// detectFromHeader determines the target from the ELF file header.
func detectFromHeader(header elf.FileHeader) (Target, error) {
	var target Target

	switch {
	case header.Machine == elf.EM_X86_64 && header.Class == elf.ELFCLASS64:
		target.AddressSize = 8
	case header.Machine == elf.EM_386 && header.Class == elf.ELFCLASS32:
		target.AddressSize = 4
	default:
		return Target{}, fmt.Errorf("%w: machine %s class %s", ErrUnsupported, header.Machine, header.Class)
	}

	name, ok := osNames[header.OSABI]
	if !ok {
		name = strings.ToLower(strings.TrimPrefix(header.OSABI.String(), "ELFOSABI_"))
	}
	target.OS = name
	return target, nil
}
