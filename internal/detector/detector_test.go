package detector

import (
	"debug/elf"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/retroenv/retrocfg/internal/options"
	"github.com/retroenv/retrocfg/internal/provider/x86elf/elftest"
	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

func TestDetect(t *testing.T) {
	logger := log.NewTestLogger(t)
	d := New(logger)

	sample := writeFile(t, "sample", elftest.Sample().Bytes())
	freebsd := elftest.Sample()
	freebsd.OSABI = elf.ELFOSABI_FREEBSD
	freebsdFile := writeFile(t, "freebsd", freebsd.Bytes())

	tests := []struct {
		name      string
		input     string
		osOpt     string
		want      Target
		wantError bool
	}{
		{
			name:  "detect linux from sysv abi",
			input: sample,
			want:  Target{OS: "linux", AddressSize: 8},
		},
		{
			name:  "detect freebsd",
			input: freebsdFile,
			want:  Target{OS: "freebsd", AddressSize: 8},
		},
		{
			name:  "explicit os option",
			input: sample,
			osOpt: "Solaris",
			want:  Target{OS: "solaris", AddressSize: 8},
		},
		{
			name:      "not an elf file",
			input:     writeFile(t, "text", []byte("not a binary")),
			wantError: true,
		},
		{
			name:      "missing file",
			input:     filepath.Join(t.TempDir(), "missing"),
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := options.Program{
				Parameters: options.Parameters{Input: tt.input, OS: tt.osOpt},
			}

			got, err := d.Detect(opts)
			if tt.wantError {
				assert.True(t, errors.Is(err, ErrUnsupported))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectFromHeader(t *testing.T) {
	tests := []struct {
		name      string
		header    elf.FileHeader
		want      Target
		wantError bool
	}{
		{
			name:   "x86-64",
			header: elf.FileHeader{Class: elf.ELFCLASS64, Machine: elf.EM_X86_64, OSABI: elf.ELFOSABI_LINUX},
			want:   Target{OS: "linux", AddressSize: 8},
		},
		{
			name:   "x86",
			header: elf.FileHeader{Class: elf.ELFCLASS32, Machine: elf.EM_386, OSABI: elf.ELFOSABI_NETBSD},
			want:   Target{OS: "netbsd", AddressSize: 4},
		},
		{
			name:   "unknown abi",
			header: elf.FileHeader{Class: elf.ELFCLASS64, Machine: elf.EM_X86_64, OSABI: elf.ELFOSABI_HURD},
			want:   Target{OS: "hurd", AddressSize: 8},
		},
		{
			name:      "arm64",
			header:    elf.FileHeader{Class: elf.ELFCLASS64, Machine: elf.EM_AARCH64},
			wantError: true,
		},
		{
			name:      "mismatched class",
			header:    elf.FileHeader{Class: elf.ELFCLASS32, Machine: elf.EM_X86_64},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := detectFromHeader(tt.header)
			if tt.wantError {
				assert.True(t, errors.Is(err, ErrUnsupported))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	assert.NoError(t, os.WriteFile(path, data, 0600))
	return path
}
