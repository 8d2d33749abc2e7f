// Package defs loads external function and data definition files that describe
// argument counts, calling conventions and return behavior of library symbols.
package defs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrMalformed is returned for a record that can not be parsed.
	ErrMalformed = errors.New("malformed definition")
	// ErrNotFound is returned when a definitions file does not exist.
	ErrNotFound = errors.New("definitions file not found")
)

// CallingConvention of an external function.
type CallingConvention int

// Calling conventions as used by definition files.
const (
	CallerCleanup CallingConvention = iota
	CalleeCleanup
	FastCall
)

var conventionTokens = map[string]CallingConvention{
	"C": CallerCleanup,
	"E": CalleeCleanup,
	"F": FastCall,
}

func (c CallingConvention) String() string {
	switch c {
	case CallerCleanup:
		return "caller_cleanup"
	case CalleeCleanup:
		return "callee_cleanup"
	case FastCall:
		return "fastcall"
	default:
		return "unknown"
	}
}

const dataPrefix = "DATA:"

// Function is a function record of a definitions file.
type Function struct {
	Name              string
	ArgumentCount     int
	CallingConvention CallingConvention
	NoReturn          bool
	Signature         string
}

// Table holds all loaded definitions. Records loaded later replace earlier
// records of the same name.
type Table struct {
	addressSize int
	functions   map[string]Function
	data        map[string]int
}

// New returns an empty table. addressSize is the pointer width in bytes that
// PTR sized data records resolve to.
func New(addressSize int) *Table {
	return &Table{
		addressSize: addressSize,
		functions:   make(map[string]Function),
		data:        make(map[string]int),
	}
}

// LoadFiles loads all files in order and returns the paths of the files that
// do not exist. Any other error aborts the loading.
func (t *Table) LoadFiles(paths ...string) ([]string, error) {
	var missing []string
	for _, path := range paths {
		err := t.Load(path)
		switch {
		case errors.Is(err, ErrNotFound):
			missing = append(missing, path)
		case err != nil:
			return missing, err
		}
	}
	return missing, nil
}

// Load parses the definitions file at path into the table.
func (t *Table) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("opening definitions file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	return t.Parse(path, f)
}

// Parse reads definitions from the reader. name is used in error messages.
func (t *Table) Parse(name string, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if err := t.parseLine(line); err != nil {
			return fmt.Errorf("%s:%d: %w", name, lineNumber, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading definitions '%s': %w", name, err)
	}
	return nil
}

func (t *Table) parseLine(line string) error {
	fields := strings.Fields(line)

	if strings.HasPrefix(line, dataPrefix) {
		if len(fields) != 3 {
			return fmt.Errorf("%w: data record needs name and size", ErrMalformed)
		}
		size, err := t.parseDataSize(fields[2])
		if err != nil {
			return err
		}
		t.data[fields[1]] = size
		return nil
	}

	if len(fields) < 4 {
		return fmt.Errorf("%w: function record needs name, argument count, convention and return type", ErrMalformed)
	}

	argc, err := strconv.Atoi(fields[1])
	if err != nil || argc < 0 {
		return fmt.Errorf("%w: invalid argument count '%s'", ErrMalformed, fields[1])
	}

	conv, ok := conventionTokens[fields[2]]
	if !ok {
		return fmt.Errorf("%w: unknown calling convention '%s'", ErrMalformed, fields[2])
	}

	var noReturn bool
	switch fields[3] {
	case "Y":
		noReturn = true
	case "N":
	default:
		return fmt.Errorf("%w: unknown return type '%s'", ErrMalformed, fields[3])
	}

	fun := Function{
		Name:              fields[0],
		ArgumentCount:     argc,
		CallingConvention: conv,
		NoReturn:          noReturn,
	}
	if len(fields) > 4 {
		fun.Signature = strings.Join(fields[4:], " ")
	}
	t.functions[fun.Name] = fun
	return nil
}

func (t *Table) parseDataSize(s string) (int, error) {
	if strings.Contains(s, "PTR") {
		return t.addressSize, nil
	}
	size, err := strconv.Atoi(s)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("%w: invalid data size '%s'", ErrMalformed, s)
	}
	return size, nil
}

// Resolve returns the function record for the name.
func (t *Table) Resolve(name string) (Function, bool) {
	fun, ok := t.functions[name]
	return fun, ok
}

// ResolveData returns the size of the data record for the name.
func (t *Table) ResolveData(name string) (int, bool) {
	size, ok := t.data[name]
	return size, ok
}

// Len returns the number of function and data records.
func (t *Table) Len() int {
	return len(t.functions) + len(t.data)
}
