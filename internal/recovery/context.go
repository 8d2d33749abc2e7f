// Package recovery holds the mutable state of one control flow recovery run.
package recovery

import (
	"sort"

	"github.com/retroenv/retrocfg/internal/provider"
	"github.com/retroenv/retrogolib/set"
)

// Context tracks the function discovery worklist and the referenced external
// symbols. It is not safe for concurrent use.
type Context struct {
	recovered set.Set[uint64] // functions that have been fully processed
	rejected  set.Set[uint64] // addresses that can not be recovered
	queued    set.Set[uint64] // addresses that were ever added to pending
	pending   []uint64

	externals map[string]provider.Symbol // canonical name to referencing symbol
}

// New returns an empty recovery context.
func New() *Context {
	return &Context{
		recovered: set.New[uint64](),
		rejected:  set.New[uint64](),
		queued:    set.New[uint64](),
		externals: make(map[string]provider.Symbol),
	}
}

// Queue adds the address to the pending worklist unless it was queued,
// recovered or rejected before. It returns whether the address was added.
func (c *Context) Queue(address uint64) bool {
	if c.queued.Contains(address) || c.recovered.Contains(address) || c.rejected.Contains(address) {
		return false
	}
	c.queued.Add(address)
	c.pending = append(c.pending, address)
	return true
}

// Next pops the oldest pending address.
func (c *Context) Next() (uint64, bool) {
	if len(c.pending) == 0 {
		return 0, false
	}
	address := c.pending[0]
	c.pending = c.pending[1:]
	return address, true
}

// Pending returns the number of addresses waiting to be processed.
func (c *Context) Pending() int {
	return len(c.pending)
}

// MarkRecovered flags the address as processed.
func (c *Context) MarkRecovered(address uint64) {
	c.recovered.Add(address)
}

// IsRecovered returns whether the address has been processed.
func (c *Context) IsRecovered(address uint64) bool {
	return c.recovered.Contains(address)
}

// Reject flags the address as not recoverable.
func (c *Context) Reject(address uint64) {
	c.rejected.Add(address)
}

// IsRejected returns whether the address has been rejected.
func (c *Context) IsRejected(address uint64) bool {
	return c.rejected.Contains(address)
}

// RecoveredCount returns the number of processed functions.
func (c *Context) RecoveredCount() int {
	return len(c.recovered)
}

// AddExternal records a referenced external symbol under its canonical name.
// The first symbol recorded for a name is kept.
func (c *Context) AddExternal(name string, sym provider.Symbol) {
	if _, ok := c.externals[name]; ok {
		return
	}
	c.externals[name] = sym
}

// ExternalNames returns all recorded external names in sorted order.
func (c *Context) ExternalNames() []string {
	names := make([]string, 0, len(c.externals))
	for name := range c.externals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// External returns the symbol recorded for the canonical name.
func (c *Context) External(name string) (provider.Symbol, bool) {
	sym, ok := c.externals[name]
	return sym, ok
}
