// Package symbols provides address keyed symbol management with a name index.
package symbols

import (
	"slices"
	"sort"
)

// Manager provides generic symbol tracking by address and name.
// T is the type of symbol being managed.
type Manager[T any] struct {
	items map[uint64]T
	names map[string]uint64

	sorted []uint64 // cached sorted addresses, nil if outdated
}

// New creates a new symbol manager.
func New[T any]() *Manager[T] {
	return &Manager[T]{
		items: make(map[uint64]T),
		names: make(map[string]uint64),
	}
}

// Get returns the item at the given address.
func (m *Manager[T]) Get(address uint64) (T, bool) {
	item, ok := m.items[address]
	return item, ok
}

// Set sets the item at the given address and indexes it by the given name.
// An empty name is not indexed.
func (m *Manager[T]) Set(address uint64, name string, item T) {
	if _, ok := m.items[address]; !ok {
		m.sorted = nil
	}
	m.items[address] = item
	if name != "" {
		m.names[name] = address
	}
}

// AddName indexes an additional name for an existing address.
func (m *Manager[T]) AddName(address uint64, name string) {
	if _, ok := m.items[address]; ok && name != "" {
		m.names[name] = address
	}
}

// Has returns whether an item exists at the given address.
func (m *Manager[T]) Has(address uint64) bool {
	_, ok := m.items[address]
	return ok
}

// ByName returns the item that is indexed by the given name.
func (m *Manager[T]) ByName(name string) (T, bool) {
	address, ok := m.names[name]
	if !ok {
		var empty T
		return empty, false
	}
	return m.Get(address)
}

// Len returns the number of items in the manager.
func (m *Manager[T]) Len() int {
	return len(m.items)
}

// Sorted returns all items sorted by their address.
func (m *Manager[T]) Sorted() []T {
	addresses := m.addresses()
	items := make([]T, 0, len(addresses))
	for _, address := range addresses {
		items = append(items, m.items[address])
	}
	return items
}

// Floor returns the item with the highest address that is lower or equal to
// the given address.
func (m *Manager[T]) Floor(address uint64) (T, uint64, bool) {
	addresses := m.addresses()
	i := sort.Search(len(addresses), func(i int) bool {
		return addresses[i] > address
	})
	if i == 0 {
		var empty T
		return empty, 0, false
	}
	found := addresses[i-1]
	return m.items[found], found, true
}

func (m *Manager[T]) addresses() []uint64 {
	if m.sorted != nil {
		return m.sorted
	}
	m.sorted = make([]uint64, 0, len(m.items))
	for address := range m.items {
		m.sorted = append(m.sorted, address)
	}
	slices.Sort(m.sorted)
	return m.sorted
}
