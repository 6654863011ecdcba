// Package pmm implements the bootloader's physical memory manager: a single
// authoritative, sorted, non-overlapping memory map assembled from whatever
// firmware hands us, plus typed, placement-constrained allocation on top of it.
//
// The manager is not safe for concurrent use — the loader is single-threaded
// and cooperative (see the concurrency model in the design notes), so no
// locking is attempted here.
package pmm

import (
	"fmt"

	"github.com/ultraos/hyper/internal/memtype"
)

// PageSize is the hardware page size assumed throughout the loader. Every
// architecture Hyper targets uses a 4 KiB base page.
const PageSize = 4096

// Entry is one contiguous physical range in the memory map.
type Entry struct {
	Base uint64
	Size uint64
	Type memtype.Type
}

// End returns the address one past the last byte of the entry.
func (e Entry) End() uint64 { return e.Base + e.Size }

func (e Entry) String() string {
	return fmt.Sprintf("[0x%016X - 0x%016X) %s", e.Base, e.End(), e.Type)
}

func alignDown(v, align uint64) uint64 { return v &^ (align - 1) }
func alignUp(v, align uint64) uint64   { return alignDown(v+align-1, align) }

// isValid mirrors mme_is_valid: a free entry must be at least one page;
// every other type is valid as long as it isn't empty.
func isValid(e Entry) bool {
	if e.Size == 0 {
		return false
	}
	if e.Type != memtype.Free {
		return true
	}
	return e.Size >= PageSize
}

// alignIfNeeded mirrors mme_align_if_needed: free entries are shrunk to
// page-aligned boundaries on both ends; any other entry passes through.
func alignIfNeeded(e Entry) Entry {
	if e.Type != memtype.Free {
		return e
	}

	alignedBase := alignUp(e.Base, PageSize)
	size := e.Size
	if e.Base != alignedBase {
		lost := alignedBase - e.Base
		if lost > size {
			lost = size
		}
		size -= lost
	}
	size = alignDown(size, PageSize)

	return Entry{Base: alignedBase, Size: size, Type: e.Type}
}

// Map is a PMM's current memory map, always kept sorted and non-overlapping
// by the methods in this package.
type Map struct {
	entries []Entry
}

// NewMap wraps an existing slice of entries as a Map without validating it.
// Callers that receive memory maps from firmware should run them through
// Fixup before trusting any invariant.
func NewMap(entries []Entry) *Map {
	return &Map{entries: entries}
}

// Entries returns the current ordered, non-overlapping entries. The caller
// must not retain the slice across a mutating call.
func (m *Map) Entries() []Entry { return m.entries }

// Len returns the number of entries currently in the map.
func (m *Map) Len() int { return len(m.entries) }

// Clone returns a deep copy of the map.
func (m *Map) Clone() *Map {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return &Map{entries: out}
}

// sortEntries performs an insertion sort by ascending base address. Firmware
// memory maps are almost always already sorted or nearly so, which is why
// the original loader prefers insertion sort over something with better
// worst-case behavior: the common case is close to O(n).
func sortEntries(e []Entry) {
	for i := 1; i < len(e); i++ {
		cur := e[i]
		j := i
		for j > 0 && e[j-1].Base > cur.Base {
			e[j] = e[j-1]
			j--
		}
		e[j] = cur
	}
}

// Validate checks every universal invariant from the testable-properties
// section and returns the first violation found, or nil.
func (m *Map) Validate() error {
	for i, e := range m.entries {
		if e.Type == memtype.Free {
			if e.Base%PageSize != 0 || e.Size%PageSize != 0 || e.Size < PageSize {
				return fmt.Errorf("entry %d: free range %s is not page-aligned", i, e)
			}
		}
		if i+1 >= len(m.entries) {
			continue
		}
		next := m.entries[i+1]
		if e.Base >= next.Base {
			return fmt.Errorf("entries %d,%d: not sorted (%s, %s)", i, i+1, e, next)
		}
		if e.End() > next.Base {
			return fmt.Errorf("entries %d,%d: overlap (%s, %s)", i, i+1, e, next)
		}
		if e.End() == next.Base && e.Type == next.Type {
			return fmt.Errorf("entries %d,%d: adjacent same-type ranges not coalesced (%s, %s)", i, i+1, e, next)
		}
	}
	return nil
}
