package pmm

import (
	"fmt"

	"github.com/ultraos/hyper/internal/memtype"
)

// PMM owns the authoritative physical memory map and mediates every
// allocation the loader makes between entry and handover. It transitions
// once, irreversibly, from online to offline when the firmware's memory
// services are released (see Release).
type PMM struct {
	m       Map
	known   KnownTypes
	offline bool
}

// New creates a PMM seeded with the firmware-reported map, immediately
// running it through Fixup so every later operation can assume the
// invariants hold.
func New(initial []Entry, known KnownTypes) *PMM {
	p := &PMM{known: known}
	p.m.entries = Fixup(initial, known)
	return p
}

// ErrOffline is returned (and also causes a panic, per the design's
// "panics after offline" rule) by any service call made after Release.
var ErrOffline = fmt.Errorf("pmm: service requested after memory services were released")

func (p *PMM) checkOnline() {
	if p.offline {
		panic(ErrOffline)
	}
}

// Map exposes the current memory map for inspection (e.g. by the ultra
// protocol driver when it needs to map "all of RAM" into the page table).
func (p *PMM) Map() []Entry {
	p.checkOnline()
	return p.m.Entries()
}

// AllocatePagesAt allocates an exact physical range, failing if any byte of
// [addr, addr+n*PageSize) is not currently Free.
func (p *PMM) AllocatePagesAt(addr uint64, n uint64, t memtype.Type) error {
	p.checkOnline()
	if n == 0 {
		return fmt.Errorf("pmm: zero-page allocation requested")
	}

	size := n * PageSize
	end := addr + size

	for _, e := range p.m.entries {
		if e.Base >= end {
			break
		}
		if e.End() <= addr {
			continue
		}
		if e.Type != memtype.Free || e.Base > addr || e.End() < end {
			return fmt.Errorf("pmm: range [0x%X, 0x%X) is not entirely free", addr, end)
		}
	}

	p.markUsed(addr, size, t)
	return nil
}

// AllocatePages scans free regions bottom-up and returns the base of the
// first range of n pages whose end is at or below ceiling.
func (p *PMM) AllocatePages(n uint64, ceiling uint64, t memtype.Type) (uint64, error) {
	p.checkOnline()
	if n == 0 {
		return 0, fmt.Errorf("pmm: zero-page allocation requested")
	}

	size := n * PageSize

	for _, e := range p.m.entries {
		if e.Type != memtype.Free {
			continue
		}
		base := alignUp(e.Base, PageSize)
		if base+size > e.End() {
			continue
		}
		if base+size > ceiling {
			continue
		}

		p.markUsed(base, size, t)
		return base, nil
	}

	return 0, fmt.Errorf("pmm: out of memory for %d page(s) below 0x%X", n, ceiling)
}

// FreePages marks a previously allocated range free again and re-runs the
// fixup pipeline, which will now happily coalesce it with neighboring free
// entries.
func (p *PMM) FreePages(addr uint64, n uint64) {
	p.checkOnline()
	p.m.entries = append(p.m.entries, Entry{Base: addr, Size: n * PageSize, Type: memtype.Free})
	p.m.Fixup(p.known)
}

func (p *PMM) markUsed(base, size uint64, t memtype.Type) {
	p.m.entries = append(p.m.entries, Entry{Base: base, Size: size, Type: t})
	p.m.Fixup(p.known)
}

// Converter adapts an Entry to whatever on-wire representation the caller
// needs (e.g. the ultra protocol's attribute-array memory-map record).
type Converter[T any] func(Entry) T

// Release is the terminal PMM operation: it writes the final, converted
// memory map into buf if it has room for every entry, transitioning the PMM
// offline either way. If buf is too small, it returns the required element
// count and leaves the PMM online so the caller can retry with a bigger
// buffer.
func Release[T any](p *PMM, buf []T, convert Converter[T]) (int, error) {
	p.checkOnline()

	if len(buf) < len(p.m.entries) {
		return len(p.m.entries), fmt.Errorf("pmm: buffer holds %d entries, need %d", len(buf), len(p.m.entries))
	}

	for i, e := range p.m.entries {
		buf[i] = convert(e)
	}

	p.offline = true
	return len(p.m.entries), nil
}

// Offline reports whether Release has already been called.
func (p *PMM) Offline() bool { return p.offline }

// MustAllocatePages is AllocatePages for allocations the loader considers
// critical: the kernel binary, its page tables, its stack. There is no
// recovery path from failing one of these, so it panics instead of
// returning an error the caller would have to invent a response to.
func (p *PMM) MustAllocatePages(n uint64, ceiling uint64, t memtype.Type) uint64 {
	addr, err := p.AllocatePages(n, ceiling, t)
	if err != nil {
		panic(err)
	}
	return addr
}

// MustAllocatePagesAt is AllocatePagesAt for critical, fixed-address
// allocations (e.g. a kernel linked to load at a specific physical base).
func (p *PMM) MustAllocatePagesAt(addr uint64, n uint64, t memtype.Type) {
	if err := p.AllocatePagesAt(addr, n, t); err != nil {
		panic(err)
	}
}
