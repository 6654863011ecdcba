package pagetable

import "fmt"

// Memory is the physical-memory seam a Table needs: a way to obtain a
// freshly zeroed page-sized table below some ceiling, and a way to read and
// write one raw entry slot. Firmware glue backs this with real identity-
// mapped RAM; tests back it with a plain byte slice.
type Memory interface {
	AllocateTablePage(ceiling uint64) (uint64, error)
	ReadSlot(addr uint64, width uint8) uint64
	WriteSlot(addr uint64, width uint8, value uint64)
}

// Table is one arch-neutral hardware page table: a root physical address
// plus the geometry needed to walk and extend it lazily.
type Table struct {
	mem   Memory
	attrs pageAttrs

	root            uint64
	maxTableAddress uint64

	tableWidthShift uint8
	levels          uint8
	entryWidth      uint8
	baseShift       uint8

	// levelWidthShiftOverride handles AArch64's 52-bit granule, whose
	// second-from-top lookup level is only 4 bits wide instead of 9 (it
	// only needs to select among the handful of extra entries the wider
	// output address affords).
	levelWidthShiftOverride func(levelIdx int) (uint8, bool)
}

const defaultTableCeiling = 4 * 1024 * 1024 * 1024 // 4 GiB

// New allocates a table's root page and initializes its geometry for t.
// accessFlagMask is AArch64-only: the PAGE_NORMAL/PAGE_HUGE access-flag
// bits the arch layer derived from hardware capability detection. It is
// ignored for every x86 Type.
func New(mem Memory, t Type, maxTableAddress uint64, accessFlagMask uint64) (*Table, error) {
	attrs, err := attrsFor(t, accessFlagMask)
	if err != nil {
		return nil, err
	}

	ceiling := maxTableAddress
	if ceiling == 0 || ceiling > defaultTableCeiling {
		ceiling = defaultTableCeiling
	}

	root, err := mem.AllocateTablePage(ceiling)
	if err != nil {
		return nil, fmt.Errorf("pagetable: allocating root table: %w", err)
	}

	pt := &Table{
		mem:             mem,
		attrs:           attrs,
		root:            root,
		maxTableAddress: maxTableAddress,
		baseShift:       PageShift,
		levels:          uint8(t.rawDepth()),
	}

	switch {
	case t == TypeI386NoPAE:
		pt.entryWidth = 4
		pt.tableWidthShift = 10
	case t.isAArch64():
		pt.entryWidth = 8
		pt.tableWidthShift = 9
		pt.levels++ // fold TTBR0/TTBR1 into one extra unified root level
	default:
		pt.entryWidth = 8
		pt.tableWidthShift = 9
	}

	if t == TypeAArch64Granule52 {
		lookupLevelMinus1 := 4
		pt.levelWidthShiftOverride = func(idx int) (uint8, bool) {
			if idx == lookupLevelMinus1 {
				return 4, true
			}
			return 0, false
		}
	}

	// 32-bit PAE's root table is four entries with unusual hardware
	// semantics (cached in shadow registers, WRITE reserved), which makes
	// lazy allocation awkward; pre-populate every root slot up front.
	if t == TypeI386PAE {
		for i := 0; i < 4; i++ {
			entry, err := mem.AllocateTablePage(ceiling)
			if err != nil {
				return nil, fmt.Errorf("pagetable: allocating PAE root slot %d: %w", i, err)
			}
			slot := root + uint64(i)*uint64(pt.entryWidth)
			mem.WriteSlot(slot, pt.entryWidth, entry|attrs.present)
		}
	}

	return pt, nil
}

// Root returns the table's root physical address (CR3/TTBR payload).
func (pt *Table) Root() uint64 { return pt.root }

// PageSize returns the base (non-huge) page size, 4 KiB everywhere.
func (pt *Table) PageSize() uint64 { return 1 << pt.baseShift }

// HugePageShift is the base shift plus one level's worth of index bits:
// 2 MiB for x86-64/AArch64, 4 MiB for i386 without PAE.
func (pt *Table) HugePageShift() uint8 { return pt.baseShift + pt.tableWidthShift }

// HugePageSize returns 1 << HugePageShift.
func (pt *Table) HugePageSize() uint64 { return 1 << pt.HugePageShift() }

func (pt *Table) widthShiftForLevel(idx int) uint8 {
	if pt.levelWidthShiftOverride != nil {
		if shift, ok := pt.levelWidthShiftOverride(idx); ok {
			return shift
		}
	}
	return pt.tableWidthShift
}

func (pt *Table) levelBitOffset(idx int) uint {
	off := uint(pt.baseShift)
	for i := 0; i < idx; i++ {
		off += uint(pt.widthShiftForLevel(i))
	}
	return off
}

func (pt *Table) levelIndex(virtualAddr uint64, idx int) uint64 {
	shift := pt.widthShiftForLevel(idx)
	mask := uint64(1)<<shift - 1
	return (virtualAddr >> pt.levelBitOffset(idx)) & mask
}

func (pt *Table) slotAddr(table uint64, idx uint64) uint64 {
	return table + idx*uint64(pt.entryWidth)
}

// tableAt returns the physical address of the child table at idx within
// table, allocating and linking a fresh one (present, read-write, non-huge)
// if the slot is empty.
func (pt *Table) tableAt(table uint64, idx uint64) (uint64, error) {
	slot := pt.slotAddr(table, idx)
	entry := pt.mem.ReadSlot(slot, pt.entryWidth)

	if entry&pt.attrs.present != 0 {
		if pt.attrs.isHuge(entry) {
			panic(fmt.Sprintf("pagetable: slot at 0x%X unexpectedly holds a huge page descriptor", slot))
		}
		return entry & pt.attrs.entryAddressMask, nil
	}

	child, err := pt.mem.AllocateTablePage(pt.tableCeiling())
	if err != nil {
		return 0, err
	}

	pt.mem.WriteSlot(slot, pt.entryWidth, child|pt.attrs.readwrite|pt.attrs.present|pt.attrs.normal)
	return child, nil
}

func (pt *Table) tableCeiling() uint64 {
	if pt.maxTableAddress == 0 || pt.maxTableAddress > defaultTableCeiling {
		return defaultTableCeiling
	}
	return pt.maxTableAddress
}

// walkTo walks from the root down to wantLevel (1-indexed the way the
// reference loader counts: level 1 is the table that holds leaf page
// entries), allocating intermediate tables as needed.
func (pt *Table) walkTo(virtualAddr uint64, wantLevel int) (uint64, error) {
	cur := pt.root
	if wantLevel == int(pt.levels) {
		return cur, nil
	}

	for level := int(pt.levels) - 1; level >= wantLevel; level-- {
		idx := pt.levelIndex(virtualAddr, level)
		next, err := pt.tableAt(cur, idx)
		if err != nil {
			return 0, err
		}
		cur = next
	}

	return cur, nil
}

// RootEntryAt returns the physical address held by the root-level slot that
// covers virtualAddr, masked to its address bits — used to steal or inspect
// the top-level identity mapping when wiring up a higher-half split.
func (pt *Table) RootEntryAt(virtualAddr uint64) uint64 {
	idx := pt.levelIndex(virtualAddr, int(pt.levels)-1)
	entry := pt.mem.ReadSlot(pt.slotAddr(pt.root, idx), pt.entryWidth)
	return entry & pt.attrs.entryAddressMask
}

// CopyRootEntry copies the root-level slot covering srcVirtualAddr onto the
// slot covering dstVirtualAddr, verbatim (attributes included). This is how
// a higher-half-exclusive kernel's page table borrows its lower identity
// mapping from a shared root built once for every higher-half entry.
func (pt *Table) CopyRootEntry(srcVirtualAddr, dstVirtualAddr uint64) {
	lvl := int(pt.levels) - 1
	srcSlot := pt.slotAddr(pt.root, pt.levelIndex(srcVirtualAddr, lvl))
	dstSlot := pt.slotAddr(pt.root, pt.levelIndex(dstVirtualAddr, lvl))
	entry := pt.mem.ReadSlot(srcSlot, pt.entryWidth)
	pt.mem.WriteSlot(dstSlot, pt.entryWidth, entry)
}

// LevelVirtualCoverage returns the span of virtual address space one entry
// at levelIdx covers (e.g. 1 GiB for an x86-64 PDPT entry, levelIdx == 2).
func (pt *Table) LevelVirtualCoverage(levelIdx int) uint64 {
	return 1 << pt.levelBitOffset(levelIdx)
}

// PageType selects the leaf descriptor size a MappingSpec uses.
type PageType int

const (
	PageNormal PageType = iota
	PageHuge
)

// MappingSpec describes Count consecutive pages of PhysicalBase mapped
// starting at VirtualBase, all as the same leaf size.
type MappingSpec struct {
	VirtualBase  uint64
	PhysicalBase uint64
	Count        uint64
	Type         PageType
}

// Map writes Count leaf descriptors, allocating intermediate tables lazily
// as walkTo requires them. Huge mappings land one level above the base page
// table (2 MiB on x86-64/AArch64, 4 MiB on i386 without PAE).
func (pt *Table) Map(spec MappingSpec) error {
	leafLevel := 0
	pageSize := pt.PageSize()
	if spec.Type == PageHuge {
		leafLevel = 1
		pageSize = pt.HugePageSize()
	}

	for i := uint64(0); i < spec.Count; i++ {
		va := spec.VirtualBase + i*pageSize
		pa := spec.PhysicalBase + i*pageSize

		table, err := pt.walkTo(va, leafLevel+1)
		if err != nil {
			return fmt.Errorf("pagetable: mapping 0x%x: %w", va, err)
		}

		idx := pt.levelIndex(va, leafLevel)
		slot := pt.slotAddr(table, idx)

		attrBits := pt.attrs.present | pt.attrs.readwrite
		if spec.Type == PageHuge {
			attrBits |= pt.attrs.huge
		} else {
			attrBits |= pt.attrs.normal
		}

		pt.mem.WriteSlot(slot, pt.entryWidth, (pa&^(pageSize-1))|attrBits)
	}

	return nil
}
