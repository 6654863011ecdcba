package pagetable

import "fmt"

// PageType selects the leaf descriptor size a mapping uses.
type PageType int

const (
	// PageNormal maps with the architecture's base page size (4 KiB).
	PageNormal PageType = iota
	// PageHuge maps with one level up: 2 MiB on x86-64/AArch64, 4 MiB on
	// i386 without PAE.
	PageHuge
)

// MappingSpec describes one contiguous virtual-to-physical mapping request.
type MappingSpec struct {
	VirtualBase  uint64
	PhysicalBase uint64
	Count        uint64 // number of Type-sized pages
	Type         PageType

	// Critical marks a mapping the loader cannot recover from failing
	// (e.g. the kernel's own identity map): running out of table memory
	// panics instead of returning an error, mirroring the reference
	// loader's treatment of its own "critical" allocations.
	Critical bool
}

// Map installs spec's virtual-to-physical range, present and read-write,
// lazily allocating any intermediate tables the walk needs.
func (pt *Table) Map(spec MappingSpec) error {
	huge := spec.Type == PageHuge
	bytesPerPage := pt.PageSize()
	if huge {
		bytesPerPage = pt.HugePageSize()
	}

	if spec.VirtualBase%bytesPerPage != 0 || spec.PhysicalBase%bytesPerPage != 0 {
		return fmt.Errorf("pagetable: mapping base is not aligned to the %d-byte page size", bytesPerPage)
	}

	attrs := pt.attrs.present | pt.attrs.readwrite
	if huge {
		attrs |= pt.attrs.huge
	} else {
		attrs |= pt.attrs.normal
	}

	virtualBase, physicalBase, remaining := spec.VirtualBase, spec.PhysicalBase, spec.Count
	thisLevel := 1
	if huge {
		thisLevel = 2
	}

	for remaining > 0 {
		n, err := pt.bulkMap(virtualBase, physicalBase, remaining, thisLevel, bytesPerPage, attrs)
		if err != nil {
			if !spec.Critical {
				return err
			}
			panic(fmt.Sprintf("pagetable: out of memory while mapping %d page(s) at 0x%016X to phys 0x%016X (huge: %v): %v",
				spec.Count, spec.VirtualBase, spec.PhysicalBase, huge, err))
		}

		virtualBase += n * bytesPerPage
		physicalBase += n * bytesPerPage
		remaining -= n
	}

	return nil
}

// bulkMap fills as many consecutive slots of one leaf table as either fit
// in the table or are needed, returning the number of pages it mapped.
func (pt *Table) bulkMap(virtualBase, physicalBase, count uint64, thisLevel int, bytesPerPage uint64, attrs uint64) (uint64, error) {
	table, err := pt.walkTo(virtualBase, thisLevel)
	if err != nil {
		return 0, err
	}

	idx := pt.levelIndex(virtualBase, thisLevel-1)
	slotsInTable := uint64(1) << pt.widthShiftForLevel(thisLevel-1)

	pagesToMap := count
	if avail := slotsInTable - idx; avail < pagesToMap {
		pagesToMap = avail
	}

	slot := pt.slotAddr(table, idx)
	pte := physicalBase | attrs
	for i := uint64(0); i < pagesToMap; i++ {
		pt.mem.WriteSlot(slot, pt.entryWidth, pte)
		slot += uint64(pt.entryWidth)
		pte += bytesPerPage
	}

	return pagesToMap, nil
}
