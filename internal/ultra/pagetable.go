package ultra

import (
	"fmt"

	"github.com/ultraos/hyper/internal/cfg"
	"github.com/ultraos/hyper/internal/elfload"
	"github.com/ultraos/hyper/internal/pagetable"
	"github.com/ultraos/hyper/internal/pmm"
)

// PageTableConstraint mirrors `page-table.constraint`: exactly/at-least/
// maximum, applied to the requested level count.
type PageTableConstraint int

const (
	PTConstraintAtLeast PageTableConstraint = iota
	PTConstraintExactly
	PTConstraintMaximum
)

// PageTableSpec is the resolved `page-table` key.
type PageTableSpec struct {
	Levels     int // 0 means unspecified
	NullGuard  bool
	Constraint PageTableConstraint
}

func resolvePageTable(c *cfg.Config, scope cfg.Scope) (PageTableSpec, error) {
	v, ok, err := c.GetObject(scope, "page-table")
	if err != nil {
		return PageTableSpec{}, err
	}
	if !ok {
		return PageTableSpec{}, nil
	}
	objScope := v.Scope()

	levels, ok, err := c.GetUnsigned(objScope, "levels")
	if err != nil {
		return PageTableSpec{}, err
	}
	var spec PageTableSpec
	if ok {
		spec.Levels = int(levels)
	}

	guard, _, err := c.GetBool(objScope, "null-guard")
	if err != nil {
		return PageTableSpec{}, err
	}
	spec.NullGuard = guard

	constraint, ok, err := c.GetString(objScope, "constraint")
	if err != nil {
		return PageTableSpec{}, err
	}
	switch {
	case !ok || constraint == "at-least":
		spec.Constraint = PTConstraintAtLeast
	case constraint == "exactly":
		spec.Constraint = PTConstraintExactly
	case constraint == "maximum":
		spec.Constraint = PTConstraintMaximum
	default:
		return PageTableSpec{}, fmt.Errorf("ultra: page-table: unknown constraint %q", constraint)
	}

	return spec, nil
}

type archLayout struct {
	Type   pagetable.Type
	Levels int
}

func layoutsForArch(arch elfload.Arch) []archLayout {
	switch arch {
	case elfload.ArchI386:
		return []archLayout{{pagetable.TypeI386NoPAE, 2}, {pagetable.TypeI386PAE, 3}}
	case elfload.ArchAMD64:
		return []archLayout{{pagetable.TypeAMD644Lvl, 4}, {pagetable.TypeAMD645Lvl, 5}}
	case elfload.ArchAArch64:
		return []archLayout{{pagetable.TypeAArch64Granule48, 4}, {pagetable.TypeAArch64Granule52, 5}}
	default:
		return nil
	}
}

// chooseLayout picks the page-table Type for arch satisfying spec, the way
// the protocol driver picks a layout "subject to page-table.levels and
// constraint".
func chooseLayout(arch elfload.Arch, spec PageTableSpec) (pagetable.Type, error) {
	candidates := layoutsForArch(arch)
	if len(candidates) == 0 {
		return pagetable.TypeInvalid, fmt.Errorf("ultra: no page-table layout known for arch %s", arch)
	}

	switch spec.Constraint {
	case PTConstraintMaximum:
		return candidates[len(candidates)-1].Type, nil

	case PTConstraintExactly:
		if spec.Levels == 0 {
			return candidates[0].Type, nil
		}
		for _, c := range candidates {
			if c.Levels == spec.Levels {
				return c.Type, nil
			}
		}
		return pagetable.TypeInvalid, fmt.Errorf("ultra: arch %s has no %d-level page-table layout", arch, spec.Levels)

	default: // at-least
		if spec.Levels == 0 {
			return candidates[0].Type, nil
		}
		for _, c := range candidates {
			if c.Levels >= spec.Levels {
				return c.Type, nil
			}
		}
		return pagetable.TypeInvalid, fmt.Errorf("ultra: arch %s has no layout with at least %d levels", arch, spec.Levels)
	}
}

// buildPageTable implements step 4: direct-map at least 4 GiB at both 0 and
// directMapBase, stealing (or sharing) the lower identity mapping depending
// on higherHalfExclusive, and separately mapping the higher half to
// physical zero for a higher-half, non-relocatable kernel.
func buildPageTable(
	mem pagetable.Memory,
	arch elfload.Arch,
	spec PageTableSpec,
	p *pmm.PMM,
	directMapBase uint64,
	higherHalfExclusive bool,
	higherHalfBase uint64,
	allocateAnywhere bool,
) (*pagetable.Table, error) {
	layout, err := chooseLayout(arch, spec)
	if err != nil {
		return nil, err
	}

	pt, err := pagetable.New(mem, layout, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("ultra: allocating page table root: %w", err)
	}

	mapLength := directMapLength(p)

	if err := pt.Map(pagetable.MappingSpec{
		VirtualBase: 0, PhysicalBase: 0, Count: mapLength / pt.PageSize(),
		Type: pagetable.PageHuge,
	}); err != nil {
		return nil, err
	}

	if directMapBase != 0 {
		if higherHalfExclusive {
			pt.CopyRootEntry(0, directMapBase)
		} else {
			if err := pt.Map(pagetable.MappingSpec{
				VirtualBase: directMapBase, PhysicalBase: 0, Count: mapLength / pt.PageSize(),
				Type: pagetable.PageHuge,
			}); err != nil {
				return nil, err
			}
		}
	}

	if higherHalfBase != 0 && !allocateAnywhere {
		higherHalfSize := pt.LevelVirtualCoverage(0)
		if err := pt.Map(pagetable.MappingSpec{
			VirtualBase: higherHalfBase, PhysicalBase: 0, Count: higherHalfSize / pt.PageSize(),
			Type: pagetable.PageNormal,
		}); err != nil {
			return nil, err
		}
	}

	return pt, nil
}

const fourGiB = 4 << 30

// directMapLength is max(protocol_minimum, 4 GiB, highest mapped physical
// address), so the direct map always covers every byte the memory map
// reports, not just the protocol floor.
func directMapLength(p *pmm.PMM) uint64 {
	length := uint64(fourGiB)
	for _, e := range p.Map() {
		if end := e.Base + e.Size; end > length {
			length = end
		}
	}
	return length
}
