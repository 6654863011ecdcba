package ultra

import (
	"fmt"

	"github.com/ultraos/hyper/internal/cfg"
	"github.com/ultraos/hyper/internal/memtype"
	"github.com/ultraos/hyper/internal/pmm"
)

// DefaultStackSize is used whenever `stack` is absent or `auto`.
const DefaultStackSize = 16 * 1024

// StackSpec is the resolved `stack` key.
type StackSpec struct {
	Size        uint64
	AllocateAt  uint64
	HasFixedLoc bool
}

func resolveStack(c *cfg.Config, scope cfg.Scope) (StackSpec, error) {
	v, ok, err := c.GetOneOf(scope, "stack", cfg.ValueString|cfg.ValueObject)
	if err != nil {
		return StackSpec{}, err
	}
	if !ok || (v.Type == cfg.ValueString && v.String == "auto") {
		return StackSpec{Size: DefaultStackSize}, nil
	}
	if v.Type == cfg.ValueString {
		return StackSpec{}, fmt.Errorf("ultra: stack: unrecognized string value %q", v.String)
	}

	objScope := v.Scope()
	size, ok, err := c.GetUnsigned(objScope, "size")
	if err != nil {
		return StackSpec{}, err
	}
	if !ok {
		size = DefaultStackSize
	}

	at, hasAt, err := c.GetUnsigned(objScope, "allocate-at")
	if err != nil {
		return StackSpec{}, err
	}

	return StackSpec{Size: size, AllocateAt: at, HasFixedLoc: hasAt}, nil
}

// allocateStack reserves the kernel stack below binaryCeiling (or at the
// fixed address the config names) and returns the top-of-stack address
// handover.Info.Stack expects.
func allocateStack(p *pmm.PMM, binaryCeiling uint64, spec StackSpec) (top uint64, err error) {
	pages := (spec.Size + pmm.PageSize - 1) / pmm.PageSize
	if pages == 0 {
		pages = 1
	}

	var base uint64
	if spec.HasFixedLoc {
		base = spec.AllocateAt
		err = p.AllocatePagesAt(base, pages, memtype.Type(MemoryTypeKernelStack))
	} else {
		base, err = p.AllocatePages(pages, binaryCeiling, memtype.Type(MemoryTypeKernelStack))
	}
	if err != nil {
		return 0, fmt.Errorf("ultra: allocating stack: %w", err)
	}

	return base + pages*pmm.PageSize, nil
}
