// Package inspect previews where the Ultra driver would place a kernel and
// its modules without booting anything: it runs the same elfload.Load the
// driver runs, backed by a PMM seeded from an assumed memory size and a
// Memory sink that counts bytes instead of writing them anywhere real.
package inspect

import (
	"fmt"

	"github.com/ultraos/hyper/internal/cfg"
	"github.com/ultraos/hyper/internal/elfload"
	"github.com/ultraos/hyper/internal/fs"
	"github.com/ultraos/hyper/internal/memtype"
	"github.com/ultraos/hyper/internal/pmm"
	"github.com/ultraos/hyper/internal/ultra"
)

// DefaultAssumedMemory is how much physical memory inspect assumes is
// present when no real firmware memory map is available — enough to place
// any realistic kernel/module set below the 4 GiB ceiling every arch policy
// currently uses.
const DefaultAssumedMemory = 4 << 30

// traceMemory discards every write, only recording how many bytes were
// asked to be written — inspect never needs the bytes themselves, only the
// placement decisions elfload.Load made along the way.
type traceMemory struct {
	writes uint64
}

func (t *traceMemory) WriteAt(addr uint64, data []byte) error {
	t.writes += uint64(len(data))
	return nil
}
func (t *traceMemory) Zero(addr uint64, n uint64) error { return nil }

// Report is what inspect tells the caller about one loadable entry's
// planned placement.
type Report struct {
	Entry             string
	Arch              elfload.Arch
	EntrypointAddress uint64
	PhysicalBase      uint64
	PhysicalCeiling   uint64
	VirtualBase       uint64
	VirtualCeiling    uint64
	HigherHalfBase    uint64
	DirectMapBase     uint64
	BinaryCeiling     uint64
	BytesWritten      uint64
	ModuleCount       int
}

// Entry runs elfload.DetectArch and elfload.Load for the named loadable
// entry against table, reporting the same placement Boot would compute.
func Entry(table *fs.Table, c *cfg.Config, entry cfg.LoadableEntry, assumedMemory uint64) (Report, error) {
	summary, err := ultra.Summarize(c, entry)
	if err != nil {
		return Report{}, err
	}

	binFile, err := fs.Open(table, summary.BinaryPath)
	if err != nil {
		return Report{}, fmt.Errorf("inspect: opening binary %q: %w", summary.BinaryPath, err)
	}
	defer binFile.Close()

	arch, _, err := elfload.DetectArch(binFile)
	if err != nil {
		return Report{}, fmt.Errorf("inspect: reading ELF header: %w", err)
	}
	policy := ultra.ArchPolicyFor(arch)

	p := pmm.New([]pmm.Entry{{Base: 0, Size: assumedMemory, Type: memtype.Free}}, pmm.DefaultKnownTypes())
	mem := &traceMemory{}

	info, err := elfload.Load(elfload.Spec{
		Binary:         binFile,
		UseVA:          true,
		AllocAnywhere:  summary.AllocateAnywhere,
		HigherHalfBase: policy.HigherHalfBase,
		BinaryCeiling:  policy.BinaryCeiling,
		MemoryType:     memtype.Type(ultra.MemoryTypeKernelBinary),
		PMM:            p,
		Memory:         mem,
	})
	if err != nil {
		return Report{}, fmt.Errorf("inspect: loading kernel: %w", err)
	}

	return Report{
		Entry:             entry.Name,
		Arch:              info.Arch,
		EntrypointAddress: info.EntrypointAddress,
		PhysicalBase:      info.PhysicalBase,
		PhysicalCeiling:   info.PhysicalCeiling,
		VirtualBase:       info.VirtualBase,
		VirtualCeiling:    info.VirtualCeiling,
		HigherHalfBase:    policy.HigherHalfBase,
		DirectMapBase:     policy.DirectMapBase,
		BinaryCeiling:     policy.BinaryCeiling,
		BytesWritten:      mem.writes,
		ModuleCount:       len(summary.Modules),
	}, nil
}
