package ultra

import (
	"github.com/ultraos/hyper/internal/elfload"
	"github.com/ultraos/hyper/internal/memtype"
	"github.com/ultraos/hyper/internal/pmm"
	"github.com/ultraos/hyper/internal/videomode"
)

// Ultra memory-map wire type tags, matching ULTRA_MEMORY_TYPE_* in the
// reference protocol header. These are distinct from memtype.Type: they are
// what lands on the wire, not how the PMM tracks ranges internally.
const (
	wireMemFree              uint64 = 1
	wireMemReserved          uint64 = 2
	wireMemReclaimable       uint64 = 3
	wireMemNVS               uint64 = 4
	wireMemLoaderReclaimable uint64 = 0xFFFF0001
	wireMemModule            uint64 = 0xFFFF0002
	wireMemKernelStack       uint64 = 0xFFFF0003
	wireMemKernelBinary      uint64 = 0xFFFF0004
)

func wireMemType(t memtype.Type) uint64 {
	switch t {
	case memtype.Free:
		return wireMemFree
	case memtype.ACPIReclaimable, memtype.Persistent:
		return wireMemReclaimable
	case memtype.NVS:
		return wireMemNVS
	case memtype.LoaderReclaimable, memtype.Type(MemoryTypeLoaderReclaimable):
		return wireMemLoaderReclaimable
	case memtype.Type(MemoryTypeModule):
		return wireMemModule
	case memtype.Type(MemoryTypeKernelStack):
		return wireMemKernelStack
	case memtype.Type(MemoryTypeKernelBinary):
		return wireMemKernelBinary
	default:
		return wireMemReserved
	}
}

func buildMemoryMapEntries(p *pmm.PMM) []memoryMapEntryWire {
	m := p.Map()
	entries := make([]memoryMapEntryWire, len(m))
	for i, e := range m {
		entries[i] = memoryMapEntryWire{PhysicalAddress: e.Base, SizeInBytes: e.Size, Type: wireMemType(e.Type)}
	}
	return entries
}

// assembleInputs is everything buildAttributeArray needs beyond the PMM and
// memory surface, gathered by Boot from config, the ELF loader, and
// firmware queries.
type assembleInputs struct {
	platform      Platform
	loaderMajor   uint16
	loaderMinor   uint16
	loaderName    string
	rsdp          uint64
	origin        KernelOrigin
	kernel        elfload.BinaryInfo
	modules       []LoadedModule
	cmdline       string
	videoWanted   bool
	mode          videomode.Mode
	framebufferAt uint64
	binaryCeiling uint64
}

func pagesFor(n uint64) uint64 {
	return (n + pmm.PageSize - 1) / pmm.PageSize
}

// assembleAttributes implements steps 10-11: build every fixed-order
// attribute record, then allocate and place the array together with the
// memory-map attribute, re-allocating whenever the act of reserving space
// for the array grows the map enough to no longer fit — since the
// allocation the array itself needs is one more entry for the map to
// describe.
func assembleAttributes(p *pmm.PMM, mem elfload.Memory, in assembleInputs) (uint64, error) {
	platformBytes, err := buildPlatformInfo(in.platform, in.loaderMajor, in.loaderMinor, in.loaderName, in.rsdp)
	if err != nil {
		return 0, err
	}

	kernelBytes, err := buildKernelInfo(in.kernel.PhysicalBase, in.kernel.VirtualBase,
		in.kernel.VirtualCeiling-in.kernel.VirtualBase, in.origin)
	if err != nil {
		return 0, err
	}

	fixed := append([]byte{}, platformBytes...)
	fixed = append(fixed, kernelBytes...)
	for _, m := range in.modules {
		b, err := buildModuleInfo(m)
		if err != nil {
			return 0, err
		}
		fixed = append(fixed, b...)
	}
	if in.cmdline != "" {
		fixed = append(fixed, buildCommandLine(in.cmdline)...)
	}
	if in.videoWanted {
		pitch := in.mode.Width * (in.mode.Bpp / 8)
		fbBytes, err := buildFramebuffer(in.mode, pitch, in.framebufferAt)
		if err != nil {
			return 0, err
		}
		fixed = append(fixed, fbBytes...)
	}

	var base uint64
	var pages uint64
	for {
		mmBytes, err := buildMemoryMap(buildMemoryMapEntries(p))
		if err != nil {
			return 0, err
		}
		total := uint64(len(fixed) + len(mmBytes))
		neededPages := pagesFor(total)

		if base != 0 && neededPages <= pages {
			full := append(append([]byte{}, fixed...), mmBytes...)
			if err := mem.Zero(base, pages*pmm.PageSize); err != nil {
				return 0, err
			}
			if err := mem.WriteAt(base, full); err != nil {
				return 0, err
			}
			return base, nil
		}

		if base != 0 {
			p.FreePages(base, pages)
		}
		pages = neededPages
		base, err = p.AllocatePages(pages, in.binaryCeiling, memtype.Type(MemoryTypeAttributeArray))
		if err != nil {
			return 0, err
		}
	}
}
