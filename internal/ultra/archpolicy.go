package ultra

import (
	"github.com/ultraos/hyper/internal/elfload"
	"github.com/ultraos/hyper/internal/handover"
)

// ArchPolicy is what step 2 of the driver derives from the kernel's ELF
// machine before anything is placed: the higher-half split address, the
// direct-map base, the ceiling every physical placement in this entry must
// respect, and the handover flags the arch always sets.
type ArchPolicy struct {
	HigherHalfBase uint64
	DirectMapBase  uint64
	BinaryCeiling  uint64
	HandoverFlags  uint32
}

const (
	amd64HigherHalfBase = 0xFFFFFFFF80000000
	amd64DirectMapBase  = 0xFFFF800000000000
	i686HigherHalfBase  = 0xC0000000
	i686DirectMapBase   = i686HigherHalfBase
	// aarch64 reuses the x86-64 higher-half split in the reference driver.
	aarch64HigherHalfBase       = 0xFFFFFFFF80000000
	aarch64DirectMapBase48Bit   = 0xFFFF000000000000
	fourGiBCeiling              = 4 << 30
)

// ArchPolicyFor exposes archPolicyFor to tooling that needs to preview
// placement decisions (hyperctl inspect) without running Boot.
func ArchPolicyFor(arch elfload.Arch) ArchPolicy { return archPolicyFor(arch) }

// archPolicyFor mirrors ultra_higher_half_base/ultra_direct_map_base: the
// per-arch constants the rest of the driver treats as opaque policy.
func archPolicyFor(arch elfload.Arch) ArchPolicy {
	switch arch {
	case elfload.ArchAMD64:
		return ArchPolicy{
			HigherHalfBase: amd64HigherHalfBase,
			DirectMapBase:  amd64DirectMapBase,
			BinaryCeiling:  fourGiBCeiling,
			HandoverFlags:  uint32(handover.X86LongModeEnable | handover.X86PhysicalAddressExtension),
		}
	case elfload.ArchI386:
		return ArchPolicy{
			HigherHalfBase: i686HigherHalfBase,
			DirectMapBase:  i686DirectMapBase,
			BinaryCeiling:  fourGiBCeiling,
			HandoverFlags:  uint32(handover.X86PageSizeExtension),
		}
	case elfload.ArchAArch64:
		return ArchPolicy{
			HigherHalfBase: aarch64HigherHalfBase,
			DirectMapBase:  aarch64DirectMapBase48Bit,
			BinaryCeiling:  fourGiBCeiling,
		}
	default:
		return ArchPolicy{BinaryCeiling: fourGiBCeiling}
	}
}
