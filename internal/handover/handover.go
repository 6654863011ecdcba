// Package handover builds the arch-neutral handover_info the Ultra protocol
// driver hands to the arch-specific jump glue in internal/asmjump. This
// package only owns the data and the flag bookkeeping; internal/asmjump
// owns the final jump.
package handover

import "fmt"

// Bit describes one entry in the flags bitmask.
type Bit uint32

// HigherHalfOnly unmaps the first table (or MinimumMapLength, whichever is
// larger) from the page table root before jumping — used when the kernel
// is higher-half-exclusive and the low identity mapping was only needed to
// survive the jump itself.
const HigherHalfOnly Bit = 1 << 0

// x86-specific bits, passed straight through to asmjump's CR4 builder.
const (
	X86LongModeEnable  Bit = 1 << 28
	X86PageSizeExtension Bit = 1 << 29
	X86PhysicalAddressExtension Bit = 1 << 30
	X86LA57           Bit = 1 << 31
)

var archBits = X86LongModeEnable | X86PageSizeExtension | X86PhysicalAddressExtension | X86LA57

// Info is the arch-neutral handover record: entrypoint/stack/pt_root/arg0/
// arg1, the direct-map base the jump glue must keep live until the very
// last instruction, and the flags describing the state the kernel expects.
type Info struct {
	Entrypoint    uint64
	Stack         uint64
	PtRoot        uint64
	Arg0, Arg1    uint64
	DirectMapBase uint64
	Flags         uint32
}

// UltraMagic is arg1's fixed value for the Ultra protocol, per the
// attribute-array wire format.
const UltraMagic uint64 = 0x554c5442

// MinimumMapLength is how much of physical memory must remain identity- and
// direct-mapped through the jump: at least 4 GiB, rounded up to whatever the
// platform's huge-page granularity needs.
func MinimumMapLength(directMapBase uint64, flags uint32) uint64 {
	const fourGiB = 4 << 30
	if flags&uint32(X86LA57) != 0 {
		// 5-level paging maps in 512 GiB steps at the top level.
		const fiveTwelveGiB = 512 << 30
		return fiveTwelveGiB
	}
	return fourGiB
}

// IsFlagSupported reports whether bit is one this package knows how to
// translate into register state.
func IsFlagSupported(flags uint32) bool {
	return flags&^uint32(HigherHalfOnly|archBits) == 0
}

// EnsureSupportedFlags returns an error naming the first unsupported bit,
// rather than silently dropping it on the floor before the jump.
func EnsureSupportedFlags(flags uint32) error {
	if unsupported := flags &^ uint32(HigherHalfOnly|archBits); unsupported != 0 {
		return fmt.Errorf("handover: unsupported flag bits %#x", unsupported)
	}
	return nil
}

// PrepareFor runs the last config-dependent cleanup before the page table
// and memory map are frozen: validating flags and checking that the
// entrypoint and pt_root are set.
func PrepareFor(hi *Info) error {
	if err := EnsureSupportedFlags(hi.Flags); err != nil {
		return err
	}
	if hi.Entrypoint == 0 {
		return fmt.Errorf("handover: entrypoint is unset")
	}
	if hi.PtRoot == 0 {
		return fmt.Errorf("handover: pt_root is unset")
	}
	return nil
}

// CR4ForX86 derives a CR4 value from handover flags, per the reference
// handover_flags_to_cr4 table.
func CR4ForX86(flags uint32) uint32 {
	const (
		cr4PAE = 1 << 5
		cr4PSE = 1 << 4
		cr4LA57 = 1 << 12
	)
	var cr4 uint32
	if flags&uint32(X86PhysicalAddressExtension) != 0 {
		cr4 |= cr4PAE
	}
	if flags&uint32(X86PageSizeExtension) != 0 {
		cr4 |= cr4PSE
	}
	if flags&uint32(X86LA57) != 0 {
		cr4 |= cr4LA57
	}
	return cr4
}
