// Package asmjump is the boundary the reference loader crosses in hand
// written assembly: load the final register state and jump to the kernel
// entrypoint, never to return. Nothing downstream of this package runs on
// real hardware here, so Jump's contract is kept (it never returns control
// to its caller) by panicking with the computed register image rather than
// by an actual mode switch; a native build would replace jumpTo with a
// per-arch .s trampoline sharing this package's field layout.
package asmjump

import (
	"fmt"

	"github.com/ultraos/hyper/internal/handover"
)

// X86_64Registers is the register image kernel_handover loads on x86_64,
// laid out the way handover_impl.c's asm stub expects to find it.
type X86_64Registers struct {
	CR3 uint64
	CR4 uint32
	RIP uint64 // entrypoint
	RSP uint64 // stack
	RDI uint64 // arg0
	RSI uint64 // arg1
}

func x86_64RegistersFor(hi handover.Info) X86_64Registers {
	return X86_64Registers{
		CR3: hi.PtRoot,
		CR4: handover.CR4ForX86(hi.Flags),
		RIP: hi.Entrypoint,
		RSP: hi.Stack,
		RDI: hi.Arg0,
		RSI: hi.Arg1,
	}
}

// AArch64Registers mirrors struct handover_info_aarch64: TTBR0/TTBR1 split
// so the identity mapping and the direct map can be unmapped independently
// after the jump, matching HigherHalfOnly.
type AArch64Registers struct {
	TTBR0, TTBR1 uint64
	MAIR, TCR    uint64
	SCTLR        uint64
	Entrypoint   uint64
	Stack        uint64
	Arg0, Arg1   uint64
	UnmapLower   bool
}

func aarch64RegistersFor(hi handover.Info, mair, tcr, sctlr uint64) AArch64Registers {
	ttbr1 := hi.PtRoot
	ttbr0 := hi.PtRoot
	if hi.Flags&uint32(handover.HigherHalfOnly) != 0 {
		ttbr0 = 0
	}
	return AArch64Registers{
		TTBR0:      ttbr0,
		TTBR1:      ttbr1,
		MAIR:       mair,
		TCR:        tcr,
		SCTLR:      sctlr,
		Entrypoint: hi.Entrypoint,
		Stack:      hi.Stack,
		Arg0:       hi.Arg0,
		Arg1:       hi.Arg1,
		UnmapLower: hi.Flags&uint32(handover.HigherHalfOnly) != 0,
	}
}

// Jumper is implemented by each arch's jump glue.
type Jumper interface {
	// Jump disables interrupts, loads the arch register state, and
	// transfers control to the kernel entrypoint. It never returns.
	Jump(hi handover.Info) error
}

// X86_64 is the x86_64 Jumper.
type X86_64 struct{}

func (X86_64) Jump(hi handover.Info) error {
	if err := handover.PrepareFor(&hi); err != nil {
		return err
	}
	regs := x86_64RegistersFor(hi)
	panic(fmt.Sprintf("asmjump: kernel_handover (x86_64) entrypoint=%#x cr3=%#x cr4=%#x", regs.RIP, regs.CR3, regs.CR4))
}

// AArch64 is the aarch64 Jumper. MAIR/TCR/SCTLR are supplied by the arch
// policy layer (derived from page-table levels and granule size), not by
// handover.Info, since they're specific to the chosen translation regime.
type AArch64 struct {
	MAIR, TCR, SCTLR uint64
}

func (a AArch64) Jump(hi handover.Info) error {
	if err := handover.PrepareFor(&hi); err != nil {
		return err
	}
	regs := aarch64RegistersFor(hi, a.MAIR, a.TCR, a.SCTLR)
	panic(fmt.Sprintf("asmjump: kernel_handover (aarch64) entrypoint=%#x ttbr0=%#x ttbr1=%#x", regs.Entrypoint, regs.TTBR0, regs.TTBR1))
}
