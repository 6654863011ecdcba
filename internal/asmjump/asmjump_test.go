package asmjump

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ultraos/hyper/internal/handover"
)

func jumpAndRecover(j Jumper, hi handover.Info) (recovered string, err error) {
	defer func() {
		if r := recover(); r != nil {
			recovered = r.(string)
		}
	}()
	err = j.Jump(hi)
	return
}

func TestX86_64JumpNeverReturns(t *testing.T) {
	hi := handover.Info{Entrypoint: 0xffff800000100000, PtRoot: 0x1000, Stack: 0x2000}
	msg, err := jumpAndRecover(X86_64{}, hi)
	require.NoError(t, err)
	require.True(t, strings.Contains(msg, "x86_64"))
	require.True(t, strings.Contains(msg, "entrypoint=0xffff800000100000"))
}

func TestX86_64JumpRejectsInvalidHandover(t *testing.T) {
	_, err := jumpAndRecover(X86_64{}, handover.Info{})
	require.Error(t, err)
}

func TestAArch64JumpUnmapsLowerHalf(t *testing.T) {
	j := AArch64{MAIR: 1, TCR: 2, SCTLR: 3}
	hi := handover.Info{
		Entrypoint: 0x1000,
		PtRoot:     0x2000,
		Flags:      uint32(handover.HigherHalfOnly),
	}

	regs := aarch64RegistersFor(hi, j.MAIR, j.TCR, j.SCTLR)
	require.True(t, regs.UnmapLower)
	require.Zero(t, regs.TTBR0)
	require.EqualValues(t, 0x2000, regs.TTBR1)

	msg, err := jumpAndRecover(j, hi)
	require.NoError(t, err)
	require.True(t, strings.Contains(msg, "aarch64"))
}
