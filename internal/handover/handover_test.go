package handover

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMinimumMapLengthDefaultsToFourGiB(t *testing.T) {
	require.EqualValues(t, 4<<30, MinimumMapLength(0, 0))
}

func TestMinimumMapLengthLA57(t *testing.T) {
	require.EqualValues(t, 512<<30, MinimumMapLength(0, uint32(X86LA57)))
}

func TestEnsureSupportedFlagsRejectsUnknownBits(t *testing.T) {
	err := EnsureSupportedFlags(1 << 2)
	require.Error(t, err)
}

func TestEnsureSupportedFlagsAcceptsKnownBits(t *testing.T) {
	err := EnsureSupportedFlags(uint32(HigherHalfOnly | X86LongModeEnable))
	require.NoError(t, err)
}

func TestPrepareForValidatesEntrypointAndRoot(t *testing.T) {
	hi := Info{}
	require.Error(t, PrepareFor(&hi))

	hi.Entrypoint = 0x1000
	require.Error(t, PrepareFor(&hi))

	hi.PtRoot = 0x2000
	require.NoError(t, PrepareFor(&hi))
}

func TestCR4ForX86(t *testing.T) {
	cr4 := CR4ForX86(uint32(X86PhysicalAddressExtension | X86PageSizeExtension))
	require.NotZero(t, cr4&(1<<5))
	require.NotZero(t, cr4&(1<<4))
	require.Zero(t, cr4&(1<<12))
}
