package ultra

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ultraos/hyper/internal/cfg"
	"github.com/ultraos/hyper/internal/memtype"
	"github.com/ultraos/hyper/internal/pmm"
)

func TestResolveStackDefaultsWhenAbsent(t *testing.T) {
	c, err := cfg.Parse("[main]\nprotocol = \"ultra\"\n")
	require.NoError(t, err)
	entry, _ := c.GetLoadableEntry("main")

	spec, err := resolveStack(c, entry.Scope())
	require.NoError(t, err)
	require.Equal(t, uint64(DefaultStackSize), spec.Size)
	require.False(t, spec.HasFixedLoc)
}

func TestResolveStackAutoString(t *testing.T) {
	c, err := cfg.Parse("[main]\nstack = \"auto\"\n")
	require.NoError(t, err)
	entry, _ := c.GetLoadableEntry("main")

	spec, err := resolveStack(c, entry.Scope())
	require.NoError(t, err)
	require.Equal(t, uint64(DefaultStackSize), spec.Size)
}

func TestResolveStackObjectForm(t *testing.T) {
	c, err := cfg.Parse("[main]\nstack:\n\tsize = 65536\n\tallocate-at = 0x200000\n")
	require.NoError(t, err)
	entry, _ := c.GetLoadableEntry("main")

	spec, err := resolveStack(c, entry.Scope())
	require.NoError(t, err)
	require.Equal(t, uint64(65536), spec.Size)
	require.True(t, spec.HasFixedLoc)
	require.Equal(t, uint64(0x200000), spec.AllocateAt)
}

func TestAllocateStackReturnsTopOfStack(t *testing.T) {
	p := pmm.New([]pmm.Entry{{Base: 0, Size: 1 << 20, Type: memtype.Free}}, pmm.DefaultKnownTypes())

	top, err := allocateStack(p, 1<<20, StackSpec{Size: 8192})
	require.NoError(t, err)
	require.Equal(t, uint64(2)*pmm.PageSize, top)
}

func TestAllocateStackFixedLocation(t *testing.T) {
	p := pmm.New([]pmm.Entry{{Base: 0, Size: 1 << 20, Type: memtype.Free}}, pmm.DefaultKnownTypes())

	top, err := allocateStack(p, 1<<20, StackSpec{Size: 4096, HasFixedLoc: true, AllocateAt: 0x10000})
	require.NoError(t, err)
	require.Equal(t, uint64(0x10000+pmm.PageSize), top)
}
