package ultra

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ultraos/hyper/internal/cfg"
	"github.com/ultraos/hyper/internal/elfload"
	"github.com/ultraos/hyper/internal/memtype"
	"github.com/ultraos/hyper/internal/pagetable"
	"github.com/ultraos/hyper/internal/pmm"
)

func TestResolvePageTableDefaultsToAtLeast(t *testing.T) {
	c, err := cfg.Parse("[main]\nprotocol = \"ultra\"\n")
	require.NoError(t, err)
	entry, _ := c.GetLoadableEntry("main")

	spec, err := resolvePageTable(c, entry.Scope())
	require.NoError(t, err)
	require.Equal(t, PTConstraintAtLeast, spec.Constraint)
	require.Equal(t, 0, spec.Levels)
}

func TestResolvePageTableObjectForm(t *testing.T) {
	c, err := cfg.Parse("[main]\npage-table:\n\tlevels = 5\n\tconstraint = \"exactly\"\n\tnull-guard = true\n")
	require.NoError(t, err)
	entry, _ := c.GetLoadableEntry("main")

	spec, err := resolvePageTable(c, entry.Scope())
	require.NoError(t, err)
	require.Equal(t, 5, spec.Levels)
	require.Equal(t, PTConstraintExactly, spec.Constraint)
	require.True(t, spec.NullGuard)
}

func TestChooseLayoutExactly(t *testing.T) {
	typ, err := chooseLayout(elfload.ArchAMD64, PageTableSpec{Levels: 5, Constraint: PTConstraintExactly})
	require.NoError(t, err)
	require.Equal(t, pagetable.TypeAMD645Lvl, typ)

	_, err = chooseLayout(elfload.ArchAMD64, PageTableSpec{Levels: 3, Constraint: PTConstraintExactly})
	require.Error(t, err)
}

func TestChooseLayoutAtLeastPicksSmallestSufficient(t *testing.T) {
	typ, err := chooseLayout(elfload.ArchI386, PageTableSpec{Levels: 3, Constraint: PTConstraintAtLeast})
	require.NoError(t, err)
	require.Equal(t, pagetable.TypeI386PAE, typ)
}

func TestChooseLayoutMaximum(t *testing.T) {
	typ, err := chooseLayout(elfload.ArchAArch64, PageTableSpec{Constraint: PTConstraintMaximum})
	require.NoError(t, err)
	require.Equal(t, pagetable.TypeAArch64Granule52, typ)
}

func TestDirectMapLengthCoversHighestEntry(t *testing.T) {
	p := pmm.New([]pmm.Entry{
		{Base: 0, Size: 1 << 20, Type: memtype.Free},
		{Base: 8 << 30, Size: 1 << 20, Type: memtype.Reserved},
	}, pmm.DefaultKnownTypes())

	require.Equal(t, uint64(8<<30)+(1<<20), directMapLength(p))
}

func TestDirectMapLengthFloorsAtFourGiB(t *testing.T) {
	p := pmm.New([]pmm.Entry{{Base: 0, Size: 1 << 20, Type: memtype.Free}}, pmm.DefaultKnownTypes())
	require.Equal(t, uint64(fourGiB), directMapLength(p))
}
