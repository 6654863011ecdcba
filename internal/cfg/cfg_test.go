package cfg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultEntryAndLoadableSection(t *testing.T) {
	src := "default-entry = main\n[main]\nbinary = \"/kernel.elf\"\n"

	c, err := Parse(src)
	require.NoError(t, err)

	def, ok, err := c.GetString(Global(), "default-entry")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "main", def)

	entry, ok := c.GetLoadableEntry("main")
	require.True(t, ok)

	binary, ok, err := c.GetString(entry.Scope(), "binary")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/kernel.elf", binary)
}

func TestParseNestedObjectValue(t *testing.T) {
	src := "[entry]\n" +
		"binary:\n" +
		"  path = \"/boot/kernel\"\n" +
		"  allocate-anywhere = true\n"

	c, err := Parse(src)
	require.NoError(t, err)

	entry, ok := c.GetLoadableEntry("entry")
	require.True(t, ok)

	binary, ok, err := c.GetObject(entry.Scope(), "binary")
	require.NoError(t, err)
	require.True(t, ok)

	path, ok, err := c.GetString(binary.Scope(), "path")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/boot/kernel", path)

	anywhere, ok, err := c.GetBool(binary.Scope(), "allocate-anywhere")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, anywhere)
}

func TestParseRepeatableModuleKeys(t *testing.T) {
	src := "[entry]\n" +
		"module = \"/boot/initrd\"\n" +
		"module = \"/boot/extra\"\n"

	c, err := Parse(src)
	require.NoError(t, err)

	entry, ok := c.GetLoadableEntry("entry")
	require.True(t, ok)

	it := c.Iterate(entry.Scope(), "module", ValueString)

	v1, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/boot/initrd", v1.String)

	v2, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/boot/extra", v2.String)

	_, ok, err = it.Next()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestParseMixedTabsAndSpacesIsAmbiguous(t *testing.T) {
	src := "key:\n\tsub = 1\n sub2 = 2\n"

	_, err := Parse(src)
	require.Error(t, err)

	perr, ok := err.(*ParseError)
	require.True(t, ok)
	require.Equal(t, "mixed tabs and spaces are ambiguous", perr.Message)
	require.Equal(t, 3, perr.Line)
}

func TestParseRejectsEmptyLoadableEntry(t *testing.T) {
	src := "[main]\n[other]\nbinary = /k\n"

	_, err := Parse(src)
	require.Error(t, err)
}

func TestParseRejectsEmptyObject(t *testing.T) {
	src := "key:\n" + "other = 1\n"

	_, err := Parse(src)
	require.Error(t, err)
}

func TestParseIsIdempotent(t *testing.T) {
	src := "default-entry = main\n[main]\nbinary = \"/kernel.elf\"\nmodule = \"/a\"\nmodule = \"/b\"\n"

	c1, err := Parse(src)
	require.NoError(t, err)
	c2, err := Parse(src)
	require.NoError(t, err)

	require.Equal(t, c1.entries, c2.entries)
}

func TestParseBoolsAndNumbers(t *testing.T) {
	src := "[entry]\n" +
		"higher-half-exclusive = true\n" +
		"page-table:\n" +
		"  levels = 4\n" +
		"  null-guard = false\n"

	c, err := Parse(src)
	require.NoError(t, err)

	entry, ok := c.GetLoadableEntry("entry")
	require.True(t, ok)

	hhe, ok, err := c.GetBool(entry.Scope(), "higher-half-exclusive")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, hhe)

	pt, ok, err := c.GetObject(entry.Scope(), "page-table")
	require.NoError(t, err)
	require.True(t, ok)

	levels, ok, err := c.GetUnsigned(pt.Scope(), "levels")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 4, levels)

	guard, ok, err := c.GetBool(pt.Scope(), "null-guard")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, guard)
}

func TestPrettyPrintError(t *testing.T) {
	src := "key:\n\tsub = 1\n sub2 = 2\n"
	_, err := Parse(src)
	require.Error(t, err)

	perr := err.(*ParseError)
	out := PrettyPrint(src, perr)
	require.Contains(t, out, "mixed tabs and spaces are ambiguous")
	require.Contains(t, out, " sub2 = 2")
	require.Contains(t, out, "^")
}
