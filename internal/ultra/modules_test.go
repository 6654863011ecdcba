package ultra

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ultraos/hyper/internal/cfg"
	"github.com/ultraos/hyper/internal/diskio"
	"github.com/ultraos/hyper/internal/fs"
	"github.com/ultraos/hyper/internal/memtype"
	"github.com/ultraos/hyper/internal/pmm"
)

func TestResolveModulesBareStrings(t *testing.T) {
	c, err := cfg.Parse("[main]\nmodule = \"/initrd\"\nmodule = \"/extra\"\n")
	require.NoError(t, err)
	entry, ok := c.GetLoadableEntry("main")
	require.True(t, ok)

	specs, err := resolveModules(c, entry.Scope())
	require.NoError(t, err)
	require.Len(t, specs, 2)
	require.Equal(t, "/initrd", specs[0].Path)
	require.True(t, specs[0].LoadAtAnywhere)
	require.True(t, specs[0].SizeAuto)
}

func TestResolveModulesObjectForm(t *testing.T) {
	c, err := cfg.Parse(
		"[main]\n" +
			"module:\n" +
			"\tname = \"initrd\"\n" +
			"\tpath = \"/initrd\"\n" +
			"\ttype = \"file\"\n" +
			"\tsize = 4096\n" +
			"\tload-at = 0x100000\n")
	require.NoError(t, err)
	entry, ok := c.GetLoadableEntry("main")
	require.True(t, ok)

	specs, err := resolveModules(c, entry.Scope())
	require.NoError(t, err)
	require.Len(t, specs, 1)
	require.Equal(t, "initrd", specs[0].Name)
	require.Equal(t, ModuleFile, specs[0].Kind)
	require.Equal(t, uint64(4096), specs[0].Size)
	require.False(t, specs[0].LoadAtAnywhere)
	require.Equal(t, uint64(0x100000), specs[0].LoadAt)
}

// fakeDirEntry/fakeFS implement a single flat root directory holding one
// file, enough to exercise fs.Open without a real filesystem driver.
type fakeFile struct{ data []byte }

func (f *fakeFile) Size() uint64 { return uint64(len(f.data)) }
func (f *fakeFile) Close() error { return nil }
func (f *fakeFile) ReadAt(buf []byte, offset uint64) (int, error) {
	n := copy(buf, f.data[offset:])
	return n, nil
}

type fakeDirIterator struct {
	entries []fs.DirEntry
	i       int
}

func (it *fakeDirIterator) Next() (fs.DirEntry, bool, error) {
	if it.i >= len(it.entries) {
		return fs.DirEntry{}, false, nil
	}
	e := it.entries[it.i]
	it.i++
	return e, true, nil
}

type fakeFS struct {
	name string
	data []byte
}

func (f *fakeFS) Name() string { return f.name }
func (f *fakeFS) RootDir() fs.DirEntry {
	return fs.DirEntry{Name: "", IsDir: true}
}
func (f *fakeFS) OpenDir(e fs.DirEntry) (fs.DirIterator, error) {
	return &fakeDirIterator{entries: []fs.DirEntry{{Name: "initrd", Size: uint64(len(f.data))}}}, nil
}
func (f *fakeFS) OpenFile(e fs.DirEntry) (fs.File, error) {
	return &fakeFile{data: f.data}, nil
}

type fakeModuleMemory struct{ buf []byte }

func (m *fakeModuleMemory) WriteAt(addr uint64, data []byte) error {
	copy(m.buf[addr:], data)
	return nil
}
func (m *fakeModuleMemory) Zero(addr uint64, n uint64) error {
	for i := uint64(0); i < n; i++ {
		m.buf[addr+i] = 0
	}
	return nil
}

func newTestTable(data []byte) *fs.Table {
	var table fs.Table
	disk := &diskio.Disk{ID: 1}
	entry := table.AddRaw(disk, &fakeFS{name: "test", data: data})
	table.SetOrigin(entry)
	return &table
}

func TestLoadModulesZeroPadsShortFile(t *testing.T) {
	table := newTestTable([]byte("hello"))
	p := pmm.New([]pmm.Entry{{Base: 0, Size: 1 << 20, Type: memtype.Free}}, pmm.DefaultKnownTypes())
	mem := &fakeModuleMemory{buf: make([]byte, 1<<20)}

	specs := []ModuleSpec{{Name: "initrd", Path: "/initrd", Kind: ModuleFile, Size: 16, LoadAtAnywhere: true}}
	loaded, err := loadModules(table, p, mem, 1<<20, specs)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, uint64(16), loaded[0].Length)
	require.Equal(t, []byte("hello"), mem.buf[loaded[0].PhysicalAddress:loaded[0].PhysicalAddress+5])
	for _, b := range mem.buf[loaded[0].PhysicalAddress+5 : loaded[0].PhysicalAddress+16] {
		require.Zero(t, b)
	}
}

func TestLoadModulesMemoryKind(t *testing.T) {
	p := pmm.New(nil, pmm.DefaultKnownTypes())
	mem := &fakeModuleMemory{buf: make([]byte, 1<<20)}

	specs := []ModuleSpec{{Name: "embedded", Kind: ModuleMemory, MemoryAddress: 0x2000, Size: 64}}
	loaded, err := loadModules(nil, p, mem, 1<<20, specs)
	require.NoError(t, err)
	require.Equal(t, uint64(0x2000), loaded[0].PhysicalAddress)
	require.Equal(t, uint64(64), loaded[0].Length)
}
