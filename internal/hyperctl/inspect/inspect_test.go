package inspect

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ultraos/hyper/internal/cfg"
	"github.com/ultraos/hyper/internal/diskio"
	"github.com/ultraos/hyper/internal/fs"
)

const testSegment = "ELFSEGMENTDATA!!" // 16 bytes

// buildELF64 assembles the smallest ELF64 executable decodeEhdr/Load will
// accept: one PT_LOAD segment carrying testSegment, identity-mapped at
// vaddr==paddr.
func buildELF64(vaddr, entry uint64) []byte {
	const (
		ehdrSize  = 64
		phdrSize  = 56
		phoff     = ehdrSize
		fileoff   = phoff + phdrSize
		elfMag0   = 0x7f
		elfClass6 = 2
		elfData1  = 1
		etExec    = 2
		emAMD64   = 62
		ptLoad    = 1
	)

	data := make([]byte, fileoff+len(testSegment))
	data[0], data[1], data[2], data[3] = elfMag0, 'E', 'L', 'F'
	data[4] = elfClass6
	data[5] = elfData1

	binary.LittleEndian.PutUint16(data[16:], etExec)
	binary.LittleEndian.PutUint16(data[18:], emAMD64)
	binary.LittleEndian.PutUint64(data[24:], entry)
	binary.LittleEndian.PutUint64(data[32:], phoff)
	binary.LittleEndian.PutUint16(data[54:], phdrSize)
	binary.LittleEndian.PutUint16(data[56:], 1)

	ph := data[phoff:]
	binary.LittleEndian.PutUint32(ph[0:], ptLoad)
	binary.LittleEndian.PutUint64(ph[8:], fileoff)
	binary.LittleEndian.PutUint64(ph[16:], vaddr)
	binary.LittleEndian.PutUint64(ph[24:], vaddr)
	binary.LittleEndian.PutUint64(ph[32:], uint64(len(testSegment)))
	binary.LittleEndian.PutUint64(ph[40:], uint64(len(testSegment)))

	copy(data[fileoff:], testSegment)
	return data
}

type fakeFile struct{ data []byte }

func (f *fakeFile) Size() uint64 { return uint64(len(f.data)) }
func (f *fakeFile) Close() error { return nil }
func (f *fakeFile) ReadAt(buf []byte, offset uint64) (int, error) {
	return copy(buf, f.data[offset:]), nil
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

type fakeFS struct{ files map[string][]byte }

func (f *fakeFS) Name() string { return "fake" }
func (f *fakeFS) RootDir() fs.DirEntry {
	return fs.DirEntry{Name: "", IsDir: true}
}
func (f *fakeFS) OpenDir(fs.DirEntry) (fs.DirIterator, error) {
	var entries []fs.DirEntry
	for name, data := range f.files {
		entries = append(entries, fs.DirEntry{Name: name, Size: uint64(len(data))})
	}
	return &fakeDirIterator{entries: entries}, nil
}
func (f *fakeFS) OpenFile(e fs.DirEntry) (fs.File, error) {
	data, ok := f.files[e.Name]
	if !ok {
		return nil, fs.ErrNotFound
	}
	return &fakeFile{data: data}, nil
}

func newTestTable(files map[string][]byte) *fs.Table {
	var table fs.Table
	entry := table.AddRaw(&diskio.Disk{ID: 1}, &fakeFS{files: files})
	table.SetOrigin(entry)
	return &table
}

func TestEntryReportsPlacementForIdentityMappedKernel(t *testing.T) {
	const vaddr = 0x100000
	bin := buildELF64(vaddr, vaddr+4)
	table := newTestTable(map[string][]byte{"kernel.elf": bin})

	c, err := cfg.Parse("[main]\nbinary = \"/kernel.elf\"\n")
	require.NoError(t, err)
	entry, ok := c.GetLoadableEntry("main")
	require.True(t, ok)

	report, err := Entry(table, c, entry, DefaultAssumedMemory)
	require.NoError(t, err)

	require.Equal(t, "main", report.Entry)
	require.EqualValues(t, vaddr+4, report.EntrypointAddress)
	require.EqualValues(t, vaddr, report.VirtualBase)
	require.EqualValues(t, vaddr, report.PhysicalBase)
	require.EqualValues(t, len(testSegment), report.BytesWritten)
	require.Zero(t, report.ModuleCount)
}

func TestEntryReportsModuleCount(t *testing.T) {
	const vaddr = 0x200000
	bin := buildELF64(vaddr, vaddr)
	table := newTestTable(map[string][]byte{
		"kernel.elf": bin,
		"initrd":     []byte("ramdisk"),
	})

	c, err := cfg.Parse("[main]\nbinary = \"/kernel.elf\"\nmodule = \"/initrd\"\n")
	require.NoError(t, err)
	entry, ok := c.GetLoadableEntry("main")
	require.True(t, ok)

	report, err := Entry(table, c, entry, DefaultAssumedMemory)
	require.NoError(t, err)
	require.Equal(t, 1, report.ModuleCount)
}

func TestEntryMissingBinaryIsError(t *testing.T) {
	table := newTestTable(map[string][]byte{})
	c, err := cfg.Parse("[main]\nbinary = \"/kernel.elf\"\n")
	require.NoError(t, err)
	entry, ok := c.GetLoadableEntry("main")
	require.True(t, ok)

	_, err = Entry(table, c, entry, DefaultAssumedMemory)
	require.Error(t, err)
}
