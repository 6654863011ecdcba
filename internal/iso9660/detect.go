package iso9660

import (
	"fmt"

	"github.com/ultraos/hyper/internal/blockcache"
	"github.com/ultraos/hyper/internal/diskio"
	"github.com/ultraos/hyper/internal/fs"
)

func init() {
	fs.Register(func(disk *diskio.Disk, r fs.Range, cache *blockcache.Cache) (fs.FileSystem, bool) {
		fsys, err := tryCreate(disk, cache)
		if err != nil || fsys == nil {
			return nil, false
		}
		return fsys, true
	})
}

// FileSystem is a mounted ISO9660 volume. Unlike the other drivers, ISO9660
// addresses the whole disk directly (partition::/ semantics are not
// meaningful for optical media), so detection ignores r and always starts
// at the system area.
type FileSystem struct {
	disk       *diskio.Disk
	cache      *blockcache.Cache
	blockShift uint

	rootBlock  uint32
	rootSize   uint32
	volumeSize uint32

	suOff int // -1: no Rock Ridge SUSP "SP" entry found
}

func blockShiftForSize(size uint16) (uint, bool) {
	switch size {
	case 2048:
		return 11, true
	case 1024:
		return 10, true
	case 512:
		return 9, true
	default:
		return 0, false
	}
}

func tryCreate(disk *diskio.Disk, cache *blockcache.Cache) (*FileSystem, error) {
	if disk.BlockSize() > logicalSectorSize {
		return nil, nil
	}

	pvd := make([]byte, logicalSectorSize)
	off := uint64(logicalSectorSize) * systemAreaBlocks

	for {
		if err := cache.Read(pvd, off, logicalSectorSize); err != nil {
			return nil, err
		}

		if string(pvd[1:6]) != identifier {
			return nil, nil
		}

		switch pvd[0] {
		case vdTypePrimary:
			return initFromPVD(disk, cache, pvd)
		case vdTypeTerminator:
			return nil, nil
		}

		off += logicalSectorSize
	}
}

func initFromPVD(disk *diskio.Disk, cache *blockcache.Cache, pvd []byte) (*FileSystem, error) {
	blockSize := get723(pvd[128:132])
	blockShift, ok := blockShiftForSize(blockSize)
	if !ok {
		return nil, fmt.Errorf("iso9660: unsupported logical block size %d", blockSize)
	}

	rootRec, ok := parseDirRecord(pvd[156:190])
	if !ok {
		return nil, fmt.Errorf("iso9660: malformed root directory record")
	}

	volumeSize := get733(pvd[80:88])
	rootBlock := rootRec.locationOfExtent + uint32(rootRec.extAttrRecLength)
	rootSize := rootRec.dataLength
	rootLastBlock := rootBlock + ceilDiv(rootSize, blockSize)

	if rootSize == 0 || rootLastBlock >= volumeSize || rootLastBlock < rootBlock {
		return nil, fmt.Errorf("iso9660: invalid root directory (block %d, size %d)", rootBlock, rootSize)
	}

	fsys := &FileSystem{
		disk:       disk,
		cache:      cache,
		blockShift: blockShift,
		rootBlock:  rootBlock,
		rootSize:   rootSize,
		volumeSize: volumeSize,
		suOff:      -1,
	}

	if err := fsys.initSUOffset(); err != nil {
		return nil, err
	}

	return fsys, nil
}

func ceilDiv(a uint32, b uint16) uint32 {
	return (a + uint32(b) - 1) / uint32(b)
}

// Name identifies the driver for diagnostics.
func (f *FileSystem) Name() string { return "iso9660" }
