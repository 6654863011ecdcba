package fat

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"

	"github.com/ultraos/hyper/internal/blockcache"
	"github.com/ultraos/hyper/internal/diskio"
	"github.com/ultraos/hyper/internal/fs"
)

func init() {
	fs.Register(func(disk *diskio.Disk, r fs.Range, cache *blockcache.Cache) (fs.FileSystem, bool) {
		fsys, err := tryCreate(disk, r, cache)
		if err != nil || fsys == nil {
			return nil, false
		}
		return fsys, true
	})
}

// FileSystem is a mounted FAT12/16/32 partition (or raw superfloppy disk).
type FileSystem struct {
	disk  *diskio.Disk
	cache *blockcache.Cache

	lbaRange fs.Range // the partition's full range, absolute LBA

	fatType      fatType
	fatLBARange  fs.Range // absolute LBA
	dataLBARange fs.Range // absolute LBA

	rootDirEntries   uint16
	rootDirCluster   uint32 // FAT32
	rootDirSectorOff uint32 // FAT12/16, relative to lbaRange.StartLBA

	bytesPerCluster uint32
	fatClusters     uint32

	fatView       []byte
	fatViewOffset uint32

	rootDirFile *File
}

type fatInfo struct {
	fatType           fatType
	fatCount          uint32
	sectorsPerCluster uint32
	sectorsPerFAT     uint32
	clusterCount      uint32
	reservedSectors   uint32
	rootDirCluster    uint32
	rootDirSectors    uint32
	maxRootDirEntries uint16
}

func detectFAT(disk *diskio.Disk, r fs.Range, bpbBytes []byte) (fatInfo, bool) {
	var bpb33 dos33BPB
	if err := restruct.Unpack(bpbBytes[:25], binary.LittleEndian, &bpb33); err != nil {
		return fatInfo{}, false
	}
	bpb20 := bpb33.D20BPB

	if uint64(bpb20.BytesPerSector) != disk.BlockSize() {
		return fatInfo{}, false
	}

	var ebpb1216 fat1216EBPB
	var ebpb32 fat32EBPB
	_ = restruct.Unpack(bpbBytes[:51], binary.LittleEndian, &ebpb1216)
	_ = restruct.Unpack(bpbBytes[:79], binary.LittleEndian, &ebpb32)

	ebpb1216Valid := ebpb1216.Signature == ebpbOldSignature || ebpb1216.Signature == ebpbSignature
	var ebpb32Valid bool
	if ebpb1216.Signature < ebpbOldSignature {
		ebpb32Valid = ebpb32.Signature == ebpbOldSignature || ebpb32.Signature == ebpbSignature
	}

	info := fatInfo{
		fatCount:          uint32(bpb20.FATCount),
		sectorsPerCluster: uint32(bpb20.SectorsPerCluster),
		sectorsPerFAT:     uint32(bpb20.SectorsPerFATFAT12Or16),
		reservedSectors:   uint32(bpb20.ReservedSectors),
		maxRootDirEntries: bpb20.MaxRootDirEntries,
	}

	if info.sectorsPerFAT == 0 {
		if !ebpb32Valid {
			return fatInfo{}, false
		}
		info.sectorsPerFAT = ebpb32.SectorsPerFAT
	}

	if info.fatCount == 0 || info.sectorsPerCluster == 0 || info.sectorsPerFAT == 0 || info.reservedSectors == 0 {
		return fatInfo{}, false
	}

	rootDirBytes := uint32(info.maxRootDirEntries) * 32
	info.rootDirSectors = (rootDirBytes + uint32(disk.BlockSize()) - 1) / uint32(disk.BlockSize())

	dataSectors := uint32(r.EndLBA-r.StartLBA+1) - info.reservedSectors - info.rootDirSectors - info.fatCount*info.sectorsPerFAT
	info.clusterCount = dataSectors / info.sectorsPerCluster

	switch {
	case info.clusterCount < fat16MinClusters:
		info.fatType = fat12
		return info, info.maxRootDirEntries != 0

	case info.clusterCount < fat32MinClusters:
		info.fatType = fat16
		return info, info.maxRootDirEntries != 0

	default:
		if !ebpb32Valid {
			return fatInfo{}, false
		}
		info.fatType = fat32
		info.rootDirCluster = ebpb32.RootDirCluster
		return info, info.rootDirCluster >= reservedClusters
	}
}

func tryCreate(disk *diskio.Disk, r fs.Range, cache *blockcache.Cache) (*FileSystem, error) {
	sector := make([]byte, disk.BlockSize())
	if err := cache.ReadBlocks(sector, r.StartLBA, 1); err != nil {
		return nil, err
	}

	bpbBytes := sector[bpbOffset:]
	if len(bpbBytes) < 79 {
		return nil, nil
	}

	info, ok := detectFAT(disk, r, bpbBytes[:79])
	if !ok {
		return nil, nil
	}

	fsys := &FileSystem{
		disk:          disk,
		cache:         cache,
		lbaRange:      r,
		fatType:       info.fatType,
		fatViewOffset: fatViewOffInvalid,
	}

	cursor := r.StartLBA + uint64(info.reservedSectors)
	fsys.fatLBARange = fs.Range{StartLBA: cursor, EndLBA: cursor + uint64(info.sectorsPerFAT) - 1}
	cursor += uint64(info.sectorsPerFAT) * uint64(info.fatCount)

	switch info.fatType {
	case fat12, fat16:
		fsys.rootDirSectorOff = uint32(cursor - r.StartLBA)
		fsys.rootDirEntries = info.maxRootDirEntries
		cursor += uint64(info.rootDirSectors)
	case fat32:
		fsys.rootDirCluster = info.rootDirCluster
	}

	fsys.dataLBARange = fs.Range{StartLBA: cursor, EndLBA: r.EndLBA}
	fsys.bytesPerCluster = info.sectorsPerCluster * uint32(disk.BlockSize())
	fsys.fatClusters = uint32((fsys.fatLBARange.EndLBA - fsys.fatLBARange.StartLBA + 1) * disk.BlockSize() / 4)

	return fsys, nil
}

// Name identifies the driver for diagnostics.
func (f *FileSystem) Name() string {
	switch f.fatType {
	case fat12:
		return "fat12"
	case fat16:
		return "fat16"
	default:
		return "fat32"
	}
}
