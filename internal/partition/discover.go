package partition

import (
	"github.com/ultraos/hyper/internal/blockcache"
	"github.com/ultraos/hyper/internal/diskio"
	"github.com/ultraos/hyper/internal/fs"
)

// defaultCacheWindowBlocks bounds how much of a disk the discovery cache
// holds resident at once; discovery only ever reads small, scattered
// headers, so a small window is plenty.
const defaultCacheWindowBlocks = 8

// DiscoverDisk probes disk for a partition table and registers every
// filesystem it finds into table. GPT is tried first, then MBR; a disk with
// neither is probed as raw, unpartitioned media (including a disk carrying
// only a protective MBR with no valid GPT header, which is treated the same
// way).
func DiscoverDisk(disk *diskio.Disk, table *fs.Table) error {
	cache := blockcache.New(disk, defaultCacheWindowBlocks)

	foundGPT, err := DetectGPT(disk, cache, table)
	if err != nil {
		return err
	}
	if foundGPT {
		return nil
	}

	foundMBR, err := DetectMBR(disk, cache, table)
	if err != nil {
		return err
	}
	if foundMBR {
		return nil
	}

	r := fs.Range{StartLBA: 0, EndLBA: disk.BlockCount - 1}
	if fsys, ok := fs.TryDetect(disk, r, cache); ok {
		table.AddRaw(disk, fsys)
	}

	return nil
}

// DiscoverAll probes every disk in disks and registers findings into table.
func DiscoverAll(disks []*diskio.Disk, table *fs.Table) error {
	for _, d := range disks {
		if err := DiscoverDisk(d, table); err != nil {
			return err
		}
	}
	return nil
}
