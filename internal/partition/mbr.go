// Package partition discovers filesystems on MBR- and GPT-partitioned disks
// and registers them into an fs.Table. Discovery is the only consumer of
// diskio and blockcache below the fs package; drivers are reached purely
// through fs.TryDetect, never imported directly.
package partition

import (
	"encoding/binary"
	"fmt"

	"github.com/go-restruct/restruct"

	"github.com/ultraos/hyper/internal/blockcache"
	"github.com/ultraos/hyper/internal/diskio"
	"github.com/ultraos/hyper/internal/fs"
)

const (
	mbrSignatureOffset = 510
	mbrSignature       = 0xAA55
	mbrEntriesOffset   = 446
	mbrEntrySize       = 16
	mbrEntryCount      = 4

	partTypeEmpty            = 0x00
	partTypeExtendedCHS      = 0x05
	partTypeExtendedLBA      = 0x0F
	partTypeExtendedLinuxLBA = 0x85
	partTypeGPTProtective    = 0xEE
)

// mbrEntry mirrors the 16-byte on-disk MBR partition table entry.
type mbrEntry struct {
	Status      byte
	CHSStart    [3]byte
	Type        byte
	CHSEnd      [3]byte
	LBAStart    uint32
	SectorCount uint32
}

func isExtendedType(t byte) bool {
	return t == partTypeExtendedCHS || t == partTypeExtendedLBA || t == partTypeExtendedLinuxLBA
}

// DetectMBR reads sector 0 of disk and, if it carries a valid MBR signature
// and no GPT-protective (0xEE) entry, walks the primary partition table plus
// any chained EBRs, registering every non-empty, non-extended entry whose
// contents a filesystem driver recognizes. A sector with a protective entry
// is reported as not an MBR, so DiscoverDisk probes the disk as raw media.
func DetectMBR(disk *diskio.Disk, cache *blockcache.Cache, table *fs.Table) (bool, error) {
	sector := make([]byte, disk.BlockSize())
	if err := cache.ReadBlocks(sector, 0, 1); err != nil {
		return false, fmt.Errorf("partition: reading MBR sector: %w", err)
	}

	if binary.LittleEndian.Uint16(sector[mbrSignatureOffset:]) != mbrSignature {
		return false, nil
	}

	for i := 0; i < mbrEntryCount; i++ {
		if sector[mbrEntriesOffset+i*mbrEntrySize+4] == partTypeGPTProtective {
			return false, nil
		}
	}

	index := 0
	for i := 0; i < mbrEntryCount; i++ {
		raw := sector[mbrEntriesOffset+i*mbrEntrySize : mbrEntriesOffset+(i+1)*mbrEntrySize]

		var e mbrEntry
		if err := restruct.Unpack(raw, binary.LittleEndian, &e); err != nil {
			return false, fmt.Errorf("partition: decoding MBR entry %d: %w", i, err)
		}

		if e.Type == partTypeEmpty {
			continue
		}

		if isExtendedType(e.Type) {
			if err := walkEBRChain(disk, cache, table, uint64(e.LBAStart), uint64(e.LBAStart), &index); err != nil {
				return false, err
			}
			continue
		}

		registerMBREntry(disk, cache, table, uint64(e.LBAStart), uint64(e.SectorCount), index)
		index++
	}

	return true, nil
}

// walkEBRChain follows the linked list of extended boot records starting at
// ebrLBA. extendedBase is the start LBA of the outermost extended partition:
// the "pointer to next EBR" entry in each EBR is relative to it, while the
// "actual partition" entry in each EBR is relative to that EBR's own LBA.
func walkEBRChain(disk *diskio.Disk, cache *blockcache.Cache, table *fs.Table, ebrLBA, extendedBase uint64, index *int) error {
	const maxChainLength = 128 // guards against a corrupt, cyclic EBR chain

	for depth := 0; ebrLBA != 0 && depth < maxChainLength; depth++ {
		sector := make([]byte, disk.BlockSize())
		if err := cache.ReadBlocks(sector, ebrLBA, 1); err != nil {
			return fmt.Errorf("partition: reading EBR at LBA %d: %w", ebrLBA, err)
		}

		if binary.LittleEndian.Uint16(sector[mbrSignatureOffset:]) != mbrSignature {
			return nil
		}

		var entries [2]mbrEntry
		for i := range entries {
			raw := sector[mbrEntriesOffset+i*mbrEntrySize : mbrEntriesOffset+(i+1)*mbrEntrySize]
			if err := restruct.Unpack(raw, binary.LittleEndian, &entries[i]); err != nil {
				return fmt.Errorf("partition: decoding EBR entry %d: %w", i, err)
			}
		}

		actual := entries[0]
		if actual.Type != partTypeEmpty && !isExtendedType(actual.Type) {
			registerMBREntry(disk, cache, table, ebrLBA+uint64(actual.LBAStart), uint64(actual.SectorCount), *index)
			*index++
		}

		next := entries[1]
		if next.Type == partTypeEmpty || !isExtendedType(next.Type) {
			return nil
		}
		ebrLBA = extendedBase + uint64(next.LBAStart)
	}

	return nil
}

func registerMBREntry(disk *diskio.Disk, cache *blockcache.Cache, table *fs.Table, startLBA, sectorCount uint64, index int) {
	r := fs.Range{StartLBA: startLBA, EndLBA: startLBA + sectorCount - 1}
	if fsys, ok := fs.TryDetect(disk, r, cache); ok {
		table.AddMBR(disk, index, fsys)
	}
}
