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
	gptHeaderLBA  = 1
	gptSignature  = "EFI PART"
	maxEntryArray = 1 << 20 // sanity bound on PartitionEntryArraySize to reject corrupt headers
)

// gptHeader mirrors the fixed portion of the GPT header as laid out at LBA 1.
type gptHeader struct {
	Signature                [8]byte
	Revision                 uint32
	HeaderSize               uint32
	HeaderCRC32              uint32
	Reserved                 uint32
	CurrentLBA               uint64
	BackupLBA                uint64
	FirstUsableLBA           uint64
	LastUsableLBA            uint64
	DiskGUID                 [16]byte
	PartitionEntryLBA        uint64
	NumberOfPartitionEntries uint32
	SizeOfPartitionEntry     uint32
	PartitionEntryArrayCRC32 uint32
}

// gptPartitionEntry mirrors one 128-byte (minimum) GPT partition entry.
type gptPartitionEntry struct {
	PartitionTypeGUID   [16]byte
	UniquePartitionGUID [16]byte
	StartingLBA         uint64
	EndingLBA           uint64
	Attributes          uint64
	Name                [72]byte // UTF-16LE, ignored
}

var zeroGUID [16]byte

// DetectGPT reads the GPT header at LBA 1 and, if its signature is valid,
// walks the partition entry array, registering every non-empty entry whose
// contents a filesystem driver recognizes.
func DetectGPT(disk *diskio.Disk, cache *blockcache.Cache, table *fs.Table) (bool, error) {
	headerBytes := make([]byte, disk.BlockSize())
	if err := cache.ReadBlocks(headerBytes, gptHeaderLBA, 1); err != nil {
		return false, fmt.Errorf("partition: reading GPT header: %w", err)
	}

	var hdr gptHeader
	if err := restruct.Unpack(headerBytes[:92], binary.LittleEndian, &hdr); err != nil {
		return false, fmt.Errorf("partition: decoding GPT header: %w", err)
	}

	if string(hdr.Signature[:]) != gptSignature {
		return false, nil
	}

	if hdr.NumberOfPartitionEntries == 0 || hdr.SizeOfPartitionEntry < 128 {
		return false, fmt.Errorf("partition: implausible GPT entry array geometry")
	}
	if uint64(hdr.NumberOfPartitionEntries)*uint64(hdr.SizeOfPartitionEntry) > maxEntryArray {
		return false, fmt.Errorf("partition: GPT entry array too large")
	}

	diskGUID := fs.ParseDiskGUID(hdr.DiskGUID[:])

	entrySize := uint64(hdr.SizeOfPartitionEntry)
	entriesPerBlock := disk.BlockSize() / entrySize
	arrayBytes := uint64(hdr.NumberOfPartitionEntries) * entrySize
	blocksNeeded := (arrayBytes + disk.BlockSize() - 1) / disk.BlockSize()

	buf := make([]byte, blocksNeeded*disk.BlockSize())
	if err := cache.ReadBlocks(buf, hdr.PartitionEntryLBA, blocksNeeded); err != nil {
		return false, fmt.Errorf("partition: reading GPT partition entry array: %w", err)
	}
	_ = entriesPerBlock

	for i := uint32(0); i < hdr.NumberOfPartitionEntries; i++ {
		raw := buf[uint64(i)*entrySize : uint64(i)*entrySize+128]

		var e gptPartitionEntry
		if err := restruct.Unpack(raw, binary.LittleEndian, &e); err != nil {
			return false, fmt.Errorf("partition: decoding GPT entry %d: %w", i, err)
		}

		if e.PartitionTypeGUID == zeroGUID {
			continue
		}

		r := fs.Range{StartLBA: e.StartingLBA, EndLBA: e.EndingLBA}
		if fsys, ok := fs.TryDetect(disk, r, cache); ok {
			partGUID := fs.ParseDiskGUID(e.UniquePartitionGUID[:])
			table.AddGPT(disk, int(i), diskGUID, partGUID, fsys)
		}
	}

	return true, nil
}
