package fat

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/go-restruct/restruct"

	"github.com/ultraos/hyper/internal/fs"
)

// dirLocation is the opaque payload stashed in fs.DirEntry.Sys for
// directories: where to start reading entries from.
type dirLocation struct {
	cluster      uint32 // FAT32, or FAT12/16 non-root subdirectory
	fixedCapRoot bool   // FAT12/16 root: fixed-size sector span, not a cluster chain
}

// RootDir returns the opaque root directory location.
func (f *FileSystem) RootDir() fs.DirEntry {
	loc := dirLocation{fixedCapRoot: f.fatType != fat32}
	if f.fatType == fat32 {
		loc.cluster = f.rootDirCluster
	}
	return fs.DirEntry{Name: "", IsDir: true, Sys: loc}
}

type directory struct {
	fsys *FileSystem

	currentCluster uint32
	fixedCapRoot   bool
	currentOffset  uint32
	eof            bool
}

var errNotADirEntry = fmt.Errorf("fat: DirEntry was not produced by this filesystem")

// OpenDir returns an iterator over e's directory entries. e must be a
// directory DirEntry previously yielded by RootDir or this package's own
// iterator.
func (f *FileSystem) OpenDir(e fs.DirEntry) (fs.DirIterator, error) {
	loc, ok := e.Sys.(dirLocation)
	if !ok {
		return nil, errNotADirEntry
	}

	return &directory{
		fsys:           f,
		currentCluster: loc.cluster,
		fixedCapRoot:   loc.fixedCapRoot,
	}, nil
}

// fetchRaw reads the next raw 32-byte directory entry, advancing position
// and following the cluster chain (or detecting end of the fixed-size root
// region) as needed.
func (d *directory) fetchRaw() ([]byte, bool, error) {
	if d.eof {
		return nil, false, nil
	}

	if d.fixedCapRoot {
		return d.fetchRawFixedRoot()
	}

	if d.currentOffset == d.fsys.bytesPerCluster {
		next := d.fsys.fatEntryAt(d.currentCluster)
		if entryKindOf(next, d.fsys.fatType) != entryLink {
			d.eof = true
			return nil, false, nil
		}
		d.currentCluster = next
		d.currentOffset = 0
	}

	raw := make([]byte, 32)
	if err := d.fsys.fatRead(raw, pureClusterValue(d.currentCluster), d.currentOffset); err != nil {
		d.eof = true
		return nil, false, err
	}
	d.currentOffset += 32
	return raw, true, nil
}

func (d *directory) fetchRawFixedRoot() ([]byte, bool, error) {
	if d.currentOffset/32 == uint32(d.fsys.rootDirEntries) {
		d.eof = true
		return nil, false, nil
	}

	byteOff := (d.fsys.lbaRange.StartLBA+uint64(d.fsys.rootDirSectorOff))*d.fsys.disk.BlockSize() + uint64(d.currentOffset)
	raw := make([]byte, 32)
	if err := d.fsys.cache.Read(raw, byteOff, 32); err != nil {
		d.eof = true
		return nil, false, err
	}
	d.currentOffset += 32
	return raw, true, nil
}

type directoryRecord struct {
	name         string
	isDirectory  bool
	firstCluster uint32
	size         uint32
}

func decodeNormalEntry(raw []byte) (directoryEntry, error) {
	var e directoryEntry
	err := restruct.Unpack(raw, binary.LittleEndian, &e)
	return e, err
}

func decodeLongEntry(raw []byte) (longNameEntry, error) {
	var e longNameEntry
	err := restruct.Unpack(raw, binary.LittleEndian, &e)
	return e, err
}

func processNormalEntry(e *directoryEntry, isLong bool) directoryRecord {
	filename := e.Filename
	extension := e.Extension

	if e.CaseInfo&lowercaseNameBit != 0 {
		lower(filename[:])
	}
	if e.CaseInfo&lowercaseExtensionBit != 0 {
		lower(extension[:])
	}

	rec := directoryRecord{
		size:         e.Size,
		firstCluster: uint32(e.ClusterHigh)<<16 | uint32(e.ClusterLow),
		isDirectory:  e.Attributes&subdirAttribute != 0,
	}

	if !isLong {
		name := strings.TrimRight(string(filename[:]), " ")
		ext := strings.TrimRight(string(extension[:]), " ")
		if ext != "" {
			name += "." + ext
		}
		rec.name = name
	}

	return rec
}

func lower(b []byte) {
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c - 'A' + 'a'
		}
	}
}

func ucs2ToASCII(ucs2 []byte) string {
	var sb strings.Builder
	for i := 0; i+1 < len(ucs2); i += 2 {
		ch := uint16(ucs2[i]) | uint16(ucs2[i+1])<<8
		if ch == 0 {
			break
		}
		if ch > 127 {
			sb.WriteByte('?')
		} else {
			sb.WriteByte(byte(ch))
		}
	}
	return sb.String()
}

func shortNameArray(e directoryEntry) [fullShortNameLength]byte {
	var out [fullShortNameLength]byte
	copy(out[:shortNameLength], e.Filename[:])
	copy(out[shortNameLength:], e.Extension[:])
	return out
}

// next returns the next visible entry (long-name entries are transparently
// assembled into one record), or ok=false at end of directory.
func (d *directory) next() (directoryRecord, bool, error) {
	for {
		raw, ok, err := d.fetchRaw()
		if err != nil || !ok {
			return directoryRecord{}, false, err
		}

		if raw[0] == deletedFileMark {
			continue
		}
		if raw[0] == endOfDirectoryMark {
			d.eof = true
			return directoryRecord{}, false, nil
		}

		normal, err := decodeNormalEntry(raw)
		if err != nil {
			return directoryRecord{}, false, err
		}

		if normal.Attributes&deviceAttribute != 0 {
			continue
		}

		isLong := normal.Attributes&longNameAttribute == longNameAttribute
		if !isLong && normal.Attributes&volumeLabelAttribute != 0 {
			continue
		}

		if !isLong {
			return processNormalEntry(&normal, false), true, nil
		}

		rec, ok, err := d.assembleLongName(raw)
		if err != nil || !ok {
			return directoryRecord{}, false, err
		}
		return rec, true, nil
	}
}

func (d *directory) assembleLongName(firstRaw []byte) (directoryRecord, bool, error) {
	long, err := decodeLongEntry(firstRaw)
	if err != nil {
		return directoryRecord{}, false, err
	}

	initialSeq := long.SequenceNumber & sequenceNumMask
	if long.SequenceNumber&lastLogicalEntryBit == 0 {
		return directoryRecord{}, false, nil
	}

	seq := initialSeq
	checksums := make([]byte, maxSequenceNumber)
	var parts []string
	var shortRaw []byte

	for {
		parts = append([]string{ucs2ToASCII(long.Name1[:]) + ucs2ToASCII(long.Name2[:]) + ucs2ToASCII(long.Name3[:])}, parts...)
		checksums[seq-1] = long.Checksum

		nextRaw, ok, err := d.fetchRaw()
		if err != nil || !ok {
			return directoryRecord{}, false, err
		}

		if seq == 1 {
			shortRaw = nextRaw
			break
		}

		long, err = decodeLongEntry(nextRaw)
		if err != nil {
			return directoryRecord{}, false, err
		}
		seq--
	}

	name := strings.Join(parts, "")
	if len(name) >= maxNameLength {
		name = name[:maxNameLength-1]
	}

	shortEntry, err := decodeNormalEntry(shortRaw)
	if err != nil {
		return directoryRecord{}, false, err
	}

	rec := processNormalEntry(&shortEntry, true)
	rec.name = name

	checksum := generateShortNameChecksum(shortNameArray(shortEntry))
	for i := 0; i < int(initialSeq); i++ {
		if checksums[i] != checksum {
			return directoryRecord{}, false, nil
		}
	}

	return rec, true, nil
}

// Next implements fs.DirIterator.
func (d *directory) Next() (fs.DirEntry, bool, error) {
	rec, ok, err := d.next()
	if err != nil || !ok {
		return fs.DirEntry{}, false, err
	}

	return fs.DirEntry{
		Name:  rec.name,
		IsDir: rec.isDirectory,
		Size:  uint64(rec.size),
		Sys:   dirLocation{cluster: rec.firstCluster},
	}, true, nil
}
