// Package fs defines the uniform filesystem-driver contract every concrete
// driver (FAT12/16/32, ISO9660) implements, plus the filesystem table and
// path resolver that sit on top of them. Drivers never import each other or
// the partition-discovery layer; they register a Detector at init time and
// are otherwise only reachable through this package's interfaces.
package fs

import (
	"fmt"

	"github.com/ultraos/hyper/internal/blockcache"
	"github.com/ultraos/hyper/internal/diskio"
)

// DirEntry is one directory entry as yielded by a driver's iterator. Sys
// holds the driver-specific location needed to open or descend into it
// (e.g. a starting cluster for FAT, an extent LBA for ISO9660); callers
// outside the owning driver must treat it as opaque.
type DirEntry struct {
	Name  string
	IsDir bool
	Size  uint64
	Sys   any
}

// DirIterator yields directory entries in a stable, deterministic order.
// Successive iterations over the same directory must yield the same
// sequence (see the directory-iteration-determinism property).
type DirIterator interface {
	Next() (DirEntry, bool, error)
}

// File is an open, offset-addressable file handle. The opener is
// responsible for calling Close.
type File interface {
	Size() uint64
	ReadAt(buf []byte, offset uint64) (int, error)
	Close() error
}

// FileSystem is a mounted filesystem instance bound to one partition (or
// whole-disk range, for raw/superfloppy media).
type FileSystem interface {
	Name() string
	RootDir() DirEntry
	OpenDir(e DirEntry) (DirIterator, error)
	OpenFile(e DirEntry) (File, error)
}

// Range is an inclusive LBA range, matching the GPT StartingLBA/EndingLBA
// convention partition discovery hands to filesystem detectors.
type Range struct {
	StartLBA uint64
	EndLBA   uint64
}

// Detector probes disk over the given LBA range and returns a mounted
// FileSystem if it recognizes the contents there.
type Detector func(disk *diskio.Disk, r Range, cache *blockcache.Cache) (FileSystem, bool)

var detectors []Detector

// Register adds a filesystem detector to the global probe order. Drivers
// call this from an init function; registration order determines probe
// order, which only matters in the pathological case of two drivers both
// claiming the same bytes.
func Register(d Detector) {
	detectors = append(detectors, d)
}

// TryDetect runs every registered detector over r in registration order and
// returns the first match.
func TryDetect(disk *diskio.Disk, r Range, cache *blockcache.Cache) (FileSystem, bool) {
	for _, d := range detectors {
		if fsys, ok := d(disk, r, cache); ok {
			return fsys, true
		}
	}
	return nil, false
}

// ErrNotFound is returned by path lookups and directory traversal when a
// named component does not exist.
var ErrNotFound = fmt.Errorf("fs: no such file or directory")

// ErrNotADirectory is returned when a non-final path component resolves to
// a regular file.
var ErrNotADirectory = fmt.Errorf("fs: not a directory")
