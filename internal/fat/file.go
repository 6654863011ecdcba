package fat

import (
	"fmt"

	"github.com/ultraos/hyper/internal/fs"
)

// File is an open FAT file, with its cluster chain lazily flattened into a
// contiguous-range list on first read.
type File struct {
	fsys *FileSystem

	firstCluster uint32
	size         uint64
	ranges       []fileRange
}

// OpenFile opens e (previously yielded by an iterator over this
// filesystem) as a readable file.
func (f *FileSystem) OpenFile(e fs.DirEntry) (fs.File, error) {
	loc, ok := e.Sys.(dirLocation)
	if !ok {
		return nil, errNotADirEntry
	}

	return &File{fsys: f, firstCluster: loc.cluster, size: e.Size}, nil
}

// Size implements fs.File.
func (file *File) Size() uint64 { return file.size }

// Close implements fs.File. FAT files hold no resources beyond the shared
// filesystem handle, so Close is a no-op.
func (file *File) Close() error { return nil }

// ReadAt implements fs.File.
func (file *File) ReadAt(buf []byte, offset uint64) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	if file.ranges == nil {
		if err := file.fsys.computeContiguousRanges(file); err != nil {
			return 0, err
		}
	}

	bytesPerCluster := uint64(file.fsys.bytesPerCluster)
	clusterOffset := uint32(offset / bytesPerCluster)
	offsetWithinCluster := uint32(offset % bytesPerCluster)

	bytesLeftAfterOffset := file.size - offset
	toRead := uint64(len(buf))
	if toRead > bytesLeftAfterOffset {
		toRead = bytesLeftAfterOffset
	}
	if toRead == 0 {
		return 0, fmt.Errorf("fat: read past end of file")
	}

	var written int
	for toRead > 0 {
		cluster := file.clusterFromOffset(clusterOffset)
		clusterOffset++

		chunk := bytesPerCluster - uint64(offsetWithinCluster)
		if chunk > toRead {
			chunk = toRead
		}

		dst := buf[written : uint64(written)+chunk]
		if err := file.fsys.fatRead(dst, pureClusterValue(cluster), offsetWithinCluster); err != nil {
			return written, err
		}

		written += int(chunk)
		toRead -= chunk
		offsetWithinCluster = 0
	}

	return written, nil
}
