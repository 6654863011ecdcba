package iso9660

import (
	"errors"

	"github.com/ultraos/hyper/internal/fs"
)

// RootDir implements fs.FileSystem.
func (f *FileSystem) RootDir() fs.DirEntry {
	return fs.DirEntry{
		IsDir: true,
		Sys:   dirLocation{baseOff: uint64(f.rootBlock) << f.blockShift, size: uint64(f.rootSize)},
	}
}

type dirIterator struct{ d *directory }

// OpenDir implements fs.FileSystem.
func (f *FileSystem) OpenDir(e fs.DirEntry) (fs.DirIterator, error) {
	loc, ok := e.Sys.(dirLocation)
	if !ok {
		return nil, errNotADirEntry
	}

	return &dirIterator{d: &directory{fsys: f, baseOff: loc.baseOff, size: loc.size}}, nil
}

// Next implements fs.DirIterator.
func (it *dirIterator) Next() (fs.DirEntry, bool, error) {
	ent, ok, err := it.d.next()
	if err != nil || !ok {
		return fs.DirEntry{}, false, err
	}

	return fs.DirEntry{
		Name:  ent.name,
		IsDir: ent.isDir,
		Size:  ent.size,
		Sys:   dirLocation{baseOff: uint64(ent.firstBlock) << it.d.fsys.blockShift, size: ent.size},
	}, true, nil
}

// File is an open ISO9660 file. Extents are contiguous on disk by
// construction (multi-extent files are read as a flat byte range; the
// accumulated size already spans every extent), so no range bookkeeping is
// needed beyond a single base offset.
type File struct {
	fsys    *FileSystem
	baseOff uint64
	size    uint64
}

// OpenFile implements fs.FileSystem.
func (f *FileSystem) OpenFile(e fs.DirEntry) (fs.File, error) {
	loc, ok := e.Sys.(dirLocation)
	if !ok {
		return nil, errNotADirEntry
	}

	return &File{fsys: f, baseOff: loc.baseOff, size: e.Size}, nil
}

// Size implements fs.File.
func (file *File) Size() uint64 { return file.size }

// Close implements fs.File.
func (file *File) Close() error { return nil }

// ReadAt implements fs.File.
func (file *File) ReadAt(buf []byte, offset uint64) (int, error) {
	if offset >= file.size {
		return 0, nil
	}

	n := uint64(len(buf))
	if left := file.size - offset; n > left {
		n = left
	}

	if err := file.fsys.cache.Read(buf[:n], file.baseOff+offset, n); err != nil {
		return 0, err
	}
	return int(n), nil
}

var errNotADirEntry = errors.New("iso9660: DirEntry was not produced by this filesystem")
