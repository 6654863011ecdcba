package iso9660

import "fmt"

// dirLocation is the opaque payload stashed in fs.DirEntry.Sys: the byte
// offset and size of the directory's (possibly multi-extent) data.
type dirLocation struct {
	baseOff uint64
	size    uint64
}

type directory struct {
	fsys    *FileSystem
	baseOff uint64
	curOff  uint64
	size    uint64
}

func (d *directory) eof() bool { return d.curOff == d.size }

func (d *directory) consume(n uint64) bool {
	left := d.size - d.curOff
	if left < n {
		return false
	}
	d.curOff += n
	return true
}

func (d *directory) skipTo(off uint64) bool {
	if d.size <= off || d.size-off < dirRecordFixedLen {
		d.curOff = d.size
		return false
	}
	d.curOff = off
	return true
}

func alignUp(v uint64, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// fetchRaw returns the next raw directory record, handling the ISO9660 rule
// that a record never spans a sector boundary: a zero length byte before
// the boundary means "skip to the next sector".
func (d *directory) fetchRaw() (dirRecord, bool, error) {
	blockSize := uint64(1) << d.fsys.blockShift

	for {
		if d.eof() {
			return dirRecord{}, false, nil
		}

		alignedOff := alignUp(d.curOff, blockSize)
		recLenMax := alignedOff - d.curOff
		if recLenMax == 0 || d.size < alignedOff {
			recLenMax = 255
		} else if d.size-d.curOff < recLenMax {
			recLenMax = d.size - d.curOff
		}

		if recLenMax <= dirRecordFixedLen {
			if !d.skipTo(alignedOff) {
				return dirRecord{}, false, nil
			}
			continue
		}

		raw := make([]byte, recLenMax)
		if err := d.fsys.cache.Read(raw, d.baseOff+d.curOff, recLenMax); err != nil {
			return dirRecord{}, false, err
		}

		recLen := uint64(raw[0])
		if recLen == 0 {
			if recLenMax == 255 {
				d.curOff = d.size
				return dirRecord{}, false, nil
			}
			if !d.skipTo(alignedOff) {
				return dirRecord{}, false, nil
			}
			continue
		}

		identLen := uint64(raw[32])
		if identLen%2 == 0 {
			identLen++
		}
		recLenMin := uint64(dirRecordFixedLen) + identLen

		if recLen > recLenMax || recLen < recLenMin {
			return dirRecord{}, false, fmt.Errorf("iso9660: invalid record length %d (want [%d,%d])", recLen, recLenMin, recLenMax)
		}

		if !d.consume(recLen) {
			return dirRecord{}, false, fmt.Errorf("iso9660: corrupted directory record")
		}

		rec, ok := parseDirRecord(raw[:recLen])
		if !ok {
			return dirRecord{}, false, fmt.Errorf("iso9660: malformed directory record")
		}
		return rec, true, nil
	}
}

// readMultiExtentSize follows a chain of ISO9660_MULTI_EXT records,
// summing their data lengths into a single logical file size.
func (d *directory) readMultiExtentSize(initial uint64) (uint64, error) {
	total := initial
	for n := 0; ; n++ {
		if n == maxSaneChainLength {
			return 0, fmt.Errorf("iso9660: multi-extent chain too long")
		}

		rec, ok, err := d.fetchRaw()
		if err != nil {
			return 0, err
		}
		if !ok {
			return total, nil
		}

		total += uint64(rec.dataLength)
		if rec.flags&flagMultiExtent == 0 {
			return total, nil
		}
	}
}

type entry struct {
	name     string
	isDir    bool
	firstBlock uint32
	size       uint64
}

// next returns the next visible directory entry, folding multi-extent
// chains and hidden/associated records as the reference driver does.
func (d *directory) next() (entry, bool, error) {
	for {
		rec, ok, err := d.fetchRaw()
		if err != nil || !ok {
			return entry{}, false, err
		}

		name, err := d.fsys.recordName(rec)
		if err != nil {
			return entry{}, false, err
		}

		firstBlock := rec.locationOfExtent + uint32(rec.extAttrRecLength)
		size := uint64(rec.dataLength)

		if rec.flags&flagMultiExtent != 0 {
			size, err = d.readMultiExtentSize(size)
			if err != nil {
				return entry{}, false, err
			}
		}

		if rec.flags&(flagAssocFile|flagHiddenDir) != 0 {
			continue
		}

		return entry{
			name:       name,
			isDir:      rec.flags&flagSubdir != 0,
			firstBlock: firstBlock,
			size:       size,
		}, true, nil
	}
}
