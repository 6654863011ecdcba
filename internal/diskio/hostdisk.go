package diskio

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

// HostFile is a BlockDevice backed by a regular file or block device node on
// the host running the loader's tests and hyperctl tooling. It stands in for
// the BIOS/UEFI disk-read thunks a real firmware build would use.
type HostFile struct {
	f    *os.File
	mm   mmap.MMap
	size int64
}

// OpenHostFile opens path read-only and memory-maps it so ReadBlocks can
// copy straight out of the mapping instead of issuing a pread per read.
func OpenHostFile(path string) (*HostFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	hf := &HostFile{f: f, size: st.Size()}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		// Fall back to pread-based access; some filesystems (and most
		// CI sandboxes) refuse mmap on certain mounts.
		hf.mm = nil
		return hf, nil
	}
	hf.mm = m

	return hf, nil
}

func (h *HostFile) Close() error {
	if h.mm != nil {
		_ = h.mm.Unmap()
	}
	return h.f.Close()
}

// readAt fills dst from the file at offset. The block size is fixed at
// construction time via NewHostDisk below; HostFile itself is block-size
// agnostic and just validates the requested byte range fits the file.
func (h *HostFile) readAt(dst []byte, offset int64) error {
	if offset+int64(len(dst)) > h.size {
		return fmt.Errorf("diskio: read past end of host file (off=%d len=%d size=%d)", offset, len(dst), h.size)
	}

	if h.mm != nil {
		copy(dst, h.mm[offset:offset+int64(len(dst))])
		return nil
	}

	n, err := unix.Pread(int(h.f.Fd()), dst, offset)
	if err != nil {
		return err
	}
	if n != len(dst) {
		return fmt.Errorf("diskio: short read (%d of %d bytes)", n, len(dst))
	}
	return nil
}

// hostBlockDevice adapts a HostFile to BlockDevice for a fixed block size.
type hostBlockDevice struct {
	file       *HostFile
	blockShift uint
}

func (h *hostBlockDevice) ReadBlocks(dst []byte, startBlock uint64, count uint64) error {
	blockSize := uint64(1) << h.blockShift
	want := count * blockSize
	if uint64(len(dst)) != want {
		return fmt.Errorf("diskio: buffer is %d bytes, expected %d", len(dst), want)
	}
	return h.file.readAt(dst, int64(startBlock*blockSize))
}

// NewHostDisk builds a Disk over a host file, computing the block count from
// the file size and the given block shift (9 for 512B sectors, 11 for 2048B
// optical sectors).
func NewHostDisk(id uint32, f *HostFile, blockShift uint) *Disk {
	blockSize := int64(1) << blockShift
	return &Disk{
		ID:         id,
		Device:     &hostBlockDevice{file: f, blockShift: blockShift},
		BlockShift: blockShift,
		BlockCount: uint64(f.size / blockSize),
		DirectIOOK: true,
	}
}
