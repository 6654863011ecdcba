// Package blockcache implements the fixed-size block window that sits in
// front of every disk read in the loader. It owns one aligned buffer of
// cache_block_cap blocks and hands out zero-copy references into it; as long
// as any reference is outstanding the window cannot move.
package blockcache

import (
	"fmt"

	"github.com/ultraos/hyper/internal/diskio"
)

// Cache is bound to exactly one disk for its lifetime.
type Cache struct {
	disk *diskio.Disk

	capBlocks uint64 // window size, in blocks
	window    []byte // owned, capBlocks*BlockSize() bytes
	baseBlock uint64
	empty     bool

	refs int // outstanding take_ref/release_ref balance
}

// New creates a cache over disk with a window of capBlocks blocks.
func New(disk *diskio.Disk, capBlocks uint64) *Cache {
	return &Cache{
		disk:      disk,
		capBlocks: capBlocks,
		window:    make([]byte, capBlocks*disk.BlockSize()),
		empty:     true,
	}
}

func (c *Cache) blockSize() uint64 { return c.disk.BlockSize() }

// refill loads capBlocks blocks starting at baseBlock into the window. It is
// forbidden while any zero-copy reference is outstanding — calling it in
// that state is a loader bug, not a recoverable error.
func (c *Cache) refill(baseBlock uint64) error {
	if c.refs > 0 {
		panic(fmt.Sprintf("blockcache: refill with %d outstanding reference(s)", c.refs))
	}

	if err := c.disk.Device.ReadBlocks(c.window, baseBlock, c.capBlocks); err != nil {
		c.empty = true
		return fmt.Errorf("blockcache: refill at block %d: %w", baseBlock, err)
	}

	c.baseBlock = baseBlock
	c.empty = false
	return nil
}

// windowContains reports whether [byteOff, byteOff+count) is entirely inside
// the current window.
func (c *Cache) windowContains(byteOff, count uint64) bool {
	if c.empty {
		return false
	}
	winStart := c.baseBlock * c.blockSize()
	winEnd := winStart + c.capBlocks*c.blockSize()
	return byteOff >= winStart && byteOff+count <= winEnd
}

// Read satisfies an unaligned byte read by refilling the window as needed,
// copying at most one window's worth of data per refill.
func (c *Cache) Read(dst []byte, byteOff uint64, count uint64) error {
	for count > 0 {
		if !c.windowContains(byteOff, 1) {
			blockSize := c.blockSize()
			if err := c.refill(byteOff / blockSize); err != nil {
				return err
			}
		}

		winStart := c.baseBlock * c.blockSize()
		winEnd := winStart + c.capBlocks*c.blockSize()
		avail := winEnd - byteOff
		chunk := count
		if chunk > avail {
			chunk = avail
		}

		off := byteOff - winStart
		copy(dst[:chunk], c.window[off:off+chunk])

		dst = dst[chunk:]
		byteOff += chunk
		count -= chunk
	}

	return nil
}

// ReadBlocks services a block-aligned request larger than the window. If
// direct I/O is permitted and the disk supports it, the read is issued
// straight to the caller's buffer; otherwise (or on direct-read failure) it
// falls back to the windowed path.
func (c *Cache) ReadBlocks(dst []byte, block uint64, count uint64) error {
	if count >= c.capBlocks && c.disk.DirectIOOK {
		if err := c.disk.Device.ReadBlocks(dst, block, count); err == nil {
			return nil
		}
	}

	return c.Read(dst, block*c.blockSize(), count*c.blockSize())
}

// TakeRef returns a zero-copy slice into the window covering
// [byteOff, byteOff+count). The request must fit within one window; the
// window is refilled first if needed, and the reference count is
// incremented so refill is refused until ReleaseRef balances it.
func (c *Cache) TakeRef(byteOff uint64, count uint64) ([]byte, error) {
	blocks := (count + c.blockSize() - 1) / c.blockSize()
	if blocks > c.capBlocks {
		return nil, fmt.Errorf("blockcache: reference of %d block(s) exceeds window capacity %d", blocks, c.capBlocks)
	}

	if !c.windowContains(byteOff, count) {
		if err := c.refill(byteOff / c.blockSize()); err != nil {
			return nil, err
		}
		if !c.windowContains(byteOff, count) {
			return nil, fmt.Errorf("blockcache: reference [%d,%d) straddles window boundary", byteOff, byteOff+count)
		}
	}

	off := byteOff - c.baseBlock*c.blockSize()
	c.refs++
	return c.window[off : off+count], nil
}

// ReleaseRef balances a prior TakeRef.
func (c *Cache) ReleaseRef() {
	if c.refs == 0 {
		panic("blockcache: ReleaseRef with no outstanding reference")
	}
	c.refs--
}

// Outstanding reports the number of zero-copy references not yet released.
func (c *Cache) Outstanding() int { return c.refs }
