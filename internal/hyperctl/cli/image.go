package cli

import (
	"fmt"

	"github.com/ultraos/hyper/internal/cfg"
	"github.com/ultraos/hyper/internal/diskio"
	"github.com/ultraos/hyper/internal/fs"
	"github.com/ultraos/hyper/internal/partition"

	// Blank-imported so their init() self-registers with fs.Register before
	// partition.DiscoverAll probes the opened image.
	_ "github.com/ultraos/hyper/internal/fat"
	_ "github.com/ultraos/hyper/internal/iso9660"
)

const defaultBlockShift = 9

// openImage mounts a host disk image file, discovers its filesystems, and
// parses the boot config found at configPath on whichever partition ends up
// as the table's origin.
func openImage(imagePath, configPath string, blockShift uint) (*fs.Table, *diskio.Disk, *cfg.Config, func(), error) {
	hf, err := diskio.OpenHostFile(imagePath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("opening image %q: %w", imagePath, err)
	}
	closer := func() { hf.Close() }

	disk := diskio.NewHostDisk(1, hf, blockShift)

	var table fs.Table
	if err := partition.DiscoverAll([]*diskio.Disk{disk}, &table); err != nil {
		closer()
		return nil, nil, nil, nil, fmt.Errorf("discovering partitions on %q: %w", imagePath, err)
	}

	if _, ok := table.Origin(); !ok {
		entries := table.Entries()
		if len(entries) == 0 {
			closer()
			return nil, nil, nil, nil, fmt.Errorf("no recognizable filesystem found on %q", imagePath)
		}
		table.SetOrigin(&entries[0])
	}

	f, err := fs.Open(&table, configPath)
	if err != nil {
		closer()
		return nil, nil, nil, nil, fmt.Errorf("opening config %q: %w", configPath, err)
	}
	defer f.Close()

	buf := make([]byte, f.Size())
	if _, err := f.ReadAt(buf, 0); err != nil {
		closer()
		return nil, nil, nil, nil, fmt.Errorf("reading config %q: %w", configPath, err)
	}

	c, err := cfg.Parse(string(buf))
	if err != nil {
		closer()
		return nil, nil, nil, nil, fmt.Errorf("parsing config %q: %w", configPath, err)
	}

	return &table, disk, c, closer, nil
}
