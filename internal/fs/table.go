package fs

import "github.com/ultraos/hyper/internal/diskio"

// EntryType records which partitioning scheme (if any) produced a table
// entry.
type EntryType int

const (
	EntryRaw EntryType = iota
	EntryMBR
	EntryGPT
)

// TableEntry is one mounted filesystem reachable through the path resolver,
// mirroring the fs_entry data model: a disk, how it was partitioned, which
// partition (if any), and the mounted backend.
type TableEntry struct {
	Disk           *diskio.Disk
	DiskID         uint32
	PartitionIndex int
	EntryType      EntryType
	DiskGUID       *GUID
	PartitionGUID  *GUID
	Backend        FileSystem
}

// Table is the flat, append-only sequence of filesystem entries discovered
// across every visible disk. One distinguished entry, the origin, marks
// where hyper.cfg was found and is what the "/" and "::/ " path forms
// resolve against.
type Table struct {
	entries  []TableEntry
	originOK bool
	origin   int
}

// AddRaw registers a filesystem found directly on a whole, unpartitioned
// disk (including a disk with only a protective MBR and no valid GPT
// header, per the open question in the design notes — such a disk is
// treated as unpartitioned raw media).
func (t *Table) AddRaw(disk *diskio.Disk, fsys FileSystem) *TableEntry {
	t.entries = append(t.entries, TableEntry{
		Disk:      disk,
		DiskID:    disk.ID,
		EntryType: EntryRaw,
		Backend:   fsys,
	})
	return &t.entries[len(t.entries)-1]
}

// AddMBR registers a filesystem found inside an MBR or chained-EBR
// partition. index accumulates across the chain: the outer MBR
// contributes indices 0..3, and each EBR in the chain contributes one
// further index.
func (t *Table) AddMBR(disk *diskio.Disk, index int, fsys FileSystem) *TableEntry {
	t.entries = append(t.entries, TableEntry{
		Disk:           disk,
		DiskID:         disk.ID,
		PartitionIndex: index,
		EntryType:      EntryMBR,
		Backend:        fsys,
	})
	return &t.entries[len(t.entries)-1]
}

// AddGPT registers a filesystem found inside a GPT partition entry.
func (t *Table) AddGPT(disk *diskio.Disk, index int, diskGUID, partGUID GUID, fsys FileSystem) *TableEntry {
	t.entries = append(t.entries, TableEntry{
		Disk:           disk,
		DiskID:         disk.ID,
		PartitionIndex: index,
		EntryType:      EntryGPT,
		DiskGUID:       &diskGUID,
		PartitionGUID:  &partGUID,
		Backend:        fsys,
	})
	return &t.entries[len(t.entries)-1]
}

// SetOrigin marks entry as the origin: where the selected configuration
// file was found, and what bare "/" paths resolve against.
func (t *Table) SetOrigin(e *TableEntry) {
	for i := range t.entries {
		if &t.entries[i] == e {
			t.origin = i
			t.originOK = true
			return
		}
	}
}

// Origin returns the distinguished origin entry, if one has been set.
func (t *Table) Origin() (*TableEntry, bool) {
	if !t.originOK {
		return nil, false
	}
	return &t.entries[t.origin], true
}

// Entries returns every registered table entry in discovery order.
func (t *Table) Entries() []TableEntry { return t.entries }

// FindByIndex resolves a (disk, partition) pair the way the path grammar's
// DISK/PART numeric form does: partitionIndex -1 means raw (unpartitioned)
// media.
func (t *Table) FindByIndex(diskID uint32, partitionIndex int) (*TableEntry, bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.DiskID != diskID {
			continue
		}
		if partitionIndex == -1 {
			if e.EntryType == EntryRaw {
				return e, true
			}
			continue
		}
		if e.EntryType != EntryRaw && e.PartitionIndex == partitionIndex {
			return e, true
		}
	}
	return nil, false
}

// FindByDiskGUID resolves the DISKUUID form: any partition on the disk
// whose GPT disk GUID matches.
func (t *Table) FindByDiskGUID(guid GUID) (*TableEntry, bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.DiskGUID != nil && *e.DiskGUID == guid {
			return e, true
		}
	}
	return nil, false
}

// FindByPartitionGUID resolves the PARTUUID form.
func (t *Table) FindByPartitionGUID(guid GUID) (*TableEntry, bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.PartitionGUID != nil && *e.PartitionGUID == guid {
			return e, true
		}
	}
	return nil, false
}
