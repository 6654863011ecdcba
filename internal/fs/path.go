package fs

import (
	"fmt"
	"strconv"
	"strings"
)

// PathSpec is a parsed disk/partition/path triplet, as accepted by the
// loader's path grammar:
//
//	path      := absolute | disk "-" partition "::/" subpath
//	absolute  := "/" subpath | "::/" subpath
//	disk      := "DISKUUID" guid | "DISK" hex
//	partition := "PARTUUID-" guid | "PART" hex | ε (raw, disk given by index)
type PathSpec struct {
	Absolute bool // true: resolves against the table's origin entry

	DiskByGUID bool
	DiskGUID   GUID
	DiskIndex  uint32

	Raw        bool // ε partition: whole-disk raw access
	PartByGUID bool
	PartGUID   GUID
	PartIndex  uint32

	Subpath string
}

// ParsePath parses the disk/partition/path grammar described above.
func ParsePath(s string) (PathSpec, error) {
	if strings.HasPrefix(s, "::/") {
		return PathSpec{Absolute: true, Subpath: s[len("::/"):]}, nil
	}
	if strings.HasPrefix(s, "/") {
		return PathSpec{Absolute: true, Subpath: s[1:]}, nil
	}

	marker := strings.Index(s, "::/")
	if marker < 0 {
		return PathSpec{}, fmt.Errorf("fs: path %q is missing the \"::/\" subpath marker", s)
	}

	prefix, subpath := s[:marker], s[marker+len("::/"):]
	var spec PathSpec
	spec.Subpath = subpath

	rest, err := parseDiskSelector(prefix, &spec)
	if err != nil {
		return PathSpec{}, err
	}

	if err := parsePartitionSelector(rest, &spec); err != nil {
		return PathSpec{}, err
	}

	return spec, nil
}

const guidTextLen = len("00000000-0000-0000-0000-000000000000")

func parseDiskSelector(prefix string, spec *PathSpec) (string, error) {
	switch {
	case strings.HasPrefix(prefix, "DISKUUID"):
		rest := strings.TrimPrefix(prefix, "DISKUUID")
		rest = strings.TrimPrefix(rest, "-")
		if len(rest) < guidTextLen {
			return "", fmt.Errorf("fs: truncated DISKUUID in path selector %q", prefix)
		}
		guid, err := ParseTextGUID(rest[:guidTextLen])
		if err != nil {
			return "", fmt.Errorf("fs: invalid disk guid: %w", err)
		}
		spec.DiskByGUID = true
		spec.DiskGUID = guid
		return strings.TrimPrefix(rest[guidTextLen:], "-"), nil

	case strings.HasPrefix(prefix, "DISK"):
		hexAndRest := strings.TrimPrefix(prefix, "DISK")
		hexPart, rest, _ := strings.Cut(hexAndRest, "-")
		idx, err := strconv.ParseUint(hexPart, 16, 32)
		if err != nil {
			return "", fmt.Errorf("fs: invalid disk index %q: %w", hexPart, err)
		}
		spec.DiskIndex = uint32(idx)
		return rest, nil

	default:
		return "", fmt.Errorf("fs: path selector %q does not start with DISK or DISKUUID", prefix)
	}
}

func parsePartitionSelector(rest string, spec *PathSpec) error {
	switch {
	case rest == "":
		spec.Raw = true
		return nil

	case strings.HasPrefix(rest, "PARTUUID-"):
		guidStr := strings.TrimPrefix(rest, "PARTUUID-")
		guid, err := ParseTextGUID(guidStr)
		if err != nil {
			return fmt.Errorf("fs: invalid partition guid: %w", err)
		}
		spec.PartByGUID = true
		spec.PartGUID = guid
		return nil

	case strings.HasPrefix(rest, "PART"):
		hexPart := strings.TrimPrefix(rest, "PART")
		idx, err := strconv.ParseUint(hexPart, 16, 32)
		if err != nil {
			return fmt.Errorf("fs: invalid partition index %q: %w", hexPart, err)
		}
		spec.PartIndex = uint32(idx)
		return nil

	default:
		return fmt.Errorf("fs: unrecognized partition selector %q", rest)
	}
}

// Resolve maps a parsed PathSpec to a concrete table entry.
func (t *Table) Resolve(spec PathSpec) (*TableEntry, error) {
	if spec.Absolute {
		e, ok := t.Origin()
		if !ok {
			return nil, fmt.Errorf("fs: no origin filesystem registered")
		}
		return e, nil
	}

	for i := range t.entries {
		e := &t.entries[i]

		if spec.DiskByGUID {
			if e.DiskGUID == nil || *e.DiskGUID != spec.DiskGUID {
				continue
			}
		} else if e.DiskID != spec.DiskIndex {
			continue
		}

		switch {
		case spec.Raw:
			if e.EntryType != EntryRaw {
				continue
			}
		case spec.PartByGUID:
			if e.PartitionGUID == nil || *e.PartitionGUID != spec.PartGUID {
				continue
			}
		default:
			if e.EntryType == EntryRaw || uint32(e.PartitionIndex) != spec.PartIndex {
				continue
			}
		}

		return e, nil
	}

	return nil, fmt.Errorf("fs: no matching disk/partition for path selector")
}

// Open resolves a full path string against the table and opens the final
// component as a file. Each non-final subpath component must be a
// directory; "." is skipped.
func Open(t *Table, path string) (File, error) {
	spec, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	entry, err := t.Resolve(spec)
	if err != nil {
		return nil, err
	}

	components := splitSubpath(spec.Subpath)
	if len(components) == 0 {
		return nil, fmt.Errorf("fs: empty path")
	}

	cur := entry.Backend.RootDir()
	for i, name := range components {
		last := i == len(components)-1

		if !cur.IsDir {
			return nil, ErrNotADirectory
		}

		it, err := entry.Backend.OpenDir(cur)
		if err != nil {
			return nil, err
		}

		found, ok := findInDir(it, name)
		if !ok {
			return nil, ErrNotFound
		}

		if last {
			return entry.Backend.OpenFile(found)
		}

		if !found.IsDir {
			return nil, ErrNotADirectory
		}
		cur = found
	}

	return nil, ErrNotFound
}

func splitSubpath(p string) []string {
	var out []string
	for _, part := range strings.Split(p, "/") {
		if part == "" || part == "." {
			continue
		}
		out = append(out, part)
	}
	return out
}

func findInDir(it DirIterator, name string) (DirEntry, bool) {
	for {
		e, ok, err := it.Next()
		if err != nil || !ok {
			return DirEntry{}, false
		}
		if e.Name == name {
			return e, true
		}
	}
}
