package ultra

import (
	"fmt"

	"github.com/ultraos/hyper/internal/cfg"
	"github.com/ultraos/hyper/internal/elfload"
	"github.com/ultraos/hyper/internal/fs"
	"github.com/ultraos/hyper/internal/memtype"
	"github.com/ultraos/hyper/internal/pmm"
)

// ModuleKind is the `module.type` key: whether a module's bytes come from a
// file or are already resident in memory (e.g. an embedded ramdisk a
// firmware stub placed there before handing off to Ultra).
type ModuleKind int

const (
	ModuleFile ModuleKind = iota
	ModuleMemory
)

// ModuleSpec is one resolved `module` entry.
type ModuleSpec struct {
	Name string
	Path string // ModuleFile only

	Size     uint64
	SizeAuto bool

	Kind ModuleKind

	// LoadAt is the exact physical placement when LoadAtAnywhere is false;
	// placement is below binaryCeiling either way.
	LoadAt         uint64
	LoadAtAnywhere bool

	// MemoryAddress is where ModuleMemory bytes already reside.
	MemoryAddress uint64
}

// resolveModules reads every `module` entry in scope, in file order.
func resolveModules(c *cfg.Config, scope cfg.Scope) ([]ModuleSpec, error) {
	var out []ModuleSpec

	it := c.Iterate(scope, "module", cfg.ValueString|cfg.ValueObject)
	for {
		v, ok, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("ultra: module entry: %w", err)
		}
		if !ok {
			break
		}

		if v.Type == cfg.ValueString {
			out = append(out, ModuleSpec{Name: v.String, Path: v.String, SizeAuto: true, LoadAtAnywhere: true})
			continue
		}

		spec, err := resolveModuleObject(c, v.Scope())
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}

	return out, nil
}

func resolveModuleObject(c *cfg.Config, scope cfg.Scope) (ModuleSpec, error) {
	var spec ModuleSpec

	name, ok, err := c.GetString(scope, "name")
	if err != nil {
		return ModuleSpec{}, err
	}
	if ok {
		spec.Name = name
	}

	path, ok, err := c.GetString(scope, "path")
	if err != nil {
		return ModuleSpec{}, err
	}
	spec.Path = path
	if spec.Name == "" {
		spec.Name = path
	}

	typ, ok, err := c.GetString(scope, "type")
	if err != nil {
		return ModuleSpec{}, err
	}
	switch {
	case !ok || typ == "file":
		spec.Kind = ModuleFile
	case typ == "memory":
		spec.Kind = ModuleMemory
	default:
		return ModuleSpec{}, fmt.Errorf("ultra: module %q: unknown type %q", spec.Name, typ)
	}

	sizeVal, ok, err := c.GetOneOf(scope, "size", cfg.ValueString|cfg.ValueUnsigned)
	if err != nil {
		return ModuleSpec{}, err
	}
	switch {
	case !ok:
		spec.SizeAuto = true
	case sizeVal.Type == cfg.ValueUnsigned:
		spec.Size = sizeVal.Unsigned
	case sizeVal.String == "auto":
		spec.SizeAuto = true
	default:
		return ModuleSpec{}, fmt.Errorf("ultra: module %q: invalid size %q", spec.Name, sizeVal.String)
	}

	loadAtVal, ok, err := c.GetOneOf(scope, "load-at", cfg.ValueString|cfg.ValueUnsigned)
	if err != nil {
		return ModuleSpec{}, err
	}
	switch {
	case !ok:
		spec.LoadAtAnywhere = true
	case loadAtVal.Type == cfg.ValueUnsigned:
		spec.LoadAt = loadAtVal.Unsigned
	case loadAtVal.String == "auto" || loadAtVal.String == "anywhere":
		spec.LoadAtAnywhere = true
	default:
		return ModuleSpec{}, fmt.Errorf("ultra: module %q: invalid load-at %q", spec.Name, loadAtVal.String)
	}

	return spec, nil
}

// loadModules places every module in physical memory below binaryCeiling
// and returns the records the attribute array will describe, per step 5 of
// the Ultra driver: file modules read min(size, file.size), with the
// remainder (if any) zeroed.
func loadModules(table *fs.Table, p *pmm.PMM, mem elfload.Memory, binaryCeiling uint64, specs []ModuleSpec) ([]LoadedModule, error) {
	out := make([]LoadedModule, 0, len(specs))

	for _, spec := range specs {
		switch spec.Kind {
		case ModuleMemory:
			out = append(out, LoadedModule{Name: spec.Name, PhysicalAddress: spec.MemoryAddress, Length: spec.Size})

		case ModuleFile:
			f, err := fs.Open(table, spec.Path)
			if err != nil {
				return nil, fmt.Errorf("ultra: opening module %q: %w", spec.Name, err)
			}

			fileSize := f.Size()
			readLen := fileSize
			if !spec.SizeAuto && spec.Size < readLen {
				readLen = spec.Size
			}
			totalLen := readLen
			if !spec.SizeAuto && spec.Size > totalLen {
				totalLen = spec.Size
			}

			pages := (totalLen + pmm.PageSize - 1) / pmm.PageSize
			if pages == 0 {
				pages = 1
			}

			var base uint64
			if spec.LoadAtAnywhere {
				base, err = p.AllocatePages(pages, binaryCeiling, memtype.Type(MemoryTypeModule))
			} else {
				base = spec.LoadAt
				if base+pages*pmm.PageSize > binaryCeiling {
					err = fmt.Errorf("load-at %#x ends above ceiling %#x", base, binaryCeiling)
				} else {
					err = p.AllocatePagesAt(base, pages, memtype.Type(MemoryTypeModule))
				}
			}
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("ultra: placing module %q: %w", spec.Name, err)
			}

			buf := make([]byte, readLen)
			if _, err := f.ReadAt(buf, 0); err != nil {
				f.Close()
				return nil, fmt.Errorf("ultra: reading module %q: %w", spec.Name, err)
			}
			if err := mem.WriteAt(base, buf); err != nil {
				f.Close()
				return nil, err
			}
			if totalLen > readLen {
				if err := mem.Zero(base+readLen, totalLen-readLen); err != nil {
					f.Close()
					return nil, err
				}
			}
			if err := f.Close(); err != nil {
				return nil, fmt.Errorf("ultra: closing module %q: %w", spec.Name, err)
			}

			out = append(out, LoadedModule{Name: spec.Name, PhysicalAddress: base, Length: totalLen})
		}
	}

	return out, nil
}
