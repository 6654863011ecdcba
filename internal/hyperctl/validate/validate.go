// Package validate implements hyperctl's read-only config/image check: for
// every loadable entry in a boot config, confirm the kernel binary and every
// module it names actually resolve on the target disk image, without
// loading or jumping to any of it.
package validate

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ultraos/hyper/internal/cfg"
	"github.com/ultraos/hyper/internal/fs"
	"github.com/ultraos/hyper/internal/ultra"

	// Register the filesystem drivers validate needs to mount images.
	_ "github.com/ultraos/hyper/internal/fat"
	_ "github.com/ultraos/hyper/internal/iso9660"
)

// FileResult is one resolved path's outcome: either Size is set, or Err
// explains why it could not be opened.
type FileResult struct {
	Path string
	Size uint64
	Err  error
}

// EntryResult is one loadable entry's validation outcome.
type EntryResult struct {
	Name    string
	Binary  FileResult
	Modules []FileResult
}

// OK reports whether every path in the entry resolved cleanly.
func (r EntryResult) OK() bool {
	if r.Binary.Err != nil {
		return false
	}
	for _, m := range r.Modules {
		if m.Err != nil {
			return false
		}
	}
	return true
}

func checkPath(table *fs.Table, path string) FileResult {
	f, err := fs.Open(table, path)
	if err != nil {
		return FileResult{Path: path, Err: err}
	}
	defer f.Close()
	return FileResult{Path: path, Size: f.Size()}
}

// Run validates every loadable entry in c against table concurrently —
// entries are independent, so one missing module shouldn't delay checking
// the rest of the config.
func Run(table *fs.Table, c *cfg.Config) ([]EntryResult, error) {
	var entries []cfg.LoadableEntry
	for e, ok := c.FirstLoadableEntry(); ok; e, ok = c.NextLoadableEntry(e) {
		entries = append(entries, e)
	}

	results := make([]EntryResult, len(entries))
	var g errgroup.Group
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			summary, err := ultra.Summarize(c, e)
			if err != nil {
				return fmt.Errorf("entry %q: %w", e.Name, err)
			}

			result := EntryResult{Name: summary.Name, Binary: checkPath(table, summary.BinaryPath)}
			for _, m := range summary.Modules {
				if m.Path == "" {
					continue // ModuleMemory entries have nothing to open
				}
				result.Modules = append(result.Modules, checkPath(table, m.Path))
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
