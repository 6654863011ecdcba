package ultra

import (
	"github.com/ultraos/hyper/internal/cfg"
)

// EntrySummary is a read-only view of one loadable entry's resolved config,
// gathered without opening anything or touching the PMM. It exists for
// tooling (hyperctl) that wants to describe a config file's contents
// without driving a real boot.
type EntrySummary struct {
	Name             string
	Protocol         string
	BinaryPath       string
	AllocateAnywhere bool
	Modules          []ModuleSpec
	Cmdline          string
}

// Summarize resolves the keys Boot itself would read for entry, without
// opening the binary or any module. It shares resolveBinary/resolveModules
// with Boot so the two never drift on what a given config key means.
func Summarize(c *cfg.Config, entry cfg.LoadableEntry) (EntrySummary, error) {
	scope := entry.Scope()

	protocol, _, err := c.GetString(scope, "protocol")
	if err != nil {
		return EntrySummary{}, err
	}

	binSpec, err := resolveBinary(c, scope)
	if err != nil {
		return EntrySummary{}, err
	}

	modules, err := resolveModules(c, scope)
	if err != nil {
		return EntrySummary{}, err
	}

	cmdline, _, err := c.GetString(scope, "cmdline")
	if err != nil {
		return EntrySummary{}, err
	}

	return EntrySummary{
		Name:             entry.Name,
		Protocol:         protocol,
		BinaryPath:       binSpec.Path,
		AllocateAnywhere: binSpec.AllocateAnywhere,
		Modules:          modules,
		Cmdline:          cmdline,
	}, nil
}
