package ultra

import (
	"fmt"

	"github.com/ultraos/hyper/internal/cfg"
)

// BinarySpec is the resolved `binary` key: either a bare path string or the
// object form with an explicit allocate-anywhere override.
type BinarySpec struct {
	Path             string
	AllocateAnywhere bool
}

// resolveBinary reads `binary` from scope, accepting either form the config
// grammar allows.
func resolveBinary(c *cfg.Config, scope cfg.Scope) (BinarySpec, error) {
	v, ok, err := c.GetOneOf(scope, "binary", cfg.ValueString|cfg.ValueObject)
	if err != nil {
		return BinarySpec{}, err
	}
	if !ok {
		return BinarySpec{}, fmt.Errorf("ultra: mandatory key \"binary\" is missing")
	}

	if v.Type == cfg.ValueString {
		return BinarySpec{Path: v.String}, nil
	}

	objScope := v.Scope()
	path, err := c.MandatoryString(objScope, "path")
	if err != nil {
		return BinarySpec{}, fmt.Errorf("ultra: binary object: %w", err)
	}
	anywhere, _, err := c.GetBool(objScope, "allocate-anywhere")
	if err != nil {
		return BinarySpec{}, fmt.Errorf("ultra: binary object: %w", err)
	}
	return BinarySpec{Path: path, AllocateAnywhere: anywhere}, nil
}
