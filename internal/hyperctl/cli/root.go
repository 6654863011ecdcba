// Package cli assembles hyperctl's cobra command tree: validate, inspect,
// and cache, all fronted by a shared set of persistent output flags.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	hconfig "github.com/ultraos/hyper/internal/hyperctl/config"
	"github.com/ultraos/hyper/internal/hyperctl/output"
)

// Version is overwritten at build time via -ldflags.
var Version = "dev"

var (
	jsonFlag    bool
	verboseFlag bool
	quietFlag   bool
	configDir   string
)

// NewRootCmd builds the full hyperctl command tree.
func NewRootCmd() *cobra.Command {
	cmd := newRootCmd()
	addValidateCommand(cmd)
	addInspectCommand(cmd)
	addCacheCommands(cmd)
	return cmd
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "hyperctl",
		Short:         "Inspect and validate Hyper boot configurations and disk images",
		Long:          "hyperctl reads a boot configuration and disk image the way the Ultra driver would, without booting anything, so broken configs surface before they reach real firmware.",
		Version:       fmt.Sprintf("hyperctl %s", Version),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verboseFlag && quietFlag {
				return fmt.Errorf("--verbose and --quiet are mutually exclusive")
			}
			if jsonFlag {
				quietFlag = true
			}
			output.SetFlags(jsonFlag, quietFlag, verboseFlag)
			hconfig.SetDir(configDir)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.SetVersionTemplate("{{.Version}}\n")

	pflags := rootCmd.PersistentFlags()
	pflags.BoolVarP(&jsonFlag, "json", "j", false, "Output as JSON")
	pflags.BoolVarP(&verboseFlag, "verbose", "v", false, "Extra detail to stderr")
	pflags.BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")
	pflags.StringVar(&configDir, "config-dir", "", "Override hyperctl's own config directory (default: ~/.config/hyperctl)")

	if v := os.Getenv("HYPERCTL_HOME"); v != "" && configDir == "" {
		configDir = v
	}
	if os.Getenv("HYPERCTL_JSON") == "1" {
		jsonFlag = true
	}

	return rootCmd
}

// Execute runs hyperctl's command tree against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}
