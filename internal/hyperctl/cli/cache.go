package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ultraos/hyper/internal/hyperctl/buildcache"
	hconfig "github.com/ultraos/hyper/internal/hyperctl/config"
	"github.com/ultraos/hyper/internal/hyperctl/output"
)

func addCacheCommands(root *cobra.Command) {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear hyperctl's validation result cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show how many entries are cached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := hconfig.Load()
			if err != nil {
				return err
			}

			c, err := buildcache.Open(cfg.CacheDirOrDefault())
			if err != nil {
				return err
			}
			defer c.Close()

			n, err := c.Count()
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.PrintJSON(cmd.OutOrStdout(), map[string]int{"entries": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d cached entries\n", n)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete hyperctl's validation result cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := hconfig.Load()
			if err != nil {
				return err
			}

			dir := cfg.CacheDirOrDefault()
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("clearing cache dir %s: %w", dir, err)
			}
			if !output.IsQuiet() {
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", dir)
			}
			return nil
		},
	}

	cacheCmd.AddCommand(statsCmd, clearCmd)
	root.AddCommand(cacheCmd)
}
