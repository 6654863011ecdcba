package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ultraos/hyper/internal/hyperctl/inspect"
	"github.com/ultraos/hyper/internal/hyperctl/output"
)

func addInspectCommand(root *cobra.Command) {
	var configPath string
	var blockShift int
	var entryName string
	var assumedMemoryMiB int

	cmd := &cobra.Command{
		Use:   "inspect <image>",
		Short: "Preview where a kernel and its modules would be placed, without booting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, _, c, closer, err := openImage(args[0], configPath, uint(blockShift))
			if err != nil {
				return err
			}
			defer closer()

			var reports []inspect.Report
			if entryName != "" {
				entry, ok := c.GetLoadableEntry(entryName)
				if !ok {
					return fmt.Errorf("no loadable entry named %q", entryName)
				}
				r, err := inspect.Entry(table, c, entry, uint64(assumedMemoryMiB)<<20)
				if err != nil {
					return err
				}
				reports = append(reports, r)
			} else {
				for e, ok := c.FirstLoadableEntry(); ok; e, ok = c.NextLoadableEntry(e) {
					r, err := inspect.Entry(table, c, e, uint64(assumedMemoryMiB)<<20)
					if err != nil {
						return fmt.Errorf("entry %q: %w", e.Name, err)
					}
					reports = append(reports, r)
				}
			}

			if output.IsJSON() {
				return output.PrintJSON(cmd.OutOrStdout(), reports)
			}

			for _, r := range reports {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%v):\n", r.Entry, r.Arch)
				fmt.Fprintf(cmd.OutOrStdout(), "  entry point:    %#x\n", r.EntrypointAddress)
				fmt.Fprintf(cmd.OutOrStdout(), "  physical range: %#x - %#x\n", r.PhysicalBase, r.PhysicalCeiling)
				fmt.Fprintf(cmd.OutOrStdout(), "  virtual range:  %#x - %#x\n", r.VirtualBase, r.VirtualCeiling)
				fmt.Fprintf(cmd.OutOrStdout(), "  higher half:    %#x\n", r.HigherHalfBase)
				fmt.Fprintf(cmd.OutOrStdout(), "  direct map:     %#x\n", r.DirectMapBase)
				fmt.Fprintf(cmd.OutOrStdout(), "  bytes written:  %d\n", r.BytesWritten)
				fmt.Fprintf(cmd.OutOrStdout(), "  modules:        %d\n", r.ModuleCount)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "/ultra.cfg", "Path to the boot config on the image")
	cmd.Flags().IntVar(&blockShift, "block-shift", defaultBlockShift, "log2 of the image's sector size")
	cmd.Flags().StringVar(&entryName, "entry", "", "Inspect only this loadable entry (default: all)")
	cmd.Flags().IntVar(&assumedMemoryMiB, "assumed-memory-mib", inspect.DefaultAssumedMemory>>20, "Physical memory (MiB) to assume present")
	root.AddCommand(cmd)
}
