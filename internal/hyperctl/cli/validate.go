package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ultraos/hyper/internal/hyperctl/output"
	"github.com/ultraos/hyper/internal/hyperctl/tui"
	"github.com/ultraos/hyper/internal/hyperctl/validate"
)

func addValidateCommand(root *cobra.Command) {
	var configPath string
	var blockShift int
	var interactive bool

	cmd := &cobra.Command{
		Use:   "validate <image>",
		Short: "Check that every loadable entry's binary and modules resolve on a disk image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, _, c, closer, err := openImage(args[0], configPath, uint(blockShift))
			if err != nil {
				return err
			}
			defer closer()

			if interactive && !output.IsJSON() {
				model := tui.NewValidateModel(func() ([]validate.EntryResult, error) {
					return validate.Run(table, c)
				})
				p := tea.NewProgram(model)
				final, err := p.Run()
				if err != nil {
					return err
				}
				if m, ok := final.(tui.ValidateModel); ok && m.Failed() {
					return fmt.Errorf("one or more entries failed validation")
				}
				return nil
			}

			results, err := validate.Run(table, c)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.PrintJSON(cmd.OutOrStdout(), results)
			}

			failed := 0
			for _, r := range results {
				status := "ok"
				if !r.OK() {
					status = "FAIL"
					failed++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", r.Name, status)
				if r.Binary.Err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "  binary %s: %v\n", r.Binary.Path, r.Binary.Err)
				}
				for _, m := range r.Modules {
					if m.Err != nil {
						fmt.Fprintf(cmd.OutOrStdout(), "  module %s: %v\n", m.Path, m.Err)
					}
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d entries failed validation", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "/ultra.cfg", "Path to the boot config on the image")
	cmd.Flags().IntVar(&blockShift, "block-shift", defaultBlockShift, "log2 of the image's sector size")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "Show a live progress view instead of plain text")
	root.AddCommand(cmd)
}
