package main

import (
	"errors"

	"mcpguard/internal/ui"

	"github.com/spf13/cobra"
)

func newCheckCmd(a *app) *cobra.Command {
	var (
		asJSON bool
		pretty bool
		plain  bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare tracked files with their baseline",
		Long: `Run one detection pass and print every tracked file that differs from its
baseline. Exits 0 when clean, 3 when anything changed, 1 on error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON && (pretty || plain) {
				return errors.New("--json cannot be combined with --pretty or --plain")
			}

			engine, err := a.engine()
			if err != nil {
				return err
			}
			cs, err := engine.CheckChanges(cmd.Context())
			if err != nil {
				return err
			}

			opts := ui.Options{Format: ui.FormatAuto}
			switch {
			case asJSON:
				opts.Format = ui.FormatJSON
			case pretty:
				opts.Format = ui.FormatPretty
			case plain:
				opts.Format = ui.FormatPlain
			}
			if err := ui.Render(cmd.OutOrStdout(), cs, opts); err != nil {
				return err
			}

			if !cs.Empty() {
				return &exitError{code: exitDrift}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the change set as JSON")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "render markdown even when not on a terminal")
	cmd.Flags().BoolVar(&plain, "plain", false, "plain text even on a terminal")
	return cmd
}
