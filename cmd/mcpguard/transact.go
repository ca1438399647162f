package main

import (
	"fmt"

	"mcpguard/internal/guard"
	"mcpguard/internal/model"
	"mcpguard/internal/ui"

	"github.com/spf13/cobra"
)

func newRevertCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "revert",
		Short: "Restore changed files to their baseline",
		Long: `Detect changes, show them, and restore every changed file to its baseline.
Files that had no baseline are deleted. The current content is backed up
first when backups are enabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return reviewAndApply(cmd, a, "revert", yes)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newAcceptCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "accept",
		Short: "Make the current content the new baseline",
		Long: `Detect changes, show them, and store the content that was shown as the new
baseline. A file that changes again before it is accepted is skipped and
reported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return reviewAndApply(cmd, a, "accept", yes)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// reviewAndApply detects, prints the set, and applies action to exactly that
// set once confirmed.
func reviewAndApply(cmd *cobra.Command, a *app, action string, yes bool) error {
	engine, err := a.engine()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	cs, err := engine.CheckChanges(cmd.Context())
	if err != nil {
		return err
	}
	if err := ui.Render(out, cs, ui.Options{Format: ui.FormatAuto}); err != nil {
		return err
	}
	if cs.Empty() {
		return nil
	}

	if !yes && !confirm(cmd.InOrStdin(), out, fmt.Sprintf("%s %d change(s)?", capitalize(action), len(cs.Entries))) {
		fmt.Fprintln(out, "Nothing changed.")
		return nil
	}

	err = apply(cmd, engine, action, cs)
	fmt.Fprintln(out, ui.Outcome(action, cs, err))
	return err
}

func apply(cmd *cobra.Command, engine *guard.Engine, action string, cs *model.ChangeSet) error {
	if action == "revert" {
		return engine.RevertChanges(cmd.Context(), cs)
	}
	return engine.AcceptChanges(cmd.Context(), cs)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Baseline the current state of every tracked file",
		Long: `Accept everything as it is now. Run this once after installing or after
deliberately changing the MCP configuration outside of mcpguard.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.engine()
			if err != nil {
				return err
			}
			cs, err := engine.AcceptAll(cmd.Context())
			if err != nil {
				if cs != nil {
					fmt.Fprintln(cmd.OutOrStdout(), ui.Outcome("init", cs, err))
				}
				return err
			}

			st, err := engine.Status()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Baselined %d tracked file(s) for %s (%s).\n", len(st.Tracked), st.ConfigPath, st.Summary)
			return nil
		},
	}
}
