package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mcpguard/internal/history"
	"mcpguard/internal/mcp"
	"mcpguard/internal/model"
	"mcpguard/internal/tui/helpers"
	"mcpguard/internal/tui/review"
	"mcpguard/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

func newReviewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Review changes interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.engine()
			if err != nil {
				return err
			}

			ctx := helpers.NewUIContext(0, 0, a.logger) // Dimensions will be set by tea program
			m := review.New(cmd.Context(), engine, ctx)
			program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))

			final, err := program.Run()
			if err != nil {
				return fmt.Errorf("review failed: %w", err)
			}
			if outcome := final.(review.Model).Outcome(); outcome != "" {
				fmt.Fprintln(cmd.OutOrStdout(), outcome)
			}
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the guarded configuration and its tracked files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.engine()
			if err != nil {
				return err
			}
			st, err := engine.Status()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			cfg, _ := a.config()
			fmt.Fprintf(out, "Config:    %s\n", st.ConfigPath)
			fmt.Fprintf(out, "Servers:   %s\n", st.Summary)
			fmt.Fprintf(out, "State dir: %s\n", cfg.StateDir)
			fmt.Fprintf(out, "Tracked:   %d file(s)\n", len(st.Tracked))
			for _, p := range st.Tracked {
				fmt.Fprintf(out, "  %s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List accepted baselines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if !cfg.History {
				return errors.New("history is disabled in the configuration")
			}

			journal, err := history.Open(cfg.SnapshotsDir(), a.logger)
			if err != nil {
				return err
			}
			entries, err := journal.Entries(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No baselines accepted yet.")
				return nil
			}
			for _, e := range entries {
				title, body, _ := strings.Cut(e.Message, "\n")
				fmt.Fprintf(out, "%s  %s  %s\n", e.Hash[:7], e.When.Local().Format(time.DateTime), title)
				for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
					if line != "" {
						fmt.Fprintf(out, "           %s\n", line)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show (0 for all)")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		interval time.Duration
		once     bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Check for changes periodically",
		Long: `Run a check every interval and print the change set whenever it differs from
the previous one. Stops on interrupt. With --once, exits 3 as soon as drift
is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return errors.New("--interval must be positive")
			}
			engine, err := a.engine()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			var last string
			check := func() (bool, error) {
				cs, err := engine.CheckChanges(ctx)
				if err != nil {
					return false, err
				}
				fp := fingerprint(cs)
				if fp != last {
					last = fp
					fmt.Fprintf(out, "[%s] ", cs.CreatedAt.Local().Format(time.TimeOnly))
					if err := ui.Render(out, cs, ui.Options{Format: ui.FormatPlain}); err != nil {
						return false, err
					}
				}
				return !cs.Empty(), nil
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				drift, err := check()
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					a.logger.Error("Check failed", "error", err)
				}
				if drift && once {
					return &exitError{code: exitDrift}
				}

				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "time between checks")
	cmd.Flags().BoolVar(&once, "once", false, "exit on the first drift")
	return cmd
}

// fingerprint identifies a change set by its entries' paths and states.
func fingerprint(cs *model.ChangeSet) string {
	var b bytes.Buffer
	for _, e := range cs.Entries {
		fmt.Fprintf(&b, "%s|%s|%s|%s\n", e.Path, e.Kind, e.CurrentHash, e.BaselineHash)
	}
	return b.String()
}

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve check, revert and accept as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.engine()
			if err != nil {
				return err
			}
			return mcp.NewServer(engine, version, a.logger).Start()
		},
	}
}
