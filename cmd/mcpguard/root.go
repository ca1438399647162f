package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"mcpguard/internal/config"
	"mcpguard/internal/guard"
	"mcpguard/internal/logging"
	"mcpguard/pkg/fileops"

	"github.com/spf13/cobra"
)

// Exit codes of check and watch --once.
const (
	exitDrift = 3
)

// app holds the global flags and the lazily built engine.
type app struct {
	configFile string
	mcpConfig  string
	stateDir   string
	verbose    bool

	logger *logging.AppLogger
	cfg    *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "mcpguard",
		Short: "Detect and review drift in an MCP client configuration",
		Long: `mcpguard keeps a trusted baseline of an MCP client configuration file and of
every server script it references. It reports any difference from that
baseline and lets you either revert the files or accept the new content.

Detection is on demand: run check, review, or let watch poll for you.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.logger = logging.NewAppLogger()
			a.logger.SetVerbose(a.verbose)
		},
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "mcpguard config file (default: "+defaultConfigHint()+")")
	root.PersistentFlags().StringVar(&a.mcpConfig, "mcp-config", "", "MCP client configuration file to guard")
	root.PersistentFlags().StringVar(&a.stateDir, "state-dir", "", "directory for baselines, backups and history")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(
		newCheckCmd(a),
		newReviewCmd(a),
		newRevertCmd(a),
		newAcceptCmd(a),
		newInitCmd(a),
		newStatusCmd(a),
		newHistoryCmd(a),
		newWatchCmd(a),
		newMCPCmd(a),
	)
	return root
}

func defaultConfigHint() string {
	path, err := config.ConfigPath()
	if err != nil {
		return "platform config dir"
	}
	return path
}

// config loads the config file and applies flag overrides.
func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}

	var cfg *config.Config
	var err error
	if a.configFile != "" {
		cfg, err = config.LoadFrom(fileops.ExpandPath(a.configFile))
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if a.mcpConfig != "" {
		cfg.MCPConfigPath = fileops.ExpandPath(a.mcpConfig)
	}
	if a.stateDir != "" {
		cfg.StateDir = fileops.ExpandPath(a.stateDir)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a.cfg = cfg
	return cfg, nil
}

func (a *app) engine() (*guard.Engine, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	return guard.Open(cfg, a.logger)
}

// confirm asks a yes/no question on out and reads the answer from in.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		fmt.Fprintln(out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
