package guard

import (
	"fmt"

	"mcpguard/internal/baseline"
	"mcpguard/internal/config"
	"mcpguard/internal/content"
	"mcpguard/internal/detector"
	"mcpguard/internal/history"
	"mcpguard/internal/logging"
	"mcpguard/internal/resolver"
	"mcpguard/internal/snapshot"
	"mcpguard/pkg/fileops"
)

// Open wires an Engine from cfg: snapshot store, optional signing and journal,
// resolver, reader, detector and transaction manager.
func Open(cfg *config.Config, logger *logging.AppLogger) (*Engine, error) {
	logger = logging.OrDefault(logger)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	maxAge, err := cfg.ChangeSetMaxAge()
	if err != nil {
		return nil, err
	}

	if err := fileops.ValidateDirectoryWritable(cfg.StateDir); err != nil {
		return nil, fmt.Errorf("state directory is not usable: %w", err)
	}

	var storeOpts []snapshot.Option
	if cfg.SignSnapshots {
		storeOpts = append(storeOpts, snapshot.WithSigner(snapshot.NewKeyringSigner()))
	}
	store, err := snapshot.Open(cfg.SnapshotsDir(), logger, storeOpts...)
	if err != nil {
		return nil, err
	}

	var txOpts []baseline.Option
	if cfg.Backups {
		txOpts = append(txOpts, baseline.WithBackups(cfg.BackupsDir()))
	}
	if cfg.History {
		journal, err := history.Open(store.Dir(), logger)
		if err != nil {
			return nil, err
		}
		txOpts = append(txOpts, baseline.WithJournal(journal))
	}

	reader := content.NewReader(cfg.MaxFileSize, logger)
	res := resolver.New(resolver.Options{
		Interpreters: cfg.Interpreters,
		Extensions:   cfg.Extensions,
		SkipDirs:     cfg.SkipDirs,
		MaxDepth:     cfg.MaxDepth,
	}, logger)

	det := detector.New(cfg.MCPConfigPath, res, store, reader, cfg.Workers, logger)
	txOpts = append(txOpts, baseline.WithScope(func() ([]string, error) {
		r, err := det.Resolve()
		if err != nil {
			return nil, err
		}
		return r.Paths(), nil
	}))
	tx := baseline.New(store, reader, logger, txOpts...)

	logger.Debug("Engine ready",
		"mcpConfig", cfg.MCPConfigPath,
		"stateDir", cfg.StateDir,
		"signed", cfg.SignSnapshots,
		"history", cfg.History,
	)

	return New(det, tx, Options{BusyPolicy: cfg.BusyPolicy, MaxAge: maxAge}, logger), nil
}
