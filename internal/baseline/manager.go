// Package baseline applies operator decisions to a Change Set: revert restores
// the baseline on disk, accept promotes the captured content to the baseline.
//
// Both transactions revalidate every entry first. A path whose file or stored
// baseline no longer matches what the Change Set captured fails with ErrStale
// and is left untouched. Failing paths never stop the remaining ones; they are
// collected into a *PartialFailureError.
package baseline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mcpguard/internal/content"
	"mcpguard/internal/history"
	"mcpguard/internal/logging"
	"mcpguard/internal/model"
	"mcpguard/internal/snapshot"
	"mcpguard/pkg/fileops"
)

// Hooks used for testing (overridable)
var (
	writeFile  = fileops.AtomicWriteFile
	removeFile = os.Remove
	ensureDir  = fileops.EnsureDirectoryExists
)

const backupTimeFormat = "20060102_150405"

// Store is the snapshot store as used by transactions.
type Store interface {
	Get(path string) (*model.TrackedFile, error)
	Put(path string, content []byte) (*model.TrackedFile, error)
	Remove(path string) error
	List() ([]string, error)
}

// Reader reads current file content.
type Reader interface {
	Read(path string) ([]byte, error)
}

// Journal records accepted baselines.
type Journal interface {
	Commit(message string) (string, error)
}

// Manager runs revert and accept transactions.
type Manager struct {
	store     Store
	reader    Reader
	journal   Journal
	backupDir string
	scope     func() ([]string, error)
	logger    *logging.AppLogger
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithBackups copies the current content of every file to dir before a
// revert overwrites or removes it.
func WithBackups(dir string) Option {
	return func(m *Manager) { m.backupDir = dir }
}

// WithJournal commits the snapshot store after each accept.
func WithJournal(j Journal) Option {
	return func(m *Manager) { m.journal = j }
}

// WithScope supplies the currently tracked paths. Each transaction calls it
// once; entries outside the result fail with ErrUntracked and accept prunes
// baselines against it. Without a scope nothing is checked or pruned.
func WithScope(scope func() ([]string, error)) Option {
	return func(m *Manager) { m.scope = scope }
}

// WithClock overrides the time source used for backup names.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func New(store Store, reader Reader, logger *logging.AppLogger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		reader: reader,
		logger: logging.OrDefault(logger),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// observed is the state of one path at transaction time.
type observed struct {
	current  []byte
	exists   bool
	baseline *model.TrackedFile
}

// revalidate checks that path still looks exactly as e captured it, on disk
// and in the store.
func (m *Manager) revalidate(e model.ChangeEntry) (*observed, error) {
	if e.Unreadable() {
		return nil, fmt.Errorf("%w: %s", ErrUnreadableEntry, e.ReadError)
	}

	obs := &observed{}

	data, err := m.reader.Read(e.Path)
	switch {
	case err == nil:
		obs.current = data
		obs.exists = true
	case errors.Is(err, content.ErrMissing):
	default:
		return nil, err
	}
	if obs.exists != e.CurrentExists || (obs.exists && model.DigestOf(obs.current) != e.CurrentHash) {
		return nil, fmt.Errorf("%w: file on disk", ErrStale)
	}

	base, err := m.store.Get(e.Path)
	switch {
	case err == nil:
		if e.BaselineError != "" || !e.BaselineExists || base.Hash != e.BaselineHash {
			return nil, fmt.Errorf("%w: stored baseline", ErrStale)
		}
		obs.baseline = base
	case errors.Is(err, snapshot.ErrNotTracked):
		if e.BaselineExists || e.BaselineError != "" {
			return nil, fmt.Errorf("%w: stored baseline", ErrStale)
		}
	default:
		// A baseline that was already invalid at detection time may still be
		// replaced by accept.
		if e.BaselineError == "" {
			return nil, err
		}
	}

	return obs, nil
}

// Revert restores every entry of cs to its baseline: the baseline content is
// written back, or the file is deleted when it had no baseline.
func (m *Manager) Revert(cs *model.ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	start := time.Now()
	defer m.logger.LogPerformance("revert", start)

	tracked, err := m.tracked()
	if err != nil {
		return err
	}

	var failures []model.PathFailure
	for _, e := range cs.Entries {
		if err := m.inScope(tracked, e.Path); err != nil {
			m.logger.Warn("Refusing to revert", "path", e.Path, "error", err)
			failures = append(failures, model.PathFailure{Path: e.Path, Err: err})
			continue
		}
		if err := m.revertOne(e); err != nil {
			m.logger.Warn("Revert failed", "path", e.Path, "error", err)
			failures = append(failures, model.PathFailure{Path: e.Path, Err: err})
			continue
		}
		m.logger.Info("Reverted", "path", e.Path, "kind", e.Kind)
	}

	if len(failures) > 0 {
		return &PartialFailureError{Op: "revert", Failures: failures}
	}
	return nil
}

func (m *Manager) revertOne(e model.ChangeEntry) error {
	if e.BaselineError != "" {
		return fmt.Errorf("%w: %s", ErrInvalidBaseline, e.BaselineError)
	}

	obs, err := m.revalidate(e)
	if err != nil {
		return err
	}

	if obs.exists {
		if err := m.backup(e.Path, obs.current); err != nil {
			return err
		}
	}

	if obs.baseline == nil {
		if err := removeFile(e.Path); err != nil {
			return fmt.Errorf("failed to remove file: %w", err)
		}
		return nil
	}

	dest := restoreTarget(e.Path)
	if err := ensureDir(filepath.Dir(dest)); err != nil {
		return err
	}
	if err := writeFile(dest, obs.baseline.Content, 0644); err != nil {
		return fmt.Errorf("failed to restore baseline: %w", err)
	}
	return nil
}

// restoreTarget is the file a revert writes: the final target when path is a
// symlink, so the link itself survives.
func restoreTarget(path string) string {
	if isLink, err := fileops.IsSymlink(path); err == nil && isLink {
		if target, err := fileops.ResolveSymlink(path); err == nil {
			return target
		}
	}
	return path
}

func (m *Manager) backup(path string, data []byte) error {
	if m.backupDir == "" {
		return nil
	}
	if err := ensureDir(m.backupDir); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	stamp := m.now().Format(backupTimeFormat)
	name := fmt.Sprintf("%s.%s.backup", filepath.Base(path), stamp)
	for i := 1; ; i++ {
		if _, err := os.Lstat(filepath.Join(m.backupDir, name)); errors.Is(err, os.ErrNotExist) {
			break
		}
		name = fmt.Sprintf("%s.%s-%d.backup", filepath.Base(path), stamp, i)
	}

	dest := filepath.Join(m.backupDir, name)
	if err := writeFile(dest, data, 0600); err != nil {
		return fmt.Errorf("failed to back up current content: %w", err)
	}
	m.logger.Debug("Backed up", "path", path, "backup", dest)
	return nil
}

// Accept makes the captured content of every entry in cs the new baseline. A
// removed file loses its baseline. When every entry of a full detection pass
// succeeds, baselines for paths outside the current scope are pruned.
func (m *Manager) Accept(cs *model.ChangeSet) error {
	if cs == nil {
		return nil
	}
	start := time.Now()
	defer m.logger.LogPerformance("accept", start)

	tracked, err := m.tracked()
	if err != nil {
		return err
	}

	var failures []model.PathFailure
	var changed []string
	for _, e := range cs.Entries {
		if err := m.inScope(tracked, e.Path); err != nil {
			m.logger.Warn("Refusing to accept", "path", e.Path, "error", err)
			failures = append(failures, model.PathFailure{Path: e.Path, Err: err})
			continue
		}
		if err := m.acceptOne(e); err != nil {
			m.logger.Warn("Accept failed", "path", e.Path, "error", err)
			failures = append(failures, model.PathFailure{Path: e.Path, Err: err})
			continue
		}
		changed = append(changed, e.Path)
		m.logger.Info("Accepted", "path", e.Path, "kind", e.Kind)
	}

	// Only a full detection pass, which carries its tracked list, prunes.
	if len(failures) == 0 && len(cs.Tracked) > 0 && tracked != nil {
		pruned, pruneFailures := m.prune(tracked)
		changed = append(changed, pruned...)
		failures = append(failures, pruneFailures...)
	}

	m.commit(changed)

	if len(failures) > 0 {
		return &PartialFailureError{Op: "accept", Failures: failures}
	}
	return nil
}

func (m *Manager) acceptOne(e model.ChangeEntry) error {
	if e.CurrentExists && model.DigestOf(e.CurrentContent) != e.CurrentHash {
		return ErrContentMismatch
	}
	if _, err := m.revalidate(e); err != nil {
		return err
	}

	if !e.CurrentExists {
		return m.store.Remove(e.Path)
	}
	_, err := m.store.Put(e.Path, e.CurrentContent)
	return err
}

// tracked returns the scope's paths as a set, or nil without a scope.
func (m *Manager) tracked() (map[string]bool, error) {
	if m.scope == nil {
		return nil, nil
	}
	paths, err := m.scope()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tracked paths: %w", err)
	}
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return set, nil
}

func (m *Manager) inScope(tracked map[string]bool, path string) error {
	if tracked != nil && !tracked[path] {
		return ErrUntracked
	}
	return nil
}

// prune removes baselines of paths outside tracked.
func (m *Manager) prune(tracked map[string]bool) ([]string, []model.PathFailure) {
	stored, err := m.store.List()
	if err != nil {
		m.logger.Warn("Skipping baseline pruning", "error", err)
		return nil, nil
	}

	var pruned []string
	var failures []model.PathFailure
	for _, p := range stored {
		if tracked[p] {
			continue
		}
		if err := m.store.Remove(p); err != nil {
			failures = append(failures, model.PathFailure{Path: p, Err: err})
			continue
		}
		m.logger.Info("Pruned baseline", "path", p)
		pruned = append(pruned, p)
	}
	return pruned, failures
}

func (m *Manager) commit(paths []string) {
	if m.journal == nil || len(paths) == 0 {
		return
	}
	hash, err := m.journal.Commit(history.Message("accept", paths))
	if err != nil {
		m.logger.Error("Failed to record accept in journal", "error", err)
		return
	}
	if hash != "" {
		m.logger.Debug("Journal updated", "commit", hash)
	}
}
