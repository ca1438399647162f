// Package detector compares the tracked files on disk with their baselines
// and produces a Change Set.
package detector

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"mcpguard/internal/content"
	"mcpguard/internal/diff"
	"mcpguard/internal/logging"
	"mcpguard/internal/model"
	"mcpguard/internal/resolver"
	"mcpguard/internal/snapshot"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Baselines is the read side of the snapshot store.
type Baselines interface {
	Get(path string) (*model.TrackedFile, error)
	List() ([]string, error)
}

// Reader reads current file content.
type Reader interface {
	Read(path string) ([]byte, error)
}

// Detector runs detection passes.
type Detector struct {
	configPath string
	resolver   *resolver.Resolver
	baselines  Baselines
	reader     Reader
	workers    int
	logger     *logging.AppLogger
	now        func() time.Time
}

func New(configPath string, res *resolver.Resolver, baselines Baselines, reader Reader, workers int, logger *logging.AppLogger) *Detector {
	if workers < 1 {
		workers = 1
	}
	return &Detector{
		configPath: configPath,
		resolver:   res,
		baselines:  baselines,
		reader:     reader,
		workers:    workers,
		logger:     logging.OrDefault(logger),
		now:        time.Now,
	}
}

// ConfigPath returns the configuration file this detector resolves.
func (d *Detector) ConfigPath() string {
	return d.configPath
}

// Resolve runs only the path resolution step.
func (d *Detector) Resolve() (*resolver.Result, error) {
	known, err := d.baselines.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list baselines: %w", err)
	}
	return d.resolver.Resolve(d.configPath, known)
}

// Detect runs one detection pass. Configuration failures abort the pass;
// per-file failures become entries.
func (d *Detector) Detect() (*model.ChangeSet, error) {
	start := time.Now()
	defer d.logger.LogPerformance("detect", start)

	res, err := d.Resolve()
	if err != nil {
		return nil, err
	}

	results := make([]*model.ChangeEntry, len(res.Targets))
	var g errgroup.Group
	g.SetLimit(d.workers)
	for i, t := range res.Targets {
		g.Go(func() error {
			results[i] = d.inspect(t)
			return nil
		})
	}
	// inspect never fails; Wait only joins the workers
	_ = g.Wait()

	cs := &model.ChangeSet{
		ID:        uuid.NewString(),
		CreatedAt: d.now(),
		Entries:   []model.ChangeEntry{},
		Tracked:   res.Paths(),
	}
	for _, e := range results {
		if e != nil {
			cs.Entries = append(cs.Entries, *e)
		}
	}

	d.logger.Debug("Detection pass complete", "id", cs.ID, "tracked", len(cs.Tracked), "changes", len(cs.Entries))
	return cs, nil
}

// inspect compares one target with its baseline. It returns nil when the
// current state matches the baseline.
func (d *Detector) inspect(t model.Target) *model.ChangeEntry {
	entry := &model.ChangeEntry{
		Path:        t.Path,
		DisplayName: t.DisplayName(),
	}
	name := filepath.Base(t.Path)

	var baseline []byte
	base, err := d.baselines.Get(t.Path)
	switch {
	case err == nil:
		entry.BaselineExists = true
		entry.BaselineHash = base.Hash
		baseline = base.Content
	case errors.Is(err, snapshot.ErrNotTracked):
	default:
		d.logger.Warn("Baseline cannot be used", "path", t.Path, "error", err)
		entry.BaselineError = err.Error()
	}

	current, err := d.reader.Read(t.Path)
	switch {
	case err == nil:
		entry.CurrentExists = true
		entry.CurrentContent = current
		entry.CurrentHash = model.DigestOf(current)
	case errors.Is(err, content.ErrMissing):
	default:
		d.logger.Warn("Tracked file unreadable", "path", t.Path, "error", err)
		entry.Kind = model.KindUnreadable
		entry.ReadError = err.Error()
		entry.DiffText = fmt.Sprintf("cannot read current content: %v\n", err)
		return entry
	}

	if entry.BaselineError != "" {
		entry.Kind = model.KindModified
		if !entry.CurrentExists {
			entry.Kind = model.KindRemoved
		}
		entry.DiffText = fmt.Sprintf("stored baseline is invalid: %s\n", entry.BaselineError)
		if entry.CurrentExists {
			entry.DiffText += withFallback(diff.Diff(name, nil, current), "current file is empty")
		} else {
			entry.DiffText += "file removed\n"
		}
		return entry
	}

	switch {
	case !entry.BaselineExists && !entry.CurrentExists:
		return nil

	case !entry.BaselineExists:
		entry.Kind = model.KindAdded
		entry.DiffText = "new file\n" + withFallback(diff.Diff(name, nil, current), "(empty)")

	case !entry.CurrentExists:
		entry.Kind = model.KindRemoved
		entry.DiffText = "file removed\n" + withFallback(diff.Diff(name, baseline, nil), "(baseline was empty)")

	case entry.CurrentHash == entry.BaselineHash:
		return nil

	default:
		entry.Kind = model.KindModified
		entry.DiffText = diff.Diff(name, baseline, current)
	}

	return entry
}

func withFallback(s, fallback string) string {
	if s == "" {
		return fallback + "\n"
	}
	return s
}
