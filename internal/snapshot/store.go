// Package snapshot persists the trusted baseline of every tracked path.
//
// Each path is stored as one JSON record named after the SHA-256 of the path.
// Records are replaced with an atomic rename, so a failed Put leaves the
// previous record intact.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mcpguard/internal/logging"
	"mcpguard/internal/model"
	"mcpguard/pkg/fileops"
)

var (
	// ErrNotTracked means no baseline exists for the path.
	ErrNotTracked = errors.New("path is not tracked")
	// ErrCorrupt means a record exists but fails validation.
	ErrCorrupt = errors.New("snapshot record is corrupt")
)

// Hooks used for testing (overridable)
var (
	writeRecord  = fileops.AtomicWriteFile
	removeRecord = fileops.RemoveFile
	readRecord   = os.ReadFile
)

const (
	recordVersion = 1
	recordExt     = ".json"
)

type record struct {
	Version   int          `json:"version"`
	Path      string       `json:"path"`
	Hash      model.Digest `json:"hash"`
	Size      int          `json:"size"`
	Content   []byte       `json:"content"`
	UpdatedAt time.Time    `json:"updated_at"`
	MAC       string       `json:"mac,omitempty"`
}

// Store is the on-disk baseline store.
type Store struct {
	dir    string
	signer Signer
	logger *logging.AppLogger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithSigner authenticates every record with s.
func WithSigner(s Signer) Option {
	return func(st *Store) { st.signer = s }
}

// WithClock overrides the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(st *Store) { st.now = now }
}

// Open prepares dir for use as a store, creating it if needed.
func Open(dir string, logger *logging.AppLogger, opts ...Option) (*Store, error) {
	if err := fileops.EnsureDirectoryExists(dir); err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	s := &Store{
		dir:    dir,
		logger: logging.OrDefault(logger),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// RecordPath returns the record file used for path.
func (s *Store) RecordPath(path string) string {
	sum := sha256.Sum256([]byte(path))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+recordExt)
}

// Get returns the baseline for path. It fails with ErrNotTracked when there is
// none and with ErrCorrupt when the stored record does not validate.
func (s *Store) Get(path string) (*model.TrackedFile, error) {
	data, err := readRecord(s.RecordPath(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotTracked, path)
		}
		return nil, fmt.Errorf("failed to read snapshot for %s: %w", path, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}
	if err := s.validate(path, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}

	return &model.TrackedFile{
		Path:      rec.Path,
		Hash:      rec.Hash,
		Content:   rec.Content,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

func (s *Store) validate(path string, rec *record) error {
	if rec.Version != recordVersion {
		return fmt.Errorf("unsupported record version %d", rec.Version)
	}
	if rec.Path != path {
		return fmt.Errorf("record belongs to %s", rec.Path)
	}
	if got := model.DigestOf(rec.Content); got != rec.Hash {
		return fmt.Errorf("content hash %s does not match recorded %s", got.Short(), rec.Hash.Short())
	}
	if s.signer != nil {
		if rec.MAC == "" {
			return errors.New("record is not signed")
		}
		if err := s.signer.Verify(rec.Path, rec.Hash, rec.MAC); err != nil {
			return err
		}
	}
	return nil
}

// Put stores content as the new baseline for path, replacing any prior record.
func (s *Store) Put(path string, content []byte) (*model.TrackedFile, error) {
	if content == nil {
		content = []byte{}
	}
	rec := record{
		Version:   recordVersion,
		Path:      path,
		Hash:      model.DigestOf(content),
		Size:      len(content),
		Content:   content,
		UpdatedAt: s.now().UTC(),
	}
	if s.signer != nil {
		mac, err := s.signer.Sign(rec.Path, rec.Hash)
		if err != nil {
			return nil, fmt.Errorf("failed to sign snapshot for %s: %w", path, err)
		}
		rec.MAC = mac
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot for %s: %w", path, err)
	}
	if err := writeRecord(s.RecordPath(path), data, 0600); err != nil {
		return nil, fmt.Errorf("failed to store snapshot for %s: %w", path, err)
	}

	s.logger.Debug("Stored baseline", "path", path, "hash", rec.Hash.Short(), "bytes", rec.Size)
	return &model.TrackedFile{Path: path, Hash: rec.Hash, Content: content, UpdatedAt: rec.UpdatedAt}, nil
}

// Remove drops the baseline for path. Removing an untracked path is a no-op.
func (s *Store) Remove(path string) error {
	if err := removeRecord(s.RecordPath(path)); err != nil {
		return fmt.Errorf("failed to remove snapshot for %s: %w", path, err)
	}
	s.logger.Debug("Removed baseline", "path", path)
	return nil
}

// List returns every tracked path in sorted order. Records that cannot be
// decoded are skipped with a warning; Get reports them as corrupt.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) {
			continue
		}
		data, err := readRecord(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.logger.Warn("Failed to read snapshot record", "file", e.Name(), "error", err)
			continue
		}
		var head struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(data, &head); err != nil || head.Path == "" {
			s.logger.Warn("Skipping undecodable snapshot record", "file", e.Name())
			continue
		}
		paths = append(paths, head.Path)
	}

	sort.Strings(paths)
	return paths, nil
}
