// Package model holds the types shared by detection, review and baseline
// transactions.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Digest is a content hash in the form "sha256:<hex>". The empty Digest
// means the file does not exist.
type Digest string

const digestPrefix = "sha256:"

// DigestOf hashes data.
func DigestOf(data []byte) Digest {
	sum := sha256.Sum256(data)
	return Digest(digestPrefix + hex.EncodeToString(sum[:]))
}

// Short returns an abbreviated digest for display.
func (d Digest) Short() string {
	s := strings.TrimPrefix(string(d), digestPrefix)
	if len(s) > 12 {
		return s[:12]
	}
	if s == "" {
		return "-"
	}
	return s
}

// Kind classifies a detected change.
type Kind string

const (
	KindAdded      Kind = "added"
	KindModified   Kind = "modified"
	KindRemoved    Kind = "removed"
	KindUnreadable Kind = "unreadable"
)

// Target is one path the MCP configuration references.
type Target struct {
	// Path is absolute and cleaned.
	Path string `json:"path"`
	// Server names the configured server that references Path. Empty for the
	// configuration file itself.
	Server string `json:"server,omitempty"`
	// Root is the server directory Path was discovered under, if any.
	Root string `json:"root,omitempty"`
}

// DisplayName is the human label for a target.
func (t Target) DisplayName() string {
	switch {
	case t.Server == "":
		return "Config"
	case t.Root != "":
		rel, err := filepath.Rel(t.Root, t.Path)
		if err == nil {
			return fmt.Sprintf("Server: %s (%s)", t.Server, filepath.ToSlash(rel))
		}
	}
	return "Server: " + t.Server
}

// TrackedFile is the baseline record for one path.
type TrackedFile struct {
	Path      string    `json:"path"`
	Hash      Digest    `json:"hash"`
	Content   []byte    `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChangeEntry describes one path whose current state differs from its
// baseline. The current and baseline fields are captured at detection time
// and are used to revalidate before any revert or accept.
type ChangeEntry struct {
	Path        string `json:"path"`
	DisplayName string `json:"name"`
	Kind        Kind   `json:"kind"`
	DiffText    string `json:"diff"`

	CurrentExists  bool   `json:"current_exists"`
	CurrentHash    Digest `json:"current_hash,omitempty"`
	CurrentContent []byte `json:"current_content,omitempty"`

	BaselineExists bool   `json:"baseline_exists"`
	BaselineHash   Digest `json:"baseline_hash,omitempty"`

	// BaselineError is set when a stored baseline exists but cannot be trusted.
	BaselineError string `json:"baseline_error,omitempty"`

	ReadError string `json:"read_error,omitempty"`
}

// Unreadable reports whether the current file could not be read.
func (e ChangeEntry) Unreadable() bool {
	return e.Kind == KindUnreadable
}

// ChangeSet is the result of one detection run.
type ChangeSet struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Entries   []ChangeEntry `json:"changes"`
	// Tracked is every path the configuration referenced at detection time,
	// changed or not.
	Tracked []string `json:"tracked"`
}

// Empty reports whether nothing changed.
func (cs *ChangeSet) Empty() bool {
	return cs == nil || len(cs.Entries) == 0
}

// Paths returns the changed paths in detection order.
func (cs *ChangeSet) Paths() []string {
	if cs == nil {
		return nil
	}
	paths := make([]string, len(cs.Entries))
	for i, e := range cs.Entries {
		paths[i] = e.Path
	}
	return paths
}

// Counts tallies entries per kind.
func (cs *ChangeSet) Counts() map[Kind]int {
	counts := make(map[Kind]int)
	if cs == nil {
		return counts
	}
	for _, e := range cs.Entries {
		counts[e.Kind]++
	}
	return counts
}

// PathFailure records why one path could not be reverted or accepted.
type PathFailure struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
}

func (f PathFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Path, f.Err)
}

func (f PathFailure) Unwrap() error {
	return f.Err
}
