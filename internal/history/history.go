// Package history keeps a git journal of accepted baselines. The snapshot
// directory doubles as the work tree: every accept commits the records it
// changed.
package history

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"mcpguard/internal/logging"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
)

const (
	authorName  = "mcpguard"
	authorEmail = "mcpguard@localhost"
)

// Entry is one journal commit.
type Entry struct {
	Hash    string    `json:"hash"`
	When    time.Time `json:"when"`
	Message string    `json:"message"`
}

// Journal commits snapshot changes to a git repository.
type Journal struct {
	dir    string
	repo   *git.Repository
	logger *logging.AppLogger
	now    func() time.Time
}

// Open opens the repository in dir, initialising it on first use.
func Open(dir string, logger *logging.AppLogger) (*Journal, error) {
	logger = logging.OrDefault(logger)

	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		logger.Info("Initialising baseline journal", "dir", dir)
		repo, err = git.PlainInit(dir, false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open baseline journal: %w", err)
	}

	return &Journal{dir: dir, repo: repo, logger: logger, now: time.Now}, nil
}

// Commit records every pending change in the work tree. It returns the new
// commit hash, or "" when there was nothing to commit.
func (j *Journal) Commit(message string) (string, error) {
	wt, err := j.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get journal worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("failed to get journal status: %w", err)
	}
	if status.IsClean() {
		j.logger.Debug("Journal unchanged, skipping commit")
		return "", nil
	}

	for path, st := range status {
		if st.Worktree == git.Deleted {
			if _, err := wt.Remove(path); err != nil {
				return "", fmt.Errorf("failed to stage removal of %s: %w", path, err)
			}
			continue
		}
		if _, err := wt.Add(path); err != nil {
			return "", fmt.Errorf("failed to stage %s: %w", path, err)
		}
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  authorName,
			Email: authorEmail,
			When:  j.now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to commit journal: %w", err)
	}

	j.logger.Debug("Committed baseline journal", "commit", hash.String()[:7], "files", len(status))
	return hash.String(), nil
}

// Entries returns up to limit commits, newest first. A non-positive limit
// returns all of them.
func (j *Journal) Entries(limit int) ([]Entry, error) {
	iter, err := j.repo.Log(&git.LogOptions{})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	defer iter.Close()

	entries := []Entry{}
	for limit <= 0 || len(entries) < limit {
		c, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read journal: %w", err)
		}
		entries = append(entries, Entry{
			Hash:    c.Hash.String(),
			When:    c.Author.When,
			Message: strings.TrimSpace(c.Message),
		})
	}
	return entries, nil
}

// Message builds a commit message for an accept of paths.
func Message(action string, paths []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d path(s)\n\n", action, len(paths))
	for _, p := range paths {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	return b.String()
}
