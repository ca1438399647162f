// Package resolver determines which files make up an MCP installation: the
// configuration file itself and every local server entry point it declares.
package resolver

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"mcpguard/internal/logging"
	"mcpguard/internal/model"
	"mcpguard/pkg/fileops"
)

var (
	// ErrConfigUnreadable means the configuration file could not be read.
	ErrConfigUnreadable = errors.New("mcp configuration unreadable")
	// ErrConfigMalformed means the configuration file could not be parsed into a server list.
	ErrConfigMalformed = errors.New("mcp configuration malformed")
)

// Options tune entry point discovery.
type Options struct {
	// Interpreters are commands whose arguments name the real entry point.
	Interpreters []string
	// Extensions are the script extensions tracked inside server directories.
	Extensions []string
	// SkipDirs are directory names never descended into.
	SkipDirs []string
	MaxDepth int
}

// ServerDir is a directory entry point expanded into its files.
type ServerDir struct {
	Server string
	Path   string
}

// Result is the outcome of one resolution.
type Result struct {
	ConfigPath string
	Servers    []Server
	// Targets are ordered: the configuration file first, then entry points in
	// declaration order. No path appears twice.
	Targets []model.Target
	Dirs    []ServerDir
}

// Paths returns the target paths in order.
func (r *Result) Paths() []string {
	paths := make([]string, len(r.Targets))
	for i, t := range r.Targets {
		paths[i] = t.Path
	}
	return paths
}

// Resolver turns a configuration file into the ordered set of tracked paths.
type Resolver struct {
	opts   Options
	logger *logging.AppLogger
}

func New(opts Options, logger *logging.AppLogger) *Resolver {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 20
	}
	return &Resolver{opts: opts, logger: logging.OrDefault(logger)}
}

// Resolve reads configPath and returns the tracked targets.
//
// known lists paths that already have a baseline. A known path that lies under
// a directory entry point and no longer exists is kept as a target so that its
// removal is reported.
func (r *Resolver) Resolve(configPath string, known []string) (*Result, error) {
	absConfig, err := filepath.Abs(fileops.ExpandPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigUnreadable, err)
	}

	data, err := os.ReadFile(absConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigUnreadable, err)
	}

	servers, err := ParseConfig(absConfig, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigMalformed, absConfig, err)
	}

	res := &Result{ConfigPath: absConfig, Servers: servers}
	seen := make(map[string]bool)
	add := func(t model.Target) {
		if seen[t.Path] {
			return
		}
		seen[t.Path] = true
		res.Targets = append(res.Targets, t)
	}

	add(model.Target{Path: absConfig})

	configDir := filepath.Dir(absConfig)
	for _, s := range servers {
		entry, ok := r.entryPoint(s, configDir, known)
		if !ok {
			r.logger.Debug("Server has no local entry point", "server", s.Name, "command", s.Command, "url", s.URL)
			continue
		}

		info, err := os.Stat(entry)
		if err != nil {
			// A vanished directory server keeps its baselined files as targets.
			if under := knownUnder(entry, known); len(under) > 0 && !slices.Contains(known, entry) {
				for _, p := range under {
					add(model.Target{Path: p, Server: s.Name, Root: entry})
				}
				continue
			}
			add(model.Target{Path: entry, Server: s.Name})
			continue
		}
		if !info.IsDir() {
			add(model.Target{Path: entry, Server: s.Name})
			continue
		}

		res.Dirs = append(res.Dirs, ServerDir{Server: s.Name, Path: entry})
		for _, p := range r.expandDir(entry, known) {
			add(model.Target{Path: p, Server: s.Name, Root: entry})
		}
	}

	r.logger.Debug("Resolved tracked paths", "config", absConfig, "servers", len(servers), "paths", len(res.Targets))
	return res, nil
}

// expandDir lists the tracked files under dir in sorted order, including known
// paths under dir that have been deleted.
func (r *Resolver) expandDir(dir string, known []string) []string {
	files, err := fileops.ScanWithOptions(dir, &fileops.DirectoryScanOptions{
		SkipUnreadableDirs: true,
		MaxDepth:           r.opts.MaxDepth,
		IncludeHidden:      true,
		SkipPatterns:       r.opts.SkipDirs,
		FileFilter:         r.hasTrackedExtension,
	})
	if err != nil {
		// The directory itself is tracked so the read failure surfaces as a change
		r.logger.Warn("Failed to scan server directory", "dir", dir, "error", err)
		return []string{dir}
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, filepath.Join(dir, f.Path))
	}

	for _, k := range knownUnder(dir, known) {
		if slices.Contains(paths, k) {
			continue
		}
		if _, err := os.Lstat(k); errors.Is(err, fs.ErrNotExist) {
			paths = append(paths, k)
		}
	}

	sort.Strings(paths)
	return paths
}

// knownUnder returns the known paths below dir in sorted order.
func knownUnder(dir string, known []string) []string {
	prefix := dir + string(filepath.Separator)
	var under []string
	for _, k := range known {
		if strings.HasPrefix(k, prefix) {
			under = append(under, k)
		}
	}
	sort.Strings(under)
	return under
}

func (r *Resolver) hasTrackedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext != "" && slices.Contains(r.opts.Extensions, ext)
}
