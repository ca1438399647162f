package resolver

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"mcpguard/pkg/fileops"
)

// entryPoint picks the local file or directory a server runs, if any.
//
// Interpreter commands (python, node, npx, ...) run their first existing
// non-flag argument; a directory only counts when it is the first non-flag
// argument. Failing that, an argument that has a baseline (itself or files
// below it) is used, then the first non-flag argument with a tracked
// extension, even if they no longer exist. Other commands count when they
// look like a path. Commands found through PATH and remote servers have no
// entry point.
func (r *Resolver) entryPoint(s Server, configDir string, known []string) (string, bool) {
	base := configDir
	if s.Cwd != "" {
		base = absFrom(configDir, s.Cwd)
	}

	if s.Path != "" {
		return absFrom(base, s.Path), true
	}
	if s.Command == "" {
		return "", false
	}

	if r.isInterpreter(s.Command) {
		var candidates []string
		for _, arg := range s.Args {
			if arg == "" || strings.HasPrefix(arg, "-") {
				continue
			}
			candidates = append(candidates, absFrom(base, arg))
		}

		for i, c := range candidates {
			info, err := os.Stat(c)
			if err != nil {
				continue
			}
			if !info.IsDir() || i == 0 {
				return c, true
			}
		}
		for _, c := range candidates {
			if slices.Contains(known, c) || len(knownUnder(c, known)) > 0 {
				return c, true
			}
		}
		for _, c := range candidates {
			if r.hasTrackedExtension(c) {
				return c, true
			}
		}
		return "", false
	}

	if isPathLike(s.Command) {
		return absFrom(base, s.Command), true
	}
	return "", false
}

func (r *Resolver) isInterpreter(command string) bool {
	name := strings.ToLower(command)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	for _, ext := range []string{".exe", ".cmd", ".bat"} {
		name = strings.TrimSuffix(name, ext)
	}
	if slices.Contains(r.opts.Interpreters, name) {
		return true
	}
	// python3.12, node22
	trimmed := strings.TrimRight(name, "0123456789.")
	return trimmed != name && slices.Contains(r.opts.Interpreters, trimmed)
}

func isPathLike(command string) bool {
	return strings.ContainsAny(command, `/\`) ||
		strings.HasPrefix(command, ".") ||
		strings.HasPrefix(command, "~")
}

// absFrom resolves p against base after expanding ~. The result is cleaned
// but symlinks are not evaluated.
func absFrom(base, p string) string {
	p = fileops.ExpandPath(p)
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	return filepath.Clean(p)
}
