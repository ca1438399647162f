package fileops

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"
)

// DirectoryScanOptions configures the behavior of directory scanning operations.
type DirectoryScanOptions struct {
	// SkipUnreadableDirs determines whether to skip directories that cannot be read
	// or to return an error. Setting to true makes scanning more resilient.
	SkipUnreadableDirs bool

	// MaxDepth limits the maximum recursion depth for directory traversal.
	MaxDepth int

	// IncludeHidden determines whether to include files and directories that start with '.'
	IncludeHidden bool

	// SkipPatterns contains directory names that should be skipped during scanning.
	// These are exact matches against directory names (not full paths).
	SkipPatterns []string

	// FileFilter is an optional function that determines whether a file should be included.
	// If nil, all files are included.
	FileFilter func(filename string) bool
}

// FileInfo represents information about a discovered file during directory scanning.
type FileInfo struct {
	// Name is the base filename without path components
	Name string

	// Path is the relative path from the scan root to this file
	Path string

	Size    int64
	ModTime time.Time
	Mode    os.FileMode
}

// SecureDirectoryScanner provides secure, configurable directory scanning with
// built-in protection against directory traversal and symlink attacks.
//
// The scanner operates within a security boundary defined by an os.Root,
// preventing access to files outside the designated scan area.
type SecureDirectoryScanner struct {
	root     *os.Root
	opts     *DirectoryScanOptions
	results  []FileInfo
	visited  map[string]bool
	scanRoot string
}

// NewDirectoryScanner creates a new secure directory scanner for the given path.
// If opts is nil, sensible defaults are used.
func NewDirectoryScanner(scanPath string, opts *DirectoryScanOptions) (*SecureDirectoryScanner, error) {
	if opts == nil {
		opts = getDefaultScanOptions()
	}

	if strings.TrimSpace(scanPath) == "" {
		return nil, fmt.Errorf("scan path cannot be empty")
	}

	absPath, err := filepath.Abs(ExpandPath(scanPath))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve scan path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("cannot access scan path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan path is not a directory: %s", absPath)
	}

	// Create secure root for the scan area
	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("cannot create secure scan root: %w", err)
	}

	return &SecureDirectoryScanner{
		root:     root,
		opts:     opts,
		results:  []FileInfo{},
		visited:  make(map[string]bool),
		scanRoot: absPath,
	}, nil
}

func getDefaultScanOptions() *DirectoryScanOptions {
	return &DirectoryScanOptions{
		SkipUnreadableDirs: true,
		MaxDepth:           20,
		IncludeHidden:      true,
		SkipPatterns:       getDefaultSkipPatterns(),
	}
}

func getDefaultSkipPatterns() []string {
	return []string{
		"node_modules",
		".git",
		"__pycache__",
		"venv",
		".venv",
	}
}

// Close releases resources associated with the scanner.
func (s *SecureDirectoryScanner) Close() error {
	if s.root != nil {
		err := s.root.Close()
		s.root = nil
		return err
	}
	return nil
}

// ScanDirectory performs a recursive scan of the configured directory.
// Results are sorted by relative path so repeated scans of an unchanged tree
// return the same order.
func (s *SecureDirectoryScanner) ScanDirectory() ([]FileInfo, error) {
	if s.root == nil {
		return nil, fmt.Errorf("scanner has been closed")
	}

	s.results = []FileInfo{}
	s.visited = make(map[string]bool)

	if err := s.scanRecursive(".", 1); err != nil {
		return nil, fmt.Errorf("directory scan failed: %w", err)
	}

	sort.Slice(s.results, func(i, j int) bool {
		return s.results[i].Path < s.results[j].Path
	})

	resultsCopy := make([]FileInfo, len(s.results))
	copy(resultsCopy, s.results)
	return resultsCopy, nil
}

func (s *SecureDirectoryScanner) scanRecursive(relativePath string, depth int) error {
	if depth > s.opts.MaxDepth {
		return nil
	}

	// Clean path and check for loops
	cleanPath := filepath.Clean(relativePath)
	if s.visited[cleanPath] {
		return nil
	}
	s.visited[cleanPath] = true

	if s.shouldSkipDirectory(filepath.Base(relativePath)) {
		return nil
	}

	dir, err := s.root.Open(relativePath)
	if err != nil {
		if s.opts.SkipUnreadableDirs {
			return nil
		}
		return fmt.Errorf("failed to open directory %s: %w", relativePath, err)
	}
	defer dir.Close()

	entries, err := dir.ReadDir(-1)
	if err != nil {
		if s.opts.SkipUnreadableDirs {
			return nil
		}
		return fmt.Errorf("failed to read directory %s: %w", relativePath, err)
	}

	for _, entry := range entries {
		entryPath := filepath.Join(relativePath, entry.Name())
		fullEntryPath := filepath.Join(s.scanRoot, entryPath)

		isLink, _ := IsSymlink(fullEntryPath)
		if isLink {
			// Symlinks must stay inside the scan root
			if err := ValidateSymlinkSecurity(fullEntryPath, []string{s.scanRoot}); err != nil {
				if s.opts.SkipUnreadableDirs {
					continue
				}
				return fmt.Errorf("symlink security check failed for %s: %w", entryPath, err)
			}
		}

		isDir := entry.IsDir()
		if isLink {
			if info, err := os.Stat(fullEntryPath); err == nil {
				isDir = info.IsDir()
			}
		}

		if isDir {
			if err := s.scanRecursive(entryPath, depth+1); err != nil {
				return err
			}
			continue
		}

		if !s.shouldIncludeFile(entry.Name()) {
			continue
		}
		fileInfo, err := s.createFileInfo(entryPath)
		if err != nil {
			if s.opts.SkipUnreadableDirs {
				continue
			}
			return fmt.Errorf("failed to get file info for %s: %w", entryPath, err)
		}
		s.results = append(s.results, fileInfo)
	}

	return nil
}

func (s *SecureDirectoryScanner) shouldSkipDirectory(dirName string) bool {
	// Never skip current or parent directory references
	if dirName == "." || dirName == ".." {
		return false
	}

	if !s.opts.IncludeHidden && strings.HasPrefix(dirName, ".") {
		return true
	}

	return slices.Contains(s.opts.SkipPatterns, dirName)
}

func (s *SecureDirectoryScanner) shouldIncludeFile(fileName string) bool {
	if !s.opts.IncludeHidden && strings.HasPrefix(fileName, ".") {
		return false
	}

	if s.opts.FileFilter != nil {
		return s.opts.FileFilter(fileName)
	}

	return true
}

func (s *SecureDirectoryScanner) createFileInfo(path string) (FileInfo, error) {
	info, err := s.root.Stat(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to get file info: %w", err)
	}

	return FileInfo{
		Name:    info.Name(),
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Mode:    info.Mode(),
	}, nil
}

// ScanWithOptions is a convenience function that creates a scanner and
// immediately performs a scan.
func ScanWithOptions(scanPath string, opts *DirectoryScanOptions) ([]FileInfo, error) {
	scanner, err := NewDirectoryScanner(scanPath, opts)
	if err != nil {
		return nil, err
	}
	defer scanner.Close()

	return scanner.ScanDirectory()
}
