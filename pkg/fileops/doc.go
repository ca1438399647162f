// Package fileops provides secure file operations with defense-in-depth validation patterns.
//
// # Atomic Operations
//
// Use AtomicWriteFile() when a partially written file would be
// worse than no write at all:
//
//	err := fileops.AtomicWriteFile(path, data, 0644)
//	// Destination appears atomically or remains unchanged on failure
//
// # Directory Scanning
//
// SecureDirectoryScanner walks a directory inside an os.Root boundary, skipping
// configured directory names and refusing symlinks that escape the scan root:
//
//	files, err := fileops.ScanWithOptions(dir, &fileops.DirectoryScanOptions{
//	    MaxDepth:     10,
//	    SkipPatterns: []string{"node_modules", ".git"},
//	    FileFilter:   func(name string) bool { return strings.HasSuffix(name, ".py") },
//	})
//
// # Storage Validation
//
// ValidateStoragePath() rejects system and reserved directories before an
// application places its own state there. ValidateDirectoryWritable() then
// confirms the directory can be written.
package fileops
