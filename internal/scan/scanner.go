// Package scan enumerates conversion inputs in a source folder and watches
// that folder for changes.
package scan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"video-converter/internal/domain"
)

// ErrNoInput reports that a source folder holds no matching files. It marks
// an informational terminal state, not a failure.
var ErrNoInput = errors.New("no matching input files found")

// ScanError reports a source directory that is missing or unreadable.
type ScanError struct {
	Dir string
	Err error
}

// Error formats scan failures for logs and UI.
func (e *ScanError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("scan %s: %v", e.Dir, e.Err)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *ScanError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Scanner lists files in one directory matching a fixed extension.
type Scanner struct {
	extension string
	stat      func(name string) (os.FileInfo, error)
	readDir   func(name string) ([]os.DirEntry, error)
}

// NewScanner builds a scanner for .mpg sources using the real filesystem.
func NewScanner() *Scanner {
	return NewScannerForExtension(domain.InputExtension)
}

// NewScannerForExtension builds a scanner matching ext exactly, including case.
func NewScannerForExtension(ext string) *Scanner {
	return &Scanner{
		extension: ext,
		stat:      os.Stat,
		readDir:   os.ReadDir,
	}
}

// Extension returns the extension this scanner matches.
func (s *Scanner) Extension() string {
	return s.extension
}

// Scan returns matching regular files directly inside dir, in name order.
// A directory with no matches yields an empty slice and a nil error.
func (s *Scanner) Scan(dir string) ([]string, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, &ScanError{Dir: dir, Err: errors.New("source directory is required")}
	}

	info, err := s.stat(dir)
	if err != nil {
		return nil, &ScanError{Dir: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &ScanError{Dir: dir, Err: fmt.Errorf("not a directory")}
	}

	entries, err := s.readDir(dir)
	if err != nil {
		return nil, &ScanError{Dir: dir, Err: err}
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !s.Matches(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

// Matches reports whether name carries the scanner's extension.
func (s *Scanner) Matches(name string) bool {
	return filepath.Ext(name) == s.extension
}

// BuildJobs pairs each input with <destDir>/<stem>.mp4.
func BuildJobs(files []string, destDir string) []domain.ConversionJob {
	jobs := make([]domain.ConversionJob, 0, len(files))
	for _, file := range files {
		jobs = append(jobs, domain.ConversionJob{
			InputPath:  file,
			OutputPath: OutputPath(file, destDir),
		})
	}
	return jobs
}

// OutputPath derives the destination file for one input path.
func OutputPath(inputPath, destDir string) string {
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(destDir, stem+domain.OutputExtension)
}
