package diagnostics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"video-converter/internal/domain"
	"video-converter/internal/scan"
)

// Diagnostic item IDs understood by the remediation actions.
const (
	ItemFFmpeg    = "tool_ffmpeg"
	ItemSourceDir = "source_dir"
	ItemOutputDir = "output_dir"
)

// Checker validates the transcoder binary and the configured folders.
type Checker struct {
	lookPath   func(string) (string, error)
	scanner    *scan.Scanner
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		scanner:    scan.NewScanner(),
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkFFmpeg(settings.FFmpegPath),
		c.checkSourceDir(settings.SourceDir),
		c.checkOutputDir(settings.OutputDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkFFmpeg verifies the configured transcoder resolves to an executable.
func (c *Checker) checkFFmpeg(ffmpegPath string) domain.DiagnosticItem {
	name := strings.TrimSpace(ffmpegPath)
	if name == "" {
		name = "ffmpeg"
	}

	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      ItemFFmpeg,
			Name:    "ffmpeg",
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Transcoder not found: %s", name),
			Hint:    "Install ffmpeg and make sure it is on PATH, or set VIDEOCONV_FFMPEG_PATH.",
			Fixable: true,
		}
	}

	return domain.DiagnosticItem{
		ID:      ItemFFmpeg,
		Name:    "ffmpeg",
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkSourceDir validates the source folder and counts pending inputs.
func (c *Checker) checkSourceDir(sourceDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   ItemSourceDir,
		Name: "Source folder",
	}

	if strings.TrimSpace(sourceDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Source folder is not selected."
		item.Hint = "Choose the folder containing the " + c.scanner.Extension() + " files to convert."
		return item
	}

	files, err := c.scanner.Scan(sourceDir)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if errors.Is(err, fs.ErrNotExist) {
			item.Message = fmt.Sprintf("Source folder does not exist: %s", sourceDir)
		} else {
			item.Message = fmt.Sprintf("Cannot read source folder: %s", sourceDir)
		}
		item.Hint = "Choose an existing, readable folder."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("%d %s file(s) ready in %s", len(files), c.scanner.Extension(), sourceDir)
	return item
}

// checkOutputDir validates output directory existence and write access.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:      ItemOutputDir,
		Name:    "Output folder",
		Fixable: true,
	}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Output folder is not selected."
		item.Hint = "Set an output folder where converted videos can be written."
		return item
	}

	if err := c.mkdirAll(outputDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create output folder: %s", outputDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(outputDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output folder is not writable: %s", outputDir)
		item.Hint = "Choose a writable folder for converted videos."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Fixable = false
	item.Message = fmt.Sprintf("Writable folder: %s", outputDir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	scanner *scan.Scanner,
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		scanner:    scanner,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}
