package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"video-converter/internal/config"
	"video-converter/internal/convert"
	"video-converter/internal/diagnostics"
	"video-converter/internal/domain"
	"video-converter/internal/jobs"
	"video-converter/internal/scan"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// eventName is the runtime event the frontend subscribes to.
const eventName = "batch:event"

// ErrFoldersRequired is returned when either folder is missing at start.
var ErrFoldersRequired = errors.New("please select both source and output folders")

// App wires configuration, batches, transcoding, and UI runtime callbacks.
type App struct {
	Settings      domain.Settings
	Store         config.Store
	Batches       *jobs.Manager
	Scanner       *scan.Scanner
	NewTranscoder func(ffmpegPath string) batchRunner
	Diagnostics   domain.DiagnosticReport
	Logger        *slog.Logger
	assets        fs.FS
	checker       *diagnostics.Checker
	installer     *ffmpegInstaller
	newBatchID    func() string

	mu         sync.Mutex
	events     *jobs.EventBus
	runtimeCtx context.Context
	batchCtx   context.Context
	stopBatch  context.CancelFunc
	watcher    *scan.Watcher
}

// batchRunner isolates the transcoder behind an interface.
type batchRunner interface {
	Run(ctx context.Context, req convert.Request) domain.BatchResult
}

// New builds the application with persisted settings and startup diagnostics.
func New(logger *slog.Logger) (*App, error) {
	return NewWithAssets(nil, logger)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	store := config.NewViperStore(config.DefaultSettingsPath(homeDir))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	checker := diagnostics.NewChecker()
	report := checker.Run(settings)
	for _, item := range report.Failed() {
		logger.Warn("diagnostic failed", "id", item.ID, "message", item.Message)
	}

	return &App{
		Settings: settings,
		Store:    store,
		Batches:  jobs.NewManager(),
		Scanner:  scan.NewScanner(),
		NewTranscoder: func(ffmpegPath string) batchRunner {
			return convert.NewTranscoder(ffmpegPath, logger.With("component", "transcoder"))
		},
		Diagnostics: report,
		Logger:      logger,
		assets:      assets,
		checker:     checker,
		newBatchID:  uuid.NewString,
		events:      jobs.NewEventBus(1000),
	}, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Video Converter",
		Width:       600,
		Height:      400,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events and dialogs.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown stops the folder watcher and any ffmpeg child of a running batch.
func (a *App) Shutdown(ctx context.Context) {
	a.StopWatchingSource()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = nil
	if a.stopBatch != nil {
		a.stopBatch()
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.refreshDiagnosticsFromSettings(normalized)
	return normalized, nil
}

// PickSourceDirectory opens a native directory picker for the input folder.
func (a *App) PickSourceDirectory() (string, error) {
	return a.pickDirectory("Select source folder")
}

// PickOutputDirectory opens a native directory picker for converted files.
func (a *App) PickOutputDirectory() (string, error) {
	return a.pickDirectory("Select output folder")
}

func (a *App) pickDirectory(title string) (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: title,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or configured output dir) in file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.OutputDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// RefreshDiagnostics reloads settings and reruns environment checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	return a.refreshDiagnosticsFromSettings(settings), nil
}

// PreviewSource lists the files a batch started on dir would convert.
func (a *App) PreviewSource(dir string) ([]string, error) {
	return a.scanner().Scan(strings.TrimSpace(dir))
}

// WatchSource replaces any existing folder watch with one on dir and
// publishes the pending file list whenever it changes.
func (a *App) WatchSource(dir string) error {
	dir = strings.TrimSpace(dir)
	a.StopWatchingSource()

	watcher, err := a.scanner().Watch(dir, scan.DefaultDebounce,
		func(files []string) {
			a.publishEvent(jobs.Event{
				Type:    jobs.EventTypeSource,
				Message: fmt.Sprintf("%d file(s) pending in %s", len(files), dir),
				Files:   files,
				Total:   len(files),
			})
		},
		func(err error) {
			a.logger().Warn("source watch error", "dir", dir, "err", err)
			a.publishEvent(jobs.Event{
				Type:    jobs.EventTypeError,
				Message: err.Error(),
			})
		},
	)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.watcher = watcher
	a.mu.Unlock()
	return nil
}

// StopWatchingSource closes the active folder watch, if any.
func (a *App) StopWatchingSource() {
	a.mu.Lock()
	watcher := a.watcher
	a.watcher = nil
	a.mu.Unlock()

	if watcher != nil {
		if err := watcher.Close(); err != nil {
			a.logger().Warn("close source watcher", "dir", watcher.Dir(), "err", err)
		}
	}
}

// StartConversion scans sourceDir and converts every match into outputDir
// on a background goroutine. Scan errors are returned before any job runs.
func (a *App) StartConversion(sourceDir, outputDir string) (domain.Batch, error) {
	sourceDir = strings.TrimSpace(sourceDir)
	outputDir = strings.TrimSpace(outputDir)
	if sourceDir == "" || outputDir == "" {
		return domain.Batch{}, ErrFoldersRequired
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.Batch{}, fmt.Errorf("load settings: %w", err)
	}

	batchID := a.batchID()
	if err := a.Batches.Start(batchID, sourceDir, outputDir); err != nil {
		return domain.Batch{}, err
	}

	settings.SourceDir = sourceDir
	settings.OutputDir = outputDir
	settings = normalizeSettings(settings)
	if err := a.Store.Save(settings); err != nil {
		a.logger().Warn("persist last used folders", "err", err)
	}
	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	a.publishStatus(batchID, domain.BatchStatusScanning, "Scanning "+sourceDir)
	files, err := a.scanner().Scan(sourceDir)
	if err != nil {
		_ = a.Batches.Transition(domain.BatchStatusFailed)
		a.publishStatus(batchID, domain.BatchStatusFailed, "Scan failed")
		a.publishEvent(jobs.Event{
			BatchID: batchID,
			Type:    jobs.EventTypeError,
			Status:  domain.BatchStatusFailed,
			Message: err.Error(),
		})
		return a.Batches.Current(), err
	}

	if len(files) == 0 {
		_ = a.Batches.Transition(domain.BatchStatusCompleted)
		a.logger().Info("nothing to convert", "batch", batchID, "source", sourceDir)
		a.publishEvent(jobs.Event{
			BatchID:  batchID,
			Type:     jobs.EventTypeComplete,
			Status:   domain.BatchStatusCompleted,
			Message:  fmt.Sprintf("No %s files found in the source directory", a.scanner().Extension()),
			ZeroJobs: true,
		})
		return a.Batches.Current(), nil
	}

	batchJobs := scan.BuildJobs(files, outputDir)
	if err := a.Batches.Begin(len(batchJobs)); err != nil {
		return a.Batches.Current(), err
	}
	a.publishEvent(jobs.Event{
		BatchID: batchID,
		Type:    jobs.EventTypeStatus,
		Status:  domain.BatchStatusRunning,
		Message: fmt.Sprintf("Converting %d file(s)", len(batchJobs)),
		Total:   len(batchJobs),
	})

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.batchCtx = ctx
	a.stopBatch = cancel
	a.mu.Unlock()

	go a.runBatch(ctx, cancel, batchID, batchJobs, a.transcoder(settings.FFmpegPath))
	return a.Batches.Current(), nil
}

// CurrentBatch returns current batch metadata and status.
func (a *App) CurrentBatch() domain.Batch {
	return a.Batches.Current()
}

// BatchEvents returns all events with sequence greater than sinceSeq.
func (a *App) BatchEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// runBatch executes the transcoder and maps its callbacks to batch events.
func (a *App) runBatch(ctx context.Context, cancel context.CancelFunc, batchID string, batchJobs []domain.ConversionJob, runner batchRunner) {
	logger := a.logger().With("batch", batchID)
	logger.Info("batch started", "jobs", len(batchJobs))

	defer cancel()
	defer a.clearActiveBatch(ctx)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("batch panicked", "panic", r)
			a.publishEvent(jobs.Event{
				BatchID: batchID,
				Type:    jobs.EventTypeError,
				Message: fmt.Sprintf("batch panicked: %v", r),
			})
			a.finishBatch(batchID, a.Batches.Current())
		}
	}()

	jobFailed := false
	result := runner.Run(ctx, convert.Request{
		Jobs: batchJobs,
		OnJobStart: func(state domain.BatchState) {
			a.publishEvent(jobs.Event{
				BatchID: batchID,
				Type:    jobs.EventTypeStatus,
				Status:  domain.BatchStatusRunning,
				Message: state.StatusText,
				Percent: state.Percent,
				Index:   state.Index,
				Total:   state.Total,
			})
		},
		OnProgress: func(state domain.BatchState) {
			_ = a.Batches.RecordJob(!jobFailed)
			jobFailed = false
			a.publishEvent(jobs.Event{
				BatchID: batchID,
				Type:    jobs.EventTypeProgress,
				Status:  domain.BatchStatusRunning,
				Message: state.StatusText,
				Percent: state.Percent,
				Index:   state.Index,
				Total:   state.Total,
			})
		},
		OnJobError: func(job domain.ConversionJob, err *convert.JobError) {
			jobFailed = true
			a.publishEvent(jobs.Event{
				BatchID:  batchID,
				Type:     jobs.EventTypeJobError,
				Status:   domain.BatchStatusRunning,
				Message:  fmt.Sprintf("Error converting %s: %v", filepath.Base(job.InputPath), err),
				File:     filepath.Base(job.InputPath),
				Command:  err.CommandLog.Command,
				Args:     err.CommandLog.Args,
				ExitCode: err.CommandLog.ExitCode,
				Stderr:   err.CommandLog.Stderr,
			})
		},
		OnLog: func(log convert.CommandLog) {
			a.publishEvent(jobs.Event{
				BatchID:  batchID,
				Type:     jobs.EventTypeLog,
				Message:  "Command completed",
				Command:  log.Command,
				Args:     log.Args,
				ExitCode: log.ExitCode,
				Stdout:   log.Stdout,
				Stderr:   log.Stderr,
			})
		},
	})

	logger.Info("batch finished", "succeeded", result.Succeeded, "failed", result.Failed, "total", result.Total)
	a.finishBatch(batchID, a.Batches.Current())
}

// finishBatch moves the batch to completed and publishes the terminal event.
// A run stopped before its last job is reported as interrupted.
func (a *App) finishBatch(batchID string, batch domain.Batch) {
	if err := a.Batches.Transition(domain.BatchStatusCompleted); err != nil {
		a.logger().Error("complete batch", "batch", batchID, "err", err)
	}

	percent := float64(100)
	message := "Conversion completed!"
	processed := batch.Succeeded + batch.Failed
	switch {
	case processed < batch.Total:
		percent = float64(processed) / float64(batch.Total) * 100
		message = fmt.Sprintf("Conversion interrupted after %d of %d file(s)", processed, batch.Total)
	case batch.Failed > 0:
		message = fmt.Sprintf("Conversion completed with %d failed file(s)", batch.Failed)
	}
	a.publishEvent(jobs.Event{
		BatchID:   batchID,
		Type:      jobs.EventTypeComplete,
		Status:    domain.BatchStatusCompleted,
		Message:   message,
		Percent:   percent,
		Total:     batch.Total,
		Succeeded: batch.Succeeded,
		Failed:    batch.Failed,
	})
}

// publishStatus sends a normalized status event.
func (a *App) publishStatus(batchID string, status domain.BatchStatus, message string) {
	a.publishEvent(jobs.Event{
		BatchID: batchID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, eventName, published)
	}
}

// clearActiveBatch drops the cancel handle when it still belongs to ctx.
func (a *App) clearActiveBatch(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.batchCtx == ctx {
		a.batchCtx = nil
		a.stopBatch = nil
	}
}

// refreshDiagnosticsFromSettings caches settings and reruns the checker.
func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

func (a *App) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return a.Logger
}

func (a *App) scanner() *scan.Scanner {
	if a.Scanner == nil {
		return scan.NewScanner()
	}
	return a.Scanner
}

func (a *App) transcoder(ffmpegPath string) batchRunner {
	if a.NewTranscoder == nil {
		return convert.NewTranscoder(ffmpegPath, a.logger())
	}
	return a.NewTranscoder(ffmpegPath)
}

func (a *App) batchID() string {
	if a.newBatchID == nil {
		return uuid.NewString()
	}
	return a.newBatchID()
}

// normalizeSettings trims user inputs and applies the default ffmpeg binary.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.SourceDir = strings.TrimSpace(settings.SourceDir)
	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	settings.FFmpegPath = strings.TrimSpace(settings.FFmpegPath)
	if settings.FFmpegPath == "" {
		settings.FFmpegPath = "ffmpeg"
	}
	return settings
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
