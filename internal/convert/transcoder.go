// Package convert runs the external transcoder over a batch of jobs.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"video-converter/internal/domain"
)

// maxStderrSummary bounds how much ffmpeg stderr is copied into error text.
const maxStderrSummary = 500

// Request contains the ordered jobs and callbacks for one batch run.
type Request struct {
	Jobs []domain.ConversionJob
	// OnJobStart fires before each command with Percent still at the previous value.
	OnJobStart func(state domain.BatchState)
	// OnProgress fires once per job, after it succeeded or failed.
	OnProgress func(state domain.BatchState)
	OnJobError func(job domain.ConversionJob, err *JobError)
	OnLog      func(log CommandLog)
}

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// JobError is a per-file failure with optional command context.
type JobError struct {
	Job        domain.ConversionJob `json:"job"`
	Message    string               `json:"message"`
	CommandLog CommandLog           `json:"commandLog"`
	Err        error                `json:"-"`
}

// Error formats job failures for logs and UI.
func (e *JobError) Error() string {
	if e == nil {
		return ""
	}

	name := filepath.Base(e.Job.InputPath)
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", name, e.Message)
	}

	msg := fmt.Sprintf("%s: %s (cmd=%s exit=%d)", name, e.Message, e.CommandLog.Command, e.CommandLog.ExitCode)
	if detail := stderrSummary(e.CommandLog.Stderr); detail != "" {
		msg += ": " + detail
	}
	return msg
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *JobError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Transcoder converts jobs one at a time with ffmpeg.
type Transcoder struct {
	ffmpegPath string
	runner     commandRunner
	mkdirAll   func(path string, perm os.FileMode) error
	logger     *slog.Logger
}

// NewTranscoder constructs the production transcoder. An empty ffmpegPath
// resolves "ffmpeg" on PATH.
func NewTranscoder(ffmpegPath string, logger *slog.Logger) *Transcoder {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Transcoder{
		ffmpegPath: ffmpegPath,
		runner:     &execRunner{},
		mkdirAll:   os.MkdirAll,
		logger:     logger,
	}
}

// FFmpegPath returns the executable used for conversions.
func (t *Transcoder) FFmpegPath() string {
	return t.ffmpegPath
}

// Run converts every job in order. A failed job is reported through
// OnJobError and never stops the batch; the batch only ends early when ctx
// is done, leaving the remaining jobs unprocessed.
func (t *Transcoder) Run(ctx context.Context, req Request) domain.BatchResult {
	total := len(req.Jobs)
	result := domain.BatchResult{Total: total}
	state := domain.BatchState{Total: total}

	for i, job := range req.Jobs {
		if err := ctx.Err(); err != nil {
			t.logger.Warn("batch interrupted", "processed", i, "total", total, "err", err)
			break
		}

		state.Index = i + 1
		state.StatusText = statusText(job, state.Index, total)
		emitState(req.OnJobStart, state)

		log, err := t.Convert(ctx, job)
		if log.Command != "" {
			emitLog(req.OnLog, log)
		}
		if err != nil {
			result.Failed++
			jobErr := asJobError(job, err)
			t.logger.Error("conversion failed",
				"input", job.InputPath,
				"exit_code", jobErr.CommandLog.ExitCode,
				"err", err,
			)
			if req.OnJobError != nil {
				req.OnJobError(job, jobErr)
			}
		} else {
			result.Succeeded++
			t.logger.Info("converted", "input", job.InputPath, "output", job.OutputPath)
		}

		state.Percent = percent(state.Index, total)
		emitState(req.OnProgress, state)
	}

	return result
}

// Convert runs ffmpeg for one job and returns its command log. Failures are
// returned as *JobError.
func (t *Transcoder) Convert(ctx context.Context, job domain.ConversionJob) (CommandLog, error) {
	if strings.TrimSpace(job.InputPath) == "" || strings.TrimSpace(job.OutputPath) == "" {
		return CommandLog{}, &JobError{
			Job:     job,
			Message: "input and output paths are required",
		}
	}

	outDir := filepath.Dir(job.OutputPath)
	if err := t.mkdirAll(outDir, 0o755); err != nil {
		return CommandLog{}, &JobError{
			Job:     job,
			Message: fmt.Sprintf("cannot create output directory: %s", outDir),
			Err:     err,
		}
	}

	args := BuildFFmpegArgs(job.InputPath, job.OutputPath)
	t.logger.Debug("running ffmpeg", "cmd", t.ffmpegPath, "args", args)

	cmdResult, runErr := t.runner.Run(ctx, t.ffmpegPath, args...)
	log := CommandLog{
		Command:  t.ffmpegPath,
		Args:     args,
		ExitCode: cmdResult.ExitCode,
		Stdout:   cmdResult.Stdout,
		Stderr:   cmdResult.Stderr,
	}
	if runErr != nil {
		return log, &JobError{
			Job:        job,
			Message:    "ffmpeg conversion failed",
			CommandLog: log,
			Err:        runErr,
		}
	}

	return log, nil
}

// BuildFFmpegArgs builds the fixed conversion template:
// -i <in> -c:v libx264 -c:a aac -y <out>.
func BuildFFmpegArgs(inputPath, outputPath string) []string {
	return []string{
		"-i", inputPath,
		"-c:v", domain.VideoCodec,
		"-c:a", domain.AudioCodec,
		"-y",
		outputPath,
	}
}

func statusText(job domain.ConversionJob, index, total int) string {
	return fmt.Sprintf("Converting: %s (%d/%d)", filepath.Base(job.InputPath), index, total)
}

func percent(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(processed) / float64(total) * 100
}

// asJobError normalizes any failure into a JobError attributed to job.
func asJobError(job domain.ConversionJob, err error) *JobError {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr
	}
	return &JobError{Job: job, Message: err.Error(), Err: err}
}

// stderrSummary keeps the tail of stderr, where ffmpeg prints the cause.
func stderrSummary(stderr string) string {
	trimmed := strings.TrimSpace(stderr)
	if len(trimmed) > maxStderrSummary {
		trimmed = "..." + trimmed[len(trimmed)-maxStderrSummary:]
	}
	return trimmed
}

// emitState forwards progress snapshots when callback is configured.
func emitState(cb func(state domain.BatchState), state domain.BatchState) {
	if cb != nil {
		cb(state)
	}
}

// emitLog forwards command logs when callback is configured.
func emitLog(cb func(log CommandLog), log CommandLog) {
	if cb != nil {
		cb(log)
	}
}

// NewTranscoderForTests constructs a transcoder with injectable dependencies.
func NewTranscoderForTests(
	ffmpegPath string,
	runner commandRunner,
	mkdirAll func(path string, perm os.FileMode) error,
) *Transcoder {
	return &Transcoder{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		mkdirAll:   mkdirAll,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}
