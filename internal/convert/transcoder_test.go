package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"video-converter/internal/domain"
)

// fakeRunner simulates command execution order and outcomes.
type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (commandResult, error)
}

// Run delegates to injected behavior.
func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

// failingInputs returns a runner that fails for the listed input base names
// and writes the output file otherwise.
func failingInputs(t *testing.T, names ...string) *fakeRunner {
	t.Helper()
	fail := make(map[string]bool, len(names))
	for _, name := range names {
		fail[name] = true
	}
	return &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			input := argValue(args, "-i")
			if fail[filepath.Base(input)] {
				return commandResult{Stderr: "Invalid data found when processing input", ExitCode: 1}, errors.New("exit status 1")
			}
			mustWriteFile(t, args[len(args)-1], "converted:"+filepath.Base(input))
			return commandResult{ExitCode: 0}, nil
		},
	}
}

// TestRunReportsProgressAndErrors checks callbacks and counters for a mixed batch.
func TestRunReportsProgressAndErrors(t *testing.T) {
	root := t.TempDir()
	jobs := []domain.ConversionJob{
		{InputPath: filepath.Join(root, "a.mpg"), OutputPath: filepath.Join(root, "out", "a.mp4")},
		{InputPath: filepath.Join(root, "b.mpg"), OutputPath: filepath.Join(root, "out", "b.mp4")},
		{InputPath: filepath.Join(root, "c.mpg"), OutputPath: filepath.Join(root, "out", "c.mp4")},
		{InputPath: filepath.Join(root, "d.mpg"), OutputPath: filepath.Join(root, "out", "d.mp4")},
	}

	transcoder := NewTranscoderForTests("ffmpeg", failingInputs(t, "b.mpg", "d.mpg"), os.MkdirAll)

	var progress []domain.BatchState
	var failed []string
	result := transcoder.Run(context.Background(), Request{
		Jobs: jobs,
		OnProgress: func(state domain.BatchState) {
			progress = append(progress, state)
		},
		OnJobError: func(job domain.ConversionJob, err *JobError) {
			failed = append(failed, filepath.Base(job.InputPath))
			if err.Job != job {
				t.Fatalf("error job = %+v, want %+v", err.Job, job)
			}
		},
	})

	if result != (domain.BatchResult{Total: 4, Succeeded: 2, Failed: 2}) {
		t.Fatalf("result = %+v", result)
	}
	if strings.Join(failed, ",") != "b.mpg,d.mpg" {
		t.Fatalf("failed = %v", failed)
	}
	if len(progress) != len(jobs) {
		t.Fatalf("progress calls = %d, want %d", len(progress), len(jobs))
	}
	for i := 1; i < len(progress); i++ {
		if progress[i].Percent <= progress[i-1].Percent {
			t.Fatalf("progress not strictly increasing: %+v", progress)
		}
	}
	if last := progress[len(progress)-1]; last.Percent != 100 {
		t.Fatalf("final percent = %v, want 100", last.Percent)
	}
	if progress[2].StatusText != "Converting: c.mpg (3/4)" {
		t.Fatalf("status text = %q", progress[2].StatusText)
	}
}

// TestRunScenarioFirstFailsSecondSucceeds checks the two-file scenario.
func TestRunScenarioFirstFailsSecondSucceeds(t *testing.T) {
	root := t.TempDir()
	jobs := []domain.ConversionJob{
		{InputPath: filepath.Join(root, "a.in"), OutputPath: filepath.Join(root, "a.mp4")},
		{InputPath: filepath.Join(root, "b.in"), OutputPath: filepath.Join(root, "b.mp4")},
	}

	transcoder := NewTranscoderForTests("ffmpeg", failingInputs(t, "a.in"), os.MkdirAll)

	var errorsFor []string
	var lastPercent float64
	result := transcoder.Run(context.Background(), Request{
		Jobs:       jobs,
		OnProgress: func(state domain.BatchState) { lastPercent = state.Percent },
		OnJobError: func(job domain.ConversionJob, err *JobError) {
			errorsFor = append(errorsFor, filepath.Base(job.InputPath))
		},
	})

	if result.Succeeded != 1 || result.Failed != 1 {
		t.Fatalf("result = %+v, want 1 succeeded 1 failed", result)
	}
	if len(errorsFor) != 1 || errorsFor[0] != "a.in" {
		t.Fatalf("errors reported for %v, want [a.in]", errorsFor)
	}
	if lastPercent != 100 {
		t.Fatalf("final percent = %v, want 100", lastPercent)
	}
}

// TestRunEmptyBatchInvokesNoCallbacks checks the zero-job path.
func TestRunEmptyBatchInvokesNoCallbacks(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		t.Fatal("runner should not be called")
		return commandResult{}, nil
	}}
	transcoder := NewTranscoderForTests("ffmpeg", runner, os.MkdirAll)

	result := transcoder.Run(context.Background(), Request{
		OnProgress: func(domain.BatchState) { t.Fatal("unexpected progress") },
		OnJobError: func(domain.ConversionJob, *JobError) { t.Fatal("unexpected job error") },
	})
	if result != (domain.BatchResult{}) {
		t.Fatalf("result = %+v, want zero", result)
	}
}

// TestRunIsIdempotentWithOverwrite checks a second run reproduces the outputs.
func TestRunIsIdempotentWithOverwrite(t *testing.T) {
	root := t.TempDir()
	jobs := []domain.ConversionJob{
		{InputPath: filepath.Join(root, "a.mpg"), OutputPath: filepath.Join(root, "out", "a.mp4")},
		{InputPath: filepath.Join(root, "b.mpg"), OutputPath: filepath.Join(root, "out", "b.mp4")},
	}
	transcoder := NewTranscoderForTests("ffmpeg", failingInputs(t), os.MkdirAll)

	transcoder.Run(context.Background(), Request{Jobs: jobs})
	first := readOutputs(t, jobs)
	result := transcoder.Run(context.Background(), Request{Jobs: jobs})
	second := readOutputs(t, jobs)

	if result.Succeeded != 2 {
		t.Fatalf("second run result = %+v", result)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("output %d differs: %q vs %q", i, first[i], second[i])
		}
	}
}

// TestRunStopsWhenContextDone checks remaining jobs are skipped on shutdown.
func TestRunStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		calls++
		cancel()
		return commandResult{}, nil
	}}
	transcoder := NewTranscoderForTests("ffmpeg", runner, func(string, os.FileMode) error { return nil })

	result := transcoder.Run(ctx, Request{Jobs: []domain.ConversionJob{
		{InputPath: "/in/a.mpg", OutputPath: "/out/a.mp4"},
		{InputPath: "/in/b.mpg", OutputPath: "/out/b.mp4"},
	}})

	if calls != 1 {
		t.Fatalf("runner calls = %d, want 1", calls)
	}
	if result.Succeeded != 1 || result.Failed != 0 || result.Total != 2 {
		t.Fatalf("result = %+v", result)
	}
}

// TestRunEmitsStartAndLogCallbacks checks optional hooks fire per job.
func TestRunEmitsStartAndLogCallbacks(t *testing.T) {
	transcoder := NewTranscoderForTests("ffmpeg-custom", &fakeRunner{}, func(string, os.FileMode) error { return nil })

	var starts []domain.BatchState
	var logs []CommandLog
	transcoder.Run(context.Background(), Request{
		Jobs: []domain.ConversionJob{
			{InputPath: "/in/a.mpg", OutputPath: "/out/a.mp4"},
			{InputPath: "/in/b.mpg", OutputPath: "/out/b.mp4"},
		},
		OnJobStart: func(state domain.BatchState) { starts = append(starts, state) },
		OnLog:      func(log CommandLog) { logs = append(logs, log) },
	})

	if len(starts) != 2 || len(logs) != 2 {
		t.Fatalf("starts = %d logs = %d, want 2 each", len(starts), len(logs))
	}
	if starts[0].Percent != 0 || starts[1].Percent != 50 {
		t.Fatalf("start percents = %v, %v", starts[0].Percent, starts[1].Percent)
	}
	if logs[0].Command != "ffmpeg-custom" {
		t.Fatalf("command = %q", logs[0].Command)
	}
}

// TestConvertFailureReturnsJobError checks exit code and stderr capture.
func TestConvertFailureReturnsJobError(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		return commandResult{Stderr: "clip.mpg: No such file or directory", ExitCode: 1}, errors.New("exit status 1")
	}}
	transcoder := NewTranscoderForTests("ffmpeg", runner, func(string, os.FileMode) error { return nil })
	job := domain.ConversionJob{InputPath: "/in/clip.mpg", OutputPath: "/out/clip.mp4"}

	log, err := transcoder.Convert(context.Background(), job)
	if err == nil {
		t.Fatal("expected error")
	}

	var jobErr *JobError
	if !errors.As(err, &jobErr) {
		t.Fatalf("error type = %T, want *JobError", err)
	}
	if jobErr.CommandLog.ExitCode != 1 || log.ExitCode != 1 {
		t.Fatalf("exit code = %d, want 1", jobErr.CommandLog.ExitCode)
	}
	if !strings.Contains(err.Error(), "No such file or directory") {
		t.Fatalf("error text = %q, want stderr detail", err.Error())
	}
	if !strings.HasPrefix(err.Error(), "clip.mpg: ") {
		t.Fatalf("error text = %q, want file attribution", err.Error())
	}
}

// TestConvertOutputDirFailure checks mkdir errors are job-scoped.
func TestConvertOutputDirFailure(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		t.Fatal("runner should not be called")
		return commandResult{}, nil
	}}
	transcoder := NewTranscoderForTests("ffmpeg", runner, func(string, os.FileMode) error {
		return os.ErrPermission
	})

	_, err := transcoder.Convert(context.Background(), domain.ConversionJob{InputPath: "/in/a.mpg", OutputPath: "/ro/a.mp4"})
	if !errors.Is(err, os.ErrPermission) {
		t.Fatalf("error = %v, want permission error", err)
	}
}

// TestBuildFFmpegArgs verifies deterministic ffmpeg command arguments.
func TestBuildFFmpegArgs(t *testing.T) {
	args := BuildFFmpegArgs("/in.mpg", "/out.mp4")
	want := []string{"-i", "/in.mpg", "-c:v", "libx264", "-c:a", "aac", "-y", "/out.mp4"}

	if len(args) != len(want) {
		t.Fatalf("args len = %d, want %d", len(args), len(want))
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

// TestStderrSummaryKeepsTail verifies long stderr is truncated from the front.
func TestStderrSummaryKeepsTail(t *testing.T) {
	long := strings.Repeat("x", 800) + "real cause"
	got := stderrSummary(long)
	if !strings.HasSuffix(got, "real cause") {
		t.Fatalf("summary = %q, want tail preserved", got)
	}
	if len(got) != maxStderrSummary+3 {
		t.Fatalf("summary len = %d", len(got))
	}
}

// mustWriteFile creates parent directory and writes file content.
func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir parent: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}

// readOutputs returns the content of every job output.
func readOutputs(t *testing.T, jobs []domain.ConversionJob) []string {
	t.Helper()
	out := make([]string, 0, len(jobs))
	for _, job := range jobs {
		data, err := os.ReadFile(job.OutputPath)
		if err != nil {
			t.Fatalf("read %s: %v", job.OutputPath, err)
		}
		out = append(out, string(data))
	}
	return out
}

// argValue returns value for key-style CLI args.
func argValue(args []string, key string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == key {
			return args[i+1]
		}
	}
	return ""
}
