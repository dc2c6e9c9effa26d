package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"video-converter/internal/config"
	"video-converter/internal/diagnostics"
	"video-converter/internal/domain"
)

const installCommandTimeout = 45 * time.Minute

type installOption struct {
	manager  string
	commands [][]string
}

// InstallOrFixDiagnostic applies an OS-specific remediation for one failed diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	settingsChanged := false
	var fixErr error

	switch id {
	case diagnostics.ItemFFmpeg:
		ctx, err := a.runtimeContext()
		if err != nil {
			ctx = context.Background()
		}
		installer := a.ffmpegInstaller()
		fixErr = installer.Install(ctx)
		if fixErr == nil && settings.FFmpegPath != "ffmpeg" && !installer.available(settings.FFmpegPath) {
			settings.FFmpegPath = "ffmpeg"
			settingsChanged = true
		}
	case diagnostics.ItemOutputDir:
		settings, settingsChanged, fixErr = installOrFixOutputDir(settings)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if settingsChanged {
		if saveErr := a.Store.Save(settings); saveErr != nil {
			report := a.refreshDiagnosticsFromSettings(settings)
			return report, fmt.Errorf("save settings after fix: %w", saveErr)
		}
	}

	report := a.refreshDiagnosticsFromSettings(settings)
	if fixErr != nil {
		a.logger().Error("diagnostic fix failed", "id", id, "err", fixErr)
		return report, fixErr
	}
	return report, nil
}

// ensureLocalBinOnPATH prepends the per-user tool directory to PATH so a
// user-installed ffmpeg is found without system changes.
func ensureLocalBinOnPATH(homeDir string) error {
	binDir := localBinDir(homeDir)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	entries := filepath.SplitList(current)
	for _, entry := range entries {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

func localBinDir(homeDir string) string {
	return filepath.Join(homeDir, config.AppDirName, "bin")
}

func (a *App) ffmpegInstaller() *ffmpegInstaller {
	if a.installer != nil {
		return a.installer
	}
	return newFFmpegInstaller()
}

// ffmpegInstallOptions lists package-manager commands in preference order.
func ffmpegInstallOptions(goos string) []installOption {
	switch goos {
	case "windows":
		return []installOption{
			{manager: "winget", commands: [][]string{
				{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"},
			}},
			{manager: "choco", commands: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "ffmpeg"}}},
		}
	case "darwin":
		return []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	default:
		return []installOption{
			{manager: "apt-get", commands: [][]string{
				{"apt-get", "update"},
				{"apt-get", "install", "-y", "ffmpeg"},
			}},
			{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "ffmpeg"}}},
			{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "ffmpeg"}}},
			{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", "ffmpeg"}}},
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	}
}

// privilegedManagers need root and are retried through pkexec or sudo on Linux.
var privilegedManagers = map[string]bool{
	"apt-get": true,
	"dnf":     true,
	"pacman":  true,
	"zypper":  true,
}

// ffmpegInstaller walks the package managers for one OS and stops at the
// first that installs ffmpeg.
type ffmpegInstaller struct {
	goos     string
	lookPath func(string) (string, error)
	run      func(ctx context.Context, argv []string) error
}

func newFFmpegInstaller() *ffmpegInstaller {
	return &ffmpegInstaller{
		goos:     goruntime.GOOS,
		lookPath: exec.LookPath,
		run:      runInstallCommand,
	}
}

// Install runs every command of the first working manager, then checks that
// ffmpeg resolves on PATH.
func (i *ffmpegInstaller) Install(ctx context.Context) error {
	var failures []string
	for _, option := range ffmpegInstallOptions(i.goos) {
		if !i.available(option.manager) {
			continue
		}
		if err := i.runAll(ctx, option.commands); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", option.manager, err))
			continue
		}
		if !i.available("ffmpeg") {
			return fmt.Errorf("install ffmpeg: %s finished but ffmpeg is not on PATH", option.manager)
		}
		return nil
	}

	if len(failures) == 0 {
		return fmt.Errorf("install ffmpeg: no supported package manager found for %s", i.goos)
	}
	return fmt.Errorf("install ffmpeg: %s", strings.Join(failures, " | "))
}

func (i *ffmpegInstaller) runAll(ctx context.Context, commands [][]string) error {
	for _, argv := range commands {
		if err := i.runElevated(ctx, argv); err != nil {
			return err
		}
	}
	return nil
}

// runElevated tries argv as-is, then behind each available elevation prefix.
func (i *ffmpegInstaller) runElevated(ctx context.Context, argv []string) error {
	attempts := [][]string{argv}
	if i.goos == "linux" && privilegedManagers[argv[0]] {
		for _, prefix := range [][]string{{"pkexec"}, {"sudo", "-n"}} {
			if i.available(prefix[0]) {
				attempts = append(attempts, append(append([]string{}, prefix...), argv...))
			}
		}
	}

	var errs []error
	for _, attempt := range attempts {
		err := i.run(ctx, attempt)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (i *ffmpegInstaller) available(name string) bool {
	_, err := i.lookPath(name)
	return err == nil
}

// runInstallCommand executes argv with a timeout and folds the output tail
// into the error.
func runInstallCommand(ctx context.Context, argv []string) error {
	ctx, cancel := context.WithTimeout(ctx, installCommandTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err == nil {
		return nil
	}

	command := strings.Join(argv, " ")
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", command, installCommandTimeout)
	}
	if tail := outputTail(output); tail != "" {
		return fmt.Errorf("%s: %w (%s)", command, err, tail)
	}
	return fmt.Errorf("%s: %w", command, err)
}

func outputTail(output []byte) string {
	const limit = 500
	text := strings.TrimSpace(string(output))
	if len(text) > limit {
		text = "..." + text[len(text)-limit:]
	}
	return text
}

func installOrFixOutputDir(settings domain.Settings) (domain.Settings, bool, error) {
	outputDir := strings.TrimSpace(settings.OutputDir)
	changed := false
	if outputDir == "" {
		outputDir = config.DefaultSettings().OutputDir
		settings.OutputDir = outputDir
		changed = true
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return settings, changed, fmt.Errorf("create output directory %s: %w", outputDir, err)
	}

	return settings, changed, nil
}
