package config

import (
	"os"
	"path/filepath"

	"video-converter/internal/domain"
)

// AppDirName is the per-user directory holding settings and local tools.
const AppDirName = ".video-converter"

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		SourceDir:  "",
		OutputDir:  filepath.Join(homeDir, "Videos", "Converted"),
		FFmpegPath: "ffmpeg",
	}
}

// DefaultSettingsPath returns the settings file location under the user home.
func DefaultSettingsPath(homeDir string) string {
	return filepath.Join(homeDir, AppDirName, "settings.json")
}
