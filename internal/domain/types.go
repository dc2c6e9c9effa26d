package domain

// BatchStatus tracks the lifecycle of one conversion batch.
type BatchStatus string

const (
	BatchStatusIdle      BatchStatus = "idle"
	BatchStatusScanning  BatchStatus = "scanning"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
)

// Fixed conversion template: .mpg sources become H.264/AAC .mp4 files.
const (
	InputExtension  = ".mpg"
	OutputExtension = ".mp4"
	VideoCodec      = "libx264"
	AudioCodec      = "aac"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	SourceDir  string `json:"sourceDir" mapstructure:"source_dir"`
	OutputDir  string `json:"outputDir" mapstructure:"output_dir"`
	FFmpegPath string `json:"ffmpegPath" mapstructure:"ffmpeg_path"`
}

// ConversionJob pairs one input file with its derived output path.
type ConversionJob struct {
	InputPath  string `json:"inputPath"`
	OutputPath string `json:"outputPath"`
}

// BatchState is the progress snapshot handed to callbacks after each job.
type BatchState struct {
	Total      int     `json:"total"`
	Index      int     `json:"index"`
	StatusText string  `json:"statusText"`
	Percent    float64 `json:"percent"`
}

// BatchResult aggregates per-job outcomes for one run.
type BatchResult struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Batch stores the current batch identity, lifecycle status, and counters.
type Batch struct {
	ID        string      `json:"id"`
	Status    BatchStatus `json:"status"`
	SourceDir string      `json:"sourceDir,omitempty"`
	OutputDir string      `json:"outputDir,omitempty"`
	Total     int         `json:"total"`
	Processed int         `json:"processed"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}
