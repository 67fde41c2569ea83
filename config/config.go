// Package config loads the demo runtime configuration from environment
// variables and command line flags, and the model configuration from YAML.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the demo runtime configuration. Environment variables supply
// defaults, flags override them.
type Config struct {
	VideoPath      string        `env:"ACTIONPIPE_VIDEO_PATH"`
	Webcam         bool          `env:"ACTIONPIPE_WEBCAM"`
	WebcamDevice   string        `env:"ACTIONPIPE_WEBCAM_DEVICE" envDefault:"/dev/video0"`
	OutputPath     string        `env:"ACTIONPIPE_OUTPUT_PATH"`
	ModelConfig    string        `env:"ACTIONPIPE_MODEL_CONFIG" envDefault:"models.yaml"`
	WeightsDir     string        `env:"ACTIONPIPE_WEIGHTS_DIR" envDefault:"weights"`
	DetectRate     int           `env:"ACTIONPIPE_DETECT_RATE" envDefault:"1"`
	Realtime       bool          `env:"ACTIONPIPE_REALTIME"`
	ExcludeActions []string      `env:"ACTIONPIPE_EXCLUDE_ACTIONS" envSeparator:","`
	OutputJSON     string        `env:"ACTIONPIPE_OUTPUT_JSON"`
	DBPath         string        `env:"ACTIONPIPE_DB_PATH"`
	EventsDSN      string        `env:"ACTIONPIPE_EVENTS_DSN"`
	SpoolDir       string        `env:"ACTIONPIPE_SPOOL_DIR" envDefault:"/tmp"`
	Start          time.Duration `env:"ACTIONPIPE_START"`
	Duration       time.Duration `env:"ACTIONPIPE_DURATION"`
}

// ParseConfig parses environment and flags into a Config. Webcam input
// forces realtime mode.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	exclude := fs.String("exclude-actions", strings.Join(cfg.ExcludeActions, ","),
		"Comma-separated action labels dropped from results")
	fs.StringVar(&cfg.VideoPath, "video-path", cfg.VideoPath, "Input video file")
	fs.BoolVar(&cfg.Webcam, "webcam", cfg.Webcam, "Read frames from a webcam instead of a file")
	fs.StringVar(&cfg.WebcamDevice, "webcam-device", cfg.WebcamDevice, "Webcam capture device")
	fs.StringVar(&cfg.OutputPath, "output-path", cfg.OutputPath, "Annotated output video path")
	fs.StringVar(&cfg.ModelConfig, "model-config", cfg.ModelConfig, "Model configuration YAML path")
	fs.StringVar(&cfg.WeightsDir, "weights-dir", cfg.WeightsDir, "Directory holding the model weight files")
	fs.IntVar(&cfg.DetectRate, "detect-rate", cfg.DetectRate, "Action predictions per second")
	fs.BoolVar(&cfg.Realtime, "realtime", cfg.Realtime, "Classify actions immediately instead of after the input ends")
	fs.StringVar(&cfg.OutputJSON, "output-json", cfg.OutputJSON, "Optional JSON results path")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Optional SQLite results database path")
	fs.StringVar(&cfg.EventsDSN, "events-dsn", cfg.EventsDSN, "Optional ClickHouse DSN for event streaming")
	fs.StringVar(&cfg.SpoolDir, "spool-dir", cfg.SpoolDir, "Event spool directory")
	fs.DurationVar(&cfg.Start, "start", cfg.Start, "Seek into the input file before processing")
	fs.DurationVar(&cfg.Duration, "duration", cfg.Duration, "Limit how much of the input file is processed")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.ExcludeActions = splitList(*exclude)

	if cfg.Webcam {
		cfg.Realtime = true
	}

	return cfg, nil
}

// Validate checks the parsed configuration for a runnable demo invocation.
func (c Config) Validate() error {
	if c.Webcam && c.VideoPath != "" {
		return fmt.Errorf("--webcam and --video-path are mutually exclusive")
	}
	if !c.Webcam && c.VideoPath == "" {
		return fmt.Errorf("either --video-path or --webcam is required")
	}
	if c.OutputPath == "" {
		return fmt.Errorf("--output-path is required")
	}
	if c.DetectRate < 1 || c.DetectRate > 1000 {
		return fmt.Errorf("--detect-rate must be between 1 and 1000, got %d", c.DetectRate)
	}
	if c.Start < 0 {
		return fmt.Errorf("--start must not be negative")
	}
	if c.Duration < 0 {
		return fmt.Errorf("--duration must not be negative")
	}
	return nil
}

// Interval returns the prediction interval in milliseconds.
func (c Config) Interval() int64 {
	return int64(1000 / c.DetectRate)
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
