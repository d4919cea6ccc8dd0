package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvPathEnvVar = "CAPTIOCR_ENV"

	MinIntervalFloor = 0.5 // seconds
)

var ErrInvalidConfig = errors.New("invalid configuration")

// LoadOptions carries command-line overrides; zero values leave the
// environment/.env value in place.
type LoadOptions struct {
	EnvPathOverride string
	BaseDirOverride string
	Language        string
	MinIntervalSec  float64
	MaxIntervalSec  float64
	CaptionMode     *bool
	Debug           bool
}

type Config struct {
	CapturesDir       string
	ConfigDir         string
	LogsDir           string
	TessdataDir       string
	Language          string
	Hotkey            string
	MinIntervalSec    float64
	MaxIntervalSec    float64
	MaxSimilar        int
	FailureThreshold  int
	OCRDeadlineSec    int
	OCRMaxDimension   int
	MinOverlap        int
	DedupHistory      int
	CaptionMode       bool
	EnableFileLogging bool
	Debug             bool
	DebugSaveImages   bool
	CopyOnStop        bool
	ChangeDetection   bool
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) .env in the application (executable) directory
	// 2) If not found, the file named by CAPTIOCR_ENV
	// Variables already set in the process environment win over the file.
	envPath := resolveEnvPath(opts)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	base := opts.BaseDirOverride
	if base == "" {
		base = executableDir()
	}

	cfg := &Config{
		CapturesDir:       getEnvWithDefault("CAPTURES_DIR", filepath.Join(base, "captures")),
		ConfigDir:         getEnvWithDefault("CONFIG_DIR", filepath.Join(base, "config")),
		LogsDir:           getEnvWithDefault("LOGS_DIR", filepath.Join(base, "logs")),
		TessdataDir:       os.Getenv("TESSDATA_DIR"),
		Language:          getEnvWithDefault("LANGUAGE", "eng"),
		Hotkey:            getEnvWithDefault("HOTKEY", "Ctrl+Q"),
		MinIntervalSec:    getFloat("MIN_INTERVAL_SEC", 3),
		MaxIntervalSec:    getFloat("MAX_INTERVAL_SEC", 6),
		MaxSimilar:        getInt("MAX_SIMILAR_CAPTURES", 1, 0),
		FailureThreshold:  getInt("FAILURE_THRESHOLD", 3, 1),
		OCRDeadlineSec:    getInt("OCR_DEADLINE_SEC", 20, 1),
		OCRMaxDimension:   getInt("OCR_MAX_DIMENSION", 1000, 1),
		MinOverlap:        getInt("MIN_OVERLAP", 4, 1),
		DedupHistory:      getInt("DEDUP_HISTORY", 5, 1),
		CaptionMode:       getBool("CAPTION_MODE", true),
		EnableFileLogging: getBool("ENABLE_FILE_LOGGING", false),
		Debug:             getBool("DEBUG", false),
		DebugSaveImages:   getBool("OCR_DEBUG_SAVE_IMAGES", false),
		CopyOnStop:        getBool("COPY_ON_STOP", false),
		ChangeDetection:   getBool("CHANGE_DETECTION", true),
	}

	if v := strings.TrimSpace(opts.Language); v != "" {
		cfg.Language = v
	}
	if opts.MinIntervalSec > 0 {
		cfg.MinIntervalSec = opts.MinIntervalSec
		if cfg.MaxIntervalSec < cfg.MinIntervalSec && opts.MaxIntervalSec == 0 {
			cfg.MaxIntervalSec = cfg.MinIntervalSec
		}
	}
	if opts.MaxIntervalSec > 0 {
		cfg.MaxIntervalSec = opts.MaxIntervalSec
	}
	if opts.CaptionMode != nil {
		cfg.CaptionMode = *opts.CaptionMode
	}
	if opts.Debug {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks interval bounds.
func (c *Config) Validate() error {
	if c.MinIntervalSec < MinIntervalFloor {
		return fmt.Errorf("%w: MIN_INTERVAL_SEC %.2f below %.1f", ErrInvalidConfig, c.MinIntervalSec, MinIntervalFloor)
	}
	if c.MaxIntervalSec < c.MinIntervalSec {
		return fmt.Errorf("%w: MAX_INTERVAL_SEC %.2f below MIN_INTERVAL_SEC %.2f", ErrInvalidConfig, c.MaxIntervalSec, c.MinIntervalSec)
	}
	return nil
}

// MinInterval returns the minimum tick interval.
func (c *Config) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalSec * float64(time.Second))
}

// MaxInterval returns the maximum tick interval.
func (c *Config) MaxInterval() time.Duration {
	return time.Duration(c.MaxIntervalSec * float64(time.Second))
}

// OCRDeadline returns the per-tick OCR deadline.
func (c *Config) OCRDeadline() time.Duration {
	return time.Duration(c.OCRDeadlineSec) * time.Second
}

func executableDir() string {
	execPath, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(execPath)
}

func resolveEnvPath(opts LoadOptions) string {
	if p := strings.TrimSpace(opts.EnvPathOverride); p != "" {
		return p
	}

	exeEnv := filepath.Join(executableDir(), ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}

	if alt := os.Getenv(EnvPathEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue, minValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= minValue {
			return n
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return defaultValue
}
