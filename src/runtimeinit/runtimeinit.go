package runtimeinit

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"captiocr/src/clipboard"
	"captiocr/src/config"
	"captiocr/src/dedup"
	"captiocr/src/logutil"
	"captiocr/src/notification"
	"captiocr/src/ocr"
	"captiocr/src/screenshot"
	"captiocr/src/session"
	"captiocr/src/worker"
)

type Options struct {
	LoadOptions  config.LoadOptions
	SetupLogging func(enable bool, dir string)
	// CheckOCR, when set, reports the OCR engine version at startup.
	CheckOCR func() (string, error)
}

// Bootstrap loads configuration, sets up logging and checks optional
// facilities. A clipboard that cannot be opened turns COPY_ON_STOP off.
func Bootstrap(opts Options) (*config.Config, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg.EnableFileLogging, cfg.LogsDir)
	}
	logutil.SetDebug(cfg.Debug)

	if cfg.TessdataDir != "" {
		if st, err := os.Stat(cfg.TessdataDir); err != nil || !st.IsDir() {
			log.Printf("TESSDATA_DIR %s not usable, relying on the system Tesseract data", cfg.TessdataDir)
			cfg.TessdataDir = ""
		}
	}

	if opts.CheckOCR != nil {
		version, err := opts.CheckOCR()
		if err != nil {
			notification.ShowBlockingError("Tesseract unavailable", fmt.Sprintf("Startup check failed: %v\n\nPlease install Tesseract and its language data.", err))
			return nil, fmt.Errorf("%w: startup check: %v", ocr.ErrOCR, err)
		}
		log.Printf("Tesseract %s", version)
	}

	if cfg.CopyOnStop {
		if err := clipboard.Init(); err != nil {
			log.Printf("Clipboard unavailable, COPY_ON_STOP disabled: %v", err)
			cfg.CopyOnStop = false
		}
	}

	return cfg, nil
}

// SessionOptions are per-run choices layered over the configuration.
type SessionOptions struct {
	Name        string
	CaptionMode bool
	Debug       bool
}

// Components owns the OCR engine and worker pool behind a session.
type Components struct {
	Session *session.Loop
	Engine  *ocr.Tesseract
	Pool    *worker.Pool
}

// Close releases the worker pool and the Tesseract client.
func (c *Components) Close() {
	c.Pool.Close()
	_ = c.Engine.Close()
}

// NewSession wires a capture session: screen capturer, Tesseract behind a
// single-worker pool, dedup window and change detector from cfg.
func NewSession(cfg *config.Config, opts SessionOptions) *Components {
	maxDim := cfg.OCRMaxDimension
	engine := ocr.NewTesseract(ocr.Options{
		TessdataDir:  cfg.TessdataDir,
		CaptionMode:  opts.CaptionMode,
		MaxDimension: maxDim,
	})
	pool := worker.New(engine, 1)

	sessOpts := session.Options{
		Capturer:         screenshot.NewDisplayCapturer(),
		Engine:           pool,
		OutputDir:        cfg.CapturesDir,
		OutputName:       opts.Name,
		Window:           dedup.New(dedup.Options{MinOverlap: cfg.MinOverlap, HistorySize: cfg.DedupHistory}),
		FailureThreshold: cfg.FailureThreshold,
		OCRDeadline:      cfg.OCRDeadline(),
		CaptionMode:      opts.CaptionMode,
	}
	if cfg.ChangeDetection {
		sessOpts.Detector = screenshot.NewChangeDetector(-1)
	}
	if opts.Debug && cfg.DebugSaveImages {
		sessOpts.DebugDir = filepath.Join(cfg.LogsDir, "frames")
	}

	return &Components{
		Session: session.New(sessOpts),
		Engine:  engine,
		Pool:    pool,
	}
}
