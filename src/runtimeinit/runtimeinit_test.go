package runtimeinit

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"captiocr/src/config"
	"captiocr/src/logutil"
	"captiocr/src/ocr"
	"captiocr/src/session"
)

func TestBootstrapAppliesLoggingAndDebug(t *testing.T) {
	base := t.TempDir()
	t.Setenv("LOGS_DIR", filepath.Join(base, "logs"))
	t.Setenv("TESSDATA_DIR", filepath.Join(base, "missing-tessdata"))
	t.Setenv("COPY_ON_STOP", "false")
	defer logutil.SetDebug(false)

	var gotEnable bool
	var gotDir string
	cfg, err := Bootstrap(Options{
		LoadOptions: config.LoadOptions{BaseDirOverride: base, EnvPathOverride: "none", Debug: true},
		SetupLogging: func(enable bool, dir string) {
			gotEnable, gotDir = enable, dir
		},
	})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if gotDir != filepath.Join(base, "logs") || gotEnable != cfg.EnableFileLogging {
		t.Fatalf("SetupLogging got (%v, %q)", gotEnable, gotDir)
	}
	if !logutil.DebugEnabled() {
		t.Fatal("debug mode not propagated")
	}
	if cfg.TessdataDir != "" {
		t.Fatalf("missing tessdata dir should be dropped, got %q", cfg.TessdataDir)
	}
}

func TestBootstrapRejectsInvalidConfig(t *testing.T) {
	t.Setenv("MIN_INTERVAL_SEC", "0.1")
	if _, err := Bootstrap(Options{LoadOptions: config.LoadOptions{BaseDirOverride: t.TempDir(), EnvPathOverride: "none"}}); err == nil {
		t.Fatal("expected error")
	}
}

func TestBootstrapFailsWithoutOCREngine(t *testing.T) {
	t.Setenv("MIN_INTERVAL_SEC", "3")
	t.Setenv("MAX_INTERVAL_SEC", "6")
	t.Setenv("COPY_ON_STOP", "false")
	_, err := Bootstrap(Options{
		LoadOptions: config.LoadOptions{BaseDirOverride: t.TempDir(), EnvPathOverride: "none"},
		CheckOCR:    func() (string, error) { return "", errors.New("libtesseract not found") },
	})
	if !errors.Is(err, ocr.ErrOCR) {
		t.Fatalf("err = %v, want ErrOCR", err)
	}
}

func TestNewSessionWiring(t *testing.T) {
	dir := t.TempDir()
	tess := filepath.Join(dir, "tessdata")
	if err := os.MkdirAll(tess, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		CapturesDir:      dir,
		LogsDir:          dir,
		TessdataDir:      tess,
		FailureThreshold: 3,
		OCRDeadlineSec:   20,
		OCRMaxDimension:  1000,
		MinOverlap:       4,
		DedupHistory:     5,
		ChangeDetection:  true,
		DebugSaveImages:  true,
	}
	c := NewSession(cfg, SessionOptions{Name: "lecture", CaptionMode: true, Debug: true})
	defer c.Close()

	if c.Session == nil || c.Engine == nil || c.Pool == nil {
		t.Fatalf("incomplete components: %+v", c)
	}
	if c.Session.State() != session.StateIdle {
		t.Fatalf("new session state = %s", c.Session.State())
	}
}
