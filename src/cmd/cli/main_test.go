package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"captiocr/src/config"
	"captiocr/src/ocr"
)

type stubEngine struct {
	text    string
	err     error
	gotLang string
	gotOpts ocr.Options
}

func (e *stubEngine) Recognize(ctx context.Context, img image.Image, lang string) (string, error) {
	e.gotLang = lang
	return e.text, e.err
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 40, 20))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.SetGray(5, 5, color.Gray{Y: 0})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvPathEnvVar, filepath.Join(dir, "missing.env"))
	t.Setenv("CAPTURES_DIR", filepath.Join(dir, "captures"))
	t.Setenv("MIN_INTERVAL_SEC", "3")
	t.Setenv("MAX_INTERVAL_SEC", "6")
	t.Setenv("LANGUAGE", "eng")
	t.Setenv("TESSDATA_DIR", "")
	return dir
}

func testOptions(engine *stubEngine, stdin []byte) (*cliOptions, *bytes.Buffer) {
	var out bytes.Buffer
	return &cliOptions{
		stdin:  bytes.NewReader(stdin),
		stdout: &out,
		newEngine: func(o ocr.Options) ocr.Engine {
			engine.gotOpts = o
			return engine
		},
	}, &out
}

func TestOCRFromFile(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "frame.png")
	if err := os.WriteFile(path, pngBytes(t), 0o644); err != nil {
		t.Fatal(err)
	}

	engine := &stubEngine{text: "hello captions"}
	opts, out := testOptions(engine, nil)
	if err := runWith([]string{"ocr-tool", "--file", path, "--lang", "ita"}, opts); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "hello captions" {
		t.Fatalf("output = %q", out.String())
	}
	if engine.gotLang != "ita" {
		t.Fatalf("lang = %q, want ita", engine.gotLang)
	}
}

func TestOCRFromStdinJSON(t *testing.T) {
	isolateEnv(t)

	engine := &stubEngine{text: "città"}
	opts, out := testOptions(engine, pngBytes(t))
	if err := runWith([]string{"ocr-tool", "--file", "-", "--json", "--caption-mode"}, opts); err != nil {
		t.Fatalf("run: %v", err)
	}

	var result OCRResult
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse JSON: %v", err)
	}
	if result.Text != "città" || result.CharCount != 5 || result.Source != "-" || result.Language != "eng" {
		t.Fatalf("result = %+v", result)
	}
	if !engine.gotOpts.CaptionMode {
		t.Fatal("caption mode not passed to the engine")
	}
}

func TestOCRErrors(t *testing.T) {
	isolateEnv(t)

	engine := &stubEngine{err: ocr.ErrOCR}
	opts, _ := testOptions(engine, pngBytes(t))
	if err := runWith([]string{"ocr-tool", "--file", "-"}, opts); !errors.Is(err, ocr.ErrOCR) {
		t.Fatalf("err = %v, want ErrOCR", err)
	}

	opts, _ = testOptions(&stubEngine{}, []byte("not a png at all"))
	if err := runWith([]string{"ocr-tool", "--file", "-"}, opts); err == nil || !strings.Contains(err.Error(), "PNG") {
		t.Fatalf("err = %v, want PNG validation error", err)
	}

	opts, _ = testOptions(&stubEngine{}, nil)
	if err := runWith([]string{"ocr-tool"}, opts); err == nil {
		t.Fatal("expected missing --file error")
	}
}

func TestProcessAndLatest(t *testing.T) {
	dir := isolateEnv(t)
	captures := filepath.Join(dir, "captures")
	if err := os.MkdirAll(captures, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(captures, "capture_2026-03-14-09-26-53.txt")
	content := "Caption capture started: 2026-03-14 09:26:53\n\n" +
		"[09:27:00] good morning everyone\n" +
		"[09:27:03] good morning everyone\n" +
		"[09:27:06] welcome back\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	opts, out := testOptions(&stubEngine{}, nil)
	if err := runWith([]string{"ocr-tool", "latest"}, opts); err != nil {
		t.Fatalf("latest: %v", err)
	}
	if strings.TrimSpace(out.String()) != path {
		t.Fatalf("latest = %q, want %q", out.String(), path)
	}

	opts, out = testOptions(&stubEngine{}, nil)
	if err := runWith([]string{"ocr-tool", "process", path, "--name", "talk"}, opts); err != nil {
		t.Fatalf("process: %v", err)
	}
	processed := strings.TrimSpace(out.String())
	if filepath.Base(processed) != "talk_capture_2026-03-14-09-26-53_processed.txt" {
		t.Fatalf("processed path = %q", processed)
	}
	data, err := os.ReadFile(processed)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(string(data), "good morning everyone") != 1 {
		t.Fatalf("duplicate kept:\n%s", data)
	}

	// The processed file does not count as the latest capture
	opts, out = testOptions(&stubEngine{}, nil)
	if err := runWith([]string{"ocr-tool", "latest"}, opts); err != nil {
		t.Fatalf("latest: %v", err)
	}
	if strings.TrimSpace(out.String()) != path {
		t.Fatalf("latest after process = %q", out.String())
	}
}

func TestLatestWithoutCaptures(t *testing.T) {
	isolateEnv(t)
	opts, _ := testOptions(&stubEngine{}, nil)
	if err := runWith([]string{"ocr-tool", "latest"}, opts); err == nil {
		t.Fatal("expected error when no captures exist")
	}
}

func TestPNGValidation(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{
			name:    "ValidPNG",
			data:    []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00},
			wantErr: false,
		},
		{
			name:    "InvalidMagic",
			data:    []byte{0x00, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a},
			wantErr: true,
		},
		{
			name:    "TooShort",
			data:    []byte{0x89, 'P', 'N', 'G'},
			wantErr: true,
		},
		{
			name:    "Empty",
			data:    []byte{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePNG(tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("validatePNG() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeLegacyArgs(t *testing.T) {
	got := normalizeLegacyArgs([]string{"ocr-tool", "-file", "x.png", "-json=true", "-v", "--lang", "ita"})
	want := []string{"ocr-tool", "--file", "x.png", "--json=true", "-v", "--lang", "ita"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("got %v, want %v", got, want)
	}
}
