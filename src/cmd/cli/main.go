package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"captiocr/src/config"
	"captiocr/src/dedup"
	"captiocr/src/ocr"
	"captiocr/src/transcript"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

type cliOptions struct {
	filePath    string
	lang        string
	tessdata    string
	captionMode bool
	jsonOutput  bool
	verbose     bool
	name        string
	stdin       io.Reader
	stdout      io.Writer
	newEngine   func(ocr.Options) ocr.Engine
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args))
}

func runWithArgs(args []string) error {
	return runWith(args, defaultOptions())
}

func defaultOptions() *cliOptions {
	return &cliOptions{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		newEngine: func(o ocr.Options) ocr.Engine {
			return ocr.NewTesseract(o)
		},
	}
}

func runWith(args []string, opts *cliOptions) error {
	if len(args) == 0 {
		args = []string{"ocr-tool"}
	}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ocr-tool",
		Short:         "Run OCR on PNG input and post-process capture transcripts",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithOptions(cmd.Context(), *opts)
		},
	}

	cmd.Flags().StringVar(&opts.filePath, "file", "", "Path to PNG file (use '-' for stdin)")
	cmd.Flags().StringVar(&opts.lang, "lang", "", "Tesseract language code (default from LANGUAGE)")
	cmd.Flags().StringVar(&opts.tessdata, "tessdata", "", "Tesseract tessdata directory (overrides TESSDATA_DIR)")
	cmd.Flags().BoolVar(&opts.captionMode, "caption-mode", false, "Use automatic page segmentation")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	_ = cmd.MarkFlagRequired("file")

	cmd.AddCommand(newProcessCmd(opts), newLatestCmd(opts))
	return cmd
}

func newProcessCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <capture-file>",
		Short: "Remove repeated caption text from a capture file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(opts.verbose)
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			out, err := transcript.ProcessFile(args[0], opts.name, dedup.Options{
				MinOverlap:  cfg.MinOverlap,
				HistorySize: cfg.DedupHistory,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(opts.stdout, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.name, "name", "", "Custom prefix for the processed file name")
	return cmd
}

func newLatestCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Print the newest unprocessed capture file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(opts.verbose)
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			path, err := transcript.LatestCapture(cfg.CapturesDir)
			if err != nil {
				return err
			}
			if path == "" {
				return fmt.Errorf("no capture files in %s", cfg.CapturesDir)
			}
			fmt.Fprintln(opts.stdout, path)
			return nil
		},
	}
}

func setupLogging(verbose bool) {
	if !verbose {
		log.SetOutput(io.Discard)
		return
	}
	log.SetOutput(os.Stderr)
}

func runWithOptions(ctx context.Context, opts cliOptions) error {
	// Configure logging BEFORE any other operations.
	setupLogging(opts.verbose)
	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] Starting OCR tool\n")
	}

	cfg, err := config.LoadWithOptions(config.LoadOptions{Language: opts.lang})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.tessdata != "" {
		cfg.TessdataDir = opts.tessdata
	}
	if !ocr.ValidCode(cfg.Language) {
		return fmt.Errorf("invalid language code %q", cfg.Language)
	}

	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] Config loaded: Language=%s\n", cfg.Language)
		fmt.Fprintf(os.Stderr, "[verbose] Effective tessdata dir: %q\n", cfg.TessdataDir)
	}

	imageData, err := readInput(opts)
	if err != nil {
		return err
	}
	if err := validatePNG(imageData); err != nil {
		return err
	}
	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] PNG validation passed (%d bytes)\n", len(imageData))
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return fmt.Errorf("failed to decode PNG: %w", err)
	}

	engine := opts.newEngine(ocr.Options{
		TessdataDir:  cfg.TessdataDir,
		CaptionMode:  opts.captionMode,
		MaxDimension: cfg.OCRMaxDimension,
	})
	if c, ok := engine.(io.Closer); ok {
		defer c.Close()
	}

	return performOCR(ctx, engine, img, cfg.Language, opts)
}

func readInput(opts cliOptions) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if opts.filePath == "-" {
		if opts.verbose {
			fmt.Fprintf(os.Stderr, "[verbose] Reading image from stdin\n")
		}
		data, err = io.ReadAll(io.LimitReader(opts.stdin, maxFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		if opts.verbose {
			fmt.Fprintf(os.Stderr, "[verbose] Reading image from file: %s\n", opts.filePath)
		}
		data, err = os.ReadFile(opts.filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", opts.filePath, err)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("input file is empty")
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	return data, nil
}

func validatePNG(data []byte) error {
	if len(data) < len(pngMagic) || !bytes.Equal(data[:len(pngMagic)], pngMagic) {
		return fmt.Errorf("input is not a valid PNG file (invalid magic number)")
	}
	return nil
}

func performOCR(ctx context.Context, engine ocr.Engine, img image.Image, lang string, opts cliOptions) error {
	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] Starting OCR (%s)\n", lang)
	}

	startTime := time.Now()
	text, err := engine.Recognize(ctx, img, lang)
	elapsed := time.Since(startTime)

	if err != nil {
		if opts.verbose {
			fmt.Fprintf(os.Stderr, "[verbose] OCR failed after %v: %v\n", elapsed, err)
		}
		return fmt.Errorf("OCR failed: %w", err)
	}

	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] OCR completed in %v, extracted %d characters\n", elapsed, len(text))
	}

	return outputResult(opts.stdout, text, opts.filePath, lang, elapsed, opts.jsonOutput)
}

type OCRResult struct {
	Text      string  `json:"text"`
	Source    string  `json:"source"`
	Language  string  `json:"language"`
	Timestamp string  `json:"timestamp"`
	Duration  float64 `json:"duration_seconds"`
	CharCount int     `json:"character_count"`
}

func outputResult(w io.Writer, text, sourcePath, lang string, elapsed time.Duration, jsonOutput bool) error {
	if !jsonOutput {
		_, err := io.WriteString(w, text)
		return err
	}

	result := OCRResult{
		Text:      text,
		Source:    sourcePath,
		Language:  lang,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Duration:  elapsed.Seconds(),
		CharCount: len([]rune(text)),
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}

func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range []string{"file", "json", "verbose", "lang", "tessdata", "caption-mode", "name"} {
			if arg == "-"+name || strings.HasPrefix(arg, "-"+name+"=") {
				normalized[i] = "-" + arg
				break
			}
		}
	}

	return normalized
}
