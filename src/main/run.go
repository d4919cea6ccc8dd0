package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"captiocr/src/clipboard"
	"captiocr/src/config"
	"captiocr/src/eventloop"
	"captiocr/src/logutil"
	"captiocr/src/messages"
	"captiocr/src/notification"
	"captiocr/src/ocr"
	"captiocr/src/profile"
	"captiocr/src/runtimeinit"
	"captiocr/src/screenshot"
	"captiocr/src/session"
	"captiocr/src/singleinstance"
	"captiocr/src/tray"
)

var errNoRegion = errors.New("no --region given and no saved profile (lastconfig/default) to fall back to")

type runOptions struct {
	region      string
	monitor     int
	dpi         float64
	lang        string
	profile     string
	name        string
	interval    float64
	maxInterval float64
	maxSimilar  int
	captionMode bool
	tray        bool
	debug       bool
}

func addSetupFlags(cmd *cobra.Command, opts *runOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.region, "region", "", "Capture region left,top,width,height[,monitor[,dpi]]")
	f.IntVar(&opts.monitor, "monitor", 0, "Monitor index the region belongs to")
	f.Float64Var(&opts.dpi, "dpi", 1, "DPI scale of the monitor (1.25 for 125%)")
	f.StringVar(&opts.lang, "lang", "", "Tesseract language code (eng, ita, fra, spa, deu, por)")
	f.Float64Var(&opts.interval, "interval", 0, "Minimum seconds between captures")
	f.Float64Var(&opts.maxInterval, "max-interval", 0, "Maximum seconds between captures when captions are static")
	f.IntVar(&opts.maxSimilar, "max-similar", 1, "Unchanged captures tolerated before slowing down")
	f.BoolVar(&opts.captionMode, "caption-mode", true, "Treat the region as moving captions (automatic page segmentation)")
	f.BoolVar(&opts.debug, "debug", false, "Verbose logging")
}

func newRunCmd(d *deps) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start capturing a screen region until stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd, d, *opts)
		},
	}
	addSetupFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.profile, "profile", "", "Load region and settings from a saved profile")
	cmd.Flags().StringVar(&opts.name, "name", "", "Custom transcript name (prefix, or full name ending in .txt)")
	cmd.Flags().BoolVar(&opts.tray, "tray", false, "Show a system tray icon")
	return cmd
}

// resolveStart merges configuration, an optional profile and flags, in
// that order of precedence (flags win). changed reports whether a flag was
// set explicitly.
func resolveStart(opts runOptions, changed func(string) bool, cfg *config.Config, store *profile.Store) (messages.StartCapture, error) {
	start := messages.StartCapture{
		Language:    cfg.Language,
		MinInterval: cfg.MinInterval(),
		MaxInterval: cfg.MaxInterval(),
		MaxSimilar:  cfg.MaxSimilar,
		CaptionMode: cfg.CaptionMode,
		Debug:       cfg.Debug,
		Name:        opts.name,
	}

	var (
		p   profile.Profile
		err error
	)
	haveProfile := false
	switch {
	case opts.profile != "":
		if p, err = store.Load(opts.profile); err != nil {
			return start, err
		}
		haveProfile = true
	case opts.region == "":
		if p, err = store.LoadLast(); err != nil {
			if errors.Is(err, profile.ErrNotFound) {
				return start, errNoRegion
			}
			return start, err
		}
		haveProfile = true
	}
	if haveProfile {
		start.Region = p.Region
		start.Language = p.Language
		start.MinInterval, start.MaxInterval = p.Intervals()
		start.MaxSimilar = p.MaxSimilar
		start.CaptionMode = p.CaptionMode
		start.Debug = start.Debug || p.Debug
	}

	if opts.region != "" {
		r, err := screenshot.Parse(opts.region)
		if err != nil {
			return start, err
		}
		start.Region = r
	}
	if changed("monitor") {
		start.Region.MonitorID = opts.monitor
	}
	if changed("dpi") {
		start.Region.DPIScale = opts.dpi
	}
	start.Region = start.Region.Normalized()
	if err := start.Region.Validate(); err != nil {
		return start, err
	}

	if changed("lang") {
		start.Language = opts.lang
	}
	if !ocr.ValidCode(start.Language) {
		return start, fmt.Errorf("invalid language code %q", start.Language)
	}
	if changed("interval") {
		start.MinInterval = seconds(opts.interval)
		if !changed("max-interval") && start.MaxInterval < start.MinInterval {
			start.MaxInterval = start.MinInterval
		}
	}
	if changed("max-interval") {
		start.MaxInterval = seconds(opts.maxInterval)
	}
	if start.MinInterval < seconds(config.MinIntervalFloor) || start.MaxInterval < start.MinInterval {
		return start, fmt.Errorf("invalid interval bounds %v..%v", start.MinInterval, start.MaxInterval)
	}
	if changed("max-similar") {
		start.MaxSimilar = opts.maxSimilar
	}
	if changed("caption-mode") {
		start.CaptionMode = opts.captionMode
	}
	if opts.debug {
		start.Debug = true
	}
	return start, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func runCapture(cmd *cobra.Command, d *deps, opts runOptions) error {
	cfg, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:  config.LoadOptions{Debug: opts.debug},
		SetupLogging: logutil.Setup,
		CheckOCR:     ocr.Version,
	})
	if err != nil {
		return err
	}

	rng := singleinstance.PortRangeFromEnv()
	detectCtx, cancelDetect := context.WithTimeout(cmd.Context(), 2*time.Second)
	port, running := singleinstance.DetectResidentPort(detectCtx, rng)
	cancelDetect()
	if running {
		return fmt.Errorf("a capture is already running (control port %d); use 'captiocr stop' first", port)
	}

	store := &profile.Store{Dir: cfg.ConfigDir}
	start, err := resolveStart(opts, cmd.Flags().Changed, cfg, store)
	if err != nil {
		return err
	}
	start.Language = ocr.ResolveLanguage(cfg.TessdataDir, start.Language)
	if start.Debug {
		logutil.SetDebug(true)
	}
	screenshot.LogDisplays()

	comps := runtimeinit.NewSession(cfg, runtimeinit.SessionOptions{
		Name:        start.Name,
		CaptionMode: start.CaptionMode,
		Debug:       start.Debug,
	})
	defer comps.Close()

	loopOpts := eventloop.Options{
		Session:  comps.Session,
		Server:   singleinstance.NewServer(rng),
		Profiles: store,
		Tooltip:  tray.UpdateTooltip,
		Notify:   notification.ShowCaptureEnded,
	}
	if cfg.CopyOnStop {
		loopOpts.CopyToClipboard = clipboard.Write
	}
	loop := eventloop.New(loopOpts)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if opts.tray {
		t, err := tray.New(tray.Config{
			Title:   "CaptiOCR",
			Tooltip: fmt.Sprintf("CaptiOCR - press %s to stop", cfg.Hotkey),
			OnStop: func() {
				loop.Post(messages.StopCapture{Source: messages.SourceTray})
			},
			OnOpenDir: func() {
				log.Printf("Captures folder: %s", cfg.CapturesDir)
				fmt.Fprintf(d.out, "Captures folder: %s\n", cfg.CapturesDir)
			},
			OnExit: cancel,
		})
		if err == nil {
			go t.Run()
			defer t.Destroy()
		}
	}

	if err := loop.StartHotkey(cfg.Hotkey); err != nil {
		log.Printf("Hotkey %q unavailable: %v", cfg.Hotkey, err)
		fmt.Fprintf(d.out, "Warning: stop hotkey unavailable (%v)\n", err)
	}

	fmt.Fprintf(d.out, "Capturing %s in %s. Press %s or run 'captiocr stop' to finish.\n", start.Region, start.Language, cfg.Hotkey)
	res, err := loop.Run(ctx, start)
	if res.Path != "" {
		fmt.Fprintf(d.out, "Transcript saved: %s (%d segments)\n", res.Path, res.Segments)
	}
	if res.Status == session.StatusPersistFailed {
		if path, ferr := comps.Session.Sink().FinalizeTo(os.TempDir(), start.Name); ferr == nil {
			fmt.Fprintf(d.out, "Could not write to %s; transcript saved to %s instead\n", cfg.CapturesDir, path)
		}
	}
	if err != nil {
		return fmt.Errorf("capture ended (%s): %w", res.Status, err)
	}
	return nil
}
