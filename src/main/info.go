package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"captiocr/src/config"
	"captiocr/src/ocr"
	"captiocr/src/screenshot"
)

func newDisplaysCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "displays",
		Short: "List monitors and their bounds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			displays := screenshot.Displays()
			if len(displays) == 0 {
				return fmt.Errorf("no active displays found")
			}
			for _, disp := range displays {
				b := disp.Bounds
				fmt.Fprintf(d.out, "#%d  origin %d,%d  size %dx%d\n", disp.Index, b.Min.X, b.Min.Y, b.Dx(), b.Dy())
			}
			return nil
		},
	}
}

func newLanguagesCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List supported OCR languages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			installed := ocr.InstalledLanguages(cfg.TessdataDir)
			for _, l := range ocr.SupportedLanguages {
				mark := ""
				switch {
				case cfg.TessdataDir == "":
				case slices.Contains(installed, l.Code):
					mark = "  (installed)"
				default:
					mark = "  (missing, falls back to eng)"
				}
				fmt.Fprintf(d.out, "%s  %s%s\n", l.Code, l.Name, mark)
			}
			return nil
		},
	}
}
