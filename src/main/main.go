package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"captiocr/src/singleinstance"
)

// deps are the outside-world hooks the commands use; tests replace them.
type deps struct {
	out       io.Writer
	newClient func(singleinstance.PortRange) singleinstance.Client
}

func defaultDeps() *deps {
	return &deps{out: os.Stdout, newClient: singleinstance.NewClient}
}

func main() {
	// Ensure DPI awareness before querying monitor geometry
	enableDPIAwareness()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args), defaultDeps())
}

func runWithArgs(args []string, d *deps) error {
	if len(args) == 0 {
		args = []string{"captiocr"}
	}
	cmd := newRootCmd(d)
	cmd.SetArgs(args[1:])
	cmd.SetOut(d.out)
	return cmd.Execute()
}

func newRootCmd(d *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "captiocr",
		Short:         "Capture on-screen captions to a text transcript",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newRunCmd(d),
		newStopCmd(d),
		newRegionCmd(d),
		newStatusCmd(d),
		newProfileCmd(d),
		newDisplaysCmd(d),
		newLanguagesCmd(d),
	)
	return cmd
}

var legacyFlags = []string{"region", "monitor", "dpi", "lang", "profile", "name", "interval", "max-interval", "max-similar", "caption-mode", "tray", "debug"}

// normalizeLegacyArgs maps single-dash long flags (-region, -lang=ita) to
// the double-dash form cobra expects.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range legacyFlags {
			if arg == "-"+name || strings.HasPrefix(arg, "-"+name+"=") {
				normalized[i] = "-" + arg
				break
			}
		}
	}

	return normalized
}
