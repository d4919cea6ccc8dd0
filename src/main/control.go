package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"captiocr/src/config"
	"captiocr/src/screenshot"
	"captiocr/src/singleinstance"
)

var errNoResident = errors.New("no capture is running")

const controlTimeout = 60 * time.Second

// sendControl delivers req to the running capture process.
func sendControl(ctx context.Context, d *deps, req singleinstance.Request) (string, error) {
	// .env may move the control port range
	_, _ = config.Load()
	ctx, cancel := context.WithTimeout(ctx, controlTimeout)
	defer cancel()
	reply, delegated, err := d.newClient(singleinstance.PortRangeFromEnv()).Send(ctx, req)
	if err != nil {
		return "", err
	}
	if !delegated {
		return "", errNoResident
	}
	return reply, nil
}

func newStopCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running capture and save its transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := sendControl(cmd.Context(), d, singleinstance.Request{Command: singleinstance.CmdStop})
			if err != nil {
				return err
			}
			fmt.Fprintf(d.out, "Transcript saved: %s\n", path)
			return nil
		},
	}
}

func newRegionCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "region <left,top,width,height[,monitor[,dpi]]>",
		Short: "Move or resize the region of the running capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := screenshot.Parse(args[0])
			if err != nil {
				return err
			}
			if err := r.Validate(); err != nil {
				return err
			}
			if _, err := sendControl(cmd.Context(), d, singleinstance.Request{Command: singleinstance.CmdRegion, Arg: r.String()}); err != nil {
				return err
			}
			fmt.Fprintf(d.out, "Region updated: %s\n", r)
			return nil
		},
	}
}

func newStatusCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of the running capture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := sendControl(cmd.Context(), d, singleinstance.Request{Command: singleinstance.CmdStatus})
			if errors.Is(err, errNoResident) {
				fmt.Fprintln(d.out, "idle: no capture running")
				return nil
			}
			if err != nil {
				return err
			}
			fields := strings.Fields(reply)
			if len(fields) == 3 {
				fmt.Fprintf(d.out, "%s: %s ticks, %s segments\n", fields[0], fields[1], fields[2])
				return nil
			}
			fmt.Fprintln(d.out, reply)
			return nil
		},
	}
}
