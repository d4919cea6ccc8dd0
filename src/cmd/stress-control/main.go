package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"captiocr/src/singleinstance"
)

type stressOptions struct {
	n        int
	mode     string
	region   string
	deadline time.Duration
	out      io.Writer
	rng      func() singleinstance.PortRange
}

type stressResult struct {
	ok      int32
	idle    int32
	remote  int32
	errs    int32
	elapsed time.Duration
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &stressOptions{out: os.Stdout, rng: singleinstance.PortRangeFromEnv}
	cmd := newRootCmd(opts)
	return cmd.Execute()
}

func newRootCmd(opts *stressOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stress-control",
		Short:         "Stress test the control channel of a running capture",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := runWithOptions(cmd.Context(), *opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "launched=%d ok=%d idle=%d remote_err=%d err=%d elapsed=%s\n",
				opts.n, res.ok, res.idle, res.remote, res.errs, res.elapsed)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.n, "n", 50, "number of concurrent clients")
	cmd.Flags().StringVar(&opts.mode, "mode", "status", "status|region: STATUS queries or REGION updates")
	cmd.Flags().StringVar(&opts.region, "region", "0,0,400,100", "region sent in region mode")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 5*time.Second, "per-client timeout")

	return cmd
}

func requestFor(opts stressOptions) (singleinstance.Request, error) {
	switch opts.mode {
	case "status":
		return singleinstance.Request{Command: singleinstance.CmdStatus}, nil
	case "region":
		return singleinstance.Request{Command: singleinstance.CmdRegion, Arg: opts.region}, nil
	}
	return singleinstance.Request{}, fmt.Errorf("unknown mode %q (want status or region)", opts.mode)
}

func runWithOptions(ctx context.Context, opts stressOptions) (stressResult, error) {
	var res stressResult
	req, err := requestFor(opts)
	if err != nil {
		return res, err
	}
	rng := opts.rng()

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < opts.n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, opts.deadline)
			defer cancel()
			_, delegated, err := singleinstance.NewClient(rng).Send(ctx, req)
			switch {
			case errors.Is(err, singleinstance.ErrRemote):
				atomic.AddInt32(&res.remote, 1)
			case err != nil:
				atomic.AddInt32(&res.errs, 1)
			case !delegated:
				atomic.AddInt32(&res.idle, 1)
			default:
				atomic.AddInt32(&res.ok, 1)
			}
		}()
	}
	wg.Wait()
	res.elapsed = time.Since(start)
	return res, nil
}
