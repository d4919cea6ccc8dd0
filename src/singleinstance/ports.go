package singleinstance

import (
	"os"
	"strconv"
)

const (
	defaultPortStart = 49600
	defaultPortEnd   = 49650
)

// PortRange is an inclusive range of loopback ports.
type PortRange struct {
	Start int
	End   int
}

// PortRangeFromEnv returns the configured TCP port range. Environment variables:
// CAPTIOCR_PORT_START and CAPTIOCR_PORT_END (integers, inclusive).
// Falls back to defaults when unset/invalid, and clamps to [1024, 65535].
func PortRangeFromEnv() PortRange {
	r := PortRange{Start: defaultPortStart, End: defaultPortEnd}
	if v := os.Getenv("CAPTIOCR_PORT_START"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			r.Start = n
		}
	}
	if v := os.Getenv("CAPTIOCR_PORT_END"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			r.End = n
		}
	}
	return r.clamp()
}

func (r PortRange) clamp() PortRange {
	if r.Start == 0 && r.End == 0 {
		return PortRange{Start: defaultPortStart, End: defaultPortEnd}
	}
	if r.End < r.Start {
		r.Start, r.End = r.End, r.Start
	}
	if r.Start < 1024 {
		r.Start = 1024
	}
	if r.End > 65535 {
		r.End = 65535
	}
	if r.End < r.Start {
		r.End = r.Start
	}
	return r
}
