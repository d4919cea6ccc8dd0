// Package singleinstance lets one resident capture process own a loopback
// control port so later invocations (stop, region, status) can reach it.
//
// Wire format: one request line per connection, "<COMMAND>[ <arg>]\n",
// answered with "OK[ <payload>]\n" or "ERROR <message>\n". "PING\n" is
// answered with "PONG\n".
package singleinstance

import (
	"context"
	"errors"
)

// Control commands.
const (
	CmdStop   = "STOP"
	CmdRegion = "REGION"
	CmdStatus = "STATUS"
)

// ErrRemote wraps an ERROR reply from the resident process.
var ErrRemote = errors.New("resident reported error")

// Server owns the TCP endpoint and hands out control requests.
type Server interface {
	// Start listens on the first free port of the range.
	Start(ctx context.Context) error
	// Port returns the bound TCP port, or 0 if not started.
	Port() int
	// Next returns the next accepted connection as a Conn, or ctx error.
	Next(ctx context.Context) (Conn, error)
	// Close releases ownership and stops accepting clients.
	Close() error
}

// Conn represents one client connection and exposes request + response API.
type Conn interface {
	Request() Request
	// Respond sends "OK" followed by payload when non-empty.
	Respond(payload string) error
	RespondError(msg string) error
	Close() error
}

// Request is one parsed control line.
type Request struct {
	Command string
	Arg     string
}

// Client delegates a command to a resident process.
type Client interface {
	// Send scans the range for a resident and sends cmd. If no resident is
	// found it returns delegated=false, err=nil.
	Send(ctx context.Context, cmd Request) (reply string, delegated bool, err error)
}

// NewServer returns TCP implementation.
func NewServer(r PortRange) Server { return newTcpServer(r) }

// NewClient returns TCP implementation.
func NewClient(r PortRange) Client { return newTcpClient(r) }
