package messages

import (
	"time"

	"captiocr/src/screenshot"
	"captiocr/src/session"
)

// Message is the base interface for everything posted into the event loop.
type Message interface {
	Type() string
}

// MessageType constants for type identification
const (
	TypeStartCapture  = "StartCapture"
	TypeStopCapture   = "StopCapture"
	TypeUpdateRegion  = "UpdateRegion"
	TypeStatusRequest = "StatusRequest"
	TypeSessionEnded  = "SessionEnded"
)

// Sources of a StopCapture.
const (
	SourceHotkey  = "hotkey"
	SourceTray    = "tray"
	SourceControl = "control"
	SourceSignal  = "signal"
)

// StartCapture - begins a capture session with the given setup
type StartCapture struct {
	Region      screenshot.Region
	Language    string
	MinInterval time.Duration
	MaxInterval time.Duration
	MaxSimilar  int
	CaptionMode bool
	Debug       bool
	Name        string // custom transcript name, optional
}

func (m StartCapture) Type() string { return TypeStartCapture }

// StopCapture - ends the running session (hotkey, tray, control client or signal)
type StopCapture struct {
	Source string
}

func (m StopCapture) Type() string { return TypeStopCapture }

// UpdateRegion - moves or resizes the capture region mid-session
type UpdateRegion struct {
	Region screenshot.Region
}

func (m UpdateRegion) Type() string { return TypeUpdateRegion }

// StatusRequest - asks for the running session's counters
type StatusRequest struct{}

func (m StatusRequest) Type() string { return TypeStatusRequest }

// SessionEnded - the session reached the stopped state
type SessionEnded struct {
	Result session.Result
}

func (m SessionEnded) Type() string { return TypeSessionEnded }
