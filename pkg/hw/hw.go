// Package hw declares the capability interfaces for the appliance's
// hardware collaborators: audio capture, the status LED, the display, and
// the button. The orchestrator drives these through the interfaces only;
// driver internals live outside this repository.
package hw

import (
	"context"
	"errors"
)

// ErrCaptureBusy is returned by Capture.Start when the microphone is
// already owned by another consumer.
var ErrCaptureBusy = errors.New("hw: capture device busy")

// Capture owns the microphone and the recording pipeline. It is a
// single-owner-at-a-time resource: Start acquires it exclusively, Stop
// releases it and hands back the recorded artifact.
type Capture interface {
	// Start acquires the device and begins recording into a new segment.
	// Returns ErrCaptureBusy if the device is already acquired.
	Start(ctx context.Context) error

	// Stop ends the recording and returns the path of the captured
	// artifact. Calling Stop when not recording returns an error.
	Stop() (artifact string, err error)

	// DiskUsage reports the bytes used and free on the recording volume.
	DiskUsage() (used, free uint64, err error)
}

// LED drives the RGB status indicator. Pattern names mirror the device
// states ("idle", "recording", "transcribing", "error").
type LED interface {
	SetPattern(name string)
}

// Display renders the status screen. The orchestrator pushes snapshots;
// the renderer decides layout.
type Display interface {
	Render(state map[string]any)
}

// Button delivers debounced press events.
type Button interface {
	// Events yields "short_press", "long_press", or "shutdown".
	Events() <-chan string
}

// NopLED is an LED that does nothing. Useful headless and in tests.
type NopLED struct{}

func (NopLED) SetPattern(string) {}

// NopDisplay is a Display that does nothing.
type NopDisplay struct{}

func (NopDisplay) Render(map[string]any) {}
