// Package device owns the appliance's recording state machine and the
// orchestrator that drives capture, transcription, and the hardware
// indicators.
package device

import (
	"encoding/json"
	"errors"
)

// State represents the recording state of the device.
type State int

const (
	Idle State = iota
	Recording
	Transcribing
	Errored
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Transcribing:
		return "transcribing"
	case Errored:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "idle":
		*s = Idle
	case "recording":
		*s = Recording
	case "transcribing":
		*s = Transcribing
	case "error":
		*s = Errored
	default:
		return errors.New("device: unknown state " + name)
	}
	return nil
}

// Sentinel errors for invalid transitions.
var (
	// ErrAlreadyRecording is returned by StartRecording outside Idle.
	ErrAlreadyRecording = errors.New("device: already recording")
	// ErrNotRecording is returned by StopRecording outside Recording.
	ErrNotRecording = errors.New("device: not recording")
)
