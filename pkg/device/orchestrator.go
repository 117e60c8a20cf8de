package device

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cortexcore/cortexd/pkg/hw"
	"github.com/cortexcore/cortexd/pkg/speech"
)

// ErrBusy is returned when a transition is requested while the device is
// transcribing or stuck in the error state.
var ErrBusy = errors.New("device: busy")

// captureBytesPerSecond is the recording data rate: 16 kHz mono
// 16-bit PCM. Drives the remaining-runtime estimate.
const captureBytesPerSecond = 16000 * 2

// Status is a point-in-time snapshot of the device.
type Status struct {
	State        State     `json:"state"`
	Since        time.Time `json:"since"`
	Uptime       float64   `json:"uptime_s"`
	RecordingFor float64   `json:"recording_for_s,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	DiskUsed     uint64    `json:"disk_used"`
	DiskFree     uint64    `json:"disk_free"`
	Remaining    float64   `json:"est_remaining_s,omitempty"`
}

// TranscriptFunc receives the finished transcript and the recording
// artifact path. It runs on the transcription goroutine; errors are
// logged but do not fail the state machine.
type TranscriptFunc func(ctx context.Context, artifact, text string) error

// Config wires an Orchestrator.
type Config struct {
	Capture     hw.Capture
	Transcriber speech.Transcriber
	LED         hw.LED
	Display     hw.Display
	Logger      *slog.Logger

	// OnTranscript is called with each finished transcript.
	OnTranscript TranscriptFunc

	// TranscribeTimeout bounds one transcription call. Zero means 2m.
	TranscribeTimeout time.Duration
}

// Orchestrator serializes every state transition behind one mutex, so
// concurrent commands from both transports observe a consistent machine.
type Orchestrator struct {
	mu      sync.Mutex
	state   State
	since   time.Time
	started time.Time

	recStart time.Time
	lastErr  string

	capture     hw.Capture
	transcriber speech.Transcriber
	led         hw.LED
	display     hw.Display
	onScript    TranscriptFunc
	timeout     time.Duration
	log         *slog.Logger
	now         func() time.Time

	wg sync.WaitGroup
}

// New creates an Orchestrator in the idle state.
func New(cfg Config) *Orchestrator {
	led := cfg.LED
	if led == nil {
		led = hw.NopLED{}
	}
	display := cfg.Display
	if display == nil {
		display = hw.NopDisplay{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.TranscribeTimeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	o := &Orchestrator{
		state:       Idle,
		capture:     cfg.Capture,
		transcriber: cfg.Transcriber,
		led:         led,
		display:     display,
		onScript:    cfg.OnTranscript,
		timeout:     timeout,
		log:         logger,
		now:         time.Now,
	}
	o.since = o.now()
	o.started = o.since
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Status returns a snapshot of the machine, its uptime, and the
// recording volume with the runtime the remaining disk can hold.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	st := Status{State: o.state, Since: o.since, LastError: o.lastErr}
	st.Uptime = o.now().Sub(o.started).Seconds()
	if o.state == Recording {
		st.RecordingFor = o.now().Sub(o.recStart).Seconds()
	}
	o.mu.Unlock()

	if o.capture != nil {
		if used, free, err := o.capture.DiskUsage(); err == nil {
			st.DiskUsed, st.DiskFree = used, free
			st.Remaining = float64(free) / captureBytesPerSecond
		}
	}
	return st
}

// StartRecording transitions Idle -> Recording and starts capture.
func (o *Orchestrator) StartRecording(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case Recording:
		return ErrAlreadyRecording
	case Transcribing, Errored:
		return ErrBusy
	}
	if err := o.capture.Start(ctx); err != nil {
		o.failLocked("capture start: " + err.Error())
		return err
	}
	o.recStart = o.now()
	o.setStateLocked(Recording)
	return nil
}

// StopRecording transitions Recording -> Transcribing and kicks off the
// transcription in the background; the machine returns to Idle when it
// finishes, whether the engine succeeded or not.
func (o *Orchestrator) StopRecording(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != Recording {
		return ErrNotRecording
	}
	artifact, err := o.capture.Stop()
	if err != nil {
		o.failLocked("capture stop: " + err.Error())
		return err
	}
	o.setStateLocked(Transcribing)

	o.wg.Add(1)
	go o.transcribe(artifact)
	return nil
}

// Reset forces the machine back to Idle from any state, discarding an
// in-flight recording.
func (o *Orchestrator) Reset(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == Recording {
		if _, err := o.capture.Stop(); err != nil {
			o.log.Warn("reset: capture stop failed", "error", err)
		}
	}
	o.lastErr = ""
	o.setStateLocked(Idle)
	return nil
}

// Fail moves the machine to the error state with a reason. Reset clears it.
func (o *Orchestrator) Fail(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failLocked(reason)
}

// Wait blocks until any in-flight transcription has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) transcribe(artifact string) {
	defer o.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	text, err := o.transcriber.Transcribe(ctx, artifact)
	if err != nil {
		// Engine failure is recoverable: the artifact is kept, the
		// machine returns to Idle, and the failure shows in status.
		o.log.Error("transcription failed", "artifact", artifact, "error", err)
		o.mu.Lock()
		o.lastErr = "transcription: " + err.Error()
		o.setStateLocked(Idle)
		o.mu.Unlock()
		return
	}

	if o.onScript != nil {
		if err := o.onScript(ctx, artifact, text); err != nil {
			o.log.Error("transcript sink failed", "artifact", artifact, "error", err)
		}
	}

	o.mu.Lock()
	o.lastErr = ""
	o.setStateLocked(Idle)
	o.mu.Unlock()
	o.log.Info("transcription complete", "artifact", artifact, "chars", len(text))
}

// setStateLocked applies a transition and pushes it to the indicators.
// Caller holds o.mu.
func (o *Orchestrator) setStateLocked(s State) {
	if o.state == s {
		return
	}
	o.log.Info("state change", "from", o.state.String(), "to", s.String())
	o.state = s
	o.since = o.now()
	o.led.SetPattern(s.String())
	o.display.Render(map[string]any{"state": s.String(), "error": o.lastErr})
}

func (o *Orchestrator) failLocked(reason string) {
	o.lastErr = reason
	o.setStateLocked(Errored)
}
