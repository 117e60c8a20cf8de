package device

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
)

type fakeCapture struct {
	mu        sync.Mutex
	recording bool
	stops     int
	stopErr   error
}

func (f *fakeCapture) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recording {
		return errors.New("double start")
	}
	f.recording = true
	return nil
}

func (f *fakeCapture) Stop() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.recording {
		return "", errors.New("not capturing")
	}
	f.recording = false
	f.stops++
	if f.stopErr != nil {
		return "", f.stopErr
	}
	return "/data/recordings/rec_test.wav", nil
}

func (f *fakeCapture) DiskUsage() (uint64, uint64, error) { return 100, 900, nil }

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(context.Context, string) (string, error) {
	return f.text, f.err
}

func newTestOrchestrator(t *testing.T, tr *fakeTranscriber, sink TranscriptFunc) (*Orchestrator, *fakeCapture) {
	t.Helper()
	capt := &fakeCapture{}
	o := New(Config{
		Capture:      capt,
		Transcriber:  tr,
		Logger:       slog.New(slog.DiscardHandler),
		OnTranscript: sink,
	})
	return o, capt
}

func TestStateJSONRoundTrip(t *testing.T) {
	for _, s := range []State{Idle, Recording, Transcribing, Errored} {
		b, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal %v: %v", s, err)
		}
		var got State
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if got != s {
			t.Errorf("round trip %v -> %v", s, got)
		}
	}
	var bad State
	if err := json.Unmarshal([]byte(`"warp"`), &bad); err == nil {
		t.Error("unknown state accepted")
	}
}

func TestRecordTranscribeCycle(t *testing.T) {
	var gotArtifact, gotText string
	sink := func(_ context.Context, artifact, text string) error {
		gotArtifact, gotText = artifact, text
		return nil
	}
	o, _ := newTestOrchestrator(t, &fakeTranscriber{text: "remember the milk"}, sink)

	ctx := context.Background()
	if err := o.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if o.State() != Recording {
		t.Fatalf("state = %v, want Recording", o.State())
	}
	st := o.Status()
	if st.DiskUsed != 100 || st.DiskFree != 900 {
		t.Fatalf("disk usage not surfaced: %+v", st)
	}
	if st.Uptime < 0 {
		t.Fatalf("uptime = %v", st.Uptime)
	}
	// 900 free bytes at 32000 B/s of 16 kHz mono PCM.
	if want := 900.0 / 32000.0; st.Remaining != want {
		t.Fatalf("remaining = %v, want %v", st.Remaining, want)
	}

	if err := o.StopRecording(ctx); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	o.Wait()

	if o.State() != Idle {
		t.Fatalf("state after transcription = %v, want Idle", o.State())
	}
	if gotText != "remember the milk" || gotArtifact == "" {
		t.Fatalf("sink got (%q, %q)", gotArtifact, gotText)
	}
}

func TestConcurrentStartExactlyOneWins(t *testing.T) {
	o, capt := newTestOrchestrator(t, &fakeTranscriber{}, nil)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- o.StartRecording(ctx)
		}()
	}
	wg.Wait()
	close(errs)

	ok, already := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyRecording):
			already++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || already != n-1 {
		t.Fatalf("ok = %d, already = %d", ok, already)
	}
	if capt.stops != 0 {
		t.Fatalf("capture stopped %d times", capt.stops)
	}
}

func TestStopWhenIdle(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeTranscriber{}, nil)
	if err := o.StopRecording(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("err = %v, want ErrNotRecording", err)
	}
}

func TestTranscriptionFailureReturnsToIdle(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeTranscriber{err: errors.New("api down")}, nil)
	ctx := context.Background()

	o.StartRecording(ctx)
	o.StopRecording(ctx)
	o.Wait()

	// Engine failure is recoverable: back to Idle, failure in status.
	if o.State() != Idle {
		t.Fatalf("state = %v, want Idle", o.State())
	}
	if st := o.Status(); st.LastError == "" {
		t.Fatal("LastError empty after failure")
	}
	if err := o.StartRecording(ctx); err != nil {
		t.Fatalf("start after engine failure: %v", err)
	}
}

func TestCaptureFaultNeedsReset(t *testing.T) {
	o, capt := newTestOrchestrator(t, &fakeTranscriber{}, nil)
	ctx := context.Background()

	o.StartRecording(ctx)
	capt.stopErr = errors.New("device wedged")
	if err := o.StopRecording(ctx); err == nil {
		t.Fatal("capture fault not surfaced")
	}

	if o.State() != Errored {
		t.Fatalf("state = %v, want Errored", o.State())
	}
	if err := o.StartRecording(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("start in error state: %v, want ErrBusy", err)
	}

	if err := o.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if o.State() != Idle {
		t.Fatalf("state after reset = %v", o.State())
	}
	capt.stopErr = nil
	if err := o.StartRecording(ctx); err != nil {
		t.Fatalf("start after reset: %v", err)
	}
}

func TestResetDiscardsRecording(t *testing.T) {
	o, capt := newTestOrchestrator(t, &fakeTranscriber{}, nil)
	ctx := context.Background()

	o.StartRecording(ctx)
	if err := o.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if o.State() != Idle {
		t.Fatalf("state = %v", o.State())
	}
	if capt.stops != 1 {
		t.Fatalf("capture stops = %d, want 1", capt.stops)
	}
	// No transcription was scheduled for the discarded segment.
	o.Wait()
	if o.State() != Idle {
		t.Fatalf("state after wait = %v", o.State())
	}
}
