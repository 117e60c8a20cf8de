package hw

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// ExecCapture records audio by running an external recorder process
// (arecord on the device image) that writes a WAV file until signalled.
type ExecCapture struct {
	dir  string
	bin  string
	args []string

	mu   sync.Mutex
	cmd  *exec.Cmd
	path string
}

// ExecCaptureConfig configures an ExecCapture.
type ExecCaptureConfig struct {
	// Dir is where recordings land. Required.
	Dir string

	// Bin is the recorder binary. Default "arecord".
	Bin string

	// Args precede the output path. Default 16 kHz mono 16-bit WAV.
	Args []string
}

// NewExecCapture creates the recorder, ensuring the output directory.
func NewExecCapture(cfg ExecCaptureConfig) (*ExecCapture, error) {
	if cfg.Dir == "" {
		return nil, errors.New("hw: ExecCaptureConfig.Dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("hw: recordings dir: %w", err)
	}
	bin := cfg.Bin
	if bin == "" {
		bin = "arecord"
	}
	args := cfg.Args
	if args == nil {
		args = []string{"-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "wav"}
	}
	return &ExecCapture{dir: cfg.Dir, bin: bin, args: args}, nil
}

// Start launches the recorder process.
func (e *ExecCapture) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmd != nil {
		return ErrCaptureBusy
	}

	path := filepath.Join(e.dir, fmt.Sprintf("rec_%s.wav", time.Now().UTC().Format("20060102_150405")))
	args := append(append([]string{}, e.args...), path)
	cmd := exec.CommandContext(ctx, e.bin, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("hw: start recorder: %w", err)
	}
	e.cmd = cmd
	e.path = path
	return nil
}

// Stop signals the recorder to finish the WAV and returns the path.
func (e *ExecCapture) Stop() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmd == nil {
		return "", errors.New("hw: recorder not running")
	}
	cmd, path := e.cmd, e.path
	e.cmd, e.path = nil, ""

	// SIGINT lets arecord finalize the WAV header.
	if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
		cmd.Process.Kill()
	}
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", fmt.Errorf("hw: recorder exit: %w", err)
		}
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("hw: recorder produced no artifact: %w", err)
	}
	return path, nil
}

// DiskUsage reports the recording volume's used and free bytes.
func (e *ExecCapture) DiskUsage() (used, free uint64, err error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(e.dir, &st); err != nil {
		return 0, 0, fmt.Errorf("hw: statfs %s: %w", e.dir, err)
	}
	total := st.Blocks * uint64(st.Bsize)
	free = st.Bavail * uint64(st.Bsize)
	return total - free, free, nil
}

var _ Capture = (*ExecCapture)(nil)
