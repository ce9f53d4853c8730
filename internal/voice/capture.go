package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNoActiveCapture is returned by Stop when nothing is recording.
var ErrNoActiveCapture = errors.New("no active capture")

// ErrCaptureInProgress is returned by Start when a capture is already running.
var ErrCaptureInProgress = errors.New("capture already in progress")

// CaptureFilename is the name the encoded clip is uploaded under.
const CaptureFilename = "recording.ogg"

// CaptureConfig describes the microphone input and encoding.
type CaptureConfig struct {
	Command     string // recorder binary, default "ffmpeg"
	InputFormat string // e.g. "pulse", "avfoundation"
	InputDevice string
	SampleRate  int
	Channels    int
}

// Recorder captures microphone audio by running the recorder command and
// buffering its encoded stdout in memory. Clips are short utterances, so
// buffering whole clips is fine.
type Recorder struct {
	cfg    CaptureConfig
	logger *zap.Logger

	mu      sync.Mutex
	session *captureSession
}

func NewRecorder(cfg CaptureConfig, logger *zap.Logger) *Recorder {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{cfg: cfg, logger: logger}
}

// Recording reports whether a capture is in flight.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

// Start launches the recorder process. A failure to open the input device
// (no microphone, no permission) surfaces as an error here rather than at
// Stop, so the caller can announce it immediately.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		return ErrCaptureInProgress
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", r.cfg.InputFormat,
		"-i", r.cfg.InputDevice,
		"-ac", strconv.Itoa(r.cfg.Channels),
		"-ar", strconv.Itoa(r.cfg.SampleRate),
		"-c:a", "libopus",
		"-f", "ogg",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, r.cfg.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create recorder stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start recorder: %w", err)
	}

	session := &captureSession{
		process: cmd.Process,
		stderr:  &stderr,
		waitErr: make(chan error, 1),
		done:    make(chan struct{}),
	}
	go func() {
		session.waitErr <- cmd.Wait()
		close(session.waitErr)
	}()
	go func() {
		_, session.readErr = io.Copy(&session.buf, stdout)
		close(session.done)
	}()

	// Give the process a moment to fail on a bad input device before
	// reporting the capture as live.
	select {
	case err := <-session.waitErr:
		<-session.done
		if err != nil {
			return fmt.Errorf("recorder exited before capture started: %w: %s", err, trimmed(stderr.String()))
		}
		return fmt.Errorf("recorder exited before capture started: %s", trimmed(stderr.String()))
	case <-time.After(250 * time.Millisecond):
	}

	r.logger.Debug("capture started",
		zap.String("input_format", r.cfg.InputFormat),
		zap.String("input_device", r.cfg.InputDevice))
	r.session = session
	return nil
}

// Stop ends the capture and returns the encoded clip. The recorder gets an
// interrupt first so it can finish the container; it is killed if it does
// not exit promptly.
func (r *Recorder) Stop() ([]byte, error) {
	r.mu.Lock()
	session := r.session
	r.session = nil
	r.mu.Unlock()

	if session == nil {
		return nil, ErrNoActiveCapture
	}
	return session.finish()
}

// Abort stops any in-flight capture and discards the audio.
func (r *Recorder) Abort() {
	if _, err := r.Stop(); err != nil && !errors.Is(err, ErrNoActiveCapture) {
		r.logger.Debug("capture abort", zap.Error(err))
	}
}

type captureSession struct {
	process *os.Process
	stderr  *bytes.Buffer
	waitErr chan error
	done    chan struct{}

	buf     bytes.Buffer
	readErr error
}

func (s *captureSession) finish() ([]byte, error) {
	if s.process != nil {
		_ = s.process.Signal(os.Interrupt)
	}

	var exitErr error
	select {
	case err, ok := <-s.waitErr:
		if ok {
			exitErr = err
		}
	case <-time.After(1200 * time.Millisecond):
		if s.process != nil {
			_ = s.process.Kill()
		}
		if err, ok := <-s.waitErr; ok {
			exitErr = err
		}
	}
	<-s.done

	// ffmpeg exits non-zero when interrupted; that is the normal stop path.
	var ee *exec.ExitError
	if exitErr != nil && !errors.As(exitErr, &ee) {
		return nil, fmt.Errorf("recorder stop error: %w: %s", exitErr, trimmed(s.stderr.String()))
	}
	if s.readErr != nil && !errors.Is(s.readErr, io.ErrClosedPipe) && !errors.Is(s.readErr, os.ErrClosed) {
		return nil, fmt.Errorf("recorder read error: %w", s.readErr)
	}
	if s.buf.Len() == 0 {
		return nil, fmt.Errorf("recorder produced no audio: %s", trimmed(s.stderr.String()))
	}
	return s.buf.Bytes(), nil
}

func trimmed(s string) string {
	return string(bytes.TrimSpace([]byte(s)))
}
