package audio

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

	"github.com/cascadehq/docagent/internal/service/voice"
)

// Config describes how the microphone is captured.
type Config struct {
	Command     string
	InputFormat string
	InputDevice string
	SampleRate  int
}

// FFmpegDevice captures microphone audio through an ffmpeg subprocess,
// encoded as webm/opus so the blob can be uploaded for transcription
// as-is.
type FFmpegDevice struct {
	cfg Config
}

// NewFFmpegDevice builds a capture device with sane defaults.
func NewFFmpegDevice(cfg Config) *FFmpegDevice {
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
	return &FFmpegDevice{cfg: cfg}
}

// Acquire starts the capture subprocess and hands back its audio stream.
func (d *FFmpegDevice) Acquire(ctx context.Context) (voice.Stream, error) {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", d.cfg.InputFormat,
		"-i", d.cfg.InputDevice,
		"-ac", "1",
		"-ar", strconv.Itoa(d.cfg.SampleRate),
		"-f", "webm",
		"-c:a", "libopus",
		"-",
	}

	cmd := exec.CommandContext(ctx, d.cfg.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// Catch immediate exits (bad device, missing binary permissions)
	// before reporting a live stream.
	select {
	case err := <-waitErr:
		return nil, fmt.Errorf("ffmpeg exited before capture started: %v: %s", err, bytes.TrimSpace(stderr.Bytes()))
	case <-time.After(250 * time.Millisecond):
	}

	return &ffmpegStream{
		stdout:  stdout,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

type ffmpegStream struct {
	stdout  io.ReadCloser
	process *os.Process
	waitErr <-chan error

	releaseOnce sync.Once
	releaseErr  error
}

func (s *ffmpegStream) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

// Release stops the subprocess and closes the stream. Safe to call more
// than once.
func (s *ffmpegStream) Release() error {
	s.releaseOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err := <-s.waitErr:
			s.releaseErr = ignoreExitError(err)
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			s.releaseErr = ignoreExitError(<-s.waitErr)
		}

		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.releaseErr == nil {
			s.releaseErr = err
		}
	})
	return s.releaseErr
}

// ignoreExitError drops exit statuses: an interrupted capture process
// exiting non-zero is the expected shutdown path.
func ignoreExitError(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
