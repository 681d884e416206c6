package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cascadehq/docagent/internal/service/agent"
)

// State models one capture attempt's lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting-permission"
	StateCapturing  State = "capturing"
	StateResolved   State = "resolved"
)

var (
	ErrNoSpeech = errors.New("no speech recognized")
	ErrNoAudio  = errors.New("no audio captured")
)

const (
	// DefaultCaptureWindow caps one capture attempt; its expiry forces
	// the recognizer to stop even if it never fires its own end event.
	DefaultCaptureWindow = 10 * time.Second

	defaultChunkSize = 4096

	// stopGrace bounds the wait for the recognizer's end event after a
	// forced stop.
	stopGrace = 2 * time.Second
)

// Config controls capture behavior.
type Config struct {
	CaptureWindow time.Duration
	ChunkSize     int
}

// Result is the reconciled outcome of one capture attempt. The server
// transcription is authoritative; live recognition output only guides
// the session's lifecycle.
type Result struct {
	Transcript string
	Language   string
}

// Pipeline turns a microphone gesture into text. It races a recorder
// and a live recognizer against a wall-clock window and reconciles them
// at a single finalization point.
type Pipeline struct {
	device        CaptureDevice
	newRecognizer RecognizerFactory
	newRecorder   func() Recorder
	transcriber   Transcriber
	logger        *zap.Logger
	cfg           Config

	stateMu sync.Mutex
	state   State
}

// NewPipeline wires a capture pipeline. A nil recognizer factory marks
// the platform as lacking live recognition; a nil recorder factory
// selects the in-memory BufferRecorder.
func NewPipeline(device CaptureDevice, factory RecognizerFactory, recorders func() Recorder, transcriber Transcriber, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.CaptureWindow <= 0 {
		cfg.CaptureWindow = DefaultCaptureWindow
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = defaultChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorders == nil {
		recorders = func() Recorder { return NewBufferRecorder() }
	}
	return &Pipeline{
		device:        device,
		newRecognizer: factory,
		newRecorder:   recorders,
		transcriber:   transcriber,
		logger:        logger,
		cfg:           cfg,
		state:         StateIdle,
	}
}

// State returns the current capture state.
func (p *Pipeline) State() State {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.stateMu.Lock()
	p.state = s
	p.stateMu.Unlock()
}

// Capture runs one attempt end to end. Every exit path releases the
// stream tracks exactly once, stops the recorder, and tears down the
// recognizer; the transcription upload happens at most once.
func (p *Pipeline) Capture(ctx context.Context) (Result, error) {
	if p.newRecognizer == nil {
		return Result{}, fmt.Errorf("%w: no recognizer configured", agent.ErrUnsupported)
	}

	p.setState(StateRequesting)
	defer p.setState(StateIdle)

	stream, err := p.device.Acquire(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("microphone unavailable: %w", err)
	}
	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() {
			if err := stream.Release(); err != nil {
				p.logger.Warn("stream release failed", zap.Error(err))
			}
		})
	}
	defer release()

	recognizer, err := p.newRecognizer(ctx)
	if err != nil {
		return Result{}, err
	}

	if err := recognizer.Start(ctx); err != nil {
		return Result{}, fmt.Errorf("recognizer start failed: %w", err)
	}

	recorder := p.newRecorder()

	// The pump must not run before the recognizer session is live;
	// a real microphone produces audio from the moment the tracks
	// open, well before any handshake completes.
	pumpCtx, cancelPump := context.WithCancel(ctx)
	defer cancelPump()
	pumpDone := make(chan struct{})
	go pumpAudio(pumpCtx, stream, recorder, recognizer, p.cfg.ChunkSize, pumpDone)

	p.setState(StateCapturing)

	// teardown discards the attempt without an upload.
	teardown := func() {
		recognizer.Stop()
		cancelPump()
		release()
		<-pumpDone
		_, _ = recorder.Stop()
	}

	timer := time.NewTimer(p.cfg.CaptureWindow)
	defer timer.Stop()

	forced := false
loop:
	for {
		select {
		case ev, ok := <-recognizer.Events():
			if !ok {
				break loop
			}
			switch ev.Kind {
			case EventStarted:
				recorder.Begin()
			case EventResult:
				p.logger.Debug("live recognition", zap.String("text", ev.Text))
			case EventError:
				teardown()
				return Result{}, fmt.Errorf("live recognition failed: %w", ev.Err)
			case EventEnd:
				break loop
			}
		case <-timer.C:
			if forced {
				// The recognizer ignored the forced stop; finalize with
				// whatever audio was captured.
				break loop
			}
			forced = true
			recognizer.Stop()
			timer.Reset(stopGrace)
		case <-ctx.Done():
			teardown()
			return Result{}, ctx.Err()
		}
	}

	return p.finalize(ctx, recognizer, recorder, cancelPump, release, pumpDone)
}

// finalize runs exactly once per attempt: it flushes the recorder and
// uploads the blob for authoritative server-side transcription.
func (p *Pipeline) finalize(ctx context.Context, recognizer Recognizer, recorder Recorder, cancelPump func(), release func(), pumpDone <-chan struct{}) (Result, error) {
	p.setState(StateResolved)

	recognizer.Stop()
	cancelPump()
	release()
	<-pumpDone

	blob, err := recorder.Stop()
	if err != nil {
		return Result{}, fmt.Errorf("recorder flush failed: %w", err)
	}
	if len(blob) == 0 {
		return Result{}, ErrNoAudio
	}

	res, err := p.transcriber.Transcribe(ctx, blob, "recording.webm")
	if err != nil {
		return Result{}, err
	}
	if res.Transcript == "" {
		return Result{}, ErrNoSpeech
	}

	language := res.Language
	if language == "" {
		language = "auto"
	}
	return Result{Transcript: res.Transcript, Language: language}, nil
}

// pumpAudio feeds both observers from the shared capture stream until
// the stream ends or the attempt is cancelled.
func pumpAudio(ctx context.Context, stream Stream, recorder Recorder, recognizer Recognizer, chunkSize int, done chan struct{}) {
	defer close(done)

	buf := make([]byte, chunkSize)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := stream.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			recorder.Write(chunk)
			if feedErr := recognizer.Feed(chunk); feedErr != nil && ctx.Err() == nil {
				// The recognizer signals its own failure through its
				// event channel; feeding errors here are not fatal to
				// the recording half.
				continue
			}
		}
		if err != nil {
			// Stream end or failure stops the pump; the recognizer's
			// end or error event decides the attempt's outcome.
			return
		}
	}
}
