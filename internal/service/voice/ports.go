package voice

import (
	"context"
	"io"

	"github.com/cascadehq/docagent/internal/service/agent"
)

// Stream is a live microphone capture. Release frees the underlying
// tracks and must be safe to call more than once.
type Stream interface {
	io.Reader
	Release() error
}

// CaptureDevice opens microphone streams.
type CaptureDevice interface {
	Acquire(ctx context.Context) (Stream, error)
}

// EventKind identifies recognizer lifecycle events.
type EventKind int

const (
	EventStarted EventKind = iota
	EventResult
	EventError
	EventEnd
)

// Event is one recognizer lifecycle or result notification.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

// Recognizer performs live, incremental speech-to-text on fed audio.
// The Events channel is closed once the recognizer has ended.
type Recognizer interface {
	Start(ctx context.Context) error
	Feed(chunk []byte) error
	Stop()
	Events() <-chan Event
}

// RecognizerFactory builds a recognizer per capture attempt. A nil
// factory means the platform has no live-recognition capability.
type RecognizerFactory func(ctx context.Context) (Recognizer, error)

// Recorder accumulates raw audio for later upload. Writes before Begin
// are dropped; Stop waits for the final flush and assembles the blob.
type Recorder interface {
	Begin()
	Write(chunk []byte)
	Stop() ([]byte, error)
}

// Transcriber is the server-side transcription collaborator, satisfied
// by *agent.Client.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (agent.Transcription, error)
}
