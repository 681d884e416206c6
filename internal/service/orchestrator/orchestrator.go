package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	model "github.com/cascadehq/docagent/internal/model/transcript"
	"github.com/cascadehq/docagent/internal/service/agent"
	"github.com/cascadehq/docagent/internal/service/transcript"
	"github.com/cascadehq/docagent/internal/service/voice"
)

// ErrBusy rejects re-entrant submissions while a request is in flight.
var ErrBusy = errors.New("a request is already in flight")

const (
	msgUnboundContent = "Please ingest a document or link first."
	msgEmptyInput     = "Nothing to send."
)

// Gateway is the remote agent façade consumed by the orchestrator,
// satisfied by *agent.Client.
type Gateway interface {
	IngestDocument(ctx context.Context, filename string, file io.Reader, token string) (agent.Ingestion, error)
	IngestURL(ctx context.Context, url, token string) (agent.Ingestion, error)
	SendQuery(ctx context.Context, req agent.QueryRequest, token string) (agent.Answer, error)
}

// TokenSource supplies the current bearer token.
type TokenSource interface {
	Token() string
}

// VoicePipeline resolves a microphone gesture into text.
type VoicePipeline interface {
	Capture(ctx context.Context) (voice.Result, error)
}

// Orchestrator is the single entry point for user submissions. It
// classifies input, sequences gateway calls, updates the transcript and
// enforces the single-in-flight invariant. Failures become error-variant
// transcript entries; they are never re-thrown to the render layer.
type Orchestrator struct {
	store   *transcript.Store
	gateway Gateway
	tokens  TokenSource
	voice   VoicePipeline
	logger  *zap.Logger

	sending atomic.Bool
}

// New wires an orchestrator. The voice pipeline is optional.
func New(store *transcript.Store, gateway Gateway, tokens TokenSource, voicePipeline VoicePipeline, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:   store,
		gateway: gateway,
		tokens:  tokens,
		voice:   voicePipeline,
		logger:  logger,
	}
}

// Sending reports whether a request is in flight.
func (o *Orchestrator) Sending() bool {
	return o.sending.Load()
}

// Store exposes the transcript for the render layer.
func (o *Orchestrator) Store() *transcript.Store {
	return o.store
}

// Reset clears the session transcript and content binding.
func (o *Orchestrator) Reset() {
	o.store.Reset()
}

// HandleSubmission routes one raw user input. URL-shaped input goes to
// ingestion; anything else is a chat query against the bound content.
// Only a concurrent in-flight request is reported as an error; every
// other failure lands in the transcript.
func (o *Orchestrator) HandleSubmission(ctx context.Context, raw, language string) error {
	if !o.sending.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer o.sending.Store(false)

	input := strings.TrimSpace(raw)
	if input == "" {
		o.appendError(msgEmptyInput)
		return nil
	}

	if isURL(input) {
		o.ingestURL(ctx, input)
		return nil
	}
	o.chat(ctx, input, language)
	return nil
}

// HandleDocument ingests a local file through the same lifecycle.
func (o *Orchestrator) HandleDocument(ctx context.Context, filename string, file io.Reader) error {
	if !o.sending.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer o.sending.Store(false)

	o.appendSystem(fmt.Sprintf("Ingesting '%s'. This may take a moment.", filename))

	ingestion, err := o.gateway.IngestDocument(ctx, filename, file, o.tokens.Token())
	if err != nil {
		o.logger.Warn("document ingestion failed", zap.String("filename", filename), zap.Error(err))
		o.appendError(err.Error())
		return nil
	}
	o.bindIngestion(ingestion)
	return nil
}

// HandleVoice runs one capture attempt and feeds its transcript back
// through HandleSubmission with the detected language.
func (o *Orchestrator) HandleVoice(ctx context.Context) error {
	if o.voice == nil {
		o.appendError("Voice capture is not available.")
		return nil
	}

	result, err := o.voice.Capture(ctx)
	if err != nil {
		o.logger.Warn("voice capture failed", zap.Error(err))
		o.appendError(voiceFailureMessage(err))
		return nil
	}
	return o.HandleSubmission(ctx, result.Transcript, result.Language)
}

func (o *Orchestrator) ingestURL(ctx context.Context, url string) {
	o.appendSystem(fmt.Sprintf("Ingesting %s. This may take a moment.", url))

	ingestion, err := o.gateway.IngestURL(ctx, url, o.tokens.Token())
	if err != nil {
		o.logger.Warn("url ingestion failed", zap.String("url", url), zap.Error(err))
		o.appendError(err.Error())
		return
	}
	o.bindIngestion(ingestion)
}

func (o *Orchestrator) chat(ctx context.Context, input, language string) {
	binding := o.store.Binding()
	if binding == nil {
		o.appendError(msgUnboundContent)
		return
	}
	if language == "" {
		language = "auto"
	}

	// The append and the pre-append history snapshot are one atomic
	// operation, so the outgoing history never contains this message.
	history := o.store.Append(model.Message{Role: model.RoleUser, Content: input})

	answer, err := o.gateway.SendQuery(ctx, agent.QueryRequest{
		Query:     input,
		History:   history,
		ContentID: binding.ContentID,
		Language:  language,
	}, o.tokens.Token())
	if err != nil {
		o.logger.Warn("query failed", zap.Error(err))
		o.appendError(err.Error())
		return
	}

	o.store.Append(model.Message{
		Role:    model.RoleAssistant,
		Content: answer.Text,
		Sources: answer.Sources,
	})
}

func (o *Orchestrator) bindIngestion(ingestion agent.Ingestion) {
	o.store.Bind(ingestion.ContentID, ingestion.Label)

	message := ingestion.Message
	if ingestion.Label != "" {
		message = fmt.Sprintf("Successfully processed '%s'. You can now ask questions.", ingestion.Label)
	}
	if message == "" {
		message = "Content ingested. You can now ask questions."
	}
	o.appendSystem(message)
}

func (o *Orchestrator) appendSystem(content string) {
	o.store.Append(model.Message{Role: model.RoleSystem, Content: content})
}

func (o *Orchestrator) appendError(content string) {
	o.store.Append(model.Message{
		Role:    model.RoleSystem,
		Content: content,
		Variant: model.VariantError,
	})
}

func isURL(input string) bool {
	return strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")
}

func voiceFailureMessage(err error) string {
	switch {
	case errors.Is(err, agent.ErrUnsupported):
		return "Voice recognition is not supported on this platform."
	case errors.Is(err, voice.ErrNoSpeech), errors.Is(err, voice.ErrNoAudio):
		return "Failed to transcribe audio."
	default:
		return "Audio processing failed: " + err.Error()
	}
}
