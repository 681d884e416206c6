package orchestrator_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/cascadehq/docagent/internal/model/transcript"
	"github.com/cascadehq/docagent/internal/service/agent"
	"github.com/cascadehq/docagent/internal/service/orchestrator"
	"github.com/cascadehq/docagent/internal/service/transcript"
	"github.com/cascadehq/docagent/internal/service/voice"
)

type staticTokens struct{ token string }

func (s staticTokens) Token() string { return s.token }

type fakeGateway struct {
	mu sync.Mutex

	ingestURLCalls int
	ingestDocCalls int
	queryCalls     int

	lastQuery agent.QueryRequest

	ingestion agent.Ingestion
	ingestErr error
	answer    agent.Answer
	queryErr  error

	queryStarted chan struct{}
	queryRelease chan struct{}
}

func (g *fakeGateway) IngestDocument(_ context.Context, _ string, _ io.Reader, _ string) (agent.Ingestion, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ingestDocCalls++
	return g.ingestion, g.ingestErr
}

func (g *fakeGateway) IngestURL(_ context.Context, _ string, _ string) (agent.Ingestion, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ingestURLCalls++
	return g.ingestion, g.ingestErr
}

func (g *fakeGateway) SendQuery(_ context.Context, req agent.QueryRequest, _ string) (agent.Answer, error) {
	g.mu.Lock()
	g.queryCalls++
	g.lastQuery = req
	g.mu.Unlock()

	if g.queryStarted != nil {
		close(g.queryStarted)
		<-g.queryRelease
	}
	return g.answer, g.queryErr
}

func newOrchestrator(gateway *fakeGateway, voicePipeline orchestrator.VoicePipeline) (*orchestrator.Orchestrator, *transcript.Store) {
	store := transcript.NewStore()
	o := orchestrator.New(store, gateway, staticTokens{token: "tok"}, voicePipeline, nil)
	return o, store
}

func TestChatWithoutBindingNeverCallsGateway(t *testing.T) {
	gateway := &fakeGateway{}
	o, store := newOrchestrator(gateway, nil)

	require.NoError(t, o.HandleSubmission(context.Background(), "What is the summary?", "auto"))

	assert.Zero(t, gateway.queryCalls)
	messages := store.Messages()
	require.Len(t, messages, 1)
	assert.True(t, messages[0].IsError())
	assert.Contains(t, messages[0].Content, "ingest a document")
	assert.False(t, o.Sending())
}

func TestURLAlwaysRoutesToIngestion(t *testing.T) {
	gateway := &fakeGateway{ingestion: agent.Ingestion{ContentID: "doc-9", Label: "example.com/article"}}
	o, store := newOrchestrator(gateway, nil)
	store.Bind("doc-1", "old.pdf")

	require.NoError(t, o.HandleSubmission(context.Background(), "  https://example.com/article  ", "auto"))

	assert.Equal(t, 1, gateway.ingestURLCalls)
	assert.Zero(t, gateway.queryCalls, "URL-shaped input must never reach chat")

	binding := store.Binding()
	require.NotNil(t, binding)
	assert.Equal(t, "doc-9", binding.ContentID)

	messages := store.Messages()
	require.Len(t, messages, 2)
	assert.Contains(t, messages[0].Content, "Ingesting https://example.com/article")
	assert.Contains(t, messages[1].Content, "example.com/article")
}

func TestIngestionFailureLeavesBindingUnchanged(t *testing.T) {
	gateway := &fakeGateway{ingestErr: errors.New("invalid input: url rejected")}
	o, store := newOrchestrator(gateway, nil)
	store.Bind("doc-1", "old.pdf")

	require.NoError(t, o.HandleSubmission(context.Background(), "https://bad.example", "auto"))

	binding := store.Binding()
	require.NotNil(t, binding)
	assert.Equal(t, "doc-1", binding.ContentID, "failed ingestion must not touch the binding")

	messages := store.Messages()
	require.Len(t, messages, 2)
	assert.True(t, messages[1].IsError())
	assert.Contains(t, messages[1].Content, "url rejected")
	assert.False(t, o.Sending())
}

func TestChatSuccessAppendsAssistantWithSources(t *testing.T) {
	page := 3
	score := 0.91
	gateway := &fakeGateway{answer: agent.Answer{
		Text:    "It is X.",
		Sources: []model.Source{{Label: "doc.pdf", Page: &page, Score: &score}},
	}}
	o, store := newOrchestrator(gateway, nil)
	store.Bind("doc-1", "doc.pdf")

	require.NoError(t, o.HandleSubmission(context.Background(), "What is it?", "auto"))

	messages := store.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, model.RoleUser, messages[0].Role)

	answer := messages[1]
	assert.Equal(t, model.RoleAssistant, answer.Role)
	assert.Equal(t, "It is X.", answer.Content)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "doc.pdf", answer.Sources[0].Label)
	assert.Equal(t, 3, *answer.Sources[0].Page)
	assert.InDelta(t, 0.91, *answer.Sources[0].Score, 1e-9)
}

func TestChatHistoryExcludesCurrentMessage(t *testing.T) {
	gateway := &fakeGateway{answer: agent.Answer{Text: "a2"}}
	o, store := newOrchestrator(gateway, nil)
	store.Bind("doc-1", "doc.pdf")

	require.NoError(t, o.HandleSubmission(context.Background(), "q1", "auto"))
	require.NoError(t, o.HandleSubmission(context.Background(), "q2", "auto"))

	history := gateway.lastQuery.History
	require.Len(t, history, 2)
	assert.Equal(t, "q1", history[0].Content)
	assert.Equal(t, "a2", history[1].Content)
	for _, m := range history {
		assert.NotEqual(t, "q2", m.Content, "history must not include the message being answered")
	}
}

func TestChatFailureAppendsErrorAndRestoresIdle(t *testing.T) {
	gateway := &fakeGateway{queryErr: errors.New("content not found: unknown document id")}
	o, store := newOrchestrator(gateway, nil)
	store.Bind("doc-1", "doc.pdf")

	require.NoError(t, o.HandleSubmission(context.Background(), "hello", "auto"))

	messages := store.Messages()
	require.Len(t, messages, 2)
	assert.True(t, messages[1].IsError())
	assert.Contains(t, messages[1].Content, "unknown document id")
	assert.False(t, o.Sending())
}

func TestReentrantSubmissionRejected(t *testing.T) {
	gateway := &fakeGateway{
		queryStarted: make(chan struct{}),
		queryRelease: make(chan struct{}),
	}
	o, store := newOrchestrator(gateway, nil)
	store.Bind("doc-1", "doc.pdf")

	done := make(chan error, 1)
	go func() {
		done <- o.HandleSubmission(context.Background(), "slow question", "auto")
	}()
	<-gateway.queryStarted

	err := o.HandleSubmission(context.Background(), "impatient question", "auto")
	require.ErrorIs(t, err, orchestrator.ErrBusy)
	assert.True(t, o.Sending())

	close(gateway.queryRelease)
	require.NoError(t, <-done)
	assert.False(t, o.Sending())

	for _, m := range o.Store().Messages() {
		assert.NotEqual(t, "impatient question", m.Content, "rejected submission must append nothing")
	}
}

func TestEmptySubmissionAppendsSingleError(t *testing.T) {
	gateway := &fakeGateway{}
	o, store := newOrchestrator(gateway, nil)

	require.NoError(t, o.HandleSubmission(context.Background(), "   ", "auto"))

	messages := store.Messages()
	require.Len(t, messages, 1)
	assert.True(t, messages[0].IsError())
	assert.Zero(t, gateway.queryCalls)
	assert.Zero(t, gateway.ingestURLCalls)
}

type scriptedVoice struct {
	result voice.Result
	err    error
}

func (v scriptedVoice) Capture(context.Context) (voice.Result, error) {
	return v.result, v.err
}

func TestVoiceResubmitsWithDetectedLanguage(t *testing.T) {
	gateway := &fakeGateway{answer: agent.Answer{Text: "bonjour"}}
	pipeline := scriptedVoice{result: voice.Result{Transcript: "quel est le sujet", Language: "fr"}}
	o, store := newOrchestrator(gateway, pipeline)
	store.Bind("doc-1", "doc.pdf")

	require.NoError(t, o.HandleVoice(context.Background()))

	assert.Equal(t, 1, gateway.queryCalls)
	assert.Equal(t, "quel est le sujet", gateway.lastQuery.Query)
	assert.Equal(t, "fr", gateway.lastQuery.Language)
}

func TestVoiceFailureAppendsSingleError(t *testing.T) {
	gateway := &fakeGateway{}
	pipeline := scriptedVoice{err: voice.ErrNoSpeech}
	o, store := newOrchestrator(gateway, pipeline)
	store.Bind("doc-1", "doc.pdf")

	require.NoError(t, o.HandleVoice(context.Background()))

	messages := store.Messages()
	require.Len(t, messages, 1)
	assert.True(t, messages[0].IsError())
	assert.Equal(t, "Failed to transcribe audio.", messages[0].Content)
	assert.Zero(t, gateway.queryCalls)
}

func TestIngestionWithoutLabelOrMessageStillAcknowledged(t *testing.T) {
	gateway := &fakeGateway{ingestion: agent.Ingestion{ContentID: "doc-3"}}
	o, store := newOrchestrator(gateway, nil)

	require.NoError(t, o.HandleSubmission(context.Background(), "https://example.com/bare", "auto"))

	binding := store.Binding()
	require.NotNil(t, binding)
	assert.Equal(t, "doc-3", binding.ContentID)

	messages := store.Messages()
	require.Len(t, messages, 2)
	assert.False(t, messages[1].IsError())
	assert.NotEmpty(t, messages[1].Content, "successful ingestion must be acknowledged")
	assert.Contains(t, messages[1].Content, "ask questions")
}

func TestHandleDocumentBindsContent(t *testing.T) {
	gateway := &fakeGateway{ingestion: agent.Ingestion{ContentID: "doc-7", Label: "report.pdf"}}
	o, store := newOrchestrator(gateway, nil)

	require.NoError(t, o.HandleDocument(context.Background(), "report.pdf", nil))

	assert.Equal(t, 1, gateway.ingestDocCalls)
	binding := store.Binding()
	require.NotNil(t, binding)
	assert.Equal(t, "doc-7", binding.ContentID)

	messages := store.Messages()
	require.Len(t, messages, 2)
	assert.Contains(t, messages[1].Content, "report.pdf")
}
