package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cascadehq/docagent/internal/model/transcript"
)

const (
	// DefaultRequestTimeout bounds every gateway exchange.
	DefaultRequestTimeout = 60 * time.Second

	// maxResponseSize caps how much of a reply body is read.
	maxResponseSize = 10 << 20
)

// Config controls how the gateway client reaches the remote agent.
type Config struct {
	BaseURL              string
	RequestTimeout       time.Duration
	AllowAnonymousIngest bool
}

// Client is a stateless façade over the remote agent's HTTP API. It
// performs no retries and no caching; every method is one exchange.
type Client struct {
	baseURL         string
	anonymousIngest bool
	httpClient      *http.Client
	logger          *zap.Logger
}

// NewClient builds a gateway client with a pooled transport.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		anonymousIngest: cfg.AllowAnonymousIngest,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: cfg.RequestTimeout,
		},
		logger: logger,
	}
}

// Ingestion describes successfully indexed content.
type Ingestion struct {
	ContentID string
	Label     string
	Message   string
}

// Answer is the agent's reply to one chat query.
type Answer struct {
	Text    string
	Sources []transcript.Source
}

// Transcription is the server-side speech-to-text result.
type Transcription struct {
	Transcript string `json:"transcript"`
	Language   string `json:"language"`
}

// QueryRequest carries one chat query and its context.
type QueryRequest struct {
	Query     string
	History   []transcript.Message
	ContentID string
	Language  string
}

type ingestResponse struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	URL        string `json:"url"`
	Message    string `json:"message"`
}

func (r ingestResponse) label() string {
	if r.Filename != "" {
		return r.Filename
	}
	return r.URL
}

type historyEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type queryPayload struct {
	Query       string         `json:"query"`
	ChatHistory []historyEntry `json:"chat_history"`
	DocumentIDs []string       `json:"document_ids"`
	Language    string         `json:"language"`
}

type answerResponse struct {
	Answer  string              `json:"answer"`
	Sources []transcript.Source `json:"sources"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// IngestDocument uploads a file for indexing. The token may be empty
// only when anonymous ingestion is enabled.
func (c *Client) IngestDocument(ctx context.Context, filename string, file io.Reader, token string) (Ingestion, error) {
	if err := c.requireIngestToken(token); err != nil {
		return Ingestion{}, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return Ingestion{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return Ingestion{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if err := writer.Close(); err != nil {
		return Ingestion{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var resp ingestResponse
	if err := c.do(ctx, http.MethodPost, "/upload/", body, writer.FormDataContentType(), token, "document upload failed", &resp); err != nil {
		return Ingestion{}, err
	}
	return Ingestion{ContentID: resp.DocumentID, Label: resp.label(), Message: resp.Message}, nil
}

// IngestURL submits a URL for indexing. Syntactic validation of the URL
// is the orchestrator's job; the gateway only relays it.
func (c *Client) IngestURL(ctx context.Context, url, token string) (Ingestion, error) {
	if err := c.requireIngestToken(token); err != nil {
		return Ingestion{}, err
	}

	payload, err := json.Marshal(map[string]string{"url": url})
	if err != nil {
		return Ingestion{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var resp ingestResponse
	if err := c.do(ctx, http.MethodPost, "/url/", bytes.NewReader(payload), "application/json", token, "url ingestion failed", &resp); err != nil {
		return Ingestion{}, err
	}
	label := resp.label()
	if label == "" {
		label = url
	}
	return Ingestion{ContentID: resp.DocumentID, Label: label, Message: resp.Message}, nil
}

// SendQuery asks one question scoped to the bound content.
func (c *Client) SendQuery(ctx context.Context, req QueryRequest, token string) (Answer, error) {
	if token == "" {
		return Answer{}, fmt.Errorf("%w: missing bearer token", ErrAuth)
	}

	history := make([]historyEntry, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, historyEntry{Role: string(m.Role), Content: m.Content})
	}

	payload, err := json.Marshal(queryPayload{
		Query:       req.Query,
		ChatHistory: history,
		DocumentIDs: []string{req.ContentID},
		Language:    req.Language,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var resp answerResponse
	if err := c.do(ctx, http.MethodPost, "/chat/", bytes.NewReader(payload), "application/json", token, "failed to get a response from the agent", &resp); err != nil {
		return Answer{}, err
	}
	return Answer{Text: resp.Answer, Sources: resp.Sources}, nil
}

// Transcribe uploads a recorded audio blob for server-side speech
// recognition. The endpoint is unauthenticated, matching the platform.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (Transcription, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		return Transcription{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if _, err := part.Write(audio); err != nil {
		return Transcription{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if err := writer.Close(); err != nil {
		return Transcription{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var resp Transcription
	if err := c.do(ctx, http.MethodPost, "/upload-audio/", body, writer.FormDataContentType(), "", "audio transcription failed", &resp); err != nil {
		return Transcription{}, err
	}
	return resp, nil
}

func (c *Client) requireIngestToken(token string) error {
	if token == "" && !c.anonymousIngest {
		return fmt.Errorf("%w: missing bearer token", ErrAuth)
	}
	return nil
}

// do performs one exchange and decodes the JSON reply into out. Error
// replies are mapped onto the taxonomy with the server detail attached.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType, token, fallback string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("agent request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var detail errorResponse
		_ = json.Unmarshal(data, &detail)
		c.logger.Debug("agent request rejected",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return statusError(resp.StatusCode, detail.Detail, fallback)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: malformed agent response: %v", ErrTransport, err)
	}
	return nil
}
