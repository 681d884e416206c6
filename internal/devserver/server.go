package devserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/cascadehq/docagent/pkg/utils"
)

// Config controls the dev server's behavior.
type Config struct {
	// AllowAnonymousIngest lets ingestion endpoints skip the bearer check.
	AllowAnonymousIngest bool
	// Transcript is returned by the transcription endpoint when the
	// uploaded form carries no transcript override.
	Transcript string
	// Language tag reported alongside transcriptions.
	Language string
}

// Server is a local stand-in for the remote agent API, used for
// development and end-to-end testing of the client.
type Server struct {
	registry *Registry
	answerer Answerer
	logger   *zap.Logger
	cfg      Config
}

// New wires a dev server. A nil answerer falls back to the static one.
func New(answerer Answerer, cfg Config, logger *zap.Logger) *Server {
	if answerer == nil {
		answerer = StaticAnswerer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Transcript == "" {
		cfg.Transcript = "What is this document about?"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	return &Server{
		registry: NewRegistry(),
		answerer: answerer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Router assembles the HTTP surface the client consumes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/upload/", s.requireToken(s.handleUpload, s.cfg.AllowAnonymousIngest))
		api.Post("/url/", s.requireToken(s.handleURL, s.cfg.AllowAnonymousIngest))
		api.Post("/chat/", s.requireToken(s.handleChat, false))
		api.Post("/upload-audio/", s.handleUploadAudio)
		api.Get("/recognize", s.handleRecognize)
	})

	return r
}

// requireToken enforces the bearer header unless the route is exempt.
func (s *Server) requireToken(next http.HandlerFunc, exempt bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if exempt {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") || strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")) == "" {
			utils.RespondError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if !SupportedFile(header.Filename) {
		utils.RespondError(w, http.StatusUnprocessableEntity, "unsupported file type")
		return
	}

	doc := s.registry.Add(header.Filename)
	s.logger.Info("document ingested",
		zap.String("documentId", doc.ID),
		zap.String("filename", doc.Label),
	)

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"document_id": doc.ID,
		"filename":    doc.Label,
		"message":     "document indexed",
	})
}

func (s *Server) handleURL(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	url := strings.TrimSpace(payload.URL)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		utils.RespondError(w, http.StatusUnprocessableEntity, "url must start with http:// or https://")
		return
	}

	doc := s.registry.Add(url)
	s.logger.Info("url ingested", zap.String("documentId", doc.ID), zap.String("url", url))

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"document_id": doc.ID,
		"url":         url,
		"message":     "url indexed",
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Query       string `json:"query"`
		ChatHistory []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"chat_history"`
		DocumentIDs []string `json:"document_ids"`
		Language    string   `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Query) == "" {
		utils.RespondError(w, http.StatusUnprocessableEntity, "query must not be empty")
		return
	}
	if len(payload.DocumentIDs) == 0 {
		utils.RespondError(w, http.StatusUnprocessableEntity, "document_ids must not be empty")
		return
	}

	doc, ok := s.registry.Get(payload.DocumentIDs[0])
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "unknown document id")
		return
	}

	history := make([]Exchange, 0, len(payload.ChatHistory))
	for _, turn := range payload.ChatHistory {
		history = append(history, Exchange{Role: turn.Role, Content: turn.Content})
	}

	answer, err := s.answerer.Answer(r.Context(), payload.Query, history, doc.Label)
	if err != nil {
		s.logger.Error("answer generation failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "answer generation failed")
		return
	}

	page := 1
	score := 0.87
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"answer": answer,
		"sources": []map[string]any{
			{"label": doc.Label, "page": page, "score": score},
		},
	})
}

func (s *Server) handleUploadAudio(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio field is required")
		return
	}
	defer file.Close()

	// Override lets tests and demos steer the "recognized" text.
	transcript := r.FormValue("transcript")
	if transcript == "" {
		transcript = s.cfg.Transcript
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"transcript": transcript,
		"language":   s.cfg.Language,
	})
}
