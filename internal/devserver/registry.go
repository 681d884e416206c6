package devserver

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Document is one ingested piece of content.
type Document struct {
	ID    string
	Label string
}

// Registry is the in-memory content index of the dev server.
type Registry struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewRegistry bootstraps an empty registry.
func NewRegistry() *Registry {
	return &Registry{docs: make(map[string]Document)}
}

// Add registers content under a fresh id.
func (r *Registry) Add(label string) Document {
	doc := Document{ID: uuid.NewString(), Label: label}
	r.mu.Lock()
	r.docs[doc.ID] = doc
	r.mu.Unlock()
	return doc
}

// Get looks up a document by id.
func (r *Registry) Get(id string) (Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	return doc, ok
}

// allowedExtensions mirrors what the indexing backend accepts.
var allowedExtensions = map[string]bool{
	".pdf":  true,
	".txt":  true,
	".md":   true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// SupportedFile reports whether the filename has an ingestable type.
func SupportedFile(filename string) bool {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return false
	}
	return allowedExtensions[strings.ToLower(filename[idx:])]
}
