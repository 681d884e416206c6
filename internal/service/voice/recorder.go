package voice

import (
	"bytes"
	"errors"
	"sync"
)

var ErrRecorderStopped = errors.New("recorder already stopped")

// BufferRecorder accumulates audio chunks in memory. It only records
// between Begin and Stop; chunks arriving outside that window are
// dropped, mirroring a media recorder that has not been started.
type BufferRecorder struct {
	mu      sync.Mutex
	started bool
	stopped bool
	buf     bytes.Buffer
}

// NewBufferRecorder returns an empty in-memory recorder.
func NewBufferRecorder() *BufferRecorder {
	return &BufferRecorder{}
}

// Begin starts accepting chunks. Calling it again is a no-op.
func (r *BufferRecorder) Begin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped {
		r.started = true
	}
}

// Write appends one chunk when recording is active.
func (r *BufferRecorder) Write(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started && !r.stopped {
		r.buf.Write(chunk)
	}
}

// Started reports whether Begin has been called.
func (r *BufferRecorder) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Stop finalizes the recording and returns the assembled blob. Once
// stopped the recorder accepts nothing further.
func (r *BufferRecorder) Stop() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil, ErrRecorderStopped
	}
	r.stopped = true
	blob := make([]byte, r.buf.Len())
	copy(blob, r.buf.Bytes())
	return blob, nil
}
