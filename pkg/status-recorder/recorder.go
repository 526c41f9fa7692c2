package recorder

import (
	"net/http"
	"time"
)

// StatusRecorder is a wrapper around http.ResponseWriter that remembers
// the status code and the number of body bytes written through it.
type StatusRecorder struct {
	rw           http.ResponseWriter
	status       int
	bytes        int64
	wroteHeaders bool
	CreatedAt    time.Time
}

// Implementation of http.ResponseWriter
func (t *StatusRecorder) Header() http.Header {
	return t.rw.Header()
}

// Implementation of http.ResponseWriter
func (t *StatusRecorder) WriteHeader(statusCode int) {
	// only the first call counts, as with net/http
	if t.wroteHeaders {
		return
	}
	t.wroteHeaders = true
	t.status = statusCode
	t.rw.WriteHeader(statusCode)
}

// Implementation of http.ResponseWriter
func (t *StatusRecorder) Write(b []byte) (int, error) {
	if !t.wroteHeaders {
		t.WriteHeader(http.StatusOK)
	}
	n, err := t.rw.Write(b)
	t.bytes += int64(n)
	return n, err
}

// Flush implements http.Flusher if the underlying writer does.
func (t *StatusRecorder) Flush() {
	if f, ok := t.rw.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (t *StatusRecorder) Unwrap() http.ResponseWriter {
	return t.rw
}

// StatusCode returns the status code of the response.
// It is 200 if the handler wrote a body without setting a status, and 0 if it wrote nothing.
func (t *StatusRecorder) StatusCode() int {
	return t.status
}

// BytesWritten returns the number of body bytes written.
func (t *StatusRecorder) BytesWritten() int64 {
	return t.bytes
}

// Duration returns the time since the recorder was created.
func (t *StatusRecorder) Duration() time.Duration {
	return time.Since(t.CreatedAt)
}

// NewStatusRecorder returns a new StatusRecorder writing to w.
func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{
		CreatedAt: time.Now(),
		rw:        w,
	}
}
