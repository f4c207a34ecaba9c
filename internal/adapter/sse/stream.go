// Package sse implements the Server-Sent Events subscriber stream.
package sse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ErrClosed is returned by writes after the stream was closed.
var ErrClosed = errors.New("sse: stream closed")

var (
	dataPrefix = []byte("data: ")
	keepAlive  = []byte(": keep-alive\n\n")
)

// Stream is one subscriber's event-stream response. Send, Ping and Close may
// be called from different goroutines; once Close returns no further bytes
// reach the ResponseWriter.
type Stream struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	rc     *http.ResponseController
	closed bool
	done   chan struct{}
}

// Open writes the event-stream headers and flushes them so the client sees
// the stream immediately.
func Open(w http.ResponseWriter) (*Stream, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("sse: flush headers: %w", err)
	}
	return &Stream{w: w, rc: rc, done: make(chan struct{})}, nil
}

// Send writes payload as one data frame. Multi-line payloads are split into
// one data field per line.
func (s *Stream) Send(ctx context.Context, payload []byte) error {
	var buf bytes.Buffer
	for line := range bytes.SplitSeq(payload, []byte("\n")) {
		buf.Write(dataPrefix)
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return s.write(ctx, buf.Bytes())
}

// Ping writes an SSE comment, ignored by EventSource clients.
func (s *Stream) Ping(ctx context.Context) error {
	return s.write(ctx, keepAlive)
}

func (s *Stream) write(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		if err := s.rc.SetWriteDeadline(dl); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		defer func() { _ = s.rc.SetWriteDeadline(time.Time{}) }()
	}

	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("sse: write: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("sse: flush: %w", err)
	}
	return nil
}

// Close marks the stream finished and releases the handler waiting on Done.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// Done is closed once Close has been called.
func (s *Stream) Done() <-chan struct{} { return s.done }
