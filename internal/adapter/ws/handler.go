// Package ws implements the WebSocket variant of the deposit event stream.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/coder/websocket"
)

// ErrClosed is returned by writes after the sink was closed.
var ErrClosed = errors.New("ws: sink closed")

// Sink delivers deposit events as WebSocket text messages. Keep-alives are
// protocol-level pings.
type Sink struct {
	conn *websocket.Conn
	once sync.Once
	done chan struct{}
}

// Accept upgrades the request and starts the read side, which only handles
// control frames. The returned context is canceled when the peer goes away
// or sends a data message.
func Accept(w http.ResponseWriter, r *http.Request, origin string) (*Sink, context.Context, error) {
	conn, err := websocket.Accept(w, r, acceptOptions(origin))
	if err != nil {
		return nil, nil, fmt.Errorf("ws: accept: %w", err)
	}
	ctx := conn.CloseRead(r.Context())
	return &Sink{conn: conn, done: make(chan struct{})}, ctx, nil
}

func acceptOptions(origin string) *websocket.AcceptOptions {
	if origin == "" || origin == "*" {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	host := origin
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		host = u.Host
	}
	return &websocket.AcceptOptions{OriginPatterns: []string{host}}
}

// Send writes payload as one text message.
func (s *Sink) Send(ctx context.Context, payload []byte) error {
	if s.closed() {
		return ErrClosed
	}
	return s.conn.Write(ctx, websocket.MessageText, payload)
}

// Ping sends a ping and waits for the pong.
func (s *Sink) Ping(ctx context.Context) error {
	if s.closed() {
		return ErrClosed
	}
	return s.conn.Ping(ctx)
}

// Close marks the stream finished and releases the handler waiting on Done.
// The handler then calls Finish to run the closing handshake.
func (s *Sink) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// Finish closes the connection with a normal closure status and waits for
// the handshake. It must run on the handler goroutine, before the handler
// returns, or the request context tears the connection down first.
func (s *Sink) Finish() {
	_ = s.Close()
	_ = s.conn.Close(websocket.StatusNormalClosure, "deposit stream closed")
}

func (s *Sink) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done is closed once Close has been called.
func (s *Sink) Done() <-chan struct{} { return s.done }
