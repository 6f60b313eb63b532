package conn

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the subset of a websocket connection the manager drives.
// Abstracted so tests can run the full state machine without a network.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer establishes a Transport to the workspace endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Transport, error)
}

// websocketDialer is the production Dialer backed by gorilla/websocket.
type websocketDialer struct{}

func (websocketDialer) Dial(ctx context.Context, url string, header http.Header) (Transport, error) {
	c, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
