package realtime

import (
	"context"
	"net/http"
	"strings"

	"github.com/coder/websocket"
)

// Transport is a single duplexed message connection to the realtime server.
// The production implementation wraps a WebSocket; tests substitute fakes.
type Transport interface {
	// ReadMessage blocks until the next inbound frame or an error. A closed
	// connection surfaces as a read error.
	ReadMessage(ctx context.Context) ([]byte, error)
	// WriteMessage writes one outbound text frame.
	WriteMessage(ctx context.Context, data []byte) error
	// Close closes the connection. Pending reads fail afterwards.
	Close() error
}

// Dialer opens a Transport to the given URL with the handshake headers.
type Dialer func(ctx context.Context, url string, header http.Header) (Transport, error)

// DialWebSocket is the default Dialer, connecting over WebSocket with
// text frames.
func DialWebSocket(ctx context.Context, url string, header http.Header) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, err
	}

	conn.SetReadLimit(128 << 10) // 128 KB

	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	return data, err
}

func (t *wsTransport) WriteMessage(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "client disconnect")
}

// DeriveURL converts an HTTP API base URL into the realtime endpoint by
// rewriting the scheme and appending the fixed /realtime path segment.
func DeriveURL(baseURL string) string {
	url := baseURL
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return strings.TrimRight(url, "/") + "/realtime"
}
