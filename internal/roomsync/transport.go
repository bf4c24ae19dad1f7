package roomsync

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/coder/websocket"
)

// Transport is one open streaming connection. Read is only called from a
// single goroutine; Write and Close may be called from the manager loop.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, frame []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Transport, error)
}

type DialerFunc func(ctx context.Context, url string, header http.Header) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, url string, header http.Header) (Transport, error) {
	return f(ctx, url, header)
}

const stompSubprotocol = "v12.stomp"

// WebsocketDialer opens transports with github.com/coder/websocket.
type WebsocketDialer struct {
	HTTPClient *http.Client
	ReadLimit  int64
}

func (d WebsocketDialer) Dial(ctx context.Context, url string, header http.Header) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient:   d.HTTPClient,
		HTTPHeader:   header,
		Subprotocols: []string{stompSubprotocol},
	})
	if err != nil {
		return nil, err
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn   *websocket.Conn
	broken atomic.Bool
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		t.broken.Store(true)
	}
	return data, err
}

func (t *wsTransport) Write(ctx context.Context, frame []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, frame)
}

// Close skips the close handshake once a read has failed; the peer is gone.
func (t *wsTransport) Close() error {
	if t.broken.Load() {
		return t.conn.CloseNow()
	}
	return t.conn.Close(websocket.StatusNormalClosure, "bye")
}
