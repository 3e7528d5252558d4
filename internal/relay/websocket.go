package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const wsHandshakeTimeout = 30 * time.Second

// WSTransport is the production Transport over a websocket. Dialing
// and reading run on their own goroutine; outcomes reach the state
// machine through the bound handler, so Open never blocks the caller.
type WSTransport struct {
	mu      sync.Mutex
	handler TransportHandler
	conn    *websocket.Conn

	// gen guards against a stale read loop reporting a close for a
	// connection that has already been superseded.
	gen uint64
}

// NewWSTransport creates an unbound websocket transport.
func NewWSTransport() *WSTransport {
	return &WSTransport{}
}

// Bind sets the handler receiving transport events.
func (t *WSTransport) Bind(h TransportHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Open dials the hub in the background. A dial failure is delivered
// as HandleClose, which feeds the reconnect cycle.
func (t *WSTransport) Open(url string) {
	go t.dial(url)
}

func (t *WSTransport) dial(url string) {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		log.Debug().Err(err).Str("url", url).Msg("websocket dial failed")
		t.handler.HandleClose(err)
		return
	}

	t.mu.Lock()
	if t.conn != nil {
		t.conn.Close()
	}
	t.conn = conn
	t.gen++
	gen := t.gen
	t.mu.Unlock()

	t.handler.HandleOpen()
	t.readLoop(conn, gen)
}

// readLoop reads frames until the connection drops, then reports the
// close exactly once for the connection it belongs to.
func (t *WSTransport) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("websocket read error")
			}

			t.mu.Lock()
			current := t.gen == gen
			if current {
				t.conn = nil
			}
			t.mu.Unlock()

			conn.Close()
			if current {
				t.handler.HandleClose(err)
			}
			return
		}
		t.handler.HandleFrame(msg)
	}
}

// Send writes one text frame to the current connection.
func (t *WSTransport) Send(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ErrNotRegistered
	}
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

// Close tears down the current connection, if any. Bumping gen marks
// the read loop's eventual close error as stale, so a deliberate
// shutdown never feeds the reconnect cycle.
func (t *WSTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
		t.gen++
	}
}
