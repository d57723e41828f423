package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/morezero/designer-bridge/pkg/commsutil"
	"github.com/morezero/designer-bridge/pkg/protocol"
)

const wsLogPrefix = "transport:websocket"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 4 << 20
	sendBuffer = 256
)

// Origins are not checked; origin filtering is a deployment concern.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn pumps frames for one websocket connection.
type wsConn struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *wsConn) enqueue(ctx context.Context, data []byte) error {
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *wsConn) readPump(fn Receiver, onExit func()) {
	defer func() {
		c.close()
		if onExit != nil {
			onExit()
		}
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Info(fmt.Sprintf("%s - peer disconnected: %v", wsLogPrefix, err))
			}
			return
		}
		deliverFrame(wsLogPrefix, message, fn)
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Warn(fmt.Sprintf("%s - write failed: %v", wsLogPrefix, err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WebSocketTransport is a client-side websocket connection to a peer.
type WebSocketTransport struct {
	c         *wsConn
	mu        sync.Mutex
	listening bool
}

// DialWebSocket connects to a websocket endpoint such as ws://host:8080/ws.
func DialWebSocket(ctx context.Context, url string) (*WebSocketTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to dial %s: %w", wsLogPrefix, url, err)
	}
	c := newWSConn(conn)
	go c.writePump()
	return &WebSocketTransport{c: c}, nil
}

// Send queues env on the connection.
func (t *WebSocketTransport) Send(ctx context.Context, env *protocol.Envelope) error {
	data, err := commsutil.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	return t.c.enqueue(ctx, data)
}

// Listen starts the read pump.
func (t *WebSocketTransport) Listen(fn Receiver) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listening {
		return errors.New("transport: already listening")
	}
	t.listening = true
	go t.c.readPump(fn, nil)
	return nil
}

// Close closes the connection.
func (t *WebSocketTransport) Close() error {
	t.c.close()
	return nil
}

// WebSocketServer is the server side: it serves the upgrade endpoint and
// behaves as a Transport toward whichever peer is attached. A new
// connection replaces the previous one. Frames sent while no peer is
// attached are held, up to sendBuffer, and written to the next peer.
type WebSocketServer struct {
	mu      sync.Mutex
	current *wsConn
	backlog [][]byte
	fn      Receiver
	closed  bool
}

// NewWebSocketServer creates a WebSocketServer with no peer attached.
func NewWebSocketServer() *WebSocketServer {
	return &WebSocketServer{}
}

// ServeHTTP upgrades the request and attaches the connection.
func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "closed", http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - upgrade failed: %v", wsLogPrefix, err))
		return
	}
	c := newWSConn(conn)

	s.mu.Lock()
	prev := s.current
	s.current = c
	fn := s.fn
	// The backlog never exceeds sendBuffer, so these sends cannot block.
	for _, data := range s.backlog {
		c.send <- data
	}
	s.backlog = nil
	s.mu.Unlock()

	if prev != nil {
		slog.Info(fmt.Sprintf("%s - replacing previous peer connection", wsLogPrefix))
		prev.close()
	}
	slog.Info(fmt.Sprintf("%s - peer connected from %s", wsLogPrefix, r.RemoteAddr))

	go c.writePump()
	if fn == nil {
		fn = func(env *protocol.Envelope) {
			slog.Warn(fmt.Sprintf("%s - no listener, dropping %s", wsLogPrefix, env.Type))
		}
	}
	go c.readPump(fn, func() {
		s.mu.Lock()
		if s.current == c {
			s.current = nil
		}
		s.mu.Unlock()
	})
}

// Connected reports whether a peer is attached.
func (s *WebSocketServer) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Send queues env on the attached peer, or holds it until one attaches.
// It returns ErrNotConnected once the hold buffer is full.
func (s *WebSocketServer) Send(ctx context.Context, env *protocol.Envelope) error {
	data, err := commsutil.EncodeEnvelope(env)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	c := s.current
	if c == nil {
		if len(s.backlog) >= sendBuffer {
			s.mu.Unlock()
			return ErrNotConnected
		}
		s.backlog = append(s.backlog, data)
		s.mu.Unlock()
		slog.Debug(fmt.Sprintf("%s - no peer yet, holding %s", wsLogPrefix, env.Type))
		return nil
	}
	s.mu.Unlock()
	return c.enqueue(ctx, data)
}

// Held reports how many frames wait for a peer.
func (s *WebSocketServer) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.backlog)
}

// Listen sets the receiver for connections attached from now on.
func (s *WebSocketServer) Listen(fn Receiver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fn != nil {
		return errors.New("transport: already listening")
	}
	s.fn = fn
	return nil
}

// Close detaches the current peer and refuses new ones.
func (s *WebSocketServer) Close() error {
	s.mu.Lock()
	c := s.current
	s.current = nil
	s.backlog = nil
	s.closed = true
	s.mu.Unlock()
	if c != nil {
		c.close()
	}
	return nil
}
