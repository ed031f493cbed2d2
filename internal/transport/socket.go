// internal/transport/socket.go
// Socket adapts a gorilla/websocket connection into the two halves a Channel
// needs: a wire.Sink it posts outbound frames to (non-blocking, per §5) and a
// <-chan wire.Envelope of inbound frames it reads from in its Run loop.
//
// Grounded on the teacher's internal/gateway/listener.go handleWebSocket,
// generalised from a one-way chunk broadcaster into the bidirectional JSON
// framing §6 specifies.
package transport

import (
	"net/http"
	"time"

	"github.com/Voskan/flarego/internal/logging"
	"github.com/Voskan/flarego/internal/wire"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// outboxSize bounds the writer goroutine's buffer; a slow peer's socket
// backpressure must never stall a Channel's actor loop (§5).
const outboxSize = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Socket owns one upgraded connection. Close is idempotent.
type Socket struct {
	conn   *websocket.Conn
	outbox chan wire.Envelope
	inbox  chan wire.Envelope
	closed chan struct{}
}

// Upgrade performs the HTTP->websocket upgrade and starts the socket's
// reader/writer goroutines. The returned Socket's Inbox channel closes when
// the peer disconnects or a read fails; callers should select on it inside
// their actor's Run loop exactly like any other inbound channel.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Socket, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	s := &Socket{
		conn:   conn,
		outbox: make(chan wire.Envelope, outboxSize),
		inbox:  make(chan wire.Envelope, outboxSize),
		closed: make(chan struct{}),
	}
	go s.readLoop()
	go s.writeLoop()
	return s, nil
}

// Inbox is the channel of frames read off the wire.
func (s *Socket) Inbox() <-chan wire.Envelope { return s.inbox }

// Send implements wire.Sink: a non-blocking post to the writer goroutine. A
// full outbox (a peer reading too slowly) drops the frame rather than
// blocking the calling actor, the same trade-off pubsub.Bus.Broadcast makes.
func (s *Socket) Send(e wire.Envelope) {
	select {
	case s.outbox <- e:
	default:
		logging.Sugar().Warnw("transport: dropping frame to slow socket", "event", e.Event)
	}
}

// Close closes the underlying connection; safe to call more than once.
func (s *Socket) Close() {
	select {
	case <-s.closed:
	default:
		close(s.closed)
		_ = s.conn.Close()
	}
}

func (s *Socket) readLoop() {
	defer close(s.inbox)
	for {
		var env wire.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			logging.Logger().Debug("transport: read closed", zap.Error(err))
			return
		}
		select {
		case s.inbox <- env:
		case <-s.closed:
			return
		}
	}
}

func (s *Socket) writeLoop() {
	const pingInterval = 30 * time.Second
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case env, ok := <-s.outbox:
			if !ok {
				return
			}
			if err := s.conn.WriteJSON(env); err != nil {
				logging.Logger().Debug("transport: write failed", zap.Error(err))
				s.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}
