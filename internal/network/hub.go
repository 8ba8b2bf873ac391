package network

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/dshills/regioncore/internal/codec"
)

// DefaultOutboxSize is the default number of messages a session buffers.
const DefaultOutboxSize = 256

// Message is one encoded payload queued for a session.
type Message struct {
	Conn   ConnectionID
	Format codec.Format
	Data   []byte
}

// Session is one connected client.
type Session struct {
	id          ConnectionID
	player      PlayerID
	remote      string
	connectedAt time.Time

	outbox chan Message
	done   chan struct{}
}

// ID returns the connection id.
func (s *Session) ID() ConnectionID { return s.id }

// Player returns the player bound to the session.
func (s *Session) Player() PlayerID { return s.player }

// Remote returns the peer address the transport reported.
func (s *Session) Remote() string { return s.remote }

// ConnectedAt returns when the session was opened.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// Outbox returns the queue the transport writer drains.
func (s *Session) Outbox() <-chan Message { return s.outbox }

// Done is closed when the session disconnects.
func (s *Session) Done() <-chan struct{} { return s.done }

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithOutboxSize sets the per-session outbox size.
func WithOutboxSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.outboxSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Hub is an in-memory session table. Transports register sessions with
// Connect and drain each session's outbox; plugins reach it only through
// the Network interface.
type Hub struct {
	sessions   cmap.ConcurrentMap[string, *Session]
	nextID     atomic.Uint64
	outboxSize int
	logger     *slog.Logger

	sent          atomic.Uint64
	received      atomic.Uint64
	sentBytes     atomic.Uint64
	receivedBytes atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		sessions:   cmap.New[*Session](),
		outboxSize: DefaultOutboxSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "network.hub")
	return h
}

// Connect opens a session for a player and returns it.
func (h *Hub) Connect(player PlayerID, remote string) *Session {
	s := &Session{
		id:          ConnectionID(h.nextID.Add(1)),
		player:      player,
		remote:      remote,
		connectedAt: time.Now(),
		outbox:      make(chan Message, h.outboxSize),
		done:        make(chan struct{}),
	}
	h.sessions.Set(s.id.String(), s)
	h.logger.Debug("session connected", "conn", s.id, "player", player, "remote", remote)
	return s
}

// Disconnect closes a session. Messages already queued stay readable.
func (h *Hub) Disconnect(conn ConnectionID) error {
	s, ok := h.sessions.Pop(conn.String())
	if !ok {
		return &TransportError{Op: "disconnect", Conn: conn, Err: ErrUnknownConnection}
	}
	close(s.done)
	h.logger.Debug("session disconnected", "conn", conn, "player", s.player)
	return nil
}

// Lookup returns the session for a connection id.
func (h *Hub) Lookup(conn ConnectionID) (*Session, bool) {
	return h.sessions.Get(conn.String())
}

// Player returns the player bound to a connection.
func (h *Hub) Player(conn ConnectionID) (PlayerID, bool) {
	s, ok := h.Lookup(conn)
	if !ok {
		return "", false
	}
	return s.player, true
}

// Count returns the number of open sessions.
func (h *Hub) Count() int {
	return h.sessions.Count()
}

// Connections returns the open connection ids in ascending order.
func (h *Hub) Connections() []ConnectionID {
	ids := make([]ConnectionID, 0, h.sessions.Count())
	for item := range h.sessions.IterBuffered() {
		ids = append(ids, item.Val.id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RecordInbound accounts for n bytes read from a session.
func (h *Hub) RecordInbound(conn ConnectionID, n int) error {
	if _, ok := h.Lookup(conn); !ok {
		return &TransportError{Op: "receive", Conn: conn, Err: ErrUnknownConnection}
	}
	h.received.Add(1)
	h.receivedBytes.Add(uint64(n))
	return nil
}

// SendToConnection implements Network. It never blocks: a full outbox is
// reported as ErrOutboxFull.
func (h *Hub) SendToConnection(ctx context.Context, conn ConnectionID, data []byte, format codec.Format) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Op: "send", Conn: conn, Err: err}
	}

	s, ok := h.Lookup(conn)
	if !ok {
		return &TransportError{Op: "send", Conn: conn, Err: ErrUnknownConnection}
	}

	select {
	case <-s.done:
		return &TransportError{Op: "send", Conn: conn, Err: ErrConnectionClosed}
	default:
	}

	msg := Message{Conn: conn, Format: format, Data: data}
	select {
	case s.outbox <- msg:
		h.sent.Add(1)
		h.sentBytes.Add(uint64(len(data)))
		return nil
	default:
		return &TransportError{Op: "send", Conn: conn, Err: ErrOutboxFull}
	}
}

// Stats implements Network.
func (h *Hub) Stats() Stats {
	return Stats{
		Sent:          h.sent.Load(),
		Received:      h.received.Load(),
		SentBytes:     h.sentBytes.Load(),
		ReceivedBytes: h.receivedBytes.Load(),
	}
}
