// Package notice delivers notices and navigation commands to browser
// contexts: over WebSocket, to the external push service and by e-mail.
package notice

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/skyguide-inc/skyguide/internal/domain/notice"
	"github.com/skyguide-inc/skyguide/internal/shared/biztime"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

const (
	sendBufferSize = 32
	maxPending     = 16
	pendingTTL     = time.Minute
)

// Conn is one WebSocket attached to a client context.
type Conn struct {
	ID          string
	ClientID    string
	Send        chan []byte
	ConnectedAt time.Time
	closed      atomic.Bool
}

// TrySend returns false when the connection is closed or its buffer is full.
func (c *Conn) TrySend(data []byte) (sent bool) {
	if c.closed.Load() {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			sent = false
		}
	}()

	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Conn) Close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.Send)
	}
}

// Bus forwards messages to the instance that holds the client's socket.
type Bus interface {
	Publish(ctx context.Context, clientID string, msg notice.Message) error
}

type pendingFrame struct {
	data []byte
	at   time.Time
}

// Hub tracks WebSocket connections per client id. Messages for a client with
// no local connection are queued briefly and forwarded over the bus.
type Hub struct {
	bus    Bus
	logger logger.Interface
	now    func() time.Time

	mu      sync.RWMutex
	conns   map[string]map[string]*Conn
	pending map[string][]pendingFrame

	shutdown atomic.Bool
}

// NewHub returns a hub. bus may be nil for a single-instance deployment.
func NewHub(bus Bus, log logger.Interface) *Hub {
	return &Hub{
		bus:     bus,
		logger:  log.Named("notice.hub"),
		now:     biztime.NowUTC,
		conns:   make(map[string]map[string]*Conn),
		pending: make(map[string][]pendingFrame),
	}
}

// Register attaches a new connection and flushes queued frames into it.
// It returns nil after Shutdown.
func (h *Hub) Register(clientID string) *Conn {
	if h.shutdown.Load() {
		return nil
	}

	conn := &Conn{
		ID:          uuid.NewString(),
		ClientID:    clientID,
		Send:        make(chan []byte, sendBufferSize),
		ConnectedAt: h.now(),
	}

	h.mu.Lock()
	if h.conns[clientID] == nil {
		h.conns[clientID] = make(map[string]*Conn)
	}
	h.conns[clientID][conn.ID] = conn
	queued := h.pending[clientID]
	delete(h.pending, clientID)
	h.mu.Unlock()

	cutoff := h.now().Add(-pendingTTL)
	for _, f := range queued {
		if f.at.After(cutoff) {
			conn.TrySend(f.data)
		}
	}

	h.logger.Debugw("notice connection registered", "client_id", clientID, "conn_id", conn.ID)
	return conn
}

func (h *Hub) Unregister(conn *Conn) {
	h.mu.Lock()
	if byID, ok := h.conns[conn.ClientID]; ok {
		delete(byID, conn.ID)
		if len(byID) == 0 {
			delete(h.conns, conn.ClientID)
		}
	}
	h.mu.Unlock()

	conn.Close()
	h.logger.Debugw("notice connection unregistered", "client_id", conn.ClientID, "conn_id", conn.ID)
}

// Notify implements notice.Notifier.
func (h *Hub) Notify(ctx context.Context, target notice.Target, n notice.Notice) error {
	return h.Send(ctx, target.ClientID, notice.NoticeMessage(n))
}

// Navigate instructs the client to load path.
func (h *Hub) Navigate(ctx context.Context, clientID, path string) error {
	return h.Send(ctx, clientID, notice.NavigateMessage(path))
}

func (h *Hub) Send(ctx context.Context, clientID string, msg notice.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if h.deliverLocal(clientID, data) > 0 {
		return nil
	}

	h.enqueue(clientID, data)
	if h.bus == nil {
		return nil
	}
	if err := h.bus.Publish(ctx, clientID, msg); err != nil {
		return fmt.Errorf("failed to forward message for client %s: %w", clientID, err)
	}
	return nil
}

// HandleRemote delivers a message forwarded by another instance. Nothing is
// queued when the client is not connected here.
func (h *Hub) HandleRemote(clientID string, msg notice.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warnw("failed to marshal forwarded message", "client_id", clientID, "error", err)
		return
	}
	h.deliverLocal(clientID, data)
}

func (h *Hub) deliverLocal(clientID string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, conn := range h.conns[clientID] {
		if conn.TrySend(data) {
			delivered++
		} else {
			h.logger.Warnw("failed to push message, buffer full", "client_id", clientID, "conn_id", conn.ID)
		}
	}
	return delivered
}

func (h *Hub) enqueue(clientID string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	q := append(h.pending[clientID], pendingFrame{data: data, at: h.now()})
	if len(q) > maxPending {
		q = q[len(q)-maxPending:]
	}
	h.pending[clientID] = q
}

// PrunePending drops queued frames older than the pending TTL and returns
// how many clients were cleared.
func (h *Hub) PrunePending() int {
	cutoff := h.now().Add(-pendingTTL)

	h.mu.Lock()
	defer h.mu.Unlock()
	cleared := 0
	for id, q := range h.pending {
		if len(q) == 0 || !q[len(q)-1].at.After(cutoff) {
			delete(h.pending, id)
			cleared++
		}
	}
	return cleared
}

// Connected returns the number of live connections for clientID.
func (h *Hub) Connected(clientID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[clientID])
}

// Shutdown closes every connection. Safe to call more than once.
func (h *Hub) Shutdown() {
	if !h.shutdown.CompareAndSwap(false, true) {
		return
	}
	h.mu.Lock()
	for _, byID := range h.conns {
		for _, conn := range byID {
			conn.Close()
		}
	}
	h.conns = make(map[string]map[string]*Conn)
	h.mu.Unlock()
}
