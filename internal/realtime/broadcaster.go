// Package realtime pushes updated window summaries to websocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ledger-aggregates/internal/aggregation"
	"ledger-aggregates/internal/domain"
	"ledger-aggregates/internal/observability"
)

const writeTimeout = 5 * time.Second

// Summarizer computes the summary of one series.
type Summarizer interface {
	Summary(ctx context.Context, key domain.SeriesKey, ref uint64) (*domain.WindowSummary, error)
}

// Update is the message sent to clients for one touched series.
type Update struct {
	Ledger  uint32                `json:"ledger"`
	Summary *domain.WindowSummary `json:"summary"`
}

// Broadcaster fans summary updates out to connected websocket clients.
type Broadcaster struct {
	summaries Summarizer
	logger    *zap.Logger
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewBroadcaster creates a broadcaster reading summaries from summaries.
func NewBroadcaster(summaries Summarizer, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		summaries: summaries,
		logger:    logger,
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:   make(map[*websocket.Conn]struct{}),
	}
}

// Handler returns an http.HandlerFunc to accept websocket connections.
// Clients only receive; anything they send is discarded.
func (b *Broadcaster) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		b.add(conn)

		go func() {
			defer b.remove(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

// LedgerApplied pushes the summary of every series the ledger touched,
// computed at the ledger close time.
func (b *Broadcaster) LedgerApplied(ctx context.Context, result *aggregation.LedgerResult) {
	if b.Clients() == 0 {
		return
	}
	for _, key := range result.Touched {
		summary, err := b.summaries.Summary(ctx, key, result.ClosedAt)
		if err != nil {
			b.logger.Warn("summary for push failed",
				zap.Uint32("ledger", result.Sequence),
				zap.String("entity_key", key.EntityKey),
				zap.String("metric_kind", string(key.MetricKind)),
				zap.Error(err))
			continue
		}
		b.Broadcast(&Update{Ledger: result.Sequence, Summary: summary})
	}
}

// Broadcast sends u to every client. Clients that fail a write are dropped.
func (b *Broadcaster) Broadcast(u *Update) {
	msg, err := json.Marshal(u)
	if err != nil {
		b.logger.Error("failed to marshal update", zap.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			b.logger.Debug("dropping websocket client", zap.Error(err))
			c.Close()
			delete(b.clients, c)
		}
	}
	observability.SetWebsocketClients(len(b.clients))
}

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		c.Close()
		delete(b.clients, c)
	}
	observability.SetWebsocketClients(0)
}

func (b *Broadcaster) add(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[conn] = struct{}{}
	observability.SetWebsocketClients(len(b.clients))
}

func (b *Broadcaster) remove(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[conn]; ok {
		delete(b.clients, conn)
		conn.Close()
	}
	observability.SetWebsocketClients(len(b.clients))
}
