// Package httpapi exposes summaries, history and ingestion status over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"ledger-aggregates/internal/domain"
	"ledger-aggregates/internal/query"
	"ledger-aggregates/internal/storage"
)

// Queries is the read side the API serves from.
type Queries interface {
	Summary(ctx context.Context, key domain.SeriesKey, ref uint64) (*domain.WindowSummary, error)
	History(ctx context.Context, key domain.SeriesKey, from uint64) ([]*domain.Snapshot, error)
	Keys(ctx context.Context, kind domain.MetricKind) ([]domain.SeriesKey, error)
}

var _ Queries = (*query.Service)(nil)

// Server routes API requests.
type Server struct {
	mux     *http.ServeMux
	queries Queries
	cursor  storage.LedgerCursorStore
	started time.Time
	logger  *zap.Logger
}

// Options for creating Server.
type Options struct {
	Queries   Queries
	Cursor    storage.LedgerCursorStore // nil reports no ledger in /status
	Metrics   http.Handler              // nil leaves /metrics unrouted
	Websocket http.Handler              // nil leaves /ws unrouted
	Logger    *zap.Logger
}

// New creates the API server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		mux:     http.NewServeMux(),
		queries: opts.Queries,
		cursor:  opts.Cursor,
		started: time.Now(),
		logger:  logger,
	}

	s.mux.HandleFunc("GET /v1/summary", s.handleSummary)
	s.mux.HandleFunc("GET /v1/snapshots", s.handleSnapshots)
	s.mux.HandleFunc("GET /v1/keys", s.handleKeys)
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	s.mux.HandleFunc("GET /status", s.handleStatus)
	if opts.Metrics != nil {
		s.mux.Handle("GET /metrics", opts.Metrics)
	}
	if opts.Websocket != nil {
		s.mux.Handle("GET /ws", opts.Websocket)
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// SnapshotResponse is one row of /v1/snapshots.
type SnapshotResponse struct {
	Version         uint32 `json:"version"`
	CumulativeValue string `json:"cumulative_value"`
	Delta           string `json:"delta"`
	Ledger          uint32 `json:"ledger"`
	Timestamp       uint64 `json:"timestamp"`
	Source          string `json:"source,omitempty"`
	TxHash          string `json:"tx_hash,omitempty"`
}

// KeyResponse is one row of /v1/keys.
type KeyResponse struct {
	EntityKey  string `json:"entity_key"`
	MetricKind string `json:"metric_kind"`
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status         string `json:"status"`
	Uptime         string `json:"uptime"`
	LastLedger     uint32 `json:"last_ledger,omitempty"`
	LastLedgerTime uint64 `json:"last_ledger_closed_at,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	key, err := seriesKey(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	at, err := uintParam(r, "at")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	summary, err := s.queries.Summary(r.Context(), key, at)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	key, err := seriesKey(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	from, err := uintParam(r, "from")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	history, err := s.queries.History(r.Context(), key, from)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}

	resp := make([]SnapshotResponse, 0, len(history))
	for _, snap := range history {
		resp = append(resp, SnapshotResponse{
			Version:         snap.Version,
			CumulativeValue: snap.CumulativeValue.String(),
			Delta:           snap.Delta.String(),
			Ledger:          snap.LedgerSequence,
			Timestamp:       snap.Timestamp,
			Source:          snap.Source,
			TxHash:          snap.TxHash,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	var kind domain.MetricKind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		k, err := domain.ParseMetricKind(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		kind = k
	}

	keys, err := s.queries.Keys(r.Context(), kind)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}

	resp := make([]KeyResponse, 0, len(keys))
	for _, k := range keys {
		resp = append(resp, KeyResponse{EntityKey: k.EntityKey, MetricKind: string(k.MetricKind)})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status: "running",
		Uptime: time.Since(s.started).Truncate(time.Second).String(),
	}

	if s.cursor != nil {
		last, err := s.cursor.LastLedger(r.Context())
		switch {
		case err == nil:
			resp.LastLedger = last.Sequence
			resp.LastLedgerTime = last.ClosedAt
		case !errors.Is(err, storage.ErrNotFound):
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func seriesKey(r *http.Request) (domain.SeriesKey, error) {
	q := r.URL.Query()
	entity := q.Get("entity")
	if entity == "" {
		return domain.SeriesKey{}, errors.New("entity is required")
	}
	kind, err := domain.ParseMetricKind(q.Get("kind"))
	if err != nil {
		return domain.SeriesKey{}, err
	}
	return domain.SeriesKey{EntityKey: entity, MetricKind: kind}, nil
}

func uintParam(r *http.Request, name string) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}

func (s *Server) writeQueryError(w http.ResponseWriter, err error) {
	if query.IsNotFound(err) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.logger.Error("query failed", zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, err)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response failed", zap.Error(err))
	}
}
