package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics holds process-wide counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	roomsCreated  atomic.Uint64
	roomsExpired  atomic.Uint64
	joins         atomic.Uint64
	joinsRejected atomic.Uint64
	relayed       atomic.Uint64
	dropped       atomic.Uint64
	activeConns   atomic.Int64

	dropsStored  atomic.Uint64
	dropsFetched atomic.Uint64
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncRoomCreated() {
	if m != nil {
		m.roomsCreated.Add(1)
	}
}

func (m *Metrics) IncRoomExpired() {
	if m != nil {
		m.roomsExpired.Add(1)
	}
}

func (m *Metrics) IncJoin() {
	if m != nil {
		m.joins.Add(1)
	}
}

func (m *Metrics) IncJoinRejected() {
	if m != nil {
		m.joinsRejected.Add(1)
	}
}

func (m *Metrics) IncRelayed() {
	if m != nil {
		m.relayed.Add(1)
	}
}

// IncDropped counts outbound messages skipped because the target was gone or
// its buffer was full.
func (m *Metrics) IncDropped() {
	if m != nil {
		m.dropped.Add(1)
	}
}

func (m *Metrics) IncConn() {
	if m != nil {
		m.activeConns.Add(1)
	}
}

func (m *Metrics) DecConn() {
	if m != nil {
		m.activeConns.Add(-1)
	}
}

func (m *Metrics) IncDropStored() {
	if m != nil {
		m.dropsStored.Add(1)
	}
}

func (m *Metrics) IncDropFetched() {
	if m != nil {
		m.dropsFetched.Add(1)
	}
}

// Snapshot returns the current counter values keyed by their exported name.
func (m *Metrics) Snapshot() map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return map[string]any{
		"rooms_created_total":   m.roomsCreated.Load(),
		"rooms_expired_total":   m.roomsExpired.Load(),
		"joins_total":           m.joins.Load(),
		"joins_rejected_total":  m.joinsRejected.Load(),
		"signals_relayed_total": m.relayed.Load(),
		"messages_dropped":      m.dropped.Load(),
		"active_connections":    m.activeConns.Load(),
		"drops_stored_total":    m.dropsStored.Load(),
		"drops_fetched_total":   m.dropsFetched.Load(),
	}
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Snapshot())
}
