// Package relay holds the server-side state of the signaling relay:
// who is online under which number, which calls are pending or active,
// and the media forwarding between paired stations.
package relay

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/RailPhone/internal/core"
	"github.com/dkeye/RailPhone/internal/domain"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Station  domain.Station
	LoggedIn bool
	Signal   core.SignalConnection
	Cancel   context.CancelFunc
}

// Registry maps signaling sockets to stations. A socket is bound on
// upgrade and becomes reachable by number once it logs in.
type Registry struct {
	mu      sync.RWMutex
	conns   map[core.ConnID]*connEntry
	numbers map[string]core.ConnID
	onCount func(int)
}

func NewRegistry() *Registry {
	return &Registry{
		conns:   make(map[core.ConnID]*connEntry),
		numbers: make(map[string]core.ConnID),
	}
}

// OnCountChanged registers fn to observe the number of logged-in
// stations. Called under the registry lock; fn must not call back.
func (r *Registry) OnCountChanged(fn func(int)) {
	r.mu.Lock()
	r.onCount = fn
	r.mu.Unlock()
}

func (r *Registry) Bind(id core.ConnID, sig core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &connEntry{Signal: sig, Cancel: cancel}
	log.Info().Str("module", "relay.registry").Str("conn_id", string(id)).Msg("bound signal")
}

// Login registers st for id. An older socket holding the same number is
// returned so the caller can close it.
func (r *Registry) Login(id core.ConnID, st domain.Station) (replaced core.ConnID, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, found := r.conns[id]
	if !found {
		return "", false
	}
	if e.LoggedIn && e.Station.Number != st.Number && r.numbers[e.Station.Number] == id {
		delete(r.numbers, e.Station.Number)
	}
	if old, taken := r.numbers[st.Number]; taken && old != id {
		replaced = old
		if oe, ok := r.conns[old]; ok {
			oe.LoggedIn = false
		}
	}
	e.Station = st
	e.LoggedIn = true
	r.numbers[st.Number] = id
	r.notifyLocked()
	log.Info().
		Str("module", "relay.registry").
		Str("conn_id", string(id)).
		Str("station", st.Number).
		Str("replaced", string(replaced)).
		Msg("station logged in")
	return replaced, true
}

// Unbind forgets id and returns the station it was logged in as.
func (r *Registry) Unbind(id core.ConnID) (domain.Station, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return domain.Station{}, false
	}
	delete(r.conns, id)
	if e.LoggedIn && r.numbers[e.Station.Number] == id {
		delete(r.numbers, e.Station.Number)
		r.notifyLocked()
	}
	log.Info().Str("module", "relay.registry").Str("conn_id", string(id)).Str("station", e.Station.Number).Msg("unbind signal")
	return e.Station, e.LoggedIn
}

func (r *Registry) Lookup(number string) (core.ConnID, core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.numbers[number]
	if !ok {
		return "", nil, false
	}
	return id, r.conns[id].Signal, true
}

func (r *Registry) Signal(id core.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.Signal, true
}

// StationOf reports the station id is logged in as.
func (r *Registry) StationOf(id core.ConnID) (domain.Station, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || !e.LoggedIn {
		return domain.Station{}, false
	}
	return e.Station, true
}

func (r *Registry) Bound(id core.ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[id]
	return ok
}

// Online lists logged-in stations ordered by number.
func (r *Registry) Online() []domain.Station {
	r.mu.RLock()
	out := make([]domain.Station, 0, len(r.numbers))
	for _, id := range r.numbers {
		out = append(out, r.conns[id].Station)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b domain.Station) int { return strings.Compare(a.Number, b.Number) })
	return out
}

// Cancel stops the socket's pumps; cleanup follows through Unbind.
func (r *Registry) Cancel(id core.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "relay.registry").Str("conn_id", string(id)).Msg("canceled signal")
	return true
}

func (r *Registry) notifyLocked() {
	if r.onCount != nil {
		r.onCount(len(r.numbers))
	}
}
