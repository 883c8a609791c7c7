package relay

import (
	"sync"

	"github.com/dkeye/RailPhone/internal/core"
)

// Orphan is a notification owed to a peer when a socket disappears
// mid-call.
type Orphan struct {
	To   core.ConnID
	Type string
	// Reason is set for REJECT.
	Reason string
}

// Calls tracks pending offers (caller → callee) and answered pairs.
type Calls struct {
	mu      sync.Mutex
	pending map[core.ConnID]core.ConnID
	active  map[core.ConnID]core.ConnID
}

func NewCalls() *Calls {
	return &Calls{
		pending: make(map[core.ConnID]core.ConnID),
		active:  make(map[core.ConnID]core.ConnID),
	}
}

// Offer records a pending call, replacing any earlier offer by caller.
func (c *Calls) Offer(caller, callee core.ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[caller] = callee
}

// Answer turns the pending offer from caller to callee into an active pair.
func (c *Calls) Answer(callee, caller core.ConnID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[caller] != callee {
		return false
	}
	delete(c.pending, caller)
	c.active[caller] = callee
	c.active[callee] = caller
	return true
}

// Decline removes the pending offer from caller to callee.
func (c *Calls) Decline(callee, caller core.ConnID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[caller] != callee {
		return false
	}
	delete(c.pending, caller)
	return true
}

// Withdraw removes caller's pending offer and returns its callee.
func (c *Calls) Withdraw(caller core.ConnID) (core.ConnID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	callee, ok := c.pending[caller]
	if ok {
		delete(c.pending, caller)
	}
	return callee, ok
}

// Hangup dissolves the active pair containing id.
func (c *Calls) Hangup(id core.ConnID) (core.ConnID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	peer, ok := c.active[id]
	if !ok {
		return "", false
	}
	delete(c.active, id)
	delete(c.active, peer)
	return peer, true
}

func (c *Calls) Peer(id core.ConnID) (core.ConnID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	peer, ok := c.active[id]
	return peer, ok
}

func (c *Calls) PendingTo(caller core.ConnID) (core.ConnID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	callee, ok := c.pending[caller]
	return callee, ok
}

// Drop forgets every call involving id and returns what its partners
// must be told.
func (c *Calls) Drop(id core.ConnID) []Orphan {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Orphan
	if peer, ok := c.active[id]; ok {
		delete(c.active, id)
		delete(c.active, peer)
		out = append(out, Orphan{To: peer, Type: core.WireHangup})
	}
	if callee, ok := c.pending[id]; ok {
		delete(c.pending, id)
		out = append(out, Orphan{To: callee, Type: core.WireCancel})
	}
	for caller, callee := range c.pending {
		if callee == id {
			delete(c.pending, caller)
			out = append(out, Orphan{To: caller, Type: core.WireReject, Reason: core.ReasonOffline})
		}
	}
	return out
}
