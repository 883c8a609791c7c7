package relay

import (
	"testing"

	"github.com/dkeye/RailPhone/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestCalls_OfferAnswerHangup(t *testing.T) {
	c := NewCalls()
	c.Offer("caller", "callee")

	assert.False(t, c.Answer("stranger", "caller"))
	assert.True(t, c.Answer("callee", "caller"))
	assert.False(t, c.Answer("callee", "caller"), "already answered")

	peer, ok := c.Peer("caller")
	assert.True(t, ok)
	assert.Equal(t, core.ConnID("callee"), peer)

	peer, ok = c.Hangup("callee")
	assert.True(t, ok)
	assert.Equal(t, core.ConnID("caller"), peer)
	_, ok = c.Peer("caller")
	assert.False(t, ok)
}

func TestCalls_DeclineAndWithdraw(t *testing.T) {
	c := NewCalls()
	c.Offer("a", "b")
	assert.False(t, c.Decline("x", "a"))
	assert.True(t, c.Decline("b", "a"))

	c.Offer("a", "b")
	callee, ok := c.Withdraw("a")
	assert.True(t, ok)
	assert.Equal(t, core.ConnID("b"), callee)
	_, ok = c.Withdraw("a")
	assert.False(t, ok)
}

func TestCalls_Drop(t *testing.T) {
	c := NewCalls()
	c.Offer("a", "b")
	c.Answer("b", "a")
	c.Offer("c", "a")
	c.Offer("a", "d")

	orphans := c.Drop("a")
	assert.ElementsMatch(t, []Orphan{
		{To: "b", Type: core.WireHangup},
		{To: "d", Type: core.WireCancel},
		{To: "c", Type: core.WireReject, Reason: core.ReasonOffline},
	}, orphans)

	_, ok := c.Peer("b")
	assert.False(t, ok)
	assert.Empty(t, c.Drop("a"))
}
