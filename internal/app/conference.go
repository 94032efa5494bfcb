// Package app wires the room state machine to the source
// reconciliation engine.
package app

import (
	"sync"

	"github.com/rs/zerolog/log"
	"mellium.im/xmpp/jid"

	"github.com/volklabs/focus/internal/core"
	"github.com/volklabs/focus/internal/domain"
	"github.com/volklabs/focus/internal/sources"
)

// ConferenceSources accumulates the media sources advertised by each
// participant across renegotiations and drops them when the
// participant leaves. It implements core.RoomListener so a ChatRoom can
// drive the cleanup.
type ConferenceSources struct {
	core.NopListener

	mu      sync.Mutex
	byOwner map[string]*sources.Set
}

func NewConferenceSources() *ConferenceSources {
	return &ConferenceSources{byOwner: make(map[string]*sources.Set)}
}

// AddSources merges newly advertised sources into the owner's
// accumulated set. Later advertisements win per SSRC.
func (c *ConferenceSources) AddSources(owner jid.JID, advertised *sources.Set) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.byOwner[owner.String()]
	if !ok {
		set = sources.NewSet()
		c.byOwner[owner.String()] = set
	}
	set.Merge(advertised)
}

// RemoveSources removes the requested sources from the owner's set and
// returns the ground truth of what was actually removed, which may be
// smaller than what was requested.
func (c *ConferenceSources) RemoveSources(owner jid.JID, requested *sources.Set) *sources.Set {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.byOwner[owner.String()]
	if !ok {
		return sources.NewSet()
	}
	removed := set.Subtract(requested)
	if set.IsEmpty() {
		delete(c.byOwner, owner.String())
	}
	return removed
}

// OwnerSources returns a snapshot of the owner's accumulated sources.
func (c *ConferenceSources) OwnerSources(owner jid.JID) *sources.Set {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.byOwner[owner.String()]
	if !ok {
		return sources.NewSet()
	}
	return set.Copy()
}

// MemberLeft drops everything the departed member still advertised.
func (c *ConferenceSources) MemberLeft(m domain.Member) {
	c.mu.Lock()
	set, ok := c.byOwner[m.Occupant.String()]
	delete(c.byOwner, m.Occupant.String())
	c.mu.Unlock()
	if !ok || set.IsEmpty() {
		return
	}
	log.Info().Str("module", "app.conference").
		Str("occupant", m.Occupant.String()).
		Str("sources", set.String()).
		Msg("dropped sources of departed member")
}
