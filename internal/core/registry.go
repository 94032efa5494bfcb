package core

import (
	"sync"

	"github.com/rs/zerolog/log"
	"mellium.im/xmpp/jid"

	"github.com/volklabs/focus/internal/domain"
)

// MemberRegistry is a threadsafe set of room members keyed by occupant
// address. It owns the only mutable Member values and maintains the
// audio/video sender counters in O(1) at every transition; counters are
// never observable out of sync with membership.
type MemberRegistry struct {
	mu           sync.RWMutex
	members      map[string]*domain.Member
	audioSenders int
	videoSenders int
}

func NewMemberRegistry() *MemberRegistry {
	return &MemberRegistry{members: make(map[string]*domain.Member)}
}

// Add inserts the member and adjusts the sender counters based on the
// member's mute flags at this moment. Returns false when the occupant
// address is already present, in which case nothing changes.
func (r *MemberRegistry) Add(m *domain.Member) bool {
	key := m.Occupant.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[key]; ok {
		return false
	}
	r.members[key] = m
	r.adjustCounters(m, +1)
	log.Info().Str("module", "core.registry").Str("occupant", key).Msg("member added")
	return true
}

// Remove deletes the member and adjusts the counters, returning a copy
// of the removed member. Idempotent: removing an absent occupant
// returns ok=false and changes nothing.
func (r *MemberRegistry) Remove(occupant jid.JID) (domain.Member, bool) {
	key := occupant.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[key]
	if !ok {
		return domain.Member{}, false
	}
	delete(r.members, key)
	r.adjustCounters(m, -1)
	log.Info().Str("module", "core.registry").Str("occupant", key).Msg("member removed")
	return *m, true
}

// Get returns a snapshot copy of the member.
func (r *MemberRegistry) Get(occupant jid.JID) (domain.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[occupant.String()]
	if !ok {
		return domain.Member{}, false
	}
	return *m, true
}

// Update applies mutate to the member under the registry lock and
// reconciles the sender counters against any mute-flag change. Returns
// a snapshot of the member after mutation.
func (r *MemberRegistry) Update(occupant jid.JID, mutate func(*domain.Member)) (domain.Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[occupant.String()]
	if !ok {
		return domain.Member{}, false
	}
	wasAudio, wasVideo := !m.AudioMuted, !m.VideoMuted
	mutate(m)
	if nowAudio := !m.AudioMuted; nowAudio != wasAudio {
		if nowAudio {
			r.audioSenders++
		} else {
			r.audioSenders--
		}
	}
	if nowVideo := !m.VideoMuted; nowVideo != wasVideo {
		if nowVideo {
			r.videoSenders++
		} else {
			r.videoSenders--
		}
	}
	return *m, true
}

// Snapshot returns copies of all members. Iteration order is not
// specified.
func (r *MemberRegistry) Snapshot() []domain.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, *m)
	}
	return out
}

func (r *MemberRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// AudioSenders reports the number of members with audio unmuted.
func (r *MemberRegistry) AudioSenders() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.audioSenders
}

// VideoSenders reports the number of members with video unmuted.
func (r *MemberRegistry) VideoSenders() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.videoSenders
}

// Clear drops all members and zeroes the counters.
func (r *MemberRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = make(map[string]*domain.Member)
	r.audioSenders = 0
	r.videoSenders = 0
}

func (r *MemberRegistry) adjustCounters(m *domain.Member, delta int) {
	if !m.AudioMuted {
		r.audioSenders += delta
	}
	if !m.VideoMuted {
		r.videoSenders += delta
	}
}
