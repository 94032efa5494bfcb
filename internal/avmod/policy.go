// Package avmod implements per-media-type audio/video moderation:
// an enable flag plus an allow-list that together gate who may unmute.
package avmod

import (
	"sort"
	"sync"

	"github.com/volklabs/focus/internal/domain"
)

// ChangeFunc is notified after every policy mutation, for audit and
// observability. It must not call back into the policy.
type ChangeFunc func(media domain.MediaType, enabled bool, allowList []string)

// Policy gates unmute permission for one media type. When moderation is
// disabled, unmute is always permitted regardless of list contents.
type Policy struct {
	media    domain.MediaType
	onChange ChangeFunc

	mu      sync.Mutex
	enabled bool
	allowed map[string]struct{}
}

func NewPolicy(media domain.MediaType, onChange ChangeFunc) *Policy {
	return &Policy{
		media:    media,
		onChange: onChange,
		allowed:  make(map[string]struct{}),
	}
}

// SetEnabled flips the moderation flag and notifies. Never fails.
func (p *Policy) SetEnabled(enabled bool) {
	p.mu.Lock()
	p.enabled = enabled
	list := p.allowListLocked()
	p.mu.Unlock()
	p.notify(enabled, list)
}

// SetAllowList replaces the allow-list and notifies. Never fails.
func (p *Policy) SetAllowList(identities []string) {
	p.mu.Lock()
	p.allowed = make(map[string]struct{}, len(identities))
	for _, id := range identities {
		p.allowed[id] = struct{}{}
	}
	enabled := p.enabled
	list := p.allowListLocked()
	p.mu.Unlock()
	p.notify(enabled, list)
}

// MayUnmute reports whether the identity is permitted to unmute for
// this media type.
func (p *Policy) MayUnmute(identity string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return true
	}
	_, ok := p.allowed[identity]
	return ok
}

// Reset restores the initial disabled/empty state. Invoked on every
// fresh join; does not notify.
func (p *Policy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = false
	p.allowed = make(map[string]struct{})
}

// Snapshot returns the enabled flag and a sorted copy of the allow-list.
func (p *Policy) Snapshot() (bool, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled, p.allowListLocked()
}

func (p *Policy) allowListLocked() []string {
	list := make([]string, 0, len(p.allowed))
	for id := range p.allowed {
		list = append(list, id)
	}
	sort.Strings(list)
	return list
}

func (p *Policy) notify(enabled bool, list []string) {
	if p.onChange != nil {
		p.onChange(p.media, enabled, list)
	}
}

// PolicySet holds one Policy per moderated media type.
type PolicySet struct {
	policies map[domain.MediaType]*Policy
}

// NewPolicySet creates disabled policies for audio and video.
func NewPolicySet(onChange ChangeFunc) *PolicySet {
	set := &PolicySet{policies: make(map[domain.MediaType]*Policy)}
	for _, media := range []domain.MediaType{domain.MediaAudio, domain.MediaVideo} {
		set.policies[media] = NewPolicy(media, onChange)
	}
	return set
}

// ForMedia returns the policy for the media type, or nil when the media
// type is not moderated.
func (s *PolicySet) ForMedia(media domain.MediaType) *Policy {
	return s.policies[media]
}

// ResetAll restores every policy to disabled/empty.
func (s *PolicySet) ResetAll() {
	for _, p := range s.policies {
		p.Reset()
	}
}

// Snapshot returns per-media-type moderation snapshots for the debug
// dump.
func (s *PolicySet) Snapshot() map[domain.MediaType]map[string]any {
	out := make(map[domain.MediaType]map[string]any, len(s.policies))
	for media, p := range s.policies {
		enabled, list := p.Snapshot()
		out[media] = map[string]any{"enabled": enabled, "allow_list": list}
	}
	return out
}
