package domain

import "mellium.im/xmpp/jid"

// Member represents one occupant's participation meta for a room.
// The Occupant address is the member's identity and never changes for
// the member's lifetime; everything else is mutated in place as
// presence updates arrive. The registry owns the only mutable copy;
// everything outside the core package sees value snapshots.
type Member struct {
	// Occupant is the full room address (room@service/nick).
	Occupant jid.JID
	// Nick is the resourcepart of Occupant, kept for display.
	Nick string

	Role        Role
	Affiliation Affiliation

	AudioMuted bool
	VideoMuted bool

	// RealJID is the non-anonymized address, zero while unknown.
	RealJID jid.JID
}

// NewMember avoids raw literals elsewhere and keeps construction obvious.
func NewMember(occupant jid.JID) *Member {
	return &Member{
		Occupant: occupant,
		Nick:     occupant.Resourcepart(),
	}
}

// HasRealJID reports whether the non-anonymized address is known.
func (m *Member) HasRealJID() bool {
	return m.RealJID.String() != ""
}

// IsSender reports whether the member currently sends the given media
// type, i.e. is not muted for it.
func (m *Member) IsSender(media MediaType) bool {
	switch media {
	case MediaAudio:
		return !m.AudioMuted
	case MediaVideo:
		return !m.VideoMuted
	default:
		return false
	}
}

// Debug returns the member's part of the room debug dump.
func (m *Member) Debug() map[string]any {
	return map[string]any{
		"role":        m.Role.String(),
		"affiliation": m.Affiliation.String(),
		"audio_muted": m.AudioMuted,
		"video_muted": m.VideoMuted,
		"real_jid":    m.RealJID.String(),
	}
}
