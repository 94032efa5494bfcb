package core

import (
	"context"
	"encoding/xml"

	"mellium.im/xmpp/jid"

	"github.com/volklabs/focus/internal/domain"
)

// Recognized fields of the room configuration form.
const (
	ConfigMeetingID  = "muc#roominfo_meetingId"
	ConfigIsBreakout = "muc#roominfo_isbreakout"
	ConfigMainRoom   = "muc#roominfo_breakout_main_room"
	ConfigWhois      = "muc#roomconfig_whois"
)

// WhoisAnyone makes every occupant's real address visible to everyone.
// It is submitted unconditionally on every join so that participants can
// resolve each other's non-anonymized identities.
const WhoisAnyone = "anyone"

// Presence is one decoded inbound presence event, delivered by the
// transport in per-room order.
type Presence struct {
	From        jid.JID
	Available   bool
	Affiliation domain.Affiliation
	Role        domain.Role
	// RealJID is the non-anonymized address from the muc#user item,
	// zero when the room is anonymous to us.
	RealJID jid.JID
	// AudioMuted and VideoMuted are nil when the presence carries no
	// mute extension for that media type.
	AudioMuted *bool
	VideoMuted *bool
	// StatusCodes are the muc#user status codes attached, if any.
	StatusCodes []int
	// Destroyed marks a room-destroyed notification; DestroyReason may
	// be empty even then.
	Destroyed     bool
	DestroyReason string
}

// Extension is one presence extension element carried on our outgoing
// presence.
type Extension struct {
	Name  xml.Name
	Attrs []xml.Attr
	Text  string
}

// Equal compares name, attributes and text content.
func (e Extension) Equal(o Extension) bool {
	if e.Name != o.Name || e.Text != o.Text || len(e.Attrs) != len(o.Attrs) {
		return false
	}
	for i := range e.Attrs {
		if e.Attrs[i] != o.Attrs[i] {
			return false
		}
	}
	return true
}

// OutgoingPresence is the full extension payload of one outgoing
// presence stanza. The transport addresses and encodes it.
type OutgoingPresence struct {
	Extensions []Extension
}

// Copy returns an independently mutable copy.
func (p OutgoingPresence) Copy() OutgoingPresence {
	return OutgoingPresence{Extensions: append([]Extension(nil), p.Extensions...)}
}

// JoinMarkerName is the element marking an initial join presence.
// Carrying it on any stanza after the first makes the service resend
// full-room presence, so the room's interceptor always strips it.
var JoinMarkerName = xml.Name{Space: "http://jabber.org/protocol/muc", Local: "x"}

// PresenceInterceptor transforms an outgoing presence before it is
// encoded and sent.
type PresenceInterceptor func(*OutgoingPresence)

// ConfigForm is the read-only key/value room configuration form, plus
// the one mutation (Set) needed to force occupant visibility.
type ConfigForm interface {
	GetString(field string) (string, bool)
	GetBool(field string) (bool, bool)
	Set(field, value string) error
}

// RoomEventHandler receives decoded room events from the transport.
type RoomEventHandler interface {
	HandlePresence(p Presence)
	// HandleParticipantJoined and HandleParticipantLeft mirror the
	// transport's own membership callbacks. Their ordering relative to
	// presence delivery is not guaranteed; presence is authoritative.
	HandleParticipantJoined(occupant jid.JID)
	HandleParticipantLeft(occupant jid.JID)
	HandleRoomDestroyed(reason string)
}

// Transport is the lower-layer collaborator carrying stanzas for one
// room. Send-style methods are fire and forget; the ctx-taking methods
// block for a response and fail on timeout or disconnect.
type Transport interface {
	// Connected reports the current connection state. Used only to
	// suppress expected-disconnect errors during leave.
	Connected() bool

	JoinRoom(ctx context.Context, occupant jid.JID) error
	LeaveRoom(ctx context.Context, occupant jid.JID) error

	SendPresence(p OutgoingPresence) error
	SendMessage(body string) error

	RoomConfig(ctx context.Context) (ConfigForm, error)
	SubmitRoomConfig(ctx context.Context, f ConfigForm) error

	GrantOwner(ctx context.Context, target jid.JID) error
	DestroyRoom(ctx context.Context, reason string) error

	AddPresenceInterceptor(i PresenceInterceptor) (remove func())
	Subscribe(h RoomEventHandler) (unsubscribe func())
}
