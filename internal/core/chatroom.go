package core

import (
	"context"
	"encoding/xml"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"mellium.im/xmpp/jid"

	"github.com/volklabs/focus/internal/avmod"
	"github.com/volklabs/focus/internal/domain"
	"github.com/volklabs/focus/internal/event"
)

// State is the room lifecycle state. StateLeft is terminal for the
// instance; a rejoin goes through Join, which resets all mutable state
// first.
type State int

const (
	StateUnjoined State = iota
	StateJoining
	StateJoined
	StateLeft
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateLeft:
		return "left"
	default:
		return "unjoined"
	}
}

// ChatRoom is the presence state machine for one conference channel.
// It owns the member registry and the moderation policies, classifies
// every inbound presence, and emits domain events to its listeners.
//
// Two independent lock domains exist: the registry guards membership
// and the sender counters, presMu guards the last-sent presence
// payload. They are never held together.
type ChatRoom struct {
	tr        Transport
	room      jid.JID
	nick      string
	onRemoved func()

	registry *MemberRegistry
	policies *avmod.PolicySet
	emitter  *event.Emitter[RoomListener]

	mu                sync.Mutex
	state             State
	myOccupant        jid.JID
	myRole            domain.Role
	myAffiliation     domain.Affiliation
	meetingID         string
	isBreakout        bool
	mainRoom          string
	removeInterceptor func()
	unsubscribe       func()
	removedNotified   bool

	presMu       sync.Mutex
	lastPresence *OutgoingPresence
}

// NewChatRoom creates an unjoined room bound to the transport. The
// onRemoved callback is invoked synchronously, exactly once, when the
// room leaves, so the owner stops tracking it immediately.
func NewChatRoom(tr Transport, room jid.JID, nick string, onRemoved func()) *ChatRoom {
	r := &ChatRoom{
		tr:        tr,
		room:      room,
		nick:      nick,
		onRemoved: onRemoved,
		registry:  NewMemberRegistry(),
		emitter:   event.New[RoomListener](),
	}
	r.policies = avmod.NewPolicySet(func(media domain.MediaType, enabled bool, allowList []string) {
		r.emitter.Fire(func(l RoomListener) { l.AvModerationChanged(media, enabled, allowList) })
	})
	return r
}

// AddListener registers l for the room's domain events.
func (r *ChatRoom) AddListener(l RoomListener) { r.emitter.Add(l) }

// RemoveListener unregisters l.
func (r *ChatRoom) RemoveListener(l RoomListener) { r.emitter.Remove(l) }

// Join joins the room and blocks for the network round-trips: the join
// presence, the configuration read, and the unconditional non-anonymous
// visibility update. Connectivity failures propagate to the caller.
//
// A stale joined session is left first, and all mutable state is reset,
// so Join also serves rejoin.
func (r *ChatRoom) Join(ctx context.Context) error {
	occupant, err := r.room.WithResource(r.nick)
	if err != nil {
		return fmt.Errorf("occupant address for nickname %q: %w", r.nick, err)
	}

	r.mu.Lock()
	stale := r.state == StateJoining || r.state == StateJoined
	r.mu.Unlock()
	if stale {
		log.Info().Str("module", "core.room").Str("room", r.room.String()).Msg("leaving stale session before join")
		r.Leave()
	}
	r.reset()

	r.mu.Lock()
	r.state = StateJoining
	r.myOccupant = occupant
	// The interceptor outlives the join call: the marker must never
	// ride on any presence after the first.
	r.removeInterceptor = r.tr.AddPresenceInterceptor(stripJoinMarker)
	r.unsubscribe = r.tr.Subscribe(r)
	r.mu.Unlock()

	if err := r.tr.JoinRoom(ctx, occupant); err != nil {
		r.abortJoin()
		return fmt.Errorf("join %s: %w", r.room.String(), err)
	}
	if err := r.readAndConfigureRoom(ctx); err != nil {
		r.abortJoin()
		return err
	}

	r.presMu.Lock()
	r.lastPresence = &OutgoingPresence{}
	r.presMu.Unlock()

	r.mu.Lock()
	r.state = StateJoined
	meetingID := r.meetingID
	r.mu.Unlock()

	log.Info().Str("module", "core.room").
		Str("room", r.room.String()).
		Str("occupant", occupant.String()).
		Str("meeting_id", meetingID).
		Msg("joined")
	return nil
}

// Leave tears down listeners and interceptors synchronously, notifies
// the owner synchronously, and performs the network leave on a
// background goroutine whose outcome is consumed only for logging.
// Safe to invoke twice; the second call is a no-op.
func (r *ChatRoom) Leave() {
	r.mu.Lock()
	if r.state == StateLeft {
		r.mu.Unlock()
		log.Debug().Str("module", "core.room").Str("room", r.room.String()).Msg("leave on already-left room")
		return
	}
	joined := r.state == StateJoining || r.state == StateJoined
	r.state = StateLeft
	occupant := r.myOccupant
	removeInterceptor := r.removeInterceptor
	unsubscribe := r.unsubscribe
	r.removeInterceptor = nil
	r.unsubscribe = nil
	notifyRemoved := !r.removedNotified
	r.removedNotified = true
	r.mu.Unlock()

	if removeInterceptor != nil {
		removeInterceptor()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	r.emitter.RemoveAll()
	if notifyRemoved && r.onRemoved != nil {
		r.onRemoved()
	}
	if !joined {
		return
	}

	go func() {
		err := r.tr.LeaveRoom(context.Background(), occupant)
		switch {
		case err == nil:
		case !r.tr.Connected():
			// Expected: a disconnect forces the leave anyway.
			log.Debug().Str("module", "core.room").Str("room", r.room.String()).Err(err).Msg("leave after disconnect")
		default:
			log.Warn().Str("module", "core.room").Str("room", r.room.String()).Err(err).Msg("network leave failed")
		}
	}()
}

// reset clears every mutable field so the instance behaves like a fresh
// state machine. Locks are taken one domain at a time.
func (r *ChatRoom) reset() {
	r.registry.Clear()
	r.policies.ResetAll()

	r.presMu.Lock()
	r.lastPresence = nil
	r.presMu.Unlock()

	r.mu.Lock()
	r.state = StateUnjoined
	r.myOccupant = jid.JID{}
	r.myRole = domain.RoleNone
	r.myAffiliation = domain.AffiliationNone
	r.meetingID = ""
	r.isBreakout = false
	r.mainRoom = ""
	r.removedNotified = false
	r.mu.Unlock()
}

func (r *ChatRoom) abortJoin() {
	r.mu.Lock()
	r.state = StateUnjoined
	removeInterceptor := r.removeInterceptor
	unsubscribe := r.unsubscribe
	r.removeInterceptor = nil
	r.unsubscribe = nil
	r.mu.Unlock()
	if removeInterceptor != nil {
		removeInterceptor()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
}

// readAndConfigureRoom reads the lifecycle metadata from the room
// configuration form and forces non-anonymous occupant visibility. The
// visibility update is authoritative and applied unconditionally.
func (r *ChatRoom) readAndConfigureRoom(ctx context.Context) error {
	form, err := r.tr.RoomConfig(ctx)
	if err != nil {
		return fmt.Errorf("read config of %s: %w", r.room.String(), err)
	}

	meetingID, _ := form.GetString(ConfigMeetingID)
	if meetingID != "" {
		if _, err := uuid.Parse(meetingID); err != nil {
			log.Warn().Str("module", "core.room").Str("meeting_id", meetingID).Msg("meeting id is not a valid uuid")
		}
	}
	isBreakout, _ := form.GetBool(ConfigIsBreakout)
	mainRoom, _ := form.GetString(ConfigMainRoom)

	r.mu.Lock()
	r.meetingID = meetingID
	r.isBreakout = isBreakout
	r.mainRoom = mainRoom
	r.mu.Unlock()

	if err := form.Set(ConfigWhois, WhoisAnyone); err != nil {
		return fmt.Errorf("set whois on %s: %w", r.room.String(), err)
	}
	if err := r.tr.SubmitRoomConfig(ctx, form); err != nil {
		return fmt.Errorf("submit config of %s: %w", r.room.String(), err)
	}
	return nil
}

func stripJoinMarker(p *OutgoingPresence) {
	kept := p.Extensions[:0:0]
	for _, e := range p.Extensions {
		if e.Name != JoinMarkerName {
			kept = append(kept, e)
		}
	}
	p.Extensions = kept
}

// HandlePresence classifies one inbound presence and mutates membership
// accordingly. The transport delivers presence for one room in order;
// this method relies on that and never reorders.
func (r *ChatRoom) HandlePresence(p Presence) {
	r.mu.Lock()
	me := r.myOccupant
	r.mu.Unlock()

	if me.String() == "" {
		// Processing presence before join established our own address
		// is a programming error upstream; classify best effort.
		log.Error().Str("module", "core.room").Str("from", p.From.String()).Msg("presence before own occupant address is known")
	} else if p.From.Equal(me) {
		r.handleOwnPresence(p)
		return
	}
	r.handleMemberPresence(p)
}

// handleOwnPresence inspects the local occupant's own presence. An
// unavailable presence with both affiliation and role "none" is the
// channel's signal that it no longer recognizes us: leave
// unconditionally, destroy reason or not.
func (r *ChatRoom) handleOwnPresence(p Presence) {
	if !p.Available && p.Affiliation == domain.AffiliationNone && p.Role == domain.RoleNone {
		log.Info().Str("module", "core.room").
			Str("room", r.room.String()).
			Str("reason", p.DestroyReason).
			Msg("own presence marks us gone, leaving")
		r.Leave()
		return
	}

	role := p.Role
	r.mu.Lock()
	r.myRole = role
	r.myAffiliation = p.Affiliation
	r.mu.Unlock()
	r.emitter.Fire(func(l RoomListener) { l.LocalRoleChanged(role) })
}

// handleMemberPresence materializes, updates, or removes a member based
// on one presence event. Exactly one domain event is emitted per call.
func (r *ChatRoom) handleMemberPresence(p Presence) {
	occupant := p.From
	if occupant.String() == "" || occupant.Resourcepart() == "" {
		log.Warn().Str("module", "core.room").Str("from", occupant.String()).Msg("dropping presence without occupant address")
		return
	}

	if _, exists := r.registry.Get(occupant); !exists {
		if !p.Available {
			// Removal notification for an address we never knew.
			log.Warn().Str("module", "core.room").Str("occupant", occupant.String()).Msg("unavailable presence for unknown member")
			return
		}
		// First available presence is the canonical new-member signal.
		m := domain.NewMember(occupant)
		applyPresence(m, p)
		if !r.registry.Add(m) {
			log.Warn().Str("module", "core.room").Str("occupant", occupant.String()).Msg("member materialized concurrently")
		}
		joined, _ := r.registry.Get(occupant)
		r.emitter.Fire(func(l RoomListener) { l.MemberJoined(joined) })
		return
	}

	leaving := !p.Available
	updated, ok := r.registry.Update(occupant, func(m *domain.Member) { applyPresence(m, p) })
	if !ok {
		log.Warn().Str("module", "core.room").Str("occupant", occupant.String()).Msg("member vanished during presence update")
		return
	}
	if leaving {
		// Unavailable presence is authoritative for removal even if
		// the transport's own left notification never arrives, or
		// arrives again later.
		r.removeMember(occupant)
		return
	}
	r.emitter.Fire(func(l RoomListener) { l.MemberPresenceChanged(updated) })
}

// removeMember is the single removal path for presence-detected and
// explicit leave notifications alike. Idempotent: a second attempt for
// an absent address logs and removes nothing.
func (r *ChatRoom) removeMember(occupant jid.JID) {
	removed, ok := r.registry.Remove(occupant)
	if !ok {
		log.Debug().Str("module", "core.room").Str("occupant", occupant.String()).Msg("member already removed")
		return
	}
	r.emitter.Fire(func(l RoomListener) { l.MemberLeft(removed) })
}

func applyPresence(m *domain.Member, p Presence) {
	m.Role = p.Role
	m.Affiliation = p.Affiliation
	if p.AudioMuted != nil {
		m.AudioMuted = *p.AudioMuted
	}
	if p.VideoMuted != nil {
		m.VideoMuted = *p.VideoMuted
	}
	if p.RealJID.String() != "" {
		m.RealJID = p.RealJID
	}
}

// HandleParticipantJoined is ignored: the transport's membership
// callback is not ordered against presence delivery and would
// materialize an incomplete member. Presence is authoritative.
func (r *ChatRoom) HandleParticipantJoined(occupant jid.JID) {
	log.Debug().Str("module", "core.room").Str("occupant", occupant.String()).Msg("ignoring transport joined callback")
}

// HandleParticipantLeft is ignored for the same reason; removal is
// driven by unavailable presence through the same path.
func (r *ChatRoom) HandleParticipantLeft(occupant jid.JID) {
	log.Debug().Str("module", "core.room").Str("occupant", occupant.String()).Msg("ignoring transport left callback")
}

// HandleRoomDestroyed leaves the room; the service will not talk to us
// again on this channel.
func (r *ChatRoom) HandleRoomDestroyed(reason string) {
	log.Info().Str("module", "core.room").Str("room", r.room.String()).Str("reason", reason).Msg("room destroyed")
	r.Leave()
}

// mutateLastPresence applies one add/remove to the last successfully
// sent presence payload and resends it only when the content actually
// changed. Before any presence has been sent the operation logs an
// error and sends nothing. Delivery failures are logged, not surfaced.
func (r *ChatRoom) mutateLastPresence(apply func([]Extension) ([]Extension, bool)) {
	r.presMu.Lock()
	defer r.presMu.Unlock()
	if r.lastPresence == nil {
		log.Error().Str("module", "core.room").Str("room", r.room.String()).Msg("presence mutation before initial presence was sent")
		return
	}
	next, changed := apply(r.lastPresence.Copy().Extensions)
	if !changed {
		return
	}
	updated := OutgoingPresence{Extensions: next}
	if err := r.tr.SendPresence(updated); err != nil {
		log.Warn().Str("module", "core.room").Str("room", r.room.String()).Err(err).Msg("presence update not delivered")
		return
	}
	r.lastPresence = &updated
}

// SetExtension replaces any extension with the same element name, or
// appends when absent.
func (r *ChatRoom) SetExtension(ext Extension) {
	r.mutateLastPresence(func(exts []Extension) ([]Extension, bool) {
		return setExtension(exts, ext)
	})
}

// AddExtensionIfMissing appends ext only when no extension with the
// same element name is present.
func (r *ChatRoom) AddExtensionIfMissing(ext Extension) {
	r.mutateLastPresence(func(exts []Extension) ([]Extension, bool) {
		for _, e := range exts {
			if e.Name == ext.Name {
				return exts, false
			}
		}
		return append(exts, ext), true
	})
}

// RemoveExtension removes every extension with the element name.
func (r *ChatRoom) RemoveExtension(name xml.Name) {
	r.mutateLastPresence(func(exts []Extension) ([]Extension, bool) {
		kept := exts[:0:0]
		for _, e := range exts {
			if e.Name != name {
				kept = append(kept, e)
			}
		}
		return kept, len(kept) != len(exts)
	})
}

// AddExtensions applies SetExtension semantics for every extension and
// sends at most one presence update.
func (r *ChatRoom) AddExtensions(exts ...Extension) {
	r.mutateLastPresence(func(current []Extension) ([]Extension, bool) {
		anyChanged := false
		for _, ext := range exts {
			var changed bool
			current, changed = setExtension(current, ext)
			anyChanged = anyChanged || changed
		}
		return current, anyChanged
	})
}

func setExtension(exts []Extension, ext Extension) ([]Extension, bool) {
	for i, e := range exts {
		if e.Name == ext.Name {
			if e.Equal(ext) {
				return exts, false
			}
			exts[i] = ext
			return exts, true
		}
	}
	return append(exts, ext), true
}

// GrantOwnership grants the owner affiliation to the member's real
// address. When the real address is unknown the grant is skipped with a
// warning rather than attempted; transport failures propagate.
func (r *ChatRoom) GrantOwnership(ctx context.Context, occupant jid.JID) error {
	member, ok := r.registry.Get(occupant)
	if !ok {
		log.Warn().Str("module", "core.room").Str("occupant", occupant.String()).Msg("ownership grant for unknown member skipped")
		return nil
	}
	if !member.HasRealJID() {
		log.Warn().Str("module", "core.room").Str("occupant", occupant.String()).Msg("ownership grant skipped, real address unknown")
		return nil
	}
	if err := r.tr.GrantOwner(ctx, member.RealJID.Bare()); err != nil {
		return fmt.Errorf("grant owner to %s: %w", member.RealJID.Bare().String(), err)
	}
	return nil
}

// SendMessage posts a group chat message to the room.
func (r *ChatRoom) SendMessage(body string) error {
	return r.tr.SendMessage(body)
}

// Destroy asks the service to destroy the room.
func (r *ChatRoom) Destroy(ctx context.Context, reason string) error {
	return r.tr.DestroyRoom(ctx, reason)
}

// SetAvModerationEnabled flips moderation for the media type.
func (r *ChatRoom) SetAvModerationEnabled(media domain.MediaType, enabled bool) {
	if p := r.policies.ForMedia(media); p != nil {
		p.SetEnabled(enabled)
	}
}

// SetAvModerationAllowList replaces the allow-list for the media type.
func (r *ChatRoom) SetAvModerationAllowList(media domain.MediaType, identities []string) {
	if p := r.policies.ForMedia(media); p != nil {
		p.SetAllowList(identities)
	}
}

// MayUnmute reports whether the identity may unmute the media type.
// Unmoderated media types always permit unmute.
func (r *ChatRoom) MayUnmute(media domain.MediaType, identity string) bool {
	p := r.policies.ForMedia(media)
	return p == nil || p.MayUnmute(identity)
}

// State returns the current lifecycle state.
func (r *ChatRoom) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// RoomJID returns the room's bare address.
func (r *ChatRoom) RoomJID() jid.JID { return r.room }

// MyOccupant returns the local occupant's full address, zero before
// join.
func (r *ChatRoom) MyOccupant() jid.JID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.myOccupant
}

// LocalRole returns the local occupant's last known role.
func (r *ChatRoom) LocalRole() domain.Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.myRole
}

// IsOwner reports whether the local occupant holds the owner
// affiliation.
func (r *ChatRoom) IsOwner() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.myAffiliation == domain.AffiliationOwner
}

// MeetingID returns the meeting identifier read at join time.
func (r *ChatRoom) MeetingID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meetingID
}

// IsBreakout reports whether the room is a breakout room.
func (r *ChatRoom) IsBreakout() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isBreakout
}

// MainRoom returns the parent room reference for breakout rooms.
func (r *ChatRoom) MainRoom() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mainRoom
}

// GetMember returns a snapshot of the member, if present.
func (r *ChatRoom) GetMember(occupant jid.JID) (domain.Member, bool) {
	return r.registry.Get(occupant)
}

// Members returns a snapshot of all current members.
func (r *ChatRoom) Members() []domain.Member { return r.registry.Snapshot() }

// MemberCount returns the number of current members.
func (r *ChatRoom) MemberCount() int { return r.registry.Count() }

// AudioSendersCount returns the number of members with audio unmuted.
func (r *ChatRoom) AudioSendersCount() int { return r.registry.AudioSenders() }

// VideoSendersCount returns the number of members with video unmuted.
func (r *ChatRoom) VideoSendersCount() int { return r.registry.VideoSenders() }

// DebugInfo is the observable room snapshot. Field order is the dump
// order.
type DebugInfo struct {
	Room         string                              `json:"room"`
	MyOccupant   string                              `json:"my_occupant"`
	State        string                              `json:"state"`
	Members      map[string]map[string]any           `json:"members"`
	MeetingID    string                              `json:"meeting_id"`
	IsBreakout   bool                                `json:"is_breakout"`
	MainRoom     string                              `json:"main_room"`
	AudioSenders int                                 `json:"audio_senders"`
	VideoSenders int                                 `json:"video_senders"`
	AvModeration map[domain.MediaType]map[string]any `json:"av_moderation"`
}

// Debug returns the room's observable snapshot, members keyed by
// display name.
func (r *ChatRoom) Debug() DebugInfo {
	r.mu.Lock()
	info := DebugInfo{
		Room:       r.room.String(),
		MyOccupant: r.myOccupant.String(),
		State:      r.state.String(),
		MeetingID:  r.meetingID,
		IsBreakout: r.isBreakout,
		MainRoom:   r.mainRoom,
	}
	r.mu.Unlock()

	info.Members = make(map[string]map[string]any)
	for _, m := range r.registry.Snapshot() {
		info.Members[m.Nick] = m.Debug()
	}
	info.AudioSenders = r.registry.AudioSenders()
	info.VideoSenders = r.registry.VideoSenders()
	info.AvModeration = r.policies.Snapshot()
	return info
}
