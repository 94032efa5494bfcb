// Package xmppmuc carries room stanzas over a mellium XMPP session.
// It is the transport collaborator behind the room state machine: it
// encodes outgoing presence and IQs and delivers decoded room events.
package xmppmuc

import (
	"context"
	"encoding/xml"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"mellium.im/xmlstream"
	"mellium.im/xmpp"
	"mellium.im/xmpp/form"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/mux"
	"mellium.im/xmpp/stanza"

	"github.com/volklabs/focus/internal/core"
	"github.com/volklabs/focus/internal/domain"
)

const (
	nsMUC   = `http://jabber.org/protocol/muc`
	nsUser  = `http://jabber.org/protocol/muc#user`
	nsOwner = `http://jabber.org/protocol/muc#owner`
	nsAdmin = `http://jabber.org/protocol/muc#admin`

	nsAudioMuted = `http://jitsi.org/jitmeet/audio`
	nsVideoMuted = `http://jitsi.org/jitmeet/video`
)

var errNotJoined = errors.New("xmppmuc: no occupant joined")

// Transport implements core.Transport for one room over an
// *xmpp.Session.
type Transport struct {
	session *xmpp.Session
	room    jid.JID
	timeout time.Duration

	mu           sync.Mutex
	occupant     jid.JID
	nextID       int
	interceptors map[int]core.PresenceInterceptor
	handlers     map[int]core.RoomEventHandler
}

// New binds the session to the bare room address. The timeout bounds
// fire-and-forget writes; blocking calls take their deadline from the
// caller's context.
func New(session *xmpp.Session, room jid.JID, timeout time.Duration) *Transport {
	return &Transport{
		session:      session,
		room:         room.Bare(),
		timeout:      timeout,
		interceptors: make(map[int]core.PresenceInterceptor),
		handlers:     make(map[int]core.RoomEventHandler),
	}
}

// Option registers the inbound presence handlers with a stanza
// multiplexer serving the session.
func (t *Transport) Option() mux.Option {
	userPresence := xml.Name{Space: nsUser, Local: "x"}
	return func(m *mux.ServeMux) {
		mux.Presence(stanza.AvailablePresence, userPresence, t)(m)
		mux.Presence(stanza.UnavailablePresence, userPresence, t)(m)
	}
}

// Connected reports whether the stream is up and neither direction has
// been closed.
func (t *Transport) Connected() bool {
	state := t.session.State()
	if state&xmpp.Ready != xmpp.Ready {
		return false
	}
	return state&(xmpp.InputStreamClosed|xmpp.OutputStreamClosed) == 0
}

// JoinRoom sends the initial presence carrying the join marker element.
// Only this path carries the marker; SendPresence runs the registered
// interceptors, which strip it.
func (t *Transport) JoinRoom(ctx context.Context, occupant jid.JID) error {
	t.mu.Lock()
	t.occupant = occupant
	t.mu.Unlock()

	p := stanza.Presence{To: occupant}
	payload := xmlstream.Wrap(nil, xml.StartElement{Name: xml.Name{Space: nsMUC, Local: "x"}})
	return t.session.Send(ctx, p.Wrap(payload))
}

// LeaveRoom sends unavailable presence for the occupant.
func (t *Transport) LeaveRoom(ctx context.Context, occupant jid.JID) error {
	p := stanza.Presence{To: occupant, Type: stanza.UnavailablePresence}
	return t.session.Send(ctx, p.Wrap(nil))
}

// SendPresence encodes the extension payload after running it through
// the registered interceptors.
func (t *Transport) SendPresence(op core.OutgoingPresence) error {
	t.mu.Lock()
	occupant := t.occupant
	interceptors := make([]core.PresenceInterceptor, 0, len(t.interceptors))
	for _, i := range t.interceptors {
		interceptors = append(interceptors, i)
	}
	t.mu.Unlock()
	if occupant.String() == "" {
		return errNotJoined
	}

	op = op.Copy()
	for _, intercept := range interceptors {
		intercept(&op)
	}

	readers := make([]xml.TokenReader, 0, len(op.Extensions))
	for _, ext := range op.Extensions {
		var inner xml.TokenReader
		if ext.Text != "" {
			inner = xmlstream.Token(xml.CharData(ext.Text))
		}
		readers = append(readers, xmlstream.Wrap(inner, xml.StartElement{Name: ext.Name, Attr: ext.Attrs}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	p := stanza.Presence{To: occupant}
	return t.session.Send(ctx, p.Wrap(xmlstream.MultiReader(readers...)))
}

// SendMessage posts a groupchat message to the room.
func (t *Transport) SendMessage(body string) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	msg := stanza.Message{To: t.room, Type: stanza.GroupChatMessage}
	payload := xmlstream.Wrap(
		xmlstream.Token(xml.CharData(body)),
		xml.StartElement{Name: xml.Name{Local: "body"}},
	)
	return t.session.Send(ctx, msg.Wrap(payload))
}

// configForm adapts the data form to the core's read-mostly view.
type configForm struct {
	data *form.Data
}

func (f *configForm) GetString(field string) (string, bool) {
	return f.data.GetString(field)
}

func (f *configForm) GetBool(field string) (bool, bool) {
	return f.data.GetBool(field)
}

func (f *configForm) Set(field, value string) error {
	_, err := f.data.Set(field, value)
	return err
}

// RoomConfig fetches the room configuration form from the owner
// namespace.
func (t *Transport) RoomConfig(ctx context.Context) (core.ConfigForm, error) {
	formResp := struct {
		XMLName  xml.Name  `xml:"http://jabber.org/protocol/muc#owner query"`
		DataForm form.Data `xml:"jabber:x:data x"`
	}{}
	err := t.session.UnmarshalIQElement(ctx, xmlstream.Wrap(
		nil,
		xml.StartElement{Name: xml.Name{Space: nsOwner, Local: "query"}},
	), stanza.IQ{To: t.room, Type: stanza.GetIQ}, &formResp)
	if err != nil {
		return nil, err
	}
	return &configForm{data: &formResp.DataForm}, nil
}

// SubmitRoomConfig submits the (possibly modified) configuration form.
func (t *Transport) SubmitRoomConfig(ctx context.Context, f core.ConfigForm) error {
	cf, ok := f.(*configForm)
	if !ok {
		return errors.New("xmppmuc: config form not produced by this transport")
	}
	submission, ok := cf.data.Submit()
	if !ok {
		return errors.New("xmppmuc: config form missing required fields")
	}
	resp, err := t.session.SendIQElement(ctx, xmlstream.Wrap(
		submission,
		xml.StartElement{Name: xml.Name{Space: nsOwner, Local: "query"}},
	), stanza.IQ{To: t.room, Type: stanza.SetIQ})
	if err != nil {
		return err
	}
	return resp.Close()
}

// GrantOwner sends the administrative affiliation grant for the target
// address.
func (t *Transport) GrantOwner(ctx context.Context, target jid.JID) error {
	item := xmlstream.Wrap(nil, xml.StartElement{
		Name: xml.Name{Local: "item"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "affiliation"}, Value: "owner"},
			{Name: xml.Name{Local: "jid"}, Value: target.String()},
		},
	})
	resp, err := t.session.SendIQElement(ctx, xmlstream.Wrap(
		item,
		xml.StartElement{Name: xml.Name{Space: nsAdmin, Local: "query"}},
	), stanza.IQ{To: t.room, Type: stanza.SetIQ})
	if err != nil {
		return err
	}
	return resp.Close()
}

// DestroyRoom asks the service to destroy the room.
func (t *Transport) DestroyRoom(ctx context.Context, reason string) error {
	var inner xml.TokenReader
	if reason != "" {
		inner = xmlstream.Wrap(
			xmlstream.Token(xml.CharData(reason)),
			xml.StartElement{Name: xml.Name{Local: "reason"}},
		)
	}
	destroy := xmlstream.Wrap(inner, xml.StartElement{Name: xml.Name{Local: "destroy"}})
	resp, err := t.session.SendIQElement(ctx, xmlstream.Wrap(
		destroy,
		xml.StartElement{Name: xml.Name{Space: nsOwner, Local: "query"}},
	), stanza.IQ{To: t.room, Type: stanza.SetIQ})
	if err != nil {
		return err
	}
	return resp.Close()
}

// AddPresenceInterceptor registers i for outgoing presence and returns
// its removal func.
func (t *Transport) AddPresenceInterceptor(i core.PresenceInterceptor) (remove func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.interceptors[id] = i
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.interceptors, id)
	}
}

// Subscribe registers h for decoded room events and returns its
// removal func.
func (t *Transport) Subscribe(h core.RoomEventHandler) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.handlers[id] = h
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.handlers, id)
	}
}

// mucPresence is the decode shape for inbound room presence.
type mucPresence struct {
	stanza.Presence
	X struct {
		XMLName xml.Name `xml:"http://jabber.org/protocol/muc#user x"`
		Item    struct {
			Affiliation string `xml:"affiliation,attr"`
			Role        string `xml:"role,attr"`
			JID         string `xml:"jid,attr"`
		} `xml:"item"`
		Status []struct {
			Code int `xml:"code,attr"`
		} `xml:"status"`
		Destroy *struct {
			Reason string `xml:"reason"`
		} `xml:"destroy"`
	} `xml:"http://jabber.org/protocol/muc#user x"`
	AudioMuted *bool `xml:"http://jitsi.org/jitmeet/audio audiomuted"`
	VideoMuted *bool `xml:"http://jitsi.org/jitmeet/video videomuted"`
}

// HandlePresence satisfies mux.PresenceHandler. It decodes the stanza
// and fans the event out to the subscribed handlers in delivery order.
func (t *Transport) HandlePresence(p stanza.Presence, r xmlstream.TokenReadEncoder) error {
	if !p.From.Bare().Equal(t.room) {
		return nil
	}

	d := xml.NewTokenDecoder(r)
	var decoded mucPresence
	if err := d.Decode(&decoded); err != nil {
		log.Warn().Str("module", "xmppmuc").Str("from", p.From.String()).Err(err).Msg("undecodable room presence")
		return nil
	}

	ev := core.Presence{
		From:        p.From,
		Available:   p.Type != stanza.UnavailablePresence,
		Affiliation: domain.AffiliationFromString(decoded.X.Item.Affiliation),
		Role:        domain.RoleFromString(decoded.X.Item.Role),
		AudioMuted:  decoded.AudioMuted,
		VideoMuted:  decoded.VideoMuted,
	}
	if decoded.X.Item.JID != "" {
		if real, err := jid.Parse(decoded.X.Item.JID); err == nil {
			ev.RealJID = real
		}
	}
	for _, s := range decoded.X.Status {
		ev.StatusCodes = append(ev.StatusCodes, s.Code)
	}
	if decoded.X.Destroy != nil {
		ev.Destroyed = true
		ev.DestroyReason = decoded.X.Destroy.Reason
	}

	for _, h := range t.snapshotHandlers() {
		h.HandlePresence(ev)
		// The coarse joined/left callbacks are delivered as well; the
		// state machine treats presence alone as authoritative.
		switch {
		case ev.Destroyed:
			h.HandleRoomDestroyed(ev.DestroyReason)
		case ev.Available:
			h.HandleParticipantJoined(ev.From)
		default:
			h.HandleParticipantLeft(ev.From)
		}
	}
	return nil
}

func (t *Transport) snapshotHandlers() []core.RoomEventHandler {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]core.RoomEventHandler, 0, len(t.handlers))
	for _, h := range t.handlers {
		out = append(out, h)
	}
	return out
}
