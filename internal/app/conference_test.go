package app

import (
	"testing"

	"github.com/stretchr/testify/require"
	"mellium.im/xmpp/jid"

	"github.com/volklabs/focus/internal/domain"
	"github.com/volklabs/focus/internal/sources"
)

func setOf(t *testing.T, media domain.MediaType, srcs ...sources.Source) *sources.Set {
	t.Helper()
	set := sources.NewSet()
	for _, s := range srcs {
		set.Add(media, s)
	}
	return set
}

func ssrcs(seq []sources.Source) []uint32 {
	out := make([]uint32, 0, len(seq))
	for _, s := range seq {
		out = append(out, s.SSRC)
	}
	return out
}

func TestConferenceSources_AddAccumulatesAcrossRenegotiations(t *testing.T) {
	c := NewConferenceSources()
	alice := jid.MustParse("room@muc.example/alice")

	c.AddSources(alice, setOf(t, domain.MediaAudio, sources.Source{SSRC: 1, CName: "a"}))
	c.AddSources(alice, setOf(t, domain.MediaVideo, sources.Source{SSRC: 2, CName: "v"}))
	// Renegotiation of SSRC 1 replaces the earlier advertisement.
	c.AddSources(alice, setOf(t, domain.MediaAudio, sources.Source{SSRC: 1, CName: "a2"}))

	snap := c.OwnerSources(alice)
	audio := snap.ForMedia(domain.MediaAudio)
	require.Len(t, audio, 1)
	require.Equal(t, "a2", audio[0].CName)
	require.Equal(t, []uint32{2}, ssrcs(snap.ForMedia(domain.MediaVideo)))
}

func TestConferenceSources_RemoveReturnsGroundTruth(t *testing.T) {
	c := NewConferenceSources()
	alice := jid.MustParse("room@muc.example/alice")

	c.AddSources(alice, setOf(t, domain.MediaAudio,
		sources.Source{SSRC: 1, CName: "a"},
		sources.Source{SSRC: 2, CName: "b"},
	))

	// Request removal of one present source and one that never existed.
	requested := setOf(t, domain.MediaAudio,
		sources.Source{SSRC: 2, CName: "b"},
		sources.Source{SSRC: 99, CName: "ghost"},
	)
	removed := c.RemoveSources(alice, requested)

	require.Equal(t, []uint32{2}, ssrcs(removed.ForMedia(domain.MediaAudio)))
	require.Equal(t, []uint32{1}, ssrcs(c.OwnerSources(alice).ForMedia(domain.MediaAudio)))
}

func TestConferenceSources_RemoveUnknownOwnerIsEmpty(t *testing.T) {
	c := NewConferenceSources()

	removed := c.RemoveSources(jid.MustParse("room@muc.example/ghost"),
		setOf(t, domain.MediaAudio, sources.Source{SSRC: 1}))

	require.True(t, removed.IsEmpty())
}

func TestConferenceSources_RemovingLastSourceDropsOwner(t *testing.T) {
	c := NewConferenceSources()
	alice := jid.MustParse("room@muc.example/alice")
	c.AddSources(alice, setOf(t, domain.MediaAudio, sources.Source{SSRC: 1, CName: "a"}))

	c.RemoveSources(alice, setOf(t, domain.MediaAudio, sources.Source{SSRC: 1, CName: "a"}))

	require.True(t, c.OwnerSources(alice).IsEmpty())
}

func TestConferenceSources_MemberLeftDropsEverything(t *testing.T) {
	c := NewConferenceSources()
	alice := jid.MustParse("room@muc.example/alice")
	bob := jid.MustParse("room@muc.example/bob")
	c.AddSources(alice, setOf(t, domain.MediaVideo, sources.Source{SSRC: 10, CName: "cam"}))
	c.AddSources(bob, setOf(t, domain.MediaVideo, sources.Source{SSRC: 20, CName: "cam"}))

	m := domain.NewMember(alice)
	c.MemberLeft(*m)

	require.True(t, c.OwnerSources(alice).IsEmpty())
	require.Equal(t, []uint32{20}, ssrcs(c.OwnerSources(bob).ForMedia(domain.MediaVideo)))
}

func TestConferenceSources_SnapshotIsACopy(t *testing.T) {
	c := NewConferenceSources()
	alice := jid.MustParse("room@muc.example/alice")
	c.AddSources(alice, setOf(t, domain.MediaAudio, sources.Source{SSRC: 1, CName: "a"}))

	snap := c.OwnerSources(alice)
	snap.Add(domain.MediaAudio, sources.Source{SSRC: 2, CName: "b"})

	require.Len(t, c.OwnerSources(alice).ForMedia(domain.MediaAudio), 1)
}
