package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"mellium.im/xmpp/jid"

	"github.com/volklabs/focus/internal/domain"
)

func member(t *testing.T, nick string, audioMuted, videoMuted bool) *domain.Member {
	t.Helper()
	m := domain.NewMember(jid.MustParse("room@muc.example/" + nick))
	m.AudioMuted = audioMuted
	m.VideoMuted = videoMuted
	return m
}

// recount recomputes the sender counts from a snapshot; the registry's
// O(1) counters must always agree with it.
func requireCountersConsistent(t *testing.T, r *MemberRegistry) {
	t.Helper()
	audio, video := 0, 0
	for _, m := range r.Snapshot() {
		if !m.AudioMuted {
			audio++
		}
		if !m.VideoMuted {
			video++
		}
	}
	require.Equal(t, audio, r.AudioSenders())
	require.Equal(t, video, r.VideoSenders())
}

func TestRegistry_AddRejectsDuplicateOccupant(t *testing.T) {
	r := NewMemberRegistry()

	require.True(t, r.Add(member(t, "alice", false, false)))
	require.False(t, r.Add(member(t, "alice", true, true)))
	require.Equal(t, 1, r.Count())
	requireCountersConsistent(t, r)
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := NewMemberRegistry()
	r.Add(member(t, "alice", false, true))

	removed, ok := r.Remove(jid.MustParse("room@muc.example/alice"))
	require.True(t, ok)
	require.Equal(t, "alice", removed.Nick)

	_, ok = r.Remove(jid.MustParse("room@muc.example/alice"))
	require.False(t, ok)
	require.Equal(t, 0, r.Count())
	requireCountersConsistent(t, r)
}

func TestRegistry_CountersTrackEveryTransition(t *testing.T) {
	r := NewMemberRegistry()

	r.Add(member(t, "alice", false, false))
	requireCountersConsistent(t, r)
	require.Equal(t, 1, r.AudioSenders())

	r.Add(member(t, "bob", true, false))
	requireCountersConsistent(t, r)
	require.Equal(t, 1, r.AudioSenders())
	require.Equal(t, 2, r.VideoSenders())

	// Bob unmutes audio, mutes video.
	_, ok := r.Update(jid.MustParse("room@muc.example/bob"), func(m *domain.Member) {
		m.AudioMuted = false
		m.VideoMuted = true
	})
	require.True(t, ok)
	requireCountersConsistent(t, r)
	require.Equal(t, 2, r.AudioSenders())
	require.Equal(t, 1, r.VideoSenders())

	r.Remove(jid.MustParse("room@muc.example/alice"))
	requireCountersConsistent(t, r)
	require.Equal(t, 1, r.AudioSenders())
	require.Equal(t, 0, r.VideoSenders())

	r.Clear()
	requireCountersConsistent(t, r)
	require.Equal(t, 0, r.AudioSenders())
}

func TestRegistry_UpdateUnknownOccupant(t *testing.T) {
	r := NewMemberRegistry()
	_, ok := r.Update(jid.MustParse("room@muc.example/ghost"), func(m *domain.Member) {
		m.AudioMuted = true
	})
	require.False(t, ok)
}

func TestRegistry_GetReturnsSnapshotCopy(t *testing.T) {
	r := NewMemberRegistry()
	r.Add(member(t, "alice", false, false))

	snap, ok := r.Get(jid.MustParse("room@muc.example/alice"))
	require.True(t, ok)
	snap.AudioMuted = true

	again, _ := r.Get(jid.MustParse("room@muc.example/alice"))
	require.False(t, again.AudioMuted)
	requireCountersConsistent(t, r)
}

func TestRegistry_ConcurrentTransitionsStayConsistent(t *testing.T) {
	r := NewMemberRegistry()
	const n = 64

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			nick := fmt.Sprintf("m%d", i)
			m := member(t, nick, i%2 == 0, i%3 == 0)
			r.Add(m)
			if i%4 == 0 {
				r.Remove(m.Occupant)
			}
		}(i)
	}
	wg.Wait()

	requireCountersConsistent(t, r)
	require.Equal(t, n-n/4, r.Count())
}
