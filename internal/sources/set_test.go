package sources

import (
	"testing"

	"github.com/stretchr/testify/require"
	"mellium.im/xmpp/jid"

	"github.com/volklabs/focus/internal/domain"
)

func src(ssrc uint32, cname string) Source {
	return Source{SSRC: ssrc, CName: cname, Params: map[string]string{}}
}

func ssrcsOf(seq []Source) []uint32 {
	out := make([]uint32, 0, len(seq))
	for _, s := range seq {
		out = append(out, s.SSRC)
	}
	return out
}

func TestSet_MergeLastWriterWinsPerSSRC(t *testing.T) {
	set := NewSet()
	set.MergeSources(domain.MediaVideo, []Source{src(100, "x")})
	set.MergeSources(domain.MediaVideo, []Source{src(100, "y")})

	seq := set.ForMedia(domain.MediaVideo)
	require.Len(t, seq, 1)
	require.Equal(t, uint32(100), seq[0].SSRC)
	require.Equal(t, "y", seq[0].CName)
}

func TestSet_MergeConvergesRegardlessOfHistory(t *testing.T) {
	set := NewSet()
	set.MergeSources(domain.MediaAudio, []Source{src(1, "a"), src(2, "b")})
	set.MergeSources(domain.MediaAudio, []Source{src(2, "b2")})
	set.MergeSources(domain.MediaAudio, []Source{src(1, "a3"), src(3, "c")})

	seq := set.ForMedia(domain.MediaAudio)
	require.Len(t, seq, 3)
	bySSRC := map[uint32]string{}
	for _, s := range seq {
		bySSRC[s.SSRC] = s.CName
	}
	require.Equal(t, map[uint32]string{1: "a3", 2: "b2", 3: "c"}, bySSRC)
}

func TestSet_MergePreservesNegotiationOrder(t *testing.T) {
	set := NewSet()
	set.MergeSources(domain.MediaVideo, []Source{src(10, ""), src(20, "")})
	set.MergeSources(domain.MediaVideo, []Source{src(10, "updated")})

	// The re-merged SSRC moves to the end: it was renegotiated last.
	require.Equal(t, []uint32{20, 10}, ssrcsOf(set.ForMedia(domain.MediaVideo)))
}

func TestSet_AddKeepsDuplicates(t *testing.T) {
	set := NewSet()
	set.Add(domain.MediaAudio, src(7, "one"))
	set.Add(domain.MediaAudio, src(7, "two"))

	require.Len(t, set.ForMedia(domain.MediaAudio), 2)
}

func TestSet_SubtractReturnsExactlyTheRemoved(t *testing.T) {
	set := NewSet()
	set.MergeSources(domain.MediaAudio, []Source{src(1, "a"), src(2, "b")})
	set.MergeSources(domain.MediaVideo, []Source{src(3, "c")})
	before := set.Copy()

	toRemove := NewSet()
	toRemove.Add(domain.MediaAudio, src(2, "b"))
	toRemove.Add(domain.MediaAudio, src(99, "ghost")) // never present

	removed := set.Subtract(toRemove)

	require.Equal(t, []uint32{2}, ssrcsOf(removed.ForMedia(domain.MediaAudio)))
	require.Equal(t, []uint32{1}, ssrcsOf(set.ForMedia(domain.MediaAudio)))

	// Re-adding the removed set reconstructs the pre-subtraction state
	// per media type, by SSRC membership.
	set.Merge(removed)
	for _, media := range before.MediaTypes() {
		require.ElementsMatch(t, ssrcsOf(before.ForMedia(media)), ssrcsOf(set.ForMedia(media)))
	}
}

func TestSet_RemoveOne(t *testing.T) {
	set := NewSet()
	set.Add(domain.MediaAudio, src(5, "a"))

	require.True(t, set.RemoveOne(domain.MediaAudio, src(5, "a")))
	require.False(t, set.RemoveOne(domain.MediaAudio, src(5, "a")))
	require.Empty(t, set.ForMedia(domain.MediaAudio))
}

func TestSet_IsEmpty(t *testing.T) {
	set := NewSet()
	require.True(t, set.IsEmpty())

	set.Add(domain.MediaVideo, src(1, ""))
	require.False(t, set.IsEmpty())

	set.RemoveOne(domain.MediaVideo, src(1, ""))
	require.True(t, set.IsEmpty())
}

func TestSet_FindMatchesIdentityNotJustSSRC(t *testing.T) {
	set := NewSet()
	set.Add(domain.MediaAudio, src(1, "alpha"))

	_, ok := set.Find(domain.MediaAudio, src(1, "beta"))
	require.False(t, ok)

	found, ok := set.Find(domain.MediaAudio, src(1, "alpha"))
	require.True(t, ok)
	require.Equal(t, "alpha", found.CName)

	// An attribute absent on one side does not break identity.
	found, ok = set.Find(domain.MediaAudio, src(1, ""))
	require.True(t, ok)
	require.Equal(t, uint32(1), found.SSRC)
}

func TestSet_FindByOwner(t *testing.T) {
	alice := jid.MustParse("room@muc.example/alice")
	bob := jid.MustParse("room@muc.example/bob")

	set := NewSet()
	set.Add(domain.MediaVideo, src(1, "alice-cam"))
	set.Add(domain.MediaVideo, src(2, "bob-cam"))

	resolve := func(s Source) (jid.JID, bool) {
		switch s.SSRC {
		case 1:
			return alice, true
		case 2:
			return bob, true
		}
		return jid.JID{}, false
	}

	found, ok := set.FindByOwner(domain.MediaVideo, bob, resolve)
	require.True(t, ok)
	require.Equal(t, uint32(2), found.SSRC)

	_, ok = set.FindByOwner(domain.MediaVideo, jid.MustParse("room@muc.example/eve"), resolve)
	require.False(t, ok)
}
