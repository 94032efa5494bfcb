// Package sources implements the per-media-type source collections used
// to reconcile participant media descriptions across renegotiations.
package sources

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"mellium.im/xmpp/jid"

	"github.com/volklabs/focus/internal/domain"
)

// Source describes one media stream source from a session description.
// The owner is derived from signaling at lookup time and is not stored
// here.
type Source struct {
	// SSRC is the 32-bit synchronization source identifier.
	SSRC uint32
	// CName and MSID are the identity-relevant signaling attributes.
	CName string
	MSID  string
	// Params carries the remaining opaque signaling attributes.
	Params map[string]string
}

// Equals is the identity-equality predicate used by Find, Subtract and
// RemoveOne. Two sources are the same when their SSRCs match and every
// identity attribute carried by both sides agrees; an attribute absent
// on either side does not break equality.
func (s Source) Equals(o Source) bool {
	if s.SSRC != o.SSRC {
		return false
	}
	if s.CName != "" && o.CName != "" && s.CName != o.CName {
		return false
	}
	if s.MSID != "" && o.MSID != "" && s.MSID != o.MSID {
		return false
	}
	return true
}

func (s Source) String() string {
	return fmt.Sprintf("ssrc=%d cname=%s msid=%s", s.SSRC, s.CName, s.MSID)
}

// OwnerResolver resolves the owner address advertised for a source, if
// any. Owner information lives in signaling outside the source itself,
// so the lookup is injected by the caller.
type OwnerResolver func(Source) (jid.JID, bool)

// Set maps media types to ordered source sequences. Order within one
// media type is insertion order and reflects negotiation order.
//
// A Set is not safe for concurrent mutation; callers own a snapshot and
// synchronize externally when sharing one.
type Set struct {
	byMedia map[domain.MediaType][]Source
}

func NewSet() *Set {
	return &Set{byMedia: make(map[domain.MediaType][]Source)}
}

// MediaTypes returns the media types present in the set, sorted for
// deterministic iteration.
func (s *Set) MediaTypes() []domain.MediaType {
	types := lo.Keys(s.byMedia)
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ForMedia returns a copy of the ordered sequence for the media type.
// Absent media types yield an empty sequence, never an error.
func (s *Set) ForMedia(media domain.MediaType) []Source {
	out := make([]Source, len(s.byMedia[media]))
	copy(out, s.byMedia[media])
	return out
}

// Add appends the source without duplicate detection. This is the raw
// primitive; callers accept the risk of duplicate SSRCs and normally
// want MergeSources instead.
func (s *Set) Add(media domain.MediaType, src Source) {
	s.byMedia[media] = append(s.byMedia[media], src)
}

// MergeSources reconciles newSources into the sequence for media:
// every existing source whose SSRC collides with any of newSources is
// removed first, then all of newSources are appended. The last merge
// for a given SSRC is authoritative, so merges converge regardless of
// how many earlier ones touched the same SSRC.
func (s *Set) MergeSources(media domain.MediaType, newSources []Source) {
	if len(newSources) == 0 {
		return
	}
	kept := lo.Filter(s.byMedia[media], func(existing Source, _ int) bool {
		return !lo.SomeBy(newSources, func(n Source) bool {
			return n.SSRC == existing.SSRC
		})
	})
	s.byMedia[media] = append(kept, newSources...)
}

// Merge applies MergeSources for every media type present in other.
func (s *Set) Merge(other *Set) {
	for _, media := range other.MediaTypes() {
		s.MergeSources(media, other.byMedia[media])
	}
}

// Find returns the first source of the media type matching template
// under the identity-equality predicate.
func (s *Set) Find(media domain.MediaType, template Source) (Source, bool) {
	for _, src := range s.byMedia[media] {
		if src.Equals(template) {
			return src, true
		}
	}
	return Source{}, false
}

// FindByOwner returns the first source of the media type whose resolved
// owner equals owner. Sources whose owner cannot be resolved are
// skipped.
func (s *Set) FindByOwner(media domain.MediaType, owner jid.JID, resolve OwnerResolver) (Source, bool) {
	for _, src := range s.byMedia[media] {
		if o, ok := resolve(src); ok && o.Equal(owner) {
			return src, true
		}
	}
	return Source{}, false
}

// Subtract removes from s every source that matches a source in other
// and returns a new set holding exactly the removed sources. The
// returned set is the ground truth of what was actually present and is
// now gone, which may differ from what other asked to remove.
func (s *Set) Subtract(other *Set) *Set {
	removed := NewSet()
	for _, media := range other.MediaTypes() {
		toRemove := other.byMedia[media]
		var kept, gone []Source
		for _, existing := range s.byMedia[media] {
			if lo.SomeBy(toRemove, existing.Equals) {
				gone = append(gone, existing)
			} else {
				kept = append(kept, existing)
			}
		}
		s.byMedia[media] = kept
		if len(gone) > 0 {
			removed.byMedia[media] = gone
		}
	}
	return removed
}

// RemoveOne removes the first source of the media type matching src and
// reports whether one was found and removed.
func (s *Set) RemoveOne(media domain.MediaType, src Source) bool {
	for i, existing := range s.byMedia[media] {
		if existing.Equals(src) {
			s.byMedia[media] = append(s.byMedia[media][:i], s.byMedia[media][i+1:]...)
			return true
		}
	}
	return false
}

// IsEmpty reports whether every media type's sequence is empty.
func (s *Set) IsEmpty() bool {
	return lo.EveryBy(lo.Values(s.byMedia), func(seq []Source) bool {
		return len(seq) == 0
	})
}

// Copy returns a deep copy that the caller may mutate independently.
func (s *Set) Copy() *Set {
	out := NewSet()
	for media, seq := range s.byMedia {
		out.byMedia[media] = append([]Source(nil), seq...)
	}
	return out
}

func (s *Set) String() string {
	var b strings.Builder
	b.WriteString("Sources{")
	for _, media := range s.MediaTypes() {
		fmt.Fprintf(&b, " %s: %v", media, s.byMedia[media])
	}
	b.WriteString(" }")
	return b.String()
}
