package sources

import (
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"github.com/volklabs/focus/internal/domain"
)

// FromSessionDescription builds a Set from a parsed SDP session
// description. Every a=ssrc line of a media section contributes one
// attribute to that SSRC's source; a given SSRC yields exactly one
// source per media type no matter how many attribute lines it has.
func FromSessionDescription(desc *sdp.SessionDescription) *Set {
	set := NewSet()
	for _, md := range desc.MediaDescriptions {
		media := domain.MediaType(md.MediaName.Media)

		var order []uint32
		bySSRC := make(map[uint32]*Source)
		for _, attr := range md.Attributes {
			if attr.Key != "ssrc" {
				continue
			}
			ssrc, rest, ok := splitSSRCAttribute(attr.Value)
			if !ok {
				continue
			}
			src, seen := bySSRC[ssrc]
			if !seen {
				src = &Source{SSRC: ssrc, Params: make(map[string]string)}
				bySSRC[ssrc] = src
				order = append(order, ssrc)
			}
			name, value, _ := strings.Cut(rest, ":")
			switch name {
			case "cname":
				src.CName = value
			case "msid":
				src.MSID = value
			case "":
			default:
				src.Params[name] = value
			}
		}
		for _, ssrc := range order {
			set.Add(media, *bySSRC[ssrc])
		}
	}
	return set
}

// splitSSRCAttribute splits "314159 cname:foo" into the SSRC and the
// remaining attribute text.
func splitSSRCAttribute(v string) (uint32, string, bool) {
	num, rest, _ := strings.Cut(v, " ")
	ssrc, err := strconv.ParseUint(num, 10, 32)
	if err != nil {
		return 0, "", false
	}
	return uint32(ssrc), rest, true
}
