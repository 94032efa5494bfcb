package sources

import (
	"encoding/xml"

	"github.com/volklabs/focus/internal/domain"
)

// Wire shapes for decoded session-initiate/source-add content blocks.
// The XML layout follows Jingle RTP sessions with source-specific media
// attributes; only the fields the reconciliation engine consumes are
// mapped.

const (
	nsJingleRTP  = "urn:xmpp:jingle:apps:rtp:1"
	nsSourceSSMA = "urn:xmpp:jingle:apps:rtp:ssma:0"
)

// SourceElement is one advertised source inside a content block.
type SourceElement struct {
	XMLName    xml.Name      `xml:"urn:xmpp:jingle:apps:rtp:ssma:0 source"`
	SSRC       uint32        `xml:"ssrc,attr"`
	Parameters []ParamInline `xml:"parameter"`
}

// ParamInline is one name/value signaling attribute of a source.
type ParamInline struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// RTPDescription is the nested media description of a content block.
type RTPDescription struct {
	XMLName xml.Name        `xml:"urn:xmpp:jingle:apps:rtp:1 description"`
	Media   string          `xml:"media,attr"`
	Sources []SourceElement `xml:"source"`
}

// Content is one decoded content block of a session description.
type Content struct {
	XMLName     xml.Name        `xml:"content"`
	Name        string          `xml:"name,attr"`
	Description *RTPDescription `xml:"urn:xmpp:jingle:apps:rtp:1 description"`
	// Sources directly under the content block, used by source-add /
	// source-remove notifications that skip the media description.
	Sources []SourceElement `xml:"urn:xmpp:jingle:apps:rtp:ssma:0 source"`
}

// FromContents builds a Set from decoded content blocks. The media type
// comes from the nested description's media tag when present, else from
// the content block's own name; sources are collected from the nested
// description when present, else directly from the content block.
func FromContents(contents []Content) *Set {
	set := NewSet()
	for _, content := range contents {
		media := domain.MediaType(content.Name)
		elems := content.Sources
		if content.Description != nil {
			if content.Description.Media != "" {
				media = domain.MediaType(content.Description.Media)
			}
			elems = content.Description.Sources
		}
		for _, el := range elems {
			set.Add(media, el.toSource())
		}
	}
	return set
}

func (el SourceElement) toSource() Source {
	src := Source{SSRC: el.SSRC, Params: make(map[string]string)}
	for _, p := range el.Parameters {
		switch p.Name {
		case "cname":
			src.CName = p.Value
		case "msid":
			src.MSID = p.Value
		default:
			src.Params[p.Name] = p.Value
		}
	}
	return src
}
