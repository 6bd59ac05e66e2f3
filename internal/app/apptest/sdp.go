// Package apptest provides in-memory stand-ins for transports, media and
// signaling used by the app package tests.
package apptest

import (
	"fmt"
	"strings"

	"github.com/dkeye/meshcast/internal/domain"
	"github.com/pion/sdp/v3"
)

// SDP renders a minimal session description with one m-line per kind.
func SDP(kinds ...domain.TrackKind) string {
	return Session("", kinds...)
}

// Session is SDP with a session-level ice-ufrag when ufrag is set.
func Session(ufrag string, kinds ...domain.TrackKind) string {
	var b strings.Builder
	b.WriteString("v=0\r\n")
	b.WriteString("o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n")
	b.WriteString("s=-\r\n")
	b.WriteString("t=0 0\r\n")
	if ufrag != "" {
		fmt.Fprintf(&b, "a=ice-ufrag:%s\r\n", ufrag)
	}
	for i, k := range kinds {
		pt := 111
		if k == domain.KindVideo {
			pt = 96
		}
		fmt.Fprintf(&b, "m=%s 9 UDP/TLS/RTP/SAVPF %d\r\n", k, pt)
		b.WriteString("c=IN IP4 0.0.0.0\r\n")
		fmt.Fprintf(&b, "a=mid:%d\r\n", i)
	}
	return b.String()
}

// Kinds lists the media kinds of raw in m-line order.
func Kinds(raw string) []domain.TrackKind {
	parsed := &sdp.SessionDescription{}
	if err := parsed.Unmarshal([]byte(raw)); err != nil {
		return nil
	}
	out := make([]domain.TrackKind, 0, len(parsed.MediaDescriptions))
	for _, md := range parsed.MediaDescriptions {
		out = append(out, domain.TrackKind(md.MediaName.Media))
	}
	return out
}
