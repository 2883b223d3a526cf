// Package framer splits a byte stream into CR LF terminated FSD packets.
package framer

import (
	"errors"
	"strings"

	"github.com/saviobatista/fsd-connector/internal/pdu"
)

// ErrConnectionClosed is returned by Feed for a zero-length read
var ErrConnectionClosed = errors.New("connection closed by peer")

// Framer reassembles packets from arbitrarily fragmented chunks.
// It is not safe for concurrent use.
type Framer struct {
	fragment strings.Builder
}

// New creates an empty Framer
func New() *Framer {
	return &Framer{}
}

// Feed appends chunk to the pending fragment and returns every complete packet.
// Empty packets are skipped; the text after the last terminator is kept for the
// next call. A zero-length chunk means the peer closed the stream.
func (f *Framer) Feed(chunk []byte) ([]string, error) {
	if len(chunk) == 0 {
		return nil, ErrConnectionClosed
	}
	if chunk[len(chunk)-1] == 0 {
		chunk = chunk[:len(chunk)-1]
	}

	f.fragment.Write(chunk)
	data := f.fragment.String()
	f.fragment.Reset()

	parts := strings.Split(data, pdu.PacketDelimiter)

	var packets []string
	for _, p := range parts[:len(parts)-1] {
		if p != "" {
			packets = append(packets, p)
		}
	}

	// Keep the trailing piece, it may be incomplete
	if last := parts[len(parts)-1]; last != "" {
		f.fragment.WriteString(last)
	}
	return packets, nil
}

// Pending returns the buffered incomplete packet
func (f *Framer) Pending() string {
	return f.fragment.String()
}

// Reset drops the buffered fragment
func (f *Framer) Reset() {
	f.fragment.Reset()
}

// Frame appends the packet terminator
func Frame(packet string) []byte {
	return []byte(packet + pdu.PacketDelimiter)
}
