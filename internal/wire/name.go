package wire

import (
	"fmt"
	"strings"

	mdnserrors "github.com/linklocal/mdns/internal/errors"
)

// MaxLabelLength is the maximum length of a single DNS label (RFC 1035 §3.1).
const MaxLabelLength = 63

// MaxNameLength is the maximum length of a decoded DNS name (RFC 1035 §3.1).
const MaxNameLength = 255

// MaxCompressionJumps bounds the number of pointer hops ParseName will
// follow before giving up, guarding against pointer loops.
const MaxCompressionJumps = 128

// compressionMask identifies a compression pointer: the top two bits of the
// length octet are both set.
const compressionMask = 0xC0

// maxPointerOffset is the largest offset a 14-bit compression pointer can
// address.
const maxPointerOffset = 0x3FFF

// ParseName decodes a (possibly compressed) DNS name starting at offset
// within msg and returns the dotted, trailing-dot-terminated name plus the
// offset of the first byte after the name as it appears on the wire (i.e.
// following any initial pointer, the offset just past that pointer's two
// bytes rather than past the jump target).
func ParseName(msg []byte, offset int) (string, int, error) {
	if offset < 0 || offset >= len(msg) {
		return "", offset, &mdnserrors.WireFormatError{
			Operation: "parse name",
			Offset:    offset,
			Message:   "offset out of bounds",
		}
	}

	var sb strings.Builder
	pos := offset
	wireEnd := -1
	jumps := 0
	// first is the offset a pointer must precede. It is set once per jump
	// (to that jump's target) and never advanced by ordinary label reads in
	// between, so a second pointer can't target somewhere between the first
	// jump's target and the label that followed it.
	first := offset

	for {
		if pos >= len(msg) {
			return "", offset, &mdnserrors.WireFormatError{
				Operation: "parse name",
				Offset:    pos,
				Message:   "unexpected end of message while parsing name",
			}
		}

		length := msg[pos]

		if length&compressionMask == compressionMask {
			if pos+1 >= len(msg) {
				return "", offset, &mdnserrors.WireFormatError{
					Operation: "parse name",
					Offset:    pos,
					Message:   "truncated compression pointer",
				}
			}
			target := int(msg[pos]&^compressionMask)<<8 | int(msg[pos+1])
			if target >= first {
				return "", offset, &mdnserrors.WireFormatError{
					Operation: "parse name",
					Offset:    pos,
					Message:   fmt.Sprintf("compression pointer to offset %d does not precede earlier jump target %d", target, first),
				}
			}
			if wireEnd == -1 {
				wireEnd = pos + 2
			}
			pos = target
			first = target
			jumps++
			if jumps > MaxCompressionJumps {
				return "", offset, &mdnserrors.WireFormatError{
					Operation: "parse name",
					Offset:    pos,
					Message:   fmt.Sprintf("exceeded %d compression jumps, probable loop", MaxCompressionJumps),
				}
			}
			continue
		}

		if length == 0 {
			if wireEnd == -1 {
				wireEnd = pos + 1
			}
			break
		}

		if length > MaxLabelLength {
			return "", offset, &mdnserrors.WireFormatError{
				Operation: "parse name",
				Offset:    pos,
				Message:   fmt.Sprintf("label length %d exceeds %d bytes", length, MaxLabelLength),
			}
		}
		if pos+1+int(length) > len(msg) {
			return "", offset, &mdnserrors.WireFormatError{
				Operation: "parse name",
				Offset:    pos,
				Message:   "truncated label",
			}
		}

		sb.WriteString(strings.ToValidUTF8(string(msg[pos+1:pos+1+int(length)]), "�"))
		sb.WriteByte('.')

		pos += 1 + int(length)
	}

	name := sb.String()
	if name == "" {
		name = "."
	}
	if len(name) > MaxNameLength {
		return "", offset, &mdnserrors.WireFormatError{
			Operation: "parse name",
			Offset:    offset,
			Message:   fmt.Sprintf("name length %d exceeds %d bytes", len(name), MaxNameLength),
		}
	}

	return name, wireEnd, nil
}

// splitLabels splits a dotted name into its labels, tolerating an optional
// trailing dot. The root name ("" or ".") yields no labels.
func splitLabels(name string) []string {
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return nil
	}
	return strings.Split(name, ".")
}

// nameCompressor tracks, for one outgoing message, the wire offset at which
// each distinct name suffix was first written, so later occurrences of the
// same suffix can be replaced by a 2-byte pointer.
type nameCompressor struct {
	offsets map[string]int
}

func newNameCompressor() *nameCompressor {
	return &nameCompressor{offsets: make(map[string]int)}
}

// writeName appends name to buf, using buf's current length as the base
// offset, recording new suffixes and emitting pointers for ones already
// seen in this message.
func (c *nameCompressor) writeName(buf *[]byte, name string) error {
	labels := splitLabels(name)

	for i := 0; i < len(labels); i++ {
		suffix := strings.ToLower(strings.Join(labels[i:], "."))

		if off, ok := c.offsets[suffix]; ok {
			*buf = append(*buf, byte(compressionMask|(off>>8)), byte(off&0xFF))
			return nil
		}

		label := labels[i]
		if label == "" {
			return &mdnserrors.ValidationError{
				Field:   "name",
				Value:   name,
				Message: "empty label (consecutive dots)",
			}
		}
		if len(label) > MaxLabelLength {
			return &mdnserrors.ValidationError{
				Field:   "name",
				Value:   name,
				Message: fmt.Sprintf("label %q exceeds %d bytes", label, MaxLabelLength),
			}
		}

		if len(*buf) <= maxPointerOffset {
			c.offsets[suffix] = len(*buf)
		}

		*buf = append(*buf, byte(len(label)))
		*buf = append(*buf, label...)
	}

	*buf = append(*buf, 0)
	return nil
}
