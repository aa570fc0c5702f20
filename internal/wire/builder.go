package wire

import (
	"encoding/binary"
	"time"

	mdnserrors "github.com/linklocal/mdns/internal/errors"
)

// pendingRecord pairs a record with the as-of time its TTL should be
// rewritten to when serialized. A zero Time means "write TTL unchanged".
type pendingRecord struct {
	rec *Record
	now time.Time
}

// Outgoing builds one DNS message: a question section plus answer,
// authority and additional sections, assembled in that fixed order with a
// single name-compression table shared across all of them.
type Outgoing struct {
	ID        uint16
	Flags     uint16
	Multicast bool

	questions   []Question
	answers     []pendingRecord
	authorities []pendingRecord
	additionals []pendingRecord
}

// NewOutgoing creates a builder for one message. When multicast is true,
// Pack forces the header ID to zero and honors each record's cache-flush
// flag; unicast responses never set the cache-flush bit.
func NewOutgoing(flags uint16, multicast bool) *Outgoing {
	return &Outgoing{Flags: flags, Multicast: multicast}
}

// AddQuestion appends a question-section entry.
func (o *Outgoing) AddQuestion(q Question) {
	o.questions = append(o.questions, q)
}

// AddAnswer appends an answer-section record. If now is non-zero, the
// serialized TTL reflects the record's remaining TTL as of now rather than
// its TTL as created.
func (o *Outgoing) AddAnswer(rec *Record, now time.Time) {
	o.answers = append(o.answers, pendingRecord{rec: rec, now: now})
}

// AddAuthority appends an authority-section record (used for the PTR
// carried during registration probes).
func (o *Outgoing) AddAuthority(rec *Record, now time.Time) {
	o.authorities = append(o.authorities, pendingRecord{rec: rec, now: now})
}

// AddAdditional appends an additional-section record.
func (o *Outgoing) AddAdditional(rec *Record, now time.Time) {
	o.additionals = append(o.additionals, pendingRecord{rec: rec, now: now})
}

// Empty reports whether the message carries no questions and no records in
// any section.
func (o *Outgoing) Empty() bool {
	return len(o.questions) == 0 && len(o.answers) == 0 &&
		len(o.authorities) == 0 && len(o.additionals) == 0
}

// Pack serializes the message: header, then questions, then answers, then
// authorities, then additionals, all sharing one name-compression table.
func (o *Outgoing) Pack() ([]byte, error) {
	comp := newNameCompressor()

	// body starts with room for the 12-byte header so that the offsets the
	// compressor records are offsets into the whole packet, which is what a
	// compression pointer addresses. The header itself is filled in last.
	body := make([]byte, 12)
	for _, q := range o.questions {
		if err := comp.writeName(&body, q.Name); err != nil {
			return nil, err
		}
		body = appendUint16(body, q.Type)
		body = appendUint16(body, q.Class)
	}

	for _, section := range [][]pendingRecord{o.answers, o.authorities, o.additionals} {
		for _, pr := range section {
			if err := o.writeRecord(&body, comp, pr); err != nil {
				return nil, err
			}
		}
	}

	id := o.ID
	if o.Multicast {
		id = 0
	}

	header := body[:12]
	binary.BigEndian.PutUint16(header[0:2], id)
	binary.BigEndian.PutUint16(header[2:4], o.Flags)
	binary.BigEndian.PutUint16(header[4:6], uint16(len(o.questions)))
	binary.BigEndian.PutUint16(header[6:8], uint16(len(o.answers)))
	binary.BigEndian.PutUint16(header[8:10], uint16(len(o.authorities)))
	binary.BigEndian.PutUint16(header[10:12], uint16(len(o.additionals)))

	return body, nil
}

func (o *Outgoing) writeRecord(body *[]byte, comp *nameCompressor, pr pendingRecord) error {
	rec := pr.rec

	if err := comp.writeName(body, rec.Name); err != nil {
		return err
	}

	*body = appendUint16(*body, rec.Data.Type())

	class := rec.Class
	if rec.CacheFlush && o.Multicast {
		class |= CacheFlushBit
	}
	*body = appendUint16(*body, class)

	ttl := rec.TTL
	if !pr.now.IsZero() {
		ttl = rec.RemainingTTL(pr.now)
	}
	*body = appendUint32(*body, ttl)

	rdlenOffset := len(*body)
	*body = append(*body, 0, 0) // rdlength placeholder

	rdataStart := len(*body)
	if err := writeRecordData(body, comp, rec.Data); err != nil {
		return err
	}
	rdlength := len(*body) - rdataStart

	binary.BigEndian.PutUint16((*body)[rdlenOffset:rdlenOffset+2], uint16(rdlength))
	return nil
}

func writeRecordData(body *[]byte, comp *nameCompressor, data RecordData) error {
	switch d := data.(type) {
	case AData:
		*body = append(*body, d.Addr[:]...)
	case AAAAData:
		*body = append(*body, d.Addr[:]...)
	case PTRData:
		return comp.writeName(body, d.Target)
	case TXTData:
		*body = append(*body, d.Raw...)
	case SRVData:
		*body = appendUint16(*body, d.Priority)
		*body = appendUint16(*body, d.Weight)
		*body = appendUint16(*body, d.Port)
		return comp.writeName(body, d.Target)
	case HINFOData:
		if err := writeCharacterString(body, d.CPU); err != nil {
			return err
		}
		return writeCharacterString(body, d.OS)
	case UnknownData:
		*body = append(*body, d.Raw...)
	default:
		return &mdnserrors.ValidationError{
			Field:   "record data",
			Message: "unsupported record data type",
		}
	}
	return nil
}

func writeCharacterString(body *[]byte, s string) error {
	if len(s) > 255 {
		return &mdnserrors.ValidationError{
			Field:   "character-string",
			Value:   s,
			Message: "exceeds 255 bytes",
		}
	}
	*body = append(*body, byte(len(s)))
	*body = append(*body, s...)
	return nil
}

func appendUint16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
