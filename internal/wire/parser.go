package wire

import (
	"encoding/binary"
	"fmt"
	"time"

	mdnserrors "github.com/linklocal/mdns/internal/errors"
)

// Message is a fully decoded DNS/mDNS message.
type Message struct {
	Header      Header
	Questions   []Question
	Answers     []*Record
	Authorities []*Record
	Additionals []*Record
}

// IsQuery reports whether the QR bit is clear.
func (m *Message) IsQuery() bool { return !m.Header.IsResponse() }

// ParseMessage decodes a complete DNS message. It never fails on an unknown
// record type (matching the RR table's "unknown types: skip rdlength
// bytes" rule): records of unsupported RR types are kept as UnknownData.
// A malformed record of a supported type, or a truncated message, fails
// the whole parse.
func ParseMessage(buf []byte) (*Message, error) {
	header, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}

	offset := 12
	now := time.Now()

	questions := make([]Question, 0, header.QDCount)
	for i := uint16(0); i < header.QDCount; i++ {
		q, next, err := ParseQuestion(buf, offset)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
		offset = next
	}

	parseSection := func(count uint16) ([]*Record, error) {
		recs := make([]*Record, 0, count)
		for i := uint16(0); i < count; i++ {
			rec, next, err := ParseAnswer(buf, offset, now)
			if err != nil {
				return nil, err
			}
			recs = append(recs, rec)
			offset = next
		}
		return recs, nil
	}

	answers, err := parseSection(header.ANCount)
	if err != nil {
		return nil, err
	}
	authorities, err := parseSection(header.NSCount)
	if err != nil {
		return nil, err
	}
	additionals, err := parseSection(header.ARCount)
	if err != nil {
		return nil, err
	}

	return &Message{
		Header:      header,
		Questions:   questions,
		Answers:     answers,
		Authorities: authorities,
		Additionals: additionals,
	}, nil
}

// ParseHeader decodes the fixed 12-byte header.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < 12 {
		return Header{}, &mdnserrors.WireFormatError{
			Operation: "parse header",
			Offset:    0,
			Message:   fmt.Sprintf("message too short for header: %d bytes", len(buf)),
		}
	}
	return Header{
		ID:      binary.BigEndian.Uint16(buf[0:2]),
		Flags:   binary.BigEndian.Uint16(buf[2:4]),
		QDCount: binary.BigEndian.Uint16(buf[4:6]),
		ANCount: binary.BigEndian.Uint16(buf[6:8]),
		NSCount: binary.BigEndian.Uint16(buf[8:10]),
		ARCount: binary.BigEndian.Uint16(buf[10:12]),
	}, nil
}

// ParseQuestion decodes one question-section entry starting at offset.
func ParseQuestion(buf []byte, offset int) (Question, int, error) {
	name, next, err := ParseName(buf, offset)
	if err != nil {
		return Question{}, offset, err
	}
	if next+4 > len(buf) {
		return Question{}, offset, &mdnserrors.WireFormatError{
			Operation: "parse question",
			Offset:    next,
			Message:   "truncated question",
		}
	}
	q := Question{
		Name:  name,
		Type:  binary.BigEndian.Uint16(buf[next : next+2]),
		Class: binary.BigEndian.Uint16(buf[next+2 : next+4]),
	}
	return q, next + 4, nil
}

// ParseAnswer decodes one resource-record entry (answer, authority, or
// additional section) starting at offset, including its type-specific
// payload.
func ParseAnswer(buf []byte, offset int, now time.Time) (*Record, int, error) {
	name, next, err := ParseName(buf, offset)
	if err != nil {
		return nil, offset, err
	}
	if next+10 > len(buf) {
		return nil, offset, &mdnserrors.WireFormatError{
			Operation: "parse answer",
			Offset:    next,
			Message:   "truncated answer fixed fields",
		}
	}

	rrType := binary.BigEndian.Uint16(buf[next : next+2])
	rawClass := binary.BigEndian.Uint16(buf[next+2 : next+4])
	ttl := binary.BigEndian.Uint32(buf[next+4 : next+8])
	rdlength := binary.BigEndian.Uint16(buf[next+8 : next+10])
	next += 10

	if next+int(rdlength) > len(buf) {
		return nil, offset, &mdnserrors.WireFormatError{
			Operation: "parse answer",
			Offset:    next,
			Message:   fmt.Sprintf("truncated rdata: need %d bytes, have %d", rdlength, len(buf)-next),
		}
	}

	// Record-data is parsed against the full message buffer at this
	// absolute offset, not a copied sub-slice: compression pointers inside
	// rdata (PTR/SRV/CNAME targets) are backward offsets into the whole
	// packet, and resolving them against a sub-slice starting at rdata
	// would read the wrong bytes or run out of bounds entirely.
	data, err := parseRecordData(buf, rrType, next, int(rdlength))
	if err != nil {
		return nil, offset, err
	}

	rec := &Record{
		Name:       name,
		Class:      rawClass &^ CacheFlushBit,
		CacheFlush: rawClass&CacheFlushBit != 0,
		TTL:        ttl,
		Created:    now,
		Data:       data,
	}

	return rec, next + int(rdlength), nil
}

// parseRecordData decodes the type-specific payload for a record whose
// rdata occupies buf[rdataOffset : rdataOffset+rdlength]. Unknown types are
// preserved verbatim rather than rejected, per the RR table's fallback
// rule.
func parseRecordData(buf []byte, rrType uint16, rdataOffset, rdlength int) (RecordData, error) {
	rdata := buf[rdataOffset : rdataOffset+rdlength]

	switch rrType {
	case TypeA:
		if len(rdata) != 4 {
			return nil, &mdnserrors.WireFormatError{
				Operation: "parse A record",
				Offset:    rdataOffset,
				Message:   fmt.Sprintf("invalid A record length %d, want 4", len(rdata)),
			}
		}
		var d AData
		copy(d.Addr[:], rdata)
		return d, nil

	case TypeAAAA:
		if len(rdata) != 16 {
			return nil, &mdnserrors.WireFormatError{
				Operation: "parse AAAA record",
				Offset:    rdataOffset,
				Message:   fmt.Sprintf("invalid AAAA record length %d, want 16", len(rdata)),
			}
		}
		var d AAAAData
		copy(d.Addr[:], rdata)
		return d, nil

	case TypePTR, TypeCNAME:
		target, _, err := ParseName(buf, rdataOffset)
		if err != nil {
			return nil, err
		}
		return PTRData{Target: target, CNAME: rrType == TypeCNAME}, nil

	case TypeTXT:
		raw := make([]byte, len(rdata))
		copy(raw, rdata)
		return TXTData{Raw: raw}, nil

	case TypeSRV:
		if len(rdata) < 6 {
			return nil, &mdnserrors.WireFormatError{
				Operation: "parse SRV record",
				Offset:    rdataOffset,
				Message:   fmt.Sprintf("truncated SRV record: %d bytes, want at least 6", len(rdata)),
			}
		}
		target, _, err := ParseName(buf, rdataOffset+6)
		if err != nil {
			return nil, err
		}
		return SRVData{
			Priority: binary.BigEndian.Uint16(rdata[0:2]),
			Weight:   binary.BigEndian.Uint16(rdata[2:4]),
			Port:     binary.BigEndian.Uint16(rdata[4:6]),
			Target:   target,
		}, nil

	case TypeHINFO:
		cpu, n, err := readCharacterString(rdata, 0)
		if err != nil {
			return nil, err
		}
		os, _, err := readCharacterString(rdata, n)
		if err != nil {
			return nil, err
		}
		return HINFOData{CPU: cpu, OS: os}, nil

	default:
		raw := make([]byte, len(rdata))
		copy(raw, rdata)
		return UnknownData{RRType: rrType, Raw: raw}, nil
	}
}

// readCharacterString reads one length-prefixed character-string (RFC 1035
// §3.3) from buf starting at offset, returning the string and the offset
// immediately following it.
func readCharacterString(buf []byte, offset int) (string, int, error) {
	if offset >= len(buf) {
		return "", offset, &mdnserrors.WireFormatError{
			Operation: "parse character-string",
			Offset:    offset,
			Message:   "missing length octet",
		}
	}
	length := int(buf[offset])
	if offset+1+length > len(buf) {
		return "", offset, &mdnserrors.WireFormatError{
			Operation: "parse character-string",
			Offset:    offset,
			Message:   "truncated character-string",
		}
	}
	return string(buf[offset+1 : offset+1+length]), offset + 1 + length, nil
}
