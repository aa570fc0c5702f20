// Package wire implements the mDNS/DNS-SD message codec: header and question
// parsing, the tagged record union, name compression (both directions), and
// the outgoing message builder.
package wire

import (
	"bytes"
	"strings"
	"time"
)

// Record types supported by this node (RFC 1035 §3.2.2, RFC 1035 §3.2.2 for
// CNAME, RFC 3596 for AAAA). Types outside this set are parsed generically
// and skipped; they are never advertised.
const (
	TypeA     uint16 = 1
	TypeCNAME uint16 = 5
	TypePTR   uint16 = 12
	TypeHINFO uint16 = 13
	TypeTXT   uint16 = 16
	TypeAAAA  uint16 = 28
	TypeSRV   uint16 = 33
	TypeANY   uint16 = 255
)

// ClassIN is the only record class this node produces or expects.
const ClassIN uint16 = 1

// Header flag bits (RFC 1035 §4.1.1).
const (
	FlagQR uint16 = 0x8000
	FlagAA uint16 = 0x0400
	FlagTC uint16 = 0x0200
	FlagRD uint16 = 0x0100
)

// CacheFlushBit is the high bit of the rrclass field in an mDNS response,
// signalling that prior records for this name/type should be discarded
// (RFC 6762 §10.2).
const CacheFlushBit uint16 = 0x8000

// Header is the 12-byte DNS message header.
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// IsResponse reports whether the QR bit is set.
func (h Header) IsResponse() bool { return h.Flags&FlagQR != 0 }

// Question is a question-section entry: is-answered-by a record iff names
// compare equal case-insensitively, classes match, and the question's type
// is the record's type or ANY.
type Question struct {
	Name  string
	Type  uint16
	Class uint16
}

// AnsweredBy reports whether rec answers q.
func (q Question) AnsweredBy(rec *Record) bool {
	if !strings.EqualFold(q.Name, rec.Name) {
		return false
	}
	if q.Class != rec.Class {
		return false
	}
	return q.Type == TypeANY || q.Type == rec.Data.Type()
}

// RecordData is the tagged-union payload of a Record, dispatched by Type().
// Concrete implementations: AData, AAAAData, PTRData, TXTData, SRVData,
// HINFOData.
type RecordData interface {
	// Type returns the DNS RR type this payload encodes as.
	Type() uint16
	// Equal reports whether other carries the same payload.
	Equal(other RecordData) bool
}

// AData is an A record: a raw IPv4 address.
type AData struct {
	Addr [4]byte
}

func (AData) Type() uint16 { return TypeA }

func (d AData) Equal(other RecordData) bool {
	o, ok := other.(AData)
	return ok && d.Addr == o.Addr
}

// AAAAData is an AAAA record: a raw IPv6 address. Parsed on read but never
// produced by this node's responder (IPv6 advertising is out of scope).
type AAAAData struct {
	Addr [16]byte
}

func (AAAAData) Type() uint16 { return TypeAAAA }

func (d AAAAData) Equal(other RecordData) bool {
	o, ok := other.(AAAAData)
	return ok && d.Addr == o.Addr
}

// PTRData is a PTR record (or a CNAME, which shares the same target-name
// payload shape and is distinguished by the CNAME flag).
type PTRData struct {
	Target string
	CNAME  bool
}

func (d PTRData) Type() uint16 {
	if d.CNAME {
		return TypeCNAME
	}
	return TypePTR
}

func (d PTRData) Equal(other RecordData) bool {
	o, ok := other.(PTRData)
	return ok && d.CNAME == o.CNAME && strings.EqualFold(d.Target, o.Target)
}

// TXTData is a TXT record: the opaque length-prefixed key=value blob.
type TXTData struct {
	Raw []byte
}

func (TXTData) Type() uint16 { return TypeTXT }

func (d TXTData) Equal(other RecordData) bool {
	o, ok := other.(TXTData)
	return ok && bytes.Equal(d.Raw, o.Raw)
}

// SRVData is an SRV record.
type SRVData struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

func (SRVData) Type() uint16 { return TypeSRV }

func (d SRVData) Equal(other RecordData) bool {
	o, ok := other.(SRVData)
	return ok && d.Priority == o.Priority && d.Weight == o.Weight &&
		d.Port == o.Port && strings.EqualFold(d.Target, o.Target)
}

// HINFOData is a HINFO record: two length-prefixed character strings, CPU
// and OS.
type HINFOData struct {
	CPU string
	OS  string
}

func (HINFOData) Type() uint16 { return TypeHINFO }

func (d HINFOData) Equal(other RecordData) bool {
	o, ok := other.(HINFOData)
	return ok && d.CPU == o.CPU && d.OS == o.OS
}

// UnknownData carries the raw rdata of a record type this node does not
// interpret. The parser never fails on an unknown type; it skips the rdata
// and keeps the bytes so the record can still round-trip through the cache.
type UnknownData struct {
	RRType uint16
	Raw    []byte
}

func (d UnknownData) Type() uint16 { return d.RRType }

func (d UnknownData) Equal(other RecordData) bool {
	o, ok := other.(UnknownData)
	return ok && d.RRType == o.RRType && bytes.Equal(d.Raw, o.Raw)
}

// Record is a resource record: a name/type/class header plus a typed
// payload, the created-at timestamp it entered the cache at, and the
// unique/cache-flush hint. Equality ignores TTL and timestamps.
type Record struct {
	Name       string
	Class      uint16
	CacheFlush bool
	TTL        uint32
	Created    time.Time
	Data       RecordData
}

// Equal compares name, class and payload; it ignores TTL, Created and
// CacheFlush.
func (r *Record) Equal(other *Record) bool {
	if other == nil {
		return false
	}
	if !strings.EqualFold(r.Name, other.Name) {
		return false
	}
	if r.Class != other.Class {
		return false
	}
	if r.Data.Type() != other.Data.Type() {
		return false
	}
	return r.Data.Equal(other.Data)
}

// ExpirationTime returns the wall-clock instant at which this record
// reaches the given percent of its TTL: created + percent/100 * ttl.
func (r *Record) ExpirationTime(percent int) time.Time {
	ms := int64(percent) * int64(r.TTL) * 10
	return r.Created.Add(time.Duration(ms) * time.Millisecond)
}

// IsExpired reports whether now is at or past 100% of the TTL.
func (r *Record) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpirationTime(100))
}

// IsStale reports whether now is at or past 50% of the TTL.
func (r *Record) IsStale(now time.Time) bool {
	return !now.Before(r.ExpirationTime(50))
}

// SuppressedBy reports whether other is an equal record whose TTL is more
// than half the TTL this record would carry, meaning an
// outgoing answer for r is redundant with one already seen in other's
// message (RFC 6762 §7.1 known-answer suppression, §9 duplicate question
// suppression). Defined as other.TTL*2 > r.TTL to avoid integer-division
// rounding ambiguity.
func (r *Record) SuppressedBy(other *Record) bool {
	if !r.Equal(other) {
		return false
	}
	return uint64(other.TTL)*2 > uint64(r.TTL)
}

// Key returns the lowercase cache-bucket key for this record's name.
func (r *Record) Key() string { return strings.ToLower(r.Name) }

// RemainingTTL returns the number of whole seconds left before r expires as
// of now, floored at zero. Used by the outgoing builder to rewrite TTLs to
// their as-of-send-time value rather than the value the record was created
// with.
func (r *Record) RemainingTTL(now time.Time) uint32 {
	remaining := r.ExpirationTime(100).Sub(now)
	if remaining <= 0 {
		return 0
	}
	secs := int64(remaining / time.Second)
	if secs > int64(r.TTL) {
		return r.TTL
	}
	return uint32(secs)
}
