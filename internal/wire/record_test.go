package wire

import (
	"testing"
	"time"
)

func TestRecord_Equal_IgnoresTTLAndCreated(t *testing.T) {
	a := &Record{
		Name: "printer.local.", Class: ClassIN, TTL: 120,
		Created: time.Now(), Data: AData{Addr: [4]byte{10, 0, 0, 1}},
	}
	b := &Record{
		Name: "PRINTER.local.", Class: ClassIN, TTL: 4500,
		Created: time.Now().Add(-time.Hour), Data: AData{Addr: [4]byte{10, 0, 0, 1}},
	}
	if !a.Equal(b) {
		t.Error("Equal() = false for records differing only in TTL/Created/name case")
	}

	c := &Record{Name: "printer.local.", Class: ClassIN, TTL: 120, Created: a.Created, Data: AData{Addr: [4]byte{10, 0, 0, 2}}}
	if a.Equal(c) {
		t.Error("Equal() = true for records with different payloads")
	}
}

func TestRecord_IsExpiredAndIsStale(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &Record{Name: "host.local.", Class: ClassIN, TTL: 100, Created: created, Data: AData{}}

	tests := []struct {
		name        string
		at          time.Time
		wantExpired bool
		wantStale   bool
	}{
		{"before ttl", created.Add(10 * time.Second), false, false},
		{"at 50 percent", created.Add(50 * time.Second), false, true},
		{"just before 100 percent", created.Add(99999 * time.Millisecond), false, true},
		{"at 100 percent", created.Add(100 * time.Second), true, true},
		{"well past ttl", created.Add(200 * time.Second), true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rec.IsExpired(tt.at); got != tt.wantExpired {
				t.Errorf("IsExpired(%v) = %v, want %v", tt.at, got, tt.wantExpired)
			}
			if got := rec.IsStale(tt.at); got != tt.wantStale {
				t.Errorf("IsStale(%v) = %v, want %v", tt.at, got, tt.wantStale)
			}
		})
	}
}

func TestRecord_SuppressedBy(t *testing.T) {
	now := time.Now()
	self := &Record{Name: "host.local.", Class: ClassIN, TTL: 100, Created: now, Data: AData{Addr: [4]byte{1, 2, 3, 4}}}

	tests := []struct {
		name string
		rec  *Record
		want bool
	}{
		{
			name: "other ttl more than double suppresses",
			rec:  &Record{Name: "host.local.", Class: ClassIN, TTL: 201, Created: now, Data: AData{Addr: [4]byte{1, 2, 3, 4}}},
			want: true,
		},
		{
			name: "other ttl exactly half does not suppress",
			rec:  &Record{Name: "host.local.", Class: ClassIN, TTL: 50, Created: now, Data: AData{Addr: [4]byte{1, 2, 3, 4}}},
			want: false,
		},
		{
			name: "different payload never suppresses",
			rec:  &Record{Name: "host.local.", Class: ClassIN, TTL: 1000, Created: now, Data: AData{Addr: [4]byte{9, 9, 9, 9}}},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := self.SuppressedBy(tt.rec); got != tt.want {
				t.Errorf("SuppressedBy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecord_RemainingTTL(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &Record{TTL: 120, Created: created}

	if got := rec.RemainingTTL(created); got != 120 {
		t.Errorf("RemainingTTL(created) = %d, want 120", got)
	}
	if got := rec.RemainingTTL(created.Add(60 * time.Second)); got != 60 {
		t.Errorf("RemainingTTL(+60s) = %d, want 60", got)
	}
	if got := rec.RemainingTTL(created.Add(200 * time.Second)); got != 0 {
		t.Errorf("RemainingTTL(+200s) = %d, want 0", got)
	}
}

func TestQuestion_AnsweredBy(t *testing.T) {
	rec := &Record{Name: "My Printer._http._tcp.local.", Class: ClassIN, Data: SRVData{Target: "host.local."}}

	tests := []struct {
		name string
		q    Question
		want bool
	}{
		{"exact type match", Question{Name: "my printer._http._tcp.local.", Type: TypeSRV, Class: ClassIN}, true},
		{"ANY matches any type", Question{Name: "My Printer._http._tcp.local.", Type: TypeANY, Class: ClassIN}, true},
		{"wrong type", Question{Name: "My Printer._http._tcp.local.", Type: TypeTXT, Class: ClassIN}, false},
		{"wrong name", Question{Name: "Other._http._tcp.local.", Type: TypeSRV, Class: ClassIN}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.AnsweredBy(rec); got != tt.want {
				t.Errorf("AnsweredBy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHINFOData_FieldIsOSNotMisspelled(t *testing.T) {
	d := HINFOData{CPU: "x86_64", OS: "linux"}
	if d.OS != "linux" {
		t.Errorf("HINFOData.OS = %q, want %q", d.OS, "linux")
	}
}
