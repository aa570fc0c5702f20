package mdns

import (
	"net"
	"testing"
	"time"

	"github.com/linklocal/mdns/internal/wire"
)

func packAndParse(t *testing.T, out *wire.Outgoing) *wire.Message {
	t.Helper()
	payload, err := out.Pack()
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	msg, err := wire.ParseMessage(payload)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	return msg
}

func TestAnswerQuestion_ServicesMetaQueryListsEveryRegisteredType(t *testing.T) {
	var n *Node

	typeRefs := map[string]int{
		"_http._tcp.local.": 1,
		"_ssh._tcp.local.":  1,
	}

	out := wire.NewOutgoing(wire.FlagQR|wire.FlagAA, true)
	now := time.Now()
	add := func(rec *wire.Record) { out.AddAnswer(rec, now) }

	q := wire.Question{Name: servicesMetaQuery, Type: wire.TypePTR, Class: wire.ClassIN}
	n.answerQuestion(q, nil, typeRefs, add, out, now)

	msg := packAndParse(t, out)
	if len(msg.Answers) != 2 {
		t.Fatalf("got %d answers, want 2", len(msg.Answers))
	}
	seen := map[string]bool{}
	for _, rec := range msg.Answers {
		ptr, ok := rec.Data.(wire.PTRData)
		if !ok {
			t.Fatalf("answer %v is not a PTR record", rec)
		}
		seen[ptr.Target] = true
	}
	if !seen["_http._tcp.local."] || !seen["_ssh._tcp.local."] {
		t.Errorf("answers = %v, want both registered types", seen)
	}
}

func TestAnswerQuestion_TypePTRQueryAnswersWithInstance(t *testing.T) {
	var n *Node

	info, err := NewServiceInfo("_http._tcp.local.", "Printer._http._tcp.local.", net.ParseIP("127.0.0.1"), 80, "")
	if err != nil {
		t.Fatalf("NewServiceInfo: %v", err)
	}
	services := map[string]*registeredService{
		"printer._http._tcp.local.": {info: info, ttl: 3600},
	}
	typeRefs := map[string]int{"_http._tcp.local.": 1}

	out := wire.NewOutgoing(wire.FlagQR|wire.FlagAA, true)
	now := time.Now()
	add := func(rec *wire.Record) { out.AddAnswer(rec, now) }

	q := wire.Question{Name: "_http._tcp.local.", Type: wire.TypePTR, Class: wire.ClassIN}
	n.answerQuestion(q, services, typeRefs, add, out, now)

	msg := packAndParse(t, out)
	if len(msg.Answers) != 1 {
		t.Fatalf("got %d answers, want 1", len(msg.Answers))
	}
	ptr, ok := msg.Answers[0].Data.(wire.PTRData)
	if !ok || ptr.Target != info.Name() {
		t.Errorf("answer = %+v, want PTR to %q", msg.Answers[0], info.Name())
	}
}

func TestAnswerQuestion_SRVQuestionAddsAAdditional(t *testing.T) {
	var n *Node

	info, err := NewServiceInfo("_http._tcp.local.", "Printer._http._tcp.local.", net.ParseIP("127.0.0.1"), 80, "")
	if err != nil {
		t.Fatalf("NewServiceInfo: %v", err)
	}
	services := map[string]*registeredService{
		"printer._http._tcp.local.": {info: info, ttl: 3600},
	}

	out := wire.NewOutgoing(wire.FlagQR|wire.FlagAA, true)
	now := time.Now()
	add := func(rec *wire.Record) { out.AddAnswer(rec, now) }

	q := wire.Question{Name: info.Name(), Type: wire.TypeSRV, Class: wire.ClassIN}
	n.answerQuestion(q, services, nil, add, out, now)

	msg := packAndParse(t, out)
	if len(msg.Answers) != 1 {
		t.Fatalf("got %d answers, want 1 SRV answer", len(msg.Answers))
	}
	if len(msg.Additionals) != 1 {
		t.Fatalf("got %d additionals, want 1 A record for the server host", len(msg.Additionals))
	}
	if _, ok := msg.Additionals[0].Data.(wire.AData); !ok {
		t.Errorf("additional = %+v, want an A record", msg.Additionals[0])
	}
}

func TestAnswerQuestion_SuppressesAnswerAlreadyKnown(t *testing.T) {
	var n *Node

	info, err := NewServiceInfo("_http._tcp.local.", "Printer._http._tcp.local.", net.ParseIP("127.0.0.1"), 80, "")
	if err != nil {
		t.Fatalf("NewServiceInfo: %v", err)
	}
	services := map[string]*registeredService{
		"printer._http._tcp.local.": {info: info, ttl: 3600},
	}
	typeRefs := map[string]int{"_http._tcp.local.": 1}

	knownAnswer := ptrRecord(info.Type(), info.Name(), 7200) // double the TTL we'd answer with

	out := wire.NewOutgoing(wire.FlagQR|wire.FlagAA, true)
	now := time.Now()
	known := []*wire.Record{knownAnswer}
	add := func(rec *wire.Record) {
		for _, k := range known {
			if rec.SuppressedBy(k) {
				return
			}
		}
		out.AddAnswer(rec, now)
	}

	q := wire.Question{Name: "_http._tcp.local.", Type: wire.TypePTR, Class: wire.ClassIN}
	n.answerQuestion(q, services, typeRefs, add, out, now)

	if !out.Empty() {
		t.Error("expected the PTR answer to be suppressed by the known answer, but the outgoing message is non-empty")
	}
}
