package mdns

import (
	"net"
	"reflect"
	"testing"
)

func TestNewServiceInfo_RejectsNameNotEndingInType(t *testing.T) {
	_, err := NewServiceInfo("_http._tcp.local.", "My Service._printer._tcp.local.", net.ParseIP("127.0.0.1"), 1234, "")
	if err == nil {
		t.Fatal("expected a validation error for a mismatched instance name")
	}
}

func TestNewServiceInfo_DefaultsServerToInstanceName(t *testing.T) {
	info, err := NewServiceInfo("_http._tcp.local.", "My Service._http._tcp.local.", net.ParseIP("127.0.0.1"), 1234, "")
	if err != nil {
		t.Fatalf("NewServiceInfo: %v", err)
	}
	if info.Server() != info.Name() {
		t.Errorf("Server() = %q, want instance name %q", info.Server(), info.Name())
	}
}

func TestServiceInfo_PropertiesRoundTrip(t *testing.T) {
	info, err := NewServiceInfo("_http._tcp.local.", "My Service._http._tcp.local.", net.ParseIP("127.0.0.1"), 1234, "")
	if err != nil {
		t.Fatalf("NewServiceInfo: %v", err)
	}

	if err := info.SetProperty("version", "0.10"); err != nil {
		t.Fatalf("SetProperty(version): %v", err)
	}
	if err := info.SetProperty("a", "test value"); err != nil {
		t.Fatalf("SetProperty(a): %v", err)
	}
	if err := info.SetProperty("b", "another value"); err != nil {
		t.Fatalf("SetProperty(b): %v", err)
	}

	blob := info.TextBlob()

	decoded, err := NewServiceInfo("_http._tcp.local.", "My Service._http._tcp.local.", nil, 0, "")
	if err != nil {
		t.Fatalf("NewServiceInfo: %v", err)
	}
	if err := decoded.SetTextBlob(blob); err != nil {
		t.Fatalf("SetTextBlob: %v", err)
	}

	want := map[string]string{"version": "0.10", "a": "test value", "b": "another value"}
	if got := decoded.Properties(); !reflect.DeepEqual(got, want) {
		t.Errorf("Properties() = %v, want %v", got, want)
	}
}

func TestParseTextBlob_KnownExample(t *testing.T) {
	blob := []byte("\x07version=0.10\x0ba=test value\x10b=another value")

	props, err := parseTextBlob(blob)
	if err != nil {
		t.Fatalf("parseTextBlob: %v", err)
	}

	want := map[string]string{"version": "0.10", "a": "test value", "b": "another value"}
	if !reflect.DeepEqual(props, want) {
		t.Errorf("parseTextBlob() = %v, want %v", props, want)
	}
}

func TestServiceInfo_SetProperty_BoolAndIntCoercion(t *testing.T) {
	info, err := NewServiceInfo("_http._tcp.local.", "svc._http._tcp.local.", nil, 0, "")
	if err != nil {
		t.Fatalf("NewServiceInfo: %v", err)
	}

	if err := info.SetProperty("flag-true", true); err != nil {
		t.Fatalf("SetProperty(bool true): %v", err)
	}
	if err := info.SetProperty("flag-false", false); err != nil {
		t.Fatalf("SetProperty(bool false): %v", err)
	}
	if err := info.SetProperty("legacy-int", 1); err != nil {
		t.Fatalf("SetProperty(int 1): %v", err)
	}
	if err := info.SetProperty("legacy-zero", 0); err != nil {
		t.Fatalf("SetProperty(int 0): %v", err)
	}

	props := info.Properties()
	if props["flag-true"] != "true" {
		t.Errorf("flag-true = %q, want true", props["flag-true"])
	}
	if props["flag-false"] != "false" {
		t.Errorf("flag-false = %q, want false", props["flag-false"])
	}
	if props["legacy-int"] != "true" {
		t.Errorf("legacy-int = %q, want true", props["legacy-int"])
	}
	if props["legacy-zero"] != "false" {
		t.Errorf("legacy-zero = %q, want false", props["legacy-zero"])
	}
}

func TestServiceInfo_SetProperty_RejectsUnsupportedType(t *testing.T) {
	info, err := NewServiceInfo("_http._tcp.local.", "svc._http._tcp.local.", nil, 0, "")
	if err != nil {
		t.Fatalf("NewServiceInfo: %v", err)
	}
	if err := info.SetProperty("bad", 3.14); err == nil {
		t.Error("expected an error for a float property value")
	}
}

func TestParseTextBlob_NoEqualsSignBecomesFalse(t *testing.T) {
	blob := []byte{byte(len("flag")), 'f', 'l', 'a', 'g'}
	props, err := parseTextBlob(blob)
	if err != nil {
		t.Fatalf("parseTextBlob: %v", err)
	}
	if props["flag"] != "false" {
		t.Errorf("props[flag] = %q, want false", props["flag"])
	}
}

func TestBuildTextBlob_Empty(t *testing.T) {
	blob := buildTextBlob(nil)
	if len(blob) != 1 || blob[0] != 0 {
		t.Errorf("buildTextBlob(nil) = %v, want a single zero byte", blob)
	}
}
