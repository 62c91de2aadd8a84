package discovery

import (
	"errors"
	"net"
	"testing"
)

func TestServerInfoValidate(t *testing.T) {
	valid := ServerInfo{Instance: "living-room", Port: 12345, Version: "1"}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid info rejected: %v", err)
	}

	if err := (ServerInfo{Instance: "", Port: 12345}).Validate(); !errors.Is(err, ErrEmptyInstance) {
		t.Errorf("expected ErrEmptyInstance, got %v", err)
	}
	if err := (ServerInfo{Instance: "   ", Port: 12345}).Validate(); !errors.Is(err, ErrEmptyInstance) {
		t.Errorf("expected ErrEmptyInstance for blank name, got %v", err)
	}
	if err := (ServerInfo{Instance: "x", Port: 0}).Validate(); !errors.Is(err, ErrInvalidPort) {
		t.Errorf("expected ErrInvalidPort, got %v", err)
	}
	if err := (ServerInfo{Instance: "x", Port: 70000}).Validate(); !errors.Is(err, ErrInvalidPort) {
		t.Errorf("expected ErrInvalidPort, got %v", err)
	}
}

func TestTXTRoundTrip(t *testing.T) {
	records := EncodeTXT(ServerInfo{Instance: "x", Port: 1, Version: "1"})
	parsed := ParseTXT(records)

	if parsed[txtKeyVersion] != "1" {
		t.Errorf("version = %q, want %q", parsed[txtKeyVersion], "1")
	}
}

func TestParseTXTIgnoresMalformed(t *testing.T) {
	parsed := ParseTXT([]string{"v=2", "noequals", "=emptykey", "extra=a=b"})

	if parsed["v"] != "2" {
		t.Errorf("v = %q, want %q", parsed["v"], "2")
	}
	if _, ok := parsed["noequals"]; ok {
		t.Error("record without '=' should be ignored")
	}
	if _, ok := parsed[""]; ok {
		t.Error("record with empty key should be ignored")
	}
	// Only the first '=' splits key from value.
	if parsed["extra"] != "a=b" {
		t.Errorf("extra = %q, want %q", parsed["extra"], "a=b")
	}
}

func TestDiscoveredAddr(t *testing.T) {
	d := Discovered{
		Instance:  "x",
		Addresses: []net.IP{net.IPv4(192, 168, 1, 10)},
		Port:      12345,
	}
	if got := d.Addr(); got != "192.168.1.10:12345" {
		t.Errorf("Addr = %q, want %q", got, "192.168.1.10:12345")
	}

	if got := (Discovered{}).Addr(); got != "" {
		t.Errorf("Addr on empty entry = %q, want empty", got)
	}
}
