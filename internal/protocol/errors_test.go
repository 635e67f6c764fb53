package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrProtoVersion,
		ErrWorldBusy,
		ErrNoMap,
		ErrBadVehicle,
		ErrBadResume,
		ErrBadRequest,
		ErrRateLimit,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestNewError_UnknownCodeFallsBack(t *testing.T) {
	if m := NewError("E_WHATEVER", "x"); m.Code != ErrInternal || m.Type != TypeError {
		t.Fatalf("unexpected: %+v", m)
	}
	if m := NewError(ErrNoMap, "no track"); m.Code != ErrNoMap || m.Message != "no track" {
		t.Fatalf("unexpected: %+v", m)
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := DecodeBase([]byte(`{"type":"INPUT","protocol_version":"1.0","held":["MOVE"]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != TypeInput || m.ProtocolVersion != Version {
		t.Fatalf("unexpected: %+v", m)
	}
	if _, err := DecodeBase([]byte(`{`)); err == nil {
		t.Fatalf("expected error on truncated json")
	}
}
