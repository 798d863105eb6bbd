package dullahan

import (
	"encoding/binary"
	"testing"
)

func TestParseJSONHello(t *testing.T) {
	raw := []byte(`{"type":"hello","client_id":"abc-123"}`)
	msg := ParseClientMessage(OpText, raw)
	hello, ok := msg.(HelloMsg)
	if !ok {
		t.Fatalf("expected HelloMsg, got %T", msg)
	}
	if hello.ClientID != "abc-123" {
		t.Fatalf("client_id = %q", hello.ClientID)
	}
}

func TestParseJSONUnknownTypeIsUnknownMsg(t *testing.T) {
	raw := []byte(`{"type":"not_a_real_type"}`)
	if _, ok := ParseClientMessage(OpText, raw).(UnknownMsg); !ok {
		t.Fatal("expected UnknownMsg for an unrecognized type")
	}
}

func TestParseJSONMalformedIsUnknownMsg(t *testing.T) {
	raw := []byte(`{not json`)
	if _, ok := ParseClientMessage(OpText, raw).(UnknownMsg); !ok {
		t.Fatal("expected UnknownMsg for malformed JSON")
	}
}

func TestParseBinaryResize(t *testing.T) {
	body := make([]byte, 7)
	body[0] = binTagResize
	binary.BigEndian.PutUint16(body[1:3], 2)
	binary.BigEndian.PutUint16(body[3:5], 100)
	binary.BigEndian.PutUint16(body[5:7], 40)

	msg := ParseClientMessage(OpBinary, body)
	resize, ok := msg.(ResizeMsg)
	if !ok {
		t.Fatalf("expected ResizeMsg, got %T", msg)
	}
	if resize.Pane != 2 || resize.Cols != 100 || resize.Rows != 40 {
		t.Fatalf("decoded resize = %+v", resize)
	}
}

func TestParseBinaryKeyWithModifiers(t *testing.T) {
	key := "a"
	body := make([]byte, 4+len(key))
	body[0] = binTagKey
	binary.BigEndian.PutUint16(body[1:3], 1)
	body[3] = 0x1 | 0x4 // shift + ctrl
	copy(body[4:], key)

	msg := ParseClientMessage(OpBinary, body)
	km, ok := msg.(KeyMsg)
	if !ok {
		t.Fatalf("expected KeyMsg, got %T", msg)
	}
	if km.Pane != 1 || km.Key != "a" || !km.Shift || !km.Ctrl || km.Alt || km.Meta {
		t.Fatalf("decoded key = %+v", km)
	}
}

func TestParseBinaryUnknownTagIsUnknownMsg(t *testing.T) {
	if _, ok := ParseClientMessage(OpBinary, []byte{0xFF, 0, 0}).(UnknownMsg); !ok {
		t.Fatal("expected UnknownMsg for an unrecognized binary tag")
	}
}
