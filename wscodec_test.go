package dullahan

import "testing"

func TestComputeAcceptKey(t *testing.T) {
	got := computeAcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("accept key = %q, want %q", got, want)
	}
}

func TestValidateAcceptKey(t *testing.T) {
	if err := ValidateAcceptKey("dGhlIHNhbXBsZSBub25jZQ==", "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="); err != nil {
		t.Fatalf("expected valid accept key, got error: %v", err)
	}
	if err := ValidateAcceptKey("dGhlIHNhbXBsZSBub25jZQ==", "wrong"); err == nil {
		t.Fatal("expected error for mismatched accept key")
	}
}

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	lengths := []int{0, 1, 125, 126, 65535, 65536}
	for _, n := range lengths {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i)
		}

		for _, op := range []Opcode{OpText, OpBinary} {
			encoded := EncodeFrame(nil, op, payload)

			// Server frames are unmasked; mask it here the way a real
			// client would, since decodeFrame requires masked input.
			masked := maskClientFrame(t, encoded, len(encoded)-n)

			res, err := decodeFrame(masked)
			if err != nil {
				t.Fatalf("len=%d op=%v: decode error: %v", n, op, err)
			}
			if !res.completed {
				t.Fatalf("len=%d op=%v: expected completed frame", n, op)
			}
			if res.frame.Opcode != op {
				t.Fatalf("len=%d op=%v: opcode = %v", n, op, res.frame.Opcode)
			}
			if len(res.frame.Payload) != n {
				t.Fatalf("len=%d op=%v: payload length = %d", n, op, len(res.frame.Payload))
			}
			for i, b := range res.frame.Payload {
				if b != byte(i) {
					t.Fatalf("len=%d op=%v: payload[%d] = %d, want %d", n, op, i, b, byte(i))
				}
			}
		}
	}
}

func TestDecodeFrameIncomplete(t *testing.T) {
	res, err := decodeFrame([]byte{0x82})
	if err != nil {
		t.Fatalf("unexpected error on incomplete header: %v", err)
	}
	if res.completed {
		t.Fatal("expected incomplete result for a single header byte")
	}
}

func TestDecodeFrameRejectsUnmasked(t *testing.T) {
	encoded := EncodeFrame(nil, OpText, []byte("hi"))
	if _, err := decodeFrame(encoded); err != ErrUnmaskedClientFrame {
		t.Fatalf("expected ErrUnmaskedClientFrame, got %v", err)
	}
}

// maskClientFrame rewrites a server-encoded (unmasked) frame into a
// masked one, splicing a mask key in after the length field, i.e. after
// the first headerLen bytes of the frame.
func maskClientFrame(t *testing.T, encoded []byte, headerLen int) []byte {
	t.Helper()
	header := append([]byte(nil), encoded[:headerLen]...)
	payload := append([]byte(nil), encoded[headerLen:]...)

	header[1] |= 0x80 // set mask bit
	key := [4]byte{0x12, 0x34, 0x56, 0x78}

	out := append(header, key[:]...)
	for i := range payload {
		payload[i] ^= key[i%4]
	}
	return append(out, payload...)
}
