package script

import (
	"bytes"
	"testing"
)

func TestExtractPayload_DirectPush(t *testing.T) {
	payload := []byte(`{"p":"drc-20","op":"mint","tick":"DOGI","amt":"1000"}`)
	script := append([]byte{0x6a, byte(len(payload))}, payload...)

	got, ok := ExtractPayload(script)
	if !ok {
		t.Fatal("Expected candidate payload")
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Payload mismatch: got %q, want %q", got, payload)
	}
}

func TestExtractPayload_PushData1(t *testing.T) {
	// 76..80 bytes cannot be a direct push; they need OP_PUSHDATA1.
	payload := bytes.Repeat([]byte("x"), 80)
	script := append([]byte{0x6a, 0x4c, byte(len(payload))}, payload...)

	got, ok := ExtractPayload(script)
	if !ok {
		t.Fatal("Expected candidate payload")
	}
	if len(got) != 80 {
		t.Errorf("Payload length: got %d, want 80", len(got))
	}
}

func TestExtractPayload_OversizedPayload(t *testing.T) {
	// 81 bytes exceeds the protocol cap, even though OP_PUSHDATA1 could
	// encode it.
	payload := bytes.Repeat([]byte("x"), 81)
	script := append([]byte{0x6a, 0x4c, byte(len(payload))}, payload...)

	if _, ok := ExtractPayload(script); ok {
		t.Error("Expected oversized payload to not be a candidate")
	}
}

func TestExtractPayload_NotCandidates(t *testing.T) {
	p2pkh := make([]byte, 25)
	p2pkh[0] = 0x76

	cases := []struct {
		name   string
		script []byte
	}{
		{"empty", nil},
		{"bare null-data opcode", []byte{0x6a}},
		{"not null-data", p2pkh},
		{"length byte exceeds script", []byte{0x6a, 0x05, 'a', 'b'}},
		{"trailing bytes after push", []byte{0x6a, 0x02, 'a', 'b', 'c'}},
		{"pushdata1 missing length", []byte{0x6a, 0x4c}},
		{"pushdata1 length exceeds script", []byte{0x6a, 0x4c, 0x10, 'a'}},
		{"pushdata2 not supported", []byte{0x6a, 0x4d, 0x02, 0x00, 'a', 'b'}},
		{"non-push opcode after marker", []byte{0x6a, 0xa9, 0x01}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := ExtractPayload(tc.script); ok {
				t.Errorf("Expected %s to not be a candidate", tc.name)
			}
		})
	}
}

func TestBuildPayloadScript_RoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 75, 76, 80} {
		payload := bytes.Repeat([]byte("y"), n)
		script, ok := BuildPayloadScript(payload)
		if !ok {
			t.Fatalf("BuildPayloadScript failed for %d bytes", n)
		}

		got, ok := ExtractPayload(script)
		if !ok {
			t.Fatalf("Built script for %d bytes is not a candidate", n)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("Round trip mismatch for %d bytes", n)
		}
	}

	if _, ok := BuildPayloadScript(bytes.Repeat([]byte("y"), 81)); ok {
		t.Error("Expected BuildPayloadScript to refuse 81 bytes")
	}
}

func TestIsPayloadOutput(t *testing.T) {
	script, _ := BuildPayloadScript([]byte(`{"p":"drc-20"}`))
	if !IsPayloadOutput(script) {
		t.Error("Expected payload script to be recognized")
	}
	if IsPayloadOutput([]byte{0x76, 0xa9}) {
		t.Error("Expected non-payload script to be rejected")
	}
}
