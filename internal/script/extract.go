// Package script handles raw output script bytes: extracting candidate
// protocol payloads from null-data outputs and resolving standard
// scripts to addresses.
package script

// Script opcodes and protocol limits.
const (
	opReturn    = 0x6a
	opPushData1 = 0x4c

	// maxDirectPush is the largest length encodable as a bare length byte.
	maxDirectPush = 75

	// MaxPayloadSize is the protocol cap on payload bytes. Pushes that
	// would decode to more than this are not candidates.
	MaxPayloadSize = 80
)

// ExtractPayload returns the candidate payload carried by a null-data
// output script, or ok=false if the script is not a candidate.
//
// A candidate script is exactly: the null-data opcode, followed by either
// a direct push (length byte <= 75) or OP_PUSHDATA1 with a one-byte
// length (<= 255), followed by exactly that many payload bytes, with the
// payload no longer than MaxPayloadSize. Multi-byte-length pushes
// (OP_PUSHDATA2/4) and any byte-level malformation yield ok=false; the
// function never fails in any other way.
func ExtractPayload(script []byte) ([]byte, bool) {
	if len(script) < 2 || script[0] != opReturn {
		return nil, false
	}

	switch {
	case script[1] <= maxDirectPush:
		n := int(script[1])
		if len(script) != 2+n {
			return nil, false
		}
		return script[2 : 2+n], true

	case script[1] == opPushData1:
		if len(script) < 3 {
			return nil, false
		}
		n := int(script[2])
		if n > MaxPayloadSize || len(script) != 3+n {
			return nil, false
		}
		return script[3 : 3+n], true

	default:
		// OP_PUSHDATA2/4 or a non-push opcode after the null-data marker.
		return nil, false
	}
}

// IsPayloadOutput reports whether the script carries a candidate payload.
// Used when binding an operation to the first non-payload output that
// follows it.
func IsPayloadOutput(script []byte) bool {
	_, ok := ExtractPayload(script)
	return ok
}

// BuildPayloadScript encodes a payload into a null-data output script,
// the inverse of ExtractPayload. Returns ok=false if the payload exceeds
// MaxPayloadSize.
func BuildPayloadScript(payload []byte) ([]byte, bool) {
	if len(payload) > MaxPayloadSize {
		return nil, false
	}

	if len(payload) <= maxDirectPush {
		out := make([]byte, 0, 2+len(payload))
		out = append(out, opReturn, byte(len(payload)))
		return append(out, payload...), true
	}

	out := make([]byte, 0, 3+len(payload))
	out = append(out, opReturn, opPushData1, byte(len(payload)))
	return append(out, payload...), true
}
