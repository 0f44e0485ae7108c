// Package protocol decodes candidate payloads into typed drc-20
// operations. It distinguishes payloads that belong to another protocol
// (silently ignorable) from payloads that are drc-20 but malformed
// (recorded as invalid operations).
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"

	"drc20-indexer/internal/domain"
)

// Tag is the fixed protocol identifier carried in the "p" field.
// Comparison is case-sensitive.
const Tag = "drc-20"

// ErrNotProtocol marks a payload that decodes as JSON but is not a
// drc-20 operation: wrong "p" tag or an unrecognized "op". Callers
// ignore these without recording anything.
var ErrNotProtocol = errors.New("not a drc-20 payload")

// MalformedError marks a payload that is drc-20 but fails field
// decoding. These are recorded as invalid operations.
type MalformedError struct {
	Detail string
}

func (e *MalformedError) Error() string {
	return "malformed drc-20 payload: " + e.Detail
}

func malformed(format string, args ...interface{}) error {
	return &MalformedError{Detail: fmt.Sprintf(format, args...)}
}

// envelope is the raw JSON shape of a payload. Unknown extra keys are
// tolerated; required keys are validated per operation kind.
type envelope struct {
	P    string `json:"p"`
	Op   string `json:"op"`
	Tick string `json:"tick"`
	Max  string `json:"max"`
	Lim  string `json:"lim"`
	Amt  string `json:"amt"`
}

// Decode turns a candidate payload into a typed operation skeleton with
// normalized fields. The result is not yet validated against ledger
// state.
//
// Error contract: ErrNotProtocol for payloads belonging to another
// protocol; *MalformedError for drc-20 payloads that fail UTF-8, JSON,
// or field decoding.
func Decode(payload []byte) (*domain.Operation, error) {
	if !utf8.Valid(payload) {
		return nil, malformed("payload is not valid UTF-8")
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, malformed("invalid JSON: %v", err)
	}

	if env.P != Tag {
		return nil, ErrNotProtocol
	}

	var kind domain.OpKind
	switch env.Op {
	case "deploy":
		kind = domain.OpDeploy
	case "mint":
		kind = domain.OpMint
	case "transfer":
		kind = domain.OpTransfer
	default:
		return nil, ErrNotProtocol
	}

	tick, err := normalizeTick(env.Tick)
	if err != nil {
		return nil, err
	}

	op := &domain.Operation{
		Kind:       kind,
		Tick:       tick,
		RawPayload: append([]byte(nil), payload...),
	}

	switch kind {
	case domain.OpDeploy:
		if op.Max, err = parseUint(env.Max, "max"); err != nil {
			return nil, err
		}
		if op.Lim, err = parseUint(env.Lim, "lim"); err != nil {
			return nil, err
		}
	case domain.OpMint, domain.OpTransfer:
		amt, err := parseUint(env.Amt, "amt")
		if err != nil {
			return nil, err
		}
		if amt.Sign() == 0 {
			return nil, malformed("amt must be positive")
		}
		op.Amount = amt
	}

	return op, nil
}

// Encode serializes an operation skeleton back into payload bytes, the
// inverse of Decode for well-formed operations. Used by tooling and
// round-trip tests.
func Encode(op *domain.Operation) ([]byte, error) {
	env := envelope{
		P:    Tag,
		Op:   string(op.Kind),
		Tick: op.Tick,
	}
	switch op.Kind {
	case domain.OpDeploy:
		if op.Max == nil || op.Lim == nil {
			return nil, malformed("deploy requires max and lim")
		}
		env.Max = op.Max.String()
		env.Lim = op.Lim.String()
	case domain.OpMint, domain.OpTransfer:
		if op.Amount == nil {
			return nil, malformed("%s requires amt", op.Kind)
		}
		env.Amt = op.Amount.String()
	default:
		return nil, malformed("unknown operation kind %q", op.Kind)
	}
	return marshalEnvelope(env)
}

// marshalEnvelope emits only the keys relevant to the operation so the
// payload stays within the protocol size cap.
func marshalEnvelope(env envelope) ([]byte, error) {
	fields := map[string]string{"p": env.P, "op": env.Op, "tick": env.Tick}
	if env.Max != "" {
		fields["max"] = env.Max
		fields["lim"] = env.Lim
	}
	if env.Amt != "" {
		fields["amt"] = env.Amt
	}
	return json.Marshal(fields)
}

// normalizeTick validates the tick and normalizes it to uppercase for
// all internal comparisons.
func normalizeTick(tick string) (string, error) {
	if tick == "" {
		return "", malformed("tick is required")
	}
	for _, r := range tick {
		if !unicode.IsPrint(r) {
			return "", malformed("tick contains non-printable character %q", r)
		}
	}
	return strings.ToUpper(tick), nil
}

// parseUint parses a base-10 non-negative integer string into a big.Int.
// Signs, whitespace, and non-digit characters are all malformed.
func parseUint(s, field string) (*big.Int, error) {
	if s == "" {
		return nil, malformed("%s is required", field)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, malformed("%s is not a base-10 unsigned integer", field)
		}
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, malformed("%s is not a base-10 unsigned integer", field)
	}
	return n, nil
}
