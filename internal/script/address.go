package script

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Dogecoin mainnet base58check version bytes.
const (
	versionP2PKH = 0x1e
	versionP2SH  = 0x16
)

var errBadAddress = errors.New("bad address")

// ResolveAddress resolves a standard spendable script to its base58check
// address. Only P2PKH and P2SH scripts are standard here; anything else
// (including null-data outputs) yields ok=false.
func ResolveAddress(script []byte) (string, bool) {
	// P2PKH: OP_DUP OP_HASH160 <20 bytes> OP_EQUALVERIFY OP_CHECKSIG
	if len(script) == 25 &&
		script[0] == 0x76 && script[1] == 0xa9 && script[2] == 0x14 &&
		script[23] == 0x88 && script[24] == 0xac {
		return encodeBase58Check(versionP2PKH, script[3:23]), true
	}

	// P2SH: OP_HASH160 <20 bytes> OP_EQUAL
	if len(script) == 23 &&
		script[0] == 0xa9 && script[1] == 0x14 && script[22] == 0x87 {
		return encodeBase58Check(versionP2SH, script[2:22]), true
	}

	return "", false
}

// AddressScript builds the scriptPubKey paying to a base58check address,
// the inverse of ResolveAddress.
func AddressScript(address string) ([]byte, error) {
	version, hash, err := decodeBase58Check(address)
	if err != nil {
		return nil, err
	}

	switch version {
	case versionP2PKH:
		script := make([]byte, 0, 25)
		script = append(script, 0x76, 0xa9, 0x14)
		script = append(script, hash...)
		return append(script, 0x88, 0xac), nil
	case versionP2SH:
		script := make([]byte, 0, 23)
		script = append(script, 0xa9, 0x14)
		script = append(script, hash...)
		return append(script, 0x87), nil
	default:
		return nil, fmt.Errorf("%w: unknown version byte 0x%02x", errBadAddress, version)
	}
}

func encodeBase58Check(version byte, hash160 []byte) string {
	payload := make([]byte, 0, 25)
	payload = append(payload, version)
	payload = append(payload, hash160...)
	return base58.Encode(append(payload, checksum(payload)...))
}

func decodeBase58Check(address string) (byte, []byte, error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", errBadAddress, err)
	}
	if len(raw) != 25 {
		return 0, nil, fmt.Errorf("%w: length %d", errBadAddress, len(raw))
	}

	payload, sum := raw[:21], raw[21:]
	if !bytes.Equal(sum, checksum(payload)) {
		return 0, nil, fmt.Errorf("%w: checksum mismatch", errBadAddress)
	}

	return payload[0], payload[1:], nil
}

// checksum is the first four bytes of double-SHA256 over the payload.
func checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:4]
}
