package types

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

const (
	// IdentifierSize is the byte length of platform identifiers
	// (identities, contracts, vote polls).
	IdentifierSize = 32

	hexIdentifierLength = 2 * IdentifierSize
)

// Identifier is a 32-byte platform identifier. The text form is plain
// lower-case hex.
type Identifier [IdentifierSize]byte

func BytesToIdentifier(b []byte) (Identifier, error) {
	var id Identifier
	err := id.SetBytes(b)
	return id, err
}

func HexToIdentifier(hexStr string) (Identifier, error) {
	if len(hexStr) != hexIdentifierLength {
		return Identifier{}, fmt.Errorf("identifier hex length error %v", len(hexStr))
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return Identifier{}, err
	}
	return BytesToIdentifier(b)
}

func (id *Identifier) SetBytes(b []byte) error {
	if length := len(b); length != IdentifierSize {
		return fmt.Errorf("identifier bytes length error %v", length)
	}
	copy(id[:], b)
	return nil
}

func (id Identifier) Bytes() []byte { return id[:] }

func (id Identifier) Hex() string { return hex.EncodeToString(id[:]) }

func (id Identifier) String() string { return id.Hex() }

func (id Identifier) IsZero() bool {
	return id == Identifier{}
}

func (id Identifier) Equal(other Identifier) bool {
	return bytes.Equal(id[:], other[:])
}

func (id Identifier) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

func (id *Identifier) UnmarshalText(text []byte) error {
	parsed, err := HexToIdentifier(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
