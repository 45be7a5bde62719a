package bytes

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// HexBytes is a wrapper around []byte that encodes data as lower-case
// hexadecimal strings for use in JSON and logs. Consensus hashes are
// compared across nodes in this form.
type HexBytes []byte

// ParseHexBytes decodes a hexadecimal string.
func ParseHexBytes(s string) (HexBytes, error) {
	dec, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return HexBytes(dec), nil
}

// MarshalText encodes a HexBytes value as hexadecimal digits.
// This method is used by json.Marshal.
func (bz HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(bz)), nil
}

// UnmarshalText handles decoding of HexBytes from JSON strings.
// This method is used by json.Unmarshal.
func (bz *HexBytes) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*bz = nil
		return nil
	}
	dec, err := hex.DecodeString(string(data))
	if err != nil {
		return err
	}
	*bz = HexBytes(dec)
	return nil
}

// ShortString returns the first six hex digits, for logs.
func (bz HexBytes) ShortString() string {
	if len(bz) < 3 {
		return hex.EncodeToString(bz)
	}
	return hex.EncodeToString(bz[:3])
}

func (bz HexBytes) String() string {
	return hex.EncodeToString(bz)
}

// Copy creates a deep copy of HexBytes. It allocates new buffer and copies data into it.
func (bz HexBytes) Copy() HexBytes {
	if bz == nil {
		return nil
	}
	copied := make(HexBytes, len(bz))
	copy(copied, bz)
	return copied
}

func (bz HexBytes) Equal(b []byte) bool {
	return bytes.Equal(bz, b)
}
