package wire

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HexBytes is a byte slice that serializes to/from a lowercase hex string
// in JSON. An empty slice marshals to "".
type HexBytes []byte

// MarshalJSON implements json.Marshaler.
func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *HexBytes) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*h = nil
		return nil
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("wire: invalid hex audio data: %w", err)
	}
	*h = data
	return nil
}
