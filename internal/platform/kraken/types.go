package kraken

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Kraken public REST API DTOs
// --------------------------------------------------------------------------

// envelope wraps every Kraken REST response.
type envelope[T any] struct {
	Error  []string `json:"error"`
	Result T        `json:"result"`
}

// AssetPair is an entry of /0/public/AssetPairs.
type AssetPair struct {
	Altname string `json:"altname"`
	WSName  string `json:"wsname"`
	Base    string `json:"base"`
	Quote   string `json:"quote"`
	Status  string `json:"status"`
}

// DepthLevel is a [price, volume, timestamp] triple.
type DepthLevel struct {
	Price     string
	Volume    string
	Timestamp int64
}

// UnmarshalJSON decodes the positional array form.
func (l *DepthLevel) UnmarshalJSON(b []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return err
	}
	if len(parts) < 2 {
		return fmt.Errorf("depth level: expected at least 2 fields, got %d", len(parts))
	}
	if err := json.Unmarshal(parts[0], &l.Price); err != nil {
		return fmt.Errorf("depth level price: %w", err)
	}
	if err := json.Unmarshal(parts[1], &l.Volume); err != nil {
		return fmt.Errorf("depth level volume: %w", err)
	}
	if len(parts) > 2 {
		var ts json.Number
		if err := json.Unmarshal(parts[2], &ts); err == nil {
			l.Timestamp, _ = ts.Int64()
		}
	}
	return nil
}

// Depth is one pair's book from /0/public/Depth.
type Depth struct {
	Asks []DepthLevel `json:"asks"`
	Bids []DepthLevel `json:"bids"`
}
