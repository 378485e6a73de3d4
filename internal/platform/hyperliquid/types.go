package hyperliquid

// --------------------------------------------------------------------------
// Hyperliquid info API DTOs
// --------------------------------------------------------------------------

// infoRequest is the body of a POST /info call.
type infoRequest struct {
	Type string `json:"type"`
	Coin string `json:"coin,omitempty"`
}

// L2Level is a single aggregated level of an L2 book.
type L2Level struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  int    `json:"n"` // number of resting orders
}

// L2Book is the l2Book response. Levels[0] are bids, Levels[1] asks.
type L2Book struct {
	Coin   string      `json:"coin"`
	Time   int64       `json:"time"` // unix millis
	Levels [][]L2Level `json:"levels"`
}
