package models

import (
	"time"
)

// RawFeedMessage represents one raw message received from the market data
// websocket before any parsing has happened.
type RawFeedMessage struct {
	Exchange string
	Data     []byte
	Received time.Time
}

// PriceLevel represents a single price level in an order book. Values are
// never mutated after construction.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBookSnapshot represents the complete order book state for one symbol
// at one point in time. Asks are sorted ascending by price, bids descending.
// Snapshots are immutable once built; the cache replaces them wholesale.
type OrderBookSnapshot struct {
	Timestamp int64        `json:"timestamp"` // milliseconds since epoch, UTC
	Exchange  string       `json:"exchange"`
	Symbol    string       `json:"symbol"`
	Asks      []PriceLevel `json:"asks"`
	Bids      []PriceLevel `json:"bids"`
}

// MidPrice returns the midpoint between the best ask and best bid, or 0 when
// either side of the book is empty.
func (s *OrderBookSnapshot) MidPrice() float64 {
	if len(s.Asks) == 0 || len(s.Bids) == 0 {
		return 0
	}
	return (s.Asks[0].Price + s.Bids[0].Price) / 2
}

// Spread returns best ask price minus best bid price, or 0 when either side
// is empty.
func (s *OrderBookSnapshot) Spread() float64 {
	if len(s.Asks) == 0 || len(s.Bids) == 0 {
		return 0
	}
	return s.Asks[0].Price - s.Bids[0].Price
}

// SpreadBPS returns the absolute spread expressed in basis points of the mid
// price, or 0 when the mid price is 0.
func (s *OrderBookSnapshot) SpreadBPS() float64 {
	mid := s.MidPrice()
	if mid == 0 {
		return 0
	}
	spread := s.Spread()
	if spread < 0 {
		spread = -spread
	}
	return spread / mid * 10000
}

// DepthUSD returns the notional value available within the top n price
// levels on each side, summed across both sides.
func (s *OrderBookSnapshot) DepthUSD(n int) float64 {
	var total float64
	for i, l := range s.Asks {
		if i >= n {
			break
		}
		total += l.Price * l.Quantity
	}
	for i, l := range s.Bids {
		if i >= n {
			break
		}
		total += l.Price * l.Quantity
	}
	return total
}
