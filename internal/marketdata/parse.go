package marketdata

import (
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"tradesim/models"
)

var (
	// ErrMalformedMessage is returned when a feed payload cannot be decoded.
	ErrMalformedMessage = errors.New("malformed order book message")
	// ErrMissingSymbol is returned when a payload carries no symbol.
	ErrMissingSymbol = errors.New("order book message missing symbol")
)

// feedMessage mirrors the L2 snapshot payload pushed by the feed. Price
// levels arrive as [price, quantity] pairs whose elements may be strings or
// numbers depending on the upstream.
type feedMessage struct {
	Symbol    string  `json:"symbol"`
	Exchange  string  `json:"exchange"`
	Timestamp string  `json:"timestamp"`
	Asks      [][]any `json:"asks"`
	Bids      [][]any `json:"bids"`
}

// ParseSnapshot decodes a raw feed payload into an order book snapshot.
// Levels with an empty or non-positive price or quantity are dropped, but a
// non-numeric value rejects the whole message. Both sides are re-sorted so
// asks ascend and bids descend regardless of the upstream ordering. A
// missing or unparseable timestamp falls back to now; the snapshot is still
// accepted.
func ParseSnapshot(raw []byte, now time.Time) (models.OrderBookSnapshot, error) {
	var msg feedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return models.OrderBookSnapshot{}, ErrMalformedMessage
	}
	if msg.Symbol == "" {
		return models.OrderBookSnapshot{}, ErrMissingSymbol
	}

	exchange := msg.Exchange
	if exchange == "" {
		exchange = "OKX"
	}

	ts := now
	if msg.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, msg.Timestamp); err == nil {
			ts = parsed
		}
	}

	asks, err := parseLevels(msg.Asks)
	if err != nil {
		return models.OrderBookSnapshot{}, err
	}
	bids, err := parseLevels(msg.Bids)
	if err != nil {
		return models.OrderBookSnapshot{}, err
	}
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })

	return models.OrderBookSnapshot{
		Timestamp: ts.UnixMilli(),
		Exchange:  exchange,
		Symbol:    msg.Symbol,
		Asks:      asks,
		Bids:      bids,
	}, nil
}

func parseLevels(levels [][]any) ([]models.PriceLevel, error) {
	out := make([]models.PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		if len(lvl) < 2 {
			continue
		}
		price, err := levelValue(lvl[0])
		if err != nil {
			return nil, err
		}
		qty, err := levelValue(lvl[1])
		if err != nil {
			return nil, err
		}
		if price <= 0 || qty <= 0 {
			continue
		}
		out = append(out, models.PriceLevel{Price: price, Quantity: qty})
	}
	return out, nil
}

// levelValue coerces a JSON value to float64, accepting either the string
// encoding most exchanges use or a plain number. An empty string means an
// absent value and coerces to zero; anything else that fails to parse marks
// the message malformed.
func levelValue(v any) (float64, error) {
	switch val := v.(type) {
	case string:
		if val == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, ErrMalformedMessage
		}
		return f, nil
	case float64:
		return val, nil
	case nil:
		return 0, nil
	default:
		return 0, ErrMalformedMessage
	}
}
