package marketdata

import (
	"errors"
	"testing"
	"time"
)

func TestParseSnapshotBasic(t *testing.T) {
	raw := []byte(`{
		"symbol": "BTC-USDT-SWAP",
		"exchange": "OKX",
		"timestamp": "2025-05-04T10:15:30.123Z",
		"asks": [["95000.5", "1.5"], ["95001.0", "2.0"]],
		"bids": [["94999.5", "3.0"], ["94998.0", "1.0"]]
	}`)

	snap, err := ParseSnapshot(raw, time.Now())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if snap.Symbol != "BTC-USDT-SWAP" {
		t.Errorf("symbol = %q", snap.Symbol)
	}
	if snap.Exchange != "OKX" {
		t.Errorf("exchange = %q", snap.Exchange)
	}
	want := time.Date(2025, 5, 4, 10, 15, 30, 123000000, time.UTC).UnixMilli()
	if snap.Timestamp != want {
		t.Errorf("timestamp = %d, want %d", snap.Timestamp, want)
	}
	if len(snap.Asks) != 2 || len(snap.Bids) != 2 {
		t.Fatalf("levels = %d asks, %d bids", len(snap.Asks), len(snap.Bids))
	}
	if snap.Asks[0].Price != 95000.5 || snap.Asks[0].Quantity != 1.5 {
		t.Errorf("best ask = %+v", snap.Asks[0])
	}
}

func TestParseSnapshotNumericLevels(t *testing.T) {
	raw := []byte(`{"symbol":"ETH-USDT","asks":[[3000.5, 2]],"bids":[[2999.5, 4]]}`)
	snap, err := ParseSnapshot(raw, time.Now())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if snap.Exchange != "OKX" {
		t.Errorf("expected default exchange OKX, got %q", snap.Exchange)
	}
	if snap.Asks[0].Price != 3000.5 || snap.Bids[0].Quantity != 4 {
		t.Errorf("levels = %+v / %+v", snap.Asks, snap.Bids)
	}
}

func TestParseSnapshotDropsEmptyLevels(t *testing.T) {
	raw := []byte(`{
		"symbol": "BTC-USDT",
		"asks": [["0", "1"], ["", "1"], ["100", "0"], ["101", "2"], ["100"]],
		"bids": [["99", "-1"], ["98", "1"]]
	}`)
	snap, err := ParseSnapshot(raw, time.Now())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(snap.Asks) != 1 || snap.Asks[0].Price != 101 {
		t.Errorf("asks = %+v", snap.Asks)
	}
	if len(snap.Bids) != 1 || snap.Bids[0].Price != 98 {
		t.Errorf("bids = %+v", snap.Bids)
	}
}

func TestParseSnapshotRejectsNonNumericLevels(t *testing.T) {
	cases := []string{
		`{"symbol":"BTC-USDT","asks":[["abc","1"]],"bids":[["99","1"]]}`,
		`{"symbol":"BTC-USDT","asks":[["100","1"]],"bids":[["99","xyz"]]}`,
		`{"symbol":"BTC-USDT","asks":[[true,"1"]],"bids":[["99","1"]]}`,
	}
	for _, raw := range cases {
		if _, err := ParseSnapshot([]byte(raw), time.Now()); !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("payload %s: expected ErrMalformedMessage, got %v", raw, err)
		}
	}
}

func TestParseSnapshotResortsSides(t *testing.T) {
	raw := []byte(`{
		"symbol": "BTC-USDT",
		"asks": [["102", "1"], ["100", "1"], ["101", "1"]],
		"bids": [["97", "1"], ["99", "1"], ["98", "1"]]
	}`)
	snap, err := ParseSnapshot(raw, time.Now())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	for i := 1; i < len(snap.Asks); i++ {
		if snap.Asks[i].Price < snap.Asks[i-1].Price {
			t.Fatalf("asks not ascending: %+v", snap.Asks)
		}
	}
	for i := 1; i < len(snap.Bids); i++ {
		if snap.Bids[i].Price > snap.Bids[i-1].Price {
			t.Fatalf("bids not descending: %+v", snap.Bids)
		}
	}
}

func TestParseSnapshotBadTimestampFallsBack(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	raw := []byte(`{"symbol":"BTC-USDT","timestamp":"not-a-time","asks":[["100","1"]],"bids":[["99","1"]]}`)
	snap, err := ParseSnapshot(raw, now)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if snap.Timestamp != now.UnixMilli() {
		t.Errorf("timestamp = %d, want fallback %d", snap.Timestamp, now.UnixMilli())
	}
}

func TestParseSnapshotErrors(t *testing.T) {
	if _, err := ParseSnapshot([]byte(`not json`), time.Now()); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("expected ErrMalformedMessage, got %v", err)
	}
	if _, err := ParseSnapshot([]byte(`{"asks":[],"bids":[]}`), time.Now()); !errors.Is(err, ErrMissingSymbol) {
		t.Errorf("expected ErrMissingSymbol, got %v", err)
	}
}
