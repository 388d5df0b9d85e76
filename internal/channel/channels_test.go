package channel

import (
	"context"
	"testing"
	"time"

	"tradesim/models"
)

func TestSendRawDropsWhenFull(t *testing.T) {
	c := NewChannels(1, 1)
	defer c.Close()
	ctx := context.Background()

	msg := models.RawFeedMessage{Exchange: "OKX", Data: []byte("{}"), Received: time.Now()}
	if !c.SendRaw(ctx, msg) {
		t.Fatal("first send should succeed")
	}
	if c.SendRaw(ctx, msg) {
		t.Fatal("second send should drop on full buffer")
	}

	stats := c.GetStats()
	if stats.RawSent != 1 || stats.RawDropped != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestStartMetricsReporting(t *testing.T) {
	c := NewChannels(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	c.StartMetricsReporting(ctx)
	time.Sleep(10 * time.Millisecond)
	cancel()
	c.Close()
}

func TestSendRecord(t *testing.T) {
	c := NewChannels(1, 1)
	defer c.Close()
	ctx := context.Background()

	snap := models.OrderBookSnapshot{Symbol: "BTC-USDT-SWAP"}
	if !c.SendRecord(ctx, snap) {
		t.Fatal("send should succeed")
	}
	got := <-c.Record
	if got.Symbol != "BTC-USDT-SWAP" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}
