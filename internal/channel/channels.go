package channel

import (
	"context"
	"sync"
	"time"

	"tradesim/logger"
	"tradesim/models"
)

type ChannelStats struct {
	RawSent       int64
	RawDropped    int64
	RecordSent    int64
	RecordDropped int64
}

// Channels carries raw feed messages from the websocket reader to the market
// data processor and, when the recorder is enabled, parsed snapshots from the
// processor to the recorder. Sends never block: a full buffer drops the
// message and bumps a counter.
type Channels struct {
	Raw    chan models.RawFeedMessage
	Record chan models.OrderBookSnapshot

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBufferSize, recordBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:    make(chan models.RawFeedMessage, rawBufferSize),
		Record: make(chan models.OrderBookSnapshot, recordBufferSize),
		log:    log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"raw_buffer_size":    rawBufferSize,
		"record_buffer_size": recordBufferSize,
	}).Info("channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Raw)
	close(c.Record)
	c.log.WithComponent("channels").Info("channels closed")
}

func (c *Channels) SendRaw(ctx context.Context, msg models.RawFeedMessage) bool {
	select {
	case c.Raw <- msg:
		c.statsMutex.Lock()
		c.stats.RawSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.RawDropped++
		c.statsMutex.Unlock()
		return false
	}
}

func (c *Channels) SendRecord(ctx context.Context, snap models.OrderBookSnapshot) bool {
	select {
	case c.Record <- snap:
		c.statsMutex.Lock()
		c.stats.RecordSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.RecordDropped++
		c.statsMutex.Unlock()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

// StartMetricsReporting periodically logs channel throughput and emits the
// drop counters as metrics until the context ends.
func (c *Channels) StartMetricsReporting(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.logChannelStats()
			}
		}
	}()
}

func (c *Channels) logChannelStats() {
	stats := c.GetStats()

	c.log.WithComponent("channels").WithFields(logger.Fields{
		"raw_sent":           stats.RawSent,
		"raw_dropped":        stats.RawDropped,
		"record_sent":        stats.RecordSent,
		"record_dropped":     stats.RecordDropped,
		"raw_channel_len":    len(c.Raw),
		"raw_channel_cap":    cap(c.Raw),
		"record_channel_len": len(c.Record),
		"record_channel_cap": cap(c.Record),
	}).Info("channel statistics")

	c.log.LogMetric("channels", "raw_messages_dropped", stats.RawDropped, "counter", nil)
	c.log.LogMetric("channels", "record_messages_dropped", stats.RecordDropped, "counter", nil)
}
