package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tradesim/internal/channel"
	"tradesim/logger"
)

// Processor consumes raw feed messages from the channel layer and is the
// sole writer of the cache. When recording is enabled, accepted snapshots
// are also forwarded to the recorder channel.
type Processor struct {
	cache    *Cache
	channels *channel.Channels
	record   bool
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.Mutex
	running  bool
	log      *logger.Log
}

// NewProcessor creates a processor feeding the given cache. record controls
// forwarding of parsed snapshots to the recorder channel.
func NewProcessor(cache *Cache, ch *channel.Channels, record bool) *Processor {
	return &Processor{
		cache:    cache,
		channels: ch,
		record:   record,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// Start launches the consume loop.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("market data processor already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	p.log.WithComponent("marketdata_processor").Info("starting market data processor")
	p.wg.Add(1)
	go p.consume()
	return nil
}

// Stop waits for the consume loop to drain after context cancellation.
func (p *Processor) Stop() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	p.wg.Wait()
	p.log.WithComponent("marketdata_processor").Info("market data processor stopped")
}

func (p *Processor) consume() {
	defer p.wg.Done()
	log := p.log.WithComponent("marketdata_processor")

	for {
		select {
		case <-p.ctx.Done():
			return
		case raw, ok := <-p.channels.Raw:
			if !ok {
				return
			}
			start := time.Now()
			snap, err := p.cache.Ingest(raw.Data)
			if err != nil {
				if errors.Is(err, ErrMissingSymbol) {
					log.Debug("dropping message without symbol")
				} else {
					log.WithError(err).Debug("dropping malformed message")
				}
				continue
			}
			logger.LogPerformanceEntry(log, "marketdata_processor", "ingest", time.Since(start), logger.Fields{
				"symbol": snap.Symbol,
			})
			if p.record {
				p.channels.SendRecord(p.ctx, snap)
			}
		}
	}
}
