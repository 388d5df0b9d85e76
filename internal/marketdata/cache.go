package marketdata

import (
	"math"
	"sync"
	"time"

	"github.com/montanaflynn/stats"

	"tradesim/logger"
	"tradesim/models"
)

// LatencyStats summarizes the per-message processing latency of the cache.
// All values are zero when no samples have been recorded yet.
type LatencyStats struct {
	AvgMS    float64 `json:"avg_ms"`
	MinMS    float64 `json:"min_ms"`
	MaxMS    float64 `json:"max_ms"`
	P95MS    float64 `json:"p95_ms"`
	StdDevMS float64 `json:"std_dev_ms"`
	Count    int     `json:"count"`
}

type symbolState struct {
	latest  *models.OrderBookSnapshot
	history []models.OrderBookSnapshot
}

// Cache holds the most recent order book snapshot per symbol plus a bounded
// history used for realized volatility. Readers see a consistent snapshot
// because ingestion swaps the latest pointer wholesale under the write lock.
type Cache struct {
	mu      sync.RWMutex
	symbols map[string]*symbolState

	latencyMu sync.Mutex
	latency   []float64

	historyDepth   int
	latencySamples int
	log            *logger.Log
}

// NewCache creates a snapshot cache. historyDepth bounds the per-symbol
// snapshot history and latencySamples bounds the rolling latency buffer.
func NewCache(historyDepth, latencySamples int) *Cache {
	if historyDepth <= 0 {
		historyDepth = 100
	}
	if latencySamples <= 0 {
		latencySamples = 1000
	}
	return &Cache{
		symbols:        make(map[string]*symbolState),
		latency:        make([]float64, 0, latencySamples),
		historyDepth:   historyDepth,
		latencySamples: latencySamples,
		log:            logger.GetLogger(),
	}
}

// Ingest parses a raw feed payload and stores the resulting snapshot,
// recording the end-to-end processing latency. Malformed payloads leave
// the cache and the latency buffer untouched; only the parse error is
// returned.
func (c *Cache) Ingest(raw []byte) (models.OrderBookSnapshot, error) {
	start := time.Now()
	snap, err := ParseSnapshot(raw, start)
	if err != nil {
		return models.OrderBookSnapshot{}, err
	}
	c.Store(snap)
	c.recordLatency(time.Since(start))
	return snap, nil
}

// Store inserts a parsed snapshot, replacing the latest view for its symbol
// and appending to the bounded history.
func (c *Cache) Store(snap models.OrderBookSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.symbols[snap.Symbol]
	if !ok {
		state = &symbolState{history: make([]models.OrderBookSnapshot, 0, c.historyDepth)}
		c.symbols[snap.Symbol] = state
	}
	copied := snap
	state.latest = &copied
	state.history = append(state.history, snap)
	if len(state.history) > c.historyDepth {
		state.history = state.history[len(state.history)-c.historyDepth:]
	}
}

// Latest returns the most recent snapshot for symbol, if any.
func (c *Cache) Latest(symbol string) (models.OrderBookSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.symbols[symbol]
	if !ok || state.latest == nil {
		return models.OrderBookSnapshot{}, false
	}
	return *state.latest, true
}

// Symbols returns the symbols currently held in the cache.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.symbols))
	for sym := range c.symbols {
		out = append(out, sym)
	}
	return out
}

// SymbolCount returns the number of symbols with at least one snapshot.
func (c *Cache) SymbolCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.symbols)
}

// HistoryLen returns the stored history length for symbol.
func (c *Cache) HistoryLen(symbol string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.symbols[symbol]
	if !ok {
		return 0
	}
	return len(state.history)
}

// RealizedVolatility computes the population standard deviation of
// log-returns of the mid price over the last window+1 history entries.
// It returns 0 when fewer than window+1 usable mid prices exist.
func (c *Cache) RealizedVolatility(symbol string, window int) float64 {
	c.mu.RLock()
	state, ok := c.symbols[symbol]
	if !ok || window <= 0 {
		c.mu.RUnlock()
		return 0
	}
	history := state.history
	if len(history) > window+1 {
		history = history[len(history)-(window+1):]
	}
	mids := make([]float64, 0, len(history))
	for _, snap := range history {
		if mid := snap.MidPrice(); mid > 0 {
			mids = append(mids, mid)
		}
	}
	c.mu.RUnlock()

	if len(mids) < window+1 {
		return 0
	}

	returns := make([]float64, 0, len(mids)-1)
	for i := 1; i < len(mids); i++ {
		returns = append(returns, math.Log(mids[i]/mids[i-1]))
	}
	sd, err := stats.StandardDeviationPopulation(returns)
	if err != nil {
		return 0
	}
	return sd
}

func (c *Cache) recordLatency(d time.Duration) {
	ms := float64(d.Nanoseconds()) / 1e6
	c.latencyMu.Lock()
	defer c.latencyMu.Unlock()
	c.latency = append(c.latency, ms)
	if len(c.latency) > c.latencySamples {
		c.latency = c.latency[len(c.latency)-c.latencySamples:]
	}
}

// LatencyStats summarizes the rolling processing latency buffer.
func (c *Cache) LatencyStats() LatencyStats {
	c.latencyMu.Lock()
	samples := make([]float64, len(c.latency))
	copy(samples, c.latency)
	c.latencyMu.Unlock()

	if len(samples) == 0 {
		return LatencyStats{}
	}

	avg, _ := stats.Mean(samples)
	min, _ := stats.Min(samples)
	max, _ := stats.Max(samples)
	p95, _ := stats.Percentile(samples, 95)
	sd, _ := stats.StandardDeviation(samples)
	return LatencyStats{
		AvgMS:    avg,
		MinMS:    min,
		MaxMS:    max,
		P95MS:    p95,
		StdDevMS: sd,
		Count:    len(samples),
	}
}
