// Package simulator estimates the total execution cost of a hypothetical
// order from live order book state: slippage, exchange fees, market impact
// via the optimal execution model and the maker/taker split.
package simulator

import (
	"math"
	"strings"
	"time"

	"tradesim/internal/execution"
	"tradesim/internal/marketdata"
	"tradesim/logger"
	"tradesim/models"
)

// SnapshotProvider is the market data surface the simulator reads from.
type SnapshotProvider interface {
	Latest(symbol string) (models.OrderBookSnapshot, bool)
	LatencyStats() marketdata.LatencyStats
}

// Request describes the hypothetical order to cost out. QuantityUSD is the
// order value in USD and Volatility the user-supplied volatility estimate
// (daily or annualized, normalized internally).
type Request struct {
	Exchange    string  `json:"exchange"`
	Asset       string  `json:"asset"`
	OrderType   string  `json:"orderType"`
	QuantityUSD float64 `json:"quantity"`
	Volatility  float64 `json:"volatility"`
	FeeTier     string  `json:"feeTier"`
}

// Result is the full cost breakdown. Percentages are of the order value.
type Result struct {
	ExpectedSlippagePct  float64                 `json:"expectedSlippage"`
	ExpectedFeesUSD      float64                 `json:"expectedFees"`
	ExpectedImpactPct    float64                 `json:"expectedMarketImpact"`
	NetCostUSD           float64                 `json:"netCost"`
	MakerTakerProportion float64                 `json:"makerTakerProportion"`
	InternalLatencyMS    float64                 `json:"internalLatency"`
	LastPriceUSD         float64                 `json:"lastPrice"`
	SpreadBPS            float64                 `json:"spreadBps"`
	OrderBookDepthUSD    float64                 `json:"orderBookDepth"`
	MarketDataTimestamp  string                  `json:"marketDataTimestamp,omitempty"`
	DataSource           string                  `json:"dataSource"`
	SimulationTimeMS     float64                 `json:"simulationExecutionTimeMs"`
	LatencyStats         marketdata.LatencyStats `json:"marketDataProcessingLatencyStats"`
}

// marketState is the resolved view of the market the cost models run on.
type marketState struct {
	lastPriceUSD float64
	spreadBPS    float64
	depthUSD     float64
	timestamp    string
	live         bool
}

// Simulator prices hypothetical orders against the snapshot cache.
type Simulator struct {
	provider     SnapshotProvider
	riskAversion float64
	depthLevels  int
	log          *logger.Log
}

// New creates a simulator. riskAversion <= 0 and depthLevels <= 0 fall back
// to the model defaults.
func New(provider SnapshotProvider, riskAversion float64, depthLevels int) *Simulator {
	if riskAversion <= 0 {
		riskAversion = defaultRiskAversion
	}
	if depthLevels <= 0 {
		depthLevels = 10
	}
	return &Simulator{
		provider:     provider,
		riskAversion: riskAversion,
		depthLevels:  depthLevels,
		log:          logger.GetLogger(),
	}
}

// Simulate prices the requested order. Missing live data degrades to static
// per-asset fallbacks rather than failing, with DataSource reporting which
// path was taken.
func (s *Simulator) Simulate(req Request) Result {
	start := time.Now()
	log := s.log.WithComponent("simulator").WithFields(logger.Fields{
		"asset":    req.Asset,
		"quantity": req.QuantityUSD,
	})

	market := s.resolveMarket(req.Asset)
	if !market.live {
		log.Warn("no live order book, using static fallback values")
	}

	makerProp := s.makerTakerProportion(req, market)
	fees := s.fees(req)
	slippagePct := s.slippagePct(req, market)
	impactPct := s.marketImpactPct(req, market)

	netCost := req.QuantityUSD*(slippagePct/100) + req.QuantityUSD*(impactPct/100) + fees

	source := "fallback"
	if market.live {
		source = "live"
	}

	latency := s.provider.LatencyStats()
	return Result{
		ExpectedSlippagePct:  slippagePct,
		ExpectedFeesUSD:      fees,
		ExpectedImpactPct:    impactPct,
		NetCostUSD:           netCost,
		MakerTakerProportion: makerProp,
		InternalLatencyMS:    latency.AvgMS,
		LastPriceUSD:         market.lastPriceUSD,
		SpreadBPS:            market.spreadBPS,
		OrderBookDepthUSD:    market.depthUSD,
		MarketDataTimestamp:  market.timestamp,
		DataSource:           source,
		SimulationTimeMS:     float64(time.Since(start).Nanoseconds()) / 1e6,
		LatencyStats:         latency,
	}
}

// resolveMarket looks up the latest snapshot for the asset, also trying the
// perpetual swap alias when the spot symbol has no book. A book with an
// unusable mid price degrades to partial fallback; no book at all degrades
// to the full static fallback.
func (s *Simulator) resolveMarket(asset string) marketState {
	snap, ok := s.provider.Latest(asset)
	if !ok && !strings.HasSuffix(asset, "-SWAP") {
		snap, ok = s.provider.Latest(asset + "-SWAP")
	}

	profile := profileFor(asset)
	state := marketState{}

	if !ok {
		state.lastPriceUSD = profile.FallbackPrice
		state.spreadBPS = profile.FallbackSpread
		state.depthUSD = profile.FallbackDepthUSD
		return state
	}

	mid := snap.MidPrice()
	state.timestamp = time.UnixMilli(snap.Timestamp).UTC().Format(time.RFC3339Nano)
	if mid <= 0 {
		state.lastPriceUSD = profile.FallbackPrice
		state.depthUSD = profile.FallbackDepthUSD
		return state
	}

	state.lastPriceUSD = mid
	state.spreadBPS = snap.SpreadBPS()
	state.depthUSD = snap.DepthUSD(s.depthLevels)
	state.live = true
	return state
}

// fees computes expected exchange fees in USD. Market orders always pay the
// taker rate.
func (s *Simulator) fees(req Request) float64 {
	tier := tierFor(req.FeeTier)
	return req.QuantityUSD * tier.Taker
}

// slippagePct evaluates the linear slippage model, floored at zero.
func (s *Simulator) slippagePct(req Request, market marketState) float64 {
	c := slippageCoeffs
	slippage := c.Intercept +
		c.QuantityUSD*req.QuantityUSD +
		c.Volatility*req.Volatility +
		c.SpreadBPS*market.spreadBPS
	return math.Max(0, slippage)
}

// makerTakerProportion predicts the maker share of fills. Market orders are
// pure taker. Limit orders run through the logistic model on volatility and
// the order-size-to-depth ratio.
func (s *Simulator) makerTakerProportion(req Request, market marketState) float64 {
	if strings.EqualFold(req.OrderType, "market") {
		return 0.0
	}

	depth := market.depthUSD
	if depth == 0 {
		depth = 1.0
	}
	ratio := req.QuantityUSD / depth

	c := makerTakerCoeffs
	x := c.Intercept + c.Volatility*req.Volatility + c.QuantityDepthRatio*ratio
	maker := 1 / (1 + math.Exp(-x))
	return math.Min(1, math.Max(0, maker))
}

// marketImpactPct runs the optimal execution model and normalizes its
// expected dollar shortfall by the order value. A degenerate solver result
// falls back to a power-law impact estimate.
func (s *Simulator) marketImpactPct(req Request, market marketState) float64 {
	log := s.log.WithComponent("simulator")

	var quantityBase float64
	if market.lastPriceUSD > 0 {
		quantityBase = req.QuantityUSD / market.lastPriceUSD
	} else {
		log.Warn("no usable price, treating base quantity as zero for impact model")
	}

	profile := profileFor(req.Asset)

	annualVol := req.Volatility
	if annualVol > 0 && annualVol < 0.1 {
		// small values are daily volatility, annualize them
		annualVol *= math.Sqrt(252)
	} else if annualVol <= 0 {
		log.WithFields(logger.Fields{"volatility": req.Volatility}).Warn("non-positive volatility input, using default")
		annualVol = defaultAnnualVol
	}

	params := execution.EstimateParams(annualVol, quantityBase, profile.AvgDailyVolume, profile.MarketCapUSD, executionHorizonDays)
	if params.X <= 1e-9 {
		return 0.0
	}

	res := execution.Solve(params, s.riskAversion)
	if math.IsInf(res.ExpectedCost, 0) || math.IsNaN(res.ExpectedCost) {
		return s.fallbackImpactPct(req, quantityBase, profile)
	}

	var impactPct float64
	if req.QuantityUSD > 0 {
		impactPct = res.ExpectedCost / req.QuantityUSD * 100
	}
	log.WithFields(logger.Fields{
		"expected_cost": res.ExpectedCost,
		"impact_pct":    impactPct,
	}).Debug("execution model impact")
	return math.Max(0, impactPct)
}

// fallbackImpactPct is the power-law estimate used when the execution model
// cannot produce a finite cost.
func (s *Simulator) fallbackImpactPct(req Request, quantityBase float64, profile AssetProfile) float64 {
	adv := profile.AvgDailyVolume
	if adv <= 0 {
		adv = 1
	}
	vol := req.Volatility
	if vol <= 0 {
		vol = fallbackVolatility
	}
	impact := fallbackImpactGamma * vol * math.Pow(quantityBase/adv, fallbackImpactExponent) * 100
	s.log.WithComponent("simulator").WithFields(logger.Fields{"impact_pct": impact}).Warn("falling back to power-law market impact")
	return math.Max(0, impact)
}
