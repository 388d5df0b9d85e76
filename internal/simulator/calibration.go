package simulator

// FeeSchedule holds maker and taker rates for one fee tier.
type FeeSchedule struct {
	Maker float64
	Taker float64
}

// feeTiers is the OKX-style VIP fee schedule. Unknown tiers resolve to VIP0.
var feeTiers = map[string]FeeSchedule{
	"VIP0": {Maker: 0.0008, Taker: 0.0010},
	"VIP1": {Maker: 0.0007, Taker: 0.0009},
	"VIP2": {Maker: 0.0005, Taker: 0.0008},
	"VIP3": {Maker: 0.0003, Taker: 0.0006},
	"VIP4": {Maker: 0.0001, Taker: 0.0004},
}

// slippageCoeffs parameterize the linear slippage regression. Pre-trained
// offline; slippage comes out as a percentage of order value.
var slippageCoeffs = struct {
	Intercept   float64
	QuantityUSD float64
	Volatility  float64
	SpreadBPS   float64
}{
	Intercept:   0.00005,
	QuantityUSD: 1e-9,
	Volatility:  0.3,
	SpreadBPS:   0.00002,
}

// makerTakerCoeffs parameterize the logistic maker-proportion model for
// limit orders. Higher volatility or a larger order relative to visible
// depth both push execution toward taker fills.
var makerTakerCoeffs = struct {
	Intercept          float64
	Volatility         float64
	QuantityDepthRatio float64
}{
	Intercept:          1.0,
	Volatility:         -15.0,
	QuantityDepthRatio: -5.0,
}

// AssetProfile carries per-asset liquidity assumptions used when estimating
// impact parameters, plus static market values substituted when no live
// order book is available.
type AssetProfile struct {
	AvgDailyVolume   float64 // base asset units per day
	MarketCapUSD     float64
	FallbackPrice    float64
	FallbackSpread   float64 // bps
	FallbackDepthUSD float64
}

var assetProfiles = map[string]AssetProfile{
	"BTC": {
		AvgDailyVolume:   50000,
		MarketCapUSD:     1.2e12,
		FallbackPrice:    60000.0,
		FallbackSpread:   1.5,
		FallbackDepthUSD: 2000000,
	},
	"ETH": {
		AvgDailyVolume:   700000,
		MarketCapUSD:     350e9,
		FallbackPrice:    3000.0,
		FallbackSpread:   2.0,
		FallbackDepthUSD: 1000000,
	},
}

// defaultProfile covers assets without a dedicated entry. No static market
// fallback exists for them, so simulations without live data report zeros.
var defaultProfile = AssetProfile{
	AvgDailyVolume: 1000000,
	MarketCapUSD:   10e9,
}

const (
	// defaultRiskAversion is the trader risk aversion used when the
	// configuration does not override it.
	defaultRiskAversion = 1e-7

	// executionHorizonDays is the assumed execution window, 30 seconds of
	// a day, matching a near-immediate fill.
	executionHorizonDays = 1.0 / (24 * 60 * 2)

	// Power-law impact fallback used when the optimizer produces a
	// non-finite cost.
	fallbackImpactGamma    = 0.1
	fallbackImpactExponent = 0.6
	fallbackVolatility     = 0.02

	// defaultAnnualVol substitutes for non-positive volatility inputs.
	defaultAnnualVol = 0.2
)

// profileFor resolves the liquidity profile for an asset symbol by its base
// currency prefix.
func profileFor(asset string) AssetProfile {
	for prefix, profile := range assetProfiles {
		if len(asset) >= len(prefix) && asset[:len(prefix)] == prefix {
			return profile
		}
	}
	return defaultProfile
}

// tierFor resolves a fee tier name, defaulting to VIP0.
func tierFor(name string) FeeSchedule {
	if tier, ok := feeTiers[name]; ok {
		return tier
	}
	return feeTiers["VIP0"]
}
