package execution

import (
	"math"

	"tradesim/logger"
)

const (
	tradingDaysPerYear = 252.0

	// Impact coefficient baselines, referenced to a BTC-scale daily volume.
	baseEta      = 1e-5
	baseGamma    = 5e-5
	referenceADV = 50000.0
	minCoeff     = 1e-10
	maxCoeff     = 1e-3
)

// EstimateParams derives model parameters from observable market quantities.
// volatility is annualized, quantity and avgDailyVolume are in base asset,
// marketCap in USD and horizonDays the execution horizon. Missing volume or
// market cap are substituted with rough heuristics, and the impact
// coefficients scale inversely with daily volume relative to a liquid
// reference, clamped to a sane range.
func EstimateParams(volatility, quantity, avgDailyVolume, marketCap, horizonDays float64) Params {
	log := logger.GetLogger().WithComponent("execution")

	if avgDailyVolume <= 0 {
		avgDailyVolume = quantity * 100
		log.WithFields(logger.Fields{"estimated_adv": avgDailyVolume}).Warn("avg daily volume missing, using heuristic")
	}
	if marketCap <= 0 {
		marketCap = avgDailyVolume * 2000 * 1000
		log.WithFields(logger.Fields{"estimated_market_cap": marketCap}).Warn("market cap missing, using heuristic")
	}

	dailyVol := volatility / math.Sqrt(tradingDaysPerYear)

	advScale := 1.0
	if avgDailyVolume > 0 {
		advScale = referenceADV / avgDailyVolume
	}
	eta := clamp(baseEta*advScale, minCoeff, maxCoeff)
	gamma := clamp(baseGamma*advScale, minCoeff, maxCoeff)

	log.WithFields(logger.Fields{
		"daily_vol": dailyVol,
		"eta":       eta,
		"gamma":     gamma,
		"horizon":   horizonDays,
		"quantity":  quantity,
	}).Debug("estimated execution model parameters")

	return Params{
		Sigma: dailyVol,
		Eta:   eta,
		Gamma: gamma,
		T:     horizonDays,
		X:     quantity,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
