// Package execution implements the Almgren-Chriss optimal execution model:
// the closed-form optimal liquidation trajectory and its expected
// implementation shortfall under quadratic impact costs.
package execution

import (
	"math"

	"tradesim/logger"
)

// intervals is the number of trading intervals the horizon is split into.
const intervals = 10

// Params holds the model inputs. Sigma is volatility per unit of T (daily
// when T is in days), Eta the permanent impact coefficient, Gamma the
// temporary impact coefficient, T the horizon and X the quantity to execute
// in base asset.
type Params struct {
	Sigma float64
	Eta   float64
	Gamma float64
	T     float64
	X     float64
}

// Result is the solver output. Trajectory holds intervals+1 remaining-holding
// points from X down to 0. MarketImpactPct is a provisional percentage that
// assumes unit price; callers normalize it against the actual order value.
type Result struct {
	Trajectory      []float64
	ExpectedCost    float64
	MarketImpactPct float64
}

// Solve computes the optimal execution trajectory and expected cost for the
// given risk aversion. Invalid inputs (non-positive risk aversion or negative
// volatility) yield an immediate-liquidation trajectory with infinite cost so
// callers can detect the failure and fall back.
func Solve(p Params, riskAversion float64) Result {
	if p.X == 0 {
		return Result{Trajectory: []float64{0.0}}
	}

	log := logger.GetLogger().WithComponent("execution")

	gammaEff := p.Gamma
	if gammaEff <= 1e-12 {
		log.WithFields(logger.Fields{"gamma": p.Gamma}).Warn("temporary impact coefficient near zero, kappa may be unstable")
		gammaEff = 1e-12
	}

	if riskAversion <= 0 || p.Sigma < 0 {
		log.WithFields(logger.Fields{
			"risk_aversion": riskAversion,
			"sigma":         p.Sigma,
		}).Error("invalid inputs for kappa")
		traj := make([]float64, intervals+1)
		traj[0] = p.X
		return Result{
			Trajectory:      traj,
			ExpectedCost:    math.Inf(1),
			MarketImpactPct: math.Inf(1),
		}
	}

	kappa := math.Sqrt(riskAversion * p.Sigma * p.Sigma / gammaEff)
	tau := p.T / intervals

	sinhKT := sinh(kappa * p.T)
	coshKT := cosh(kappa * p.T)

	trajectory := make([]float64, 0, intervals+1)
	if math.Abs(sinhKT) < 1e-9 {
		// kappa*T effectively zero: the optimum degenerates to linear execution
		for j := 0; j <= intervals; j++ {
			trajectory = append(trajectory, p.X*(1-float64(j)/intervals))
		}
	} else {
		for j := 0; j <= intervals; j++ {
			tj := float64(j) * tau
			trajectory = append(trajectory, p.X*sinh(kappa*(p.T-tj))/sinhKT)
		}
	}
	trajectory[0] = p.X
	trajectory[intervals] = 0.0

	permanentCost := 0.5 * p.Eta * p.X * p.X

	var temporaryCost float64
	if math.Abs(kappa*p.T) < 1e-6 || math.Abs(sinhKT) < 1e-9 {
		if p.T > 0 {
			temporaryCost = p.Gamma * p.X * p.X / p.T
		}
	} else {
		temporaryCost = gammaEff * p.X * p.X * kappa * coshKT / sinhKT
	}

	cost := permanentCost + temporaryCost

	return Result{
		Trajectory:      trajectory,
		ExpectedCost:    cost,
		MarketImpactPct: cost / p.X * 100,
	}
}

// sinh avoids overflow for large arguments by using the e^x/2 asymptote.
func sinh(x float64) float64 {
	if x > 700 {
		return math.Exp(x - math.Ln2)
	}
	if x < -700 {
		return -math.Exp(-x - math.Ln2)
	}
	return math.Sinh(x)
}

func cosh(x float64) float64 {
	if math.Abs(x) > 700 {
		return math.Exp(math.Abs(x) - math.Ln2)
	}
	return math.Cosh(x)
}
