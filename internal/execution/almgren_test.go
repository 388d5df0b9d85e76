package execution

import (
	"math"
	"testing"
)

func TestSolveZeroQuantity(t *testing.T) {
	res := Solve(Params{Sigma: 0.02, Eta: 1e-5, Gamma: 5e-5, T: 1, X: 0}, 1e-7)
	if len(res.Trajectory) != 1 || res.Trajectory[0] != 0 {
		t.Errorf("trajectory = %v, want [0]", res.Trajectory)
	}
	if res.ExpectedCost != 0 || res.MarketImpactPct != 0 {
		t.Errorf("cost = %v, impact = %v, want 0", res.ExpectedCost, res.MarketImpactPct)
	}
}

func TestSolveTypicalOrder(t *testing.T) {
	p := Params{Sigma: 0.02, Eta: 1e-5, Gamma: 5e-5, T: 1, X: 100}
	res := Solve(p, 1e-6)

	if len(res.Trajectory) != intervals+1 {
		t.Fatalf("trajectory length = %d, want %d", len(res.Trajectory), intervals+1)
	}
	if res.Trajectory[0] != 100 {
		t.Errorf("trajectory start = %v, want 100", res.Trajectory[0])
	}
	if res.Trajectory[intervals] != 0 {
		t.Errorf("trajectory end = %v, want 0", res.Trajectory[intervals])
	}
	for i := 1; i < len(res.Trajectory); i++ {
		if res.Trajectory[i] > res.Trajectory[i-1] {
			t.Fatalf("trajectory not monotone non-increasing at %d: %v", i, res.Trajectory)
		}
	}
	if res.ExpectedCost <= 0 || math.IsInf(res.ExpectedCost, 0) {
		t.Errorf("expected cost = %v, want finite positive", res.ExpectedCost)
	}
	wantImpact := res.ExpectedCost / p.X * 100
	if math.Abs(res.MarketImpactPct-wantImpact) > 1e-12 {
		t.Errorf("impact = %v, want %v", res.MarketImpactPct, wantImpact)
	}
}

func TestSolveCostScalesWithQuantity(t *testing.T) {
	base := Params{Sigma: 0.02, Eta: 1e-5, Gamma: 5e-5, T: 1, X: 100}
	double := base
	double.X = 200

	small := Solve(base, 1e-6)
	large := Solve(double, 1e-6)
	if large.ExpectedCost <= small.ExpectedCost {
		t.Errorf("cost should grow with quantity: %v vs %v", small.ExpectedCost, large.ExpectedCost)
	}
	// quadratic impact: doubling quantity should 4x the cost
	ratio := large.ExpectedCost / small.ExpectedCost
	if math.Abs(ratio-4) > 0.01 {
		t.Errorf("cost ratio = %v, want ~4", ratio)
	}
}

func TestSolveInvalidInputs(t *testing.T) {
	cases := []struct {
		name         string
		p            Params
		riskAversion float64
	}{
		{"non-positive risk aversion", Params{Sigma: 0.02, Eta: 1e-5, Gamma: 5e-5, T: 1, X: 100}, 0},
		{"negative risk aversion", Params{Sigma: 0.02, Eta: 1e-5, Gamma: 5e-5, T: 1, X: 100}, -1},
		{"negative volatility", Params{Sigma: -0.1, Eta: 1e-5, Gamma: 5e-5, T: 1, X: 100}, 1e-7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Solve(tc.p, tc.riskAversion)
			if !math.IsInf(res.ExpectedCost, 1) {
				t.Errorf("expected cost = %v, want +Inf", res.ExpectedCost)
			}
			if !math.IsInf(res.MarketImpactPct, 1) {
				t.Errorf("impact = %v, want +Inf", res.MarketImpactPct)
			}
			if len(res.Trajectory) != intervals+1 || res.Trajectory[0] != tc.p.X {
				t.Errorf("trajectory = %v", res.Trajectory)
			}
			for _, v := range res.Trajectory[1:] {
				if v != 0 {
					t.Errorf("expected immediate liquidation, got %v", res.Trajectory)
					break
				}
			}
		})
	}
}

func TestSolveTinyGammaFallsBackToLinear(t *testing.T) {
	// sigma 0 drives kappa to 0, so sinh(kappa*T) vanishes and the
	// trajectory degenerates to equal-sized slices
	p := Params{Sigma: 0, Eta: 1e-5, Gamma: 5e-5, T: 1, X: 100}
	res := Solve(p, 1e-7)
	for j := 0; j <= intervals; j++ {
		want := 100 * (1 - float64(j)/intervals)
		if math.Abs(res.Trajectory[j]-want) > 1e-9 {
			t.Fatalf("trajectory[%d] = %v, want %v", j, res.Trajectory[j], want)
		}
	}
	// linear execution cost: 0.5*eta*X^2 + gamma*X^2/T
	want := 0.5*1e-5*100*100 + 5e-5*100*100/1
	if math.Abs(res.ExpectedCost-want) > 1e-9 {
		t.Errorf("cost = %v, want %v", res.ExpectedCost, want)
	}
}

func TestSolveExtremeKappaDoesNotOverflow(t *testing.T) {
	// kappa*T lands just past the hyperbolic cutoff at 700
	p := Params{Sigma: 1, Eta: 1e-5, Gamma: 1e-10, T: 1, X: 1000}
	res := Solve(p, 4.97e-5)
	if math.IsNaN(res.ExpectedCost) {
		t.Errorf("cost is NaN")
	}
	for _, v := range res.Trajectory {
		if math.IsNaN(v) {
			t.Fatalf("trajectory contains NaN: %v", res.Trajectory)
		}
	}
}

func TestOverflowSafeHyperbolics(t *testing.T) {
	if v := sinh(800); math.IsInf(v, 0) || math.IsNaN(v) || v <= 0 {
		t.Errorf("sinh(800) = %v", v)
	}
	if v := sinh(-800); math.IsInf(v, 0) || math.IsNaN(v) || v >= 0 {
		t.Errorf("sinh(-800) = %v", v)
	}
	if v := cosh(800); math.IsInf(v, 0) || math.IsNaN(v) || v <= 0 {
		t.Errorf("cosh(800) = %v", v)
	}
	if math.Abs(sinh(1)-math.Sinh(1)) > 1e-15 {
		t.Errorf("sinh(1) deviates from math.Sinh")
	}
}

func TestEstimateParams(t *testing.T) {
	p := EstimateParams(0.6, 100, 50000, 1.2e12, 1.0)
	wantSigma := 0.6 / math.Sqrt(252)
	if math.Abs(p.Sigma-wantSigma) > 1e-12 {
		t.Errorf("sigma = %v, want %v", p.Sigma, wantSigma)
	}
	// ADV equals the reference, so base coefficients pass through
	if p.Eta != 1e-5 || p.Gamma != 5e-5 {
		t.Errorf("eta = %v, gamma = %v", p.Eta, p.Gamma)
	}
	if p.T != 1.0 || p.X != 100 {
		t.Errorf("T = %v, X = %v", p.T, p.X)
	}
}

func TestEstimateParamsDefaultsAndClamp(t *testing.T) {
	// missing ADV defaults to quantity*100 = 1000, scale = 50 → clamped at 1e-3
	p := EstimateParams(0.3, 10, 0, 0, 1.0)
	if p.Eta != 5e-4 {
		t.Errorf("eta = %v, want 5e-4", p.Eta)
	}
	if p.Gamma != 1e-3 {
		t.Errorf("gamma = %v, want clamp ceiling 1e-3", p.Gamma)
	}

	// enormous ADV drives coefficients toward the floor
	p = EstimateParams(0.3, 10, 1e20, 1e12, 1.0)
	if p.Eta != minCoeff || p.Gamma != minCoeff {
		t.Errorf("eta = %v, gamma = %v, want floor %v", p.Eta, p.Gamma, minCoeff)
	}
}
