// Package arbitrage sizes and discovers cross-venue opportunities. sizer.go
// is a direct port of backend/core/CrossPlatformArbitrage.py: build a
// cumulative (quantity, cost, marginal_price) curve from ascending price
// levels, then binary-search for the largest share count that is both
// profitable and within any configured cost cap.
package arbitrage

import (
	"math"
)

// CurvePoint is one step of a cumulative cost curve: buying up to Qty
// shares at this venue's ascending ask ladder costs Cost tenths-of-cent
// total, and the last level consumed to get there was priced at
// MarginalPrice.
type CurvePoint struct {
	Qty           int64
	Cost          int64
	MarginalPrice int64
}

// BuildCurve turns an ascending-price ask ladder into a cumulative cost
// curve, exactly as build_curve does: each point accumulates all qty/cost
// up to and including that level.
func BuildCurve(levels []Level) []CurvePoint {
	curve := make([]CurvePoint, 0, len(levels))
	var totalQty, totalCost int64
	for _, lvl := range levels {
		totalQty += lvl.Quantity
		totalCost += lvl.Price * lvl.Quantity
		curve = append(curve, CurvePoint{Qty: totalQty, Cost: totalCost, MarginalPrice: lvl.Price})
	}
	return curve
}

// Level is a single ascending price/quantity rung of an ask ladder.
type Level struct {
	Price    int64
	Quantity int64
}

// CostOf returns the cost of acquiring exactly x shares from curve, or
// math.MaxInt64 if curve does not have enough depth — the Go analogue of
// cost_of_shares's float("inf") sentinel. curve must be sorted ascending by
// Qty (BuildCurve's output already is).
func CostOf(x int64, curve []CurvePoint) int64 {
	for _, pt := range curve {
		if pt.Qty >= x {
			return pt.Cost - pt.MarginalPrice*(pt.Qty-x)
		}
	}
	return math.MaxInt64
}

// SizeResult is the binary search's output: the largest admissible share
// count and its total two-leg cost.
type SizeResult struct {
	Shares    int64
	TotalCost int64
}

// Size finds shares = min(X_profit, X_cost): the largest X for which
// 1000*X covers cost*(1+slippage)*(1+profitThreshold) (X_profit), capped at
// the largest X whose cost does not exceed maxCost if one is configured
// (X_cost). Both searches are independent monotone binary searches over
// [1, min(curve1 depth, curve2 depth)], exactly as
// get_arbitrage_details does.
func Size(curve1, curve2 []CurvePoint, profitThreshold, expectedSlippage float64, maxCost *int64) SizeResult {
	if len(curve1) == 0 || len(curve2) == 0 {
		return SizeResult{}
	}
	maxDepth := curve1[len(curve1)-1].Qty
	if d2 := curve2[len(curve2)-1].Qty; d2 < maxDepth {
		maxDepth = d2
	}
	if maxDepth < 1 {
		return SizeResult{}
	}

	bestProfitShares := sizeForProfit(curve1, curve2, maxDepth, profitThreshold, expectedSlippage)

	bestCostShares := int64(math.MaxInt64)
	if maxCost != nil {
		bestCostShares = sizeForCost(curve1, curve2, maxDepth, *maxCost)
	}

	finalShares := bestProfitShares
	if bestCostShares < finalShares {
		finalShares = bestCostShares
	}
	if finalShares <= 0 {
		return SizeResult{}
	}

	totalCost := CostOf(finalShares, curve1) + CostOf(finalShares, curve2)
	return SizeResult{Shares: finalShares, TotalCost: totalCost}
}

// sizeForProfit finds the largest X in [1, maxDepth] such that
// 1000*X >= ceil(cost(X) * (1+expectedSlippage) * (1+profitThreshold)).
func sizeForProfit(curve1, curve2 []CurvePoint, maxDepth int64, profitThreshold, expectedSlippage float64) int64 {
	lo, hi := int64(1), maxDepth
	var best int64
	for lo <= hi {
		mid := (lo + hi) / 2
		cost := CostOf(mid, curve1) + CostOf(mid, curve2)
		requiredRevenue := int64(math.Ceil(float64(cost) * (1 + expectedSlippage) * (1 + profitThreshold)))
		revenue := 1000 * mid
		if revenue >= requiredRevenue {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best
}

// sizeForCost finds the largest X in [1, maxDepth] such that
// cost(X) <= maxCost.
func sizeForCost(curve1, curve2 []CurvePoint, maxDepth, maxCost int64) int64 {
	lo, hi := int64(1), maxDepth
	var best int64
	for lo <= hi {
		mid := (lo + hi) / 2
		cost := CostOf(mid, curve1) + CostOf(mid, curve2)
		if cost <= maxCost {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best
}

// Admissible reports whether every level actually consumed to fill shares
// from curve1 and curve2 keeps the YES+NO marginal price sum under 1000 —
// the hard no-loss invariant a profitable binary search result must still
// satisfy at every depth it passed through, not just at the final size.
func Admissible(shares int64, curve1, curve2 []CurvePoint) bool {
	for _, pt := range curve1 {
		if pt.Qty < shares {
			opposing := marginalPriceAt(pt.Qty, curve2)
			if pt.MarginalPrice+opposing >= 1000 {
				return false
			}
			continue
		}
		// pt is the level that actually covers depth shares, whether
		// shares lands exactly on it or only partially consumes it;
		// check it against curve2's price at that same depth and stop.
		opposing := marginalPriceAt(shares, curve2)
		if pt.MarginalPrice+opposing >= 1000 {
			return false
		}
		break
	}
	return true
}

func marginalPriceAt(qty int64, curve []CurvePoint) int64 {
	for _, pt := range curve {
		if pt.Qty >= qty {
			return pt.MarginalPrice
		}
	}
	if len(curve) == 0 {
		return math.MaxInt64
	}
	return curve[len(curve)-1].MarginalPrice
}
