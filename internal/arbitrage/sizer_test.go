package arbitrage

import (
	"math"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCurve_AccumulatesQtyAndCost(t *testing.T) {
	curve := BuildCurve([]Level{{Price: 400, Quantity: 10}, {Price: 420, Quantity: 5}})

	require.Len(t, curve, 2)
	assert.Equal(t, CurvePoint{Qty: 10, Cost: 4000, MarginalPrice: 400}, curve[0])
	assert.Equal(t, CurvePoint{Qty: 15, Cost: 4000 + 420*5, MarginalPrice: 420}, curve[1])
}

func TestCostOf_PartialLevelAndExhaustedDepth(t *testing.T) {
	curve := BuildCurve([]Level{{Price: 400, Quantity: 10}, {Price: 420, Quantity: 5}})

	assert.Equal(t, int64(400*5), CostOf(5, curve))
	assert.Equal(t, int64(4000+420*3), CostOf(13, curve))
	assert.Equal(t, int64(math.MaxInt64), CostOf(20, curve))
}

func TestSize_FindsLargestProfitableShareCount(t *testing.T) {
	// YES ask 400 all the way, NO ask 450: 400+450=850 < 1000, profitable at
	// every depth up to 100 shares.
	curveYes := BuildCurve([]Level{{Price: 400, Quantity: 100}})
	curveNo := BuildCurve([]Level{{Price: 450, Quantity: 100}})

	result := Size(curveYes, curveNo, 0.05, 0.0, nil)

	assert.Equal(t, int64(100), result.Shares)
	assert.Equal(t, int64((400+450)*100), result.TotalCost)
}

func TestSize_NoProfitableSizeWhenCombinedPriceTooHigh(t *testing.T) {
	curveYes := BuildCurve([]Level{{Price: 500, Quantity: 100}})
	curveNo := BuildCurve([]Level{{Price: 520, Quantity: 100}})

	result := Size(curveYes, curveNo, 0.05, 0.0, nil)

	assert.Equal(t, int64(0), result.Shares)
}

func TestSize_RespectsMaxTradeCostCap(t *testing.T) {
	curveYes := BuildCurve([]Level{{Price: 400, Quantity: 100}})
	curveNo := BuildCurve([]Level{{Price: 450, Quantity: 100}})
	maxCost := int64(8500) // caps well below the 100-share, 85000 total cost

	result := Size(curveYes, curveNo, 0.05, 0.0, &maxCost)

	assert.LessOrEqual(t, result.TotalCost, maxCost)
	assert.Greater(t, result.Shares, int64(0))
}

func TestAdmissible_RejectsDepthWhereMarginalSumCrosses1000(t *testing.T) {
	// First level admissible (400+450=850), second level is not
	// (550+450=1000).
	curve1 := BuildCurve([]Level{{Price: 400, Quantity: 10}, {Price: 550, Quantity: 10}})
	curve2 := BuildCurve([]Level{{Price: 450, Quantity: 20}})

	assert.True(t, Admissible(10, curve1, curve2))
	assert.False(t, Admissible(20, curve1, curve2))
}

// TestAdmissible_RejectsMidLevelDepthNotOnBreakpoint covers shares that
// fall strictly inside a level rather than exactly on a curve breakpoint:
// the level actually consumed at that depth must still be checked, not
// skipped because it is only partially filled.
func TestAdmissible_RejectsMidLevelDepthNotOnBreakpoint(t *testing.T) {
	curve1 := BuildCurve([]Level{{Price: 400, Quantity: 10}, {Price: 700, Quantity: 90}})
	curve2 := BuildCurve([]Level{{Price: 400, Quantity: 10}, {Price: 700, Quantity: 90}})

	// shares=13 lands inside the second level (Qty 10..100) of both
	// curves: the actual marginal price there is 700+700=1400, not the
	// first level's 400+400=800.
	assert.False(t, Admissible(13, curve1, curve2))
}

// TestSize_NeverExceedsCombinedDepth is a property test: for any two
// single-level curves, Size never returns more shares than either curve can
// actually fill.
func TestSize_NeverExceedsCombinedDepth(t *testing.T) {
	f := func(price1, price2 uint16, qty1, qty2 uint16) bool {
		p1, p2 := int64(price1%999)+1, int64(price2%999)+1
		q1, q2 := int64(qty1%500)+1, int64(qty2%500)+1

		curve1 := BuildCurve([]Level{{Price: p1, Quantity: q1}})
		curve2 := BuildCurve([]Level{{Price: p2, Quantity: q2}})

		result := Size(curve1, curve2, 0.02, 0.0, nil)
		maxDepth := q1
		if q2 < maxDepth {
			maxDepth = q2
		}
		return result.Shares <= maxDepth
	}
	require.NoError(t, quick.Check(f, nil))
}

// TestSize_ResultIsAlwaysProfitable is a property test: whenever Size
// returns a positive share count, 1000*shares must cover the two-leg cost
// at the configured profit threshold and slippage.
func TestSize_ResultIsAlwaysProfitable(t *testing.T) {
	f := func(price1, price2 uint16, qty1, qty2 uint16) bool {
		p1, p2 := int64(price1%999)+1, int64(price2%999)+1
		q1, q2 := int64(qty1%500)+1, int64(qty2%500)+1

		curve1 := BuildCurve([]Level{{Price: p1, Quantity: q1}})
		curve2 := BuildCurve([]Level{{Price: p2, Quantity: q2}})

		const profitThreshold, slippage = 0.05, 0.01
		result := Size(curve1, curve2, profitThreshold, slippage, nil)
		if result.Shares == 0 {
			return true
		}
		required := math.Ceil(float64(result.TotalCost) * (1 + slippage) * (1 + profitThreshold))
		return float64(1000*result.Shares) >= required
	}
	require.NoError(t, quick.Check(f, nil))
}
