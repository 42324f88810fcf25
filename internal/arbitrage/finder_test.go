package arbitrage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventarb/crossvenue/internal/model"
)

func book(yesAsk, noAsk int64) model.OrderBook {
	return model.OrderBook{
		Yes: model.BookSide{Ask: []model.PriceLevel{{Price: yesAsk, Quantity: 100}}},
		No:  model.BookSide{Ask: []model.PriceLevel{{Price: noAsk, Quantity: 100}}},
	}
}

func TestEvaluate_FindsOpportunityWhenCombinedAskBelowThousand(t *testing.T) {
	f := &Finder{ProfitThreshold: 0.02, ExpectedSlippage: 0.0}

	// YES1 ask 400 + NO2 ask 450 = 850, well under 1000.
	ob1 := book(400, 900)
	ob2 := book(900, 450)

	opp, found := f.evaluate(ob1, ob2)
	require.True(t, found)
	assert.Equal(t, model.OppYes1No2, opp.Type)
	assert.Greater(t, opp.Shares, int64(0))
}

func TestEvaluate_PicksCheaperDirectionWhenBothAdmissible(t *testing.T) {
	f := &Finder{ProfitThreshold: 0.02, ExpectedSlippage: 0.0}

	// yes1+no2 = 400+450 = 850 (cheaper); yes2+no1 = 430+480 = 910, also
	// admissible on its own but the finder must still prefer the 850
	// direction.
	ob1 := model.OrderBook{
		Yes: model.BookSide{Ask: []model.PriceLevel{{Price: 400, Quantity: 100}}},
		No:  model.BookSide{Ask: []model.PriceLevel{{Price: 480, Quantity: 100}}},
	}
	ob2 := model.OrderBook{
		Yes: model.BookSide{Ask: []model.PriceLevel{{Price: 430, Quantity: 100}}},
		No:  model.BookSide{Ask: []model.PriceLevel{{Price: 450, Quantity: 100}}},
	}

	opp, found := f.evaluate(ob1, ob2)
	require.True(t, found)
	assert.Equal(t, model.OppYes1No2, opp.Type)
	assert.InDelta(t, 850.0, opp.CostPerShare, 0.01)
}

func TestEvaluate_NoOpportunityWhenCombinedAskAboveThousand(t *testing.T) {
	f := &Finder{ProfitThreshold: 0.02, ExpectedSlippage: 0.0}

	ob1 := book(520, 900)
	ob2 := book(900, 530)

	_, found := f.evaluate(ob1, ob2)
	assert.False(t, found)
}

func TestToLevels_PreservesPriceAndQuantity(t *testing.T) {
	levels := toLevels([]model.PriceLevel{{Price: 100, Quantity: 5}, {Price: 200, Quantity: 10}})
	require.Len(t, levels, 2)
	assert.Equal(t, Level{Price: 100, Quantity: 5}, levels[0])
	assert.Equal(t, Level{Price: 200, Quantity: 10}, levels[1])
}
