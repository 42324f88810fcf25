package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSynthesizeNoFromYes_MirrorsAndSorts(t *testing.T) {
	yes := BookSide{
		Bid: []PriceLevel{{Price: 400, Quantity: 10}, {Price: 450, Quantity: 5}},
		Ask: []PriceLevel{{Price: 500, Quantity: 20}, {Price: 520, Quantity: 8}},
	}

	no := SynthesizeNoFromYes(yes, 0)

	// NO ask mirrors YES bid (1000 - yes_bid), highest yes bid first so the
	// NO ask ladder still comes out ascending.
	assert.Equal(t, []PriceLevel{{Price: 550, Quantity: 5}, {Price: 600, Quantity: 10}}, no.Ask)
	// NO bid mirrors YES ask, ascending too.
	assert.Equal(t, []PriceLevel{{Price: 480, Quantity: 8}, {Price: 500, Quantity: 20}}, no.Bid)
}

func TestSynthesizeNoFromYes_DropsLevelsCrossingOpposingBid(t *testing.T) {
	yes := BookSide{Bid: []PriceLevel{{Price: 400, Quantity: 10}, {Price: 480, Quantity: 5}}}

	no := SynthesizeNoFromYes(yes, 550)

	// 1000-400=600 > 550 kept, 1000-480=520 <= 550 dropped.
	assert.Equal(t, []PriceLevel{{Price: 600, Quantity: 10}}, no.Ask)
}

func TestOpportunity_Legs(t *testing.T) {
	o1 := Opportunity{Type: OppYes1No2}
	s1, s2 := o1.Legs()
	assert.Equal(t, SideYes, s1)
	assert.Equal(t, SideNo, s2)

	o2 := Opportunity{Type: OppYes2No1}
	s1, s2 = o2.Legs()
	assert.Equal(t, SideNo, s1)
	assert.Equal(t, SideYes, s2)
}
