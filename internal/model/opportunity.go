package model

// OpportunityType names which side of the pair is bought YES vs NO.
type OpportunityType string

const (
	OppYes1No2 OpportunityType = "yes1_no2"
	OppYes2No1 OpportunityType = "yes2_no1"
)

// Opportunity is the arbitrage finder's output: buy Shares of YES on one
// venue and NO on the other for TotalCost tenths-of-cent, guaranteeing
// 1000*Shares revenue on resolution. Ephemeral in the stream; persisted only
// as an audit record alongside the orders it spawns.
type Opportunity struct {
	Type         OpportunityType `json:"type"`
	PairKey      Pair            `json:"pair_key"`
	Shares       int64           `json:"shares"`
	TotalCost    int64           `json:"total_cost"`
	CostPerShare float64         `json:"cost_per_share"`
	MaxPrice1    int64           `json:"max_price_1"`
	MaxPrice2    int64           `json:"max_price_2"`
}

// Legs returns which side (YES/NO) is bought on venue 1 and venue 2 for this
// opportunity's type.
func (o Opportunity) Legs() (side1, side2 Side) {
	if o.Type == OppYes1No2 {
		return SideYes, SideNo
	}
	return SideNo, SideYes
}

// Side is YES or NO.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)
