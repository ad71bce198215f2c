package domain

// Candidate is one market offered to the allocator.
type Candidate struct {
	MarketID       string
	EventID        string
	Side           Side
	Price          int // cents, ask at which units can be bought
	OpenInterest   int
	Volume24h      int
	DepthAtPrice   int // contracts fillable at Price
	Spread         int // cents between best bid and ask
}

// Liquidity score weights. Depth dominates: a deep book at the target price
// is what actually gets the order filled.
const (
	liqWeightDepth  = 0.40
	liqWeightVolume = 0.25
	liqWeightOI     = 0.20
	liqWeightSpread = 0.15

	liqDepthFull  = 500   // contracts at price for a full depth score
	liqVolumeFull = 10000 // 24h contracts for a full volume score
	liqOIFull     = 5000  // open interest for a full score
	liqSpreadMax  = 10    // cents; at or beyond this the spread score is 0
)

// LiquidityScore combines depth, volume, open interest, and spread into a
// 0–100 score.
func (c Candidate) LiquidityScore() float64 {
	depth := ratio(c.DepthAtPrice, liqDepthFull)
	volume := ratio(c.Volume24h, liqVolumeFull)
	oi := ratio(c.OpenInterest, liqOIFull)

	spread := 0.0
	if c.Spread > 0 && c.Spread < liqSpreadMax {
		spread = 1.0 - float64(c.Spread)/liqSpreadMax
	}

	score := depth*liqWeightDepth + volume*liqWeightVolume + oi*liqWeightOI + spread*liqWeightSpread
	return score * 100
}

func ratio(have, full int) float64 {
	if have <= 0 {
		return 0
	}
	if have >= full {
		return 1
	}
	return float64(have) / float64(full)
}
