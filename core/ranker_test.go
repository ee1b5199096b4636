package core

import (
	"math/big"
	"testing"
)

func rankedQuote(out int64, gasCostWei *big.Int, liquidity int64, impact uint16) *PriceQuote {
	return &PriceQuote{
		AmountOut:           e18(out),
		EstimatedGasCostWei: gasCostWei,
		LiquidityScore:      big.NewInt(liquidity),
		PriceImpactBps:      impact,
	}
}

func TestCompareQuotesPrimaryKey(t *testing.T) {
	hi := rankedQuote(100, nil, 1, 0)
	lo := rankedQuote(90, nil, 1, 0)
	if CompareQuotes(hi, lo, nil, 18) >= 0 {
		t.Fatalf("higher output must rank first")
	}
	if CompareQuotes(lo, hi, nil, 18) <= 0 {
		t.Fatalf("antisymmetry broken")
	}
}

func TestCompareQuotesReflexive(t *testing.T) {
	q := rankedQuote(100, big.NewInt(5), 10, 3)
	if CompareQuotes(q, q, nil, 18) != 0 {
		t.Fatalf("compare(x, x) must be 0")
	}
}

func TestCompareQuotesGasTiebreak(t *testing.T) {
	cheap := rankedQuote(100, big.NewInt(100), 1, 0)
	dear := rankedQuote(100, big.NewInt(200), 1, 0)
	missing := rankedQuote(100, nil, 1, 0)
	if CompareQuotes(cheap, dear, nil, 18) >= 0 {
		t.Fatalf("cheaper gas must win the tie")
	}
	if CompareQuotes(missing, cheap, nil, 18) <= 0 {
		t.Fatalf("missing gas cost must rank below a known one")
	}
}

func TestCompareQuotesLiquidityAndImpactTiebreaks(t *testing.T) {
	deep := rankedQuote(100, big.NewInt(5), 1000, 50)
	thin := rankedQuote(100, big.NewInt(5), 10, 50)
	if CompareQuotes(deep, thin, nil, 18) >= 0 {
		t.Fatalf("deeper liquidity must win the tie")
	}
	calm := rankedQuote(100, big.NewInt(5), 1000, 10)
	rough := rankedQuote(100, big.NewInt(5), 1000, 90)
	if CompareQuotes(calm, rough, nil, 18) >= 0 {
		t.Fatalf("lower impact must win the final tie")
	}
}

// With a native-to-output price the key becomes net output: a slightly
// smaller quote with far cheaper gas overtakes.
func TestCompareQuotesGasAdjusted(t *testing.T) {
	price := new(big.Int).Set(Q18) // native and output trade 1:1
	pricey := rankedQuote(100, e18(5), 1, 0)
	frugal := rankedQuote(98, e18(1), 1, 0)
	// net: 95 vs 97
	if CompareQuotes(frugal, pricey, price, 18) >= 0 {
		t.Fatalf("gas-adjusted ranking must prefer the smaller-but-cheaper quote")
	}
}

func TestCompareQuotesTransitiveOverSortedSet(t *testing.T) {
	quotes := []*PriceQuote{
		rankedQuote(100, big.NewInt(5), 10, 1),
		rankedQuote(100, big.NewInt(5), 10, 9),
		rankedQuote(100, nil, 10, 1),
		rankedQuote(120, big.NewInt(9), 1, 50),
		rankedQuote(80, big.NewInt(1), 999, 0),
		rankedQuote(100, big.NewInt(2), 99, 1),
	}
	winner := RankQuotes(quotes, nil, 18, -1)
	ordered := append([]*PriceQuote{winner}, winner.Offers...)
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if CompareQuotes(ordered[j], ordered[i], nil, 18) < 0 {
				t.Fatalf("sorted order violates the comparator at %d,%d", i, j)
			}
		}
	}
}

func TestRankQuotesAttachesOffers(t *testing.T) {
	best := rankedQuote(120, nil, 1, 0)
	second := rankedQuote(110, nil, 1, 0)
	third := rankedQuote(100, nil, 1, 0)
	winner := RankQuotes([]*PriceQuote{third, best, second}, nil, 18, -1)
	if winner != best {
		t.Fatalf("wrong winner")
	}
	if len(winner.Offers) != 2 || winner.Offers[0] != second || winner.Offers[1] != third {
		t.Fatalf("offers wrong: %d entries", len(winner.Offers))
	}
	for _, o := range winner.Offers {
		if o == winner {
			t.Fatalf("winner must be excluded from its own offers")
		}
	}
}

func TestRankQuotesOfferCap(t *testing.T) {
	quotes := []*PriceQuote{
		rankedQuote(5, nil, 1, 0), rankedQuote(4, nil, 1, 0),
		rankedQuote(3, nil, 1, 0), rankedQuote(2, nil, 1, 0),
	}
	winner := RankQuotes(quotes, nil, 18, 2)
	if len(winner.Offers) != 2 {
		t.Fatalf("offer cap ignored: %d", len(winner.Offers))
	}
}

func TestRankQuotesEmpty(t *testing.T) {
	if RankQuotes(nil, nil, 18, -1) != nil {
		t.Fatalf("empty candidate set must rank to nil")
	}
}
