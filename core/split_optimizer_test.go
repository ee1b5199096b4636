package core

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func v2Candidate(dexID string, pool common.Address, rIn, rOut, amountIn *big.Int) *PriceQuote {
	return singleHopFixture(dexID, pool, rIn, rOut, amountIn)
}

func testOptimizer() *SplitOptimizer {
	params := RoutingParams{
		MaxSplitLegs:            3,
		MinLegRatioBps:          500,
		ConvergenceThresholdBps: 10,
		MaxIterations:           50,
		SplitGasOverheadUnits:   80_000,
	}
	return NewSplitOptimizer(params, nil)
}

// Two identical pools must split ~50/50 and beat the single route by a
// clear margin.
func TestSplitTwoIdenticalPools(t *testing.T) {
	amountIn := e18(200_000)
	r := e18(1_000_000)
	a := v2Candidate("dex-a", testAddr(0x71), r, r, amountIn)
	b := v2Candidate("dex-b", testAddr(0x72), r, r, amountIn)

	split := testOptimizer().Optimize([]*PriceQuote{a, b}, amountIn, nil, nil, 18)
	if split == nil {
		t.Fatalf("split expected")
	}
	if !split.IsSplit || len(split.Splits) != 2 {
		t.Fatalf("split shape wrong: %+v", split)
	}
	for _, leg := range split.Splits {
		if leg.RatioBps < 4995 || leg.RatioBps > 5005 {
			t.Fatalf("identical pools must split ~50/50, got %d bps", leg.RatioBps)
		}
	}

	// splitOut > singleOut by more than 0.1%.
	gain := new(big.Int).Sub(split.AmountOut, a.AmountOut)
	threshold := new(big.Int).Div(a.AmountOut, big.NewInt(1000))
	if gain.Cmp(threshold) <= 0 {
		t.Fatalf("split gain %s below 0.1%% of single output %s", gain, a.AmountOut)
	}

	// Allocation bookkeeping is exact.
	totalIn := new(big.Int)
	totalOut := new(big.Int)
	ratioSum := 0
	for _, leg := range split.Splits {
		totalIn.Add(totalIn, leg.Quote.AmountIn)
		totalOut.Add(totalOut, leg.Quote.AmountOut)
		ratioSum += int(leg.RatioBps)
	}
	if totalIn.Cmp(amountIn) != 0 {
		t.Fatalf("leg inputs sum to %s, want %s", totalIn, amountIn)
	}
	if totalOut.Cmp(split.AmountOut) != 0 {
		t.Fatalf("leg outputs sum to %s, quote says %s", totalOut, split.AmountOut)
	}
	if ratioSum != 10000 {
		t.Fatalf("ratio sum %d, want exactly 10000", ratioSum)
	}
}

// Pool A is four times deeper than pool B: the primary leg lands on A with
// more than half the input and the split beats A alone.
func TestSplitDepthAsymmetry(t *testing.T) {
	amountIn := e18(100_000)
	a := v2Candidate("dex-a", testAddr(0x71), e18(2_000_000), e18(2_000_000), amountIn)
	b := v2Candidate("dex-b", testAddr(0x72), e18(500_000), e18(500_000), amountIn)

	split := testOptimizer().Optimize([]*PriceQuote{a, b}, amountIn, nil, nil, 18)
	if split == nil {
		t.Fatalf("split expected")
	}
	primary := split.Splits[0]
	if primary.Quote.Sources[0].PoolAddress != testAddr(0x71) {
		t.Fatalf("primary leg must ride the deeper pool")
	}
	if primary.RatioBps <= 5000 {
		t.Fatalf("primary ratio %d must exceed 5000", primary.RatioBps)
	}
	if split.AmountOut.Cmp(a.AmountOut) <= 0 {
		t.Fatalf("split output %s must beat pool A alone %s", split.AmountOut, a.AmountOut)
	}
}

// Deep pools, tiny trade, expensive gas: the raw output gain cannot pay
// for the extra leg, so no split is returned.
func TestSplitRejectedByGasGuard(t *testing.T) {
	amountIn := e18(100)
	r := e18(10_000_000)
	a := v2Candidate("dex-a", testAddr(0x71), r, r, amountIn)
	b := v2Candidate("dex-b", testAddr(0x72), r, r, amountIn)

	gasPrice := new(big.Int).Exp(big.NewInt(10), big.NewInt(11), nil) // 100 gwei
	split := testOptimizer().Optimize([]*PriceQuote{a, b}, amountIn, gasPrice, nil, 18)
	if split != nil {
		t.Fatalf("gas guard should reject the split (gain below extra gas)")
	}

	// Without a gas price the same split is allowed.
	if s := testOptimizer().Optimize([]*PriceQuote{a, b}, amountIn, nil, nil, 18); s == nil {
		t.Fatalf("split expected when gas is unknown")
	}
}

func TestSplitSingleCandidate(t *testing.T) {
	amountIn := e18(1000)
	a := v2Candidate("dex-a", testAddr(0x71), e18(10_000), e18(10_000), amountIn)
	if s := testOptimizer().Optimize([]*PriceQuote{a}, amountIn, nil, nil, 18); s != nil {
		t.Fatalf("single candidate must not split")
	}
}

func TestSplitDisabledByMaxLegs(t *testing.T) {
	amountIn := e18(1000)
	a := v2Candidate("dex-a", testAddr(0x71), e18(10_000), e18(10_000), amountIn)
	b := v2Candidate("dex-b", testAddr(0x72), e18(10_000), e18(10_000), amountIn)
	opt := NewSplitOptimizer(RoutingParams{MaxSplitLegs: 1}, nil)
	if s := opt.Optimize([]*PriceQuote{a, b}, amountIn, nil, nil, 18); s != nil {
		t.Fatalf("maxSplitLegs=1 must not split")
	}
}

// The same {dexId, poolAddress} presented twice collapses to one
// candidate, so the optimizer finds no self-split.
func TestSplitDeduplicatesSamePool(t *testing.T) {
	amountIn := e18(1000)
	pool := testAddr(0x71)
	a := v2Candidate("dex-a", pool, e18(10_000), e18(10_000), amountIn)
	dup := v2Candidate("dex-a", pool, e18(10_000), e18(10_000), amountIn)
	if s := testOptimizer().Optimize([]*PriceQuote{a, dup}, amountIn, nil, nil, 18); s != nil {
		t.Fatalf("duplicate pool must not split against itself")
	}
}

// Identical-pool MPE stops immediately (spread is zero); asymmetric runs
// must never end below the equal-allocation baseline.
func TestSplitNeverWorseThanEqualAllocation(t *testing.T) {
	amountIn := e18(50_000)
	rA, rB := e18(3_000_000), e18(750_000)
	a := v2Candidate("dex-a", testAddr(0x71), rA, rA, amountIn)
	b := v2Candidate("dex-b", testAddr(0x72), rB, rB, amountIn)

	split := testOptimizer().Optimize([]*PriceQuote{a, b}, amountIn, nil, nil, 18)
	if split == nil {
		t.Fatalf("split expected")
	}

	half := new(big.Int).Div(amountIn, big.NewInt(2))
	fee := big.NewInt(997)
	den := big.NewInt(1000)
	equalOut := new(big.Int).Add(
		V2AmountOut(half, rA, rA, fee, den),
		V2AmountOut(new(big.Int).Sub(amountIn, half), rB, rB, fee, den),
	)
	if split.AmountOut.Cmp(equalOut) < 0 {
		t.Fatalf("MPE result %s worse than equal allocation %s", split.AmountOut, equalOut)
	}
}

func TestSplitImpactIsRatioWeighted(t *testing.T) {
	amountIn := e18(200_000)
	r := e18(1_000_000)
	a := v2Candidate("dex-a", testAddr(0x71), r, r, amountIn)
	b := v2Candidate("dex-b", testAddr(0x72), r, r, amountIn)

	split := testOptimizer().Optimize([]*PriceQuote{a, b}, amountIn, nil, nil, 18)
	if split == nil {
		t.Fatalf("split expected")
	}
	var weighted uint64
	for _, leg := range split.Splits {
		weighted += uint64(leg.Quote.PriceImpactBps) * uint64(leg.RatioBps)
	}
	if uint64(split.PriceImpactBps) != weighted/10000 {
		t.Fatalf("impact %d, ratio-weighted %d", split.PriceImpactBps, weighted/10000)
	}
	if split.PriceImpactBps > 10000 {
		t.Fatalf("impact out of range")
	}
}
