package core

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestEstimateGasUnits(t *testing.T) {
	cases := []struct {
		hops []PoolVersion
		want uint64
	}{
		{[]PoolVersion{PoolV2}, 120_000},
		{[]PoolVersion{PoolV3}, 160_000},
		{[]PoolVersion{PoolV2, PoolV2}, 210_000},
		{[]PoolVersion{PoolV2, PoolV3}, 250_000},
		{[]PoolVersion{PoolV3, PoolV3, PoolV3}, 420_000},
	}
	for _, c := range cases {
		if got := EstimateGasUnits(c.hops); got != c.want {
			t.Fatalf("gas for %v = %d, want %d", c.hops, got, c.want)
		}
	}
}

func TestAttachGasCost(t *testing.T) {
	q := &PriceQuote{EstimatedGasUnits: 120_000}
	AttachGasCost(q, nil)
	if q.EstimatedGasCostWei != nil {
		t.Fatalf("nil gas price must leave cost absent")
	}
	AttachGasCost(q, big.NewInt(100))
	if q.EstimatedGasCostWei.Cmp(big.NewInt(12_000_000)) != 0 {
		t.Fatalf("gas cost = %s", q.EstimatedGasCostWei)
	}
	if q.GasPriceWei.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("gas price not recorded")
	}
}

func singleHopFixture(dexID string, pool common.Address, rIn, rOut, amountIn *big.Int) *PriceQuote {
	in := Token{ChainID: 1, Address: tokenA, Symbol: "AAA", Decimals: 18}
	out := Token{ChainID: 1, Address: tokenB, Symbol: "BBB", Decimals: 18}
	amountOut := V2AmountOut(amountIn, rIn, rOut, big.NewInt(997), big.NewInt(1000))
	return buildSingleHopQuote("testchain", hopSimulation{
		dex: &DexConfig{ID: dexID, Protocol: "uniswap", Version: PoolV2, RouterAddress: router1},
		pool: PoolSnapshot{
			Version:  PoolV2,
			Address:  pool,
			Token0:   tokenA,
			Token1:   tokenB,
			Reserve0: rIn,
			Reserve1: rOut,
		},
		tokenIn:   in,
		tokenOut:  out,
		amountIn:  amountIn,
		amountOut: amountOut,
	})
}

func TestBuildSingleHopQuote(t *testing.T) {
	q := singleHopFixture("dex-a", testAddr(0x51), e18(1_000_000), e18(1_000_000), e18(1000))
	if q == nil {
		t.Fatalf("quote dropped")
	}
	if len(q.Path) != 2 || len(q.Sources) != 1 || len(q.HopVersions) != 1 {
		t.Fatalf("quote shape wrong: %d path, %d sources", len(q.Path), len(q.Sources))
	}
	if q.MidPriceQ18.Cmp(Q18) != 0 {
		t.Fatalf("balanced pool mid price = %s, want 1e18", q.MidPriceQ18)
	}
	if q.PriceImpactBps > 100 {
		t.Fatalf("impact %d bps too high for a deep pool", q.PriceImpactBps)
	}
	wantScore := new(big.Int).Add(e18(1_000_000), e18(1_000_000))
	if q.LiquidityScore.Cmp(wantScore) != 0 {
		t.Fatalf("liquidity score %s want %s", q.LiquidityScore, wantScore)
	}
	if q.EstimatedGasUnits != 120_000 {
		t.Fatalf("gas units %d", q.EstimatedGasUnits)
	}
}

func TestBuildSingleHopQuoteDropsZeroOutput(t *testing.T) {
	q := buildSingleHopQuote("testchain", hopSimulation{
		dex:       &DexConfig{ID: "dex-a", Protocol: "uniswap", Version: PoolV2},
		pool:      PoolSnapshot{Version: PoolV2, Token0: tokenA, Token1: tokenB, Reserve0: e18(1), Reserve1: e18(1)},
		tokenIn:   Token{Address: tokenA, Decimals: 18},
		tokenOut:  Token{Address: tokenB, Decimals: 18},
		amountIn:  e18(1),
		amountOut: big.NewInt(0),
	})
	if q != nil {
		t.Fatalf("zero-output candidate must be dropped")
	}
}

func TestCombineLegs(t *testing.T) {
	legA := singleHopFixture("dex-a", testAddr(0x51), e18(5000), e18(5000), e18(1))
	// Second hop from B to MID via another pool.
	midToken := Token{ChainID: 1, Address: tokenMid, Symbol: "MID", Decimals: 18}
	legBOut := V2AmountOut(legA.AmountOut, e18(4000), e18(4000), big.NewInt(997), big.NewInt(1000))
	legB := buildSingleHopQuote("testchain", hopSimulation{
		dex: &DexConfig{ID: "dex-b", Protocol: "sushiswap", Version: PoolV2, RouterAddress: router2},
		pool: PoolSnapshot{
			Version:  PoolV2,
			Address:  testAddr(0x52),
			Token0:   tokenB,
			Token1:   tokenMid,
			Reserve0: e18(4000),
			Reserve1: e18(4000),
		},
		tokenIn:   legA.Path[1],
		tokenOut:  midToken,
		amountIn:  legA.AmountOut,
		amountOut: legBOut,
	})

	combined := combineLegs(legA, legB)
	if combined == nil {
		t.Fatalf("combine failed")
	}
	if len(combined.Path) != 3 || len(combined.Sources) != 2 || len(combined.HopVersions) != 2 {
		t.Fatalf("combined shape wrong")
	}
	if combined.AmountIn.Cmp(legA.AmountIn) != 0 || combined.AmountOut.Cmp(legB.AmountOut) != 0 {
		t.Fatalf("amounts not threaded through")
	}
	wantImpact := uint32(legA.PriceImpactBps) + uint32(legB.PriceImpactBps)
	if uint32(combined.PriceImpactBps) != wantImpact {
		t.Fatalf("impact %d want %d (sum of legs)", combined.PriceImpactBps, wantImpact)
	}
	minScore := legA.LiquidityScore
	if legB.LiquidityScore.Cmp(minScore) < 0 {
		minScore = legB.LiquidityScore
	}
	if combined.LiquidityScore.Cmp(minScore) != 0 {
		t.Fatalf("liquidity score must be the weaker leg's")
	}
	wantMid := MultiplyQ18(legA.MidPriceQ18, legB.MidPriceQ18)
	if combined.MidPriceQ18.Cmp(wantMid) != 0 {
		t.Fatalf("mid price must multiply across hops")
	}
	if combined.EstimatedGasUnits != EstimateGasUnits(combined.HopVersions) {
		t.Fatalf("gas model not applied to combined quote")
	}
}
