package core

import (
	"math/big"
	"testing"
)

func TestAdapterForUnknownProtocolUsesNeutralFee(t *testing.T) {
	a := AdapterFor("never-registered", PoolV2)
	num, den := a.FeePair()
	if num.Int64() != 997 || den.Int64() != 1000 {
		t.Fatalf("neutral fee pair = %s/%s, want 997/1000", num, den)
	}
}

func TestRegisteredFamilies(t *testing.T) {
	num, den := AdapterFor("pancakeswap", PoolV2).FeePair()
	if num.Int64() != 9975 || den.Int64() != 10000 {
		t.Fatalf("pancakeswap fee pair = %s/%s", num, den)
	}
	num, den = AdapterFor("uniswap", PoolV2).FeePair()
	if num.Int64() != 997 || den.Int64() != 1000 {
		t.Fatalf("uniswap fee pair = %s/%s", num, den)
	}
}

func TestAdapterQuoteMatchesClosedForm(t *testing.T) {
	a := AdapterFor("uniswap", PoolV2)
	got := a.ComputeV2Quote(e18(1000), e18(1_000_000), e18(1_000_000))
	want := V2AmountOut(e18(1000), e18(1_000_000), e18(1_000_000), big.NewInt(997), big.NewInt(1000))
	if got.Cmp(want) != 0 {
		t.Fatalf("adapter output %s, closed form %s", got, want)
	}
}

func TestAdapterGasDiffersByVersion(t *testing.T) {
	v2 := AdapterFor("uniswap", PoolV2).EstimateGas()
	v3 := AdapterFor("uniswap", PoolV3).EstimateGas()
	if v3 <= v2 {
		t.Fatalf("v3 hop gas (%d) should exceed v2 hop gas (%d)", v3, v2)
	}
}
