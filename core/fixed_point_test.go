package core

import (
	"math/big"
	"testing"
)

func TestScaleToQ18(t *testing.T) {
	cases := []struct {
		amount   int64
		decimals int
		want     string
	}{
		{1, 18, "1"},
		{5, 6, "5000000000000"},
		{1_000_000, 24, "1"},
		{7, -1, "0"},
	}
	for _, c := range cases {
		got := ScaleToQ18(big.NewInt(c.amount), c.decimals)
		if got.String() != c.want {
			t.Fatalf("ScaleToQ18(%d, %d)=%s want %s", c.amount, c.decimals, got, c.want)
		}
	}
	if got := ScaleToQ18(nil, 18); got.Sign() != 0 {
		t.Fatalf("nil amount should scale to zero, got %s", got)
	}
}

func TestMultiplyQ18(t *testing.T) {
	two := new(big.Int).Mul(big.NewInt(2), Q18)
	three := new(big.Int).Mul(big.NewInt(3), Q18)
	got := MultiplyQ18(two, three)
	want := new(big.Int).Mul(big.NewInt(6), Q18)
	if got.Cmp(want) != 0 {
		t.Fatalf("2*3 in Q18 = %s want %s", got, want)
	}
}

func TestApplyPriceQ18(t *testing.T) {
	// price 2.0 across same-decimal tokens doubles the amount.
	price := new(big.Int).Mul(big.NewInt(2), Q18)
	got := ApplyPriceQ18(price, e18(10), 18, 18)
	if got.Cmp(e18(20)) != 0 {
		t.Fatalf("expected 20e18, got %s", got)
	}
	// 18-dec input to 6-dec output at price 1.0.
	got = ApplyPriceQ18(Q18, e18(3), 18, 6)
	if got.Cmp(big.NewInt(3_000_000)) != 0 {
		t.Fatalf("expected 3e6, got %s", got)
	}
	if got := ApplyPriceQ18(price, e18(1), -1, 18); got.Sign() != 0 {
		t.Fatalf("negative decimals must yield zero, got %s", got)
	}
}

func TestRatioQ18RoundTrips(t *testing.T) {
	amountIn := e18(7)
	amountOut := big.NewInt(21_000_000) // 21 units of a 6-decimal token
	price := RatioQ18(amountIn, amountOut, 18, 6)
	want := new(big.Int).Mul(big.NewInt(3), Q18)
	if price.Cmp(want) != 0 {
		t.Fatalf("price=%s want %s", price, want)
	}
	back := ApplyPriceQ18(price, amountIn, 18, 6)
	if back.Cmp(amountOut) != 0 {
		t.Fatalf("round trip got %s want %s", back, amountOut)
	}
}

func TestDivisionByZeroReturnsZero(t *testing.T) {
	if got := RatioQ18(big.NewInt(0), e18(1), 18, 18); got.Sign() != 0 {
		t.Fatalf("zero denominator must yield zero, got %s", got)
	}
	if got := MulDiv(e18(1), e18(1), big.NewInt(0)); got.Sign() != 0 {
		t.Fatalf("MulDiv by zero must yield zero, got %s", got)
	}
}

func TestPow10(t *testing.T) {
	if got := Pow10(3); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("Pow10(3)=%s", got)
	}
	if got := Pow10(-2); got.Sign() != 0 {
		t.Fatalf("Pow10(-2) must be zero, got %s", got)
	}
}

func TestBpsOf(t *testing.T) {
	if got := BpsOf(e18(100), 50); got.Cmp(new(big.Int).Div(e18(1), big.NewInt(2))) != 0 {
		t.Fatalf("50bps of 100e18 = %s", got)
	}
}
