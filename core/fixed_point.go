package core

// fixed_point.go – Q18 fixed-point helpers on unbounded integers. Every
// routing-relevant amount in this package is a *big.Int in the token's
// smallest unit; IEEE-754 must never touch a value that feeds routing or
// calldata. Division truncates toward zero, a zero denominator yields zero.
// -----------------------------------------------------------------------------

import "math/big"

var (
	bigZero = big.NewInt(0)
	bigOne  = big.NewInt(1)
	bigTen  = big.NewInt(10)

	// Q18 is the price scale: prices are expressed × 10^18.
	Q18 = new(big.Int).Exp(bigTen, big.NewInt(18), nil)
	// Q96 is the sqrt-price scale used by concentrated-liquidity pools.
	Q96 = new(big.Int).Lsh(bigOne, 96)
	// Q128 scales marginal derivatives.
	Q128 = new(big.Int).Lsh(bigOne, 128)

	// MaxUint256 saturates merged approval amounts.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 256), bigOne)

	bpsDenominator = big.NewInt(10000)
)

// Pow10 returns 10^n, or zero for negative n.
func Pow10(n int) *big.Int {
	if n < 0 {
		return new(big.Int)
	}
	return new(big.Int).Exp(bigTen, big.NewInt(int64(n)), nil)
}

// ScaleToQ18 normalises an amount in a token's smallest unit to the Q18
// scale. Negative decimals yield zero.
func ScaleToQ18(amount *big.Int, decimals int) *big.Int {
	if amount == nil || decimals < 0 {
		return new(big.Int)
	}
	if decimals == 18 {
		return new(big.Int).Set(amount)
	}
	if decimals < 18 {
		return new(big.Int).Mul(amount, Pow10(18-decimals))
	}
	return new(big.Int).Quo(new(big.Int).Set(amount), Pow10(decimals-18))
}

// MultiplyQ18 multiplies two Q18 values, keeping the Q18 scale.
func MultiplyQ18(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return new(big.Int)
	}
	prod := new(big.Int).Mul(a, b)
	return prod.Quo(prod, Q18)
}

// ApplyPriceQ18 converts an input amount through a Q18 price, honouring the
// decimal difference between the two tokens:
//
//	out = price * amount * 10^decOut / (10^18 * 10^decIn)
func ApplyPriceQ18(priceQ18, amount *big.Int, decIn, decOut int) *big.Int {
	if priceQ18 == nil || amount == nil || decIn < 0 || decOut < 0 {
		return new(big.Int)
	}
	num := new(big.Int).Mul(priceQ18, amount)
	num.Mul(num, Pow10(decOut))
	den := new(big.Int).Mul(Q18, Pow10(decIn))
	return quoSafe(num, den)
}

// RatioQ18 returns amountOut/amountIn as a Q18 price adjusted for decimals:
//
//	price = amountOut * 10^decIn * 10^18 / (amountIn * 10^decOut)
func RatioQ18(amountIn, amountOut *big.Int, decIn, decOut int) *big.Int {
	if amountIn == nil || amountOut == nil || decIn < 0 || decOut < 0 {
		return new(big.Int)
	}
	num := new(big.Int).Mul(amountOut, Pow10(decIn))
	num.Mul(num, Q18)
	den := new(big.Int).Mul(amountIn, Pow10(decOut))
	return quoSafe(num, den)
}

// MulDiv computes a*b/den with the division last, so intermediate products
// may exceed 256 bits without loss.
func MulDiv(a, b, den *big.Int) *big.Int {
	if a == nil || b == nil {
		return new(big.Int)
	}
	return quoSafe(new(big.Int).Mul(a, b), den)
}

// BpsOf returns amount*bps/10000.
func BpsOf(amount *big.Int, bps uint16) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	return MulDiv(amount, big.NewInt(int64(bps)), bpsDenominator)
}

// quoSafe is truncated division that treats a zero or nil denominator as a
// sentinel: it returns zero instead of panicking, and the affected
// candidate is dropped upstream.
func quoSafe(num, den *big.Int) *big.Int {
	if den == nil || den.Sign() == 0 {
		return new(big.Int)
	}
	return new(big.Int).Quo(num, den)
}
