package core

// amm_math.go – exact AMM pricing primitives. The v2 constant-product and
// v3 single-tick formulas here must match on-chain execution bit-for-bit
// inside their validity range: every multiply happens before the final
// truncated division, on unbounded integers.
//
// The marginal derivatives (scaled 2^128) feed the split optimizer, which
// relies on them being strictly decreasing in the allocation.
// -----------------------------------------------------------------------------

import "math/big"

const feePPMDenominator = 1_000_000

var bigFeePPMDen = big.NewInt(feePPMDenominator)

//---------------------------------------------------------------------
// v2 constant product
//---------------------------------------------------------------------

// V2AmountOut computes the constant-product output with the protocol fee
// pair applied to the input side:
//
//	amountInWithFee = amountIn * feeNum
//	amountOut       = amountInWithFee * reserveOut / (reserveIn * feeDen + amountInWithFee)
//
// Any non-positive operand yields zero; callers drop the candidate.
func V2AmountOut(amountIn, reserveIn, reserveOut, feeNum, feeDen *big.Int) *big.Int {
	if badAmount(amountIn) || badAmount(reserveIn) || badAmount(reserveOut) ||
		badAmount(feeNum) || badAmount(feeDen) {
		return new(big.Int)
	}
	inWithFee := new(big.Int).Mul(amountIn, feeNum)
	num := new(big.Int).Mul(inWithFee, reserveOut)
	den := new(big.Int).Mul(reserveIn, feeDen)
	den.Add(den, inWithFee)
	return quoSafe(num, den)
}

// V2MarginalQ128 is dAmountOut/dAmountIn at the given allocation, scaled by
// 2^128:
//
//	m(x) = feeNum * feeDen * reserveIn * reserveOut / (reserveIn*feeDen + x*feeNum)^2
//
// m is strictly decreasing in x for any pool with nonzero reserves.
func V2MarginalQ128(alloc, reserveIn, reserveOut, feeNum, feeDen *big.Int) *big.Int {
	if badAmount(reserveIn) || badAmount(reserveOut) || badAmount(feeNum) || badAmount(feeDen) {
		return new(big.Int)
	}
	x := alloc
	if x == nil || x.Sign() < 0 {
		x = bigZero
	}
	den := new(big.Int).Mul(reserveIn, feeDen)
	den.Add(den, new(big.Int).Mul(x, feeNum))
	den.Mul(den, den)

	num := new(big.Int).Mul(feeNum, feeDen)
	num.Mul(num, reserveIn)
	num.Mul(num, reserveOut)
	num.Mul(num, Q128)
	return quoSafe(num, den)
}

//---------------------------------------------------------------------
// v3 single-tick approximation
//---------------------------------------------------------------------

// V3AmountOut computes the output of a concentrated-liquidity swap that
// stays inside the current initialized-liquidity range. For zero-for-one:
//
//	x'            = amountIn * (10^6 - feePPM) / 10^6
//	sqrtPriceNext = L*2^96*P / (L*2^96 + x'*P)
//	amountOut     = L * (P - sqrtPriceNext) / 2^96
//
// The one-for-zero direction is derived symmetrically (price moves up).
// Callers must treat the result as an approximation and prefer a quoter
// contract when one is configured. The next sqrt price is returned so
// callers can bound the range assumption.
func V3AmountOut(amountIn, sqrtPriceX96, liquidity *big.Int, feePPM uint32, zeroForOne bool) (*big.Int, *big.Int) {
	if badAmount(amountIn) || badAmount(sqrtPriceX96) || badAmount(liquidity) || feePPM >= feePPMDenominator {
		return new(big.Int), new(big.Int)
	}
	inAfterFee := feeAdjustPPM(amountIn, feePPM)
	p := sqrtPriceX96
	lq := new(big.Int).Mul(liquidity, Q96)

	if zeroForOne {
		den := new(big.Int).Add(lq, new(big.Int).Mul(inAfterFee, p))
		next := quoSafe(new(big.Int).Mul(lq, p), den)
		out := new(big.Int).Sub(p, next)
		out.Mul(out, liquidity)
		return out.Quo(out, Q96), next
	}

	// token1 in: sqrtPriceNext = P + amountIn*2^96/L, and
	// amountOut = L * 2^96 * (sqrtPriceNext - P) / (sqrtPriceNext * P).
	next := quoSafe(new(big.Int).Mul(inAfterFee, Q96), liquidity)
	next.Add(next, p)
	num := new(big.Int).Sub(next, p)
	num.Mul(num, lq)
	den := new(big.Int).Mul(next, p)
	return quoSafe(num, den), next
}

// V3MarginalQ128 is the closed-form dAmountOut/dAmountIn of V3AmountOut at
// the given allocation, scaled by 2^128.
func V3MarginalQ128(alloc, sqrtPriceX96, liquidity *big.Int, feePPM uint32, zeroForOne bool) *big.Int {
	if badAmount(sqrtPriceX96) || badAmount(liquidity) || feePPM >= feePPMDenominator {
		return new(big.Int)
	}
	x := alloc
	if x == nil || x.Sign() < 0 {
		x = bigZero
	}
	gammaNum := big.NewInt(int64(feePPMDenominator - feePPM))
	p := sqrtPriceX96

	if zeroForOne {
		// m = gamma * L^2 * P^2 / (L*2^96 + x'*P)^2
		den := new(big.Int).Mul(liquidity, Q96)
		den.Add(den, new(big.Int).Mul(feeAdjustPPM(x, feePPM), p))
		den.Mul(den, den)
		den.Mul(den, bigFeePPMDen)

		num := new(big.Int).Mul(liquidity, liquidity)
		num.Mul(num, p)
		num.Mul(num, p)
		num.Mul(num, gammaNum)
		num.Mul(num, Q128)
		return quoSafe(num, den)
	}

	// m = gamma * 2^192 / (P + x'*2^96/L)^2
	next := quoSafe(new(big.Int).Mul(feeAdjustPPM(x, feePPM), Q96), liquidity)
	next.Add(next, p)
	den := new(big.Int).Mul(next, next)
	den.Mul(den, bigFeePPMDen)

	num := new(big.Int).Mul(Q96, Q96)
	num.Mul(num, gammaNum)
	num.Mul(num, Q128)
	return quoSafe(num, den)
}

//---------------------------------------------------------------------
// Mid prices
//---------------------------------------------------------------------

// V2MidPriceQ18 is the zero-size marginal price before fees, from reserves.
func V2MidPriceQ18(reserveIn, reserveOut *big.Int, decIn, decOut int) *big.Int {
	return RatioQ18(reserveIn, reserveOut, decIn, decOut)
}

// V3MidPriceQ18 derives the mid price from sqrtPriceX96. The raw square is
// the token1/token0 price scaled 2^192; the direction flag orients it to
// the hop's tokenIn -> tokenOut.
func V3MidPriceQ18(sqrtPriceX96 *big.Int, zeroForOne bool, decIn, decOut int) *big.Int {
	if badAmount(sqrtPriceX96) || decIn < 0 || decOut < 0 {
		return new(big.Int)
	}
	sq := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	q192 := new(big.Int).Mul(Q96, Q96)
	if zeroForOne {
		num := new(big.Int).Mul(sq, Pow10(decIn))
		num.Mul(num, Q18)
		return quoSafe(num, new(big.Int).Mul(q192, Pow10(decOut)))
	}
	num := new(big.Int).Mul(q192, Pow10(decIn))
	num.Mul(num, Q18)
	return quoSafe(num, new(big.Int).Mul(sq, Pow10(decOut)))
}

//---------------------------------------------------------------------
// Price impact
//---------------------------------------------------------------------

// PriceImpactBps measures the realized shortfall against the mid price in
// basis points, saturated to [0, 10000]. A zero expected output yields 0;
// the candidate is dropped by its builder instead.
func PriceImpactBps(midPriceQ18, amountIn, amountOut *big.Int, decIn, decOut int) uint16 {
	expected := ApplyPriceQ18(midPriceQ18, amountIn, decIn, decOut)
	if expected.Sign() <= 0 || amountOut == nil {
		return 0
	}
	actual := amountOut
	if actual.Cmp(expected) >= 0 {
		return 0
	}
	diff := new(big.Int).Sub(expected, actual)
	diff.Mul(diff, bpsDenominator)
	diff.Quo(diff, expected)
	if diff.Cmp(bpsDenominator) >= 0 {
		return 10000
	}
	return uint16(diff.Uint64())
}

//---------------------------------------------------------------------
// helpers
//---------------------------------------------------------------------

// feeAdjustPPM deducts a parts-per-million fee from an amount.
func feeAdjustPPM(amount *big.Int, feePPM uint32) *big.Int {
	adj := new(big.Int).Mul(amount, big.NewInt(int64(feePPMDenominator-feePPM)))
	return adj.Quo(adj, bigFeePPMDen)
}

func badAmount(v *big.Int) bool { return v == nil || v.Sign() <= 0 }
