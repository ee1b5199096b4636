package core

// ranker.go – gas-adjusted total order over candidate quotes. The primary
// key is raw output, or net output once a native-to-output price lets gas
// be expressed in output-token units. Ties fall through gas cost (missing
// ranks below present), liquidity, then impact; the order is stable.
// -----------------------------------------------------------------------------

import (
	"math/big"
	"sort"
)

// ConvertGasToOutputUnits expresses a wei gas cost in the output token's
// smallest unit through a Q18 native-to-output price.
func ConvertGasToOutputUnits(gasCostWei *big.Int, outputDecimals int, nativeToOutputPriceQ18 *big.Int) *big.Int {
	if gasCostWei == nil || nativeToOutputPriceQ18 == nil {
		return new(big.Int)
	}
	return ApplyPriceQ18(nativeToOutputPriceQ18, gasCostWei, 18, outputDecimals)
}

// netOutput is the comparator key: amountOut minus the gas cost in output
// units when convertible, else amountOut alone.
func netOutput(q *PriceQuote, nativeToOutputPriceQ18 *big.Int, outputDecimals int) *big.Int {
	if q.AmountOut == nil {
		return new(big.Int)
	}
	if nativeToOutputPriceQ18 == nil || q.EstimatedGasCostWei == nil {
		return q.AmountOut
	}
	gas := ConvertGasToOutputUnits(q.EstimatedGasCostWei, outputDecimals, nativeToOutputPriceQ18)
	return new(big.Int).Sub(q.AmountOut, gas)
}

// CompareQuotes orders a against b: negative means a ranks first (is the
// better quote). The relation is antisymmetric and transitive, and equal
// keys compare as 0 so sorting stays stable.
func CompareQuotes(a, b *PriceQuote, nativeToOutputPriceQ18 *big.Int, outputDecimals int) int {
	if a == nil || b == nil {
		switch {
		case a == b:
			return 0
		case a == nil:
			return 1
		default:
			return -1
		}
	}

	if c := netOutput(b, nativeToOutputPriceQ18, outputDecimals).
		Cmp(netOutput(a, nativeToOutputPriceQ18, outputDecimals)); c != 0 {
		return c
	}

	// Tiebreak 1: lower gas cost, with an unknown cost ranking last.
	switch {
	case a.EstimatedGasCostWei == nil && b.EstimatedGasCostWei != nil:
		return 1
	case a.EstimatedGasCostWei != nil && b.EstimatedGasCostWei == nil:
		return -1
	case a.EstimatedGasCostWei != nil && b.EstimatedGasCostWei != nil:
		if c := a.EstimatedGasCostWei.Cmp(b.EstimatedGasCostWei); c != 0 {
			return c
		}
	}

	// Tiebreak 2: deeper liquidity.
	if a.LiquidityScore != nil && b.LiquidityScore != nil {
		if c := b.LiquidityScore.Cmp(a.LiquidityScore); c != 0 {
			return c
		}
	}

	// Tiebreak 3: lower price impact.
	switch {
	case a.PriceImpactBps < b.PriceImpactBps:
		return -1
	case a.PriceImpactBps > b.PriceImpactBps:
		return 1
	}
	return 0
}

// RankQuotes sorts candidates best-first and attaches every non-winning
// candidate to the winner as offers, best-first and winner-excluded.
// maxOffers < 0 keeps them all.
func RankQuotes(candidates []*PriceQuote, nativeToOutputPriceQ18 *big.Int, outputDecimals, maxOffers int) *PriceQuote {
	if len(candidates) == 0 {
		return nil
	}
	ranked := make([]*PriceQuote, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return CompareQuotes(ranked[i], ranked[j], nativeToOutputPriceQ18, outputDecimals) < 0
	})

	winner := ranked[0]
	offers := ranked[1:]
	if maxOffers >= 0 && len(offers) > maxOffers {
		offers = offers[:maxOffers]
	}
	if len(offers) > 0 {
		winner.Offers = append([]*PriceQuote{}, offers...)
	}
	return winner
}
