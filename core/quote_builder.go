package core

// quote_builder.go – turns a pool snapshot plus a simulated swap into a
// PriceQuote, and merges single-hop quotes into multi-hop ones. The gas
// model here is deterministic: quoter-contract gas hints are informational
// only and always overridden by these figures.
// -----------------------------------------------------------------------------

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Deterministic gas model per hop composition.
const (
	gasBaseUnits   = 50_000
	gasPerV2Hop    = 70_000
	gasPerV3Hop    = 110_000
	gasPerExtraHop = 20_000

	// defaultSplitGasOverheadUnits is charged per additional split leg when
	// weighing a split against the best single route.
	defaultSplitGasOverheadUnits = 80_000
)

// EstimateGasUnits implements the hop-version gas model:
// base + per-hop cost + a surcharge per hop beyond the first.
func EstimateGasUnits(hopVersions []PoolVersion) uint64 {
	units := uint64(gasBaseUnits)
	for _, v := range hopVersions {
		if v == PoolV3 {
			units += gasPerV3Hop
		} else {
			units += gasPerV2Hop
		}
	}
	if extra := len(hopVersions) - 1; extra > 0 {
		units += uint64(extra) * gasPerExtraHop
	}
	return units
}

// AttachGasCost fills the wei-denominated gas fields once a gas price is
// known. Quotes keep nil cost fields when the price is unknown.
func AttachGasCost(q *PriceQuote, gasPriceWei *big.Int) {
	if q == nil || gasPriceWei == nil || gasPriceWei.Sign() <= 0 {
		return
	}
	q.GasPriceWei = new(big.Int).Set(gasPriceWei)
	q.EstimatedGasCostWei = new(big.Int).Mul(
		new(big.Int).SetUint64(q.EstimatedGasUnits), gasPriceWei)
	for i := range q.Splits {
		AttachGasCost(q.Splits[i].Quote, gasPriceWei)
	}
	for _, offer := range q.Offers {
		AttachGasCost(offer, gasPriceWei)
	}
}

//---------------------------------------------------------------------
// Single-hop quotes
//---------------------------------------------------------------------

// hopSimulation carries everything the builder needs for one priced hop.
type hopSimulation struct {
	dex         *DexConfig
	pool        PoolSnapshot
	tokenIn     Token
	tokenOut    Token
	amountIn    *big.Int
	amountOut   *big.Int
	feeTier     uint32
	approximate bool
}

// buildSingleHopQuote assembles a complete PriceQuote for one pool
// traversal. A zero or negative simulated output drops the candidate by
// returning nil.
func buildSingleHopQuote(chainKey string, sim hopSimulation) *PriceQuote {
	if sim.amountOut == nil || sim.amountOut.Sign() <= 0 {
		return nil
	}
	decIn, decOut := int(sim.tokenIn.Decimals), int(sim.tokenOut.Decimals)
	zeroForOne := SameToken(sim.pool.Token0, sim.tokenIn.Address)

	var midQ18, liquidityScore *big.Int
	switch sim.pool.Version {
	case PoolV2:
		rIn, rOut := sim.pool.Reserve0, sim.pool.Reserve1
		if !zeroForOne {
			rIn, rOut = rOut, rIn
		}
		midQ18 = V2MidPriceQ18(rIn, rOut, decIn, decOut)
		liquidityScore = new(big.Int).Add(rIn, rOut)
	case PoolV3:
		midQ18 = V3MidPriceQ18(sim.pool.SqrtPriceX96, zeroForOne, decIn, decOut)
		liquidityScore = new(big.Int).Set(sim.pool.Liquidity)
	default:
		return nil
	}
	if midQ18.Sign() <= 0 {
		return nil
	}

	execQ18 := RatioQ18(sim.amountIn, sim.amountOut, decIn, decOut)
	impact := PriceImpactBps(midQ18, sim.amountIn, sim.amountOut, decIn, decOut)
	versions := []PoolVersion{sim.pool.Version}

	return &PriceQuote{
		ChainKey:          chainKey,
		AmountIn:          new(big.Int).Set(sim.amountIn),
		AmountOut:         new(big.Int).Set(sim.amountOut),
		PriceQ18:          execQ18,
		ExecutionPriceQ18: new(big.Int).Set(execQ18),
		MidPriceQ18:       midQ18,
		PriceImpactBps:    impact,
		Path:              []Token{sim.tokenIn, sim.tokenOut},
		RouteAddresses:    []common.Address{sim.tokenIn.Address, sim.tokenOut.Address},
		Sources: []PriceSource{{
			DexID:       sim.dex.ID,
			Protocol:    sim.dex.Protocol,
			PoolAddress: sim.pool.Address,
			Version:     sim.pool.Version,
			AmountIn:    new(big.Int).Set(sim.amountIn),
			AmountOut:   new(big.Int).Set(sim.amountOut),
			FeeTier:     sim.feeTier,
			Approximate: sim.approximate,
			Pool:        sim.pool,
		}},
		HopVersions:       versions,
		LiquidityScore:    liquidityScore,
		EstimatedGasUnits: EstimateGasUnits(versions),
	}
}

//---------------------------------------------------------------------
// Multi-hop composition
//---------------------------------------------------------------------

// combineLegs chains leg B after leg A into one quote. The mid price is
// the product of the legs' mids, the impact is their sum (saturated), and
// the liquidity score is the weaker leg's score.
func combineLegs(legA, legB *PriceQuote) *PriceQuote {
	if legA == nil || legB == nil {
		return nil
	}
	path := append(append([]Token{}, legA.Path...), legB.Path[1:]...)
	route := append(append([]common.Address{}, legA.RouteAddresses...), legB.RouteAddresses[1:]...)
	sources := append(append([]PriceSource{}, legA.Sources...), legB.Sources...)
	versions := append(append([]PoolVersion{}, legA.HopVersions...), legB.HopVersions...)

	decIn := int(path[0].Decimals)
	decOut := int(path[len(path)-1].Decimals)
	execQ18 := RatioQ18(legA.AmountIn, legB.AmountOut, decIn, decOut)

	impact := uint32(legA.PriceImpactBps) + uint32(legB.PriceImpactBps)
	if impact > 10000 {
		impact = 10000
	}

	liquidityScore := legA.LiquidityScore
	if legB.LiquidityScore.Cmp(liquidityScore) < 0 {
		liquidityScore = legB.LiquidityScore
	}

	return &PriceQuote{
		ChainKey:          legA.ChainKey,
		AmountIn:          new(big.Int).Set(legA.AmountIn),
		AmountOut:         new(big.Int).Set(legB.AmountOut),
		PriceQ18:          execQ18,
		ExecutionPriceQ18: new(big.Int).Set(execQ18),
		MidPriceQ18:       MultiplyQ18(legA.MidPriceQ18, legB.MidPriceQ18),
		PriceImpactBps:    uint16(impact),
		Path:              path,
		RouteAddresses:    route,
		Sources:           sources,
		HopVersions:       versions,
		LiquidityScore:    new(big.Int).Set(liquidityScore),
		EstimatedGasUnits: EstimateGasUnits(versions),
	}
}
