package core

// split_optimizer.go – N-way split search by marginal-price equalization.
// Each candidate path's output function is concave in its allocation, so
// the optimum over a fixed leg set is where the marginals meet; the loop
// moves input from the lowest-marginal leg to the highest until the spread
// falls inside the convergence threshold. Integer arithmetic throughout.
// -----------------------------------------------------------------------------

import (
	"math/big"
	"sort"

	log "github.com/sirupsen/logrus"
)

// maxSplitCandidates bounds the combination search. Candidates are ranked
// by single-path output first, so the truncation only drops legs that could
// at best carry dust.
const maxSplitCandidates = 6

const spreadTransferDivisor = 30000

// SplitOptimizer searches allocations of one input across candidate paths.
type SplitOptimizer struct {
	params RoutingParams
	logger *log.Logger
}

// NewSplitOptimizer builds an optimizer with the chain's routing bounds.
func NewSplitOptimizer(params RoutingParams, logger *log.Logger) *SplitOptimizer {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if params.MaxIterations <= 0 {
		params.MaxIterations = 50
	}
	if params.ConvergenceThresholdBps == 0 {
		params.ConvergenceThresholdBps = 10
	}
	if params.MinLegRatioBps == 0 {
		params.MinLegRatioBps = 500
	}
	if params.SplitGasOverheadUnits == 0 {
		params.SplitGasOverheadUnits = defaultSplitGasOverheadUnits
	}
	return &SplitOptimizer{params: params, logger: logger}
}

//---------------------------------------------------------------------
// Path re-evaluation from recorded snapshots
//---------------------------------------------------------------------

type hopEval struct {
	adapter    DexAdapter
	source     PriceSource
	zeroForOne bool
}

// pathEvaluator recomputes a candidate path's output and marginal at any
// allocation, using the pool snapshots its quote recorded.
type pathEvaluator struct {
	quote *PriceQuote
	hops  []hopEval
}

func newPathEvaluator(q *PriceQuote) *pathEvaluator {
	if q == nil || len(q.Sources) == 0 || len(q.Path) != len(q.Sources)+1 {
		return nil
	}
	hops := make([]hopEval, len(q.Sources))
	for i, src := range q.Sources {
		switch src.Version {
		case PoolV2:
			if src.Pool.Reserve0 == nil || src.Pool.Reserve1 == nil {
				return nil
			}
		case PoolV3:
			if src.Pool.SqrtPriceX96 == nil || src.Pool.Liquidity == nil {
				return nil
			}
		default:
			return nil
		}
		hops[i] = hopEval{
			adapter:    AdapterFor(src.Protocol, src.Version),
			source:     src,
			zeroForOne: SameToken(src.Pool.Token0, q.Path[i].Address),
		}
	}
	return &pathEvaluator{quote: q, hops: hops}
}

func (h *hopEval) output(amountIn *big.Int) *big.Int {
	switch h.source.Version {
	case PoolV2:
		rIn, rOut := h.source.Pool.Reserve0, h.source.Pool.Reserve1
		if !h.zeroForOne {
			rIn, rOut = rOut, rIn
		}
		return h.adapter.ComputeV2Quote(amountIn, rIn, rOut)
	case PoolV3:
		return h.adapter.ComputeV3Quote(amountIn, h.source.Pool.SqrtPriceX96, h.source.Pool.Liquidity, h.source.Pool.FeePPM, h.zeroForOne)
	}
	return new(big.Int)
}

func (h *hopEval) marginalQ128(alloc *big.Int) *big.Int {
	switch h.source.Version {
	case PoolV2:
		rIn, rOut := h.source.Pool.Reserve0, h.source.Pool.Reserve1
		if !h.zeroForOne {
			rIn, rOut = rOut, rIn
		}
		return h.adapter.MarginalV2Q128(alloc, rIn, rOut)
	case PoolV3:
		return h.adapter.MarginalV3Q128(alloc, h.source.Pool.SqrtPriceX96, h.source.Pool.Liquidity, h.source.Pool.FeePPM, h.zeroForOne)
	}
	return new(big.Int)
}

// output chains the allocation through every hop.
func (p *pathEvaluator) output(alloc *big.Int) *big.Int {
	amount := alloc
	for i := range p.hops {
		amount = p.hops[i].output(amount)
		if amount.Sign() <= 0 {
			return new(big.Int)
		}
	}
	return amount
}

// marginalQ128 is the chain rule over the hops: the product of each hop's
// derivative at its local input, renormalized to one Q128 scale.
func (p *pathEvaluator) marginalQ128(alloc *big.Int) *big.Int {
	m := new(big.Int).Set(Q128)
	amount := alloc
	for i := range p.hops {
		hm := p.hops[i].marginalQ128(amount)
		if hm.Sign() <= 0 {
			return new(big.Int)
		}
		m.Mul(m, hm)
		m.Quo(m, Q128)
		amount = p.hops[i].output(amount)
	}
	return m
}

// poolKeys identifies every {dexId, poolAddress} the path traverses.
func (p *pathEvaluator) poolKeys() []string {
	keys := make([]string, len(p.hops))
	for i, h := range p.hops {
		keys[i] = h.source.DexID + "|" + h.source.PoolAddress.Hex()
	}
	return keys
}

// quoteAt rebuilds a full PriceQuote for this path at a new allocation,
// re-simulating every hop from its snapshot.
func (p *pathEvaluator) quoteAt(alloc *big.Int) *PriceQuote {
	if alloc == nil || alloc.Sign() <= 0 {
		return nil
	}
	sources := make([]PriceSource, len(p.hops))
	amount := new(big.Int).Set(alloc)
	for i := range p.hops {
		out := p.hops[i].output(amount)
		if out.Sign() <= 0 {
			return nil
		}
		src := p.hops[i].source
		src.AmountIn = new(big.Int).Set(amount)
		src.AmountOut = new(big.Int).Set(out)
		sources[i] = src
		amount = out
	}
	q := p.quote
	decIn, decOut := int(q.Path[0].Decimals), int(q.Path[len(q.Path)-1].Decimals)
	execQ18 := RatioQ18(alloc, amount, decIn, decOut)
	return &PriceQuote{
		ChainKey:          q.ChainKey,
		AmountIn:          new(big.Int).Set(alloc),
		AmountOut:         amount,
		PriceQ18:          execQ18,
		ExecutionPriceQ18: new(big.Int).Set(execQ18),
		MidPriceQ18:       new(big.Int).Set(q.MidPriceQ18),
		PriceImpactBps:    PriceImpactBps(q.MidPriceQ18, alloc, amount, decIn, decOut),
		Path:              q.Path,
		RouteAddresses:    q.RouteAddresses,
		Sources:           sources,
		HopVersions:       q.HopVersions,
		LiquidityScore:    new(big.Int).Set(q.LiquidityScore),
		EstimatedGasUnits: EstimateGasUnits(q.HopVersions),
	}
}

//---------------------------------------------------------------------
// Optimizer
//---------------------------------------------------------------------

type splitResult struct {
	evals    []*pathEvaluator
	allocs   []*big.Int
	outs     []*big.Int
	totalOut *big.Int
}

// Optimize searches for a split strictly better, net of gas, than the best
// single candidate. Returns nil when no split qualifies.
func (o *SplitOptimizer) Optimize(candidates []*PriceQuote, amountIn *big.Int, gasPriceWei, nativeToOutputPriceQ18 *big.Int, outputDecimals int) *PriceQuote {
	if o.params.MaxSplitLegs < 2 || amountIn == nil || amountIn.Sign() <= 0 {
		return nil
	}

	evals := o.prepareCandidates(candidates)
	if len(evals) < 2 {
		return nil
	}
	bestSingleOut := evals[0].quote.AmountOut

	minAlloc := BpsOf(amountIn, o.params.MinLegRatioBps)
	maxLegs := o.params.MaxSplitLegs
	if maxLegs > len(evals) {
		maxLegs = len(evals)
	}

	var best *splitResult
	for n := 2; n <= maxLegs; n++ {
		forEachCombination(len(evals), n, func(idx []int) {
			combo := make([]*pathEvaluator, n)
			for i, j := range idx {
				combo[i] = evals[j]
			}
			if sharesPool(combo) {
				return
			}
			res := o.equalize(combo, amountIn, minAlloc)
			if res == nil {
				return
			}
			if best == nil || res.totalOut.Cmp(best.totalOut) > 0 {
				best = res
			}
		})
	}
	if best == nil || best.totalOut.Cmp(bestSingleOut) <= 0 {
		return nil
	}
	if !o.clearsGasGuard(best, bestSingleOut, gasPriceWei, nativeToOutputPriceQ18, outputDecimals) {
		return nil
	}
	return o.assemble(best, amountIn)
}

// prepareCandidates filters evaluable quotes, deduplicates same-pool
// routes (keeping the larger output), and ranks by single-path output.
func (o *SplitOptimizer) prepareCandidates(candidates []*PriceQuote) []*pathEvaluator {
	byKey := make(map[string]*pathEvaluator)
	var order []string
	for _, q := range candidates {
		if q == nil || q.IsSplit || q.AmountOut == nil || q.AmountOut.Sign() <= 0 {
			continue
		}
		ev := newPathEvaluator(q)
		if ev == nil {
			continue
		}
		keys := ev.poolKeys()
		sort.Strings(keys)
		key := ""
		for _, k := range keys {
			key += k + ";"
		}
		if prev, ok := byKey[key]; ok {
			if q.AmountOut.Cmp(prev.quote.AmountOut) > 0 {
				byKey[key] = ev
			}
			continue
		}
		byKey[key] = ev
		order = append(order, key)
	}
	evals := make([]*pathEvaluator, 0, len(byKey))
	for _, k := range order {
		evals = append(evals, byKey[k])
	}
	sort.SliceStable(evals, func(i, j int) bool {
		return evals[i].quote.AmountOut.Cmp(evals[j].quote.AmountOut) > 0
	})
	if len(evals) > maxSplitCandidates {
		evals = evals[:maxSplitCandidates]
	}
	return evals
}

// sharesPool reports whether any two paths in the combination traverse the
// same {dexId, poolAddress}; such routes cannot co-split.
func sharesPool(combo []*pathEvaluator) bool {
	seen := make(map[string]struct{})
	for _, ev := range combo {
		for _, k := range ev.poolKeys() {
			if _, dup := seen[k]; dup {
				return true
			}
			seen[k] = struct{}{}
		}
	}
	return false
}

// equalize runs the MPE loop over one fixed leg set.
func (o *SplitOptimizer) equalize(combo []*pathEvaluator, amountIn, minAlloc *big.Int) *splitResult {
	n := len(combo)
	allocs := make([]*big.Int, n)
	share := new(big.Int).Quo(amountIn, big.NewInt(int64(n)))
	used := new(big.Int)
	for i := 0; i < n-1; i++ {
		allocs[i] = new(big.Int).Set(share)
		used.Add(used, share)
	}
	allocs[n-1] = new(big.Int).Sub(amountIn, used)

	outs := make([]*big.Int, n)
	margs := make([]*big.Int, n)
	recompute := func(i int) {
		outs[i] = combo[i].output(allocs[i])
		margs[i] = combo[i].marginalQ128(allocs[i])
	}
	for i := range combo {
		recompute(i)
	}

	total := func() *big.Int {
		t := new(big.Int)
		for _, out := range outs {
			t.Add(t, out)
		}
		return t
	}

	// Concavity makes each accepted transfer weakly improving, but integer
	// truncation can wobble a step; keep the best state seen.
	bestTotal := total()
	bestAllocs := cloneBigs(allocs)

	for iter := 0; iter < o.params.MaxIterations; iter++ {
		hi, lo := 0, 0
		for i := 1; i < n; i++ {
			if margs[i].Cmp(margs[hi]) > 0 {
				hi = i
			}
			if margs[i].Cmp(margs[lo]) < 0 {
				lo = i
			}
		}
		if hi == lo || margs[hi].Sign() <= 0 {
			break
		}
		spread := new(big.Int).Sub(margs[hi], margs[lo])
		spread.Mul(spread, bpsDenominator)
		spread.Quo(spread, margs[hi])
		if spread.Cmp(big.NewInt(int64(o.params.ConvergenceThresholdBps))) <= 0 {
			break
		}

		delta := new(big.Int).Mul(amountIn, spread)
		delta.Quo(delta, big.NewInt(spreadTransferDivisor))
		if delta.Sign() <= 0 {
			delta.Set(bigOne)
		}
		headroom := new(big.Int).Sub(allocs[lo], minAlloc)
		if delta.Cmp(headroom) > 0 {
			delta.Set(headroom)
		}
		if delta.Sign() <= 0 {
			break
		}
		allocs[lo].Sub(allocs[lo], delta)
		allocs[hi].Add(allocs[hi], delta)
		recompute(lo)
		recompute(hi)

		if t := total(); t.Cmp(bestTotal) > 0 {
			bestTotal = t
			bestAllocs = cloneBigs(allocs)
		}
	}

	// Restore the best state, then prune starved legs into the strongest
	// surviving marginal.
	allocs = bestAllocs
	for i := range combo {
		recompute(i)
	}
	type liveLeg struct {
		ev    *pathEvaluator
		alloc *big.Int
	}
	var live []liveLeg
	pruned := new(big.Int)
	for i := range combo {
		if allocs[i].Cmp(minAlloc) < 0 {
			pruned.Add(pruned, allocs[i])
			continue
		}
		live = append(live, liveLeg{ev: combo[i], alloc: allocs[i]})
	}
	if len(live) < 2 {
		return nil
	}
	if pruned.Sign() > 0 {
		bestIdx, bestMarg := 0, new(big.Int)
		for i, l := range live {
			m := l.ev.marginalQ128(l.alloc)
			if m.Cmp(bestMarg) > 0 {
				bestMarg = m
				bestIdx = i
			}
		}
		live[bestIdx].alloc.Add(live[bestIdx].alloc, pruned)
	}

	res := &splitResult{totalOut: new(big.Int)}
	for _, l := range live {
		out := l.ev.output(l.alloc)
		if out.Sign() <= 0 {
			return nil
		}
		res.evals = append(res.evals, l.ev)
		res.allocs = append(res.allocs, l.alloc)
		res.outs = append(res.outs, out)
		res.totalOut.Add(res.totalOut, out)
	}
	return res
}

// clearsGasGuard verifies the split's output gain strictly exceeds the gas
// surplus of the extra legs, converted into output-token units when a
// native-to-output price is known. Without a price the guard only applies
// to 18-decimal outputs, comparing raw wei to raw output.
func (o *SplitOptimizer) clearsGasGuard(res *splitResult, bestSingleOut, gasPriceWei, nativeToOutputPriceQ18 *big.Int, outputDecimals int) bool {
	if gasPriceWei == nil || gasPriceWei.Sign() <= 0 {
		return true
	}
	extraLegs := int64(len(res.allocs) - 1)
	extraWei := new(big.Int).SetUint64(o.params.SplitGasOverheadUnits)
	extraWei.Mul(extraWei, big.NewInt(extraLegs))
	extraWei.Mul(extraWei, gasPriceWei)

	gain := new(big.Int).Sub(res.totalOut, bestSingleOut)
	if nativeToOutputPriceQ18 != nil && nativeToOutputPriceQ18.Sign() > 0 {
		extraOut := ApplyPriceQ18(nativeToOutputPriceQ18, extraWei, 18, outputDecimals)
		return gain.Cmp(extraOut) > 0
	}
	if outputDecimals == 18 {
		return gain.Cmp(extraWei) > 0
	}
	return true
}

// assemble builds the synthetic split quote: legs sorted by descending
// ratio, ratios summing to exactly 10000 with the residual on the last leg.
func (o *SplitOptimizer) assemble(res *splitResult, amountIn *big.Int) *PriceQuote {
	type legState struct {
		ev    *pathEvaluator
		alloc *big.Int
	}
	legs := make([]legState, len(res.evals))
	for i := range res.evals {
		legs[i] = legState{ev: res.evals[i], alloc: res.allocs[i]}
	}
	sort.SliceStable(legs, func(i, j int) bool {
		return legs[i].alloc.Cmp(legs[j].alloc) > 0
	})

	splitLegs := make([]SplitLeg, 0, len(legs))
	totalIn := new(big.Int)
	totalOut := new(big.Int)
	ratioUsed := uint32(0)
	var weightedImpact uint64
	for i, l := range legs {
		legQuote := l.ev.quoteAt(l.alloc)
		if legQuote == nil {
			return nil
		}
		var ratio uint16
		if i == len(legs)-1 {
			ratio = uint16(10000 - ratioUsed)
		} else {
			r := new(big.Int).Mul(l.alloc, bpsDenominator)
			r.Quo(r, amountIn)
			ratio = uint16(r.Uint64())
			ratioUsed += uint32(ratio)
		}
		weightedImpact += uint64(legQuote.PriceImpactBps) * uint64(ratio)
		totalIn.Add(totalIn, legQuote.AmountIn)
		totalOut.Add(totalOut, legQuote.AmountOut)
		splitLegs = append(splitLegs, SplitLeg{Quote: legQuote, RatioBps: ratio})
	}
	if totalIn.Cmp(amountIn) != 0 {
		// Allocation bookkeeping must be exact; drop the split otherwise.
		o.logger.WithFields(log.Fields{
			"want": amountIn.String(),
			"got":  totalIn.String(),
		}).Warn("split allocation mismatch, discarding")
		return nil
	}

	primary := splitLegs[0].Quote
	gasUnits := uint64(0)
	for _, l := range splitLegs {
		gasUnits += l.Quote.EstimatedGasUnits
	}
	decIn, decOut := int(primary.Path[0].Decimals), int(primary.Path[len(primary.Path)-1].Decimals)
	execQ18 := RatioQ18(totalIn, totalOut, decIn, decOut)

	return &PriceQuote{
		ChainKey:          primary.ChainKey,
		AmountIn:          totalIn,
		AmountOut:         totalOut,
		PriceQ18:          execQ18,
		ExecutionPriceQ18: new(big.Int).Set(execQ18),
		MidPriceQ18:       new(big.Int).Set(primary.MidPriceQ18),
		PriceImpactBps:    uint16(weightedImpact / 10000),
		Path:              primary.Path,
		RouteAddresses:    primary.RouteAddresses,
		Sources:           primary.Sources,
		HopVersions:       primary.HopVersions,
		LiquidityScore:    new(big.Int).Set(primary.LiquidityScore),
		EstimatedGasUnits: gasUnits,
		IsSplit:           true,
		Splits:            splitLegs,
	}
}

//---------------------------------------------------------------------
// helpers
//---------------------------------------------------------------------

func cloneBigs(in []*big.Int) []*big.Int {
	out := make([]*big.Int, len(in))
	for i, v := range in {
		out[i] = new(big.Int).Set(v)
	}
	return out
}

// forEachCombination visits every size-k index combination of [0, n).
func forEachCombination(n, k int, visit func([]int)) {
	idx := make([]int, k)
	var rec func(start, depth int)
	rec = func(start, depth int) {
		if depth == k {
			visit(idx)
			return
		}
		for i := start; i <= n-(k-depth); i++ {
			idx[depth] = i
			rec(i+1, depth+1)
		}
	}
	if k >= 1 && k <= n {
		rec(0, 0)
	}
}
