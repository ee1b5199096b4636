package core

// pool_discovery.go – candidate pool discovery for one (chain, tokenIn,
// tokenOut, amountIn) request. The direct pass batches factory lookups,
// state reads and optional quoter calls through multicall; the multi-hop
// pass re-enters the direct pass per configured intermediate token.
// Failures on a single pool are skipped, never propagated.
// -----------------------------------------------------------------------------

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"
)

var (
	selGetPair     = crypto.Keccak256([]byte("getPair(address,address)"))[:4]
	selGetPool     = crypto.Keccak256([]byte("getPool(address,address,uint24)"))[:4]
	selGetReserves = crypto.Keccak256([]byte("getReserves()"))[:4]
	selToken0      = crypto.Keccak256([]byte("token0()"))[:4]
	selToken1      = crypto.Keccak256([]byte("token1()"))[:4]
	selSlot0       = crypto.Keccak256([]byte("slot0()"))[:4]
	selLiquidity   = crypto.Keccak256([]byte("liquidity()"))[:4]
	// QuoterV2-style struct parameter: (tokenIn, tokenOut, amountIn, fee,
	// sqrtPriceLimitX96).
	selQuoteExactInputSingle = crypto.Keccak256([]byte("quoteExactInputSingle((address,address,uint256,uint24,uint160))"))[:4]
	// Optional lens contract fusing v2 pair reads into one call.
	selLensViewPairs = crypto.Keccak256([]byte("viewPairs(address[])"))[:4]
)

// maxIntermediateFanout bounds concurrent leg evaluation per request.
const maxIntermediateFanout = 4

// PoolDiscovery finds and prices candidate pools on one chain.
type PoolDiscovery struct {
	chain  *ChainConfig
	reader ChainReader
	tokens *TokenMetadataCache
	logger *log.Logger
}

// NewPoolDiscovery wires discovery against a chain reader.
func NewPoolDiscovery(chain *ChainConfig, reader ChainReader, tokens *TokenMetadataCache, logger *log.Logger) *PoolDiscovery {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &PoolDiscovery{chain: chain, reader: reader, tokens: tokens, logger: logger}
}

//---------------------------------------------------------------------
// Direct pass
//---------------------------------------------------------------------

type poolCandidate struct {
	dex     *DexConfig
	address common.Address
	feeTier uint32
}

// DiscoverDirect prices every single-pool route between the two tokens
// across the chain's DEXes matching the allowed versions.
func (d *PoolDiscovery) DiscoverDirect(ctx context.Context, tokenIn, tokenOut Token, amountIn *big.Int, allowed []PoolVersion) ([]*PriceQuote, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, nil
	}
	allowedSet := make(map[PoolVersion]bool, len(allowed))
	for _, v := range allowed {
		allowedSet[v] = true
	}

	// Factory lookups, all in one round trip.
	var calls []MulticallRequest
	var meta []poolCandidate
	for i := range d.chain.Dexes {
		dex := &d.chain.Dexes[i]
		if !allowedSet[dex.Version] || !AdapterFor(dex.Protocol, dex.Version).SupportsChain(d.chain.NumericID) {
			continue
		}
		switch dex.Version {
		case PoolV2:
			calls = append(calls, MulticallRequest{
				Target:   dex.FactoryAddress,
				CallData: encodeGetPair(tokenIn.Address, tokenOut.Address),
			})
			meta = append(meta, poolCandidate{dex: dex})
		case PoolV3:
			for _, tier := range dex.FeeTiers {
				calls = append(calls, MulticallRequest{
					Target:   dex.FactoryAddress,
					CallData: encodeGetPool(tokenIn.Address, tokenOut.Address, tier),
				})
				meta = append(meta, poolCandidate{dex: dex, feeTier: tier})
			}
		}
	}
	if len(calls) == 0 {
		return nil, nil
	}
	results, err := d.reader.Multicall(ctx, calls, true)
	if err != nil {
		return nil, err
	}

	var v2Pools, v3Pools []poolCandidate
	for i, res := range results {
		addr, ok := decodeAddressWord(res)
		if !ok || addr == (common.Address{}) {
			continue
		}
		cand := meta[i]
		cand.address = addr
		if cand.dex.Version == PoolV2 {
			v2Pools = append(v2Pools, cand)
		} else {
			v3Pools = append(v3Pools, cand)
		}
	}

	quotes := d.priceV2Pools(ctx, v2Pools, tokenIn, tokenOut, amountIn)
	quotes = append(quotes, d.priceV3Pools(ctx, v3Pools, tokenIn, tokenOut, amountIn)...)
	return quotes, nil
}

//---------------------------------------------------------------------
// v2 bucket
//---------------------------------------------------------------------

type v2State struct {
	reserve0 *big.Int
	reserve1 *big.Int
	token0   common.Address
}

func (d *PoolDiscovery) priceV2Pools(ctx context.Context, cands []poolCandidate, tokenIn, tokenOut Token, amountIn *big.Int) []*PriceQuote {
	if len(cands) == 0 {
		return nil
	}
	states := d.readV2States(ctx, cands)
	threshold := d.chain.Routing.MinV2ReserveThreshold

	var quotes []*PriceQuote
	for i, cand := range cands {
		st := states[i]
		if st == nil {
			continue
		}
		if threshold != nil && (st.reserve0.Cmp(threshold) < 0 || st.reserve1.Cmp(threshold) < 0) {
			continue
		}
		zeroForOne := SameToken(st.token0, tokenIn.Address)
		rIn, rOut := st.reserve0, st.reserve1
		if !zeroForOne {
			rIn, rOut = rOut, rIn
		}
		adapter := AdapterFor(cand.dex.Protocol, PoolV2)
		amountOut := adapter.ComputeV2Quote(amountIn, rIn, rOut)
		token1 := tokenOut.Address
		if !zeroForOne {
			token1 = tokenIn.Address
		}
		snap := PoolSnapshot{
			Version:  PoolV2,
			Address:  cand.address,
			Token0:   st.token0,
			Token1:   token1,
			Reserve0: st.reserve0,
			Reserve1: st.reserve1,
		}
		q := buildSingleHopQuote(d.chain.Key, hopSimulation{
			dex:       cand.dex,
			pool:      snap,
			tokenIn:   tokenIn,
			tokenOut:  tokenOut,
			amountIn:  amountIn,
			amountOut: amountOut,
		})
		if q != nil {
			quotes = append(quotes, q)
		}
	}
	return quotes
}

// readV2States fetches reserves and token ordering for all pairs, via the
// configured lens contract when available, else plain multicall.
func (d *PoolDiscovery) readV2States(ctx context.Context, cands []poolCandidate) []*v2State {
	if d.chain.LensAddress != (common.Address{}) {
		if states, err := d.readV2StatesViaLens(ctx, cands); err == nil {
			return states
		}
		d.logger.WithField("chain", d.chain.Key).Debug("lens read failed, falling back to multicall")
	}

	calls := make([]MulticallRequest, 0, len(cands)*2)
	for _, c := range cands {
		calls = append(calls,
			MulticallRequest{Target: c.address, CallData: selGetReserves},
			MulticallRequest{Target: c.address, CallData: selToken0},
		)
	}
	results, err := d.reader.Multicall(ctx, calls, true)
	if err != nil {
		d.logger.WithError(err).Warn("v2 state multicall failed")
		return make([]*v2State, len(cands))
	}
	states := make([]*v2State, len(cands))
	for i := range cands {
		res0, res1 := results[i*2], results[i*2+1]
		r0, r1, ok := decodeReserves(res0)
		if !ok {
			continue
		}
		t0, ok := decodeAddressWord(res1)
		if !ok {
			continue
		}
		states[i] = &v2State{reserve0: r0, reserve1: r1, token0: t0}
	}
	return states
}

// readV2StatesViaLens fuses all pair reads into one lens call returning
// (token0, reserve0, reserve1) words per pair.
func (d *PoolDiscovery) readV2StatesViaLens(ctx context.Context, cands []poolCandidate) ([]*v2State, error) {
	addrs := make([]common.Address, len(cands))
	for i, c := range cands {
		addrs[i] = c.address
	}
	ret, err := d.reader.Call(ctx, d.chain.LensAddress, encodeAddressArrayCall(selLensViewPairs, addrs))
	if err != nil {
		return nil, err
	}
	// Fixed-shape return: 3 words per pair after the array head.
	const wordsPerPair = 3
	need := 64 + len(cands)*wordsPerPair*32
	if len(ret) < need {
		return nil, Errorf(ErrContract, "lens returned %d bytes, want %d", len(ret), need)
	}
	body := ret[64:]
	states := make([]*v2State, len(cands))
	for i := range cands {
		off := i * wordsPerPair * 32
		states[i] = &v2State{
			token0:   common.BytesToAddress(body[off+12 : off+32]),
			reserve0: new(big.Int).SetBytes(body[off+32 : off+64]),
			reserve1: new(big.Int).SetBytes(body[off+64 : off+96]),
		}
	}
	return states, nil
}

//---------------------------------------------------------------------
// v3 bucket
//---------------------------------------------------------------------

type v3State struct {
	sqrtPriceX96 *big.Int
	tick         int32
	liquidity    *big.Int
	token0       common.Address
	token1       common.Address
}

func (d *PoolDiscovery) priceV3Pools(ctx context.Context, cands []poolCandidate, tokenIn, tokenOut Token, amountIn *big.Int) []*PriceQuote {
	if len(cands) == 0 {
		return nil
	}
	calls := make([]MulticallRequest, 0, len(cands)*4)
	for _, c := range cands {
		calls = append(calls,
			MulticallRequest{Target: c.address, CallData: selSlot0},
			MulticallRequest{Target: c.address, CallData: selLiquidity},
			MulticallRequest{Target: c.address, CallData: selToken0},
			MulticallRequest{Target: c.address, CallData: selToken1},
		)
	}
	results, err := d.reader.Multicall(ctx, calls, true)
	if err != nil {
		d.logger.WithError(err).Warn("v3 state multicall failed")
		return nil
	}

	threshold := d.chain.Routing.MinV3LiquidityThreshold
	type survivor struct {
		cand  poolCandidate
		state v3State
	}
	var survivors []survivor
	for i, c := range cands {
		base := i * 4
		sqrtPrice, tick, ok := decodeSlot0(results[base])
		if !ok {
			continue
		}
		liquidity, ok := decodeUintWord(results[base+1])
		if !ok || liquidity.Sign() == 0 {
			continue
		}
		if threshold != nil && liquidity.Cmp(threshold) < 0 {
			continue
		}
		t0, ok0 := decodeAddressWord(results[base+2])
		t1, ok1 := decodeAddressWord(results[base+3])
		if !ok0 || !ok1 {
			continue
		}
		survivors = append(survivors, survivor{cand: c, state: v3State{
			sqrtPriceX96: sqrtPrice,
			tick:         tick,
			liquidity:    liquidity,
			token0:       t0,
			token1:       t1,
		}})
	}
	if len(survivors) == 0 {
		return nil
	}

	// Quoter pass for pools whose DEX configures one: exact outputs in a
	// second round trip. The quoter's own gas figure is ignored.
	quoterOut := make(map[int]*big.Int)
	var quoterCalls []MulticallRequest
	var quoterIdx []int
	for i, s := range survivors {
		if s.cand.dex.HasQuoter() {
			quoterCalls = append(quoterCalls, MulticallRequest{
				Target:   s.cand.dex.QuoterAddress,
				CallData: encodeQuoteExactInputSingle(tokenIn.Address, tokenOut.Address, amountIn, s.cand.feeTier),
			})
			quoterIdx = append(quoterIdx, i)
		}
	}
	if len(quoterCalls) > 0 {
		if qres, err := d.reader.Multicall(ctx, quoterCalls, true); err == nil {
			for j, res := range qres {
				if out, ok := decodeUintWord(res); ok && out.Sign() > 0 {
					quoterOut[quoterIdx[j]] = out
				}
			}
		} else {
			d.logger.WithError(err).Debug("quoter multicall failed, using single-tick math")
		}
	}

	var quotes []*PriceQuote
	for i, s := range survivors {
		zeroForOne := SameToken(s.state.token0, tokenIn.Address)
		amountOut, approximate := quoterOut[i], false
		if amountOut == nil {
			adapter := AdapterFor(s.cand.dex.Protocol, PoolV3)
			amountOut = adapter.ComputeV3Quote(amountIn, s.state.sqrtPriceX96, s.state.liquidity, s.cand.feeTier, zeroForOne)
			approximate = true
		}
		snap := PoolSnapshot{
			Version:      PoolV3,
			Address:      s.cand.address,
			Token0:       s.state.token0,
			Token1:       s.state.token1,
			SqrtPriceX96: s.state.sqrtPriceX96,
			Tick:         s.state.tick,
			Liquidity:    s.state.liquidity,
			FeePPM:       s.cand.feeTier,
		}
		q := buildSingleHopQuote(d.chain.Key, hopSimulation{
			dex:         s.cand.dex,
			pool:        snap,
			tokenIn:     tokenIn,
			tokenOut:    tokenOut,
			amountIn:    amountIn,
			amountOut:   amountOut,
			feeTier:     s.cand.feeTier,
			approximate: approximate,
		})
		if q != nil {
			quotes = append(quotes, q)
		}
	}
	return quotes
}

//---------------------------------------------------------------------
// Multi-hop pass
//---------------------------------------------------------------------

// DiscoverMultiHop enumerates two-hop routes through the chain's
// configured intermediates. Leg A is priced once per intermediate; leg B is
// re-priced per leg A because its input is leg A's output.
func (d *PoolDiscovery) DiscoverMultiHop(ctx context.Context, tokenIn, tokenOut Token, amountIn *big.Int, allowed []PoolVersion) ([]*PriceQuote, error) {
	if d.chain.Routing.MaxHopDepth < 2 {
		return nil, nil
	}
	var intermediates []common.Address
	for _, m := range d.chain.IntermediateTokens {
		if SameToken(m, tokenIn.Address) || SameToken(m, tokenOut.Address) {
			continue
		}
		intermediates = append(intermediates, m)
	}
	if len(intermediates) == 0 {
		return nil, nil
	}
	midTokens, err := d.tokens.GetBatchTokenMetadata(ctx, d.chain, d.reader, intermediates)
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		quotes []*PriceQuote
		wg     sync.WaitGroup
		sem    = make(chan struct{}, maxIntermediateFanout)
	)
	for _, m := range intermediates {
		mid, ok := midTokens[m]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(mid Token) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}
			legAs, err := d.DiscoverDirect(ctx, tokenIn, mid, amountIn, allowed)
			if err != nil || len(legAs) == 0 {
				return
			}
			for _, legA := range legAs {
				legBs, err := d.DiscoverDirect(ctx, mid, tokenOut, legA.AmountOut, allowed)
				if err != nil {
					continue
				}
				for _, legB := range legBs {
					if combined := combineLegs(legA, legB); combined != nil {
						mu.Lock()
						quotes = append(quotes, combined)
						mu.Unlock()
					}
				}
			}
		}(mid)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, WrapErr(ErrRPCTimeout, err, "multi-hop discovery cancelled")
	}
	return quotes, nil
}

//---------------------------------------------------------------------
// calldata encode/decode helpers (read side)
//---------------------------------------------------------------------

func encodeGetPair(a, b common.Address) []byte {
	data := make([]byte, 0, 4+64)
	data = append(data, selGetPair...)
	data = appendAddressWord(data, a)
	data = appendAddressWord(data, b)
	return data
}

func encodeGetPool(a, b common.Address, fee uint32) []byte {
	data := make([]byte, 0, 4+96)
	data = append(data, selGetPool...)
	data = appendAddressWord(data, a)
	data = appendAddressWord(data, b)
	data = appendUint64Word(data, uint64(fee))
	return data
}

func encodeQuoteExactInputSingle(tokenIn, tokenOut common.Address, amountIn *big.Int, fee uint32) []byte {
	data := make([]byte, 0, 4+160)
	data = append(data, selQuoteExactInputSingle...)
	data = appendAddressWord(data, tokenIn)
	data = appendAddressWord(data, tokenOut)
	data = appendBigWord(data, amountIn)
	data = appendUint64Word(data, uint64(fee))
	data = appendUint64Word(data, 0) // sqrtPriceLimitX96: no limit
	return data
}

func encodeAddressArrayCall(selector []byte, addrs []common.Address) []byte {
	data := make([]byte, 0, 4+64+len(addrs)*32)
	data = append(data, selector...)
	data = appendUint64Word(data, 32) // array head offset
	data = appendUint64Word(data, uint64(len(addrs)))
	for _, a := range addrs {
		data = appendAddressWord(data, a)
	}
	return data
}

func decodeAddressWord(res MulticallResponse) (common.Address, bool) {
	if !res.Success || len(res.ReturnData) < 32 {
		return common.Address{}, false
	}
	return common.BytesToAddress(res.ReturnData[12:32]), true
}

func decodeUintWord(res MulticallResponse) (*big.Int, bool) {
	if !res.Success || len(res.ReturnData) < 32 {
		return nil, false
	}
	return new(big.Int).SetBytes(res.ReturnData[:32]), true
}

// decodeReserves parses getReserves() → (uint112, uint112, uint32).
func decodeReserves(res MulticallResponse) (*big.Int, *big.Int, bool) {
	if !res.Success || len(res.ReturnData) < 64 {
		return nil, nil, false
	}
	r0 := new(big.Int).SetBytes(res.ReturnData[:32])
	r1 := new(big.Int).SetBytes(res.ReturnData[32:64])
	return r0, r1, true
}

// decodeSlot0 parses slot0() → (uint160 sqrtPriceX96, int24 tick, ...).
func decodeSlot0(res MulticallResponse) (*big.Int, int32, bool) {
	if !res.Success || len(res.ReturnData) < 64 {
		return nil, 0, false
	}
	sqrtPrice := new(big.Int).SetBytes(res.ReturnData[:32])
	if sqrtPrice.Sign() == 0 {
		return nil, 0, false
	}
	tickWord := new(big.Int).SetBytes(res.ReturnData[32:64])
	// int24 arrives sign-extended to a full word.
	if tickWord.Bit(255) == 1 {
		tickWord.Sub(tickWord, new(big.Int).Lsh(bigOne, 256))
	}
	return sqrtPrice, int32(tickWord.Int64()), true
}
