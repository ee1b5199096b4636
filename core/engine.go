package core

// engine.go – the routing engine facade. One Engine owns the process-wide
// caches (token metadata, endpoint ranking inside each chain client), the
// per-chain discovery services, and exposes the three entry points the
// outer layers call: GetBestQuote, BuildSwapPlan and DiscoverPools.
// -----------------------------------------------------------------------------

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

//---------------------------------------------------------------------
// Engine manager (singleton)
//---------------------------------------------------------------------

var (
	engineOnce sync.Once
	engineInst *Engine
)

// InitEngine installs the process-wide engine. Subsequent calls are no-ops.
func InitEngine(chains map[string]*ChainConfig, logger *log.Logger) (*Engine, error) {
	var err error
	engineOnce.Do(func() {
		engineInst, err = NewEngine(chains, logger)
	})
	if err != nil {
		return nil, err
	}
	return engineInst, nil
}

// CurrentEngine returns the installed engine, or nil before InitEngine.
func CurrentEngine() *Engine { return engineInst }

// Engine coordinates discovery, optimisation, ranking and plan assembly.
type Engine struct {
	logger *log.Logger
	tokens *TokenMetadataCache

	mu        sync.Mutex
	chains    map[string]*ChainConfig
	clients   map[string]ChainReader
	discovery map[string]*PoolDiscovery
}

// NewEngine builds an engine over the given chain registry.
func NewEngine(chains map[string]*ChainConfig, logger *log.Logger) (*Engine, error) {
	if len(chains) == 0 {
		return nil, Errorf(ErrMissingConfig, "no chains configured")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	e := &Engine{
		logger:    logger,
		tokens:    NewTokenMetadataCache(logger, defaultTokenTTL),
		chains:    chains,
		clients:   make(map[string]ChainReader),
		discovery: make(map[string]*PoolDiscovery),
	}
	for _, chain := range chains {
		e.tokens.Preload(seedTokens(chain))
	}
	return e, nil
}

// seedTokens returns the chain's well-known tokens for cache preloading.
// Only the wrapped native is seeded; intermediate tokens are not preloaded
// and their metadata is read on first use.
func seedTokens(chain *ChainConfig) []Token {
	return []Token{{
		ChainID:  chain.NumericID,
		Address:  chain.WrappedNativeAddress,
		Symbol:   "W" + chain.NativeSymbol,
		Name:     "Wrapped " + chain.NativeSymbol,
		Decimals: 18,
	}}
}

// Close releases cache sweepers.
func (e *Engine) Close() { e.tokens.Close() }

// UseChainReader installs a custom reader for a chain (test harnesses and
// simulated backends).
func (e *Engine) UseChainReader(chainKey string, reader ChainReader) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clients[chainKey] = reader
	delete(e.discovery, chainKey)
}

func (e *Engine) chainByKey(key string) (*ChainConfig, error) {
	chain, ok := e.chains[key]
	if !ok {
		return nil, Errorf(ErrUnsupportedChain, "chain %q not configured", key)
	}
	return chain, nil
}

func (e *Engine) discoveryFor(chain *ChainConfig) (*PoolDiscovery, ChainReader, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.discovery[chain.Key]; ok {
		return d, e.clients[chain.Key], nil
	}
	reader, ok := e.clients[chain.Key]
	if !ok {
		cc, err := NewChainClient(chain, e.logger)
		if err != nil {
			return nil, nil, err
		}
		reader = cc
		e.clients[chain.Key] = reader
	}
	d := NewPoolDiscovery(chain, reader, e.tokens, e.logger)
	e.discovery[chain.Key] = d
	return d, reader, nil
}

//---------------------------------------------------------------------
// Entry point: GetBestQuote
//---------------------------------------------------------------------

// QuoteRequest is the caller surface of GetBestQuote.
type QuoteRequest struct {
	ChainKey      string
	TokenIn       common.Address
	TokenOut      common.Address
	AmountIn      *big.Int
	Preference    VersionPreference
	ForceMultiHop bool
	EnableSplit   bool
	// NativeToOutputPriceQ18, when known, lets ranking and the split gas
	// guard express gas in output-token units.
	NativeToOutputPriceQ18 *big.Int
	// MaxOffers bounds the alternatives attached to the winner; zero or
	// negative keeps all.
	MaxOffers int
}

// GetBestQuote discovers, optionally splits, ranks and returns the best
// quote, or (nil, nil) when tokenIn equals tokenOut.
func (e *Engine) GetBestQuote(ctx context.Context, req QuoteRequest) (*PriceQuote, error) {
	chain, err := e.chainByKey(req.ChainKey)
	if err != nil {
		return nil, err
	}
	if req.TokenIn == (common.Address{}) || req.TokenOut == (common.Address{}) {
		return nil, Errorf(ErrInvalidAddress, "zero token address")
	}
	if SameToken(req.TokenIn, req.TokenOut) {
		return nil, nil
	}
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return nil, Errorf(ErrNoRouteFound, "non-positive input amount")
	}
	if req.MaxOffers == 0 {
		req.MaxOffers = -1
	}

	requestID := uuid.NewString()
	logger := e.logger.WithFields(log.Fields{
		"request": requestID,
		"chain":   chain.Key,
		"in":      req.TokenIn.Hex(),
		"out":     req.TokenOut.Hex(),
	})

	discovery, reader, err := e.discoveryFor(chain)
	if err != nil {
		return nil, err
	}
	pair, err := e.tokens.GetBatchTokenMetadata(ctx, chain, reader, []common.Address{req.TokenIn, req.TokenOut})
	if err != nil {
		return nil, err
	}
	tokenIn, okIn := pair[req.TokenIn]
	tokenOut, okOut := pair[req.TokenOut]
	if !okIn || !okOut {
		return nil, Errorf(ErrUnsupportedToken, "token metadata unavailable")
	}
	// Native-coin requests route through the wrapped representation; the
	// plan builder re-attaches the deposit/withdraw shims.
	if tokenIn, err = e.resolveRoutingToken(ctx, chain, reader, tokenIn); err != nil {
		return nil, err
	}
	if tokenOut, err = e.resolveRoutingToken(ctx, chain, reader, tokenOut); err != nil {
		return nil, err
	}
	if SameToken(tokenIn.Address, tokenOut.Address) {
		return nil, nil
	}

	if head, err := reader.LatestBlockNumber(ctx); err == nil {
		logger = logger.WithField("block", head)
	}

	candidates, err := discovery.EnumeratePaths(ctx, tokenIn, tokenOut, req.AmountIn, req.Preference.AllowedVersions(), req.ForceMultiHop)
	if err != nil {
		return nil, err
	}
	candidates = dedupeCandidates(candidates)
	if len(candidates) == 0 {
		return nil, Errorf(ErrNoRouteFound, "no pools with sufficient liquidity for %s -> %s", tokenIn.Symbol, tokenOut.Symbol)
	}
	logger.WithField("candidates", len(candidates)).Debug("path enumeration complete")

	// Gas price is best-effort: quotes stay rankable without it.
	gasPrice, err := reader.GasPrice(ctx)
	if err != nil {
		logger.WithError(err).Debug("gas price unavailable")
		gasPrice = nil
	}
	for _, q := range candidates {
		AttachGasCost(q, gasPrice)
	}

	if req.EnableSplit {
		optimizer := NewSplitOptimizer(chain.Routing, e.logger)
		if split := optimizer.Optimize(candidates, req.AmountIn, gasPrice, req.NativeToOutputPriceQ18, int(tokenOut.Decimals)); split != nil {
			AttachGasCost(split, gasPrice)
			candidates = append(candidates, split)
		}
	}

	best := RankQuotes(candidates, req.NativeToOutputPriceQ18, int(tokenOut.Decimals), req.MaxOffers)
	if best == nil {
		return nil, Errorf(ErrNoRouteFound, "ranking produced no winner")
	}
	best.RequestID = requestID
	logger.WithFields(log.Fields{
		"amount_out": best.AmountOut.String(),
		"split":      best.IsSplit,
		"hops":       len(best.Sources),
	}).Info("best quote selected")
	return best, nil
}

// resolveRoutingToken swaps the native sentinel for the chain's wrapped
// native token; everything else passes through unchanged.
func (e *Engine) resolveRoutingToken(ctx context.Context, chain *ChainConfig, reader ChainReader, t Token) (Token, error) {
	if !IsNativeToken(t.Address) {
		return t, nil
	}
	return e.tokens.GetTokenMetadata(ctx, chain, reader, chain.WrappedNativeAddress)
}

// dedupeCandidates collapses duplicate {dexId, poolAddress} route sets,
// keeping the better output, so double-discovered pools cannot skew
// ranking or the optimizer.
func dedupeCandidates(candidates []*PriceQuote) []*PriceQuote {
	seen := make(map[string]int)
	var out []*PriceQuote
	for _, q := range candidates {
		if q == nil {
			continue
		}
		key := ""
		for _, s := range q.Sources {
			key += s.DexID + "|" + s.PoolAddress.Hex() + ";"
		}
		if i, ok := seen[key]; ok {
			if q.AmountOut.Cmp(out[i].AmountOut) > 0 {
				out[i] = q
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, q)
	}
	return out
}

// TokenMetadata resolves one token's cached or freshly read metadata.
func (e *Engine) TokenMetadata(ctx context.Context, chainKey string, addr common.Address) (Token, error) {
	chain, err := e.chainByKey(chainKey)
	if err != nil {
		return Token{}, err
	}
	_, reader, err := e.discoveryFor(chain)
	if err != nil {
		return Token{}, err
	}
	return e.tokens.GetTokenMetadata(ctx, chain, reader, addr)
}

//---------------------------------------------------------------------
// Entry point: BuildSwapPlan
//---------------------------------------------------------------------

// BuildSwapPlan serializes a previously returned quote into the executor
// call a downstream signer broadcasts.
func (e *Engine) BuildSwapPlan(ctx context.Context, chainKey string, quote *PriceQuote, amountOutMin *big.Int, recipient common.Address, slippageBps int, deadlineSeconds int64, useNativeInput, useNativeOutput bool) (*ExecutorPlan, error) {
	chain, err := e.chainByKey(chainKey)
	if err != nil {
		return nil, err
	}
	if recipient == (common.Address{}) {
		return nil, Errorf(ErrInvalidAddress, "zero recipient")
	}
	return BuildExecutorPlan(PlanRequest{
		Chain:           chain,
		Quote:           quote,
		AmountOutMin:    amountOutMin,
		Recipient:       recipient,
		SlippageBps:     slippageBps,
		DeadlineSeconds: deadlineSeconds,
		UseNativeInput:  useNativeInput,
		UseNativeOutput: useNativeOutput,
	})
}

//---------------------------------------------------------------------
// Entry point: DiscoverPools (testing hook)
//---------------------------------------------------------------------

// DiscoverPools exposes raw direct+multi-hop discovery without splitting
// or ranking.
func (e *Engine) DiscoverPools(ctx context.Context, chainKey string, tokenIn, tokenOut common.Address, amountIn *big.Int, allowed []PoolVersion) ([]*PriceQuote, error) {
	chain, err := e.chainByKey(chainKey)
	if err != nil {
		return nil, err
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, Errorf(ErrNoRouteFound, "non-positive input amount")
	}
	discovery, reader, err := e.discoveryFor(chain)
	if err != nil {
		return nil, err
	}
	pair, err := e.tokens.GetBatchTokenMetadata(ctx, chain, reader, []common.Address{tokenIn, tokenOut})
	if err != nil {
		return nil, err
	}
	in, okIn := pair[tokenIn]
	out, okOut := pair[tokenOut]
	if !okIn || !okOut {
		return nil, Errorf(ErrUnsupportedToken, "token metadata unavailable")
	}
	return discovery.EnumeratePaths(ctx, in, out, amountIn, allowed, false)
}
