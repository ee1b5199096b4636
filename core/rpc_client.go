package core

// rpc_client.go – JSON-RPC multiplexer for one chain. Reads fan out across
// up to three primary endpoints in round-robin with per-request failover,
// cascading to fallback endpoints on exhaustion. Endpoints are re-ranked
// periodically by probing eth_chainId: lower latency wins, then higher
// advertised rate-limit headroom; a probe timeout marks the endpoint
// degraded but still usable behind healthy ones.
// -----------------------------------------------------------------------------

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	log "github.com/sirupsen/logrus"
)

const (
	maxPrimaryEndpoints   = 3
	probeTimeout          = 5 * time.Second
	probeConcurrency      = 4
	endpointRankTTL       = 2 * time.Minute
	defaultReadTimeout    = 10 * time.Second
	unknownRateLimitScore = -1
)

//---------------------------------------------------------------------
// Reader interface (fakeable in tests)
//---------------------------------------------------------------------

// MulticallRequest is one sub-call of a batched read.
type MulticallRequest struct {
	Target   common.Address
	CallData []byte
}

// MulticallResponse mirrors the aggregator contract's per-call result.
type MulticallResponse struct {
	Success    bool
	ReturnData []byte
}

// ChainReader is the read surface the discovery and metadata layers
// consume. ChainClient implements it against live endpoints; tests supply
// in-memory fakes.
type ChainReader interface {
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	Multicall(ctx context.Context, calls []MulticallRequest, allowFailure bool) ([]MulticallResponse, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (uint64, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

//---------------------------------------------------------------------
// Public endpoint registry
//---------------------------------------------------------------------

// publicRPCRegistry lists open endpoints merged behind configured ones
// unless the chain disables the registry.
var publicRPCRegistry = map[uint32][]string{
	1:     {"https://eth.llamarpc.com", "https://ethereum-rpc.publicnode.com"},
	10:    {"https://mainnet.optimism.io"},
	56:    {"https://bsc-dataseed.bnbchain.org", "https://bsc-rpc.publicnode.com"},
	137:   {"https://polygon-rpc.com", "https://polygon-bor-rpc.publicnode.com"},
	8453:  {"https://mainnet.base.org", "https://base-rpc.publicnode.com"},
	42161: {"https://arb1.arbitrum.io/rpc", "https://arbitrum-one-rpc.publicnode.com"},
}

//---------------------------------------------------------------------
// Endpoint bookkeeping
//---------------------------------------------------------------------

type rankedEndpoint struct {
	url           string
	client        *rpc.Client
	latency       time.Duration
	rateRemaining int64
	degraded      bool
}

// ChainClient multiplexes JSON-RPC reads for one chain.
type ChainClient struct {
	chain  *ChainConfig
	logger *log.Logger

	httpClient  *http.Client
	readTimeout time.Duration

	mu        sync.Mutex
	primaries []*rankedEndpoint
	fallbacks []*rankedEndpoint
	rankedAt  time.Time
	rrCounter uint64

	gasMu       sync.Mutex
	gasPrice    *big.Int
	gasPricedAt time.Time
}

// NewChainClient wires a multiplexer for the chain's configured endpoints,
// merging the public registry unless disabled.
func NewChainClient(chain *ChainConfig, logger *log.Logger) (*ChainClient, error) {
	if chain == nil {
		return nil, Errorf(ErrMissingConfig, "nil chain config")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	urls := append([]string{}, chain.RPCURLs...)
	fallbackURLs := append([]string{}, chain.FallbackRPCURLs...)
	if !chain.DisablePublicRegistry {
		fallbackURLs = append(fallbackURLs, publicRPCRegistry[chain.NumericID]...)
	}
	if len(urls) == 0 && len(fallbackURLs) == 0 {
		return nil, Errorf(ErrMissingConfig, "chain %s has no rpc endpoints", chain.Key)
	}

	cc := &ChainClient{
		chain:       chain,
		logger:      logger,
		httpClient:  &http.Client{Timeout: probeTimeout},
		readTimeout: defaultReadTimeout,
	}
	for _, u := range urls {
		cc.primaries = append(cc.primaries, &rankedEndpoint{url: u, rateRemaining: unknownRateLimitScore})
	}
	for _, u := range dedupeStrings(fallbackURLs, urls) {
		cc.fallbacks = append(cc.fallbacks, &rankedEndpoint{url: u, rateRemaining: unknownRateLimitScore})
	}
	return cc, nil
}

func dedupeStrings(in, exclude []string) []string {
	seen := make(map[string]struct{}, len(in)+len(exclude))
	for _, s := range exclude {
		seen[s] = struct{}{}
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

//---------------------------------------------------------------------
// Ranking
//---------------------------------------------------------------------

type probeResult struct {
	latency       time.Duration
	rateRemaining int64
	degraded      bool
}

// probeEndpoint issues a raw eth_chainId over HTTP so the rate-limit
// headers stay visible; latency is wall-clock for the full round trip.
func (cc *ChainClient) probeEndpoint(ctx context.Context, url string) probeResult {
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"eth_chainId","params":[]}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return probeResult{degraded: true, rateRemaining: unknownRateLimitScore}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := cc.httpClient.Do(req)
	if err != nil {
		return probeResult{degraded: true, rateRemaining: unknownRateLimitScore}
	}
	defer resp.Body.Close()

	res := probeResult{latency: time.Since(start), rateRemaining: unknownRateLimitScore}
	if v := resp.Header.Get("X-Ratelimit-Remaining"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			res.rateRemaining = n
		}
	}
	var decoded struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil || decoded.Result == "" {
		res.degraded = true
	}
	return res
}

// rankEndpoints re-probes every endpoint with bounded concurrency and
// reorders primaries and fallbacks. The result is cached for the rank TTL.
func (cc *ChainClient) rankEndpoints(ctx context.Context) {
	cc.mu.Lock()
	if time.Since(cc.rankedAt) < endpointRankTTL {
		cc.mu.Unlock()
		return
	}
	eps := append(append([]*rankedEndpoint{}, cc.primaries...), cc.fallbacks...)
	cc.mu.Unlock()

	sem := make(chan struct{}, probeConcurrency)
	var wg sync.WaitGroup
	for _, ep := range eps {
		wg.Add(1)
		go func(ep *rankedEndpoint) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()
			res := cc.probeEndpoint(probeCtx, ep.url)
			cc.mu.Lock()
			ep.latency = res.latency
			ep.rateRemaining = res.rateRemaining
			ep.degraded = res.degraded
			cc.mu.Unlock()
			if res.degraded {
				cc.logger.WithFields(log.Fields{"chain": cc.chain.Key, "endpoint": ep.url}).
					Warn("rpc endpoint degraded")
			}
		}(ep)
	}
	wg.Wait()

	cc.mu.Lock()
	sortEndpoints(cc.primaries)
	sortEndpoints(cc.fallbacks)
	cc.rankedAt = time.Now()
	cc.mu.Unlock()
}

// sortEndpoints orders healthy-by-latency first, then by rate-limit
// headroom, pushing degraded endpoints to the back.
func sortEndpoints(eps []*rankedEndpoint) {
	sort.SliceStable(eps, func(i, j int) bool {
		a, b := eps[i], eps[j]
		if a.degraded != b.degraded {
			return !a.degraded
		}
		if a.latency != b.latency {
			return a.latency < b.latency
		}
		return a.rateRemaining > b.rateRemaining
	})
}

// rotation returns the failover order for one request: the top primaries
// starting at the round-robin cursor, then every fallback.
func (cc *ChainClient) rotation(ctx context.Context) []*rankedEndpoint {
	cc.rankEndpoints(ctx)
	cc.mu.Lock()
	defer cc.mu.Unlock()

	active := cc.primaries
	if len(active) > maxPrimaryEndpoints {
		active = active[:maxPrimaryEndpoints]
	}
	out := make([]*rankedEndpoint, 0, len(active)+len(cc.fallbacks))
	if n := len(active); n > 0 {
		start := int(atomic.AddUint64(&cc.rrCounter, 1)) % n
		for i := 0; i < n; i++ {
			out = append(out, active[(start+i)%n])
		}
	}
	return append(out, cc.fallbacks...)
}

func (cc *ChainClient) dial(ep *rankedEndpoint) (*rpc.Client, error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if ep.client != nil {
		return ep.client, nil
	}
	cl, err := rpc.Dial(ep.url)
	if err != nil {
		return nil, err
	}
	ep.client = cl
	return cl, nil
}

// do runs fn against each endpoint in rotation until one succeeds.
// Single-endpoint failures never propagate; only full exhaustion does.
func (cc *ChainClient) do(ctx context.Context, op string, fn func(*rpc.Client) error) error {
	var lastErr error
	for _, ep := range cc.rotation(ctx) {
		if ctx.Err() != nil {
			return WrapErr(ErrRPCTimeout, ctx.Err(), op)
		}
		cl, err := cc.dial(ep)
		if err != nil {
			lastErr = err
			continue
		}
		if err = fn(cl); err == nil {
			return nil
		}
		lastErr = err
		cc.logger.WithFields(log.Fields{"chain": cc.chain.Key, "endpoint": ep.url, "op": op}).
			WithError(err).Debug("rpc endpoint failed, rotating")
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no endpoints available")
	}
	return WrapErr(classifyRPCErr(lastErr), lastErr, op)
}

func classifyRPCErr(err error) ErrorCode {
	if err == nil {
		return ErrRPC
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrRPCTimeout
	}
	return ErrRPC
}

//---------------------------------------------------------------------
// ChainReader implementation
//---------------------------------------------------------------------

type ethCallArgs struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

// Call performs one eth_call against the latest block.
func (cc *ChainClient) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var out hexutil.Bytes
	err := cc.do(ctx, "eth_call", func(cl *rpc.Client) error {
		callCtx, cancel := context.WithTimeout(ctx, cc.readTimeout)
		defer cancel()
		return cl.CallContext(callCtx, &out, "eth_call", ethCallArgs{To: to, Data: data}, "latest")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GasPrice returns the chain's current gas price, cached briefly.
func (cc *ChainClient) GasPrice(ctx context.Context) (*big.Int, error) {
	cc.gasMu.Lock()
	if cc.gasPrice != nil && time.Since(cc.gasPricedAt) < 15*time.Second {
		p := new(big.Int).Set(cc.gasPrice)
		cc.gasMu.Unlock()
		return p, nil
	}
	cc.gasMu.Unlock()

	var out hexutil.Big
	err := cc.do(ctx, "eth_gasPrice", func(cl *rpc.Client) error {
		callCtx, cancel := context.WithTimeout(ctx, cc.readTimeout)
		defer cancel()
		return cl.CallContext(callCtx, &out, "eth_gasPrice")
	})
	if err != nil {
		return nil, err
	}
	price := (*big.Int)(&out)
	cc.gasMu.Lock()
	cc.gasPrice = new(big.Int).Set(price)
	cc.gasPricedAt = time.Now()
	cc.gasMu.Unlock()
	return price, nil
}

// LatestBlockNumber reads the head block number, the freshness marker
// attached to every quote request's log line.
func (cc *ChainClient) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var out struct {
		Number hexutil.Uint64 `json:"number"`
	}
	err := cc.do(ctx, "eth_getBlockByNumber", func(cl *rpc.Client) error {
		callCtx, cancel := context.WithTimeout(ctx, cc.readTimeout)
		defer cancel()
		return cl.CallContext(callCtx, &out, "eth_getBlockByNumber", "latest", false)
	})
	if err != nil {
		return 0, err
	}
	return uint64(out.Number), nil
}

// ChainID fetches the endpoint's numeric chain id.
func (cc *ChainClient) ChainID(ctx context.Context) (uint64, error) {
	var out hexutil.Big
	err := cc.do(ctx, "eth_chainId", func(cl *rpc.Client) error {
		callCtx, cancel := context.WithTimeout(ctx, cc.readTimeout)
		defer cancel()
		return cl.CallContext(callCtx, &out, "eth_chainId")
	})
	if err != nil {
		return 0, err
	}
	return (*big.Int)(&out).Uint64(), nil
}

//---------------------------------------------------------------------
// Multicall
//---------------------------------------------------------------------

// multicall3Call mirrors the aggregator tuple (target, allowFailure,
// callData).
type multicall3Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type multicall3Result struct {
	Success    bool
	ReturnData []byte
}

var (
	multicallCallType, _ = abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "target", Type: "address"},
		{Name: "allowFailure", Type: "bool"},
		{Name: "callData", Type: "bytes"},
	})
	multicallResultType, _ = abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "success", Type: "bool"},
		{Name: "returnData", Type: "bytes"},
	})
	multicallPackArgs   = abi.Arguments{{Type: multicallCallType}}
	multicallUnpackArgs = abi.Arguments{{Type: multicallResultType}}
	aggregate3Selector  = crypto.Keccak256([]byte("aggregate3((address,bool,bytes)[])"))[:4]
)

// EncodeAggregate3 packs calls into one aggregate3 payload.
func EncodeAggregate3(calls []MulticallRequest, allowFailure bool) ([]byte, error) {
	packed := make([]multicall3Call, len(calls))
	for i, c := range calls {
		packed[i] = multicall3Call{Target: c.Target, AllowFailure: allowFailure, CallData: c.CallData}
	}
	args, err := multicallPackArgs.Pack(packed)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, aggregate3Selector...), args...), nil
}

// DecodeAggregate3 unpacks an aggregate3 return payload.
func DecodeAggregate3(ret []byte) ([]MulticallResponse, error) {
	vals, err := multicallUnpackArgs.Unpack(ret)
	if err != nil {
		return nil, err
	}
	raw := *abi.ConvertType(vals[0], new([]multicall3Result)).(*[]multicall3Result)
	out := make([]MulticallResponse, len(raw))
	for i, r := range raw {
		out[i] = MulticallResponse{Success: r.Success, ReturnData: r.ReturnData}
	}
	return out, nil
}

// Multicall batches calls through the chain's aggregator contract in a
// single eth_call round trip. Chains without an aggregator configured fall
// back to sequential eth_calls, tolerating per-call failure only when
// allowFailure is set.
func (cc *ChainClient) Multicall(ctx context.Context, calls []MulticallRequest, allowFailure bool) ([]MulticallResponse, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	if cc.chain.MulticallAddress == (common.Address{}) {
		return cc.sequentialCalls(ctx, calls, allowFailure)
	}
	payload, err := EncodeAggregate3(calls, allowFailure)
	if err != nil {
		return nil, WrapErr(ErrInternal, err, "encode multicall")
	}
	ret, err := cc.Call(ctx, cc.chain.MulticallAddress, payload)
	if err != nil {
		return nil, err
	}
	out, err := DecodeAggregate3(ret)
	if err != nil {
		return nil, WrapErr(ErrContract, err, "decode multicall return")
	}
	if len(out) != len(calls) {
		return nil, Errorf(ErrContract, "multicall returned %d results for %d calls", len(out), len(calls))
	}
	return out, nil
}

func (cc *ChainClient) sequentialCalls(ctx context.Context, calls []MulticallRequest, allowFailure bool) ([]MulticallResponse, error) {
	out := make([]MulticallResponse, len(calls))
	for i, c := range calls {
		ret, err := cc.Call(ctx, c.Target, c.CallData)
		if err != nil {
			if !allowFailure {
				return nil, err
			}
			out[i] = MulticallResponse{}
			continue
		}
		out[i] = MulticallResponse{Success: true, ReturnData: ret}
	}
	return out, nil
}
