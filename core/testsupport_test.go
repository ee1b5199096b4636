package core

// testsupport_test.go – in-memory ChainReader fake and fixture builders
// shared by the discovery, engine and metadata tests.

import (
	"bytes"
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

func testAddr(b byte) common.Address {
	var a common.Address
	for i := range a {
		a[i] = b
	}
	return a
}

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Pow10(18))
}

func word(v *big.Int) []byte {
	out := make([]byte, 32)
	v.FillBytes(out)
	return out
}

func addressWord(a common.Address) []byte {
	out := make([]byte, 32)
	copy(out[12:], a.Bytes())
	return out
}

// abiString encodes a dynamic ABI string return value.
func abiString(s string) []byte {
	out := make([]byte, 0, 96)
	out = append(out, word(big.NewInt(32))...)
	out = append(out, word(big.NewInt(int64(len(s))))...)
	padded := make([]byte, (len(s)+31)/32*32)
	copy(padded, s)
	return append(out, padded...)
}

type fakeV2Pool struct {
	token0   common.Address
	token1   common.Address
	reserve0 *big.Int
	reserve1 *big.Int
}

type fakeV3Pool struct {
	token0       common.Address
	token1       common.Address
	sqrtPriceX96 *big.Int
	tick         int32
	liquidity    *big.Int
	feePPM       uint32
}

type fakeERC20 struct {
	symbol        string
	name          string
	decimals      *big.Int
	totalSupply   *big.Int
	legacyBytes32 bool
	noDecimals    bool
	noSymbol      bool
}

// fakeReader is an in-memory ChainReader: pools and tokens are declared up
// front and every multicall is answered from maps.
type fakeReader struct {
	mu             sync.Mutex
	gasPrice       *big.Int
	chainID        uint64
	pairs          map[common.Address]map[string]common.Address
	v2             map[common.Address]*fakeV2Pool
	v3             map[common.Address]*fakeV3Pool
	erc20          map[common.Address]*fakeERC20
	quoters        map[common.Address]bool
	quoterOverride map[common.Address]*big.Int // pool address → canned output
	callCount      int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		chainID:        1,
		pairs:          make(map[common.Address]map[string]common.Address),
		v2:             make(map[common.Address]*fakeV2Pool),
		v3:             make(map[common.Address]*fakeV3Pool),
		erc20:          make(map[common.Address]*fakeERC20),
		quoters:        make(map[common.Address]bool),
		quoterOverride: make(map[common.Address]*big.Int),
	}
}

func pairKey(a, b common.Address, fee uint32) string {
	x, y := strings.ToLower(a.Hex()), strings.ToLower(b.Hex())
	if x > y {
		x, y = y, x
	}
	return x + "|" + y + "|" + big.NewInt(int64(fee)).String()
}

func (f *fakeReader) addToken(addr common.Address, t *fakeERC20) { f.erc20[addr] = t }

func (f *fakeReader) addV2Pool(factory, pool common.Address, p *fakeV2Pool) {
	if f.pairs[factory] == nil {
		f.pairs[factory] = make(map[string]common.Address)
	}
	f.pairs[factory][pairKey(p.token0, p.token1, 0)] = pool
	f.v2[pool] = p
}

func (f *fakeReader) addV3Pool(factory, quoter, pool common.Address, p *fakeV3Pool) {
	if f.pairs[factory] == nil {
		f.pairs[factory] = make(map[string]common.Address)
	}
	f.pairs[factory][pairKey(p.token0, p.token1, p.feePPM)] = pool
	f.v3[pool] = p
	if quoter != (common.Address{}) {
		f.quoters[quoter] = true
	}
}

func (f *fakeReader) Call(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	res := f.handle(MulticallRequest{Target: to, CallData: data})
	if !res.Success {
		return nil, Errorf(ErrExecutionReverted, "call to %s reverted", to.Hex())
	}
	return res.ReturnData, nil
}

func (f *fakeReader) Multicall(_ context.Context, calls []MulticallRequest, _ bool) ([]MulticallResponse, error) {
	f.mu.Lock()
	f.callCount++
	f.mu.Unlock()
	out := make([]MulticallResponse, len(calls))
	for i, c := range calls {
		out[i] = f.handle(c)
	}
	return out, nil
}

func (f *fakeReader) GasPrice(context.Context) (*big.Int, error) {
	if f.gasPrice == nil {
		return nil, Errorf(ErrRPC, "gas price unavailable")
	}
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeReader) ChainID(context.Context) (uint64, error) { return f.chainID, nil }

func (f *fakeReader) LatestBlockNumber(context.Context) (uint64, error) { return 19_000_000, nil }

func (f *fakeReader) handle(req MulticallRequest) MulticallResponse {
	if len(req.CallData) < 4 {
		return MulticallResponse{}
	}
	sel := req.CallData[:4]
	arg := func(i int) []byte { return req.CallData[4+i*32 : 4+(i+1)*32] }
	argAddr := func(i int) common.Address { return common.BytesToAddress(arg(i)[12:]) }

	switch {
	case bytes.Equal(sel, selGetPair):
		pool := f.pairs[req.Target][pairKey(argAddr(0), argAddr(1), 0)]
		return MulticallResponse{Success: true, ReturnData: addressWord(pool)}

	case bytes.Equal(sel, selGetPool):
		fee := uint32(new(big.Int).SetBytes(arg(2)).Uint64())
		pool := f.pairs[req.Target][pairKey(argAddr(0), argAddr(1), fee)]
		return MulticallResponse{Success: true, ReturnData: addressWord(pool)}

	case bytes.Equal(sel, selGetReserves):
		p, ok := f.v2[req.Target]
		if !ok {
			return MulticallResponse{}
		}
		ret := append(append(word(p.reserve0), word(p.reserve1)...), word(big.NewInt(0))...)
		return MulticallResponse{Success: true, ReturnData: ret}

	case bytes.Equal(sel, selToken0):
		if p, ok := f.v2[req.Target]; ok {
			return MulticallResponse{Success: true, ReturnData: addressWord(p.token0)}
		}
		if p, ok := f.v3[req.Target]; ok {
			return MulticallResponse{Success: true, ReturnData: addressWord(p.token0)}
		}
		return MulticallResponse{}

	case bytes.Equal(sel, selToken1):
		if p, ok := f.v2[req.Target]; ok {
			return MulticallResponse{Success: true, ReturnData: addressWord(p.token1)}
		}
		if p, ok := f.v3[req.Target]; ok {
			return MulticallResponse{Success: true, ReturnData: addressWord(p.token1)}
		}
		return MulticallResponse{}

	case bytes.Equal(sel, selSlot0):
		p, ok := f.v3[req.Target]
		if !ok {
			return MulticallResponse{}
		}
		ret := append(word(p.sqrtPriceX96), word(big.NewInt(int64(p.tick)))...)
		return MulticallResponse{Success: true, ReturnData: ret}

	case bytes.Equal(sel, selLiquidity):
		p, ok := f.v3[req.Target]
		if !ok {
			return MulticallResponse{}
		}
		return MulticallResponse{Success: true, ReturnData: word(p.liquidity)}

	case bytes.Equal(sel, selQuoteExactInputSingle):
		if !f.quoters[req.Target] {
			return MulticallResponse{}
		}
		tokenIn, tokenOut := argAddr(0), argAddr(1)
		amountIn := new(big.Int).SetBytes(arg(2))
		fee := uint32(new(big.Int).SetBytes(arg(3)).Uint64())
		for pool, p := range f.v3 {
			if p.feePPM != fee {
				continue
			}
			matches := (p.token0 == tokenIn && p.token1 == tokenOut) || (p.token0 == tokenOut && p.token1 == tokenIn)
			if !matches {
				continue
			}
			if canned, ok := f.quoterOverride[pool]; ok {
				return MulticallResponse{Success: true, ReturnData: word(canned)}
			}
			out, _ := V3AmountOut(amountIn, p.sqrtPriceX96, p.liquidity, fee, p.token0 == tokenIn)
			return MulticallResponse{Success: true, ReturnData: word(out)}
		}
		return MulticallResponse{}

	case bytes.Equal(sel, selSymbol):
		t, ok := f.erc20[req.Target]
		if !ok || t.noSymbol {
			return MulticallResponse{}
		}
		if t.legacyBytes32 {
			w := make([]byte, 32)
			copy(w, t.symbol)
			return MulticallResponse{Success: true, ReturnData: w}
		}
		return MulticallResponse{Success: true, ReturnData: abiString(t.symbol)}

	case bytes.Equal(sel, selName):
		t, ok := f.erc20[req.Target]
		if !ok || t.noSymbol {
			return MulticallResponse{}
		}
		if t.legacyBytes32 {
			w := make([]byte, 32)
			copy(w, t.name)
			return MulticallResponse{Success: true, ReturnData: w}
		}
		return MulticallResponse{Success: true, ReturnData: abiString(t.name)}

	case bytes.Equal(sel, selDecimals):
		t, ok := f.erc20[req.Target]
		if !ok || t.noDecimals {
			return MulticallResponse{}
		}
		return MulticallResponse{Success: true, ReturnData: word(t.decimals)}

	case bytes.Equal(sel, selTotalSupply):
		t, ok := f.erc20[req.Target]
		if !ok || t.totalSupply == nil {
			return MulticallResponse{}
		}
		return MulticallResponse{Success: true, ReturnData: word(t.totalSupply)}
	}
	return MulticallResponse{}
}

//---------------------------------------------------------------------
// fixtures
//---------------------------------------------------------------------

var (
	tokenA    = testAddr(0xAA)
	tokenB    = testAddr(0xBB)
	tokenMid  = testAddr(0xCC)
	wnative   = testAddr(0xEE) // distinct from the native sentinel
	factoryV2 = testAddr(0x01)
	factory2  = testAddr(0x02)
	factoryV3 = testAddr(0x03)
	router1   = testAddr(0x11)
	router2   = testAddr(0x12)
	router3   = testAddr(0x13)
	quoterV3  = testAddr(0x21)
	executor  = testAddr(0x99)
)

func testChainConfig() *ChainConfig {
	cfg := &ChainConfig{
		Key:                   "testchain",
		NumericID:             1,
		NativeSymbol:          "ETH",
		WrappedNativeAddress:  wnative,
		ExecutorAddress:       executor,
		DisablePublicRegistry: true,
		RPCURLs:               []string{"http://localhost:8545"},
		IntermediateTokens:    []common.Address{tokenMid},
		Dexes: []DexConfig{
			{ID: "dex-a", Protocol: "uniswap", Version: PoolV2, FactoryAddress: factoryV2, RouterAddress: router1},
			{ID: "dex-b", Protocol: "sushiswap", Version: PoolV2, FactoryAddress: factory2, RouterAddress: router2},
			{ID: "dex-v3", Protocol: "uniswap", Version: PoolV3, FactoryAddress: factoryV3, RouterAddress: router3,
				QuoterAddress: quoterV3, FeeTiers: []uint32{3000}},
		},
	}
	cfg.ApplyDefaults()
	// Tests drive small pools; do not filter them out.
	cfg.Routing.MinV2ReserveThreshold = big.NewInt(0)
	cfg.Routing.MinV3LiquidityThreshold = big.NewInt(0)
	return cfg
}

func stdERC20(symbol string) *fakeERC20 {
	return &fakeERC20{symbol: symbol, name: symbol + " Token", decimals: big.NewInt(18), totalSupply: e18(1_000_000_000)}
}

// fakeBackend builds a reader with metadata for the standard test tokens.
func fakeBackend() *fakeReader {
	f := newFakeReader()
	f.addToken(tokenA, stdERC20("AAA"))
	f.addToken(tokenB, stdERC20("BBB"))
	f.addToken(tokenMid, stdERC20("MID"))
	f.addToken(wnative, stdERC20("WETH"))
	return f
}
