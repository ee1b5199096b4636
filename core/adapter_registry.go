package core

// adapter_registry.go – per-protocol strategy objects behind a uniform
// interface, registered at startup into a process-wide registry keyed by
// (protocol, version). The version tag on the pool gates which compute
// method a caller invokes; unknown protocols fall back to a neutral
// constant-product fee pair.
// -----------------------------------------------------------------------------

import (
	"math/big"
	"sync"
)

// DexAdapter prices swaps for one (protocol, version) family.
type DexAdapter interface {
	Protocol() string
	Version() PoolVersion
	// FeePair returns the constant-product fee fraction for v2 families.
	FeePair() (num, den *big.Int)
	// ComputeV2Quote prices a swap against v2 reserves. Nil result means
	// the adapter does not serve v2.
	ComputeV2Quote(amountIn, reserveIn, reserveOut *big.Int) *big.Int
	// ComputeV3Quote prices a single-tick swap. Nil result means the
	// adapter does not serve v3.
	ComputeV3Quote(amountIn, sqrtPriceX96, liquidity *big.Int, feePPM uint32, zeroForOne bool) *big.Int
	// MarginalV2Q128 / MarginalV3Q128 is the derivative of the corresponding compute at the
	// given allocation against the same pool state.
	MarginalV2Q128(alloc, reserveIn, reserveOut *big.Int) *big.Int
	MarginalV3Q128(alloc, sqrtPriceX96, liquidity *big.Int, feePPM uint32, zeroForOne bool) *big.Int
	// EstimateGas returns the per-hop gas units for this family.
	EstimateGas() uint64
	SupportsChain(chainID uint32) bool
}

type adapterKey struct {
	protocol string
	version  PoolVersion
}

var (
	adapterMu  sync.RWMutex
	adapterReg = make(map[adapterKey]DexAdapter)
)

// RegisterAdapter installs an adapter; last registration for a key wins.
func RegisterAdapter(a DexAdapter) {
	adapterMu.Lock()
	defer adapterMu.Unlock()
	adapterReg[adapterKey{a.Protocol(), a.Version()}] = a
}

// AdapterFor resolves the adapter for a protocol and version. Unknown
// protocols resolve to the neutral default for that version.
func AdapterFor(protocol string, version PoolVersion) DexAdapter {
	adapterMu.RLock()
	a, ok := adapterReg[adapterKey{protocol, version}]
	adapterMu.RUnlock()
	if ok {
		return a
	}
	return &feeAdapter{protocol: protocol, version: version, feeNum: 997, feeDen: 1000}
}

//---------------------------------------------------------------------
// Built-in constant-product families
//---------------------------------------------------------------------

// feeAdapter implements DexAdapter for every family whose behaviour is
// fully described by a fee fraction; both v2 and v3 math route through the
// shared closed forms with the family's fee applied.
type feeAdapter struct {
	protocol string
	version  PoolVersion
	feeNum   int64
	feeDen   int64
	gasUnits uint64
}

func (f *feeAdapter) Protocol() string     { return f.protocol }
func (f *feeAdapter) Version() PoolVersion { return f.version }

func (f *feeAdapter) FeePair() (*big.Int, *big.Int) {
	return big.NewInt(f.feeNum), big.NewInt(f.feeDen)
}

func (f *feeAdapter) ComputeV2Quote(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	num, den := f.FeePair()
	return V2AmountOut(amountIn, reserveIn, reserveOut, num, den)
}

func (f *feeAdapter) ComputeV3Quote(amountIn, sqrtPriceX96, liquidity *big.Int, feePPM uint32, zeroForOne bool) *big.Int {
	out, _ := V3AmountOut(amountIn, sqrtPriceX96, liquidity, feePPM, zeroForOne)
	return out
}

func (f *feeAdapter) MarginalV2Q128(alloc, reserveIn, reserveOut *big.Int) *big.Int {
	num, den := f.FeePair()
	return V2MarginalQ128(alloc, reserveIn, reserveOut, num, den)
}

func (f *feeAdapter) MarginalV3Q128(alloc, sqrtPriceX96, liquidity *big.Int, feePPM uint32, zeroForOne bool) *big.Int {
	return V3MarginalQ128(alloc, sqrtPriceX96, liquidity, feePPM, zeroForOne)
}

func (f *feeAdapter) EstimateGas() uint64 {
	if f.gasUnits != 0 {
		return f.gasUnits
	}
	if f.version == PoolV3 {
		return gasPerV3Hop
	}
	return gasPerV2Hop
}

// SupportsChain is permissive for the built-in families; chain gating
// happens in configuration (a DEX only exists on chains that list it).
func (f *feeAdapter) SupportsChain(uint32) bool { return true }

func init() {
	// Family A: 0.30% taken as 997/1000 on the input side.
	RegisterAdapter(&feeAdapter{protocol: "uniswap", version: PoolV2, feeNum: 997, feeDen: 1000})
	RegisterAdapter(&feeAdapter{protocol: "sushiswap", version: PoolV2, feeNum: 997, feeDen: 1000})
	// Family B: 0.25% taken as 9975/10000.
	RegisterAdapter(&feeAdapter{protocol: "pancakeswap", version: PoolV2, feeNum: 9975, feeDen: 10000})

	// v3 families price by the pool's own fee tier; the fee pair is only
	// used if a v3 adapter is asked for v2 math.
	RegisterAdapter(&feeAdapter{protocol: "uniswap", version: PoolV3, feeNum: 997, feeDen: 1000})
	RegisterAdapter(&feeAdapter{protocol: "pancakeswap", version: PoolV3, feeNum: 9975, feeDen: 10000})
}
