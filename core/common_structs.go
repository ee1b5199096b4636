package core

// common_structs.go – centralised data model for the routing engine. This
// file declares the data structures plus small accessors on them so that the
// per-concern files below it never need to import each other.
// -----------------------------------------------------------------------------

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

//---------------------------------------------------------------------
// Pool / protocol tagging
//---------------------------------------------------------------------

// PoolVersion tags the AMM generation of a pool or hop.
type PoolVersion string

const (
	PoolV2 PoolVersion = "v2"
	PoolV3 PoolVersion = "v3"
)

// NativeTokenAddress is the sentinel address denoting the chain's native
// coin in quote requests. All other addresses are ERC-20 contracts.
var NativeTokenAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// IsNativeToken reports whether addr is the native-coin sentinel.
func IsNativeToken(addr common.Address) bool {
	return addr == NativeTokenAddress
}

//---------------------------------------------------------------------
// Token
//---------------------------------------------------------------------

// Token describes a fungible asset on one chain. Quotes copy tokens by
// value so serialized quote trees never form reference cycles with the
// metadata cache.
type Token struct {
	ChainID     uint32         `json:"chain_id"`
	Address     common.Address `json:"address"`
	Symbol      string         `json:"symbol"`
	Name        string         `json:"name"`
	Decimals    uint8          `json:"decimals"`
	TotalSupply *big.Int       `json:"total_supply,omitempty"`
}

// SameToken compares two addresses case-insensitively within one chain.
func SameToken(a, b common.Address) bool {
	return strings.EqualFold(a.Hex(), b.Hex())
}

//---------------------------------------------------------------------
// Chain & DEX configuration
//---------------------------------------------------------------------

// DexConfig describes one exchange deployment on a chain.
type DexConfig struct {
	ID             string         `json:"id" yaml:"id"`
	Protocol       string         `json:"protocol" yaml:"protocol"`
	Version        PoolVersion    `json:"version" yaml:"version"`
	FactoryAddress common.Address `json:"factory_address" yaml:"factory_address"`
	RouterAddress  common.Address `json:"router_address" yaml:"router_address"`
	QuoterAddress  common.Address `json:"quoter_address,omitempty" yaml:"quoter_address"`
	FeeTiers       []uint32       `json:"fee_tiers,omitempty" yaml:"fee_tiers"`
	// UseRouter02 selects the exactInputSingle struct layout without the
	// embedded deadline field.
	UseRouter02 bool `json:"use_router02" yaml:"use_router02"`
}

// HasQuoter reports whether a quoter contract is configured.
func (d *DexConfig) HasQuoter() bool {
	return d.QuoterAddress != (common.Address{})
}

// RoutingParams bounds discovery and split optimisation for one chain.
type RoutingParams struct {
	MaxHopDepth             int      `json:"max_hop_depth" yaml:"max_hop_depth"`
	MaxSplitLegs            int      `json:"max_split_legs" yaml:"max_split_legs"`
	MinLegRatioBps          uint16   `json:"min_leg_ratio_bps" yaml:"min_leg_ratio_bps"`
	ConvergenceThresholdBps uint16   `json:"convergence_threshold_bps" yaml:"convergence_threshold_bps"`
	MaxIterations           int      `json:"max_iterations" yaml:"max_iterations"`
	InterhopBufferBps       uint16   `json:"interhop_buffer_bps" yaml:"interhop_buffer_bps"`
	SplitGasOverheadUnits   uint64   `json:"split_gas_overhead_units" yaml:"split_gas_overhead_units"`
	MinV2ReserveThreshold   *big.Int `json:"min_v2_reserve_threshold" yaml:"-"`
	MinV3LiquidityThreshold *big.Int `json:"min_v3_liquidity_threshold" yaml:"-"`
}

// ChainConfig is the per-chain registry entry consumed by the engine.
type ChainConfig struct {
	Key                   string           `json:"key" yaml:"key"`
	NumericID             uint32           `json:"numeric_id" yaml:"numeric_id"`
	NativeSymbol          string           `json:"native_symbol" yaml:"native_symbol"`
	WrappedNativeAddress  common.Address   `json:"wrapped_native_address" yaml:"wrapped_native_address"`
	ExecutorAddress       common.Address   `json:"executor_address" yaml:"executor_address"`
	MulticallAddress      common.Address   `json:"multicall_address" yaml:"multicall_address"`
	LensAddress           common.Address   `json:"lens_address,omitempty" yaml:"lens_address"`
	Dexes                 []DexConfig      `json:"dexes" yaml:"dexes"`
	RPCURLs               []string         `json:"rpc_urls" yaml:"rpc_urls"`
	FallbackRPCURLs       []string         `json:"fallback_rpc_urls" yaml:"fallback_rpc_urls"`
	DisablePublicRegistry bool             `json:"disable_public_registry" yaml:"disable_public_registry"`
	IntermediateTokens    []common.Address `json:"intermediate_tokens" yaml:"intermediate_tokens"`
	Routing               RoutingParams    `json:"routing" yaml:"routing"`
}

//---------------------------------------------------------------------
// Pool snapshots
//---------------------------------------------------------------------

// PoolSnapshot is an ephemeral copy of one pool's priced state, tagged by
// version. v2 pools carry reserves; v3 pools carry slot0-derived fields.
type PoolSnapshot struct {
	Version PoolVersion    `json:"version"`
	Address common.Address `json:"address"`
	Token0  common.Address `json:"token0"`
	Token1  common.Address `json:"token1"`

	// v2 fields (reserves bounded by 2^112 on chain)
	Reserve0 *big.Int `json:"reserve0,omitempty"`
	Reserve1 *big.Int `json:"reserve1,omitempty"`

	// v3 fields
	SqrtPriceX96 *big.Int `json:"sqrt_price_x96,omitempty"`
	Tick         int32    `json:"tick,omitempty"`
	Liquidity    *big.Int `json:"liquidity,omitempty"`
	FeePPM       uint32   `json:"fee_ppm,omitempty"`
}

//---------------------------------------------------------------------
// Quotes
//---------------------------------------------------------------------

// PriceSource records one hop of a quote together with the pool state used
// for the simulation, so later recomputation is self-contained.
type PriceSource struct {
	DexID       string         `json:"dex_id"`
	Protocol    string         `json:"protocol,omitempty"`
	PoolAddress common.Address `json:"pool_address"`
	Version     PoolVersion    `json:"version"`
	AmountIn    *big.Int       `json:"amount_in"`
	AmountOut   *big.Int       `json:"amount_out"`
	FeeTier     uint32         `json:"fee_tier,omitempty"`
	// Approximate marks v3 outputs produced by the single-tick closed form
	// rather than a quoter contract.
	Approximate bool         `json:"approximate,omitempty"`
	Pool        PoolSnapshot `json:"pool"`
}

// SplitLeg is one sub-path of a split trade. RatioBps over all legs of a
// split sums to exactly 10000.
type SplitLeg struct {
	Quote    *PriceQuote `json:"quote"`
	RatioBps uint16      `json:"ratio_bps"`
}

// PriceQuote is the engine's unit of ranking: one simulated route (or one
// synthetic split of routes) for a fixed input amount.
type PriceQuote struct {
	ChainKey          string           `json:"chain_key"`
	RequestID         string           `json:"request_id,omitempty"`
	AmountIn          *big.Int         `json:"amount_in"`
	AmountOut         *big.Int         `json:"amount_out"`
	PriceQ18          *big.Int         `json:"price_q18"`
	ExecutionPriceQ18 *big.Int         `json:"execution_price_q18"`
	MidPriceQ18       *big.Int         `json:"mid_price_q18"`
	PriceImpactBps    uint16           `json:"price_impact_bps"`
	Path              []Token          `json:"path"`
	RouteAddresses    []common.Address `json:"route_addresses"`
	Sources           []PriceSource    `json:"sources"`
	HopVersions       []PoolVersion    `json:"hop_versions"`
	LiquidityScore    *big.Int         `json:"liquidity_score"`
	EstimatedGasUnits uint64           `json:"estimated_gas_units"`
	// EstimatedGasCostWei and GasPriceWei stay nil when no gas price is
	// known; the ranker distinguishes missing from zero.
	EstimatedGasCostWei *big.Int      `json:"estimated_gas_cost_wei,omitempty"`
	GasPriceWei         *big.Int      `json:"gas_price_wei,omitempty"`
	IsSplit             bool          `json:"is_split,omitempty"`
	Splits              []SplitLeg    `json:"splits,omitempty"`
	Offers              []*PriceQuote `json:"offers,omitempty"`
}

// TokenIn returns the first token of the path.
func (q *PriceQuote) TokenIn() Token { return q.Path[0] }

// TokenOut returns the last token of the path.
func (q *PriceQuote) TokenOut() Token { return q.Path[len(q.Path)-1] }

//---------------------------------------------------------------------
// Executor plan
//---------------------------------------------------------------------

// TokenPull instructs the executor to transferFrom the caller.
type TokenPull struct {
	Token  common.Address `json:"token"`
	Amount *big.Int       `json:"amount"`
}

// TokenApproval grants a router spend rights for the duration of the call.
type TokenApproval struct {
	Token       common.Address `json:"token"`
	Spender     common.Address `json:"spender"`
	Amount      *big.Int       `json:"amount"`
	RevokeAfter bool           `json:"revoke_after"`
}

// ExecutorCall is one inner call dispatched by the executor. A nonzero
// InjectToken makes the executor overwrite 32 bytes of Data at InjectOffset
// with its current balance of that token before dispatch.
type ExecutorCall struct {
	Target       common.Address `json:"target"`
	Value        *big.Int       `json:"value"`
	Data         []byte         `json:"data"`
	InjectToken  common.Address `json:"inject_token"`
	InjectOffset uint64         `json:"inject_offset"`
}

// ExecutorPlan is the argument tuple for one atomic executor invocation,
// plus the encoded outer call a downstream signer broadcasts.
type ExecutorPlan struct {
	Pulls         []TokenPull      `json:"pulls"`
	Approvals     []TokenApproval  `json:"approvals"`
	Calls         []ExecutorCall   `json:"calls"`
	TokensToFlush []common.Address `json:"tokens_to_flush"`

	To    common.Address `json:"to"`
	Value *big.Int       `json:"value"`
	Data  []byte         `json:"data"`
}

//---------------------------------------------------------------------
// Version preference
//---------------------------------------------------------------------

// VersionPreference narrows discovery to one AMM generation.
type VersionPreference string

const (
	PreferAuto VersionPreference = "auto"
	PreferV2   VersionPreference = "v2"
	PreferV3   VersionPreference = "v3"
)

// AllowedVersions expands a preference into the version set discovery scans.
func (p VersionPreference) AllowedVersions() []PoolVersion {
	switch p {
	case PreferV2:
		return []PoolVersion{PoolV2}
	case PreferV3:
		return []PoolVersion{PoolV3}
	default:
		return []PoolVersion{PoolV2, PoolV3}
	}
}
