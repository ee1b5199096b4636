package core

// chain_config.go – chain registry decoding, defaulting and validation.
// The registry is declared in YAML (see cmd/config); this file owns the
// semantic checks and the defaults applied to anything the file left out.
// -----------------------------------------------------------------------------

import (
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Registry defaults. Thresholds are expressed in the token's smallest
// unit, so they are deliberately permissive; operators tighten per chain.
var (
	defaultMinV2Reserve   = big.NewInt(10_000)
	defaultMinV3Liquidity = big.NewInt(1_000)
)

const (
	defaultMaxHopDepth             = 2
	defaultMaxSplitLegs            = 3
	defaultMinLegRatioBps          = 500
	defaultConvergenceThresholdBps = 10
	defaultMaxIterations           = 50
	defaultInterhopBufferBps       = 10
)

// DexByID resolves a configured DEX by its registry id.
func (c *ChainConfig) DexByID(id string) *DexConfig {
	for i := range c.Dexes {
		if c.Dexes[i].ID == id {
			return &c.Dexes[i]
		}
	}
	return nil
}

// ApplyDefaults fills unset routing bounds so a sparse registry entry
// still yields a safe configuration.
func (c *ChainConfig) ApplyDefaults() {
	r := &c.Routing
	if r.MaxHopDepth <= 0 {
		r.MaxHopDepth = defaultMaxHopDepth
	}
	if r.MaxSplitLegs <= 0 {
		r.MaxSplitLegs = defaultMaxSplitLegs
	}
	if r.MinLegRatioBps == 0 {
		r.MinLegRatioBps = defaultMinLegRatioBps
	}
	if r.ConvergenceThresholdBps == 0 {
		r.ConvergenceThresholdBps = defaultConvergenceThresholdBps
	}
	if r.MaxIterations <= 0 {
		r.MaxIterations = defaultMaxIterations
	}
	if r.InterhopBufferBps == 0 {
		r.InterhopBufferBps = defaultInterhopBufferBps
	}
	if r.SplitGasOverheadUnits == 0 {
		r.SplitGasOverheadUnits = defaultSplitGasOverheadUnits
	}
	if r.MinV2ReserveThreshold == nil {
		r.MinV2ReserveThreshold = new(big.Int).Set(defaultMinV2Reserve)
	}
	if r.MinV3LiquidityThreshold == nil {
		r.MinV3LiquidityThreshold = new(big.Int).Set(defaultMinV3Liquidity)
	}
}

// Validate rejects registry entries the engine cannot serve.
func (c *ChainConfig) Validate() error {
	if c.Key == "" {
		return Errorf(ErrInvalidConfig, "chain entry missing key")
	}
	if c.NumericID == 0 {
		return Errorf(ErrInvalidConfig, "chain %s missing numeric id", c.Key)
	}
	if c.WrappedNativeAddress == (common.Address{}) {
		return Errorf(ErrInvalidConfig, "chain %s missing wrapped native address", c.Key)
	}
	if len(c.RPCURLs) == 0 && len(c.FallbackRPCURLs) == 0 && c.DisablePublicRegistry {
		return Errorf(ErrInvalidConfig, "chain %s has no reachable rpc endpoints", c.Key)
	}
	for i := range c.Dexes {
		d := &c.Dexes[i]
		if d.ID == "" {
			return Errorf(ErrInvalidConfig, "chain %s: dex entry %d missing id", c.Key, i)
		}
		switch d.Version {
		case PoolV2, PoolV3:
		default:
			return Errorf(ErrInvalidConfig, "chain %s: dex %s has unknown version %q", c.Key, d.ID, d.Version)
		}
		if d.FactoryAddress == (common.Address{}) {
			return Errorf(ErrInvalidConfig, "chain %s: dex %s missing factory address", c.Key, d.ID)
		}
		if d.RouterAddress == (common.Address{}) {
			return Errorf(ErrInvalidConfig, "chain %s: dex %s missing router address", c.Key, d.ID)
		}
		if d.Version == PoolV3 && len(d.FeeTiers) == 0 {
			return Errorf(ErrInvalidConfig, "chain %s: dex %s has no fee tiers", c.Key, d.ID)
		}
	}
	return nil
}

//---------------------------------------------------------------------
// YAML registry
//---------------------------------------------------------------------

// chainRegistryFile mirrors the YAML layout: addresses arrive as hex
// strings and thresholds as decimal strings, converted here.
type chainRegistryFile struct {
	Chains []chainEntry `yaml:"chains"`
}

type chainEntry struct {
	Key                   string     `yaml:"key"`
	NumericID             uint32     `yaml:"numeric_id"`
	NativeSymbol          string     `yaml:"native_symbol"`
	WrappedNative         string     `yaml:"wrapped_native_address"`
	Executor              string     `yaml:"executor_address"`
	Multicall             string     `yaml:"multicall_address"`
	Lens                  string     `yaml:"lens_address"`
	RPCURLs               []string   `yaml:"rpc_urls"`
	FallbackRPCURLs       []string   `yaml:"fallback_rpc_urls"`
	DisablePublicRegistry bool       `yaml:"disable_public_registry"`
	Intermediates         []string   `yaml:"intermediate_tokens"`
	Dexes                 []dexEntry `yaml:"dexes"`
	Routing               struct {
		MaxHopDepth             int    `yaml:"max_hop_depth"`
		MaxSplitLegs            int    `yaml:"max_split_legs"`
		MinLegRatioBps          uint16 `yaml:"min_leg_ratio_bps"`
		ConvergenceThresholdBps uint16 `yaml:"convergence_threshold_bps"`
		MaxIterations           int    `yaml:"max_iterations"`
		InterhopBufferBps       uint16 `yaml:"interhop_buffer_bps"`
		SplitGasOverheadUnits   uint64 `yaml:"split_gas_overhead_units"`
		MinV2ReserveThreshold   string `yaml:"min_v2_reserve_threshold"`
		MinV3LiquidityThreshold string `yaml:"min_v3_liquidity_threshold"`
	} `yaml:"routing"`
}

type dexEntry struct {
	ID          string   `yaml:"id"`
	Protocol    string   `yaml:"protocol"`
	Version     string   `yaml:"version"`
	Factory     string   `yaml:"factory_address"`
	Router      string   `yaml:"router_address"`
	Quoter      string   `yaml:"quoter_address"`
	FeeTiers    []uint32 `yaml:"fee_tiers"`
	UseRouter02 bool     `yaml:"use_router02"`
}

// LoadChainRegistry reads, defaults and validates a YAML chain registry.
func LoadChainRegistry(path string) (map[string]*ChainConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapErr(ErrMissingConfig, err, "read chain registry")
	}
	return ParseChainRegistry(raw)
}

// ParseChainRegistry decodes registry YAML into validated chain configs
// keyed by chain key.
func ParseChainRegistry(raw []byte) (map[string]*ChainConfig, error) {
	var file chainRegistryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, WrapErr(ErrInvalidConfig, err, "decode chain registry")
	}
	out := make(map[string]*ChainConfig, len(file.Chains))
	for _, e := range file.Chains {
		cfg, err := e.toChainConfig()
		if err != nil {
			return nil, err
		}
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		out[cfg.Key] = cfg
	}
	if len(out) == 0 {
		return nil, Errorf(ErrMissingConfig, "chain registry declares no chains")
	}
	return out, nil
}

func (e chainEntry) toChainConfig() (*ChainConfig, error) {
	cfg := &ChainConfig{
		Key:                   e.Key,
		NumericID:             e.NumericID,
		NativeSymbol:          e.NativeSymbol,
		WrappedNativeAddress:  common.HexToAddress(e.WrappedNative),
		ExecutorAddress:       common.HexToAddress(e.Executor),
		MulticallAddress:      common.HexToAddress(e.Multicall),
		LensAddress:           common.HexToAddress(e.Lens),
		RPCURLs:               e.RPCURLs,
		FallbackRPCURLs:       e.FallbackRPCURLs,
		DisablePublicRegistry: e.DisablePublicRegistry,
	}
	for _, m := range e.Intermediates {
		cfg.IntermediateTokens = append(cfg.IntermediateTokens, common.HexToAddress(m))
	}
	for _, d := range e.Dexes {
		cfg.Dexes = append(cfg.Dexes, DexConfig{
			ID:             d.ID,
			Protocol:       d.Protocol,
			Version:        PoolVersion(d.Version),
			FactoryAddress: common.HexToAddress(d.Factory),
			RouterAddress:  common.HexToAddress(d.Router),
			QuoterAddress:  common.HexToAddress(d.Quoter),
			FeeTiers:       d.FeeTiers,
			UseRouter02:    d.UseRouter02,
		})
	}
	r := e.Routing
	cfg.Routing = RoutingParams{
		MaxHopDepth:             r.MaxHopDepth,
		MaxSplitLegs:            r.MaxSplitLegs,
		MinLegRatioBps:          r.MinLegRatioBps,
		ConvergenceThresholdBps: r.ConvergenceThresholdBps,
		MaxIterations:           r.MaxIterations,
		InterhopBufferBps:       r.InterhopBufferBps,
		SplitGasOverheadUnits:   r.SplitGasOverheadUnits,
	}
	if r.MinV2ReserveThreshold != "" {
		v, ok := new(big.Int).SetString(r.MinV2ReserveThreshold, 10)
		if !ok {
			return nil, Errorf(ErrInvalidConfig, "chain %s: bad min_v2_reserve_threshold", e.Key)
		}
		cfg.Routing.MinV2ReserveThreshold = v
	}
	if r.MinV3LiquidityThreshold != "" {
		v, ok := new(big.Int).SetString(r.MinV3LiquidityThreshold, 10)
		if !ok {
			return nil, Errorf(ErrInvalidConfig, "chain %s: bad min_v3_liquidity_threshold", e.Key)
		}
		cfg.Routing.MinV3LiquidityThreshold = v
	}
	return cfg, nil
}

//---------------------------------------------------------------------
// Slippage clamps
//---------------------------------------------------------------------

// clampSlippageAPI bounds caller-provided slippage at the API boundary.
// Negative input collapses to zero.
func clampSlippageAPI(bps int) uint16 {
	switch {
	case bps < 0:
		return 0
	case bps > 5000:
		return 5000
	}
	return uint16(bps)
}

// clampSlippageQuote bounds slippage used inside quote construction.
func clampSlippageQuote(bps int) uint16 {
	switch {
	case bps < 0:
		return 0
	case bps > 1000:
		return 1000
	}
	return uint16(bps)
}
