package core

// token_metadata.go – TTL-cached ERC-20 metadata per (chain, address).
// Lookups batch symbol/name/decimals/totalSupply into one multicall; each
// field may fail independently. Entries expire lazily on read and via a
// periodic sweep, mirroring the idle-reaper pattern used elsewhere in this
// codebase for pooled resources.
// -----------------------------------------------------------------------------

import (
	"bytes"
	"context"
	"math/big"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"
)

const (
	defaultTokenTTL    = 5 * time.Minute
	tokenSweepInterval = time.Minute
	unknownSymbol      = "UNKNOWN"
)

var (
	selSymbol      = crypto.Keccak256([]byte("symbol()"))[:4]
	selName        = crypto.Keccak256([]byte("name()"))[:4]
	selDecimals    = crypto.Keccak256([]byte("decimals()"))[:4]
	selTotalSupply = crypto.Keccak256([]byte("totalSupply()"))[:4]
)

type tokenCacheKey struct {
	chainID uint32
	address common.Address
}

type cachedToken struct {
	token     Token
	expiresAt time.Time
}

// TokenMetadataCache is one of the two process-wide caches. Reads are
// lock-shared; every mutation swaps a whole entry under the write lock.
type TokenMetadataCache struct {
	logger *log.Logger
	ttl    time.Duration

	mu      sync.RWMutex
	entries map[tokenCacheKey]cachedToken

	closeOnce sync.Once
	closing   chan struct{}
}

// NewTokenMetadataCache builds the cache and starts its sweep loop.
func NewTokenMetadataCache(logger *log.Logger, ttl time.Duration) *TokenMetadataCache {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	c := &TokenMetadataCache{
		logger:  logger,
		ttl:     ttl,
		entries: make(map[tokenCacheKey]cachedToken),
		closing: make(chan struct{}),
	}
	go c.sweeper()
	return c
}

// Close stops the periodic sweep.
func (c *TokenMetadataCache) Close() {
	c.closeOnce.Do(func() { close(c.closing) })
}

func (c *TokenMetadataCache) sweeper() {
	ticker := time.NewTicker(tokenSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closing:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for k, v := range c.entries {
				if now.After(v.expiresAt) {
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Preload seeds the cache with known tokens (the engine passes each chain's
// wrapped native) so the first request skips their reads.
func (c *TokenMetadataCache) Preload(tokens []Token) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tokens {
		key := tokenCacheKey{t.ChainID, normalizeAddress(t.Address)}
		c.entries[key] = cachedToken{token: t, expiresAt: now.Add(c.ttl)}
	}
}

func normalizeAddress(a common.Address) common.Address {
	return common.HexToAddress(strings.ToLower(a.Hex()))
}

func (c *TokenMetadataCache) lookup(chainID uint32, addr common.Address) (Token, bool) {
	key := tokenCacheKey{chainID, normalizeAddress(addr)}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Token{}, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return Token{}, false
	}
	return entry.token, true
}

func (c *TokenMetadataCache) store(t Token) {
	key := tokenCacheKey{t.ChainID, normalizeAddress(t.Address)}
	c.mu.Lock()
	c.entries[key] = cachedToken{token: t, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

//---------------------------------------------------------------------
// Reads
//---------------------------------------------------------------------

// GetTokenMetadata resolves one token, from cache or via a batched read.
// The native sentinel short-circuits to a synthetic entry.
func (c *TokenMetadataCache) GetTokenMetadata(ctx context.Context, chain *ChainConfig, reader ChainReader, addr common.Address) (Token, error) {
	if IsNativeToken(addr) {
		return nativeToken(chain), nil
	}
	if t, ok := c.lookup(chain.NumericID, addr); ok {
		return t, nil
	}
	tokens, err := c.fetchBatch(ctx, chain, reader, []common.Address{addr})
	if err != nil {
		return Token{}, err
	}
	if len(tokens) == 0 {
		return Token{}, Errorf(ErrUnsupportedToken, "token %s: decimals unreadable", addr.Hex())
	}
	return tokens[0], nil
}

// GetBatchTokenMetadata resolves many tokens, coalescing every uncached
// address into a single multicall.
func (c *TokenMetadataCache) GetBatchTokenMetadata(ctx context.Context, chain *ChainConfig, reader ChainReader, addrs []common.Address) (map[common.Address]Token, error) {
	out := make(map[common.Address]Token, len(addrs))
	var missing []common.Address
	for _, a := range addrs {
		if IsNativeToken(a) {
			out[a] = nativeToken(chain)
			continue
		}
		if t, ok := c.lookup(chain.NumericID, a); ok {
			out[a] = t
			continue
		}
		missing = append(missing, a)
	}
	if len(missing) == 0 {
		return out, nil
	}
	fetched, err := c.fetchBatch(ctx, chain, reader, missing)
	if err != nil {
		return nil, err
	}
	for _, t := range fetched {
		out[t.Address] = t
	}
	return out, nil
}

// fetchBatch reads four fields per token in one round trip. A token whose
// decimals read fails is unsupported; symbol and name degrade gracefully.
func (c *TokenMetadataCache) fetchBatch(ctx context.Context, chain *ChainConfig, reader ChainReader, addrs []common.Address) ([]Token, error) {
	calls := make([]MulticallRequest, 0, len(addrs)*4)
	for _, a := range addrs {
		calls = append(calls,
			MulticallRequest{Target: a, CallData: selSymbol},
			MulticallRequest{Target: a, CallData: selName},
			MulticallRequest{Target: a, CallData: selDecimals},
			MulticallRequest{Target: a, CallData: selTotalSupply},
		)
	}
	results, err := reader.Multicall(ctx, calls, true)
	if err != nil {
		return nil, WrapErr(ErrRPC, err, "token metadata multicall")
	}

	tokens := make([]Token, 0, len(addrs))
	for i, a := range addrs {
		base := i * 4
		symRes, nameRes, decRes, supRes := results[base], results[base+1], results[base+2], results[base+3]

		// Missing decimals is fatal for the token, not for the batch.
		decimals, ok := decodeUint8Word(decRes)
		if !ok {
			c.logger.WithFields(log.Fields{"chain": chain.Key, "token": a.Hex()}).
				Warn("token has no readable decimals, skipping")
			continue
		}

		symbol := decodeStringResult(symRes)
		if symbol == "" {
			symbol = unknownSymbol
		}
		name := decodeStringResult(nameRes)
		if name == "" {
			name = symbol
		}

		t := Token{
			ChainID:  chain.NumericID,
			Address:  a,
			Symbol:   symbol,
			Name:     name,
			Decimals: decimals,
		}
		if supRes.Success && len(supRes.ReturnData) >= 32 {
			t.TotalSupply = new(big.Int).SetBytes(supRes.ReturnData[:32])
		}
		c.store(t)
		tokens = append(tokens, t)
	}
	return tokens, nil
}

func nativeToken(chain *ChainConfig) Token {
	return Token{
		ChainID:  chain.NumericID,
		Address:  NativeTokenAddress,
		Symbol:   chain.NativeSymbol,
		Name:     chain.NativeSymbol,
		Decimals: 18,
	}
}

//---------------------------------------------------------------------
// Return-data decoding
//---------------------------------------------------------------------

// decodeStringResult handles both ABI-encoded strings and the legacy
// contracts that return a raw 32-byte word (UTF-8, NUL padded).
func decodeStringResult(res MulticallResponse) string {
	if !res.Success || len(res.ReturnData) == 0 {
		return ""
	}
	data := res.ReturnData
	if len(data) == 32 {
		trimmed := bytes.TrimRight(data, "\x00")
		if utf8.Valid(trimmed) {
			return string(trimmed)
		}
		return ""
	}
	if len(data) < 64 {
		return ""
	}
	offset := new(big.Int).SetBytes(data[:32])
	if !offset.IsUint64() || offset.Uint64()+32 > uint64(len(data)) {
		return ""
	}
	start := offset.Uint64()
	strLen := new(big.Int).SetBytes(data[start : start+32])
	if !strLen.IsUint64() || start+32+strLen.Uint64() > uint64(len(data)) {
		return ""
	}
	raw := data[start+32 : start+32+strLen.Uint64()]
	if !utf8.Valid(raw) {
		return ""
	}
	return string(bytes.TrimRight(raw, "\x00"))
}

func decodeUint8Word(res MulticallResponse) (uint8, bool) {
	if !res.Success || len(res.ReturnData) < 32 {
		return 0, false
	}
	v := new(big.Int).SetBytes(res.ReturnData[:32])
	if !v.IsUint64() || v.Uint64() > 30 {
		return 0, false
	}
	return uint8(v.Uint64()), true
}
