package core

import (
	"context"
	"math/big"
	"testing"
	"time"
)

func TestSortEndpointsOrdering(t *testing.T) {
	slow := &rankedEndpoint{url: "slow", latency: 300 * time.Millisecond}
	fast := &rankedEndpoint{url: "fast", latency: 20 * time.Millisecond}
	degraded := &rankedEndpoint{url: "degraded", latency: 5 * time.Millisecond, degraded: true}
	roomy := &rankedEndpoint{url: "roomy", latency: 20 * time.Millisecond, rateRemaining: 500}

	eps := []*rankedEndpoint{slow, degraded, fast, roomy}
	sortEndpoints(eps)

	if eps[len(eps)-1] != degraded {
		t.Fatalf("degraded endpoint must sort last, got %s", eps[len(eps)-1].url)
	}
	if eps[0] != roomy {
		t.Fatalf("equal-latency endpoints must prefer rate headroom, got %s", eps[0].url)
	}
	if eps[1] != fast || eps[2] != slow {
		t.Fatalf("latency order broken: %s, %s", eps[1].url, eps[2].url)
	}
}

func TestNewChainClientRequiresEndpoints(t *testing.T) {
	chain := testChainConfig()
	chain.RPCURLs = nil
	chain.FallbackRPCURLs = nil
	chain.DisablePublicRegistry = true
	if _, err := NewChainClient(chain, nil); !IsCode(err, ErrMissingConfig) {
		t.Fatalf("expected missing_config, got %v", err)
	}
}

func TestNewChainClientMergesPublicRegistry(t *testing.T) {
	chain := testChainConfig()
	chain.NumericID = 1
	chain.DisablePublicRegistry = false
	cc, err := NewChainClient(chain, nil)
	if err != nil {
		t.Fatalf("client init failed: %v", err)
	}
	if len(cc.fallbacks) == 0 {
		t.Fatalf("public registry endpoints not merged")
	}

	chain2 := testChainConfig()
	chain2.DisablePublicRegistry = true
	cc2, err := NewChainClient(chain2, nil)
	if err != nil {
		t.Fatalf("client init failed: %v", err)
	}
	if len(cc2.fallbacks) != 0 {
		t.Fatalf("registry merged despite being disabled")
	}
}

func TestDedupeStrings(t *testing.T) {
	got := dedupeStrings([]string{"a", "b", "a", "c"}, []string{"b"})
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("dedupe result %v", got)
	}
}

func TestAggregate3RoundTrip(t *testing.T) {
	calls := []MulticallRequest{
		{Target: testAddr(0x01), CallData: selToken0},
		{Target: testAddr(0x02), CallData: append(append([]byte{}, selGetPair...), make([]byte, 64)...)},
	}
	payload, err := EncodeAggregate3(calls, true)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if len(payload) < 4 || string(payload[:4]) != string(aggregate3Selector) {
		t.Fatalf("selector missing from payload")
	}

	// An aggregate3-shaped response for the same two calls decodes cleanly.
	responses := []multicall3Result{
		{Success: true, ReturnData: word(big.NewInt(7))},
		{Success: false, ReturnData: nil},
	}
	packed, err := multicallUnpackArgs.Pack(responses)
	if err != nil {
		t.Fatalf("pack responses: %v", err)
	}
	decoded, err := DecodeAggregate3(packed)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded) != 2 || !decoded[0].Success || decoded[1].Success {
		t.Fatalf("decoded %+v", decoded)
	}
	if new(big.Int).SetBytes(decoded[0].ReturnData).Int64() != 7 {
		t.Fatalf("return data corrupted: %x", decoded[0].ReturnData)
	}
}

func TestRotationRespectsPrimaryCap(t *testing.T) {
	chain := testChainConfig()
	chain.RPCURLs = []string{"http://a", "http://b", "http://c", "http://d"}
	chain.FallbackRPCURLs = []string{"http://fb"}
	cc, err := NewChainClient(chain, nil)
	if err != nil {
		t.Fatalf("client init failed: %v", err)
	}
	// Pretend ranking already ran so rotation() skips live probes.
	cc.rankedAt = time.Now()

	rot := cc.rotation(context.Background())
	if len(rot) != maxPrimaryEndpoints+1 {
		t.Fatalf("rotation length %d, want %d primaries + 1 fallback", len(rot), maxPrimaryEndpoints)
	}
	last := rot[len(rot)-1]
	if last.url != "http://fb" {
		t.Fatalf("fallback must cascade last, got %s", last.url)
	}
}

func TestMulticallEmptyInput(t *testing.T) {
	chain := testChainConfig()
	cc, err := NewChainClient(chain, nil)
	if err != nil {
		t.Fatalf("client init failed: %v", err)
	}
	out, err := cc.Multicall(context.Background(), nil, true)
	if err != nil || out != nil {
		t.Fatalf("empty multicall should be a no-op, got %v %v", out, err)
	}
}

func TestDecodeAddressWord(t *testing.T) {
	addr := testAddr(0x42)
	res := MulticallResponse{Success: true, ReturnData: addressWord(addr)}
	got, ok := decodeAddressWord(res)
	if !ok || got != addr {
		t.Fatalf("decoded %s ok=%v", got.Hex(), ok)
	}
	if _, ok := decodeAddressWord(MulticallResponse{Success: false}); ok {
		t.Fatalf("failed response must not decode")
	}
}
