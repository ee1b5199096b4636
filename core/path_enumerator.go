package core

// path_enumerator.go – thin driver over pool discovery: the direct and
// multi-hop passes are independent, so they run concurrently and their
// candidate sets are concatenated for the optimizer and ranker.
// -----------------------------------------------------------------------------

import (
	"context"
	"math/big"
	"sync"
)

// EnumeratePaths collects every candidate quote for the request. With
// forceMultiHop set the direct pass is skipped entirely (a testing hook for
// path construction).
func (d *PoolDiscovery) EnumeratePaths(ctx context.Context, tokenIn, tokenOut Token, amountIn *big.Int, allowed []PoolVersion, forceMultiHop bool) ([]*PriceQuote, error) {
	var (
		wg            sync.WaitGroup
		direct, multi []*PriceQuote
		errA, errB    error
	)

	if !forceMultiHop {
		wg.Add(1)
		go func() {
			defer wg.Done()
			direct, errA = d.DiscoverDirect(ctx, tokenIn, tokenOut, amountIn, allowed)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		multi, errB = d.DiscoverMultiHop(ctx, tokenIn, tokenOut, amountIn, allowed)
	}()
	wg.Wait()

	// One failing pass is tolerable as long as the other produced
	// candidates; an empty total set surfaces as no_route_found upstream.
	candidates := append(direct, multi...)
	if len(candidates) == 0 {
		if errA != nil {
			return nil, errA
		}
		if errB != nil {
			return nil, errB
		}
	}
	return candidates, nil
}
