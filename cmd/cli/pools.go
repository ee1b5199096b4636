package cli

// cmd/cli/pools.go – Cobra CLI exposing raw pool discovery, the testing
// hook behind the quote pipeline.

import (
	"fmt"

	"github.com/spf13/cobra"

	core "aequi-router/core"
)

var (
	poolsChain   string
	poolsVersion string
)

func runPools(cmd *cobra.Command, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: pools <tokenIn> <tokenOut> <amountIn>")
	}
	tokenIn, err := parseAddressArg(args[0])
	if err != nil {
		return err
	}
	tokenOut, err := parseAddressArg(args[1])
	if err != nil {
		return err
	}
	amountIn, err := parseAmountArg(args[2])
	if err != nil {
		return err
	}

	quotes, err := routerEngine.DiscoverPools(cmd.Context(), chainKeyOrDefault(poolsChain),
		tokenIn, tokenOut, amountIn, core.VersionPreference(poolsVersion).AllowedVersions())
	if err != nil {
		return err
	}
	fmt.Printf("%d candidate routes\n", len(quotes))
	for _, q := range quotes {
		fmt.Printf("  out=%s hops=%d impact=%dbps gas=%d", q.AmountOut, len(q.Sources), q.PriceImpactBps, q.EstimatedGasUnits)
		for _, s := range q.Sources {
			fmt.Printf(" [%s %s]", s.DexID, s.PoolAddress.Hex())
		}
		fmt.Println()
	}
	return nil
}

var poolsCmd = &cobra.Command{
	Use:               "pools <tokenIn> <tokenOut> <amountIn>",
	Short:             "List candidate pools and per-route simulations",
	Args:              cobra.MinimumNArgs(3),
	PersistentPreRunE: ensureEngine,
	RunE:              runPools,
}

func init() {
	poolsCmd.Flags().StringVar(&poolsChain, "chain", "", "chain key (default from config)")
	poolsCmd.Flags().StringVar(&poolsVersion, "version", string(core.PreferAuto), "pool version preference: auto|v2|v3")
}

// PoolsCmd exported for index.go
var PoolsCmd = poolsCmd
