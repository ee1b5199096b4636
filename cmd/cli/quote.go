package cli

// cmd/cli/quote.go – Cobra CLI for quoting. Fetches the gas-adjusted best
// route (including splits when enabled) and renders it for operators.

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	core "aequi-router/core"
	config "aequi-router/pkg/config"
)

var (
	quoteChain     string
	quoteVersion   string
	quoteSplit     bool
	quoteMultiHop  bool
	quoteAsJSON    bool
	quoteMaxOffers int
)

func runQuote(cmd *cobra.Command, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: quote <tokenIn> <tokenOut> <amountIn>")
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

	maxOffers := quoteMaxOffers
	if maxOffers == 0 {
		maxOffers = config.AppConfig.Routing.MaxOffers
	}
	best, err := routerEngine.GetBestQuote(cmd.Context(), core.QuoteRequest{
		ChainKey:      chainKeyOrDefault(quoteChain),
		TokenIn:       tokenIn,
		TokenOut:      tokenOut,
		AmountIn:      amountIn,
		Preference:    core.VersionPreference(quoteVersion),
		ForceMultiHop: quoteMultiHop,
		EnableSplit:   quoteSplit,
		MaxOffers:     maxOffers,
	})
	if err != nil {
		return err
	}
	if best == nil {
		fmt.Println("no quote: tokenIn equals tokenOut")
		return nil
	}
	if quoteAsJSON {
		return json.NewEncoder(os.Stdout).Encode(best)
	}
	printQuote(best)
	return nil
}

// renderQ18 formats a Q18 price for display only; routing maths never
// leaves big.Int.
func renderQ18(v interface{ String() string }) string {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return v.String()
	}
	return d.Shift(-18).StringFixed(8)
}

func printQuote(q *core.PriceQuote) {
	fmt.Printf("amount in:    %s %s\n", q.AmountIn, q.TokenIn().Symbol)
	fmt.Printf("amount out:   %s %s\n", q.AmountOut, q.TokenOut().Symbol)
	fmt.Printf("exec price:   %s\n", renderQ18(q.ExecutionPriceQ18))
	fmt.Printf("mid price:    %s\n", renderQ18(q.MidPriceQ18))
	fmt.Printf("impact:       %d bps\n", q.PriceImpactBps)
	fmt.Printf("gas units:    %d\n", q.EstimatedGasUnits)
	if q.EstimatedGasCostWei != nil {
		fmt.Printf("gas cost:     %s wei\n", q.EstimatedGasCostWei)
	}
	for i, src := range q.Sources {
		fmt.Printf("hop %d:        %s %s pool %s\n", i+1, src.DexID, src.Version, src.PoolAddress.Hex())
	}
	if q.IsSplit {
		fmt.Printf("split across %d legs:\n", len(q.Splits))
		for _, leg := range q.Splits {
			fmt.Printf("  %5d bps  %s -> %s via %s\n",
				leg.RatioBps, leg.Quote.AmountIn, leg.Quote.AmountOut, leg.Quote.Sources[0].DexID)
		}
	}
	if len(q.Offers) > 0 {
		fmt.Printf("alternatives: %d\n", len(q.Offers))
	}
}

var quoteCmd = &cobra.Command{
	Use:               "quote <tokenIn> <tokenOut> <amountIn>",
	Short:             "Find the best gas-adjusted route for a swap",
	Args:              cobra.MinimumNArgs(3),
	PersistentPreRunE: ensureEngine,
	RunE:              runQuote,
}

func init() {
	quoteCmd.Flags().StringVar(&quoteChain, "chain", "", "chain key (default from config)")
	quoteCmd.Flags().StringVar(&quoteVersion, "version", string(core.PreferAuto), "pool version preference: auto|v2|v3")
	quoteCmd.Flags().BoolVar(&quoteSplit, "split", false, "search split routes")
	quoteCmd.Flags().BoolVar(&quoteMultiHop, "force-multihop", false, "skip the direct pass")
	quoteCmd.Flags().BoolVar(&quoteAsJSON, "json", false, "emit raw JSON")
	quoteCmd.Flags().IntVar(&quoteMaxOffers, "max-offers", 0, "alternatives to attach (0 = config default)")
}

// QuoteCmd exported for index.go
var QuoteCmd = quoteCmd
