package cli

// cmd/cli/plan.go – Cobra CLI that quotes a swap and serializes the winner
// into the executor calldata a signer would broadcast.

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	core "aequi-router/core"
	config "aequi-router/pkg/config"
)

var (
	planChain        string
	planRecipient    string
	planSlippageBps  int
	planDeadlineSec  int64
	planNativeIn     bool
	planNativeOut    bool
	planSplit        bool
	planMinAmountOut string
)

func runPlan(cmd *cobra.Command, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: plan <tokenIn> <tokenOut> <amountIn> --recipient <addr>")
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
	recipient, err := parseAddressArg(planRecipient)
	if err != nil {
		return fmt.Errorf("bad --recipient: %w", err)
	}

	chainKey := chainKeyOrDefault(planChain)
	quote, err := routerEngine.GetBestQuote(cmd.Context(), core.QuoteRequest{
		ChainKey:    chainKey,
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		AmountIn:    amountIn,
		Preference:  core.PreferAuto,
		EnableSplit: planSplit,
	})
	if err != nil {
		return err
	}
	if quote == nil {
		return fmt.Errorf("no route for identical tokens")
	}

	minOut := parseOptionalAmount(planMinAmountOut)
	slippage := planSlippageBps
	if slippage == 0 {
		slippage = config.AppConfig.Routing.SlippageBps
	}
	plan, err := routerEngine.BuildSwapPlan(cmd.Context(), chainKey, quote, minOut, recipient,
		slippage, planDeadlineSec, planNativeIn, planNativeOut)
	if err != nil {
		return err
	}

	fmt.Printf("executor:  %s\n", plan.To.Hex())
	fmt.Printf("value:     %s\n", plan.Value)
	fmt.Printf("pulls:     %d  approvals: %d  calls: %d  flush: %d\n",
		len(plan.Pulls), len(plan.Approvals), len(plan.Calls), len(plan.TokensToFlush))
	for i, c := range plan.Calls {
		inject := "none"
		if c.InjectToken != (common.Address{}) {
			inject = fmt.Sprintf("%s @ %d", c.InjectToken.Hex(), c.InjectOffset)
		}
		fmt.Printf("call %d:    %s (%d bytes, inject %s)\n", i+1, c.Target.Hex(), len(c.Data), inject)
	}
	fmt.Printf("calldata:  0x%s\n", hex.EncodeToString(plan.Data))
	return nil
}

func parseOptionalAmount(s string) *big.Int {
	if s == "" {
		return nil
	}
	amount, err := parseAmountArg(s)
	if err != nil {
		return nil
	}
	return amount
}

var planCmd = &cobra.Command{
	Use:               "plan <tokenIn> <tokenOut> <amountIn>",
	Short:             "Build executor calldata for the best route",
	Args:              cobra.MinimumNArgs(3),
	PersistentPreRunE: ensureEngine,
	RunE:              runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planChain, "chain", "", "chain key (default from config)")
	planCmd.Flags().StringVar(&planRecipient, "recipient", "", "swap output recipient (required)")
	planCmd.Flags().IntVar(&planSlippageBps, "slippage-bps", 0, "slippage tolerance (0 = config default)")
	planCmd.Flags().Int64Var(&planDeadlineSec, "deadline-seconds", 0, "swap deadline window")
	planCmd.Flags().BoolVar(&planNativeIn, "native-in", false, "pay with the native coin")
	planCmd.Flags().BoolVar(&planNativeOut, "native-out", false, "receive the native coin")
	planCmd.Flags().BoolVar(&planSplit, "split", false, "allow split routes")
	planCmd.Flags().StringVar(&planMinAmountOut, "min-out", "", "explicit minimum output (smallest unit)")
	_ = planCmd.MarkFlagRequired("recipient")
}

// PlanCmd exported for index.go
var PlanCmd = planCmd
