package cli

// cmd/cli/tokens.go – Cobra CLI for the token metadata cache.

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tokensChain string

func runTokenInfo(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: tokens info <address>")
	}
	addr, err := parseAddressArg(args[0])
	if err != nil {
		return err
	}
	token, err := routerEngine.TokenMetadata(cmd.Context(), chainKeyOrDefault(tokensChain), addr)
	if err != nil {
		return err
	}
	fmt.Printf("address:  %s\n", token.Address.Hex())
	fmt.Printf("symbol:   %s\n", token.Symbol)
	fmt.Printf("name:     %s\n", token.Name)
	fmt.Printf("decimals: %d\n", token.Decimals)
	if token.TotalSupply != nil {
		fmt.Printf("supply:   %s\n", token.TotalSupply)
	}
	return nil
}

var tokensCmd = &cobra.Command{
	Use:               "tokens",
	Short:             "Token metadata utilities",
	PersistentPreRunE: ensureEngine,
}

var tokensInfoCmd = &cobra.Command{
	Use:   "info <address>",
	Short: "Look up symbol, name, decimals and supply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTokenInfo,
}

func init() {
	tokensCmd.AddCommand(tokensInfoCmd)
	tokensCmd.PersistentFlags().StringVar(&tokensChain, "chain", "", "chain key (default from config)")
}

// TokensCmd exported for index.go
var TokensCmd = tokensCmd
