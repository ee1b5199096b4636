package cli

import "github.com/spf13/cobra"

// RegisterRoutes attaches every command group defined in the cli package
// to the provided root command. Each module exposes its own root command
// (e.g. QuoteCmd) so the main binary can invoke them like `aequi quote`.
func RegisterRoutes(root *cobra.Command) {
	root.AddCommand(
		QuoteCmd,
		PoolsCmd,
		PlanCmd,
		TokensCmd,
	)
}
