package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	cli "aequi-router/cmd/cli"
	config "aequi-router/pkg/config"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		// A router without configuration cannot quote anything; bail out
		// before cobra parses a single flag.
		log.WithError(err).Fatal("configuration load failed")
	}
	if lvl, err := log.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(lvl)
	}

	rootCmd := &cobra.Command{
		Use:   "aequi",
		Short: "DEX aggregator routing engine",
	}
	cli.RegisterRoutes(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
