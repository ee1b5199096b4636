package cli

// cmd/cli/engine.go – shared engine bootstrap and argument parsing for the
// router CLI. Commands resolve the engine lazily so that `aequi help`
// never reads the chain registry or builds chain clients.

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	core "aequi-router/core"
	config "aequi-router/pkg/config"
)

var routerEngine *core.Engine

func ensureEngine(cmd *cobra.Command, _ []string) error {
	if routerEngine != nil {
		return nil
	}
	if e := core.CurrentEngine(); e != nil {
		routerEngine = e
		return nil
	}
	registry := config.AppConfig.Chains.RegistryFile
	if registry == "" {
		return errors.New("configuration not loaded")
	}
	chains, err := core.LoadChainRegistry(registry)
	if err != nil {
		return err
	}
	e, err := core.InitEngine(chains, log.StandardLogger())
	if err != nil {
		return err
	}
	routerEngine = e
	return nil
}

func parseAddressArg(s string) (common.Address, error) {
	if strings.EqualFold(s, "native") {
		return core.NativeTokenAddress, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("bad address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAmountArg(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("bad amount %q", s)
	}
	return v, nil
}

func chainKeyOrDefault(key string) string {
	if key != "" {
		return key
	}
	return config.AppConfig.Chains.DefaultChain
}
