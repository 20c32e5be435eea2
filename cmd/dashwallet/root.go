package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/klingon-exchange/dashwallet/internal/chain"
	"github.com/klingon-exchange/dashwallet/internal/config"
	"github.com/klingon-exchange/dashwallet/pkg/logging"
)

// app holds the global flags and the state resolved from them before any
// subcommand runs.
type app struct {
	dataDir    string
	configFile string
	testnet    bool
	logLevel   string

	cfg    *config.Config
	params *chain.Params
	log    *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "dashwallet",
		Short: "HD wallet toolkit for Dash",
		Long: `dashwallet derives Dash keys and addresses from a BIP39 mnemonic, issues
watch-only customer addresses from an extended public key and spends their
coins through a Dash Core node.

Example:
  dashwallet mnemonic
  dashwallet xpub --testnet
  dashwallet derive 1234567/0 --xpub tpub... --testnet
  dashwallet watch tpub... 1234567/0 --label "Customer 1234567" --testnet
  dashwallet send 1234567/0 yRd4FhXfVGHXpsuZXPNkMrfD9GVj46pnjt --sweep --testnet`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", config.DefaultDataDir, "data directory")
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file path (default: <data-dir>/config.yaml)")
	root.PersistentFlags().BoolVar(&a.testnet, "testnet", false, "use Dash testnet (separate data directory)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	root.AddCommand(
		a.mnemonicCmd(),
		a.xpubCmd(),
		a.deriveCmd(),
		a.watchCmd(),
		a.sendCmd(),
		a.paramsCmd(),
		a.exampleCmd(),
		a.serveCmd(),
	)

	root.SetErr(os.Stderr)
	return root
}

// init resolves the config, network and logger from the global flags.
func (a *app) init(cmd *cobra.Command) error {
	dataDir := a.dataDir
	if a.testnet {
		dataDir = filepath.Join(dataDir, "testnet")
	}

	var (
		cfg *config.Config
		err error
	)
	if a.configFile != "" {
		cfg, err = config.LoadFile(a.configFile)
	} else {
		cfg, err = config.LoadConfig(dataDir)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Flags take precedence over the config file
	cfg.Storage.DataDir = dataDir
	if a.testnet {
		cfg.Network = string(chain.Testnet)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	params, err := cfg.Params()
	if err != nil {
		return err
	}

	logCfg := cfg.Logging
	logCfg.Output = cmd.ErrOrStderr()
	a.log = logging.New(&logCfg)
	logging.SetDefault(a.log)

	a.cfg = cfg
	a.params = params
	return nil
}
