package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/cobra"

	"github.com/klingon-exchange/dashwallet/internal/rpc"
)

func (a *app) serveCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON-RPC and WebSocket service",
		Long: `Run the wallet as a JSON-RPC 2.0 service (POST /) with a WebSocket event
stream (GET /ws). The wallet starts locked; call wallet_unlock with the
mnemonic to enable private derivation and spending.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := a.log
			if listen == "" {
				listen = a.cfg.API.ListenAddr
			}

			svc, closeFn, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			log.Info("Wallet service initialized", "network", a.params.Network, "data_dir", a.cfg.Storage.DataDir)

			server := rpc.NewServer(&rpc.ServerConfig{
				Wallet:         svc,
				AllowedOrigins: a.cfg.API.AllowedOrigins,
				SweepFee:       btcutil.Amount(a.cfg.Wallet.SweepFee),
				MinConf:        a.cfg.Wallet.MinConf,
				Logger:         log.Component("rpc"),
			})
			if err := server.Start(listen); err != nil {
				return err
			}

			a.printBanner(server.Addr())

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case <-sigCh:
			case <-cmd.Context().Done():
			}
			log.Info("Shutting down...")

			svc.Lock()
			if err := server.Stop(); err != nil {
				log.Error("Error stopping RPC server", "error", err)
			}

			log.Info("Goodbye!")
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "JSON-RPC API address (overrides config)")
	return cmd
}

func (a *app) printBanner(apiAddr string) {
	log := a.log
	networkLabel := "mainnet"
	if a.params.IsTestnet() {
		networkLabel = "TESTNET"
	}

	log.Info("")
	log.Info("=================================================")
	log.Infof("  Dash Wallet Service (%s)", networkLabel)
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  API: http://%s", apiAddr)
	log.Infof("  WS:  ws://%s/ws", apiAddr)
	log.Infof("  Node: %s", a.cfg.NodeConfig(a.params).URL)
	log.Infof("  Data dir: %s", a.cfg.Storage.DataDir)
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
