package main

import (
	"context"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/cobra"

	"github.com/klingon-exchange/dashwallet/internal/backend"
	"github.com/klingon-exchange/dashwallet/internal/storage"
	"github.com/klingon-exchange/dashwallet/internal/wallet"
	"github.com/klingon-exchange/dashwallet/pkg/helpers"
)

// openService connects to the node, opens the ledger and returns a wallet
// service over both. The returned func releases them.
func (a *app) openService(ctx context.Context) (*wallet.Service, func(), error) {
	nodeCfg := a.cfg.NodeConfig(a.params)
	client := backend.NewNodeClient(nodeCfg, a.params)
	if err := client.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("node %s: %w", nodeCfg.URL, err)
	}
	a.log.Debug("Connected to node", "url", nodeCfg.URL, "network", a.params.Network)

	store, err := storage.New(&storage.Config{DataDir: a.cfg.Storage.DataDir})
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	if err := store.BindNetwork(string(a.params.Network)); err != nil {
		store.Close()
		client.Close()
		return nil, nil, err
	}

	svc := wallet.NewService(&wallet.ServiceConfig{
		Params: a.params,
		Node:   client,
		Store:  store,
		Logger: a.log.Component("wallet"),
	})

	return svc, func() {
		store.Close()
		client.Close()
	}, nil
}

func (a *app) watchCmd() *cobra.Command {
	var (
		label  string
		rescan bool
	)

	cmd := &cobra.Command{
		Use:   "watch <xpub> <path>",
		Short: "Derive an address below an xpub and import it into the node as watch-only",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := parsePathArg(args[1])
			if err != nil {
				return err
			}

			svc, closeFn, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			record, err := svc.WatchAddress(cmd.Context(), args[0], path, label, rescan)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), record.Address)
			return nil
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "label stored with the address in the node")
	cmd.Flags().BoolVar(&rescan, "rescan", false, "rescan the chain for past payments (slow)")
	return cmd
}

func (a *app) sendCmd() *cobra.Command {
	var (
		sweep      bool
		fee        string
		minConf    int
		dryRun     bool
		passphrase bool
	)

	cmd := &cobra.Command{
		Use:   "send <path> <destination> [amount]",
		Short: "Spend the coins of the address at a path",
		Long: `Spend every coin held by the address at path (relative to the root) to
destination. The transaction has a single output: amount, in DASH, is paid to
destination and the rest of the coins goes to the miner. With --sweep the
output is the whole balance minus --fee.

The transaction is broadcast exactly once. With --dry-run it is only signed
and printed.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := parsePathArg(args[0])
			if err != nil {
				return err
			}

			req := &wallet.SendRequest{
				Path:        path,
				Destination: args[1],
				Sweep:       sweep,
				Fee:         btcutil.Amount(a.cfg.Wallet.SweepFee),
				MinConf:     a.cfg.Wallet.MinConf,
			}
			if cmd.Flags().Changed("min-conf") {
				req.MinConf = minConf
			}
			if fee != "" {
				if req.Fee, err = helpers.ParseDash(fee); err != nil {
					return fmt.Errorf("fee: %w", err)
				}
			}

			switch {
			case sweep && len(args) == 3:
				return fmt.Errorf("--sweep and an amount are mutually exclusive")
			case !sweep && len(args) < 3:
				return fmt.Errorf("amount or --sweep is required")
			case !sweep:
				if req.Amount, err = helpers.ParseDash(args[2]); err != nil {
					return fmt.Errorf("amount: %w", err)
				}
			}

			mnemonic, pass, err := newPrompter(cmd).Mnemonic(passphrase)
			if err != nil {
				return err
			}

			svc, closeFn, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := svc.Unlock(mnemonic, pass); err != nil {
				return err
			}
			defer svc.Lock()

			out := cmd.OutOrStdout()
			if dryRun {
				signed, err := svc.BuildAndSign(cmd.Context(), req)
				if err != nil {
					return err
				}
				printSigned(out, signed)
				fmt.Fprintf(out, "hex:         %s\n", signed.Hex)
				return nil
			}

			result, err := svc.Send(cmd.Context(), req)
			if result != nil {
				printSigned(out, result.SignedTx)
				fmt.Fprintf(out, "status:      %s\n", result.Status)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&sweep, "sweep", false, "send the whole balance minus the fee")
	cmd.Flags().StringVar(&fee, "fee", "", "fee in DASH for --sweep (default from config)")
	cmd.Flags().IntVar(&minConf, "min-conf", 1, "minimum confirmations of spent coins")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "sign and print without broadcasting")
	cmd.Flags().BoolVar(&passphrase, "passphrase", false, "prompt for a BIP39 passphrase")
	return cmd
}

// printSigned writes amounts with all eight decimals so the columns line up.
func printSigned(w io.Writer, signed *wallet.SignedTx) {
	fmt.Fprintf(w, "txid:        %s\n", signed.TxID)
	fmt.Fprintf(w, "source:      %s\n", signed.Source)
	fmt.Fprintf(w, "destination: %s\n", signed.Destination)
	fmt.Fprintf(w, "inputs:      %d (%s DASH)\n", signed.Inputs, helpers.FormatDashFixed(signed.InputTotal))
	fmt.Fprintf(w, "amount:      %s DASH\n", helpers.FormatDashFixed(signed.Amount))
	fmt.Fprintf(w, "fee:         %s DASH\n", helpers.FormatDashFixed(signed.Fee))
}
