package main

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/cobra"

	"github.com/klingon-exchange/dashwallet/internal/wallet"
	"github.com/klingon-exchange/dashwallet/pkg/helpers"
)

// exampleFee is the miner fee the walkthrough subtracts from the entered
// amount: 0.00001 DASH.
const exampleFee = btcutil.Amount(1000)

func (a *app) exampleCmd() *cobra.Command {
	var (
		customerID uint32
		restore    bool
	)

	cmd := &cobra.Command{
		Use:   "example",
		Short: "Interactive walkthrough: issue a customer address and spend its coins",
		Long: `Walk through the full operator workflow against a running Dash Core node
(testnet recommended: dash-qt -server -testnet -rpcuser=... -rpcpassword=...):

  1. create a mnemonic (or enter one with --restore)
  2. derive the customer address <customer-id>/0 from the root xpub
  3. import it into the node as watch-only
  4. wait for you to fund it
  5. ask for a destination and an amount, subtract a 0.00001 DASH fee,
     sign a transaction spending the address's coins and broadcast it once`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			p := newPrompter(cmd)

			var (
				mnemonic string
				err      error
			)
			if restore {
				if mnemonic, _, err = p.Mnemonic(false); err != nil {
					return err
				}
			} else {
				if mnemonic, err = wallet.GenerateMnemonic(); err != nil {
					return err
				}
				fmt.Fprintf(out, "New mnemonic (write it down, it is not stored):\n\n  %s\n\n", mnemonic)
			}

			svc, closeFn, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := svc.Unlock(mnemonic, ""); err != nil {
				return err
			}
			defer svc.Lock()

			xpub, err := svc.AccountXPub(wallet.KeyPath{})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Root xpub: %s\n", xpub)

			// External chain of the customer's branch.
			path := wallet.KeyPath{customerID}.Append(0)
			record, err := svc.WatchAddress(ctx, xpub, path, fmt.Sprintf("Customer %d", customerID), false)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Now, go to another wallet and send some coins to address %s.\n", record.Address)
			if _, err := p.Line("Wait a few minutes for it to confirm, then press ENTER to continue."); err != nil {
				return err
			}

			dest, err := p.Line("Enter an address of yours to which you want to receive coins: ")
			if err != nil {
				return err
			}
			if _, err := wallet.DecodeAddress(dest, a.params); err != nil {
				return err
			}

			spendText, err := p.Line("Enter the amount to spend: ")
			if err != nil {
				return err
			}
			spend, err := helpers.ParseDash(spendText)
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}
			if spend <= exampleFee {
				return fmt.Errorf("%w: amount must exceed the %s DASH fee", helpers.ErrInvalidAmount, helpers.FormatDash(exampleFee))
			}

			result, err := svc.Send(ctx, &wallet.SendRequest{
				Path:        path,
				Destination: dest,
				Amount:      spend - exampleFee,
				MinConf:     a.cfg.Wallet.MinConf,
			})
			if result != nil {
				printSigned(out, result.SignedTx)
				fmt.Fprintf(out, "status:      %s\n", result.Status)
			}
			return err
		},
	}

	cmd.Flags().Uint32Var(&customerID, "customer-id", 1234567, "customer number used as the first path element")
	cmd.Flags().BoolVar(&restore, "restore", false, "enter an existing mnemonic instead of generating one")
	return cmd
}
