package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/klingon-exchange/dashwallet/internal/wallet"
)

// parsePathArg parses a key path argument. "m" and "" name the root.
func parsePathArg(text string) (wallet.KeyPath, error) {
	if text = strings.TrimSpace(text); text == "" || text == "m" || text == "M" {
		return wallet.KeyPath{}, nil
	}
	return wallet.ParseKeyPath(text)
}

// openWallet prompts for a mnemonic and returns the wallet it derives.
func (a *app) openWallet(cmd *cobra.Command, askPassphrase bool) (*wallet.Wallet, error) {
	mnemonic, passphrase, err := newPrompter(cmd).Mnemonic(askPassphrase)
	if err != nil {
		return nil, err
	}
	return wallet.NewFromMnemonic(mnemonic, passphrase, a.params)
}

func (a *app) mnemonicCmd() *cobra.Command {
	var (
		words int
		check bool
	)

	cmd := &cobra.Command{
		Use:   "mnemonic",
		Short: "Generate a new BIP39 mnemonic",
		Long: `Generate a new English BIP39 mnemonic. The mnemonic is printed once and
never stored; write it down.

With --check, read a mnemonic from the input and report whether it is valid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if check {
				mnemonic, err := newPrompter(cmd).Secret("Enter mnemonic: ")
				if err != nil {
					return err
				}
				if !wallet.ValidateMnemonic(mnemonic) {
					return fmt.Errorf("%w: checksum or word list mismatch", wallet.ErrInvalidMnemonic)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "valid")
				return nil
			}

			mnemonic, err := wallet.GenerateMnemonicWords(words)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), mnemonic)
			return nil
		},
	}

	cmd.Flags().IntVar(&words, "words", 12, "number of words: 12, 15, 18, 21 or 24")
	cmd.Flags().BoolVar(&check, "check", false, "validate a mnemonic instead of generating one")
	return cmd
}

func (a *app) xpubCmd() *cobra.Command {
	var (
		passphrase bool
		bip44      bool
		account    uint32
	)

	cmd := &cobra.Command{
		Use:   "xpub [path]",
		Short: "Print the extended public key at a path",
		Long: `Print the extended public key at path (default: the root). Hand it to
systems that should derive addresses without holding keys.

With --bip44, the path is m/44'/coin'/account' for the selected network.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				path wallet.KeyPath
				err  error
			)
			if len(args) == 1 {
				if path, err = parsePathArg(args[0]); err != nil {
					return err
				}
			}

			w, err := a.openWallet(cmd, passphrase)
			if err != nil {
				return err
			}

			if bip44 {
				if len(args) == 1 {
					return fmt.Errorf("--bip44 and a path are mutually exclusive")
				}
				path = w.BIP44Path(account, 0, 0)[:3]
			}

			xpub, err := w.AccountXPub(path)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), xpub)
			return nil
		},
	}

	cmd.Flags().BoolVar(&passphrase, "passphrase", false, "prompt for a BIP39 passphrase")
	cmd.Flags().BoolVar(&bip44, "bip44", false, "use the BIP44 account path")
	cmd.Flags().Uint32Var(&account, "account", 0, "BIP44 account number")
	return cmd
}

func (a *app) deriveCmd() *cobra.Command {
	var (
		xpub       string
		passphrase bool
		showKey    bool
	)

	cmd := &cobra.Command{
		Use:   "derive <path>",
		Short: "Derive the address at a path",
		Long: `Derive the P2PKH address at path. With --xpub the path is relative to that
extended public key, no mnemonic is needed and the path must not be hardened.
Otherwise the mnemonic is prompted for and the path is relative to the root.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := parsePathArg(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if xpub != "" {
				if showKey {
					return fmt.Errorf("--show-key needs the mnemonic, not an xpub")
				}
				address, err := wallet.DeriveChildAddress(xpub, path, a.params)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, address)
				return nil
			}

			w, err := a.openWallet(cmd, passphrase)
			if err != nil {
				return err
			}
			node, err := w.DeriveNode(path)
			if err != nil {
				return err
			}
			address, err := wallet.PubKeyAddress(node.PublicKey(), a.params)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, address)

			if showKey {
				wif, err := wallet.EncodeWIF(node.PrivateKey(), a.params)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "pubkey: %s\n", hex.EncodeToString(node.PublicKey().SerializeCompressed()))
				fmt.Fprintf(out, "wif:    %s\n", wif)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&xpub, "xpub", "", "derive below this extended public key")
	cmd.Flags().BoolVar(&passphrase, "passphrase", false, "prompt for a BIP39 passphrase")
	cmd.Flags().BoolVar(&showKey, "show-key", false, "also print the public key and WIF private key")
	return cmd
}
