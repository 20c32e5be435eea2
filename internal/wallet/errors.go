package wallet

import "errors"

// Errors returned by the derivation, encoding and signing functions.
var (
	ErrInvalidMnemonic    = errors.New("invalid mnemonic")
	ErrInvalidExtendedKey = errors.New("invalid extended key")
	ErrWrongNetwork       = errors.New("key belongs to another network")
	ErrInvalidPath        = errors.New("invalid key path")
	ErrHardenedFromPublic = errors.New("hardened derivation requires a private key")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidState       = errors.New("invalid transaction state")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrCoinMismatch       = errors.New("coins do not match transaction inputs")
	ErrWalletLocked       = errors.New("wallet is locked")
)
