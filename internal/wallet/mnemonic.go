package wallet

import (
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// DefaultMnemonicWords is the length of a freshly generated mnemonic.
const DefaultMnemonicWords = 12

// GenerateMnemonic generates a new 12-word BIP39 mnemonic.
func GenerateMnemonic() (string, error) {
	return GenerateMnemonicWords(DefaultMnemonicWords)
}

// GenerateMnemonicWords generates a BIP39 mnemonic of 12, 15, 18, 21 or 24 words.
func GenerateMnemonicWords(words int) (string, error) {
	if words < 12 || words > 24 || words%3 != 0 {
		return "", fmt.Errorf("%w: unsupported word count %d", ErrInvalidMnemonic, words)
	}

	// 11 bits per word, one checksum bit per 32 bits of entropy
	entropy, err := bip39.NewEntropy(words * 32 / 3)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate mnemonic: %w", err)
	}

	return mnemonic, nil
}

// ValidateMnemonic checks if a mnemonic is valid.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(normalizeMnemonic(mnemonic))
}

// SeedFromMnemonic returns the 64-byte BIP39 seed for a mnemonic.
// The passphrase is optional (can be empty string).
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	mnemonic = normalizeMnemonic(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	return bip39.NewSeed(mnemonic, passphrase), nil
}

func normalizeMnemonic(mnemonic string) string {
	return strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
}
