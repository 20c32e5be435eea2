package wallet

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/klingon-exchange/dashwallet/internal/backend"
	"github.com/klingon-exchange/dashwallet/internal/chain"
)

// TxState is the position of an Assembler in its build sequence.
type TxState int

const (
	StateEmpty TxState = iota
	StateInputsAdded
	StateOutputsAdded
	StateSigned
)

func (s TxState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateInputsAdded:
		return "inputs_added"
	case StateOutputsAdded:
		return "outputs_added"
	case StateSigned:
		return "signed"
	default:
		return fmt.Sprintf("TxState(%d)", int(s))
	}
}

// Assembler builds a single-destination P2PKH transaction in the order
// inputs, output, signature. It computes no fee and adds no change output:
// whatever the inputs hold above the output amount goes to the miner.
//
// An Assembler is not safe for concurrent use.
type Assembler struct {
	params *chain.Params
	tx     *wire.MsgTx
	state  TxState

	// Coins spent by the inputs, keyed by outpoint.
	prevOuts   map[wire.OutPoint]*wire.TxOut
	coins      []backend.Coin
	inputTotal btcutil.Amount
	amount     btcutil.Amount
}

// NewAssembler returns an empty assembler for params.
func NewAssembler(params *chain.Params) *Assembler {
	return &Assembler{
		params:   params,
		tx:       wire.NewMsgTx(wire.TxVersion),
		state:    StateEmpty,
		prevOuts: make(map[wire.OutPoint]*wire.TxOut),
	}
}

// State returns the current build state.
func (a *Assembler) State() TxState { return a.state }

// InputTotal returns the sum of the coins added as inputs.
func (a *Assembler) InputTotal() btcutil.Amount { return a.inputTotal }

// Coins returns the coins spent by the inputs, in input order.
func (a *Assembler) Coins() []backend.Coin {
	return append([]backend.Coin(nil), a.coins...)
}

// Fee returns the implicit miner fee, inputs minus output.
func (a *Assembler) Fee() btcutil.Amount { return a.inputTotal - a.amount }

// AddInputsFromCoins adds one input for every coin whose address equals
// sourceAddress. Coins paying elsewhere are ignored. It returns the number of
// inputs added.
func (a *Assembler) AddInputsFromCoins(coins []backend.Coin, sourceAddress string) (int, error) {
	if a.state != StateEmpty {
		return 0, fmt.Errorf("%w: cannot add inputs in state %s", ErrInvalidState, a.state)
	}

	if _, err := DecodeAddress(sourceAddress, a.params); err != nil {
		return 0, fmt.Errorf("invalid source address: %w", err)
	}

	var (
		txIns    []*wire.TxIn
		prevOuts = make(map[wire.OutPoint]*wire.TxOut)
		used     []backend.Coin
		total    btcutil.Amount
	)

	for _, coin := range coins {
		if coin.Address != sourceAddress {
			continue
		}

		txHash, err := chainhash.NewHashFromStr(coin.TxID)
		if err != nil {
			return 0, fmt.Errorf("invalid txid %s: %w", coin.TxID, err)
		}
		if coin.Amount <= 0 {
			return 0, fmt.Errorf("%w: coin %s has value %d", ErrInvalidAmount, coin.Outpoint(), coin.Amount)
		}
		pkScript, err := hex.DecodeString(coin.ScriptPubKey)
		if err != nil {
			return 0, fmt.Errorf("invalid script for coin %s: %w", coin.Outpoint(), err)
		}

		outpoint := wire.NewOutPoint(txHash, coin.Vout)
		if _, dup := prevOuts[*outpoint]; dup {
			return 0, fmt.Errorf("duplicate coin %s", outpoint)
		}

		txIns = append(txIns, wire.NewTxIn(outpoint, nil, nil))
		prevOuts[*outpoint] = wire.NewTxOut(int64(coin.Amount), pkScript)
		used = append(used, coin)
		total += coin.Amount
	}

	if len(txIns) == 0 {
		return 0, fmt.Errorf("%w: no coins for %s", ErrInsufficientFunds, sourceAddress)
	}

	for _, txIn := range txIns {
		a.tx.AddTxIn(txIn)
	}
	a.prevOuts = prevOuts
	a.coins = used
	a.inputTotal = total
	a.state = StateInputsAdded
	return len(a.tx.TxIn), nil
}

// AddOutput adds the single output paying amount to destination.
func (a *Assembler) AddOutput(destination string, amount btcutil.Amount) error {
	if a.state != StateInputsAdded {
		return fmt.Errorf("%w: cannot add output in state %s", ErrInvalidState, a.state)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if amount > a.inputTotal {
		return fmt.Errorf("%w: output %d exceeds inputs %d duffs", ErrInsufficientFunds, amount, a.inputTotal)
	}

	script, err := AddressScript(destination, a.params)
	if err != nil {
		return fmt.Errorf("invalid destination address: %w", err)
	}

	a.tx.AddTxOut(wire.NewTxOut(int64(amount), script))
	a.amount = amount
	a.state = StateOutputsAdded
	return nil
}

// Sign signs every input with privKey. coins must be exactly the coins the
// inputs were built from and each must pay to the P2PKH script of privKey;
// otherwise ErrCoinMismatch is returned and the transaction is left unsigned.
// Each signature is checked with the script engine before returning.
func (a *Assembler) Sign(coins []backend.Coin, privKey *btcec.PrivateKey) error {
	if a.state != StateOutputsAdded {
		return fmt.Errorf("%w: cannot sign in state %s", ErrInvalidState, a.state)
	}

	keyScript, err := p2pkhScript(privKey.PubKey(), a.params)
	if err != nil {
		return err
	}

	if err := a.matchCoins(coins, keyScript); err != nil {
		return err
	}

	tx := a.tx.Copy()
	fetcher := txscript.NewMultiPrevOutFetcher(a.prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for i, txIn := range tx.TxIn {
		prevOut := a.prevOuts[txIn.PreviousOutPoint]

		sigScript, err := txscript.SignatureScript(tx, i, prevOut.PkScript, txscript.SigHashAll, privKey, true)
		if err != nil {
			return fmt.Errorf("failed to sign input %d: %w", i, err)
		}
		txIn.SignatureScript = sigScript
	}

	for i, txIn := range tx.TxIn {
		prevOut := a.prevOuts[txIn.PreviousOutPoint]

		vm, err := txscript.NewEngine(prevOut.PkScript, tx, i,
			txscript.StandardVerifyFlags, nil, sigHashes, prevOut.Value, fetcher)
		if err != nil {
			return fmt.Errorf("failed to create script engine for input %d: %w", i, err)
		}
		if err := vm.Execute(); err != nil {
			return fmt.Errorf("signature check failed for input %d: %w", i, err)
		}
	}

	a.tx = tx
	a.state = StateSigned
	return nil
}

func (a *Assembler) matchCoins(coins []backend.Coin, keyScript []byte) error {
	if len(coins) != len(a.tx.TxIn) {
		return fmt.Errorf("%w: %d coins for %d inputs", ErrCoinMismatch, len(coins), len(a.tx.TxIn))
	}

	seen := make(map[wire.OutPoint]bool, len(coins))
	for _, coin := range coins {
		txHash, err := chainhash.NewHashFromStr(coin.TxID)
		if err != nil {
			return fmt.Errorf("%w: invalid txid %s", ErrCoinMismatch, coin.TxID)
		}
		outpoint := wire.OutPoint{Hash: *txHash, Index: coin.Vout}

		prevOut, ok := a.prevOuts[outpoint]
		if !ok || seen[outpoint] {
			return fmt.Errorf("%w: coin %s is not an input", ErrCoinMismatch, outpoint)
		}
		seen[outpoint] = true

		pkScript, err := hex.DecodeString(coin.ScriptPubKey)
		if err != nil {
			return fmt.Errorf("%w: invalid script for %s", ErrCoinMismatch, outpoint)
		}
		if int64(coin.Amount) != prevOut.Value || !bytes.Equal(pkScript, prevOut.PkScript) {
			return fmt.Errorf("%w: coin %s differs from the input it funds", ErrCoinMismatch, outpoint)
		}
		if !bytes.Equal(pkScript, keyScript) {
			return fmt.Errorf("%w: coin %s is not spendable by this key", ErrCoinMismatch, outpoint)
		}
	}

	return nil
}

// Tx returns a copy of the transaction in its current state.
func (a *Assembler) Tx() *wire.MsgTx { return a.tx.Copy() }

// Serialize returns the signed transaction bytes.
func (a *Assembler) Serialize() ([]byte, error) {
	if a.state != StateSigned {
		return nil, fmt.Errorf("%w: transaction is %s", ErrInvalidState, a.state)
	}

	var buf bytes.Buffer
	buf.Grow(a.tx.SerializeSize())
	if err := a.tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize: %w", err)
	}
	return buf.Bytes(), nil
}

// Hex returns the signed transaction as hex, ready for sendrawtransaction.
func (a *Assembler) Hex() (string, error) {
	raw, err := a.Serialize()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// TxID returns the id of the signed transaction.
func (a *Assembler) TxID() (string, error) {
	if a.state != StateSigned {
		return "", fmt.Errorf("%w: transaction is %s", ErrInvalidState, a.state)
	}
	return a.tx.TxHash().String(), nil
}

// SignedTx is a signed transaction ready for broadcast.
type SignedTx struct {
	TxID        string         `json:"txid"`
	Hex         string         `json:"hex"`
	Source      string         `json:"source"`
	Destination string         `json:"destination"`
	Inputs      int            `json:"inputs"`
	InputTotal  btcutil.Amount `json:"input_total"`
	Amount      btcutil.Amount `json:"amount"`
	Fee         btcutil.Amount `json:"fee"`
}

// BuildAndSign spends every coin of sourceAddress to destination in one
// step. The difference between the coins and amount is the miner fee.
func BuildAndSign(
	coins []backend.Coin,
	sourceAddress string,
	destination string,
	amount btcutil.Amount,
	privKey *btcec.PrivateKey,
	params *chain.Params,
) (*SignedTx, error) {
	a := NewAssembler(params)

	n, err := a.AddInputsFromCoins(coins, sourceAddress)
	if err != nil {
		return nil, err
	}
	if err := a.AddOutput(destination, amount); err != nil {
		return nil, err
	}
	if err := a.Sign(a.Coins(), privKey); err != nil {
		return nil, err
	}

	txHex, err := a.Hex()
	if err != nil {
		return nil, err
	}
	txID, err := a.TxID()
	if err != nil {
		return nil, err
	}

	return &SignedTx{
		TxID:        txID,
		Hex:         txHex,
		Source:      sourceAddress,
		Destination: destination,
		Inputs:      n,
		InputTotal:  a.InputTotal(),
		Amount:      amount,
		Fee:         a.Fee(),
	}, nil
}

func p2pkhScript(pub *btcec.PublicKey, params *chain.Params) ([]byte, error) {
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), params.ChainCfg())
	if err != nil {
		return nil, fmt.Errorf("failed to create P2PKH address: %w", err)
	}
	return txscript.PayToAddrScript(addr)
}
