package chain

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/crypto/scrypt"
)

// GenesisBlock decodes the network's genesis block.
func (p *Params) GenesisBlock() (*wire.MsgBlock, error) {
	raw, err := hex.DecodeString(p.GenesisHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode genesis hex: %w", err)
	}

	var block wire.MsgBlock
	if err := block.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to deserialize genesis block: %w", err)
	}

	return &block, nil
}

// PoWHash computes scrypt(N=1024, r=1, p=1) over the serialized 80-byte
// header, keyed with the header itself.
func PoWHash(header *wire.BlockHeader) (chainhash.Hash, error) {
	var buf bytes.Buffer
	if err := header.Serialize(&buf); err != nil {
		return chainhash.Hash{}, fmt.Errorf("failed to serialize header: %w", err)
	}

	headerBytes := buf.Bytes()
	derived, err := scrypt.Key(headerBytes, headerBytes, 1024, 1, 1, chainhash.HashSize)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("scrypt: %w", err)
	}

	var h chainhash.Hash
	copy(h[:], derived)
	return h, nil
}
