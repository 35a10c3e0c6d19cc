package types

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// TxType defines the purpose of a transaction.
type TxType byte

const (
	TxTypeDeposit  TxType = 0x01 // Credit the sender's balance
	TxTypeWithdraw TxType = 0x02 // Withdraw own funds, or sweep when sent by the admin
	TxTypeSetAdmin TxType = 0x03 // Hand the admin role to To
)

func (t TxType) String() string {
	switch t {
	case TxTypeDeposit:
		return "deposit"
	case TxTypeWithdraw:
		return "withdraw"
	case TxTypeSetAdmin:
		return "set_admin"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// ErrMissingSignature is returned by From when the transaction was never signed.
var ErrMissingSignature = errors.New("tx: missing signature")

// Transaction is a signed request against the ledger. The sender is never
// transmitted; it is recovered from the signature.
type Transaction struct {
	ChainID string        `json:"chainId"`
	Type    TxType        `json:"type"`
	Nonce   uint64        `json:"nonce"`
	To      hexutil.Bytes `json:"to,omitempty"`
	Value   *big.Int      `json:"value"`

	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
	V *big.Int `json:"v"`

	from *common.Address
}

type txSigningPayload struct {
	ChainID string
	Type    uint8
	Nonce   uint64
	To      []byte
	Value   *big.Int
}

// Hash returns the keccak256 digest of the RLP-encoded unsigned payload.
func (tx *Transaction) Hash() ([]byte, error) {
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("tx: negative value")
	}
	encoded, err := rlp.EncodeToBytes(txSigningPayload{
		ChainID: tx.ChainID,
		Type:    uint8(tx.Type),
		Nonce:   tx.Nonce,
		To:      tx.To,
		Value:   value,
	})
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(encoded), nil
}

func (tx *Transaction) Sign(privKey *ecdsa.PrivateKey) error {
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash, privKey)
	if err != nil {
		return err
	}
	tx.R = new(big.Int).SetBytes(sig[:32])
	tx.S = new(big.Int).SetBytes(sig[32:64])
	tx.V = new(big.Int).SetBytes([]byte{sig[64] + 27})
	tx.from = nil
	return nil
}

// From recovers the sender address from the signature. The result is cached.
func (tx *Transaction) From() (common.Address, error) {
	if tx.from != nil {
		return *tx.from, nil
	}
	if tx.R == nil || tx.S == nil || tx.V == nil {
		return common.Address{}, ErrMissingSignature
	}
	if tx.R.BitLen() > 256 || tx.S.BitLen() > 256 || !tx.V.IsUint64() || tx.V.Uint64() < 27 || tx.V.Uint64() > 28 {
		return common.Address{}, fmt.Errorf("tx: malformed signature")
	}
	hash, err := tx.Hash()
	if err != nil {
		return common.Address{}, err
	}
	sig := make([]byte, 65)
	tx.R.FillBytes(sig[:32])
	tx.S.FillBytes(sig[32:64])
	sig[64] = byte(tx.V.Uint64() - 27)
	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, err
	}
	from := crypto.PubkeyToAddress(*pubKey)
	tx.from = &from
	return from, nil
}
