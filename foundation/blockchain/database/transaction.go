package database

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/minicoin/minicoin/foundation/blockchain/signature"
)

// Tx is the transactional information between two parties.
type Tx struct {
	ChainID    uint16    `json:"chain_id"`    // The chain id the transaction is bound to.
	ID         string    `json:"id"`          // Unique id making two otherwise identical transfers distinct.
	FromID     AccountID `json:"from"`        // Account sending the money.
	ToID       AccountID `json:"to"`          // Account receiving the benefit of the transaction.
	Value      uint64    `json:"value"`       // Monetary value received from this transaction.
	StorageFee uint64    `json:"storage_fee"` // Fee diverted to the storage account, derived from the value.
}

// NewTx constructs a new transaction.
func NewTx(chainID uint16, fromID AccountID, toID AccountID, value uint64, storageFee uint64) (Tx, error) {
	if !fromID.IsAccountID() {
		return Tx{}, fmt.Errorf("from account is not properly formatted")
	}
	if !toID.IsAccountID() {
		return Tx{}, fmt.Errorf("to account is not properly formatted")
	}

	tx := Tx{
		ChainID:    chainID,
		ID:         uuid.NewString(),
		FromID:     fromID,
		ToID:       toID,
		Value:      value,
		StorageFee: storageFee,
	}

	return tx, nil
}

// Sign uses the specified private key to sign the transaction.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {

	// Sign the transaction with the private key to produce a signature.
	v, r, s, err := signature.Sign(tx, privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	// Construct the signed transaction by adding the signature
	// in the [R|S|V] format.
	signedTx := SignedTx{
		Tx: tx,
		V:  v,
		R:  r,
		S:  s,
	}

	return signedTx, nil
}

// =============================================================================

// SignedTx is a signed version of the transaction. This is how clients like
// a wallet provide transactions for inclusion into the blockchain.
type SignedTx struct {
	Tx
	V *big.Int `json:"v"` // Recovery identifier, either 31 or 32 with minicoinID.
	R *big.Int `json:"r"` // First coordinate of the ECDSA signature.
	S *big.Int `json:"s"` // Second coordinate of the ECDSA signature.
}

// Validate verifies the transaction has a proper signature that conforms to
// our standards, that the signer is the claimed sender, and that the
// transaction data is well formed.
func (tx SignedTx) Validate(chainID uint16) error {
	if tx.ChainID != chainID {
		return fmt.Errorf("transaction invalid, wrong chain id, got %d, exp %d", tx.ChainID, chainID)
	}

	if tx.ID == "" {
		return fmt.Errorf("transaction invalid, missing unique id")
	}

	if tx.Value == 0 {
		return fmt.Errorf("transaction invalid, value must be greater than zero")
	}

	if !tx.FromID.IsAccountID() {
		return fmt.Errorf("invalid account for from account")
	}

	if !tx.ToID.IsAccountID() {
		return fmt.Errorf("invalid account for to account")
	}

	if tx.ToID == StorageAccountID {
		return fmt.Errorf("transaction invalid, the storage account can't receive transfers")
	}

	if tx.FromID == tx.ToID {
		return fmt.Errorf("transaction invalid, sending money to yourself, from %s, to %s", tx.FromID, tx.ToID)
	}

	if err := signature.VerifySignature(tx.V, tx.R, tx.S); err != nil {
		return err
	}

	// The signature must recover the account claiming to be the sender.
	fromID, err := tx.FromAccount()
	if err != nil {
		return err
	}
	if fromID != tx.FromID {
		return fmt.Errorf("signature recovered account %s, claimed sender %s", fromID, tx.FromID)
	}

	return nil
}

// FromAccount extracts the account id that signed the transaction.
func (tx SignedTx) FromAccount() (AccountID, error) {
	publicKey, err := signature.RecoverPublicKey(tx.Tx, tx.V, tx.R, tx.S)
	if err != nil {
		return "", err
	}

	return PublicKeyToAccountID(*publicKey), nil
}

// SignatureString returns the signature as a string.
func (tx SignedTx) SignatureString() string {
	return signature.SignatureString(tx.V, tx.R, tx.S)
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	return fmt.Sprintf("%s:%s", tx.FromID, tx.ID[:8])
}

// =============================================================================

// BlockTx represents the transaction as it's recorded inside a block. This
// includes the time the node accepted it.
type BlockTx struct {
	SignedTx
	TimeStamp uint64 `json:"timestamp"` // The time the transaction was received.
}

// NewBlockTx constructs a new block transaction.
func NewBlockTx(signedTx SignedTx) BlockTx {
	return BlockTx{
		SignedTx:  signedTx,
		TimeStamp: uint64(time.Now().UTC().Unix()),
	}
}
