package database

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160"
)

// addressVersion is the version byte encoded into every account id. It
// pins the address format so ids from a different network never validate.
const addressVersion = 0x00

// StorageAccountID is the protocol owned account that collects the storage
// fee from large transactions. It has no key pair and can never be the
// recipient of a user transaction.
const StorageAccountID AccountID = "STORAGE"

// =============================================================================

// Account represents information stored in the database for an individual
// account.
type Account struct {
	AccountID AccountID
	Balance   uint64
}

// newAccount constructs a new account value for use.
func newAccount(accountID AccountID, balance uint64) Account {
	return Account{
		AccountID: accountID,
		Balance:   balance,
	}
}

// =============================================================================

// AccountID represents the address of an account on the chain. It is derived
// from the account's public key and carries a checksum so a corrupted id is
// detected instead of silently misdirecting funds.
type AccountID string

// ToAccountID converts a string to an AccountID and validates the string
// represents a properly derived address.
func ToAccountID(value string) (AccountID, error) {
	a := AccountID(value)
	if !a.IsAccountID() {
		return "", errors.New("invalid account format")
	}

	return a, nil
}

// PublicKeyToAccountID converts the public key to an account id. The key is
// hashed with SHA256 then RIPEMD160 and the digest is checksum encoded in
// base58, the same derivation Bitcoin uses.
func PublicKeyToAccountID(pk ecdsa.PublicKey) AccountID {
	sha := sha256.Sum256(crypto.FromECDSAPub(&pk))

	rip := ripemd160.New()
	rip.Write(sha[:])

	return AccountID(base58.CheckEncode(rip.Sum(nil), addressVersion))
}

// IsAccountID verifies whether the underlying data represents a valid
// checksum encoded account id.
func (a AccountID) IsAccountID() bool {

	// The storage account is protocol owned and has no derivation.
	if a == StorageAccountID {
		return true
	}

	digest, version, err := base58.CheckDecode(string(a))
	if err != nil {
		return false
	}

	return version == addressVersion && len(digest) == ripemd160.Size
}

// =============================================================================

// byAccount provides sorting support by the account id value.
type byAccount []Account

// Len returns the number of accounts in the list.
func (ba byAccount) Len() int {
	return len(ba)
}

// Less helps to sort the list by account id in ascending order to keep the
// accounts in a deterministic order for hashing.
func (ba byAccount) Less(i, j int) bool {
	return ba[i].AccountID < ba[j].AccountID
}

// Swap moves accounts in the order of the account id value.
func (ba byAccount) Swap(i, j int) {
	ba[i], ba[j] = ba[j], ba[i]
}
