package database

import "errors"

// Set of errors the validation rules can return. The node reports these to
// clients verbatim and uses them to decide between rejecting a block and
// starting fork resolution. None of them are fatal to the node.
var (
	// ErrInsufficientFunds is returned when a sender can't cover the
	// transaction value plus the storage fee.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidSignature is returned when a transaction signature doesn't
	// verify or doesn't recover the claimed sender.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInvalidLink is returned when a block doesn't link to the current
	// tip of the chain.
	ErrInvalidLink = errors.New("block doesn't link to the previous block")

	// ErrInvalidProofOfWork is returned when a block hash doesn't satisfy
	// the difficulty predicate.
	ErrInvalidProofOfWork = errors.New("proof of work not satisfied")

	// ErrInvalidTransaction is returned when a block carries a transaction
	// that doesn't validate against the chain state at its position.
	ErrInvalidTransaction = errors.New("invalid transaction in block")

	// ErrChainValidation is returned when a candidate chain fails full
	// validation and can't be adopted.
	ErrChainValidation = errors.New("chain failed validation")
)
