package state

import (
	"github.com/minicoin/minicoin/foundation/blockchain/database"
)

// SubmitWalletTransaction accepts a transaction from a wallet for
// inclusion. Accepted transactions are shared with the known peers.
func (s *State) SubmitWalletTransaction(signedTx database.SignedTx) error {
	s.evHandler("state: SubmitWalletTransaction: started: tx[%s]", signedTx)

	if err := s.validateTransaction(signedTx); err != nil {
		return err
	}

	tx := database.NewBlockTx(signedTx)

	isNew, err := s.mempool.Upsert(tx)
	if err != nil {
		return err
	}

	if isNew {
		s.Worker.SignalShareTx(tx)
	}
	s.Worker.SignalStartMining()

	return nil
}

// SubmitNodeTransaction accepts a transaction shared by a peer node for
// inclusion. It is not re-shared, the submitting wallet's node already
// flooded it.
func (s *State) SubmitNodeTransaction(tx database.BlockTx) error {
	s.evHandler("state: SubmitNodeTransaction: started: tx[%s]", tx)

	if err := s.validateTransaction(tx.SignedTx); err != nil {
		return err
	}

	if _, err := s.mempool.Upsert(tx); err != nil {
		return err
	}

	s.Worker.SignalStartMining()

	return nil
}
