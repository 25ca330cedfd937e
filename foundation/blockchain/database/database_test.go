package database_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/minicoin/minicoin/foundation/blockchain/database"
	"github.com/minicoin/minicoin/foundation/blockchain/database/storage/memory"
	"github.com/minicoin/minicoin/foundation/blockchain/genesis"
)

const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	minerHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	userHexKey  = "9f332e3700d8fc2446eaf6d15034cf96e0c2745e40353deef032a5dbf1dfed93"
)

var noEvents = func(v string, args ...any) {}

// testGenesis keeps the difficulty low so the tests mine in microseconds.
func testGenesis() genesis.Genesis {
	gen := genesis.Default()
	gen.Difficulty = 1
	return gen
}

func Test_Accounts(t *testing.T) {
	t.Log("Given the need to derive and validate account ids.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen deriving an account id from a public key.", testID)
		{
			pk, err := crypto.HexToECDSA(minerHexKey)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to parse the private key: %v", failed, testID, err)
			}

			accountID := database.PublicKeyToAccountID(pk.PublicKey)
			if !accountID.IsAccountID() {
				t.Fatalf("\t%s\tTest %d:\tShould produce a valid account id: %s", failed, testID, accountID)
			}
			t.Logf("\t%s\tTest %d:\tShould produce a valid account id.", success, testID)

			if _, err := database.ToAccountID(string(accountID)); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould round trip through ToAccountID: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould round trip through ToAccountID.", success, testID)
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen an account id is corrupted.", testID)
		{
			pk, err := crypto.HexToECDSA(minerHexKey)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to parse the private key: %v", failed, testID, err)
			}

			accountID := string(database.PublicKeyToAccountID(pk.PublicKey))

			// Flip one character so the checksum no longer matches.
			corrupt := []byte(accountID)
			if corrupt[5] != '2' {
				corrupt[5] = '2'
			} else {
				corrupt[5] = '3'
			}

			if _, err := database.ToAccountID(string(corrupt)); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject a corrupted account id.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a corrupted account id.", success, testID)
		}

		testID = 2
		t.Logf("\tTest %d:\tWhen validating the storage account.", testID)
		{
			if !database.StorageAccountID.IsAccountID() {
				t.Fatalf("\t%s\tTest %d:\tShould accept the storage account id.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the storage account id.", success, testID)
		}
	}
}

func Test_Transactions(t *testing.T) {
	gen := testGenesis()

	minerKey, err := crypto.HexToECDSA(minerHexKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to parse the miner key: %v", failed, err)
	}
	userKey, err := crypto.HexToECDSA(userHexKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to parse the user key: %v", failed, err)
	}

	minerID := database.PublicKeyToAccountID(minerKey.PublicKey)
	userID := database.PublicKeyToAccountID(userKey.PublicKey)

	t.Log("Given the need to validate signed transactions.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the transaction is properly signed.", testID)
		{
			tx, err := database.NewTx(gen.ChainID, minerID, userID, 74, gen.StorageFeeFor(74))
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to create the transaction: %v", failed, testID, err)
			}

			signedTx, err := tx.Sign(minerKey)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to sign the transaction: %v", failed, testID, err)
			}

			if err := signedTx.Validate(gen.ChainID); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould validate the transaction: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould validate the transaction.", success, testID)

			fromID, err := signedTx.FromAccount()
			if err != nil || fromID != minerID {
				t.Fatalf("\t%s\tTest %d:\tShould recover the sender: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould recover the sender.", success, testID)
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen someone signs for an account they don't own.", testID)
		{
			tx, err := database.NewTx(gen.ChainID, minerID, userID, 74, gen.StorageFeeFor(74))
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to create the transaction: %v", failed, testID, err)
			}

			// The user signs a transaction claiming to be from the miner.
			signedTx, err := tx.Sign(userKey)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to sign the transaction: %v", failed, testID, err)
			}

			if err := signedTx.Validate(gen.ChainID); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject a forged sender.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a forged sender.", success, testID)
		}

		testID = 2
		t.Logf("\tTest %d:\tWhen the transaction breaks the basic rules.", testID)
		{
			if _, err := database.NewTx(gen.ChainID, minerID, database.AccountID("bogus"), 10, 1); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject a malformed to account.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a malformed to account.", success, testID)

			tx, err := database.NewTx(gen.ChainID, minerID, database.StorageAccountID, 10, 1)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to create the transaction: %v", failed, testID, err)
			}
			signedTx, err := tx.Sign(minerKey)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to sign the transaction: %v", failed, testID, err)
			}
			if err := signedTx.Validate(gen.ChainID); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject the storage account as recipient.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the storage account as recipient.", success, testID)

			tx, err = database.NewTx(gen.ChainID, minerID, minerID, 10, 1)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to create the transaction: %v", failed, testID, err)
			}
			signedTx, err = tx.Sign(minerKey)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to sign the transaction: %v", failed, testID, err)
			}
			if err := signedTx.Validate(gen.ChainID); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject sending money to yourself.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject sending money to yourself.", success, testID)
		}
	}
}

func Test_BalanceFold(t *testing.T) {
	gen := testGenesis()
	ctx := context.Background()

	minerKey, err := crypto.HexToECDSA(minerHexKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to parse the miner key: %v", failed, err)
	}
	userKey, err := crypto.HexToECDSA(userHexKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to parse the user key: %v", failed, err)
	}

	minerID := database.PublicKeyToAccountID(minerKey.PublicKey)
	userID := database.PublicKeyToAccountID(userKey.PublicKey)

	t.Log("Given the need to fold balances from a chain of blocks.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen mining the genesis block and two transfer blocks.", testID)
		{
			strg, err := memory.New()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open storage: %v", failed, testID, err)
			}

			db, err := database.New(gen, strg, noEvents)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open the database: %v", failed, testID, err)
			}

			// Genesis block, no transactions.
			commit(t, testID, ctx, db, gen, minerKey, nil)

			if balance := db.Balance(minerID); balance != gen.GenesisReward {
				t.Fatalf("\t%s\tTest %d:\tShould credit the genesis reward, got %d.", failed, testID, balance)
			}
			if balance := db.Balance(database.StorageAccountID); balance != gen.StorageBalance {
				t.Fatalf("\t%s\tTest %d:\tShould fund the storage account, got %d.", failed, testID, balance)
			}
			t.Logf("\t%s\tTest %d:\tShould apply the genesis credits.", success, testID)

			// Miner sends 74 to the user. The value is above the fee floor
			// so one coin goes to the storage account.
			commit(t, testID, ctx, db, gen, minerKey, []database.BlockTx{
				sign(t, testID, gen, minerKey, minerID, userID, 74),
			})

			// User sends 25 back, mined by the user.
			commit(t, testID, ctx, db, gen, userKey, []database.BlockTx{
				sign(t, testID, gen, userKey, userID, minerID, 25),
			})

			if balance := db.Balance(minerID); balance != 51 {
				t.Fatalf("\t%s\tTest %d:\tShould leave the miner with 51, got %d.", failed, testID, balance)
			}
			if balance := db.Balance(userID); balance != 49 {
				t.Fatalf("\t%s\tTest %d:\tShould leave the user with 49, got %d.", failed, testID, balance)
			}
			if balance := db.Balance(database.StorageAccountID); balance != 102 {
				t.Fatalf("\t%s\tTest %d:\tShould leave the storage account with 102, got %d.", failed, testID, balance)
			}
			t.Logf("\t%s\tTest %d:\tShould fold the balances through both transfers.", success, testID)

			// Reopen the database over the same storage, the replay has to
			// validate every block and produce the same balances.
			db2, err := database.New(gen, strg, noEvents)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to replay the chain: %v", failed, testID, err)
			}
			if db2.HashState() != db.HashState() {
				t.Fatalf("\t%s\tTest %d:\tShould produce the same state hash on replay.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould produce the same state hash on replay.", success, testID)
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen a transaction can't be covered.", testID)
		{
			strg, err := memory.New()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open storage: %v", failed, testID, err)
			}
			db, err := database.New(gen, strg, noEvents)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open the database: %v", failed, testID, err)
			}

			commit(t, testID, ctx, db, gen, minerKey, nil)

			// The miner holds 100 coins, 100 plus the fee is unaffordable.
			tx := sign(t, testID, gen, minerKey, minerID, userID, 100)

			err = db.ApplyTransaction(tx)
			if !errors.Is(err, database.ErrInsufficientFunds) {
				t.Fatalf("\t%s\tTest %d:\tShould reject with insufficient funds, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject with insufficient funds.", success, testID)
		}

		testID = 2
		t.Logf("\tTest %d:\tWhen a transaction value wraps the cost arithmetic.", testID)
		{
			strg, err := memory.New()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open storage: %v", failed, testID, err)
			}
			db, err := database.New(gen, strg, noEvents)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open the database: %v", failed, testID, err)
			}

			commit(t, testID, ctx, db, gen, minerKey, nil)

			// The user holds nothing. MaxUint64 plus the fee of 1 wraps to
			// zero, an unchecked cost would pass the balance check.
			tx := sign(t, testID, gen, userKey, userID, minerID, math.MaxUint64)

			minerBalance := db.Balance(minerID)

			err = db.ApplyTransaction(tx)
			if !errors.Is(err, database.ErrInvalidTransaction) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the overflowing value, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the overflowing value.", success, testID)

			if db.Balance(minerID) != minerBalance || db.Balance(userID) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould leave the balances untouched.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould leave the balances untouched.", success, testID)
		}
	}
}

func Test_BlockValidation(t *testing.T) {
	gen := testGenesis()
	ctx := context.Background()

	minerKey, err := crypto.HexToECDSA(minerHexKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to parse the miner key: %v", failed, err)
	}
	minerID := database.PublicKeyToAccountID(minerKey.PublicKey)

	t.Log("Given the need to reject blocks that break the chain rules.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a block doesn't link to the latest block.", testID)
		{
			strg, _ := memory.New()
			db, err := database.New(gen, strg, noEvents)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open the database: %v", failed, testID, err)
			}
			commit(t, testID, ctx, db, gen, minerKey, nil)

			latest := db.LatestBlock()

			block := database.Block{
				Header: database.BlockHeader{
					Number:        latest.Header.Number + 1,
					PrevBlockHash: "0xdeadbeef",
					TimeStamp:     latest.Header.TimeStamp + 1,
					BeneficiaryID: minerID,
					Difficulty:    gen.Difficulty,
					StateRoot:     db.HashState(),
				},
			}

			err = block.ValidateBlock(latest, db.HashState(), gen.Difficulty, noEvents)
			if !errors.Is(err, database.ErrInvalidLink) {
				t.Fatalf("\t%s\tTest %d:\tShould reject with an invalid link, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject with an invalid link.", success, testID)
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen a block hash doesn't satisfy the difficulty.", testID)
		{
			strg, _ := memory.New()
			db, err := database.New(gen, strg, noEvents)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open the database: %v", failed, testID, err)
			}
			commit(t, testID, ctx, db, gen, minerKey, nil)

			latest := db.LatestBlock()

			// An unmined block at full difficulty, the odds of the fixed
			// nonce solving it are negligible.
			block := database.Block{
				Header: database.BlockHeader{
					Number:        latest.Header.Number + 1,
					PrevBlockHash: latest.Hash(),
					TimeStamp:     latest.Header.TimeStamp + 1,
					BeneficiaryID: minerID,
					Difficulty:    4,
					StateRoot:     db.HashState(),
				},
			}

			err = block.ValidateBlock(latest, db.HashState(), gen.Difficulty, noEvents)
			if !errors.Is(err, database.ErrInvalidProofOfWork) {
				t.Fatalf("\t%s\tTest %d:\tShould reject with invalid proof of work, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject with invalid proof of work.", success, testID)
		}

		testID = 2
		t.Logf("\tTest %d:\tWhen a block builds on different balances.", testID)
		{
			strg, _ := memory.New()
			db, err := database.New(gen, strg, noEvents)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open the database: %v", failed, testID, err)
			}
			commit(t, testID, ctx, db, gen, minerKey, nil)

			block, err := database.POW(ctx, database.POWArgs{
				PrivateKey: minerKey,
				Difficulty: gen.Difficulty,
				PrevBlock:  db.LatestBlock(),
				StateRoot:  "0xbogus",
				EvHandler:  noEvents,
			})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to mine the block: %v", failed, testID, err)
			}

			err = block.ValidateBlock(db.LatestBlock(), db.HashState(), gen.Difficulty, noEvents)
			if !errors.Is(err, database.ErrInvalidLink) {
				t.Fatalf("\t%s\tTest %d:\tShould reject a state root mismatch, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a state root mismatch.", success, testID)
		}

		testID = 3
		t.Logf("\tTest %d:\tWhen a block declares less work than the chain requires.", testID)
		{
			strg, _ := memory.New()
			db, err := database.New(gen, strg, noEvents)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open the database: %v", failed, testID, err)
			}
			commit(t, testID, ctx, db, gen, minerKey, nil)

			// A difficulty of zero turns the hash check into a free pass,
			// the required difficulty has to be enforced instead.
			block, err := database.POW(ctx, database.POWArgs{
				PrivateKey: minerKey,
				Difficulty: 0,
				PrevBlock:  db.LatestBlock(),
				StateRoot:  db.HashState(),
				EvHandler:  noEvents,
			})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to mine the block: %v", failed, testID, err)
			}

			err = block.ValidateBlock(db.LatestBlock(), db.HashState(), gen.Difficulty, noEvents)
			if !errors.Is(err, database.ErrInvalidProofOfWork) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the zero difficulty block, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the zero difficulty block.", success, testID)
		}

		testID = 4
		t.Logf("\tTest %d:\tWhen a block declares an absurd difficulty.", testID)
		{
			strg, _ := memory.New()
			db, err := database.New(gen, strg, noEvents)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open the database: %v", failed, testID, err)
			}
			commit(t, testID, ctx, db, gen, minerKey, nil)

			latest := db.LatestBlock()

			// A difficulty beyond what the hash can express arrives from the
			// network, it must be an error and never a panic.
			block := database.Block{
				Header: database.BlockHeader{
					Number:        latest.Header.Number + 1,
					PrevBlockHash: latest.Hash(),
					TimeStamp:     latest.Header.TimeStamp + 1,
					BeneficiaryID: minerID,
					Difficulty:    100,
					StateRoot:     db.HashState(),
				},
			}

			err = block.ValidateBlock(latest, db.HashState(), gen.Difficulty, noEvents)
			if !errors.Is(err, database.ErrInvalidProofOfWork) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the absurd difficulty, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the absurd difficulty.", success, testID)
		}

		testID = 5
		t.Logf("\tTest %d:\tWhen a block isn't signed by its beneficiary.", testID)
		{
			strg, _ := memory.New()
			db, err := database.New(gen, strg, noEvents)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open the database: %v", failed, testID, err)
			}
			genesisBlock := commit(t, testID, ctx, db, gen, minerKey, nil)

			block, err := database.POW(ctx, database.POWArgs{
				PrivateKey: minerKey,
				Difficulty: gen.Difficulty,
				PrevBlock:  db.LatestBlock(),
				StateRoot:  db.HashState(),
				EvHandler:  noEvents,
			})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to mine the block: %v", failed, testID, err)
			}

			// Strip the miner signature.
			unsigned := block
			unsigned.V, unsigned.R, unsigned.S = nil, nil, nil

			err = unsigned.ValidateBlock(db.LatestBlock(), db.HashState(), gen.Difficulty, noEvents)
			if !errors.Is(err, database.ErrInvalidSignature) {
				t.Fatalf("\t%s\tTest %d:\tShould reject a missing miner signature, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a missing miner signature.", success, testID)

			// Swap in signature values produced over different content, the
			// recovered account can't match the beneficiary.
			forged := block
			forged.V, forged.R, forged.S = genesisBlock.V, genesisBlock.R, genesisBlock.S

			err = forged.ValidateBlock(db.LatestBlock(), db.HashState(), gen.Difficulty, noEvents)
			if !errors.Is(err, database.ErrInvalidSignature) {
				t.Fatalf("\t%s\tTest %d:\tShould reject a foreign miner signature, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a foreign miner signature.", success, testID)
		}
	}
}

// =============================================================================

// sign creates a signed block transaction for the test chain.
func sign(t *testing.T, testID int, gen genesis.Genesis, key *ecdsa.PrivateKey, fromID, toID database.AccountID, value uint64) database.BlockTx {
	t.Helper()

	tx, err := database.NewTx(gen.ChainID, fromID, toID, value, gen.StorageFeeFor(value))
	if err != nil {
		t.Fatalf("\t%s\tTest %d:\tShould be able to create the transaction: %v", failed, testID, err)
	}

	signedTx, err := tx.Sign(key)
	if err != nil {
		t.Fatalf("\t%s\tTest %d:\tShould be able to sign the transaction: %v", failed, testID, err)
	}

	return database.NewBlockTx(signedTx)
}

// commit mines the next block over the current database state and applies
// it the way the node does. The block is signed by the specified key and
// the matching account receives the reward.
func commit(t *testing.T, testID int, ctx context.Context, db *database.Database, gen genesis.Genesis, key *ecdsa.PrivateKey, trans []database.BlockTx) database.Block {
	t.Helper()

	block, err := database.POW(ctx, database.POWArgs{
		PrivateKey: key,
		Difficulty: gen.Difficulty,
		PrevBlock:  db.LatestBlock(),
		StateRoot:  db.HashState(),
		Trans:      trans,
		EvHandler:  noEvents,
	})
	if err != nil {
		t.Fatalf("\t%s\tTest %d:\tShould be able to mine the block: %v", failed, testID, err)
	}

	if err := db.Write(block); err != nil {
		t.Fatalf("\t%s\tTest %d:\tShould be able to write the block: %v", failed, testID, err)
	}

	for _, tx := range block.Transactions {
		if err := db.ApplyTransaction(tx); err != nil {
			t.Fatalf("\t%s\tTest %d:\tShould be able to apply the transaction: %v", failed, testID, err)
		}
	}
	db.ApplyMiningReward(block)
	db.UpdateLatestBlock(block)

	return block
}
