package database

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/minicoin/minicoin/foundation/blockchain/signature"
)

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Number        uint64    `json:"number"`          // Block number in the chain, genesis is 1.
	PrevBlockHash string    `json:"prev_block_hash"` // Hash of the previous block in the chain.
	TimeStamp     uint64    `json:"timestamp"`       // Time the block was mined.
	Nonce         uint64    `json:"nonce"`           // Value identified to solve the hash solution.
	BeneficiaryID AccountID `json:"beneficiary"`     // The account receiving the mining reward.
	Difficulty    uint16    `json:"difficulty"`      // Number of leading 0's needed to solve the hash solution.
	StateRoot     string    `json:"state_root"`      // Hash of the account balances before this block is applied.
}

// Block represents a group of transactions bound together with a proof
// of work. The V, R, S values are the miner's signature over the block
// content, binding the block to its beneficiary.
type Block struct {
	Header       BlockHeader `json:"header"`
	Transactions []BlockTx   `json:"transactions"`
	V            *big.Int    `json:"v"`
	R            *big.Int    `json:"r"`
	S            *big.Int    `json:"s"`
}

// blockContent is the portion of a block covered by the block hash and the
// miner signature. The signature itself can't be part of what it signs.
type blockContent struct {
	Header BlockHeader `json:"header"`
	Trans  []BlockTx   `json:"trans"`
}

func (b Block) content() blockContent {
	return blockContent{
		Header: b.Header,
		Trans:  b.Transactions,
	}
}

// POWArgs represents the set of arguments required to run POW.
type POWArgs struct {
	PrivateKey *ecdsa.PrivateKey
	Difficulty uint16
	PrevBlock  Block
	StateRoot  string
	Trans      []BlockTx
	EvHandler  func(v string, args ...any)
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzle. The mined block is signed with the
// specified private key, which also identifies the beneficiary.
func POW(ctx context.Context, args POWArgs) (Block, error) {

	// When mining the genesis block, the previous block's hash will be zero.
	prevBlockHash := signature.ZeroHash
	if args.PrevBlock.Header.Number > 0 {
		prevBlockHash = args.PrevBlock.Hash()
	}

	// A block timestamp must be strictly greater than its parent's. A fast
	// miner can produce two blocks inside the same second, so step forward
	// when needed.
	timeStamp := uint64(time.Now().UTC().Unix())
	if timeStamp <= args.PrevBlock.Header.TimeStamp {
		timeStamp = args.PrevBlock.Header.TimeStamp + 1
	}

	// Construct the block to be mined.
	nb := Block{
		Header: BlockHeader{
			Number:        args.PrevBlock.Header.Number + 1,
			PrevBlockHash: prevBlockHash,
			TimeStamp:     timeStamp,
			Nonce:         0, // Will be identified by the POW algorithm.
			BeneficiaryID: PublicKeyToAccountID(args.PrivateKey.PublicKey),
			Difficulty:    args.Difficulty,
			StateRoot:     args.StateRoot,
		},
		Transactions: args.Trans,
	}

	// Perform the proof of work mining operation.
	if err := nb.performPOW(ctx, args.EvHandler); err != nil {
		return Block{}, err
	}

	// Sign the mined block so any node can verify it was produced by the
	// account claiming the reward.
	v, r, s, err := signature.Sign(nb.content(), args.PrivateKey)
	if err != nil {
		return Block{}, err
	}
	nb.V = v
	nb.R = r
	nb.S = s

	return nb, nil
}

// performPOW does the work of mining to find a valid hash for a specified
// block. Pointer semantics are being used since a nonce is being discovered.
func (b *Block) performPOW(ctx context.Context, ev func(v string, args ...any)) error {
	ev("database: PerformPOW: MINING: started")
	defer ev("database: PerformPOW: MINING: completed")

	// Log the transactions that are a part of this potential block.
	for _, tx := range b.Transactions {
		ev("database: PerformPOW: MINING: tx[%s]", tx)
	}

	// Choose a random starting point for the nonce. After this, the nonce
	// will be incremented by 1 until a solution is found by us or another node.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return err
	}
	b.Header.Nonce = nBig.Uint64()

	// Loop until we or another node finds a solution for the next block.
	// The check of the context on every attempt is the cancellation point
	// that lets an externally received block preempt the search.
	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: PerformPOW: MINING: attempts[%d]", attempts)
		}

		if ctx.Err() != nil {
			ev("database: PerformPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		// Hash the block and check if we have solved the puzzle.
		hash := b.Hash()
		if !isHashSolved(b.Header.Difficulty, hash) {
			b.Header.Nonce++
			continue
		}

		ev("database: PerformPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", b.Header.PrevBlockHash, hash)
		ev("database: PerformPOW: MINING: attempts[%d]", attempts)

		return nil
	}
}

// Hash returns the unique hash for the Block. The hash covers the header
// and the ordered list of transactions so any mutation is detectable.
func (b Block) Hash() string {
	if b.Header.Number == 0 {
		return signature.ZeroHash
	}

	return signature.Hash(b.content())
}

// ValidateBlock takes a block and validates it to be included into the
// blockchain. The difficulty argument is the work the chain requires, a
// block can't lower the bar by declaring its own. These are the structural
// checks, the per transaction balance checks are performed by the database
// against its account state.
func (b Block) ValidateBlock(previousBlock Block, stateRoot string, difficulty uint16, evHandler func(v string, args ...any)) error {
	evHandler("database: ValidateBlock: validate: blk[%d]: check: block number is the next number", b.Header.Number)

	nextNumber := previousBlock.Header.Number + 1
	if b.Header.Number != nextNumber {
		return fmt.Errorf("this block is not the next number, got %d, exp %d: %w", b.Header.Number, nextNumber, ErrInvalidLink)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: parent hash does match parent block", b.Header.Number)

	if b.Header.PrevBlockHash != previousBlock.Hash() {
		return fmt.Errorf("parent block hash doesn't match our known parent, got %s, exp %s: %w", b.Header.PrevBlockHash, previousBlock.Hash(), ErrInvalidLink)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block difficulty meets the chain difficulty", b.Header.Number)

	if b.Header.Difficulty < difficulty {
		return fmt.Errorf("block difficulty %d below required %d: %w", b.Header.Difficulty, difficulty, ErrInvalidProofOfWork)
	}
	if int(b.Header.Difficulty) > maxDifficulty {
		return fmt.Errorf("block difficulty %d above maximum %d: %w", b.Header.Difficulty, maxDifficulty, ErrInvalidProofOfWork)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block hash has been solved", b.Header.Number)

	hash := b.Hash()
	if !isHashSolved(b.Header.Difficulty, hash) {
		return fmt.Errorf("%s invalid block hash: %w", hash, ErrInvalidProofOfWork)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block is signed by its beneficiary", b.Header.Number)

	if err := b.validateMinerSignature(); err != nil {
		return err
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: state root matches the balances the block builds on", b.Header.Number)

	if b.Header.StateRoot != stateRoot {
		return fmt.Errorf("state root does not match, got %s, exp %s: %w", b.Header.StateRoot, stateRoot, ErrInvalidLink)
	}

	if previousBlock.Header.TimeStamp > 0 {
		evHandler("database: ValidateBlock: validate: blk[%d]: check: block's timestamp is greater than parent block's timestamp", b.Header.Number)

		parentTime := time.Unix(int64(previousBlock.Header.TimeStamp), 0)
		blockTime := time.Unix(int64(b.Header.TimeStamp), 0)
		if !blockTime.After(parentTime) {
			return fmt.Errorf("block timestamp is before parent block, parent %s, block %s", parentTime, blockTime)
		}
	}

	return nil
}

// validateMinerSignature checks the block carries a signature that recovers
// the account named as the beneficiary.
func (b Block) validateMinerSignature() error {
	if err := signature.VerifySignature(b.V, b.R, b.S); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidSignature)
	}

	publicKey, err := signature.RecoverPublicKey(b.content(), b.V, b.R, b.S)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidSignature)
	}

	if minerID := PublicKeyToAccountID(*publicKey); minerID != b.Header.BeneficiaryID {
		return fmt.Errorf("block signed by %s, beneficiary %s: %w", minerID, b.Header.BeneficiaryID, ErrInvalidSignature)
	}

	return nil
}

// maxDifficulty is the largest difficulty the hex leading zero predicate
// can express with the match constant below.
const maxDifficulty = 17

// isHashSolved checks the hash to make sure it complies with
// the POW rules. We need to match a difficulty number of 0's.
func isHashSolved(difficulty uint16, hash string) bool {
	const match = "0x00000000000000000"

	if int(difficulty) > maxDifficulty {
		return false
	}
	if len(hash) != 66 {
		return false
	}

	return hash[:2+difficulty] == match[:2+difficulty]
}

// =============================================================================

// BlockData represents what can be serialized to disk and over the network.
type BlockData struct {
	Hash   string      `json:"hash"`
	Header BlockHeader `json:"header"`
	Trans  []BlockTx   `json:"trans"`
	V      *big.Int    `json:"v"`
	R      *big.Int    `json:"r"`
	S      *big.Int    `json:"s"`
}

// NewBlockData constructs block data from a block.
func NewBlockData(block Block) BlockData {
	blockData := BlockData{
		Hash:   block.Hash(),
		Header: block.Header,
		Trans:  block.Transactions,
		V:      block.V,
		R:      block.R,
		S:      block.S,
	}

	return blockData
}

// ToBlock converts a storage block into a database block.
func ToBlock(blockData BlockData) Block {
	return Block{
		Header:       blockData.Header,
		Transactions: blockData.Trans,
		V:            blockData.V,
		R:            blockData.R,
		S:            blockData.S,
	}
}
