package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// TransferType tags a balance movement for the transfer log.
type TransferType int32

const (
	TransferTypeDeposit TransferType = iota + 1
	TransferTypeStake
	TransferTypeFee
	TransferTypePayout
)

func (t TransferType) String() string {
	switch t {
	case TransferTypeDeposit:
		return "deposit"
	case TransferTypeStake:
		return "stake"
	case TransferTypeFee:
		return "fee"
	case TransferTypePayout:
		return "payout"
	default:
		return "unknown"
	}
}

// TransferRecord is one applied balance movement, appended to the durable
// transfer log alongside the instruction that caused it.
type TransferRecord struct {
	TransferID     uuid.UUID
	InstructionRef string // idempotency key of the causing instruction
	Sequence       int64
	From           AccountID
	To             AccountID
	Amount         uint64
	TransferType   TransferType
	Timestamp      int64 // versioned input timestamp, unix seconds
}

// EscrowBook is the in-memory balance book: the abstract transfer primitive
// of the ledger. Every transfer is atomic — it either fully applies or fails
// with ErrInsufficientFunds and touches nothing.
//
// Not thread-safe: only the single-threaded core mutates it.
type EscrowBook struct {
	balances map[AccountID]uint64
	paidIn   map[Seed]uint64 // lifetime stakes into each market's escrow
	paidOut  map[Seed]uint64 // lifetime payouts+fees out of each market's escrow
}

func NewEscrowBook() *EscrowBook {
	return &EscrowBook{
		balances: make(map[AccountID]uint64),
		paidIn:   make(map[Seed]uint64),
		paidOut:  make(map[Seed]uint64),
	}
}

// Balance returns the current balance of an account (zero if never touched).
func (b *EscrowBook) Balance(id AccountID) uint64 {
	return b.balances[id]
}

// Credit funds an account from outside the book. This is the inbound edge of
// the abstract transfer primitive: deposits confirmed by the external
// settlement layer land here.
func (b *EscrowBook) Credit(id AccountID, amount uint64) error {
	cur := b.balances[id]
	next := cur + amount
	if next < cur {
		return fmt.Errorf("credit %s: %w", id.Path(), ErrOverflow)
	}
	b.balances[id] = next
	return nil
}

// Transfer moves amount between two non-escrow-debiting accounts. Debiting an
// escrow account requires TransferFromEscrow with the market's capability.
func (b *EscrowBook) Transfer(from, to AccountID, amount uint64) error {
	if from.Scope == ScopeEscrow {
		return fmt.Errorf("transfer from %s without escrow capability: %w", from.Path(), ErrUnauthorized)
	}
	return b.move(from, to, amount)
}

// TransferFromEscrow moves amount out of a market's escrow account. The
// capability must cover exactly that account — it is never a general signer.
func (b *EscrowBook) TransferFromEscrow(cap EscrowCapability, from, to AccountID, amount uint64) error {
	if !cap.Covers(from) {
		return fmt.Errorf("escrow capability does not cover %s: %w", from.Path(), ErrUnauthorized)
	}
	if err := b.move(from, to, amount); err != nil {
		return err
	}
	b.paidOut[Seed(from.Entity)] += amount
	return nil
}

func (b *EscrowBook) move(from, to AccountID, amount uint64) error {
	have := b.balances[from]
	if have < amount {
		return fmt.Errorf("%s has %d, need %d: %w", from.Path(), have, amount, ErrInsufficientFunds)
	}
	destCur := b.balances[to]
	destNext := destCur + amount
	if destNext < destCur {
		return fmt.Errorf("credit %s: %w", to.Path(), ErrOverflow)
	}
	b.balances[from] = have - amount
	b.balances[to] = destNext
	if to.Scope == ScopeEscrow {
		b.paidIn[Seed(to.Entity)] += amount
	}
	return nil
}

// PaidIn returns the lifetime sum of stakes transferred into a market's escrow.
func (b *EscrowBook) PaidIn(market Seed) uint64 {
	return b.paidIn[market]
}

// PaidOut returns the lifetime sum of payouts and fees out of a market's escrow.
func (b *EscrowBook) PaidOut(market Seed) uint64 {
	return b.paidOut[market]
}

// ValidateEscrowConservation checks the core safety invariant: funds ever
// paid out of a market's escrow never exceed funds ever paid in.
func (b *EscrowBook) ValidateEscrowConservation(market Seed) error {
	in, out := b.paidIn[market], b.paidOut[market]
	if out > in {
		return fmt.Errorf("escrow %s paid out %d > paid in %d", market, out, in)
	}
	return nil
}

// Snapshot returns a copy of all balances for persistence.
func (b *EscrowBook) Snapshot() map[AccountID]uint64 {
	snap := make(map[AccountID]uint64, len(b.balances))
	for k, v := range b.balances {
		snap[k] = v
	}
	return snap
}

// SetBalance restores a balance during snapshot recovery.
func (b *EscrowBook) SetBalance(id AccountID, balance uint64) {
	b.balances[id] = balance
}

// RestoreFlows restores the lifetime in/out counters during recovery.
func (b *EscrowBook) RestoreFlows(market Seed, paidIn, paidOut uint64) {
	b.paidIn[market] = paidIn
	b.paidOut[market] = paidOut
}

// Flows returns copies of the lifetime counters for snapshotting.
func (b *EscrowBook) Flows() (map[Seed]uint64, map[Seed]uint64) {
	in := make(map[Seed]uint64, len(b.paidIn))
	out := make(map[Seed]uint64, len(b.paidOut))
	for k, v := range b.paidIn {
		in[k] = v
	}
	for k, v := range b.paidOut {
		out[k] = v
	}
	return in, out
}
