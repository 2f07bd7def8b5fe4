package ledger

import "github.com/google/uuid"

// BetStatus is the settlement status of a wager.
//
// Canceled and Refunded are declared variants with no reachable transition in
// this core: there is no cancel or refund path. A bet mutates exactly once,
// at claim time, into SettledWin or SettledLose.
type BetStatus uint8

const (
	BetStatusPlaced BetStatus = iota + 1
	BetStatusSettledWin
	BetStatusSettledLose
	BetStatusCanceled
	BetStatusRefunded
)

func (s BetStatus) String() string {
	switch s {
	case BetStatusPlaced:
		return "placed"
	case BetStatusSettledWin:
		return "settled_win"
	case BetStatusSettledLose:
		return "settled_lose"
	case BetStatusCanceled:
		return "canceled"
	case BetStatusRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// Bet is the per-wager record. Both odds are snapshotted at placement so a
// later mutation of market data cannot change what the bettor locked in, and
// PayoutExpected is fixed at placement: claim only applies the platform fee
// to the already-fixed figure, never recomputes it.
type Bet struct {
	Owner          uuid.UUID
	Market         Seed
	Nonce          uint64
	SelectedTeam   uint8 // 1 = home, 2 = away
	OddsHomeBps    uint64
	OddsAwayBps    uint64
	MultiplierBps  uint64
	Amount         uint64
	PayoutExpected uint64
	PlacedAt       int64 // versioned input timestamp, unix seconds
	Status         BetStatus
	Claimed        bool
	PnL            int64
}

// Key returns the composite store key (owner, market, nonce).
func (b *Bet) Key() BetKey {
	return BetKey{Owner: b.Owner, Market: b.Market, Nonce: b.Nonce}
}

// Won reports whether the bet selected the declared result.
func (b *Bet) Won(result Result) bool {
	return Result(b.SelectedTeam) == result
}

// Clone returns a copy safe to hand to projection and publish consumers.
func (b *Bet) Clone() *Bet {
	cp := *b
	return &cp
}
