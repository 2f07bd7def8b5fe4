package instruction

import "github.com/google/uuid"

// Outbound notification events, published fire-and-forget for off-chain
// observers. No acknowledgement or delivery guarantee.

// BetPlaced is emitted after a stake lands in escrow.
type BetPlaced struct {
	User          uuid.UUID `json:"user"`
	Market        string    `json:"market"`
	Team          uint8     `json:"team"`
	Amount        uint64    `json:"amount"`
	OddsBps       uint64    `json:"odds_bps"`
	MultiplierBps uint64    `json:"multiplier_bps"`
}

// MarketResolved is emitted when the authority declares a result.
type MarketResolved struct {
	Market string `json:"market"`
	Result uint8  `json:"result"`
}

// BetClaimed is emitted after settlement of one bet.
type BetClaimed struct {
	User   uuid.UUID `json:"user"`
	Market string    `json:"market"`
	Payout uint64    `json:"payout"`
	PnL    int64     `json:"pnl"`
}
