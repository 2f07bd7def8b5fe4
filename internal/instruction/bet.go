package instruction

import (
	"encoding/json"

	"WagerLedger/internal/ledger"

	"github.com/google/uuid"
)

// PlaceBetArgs carries the wager parameters of place_bet. The nonce
// disambiguates multiple concurrent bets from the same user on one market.
type PlaceBetArgs struct {
	SelectedTeam  uint8
	Amount        uint64
	MultiplierBps uint64
	Nonce         uint64
}

// PlaceBet stakes an amount against an open market, transferring the stake
// into the market's escrow. The single state-changing instruction bettors
// may submit while a market is Open. Idempotency key: instruction_id.
type PlaceBet struct {
	InstructionID uuid.UUID
	Caller        uuid.UUID
	MarketSeed    ledger.Seed
	Args          PlaceBetArgs
	Sequence      int64
	Timestamp     int64
}

func (i *PlaceBet) IdempotencyKey() string { return i.InstructionID.String() }
func (i *PlaceBet) Type() InstructionType  { return TypePlaceBet }
func (i *PlaceBet) MarketRef() *string {
	s := i.MarketSeed.String()
	return &s
}
func (i *PlaceBet) SourceSequence() int64 { return i.Sequence }
func (i *PlaceBet) UnixTime() int64       { return i.Timestamp }

// MarshalJSON emits the flat ingestion wire form so the logged payload
// re-parses through the parser during replay.
func (i *PlaceBet) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		InstructionID uuid.UUID   `json:"instruction_id"`
		Caller        uuid.UUID   `json:"caller"`
		MarketSeed    ledger.Seed `json:"market_seed"`
		Team          uint8       `json:"team"`
		Amount        uint64      `json:"amount"`
		MultiplierBps uint64      `json:"multiplier_bps"`
		Nonce         uint64      `json:"nonce"`
		Sequence      int64       `json:"sequence"`
		Timestamp     int64       `json:"timestamp"`
	}{
		InstructionID: i.InstructionID,
		Caller:        i.Caller,
		MarketSeed:    i.MarketSeed,
		Team:          i.Args.SelectedTeam,
		Amount:        i.Args.Amount,
		MultiplierBps: i.Args.MultiplierBps,
		Nonce:         i.Args.Nonce,
		Sequence:      i.Sequence,
		Timestamp:     i.Timestamp,
	})
}

// ClaimPayout settles one bet against a resolved market. FeeDestination is
// the caller-supplied fee account: when the Config names a destination it
// must match exactly. Idempotency key: instruction_id.
type ClaimPayout struct {
	InstructionID  uuid.UUID   `json:"instruction_id"`
	Caller         uuid.UUID   `json:"caller"`
	MarketSeed     ledger.Seed `json:"market_seed"`
	Nonce          uint64      `json:"nonce"`
	FeeDestination *uuid.UUID  `json:"fee_destination,omitempty"`
	Sequence       int64       `json:"sequence"`
	Timestamp      int64       `json:"timestamp"`
}

func (i *ClaimPayout) IdempotencyKey() string { return i.InstructionID.String() }
func (i *ClaimPayout) Type() InstructionType  { return TypeClaimPayout }
func (i *ClaimPayout) MarketRef() *string {
	s := i.MarketSeed.String()
	return &s
}
func (i *ClaimPayout) SourceSequence() int64 { return i.Sequence }
func (i *ClaimPayout) UnixTime() int64       { return i.Timestamp }
