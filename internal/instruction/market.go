package instruction

import (
	"encoding/json"

	"WagerLedger/internal/ledger"

	"github.com/google/uuid"
)

// OpenMarketArgs carries the market parameters of open_market.
type OpenMarketArgs struct {
	MarketSeed  ledger.Seed
	HomeCode    uint64
	AwayCode    uint64
	StartTime   int64
	CloseTime   int64
	OddsHomeBps uint64
	OddsAwayBps uint64
	MaxExposure uint64
}

// OpenMarket creates a new market record keyed by the market seed.
// Authority-gated. Idempotency key: instruction_id.
type OpenMarket struct {
	InstructionID uuid.UUID
	Caller        uuid.UUID
	Args          OpenMarketArgs
	Sequence      int64
	Timestamp     int64
}

func (i *OpenMarket) IdempotencyKey() string { return i.InstructionID.String() }
func (i *OpenMarket) Type() InstructionType  { return TypeOpenMarket }
func (i *OpenMarket) MarketRef() *string {
	s := i.Args.MarketSeed.String()
	return &s
}
func (i *OpenMarket) SourceSequence() int64 { return i.Sequence }
func (i *OpenMarket) UnixTime() int64       { return i.Timestamp }

// MarshalJSON emits the flat ingestion wire form so the logged payload
// re-parses through the parser during replay.
func (i *OpenMarket) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		InstructionID uuid.UUID   `json:"instruction_id"`
		Caller        uuid.UUID   `json:"caller"`
		MarketSeed    ledger.Seed `json:"market_seed"`
		HomeCode      uint64      `json:"home_code"`
		AwayCode      uint64      `json:"away_code"`
		StartTime     int64       `json:"start_time"`
		CloseTime     int64       `json:"close_time"`
		OddsHomeBps   uint64      `json:"odds_home_bps"`
		OddsAwayBps   uint64      `json:"odds_away_bps"`
		MaxExposure   uint64      `json:"max_exposure"`
		Sequence      int64       `json:"sequence"`
		Timestamp     int64       `json:"timestamp"`
	}{
		InstructionID: i.InstructionID,
		Caller:        i.Caller,
		MarketSeed:    i.Args.MarketSeed,
		HomeCode:      i.Args.HomeCode,
		AwayCode:      i.Args.AwayCode,
		StartTime:     i.Args.StartTime,
		CloseTime:     i.Args.CloseTime,
		OddsHomeBps:   i.Args.OddsHomeBps,
		OddsAwayBps:   i.Args.OddsAwayBps,
		MaxExposure:   i.Args.MaxExposure,
		Sequence:      i.Sequence,
		Timestamp:     i.Timestamp,
	})
}

// ResolveMarket declares the result of a market. Authority-gated,
// irreversible. Idempotency key: instruction_id.
type ResolveMarket struct {
	InstructionID uuid.UUID   `json:"instruction_id"`
	Caller        uuid.UUID   `json:"caller"`
	MarketSeed    ledger.Seed `json:"market_seed"`
	Result        uint8       `json:"result"` // 1 = home, 2 = away
	Sequence      int64       `json:"sequence"`
	Timestamp     int64       `json:"timestamp"`
}

func (i *ResolveMarket) IdempotencyKey() string { return i.InstructionID.String() }
func (i *ResolveMarket) Type() InstructionType  { return TypeResolveMarket }
func (i *ResolveMarket) MarketRef() *string {
	s := i.MarketSeed.String()
	return &s
}
func (i *ResolveMarket) SourceSequence() int64 { return i.Sequence }
func (i *ResolveMarket) UnixTime() int64       { return i.Timestamp }
