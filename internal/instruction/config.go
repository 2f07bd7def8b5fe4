package instruction

import "github.com/google/uuid"

// ConfigParams carries the risk/fee parameters of initialize_config. All
// fields are stored verbatim on the Config record; the submitting caller
// becomes the deployment authority.
type ConfigParams struct {
	BaseAsset        *string    `json:"base_asset,omitempty"`
	FeeBps           uint64     `json:"fee_bps"`
	HouseCutBps      uint64     `json:"house_cut_bps"`
	MinBet           uint64     `json:"min_bet"`
	MaxBet           uint64     `json:"max_bet"`
	MaxOddsBps       uint64     `json:"max_odds_bps"`
	MaxMultiplierBps uint64     `json:"max_multiplier_bps"`
	FeeDestination   *uuid.UUID `json:"fee_destination,omitempty"`
}

// InitializeConfig creates the deployment's Config singleton.
// Idempotency key: instruction_id.
//
// JSON tags on all instruction types follow the ingestion wire format, so the
// payload stored in the instruction log re-parses through the same parser
// during warm-restart replay.
type InitializeConfig struct {
	InstructionID uuid.UUID    `json:"instruction_id"`
	Caller        uuid.UUID    `json:"caller"`
	Params        ConfigParams `json:"params"`
	Sequence      int64        `json:"sequence"`
	Timestamp     int64        `json:"timestamp"`
}

func (i *InitializeConfig) IdempotencyKey() string { return i.InstructionID.String() }
func (i *InitializeConfig) Type() InstructionType  { return TypeInitializeConfig }
func (i *InitializeConfig) MarketRef() *string     { return nil }
func (i *InitializeConfig) SourceSequence() int64  { return i.Sequence }
func (i *InitializeConfig) UnixTime() int64        { return i.Timestamp }

// FundAccount credits a caller's spendable balance after the external
// settlement layer confirms a deposit. Idempotency key: deposit_id.
type FundAccount struct {
	DepositID uuid.UUID `json:"deposit_id"`
	Caller    uuid.UUID `json:"caller"`
	Amount    uint64    `json:"amount"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp"`
}

func (i *FundAccount) IdempotencyKey() string { return i.DepositID.String() }
func (i *FundAccount) Type() InstructionType  { return TypeFundAccount }
func (i *FundAccount) MarketRef() *string     { return nil }
func (i *FundAccount) SourceSequence() int64  { return i.Sequence }
func (i *FundAccount) UnixTime() int64        { return i.Timestamp }
