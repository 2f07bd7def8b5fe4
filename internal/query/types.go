package query

// MarketResponse represents a market for API queries.
type MarketResponse struct {
	Seed         string `json:"seed"`
	HomeCode     uint64 `json:"home_code"`
	AwayCode     uint64 `json:"away_code"`
	StartTime    int64  `json:"start_time"`
	CloseTime    int64  `json:"close_time"`
	State        uint8  `json:"state"`
	Result       uint8  `json:"result"`
	OddsHomeBps  uint64 `json:"odds_home_bps"`
	OddsAwayBps  uint64 `json:"odds_away_bps"`
	MaxExposure  uint64 `json:"max_exposure"`
	Exposure     uint64 `json:"exposure"`
	Version      int64  `json:"version"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// BetResponse represents a bet for API queries.
type BetResponse struct {
	Owner          string `json:"owner"`
	MarketSeed     string `json:"market_seed"`
	Nonce          uint64 `json:"nonce"`
	Team           uint8  `json:"team"`
	MultiplierBps  uint64 `json:"multiplier_bps"`
	Amount         uint64 `json:"amount"`
	PayoutExpected uint64 `json:"payout_expected"`
	PlacedAt       int64  `json:"placed_at"`
	Status         uint8  `json:"status"`
	Claimed        bool   `json:"claimed"`
	PnL            int64  `json:"pnl"`
	AsOfSequence   int64  `json:"as_of_sequence"`
}

// BalanceResponse represents an account balance for API queries.
type BalanceResponse struct {
	AccountPath  string `json:"account_path"`
	Balance      int64  `json:"balance"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// TransferHistoryEntry represents a transfer log row for API queries.
type TransferHistoryEntry struct {
	TransferID     string `json:"transfer_id"`
	InstructionRef string `json:"instruction_ref"`
	Sequence       int64  `json:"sequence"`
	FromAccount    string `json:"from_account"`
	ToAccount      string `json:"to_account"`
	Amount         int64  `json:"amount"`
	TransferType   int32  `json:"transfer_type"`
	Timestamp      int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
// BalanceSum should be zero: every transfer debits one account and
// credits another, so projected balances sum to zero system-wide.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	BalanceSum      int64   `json:"balance_sum"`
}
