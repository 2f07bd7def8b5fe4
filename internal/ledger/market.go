package ledger

// MarketState is the market lifecycle state.
//
// Closed and Canceled are declared for forward-compatibility: no instruction
// in this core transitions into them. The only live transition is
// Open -> Resolved via resolve_market.
type MarketState uint8

const (
	MarketStateOpen MarketState = iota + 1
	MarketStateClosed
	MarketStateResolved
	MarketStateCanceled
)

func (s MarketState) String() string {
	switch s {
	case MarketStateOpen:
		return "open"
	case MarketStateClosed:
		return "closed"
	case MarketStateResolved:
		return "resolved"
	case MarketStateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Result is the declared outcome of a market.
type Result uint8

const (
	ResultNone Result = iota
	ResultTeam1
	ResultTeam2
)

// Market is the per-event record: odds, exposure risk control, lifecycle
// state, and the declared result. Markets are never deleted — resolved
// markets are retained for audit.
type Market struct {
	Seed        Seed
	HomeCode    uint64
	AwayCode    uint64
	StartTime   int64 // unix seconds
	CloseTime   int64 // unix seconds, advisory — not a hard cutover
	State       MarketState
	Result      Result
	OddsHomeBps uint64
	OddsAwayBps uint64
	MaxExposure uint64
	Exposure    uint64 // sum of stakes placed and not yet settled
	Version     int64
}

// OddsFor returns the decimal odds (x10000) for the given team selection.
// Callers must have validated team against {1, 2}.
func (m *Market) OddsFor(team uint8) uint64 {
	if team == 1 {
		return m.OddsHomeBps
	}
	return m.OddsAwayBps
}

// Clone returns a copy safe to hand to projection and publish consumers.
func (m *Market) Clone() *Market {
	cp := *m
	return &cp
}
