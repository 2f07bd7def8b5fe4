package instruction

// InstructionType discriminates instruction payloads in the log.
type InstructionType int32

const (
	TypeUnknown InstructionType = iota
	TypeInitializeConfig
	TypeOpenMarket
	TypePlaceBet
	TypeResolveMarket
	TypeClaimPayout
	TypeFundAccount
)

func (t InstructionType) String() string {
	switch t {
	case TypeInitializeConfig:
		return "InitializeConfig"
	case TypeOpenMarket:
		return "OpenMarket"
	case TypePlaceBet:
		return "PlaceBet"
	case TypeResolveMarket:
		return "ResolveMarket"
	case TypeClaimPayout:
		return "ClaimPayout"
	case TypeFundAccount:
		return "FundAccount"
	default:
		return "Unknown"
	}
}

// Envelope wraps every instruction recorded in the log.
type Envelope struct {
	// Global monotonic sequence assigned by the core
	Sequence int64

	// Stable idempotency key from the submitter
	IdempotencyKey string

	// Instruction type discriminator
	InstructionType InstructionType

	// Market context (nil for config and funding instructions)
	MarketSeed *string

	// Versioned input timestamp, unix seconds (never wall-clock of the core)
	Timestamp int64

	// Submitter sequence for per-market ordering validation
	SourceSequence int64

	// JSON-encoded instruction payload
	Payload []byte

	// SHA-256 of ledger state AFTER applying this instruction
	StateHash [32]byte

	// Previous instruction's state hash (chain integrity)
	PrevHash [32]byte
}

// Instruction is the interface all instruction payloads implement.
type Instruction interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// Type returns the discriminator
	Type() InstructionType

	// MarketRef returns the market context (nil for global instructions)
	MarketRef() *string

	// SourceSequence returns the submitter ordering key
	SourceSequence() int64

	// UnixTime returns the versioned input timestamp in unix seconds
	UnixTime() int64
}
