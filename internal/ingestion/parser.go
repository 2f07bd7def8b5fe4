package ingestion

import (
	"WagerLedger/internal/instruction"
	"WagerLedger/internal/ledger"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ParseRawInstruction converts a RawInstruction (JSON bytes + instruction type
// string) into a typed instruction.Instruction. The ingestion shell validates,
// parses, and converts raw submissions before sending to the deterministic core.
func ParseRawInstruction(raw RawInstruction, instructionType string) (instruction.Instruction, error) {
	switch instructionType {
	case "InitializeConfig":
		return parseInitializeConfig(raw.Data)
	case "OpenMarket":
		return parseOpenMarket(raw.Data)
	case "PlaceBet":
		return parsePlaceBet(raw.Data)
	case "ResolveMarket":
		return parseResolveMarket(raw.Data)
	case "ClaimPayout":
		return parseClaimPayout(raw.Data)
	case "FundAccount":
		return parseFundAccount(raw.Data)
	default:
		return nil, fmt.Errorf("unknown instruction type: %s", instructionType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS and the HTTP
// ingest surface. Field names use snake_case to match upstream producers.

type configParamsJSON struct {
	BaseAsset        *string `json:"base_asset,omitempty"`
	FeeBps           uint64  `json:"fee_bps"`
	HouseCutBps      uint64  `json:"house_cut_bps"`
	MinBet           uint64  `json:"min_bet"`
	MaxBet           uint64  `json:"max_bet"`
	MaxOddsBps       uint64  `json:"max_odds_bps"`
	MaxMultiplierBps uint64  `json:"max_multiplier_bps"`
	FeeDestination   *string `json:"fee_destination,omitempty"`
}

type initializeConfigJSON struct {
	InstructionID string           `json:"instruction_id"`
	Caller        string           `json:"caller"`
	Params        configParamsJSON `json:"params"`
	Sequence      int64            `json:"sequence"`
	Timestamp     int64            `json:"timestamp"`
}

func parseInitializeConfig(data []byte) (*instruction.InitializeConfig, error) {
	var j initializeConfigJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse InitializeConfig: %w", err)
	}

	instructionID, err := uuid.Parse(j.InstructionID)
	if err != nil {
		return nil, fmt.Errorf("parse instruction_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}

	var feeDest *uuid.UUID
	if j.Params.FeeDestination != nil {
		id, err := uuid.Parse(*j.Params.FeeDestination)
		if err != nil {
			return nil, fmt.Errorf("parse fee_destination: %w", err)
		}
		feeDest = &id
	}

	return &instruction.InitializeConfig{
		InstructionID: instructionID,
		Caller:        caller,
		Params: instruction.ConfigParams{
			BaseAsset:        j.Params.BaseAsset,
			FeeBps:           j.Params.FeeBps,
			HouseCutBps:      j.Params.HouseCutBps,
			MinBet:           j.Params.MinBet,
			MaxBet:           j.Params.MaxBet,
			MaxOddsBps:       j.Params.MaxOddsBps,
			MaxMultiplierBps: j.Params.MaxMultiplierBps,
			FeeDestination:   feeDest,
		},
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type openMarketJSON struct {
	InstructionID string `json:"instruction_id"`
	Caller        string `json:"caller"`
	MarketSeed    string `json:"market_seed"`
	HomeCode      uint64 `json:"home_code"`
	AwayCode      uint64 `json:"away_code"`
	StartTime     int64  `json:"start_time"`
	CloseTime     int64  `json:"close_time"`
	OddsHomeBps   uint64 `json:"odds_home_bps"`
	OddsAwayBps   uint64 `json:"odds_away_bps"`
	MaxExposure   uint64 `json:"max_exposure"`
	Sequence      int64  `json:"sequence"`
	Timestamp     int64  `json:"timestamp"`
}

func parseOpenMarket(data []byte) (*instruction.OpenMarket, error) {
	var j openMarketJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OpenMarket: %w", err)
	}

	instructionID, err := uuid.Parse(j.InstructionID)
	if err != nil {
		return nil, fmt.Errorf("parse instruction_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	seed, err := ledger.ParseSeed(j.MarketSeed)
	if err != nil {
		return nil, err
	}

	return &instruction.OpenMarket{
		InstructionID: instructionID,
		Caller:        caller,
		Args: instruction.OpenMarketArgs{
			MarketSeed:  seed,
			HomeCode:    j.HomeCode,
			AwayCode:    j.AwayCode,
			StartTime:   j.StartTime,
			CloseTime:   j.CloseTime,
			OddsHomeBps: j.OddsHomeBps,
			OddsAwayBps: j.OddsAwayBps,
			MaxExposure: j.MaxExposure,
		},
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type placeBetJSON struct {
	InstructionID string `json:"instruction_id"`
	Caller        string `json:"caller"`
	MarketSeed    string `json:"market_seed"`
	Team          uint8  `json:"team"`
	Amount        uint64 `json:"amount"`
	MultiplierBps uint64 `json:"multiplier_bps"`
	Nonce         uint64 `json:"nonce"`
	Sequence      int64  `json:"sequence"`
	Timestamp     int64  `json:"timestamp"`
}

func parsePlaceBet(data []byte) (*instruction.PlaceBet, error) {
	var j placeBetJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PlaceBet: %w", err)
	}

	instructionID, err := uuid.Parse(j.InstructionID)
	if err != nil {
		return nil, fmt.Errorf("parse instruction_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	seed, err := ledger.ParseSeed(j.MarketSeed)
	if err != nil {
		return nil, err
	}

	return &instruction.PlaceBet{
		InstructionID: instructionID,
		Caller:        caller,
		MarketSeed:    seed,
		Args: instruction.PlaceBetArgs{
			SelectedTeam:  j.Team,
			Amount:        j.Amount,
			MultiplierBps: j.MultiplierBps,
			Nonce:         j.Nonce,
		},
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type resolveMarketJSON struct {
	InstructionID string `json:"instruction_id"`
	Caller        string `json:"caller"`
	MarketSeed    string `json:"market_seed"`
	Result        uint8  `json:"result"`
	Sequence      int64  `json:"sequence"`
	Timestamp     int64  `json:"timestamp"`
}

func parseResolveMarket(data []byte) (*instruction.ResolveMarket, error) {
	var j resolveMarketJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ResolveMarket: %w", err)
	}

	instructionID, err := uuid.Parse(j.InstructionID)
	if err != nil {
		return nil, fmt.Errorf("parse instruction_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	seed, err := ledger.ParseSeed(j.MarketSeed)
	if err != nil {
		return nil, err
	}

	return &instruction.ResolveMarket{
		InstructionID: instructionID,
		Caller:        caller,
		MarketSeed:    seed,
		Result:        j.Result,
		Sequence:      j.Sequence,
		Timestamp:     j.Timestamp,
	}, nil
}

type claimPayoutJSON struct {
	InstructionID  string  `json:"instruction_id"`
	Caller         string  `json:"caller"`
	MarketSeed     string  `json:"market_seed"`
	Nonce          uint64  `json:"nonce"`
	FeeDestination *string `json:"fee_destination,omitempty"`
	Sequence       int64   `json:"sequence"`
	Timestamp      int64   `json:"timestamp"`
}

func parseClaimPayout(data []byte) (*instruction.ClaimPayout, error) {
	var j claimPayoutJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClaimPayout: %w", err)
	}

	instructionID, err := uuid.Parse(j.InstructionID)
	if err != nil {
		return nil, fmt.Errorf("parse instruction_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	seed, err := ledger.ParseSeed(j.MarketSeed)
	if err != nil {
		return nil, err
	}

	var feeDest *uuid.UUID
	if j.FeeDestination != nil {
		id, err := uuid.Parse(*j.FeeDestination)
		if err != nil {
			return nil, fmt.Errorf("parse fee_destination: %w", err)
		}
		feeDest = &id
	}

	return &instruction.ClaimPayout{
		InstructionID:  instructionID,
		Caller:         caller,
		MarketSeed:     seed,
		Nonce:          j.Nonce,
		FeeDestination: feeDest,
		Sequence:       j.Sequence,
		Timestamp:      j.Timestamp,
	}, nil
}

type fundAccountJSON struct {
	DepositID string `json:"deposit_id"`
	Caller    string `json:"caller"`
	Amount    uint64 `json:"amount"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseFundAccount(data []byte) (*instruction.FundAccount, error) {
	var j fundAccountJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FundAccount: %w", err)
	}

	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}

	return &instruction.FundAccount{
		DepositID: depositID,
		Caller:    caller,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}
