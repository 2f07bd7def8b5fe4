package ingestion_test

import (
	"WagerLedger/internal/ingestion"
	"WagerLedger/internal/instruction"
	"WagerLedger/internal/ledger"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
)

const testSeedHex = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawInstruction {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawInstruction{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseInitializeConfig(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "550e8400-e29b-41d4-a716-446655440000",
		"caller":         "660e8400-e29b-41d4-a716-446655440001",
		"params": map[string]interface{}{
			"fee_bps":            uint64(500),
			"house_cut_bps":      uint64(0),
			"min_bet":            uint64(10_000),
			"max_bet":            uint64(100_000_000),
			"max_odds_bps":       uint64(1_000_000),
			"max_multiplier_bps": uint64(50_000),
			"fee_destination":    "770e8400-e29b-41d4-a716-446655440002",
		},
		"sequence":  int64(0),
		"timestamp": int64(1700000000),
	}

	raw := rawFromJSON(t, payload)
	ins, err := ingestion.ParseRawInstruction(raw, "InitializeConfig")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	ic, ok := ins.(*instruction.InitializeConfig)
	if !ok {
		t.Fatalf("expected *instruction.InitializeConfig, got %T", ins)
	}

	if ic.Params.FeeBps != 500 {
		t.Errorf("fee_bps: got %d, want 500", ic.Params.FeeBps)
	}
	if ic.Params.MaxOddsBps != 1_000_000 {
		t.Errorf("max_odds_bps: got %d, want 1_000_000", ic.Params.MaxOddsBps)
	}
	if ic.Params.FeeDestination == nil {
		t.Fatal("fee_destination: got nil, want set")
	}
	if ic.Type() != instruction.TypeInitializeConfig {
		t.Errorf("type: got %v, want InitializeConfig", ic.Type())
	}
	if ic.MarketRef() != nil {
		t.Errorf("market ref: got %v, want nil", *ic.MarketRef())
	}
}

func TestParseOpenMarket(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "550e8400-e29b-41d4-a716-446655440000",
		"caller":         "660e8400-e29b-41d4-a716-446655440001",
		"market_seed":    testSeedHex,
		"home_code":      uint64(101),
		"away_code":      uint64(202),
		"start_time":     int64(1700001000),
		"close_time":     int64(1700005000),
		"odds_home_bps":  uint64(18_500),
		"odds_away_bps":  uint64(21_000),
		"max_exposure":   uint64(1_000_000_000),
		"sequence":       int64(0),
		"timestamp":      int64(1700000000),
	}

	raw := rawFromJSON(t, payload)
	ins, err := ingestion.ParseRawInstruction(raw, "OpenMarket")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	om, ok := ins.(*instruction.OpenMarket)
	if !ok {
		t.Fatalf("expected *instruction.OpenMarket, got %T", ins)
	}

	wantSeed, _ := ledger.ParseSeed(testSeedHex)
	if om.Args.MarketSeed != wantSeed {
		t.Errorf("market_seed: got %s, want %s", om.Args.MarketSeed, wantSeed)
	}
	if om.Args.OddsHomeBps != 18_500 {
		t.Errorf("odds_home_bps: got %d, want 18_500", om.Args.OddsHomeBps)
	}
	if om.Args.MaxExposure != 1_000_000_000 {
		t.Errorf("max_exposure: got %d, want 1_000_000_000", om.Args.MaxExposure)
	}
	if om.MarketRef() == nil || *om.MarketRef() != testSeedHex {
		t.Errorf("market ref: got %v, want %s", om.MarketRef(), testSeedHex)
	}
}

func TestParsePlaceBet(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "550e8400-e29b-41d4-a716-446655440000",
		"caller":         "660e8400-e29b-41d4-a716-446655440001",
		"market_seed":    testSeedHex,
		"team":           uint8(1),
		"amount":         uint64(1_000_000),
		"multiplier_bps": uint64(10_000),
		"nonce":          uint64(7),
		"sequence":       int64(3),
		"timestamp":      int64(1700000100),
	}

	raw := rawFromJSON(t, payload)
	ins, err := ingestion.ParseRawInstruction(raw, "PlaceBet")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pb, ok := ins.(*instruction.PlaceBet)
	if !ok {
		t.Fatalf("expected *instruction.PlaceBet, got %T", ins)
	}

	if pb.Args.SelectedTeam != 1 {
		t.Errorf("team: got %d, want 1", pb.Args.SelectedTeam)
	}
	if pb.Args.Amount != 1_000_000 {
		t.Errorf("amount: got %d, want 1_000_000", pb.Args.Amount)
	}
	if pb.Args.Nonce != 7 {
		t.Errorf("nonce: got %d, want 7", pb.Args.Nonce)
	}
	if pb.SourceSequence() != 3 {
		t.Errorf("sequence: got %d, want 3", pb.SourceSequence())
	}
}

func TestParseResolveMarket(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "550e8400-e29b-41d4-a716-446655440000",
		"caller":         "660e8400-e29b-41d4-a716-446655440001",
		"market_seed":    testSeedHex,
		"result":         uint8(2),
		"sequence":       int64(9),
		"timestamp":      int64(1700009000),
	}

	raw := rawFromJSON(t, payload)
	ins, err := ingestion.ParseRawInstruction(raw, "ResolveMarket")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	rm, ok := ins.(*instruction.ResolveMarket)
	if !ok {
		t.Fatalf("expected *instruction.ResolveMarket, got %T", ins)
	}

	if rm.Result != 2 {
		t.Errorf("result: got %d, want 2", rm.Result)
	}
}

func TestParseClaimPayout(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "550e8400-e29b-41d4-a716-446655440000",
		"caller":         "660e8400-e29b-41d4-a716-446655440001",
		"market_seed":    testSeedHex,
		"nonce":          uint64(7),
		"sequence":       int64(12),
		"timestamp":      int64(1700010000),
	}

	raw := rawFromJSON(t, payload)
	ins, err := ingestion.ParseRawInstruction(raw, "ClaimPayout")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cp, ok := ins.(*instruction.ClaimPayout)
	if !ok {
		t.Fatalf("expected *instruction.ClaimPayout, got %T", ins)
	}

	if cp.Nonce != 7 {
		t.Errorf("nonce: got %d, want 7", cp.Nonce)
	}
	if cp.FeeDestination != nil {
		t.Errorf("fee_destination: got %v, want nil", cp.FeeDestination)
	}
}

func TestParseFundAccount(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id": "550e8400-e29b-41d4-a716-446655440000",
		"caller":     "660e8400-e29b-41d4-a716-446655440001",
		"amount":     uint64(5_000_000),
		"sequence":   int64(1),
		"timestamp":  int64(1700000050),
	}

	raw := rawFromJSON(t, payload)
	ins, err := ingestion.ParseRawInstruction(raw, "FundAccount")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	fa, ok := ins.(*instruction.FundAccount)
	if !ok {
		t.Fatalf("expected *instruction.FundAccount, got %T", ins)
	}

	if fa.Amount != 5_000_000 {
		t.Errorf("amount: got %d, want 5_000_000", fa.Amount)
	}
	if fa.IdempotencyKey() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("idempotency key: got %s", fa.IdempotencyKey())
	}
}

func TestParseUnknownInstructionType_Fails(t *testing.T) {
	raw := ingestion.RawInstruction{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawInstruction(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown instruction type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawInstruction{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawInstruction(raw, "PlaceBet")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "not-a-uuid",
		"caller":         "also-not-a-uuid",
		"market_seed":    testSeedHex,
		"team":           uint8(1),
		"amount":         uint64(1),
		"multiplier_bps": uint64(10_000),
		"nonce":          uint64(0),
		"sequence":       int64(0),
		"timestamp":      int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawInstruction(raw, "PlaceBet")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}

func TestParseBadSeed_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "550e8400-e29b-41d4-a716-446655440000",
		"caller":         "660e8400-e29b-41d4-a716-446655440001",
		"market_seed":    "zz",
		"result":         uint8(1),
		"sequence":       int64(0),
		"timestamp":      int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawInstruction(raw, "ResolveMarket")
	if err == nil {
		t.Fatal("expected error for malformed market seed")
	}
}

// The instruction log stores the marshaled form of the typed instructions and
// replay feeds those payloads back through this parser. Every instruction type
// must round-trip exactly.
func TestStoredPayloadRoundTrip(t *testing.T) {
	seed, err := ledger.ParseSeed(testSeedHex)
	if err != nil {
		t.Fatal(err)
	}
	id := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	caller := uuid.MustParse("660e8400-e29b-41d4-a716-446655440001")
	feeDest := uuid.MustParse("770e8400-e29b-41d4-a716-446655440002")
	baseAsset := "native"

	cases := []instruction.Instruction{
		&instruction.InitializeConfig{
			InstructionID: id,
			Caller:        caller,
			Params: instruction.ConfigParams{
				BaseAsset:        &baseAsset,
				FeeBps:           500,
				HouseCutBps:      100,
				MinBet:           100,
				MaxBet:           10_000_000,
				MaxOddsBps:       1_000_000,
				MaxMultiplierBps: 100_000,
				FeeDestination:   &feeDest,
			},
			Sequence:  0,
			Timestamp: 1_700_000_000,
		},
		&instruction.FundAccount{
			DepositID: id,
			Caller:    caller,
			Amount:    5_000_000,
			Sequence:  1,
			Timestamp: 1_700_000_001,
		},
		&instruction.OpenMarket{
			InstructionID: id,
			Caller:        caller,
			Args: instruction.OpenMarketArgs{
				MarketSeed:  seed,
				HomeCode:    10,
				AwayCode:    20,
				StartTime:   1_700_100_000,
				CloseTime:   1_700_200_000,
				OddsHomeBps: 20_000,
				OddsAwayBps: 18_000,
				MaxExposure: 1_000_000,
			},
			Sequence:  0,
			Timestamp: 1_700_000_002,
		},
		&instruction.PlaceBet{
			InstructionID: id,
			Caller:        caller,
			MarketSeed:    seed,
			Args: instruction.PlaceBetArgs{
				SelectedTeam:  1,
				Amount:        1_000_000,
				MultiplierBps: 10_000,
				Nonce:         7,
			},
			Sequence:  1,
			Timestamp: 1_700_000_003,
		},
		&instruction.ResolveMarket{
			InstructionID: id,
			Caller:        caller,
			MarketSeed:    seed,
			Result:        2,
			Sequence:      2,
			Timestamp:     1_700_000_004,
		},
		&instruction.ClaimPayout{
			InstructionID:  id,
			Caller:         caller,
			MarketSeed:     seed,
			Nonce:          7,
			FeeDestination: &feeDest,
			Sequence:       3,
			Timestamp:      1_700_000_005,
		},
		&instruction.ClaimPayout{
			InstructionID: id,
			Caller:        caller,
			MarketSeed:    seed,
			Nonce:         8,
			Sequence:      4,
			Timestamp:     1_700_000_006,
		},
	}

	for _, ins := range cases {
		t.Run(ins.Type().String(), func(t *testing.T) {
			raw := rawFromJSON(t, ins)
			parsed, err := ingestion.ParseRawInstruction(raw, ins.Type().String())
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if !reflect.DeepEqual(parsed, ins) {
				t.Errorf("round trip mismatch:\n got %#v\nwant %#v", parsed, ins)
			}
		})
	}
}
