package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"WagerLedger/internal/instruction"
	"WagerLedger/internal/ledger"
)

// testCore wraps a WagerCore with buffered output channels and per-partition
// source sequence counters, so tests submit instructions the way a well-behaved
// producer would.
type testCore struct {
	t          *testing.T
	core       *WagerCore
	persist    chan CoreOutput
	projection chan CoreOutput
	seqs       map[string]int64
}

func newTestCore(t *testing.T) *testCore {
	t.Helper()
	persist := make(chan CoreOutput, 256)
	projection := make(chan CoreOutput, 256)
	return &testCore{
		t:          t,
		core:       NewWagerCore(0, persist, projection, nil, nil),
		persist:    persist,
		projection: projection,
		seqs:       make(map[string]int64),
	}
}

func (tc *testCore) nextSeq(partition string) int64 {
	seq := tc.seqs[partition]
	tc.seqs[partition] = seq + 1
	return seq
}

func marketPartition(seed ledger.Seed) string {
	return fmt.Sprintf("market:%s", seed)
}

// drain empties the persist channel and returns everything emitted so far.
func (tc *testCore) drain() []CoreOutput {
	var outputs []CoreOutput
	for {
		select {
		case out := <-tc.persist:
			outputs = append(outputs, out)
		default:
			return outputs
		}
	}
}

func (tc *testCore) initConfig(authority uuid.UUID, feeBps uint64, feeDest *uuid.UUID) error {
	return tc.core.ProcessInstruction(&instruction.InitializeConfig{
		InstructionID: uuid.New(),
		Caller:        authority,
		Params: instruction.ConfigParams{
			FeeBps:           feeBps,
			MinBet:           100,
			MaxBet:           10_000_000,
			MaxOddsBps:       1_000_000,
			MaxMultiplierBps: 100_000,
			FeeDestination:   feeDest,
		},
		Sequence:  tc.nextSeq("global"),
		Timestamp: 1_700_000_000,
	})
}

func (tc *testCore) fund(user uuid.UUID, amount uint64) error {
	return tc.core.ProcessInstruction(&instruction.FundAccount{
		DepositID: uuid.New(),
		Caller:    user,
		Amount:    amount,
		Sequence:  tc.nextSeq("global"),
		Timestamp: 1_700_000_001,
	})
}

func (tc *testCore) openMarket(authority uuid.UUID, seed ledger.Seed, oddsHome, oddsAway, maxExposure uint64) error {
	return tc.core.ProcessInstruction(&instruction.OpenMarket{
		InstructionID: uuid.New(),
		Caller:        authority,
		Args: instruction.OpenMarketArgs{
			MarketSeed:  seed,
			HomeCode:    10,
			AwayCode:    20,
			StartTime:   1_700_100_000,
			CloseTime:   1_700_200_000,
			OddsHomeBps: oddsHome,
			OddsAwayBps: oddsAway,
			MaxExposure: maxExposure,
		},
		Sequence:  tc.nextSeq(marketPartition(seed)),
		Timestamp: 1_700_000_002,
	})
}

func (tc *testCore) placeBet(user uuid.UUID, seed ledger.Seed, team uint8, amount, multiplierBps, nonce uint64) error {
	return tc.core.ProcessInstruction(&instruction.PlaceBet{
		InstructionID: uuid.New(),
		Caller:        user,
		MarketSeed:    seed,
		Args: instruction.PlaceBetArgs{
			SelectedTeam:  team,
			Amount:        amount,
			MultiplierBps: multiplierBps,
			Nonce:         nonce,
		},
		Sequence:  tc.nextSeq(marketPartition(seed)),
		Timestamp: 1_700_000_003,
	})
}

func (tc *testCore) resolve(authority uuid.UUID, seed ledger.Seed, result uint8) error {
	return tc.core.ProcessInstruction(&instruction.ResolveMarket{
		InstructionID: uuid.New(),
		Caller:        authority,
		MarketSeed:    seed,
		Result:        result,
		Sequence:      tc.nextSeq(marketPartition(seed)),
		Timestamp:     1_700_000_004,
	})
}

func (tc *testCore) claim(user uuid.UUID, seed ledger.Seed, nonce uint64, feeDest *uuid.UUID) error {
	return tc.core.ProcessInstruction(&instruction.ClaimPayout{
		InstructionID:  uuid.New(),
		Caller:         user,
		MarketSeed:     seed,
		Nonce:          nonce,
		FeeDestination: feeDest,
		Sequence:       tc.nextSeq(marketPartition(seed)),
		Timestamp:      1_700_000_005,
	})
}

// setupTwoSidedMarket funds two bettors and stakes them on opposite teams so
// the escrow pool can cover the winning payout.
func (tc *testCore) setupTwoSidedMarket(authority, winner, loser uuid.UUID, feeDest *uuid.UUID, seed ledger.Seed) {
	tc.t.Helper()
	if err := tc.initConfig(authority, 500, feeDest); err != nil {
		tc.t.Fatal(err)
	}
	if err := tc.fund(winner, 5_000_000); err != nil {
		tc.t.Fatal(err)
	}
	if err := tc.fund(loser, 5_000_000); err != nil {
		tc.t.Fatal(err)
	}
	if err := tc.openMarket(authority, seed, 20_000, 18_000, 100_000_000); err != nil {
		tc.t.Fatal(err)
	}
	// winner: 1_000_000 on home at 2.0 -> payout 2_000_000
	if err := tc.placeBet(winner, seed, 1, 1_000_000, 10_000, 1); err != nil {
		tc.t.Fatal(err)
	}
	// loser: 1_500_000 on away -> escrow pool now 2_500_000
	if err := tc.placeBet(loser, seed, 2, 1_500_000, 10_000, 1); err != nil {
		tc.t.Fatal(err)
	}
}

func TestWinnerSettlement(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	winner := uuid.New()
	loser := uuid.New()
	feeDest := uuid.New()
	seed := ledger.SeedFromString("final-2026")

	tc.setupTwoSidedMarket(authority, winner, loser, &feeDest, seed)

	if got := tc.core.Balance(ledger.EscrowAccount(seed)); got != 2_500_000 {
		t.Fatalf("escrow pool = %d, want 2_500_000", got)
	}

	if err := tc.resolve(authority, seed, 1); err != nil {
		t.Fatal(err)
	}
	if err := tc.claim(winner, seed, 1, &feeDest); err != nil {
		t.Fatal(err)
	}

	// payout = floor(1_000_000 * 20_000 * 10_000 / 10_000²) = 2_000_000
	// fee    = floor(2_000_000 * 500 / 10_000)              = 100_000
	// net    = 1_900_000
	if got := tc.core.Balance(ledger.UserAccount(winner)); got != 4_000_000+1_900_000 {
		t.Errorf("winner balance = %d, want 5_900_000", got)
	}
	if got := tc.core.Balance(ledger.FeeAccount(feeDest)); got != 100_000 {
		t.Errorf("fee balance = %d, want 100_000", got)
	}
	if got := tc.core.Balance(ledger.EscrowAccount(seed)); got != 500_000 {
		t.Errorf("escrow remainder = %d, want 500_000", got)
	}

	bet, err := tc.core.Store().Bet(ledger.BetKey{Owner: winner, Market: seed, Nonce: 1})
	if err != nil {
		t.Fatal(err)
	}
	if bet.Status != ledger.BetStatusSettledWin || !bet.Claimed {
		t.Errorf("bet not settled as win: status=%v claimed=%v", bet.Status, bet.Claimed)
	}
	if bet.PnL != 1_000_000 { // payout 2M - stake 1M
		t.Errorf("pnl = %d, want 1_000_000", bet.PnL)
	}

	// The claim emits a fee transfer then a net payout transfer, and the
	// outbound notice carries the GROSS payout.
	outputs := tc.drain()
	claims := envelopesByType(outputs, instruction.TypeClaimPayout)
	if len(claims) != 1 {
		t.Fatalf("claim outputs = %d, want 1", len(claims))
	}
	claimOut := claims[0]
	if len(claimOut.Transfers) != 2 {
		t.Fatalf("claim transfers = %d, want 2", len(claimOut.Transfers))
	}
	if claimOut.Transfers[0].TransferType != ledger.TransferTypeFee || claimOut.Transfers[0].Amount != 100_000 {
		t.Errorf("first transfer = %v/%d, want fee/100_000", claimOut.Transfers[0].TransferType, claimOut.Transfers[0].Amount)
	}
	if claimOut.Transfers[1].TransferType != ledger.TransferTypePayout || claimOut.Transfers[1].Amount != 1_900_000 {
		t.Errorf("second transfer = %v/%d, want payout/1_900_000", claimOut.Transfers[1].TransferType, claimOut.Transfers[1].Amount)
	}
	notice, ok := claimOut.Notice.(*instruction.BetClaimed)
	if !ok {
		t.Fatalf("claim notice = %T, want *BetClaimed", claimOut.Notice)
	}
	if notice.Payout != 2_000_000 {
		t.Errorf("notice payout = %d, want gross 2_000_000", notice.Payout)
	}
}

func TestLoserSettlement(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	winner := uuid.New()
	loser := uuid.New()
	seed := ledger.SeedFromString("final-2026-b")

	tc.setupTwoSidedMarket(authority, winner, loser, nil, seed)

	if err := tc.resolve(authority, seed, 1); err != nil {
		t.Fatal(err)
	}
	tc.drain()

	if err := tc.claim(loser, seed, 1, nil); err != nil {
		t.Fatal(err)
	}

	// Losing claim moves no funds; it just settles the record.
	if got := tc.core.Balance(ledger.UserAccount(loser)); got != 3_500_000 {
		t.Errorf("loser balance = %d, want 3_500_000", got)
	}
	if got := tc.core.Balance(ledger.EscrowAccount(seed)); got != 2_500_000 {
		t.Errorf("escrow = %d, want 2_500_000 untouched", got)
	}

	outputs := tc.drain()
	if len(outputs) != 1 {
		t.Fatalf("outputs = %d, want 1", len(outputs))
	}
	if len(outputs[0].Transfers) != 0 {
		t.Errorf("losing claim emitted %d transfers, want 0", len(outputs[0].Transfers))
	}

	bet, err := tc.core.Store().Bet(ledger.BetKey{Owner: loser, Market: seed, Nonce: 1})
	if err != nil {
		t.Fatal(err)
	}
	if bet.Status != ledger.BetStatusSettledLose || !bet.Claimed {
		t.Errorf("bet not settled as loss: status=%v claimed=%v", bet.Status, bet.Claimed)
	}
	if bet.PnL != -1_500_000 {
		t.Errorf("pnl = %d, want -1_500_000", bet.PnL)
	}
}

func TestFeeStaysInEscrowWithoutDestination(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	winner := uuid.New()
	loser := uuid.New()
	seed := ledger.SeedFromString("no-fee-dest")

	tc.setupTwoSidedMarket(authority, winner, loser, nil, seed)

	if err := tc.resolve(authority, seed, 1); err != nil {
		t.Fatal(err)
	}
	tc.drain()

	if err := tc.claim(winner, seed, 1, nil); err != nil {
		t.Fatal(err)
	}

	// Fee is still deducted from the winner's net, but with no configured
	// destination it remains in escrow: 2_500_000 - 1_900_000 = 600_000.
	if got := tc.core.Balance(ledger.UserAccount(winner)); got != 4_000_000+1_900_000 {
		t.Errorf("winner balance = %d, want 5_900_000", got)
	}
	if got := tc.core.Balance(ledger.EscrowAccount(seed)); got != 600_000 {
		t.Errorf("escrow = %d, want 600_000", got)
	}

	outputs := tc.drain()
	if len(outputs) != 1 || len(outputs[0].Transfers) != 1 {
		t.Fatalf("expected single payout transfer, got %+v", outputs)
	}
	if outputs[0].Transfers[0].TransferType != ledger.TransferTypePayout {
		t.Errorf("transfer type = %v, want payout", outputs[0].Transfers[0].TransferType)
	}
}

// A winner's gross payout is pre-checked against the escrow pool: a market
// whose only stake is the winner's own cannot pay out 2x that stake.
func TestClaimRequiresFundedEscrow(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	bettor := uuid.New()
	seed := ledger.SeedFromString("one-sided")

	if err := tc.initConfig(authority, 500, nil); err != nil {
		t.Fatal(err)
	}
	if err := tc.fund(bettor, 5_000_000); err != nil {
		t.Fatal(err)
	}
	if err := tc.openMarket(authority, seed, 20_000, 18_000, 100_000_000); err != nil {
		t.Fatal(err)
	}
	if err := tc.placeBet(bettor, seed, 1, 1_000_000, 10_000, 1); err != nil {
		t.Fatal(err)
	}
	if err := tc.resolve(authority, seed, 1); err != nil {
		t.Fatal(err)
	}

	// Escrow holds 1_000_000 against a 2_000_000 payout
	err := tc.claim(bettor, seed, 1, nil)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// Rejected claim leaves the bet unsettled and escrow intact
	bet, lookupErr := tc.core.Store().Bet(ledger.BetKey{Owner: bettor, Market: seed, Nonce: 1})
	if lookupErr != nil {
		t.Fatal(lookupErr)
	}
	if bet.Claimed || bet.Status != ledger.BetStatusPlaced {
		t.Errorf("rejected claim settled the bet: status=%v claimed=%v", bet.Status, bet.Claimed)
	}
	if got := tc.core.Balance(ledger.EscrowAccount(seed)); got != 1_000_000 {
		t.Errorf("escrow = %d, want 1_000_000", got)
	}
}

func TestDoubleClaimRejected(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	winner := uuid.New()
	loser := uuid.New()
	seed := ledger.SeedFromString("double-claim")

	tc.setupTwoSidedMarket(authority, winner, loser, nil, seed)

	if err := tc.resolve(authority, seed, 1); err != nil {
		t.Fatal(err)
	}
	if err := tc.claim(winner, seed, 1, nil); err != nil {
		t.Fatal(err)
	}

	err := tc.claim(winner, seed, 1, nil)
	if !errors.Is(err, ledger.ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}

	// Balance unchanged by the rejected claim
	if got := tc.core.Balance(ledger.UserAccount(winner)); got != 5_900_000 {
		t.Errorf("winner balance = %d, want 5_900_000", got)
	}
}

func TestClaimBeforeResolutionRejected(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	winner := uuid.New()
	loser := uuid.New()
	seed := ledger.SeedFromString("too-early")

	tc.setupTwoSidedMarket(authority, winner, loser, nil, seed)

	err := tc.claim(winner, seed, 1, nil)
	if !errors.Is(err, ledger.ErrMarketNotResolved) {
		t.Fatalf("expected ErrMarketNotResolved, got %v", err)
	}
}

func TestClaimByNonOwnerRejected(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	winner := uuid.New()
	loser := uuid.New()
	seed := ledger.SeedFromString("wrong-owner")

	tc.setupTwoSidedMarket(authority, winner, loser, nil, seed)
	if err := tc.resolve(authority, seed, 1); err != nil {
		t.Fatal(err)
	}

	// The bet key is (caller, market, nonce) — a different caller simply has
	// no bet under that key.
	intruder := uuid.New()
	err := tc.claim(intruder, seed, 1, nil)
	if !errors.Is(err, ledger.ErrBetNotFound) {
		t.Fatalf("expected ErrBetNotFound, got %v", err)
	}
}

func TestClaimFeeDestinationMismatchRejected(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	winner := uuid.New()
	loser := uuid.New()
	feeDest := uuid.New()
	seed := ledger.SeedFromString("fee-mismatch")

	tc.setupTwoSidedMarket(authority, winner, loser, &feeDest, seed)
	if err := tc.resolve(authority, seed, 1); err != nil {
		t.Fatal(err)
	}

	wrongDest := uuid.New()
	err := tc.claim(winner, seed, 1, &wrongDest)
	if !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestClaimOmittedFeeDestinationRejected(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	winner := uuid.New()
	loser := uuid.New()
	feeDest := uuid.New()
	seed := ledger.SeedFromString("fee-omitted")

	tc.setupTwoSidedMarket(authority, winner, loser, &feeDest, seed)
	if err := tc.resolve(authority, seed, 1); err != nil {
		t.Fatal(err)
	}

	// A winning claim that names no destination is rejected just like one
	// naming the wrong destination; no fee may flow to an account the claim
	// never named.
	err := tc.claim(winner, seed, 1, nil)
	if !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if got := tc.core.Balance(ledger.FeeAccount(feeDest)); got != 0 {
		t.Errorf("fee balance = %d, want 0", got)
	}
	if got := tc.core.Balance(ledger.EscrowAccount(seed)); got != 2_500_000 {
		t.Errorf("escrow = %d, want 2_500_000 untouched", got)
	}

	// The corrected claim at the next sequence settles normally.
	if err := tc.claim(winner, seed, 1, &feeDest); err != nil {
		t.Fatalf("corrected claim: %v", err)
	}
	if got := tc.core.Balance(ledger.FeeAccount(feeDest)); got != 100_000 {
		t.Errorf("fee balance = %d, want 100_000", got)
	}
}

func TestResolveByNonAuthorityRejected(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	bettor := uuid.New()
	seed := ledger.SeedFromString("rogue-resolver")

	if err := tc.initConfig(authority, 500, nil); err != nil {
		t.Fatal(err)
	}
	if err := tc.openMarket(authority, seed, 20_000, 18_000, 1_000_000); err != nil {
		t.Fatal(err)
	}

	err := tc.resolve(bettor, seed, 1)
	if !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	market, _ := tc.core.Store().Market(seed)
	if market.State != ledger.MarketStateOpen {
		t.Error("rejected resolve must not change market state")
	}
}

func TestResolveTwiceRejected(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	seed := ledger.SeedFromString("double-resolve")

	if err := tc.initConfig(authority, 500, nil); err != nil {
		t.Fatal(err)
	}
	if err := tc.openMarket(authority, seed, 20_000, 18_000, 1_000_000); err != nil {
		t.Fatal(err)
	}
	if err := tc.resolve(authority, seed, 1); err != nil {
		t.Fatal(err)
	}

	err := tc.resolve(authority, seed, 2)
	if !errors.Is(err, ledger.ErrMarketClosed) {
		t.Fatalf("expected ErrMarketClosed, got %v", err)
	}

	market, _ := tc.core.Store().Market(seed)
	if market.Result != ledger.ResultTeam1 {
		t.Error("second resolve must not change the declared result")
	}
}

func TestBetOnResolvedMarketRejected(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	bettor := uuid.New()
	seed := ledger.SeedFromString("late-bet")

	if err := tc.initConfig(authority, 500, nil); err != nil {
		t.Fatal(err)
	}
	if err := tc.fund(bettor, 1_000_000); err != nil {
		t.Fatal(err)
	}
	if err := tc.openMarket(authority, seed, 20_000, 18_000, 1_000_000); err != nil {
		t.Fatal(err)
	}
	if err := tc.resolve(authority, seed, 2); err != nil {
		t.Fatal(err)
	}

	err := tc.placeBet(bettor, seed, 1, 1000, 10_000, 1)
	if !errors.Is(err, ledger.ErrMarketClosed) {
		t.Fatalf("expected ErrMarketClosed, got %v", err)
	}
	if got := tc.core.Balance(ledger.UserAccount(bettor)); got != 1_000_000 {
		t.Errorf("rejected bet must not move funds: balance = %d", got)
	}
}

func TestPlaceBetValidation(t *testing.T) {
	authority := uuid.New()
	bettor := uuid.New()
	seed := ledger.SeedFromString("validation")

	tests := []struct {
		name    string
		team    uint8
		amount  uint64
		mult    uint64
		wantErr error
	}{
		{"below min bet", 1, 99, 10_000, ledger.ErrAmountOutOfRange},
		{"above max bet", 1, 10_000_001, 10_000, ledger.ErrAmountOutOfRange},
		{"multiplier below scale", 1, 1000, 9_999, ledger.ErrInvalidMultiplier},
		{"multiplier above cap", 1, 1000, 100_001, ledger.ErrInvalidMultiplier},
		{"team zero", 0, 1000, 10_000, ledger.ErrInvalidTeam},
		{"team three", 3, 1000, 10_000, ledger.ErrInvalidTeam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestCore(t)
			if err := tc.initConfig(authority, 500, nil); err != nil {
				t.Fatal(err)
			}
			if err := tc.fund(bettor, 100_000_000); err != nil {
				t.Fatal(err)
			}
			if err := tc.openMarket(authority, seed, 20_000, 18_000, 1_000_000_000); err != nil {
				t.Fatal(err)
			}

			err := tc.placeBet(bettor, seed, tt.team, tt.amount, tt.mult, 1)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPlaceBetInsufficientFunds(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	bettor := uuid.New()
	seed := ledger.SeedFromString("broke")

	if err := tc.initConfig(authority, 500, nil); err != nil {
		t.Fatal(err)
	}
	if err := tc.fund(bettor, 500); err != nil {
		t.Fatal(err)
	}
	if err := tc.openMarket(authority, seed, 20_000, 18_000, 1_000_000); err != nil {
		t.Fatal(err)
	}

	err := tc.placeBet(bettor, seed, 1, 1000, 10_000, 1)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestRejectedThenCorrectedResubmission(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	bettor := uuid.New()
	seed := ledger.SeedFromString("retry")

	if err := tc.initConfig(authority, 500, nil); err != nil {
		t.Fatal(err)
	}
	if err := tc.fund(bettor, 1_000_000); err != nil {
		t.Fatal(err)
	}
	if err := tc.openMarket(authority, seed, 20_000, 18_000, 1_000_000); err != nil {
		t.Fatal(err)
	}

	// Rejected instruction has zero effect but still consumes its sequence.
	if err := tc.placeBet(bettor, seed, 3, 1000, 10_000, 1); !errors.Is(err, ledger.ErrInvalidTeam) {
		t.Fatalf("expected ErrInvalidTeam, got %v", err)
	}
	if _, err := tc.core.Store().Bet(ledger.BetKey{Owner: bettor, Market: seed, Nonce: 1}); !errors.Is(err, ledger.ErrBetNotFound) {
		t.Fatal("rejected bet must not be recorded")
	}

	// Corrected resubmission at the next sequence succeeds exactly once.
	if err := tc.placeBet(bettor, seed, 1, 1000, 10_000, 1); err != nil {
		t.Fatalf("corrected resubmission: %v", err)
	}

	if got := tc.core.Balance(ledger.UserAccount(bettor)); got != 999_000 {
		t.Errorf("bettor balance = %d, want 999_000 (single stake debit)", got)
	}
	market, _ := tc.core.Store().Market(seed)
	if market.Exposure != 1000 {
		t.Errorf("exposure = %d, want 1000", market.Exposure)
	}
}

func TestExposureCapEnforced(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	bettor := uuid.New()
	seed := ledger.SeedFromString("capped")

	if err := tc.initConfig(authority, 500, nil); err != nil {
		t.Fatal(err)
	}
	if err := tc.fund(bettor, 10_000_000); err != nil {
		t.Fatal(err)
	}
	if err := tc.openMarket(authority, seed, 20_000, 18_000, 1500); err != nil {
		t.Fatal(err)
	}

	if err := tc.placeBet(bettor, seed, 1, 1000, 10_000, 1); err != nil {
		t.Fatal(err)
	}

	// Second stake would push exposure to 2000 > 1500
	err := tc.placeBet(bettor, seed, 1, 1000, 10_000, 2)
	if !errors.Is(err, ledger.ErrMaxExposureExceeded) {
		t.Fatalf("expected ErrMaxExposureExceeded, got %v", err)
	}

	market, _ := tc.core.Store().Market(seed)
	if market.Exposure != 1000 {
		t.Errorf("exposure = %d, want 1000", market.Exposure)
	}
}

func TestExposureReleasedOnClaim(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	winner := uuid.New()
	loser := uuid.New()
	seed := ledger.SeedFromString("exposure-release")

	tc.setupTwoSidedMarket(authority, winner, loser, nil, seed)
	if err := tc.resolve(authority, seed, 1); err != nil {
		t.Fatal(err)
	}

	market, _ := tc.core.Store().Market(seed)
	if market.Exposure != 2_500_000 {
		t.Fatalf("exposure before claims = %d, want 2_500_000", market.Exposure)
	}

	if err := tc.claim(winner, seed, 1, nil); err != nil {
		t.Fatal(err)
	}
	market, _ = tc.core.Store().Market(seed)
	if market.Exposure != 1_500_000 {
		t.Errorf("exposure after winner claim = %d, want 1_500_000", market.Exposure)
	}

	if err := tc.claim(loser, seed, 1, nil); err != nil {
		t.Fatal(err)
	}
	market, _ = tc.core.Store().Market(seed)
	if market.Exposure != 0 {
		t.Errorf("exposure after both claims = %d, want 0", market.Exposure)
	}
}

func TestOpenMarketOddsValidation(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	seed := ledger.SeedFromString("bad-odds")

	if err := tc.initConfig(authority, 500, nil); err != nil {
		t.Fatal(err)
	}

	// Odds below 1.0 would guarantee a loss for the bettor
	err := tc.openMarket(authority, seed, 9_999, 18_000, 1_000_000)
	if !errors.Is(err, ledger.ErrInvalidOdds) {
		t.Fatalf("expected ErrInvalidOdds, got %v", err)
	}

	// Odds above the configured cap
	err = tc.openMarket(authority, seed, 20_000, 1_000_001, 1_000_000)
	if !errors.Is(err, ledger.ErrInvalidOdds) {
		t.Fatalf("expected ErrInvalidOdds, got %v", err)
	}
}

func TestOpenMarketRequiresAuthority(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	seed := ledger.SeedFromString("not-yours")

	if err := tc.initConfig(authority, 500, nil); err != nil {
		t.Fatal(err)
	}

	err := tc.openMarket(uuid.New(), seed, 20_000, 18_000, 1_000_000)
	if !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestDuplicateInstructionSkipped(t *testing.T) {
	tc := newTestCore(t)
	bettor := uuid.New()

	deposit := &instruction.FundAccount{
		DepositID: uuid.New(),
		Caller:    bettor,
		Amount:    1000,
		Sequence:  tc.nextSeq("global"),
		Timestamp: 1_700_000_000,
	}

	if err := tc.core.ProcessInstruction(deposit); err != nil {
		t.Fatal(err)
	}
	if got := tc.core.Balance(ledger.UserAccount(bettor)); got != 1000 {
		t.Fatalf("balance = %d, want 1000", got)
	}

	// Redelivery of the same deposit: same idempotency key, stale sequence.
	// It must be silently skipped, not applied twice.
	if err := tc.core.ProcessInstruction(deposit); err != nil {
		t.Fatalf("duplicate should be skipped without error, got %v", err)
	}
	if got := tc.core.Balance(ledger.UserAccount(bettor)); got != 1000 {
		t.Errorf("duplicate applied: balance = %d, want 1000", got)
	}

	// Only one output emitted
	if outputs := tc.drain(); len(outputs) != 1 {
		t.Errorf("outputs = %d, want 1", len(outputs))
	}
}

func TestSequenceGapRejected(t *testing.T) {
	tc := newTestCore(t)
	bettor := uuid.New()

	if err := tc.fund(bettor, 1000); err != nil {
		t.Fatal(err)
	}

	// Skip ahead: expected 1, send 5
	err := tc.core.ProcessInstruction(&instruction.FundAccount{
		DepositID: uuid.New(),
		Caller:    bettor,
		Amount:    1000,
		Sequence:  5,
		Timestamp: 1_700_000_000,
	})
	if err == nil {
		t.Fatal("expected sequence gap rejection")
	}
	if got := tc.core.Balance(ledger.UserAccount(bettor)); got != 1000 {
		t.Errorf("gapped instruction applied: balance = %d", got)
	}
}

func TestHashChainLinks(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	bettor := uuid.New()

	if err := tc.initConfig(authority, 500, nil); err != nil {
		t.Fatal(err)
	}
	if err := tc.fund(bettor, 1000); err != nil {
		t.Fatal(err)
	}
	if err := tc.fund(bettor, 2000); err != nil {
		t.Fatal(err)
	}

	outputs := tc.drain()
	if len(outputs) != 3 {
		t.Fatalf("outputs = %d, want 3", len(outputs))
	}

	for i, out := range outputs {
		if out.Envelope.Sequence != int64(i) {
			t.Errorf("envelope %d sequence = %d", i, out.Envelope.Sequence)
		}
		if i > 0 && out.Envelope.PrevHash != outputs[i-1].Envelope.StateHash {
			t.Errorf("envelope %d prev hash does not link to envelope %d state hash", i, i-1)
		}
		if out.Envelope.StateHash == out.Envelope.PrevHash {
			t.Errorf("envelope %d state hash equals prev hash", i)
		}
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	winner := uuid.New()
	loser := uuid.New()
	seed := ledger.SeedFromString("snapshot-rt")

	tc.setupTwoSidedMarket(authority, winner, loser, nil, seed)
	if err := tc.resolve(authority, seed, 1); err != nil {
		t.Fatal(err)
	}

	snap := tc.core.CreateSnapshotState()

	// Restore into a fresh core and continue with the claim
	persist := make(chan CoreOutput, 256)
	projection := make(chan CoreOutput, 256)
	restored := NewWagerCore(0, persist, projection, nil, nil)
	restored.RestoreFromSnapshot(snap)

	if restored.GetSequence() != tc.core.GetSequence() {
		t.Fatalf("restored sequence = %d, want %d", restored.GetSequence(), tc.core.GetSequence())
	}
	if restored.GetStateHash() != tc.core.GetStateHash() {
		t.Fatal("restored state hash mismatch")
	}
	if got := restored.Balance(ledger.EscrowAccount(seed)); got != 2_500_000 {
		t.Fatalf("restored escrow = %d, want 2_500_000", got)
	}

	err := restored.ProcessInstruction(&instruction.ClaimPayout{
		InstructionID: uuid.New(),
		Caller:        winner,
		MarketSeed:    seed,
		Nonce:         1,
		Sequence:      tc.seqs[marketPartition(seed)],
		Timestamp:     1_700_000_005,
	})
	if err != nil {
		t.Fatalf("claim after restore: %v", err)
	}
	if got := restored.Balance(ledger.UserAccount(winner)); got != 5_900_000 {
		t.Errorf("winner balance after restore+claim = %d, want 5_900_000", got)
	}
}

func TestBetRecordSnapshotsOdds(t *testing.T) {
	tc := newTestCore(t)
	authority := uuid.New()
	bettor := uuid.New()
	seed := ledger.SeedFromString("odds-locked")

	if err := tc.initConfig(authority, 500, nil); err != nil {
		t.Fatal(err)
	}
	if err := tc.fund(bettor, 1_000_000); err != nil {
		t.Fatal(err)
	}
	if err := tc.openMarket(authority, seed, 25_000, 18_000, 10_000_000); err != nil {
		t.Fatal(err)
	}
	if err := tc.placeBet(bettor, seed, 1, 10_000, 10_000, 1); err != nil {
		t.Fatal(err)
	}

	bet, err := tc.core.Store().Bet(ledger.BetKey{Owner: bettor, Market: seed, Nonce: 1})
	if err != nil {
		t.Fatal(err)
	}
	if bet.OddsHomeBps != 25_000 || bet.OddsAwayBps != 18_000 {
		t.Errorf("bet odds = %d/%d, want 25_000/18_000", bet.OddsHomeBps, bet.OddsAwayBps)
	}
	// payout fixed at placement: 10_000 * 2.5 = 25_000
	if bet.PayoutExpected != 25_000 {
		t.Errorf("payout expected = %d, want 25_000", bet.PayoutExpected)
	}
}

// Conservation sweep: across extreme odds, multipliers, and fee rates a
// market can never pay out more than was staked into its escrow. Underfunded
// pools reject the claim rather than overdraw.
func TestEscrowConservationUnderExtremeParams(t *testing.T) {
	cases := []struct {
		name          string
		feeBps        uint64
		oddsBps       uint64
		multiplierBps uint64
		winnerStake   uint64
		loserStake    uint64
	}{
		{"even odds no fee", 0, 10_000, 10_000, 1_000_000, 1_000_000},
		{"max odds max multiplier", 500, 1_000_000, 100_000, 1000, 9_000_000},
		{"max fee", 9_999, 20_000, 10_000, 1_000_000, 3_000_000},
		{"long shot thin pool", 500, 1_000_000, 10_000, 100, 200},
		{"max stake max params", 9_999, 1_000_000, 100_000, 10_000_000, 10_000_000},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestCore(t)
			authority := uuid.New()
			winner := uuid.New()
			loser := uuid.New()
			feeDest := uuid.New()
			seed := ledger.SeedFromString("sweep-" + tt.name)

			if err := tc.initConfig(authority, tt.feeBps, &feeDest); err != nil {
				t.Fatal(err)
			}
			if err := tc.fund(winner, tt.winnerStake); err != nil {
				t.Fatal(err)
			}
			if err := tc.fund(loser, tt.loserStake); err != nil {
				t.Fatal(err)
			}
			if err := tc.openMarket(authority, seed, tt.oddsBps, tt.oddsBps, 1<<60); err != nil {
				t.Fatal(err)
			}
			if err := tc.placeBet(winner, seed, 1, tt.winnerStake, tt.multiplierBps, 1); err != nil {
				t.Fatal(err)
			}
			if err := tc.placeBet(loser, seed, 2, tt.loserStake, 10_000, 1); err != nil {
				t.Fatal(err)
			}
			if err := tc.resolve(authority, seed, 1); err != nil {
				t.Fatal(err)
			}

			if err := tc.claim(winner, seed, 1, &feeDest); err != nil && !errors.Is(err, ledger.ErrInsufficientFunds) {
				t.Fatalf("winner claim: %v", err)
			}
			if err := tc.claim(loser, seed, 1, &feeDest); err != nil {
				t.Fatalf("loser claim: %v", err)
			}

			paidIn, paidOut := tc.core.book.PaidIn(seed), tc.core.book.PaidOut(seed)
			if paidOut > paidIn {
				t.Errorf("paid out %d exceeds paid in %d", paidOut, paidIn)
			}
			if got := tc.core.Balance(ledger.EscrowAccount(seed)); got != paidIn-paidOut {
				t.Errorf("escrow balance = %d, want %d", got, paidIn-paidOut)
			}
			if err := tc.core.book.ValidateEscrowConservation(seed); err != nil {
				t.Error(err)
			}
		})
	}
}

func envelopesByType(outputs []CoreOutput, insType instruction.InstructionType) []CoreOutput {
	var matched []CoreOutput
	for _, o := range outputs {
		if o.Envelope.InstructionType == insType {
			matched = append(matched, o)
		}
	}
	return matched
}
