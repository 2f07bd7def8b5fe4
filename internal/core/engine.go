package core

import (
	"WagerLedger/internal/instruction"
	"WagerLedger/internal/ledger"
	fpmath "WagerLedger/internal/math"
	"WagerLedger/internal/observability"
	"encoding/json"
	"errors"
	"fmt"
	stdmath "math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// WagerCore is the single-threaded instruction processor
type WagerCore struct {
	sequence          int64
	hasher            *StateHasher
	store             *ledger.RecordStore
	book              *ledger.EscrowBook
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// CoreOutput carries one applied instruction out of the core: the envelope
// for the durable log, the balance movements it caused, clones of the records
// it touched, and an optional outbound notification.
type CoreOutput struct {
	Envelope  *instruction.Envelope
	Transfers []ledger.TransferRecord
	Config    *ledger.Config
	Market    *ledger.Market
	Bet       *ledger.Bet
	Notice    interface{}
}

// applyResult is the in-core form of a handler's effects, before cloning.
type applyResult struct {
	transfers []ledger.TransferRecord
	config    *ledger.Config
	market    *ledger.Market
	bet       *ledger.Bet
	notice    interface{}
}

func NewWagerCore(
	startSequence int64,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *WagerCore {
	return &WagerCore{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		store:             ledger.NewRecordStore(),
		book:              ledger.NewEscrowBook(),
		idempotency:       NewIdempotencyChecker(1_000_000, dbChecker),
		sequenceValidator: NewSequenceValidator(),
		metrics:           metrics,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// ProcessInstruction is the main processing pipeline
func (c *WagerCore) ProcessInstruction(ins instruction.Instruction) error {
	start := time.Now()
	insType := ins.Type().String()
	idempotencyKey := ins.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	isDuplicate := c.idempotency.IsDuplicate(insType, idempotencyKey)

	// Step 2: Sequence validation
	partition := c.getPartition(ins)
	sourceSequence := ins.SourceSequence()

	if err := c.sequenceValidator.ValidateSequence(partition, sourceSequence, idempotencyKey, isDuplicate); err != nil {
		return fmt.Errorf("sequence validation failed: %w", err)
	}

	// If duplicate, skip processing
	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreInstructionsRejected.WithLabelValues(insType, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: Dispatch. A rejected instruction mutates nothing: every handler
	// validates completely before its first transfer.
	res, err := c.dispatch(ins)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreInstructionsRejected.WithLabelValues(insType, rejectionReason(err)).Inc()
		}
		return fmt.Errorf("%s rejected: %w", insType, err)
	}

	// Step 4: Post-apply invariant checks
	if err := c.postCheckInvariants(res); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 5: State digest and hash chain
	stateDigest := c.computeStateDigest(res)
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	// Instruction types marshal to the ingestion wire form, so this payload
	// re-parses through ingestion.ParseRawInstruction during replay.
	payload, err := json.Marshal(ins)
	if err != nil {
		panic(fmt.Sprintf("FATAL: instruction payload not serializable: %v", err))
	}

	envelope := &instruction.Envelope{
		Sequence:        c.sequence,
		IdempotencyKey:  idempotencyKey,
		InstructionType: ins.Type(),
		MarketSeed:      ins.MarketRef(),
		Timestamp:       ins.UnixTime(),
		SourceSequence:  sourceSequence,
		Payload:         payload,
		StateHash:       stateHash,
		PrevHash:        prevHash,
	}

	output := CoreOutput{
		Envelope:  envelope,
		Transfers: res.transfers,
		Notice:    res.notice,
	}
	if res.config != nil {
		output.Config = res.config.Clone()
	}
	if res.market != nil {
		output.Market = res.market.Clone()
	}
	if res.bet != nil {
		output.Bet = res.bet.Clone()
	}

	c.sequence++

	// Step 6: Emit outputs.
	// Persistence: blocking send — the core stalls until the persistence
	// worker drains. This guarantees no instruction is lost.
	c.persistChan <- output

	// Projections: non-blocking send — drop on full. Projection workers
	// can rebuild from the instruction log if they fall behind.
	select {
	case c.projectionChan <- output:
	default:
		// Silently dropped — projection will catch up via rebuild
	}

	// Step 7: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(insType, idempotencyKey)

	// Record metrics
	if c.metrics != nil {
		c.metrics.CoreInstructionsApplied.WithLabelValues(insType).Inc()
		c.metrics.CoreInstructionDuration.WithLabelValues(insType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
		if res.market != nil {
			c.metrics.MarketExposure.WithLabelValues(res.market.Seed.String()).Set(float64(res.market.Exposure))
		}
	}

	return nil
}

// getPartition determines partition key for sequence validation
func (c *WagerCore) getPartition(ins instruction.Instruction) string {
	if seed := ins.MarketRef(); seed != nil {
		return fmt.Sprintf("market:%s", *seed)
	}
	return "global"
}

func (c *WagerCore) dispatch(ins instruction.Instruction) (*applyResult, error) {
	switch i := ins.(type) {
	case *instruction.InitializeConfig:
		return c.handleInitializeConfig(i)
	case *instruction.FundAccount:
		return c.handleFundAccount(i)
	case *instruction.OpenMarket:
		return c.handleOpenMarket(i)
	case *instruction.PlaceBet:
		return c.handlePlaceBet(i)
	case *instruction.ResolveMarket:
		return c.handleResolveMarket(i)
	case *instruction.ClaimPayout:
		return c.handleClaimPayout(i)
	default:
		return nil, fmt.Errorf("unknown instruction type: %T", ins)
	}
}

// handleInitializeConfig installs the Config singleton. Parameters are stored
// verbatim: zero fee, min_bet > max_bet, and similar degenerate configurations
// are the operator's to make.
func (c *WagerCore) handleInitializeConfig(ins *instruction.InitializeConfig) (*applyResult, error) {
	cfg := &ledger.Config{
		Authority:        ins.Caller,
		BaseAsset:        ins.Params.BaseAsset,
		FeeBps:           ins.Params.FeeBps,
		HouseCutBps:      ins.Params.HouseCutBps,
		MinBet:           ins.Params.MinBet,
		MaxBet:           ins.Params.MaxBet,
		MaxOddsBps:       ins.Params.MaxOddsBps,
		MaxMultiplierBps: ins.Params.MaxMultiplierBps,
		FeeDestination:   ins.Params.FeeDestination,
	}
	if err := c.store.CreateConfig(cfg); err != nil {
		return nil, err
	}
	return &applyResult{config: cfg}, nil
}

// handleFundAccount credits a user's spendable balance after the external
// settlement layer confirms a deposit.
func (c *WagerCore) handleFundAccount(ins *instruction.FundAccount) (*applyResult, error) {
	account := ledger.UserAccount(ins.Caller)
	if err := c.book.Credit(account, ins.Amount); err != nil {
		return nil, err
	}

	return &applyResult{
		transfers: []ledger.TransferRecord{{
			TransferID:     uuid.New(),
			InstructionRef: ins.IdempotencyKey(),
			Sequence:       c.sequence,
			From:           ledger.ExternalAccount("settlement"),
			To:             account,
			Amount:         ins.Amount,
			TransferType:   ledger.TransferTypeDeposit,
			Timestamp:      ins.Timestamp,
		}},
	}, nil
}

// handleOpenMarket creates a market record. Authority-gated. Odds are bounded
// at creation; start/close times are stored verbatim and never enforced as a
// betting cutover.
func (c *WagerCore) handleOpenMarket(ins *instruction.OpenMarket) (*applyResult, error) {
	cfg, err := c.store.Config()
	if err != nil {
		return nil, err
	}
	if ins.Caller != cfg.Authority {
		return nil, fmt.Errorf("caller %s is not the authority: %w", ins.Caller, ledger.ErrUnauthorized)
	}

	args := ins.Args
	if args.OddsHomeBps < fpmath.ScaleBps || args.OddsHomeBps > cfg.MaxOddsBps {
		return nil, fmt.Errorf("home odds %d: %w", args.OddsHomeBps, ledger.ErrInvalidOdds)
	}
	if args.OddsAwayBps < fpmath.ScaleBps || args.OddsAwayBps > cfg.MaxOddsBps {
		return nil, fmt.Errorf("away odds %d: %w", args.OddsAwayBps, ledger.ErrInvalidOdds)
	}

	market := &ledger.Market{
		Seed:        args.MarketSeed,
		HomeCode:    args.HomeCode,
		AwayCode:    args.AwayCode,
		StartTime:   args.StartTime,
		CloseTime:   args.CloseTime,
		State:       ledger.MarketStateOpen,
		Result:      ledger.ResultNone,
		OddsHomeBps: args.OddsHomeBps,
		OddsAwayBps: args.OddsAwayBps,
		MaxExposure: args.MaxExposure,
		Exposure:    0,
		Version:     1,
	}
	if err := c.store.CreateMarket(market); err != nil {
		return nil, err
	}

	return &applyResult{market: market}, nil
}

// handlePlaceBet validates the wager completely, then moves the stake into
// escrow and installs the bet record. Validation order matches settlement
// semantics: lifecycle, stake range, multiplier, team, odds, exposure, payout.
func (c *WagerCore) handlePlaceBet(ins *instruction.PlaceBet) (*applyResult, error) {
	cfg, err := c.store.Config()
	if err != nil {
		return nil, err
	}
	market, err := c.store.Market(ins.MarketSeed)
	if err != nil {
		return nil, err
	}

	args := ins.Args
	if market.State != ledger.MarketStateOpen {
		return nil, fmt.Errorf("market %s is %s: %w", market.Seed, market.State, ledger.ErrMarketClosed)
	}
	if args.Amount < cfg.MinBet || args.Amount > cfg.MaxBet {
		return nil, fmt.Errorf("amount %d outside [%d, %d]: %w", args.Amount, cfg.MinBet, cfg.MaxBet, ledger.ErrAmountOutOfRange)
	}
	if args.MultiplierBps < fpmath.ScaleBps || args.MultiplierBps > cfg.MaxMultiplierBps {
		return nil, fmt.Errorf("multiplier %d: %w", args.MultiplierBps, ledger.ErrInvalidMultiplier)
	}
	if args.SelectedTeam != 1 && args.SelectedTeam != 2 {
		return nil, fmt.Errorf("team %d: %w", args.SelectedTeam, ledger.ErrInvalidTeam)
	}
	odds := market.OddsFor(args.SelectedTeam)
	if odds < fpmath.ScaleBps || odds > cfg.MaxOddsBps {
		return nil, fmt.Errorf("odds %d: %w", odds, ledger.ErrInvalidOdds)
	}

	newExposure, err := fpmath.CheckedAdd(market.Exposure, args.Amount)
	if err != nil {
		return nil, fmt.Errorf("exposure: %w", ledger.ErrOverflow)
	}
	if newExposure > market.MaxExposure {
		return nil, fmt.Errorf("exposure %d > cap %d: %w", newExposure, market.MaxExposure, ledger.ErrMaxExposureExceeded)
	}

	payout, err := fpmath.PayoutExpected(args.Amount, odds, args.MultiplierBps)
	if err != nil {
		return nil, fmt.Errorf("payout: %w", ledger.ErrOverflow)
	}

	key := ledger.BetKey{Owner: ins.Caller, Market: ins.MarketSeed, Nonce: args.Nonce}
	if _, err := c.store.Bet(key); err == nil {
		return nil, fmt.Errorf("%s: %w", key.Path(), ledger.ErrRecordExists)
	}

	// All validation passed — the stake transfer is the only fallible step left.
	userAccount := ledger.UserAccount(ins.Caller)
	escrowAccount := ledger.EscrowAccount(ins.MarketSeed)
	if err := c.book.Transfer(userAccount, escrowAccount, args.Amount); err != nil {
		return nil, err
	}

	bet := &ledger.Bet{
		Owner:          ins.Caller,
		Market:         ins.MarketSeed,
		Nonce:          args.Nonce,
		SelectedTeam:   args.SelectedTeam,
		OddsHomeBps:    market.OddsHomeBps,
		OddsAwayBps:    market.OddsAwayBps,
		MultiplierBps:  args.MultiplierBps,
		Amount:         args.Amount,
		PayoutExpected: payout,
		PlacedAt:       ins.Timestamp,
		Status:         ledger.BetStatusPlaced,
		Claimed:        false,
		PnL:            0,
	}
	if err := c.store.CreateBet(bet); err != nil {
		panic(fmt.Sprintf("FATAL: bet key free at validation but create failed: %v", err))
	}

	market.Exposure = newExposure
	market.Version++

	return &applyResult{
		transfers: []ledger.TransferRecord{{
			TransferID:     uuid.New(),
			InstructionRef: ins.IdempotencyKey(),
			Sequence:       c.sequence,
			From:           userAccount,
			To:             escrowAccount,
			Amount:         args.Amount,
			TransferType:   ledger.TransferTypeStake,
			Timestamp:      ins.Timestamp,
		}},
		market: market,
		bet:    bet,
		notice: &instruction.BetPlaced{
			User:          ins.Caller,
			Market:        ins.MarketSeed.String(),
			Team:          args.SelectedTeam,
			Amount:        args.Amount,
			OddsBps:       odds,
			MultiplierBps: args.MultiplierBps,
		},
	}, nil
}

// handleResolveMarket declares a result. Authority-gated and irreversible:
// only an Open market can resolve, so a second resolution is rejected.
func (c *WagerCore) handleResolveMarket(ins *instruction.ResolveMarket) (*applyResult, error) {
	cfg, err := c.store.Config()
	if err != nil {
		return nil, err
	}
	if ins.Caller != cfg.Authority {
		return nil, fmt.Errorf("caller %s is not the authority: %w", ins.Caller, ledger.ErrUnauthorized)
	}

	market, err := c.store.Market(ins.MarketSeed)
	if err != nil {
		return nil, err
	}
	if ins.Result != 1 && ins.Result != 2 {
		return nil, fmt.Errorf("result %d: %w", ins.Result, ledger.ErrInvalidResult)
	}
	if market.State != ledger.MarketStateOpen {
		return nil, fmt.Errorf("market %s is %s: %w", market.Seed, market.State, ledger.ErrMarketClosed)
	}

	market.State = ledger.MarketStateResolved
	market.Result = ledger.Result(ins.Result)
	market.Version++

	return &applyResult{
		market: market,
		notice: &instruction.MarketResolved{
			Market: ins.MarketSeed.String(),
			Result: ins.Result,
		},
	}, nil
}

// handleClaimPayout settles one bet against a resolved market. The payout
// figure was fixed at placement; claim applies the platform fee and moves
// funds out of escrow under the market's capability.
func (c *WagerCore) handleClaimPayout(ins *instruction.ClaimPayout) (*applyResult, error) {
	cfg, err := c.store.Config()
	if err != nil {
		return nil, err
	}
	market, err := c.store.Market(ins.MarketSeed)
	if err != nil {
		return nil, err
	}

	key := ledger.BetKey{Owner: ins.Caller, Market: ins.MarketSeed, Nonce: ins.Nonce}
	bet, err := c.store.Bet(key)
	if err != nil {
		return nil, err
	}

	if market.State != ledger.MarketStateResolved {
		return nil, fmt.Errorf("market %s is %s: %w", market.Seed, market.State, ledger.ErrMarketNotResolved)
	}
	if bet.Claimed {
		return nil, fmt.Errorf("%s: %w", key.Path(), ledger.ErrAlreadyClaimed)
	}
	if bet.Owner != ins.Caller {
		return nil, fmt.Errorf("caller %s does not own %s: %w", ins.Caller, key.Path(), ledger.ErrUnauthorized)
	}

	var payout, fee uint64
	var pnl int64

	won := bet.Won(market.Result)
	if won {
		payout = bet.PayoutExpected
		if payout > stdmath.MaxInt64 {
			return nil, fmt.Errorf("payout %d: %w", payout, ledger.ErrOverflow)
		}
		fee, err = fpmath.FeeOnPayout(payout, cfg.FeeBps)
		if err != nil {
			return nil, fmt.Errorf("fee: %w", ledger.ErrOverflow)
		}
		pnl = int64(payout) - int64(bet.Amount)
	} else {
		if bet.Amount > stdmath.MaxInt64 {
			return nil, fmt.Errorf("amount %d: %w", bet.Amount, ledger.ErrOverflow)
		}
		pnl = -int64(bet.Amount)
	}

	var transfers []ledger.TransferRecord

	if payout > 0 {
		// When a fee destination is configured, the claim must name it
		// exactly. An omitted destination is rejected like a wrong one.
		if cfg.FeeDestination != nil {
			if ins.FeeDestination == nil || *ins.FeeDestination != *cfg.FeeDestination {
				return nil, fmt.Errorf("fee destination mismatch: %w", ledger.ErrUnauthorized)
			}
		}

		// The fee is deducted from the winner's net whether or not a fee
		// destination exists. Without one the fee remains in escrow.
		net, err := fpmath.CheckedSub(payout, fee)
		if err != nil {
			return nil, fmt.Errorf("net payout: %w", ledger.ErrOverflow)
		}

		escrowAccount := ledger.EscrowAccount(ins.MarketSeed)
		if c.book.Balance(escrowAccount) < payout {
			return nil, fmt.Errorf("escrow %s short of %d: %w", ins.MarketSeed, payout, ledger.ErrInsufficientFunds)
		}
		cap := ledger.DeriveEscrowCapability(ins.MarketSeed)

		if cfg.FeeDestination != nil && fee > 0 {
			feeAccount := ledger.FeeAccount(*cfg.FeeDestination)
			if err := c.book.TransferFromEscrow(cap, escrowAccount, feeAccount, fee); err != nil {
				panic(fmt.Sprintf("FATAL: fee transfer failed after balance pre-check: %v", err))
			}
			transfers = append(transfers, ledger.TransferRecord{
				TransferID:     uuid.New(),
				InstructionRef: ins.IdempotencyKey(),
				Sequence:       c.sequence,
				From:           escrowAccount,
				To:             feeAccount,
				Amount:         fee,
				TransferType:   ledger.TransferTypeFee,
				Timestamp:      ins.Timestamp,
			})
		}

		ownerAccount := ledger.UserAccount(bet.Owner)
		if err := c.book.TransferFromEscrow(cap, escrowAccount, ownerAccount, net); err != nil {
			panic(fmt.Sprintf("FATAL: payout transfer failed after balance pre-check: %v", err))
		}
		transfers = append(transfers, ledger.TransferRecord{
			TransferID:     uuid.New(),
			InstructionRef: ins.IdempotencyKey(),
			Sequence:       c.sequence,
			From:           escrowAccount,
			To:             ownerAccount,
			Amount:         net,
			TransferType:   ledger.TransferTypePayout,
			Timestamp:      ins.Timestamp,
		})
	}

	if won {
		bet.Status = ledger.BetStatusSettledWin
	} else {
		bet.Status = ledger.BetStatusSettledLose
	}
	bet.Claimed = true
	bet.PnL = pnl

	market.Exposure = fpmath.SaturatingSub(market.Exposure, bet.Amount)
	market.Version++

	return &applyResult{
		transfers: transfers,
		market:    market,
		bet:       bet,
		notice: &instruction.BetClaimed{
			User:   bet.Owner,
			Market: ins.MarketSeed.String(),
			Payout: payout,
			PnL:    pnl,
		},
	}, nil
}

// rejectionReason maps a handler error to a stable metrics label.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ledger.ErrMarketClosed):
		return "market_closed"
	case errors.Is(err, ledger.ErrMarketNotResolved):
		return "market_not_resolved"
	case errors.Is(err, ledger.ErrInvalidOdds):
		return "invalid_odds"
	case errors.Is(err, ledger.ErrInvalidMultiplier):
		return "invalid_multiplier"
	case errors.Is(err, ledger.ErrInvalidTeam):
		return "invalid_team"
	case errors.Is(err, ledger.ErrInvalidResult):
		return "invalid_result"
	case errors.Is(err, ledger.ErrAmountOutOfRange):
		return "amount_out_of_range"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrMaxExposureExceeded):
		return "max_exposure_exceeded"
	case errors.Is(err, ledger.ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ledger.ErrBetNotFound):
		return "bet_not_found"
	case errors.Is(err, ledger.ErrOverflow):
		return "overflow"
	case errors.Is(err, ledger.ErrRecordExists):
		return "record_exists"
	case errors.Is(err, ledger.ErrRecordNotFound):
		return "record_not_found"
	default:
		return "invalid"
	}
}

// computeStateDigest creates canonical bytes over the records and accounts
// touched by one instruction. Accounts are sorted by path so the digest is
// independent of transfer ordering.
func (c *WagerCore) computeStateDigest(res *applyResult) []byte {
	touched := make(map[ledger.AccountID]bool)
	for _, t := range res.transfers {
		touched[t.From] = true
		touched[t.To] = true
	}

	accounts := make([]ledger.AccountID, 0, len(touched))
	for id := range touched {
		accounts = append(accounts, id)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Path() < accounts[j].Path()
	})

	digest := make([]byte, 0, len(accounts)*64)
	for _, id := range accounts {
		path := id.Path()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendUint64LE(digest, c.book.Balance(id))
	}

	if res.config != nil {
		digest = append(digest, []byte(ledger.ConfigKeyPath)...)
		digest = append(digest, res.config.Authority[:]...)
		digest = appendUint64LE(digest, res.config.FeeBps)
		digest = appendUint64LE(digest, res.config.MaxOddsBps)
		digest = appendUint64LE(digest, res.config.MaxMultiplierBps)
	}

	if res.market != nil {
		m := res.market
		digest = append(digest, []byte("market:")...)
		digest = append(digest, m.Seed[:]...)
		digest = append(digest, byte(m.State), byte(m.Result))
		digest = appendUint64LE(digest, m.Exposure)
		digest = appendUint64LE(digest, uint64(m.Version))
	}

	if res.bet != nil {
		b := res.bet
		path := b.Key().Path()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = append(digest, byte(b.Status))
		if b.Claimed {
			digest = append(digest, 1)
		} else {
			digest = append(digest, 0)
		}
		digest = appendUint64LE(digest, b.PayoutExpected)
		digest = appendUint64LE(digest, uint64(b.PnL))
	}

	return digest
}

func appendUint64LE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants validates invariants after a handler has applied.
// Violations here mean the core itself is wrong, so they are fatal.
func (c *WagerCore) postCheckInvariants(res *applyResult) error {
	if res.market != nil {
		if err := c.book.ValidateEscrowConservation(res.market.Seed); err != nil {
			return fmt.Errorf("post-check escrow conservation: %w", err)
		}
		if res.market.Exposure > res.market.MaxExposure {
			return fmt.Errorf("post-check exposure: market %s exposure %d > cap %d",
				res.market.Seed, res.market.Exposure, res.market.MaxExposure)
		}
	}
	return nil
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
// This mirrors persistence.SnapshotData but uses typed fields.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	Balances        map[ledger.AccountID]uint64
	Config          *ledger.Config
	Markets         []*ledger.Market
	Bets            []*ledger.Bet
	PaidIn          map[ledger.Seed]uint64
	PaidOut         map[ledger.Seed]uint64
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// RestoreFromSnapshot restores the core's in-memory state from a snapshot.
// On warm restart, load the latest snapshot then replay the instruction log.
func (c *WagerCore) RestoreFromSnapshot(snap *SnapshotState) {
	c.sequence = snap.Sequence + 1 // Next sequence to assign
	c.hasher.SetPrevHash(snap.StateHash)

	for id, balance := range snap.Balances {
		c.book.SetBalance(id, balance)
	}
	for seed, in := range snap.PaidIn {
		c.book.RestoreFlows(seed, in, snap.PaidOut[seed])
	}

	if snap.Config != nil {
		c.store.RestoreConfig(snap.Config)
	}
	for _, m := range snap.Markets {
		c.store.RestoreMarket(m)
	}
	for _, b := range snap.Bets {
		c.store.RestoreBet(b)
	}

	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.SetExpectedSequence(partition, nextSeq)
	}
}

// WarmLRU loads recent idempotency keys into the LRU cache so recently
// applied instructions do not fall through to the cold path.
func (c *WagerCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the current global sequence number.
func (c *WagerCore) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *WagerCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *WagerCore) CreateSnapshotState() *SnapshotState {
	paidIn, paidOut := c.book.Flows()
	var cfg *ledger.Config
	if stored, err := c.store.Config(); err == nil {
		cfg = stored
	}
	return &SnapshotState{
		Sequence:        c.sequence - 1, // Last processed sequence
		StateHash:       c.hasher.GetPrevHash(),
		Balances:        c.book.Snapshot(),
		Config:          cfg,
		Markets:         c.store.AllMarkets(),
		Bets:            c.store.AllBets(),
		PaidIn:          paidIn,
		PaidOut:         paidOut,
		SequenceState:   c.sequenceValidator.AllPartitions(),
		IdempotencyKeys: c.idempotency.lru.GetAllKeys(),
	}
}

// Balance exposes a read of the escrow book for query serving after the core
// has been stopped, and for tests.
func (c *WagerCore) Balance(id ledger.AccountID) uint64 {
	return c.book.Balance(id)
}

// Store exposes the record store for read-only use by tests and startup code.
func (c *WagerCore) Store() *ledger.RecordStore {
	return c.store
}
