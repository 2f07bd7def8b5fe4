package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"WagerLedger/internal/observability"
)

// MarketCache is an optional read-through cache for market lookups.
// Implemented by the Redis-backed cache; nil disables caching.
type MarketCache interface {
	Get(ctx context.Context, seed string) (*MarketResponse, bool)
	Set(ctx context.Context, seed string, market *MarketResponse)
	Invalidate(ctx context.Context, seed string)
}

// QueryService provides read-only access to projection tables.
// All responses include as_of_sequence (the projection watermark) so
// callers can reason about freshness relative to the instruction log.
type QueryService struct {
	db      *sql.DB
	cache   MarketCache
	metrics *observability.Metrics
}

func NewQueryService(db *sql.DB, cache MarketCache, metrics *observability.Metrics) *QueryService {
	return &QueryService{db: db, cache: cache, metrics: metrics}
}

// GetMarket returns a single market by its seed (hex-encoded).
func (qs *QueryService) GetMarket(ctx context.Context, seed string) (*MarketResponse, error) {
	defer qs.observe("get_market", time.Now())

	if qs.cache != nil {
		if m, ok := qs.cache.Get(ctx, seed); ok {
			qs.cacheHit("market")
			return m, nil
		}
		qs.cacheMiss("market")
	}

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, qs.fail("get_market", fmt.Errorf("watermark: %w", err))
	}

	var m MarketResponse
	m.AsOfSequence = asOfSeq
	err = qs.db.QueryRowContext(ctx, `
		SELECT seed, home_code, away_code, start_time, close_time, state, result,
		       odds_home_bps, odds_away_bps, max_exposure, exposure, version
		FROM projections.markets
		WHERE seed = $1
	`, seed).Scan(
		&m.Seed, &m.HomeCode, &m.AwayCode, &m.StartTime, &m.CloseTime,
		&m.State, &m.Result, &m.OddsHomeBps, &m.OddsAwayBps,
		&m.MaxExposure, &m.Exposure, &m.Version,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, qs.fail("get_market", err)
	}

	if qs.cache != nil {
		qs.cache.Set(ctx, seed, &m)
	}
	return &m, nil
}

// GetBet returns a single bet by its (owner, market, nonce) key.
func (qs *QueryService) GetBet(ctx context.Context, owner, marketSeed string, nonce uint64) (*BetResponse, error) {
	defer qs.observe("get_bet", time.Now())

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, qs.fail("get_bet", fmt.Errorf("watermark: %w", err))
	}

	var b BetResponse
	b.AsOfSequence = asOfSeq
	err = qs.db.QueryRowContext(ctx, `
		SELECT owner_id, market_seed, nonce, team, multiplier_bps, amount,
		       payout_expected, placed_at, status, claimed, pnl
		FROM projections.bets
		WHERE owner_id = $1 AND market_seed = $2 AND nonce = $3
	`, owner, marketSeed, nonce).Scan(
		&b.Owner, &b.MarketSeed, &b.Nonce, &b.Team, &b.MultiplierBps,
		&b.Amount, &b.PayoutExpected, &b.PlacedAt, &b.Status, &b.Claimed, &b.PnL,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, qs.fail("get_bet", err)
	}
	return &b, nil
}

// ListMarketBets returns all bets placed on a market, newest first.
func (qs *QueryService) ListMarketBets(ctx context.Context, marketSeed string, limit int) ([]BetResponse, error) {
	defer qs.observe("list_market_bets", time.Now())

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, qs.fail("list_market_bets", err)
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT owner_id, market_seed, nonce, team, multiplier_bps, amount,
		       payout_expected, placed_at, status, claimed, pnl
		FROM projections.bets
		WHERE market_seed = $1
		ORDER BY placed_at DESC, nonce DESC
		LIMIT $2
	`, marketSeed, limit)
	if err != nil {
		return nil, qs.fail("list_market_bets", err)
	}
	defer rows.Close()

	var bets []BetResponse
	for rows.Next() {
		var b BetResponse
		b.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&b.Owner, &b.MarketSeed, &b.Nonce, &b.Team, &b.MultiplierBps,
			&b.Amount, &b.PayoutExpected, &b.PlacedAt, &b.Status, &b.Claimed, &b.PnL,
		); err != nil {
			return nil, qs.fail("list_market_bets", err)
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// ListOwnerBets returns all bets placed by an owner, newest first.
func (qs *QueryService) ListOwnerBets(ctx context.Context, owner string, limit int) ([]BetResponse, error) {
	defer qs.observe("list_owner_bets", time.Now())

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, qs.fail("list_owner_bets", err)
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT owner_id, market_seed, nonce, team, multiplier_bps, amount,
		       payout_expected, placed_at, status, claimed, pnl
		FROM projections.bets
		WHERE owner_id = $1
		ORDER BY placed_at DESC, nonce DESC
		LIMIT $2
	`, owner, limit)
	if err != nil {
		return nil, qs.fail("list_owner_bets", err)
	}
	defer rows.Close()

	var bets []BetResponse
	for rows.Next() {
		var b BetResponse
		b.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&b.Owner, &b.MarketSeed, &b.Nonce, &b.Team, &b.MultiplierBps,
			&b.Amount, &b.PayoutExpected, &b.PlacedAt, &b.Status, &b.Claimed, &b.PnL,
		); err != nil {
			return nil, qs.fail("list_owner_bets", err)
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// GetBalance returns the projected balance for an account path
// (e.g. "user:<uuid>" or "escrow:<seed>").
func (qs *QueryService) GetBalance(ctx context.Context, accountPath string) (*BalanceResponse, error) {
	defer qs.observe("get_balance", time.Now())

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, qs.fail("get_balance", fmt.Errorf("watermark: %w", err))
	}

	var balance int64
	err = qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		balance = 0
	} else if err != nil {
		return nil, qs.fail("get_balance", err)
	}

	return &BalanceResponse{
		AccountPath:  accountPath,
		Balance:      balance,
		AsOfSequence: asOfSeq,
	}, nil
}

// GetTransferHistory returns transfer log entries touching an account,
// with cursor-based pagination on sequence.
func (qs *QueryService) GetTransferHistory(
	ctx context.Context,
	accountPath string,
	limit int,
	beforeSequence *int64,
) ([]TransferHistoryEntry, error) {
	defer qs.observe("get_transfer_history", time.Now())

	query := `
		SELECT transfer_id, instruction_ref, sequence, from_account, to_account,
		       amount, transfer_type, timestamp
		FROM event_log.transfers
		WHERE (from_account = $1 OR to_account = $1)
	`
	args := []interface{}{accountPath}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, qs.fail("get_transfer_history", err)
	}
	defer rows.Close()

	var entries []TransferHistoryEntry
	for rows.Next() {
		var e TransferHistoryEntry
		if err := rows.Scan(
			&e.TransferID, &e.InstructionRef, &e.Sequence,
			&e.FromAccount, &e.ToAccount, &e.Amount, &e.TransferType, &e.Timestamp,
		); err != nil {
			return nil, qs.fail("get_transfer_history", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity in the instruction log and
// the global balance invariant across projected balances.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	defer qs.observe("verify_integrity", time.Now())

	report := &IntegrityReport{}

	// Each instruction's prev_hash must equal the previous instruction's state_hash.
	rows, err := qs.db.QueryContext(ctx, `
		SELECT i1.sequence
		FROM event_log.instructions i1
		LEFT JOIN event_log.instructions i2 ON i2.sequence = i1.sequence - 1
		WHERE i1.sequence > 0 AND i1.prev_hash != COALESCE(i2.state_hash, i1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, qs.fail("verify_integrity", err)
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, qs.fail("verify_integrity", err)
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, qs.fail("verify_integrity", err)
	}

	var sum sql.NullInt64
	if err := qs.db.QueryRowContext(ctx, `
		SELECT SUM(balance) FROM projections.balances
	`).Scan(&sum); err != nil {
		return nil, qs.fail("verify_integrity", err)
	}
	if sum.Valid {
		report.BalanceSum = sum.Int64
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && report.BalanceSum == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) observe(op string, start time.Time) {
	if qs.metrics == nil {
		return
	}
	qs.metrics.QueryRequests.WithLabelValues(op).Inc()
	qs.metrics.QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (qs *QueryService) fail(op string, err error) error {
	if qs.metrics != nil {
		qs.metrics.QueryErrors.WithLabelValues(op).Inc()
	}
	return err
}

func (qs *QueryService) cacheHit(cache string) {
	if qs.metrics != nil {
		qs.metrics.CacheHits.WithLabelValues(cache).Inc()
	}
}

func (qs *QueryService) cacheMiss(cache string) {
	if qs.metrics != nil {
		qs.metrics.CacheMisses.WithLabelValues(cache).Inc()
	}
}
