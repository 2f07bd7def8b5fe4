package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// ProjectionOutput mirrors the data needed by projection workers.
// The orchestrator bridges between core.CoreOutput and this.
type ProjectionOutput struct {
	Sequence        int64
	InstructionType string
	MarketSeed      *string
	Transfers       []TransferEntry
	Market          *MarketRow
	Bet             *BetRow
	Timestamp       int64
}

// TransferEntry is a simplified transfer for projection consumption.
type TransferEntry struct {
	FromAccount  string
	ToAccount    string
	Amount       uint64
	TransferType int32
}

// MarketRow is the projected market record.
type MarketRow struct {
	Seed        string
	HomeCode    uint64
	AwayCode    uint64
	StartTime   int64
	CloseTime   int64
	State       uint8
	Result      uint8
	OddsHomeBps uint64
	OddsAwayBps uint64
	MaxExposure uint64
	Exposure    uint64
	Version     int64
}

// BetRow is the projected bet record.
type BetRow struct {
	Owner          string
	Market         string
	Nonce          uint64
	SelectedTeam   uint8
	MultiplierBps  uint64
	Amount         uint64
	PayoutExpected uint64
	PlacedAt       int64
	Status         uint8
	Claimed        bool
	PnL            int64
}

// ProjectionWorker updates projection tables from processed instructions.
// The projection channel is non-blocking with drop. If projections fall
// behind, they can be rebuilt from the instruction log.
type ProjectionWorker struct {
	db         *sql.DB
	inputChan  <-chan ProjectionOutput
	lastSeq    int64
	invalidate func(ctx context.Context, seed string)
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
	}
}

// SetInvalidator registers a callback invoked after a market projection
// update, used to drop stale cache entries.
func (pw *ProjectionWorker) SetInvalidator(fn func(ctx context.Context, seed string)) {
	pw.invalidate = fn
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Sequence, err)
				// Continue — projections are eventually consistent
				// and can be rebuilt from the instruction log
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if output.Market != nil {
		if err := pw.upsertMarketProjection(ctx, tx, output.Market, output.Sequence); err != nil {
			return fmt.Errorf("market projection: %w", err)
		}
	}

	if output.Bet != nil {
		if err := pw.upsertBetProjection(ctx, tx, output.Bet, output.Sequence); err != nil {
			return fmt.Errorf("bet projection: %w", err)
		}
	}

	// Update balance projections from transfers
	for _, t := range output.Transfers {
		if err := pw.updateBalanceProjection(ctx, tx, t, output.Sequence); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	// Update projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if output.Market != nil && pw.invalidate != nil {
		pw.invalidate(ctx, output.Market.Seed)
	}
	return nil
}

func (pw *ProjectionWorker) upsertMarketProjection(ctx context.Context, tx *sql.Tx, m *MarketRow, seq int64) error {
	// Version guard: never let a stale replayed row overwrite a newer one.
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.markets
			(seed, home_code, away_code, start_time, close_time, state, result,
			 odds_home_bps, odds_away_bps, max_exposure, exposure, version, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (seed) DO UPDATE SET
			state = $6, result = $7, exposure = $11, version = $12, last_sequence = $13
		WHERE projections.markets.version < $12
	`, m.Seed, m.HomeCode, m.AwayCode, m.StartTime, m.CloseTime, m.State, m.Result,
		m.OddsHomeBps, m.OddsAwayBps, m.MaxExposure, m.Exposure, m.Version, seq)
	return err
}

func (pw *ProjectionWorker) upsertBetProjection(ctx context.Context, tx *sql.Tx, b *BetRow, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.bets
			(owner_id, market_seed, nonce, team, multiplier_bps, amount,
			 payout_expected, placed_at, status, claimed, pnl, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (owner_id, market_seed, nonce) DO UPDATE SET
			status = $9, claimed = $10, pnl = $11, last_sequence = $12
	`, b.Owner, b.Market, b.Nonce, b.SelectedTeam, b.MultiplierBps, b.Amount,
		b.PayoutExpected, b.PlacedAt, b.Status, b.Claimed, b.PnL, seq)
	return err
}

func (pw *ProjectionWorker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, t TransferEntry, seq int64) error {
	// From account: decrease balance
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		VALUES ($1, -$2, $3)
		ON CONFLICT (account_path)
		DO UPDATE SET balance = projections.balances.balance - $2, last_sequence = $3
	`, t.FromAccount, int64(t.Amount), seq); err != nil {
		return err
	}

	// To account: increase balance
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_path)
		DO UPDATE SET balance = projections.balances.balance + $2, last_sequence = $3
	`, t.ToAccount, int64(t.Amount), seq); err != nil {
		return err
	}

	return nil
}

// RebuildProjections rebuilds the balance projection from the transfer log.
// Market and bet projections are repopulated by the core replay path, which
// re-emits every record through the projection channel.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	// Truncate all projection tables
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.markets`,
		`TRUNCATE projections.bets`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Rebuild credit side from transfer records
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		SELECT
			to_account AS account_path,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.transfers
		GROUP BY to_account
		ON CONFLICT (account_path) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	// Subtract debit side
	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		SELECT
			from_account AS account_path,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.transfers
		GROUP BY from_account
		ON CONFLICT (account_path) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	log.Println("INFO: projection rebuild complete")
	return nil
}
