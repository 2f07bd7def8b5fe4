package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotManager handles creating and loading state snapshots for recovery.
// Snapshots contain balances, escrow flow counters, the Config/Market/Bet
// records, idempotency LRU keys, sequence counters, and the last state hash.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData contains the full in-memory state at a point in time.
type SnapshotData struct {
	Sequence        int64             `json:"sequence"`
	StateHash       []byte            `json:"state_hash"`
	Balances        map[string]uint64 `json:"balances"` // AccountID.Path() -> balance
	Config          *ConfigSnapshot   `json:"config,omitempty"`
	Markets         []MarketSnapshot  `json:"markets"`
	Bets            []BetSnapshot     `json:"bets"`
	PaidIn          map[string]uint64 `json:"paid_in"`          // market seed hex -> lifetime in
	PaidOut         map[string]uint64 `json:"paid_out"`         // market seed hex -> lifetime out
	SequenceState   map[string]int64  `json:"sequence_state"`   // partition -> next expected seq
	IdempotencyKeys []string          `json:"idempotency_keys"` // Recent keys for LRU warming
	CreatedAt       time.Time         `json:"created_at"`
}

// ConfigSnapshot is the serializable Config singleton.
type ConfigSnapshot struct {
	Authority        string  `json:"authority"`
	BaseAsset        *string `json:"base_asset,omitempty"`
	FeeBps           uint64  `json:"fee_bps"`
	HouseCutBps      uint64  `json:"house_cut_bps"`
	MinBet           uint64  `json:"min_bet"`
	MaxBet           uint64  `json:"max_bet"`
	MaxOddsBps       uint64  `json:"max_odds_bps"`
	MaxMultiplierBps uint64  `json:"max_multiplier_bps"`
	FeeDestination   *string `json:"fee_destination,omitempty"`
}

// MarketSnapshot is a serializable market record.
type MarketSnapshot struct {
	Seed        string `json:"seed"`
	HomeCode    uint64 `json:"home_code"`
	AwayCode    uint64 `json:"away_code"`
	StartTime   int64  `json:"start_time"`
	CloseTime   int64  `json:"close_time"`
	State       uint8  `json:"state"`
	Result      uint8  `json:"result"`
	OddsHomeBps uint64 `json:"odds_home_bps"`
	OddsAwayBps uint64 `json:"odds_away_bps"`
	MaxExposure uint64 `json:"max_exposure"`
	Exposure    uint64 `json:"exposure"`
	Version     int64  `json:"version"`
}

// BetSnapshot is a serializable bet record.
type BetSnapshot struct {
	Owner          string `json:"owner"`
	Market         string `json:"market"`
	Nonce          uint64 `json:"nonce"`
	SelectedTeam   uint8  `json:"team"`
	OddsHomeBps    uint64 `json:"odds_home_bps"`
	OddsAwayBps    uint64 `json:"odds_away_bps"`
	MultiplierBps  uint64 `json:"multiplier_bps"`
	Amount         uint64 `json:"amount"`
	PayoutExpected uint64 `json:"payout_expected"`
	PlacedAt       int64  `json:"placed_at"`
	Status         uint8  `json:"status"`
	Claimed        bool   `json:"claimed"`
	PnL            int64  `json:"pnl"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are taken
// periodically and verified by replaying instructions from the snapshot
// sequence forward.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	sizeBytes := len(data)
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, sizeBytes, snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot. On warm restart,
// load the latest snapshot then replay instructions from snapshot.sequence+1.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No snapshot — cold start
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadInstructionsFrom loads instructions from a given sequence for replay.
// Used for warm restart (replay from snapshot) and cold restart (replay all).
func (sm *SnapshotManager) LoadInstructionsFrom(ctx context.Context, fromSequence int64, limit int) ([]InstructionRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, instruction_type, idempotency_key, market_seed, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM event_log.instructions
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instructions []InstructionRow
	for rows.Next() {
		var r InstructionRow
		if err := rows.Scan(
			&r.Sequence, &r.InstructionType, &r.IdempotencyKey, &r.MarketSeed,
			&r.Payload, &r.StateHash, &r.PrevHash, &r.Timestamp, &r.SourceSequence,
		); err != nil {
			return nil, err
		}
		instructions = append(instructions, r)
	}

	return instructions, rows.Err()
}

// GetLatestSequence returns the highest sequence in the instruction log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.instructions
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty instruction log
	}
	return seq.Int64, nil
}
