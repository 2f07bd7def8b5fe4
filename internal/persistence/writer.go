package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// InstructionLogWriter writes instructions and transfers to Postgres using
// batch inserts. Multi-row INSERT keeps the writer portable; switch to pgx
// CopyFrom if write throughput ever becomes the bottleneck.
type InstructionLogWriter struct {
	db           *sql.DB
	batchSize    int
	flushTimeout time.Duration
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// InstructionRow represents a row in event_log.instructions
type InstructionRow struct {
	Sequence        int64
	InstructionType string
	IdempotencyKey  string
	MarketSeed      *string
	Payload         []byte // JSON-encoded instruction payload
	StateHash       []byte
	PrevHash        []byte
	Timestamp       time.Time
	SourceSequence  int64
}

// TransferRow represents a row in event_log.transfers
type TransferRow struct {
	TransferID     string
	InstructionRef string
	Sequence       int64
	FromAccount    string
	ToAccount      string
	Amount         int64
	TransferType   int32
	Timestamp      int64
}

func NewInstructionLogWriter(db *sql.DB, batchSize int, flushTimeout time.Duration) *InstructionLogWriter {
	return &InstructionLogWriter{
		db:           db,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
	}
}

// WriteInstructionBatch writes a batch of instructions to event_log.instructions
// using multi-row INSERT.
func (w *InstructionLogWriter) WriteInstructionBatch(ctx context.Context, ex execer, instructions []InstructionRow) error {
	if len(instructions) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.instructions
		(sequence, instruction_type, idempotency_key, market_seed, payload, state_hash, prev_hash, timestamp, source_sequence)
		VALUES `

	values := make([]string, 0, len(instructions))
	args := make([]interface{}, 0, len(instructions)*9)

	for i, r := range instructions {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			r.Sequence, r.InstructionType, r.IdempotencyKey, r.MarketSeed,
			r.Payload, r.StateHash, r.PrevHash, r.Timestamp, r.SourceSequence,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING" // Idempotent writes

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteTransferBatch writes a batch of transfer records to event_log.transfers.
func (w *InstructionLogWriter) WriteTransferBatch(ctx context.Context, ex execer, transfers []TransferRow) error {
	if len(transfers) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.transfers
		(transfer_id, instruction_ref, sequence, from_account, to_account, amount, transfer_type, timestamp)
		VALUES `

	values := make([]string, 0, len(transfers))
	args := make([]interface{}, 0, len(transfers)*8)

	for i, t := range transfers {
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			t.TransferID, t.InstructionRef, t.Sequence,
			t.FromAccount, t.ToAccount, t.Amount,
			t.TransferType, t.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (transfer_id) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}
