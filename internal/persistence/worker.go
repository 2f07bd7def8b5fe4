package persistence

import (
	"WagerLedger/internal/observability"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// CoreOutput mirrors core.CoreOutput to avoid import cycle.
// The orchestrator (cmd/main.go) bridges between core.CoreOutput and this.
type CoreOutput struct {
	InstructionRow InstructionRow
	TransferRows   []TransferRow
}

// PersistenceWorker drains the persist channel and batch-writes to Postgres.
// This goroutine runs independently from the deterministic core. The persist
// channel uses BLOCKING sends from the core, so if this worker falls behind,
// the core stalls — guaranteeing no instruction is lost.
type PersistenceWorker struct {
	writer       *InstructionLogWriter
	inputChan    <-chan CoreOutput
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan CoreOutput,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *PersistenceWorker {
	return &PersistenceWorker{
		writer:       NewInstructionLogWriter(db, batchSize, flushTimeout),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
}

// Run starts the persistence worker loop. It batches incoming outputs
// and flushes either when the batch is full or the flush timeout expires.
// Blocks until ctx is cancelled.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	instructionBatch := make([]InstructionRow, 0, pw.batchSize)
	transferBatch := make([]TransferRow, 0, pw.batchSize*2) // ~2 transfers per instruction avg

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown: flush remaining
			if len(instructionBatch) > 0 {
				if err := pw.flush(context.Background(), instructionBatch, transferBatch); err != nil {
					log.Printf("ERROR: final flush failed: %v", err)
				}
			}
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				// Channel closed — flush and exit
				if len(instructionBatch) > 0 {
					if err := pw.flush(context.Background(), instructionBatch, transferBatch); err != nil {
						log.Printf("ERROR: final flush failed: %v", err)
					}
				}
				return nil
			}

			instructionBatch = append(instructionBatch, output.InstructionRow)
			transferBatch = append(transferBatch, output.TransferRows...)

			// Flush if batch is full
			if len(instructionBatch) >= pw.batchSize {
				if err := pw.flushWithRetry(ctx, instructionBatch, transferBatch); err != nil {
					log.Printf("ERROR: batch flush failed after retries: %v", err)
				}
				instructionBatch = instructionBatch[:0]
				transferBatch = transferBatch[:0]
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			// Flush timeout — write whatever we have
			if len(instructionBatch) > 0 {
				if err := pw.flushWithRetry(ctx, instructionBatch, transferBatch); err != nil {
					log.Printf("ERROR: timeout flush failed after retries: %v", err)
				}
				instructionBatch = instructionBatch[:0]
				transferBatch = transferBatch[:0]
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry attempts to flush with exponential backoff. The worker NEVER
// drops instructions — it retries indefinitely until the write succeeds or the
// context is cancelled (graceful shutdown).
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, instructions []InstructionRow, transfers []TransferRow) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			log.Printf("WARN: persistence retry attempt %d (backoff=%v, instructions=%d)",
				attempt, backoff, len(instructions))
			select {
			case <-ctx.Done():
				// Graceful shutdown — attempt one final flush with background context
				// to avoid losing the batch.
				finalErr := pw.flush(context.Background(), instructions, transfers)
				if finalErr != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", finalErr)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := pw.flush(ctx, instructions, transfers)
		if err == nil {
			if attempt > 0 {
				log.Printf("INFO: persistence flush succeeded after %d retries", attempt)
			}
			return nil
		}

		if pw.metrics != nil {
			pw.metrics.PersistRetry.Inc()
		}
	}
}

func (pw *PersistenceWorker) flush(ctx context.Context, instructions []InstructionRow, transfers []TransferRow) error {
	start := time.Now()

	// Write instructions and transfers in a single transaction
	tx, err := pw.writer.db.BeginTx(ctx, nil)
	if err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteInstructionBatch(ctx, tx, instructions); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("write_instructions").Inc()
		}
		return err
	}

	if err := pw.writer.WriteTransferBatch(ctx, tx, transfers); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("write_transfers").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	// Record metrics on success
	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(instructions)))
		pw.metrics.PersistInstructionsWritten.Add(float64(len(instructions)))
		pw.metrics.PersistTransfersWritten.Add(float64(len(transfers)))
		if len(instructions) > 0 {
			pw.metrics.PersistLastSequence.Set(float64(instructions[len(instructions)-1].Sequence))
		}
	}

	return nil
}

// GetWriter returns the underlying writer.
func (pw *PersistenceWorker) GetWriter() *InstructionLogWriter {
	return pw.writer
}

// MarshalPayload is a convenience wrapper for JSON-encoding instruction payloads.
func MarshalPayload(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("WARN: failed to marshal payload: %v", err)
		return []byte("{}")
	}
	return data
}
