package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/ledger"
	"conti/internal/sheets"
)

// ReportWorker mirrors carryforward postings into the report sheet.
type ReportWorker struct {
	store  ledger.CarryforwardStore
	report sheets.Report
}

func NewReportWorker(store ledger.CarryforwardStore, report sheets.Report) *ReportWorker {
	return &ReportWorker{store: store, report: report}
}

// HandleCarryforwardPosted processes a single message from AMQP. A posting
// that no longer exists is dropped, any other failure requeues.
func (w *ReportWorker) HandleCarryforwardPosted(ctx context.Context, msg *amqp.CarryforwardPostedMessage) error {
	slog.InfoContext(ctx, "Processing carryforward message",
		"id", msg.ID,
		"message_id", msg.MessageID,
		"source_month", msg.SourceMonth)

	p, err := w.store.GetCarryforward(ctx, msg.ID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Carryforward posting not found, dropping message",
			"id", msg.ID,
			"message_id", msg.MessageID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get carryforward from storage: %w", err)
	}

	_, err = w.writeRow(ctx, p)
	return err
}

// StartupBackfill makes sure the postings of the given number of source
// months before now are in the report. It recovers from messages lost
// while the worker was down.
func (w *ReportWorker) StartupBackfill(ctx context.Context, now time.Time, months int) error {
	source := core.MonthOf(now).Prev()
	written, skipped, failed := 0, 0, 0

	for i := 0; i < months; i++ {
		p, found, err := w.store.FindCarryforward(ctx, source)
		if err != nil {
			return fmt.Errorf("find carryforward for %s: %w", source, err)
		}
		if found {
			wrote, err := w.writeRow(ctx, p)
			switch {
			case err != nil:
				slog.ErrorContext(ctx, "Failed to backfill carryforward",
					"source_month", source.String(), "error", err)
				failed++
			case wrote:
				written++
			default:
				skipped++
			}
		}
		source = source.Prev()
	}

	slog.InfoContext(ctx, "Startup backfill completed",
		"months", months,
		"written", written,
		"already_present", skipped,
		"errors", failed)
	return nil
}

func (w *ReportWorker) writeRow(ctx context.Context, p core.CarryforwardPosting) (bool, error) {
	row := sheets.RowFromPosting(p)

	exists, err := w.report.HasCarryforward(ctx, row)
	if err != nil {
		return false, fmt.Errorf("check report: %w", err)
	}
	if exists {
		slog.InfoContext(ctx, "Carryforward already in report",
			"id", p.ID,
			"idempotency_key", p.IdempotencyKey)
		return false, nil
	}

	ref, err := w.report.AppendCarryforward(ctx, row)
	if err != nil {
		return false, fmt.Errorf("append to report: %w", err)
	}

	slog.InfoContext(ctx, "Carryforward written to report",
		"id", p.ID,
		"sheets_ref", ref,
		"source_month", p.SourceMonth.String(),
		"amount_cents", p.Amount.Cents)
	return true, nil
}
