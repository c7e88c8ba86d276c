package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"conti/internal/core"
)

// AutoCarrier carries the previous month forward.
type AutoCarrier interface {
	Auto(ctx context.Context) (core.CarryforwardPosting, error)
}

// Outcome is what one scheduled carryforward attempt did.
type Outcome string

const (
	OutcomePosted     Outcome = "posted"
	OutcomeNoOp       Outcome = "already_carried"
	OutcomeIncomplete Outcome = "incomplete_month"
	OutcomeRejected   Outcome = "non_positive"
	OutcomeFailed     Outcome = "failed"
)

// CarryforwardScheduler runs Auto on a fixed interval. Only storage
// failures are reported as errors; a month already carried, still open
// or with nothing to carry is an expected outcome.
type CarryforwardScheduler struct {
	carrier  AutoCarrier
	interval time.Duration
}

func NewCarryforwardScheduler(carrier AutoCarrier, interval time.Duration) *CarryforwardScheduler {
	return &CarryforwardScheduler{carrier: carrier, interval: interval}
}

// RunOnce performs a single attempt.
func (s *CarryforwardScheduler) RunOnce(ctx context.Context) (Outcome, error) {
	p, err := s.carrier.Auto(ctx)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "Scheduled carryforward posted",
			"posting_id", p.ID,
			"source_month", p.SourceMonth.String(),
			"amount_cents", p.Amount.Cents)
		return OutcomePosted, nil
	case errors.Is(err, core.ErrAlreadyCarried):
		slog.DebugContext(ctx, "Previous month already carried forward", "posting_id", p.ID)
		return OutcomeNoOp, nil
	case errors.Is(err, core.ErrIncompleteMonth):
		slog.InfoContext(ctx, "Previous month not complete yet", "error", err)
		return OutcomeIncomplete, nil
	case errors.Is(err, core.ErrNonPositiveBalance):
		slog.WarnContext(ctx, "Nothing to carry forward", "error", err)
		return OutcomeRejected, nil
	default:
		slog.ErrorContext(ctx, "Scheduled carryforward failed", "error", err)
		return OutcomeFailed, err
	}
}

// Run attempts immediately and then on every tick until ctx is done.
func (s *CarryforwardScheduler) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "Carryforward scheduler started", "interval", s.interval)
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Carryforward scheduler stopped")
			return ctx.Err()
		case now := <-ticker.C:
			outcome, _ := s.RunOnce(ctx)
			slog.DebugContext(ctx, "Carryforward tick complete",
				"outcome", string(outcome),
				"next_check", now.Add(s.interval).Format("15:04:05"))
		}
	}
}
