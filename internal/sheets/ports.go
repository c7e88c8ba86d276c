package sheets

import (
	"context"
	"time"

	"conti/internal/core"
)

// CarryforwardRow is one line of the carryforward report.
type CarryforwardRow struct {
	PostedAt       time.Time
	SourceMonth    core.Month
	TargetMonth    core.Month
	Amount         core.Money
	Notes          string
	IdempotencyKey string
}

// RowFromPosting maps a stored posting onto a report row.
func RowFromPosting(p core.CarryforwardPosting) CarryforwardRow {
	return CarryforwardRow{
		PostedAt:       p.CreatedAt,
		SourceMonth:    p.SourceMonth,
		TargetMonth:    p.TargetMonth,
		Amount:         p.Amount,
		Notes:          p.Notes,
		IdempotencyKey: p.IdempotencyKey,
	}
}

// Ports for outbound adapters.
type (
	ReportWriter interface {
		AppendCarryforward(ctx context.Context, row CarryforwardRow) (rowRef string, err error)
	}

	// ReportReader lets the worker skip rows that were already written
	// when a message is redelivered.
	ReportReader interface {
		HasCarryforward(ctx context.Context, row CarryforwardRow) (bool, error)
	}

	Report interface {
		ReportWriter
		ReportReader
	}
)
