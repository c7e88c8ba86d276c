package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"conti/internal/analytics"
	"conti/internal/cache"
	"conti/internal/core"
	"conti/internal/ledger"
)

// NegativePolicy decides what happens when a month closes with a net
// balance that is not positive.
type NegativePolicy string

const (
	// NegativePost posts the net as-is, so a deficit reduces the next month.
	NegativePost NegativePolicy = "post"
	// NegativeClamp posts zero instead of a deficit.
	NegativeClamp NegativePolicy = "clamp"
	// NegativeReject refuses to carry a net that is zero or negative.
	NegativeReject NegativePolicy = "reject"
)

func ParseNegativePolicy(s string) (NegativePolicy, error) {
	switch p := NegativePolicy(s); p {
	case NegativePost, NegativeClamp, NegativeReject:
		return p, nil
	case "":
		return NegativePost, nil
	default:
		return "", fmt.Errorf("invalid negative carryforward policy %q (want post, clamp or reject)", s)
	}
}

type CarryforwardPolicy struct {
	Negative NegativePolicy
	// RequireCompleteMonth refuses to carry a month that has not ended.
	RequireCompleteMonth bool
}

// PostingPublisher announces new carryforward postings.
type PostingPublisher interface {
	PublishCarryforwardPosted(ctx context.Context, p core.CarryforwardPosting) error
}

// CarryforwardService moves a month's net balance into the next month as
// synthetic income. Postings are unique per source month; the store's
// conditional insert is what makes concurrent calls safe.
type CarryforwardService struct {
	store     ledger.CarryforwardStore
	runner    analytics.Runner
	policy    CarryforwardPolicy
	now       func() time.Time
	publisher PostingPublisher
	purger    cache.Purger
}

type CarryforwardOption func(*CarryforwardService)

func WithClock(now func() time.Time) CarryforwardOption {
	return func(s *CarryforwardService) { s.now = now }
}

func WithPublisher(p PostingPublisher) CarryforwardOption {
	return func(s *CarryforwardService) { s.publisher = p }
}

// WithCachePurger drops cached analytics after a posting lands.
func WithCachePurger(p cache.Purger) CarryforwardOption {
	return func(s *CarryforwardService) { s.purger = p }
}

// NewCarryforwardService needs an uncached runner: balances must reflect
// the ledger as it is now.
func NewCarryforwardService(store ledger.CarryforwardStore, runner analytics.Runner, policy CarryforwardPolicy, opts ...CarryforwardOption) *CarryforwardService {
	if policy.Negative == "" {
		policy.Negative = NegativePost
	}
	s := &CarryforwardService{
		store:  store,
		runner: runner,
		policy: policy,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MonthlyBalance summarizes month. Carryforward income posted into the
// month is left out so carried amounts do not compound.
func (s *CarryforwardService) MonthlyBalance(ctx context.Context, month core.Month) (core.MonthlyBalance, error) {
	res, err := s.runner.Execute(ctx, analytics.QueryPlan{
		Range:               month.Range(),
		Mode:                analytics.ModeTotal,
		Intent:              analytics.IntentBoth,
		ExcludeCarryforward: true,
	})
	if err != nil {
		return core.MonthlyBalance{}, fmt.Errorf("balance for %s: %w", month, err)
	}
	existing, carried, err := s.store.FindCarryforward(ctx, month)
	if err != nil {
		return core.MonthlyBalance{}, fmt.Errorf("find carryforward for %s: %w", month, err)
	}

	bal := core.MonthlyBalance{
		Month:                 month,
		TotalIncome:           res.TotalIncome,
		TotalExpenses:         res.TotalExpenses,
		Net:                   res.Net,
		IncomeCount:           res.IncomeCount,
		ExpenseCount:          res.ExpenseCount,
		AlreadyCarriedForward: carried,
	}
	if carried {
		bal.Posting = &existing
	}
	_, amountErr := s.postingAmount(res.Net)
	bal.CanCarryforward = !carried && s.complete(month) == nil && amountErr == nil
	return bal, nil
}

// Carryforward posts source's net balance into the following month.
// A second call for the same month returns the existing posting along
// with core.ErrAlreadyCarried, which callers should treat as a no-op.
func (s *CarryforwardService) Carryforward(ctx context.Context, source core.Month) (core.CarryforwardPosting, error) {
	if err := s.complete(source); err != nil {
		return core.CarryforwardPosting{}, err
	}
	if existing, ok, err := s.store.FindCarryforward(ctx, source); err != nil {
		return core.CarryforwardPosting{}, fmt.Errorf("find carryforward for %s: %w", source, err)
	} else if ok {
		slog.InfoContext(ctx, "Carryforward already posted", "source_month", source.String(), "posting_id", existing.ID)
		return existing, fmt.Errorf("%s: %w", source, core.ErrAlreadyCarried)
	}

	bal, err := s.MonthlyBalance(ctx, source)
	if err != nil {
		return core.CarryforwardPosting{}, err
	}
	amount, err := s.postingAmount(bal.Net)
	if err != nil {
		return core.CarryforwardPosting{}, fmt.Errorf("%s net %s: %w", source, bal.Net, err)
	}

	posting, err := s.store.InsertCarryforward(ctx, core.NewCarryforwardPosting(source, amount))
	if errors.Is(err, core.ErrAlreadyCarried) {
		// Lost a race with a concurrent call; report the winner's posting.
		existing, _, findErr := s.store.FindCarryforward(ctx, source)
		if findErr != nil {
			return core.CarryforwardPosting{}, fmt.Errorf("%s: %w", source, err)
		}
		return existing, fmt.Errorf("%s: %w", source, core.ErrAlreadyCarried)
	}
	if err != nil {
		return core.CarryforwardPosting{}, fmt.Errorf("insert carryforward for %s: %w", source, err)
	}

	if s.purger != nil {
		s.purger.Purge()
	}
	slog.InfoContext(ctx, "Carryforward posted",
		"posting_id", posting.ID,
		"source_month", source.String(),
		"target_month", posting.TargetMonth.String(),
		"amount_cents", posting.Amount.Cents,
		"net_cents", bal.Net.Cents,
		"policy", string(s.policy.Negative))

	if s.publisher != nil {
		if err := s.publisher.PublishCarryforwardPosted(ctx, posting); err != nil {
			// The posting is committed; the report can be rebuilt later.
			slog.ErrorContext(ctx, "Failed to publish carryforward message", "posting_id", posting.ID, "error", err)
		}
	}
	return posting, nil
}

// Auto carries the calendar month preceding now.
func (s *CarryforwardService) Auto(ctx context.Context) (core.CarryforwardPosting, error) {
	return s.Carryforward(ctx, s.PreviousMonth())
}

// PreviousMonth is the month before the current one on the service clock.
func (s *CarryforwardService) PreviousMonth() core.Month {
	return core.MonthOf(s.now()).Prev()
}

func (s *CarryforwardService) complete(source core.Month) error {
	if !s.policy.RequireCompleteMonth {
		return nil
	}
	today := core.DateOf(s.now())
	if today.Before(source.Next().FirstDay().Time) {
		return fmt.Errorf("%w: %s ends on %s", core.ErrIncompleteMonth, source, source.LastDay())
	}
	return nil
}

func (s *CarryforwardService) postingAmount(net core.Money) (core.Money, error) {
	if net.Cents > 0 {
		return net, nil
	}
	switch s.policy.Negative {
	case NegativeClamp:
		return core.Money{}, nil
	case NegativeReject:
		return core.Money{}, core.ErrNonPositiveBalance
	default:
		return net, nil
	}
}
