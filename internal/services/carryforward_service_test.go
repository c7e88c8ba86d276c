package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/analytics"
	"conti/internal/core"
	"conti/internal/ledger"
	"conti/internal/ledger/memory"
)

var (
	february = core.Month{Year: 2026, Month: time.February}
	march10  = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
)

type recordingPublisher struct {
	mu       sync.Mutex
	postings []core.CarryforwardPosting
	err      error
}

func (p *recordingPublisher) PublishCarryforwardPosted(_ context.Context, posting core.CarryforwardPosting) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.postings = append(p.postings, posting)
	return p.err
}

type purgeCounter struct {
	mu    sync.Mutex
	count int
}

func (p *purgeCounter) Purge() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
}

func newLedger(t *testing.T) (*memory.Store, *LedgerService) {
	t.Helper()
	store := memory.New()
	return store, NewLedgerService(store, store, nil)
}

func mustExpense(t *testing.T, svc *LedgerService, date, amount, category string) {
	t.Helper()
	cents, err := core.ParseDecimalToCents(amount)
	require.NoError(t, err)
	d, err := core.ParseDate(date)
	require.NoError(t, err)
	_, err = svc.CreateExpense(context.Background(), ExpenseInput{Date: d, Amount: core.Money{Cents: cents}, Category: category, Account: "Card"})
	require.NoError(t, err)
}

func mustIncome(t *testing.T, svc *LedgerService, date, amount string) {
	t.Helper()
	cents, err := core.ParseDecimalToCents(amount)
	require.NoError(t, err)
	d, err := core.ParseDate(date)
	require.NoError(t, err)
	_, err = svc.CreateIncome(context.Background(), IncomeInput{Date: d, Amount: core.Money{Cents: cents}, Category: "Salary"})
	require.NoError(t, err)
}

func carryforwardService(store *memory.Store, policy CarryforwardPolicy, now time.Time, opts ...CarryforwardOption) *CarryforwardService {
	opts = append([]CarryforwardOption{WithClock(func() time.Time { return now })}, opts...)
	return NewCarryforwardService(store, analytics.NewExecutor(store), policy, opts...)
}

func marchIncome(t *testing.T, store *memory.Store) []core.Transaction {
	t.Helper()
	income, err := store.FetchIncome(context.Background(), ledger.IncomeFilter{Range: february.Next().Range()})
	require.NoError(t, err)
	return income
}

func TestCarryforward_AutoPostsPreviousMonthOnce(t *testing.T) {
	store, ledgerSvc := newLedger(t)
	mustIncome(t, ledgerSvc, "2026-02-01", "1000.00")
	mustExpense(t, ledgerSvc, "2026-02-10", "800.00", "Food")

	pub := &recordingPublisher{}
	purger := &purgeCounter{}
	svc := carryforwardService(store, CarryforwardPolicy{RequireCompleteMonth: true}, march10,
		WithPublisher(pub), WithCachePurger(purger))

	posting, err := svc.Auto(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "200.00", posting.Amount.String())
	assert.Equal(t, "2026-03-01", posting.Date.String())
	assert.Equal(t, february, posting.SourceMonth)
	assert.Equal(t, "Carryforward from 2026-02", posting.Notes)
	assert.Len(t, pub.postings, 1)
	assert.Equal(t, 1, purger.count)

	income := marchIncome(t, store)
	require.Len(t, income, 1)
	assert.True(t, income[0].Carryforward)
	assert.Equal(t, core.CarryforwardCategory, income[0].Category)

	again, err := svc.Auto(context.Background())
	require.ErrorIs(t, err, core.ErrAlreadyCarried)
	assert.Equal(t, posting.ID, again.ID)
	assert.Len(t, marchIncome(t, store), 1, "ledger unchanged by the second call")
	assert.Len(t, pub.postings, 1)
}

func TestCarryforward_ConcurrentCallsPostOnce(t *testing.T) {
	store, ledgerSvc := newLedger(t)
	mustIncome(t, ledgerSvc, "2026-02-01", "50.00")
	svc := carryforwardService(store, CarryforwardPolicy{}, march10)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		carried   int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Carryforward(context.Background(), february)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, core.ErrAlreadyCarried):
				carried++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
	assert.Equal(t, 9, carried)
	assert.Len(t, marchIncome(t, store), 1)
}

func TestCarryforward_IncompleteMonth(t *testing.T) {
	store, _ := newLedger(t)
	feb20 := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)

	strict := carryforwardService(store, CarryforwardPolicy{RequireCompleteMonth: true}, feb20)
	_, err := strict.Carryforward(context.Background(), february)
	assert.ErrorIs(t, err, core.ErrIncompleteMonth)

	lenient := carryforwardService(store, CarryforwardPolicy{RequireCompleteMonth: false}, feb20)
	_, err = lenient.Carryforward(context.Background(), february)
	assert.NoError(t, err)

	// The first day of the next month counts as complete.
	march1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err = carryforwardService(store, CarryforwardPolicy{RequireCompleteMonth: true}, march1).
		Carryforward(context.Background(), core.Month{Year: 2026, Month: time.January})
	assert.NoError(t, err)
}

func TestCarryforward_NegativePolicies(t *testing.T) {
	tests := []struct {
		policy  NegativePolicy
		want    string
		wantErr error
	}{
		{NegativePost, "-75.00", nil},
		{NegativeClamp, "0.00", nil},
		{NegativeReject, "", core.ErrNonPositiveBalance},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			store, ledgerSvc := newLedger(t)
			mustIncome(t, ledgerSvc, "2026-02-01", "25.00")
			mustExpense(t, ledgerSvc, "2026-02-02", "100.00", "Travel")

			svc := carryforwardService(store, CarryforwardPolicy{Negative: tt.policy, RequireCompleteMonth: true}, march10)
			bal, err := svc.MonthlyBalance(context.Background(), february)
			require.NoError(t, err)
			assert.Equal(t, "-75.00", bal.Net.String())
			assert.Equal(t, tt.wantErr == nil, bal.CanCarryforward)

			posting, err := svc.Carryforward(context.Background(), february)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, marchIncome(t, store))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, posting.Amount.String())
		})
	}
}

func TestMonthlyBalance_ExcludesCarryforwardIncome(t *testing.T) {
	store, ledgerSvc := newLedger(t)
	mustIncome(t, ledgerSvc, "2026-01-15", "100.00")
	mustIncome(t, ledgerSvc, "2026-02-15", "10.00")

	svc := carryforwardService(store, CarryforwardPolicy{RequireCompleteMonth: true}, march10)
	_, err := svc.Carryforward(context.Background(), core.Month{Year: 2026, Month: time.January})
	require.NoError(t, err)

	bal, err := svc.MonthlyBalance(context.Background(), february)
	require.NoError(t, err)
	assert.Equal(t, "10.00", bal.TotalIncome.String())
	assert.Equal(t, 1, bal.IncomeCount)
	assert.False(t, bal.AlreadyCarriedForward)
	assert.True(t, bal.CanCarryforward)

	jan, err := svc.MonthlyBalance(context.Background(), core.Month{Year: 2026, Month: time.January})
	require.NoError(t, err)
	assert.True(t, jan.AlreadyCarriedForward)
	assert.False(t, jan.CanCarryforward)
	require.NotNil(t, jan.Posting)
	assert.Equal(t, "100.00", jan.Posting.Amount.String())
}

func TestCarryforward_PublishFailureDoesNotFail(t *testing.T) {
	store, ledgerSvc := newLedger(t)
	mustIncome(t, ledgerSvc, "2026-02-01", "5.00")
	pub := &recordingPublisher{err: errors.New("broker down")}

	svc := carryforwardService(store, CarryforwardPolicy{}, march10, WithPublisher(pub))
	posting, err := svc.Carryforward(context.Background(), february)
	require.NoError(t, err)
	assert.Equal(t, "5.00", posting.Amount.String())
}

func TestParseNegativePolicy(t *testing.T) {
	p, err := ParseNegativePolicy("")
	require.NoError(t, err)
	assert.Equal(t, NegativePost, p)

	p, err = ParseNegativePolicy("clamp")
	require.NoError(t, err)
	assert.Equal(t, NegativeClamp, p)

	_, err = ParseNegativePolicy("ignore")
	assert.Error(t, err)
}
