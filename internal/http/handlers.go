package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"conti/internal/core"
	applog "conti/internal/log"
	"conti/internal/services"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks that the ledger store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]any{}

	if s.svc.Store == nil {
		checks["store"] = "not_configured"
		status, code = "not_ready", http.StatusServiceUnavailable
	} else if err := s.svc.Store.Ping(ctx); err != nil {
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewJSONResponse().Status(code).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
	}
	gauge := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n\n", name, help, name, name, v)
	}

	w.WriteHeader(http.StatusOK)
	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	gauge("http_response_time_microseconds", "Mean response time", traceMetrics.AverageResponseTime)
	counter("analytics_queries_total", "Total analytics queries answered", atomic.LoadInt64(&s.appMetrics.queries))
	counter("analytics_query_errors_total", "Total analytics queries rejected", atomic.LoadInt64(&s.appMetrics.queryErrors))
	counter("ledger_writes_total", "Total expenses, income and budgets created", atomic.LoadInt64(&s.appMetrics.writes))
	counter("carryforwards_total", "Total carryforward postings made", atomic.LoadInt64(&s.appMetrics.carryforwards))
	counter("rate_limit_hits_total", "Total rate limit hits", rateLimitMetrics.TotalHits)
	counter("suspicious_requests_total", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	gauge("active_rate_limit_clients", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	gauge("uptime_seconds", "Application uptime in seconds", int64(time.Since(s.appMetrics.uptime).Seconds()))
}

type queryRequest struct {
	Query string `json:"query"`
	Now   string `json:"now,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err, applog.OpAsk)
		return
	}
	now, ok, err := parseNow(req.Now, s.loc)
	if err != nil {
		s.writeError(w, r, err, applog.OpAsk)
		return
	}
	if !ok {
		now = s.clock()
	}

	answer, err := s.svc.Engine.Ask(r.Context(), sanitizeInput(req.Query), now)
	if err != nil {
		atomic.AddInt64(&s.appMetrics.queryErrors, 1)
		s.writeError(w, r, err, applog.OpAsk)
		return
	}
	atomic.AddInt64(&s.appMetrics.queries, 1)
	d := answer.Data
	s.events.LogQueryAnswered(r.Context(), answer.Query, string(d.Mode), string(d.Intent), d.Range.Start, d.Range.End)
	NewJSONResponse().Body(answer).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err, applog.OpList)
		return
	}
	cats, err := s.svc.Ledger.Categories(r.Context(), kind)
	if err != nil {
		s.writeError(w, r, err, applog.OpList)
		return
	}
	NewJSONResponse().Body(map[string]any{"categories": toCategories(cats)}).Write(w)
}

func (s *Server) handleAccountTypes(w http.ResponseWriter, r *http.Request) {
	accs, err := s.svc.Ledger.AccountTypes(r.Context())
	if err != nil {
		s.writeError(w, r, err, applog.OpList)
		return
	}
	NewJSONResponse().Body(map[string]any{"account_types": toAccountTypes(accs)}).Write(w)
}

type expenseRequest struct {
	Date     core.Date  `json:"date"`
	Amount   core.Money `json:"amount"`
	Category string     `json:"category"`
	Account  string     `json:"account"`
	Notes    string     `json:"notes"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err, applog.OpCreate)
		return
	}
	t, err := s.svc.Ledger.CreateExpense(r.Context(), services.ExpenseInput{
		Date:     req.Date,
		Amount:   req.Amount,
		Category: sanitizeInput(req.Category),
		Account:  sanitizeInput(req.Account),
		Notes:    sanitizeInput(req.Notes),
	})
	if err != nil {
		s.writeError(w, r, err, applog.OpCreate)
		return
	}
	atomic.AddInt64(&s.appMetrics.writes, 1)
	NewJSONResponse().Status(http.StatusCreated).Body(toTransaction(t)).Write(w)
}

type incomeRequest struct {
	Date     core.Date  `json:"date"`
	Amount   core.Money `json:"amount"`
	Category string     `json:"category"`
	Notes    string     `json:"notes"`
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	var req incomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err, applog.OpCreate)
		return
	}
	t, err := s.svc.Ledger.CreateIncome(r.Context(), services.IncomeInput{
		Date:     req.Date,
		Amount:   req.Amount,
		Category: sanitizeInput(req.Category),
		Notes:    sanitizeInput(req.Notes),
	})
	if err != nil {
		s.writeError(w, r, err, applog.OpCreate)
		return
	}
	atomic.AddInt64(&s.appMetrics.writes, 1)
	NewJSONResponse().Status(http.StatusCreated).Body(toTransaction(t)).Write(w)
}

type budgetRequest struct {
	Category    string     `json:"category"`
	AmountLimit core.Money `json:"amount_limit"`
	StartDate   core.Date  `json:"start_date"`
	EndDate     core.Date  `json:"end_date"`
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err, applog.OpCreate)
		return
	}
	b, err := s.svc.Budgets.Create(r.Context(), services.BudgetInput{
		Category:    sanitizeInput(req.Category),
		AmountLimit: req.AmountLimit,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	})
	if err != nil {
		s.writeError(w, r, err, applog.OpCreate)
		return
	}
	atomic.AddInt64(&s.appMetrics.writes, 1)
	NewJSONResponse().Status(http.StatusCreated).Body(toBudget(b)).Write(w)
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.svc.Budgets.List(r.Context())
	if err != nil {
		s.writeError(w, r, err, applog.OpList)
		return
	}
	out := make([]budgetResponse, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, toBudget(b))
	}
	NewJSONResponse().Body(map[string]any{"budgets": out}).Write(w)
}

func (s *Server) handleBudgetUsage(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r, "id")
	if err != nil {
		s.writeError(w, r, err, applog.OpUsage)
		return
	}
	usage, err := s.svc.Budgets.Usage(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, applog.OpUsage)
		return
	}
	NewJSONResponse().Body(toBudgetUsage(usage)).Write(w)
}

func (s *Server) handleListBudgetUsage(w http.ResponseWriter, r *http.Request) {
	usages, err := s.svc.Budgets.ListUsage(r.Context())
	if err != nil {
		s.writeError(w, r, err, applog.OpUsage)
		return
	}
	out := make([]budgetUsageResponse, 0, len(usages))
	for _, u := range usages {
		out = append(out, toBudgetUsage(u))
	}
	NewJSONResponse().Body(map[string]any{"usage": out}).Write(w)
}

func (s *Server) handleMonthlySummary(w http.ResponseWriter, r *http.Request) {
	month, err := ParseMonthParams(r.URL.Query(), "year", "month")
	if err != nil {
		s.writeError(w, r, err, applog.OpBalance)
		return
	}
	bal, err := s.svc.Balance.MonthlyBalance(r.Context(), month)
	if err != nil {
		s.writeError(w, r, err, applog.OpBalance)
		return
	}
	NewJSONResponse().Body(toMonthlyBalance(bal)).Write(w)
}

func (s *Server) handleCarryforward(w http.ResponseWriter, r *http.Request) {
	source, err := ParseMonthParams(r.URL.Query(), "from_year", "from_month")
	if err != nil {
		s.writeError(w, r, err, applog.OpCarryforward)
		return
	}
	posting, err := s.svc.Balance.Carryforward(r.Context(), source)
	s.writePosting(w, r, posting, err)
}

func (s *Server) handleAutoCarryforward(w http.ResponseWriter, r *http.Request) {
	posting, err := s.svc.Balance.Auto(r.Context())
	s.writePosting(w, r, posting, err)
}

// writePosting answers a carryforward request. A repeated request is a
// no-op that echoes the posting made the first time.
func (s *Server) writePosting(w http.ResponseWriter, r *http.Request, posting core.CarryforwardPosting, err error) {
	if errors.Is(err, core.ErrAlreadyCarried) {
		env := errorEnvelope{
			Error: errorBody{Reason: core.ReasonCode(err), Message: err.Error()},
			NoOp:  true,
		}
		if posting.ID != 0 {
			env.Posting = toPosting(posting)
		}
		NewJSONResponse().Status(http.StatusConflict).Body(env).Write(w)
		return
	}
	if err != nil {
		s.writeError(w, r, err, applog.OpCarryforward)
		return
	}
	atomic.AddInt64(&s.appMetrics.carryforwards, 1)
	s.events.LogCarryforwardPosted(r.Context(), posting.SourceMonth.String(), posting.TargetMonth.String(), posting.Amount.Cents)
	NewJSONResponse().Status(http.StatusCreated).Body(map[string]any{
		"posting": toPosting(posting),
	}).Write(w)
}
