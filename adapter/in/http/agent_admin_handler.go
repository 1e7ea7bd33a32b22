// Package http exposes the admin API: cycle triggering and read access
// to archived tickets, cycle reports, the dedup ledger and pipeline
// latency stats.
package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/legb78/mail-classification-agent/core/domain"
	"github.com/legb78/mail-classification-agent/core/port/out"
	"github.com/legb78/mail-classification-agent/core/service/pipeline"
	"github.com/legb78/mail-classification-agent/internal/scheduler"
	"github.com/legb78/mail-classification-agent/pkg/apperr"
	"github.com/legb78/mail-classification-agent/pkg/response"
)

// CycleRunner triggers one ingestion cycle on demand.
type CycleRunner interface {
	RunOnce(ctx context.Context, dryRun bool) (*domain.CycleReport, error)
}

// StatsSource reports pipeline latency.
type StatsSource interface {
	Stats() pipeline.Stats
}

// AdminHandler serves the admin API. Repositories may be nil when the
// corresponding store is not configured; their routes then return 404.
type AdminHandler struct {
	runner  CycleRunner
	tickets out.TicketRepository
	reports out.ReportRepository
	ledger  out.LedgerReader
	stats   StatsSource
}

// NewAdminHandler creates the handler.
func NewAdminHandler(runner CycleRunner, tickets out.TicketRepository, reports out.ReportRepository, ledger out.LedgerReader, stats StatsSource) *AdminHandler {
	return &AdminHandler{
		runner:  runner,
		tickets: tickets,
		reports: reports,
		ledger:  ledger,
		stats:   stats,
	}
}

// Register mounts the routes on the given router group.
func (h *AdminHandler) Register(api fiber.Router) {
	api.Post("/cycles", h.RunCycle)
	if h.tickets != nil {
		api.Get("/tickets", h.ListTickets)
	}
	if h.reports != nil {
		api.Get("/reports", h.ListReports)
	}
	if h.ledger != nil {
		api.Get("/ledger", h.ListLedger)
	}
	if h.stats != nil {
		api.Get("/stats", h.GetStats)
	}
}

// RunCycle triggers one cycle. ?dry_run=true runs it without side
// effects. A cycle already in flight yields 409.
func (h *AdminHandler) RunCycle(c *fiber.Ctx) error {
	dryRun := c.QueryBool("dry_run", false)

	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Minute)
	defer cancel()

	report, err := h.runner.RunOnce(ctx, dryRun)
	if err != nil {
		if errors.Is(err, scheduler.ErrCycleInProgress) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		// A partial report still tells the operator what got through
		// before the abort.
		if report != nil {
			return response.Fail(c, fiber.StatusInternalServerError,
				apperr.CodeOf(err), err.Error(), report)
		}
		return err
	}

	return response.OK(c, report)
}

// ListTickets returns the most recently archived tickets.
func (h *AdminHandler) ListTickets(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	tickets, err := h.tickets.ListRecent(c.Context(), limit)
	if err != nil {
		return err
	}
	return response.List(c, tickets, len(tickets))
}

// ListReports returns the latest cycle reports.
func (h *AdminHandler) ListReports(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	reports, err := h.reports.ListRecent(c.Context(), limit)
	if err != nil {
		return err
	}
	return response.List(c, reports, len(reports))
}

// ListLedger returns dedup ledger entries.
func (h *AdminHandler) ListLedger(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	if limit > 1000 {
		return apperr.New(apperr.CodeInvalidRequest, "limit too large", apperr.KindPermanent)
	}
	entries, err := h.ledger.Entries(c.Context(), limit)
	if err != nil {
		return err
	}
	return response.List(c, entries, len(entries))
}

// GetStats returns per-stage pipeline latency percentiles.
func (h *AdminHandler) GetStats(c *fiber.Ctx) error {
	s := h.stats.Stats()
	return response.OK(c, fiber.Map{
		"classify": s.Classify.ToMap(),
		"sink":     s.Sink.ToMap(),
	})
}
