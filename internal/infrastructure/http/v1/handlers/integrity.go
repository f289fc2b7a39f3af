package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"jobcost/internal/core/apperror"
	"jobcost/internal/domain/integrity"
	"jobcost/internal/infrastructure/http/v1/dto"
	"jobcost/internal/infrastructure/lock"
)

// SweepLockName is shared with the worker so that only one sweep runs at a time.
const SweepLockName = "integrity"

// IntegrityHandler exposes the violation log and on-demand sweeps.
type IntegrityHandler struct {
	*BaseHandler
	sweeper *integrity.Sweeper
	log     integrity.ViolationLog
	runner  lock.Runner
	ttl     time.Duration
}

func NewIntegrityHandler(base *BaseHandler, sweeper *integrity.Sweeper, log integrity.ViolationLog, runner lock.Runner) *IntegrityHandler {
	if runner == nil {
		runner = lock.LocalRunner{}
	}
	return &IntegrityHandler{BaseHandler: base, sweeper: sweeper, log: log, runner: runner, ttl: 5 * time.Minute}
}

// Violations handles GET /integrity/violations?limit=
func (h *IntegrityHandler) Violations(c *gin.Context) {
	limit := h.ParseIntQuery(c, "limit", 100)
	if limit < 1 || limit > 1000 {
		limit = 100
	}
	open, err := h.log.ListOpen(c.Request.Context(), limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewItems(open))
}

// Sweep handles POST /integrity/sweeps
func (h *IntegrityHandler) Sweep(c *gin.Context) {
	var report *integrity.Report
	ran, err := h.runner.RunExclusive(c.Request.Context(), SweepLockName, h.ttl, func(ctx context.Context) error {
		var runErr error
		report, runErr = h.sweeper.Run(ctx)
		return runErr
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	if !ran {
		h.Error(c, apperror.NewConflict("an integrity sweep is already running"))
		return
	}
	h.OK(c, report)
}
