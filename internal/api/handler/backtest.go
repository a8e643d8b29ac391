// Package handler implements the REST endpoints of the API server.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/newthinker/cta/internal/api/job"
	"github.com/newthinker/cta/internal/api/response"
	"github.com/newthinker/cta/internal/backtest"
	"github.com/newthinker/cta/internal/core"
	"github.com/newthinker/cta/internal/storage/archive"
	"go.uber.org/zap"
)

const backtestTimeout = 5 * time.Minute

// Runner executes a single backtest.
type Runner interface {
	Run(ctx context.Context, p backtest.Params) (*backtest.Result, error)
}

// BacktestRequest is the request body for starting a backtest.
type BacktestRequest struct {
	Class    string         `json:"class"`
	Name     string         `json:"name,omitempty"`
	Symbol   string         `json:"symbol"`
	Interval string         `json:"interval,omitempty"`
	Setting  map[string]any `json:"setting,omitempty"`
	Start    string         `json:"start"` // YYYY-MM-DD
	End      string         `json:"end"`   // YYYY-MM-DD, exclusive
	Rate     float64        `json:"rate,omitempty"`
	Slippage float64        `json:"slippage,omitempty"`
	Size     float64        `json:"size,omitempty"`
	Capital  float64        `json:"capital,omitempty"`
	Mode     string         `json:"mode,omitempty"`
}

// Params converts the request into validated backtest parameters.
func (r BacktestRequest) Params() (backtest.Params, error) {
	start, err := time.Parse(time.DateOnly, r.Start)
	if err != nil {
		return backtest.Params{}, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("start: %w", err))
	}
	end, err := time.Parse(time.DateOnly, r.End)
	if err != nil {
		return backtest.Params{}, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("end: %w", err))
	}

	p := backtest.Params{
		Class:    r.Class,
		Name:     r.Name,
		Symbol:   r.Symbol,
		Interval: core.Interval(r.Interval),
		Setting:  r.Setting,
		Start:    start,
		End:      end,
		Rate:     r.Rate,
		Slippage: r.Slippage,
		Size:     r.Size,
		Capital:  r.Capital,
		Mode:     backtest.Mode(r.Mode),
	}.WithDefaults()
	if err := p.Validate(); err != nil {
		return backtest.Params{}, err
	}
	return p, nil
}

// BacktestHandler runs backtests as background jobs.
type BacktestHandler struct {
	jobs    *job.Store
	runner  Runner
	archive archive.Storage
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewBacktestHandler creates a new backtest handler. Results are archived
// when st is non-nil.
func NewBacktestHandler(jobs *job.Store, runner Runner, st archive.Storage, logger *zap.Logger) *BacktestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BacktestHandler{
		jobs:    jobs,
		runner:  runner,
		archive: st,
		logger:  logger,
		timeout: backtestTimeout,
	}
}

// Create starts a new backtest job.
func (h *BacktestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrConfigInvalid, err))
		return
	}

	params, err := req.Params()
	if err != nil {
		response.Fail(w, err)
		return
	}

	j, err := h.jobs.Create("backtest", req)
	if err != nil {
		response.Fail(w, err)
		return
	}

	h.wg.Add(1)
	go h.run(j.ID, params)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	})
}

// run executes the backtest and updates job status.
func (h *BacktestHandler) run(jobID string, p backtest.Params) {
	defer h.wg.Done()

	h.jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	result, err := h.runner.Run(ctx, p)
	if err != nil {
		h.logger.Warn("backtest job failed", zap.String("job", jobID), zap.Error(err))
		h.jobs.Update(jobID, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = asCoreError(err)
		})
		return
	}

	var key string
	if h.archive != nil {
		if key, err = archive.SaveResult(ctx, h.archive, result); err != nil {
			h.logger.Warn("archiving backtest result", zap.String("job", jobID), zap.Error(err))
		}
	}

	h.jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Result = result
		j.ResultKey = key
	})
}

// Wait blocks until every started job has finished.
func (h *BacktestHandler) Wait() {
	h.wg.Wait()
}

// Get returns the status of a backtest job, with its result once complete.
func (h *BacktestHandler) Get(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, j)
}

// List returns every tracked job without results.
func (h *BacktestHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.List()
	for i := range jobs {
		jobs[i].Result = nil
	}
	response.List(w, jobs)
}

func asCoreError(err error) *core.Error {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return coreErr
	}
	return core.WrapError(core.ErrBacktestFailed, err)
}
