package handler

import (
	"errors"
	"net/http"

	"github.com/newthinker/cta/internal/api/response"
	"github.com/newthinker/cta/internal/core"
	"github.com/newthinker/cta/internal/storage/archive"
)

// ResultsHandler serves archived backtest results.
type ResultsHandler struct {
	storage archive.Storage
}

func NewResultsHandler(st archive.Storage) *ResultsHandler {
	return &ResultsHandler{storage: st}
}

// List returns result keys, filtered by the strategy query parameter.
func (h *ResultsHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := archive.ListResults(r.Context(), h.storage, r.URL.Query().Get("strategy"))
	if err != nil {
		response.Error(w, http.StatusInternalServerError, core.WrapError(core.ErrStorageFailed, err))
		return
	}
	response.List(w, keys)
}

// Get returns one result by key.
func (h *ResultsHandler) Get(w http.ResponseWriter, r *http.Request) {
	result, err := archive.LoadResult(r.Context(), h.storage, r.PathValue("key"))
	switch {
	case errors.Is(err, archive.ErrNotFound):
		response.Fail(w, core.WrapError(core.ErrNotFound, err))
	case err != nil:
		response.Error(w, http.StatusInternalServerError, core.WrapError(core.ErrStorageFailed, err))
	default:
		response.JSON(w, http.StatusOK, result)
	}
}
