package handler

import (
	"net/http"

	"github.com/newthinker/cta/internal/api/response"
	"github.com/newthinker/cta/internal/strategy"
)

// StrategyView exposes the state of running strategy instances.
type StrategyView interface {
	Strategies() []string
	Snapshot(name string) (strategy.Event, error)
}

// StrategiesHandler reports live strategy state.
type StrategiesHandler struct {
	view StrategyView
}

func NewStrategiesHandler(view StrategyView) *StrategiesHandler {
	return &StrategiesHandler{view: view}
}

func (h *StrategiesHandler) List(w http.ResponseWriter, r *http.Request) {
	names := h.view.Strategies()
	events := make([]strategy.Event, 0, len(names))
	for _, name := range names {
		ev, err := h.view.Snapshot(name)
		if err != nil {
			continue
		}
		events = append(events, ev)
	}
	response.List(w, events)
}

func (h *StrategiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	ev, err := h.view.Snapshot(r.PathValue("name"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, ev)
}
