package handler

import (
	"net/http"

	"github.com/Zerokoinhub/app-backend/internal/application/scheduler"
	"github.com/go-chi/chi/v5"
)

// SchedulerHandler exposes the operator surface for the background runtimes.
type SchedulerHandler struct {
	runtimes map[string]*scheduler.Runtime
	order    []string
}

func NewSchedulerHandler(runtimes ...*scheduler.Runtime) *SchedulerHandler {
	h := &SchedulerHandler{runtimes: make(map[string]*scheduler.Runtime, len(runtimes))}
	for _, r := range runtimes {
		name := r.Status().Name
		h.runtimes[name] = r
		h.order = append(h.order, name)
	}
	return h
}

// List reports the status of every registered runtime.
func (h *SchedulerHandler) List(w http.ResponseWriter, r *http.Request) {
	statuses := make([]scheduler.Status, 0, len(h.order))
	for _, name := range h.order {
		statuses = append(statuses, h.runtimes[name].Status())
	}
	writeJSON(w, http.StatusOK, statuses)
}

// Trigger runs one scan cycle of the named runtime outside its schedule.
func (h *SchedulerHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rt, ok := h.runtimes[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown scheduler")
		return
	}
	if err := rt.TriggerOnce(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rt.Status())
}
