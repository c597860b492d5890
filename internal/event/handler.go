// internal/event/handler.go
package event

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"voluntaris/internal/httpx"
	"voluntaris/internal/identity"
	"voluntaris/internal/middleware"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// HandleCreate publishes an event for the calling ONG.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e, err := h.service.Create(r.Context(), middleware.CallerID(r.Context()), in)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}

// HandleListOpen lists SCHEDULED events; personalized for volunteers.
func (h *Handler) HandleListOpen(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListOpen(r.Context(), middleware.CallerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, views)
}

// HandleGet returns one event with its derived phase.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid event id")
		return
	}

	view, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

// HandleUpdate edits an event owned by the calling ONG.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid event id")
		return
	}

	var in UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e, err := h.service.Update(r.Context(), middleware.CallerID(r.Context()), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

// HandleCancel cancels an event and releases all live applications.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid event id")
		return
	}

	if err := h.service.Cancel(r.Context(), middleware.CallerID(r.Context()), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListMine returns all events of the calling ONG.
func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	writeList(w, r, h.service.ListByOng)
}

// HandleListMineActive returns the ONG's SCHEDULED and IN_PROGRESS events.
func (h *Handler) HandleListMineActive(w http.ResponseWriter, r *http.Request) {
	writeList(w, r, h.service.ListActiveByOng)
}

// HandleListMinePast returns the ONG's COMPLETED and CANCELLED events.
func (h *Handler) HandleListMinePast(w http.ResponseWriter, r *http.Request) {
	writeList(w, r, h.service.ListPastByOng)
}

func writeList(w http.ResponseWriter, r *http.Request, list func(context.Context, uuid.UUID) ([]View, error)) {
	views, err := list(r.Context(), middleware.CallerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, views)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrCategoryNotFound):
		httpx.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotOwner), errors.Is(err, identity.ErrNotAnOng), errors.Is(err, identity.ErrNotAVolunteer):
		httpx.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrAlreadyCancelled), errors.Is(err, ErrCapacityBelowReserved):
		httpx.Error(w, http.StatusConflict, err.Error())
	default:
		httpx.Error(w, http.StatusBadRequest, err.Error())
	}
}
