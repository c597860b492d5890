// internal/application/handler.go
package application

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"voluntaris/internal/event"
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

// HandleApply lets the calling volunteer apply to an event.
func (h *Handler) HandleApply(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid event id")
		return
	}

	a, err := h.service.Apply(r.Context(), middleware.CallerID(r.Context()), eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

// HandleCancel withdraws the calling volunteer's application.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid application id")
		return
	}

	a, err := h.service.Cancel(r.Context(), middleware.CallerID(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

// HandleDecide accepts or rejects a candidate on behalf of the owning ONG.
func (h *Handler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid application id")
		return
	}

	var in struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := h.service.Decide(r.Context(), middleware.CallerID(r.Context()), id, in.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

// HandleCheckIn records the calling volunteer's attendance with the event code.
func (h *Handler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid event id")
		return
	}

	var in struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := h.service.CheckIn(r.Context(), middleware.CallerID(r.Context()), eventID, in.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

// HandleCheckInCode returns the event's check-in code to its owning ONG,
// generating it on first request.
func (h *Handler) HandleCheckInCode(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid event id")
		return
	}

	code, err := h.service.IssueCheckInCode(r.Context(), middleware.CallerID(r.Context()), eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, code)
}

// HandleListActive returns the volunteer's live applications.
func (h *Handler) HandleListActive(w http.ResponseWriter, r *http.Request) {
	writeViews(w, r, h.service.ListActive)
}

// HandleListPast returns the volunteer's finished and withdrawn applications.
func (h *Handler) HandleListPast(w http.ResponseWriter, r *http.Request) {
	writeViews(w, r, h.service.ListPast)
}

// HandleNotifications returns running events awaiting the volunteer's check-in.
func (h *Handler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	writeViews(w, r, h.service.Notifications)
}

// HandleListByEvent returns an event's live candidates to its owning ONG.
func (h *Handler) HandleListByEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid event id")
		return
	}

	candidates, err := h.service.ListByEvent(r.Context(), middleware.CallerID(r.Context()), eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, candidates)
}

func writeViews(w http.ResponseWriter, r *http.Request, list func(context.Context, uuid.UUID) ([]EventView, error)) {
	views, err := list(r.Context(), middleware.CallerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, views)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, event.ErrNotFound):
		httpx.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotOwner), errors.Is(err, event.ErrNotOwner),
		errors.Is(err, identity.ErrNotAVolunteer), errors.Is(err, identity.ErrNotAnOng):
		httpx.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrCapacityFull),
		errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAlreadyCheckedIn),
		errors.Is(err, ErrInvalidPhase), errors.Is(err, ErrCodeNotIssued):
		httpx.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrWindowClosed), errors.Is(err, ErrCodeMismatch):
		httpx.Error(w, http.StatusUnprocessableEntity, err.Error())
	default:
		httpx.Error(w, http.StatusBadRequest, err.Error())
	}
}
