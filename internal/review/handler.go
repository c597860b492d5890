// internal/review/handler.go
package review

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

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

// HandleCreate writes a review for one of the caller's checked-in applications.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rv, err := h.service.Create(r.Context(), middleware.CallerID(r.Context()), in)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rv)
}

// HandleUpdate edits the caller's review while its window is open.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid review id")
		return
	}

	var in UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rv, err := h.service.Update(r.Context(), middleware.CallerID(r.Context()), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rv)
}

// HandleDelete removes the caller's review while its window is open.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid review id")
		return
	}

	if err := h.service.Delete(r.Context(), middleware.CallerID(r.Context()), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListByOng returns one page of an ONG's reviews; public.
func (h *Handler) HandleListByOng(w http.ResponseWriter, r *http.Request) {
	ongID, err := uuid.Parse(chi.URLParam(r, "ongId"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid ong id")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	out, err := h.service.ListByOng(r.Context(), ongID, page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

// HandleMine returns the calling volunteer's reviews.
func (h *Handler) HandleMine(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.Mine(r.Context(), middleware.CallerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, views)
}

// HandleListEligible returns the caller's reviewable applications.
func (h *Handler) HandleListEligible(w http.ResponseWriter, r *http.Request) {
	eligible, err := h.service.ListEligible(r.Context(), middleware.CallerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, eligible)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotOwner), errors.Is(err, identity.ErrNotAVolunteer),
		errors.Is(err, identity.ErrNotAnOng):
		httpx.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrAlreadyReviewed), errors.Is(err, ErrNotCheckedIn),
		errors.Is(err, ErrInvalidPhase):
		httpx.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrWindowClosed):
		httpx.Error(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalidRating):
		httpx.Error(w, http.StatusBadRequest, err.Error())
	default:
		httpx.Error(w, http.StatusBadRequest, err.Error())
	}
}
