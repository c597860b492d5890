// internal/identity/handler.go
package identity

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"voluntaris/internal/httpx"
	"voluntaris/internal/middleware"
)

type Handler struct {
	service Service
	tokens  *Tokens
}

func NewHandler(service Service, tokens *Tokens) *Handler {
	return &Handler{service: service, tokens: tokens}
}

// HandleLogin authenticates a user and returns a signed token.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		h.writeError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"user":         user,
	})
}

// HandleRegisterVolunteer creates a volunteer account.
func (h *Handler) HandleRegisterVolunteer(w http.ResponseWriter, r *http.Request) {
	var in RegisterVolunteerInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.service.RegisterVolunteer(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

// HandleRegisterOng creates an ONG account awaiting admin approval.
func (h *Handler) HandleRegisterOng(w http.ResponseWriter, r *http.Request) {
	var in RegisterOngInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.service.RegisterOng(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

// HandleMe returns the caller's account with its profile.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetAccount(r.Context(), middleware.CallerID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

// HandleUpdateVolunteerProfile updates the caller's volunteer profile.
func (h *Handler) HandleUpdateVolunteerProfile(w http.ResponseWriter, r *http.Request) {
	var in UpdateVolunteerInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	profile, err := h.service.UpdateVolunteerProfile(r.Context(), middleware.CallerID(r.Context()), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

// HandleUpdateOngProfile updates the caller's ONG profile.
func (h *Handler) HandleUpdateOngProfile(w http.ResponseWriter, r *http.Request) {
	var in UpdateOngInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	profile, err := h.service.UpdateOngProfile(r.Context(), middleware.CallerID(r.Context()), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

// HandleListUsers lists accounts for moderation, filterable by role and status.
func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListUsers(r.Context(), r.URL.Query().Get("role"), r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

// HandleListOngs lists ONG accounts, pending first.
func (h *Handler) HandleListOngs(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListOngs(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

// HandleListVolunteers lists volunteer accounts.
func (h *Handler) HandleListVolunteers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListVolunteers(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

// HandleUpdateUserStatus moderates a user account.
func (h *Handler) HandleUpdateUserStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.service.UpdateUserStatus(r.Context(), userID, req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUserNotFound):
		httpx.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidToken):
		httpx.Error(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrAccountBlocked), errors.Is(err, ErrAccountPending),
		errors.Is(err, ErrNotAVolunteer), errors.Is(err, ErrNotAnOng),
		errors.Is(err, ErrAdminImmutable):
		httpx.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrCPFTaken), errors.Is(err, ErrCNPJTaken):
		httpx.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrRateLimited):
		httpx.Error(w, http.StatusTooManyRequests, err.Error())
	default:
		httpx.Error(w, http.StatusBadRequest, err.Error())
	}
}
