package tenants

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/loomline/loomline/internal/platform/httpx"
	"github.com/loomline/loomline/internal/shared"
	"github.com/loomline/loomline/internal/tenancy"
)

// Handler exposes the platform tenant administration API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers tenant routes. The router mounts these behind the
// super-admin guard.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/tenants", h.handleList)
	r.Post("/tenants", h.handleOnboard)
	r.Put("/tenants/{tenantID}/active", h.handleSetActive)
}

type onboardRequest struct {
	Name          string `json:"name" validate:"required,min=2"`
	Contact       string `json:"contact"`
	OwnerUsername string `json:"owner_username" validate:"required,min=3"`
	OwnerPassword string `json:"owner_password" validate:"required,min=8"`
}

type onboardResponse struct {
	Tenant  Tenant `json:"tenant"`
	OwnerID int64  `json:"owner_id"`
}

func (h *Handler) handleOnboard(w http.ResponseWriter, r *http.Request) {
	p := tenancy.PrincipalFromContext(r.Context())
	var req onboardRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	t := Tenant{Name: req.Name, Contact: req.Contact}
	ownerID, err := h.service.Onboard(r.Context(), p.UserID, &t, req.OwnerUsername, req.OwnerPassword)
	if err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			httpx.RespondError(w, httpx.ErrDuplicate)
			return
		}
		h.logger.Error("tenant onboard", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, onboardResponse{Tenant: t, OwnerID: ownerID})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("tenant list", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (h *Handler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	p := tenancy.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req setActiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.SetActive(r.Context(), p.UserID, id, *req.Active); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
