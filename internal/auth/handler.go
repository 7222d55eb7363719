package auth

import (
	"context"
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

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/password", h.handleChangePassword)
	r.Get("/me", h.handleMe)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginResponse struct {
	Token       string `json:"token"`
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	RoleName    string `json:"role_name,omitempty"`
	TenantID    *int64 `json:"tenant_id,omitempty"`
	TenantOwner bool   `json:"tenant_owner"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	token, user, err := h.service.Login(r.Context(), req.Username, req.Password, r.RemoteAddr, r.UserAgent())
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		h.logger.Error("login", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse{
		Token:       token,
		UserID:      user.ID,
		Username:    user.Username,
		RoleName:    user.RoleName,
		TenantID:    user.TenantID,
		TenantOwner: user.TenantOwner,
	})
}

type changePasswordRequest struct {
	Current string `json:"current" validate:"required"`
	Next    string `json:"next" validate:"required,min=8"`
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	p := tenancy.PrincipalFromContext(r.Context())
	if p == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req changePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	token, err := h.service.ChangePassword(r.Context(), p.UserID, req.Current, req.Next)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.RespondError(w, httpx.ErrForbidden)
			return
		}
		h.logger.Error("change password", slog.Int64("user_id", p.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"token": token})
}

type meResponse struct {
	UserID      int64    `json:"user_id"`
	Username    string   `json:"username"`
	RoleName    string   `json:"role_name,omitempty"`
	TenantID    *int64   `json:"tenant_id,omitempty"`
	TenantOwner bool     `json:"tenant_owner"`
	SuperAdmin  bool     `json:"super_admin"`
	DataScope   string   `json:"data_scope"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p := tenancy.PrincipalFromContext(r.Context())
	if p == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, meResponse{
		UserID:      p.UserID,
		Username:    p.Username,
		RoleName:    p.RoleName,
		TenantID:    p.TenantID,
		TenantOwner: p.TenantOwner,
		SuperAdmin:  p.IsSuperAdmin(),
		DataScope:   p.DataScope(),
		Permissions: p.Permissions,
	})
}

func principalUsername(ctx context.Context) string {
	if p := tenancy.PrincipalFromContext(ctx); p != nil {
		return p.Username
	}
	return ""
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
