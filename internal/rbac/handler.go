package rbac

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

// Handler exposes the permission administration API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers permission admin routes. Ceiling management is
// platform-level and mounted behind the super-admin guard by the router;
// override management is tenant-level.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/permissions", h.handleListPermissions)
	r.Get("/roles", h.handleListRoles)
	r.Post("/roles", h.handleCreateRole)
	r.Put("/roles/{roleID}/permissions", h.handleSetRolePermissions)
	r.Delete("/roles/{roleID}", h.handleDeleteRole)
	r.Post("/overrides", h.handleAddOverride)
	r.Delete("/overrides/{userID}/{permissionID}", h.handleRemoveOverride)
}

// MountCeilingRoutes registers the platform-level ceiling endpoints.
func (h *Handler) MountCeilingRoutes(r chi.Router) {
	r.Put("/tenants/{tenantID}/ceiling", h.handleSetCeiling)
	r.Delete("/tenants/{tenantID}/ceiling/{permissionID}", h.handleRemoveCeiling)
}

func (h *Handler) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	p := tenancy.PrincipalFromContext(r.Context())
	roles, err := h.service.ListRoles(r.Context(), p.TenantID)
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

type createRoleRequest struct {
	Name string `json:"name" validate:"required,min=2"`
}

func (h *Handler) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	p := tenancy.PrincipalFromContext(r.Context())
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	role := &Role{TenantID: p.TenantID, Name: req.Name}
	if err := h.service.CreateRole(r.Context(), p.UserID, role); err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			httpx.RespondError(w, httpx.ErrDuplicate)
			return
		}
		h.logger.Error("create role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

type rolePermissionsRequest struct {
	PermissionIDs []int64 `json:"permission_ids" validate:"required"`
}

func (h *Handler) handleSetRolePermissions(w http.ResponseWriter, r *http.Request) {
	p := tenancy.PrincipalFromContext(r.Context())
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req rolePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	err = h.service.SetRolePermissions(r.Context(), p.UserID, p.TenantID, roleID, req.PermissionIDs)
	if err != nil {
		if errors.Is(err, ErrOutsideCeiling) {
			httpx.Problem(w, http.StatusConflict, "Outside Ceiling", err.Error())
			return
		}
		h.logger.Error("set role permissions", slog.Int64("role_id", roleID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	p := tenancy.PrincipalFromContext(r.Context())
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.DeleteRole(r.Context(), p.UserID, roleID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ceilingRequest struct {
	PermissionID int64  `json:"permission_id" validate:"required"`
	Status       string `json:"status" validate:"required,oneof=GRANTED BLOCKED"`
}

func (h *Handler) handleSetCeiling(w http.ResponseWriter, r *http.Request) {
	p := tenancy.PrincipalFromContext(r.Context())
	tenantID, err := pathID(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req ceilingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	err = h.service.SetCeiling(r.Context(), p.UserID, CeilingEntry{
		TenantID:     tenantID,
		PermissionID: req.PermissionID,
		Status:       CeilingStatus(req.Status),
	})
	if err != nil {
		h.logger.Error("set ceiling", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleRemoveCeiling(w http.ResponseWriter, r *http.Request) {
	p := tenancy.PrincipalFromContext(r.Context())
	tenantID, err := pathID(r, "tenantID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	permID, err := pathID(r, "permissionID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.RemoveCeiling(r.Context(), p.UserID, tenantID, permID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type overrideRequest struct {
	UserID       int64  `json:"user_id" validate:"required"`
	PermissionID int64  `json:"permission_id" validate:"required"`
	Type         string `json:"type" validate:"required,oneof=GRANT REVOKE"`
}

func (h *Handler) handleAddOverride(w http.ResponseWriter, r *http.Request) {
	p := tenancy.PrincipalFromContext(r.Context())
	var req overrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	err := h.service.AddOverride(r.Context(), p.UserID, p.TenantID, OverrideEntry{
		UserID:       req.UserID,
		PermissionID: req.PermissionID,
		Type:         OverrideType(req.Type),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrOutsideCeiling):
			httpx.Problem(w, http.StatusConflict, "Outside Ceiling", err.Error())
		case errors.Is(err, shared.ErrDuplicate):
			httpx.RespondError(w, httpx.ErrDuplicate)
		default:
			h.logger.Error("add override", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (h *Handler) handleRemoveOverride(w http.ResponseWriter, r *http.Request) {
	p := tenancy.PrincipalFromContext(r.Context())
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	permID, err := pathID(r, "permissionID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.RemoveOverride(r.Context(), p.UserID, userID, permID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
