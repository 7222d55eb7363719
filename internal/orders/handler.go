package orders

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/loomline/loomline/internal/platform/httpx"
	"github.com/loomline/loomline/internal/rbac"
	"github.com/loomline/loomline/internal/shared"
)

// Handler exposes the production order API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers order routes with per-operation permission guards.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(g chi.Router) {
		g.Use(h.guard.RequireAny("orders:read", "orders:write"))
		g.Get("/", h.handleList)
		g.Get("/{orderID}", h.handleGet)
	})
	r.Group(func(g chi.Router) {
		g.Use(h.guard.RequireAny("orders:write"))
		g.Post("/", h.handleCreate)
		g.Put("/{orderID}/status", h.handleTransition)
		g.Delete("/{orderID}", h.handleDelete)
	})
}

type createRequest struct {
	OrderNo  string `json:"order_no"`
	StyleNo  string `json:"style_no" validate:"required"`
	Quantity int64  `json:"quantity" validate:"required,gt=0"`
	Remark   string `json:"remark"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	o, err := h.service.Create(r.Context(), CreateOrderRequest{
		OrderNo:  req.OrderNo,
		StyleNo:  req.StyleNo,
		Quantity: req.Quantity,
		Remark:   req.Remark,
	}, r.Header.Get("Idempotency-Key"))
	if err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			httpx.Problem(w, http.StatusConflict, "Already Processed", err.Error())
			return
		}
		h.logger.Error("order create", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

type listResponse struct {
	Items      []Order           `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	items, pagination, err := h.service.List(r.Context(), q.Get("status"), page, perPage)
	if err != nil {
		h.logger.Error("order list", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Order{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: items, Pagination: pagination})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	o, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

type transitionRequest struct {
	Status string `json:"status" validate:"required,oneof=released in_progress done cancelled"`
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}

	o, err := h.service.Transition(r.Context(), id, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			httpx.RespondError(w, httpx.ErrNotFound)
		case errors.Is(err, ErrInvalidStatus):
			httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
		default:
			h.logger.Error("order transition", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
