package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tradedocs/tradedocs/internal/platform/httpx"
	"github.com/tradedocs/tradedocs/internal/shared"
)

// Handler manages API key administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers key management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/auth/keys", h.mint)
	r.Get("/auth/keys", h.list)
	r.Delete("/auth/keys/{keyID}", h.revoke)
}

func (h *Handler) mint(w http.ResponseWriter, r *http.Request) {
	var req MintKeyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, map[string]string{"name": "required"})
		return
	}
	minted, err := h.service.Mint(r.Context(), req.Name)
	if err != nil {
		h.logger.Error("mint api key", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusCreated, minted)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list api keys", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "keyID")
	if err := h.service.Revoke(r.Context(), keyID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "key not found")
			return
		}
		h.logger.Error("revoke api key", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
