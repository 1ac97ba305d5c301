package queue

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hookrelay/hookrelay/internal/pkg/httputil"
	"github.com/hookrelay/hookrelay/internal/registry"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrNotFound, Status: http.StatusNotFound, Message: "notification not found or not in required state"},
	{Error: ErrDuplicateID, Status: http.StatusConflict, Message: "notification id already exists"},
	{Error: ErrTooManyIDs, Status: http.StatusBadRequest, Message: "bulk operations accept at most 100 ids"},
	{Error: ErrIntegrationDisabled, Status: http.StatusConflict, Message: "integration is disabled"},
	{Error: registry.ErrNotFound, Status: http.StatusBadRequest, Message: "unknown integration"},
}

// SettingsStore reads and writes the processing kill-switch.
type SettingsStore interface {
	IsQueueEnabled(ctx context.Context) (bool, error)
	SetQueueEnabled(ctx context.Context, enabled bool) error
}

// HandlerConfig contains handler configuration.
type HandlerConfig struct {
	DefaultMaxRetries int
	PendingThreshold  int64
	FailedThreshold   int64
}

// Handler handles HTTP requests for the queue module.
type Handler struct {
	config       HandlerConfig
	controller   *Controller
	repo         Repository
	integrations registry.Repository
	killSwitch   SettingsStore
	validator    *validator.Validate
}

// NewHandler creates a new queue handler.
func NewHandler(config HandlerConfig, controller *Controller, repo Repository, integrations registry.Repository, killSwitch SettingsStore) *Handler {
	return &Handler{
		config:       config,
		controller:   controller,
		repo:         repo,
		integrations: integrations,
		killSwitch:   killSwitch,
		validator:    validator.New(),
	}
}

// RegisterRoutes registers queue routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Post("/", h.Enqueue)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Delete)
		r.Post("/{id}/retry", h.Retry)
		r.Post("/{id}/pause", h.Pause)

		r.Post("/bulk/retry", h.BulkRetry)
		r.Post("/bulk/delete", h.BulkDelete)
		r.Post("/bulk/cancel", h.BulkCancel)
	})

	r.Route("/queue", func(r chi.Router) {
		r.Post("/process", h.Process)
		r.Get("/stats", h.Stats)
		r.Get("/health", h.Health)
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.PutSettings)
		r.Post("/cleanup", h.Cleanup)
		r.Post("/reclaim", h.Reclaim)
	})
}

// EnqueueRequest represents request body for enqueueing a notification.
type EnqueueRequest struct {
	IntegrationID string `json:"integration_id" validate:"required"`
	Payload       string `json:"payload" validate:"required"`
	Priority      int    `json:"priority"`
	MaxRetries    *int   `json:"max_retries" validate:"omitempty,gte=0"`
}

// Enqueue handles POST /notifications.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	integration, err := h.integrations.GetByID(r.Context(), req.IntegrationID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	if !integration.Enabled {
		httputil.HandleError(r.Context(), w, ErrIntegrationDisabled, errorMappings)
		return
	}

	maxRetries := h.config.DefaultMaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	n := &QueuedNotification{
		ID:            uuid.New().String(),
		TenantID:      integration.TenantID,
		IntegrationID: integration.ID,
		Platform:      string(integration.Platform),
		WebhookURL:    integration.WebhookURL,
		ContentType:   integration.ContentType,
		Payload:       []byte(req.Payload),
		Priority:      req.Priority,
		Status:        StatusPending,
		MaxRetries:    maxRetries,
	}

	if err := h.repo.Insert(r.Context(), n); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, n)
}

// Get handles GET /notifications/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	n, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, n)
}

// List handles GET /notifications?status=&limit=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	status := Status(r.URL.Query().Get("status"))
	if !status.Valid() {
		httputil.Error(w, http.StatusBadRequest, "status must be one of pending, processing, completed, failed")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	items, err := h.repo.ListByStatus(r.Context(), status, limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, items)
}

// Delete handles DELETE /notifications/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Retry handles POST /notifications/{id}/retry.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.controller.RetryFailed(r.Context(), id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]string{"id": id, "status": string(StatusPending)})
}

// Pause handles POST /notifications/{id}/pause.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.controller.Pause(r.Context(), id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]string{"id": id, "message": "notification paused"})
}

// BulkRequest represents request body for bulk operations.
type BulkRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

// BulkRetry handles POST /notifications/bulk/retry.
func (h *Handler) BulkRetry(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.controller.BulkRetry)
}

// BulkDelete handles POST /notifications/bulk/delete.
func (h *Handler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.controller.BulkDelete)
}

// BulkCancel handles POST /notifications/bulk/cancel.
func (h *Handler) BulkCancel(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.controller.BulkCancel)
}

func (h *Handler) bulk(w http.ResponseWriter, r *http.Request, op func(context.Context, []string) (BulkResult, error)) {
	var req BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	result, err := op(r.Context(), req.IDs)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

// ProcessRequest represents request body for triggering a processing pass.
type ProcessRequest struct {
	Limit int `json:"limit" validate:"gte=0"`
}

// Process handles POST /queue/process.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid json")
			return
		}
		if err := h.validator.Struct(req); err != nil {
			httputil.ValidationError(w, err)
			return
		}
	}

	result, err := h.controller.ProcessQueue(r.Context(), req.Limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

// Stats handles GET /queue/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.controller.Stats(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, stats)
}

// QueueHealth describes queue health for monitoring.
type QueueHealth struct {
	Status  string   `json:"status"`
	Stats   Stats    `json:"stats"`
	Reasons []string `json:"reasons,omitempty"`
}

// Health handles GET /queue/health. The queue is degraded when pending or
// failed counts exceed their configured thresholds.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.controller.Stats(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	health := QueueHealth{Status: "healthy", Stats: *stats}
	if h.config.PendingThreshold > 0 && stats.Pending > h.config.PendingThreshold {
		health.Status = "degraded"
		health.Reasons = append(health.Reasons, "pending backlog above threshold")
	}
	if h.config.FailedThreshold > 0 && stats.Failed > h.config.FailedThreshold {
		health.Status = "degraded"
		health.Reasons = append(health.Reasons, "failed count above threshold")
	}

	httputil.Success(w, http.StatusOK, health)
}

// GetSettings handles GET /queue/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.killSwitch.IsQueueEnabled(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

// PutSettingsRequest represents request body for updating queue settings.
type PutSettingsRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// PutSettings handles PUT /queue/settings.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var req PutSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	if err := h.killSwitch.SetQueueEnabled(r.Context(), *req.Enabled); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}

// CleanupRequest represents request body for retention cleanup.
type CleanupRequest struct {
	MaxAgeDays int `json:"max_age_days" validate:"gte=0"`
}

// Cleanup handles POST /queue/cleanup.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid json")
			return
		}
		if err := h.validator.Struct(req); err != nil {
			httputil.ValidationError(w, err)
			return
		}
	}

	deleted, err := h.controller.Cleanup(r.Context(), time24h(req.MaxAgeDays))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// time24h converts a day count to a duration; zero means "use the default".
func time24h(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

// Reclaim handles POST /queue/reclaim.
func (h *Handler) Reclaim(w http.ResponseWriter, r *http.Request) {
	released, err := h.controller.ReclaimStuck(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]int64{"released": released})
}
