package queue

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Carine01/agenda-courier/internal/pkg/httputil"
	"github.com/Carine01/agenda-courier/internal/pkg/idempotency"
	"github.com/Carine01/agenda-courier/internal/templates"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrItemNotFound, Status: http.StatusNotFound, Message: "queue item not found"},
	{Error: ErrAlreadyFinalized, Status: http.StatusConflict, Message: "queue item already processed"},
	{Error: ErrMissingTenant, Status: http.StatusBadRequest, Message: "tenant_id is required"},
	{Error: templates.ErrTemplateNotFound, Status: http.StatusBadRequest, Message: "unknown template key"},
	{Error: idempotency.ErrDuplicateRequest, Status: http.StatusConflict, Message: "request with this idempotency key is already in flight"},
}

// Handler handles HTTP requests for the queue module.
type Handler struct {
	service *Service
}

// NewHandler creates a new queue handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers queue routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/queue", func(r chi.Router) {
		r.Post("/", h.Enqueue)
		r.Get("/", h.List)
		r.Get("/{id}", h.GetItem)
		r.Post("/{id}/cancel", h.Cancel)
	})
}

// EnqueueRequest represents request body for enqueueing a message.
type EnqueueRequest struct {
	TenantID     string            `json:"tenant_id"`
	Destination  string            `json:"destination"`
	TemplateKey  string            `json:"template_key"`
	Variables    map[string]string `json:"variables"`
	Metadata     map[string]string `json:"metadata"`
	ScheduledFor *time.Time        `json:"scheduled_for"`
}

// Enqueue handles POST /queue.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	item, err := h.service.Enqueue(r.Context(), EnqueueInput{
		TenantID:       req.TenantID,
		Destination:    req.Destination,
		TemplateKey:    req.TemplateKey,
		Variables:      req.Variables,
		Metadata:       req.Metadata,
		ScheduledFor:   req.ScheduledFor,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		if _, ok := err.(validator.ValidationErrors); ok {
			httputil.ValidationError(w, err)
			return
		}
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, item)
}

// Cancel handles POST /queue/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tenantID := r.URL.Query().Get("tenant_id")

	item, err := h.service.Cancel(r.Context(), tenantID, id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, item)
}

// GetItem handles GET /queue/{id}.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tenantID := r.URL.Query().Get("tenant_id")

	item, err := h.service.Get(r.Context(), tenantID, id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, item)
}

// List handles GET /queue.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		TenantID: r.URL.Query().Get("tenant_id"),
		Status:   Status(r.URL.Query().Get("status")),
	}

	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, items)
}
