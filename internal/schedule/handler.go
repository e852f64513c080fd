package schedule

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Carine01/agenda-courier/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrBlockNotFound, Status: http.StatusNotFound, Message: "blocked interval not found"},
	{Error: ErrMissingTenant, Status: http.StatusBadRequest, Message: "tenant id is required"},
	{Error: ErrInvalidInterval, Status: http.StatusBadRequest, Message: "invalid blocked interval"},
	{Error: ErrInvalidWindow, Status: http.StatusBadRequest, Message: "invalid time window"},
}

const dateLayout = "2006-01-02"

// Handler handles HTTP requests for blocked intervals and slot checks.
type Handler struct {
	service *Service
}

// NewHandler creates a new schedule handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers schedule routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/blocks/{tenantID}", func(r chi.Router) {
		r.Get("/", h.ListBlocks)
		r.Post("/", h.CreateBlock)
		r.Post("/generate", h.GenerateRecurring)
		r.Get("/check", h.CheckWindow)
		r.Get("/suggest", h.SuggestFreeSlots)
		r.Delete("/{id}", h.DeleteBlock)
	})
}

// ListBlocks handles GET /blocks/{tenantID}.
func (h *Handler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var from, to time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
			return
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
			return
		}
		to = parsed
	}

	blocks, err := h.service.ListBlocks(r.Context(), tenantID, from, to)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, blocks)
}

// CreateBlock handles POST /blocks/{tenantID}.
func (h *Handler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var input CreateBlockInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	block, err := h.service.CreateBlock(r.Context(), tenantID, input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, block)
}

// GenerateRecurring handles POST /blocks/{tenantID}/generate.
func (h *Handler) GenerateRecurring(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var input GenerateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	blocks, err := h.service.GenerateRecurring(r.Context(), tenantID, input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, blocks)
}

// CheckWindow handles GET /blocks/{tenantID}/check.
func (h *Handler) CheckWindow(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	start, err := strconv.Atoi(r.URL.Query().Get("start"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "start minute is required")
		return
	}
	duration, err := strconv.Atoi(r.URL.Query().Get("duration"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "duration is required")
		return
	}

	conflict, err := h.service.IsBlocked(r.Context(), tenantID, date, start, duration)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, conflict)
}

// SuggestFreeSlots handles GET /blocks/{tenantID}/suggest.
func (h *Handler) SuggestFreeSlots(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	duration, err := strconv.Atoi(r.URL.Query().Get("duration"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "duration is required")
		return
	}

	maxResults := 0
	if v := r.URL.Query().Get("max"); v != "" {
		maxResults, err = strconv.Atoi(v)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "max must be an integer")
			return
		}
	}

	slots, err := h.service.SuggestFreeSlots(r.Context(), tenantID, date, duration, maxResults)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, slots)
}

// DeleteBlock handles DELETE /blocks/{tenantID}/{id}.
func (h *Handler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteBlock(r.Context(), tenantID, id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
