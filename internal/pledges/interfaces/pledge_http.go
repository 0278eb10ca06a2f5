package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"recurring-donations/internal/audit"
	"recurring-donations/internal/auth"
	"recurring-donations/internal/observability/metrics"
	"recurring-donations/internal/pledges/application"
	pledges "recurring-donations/internal/pledges/domain"
)

const (
	pathPledges  = "/api/v1/pledges"
	xlsxMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ScheduleDefaults are the projection lengths used when ?count= is absent.
type ScheduleDefaults struct {
	JSON int
	PDF  int
	XLSX int
}

// PledgeHandler handles pledge APIs.
type PledgeHandler struct {
	service  *application.PledgeService
	defaults ScheduleDefaults
}

// NewPledgeHandler constructs a handler.
func NewPledgeHandler(service *application.PledgeService, defaults ScheduleDefaults) (*PledgeHandler, error) {
	if service == nil {
		return nil, errors.New("pledge handler: nil service")
	}
	if defaults.JSON <= 0 {
		defaults.JSON = 12
	}
	if defaults.PDF <= 0 {
		defaults.PDF = 12
	}
	if defaults.XLSX <= 0 {
		defaults.XLSX = 24
	}
	return &PledgeHandler{service: service, defaults: defaults}, nil
}

// ServeHTTP handles pledge routes under /api/v1/pledges.
func (h *PledgeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r = r.WithContext(audit.WithRequest(r.Context(), r))
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == pathPledges {
		switch r.Method {
		case http.MethodPost:
			h.handleCreate(w, r)
		case http.MethodGet:
			h.handleList(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}
	if strings.HasPrefix(path, pathPledges+"/") {
		h.handleByID(w, r, strings.TrimPrefix(path, pathPledges+"/"))
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

type createPledgeRequest struct {
	DonorID     string          `json:"donor_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	PolicyRequest
}

func (h *PledgeHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createPledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.DonorID == "" {
		req.DonorID = auth.DonorIDFromContext(r.Context())
	}
	policy, err := req.PolicyRequest.ToPolicy()
	if err != nil {
		respondServiceError(w, err)
		return
	}
	pledge, err := h.service.Create(r.Context(), application.CreatePledgeInput{
		DonorID:     req.DonorID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		Description: req.Description,
		Policy:      policy,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pledge)
}

func (h *PledgeHandler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := pledges.Filter{
		DonorID:    query.Get("donor_id"),
		ActiveOnly: query.Get("active") == "true",
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}
	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if list == nil {
		list = []pledges.Pledge{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *PledgeHandler) handleByID(w http.ResponseWriter, r *http.Request, rest string) {
	if rest == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) == 1 && r.Method == http.MethodGet {
		h.handleGet(w, r, id)
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "executions":
			if r.Method == http.MethodPost {
				h.handleExecution(w, r, id)
				return
			}
		case "stop":
			if r.Method == http.MethodPost {
				h.handleStop(w, r, id)
				return
			}
		case "schedule":
			if r.Method == http.MethodGet {
				h.handleSchedule(w, r, id)
				return
			}
		case "schedule.pdf":
			if r.Method == http.MethodGet {
				h.handleExport(w, r, id, "pdf")
				return
			}
		case "schedule.xlsx":
			if r.Method == http.MethodGet {
				h.handleExport(w, r, id, "xlsx")
				return
			}
		case "history":
			if r.Method == http.MethodGet {
				h.handleHistory(w, r, id)
				return
			}
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *PledgeHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	pledge, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pledge)
}

func (h *PledgeHandler) handleExecution(w http.ResponseWriter, r *http.Request, id string) {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		http.Error(w, "Idempotency-Key header required", http.StatusBadRequest)
		return
	}
	var req struct {
		ExecutedAt *time.Time `json:"executed_at"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	var executedAt time.Time
	if req.ExecutedAt != nil {
		executedAt = *req.ExecutedAt
	}
	result, err := h.service.RecordExecution(r.Context(), id, key, executedAt)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed || !result.Recorded {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (h *PledgeHandler) handleStop(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	pledge, err := h.service.Stop(r.Context(), id, req.Reason)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pledge)
}

func (h *PledgeHandler) handleSchedule(w http.ResponseWriter, r *http.Request, id string) {
	count, ok := parseCount(w, r, h.defaults.JSON)
	if !ok {
		return
	}
	pledge, occurrences, err := h.service.Schedule(r.Context(), id, count)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pledge_id":   pledge.ID,
		"state":       pledge.Policy.State(),
		"occurrences": occurrences,
	})
}

func (h *PledgeHandler) handleExport(w http.ResponseWriter, r *http.Request, id, format string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveScheduleExport(format, result, time.Since(start))
	}()

	fallback := h.defaults.PDF
	if format == "xlsx" {
		fallback = h.defaults.XLSX
	}
	count, ok := parseCount(w, r, fallback)
	if !ok {
		result = metrics.ResultError
		return
	}
	pledge, occurrences, err := h.service.Schedule(r.Context(), id, count)
	if err != nil {
		result = metrics.ResultError
		respondServiceError(w, err)
		return
	}

	var data []byte
	contentType := "application/pdf"
	if format == "xlsx" {
		data, err = BuildScheduleXLSX(pledge, occurrences)
		contentType = xlsxMimeType
	} else {
		data, err = BuildSchedulePDF(pledge, occurrences)
	}
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export "+format+" error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\"schedule-"+pledge.ID+"."+format+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *PledgeHandler) handleHistory(w http.ResponseWriter, r *http.Request, id string) {
	entries, err := h.service.History(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func parseCount(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	raw := r.URL.Query().Get("count")
	if raw == "" {
		return fallback, true
	}
	count, err := strconv.Atoi(raw)
	if err != nil || count < 0 {
		http.Error(w, "invalid count", http.StatusBadRequest)
		return 0, false
	}
	return count, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondServiceError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case pledges.IsValidationError(err),
		errors.Is(err, pledges.ErrEmptyPledgeID),
		errors.Is(err, pledges.ErrEmptyIdempotencyKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, auth.ErrOwnerMismatch):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, pledges.ErrPledgeNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, pledges.ErrConcurrencyConflict),
		errors.Is(err, pledges.ErrDuplicateExecution):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
