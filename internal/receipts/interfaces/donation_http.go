package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"recurring-donations/internal/audit"
	"recurring-donations/internal/auth"
	"recurring-donations/internal/receipts/application"
	receipts "recurring-donations/internal/receipts/domain"
)

const pathDonations = "/api/v1/donations"

// DonationHandler handles donation APIs.
type DonationHandler struct {
	service *application.DonationService
}

// NewDonationHandler constructs a handler.
func NewDonationHandler(service *application.DonationService) (*DonationHandler, error) {
	if service == nil {
		return nil, errors.New("donation handler: nil service")
	}
	return &DonationHandler{service: service}, nil
}

// ServeHTTP handles routes under /api/v1/donations.
func (h *DonationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r = r.WithContext(audit.WithRequest(r.Context(), r))
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == pathDonations && r.Method == http.MethodPost {
		h.handleCreate(w, r)
		return
	}
	if strings.HasPrefix(path, pathDonations+"/") && r.Method == http.MethodGet {
		id := strings.TrimPrefix(path, pathDonations+"/")
		if id != "" && !strings.Contains(id, "/") {
			h.handleGet(w, r, id)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *DonationHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DonorID             string          `json:"donor_id"`
		PledgeID            string          `json:"pledge_id"`
		OccurrenceReference string          `json:"occurrence_reference"`
		Amount              decimal.Decimal `json:"amount"`
		Currency            string          `json:"currency"`
		Category            string          `json:"category"`
		Description         string          `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	donation, err := h.service.Create(r.Context(), application.CreateDonationInput{
		DonorID:             req.DonorID,
		PledgeID:            req.PledgeID,
		OccurrenceReference: req.OccurrenceReference,
		Amount:              req.Amount,
		Currency:            req.Currency,
		Category:            req.Category,
		Description:         req.Description,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(donation)
}

func (h *DonationHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	donation, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(donation)
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case receipts.IsValidationError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, auth.ErrOwnerMismatch):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, receipts.ErrDonationNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, receipts.ErrConcurrencyConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, receipts.ErrSequenceExhausted):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
