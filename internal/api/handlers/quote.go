package handlers

import (
	"net/http"

	"github.com/turnover-cleaning/backend/internal/api/middleware"
	"github.com/turnover-cleaning/backend/internal/pricing"
)

// QuoteResponse is a priced quote with display strings for the booking wizard.
type QuoteResponse struct {
	pricing.Quote
	FirstChargeCents      int64  `json:"first_charge_cents"`
	ContractorPayoutCents int64  `json:"contractor_payout_cents"`
	PerCleaning           string `json:"per_cleaning"`
	FirstCharge           string `json:"first_charge"`
}

// NewQuoteResponse decorates a quote with its derived amounts.
func NewQuoteResponse(q pricing.Quote) QuoteResponse {
	resp := QuoteResponse{Quote: q}
	if q.IsCustomQuote {
		return resp
	}
	resp.FirstChargeCents = q.FirstChargeCents()
	resp.ContractorPayoutCents = pricing.ContractorPayout(q.PerCleaningCents)
	resp.PerCleaning = pricing.FormatCents(q.PerCleaningCents)
	resp.FirstCharge = pricing.FormatCents(resp.FirstChargeCents)
	return resp
}

// Quote prices a property without storing anything.
func Quote(engine *pricing.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in pricing.Input
		if err := decodeJSON(r, &in); err != nil {
			middleware.WriteErrorWithDetails(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body", err.Error())
			return
		}
		if msg := validateQuoteInput(&in); msg != "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, msg)
			return
		}

		writeJSON(w, http.StatusOK, NewQuoteResponse(engine.Calculate(in)))
	}
}

// PricingGrid returns the grid the engine prices against.
func PricingGrid(engine *pricing.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, engine.Config())
	}
}

// validateQuoteInput fills defaults and returns a message for the first
// invalid field.
func validateQuoteInput(in *pricing.Input) string {
	if in.ServiceType == "" {
		return "service_type is required"
	}
	if in.Frequency == "" {
		in.Frequency = pricing.FrequencyOneTime
	}
	if in.Beds < 1 || in.Baths < 1 {
		return "beds and baths must be at least 1"
	}
	if in.HalfBaths < 0 {
		return "half_baths must not be negative"
	}
	if in.Sqft < 0 {
		return "sqft must not be negative"
	}
	if in.AddOns.LaundryLoads < 0 {
		return "laundry_loads must not be negative"
	}
	return ""
}
