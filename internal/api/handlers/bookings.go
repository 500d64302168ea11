package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"github.com/turnover-cleaning/backend/internal/api/middleware"
	"github.com/turnover-cleaning/backend/internal/calendar"
	"github.com/turnover-cleaning/backend/internal/events"
	"github.com/turnover-cleaning/backend/internal/pricing"
	"github.com/turnover-cleaning/backend/internal/storage"
	"github.com/turnover-cleaning/backend/internal/storage/models"
)

// CreateBookingRequest is the booking wizard's submission.
type CreateBookingRequest struct {
	CustomerEmail   string              `json:"customer_email"`
	PropertyAddress string              `json:"property_address"`
	PropertyCity    string              `json:"property_city"`
	Beds            int                 `json:"beds"`
	Baths           int                 `json:"baths"`
	HalfBaths       int                 `json:"half_baths"`
	Sqft            int                 `json:"sqft"`
	ServiceType     pricing.ServiceType `json:"service_type"`
	Frequency       pricing.Frequency   `json:"frequency"`
	AddOns          pricing.AddOns      `json:"add_ons"`
	AccessMethod    models.AccessMethod `json:"access_method"`
	ICalURLs        []string            `json:"ical_urls"`
}

// BookingResponse is a stored booking together with its quote.
type BookingResponse struct {
	*models.Booking
	Quote *QuoteResponse `json:"quote,omitempty"`
}

type updateICalURLsRequest struct {
	ICalURLs []string `json:"ical_urls"`
}

type updateBookingStatusRequest struct {
	BookingStatus *models.BookingStatus `json:"booking_status"`
	PaymentStatus *models.PaymentStatus `json:"payment_status"`
}

// ListBookings returns all bookings, newest first.
func ListBookings(bookings *storage.BookingRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := bookings.List(r.Context())
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query bookings")
			return
		}
		if list == nil {
			list = []models.Booking{}
		}

		writeJSON(w, http.StatusOK, list)
	}
}

// CreateBooking prices and stores a booking. Properties that need a custom
// quote are stored unpriced and marked pending_quote.
func CreateBooking(bookings *storage.BookingRepository, engine *pricing.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteErrorWithDetails(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body", err.Error())
			return
		}

		urls, err := normalizeICalURLs(req.ICalURLs)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}
		if msg := req.validate(); msg != "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, msg)
			return
		}

		in := pricing.Input{
			Beds:        req.Beds,
			Baths:       req.Baths,
			HalfBaths:   req.HalfBaths,
			Sqft:        req.Sqft,
			AddOns:      req.AddOns,
			Frequency:   req.Frequency,
			ServiceType: req.ServiceType,
		}
		quote := engine.Calculate(in)

		b := &models.Booking{
			CustomerEmail:    strings.TrimSpace(req.CustomerEmail),
			PropertyAddress:  strings.TrimSpace(req.PropertyAddress),
			PropertyCity:     strings.TrimSpace(req.PropertyCity),
			Beds:             req.Beds,
			Baths:            req.Baths,
			HalfBaths:        req.HalfBaths,
			Sqft:             req.Sqft,
			ServiceType:      req.ServiceType,
			Frequency:        req.Frequency,
			AddOns:           req.AddOns,
			AccessMethod:     req.AccessMethod,
			TotalPriceCents:  quote.PerCleaningCents,
			FirstChargeCents: quote.FirstChargeCents(),
			ICalURLs:         urls,
		}
		if quote.IsCustomQuote {
			b.TotalPriceCents = 0
			b.FirstChargeCents = 0
			b.BookingStatus = models.BookingStatusPendingQuote
		}

		if err := bookings.Create(r.Context(), b); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create booking")
			return
		}

		resp := NewQuoteResponse(quote)
		writeJSON(w, http.StatusCreated, BookingResponse{Booking: b, Quote: &resp})
	}
}

// GetBooking returns a single booking by ID.
func GetBooking(bookings *storage.BookingRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := bookings.GetByID(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query booking")
			return
		}
		if b == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Booking not found")
			return
		}

		writeJSON(w, http.StatusOK, BookingResponse{Booking: b})
	}
}

// UpdateBookingICalURLs replaces the calendar feeds polled for a booking.
func UpdateBookingICalURLs(bookings *storage.BookingRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateICalURLsRequest
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteErrorWithDetails(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body", err.Error())
			return
		}
		urls, err := normalizeICalURLs(req.ICalURLs)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}

		ctx := r.Context()
		id := mux.Vars(r)["id"]
		if err := bookings.UpdateICalURLs(ctx, id, urls); err != nil {
			writeBookingUpdateError(w, err)
			return
		}

		b, err := bookings.GetByID(ctx, id)
		if err != nil || b == nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to reload booking")
			return
		}
		writeJSON(w, http.StatusOK, BookingResponse{Booking: b})
	}
}

// UpdateBookingStatus sets booking and payment status. Either may be omitted.
func UpdateBookingStatus(bookings *storage.BookingRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateBookingStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteErrorWithDetails(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body", err.Error())
			return
		}
		if req.BookingStatus == nil && req.PaymentStatus == nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "booking_status or payment_status is required")
			return
		}

		ctx := r.Context()
		id := mux.Vars(r)["id"]
		if err := bookings.UpdateStatus(ctx, id, req.BookingStatus, req.PaymentStatus); err != nil {
			writeBookingUpdateError(w, err)
			return
		}

		b, err := bookings.GetByID(ctx, id)
		if err != nil || b == nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to reload booking")
			return
		}
		writeJSON(w, http.StatusOK, BookingResponse{Booking: b})
	}
}

// SyncBooking polls one booking's calendar feeds immediately.
func SyncBooking(syncService *calendar.SyncService, dispatcher *events.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if syncService == nil {
			middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrUnavailable, "Calendar sync is not configured")
			return
		}

		ctx := r.Context()
		result, err := syncService.SyncBookingByID(ctx, mux.Vars(r)["id"])
		switch {
		case errors.Is(err, calendar.ErrBookingNotFound):
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Booking not found")
			return
		case errors.Is(err, calendar.ErrBookingNotEligible):
			middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "Booking is not eligible for calendar sync")
			return
		case err != nil:
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Calendar sync failed")
			return
		}

		if dispatcher != nil {
			dispatcher.BookingSynced(ctx, result)
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func writeBookingUpdateError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Booking not found")
		return
	}
	middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to update booking")
}

func (req *CreateBookingRequest) validate() string {
	if _, err := mail.ParseAddress(req.CustomerEmail); err != nil {
		return "customer_email is invalid"
	}
	if strings.TrimSpace(req.PropertyAddress) == "" || strings.TrimSpace(req.PropertyCity) == "" {
		return "property_address and property_city are required"
	}
	if req.AccessMethod == "" {
		return "access_method is required"
	}
	in := pricing.Input{
		Beds:        req.Beds,
		Baths:       req.Baths,
		HalfBaths:   req.HalfBaths,
		Sqft:        req.Sqft,
		AddOns:      req.AddOns,
		Frequency:   req.Frequency,
		ServiceType: req.ServiceType,
	}
	if msg := validateQuoteInput(&in); msg != "" {
		return msg
	}
	req.Frequency = in.Frequency
	return ""
}

// normalizeICalURLs trims, de-duplicates and checks feed URLs. webcal://
// links, as exported by most listing sites, are rewritten to https.
func normalizeICalURLs(raw []string) ([]string, error) {
	seen := make(map[string]bool, len(raw))
	urls := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid calendar URL %q", s)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
		case "webcal":
			u.Scheme = "https"
		default:
			return nil, fmt.Errorf("calendar URL must use http, https or webcal: %q", s)
		}
		normalized := u.String()
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		urls = append(urls, normalized)
	}
	return urls, nil
}
