// Package models contains the domain models for the application.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/turnover-cleaning/backend/internal/pricing"
)

// BookingStatus is the lifecycle state of a customer booking.
type BookingStatus string

const (
	BookingStatusPending      BookingStatus = "pending"
	BookingStatusPendingQuote BookingStatus = "pending_quote"
	BookingStatusConfirmed    BookingStatus = "confirmed"
	BookingStatusActive       BookingStatus = "active"
	BookingStatusPaused       BookingStatus = "paused"
	BookingStatusCancelled    BookingStatus = "cancelled"
)

// ParseBookingStatus maps a wire value to a BookingStatus.
func ParseBookingStatus(s string) (BookingStatus, error) {
	switch v := BookingStatus(strings.ToLower(strings.TrimSpace(s))); v {
	case BookingStatusPending, BookingStatusPendingQuote, BookingStatusConfirmed,
		BookingStatusActive, BookingStatusPaused, BookingStatusCancelled:
		return v, nil
	}
	return "", fmt.Errorf("unknown booking status %q", s)
}

// UnmarshalText rejects unknown variants at decode time.
func (s *BookingStatus) UnmarshalText(b []byte) error {
	v, err := ParseBookingStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// PaymentStatus mirrors the payment processor's view of a booking.
type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusCompleted     PaymentStatus = "completed"
	PaymentStatusSetupComplete PaymentStatus = "setup_complete"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusRefunded      PaymentStatus = "refunded"
)

// ParsePaymentStatus maps a wire value to a PaymentStatus.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch v := PaymentStatus(strings.ToLower(strings.TrimSpace(s))); v {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusSetupComplete,
		PaymentStatusFailed, PaymentStatusRefunded:
		return v, nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

// UnmarshalText rejects unknown variants at decode time.
func (p *PaymentStatus) UnmarshalText(b []byte) error {
	v, err := ParsePaymentStatus(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// AccessMethod is how the cleaner gets into the property.
type AccessMethod string

const (
	AccessLockbox      AccessMethod = "lockbox"
	AccessSmartLock    AccessMethod = "smart_lock"
	AccessKeypad       AccessMethod = "keypad"
	AccessHiddenKey    AccessMethod = "hidden_key"
	AccessMeetInPerson AccessMethod = "meet_in_person"
	AccessConcierge    AccessMethod = "concierge"
)

// ParseAccessMethod maps a wire value to an AccessMethod.
func ParseAccessMethod(s string) (AccessMethod, error) {
	switch v := AccessMethod(strings.ToLower(strings.TrimSpace(s))); v {
	case AccessLockbox, AccessSmartLock, AccessKeypad, AccessHiddenKey, AccessMeetInPerson, AccessConcierge:
		return v, nil
	}
	return "", fmt.Errorf("unknown access method %q", s)
}

// UnmarshalText rejects unknown variants at decode time.
func (a *AccessMethod) UnmarshalText(b []byte) error {
	v, err := ParseAccessMethod(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Instructions is the line printed on job notes for the cleaner.
func (a AccessMethod) Instructions() string {
	switch a {
	case AccessLockbox:
		return "Key is in the lockbox; code is on the booking."
	case AccessSmartLock:
		return "Smart lock; a code will be issued before arrival."
	case AccessKeypad:
		return "Keypad entry; code is on the booking."
	case AccessHiddenKey:
		return "Key is hidden on site; location is on the booking."
	case AccessMeetInPerson:
		return "Host meets the cleaner on arrival."
	case AccessConcierge:
		return "Collect the key from the front desk."
	}
	return "No access instructions on file."
}

// Booking is a customer's cleaning booking for one property.
type Booking struct {
	ID              string              `json:"id"`
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
	AccessMethod    AccessMethod        `json:"access_method"`
	TotalPriceCents int64               `json:"total_price_cents"`

	// FirstChargeCents includes one-time first-clean surcharges.
	FirstChargeCents int64 `json:"first_charge_cents"`

	BookingStatus BookingStatus `json:"booking_status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	ICalURLs      []string      `json:"ical_urls"`
	LastICalSync  *time.Time    `json:"last_ical_sync,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// IsICalEligible reports whether the booking's calendar feeds should be polled.
func (b *Booking) IsICalEligible() bool {
	if len(b.ICalURLs) == 0 {
		return false
	}
	switch b.BookingStatus {
	case BookingStatusActive, BookingStatusConfirmed:
	default:
		return false
	}
	switch b.PaymentStatus {
	case PaymentStatusCompleted, PaymentStatusSetupComplete:
		return true
	}
	return false
}
