// Package pricing computes per-cleaning quotes from property attributes,
// add-ons, subscription frequency and service type.
package pricing

import (
	"fmt"
	"strings"
)

// ServiceType is the kind of cleaning being booked.
type ServiceType string

const (
	ServiceResidential    ServiceType = "residential"
	ServiceVacationRental ServiceType = "vacation_rental"
)

// ParseServiceType accepts the canonical values plus the short "vr" form
// used by the booking wizard.
func ParseServiceType(s string) (ServiceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "residential":
		return ServiceResidential, nil
	case "vacation_rental", "vacation-rental", "vr":
		return ServiceVacationRental, nil
	}
	return "", fmt.Errorf("unknown service type %q", s)
}

// UnmarshalText rejects unknown variants at decode time.
func (s *ServiceType) UnmarshalText(b []byte) error {
	v, err := ParseServiceType(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// chargesResidentialExtras reports whether deep cleaning, fridge and window
// add-ons are billable for this service type.
func (s ServiceType) chargesResidentialExtras() bool {
	switch s {
	case ServiceResidential:
		return true
	case ServiceVacationRental:
		return false
	}
	return false
}

// Frequency is the recurrence cadence of a cleaning subscription.
type Frequency string

const (
	FrequencyOneTime   Frequency = "one-time"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiWeekly  Frequency = "bi-weekly"
	FrequencyTriWeekly Frequency = "tri-weekly"
	FrequencyMonthly   Frequency = "monthly"
)

// ParseFrequency maps a wire value to a Frequency.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "one-time", "one_time", "onetime":
		return FrequencyOneTime, nil
	case "weekly":
		return FrequencyWeekly, nil
	case "bi-weekly", "bi_weekly", "biweekly":
		return FrequencyBiWeekly, nil
	case "tri-weekly", "tri_weekly", "triweekly":
		return FrequencyTriWeekly, nil
	case "monthly":
		return FrequencyMonthly, nil
	}
	return "", fmt.Errorf("unknown frequency %q", s)
}

// UnmarshalText rejects unknown variants at decode time.
func (f *Frequency) UnmarshalText(b []byte) error {
	v, err := ParseFrequency(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// IsSubscription is true for every cadence except one-time.
func (f Frequency) IsSubscription() bool {
	return f != FrequencyOneTime
}

// LaundryLocation says where laundry loads are washed.
type LaundryLocation string

const (
	LaundryOnSite  LaundryLocation = "on_site"
	LaundryOffSite LaundryLocation = "off_site"
)

// ParseLaundryLocation maps a wire value to a LaundryLocation. Empty means on site.
func ParseLaundryLocation(s string) (LaundryLocation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "on_site", "on-site", "onsite":
		return LaundryOnSite, nil
	case "off_site", "off-site", "offsite":
		return LaundryOffSite, nil
	}
	return "", fmt.Errorf("unknown laundry location %q", s)
}

// UnmarshalText rejects unknown variants at decode time.
func (l *LaundryLocation) UnmarshalText(b []byte) error {
	v, err := ParseLaundryLocation(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// AddOns is the set of optional extras selected for a cleaning.
type AddOns struct {
	DeepCleaning    bool            `json:"deep_cleaning"`
	Laundry         bool            `json:"laundry"`
	LaundryLoads    int             `json:"laundry_loads"`
	LaundryLocation LaundryLocation `json:"laundry_location,omitempty"`
	InsideFridge    bool            `json:"inside_fridge"`
	InsideWindows   bool            `json:"inside_windows"`
	HotTubBasic     bool            `json:"hot_tub_basic"`
	HotTubFullClean bool            `json:"hot_tub_full_clean"`
	// HotTubFullCleanFrequency is recorded with the booking for scheduling
	// the drain; it never changes the price.
	HotTubFullCleanFrequency string `json:"hot_tub_full_clean_frequency,omitempty"`
	// HotTubFirstClean requests the one-time drain on the first cleaning.
	// Either it or HotTubFullClean adds the full-clean surcharge to the
	// first charge, once.
	HotTubFirstClean bool `json:"hot_tub_first_clean"`
}

// Input describes the property and service to quote.
type Input struct {
	Beds        int         `json:"beds"`
	Baths       int         `json:"baths"`
	HalfBaths   int         `json:"half_baths"`
	Sqft        int         `json:"sqft"`
	AddOns      AddOns      `json:"add_ons"`
	Frequency   Frequency   `json:"frequency"`
	ServiceType ServiceType `json:"service_type"`
}

// Breakdown holds the components of a per-cleaning price.
type Breakdown struct {
	BasePriceCents     int64 `json:"base_price_cents"`
	SqftSurchargeCents int64 `json:"sqft_surcharge_cents"`
	AddOnsCents        int64 `json:"add_ons_cents"`
	DiscountCents      int64 `json:"discount_cents"`
}

// Quote is the result of pricing an Input. When IsCustomQuote is set every
// amount is zero and the property needs manual pricing.
type Quote struct {
	PerCleaningCents int64     `json:"per_cleaning_cents"`
	IsCustomQuote    bool      `json:"is_custom_quote"`
	Breakdown        Breakdown `json:"breakdown"`
	DiscountPercent  int       `json:"discount_percent"`
	// FirstCleanSurchargeCents is charged once, on the first cleaning only,
	// and is never discounted.
	FirstCleanSurchargeCents int64 `json:"first_clean_surcharge_cents"`
}

// FirstChargeCents is the amount charged at checkout for the first cleaning.
func (q Quote) FirstChargeCents() int64 {
	return q.PerCleaningCents + q.FirstCleanSurchargeCents
}
