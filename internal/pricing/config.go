package pricing

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
)

// SqftBand is a half-open [MinSqft, MaxSqft) range with a flat surcharge.
type SqftBand struct {
	MinSqft          int   `toml:"min_sqft" json:"min_sqft"`
	MaxSqft          int   `toml:"max_sqft" json:"max_sqft"`
	SurchargeDollars int64 `toml:"surcharge" json:"surcharge"`
}

// AddOnPrices are flat add-on prices in whole dollars.
type AddOnPrices struct {
	DeepCleaning    int64 `toml:"deep_cleaning" json:"deep_cleaning"`
	LaundryPerLoad  int64 `toml:"laundry_per_load" json:"laundry_per_load"`
	LaundryOffSite  int64 `toml:"laundry_off_site" json:"laundry_off_site"`
	InsideFridge    int64 `toml:"inside_fridge" json:"inside_fridge"`
	InsideWindows   int64 `toml:"inside_windows" json:"inside_windows"`
	HotTubBasic     int64 `toml:"hot_tub_basic" json:"hot_tub_basic"`
	HotTubFullClean int64 `toml:"hot_tub_full_clean" json:"hot_tub_full_clean"`
}

// Discounts are subscription discounts in whole percent.
type Discounts struct {
	Weekly    int `toml:"weekly" json:"weekly"`
	BiWeekly  int `toml:"bi_weekly" json:"bi_weekly"`
	TriWeekly int `toml:"tri_weekly" json:"tri_weekly"`
	Monthly   int `toml:"monthly" json:"monthly"`
}

// Percent returns the discount for a frequency. One-time cleanings are never discounted.
func (d Discounts) Percent(f Frequency) int {
	switch f {
	case FrequencyOneTime:
		return 0
	case FrequencyWeekly:
		return d.Weekly
	case FrequencyBiWeekly:
		return d.BiWeekly
	case FrequencyTriWeekly:
		return d.TriWeekly
	case FrequencyMonthly:
		return d.Monthly
	}
	return 0
}

// Config is the pricing grid. Dollar amounts are whole dollars.
type Config struct {
	// CustomQuoteSqft is the size at and above which no automatic price is given.
	CustomQuoteSqft int `toml:"custom_quote_sqft" json:"custom_quote_sqft"`

	// BaseTable[beds-1][baths-1] is the base price in dollars.
	BaseTable [][]int64 `toml:"base_table" json:"base_table"`

	// Steps used to extrapolate beyond the table.
	BedroomStep  int64 `toml:"bedroom_step" json:"bedroom_step"`
	BathroomStep int64 `toml:"bathroom_step" json:"bathroom_step"`

	SqftBands []SqftBand  `toml:"sqft_bands" json:"sqft_bands"`
	AddOns    AddOnPrices `toml:"add_ons" json:"add_ons"`
	Discounts Discounts   `toml:"discounts" json:"discounts"`
}

// DefaultConfig returns the standard pricing grid.
func DefaultConfig() Config {
	return Config{
		CustomQuoteSqft: 3000,
		BaseTable: [][]int64{
			{100, 120, 140, 160, 180},
			{130, 150, 170, 190, 210},
			{160, 180, 200, 220, 240},
			{190, 210, 230, 250, 270},
			{220, 240, 260, 280, 300},
		},
		BedroomStep:  30,
		BathroomStep: 20,
		SqftBands: []SqftBand{
			{MinSqft: 1000, MaxSqft: 1500, SurchargeDollars: 25},
			{MinSqft: 1500, MaxSqft: 2000, SurchargeDollars: 50},
			{MinSqft: 2000, MaxSqft: 2500, SurchargeDollars: 75},
			{MinSqft: 2500, MaxSqft: 3000, SurchargeDollars: 100},
		},
		AddOns: AddOnPrices{
			DeepCleaning:    30,
			LaundryPerLoad:  9,
			LaundryOffSite:  20,
			InsideFridge:    15,
			InsideWindows:   10,
			HotTubBasic:     20,
			HotTubFullClean: 50,
		},
		Discounts: Discounts{
			Weekly:    15,
			BiWeekly:  10,
			TriWeekly: 5,
			Monthly:   5,
		},
	}
}

// LoadConfig reads a pricing grid from a TOML file. Keys missing from the
// file keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decoding pricing file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid pricing file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the grid is usable by the engine.
func (c Config) Validate() error {
	if c.CustomQuoteSqft <= 0 {
		return errors.New("custom_quote_sqft must be positive")
	}
	if len(c.BaseTable) == 0 {
		return errors.New("base_table must have at least one row")
	}
	for i, row := range c.BaseTable {
		if len(row) == 0 {
			return fmt.Errorf("base_table row %d is empty", i+1)
		}
	}
	if c.BedroomStep < 0 || c.BathroomStep < 0 {
		return errors.New("bedroom_step and bathroom_step must not be negative")
	}
	prevMax := 0
	for i, b := range c.SqftBands {
		if b.MinSqft >= b.MaxSqft {
			return fmt.Errorf("sqft band %d: min_sqft must be below max_sqft", i+1)
		}
		if b.MinSqft < prevMax {
			return fmt.Errorf("sqft band %d overlaps the previous band", i+1)
		}
		prevMax = b.MaxSqft
	}
	for _, p := range []int{c.Discounts.Weekly, c.Discounts.BiWeekly, c.Discounts.TriWeekly, c.Discounts.Monthly} {
		if p < 0 || p > 100 {
			return fmt.Errorf("discount %d%% out of range", p)
		}
	}
	return nil
}
