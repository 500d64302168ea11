package pricing

// Engine prices cleanings against a grid. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine returns an engine for cfg. Callers should Validate file-loaded grids first.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the grid the engine prices against.
func (e *Engine) Config() Config {
	return e.cfg
}

// Calculate prices a single cleaning. It never fails: out-of-table sizes are
// extrapolated and sizes below one are treated as one. Properties at or above
// the custom-quote size short-circuit to a zero custom quote.
func (e *Engine) Calculate(in Input) Quote {
	if in.Sqft >= e.cfg.CustomQuoteSqft {
		return Quote{IsCustomQuote: true}
	}

	base := e.basePrice(in.Beds, in.Baths) * 100
	surcharge := e.sqftSurcharge(in.Sqft) * 100
	addOns := e.addOnsPrice(in.AddOns, in.ServiceType) * 100

	pct := e.cfg.Discounts.Percent(in.Frequency)
	subtotal := base + surcharge + addOns
	discount := percentOf(subtotal, pct)

	q := Quote{
		PerCleaningCents: subtotal - discount,
		Breakdown: Breakdown{
			BasePriceCents:     base,
			SqftSurchargeCents: surcharge,
			AddOnsCents:        addOns,
			DiscountCents:      discount,
		},
		DiscountPercent: pct,
	}
	// Charged once even when both flags are set.
	if in.AddOns.HotTubFullClean || in.AddOns.HotTubFirstClean {
		q.FirstCleanSurchargeCents = e.cfg.AddOns.HotTubFullClean * 100
	}
	return q
}

// CalculatePrice is Calculate with positional arguments.
func (e *Engine) CalculatePrice(beds, baths, sqft int, addOns AddOns, freq Frequency, st ServiceType) Quote {
	return e.Calculate(Input{
		Beds:        beds,
		Baths:       baths,
		Sqft:        sqft,
		AddOns:      addOns,
		Frequency:   freq,
		ServiceType: st,
	})
}

// basePrice looks up the table, extrapolating by bathroom inside a bedroom
// tier and by the full formula past the last tier.
func (e *Engine) basePrice(beds, baths int) int64 {
	if beds < 1 {
		beds = 1
	}
	if baths < 1 {
		baths = 1
	}

	if beds > len(e.cfg.BaseTable) {
		origin := e.cfg.BaseTable[0][0]
		return origin + int64(beds-1)*e.cfg.BedroomStep + int64(baths-1)*e.cfg.BathroomStep
	}

	row := e.cfg.BaseTable[beds-1]
	if baths > len(row) {
		return row[0] + int64(baths-1)*e.cfg.BathroomStep
	}
	return row[baths-1]
}

func (e *Engine) sqftSurcharge(sqft int) int64 {
	for _, b := range e.cfg.SqftBands {
		if sqft >= b.MinSqft && sqft < b.MaxSqft {
			return b.SurchargeDollars
		}
	}
	return 0
}

// addOnsPrice sums recurring add-ons. The hot tub full clean is a first-clean
// surcharge and is excluded here.
func (e *Engine) addOnsPrice(a AddOns, st ServiceType) int64 {
	p := e.cfg.AddOns
	var total int64

	if st.chargesResidentialExtras() {
		if a.DeepCleaning {
			total += p.DeepCleaning
		}
		if a.InsideFridge {
			total += p.InsideFridge
		}
		if a.InsideWindows {
			total += p.InsideWindows
		}
	}

	if a.Laundry {
		if a.LaundryLoads > 0 {
			total += int64(a.LaundryLoads) * p.LaundryPerLoad
		}
		if a.LaundryLocation == LaundryOffSite {
			total += p.LaundryOffSite
		}
	}

	if a.HotTubBasic {
		total += p.HotTubBasic
	}
	return total
}

// percentOf rounds half up.
func percentOf(cents int64, pct int) int64 {
	if cents <= 0 || pct <= 0 {
		return 0
	}
	return (cents*int64(pct) + 50) / 100
}
