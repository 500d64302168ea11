package pricing

const (
	// ContractorSharePercent is the contractor's cut of a job's price.
	ContractorSharePercent = 70

	// MinimumPayoutCents is the floor applied by ContractorPayout.
	MinimumPayoutCents = 6000
)

// PayoutShare is the flat contractor share of a price, rounded to the cent.
// Jobs materialized from calendar feeds use this without a floor.
func PayoutShare(priceCents int64) int64 {
	return percentOf(priceCents, ContractorSharePercent)
}

// ContractorPayout is PayoutShare floored at MinimumPayoutCents.
func ContractorPayout(priceCents int64) int64 {
	p := PayoutShare(priceCents)
	if p < MinimumPayoutCents {
		return MinimumPayoutCents
	}
	return p
}
