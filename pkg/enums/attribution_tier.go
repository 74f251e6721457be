package enums

import "slices"

// AttributionTier classifies how confidently an order was tied to a quiz session.
type AttributionTier string

const (
	AttributionTierExactCustomer AttributionTier = "exact_customer"
	AttributionTierTimeProximity AttributionTier = "time_proximity"
	AttributionTierNone          AttributionTier = "none"
)

var validAttributionTiers = []AttributionTier{
	AttributionTierExactCustomer,
	AttributionTierTimeProximity,
	AttributionTierNone,
}

// String implements fmt.Stringer.
func (a AttributionTier) String() string {
	return string(a)
}

// IsValid reports whether the value is known.
func (a AttributionTier) IsValid() bool {
	return slices.Contains(validAttributionTiers, a)
}

// Matched reports whether the tier carries a session.
func (a AttributionTier) Matched() bool {
	return a == AttributionTierExactCustomer || a == AttributionTierTimeProximity
}

// ParseAttributionTier converts raw input into an AttributionTier.
func ParseAttributionTier(value string) (AttributionTier, error) {
	return parse("attribution tier", value, validAttributionTiers)
}
