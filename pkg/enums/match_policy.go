package enums

import "slices"

// CustomerTieBreak picks between several same-customer sessions covering an order.
type CustomerTieBreak string

const (
	CustomerTieBreakLatestStart   CustomerTieBreak = "latest_start"
	CustomerTieBreakEarliestStart CustomerTieBreak = "earliest_start"
)

var validCustomerTieBreaks = []CustomerTieBreak{
	CustomerTieBreakLatestStart,
	CustomerTieBreakEarliestStart,
}

func (c CustomerTieBreak) String() string {
	return string(c)
}

func (c CustomerTieBreak) IsValid() bool {
	return slices.Contains(validCustomerTieBreaks, c)
}

func ParseCustomerTieBreak(value string) (CustomerTieBreak, error) {
	return parse("customer tie break", value, validCustomerTieBreaks)
}

// ProximityPolicy picks the anonymous session credited with an order.
type ProximityPolicy string

const (
	ProximityPolicyClosestStart  ProximityPolicy = "closest_start"
	ProximityPolicyEarliestStart ProximityPolicy = "earliest_start"
)

var validProximityPolicies = []ProximityPolicy{
	ProximityPolicyClosestStart,
	ProximityPolicyEarliestStart,
}

func (p ProximityPolicy) String() string {
	return string(p)
}

func (p ProximityPolicy) IsValid() bool {
	return slices.Contains(validProximityPolicies, p)
}

func ParseProximityPolicy(value string) (ProximityPolicy, error) {
	return parse("proximity policy", value, validProximityPolicies)
}
