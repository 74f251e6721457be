package attribution

import (
	"fmt"
	"time"

	"github.com/angelmondragon/quizlink-backend/pkg/config"
	"github.com/angelmondragon/quizlink-backend/pkg/enums"
)

const (
	defaultMaxAttributionDelay = 24 * time.Hour
	defaultMaxWindow           = 7 * 24 * time.Hour
)

// Policy holds the tunable parts of the matching rules.
type Policy struct {
	MaxAttributionDelay time.Duration
	MaxWindow           time.Duration
	CustomerTieBreak    enums.CustomerTieBreak
	Proximity           enums.ProximityPolicy
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttributionDelay: defaultMaxAttributionDelay,
		MaxWindow:           defaultMaxWindow,
		CustomerTieBreak:    enums.CustomerTieBreakLatestStart,
		Proximity:           enums.ProximityPolicyClosestStart,
	}
}

// PolicyFromConfig builds a Policy from the sync configuration.
func PolicyFromConfig(cfg config.SyncConfig) (Policy, error) {
	policy := DefaultPolicy()
	if cfg.MaxAttributionDelay > 0 {
		policy.MaxAttributionDelay = cfg.MaxAttributionDelay
	}
	if cfg.MaxWindow > 0 {
		policy.MaxWindow = cfg.MaxWindow
	}
	if cfg.CustomerTieBreak != "" {
		tieBreak, err := enums.ParseCustomerTieBreak(cfg.CustomerTieBreak)
		if err != nil {
			return Policy{}, err
		}
		policy.CustomerTieBreak = tieBreak
	}
	if cfg.ProximityPolicy != "" {
		proximity, err := enums.ParseProximityPolicy(cfg.ProximityPolicy)
		if err != nil {
			return Policy{}, err
		}
		policy.Proximity = proximity
	}
	return policy, nil
}

func (p Policy) normalized() Policy {
	if p.MaxAttributionDelay <= 0 {
		p.MaxAttributionDelay = defaultMaxAttributionDelay
	}
	if p.MaxWindow <= 0 {
		p.MaxWindow = defaultMaxWindow
	}
	if !p.CustomerTieBreak.IsValid() {
		p.CustomerTieBreak = enums.CustomerTieBreakLatestStart
	}
	if !p.Proximity.IsValid() {
		p.Proximity = enums.ProximityPolicyClosestStart
	}
	return p
}

func (p Policy) String() string {
	return fmt.Sprintf("delay=%s window=%s customer=%s proximity=%s",
		p.MaxAttributionDelay, p.MaxWindow, p.CustomerTieBreak, p.Proximity)
}
