// Package routing selects the upstream model for a scored request. The
// router is pure: availability arrives inside the catalog snapshot and
// the same inputs always produce the same Route.
package routing

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/campersurfer/Autopicker/internal/domain/chatmodel"
	"github.com/campersurfer/Autopicker/internal/domain/complexity"
)

// ErrNoModelAvailable reports an empty candidate set with no sentinel.
var ErrNoModelAvailable = errors.New("no model available for request")

// PricingTierAuto disables the provider-set filter.
const PricingTierAuto = "auto"

// maxFallbacks bounds the ordered fallback list.
const maxFallbacks = 3

// Preferences are the recognized routing options. Zero values mean no
// constraint.
type Preferences struct {
	PreferFast      bool            `json:"prefer_fast"`
	PreferCheap     bool            `json:"prefer_cheap"`
	MaxCostPer1K    decimal.Decimal `json:"max_cost_per_1k_tokens"`
	PricingTier     string          `json:"pricing_tier"`
	ExplicitModelID string          `json:"explicit_model_id"`
}

// Hash produces the stable preferences component of the route cache key.
func (p Preferences) Hash() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%t|%t|%s|%s|%s",
		p.PreferFast, p.PreferCheap, p.MaxCostPer1K.String(), p.PricingTier, p.ExplicitModelID)
	return fmt.Sprintf("%016x", h.Sum64())
}

func (p Preferences) explicitModel() string {
	if strings.EqualFold(p.ExplicitModelID, "auto") {
		return ""
	}
	return p.ExplicitModelID
}

// Route is the selection result: one model plus the ordered fallbacks
// that share its required-capability set.
type Route struct {
	Selected  chatmodel.ModelDescriptor   `json:"selected"`
	Fallbacks []chatmodel.ModelDescriptor `json:"fallbacks,omitempty"`
	Tags      []string                    `json:"tags,omitempty"`
}

// cheapBias discounts cost when prefer-cheap is set.
var cheapBias = decimal.NewFromFloat(0.5)

// RouteRequest applies the deterministic selection procedure: explicit
// model, capability+cost+availability filter, stable sort, complexity
// tier floor with one-step relaxation, then selected plus fallbacks.
func RouteRequest(score complexity.Score, prefs Preferences, snapshot chatmodel.Snapshot) (*Route, error) {
	var tags []string

	if explicit := prefs.explicitModel(); explicit != "" {
		if m, ok := findModel(snapshot.Models, explicit); ok && m.Available && m.Capabilities.Superset(score.Required) {
			route := &Route{
				Selected: m,
				Tags:     append(tags, "explicit-model"),
			}
			for _, fb := range candidates(score, prefs, snapshot) {
				if fb.Key() == m.Key() {
					continue
				}
				route.Fallbacks = append(route.Fallbacks, fb)
				if len(route.Fallbacks) == maxFallbacks {
					break
				}
			}
			return route, nil
		}
		tags = append(tags, "explicit-model-unusable")
	}

	pool := candidates(score, prefs, snapshot)

	minRank := tierFloor(score.Value)
	filtered := atOrAbove(pool, minRank)
	if len(filtered) == 0 && minRank > 0 {
		filtered = atOrAbove(pool, minRank-1)
		if len(filtered) > 0 {
			tags = append(tags, "tier-relaxed")
		}
	}

	if len(filtered) == 0 {
		if snapshot.Sentinel != nil {
			tags = append(tags, "sentinel-fallback")
			if !snapshot.Sentinel.Capabilities.Superset(score.Required) {
				tags = append(tags, "capability-relaxed")
			}
			return &Route{
				Selected: *snapshot.Sentinel,
				Tags:     tags,
			}, nil
		}
		return nil, ErrNoModelAvailable
	}

	route := &Route{Selected: filtered[0], Tags: tags}
	for _, fb := range filtered[1:] {
		route.Fallbacks = append(route.Fallbacks, fb)
		if len(route.Fallbacks) == maxFallbacks {
			break
		}
	}
	return route, nil
}

// candidates filters the snapshot and orders it by the sort key:
// fewest excess capabilities first (specialist over generalist), then
// bias-adjusted cost, then speed-preference match, then model ID.
func candidates(score complexity.Score, prefs Preferences, snapshot chatmodel.Snapshot) []chatmodel.ModelDescriptor {
	var pool []chatmodel.ModelDescriptor
	for _, m := range snapshot.Models {
		if !m.Available {
			continue
		}
		if !m.Capabilities.Superset(score.Required) {
			continue
		}
		if prefs.MaxCostPer1K.IsPositive() && m.Cost().GreaterThan(prefs.MaxCostPer1K) {
			continue
		}
		if tier := prefs.PricingTier; tier != "" && tier != PricingTierAuto && string(m.PricingTier) != tier {
			continue
		}
		pool = append(pool, m)
	}

	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]

		excessA := a.Capabilities.Excess(score.Required)
		excessB := b.Capabilities.Excess(score.Required)
		if excessA != excessB {
			return excessA < excessB
		}

		costA := biasedCost(a, prefs)
		costB := biasedCost(b, prefs)
		if cmp := costA.Cmp(costB); cmp != 0 {
			return cmp < 0
		}

		matchA := speedMatch(a, prefs)
		matchB := speedMatch(b, prefs)
		if matchA != matchB {
			return matchA > matchB
		}

		return a.ModelID < b.ModelID
	})
	return pool
}

func biasedCost(m chatmodel.ModelDescriptor, prefs Preferences) decimal.Decimal {
	if prefs.PreferCheap {
		return m.Cost().Mul(cheapBias)
	}
	return m.Cost()
}

func speedMatch(m chatmodel.ModelDescriptor, prefs Preferences) int {
	if prefs.PreferFast && m.SpeedTier == chatmodel.SpeedTierFast {
		return 1
	}
	return 0
}

// tierFloor maps the complexity score to the minimum speed-tier rank.
func tierFloor(score int) int {
	switch {
	case score <= 30:
		return chatmodel.SpeedTierFast.Rank()
	case score <= 70:
		return chatmodel.SpeedTierBalanced.Rank()
	default:
		return chatmodel.SpeedTierPowerful.Rank()
	}
}

func atOrAbove(pool []chatmodel.ModelDescriptor, minRank int) []chatmodel.ModelDescriptor {
	var out []chatmodel.ModelDescriptor
	for _, m := range pool {
		if m.SpeedTier.Rank() >= minRank {
			out = append(out, m)
		}
	}
	return out
}

func findModel(models []chatmodel.ModelDescriptor, modelID string) (chatmodel.ModelDescriptor, bool) {
	for _, m := range models {
		if m.ModelID == modelID {
			return m, true
		}
	}
	return chatmodel.ModelDescriptor{}, false
}

// CacheKey is the memoization key for route decisions.
func CacheKey(score complexity.Score, prefs Preferences) string {
	required := strings.Join(score.Required.Strings(), ",")
	return fmt.Sprintf("route:%d:%s:%s", score.Value, required, prefs.Hash())
}
