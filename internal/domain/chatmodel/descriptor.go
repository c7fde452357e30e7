package chatmodel

import "github.com/shopspring/decimal"

// SpeedTier orders models by the latency class they serve.
type SpeedTier string

const (
	SpeedTierFast     SpeedTier = "fast"
	SpeedTierBalanced SpeedTier = "balanced"
	SpeedTierPowerful SpeedTier = "powerful"
)

// Rank orders tiers: fast < balanced < powerful.
func (t SpeedTier) Rank() int {
	switch t {
	case SpeedTierFast:
		return 0
	case SpeedTierBalanced:
		return 1
	case SpeedTierPowerful:
		return 2
	default:
		return 1
	}
}

// PricingTier labels the provider set a model belongs to.
type PricingTier string

const (
	PricingTierStandard   PricingTier = "standard"
	PricingTierEnterprise PricingTier = "enterprise"
	PricingTierLocal      PricingTier = "local"
)

// ModelDescriptor is the static capability and cost description of one
// upstream model. Descriptors are immutable during a run; only the
// Available flag differs between catalog snapshots.
type ModelDescriptor struct {
	ProviderID      string          `json:"provider_id"`
	ModelID         string          `json:"model_id"`
	Capabilities    CapabilitySet   `json:"capabilities"`
	CostPer1KInput  decimal.Decimal `json:"cost_per_1k_input"`
	CostPer1KOutput decimal.Decimal `json:"cost_per_1k_output"`
	ContextWindow   int             `json:"context_window"`
	MaxOutputTokens int             `json:"max_output_tokens"`
	SpeedTier       SpeedTier       `json:"speed_tier"`
	PricingTier     PricingTier     `json:"pricing_tier"`
	Sentinel        bool            `json:"-"`
	Available       bool            `json:"available"`
}

// Key identifies the descriptor across the breaker and availability maps.
func (m ModelDescriptor) Key() string {
	return m.ProviderID + "/" + m.ModelID
}

// Cost is the input-token price per 1K tokens. The router's cost
// ceiling and sort keys compare this value.
func (m ModelDescriptor) Cost() decimal.Decimal {
	return m.CostPer1KInput
}
