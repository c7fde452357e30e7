package chatmodel

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campersurfer/Autopicker/internal/config"
)

// Catalog holds the full set of configured model descriptors. It is
// built once at startup and replaced wholesale on configuration reload.
type Catalog struct {
	models     []ModelDescriptor
	sentinel   *ModelDescriptor
	reloadedAt time.Time
}

// NewCatalog builds a catalog, ordering models by key for deterministic
// iteration.
func NewCatalog(models []ModelDescriptor) *Catalog {
	sorted := make([]ModelDescriptor, len(models))
	copy(sorted, models)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key() < sorted[j].Key() })

	c := &Catalog{models: sorted, reloadedAt: time.Now()}
	for i := range c.models {
		if c.models[i].Sentinel {
			sentinel := c.models[i]
			c.sentinel = &sentinel
			break
		}
	}
	return c
}

// FromBootstrap converts the parsed catalog file into descriptors.
func FromBootstrap(bootstrap *config.BootstrapConfig) *Catalog {
	if bootstrap == nil {
		return NewCatalog(nil)
	}

	var models []ModelDescriptor
	for _, p := range bootstrap.Providers {
		for _, m := range p.Models {
			models = append(models, ModelDescriptor{
				ProviderID:      p.ID,
				ModelID:         m.ID,
				Capabilities:    ParseCapabilities(m.Capabilities),
				CostPer1KInput:  decimal.NewFromFloat(m.CostPer1KInput),
				CostPer1KOutput: decimal.NewFromFloat(m.CostPer1KOutput),
				ContextWindow:   m.ContextWindow,
				MaxOutputTokens: m.MaxOutputTokens,
				SpeedTier:       SpeedTier(m.SpeedTier),
				PricingTier:     PricingTier(m.PricingTier),
				Sentinel:        m.Sentinel,
			})
		}
	}
	return NewCatalog(models)
}

// Models returns a copy of every descriptor.
func (c *Catalog) Models() []ModelDescriptor {
	out := make([]ModelDescriptor, len(c.models))
	copy(out, c.models)
	return out
}

// Len returns the number of configured models.
func (c *Catalog) Len() int {
	return len(c.models)
}

// ByID finds a model by its model ID. When several providers serve the
// same model ID, the lowest provider key wins.
func (c *Catalog) ByID(modelID string) (ModelDescriptor, bool) {
	for _, m := range c.models {
		if m.ModelID == modelID {
			return m, true
		}
	}
	return ModelDescriptor{}, false
}

// Sentinel returns the local fallback model, if one is configured.
func (c *Catalog) Sentinel() *ModelDescriptor {
	if c.sentinel == nil {
		return nil
	}
	sentinel := *c.sentinel
	return &sentinel
}

// FastWindows returns the context windows of every fast-tier model.
// The scorer uses them to decide when long-context is required.
func (c *Catalog) FastWindows() []int {
	var windows []int
	for _, m := range c.models {
		if m.SpeedTier == SpeedTierFast {
			windows = append(windows, m.ContextWindow)
		}
	}
	return windows
}

// ReloadedAt reports when this catalog was built.
func (c *Catalog) ReloadedAt() time.Time {
	return c.reloadedAt
}

// Snapshot is the router's view of the catalog at one instant: the
// descriptors with availability resolved. Building a snapshot keeps
// route() pure while the breaker and prober mutate availability
// elsewhere.
type Snapshot struct {
	Models   []ModelDescriptor
	Sentinel *ModelDescriptor
	TakenAt  time.Time
}

// SnapshotAll marks every model available. Used at startup before any
// probe has run, and in tests.
func (c *Catalog) SnapshotAll() Snapshot {
	return c.SnapshotWith(nil)
}

// SnapshotWith resolves availability through the supplied predicate;
// a nil predicate means everything is available.
func (c *Catalog) SnapshotWith(unavailable func(m ModelDescriptor) bool) Snapshot {
	models := make([]ModelDescriptor, len(c.models))
	copy(models, c.models)
	for i := range models {
		models[i].Available = unavailable == nil || !unavailable(models[i])
	}
	return Snapshot{
		Models:   models,
		Sentinel: c.Sentinel(),
		TakenAt:  time.Now(),
	}
}
