package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campersurfer/Autopicker/internal/config"
	"github.com/campersurfer/Autopicker/internal/domain/chat"
	"github.com/campersurfer/Autopicker/internal/domain/chatmodel"
	"github.com/campersurfer/Autopicker/internal/domain/routing"
	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver/middlewares"
)

// ModelView is one catalog entry on the wire.
type ModelView struct {
	ID              string   `json:"id"`
	Object          string   `json:"object"`
	OwnedBy         string   `json:"owned_by"`
	Capabilities    []string `json:"capabilities"`
	ContextWindow   int      `json:"context_window"`
	MaxOutputTokens int      `json:"max_output_tokens"`
	CostPer1KInput  string   `json:"cost_per_1k_input"`
	CostPer1KOutput string   `json:"cost_per_1k_output"`
	SpeedTier       string   `json:"speed_tier"`
	PricingTier     string   `json:"pricing_tier"`
	Available       bool     `json:"available"`
}

// ModelListResponse is the OpenAI-style list envelope.
type ModelListResponse struct {
	Object string      `json:"object"`
	Data   []ModelView `json:"data"`
}

// ModelsHandler serves the availability-resolved catalog, cached for
// the configured TTL so probes and breakers are not consulted per call.
type ModelsHandler struct {
	cfg *config.Config
	svc *chat.Service

	mu        sync.Mutex
	cached    *ModelListResponse
	fetchedAt time.Time
}

func NewModelsHandler(cfg *config.Config, svc *chat.Service) *ModelsHandler {
	return &ModelsHandler{cfg: cfg, svc: svc}
}

// List godoc
// @Summary List models visible under the configured pricing tier
// @Tags models
// @Produce json
// @Success 200 {object} ModelListResponse
// @Router /api/v1/models [get]
func (h *ModelsHandler) List(c *gin.Context) {
	response, hit := h.snapshot()
	c.Set(middlewares.CtxCacheHit, hit)
	c.JSON(http.StatusOK, response)
}

func (h *ModelsHandler) snapshot() (*ModelListResponse, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ttl := h.cfg.ModelsCacheTTL
	if h.cached != nil && time.Since(h.fetchedAt) < ttl {
		return h.cached, true
	}

	snap := h.svc.Snapshot()
	data := make([]ModelView, 0, len(snap.Models))
	for _, m := range snap.Models {
		if !h.visible(m) {
			continue
		}
		data = append(data, ModelView{
			ID:              m.ModelID,
			Object:          "model",
			OwnedBy:         m.ProviderID,
			Capabilities:    m.Capabilities.Strings(),
			ContextWindow:   m.ContextWindow,
			MaxOutputTokens: m.MaxOutputTokens,
			CostPer1KInput:  m.CostPer1KInput.String(),
			CostPer1KOutput: m.CostPer1KOutput.String(),
			SpeedTier:       string(m.SpeedTier),
			PricingTier:     string(m.PricingTier),
			Available:       m.Available,
		})
	}

	h.cached = &ModelListResponse{Object: "list", Data: data}
	h.fetchedAt = time.Now()
	return h.cached, false
}

// visible applies the same provider-set filter the router uses.
func (h *ModelsHandler) visible(m chatmodel.ModelDescriptor) bool {
	tier := h.cfg.RouterPricingTier
	if tier == "" || tier == routing.PricingTierAuto {
		return true
	}
	return string(m.PricingTier) == tier
}
