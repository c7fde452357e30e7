// Package chat orchestrates a completion request end to end: resolve
// attached files, score complexity, route to a model, weave the file
// context into the prompt, and dispatch upstream.
package chat

import (
	"context"
	"strings"

	"github.com/campersurfer/Autopicker/internal/domain/chatmodel"
	"github.com/campersurfer/Autopicker/internal/utils/platformerrors"
	"github.com/campersurfer/Autopicker/internal/utils/sanitize"
)

// Roles accepted on incoming messages.
var validRoles = map[string]bool{
	"system":    true,
	"user":      true,
	"assistant": true,
}

// Message is one incoming chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the normalized incoming completion request.
type Request struct {
	Model        string    `json:"model"`
	Messages     []Message `json:"messages"`
	FileIDs      []string  `json:"file_ids,omitempty"`
	Stream       bool      `json:"stream,omitempty"`
	MaxTokens    int       `json:"max_tokens,omitempty"`
	Temperature  float32   `json:"temperature,omitempty"`
	TopP         float32   `json:"top_p,omitempty"`
	Capabilities []string  `json:"capabilities,omitempty"`
}

// Normalize sanitizes message content in place and validates the
// request shape against the configured message size limit.
func (r *Request) Normalize(ctx context.Context, maxMessageBytes int64) error {
	if len(r.Messages) == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"messages must not be empty", nil, "9d37c1e5-0b62-4f48-a8d3-51c7e906f2ab")
	}

	var total int64
	for i := range r.Messages {
		role := strings.ToLower(strings.TrimSpace(r.Messages[i].Role))
		if !validRoles[role] {
			return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
				"unknown message role", nil, "4f82a6d0-7c15-49eb-b3a9-d60e218c57f4",
				map[string]any{"role": r.Messages[i].Role})
		}
		r.Messages[i].Role = role

		if sanitize.HasNUL(r.Messages[i].Content) {
			return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
				"message content contains NUL bytes", nil, "b0c94e72-51d8-4a36-8fe0-273a19d5c681")
		}
		r.Messages[i].Content = sanitize.Text(r.Messages[i].Content)
		total += int64(len(r.Messages[i].Content))
	}

	if maxMessageBytes > 0 && total > maxMessageBytes {
		return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypePayloadTooLarge,
			"message payload exceeds the configured limit", nil, "6e18f3a9-c254-470b-9d67-08b5e4a2c1f3",
			map[string]any{"max_bytes": maxMessageBytes})
	}

	r.Model = strings.TrimSpace(r.Model)
	for i := range r.FileIDs {
		r.FileIDs[i] = strings.TrimSpace(r.FileIDs[i])
	}
	return nil
}

// CapabilityHints converts the request's capability strings into a set,
// dropping unknown names.
func (r *Request) CapabilityHints() chatmodel.CapabilitySet {
	known := make(map[chatmodel.Capability]bool, len(chatmodel.AllCapabilities))
	for _, c := range chatmodel.AllCapabilities {
		known[c] = true
	}

	hints := make(chatmodel.CapabilitySet)
	for _, name := range r.Capabilities {
		c := chatmodel.Capability(strings.ToLower(strings.TrimSpace(name)))
		if known[c] {
			hints[c] = true
		}
	}
	return hints
}
