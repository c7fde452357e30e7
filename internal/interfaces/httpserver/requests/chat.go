// Package requests holds the inbound DTOs with their binding rules.
package requests

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/campersurfer/Autopicker/internal/domain/chat"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("chatrole", validChatRole)
	}
}

// validChatRole accepts the three chat roles, case-insensitively; the
// domain layer lowercases during normalization.
func validChatRole(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "system", "user", "assistant",
		"System", "User", "Assistant":
		return true
	default:
		return false
	}
}

// ChatMessage is one inbound chat turn.
type ChatMessage struct {
	Role    string `json:"role" binding:"required,chatrole"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the OpenAI-compatible completion payload,
// extended with file_ids for attachment weaving and capabilities for
// routing hints.
type ChatCompletionRequest struct {
	Model        string        `json:"model"`
	Messages     []ChatMessage `json:"messages" binding:"required,min=1,dive"`
	FileIDs      []string      `json:"file_ids"`
	Stream       bool          `json:"stream"`
	MaxTokens    int           `json:"max_tokens" binding:"omitempty,gte=0"`
	Temperature  float32       `json:"temperature" binding:"omitempty,gte=0,lte=2"`
	TopP         float32       `json:"top_p" binding:"omitempty,gte=0,lte=1"`
	Capabilities []string      `json:"capabilities"`
}

// ToDomain converts the DTO into the orchestrator's request type.
func (r *ChatCompletionRequest) ToDomain() *chat.Request {
	messages := make([]chat.Message, len(r.Messages))
	for i, m := range r.Messages {
		messages[i] = chat.Message{Role: m.Role, Content: m.Content}
	}
	return &chat.Request{
		Model:        r.Model,
		Messages:     messages,
		FileIDs:      r.FileIDs,
		Stream:       r.Stream,
		MaxTokens:    r.MaxTokens,
		Temperature:  r.Temperature,
		TopP:         r.TopP,
		Capabilities: r.Capabilities,
	}
}
