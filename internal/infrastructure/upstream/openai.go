package upstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// sseDataPrefix frames SSE payload lines on the OpenAI dialect.
var sseDataPrefix = []byte("data:")

// sseDone is the OpenAI terminal sentinel payload.
const sseDone = "[DONE]"

// OpenAIAdapter speaks the OpenAI chat-completions dialect. OpenRouter
// and custom OpenAI-compatible providers reuse it with different
// headers.
type OpenAIAdapter struct {
	name    string
	apiKey  string
	headers map[string]string
}

func NewOpenAIAdapter(apiKey string) *OpenAIAdapter {
	return &OpenAIAdapter{name: "openai", apiKey: apiKey}
}

// NewOpenRouterAdapter adds the attribution headers OpenRouter expects.
func NewOpenRouterAdapter(apiKey, referer, title string) *OpenAIAdapter {
	headers := map[string]string{}
	if referer != "" {
		headers["HTTP-Referer"] = referer
	}
	if title != "" {
		headers["X-Title"] = title
	}
	return &OpenAIAdapter{name: "openrouter", apiKey: apiKey, headers: headers}
}

// NewCustomAdapter serves any OpenAI-compatible endpoint.
func NewCustomAdapter(apiKey string) *OpenAIAdapter {
	return &OpenAIAdapter{name: "custom", apiKey: apiKey}
}

func (a *OpenAIAdapter) Name() string         { return a.name }
func (a *OpenAIAdapter) SupportsVision() bool { return true }
func (a *OpenAIAdapter) ProbePath() string    { return "/models" }

func (a *OpenAIAdapter) Serialize(req *Request) ([]byte, map[string]string, string, error) {
	out := openai.ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
	}

	if req.System != "" {
		out.Messages = append(out.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, toOpenAIMessage(m))
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, nil, "", fmt.Errorf("marshal openai request: %w", err)
	}

	headers := map[string]string{
		"Authorization": "Bearer " + a.apiKey,
		"Content-Type":  "application/json",
	}
	for k, v := range a.headers {
		headers[k] = v
	}
	return body, headers, "/chat/completions", nil
}

func toOpenAIMessage(m Message) openai.ChatCompletionMessage {
	if len(m.Images) == 0 {
		return openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	parts := make([]openai.ChatMessagePart, 0, len(m.Images)+1)
	if m.Content != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: m.Content,
		})
	}
	for _, img := range m.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: img.DataURL()},
		})
	}
	return openai.ChatCompletionMessage{Role: m.Role, MultiContent: parts}
}

func (a *OpenAIAdapter) ParseChunk(line []byte) ([]Chunk, error) {
	payload, ok := ssePayload(line)
	if !ok {
		return nil, nil
	}
	if payload == sseDone {
		return []Chunk{{Kind: ChunkFinish, Terminal: true}}, nil
	}

	var event openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("parse openai chunk: %w", err)
	}

	var chunks []Chunk
	for _, choice := range event.Choices {
		if choice.Delta.Content != "" {
			chunks = append(chunks, Chunk{Kind: ChunkDeltaContent, Content: choice.Delta.Content})
		}
		if len(choice.Delta.ToolCalls) > 0 {
			raw, err := json.Marshal(choice.Delta.ToolCalls)
			if err == nil {
				chunks = append(chunks, Chunk{Kind: ChunkDeltaToolCall, ToolCallJSON: string(raw)})
			}
		}
		if choice.FinishReason != "" {
			chunks = append(chunks, Chunk{Kind: ChunkFinish, FinishReason: string(choice.FinishReason)})
		}
	}
	return chunks, nil
}

func (a *OpenAIAdapter) ParseResponse(body []byte) (*Completion, error) {
	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse openai response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai response has no choices")
	}

	choice := resp.Choices[0]
	return &Completion{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// ssePayload strips the SSE data prefix. Blank lines and comment lines
// carry no payload.
func ssePayload(line []byte) (string, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] == ':' {
		return "", false
	}
	if !bytes.HasPrefix(line, sseDataPrefix) {
		return "", false
	}
	return string(bytes.TrimSpace(line[len(sseDataPrefix):])), true
}
