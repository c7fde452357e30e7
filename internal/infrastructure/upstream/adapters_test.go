package upstream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIAdapterSerialize(t *testing.T) {
	adapter := NewOpenAIAdapter("sk-test")
	body, headers, path, err := adapter.Serialize(&Request{
		Model:     "gpt-4o-mini",
		System:    "You are helpful.",
		Messages:  []Message{{Role: "user", Content: "hi"}},
		MaxTokens: 256,
		Stream:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "/chat/completions", path)
	assert.Equal(t, "Bearer sk-test", headers["Authorization"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "gpt-4o-mini", decoded["model"])
	assert.Equal(t, true, decoded["stream"])
	messages := decoded["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
}

func TestOpenAIAdapterVisionParts(t *testing.T) {
	adapter := NewOpenAIAdapter("sk-test")
	body, _, _, err := adapter.Serialize(&Request{
		Model: "gpt-4o",
		Messages: []Message{{
			Role:    "user",
			Content: "describe this",
			Images:  []Image{{MIME: "image/png", Data: "aGVsbG8="}},
		}},
	})
	require.NoError(t, err)
	assert.Contains(t, string(body), "data:image/png;base64,aGVsbG8=")
	assert.Contains(t, string(body), `"image_url"`)
}

func TestOpenAIAdapterParseChunk(t *testing.T) {
	adapter := NewOpenAIAdapter("sk-test")

	chunks, err := adapter.ParseChunk([]byte(`data: {"choices":[{"delta":{"content":"Hel"}}]}`))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, ChunkDeltaContent, chunks[0].Kind)
	assert.Equal(t, "Hel", chunks[0].Content)

	chunks, err = adapter.ParseChunk([]byte(`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, ChunkFinish, chunks[0].Kind)
	assert.Equal(t, "stop", chunks[0].FinishReason)

	chunks, err = adapter.ParseChunk([]byte("data: [DONE]"))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Terminal)

	// Blank lines and comments carry nothing.
	chunks, err = adapter.ParseChunk([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, chunks)
	chunks, err = adapter.ParseChunk([]byte(": keepalive"))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestOpenRouterAdapterHeaders(t *testing.T) {
	adapter := NewOpenRouterAdapter("sk-or", "https://example.com", "Example")
	_, headers, _, err := adapter.Serialize(&Request{
		Model:    "meta-llama/llama-3.1-8b-instruct",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", headers["HTTP-Referer"])
	assert.Equal(t, "Example", headers["X-Title"])
	assert.Equal(t, "Bearer sk-or", headers["Authorization"])
}

func TestAnthropicAdapterSerialize(t *testing.T) {
	adapter := NewAnthropicAdapter("sk-ant")
	body, headers, path, err := adapter.Serialize(&Request{
		Model:  "claude-3-haiku",
		System: "You are helpful.",
		Messages: []Message{
			{Role: "system", Content: "Extra context."},
			{Role: "user", Content: "hi"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "/v1/messages", path)
	assert.Equal(t, "sk-ant", headers["x-api-key"])
	assert.Equal(t, anthropicVersion, headers["anthropic-version"])

	var decoded anthropicRequest
	require.NoError(t, json.Unmarshal(body, &decoded))
	// System turns fold out of band; max_tokens is always present.
	assert.Equal(t, "You are helpful.\n\nExtra context.", decoded.System)
	assert.Equal(t, anthropicDefaultMaxTokens, decoded.MaxTokens)
	require.Len(t, decoded.Messages, 1)
	assert.Equal(t, "user", decoded.Messages[0].Role)
}

func TestAnthropicAdapterParseChunk(t *testing.T) {
	adapter := NewAnthropicAdapter("sk-ant")

	chunks, err := adapter.ParseChunk([]byte(`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hel"}}`))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Hel", chunks[0].Content)

	chunks, err = adapter.ParseChunk([]byte(`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"}}`))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, ChunkFinish, chunks[0].Kind)
	assert.Equal(t, "end_turn", chunks[0].FinishReason)

	chunks, err = adapter.ParseChunk([]byte(`data: {"type":"message_stop"}`))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Terminal)

	chunks, err = adapter.ParseChunk([]byte(`event: content_block_delta`))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestAnthropicAdapterParseResponse(t *testing.T) {
	adapter := NewAnthropicAdapter("sk-ant")
	completion, err := adapter.ParseResponse([]byte(`{
		"content":[{"type":"text","text":"Hello there."}],
		"stop_reason":"end_turn",
		"usage":{"input_tokens":12,"output_tokens":4}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", completion.Content)
	assert.Equal(t, "end_turn", completion.FinishReason)
	assert.Equal(t, 16, completion.Usage.TotalTokens)
}

func TestOllamaAdapterParseChunk(t *testing.T) {
	adapter := NewOllamaAdapter()

	chunks, err := adapter.ParseChunk([]byte(`{"message":{"content":"Hel"},"done":false}`))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Hel", chunks[0].Content)

	chunks, err = adapter.ParseChunk([]byte(`{"message":{"content":"lo"},"done":true}`))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, ChunkDeltaContent, chunks[0].Kind)
	assert.Equal(t, ChunkFinish, chunks[1].Kind)
	assert.True(t, chunks[1].Terminal)
}

func TestOllamaAdapterSerialize(t *testing.T) {
	adapter := NewOllamaAdapter()
	body, _, path, err := adapter.Serialize(&Request{
		Model:     "llama3.2",
		System:    "Be brief.",
		Messages:  []Message{{Role: "user", Content: "hi"}},
		MaxTokens: 128,
		Stream:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "/api/chat", path)

	var decoded ollamaRequest
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.True(t, decoded.Stream)
	assert.Equal(t, 128, decoded.Options.NumPredict)
	require.Len(t, decoded.Messages, 2)
	assert.Equal(t, "system", decoded.Messages[0].Role)
}
