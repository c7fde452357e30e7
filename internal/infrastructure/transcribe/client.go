// Package transcribe wraps the whisper transcription sidecar. The
// service is optional; when no URL is configured audio files resolve to
// unsupported extractions instead of failing uploads.
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/campersurfer/Autopicker/internal/config"
)

const (
	maxAttempts     = 4 // first try plus 3 retries
	baseBackoff     = 500 * time.Millisecond
	backoffJitter   = 0.2
	requestsPerSec  = 2
	requestBurst    = 2
	defaultDeadline = 30 * time.Second
)

// Result is the sidecar's transcription output.
type Result struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// Client calls the whisper sidecar with retry and pacing.
type Client struct {
	client  *resty.Client
	baseURL string
	limiter *rate.Limiter
	timeout time.Duration
	log     zerolog.Logger
}

// NewClient builds the sidecar client. Returns nil when WHISPER_URL is
// not configured.
func NewClient(cfg *config.Config, log zerolog.Logger) *Client {
	if cfg.WhisperURL == "" {
		return nil
	}

	timeout := cfg.WhisperTimeout
	if timeout <= 0 {
		timeout = defaultDeadline
	}

	client := resty.New().
		SetBaseURL(cfg.WhisperURL).
		SetTimeout(timeout)

	return &Client{
		client:  client,
		baseURL: cfg.WhisperURL,
		limiter: rate.NewLimiter(requestsPerSec, requestBurst),
		timeout: timeout,
		log:     log.With().Str("component", "transcribe-client").Logger(),
	}
}

// Enabled reports whether a sidecar is configured.
func (c *Client) Enabled() bool {
	return c != nil
}

// Transcribe sends the audio bytes to the sidecar. Transient failures
// are retried up to 3 times with exponential backoff and jitter, each
// attempt bounded by its own wall clock.
func (c *Client) Transcribe(ctx context.Context, filename string, audio io.Reader) (*Result, error) {
	if c == nil {
		return nil, errors.New("transcription service is not configured")
	}

	data, err := io.ReadAll(audio)
	if err != nil {
		return nil, fmt.Errorf("read audio stream: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := c.attempt(ctx, filename, data)
		if err == nil {
			if attempt > 1 {
				c.log.Info().Int("attempt", attempt).Msg("transcription succeeded after retry")
			}
			return result, nil
		}

		lastErr = err
		if attempt == maxAttempts || ctx.Err() != nil {
			break
		}

		delay := backoffDelay(attempt)
		c.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_delay", delay).
			Msg("transcription attempt failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("transcription failed after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, filename string, data []byte) (*Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var result Result
	resp, err := c.client.R().
		SetContext(attemptCtx).
		SetQueryParam("output", "json").
		SetFileReader("audio_file", filename, bytes.NewReader(data)).
		SetResult(&result).
		Post("/asr")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("sidecar returned %d: %s", resp.StatusCode(), resp.String())
	}

	return &result, nil
}

func backoffDelay(attempt int) time.Duration {
	delay := baseBackoff * time.Duration(1<<(attempt-1))
	jitter := 1 + backoffJitter*(2*rand.Float64()-1)
	return time.Duration(float64(delay) * jitter)
}
