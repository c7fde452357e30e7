// Package complexity turns a chat request and its resolved extractions
// into a deterministic difficulty score and required-capability set.
package complexity

import (
	"strings"
	"unicode/utf8"

	"github.com/campersurfer/Autopicker/internal/domain/chatmodel"
	"github.com/campersurfer/Autopicker/internal/domain/extraction"
	"github.com/campersurfer/Autopicker/internal/utils/tokenestimate"
)

const (
	messagePointsPerChunk = 800
	messagePointsCap      = 25
	filePoints            = 5
	filePointsCap         = 20
	sizeChunkBytes        = 200 * 1024
	sizePointsCap         = 15
	imagePoints           = 10
	audioPoints           = 15
	tabularPoints         = 5
	hintPoints            = 10
	codePoints            = 5
	scoreCap              = 100

	defaultOutputCeiling = 4096

	// long-context is required once the estimated input exceeds this
	// share of a fast model's window.
	longContextThresholdNum = 3
	longContextThresholdDen = 4
)

// Message is one chat message as the scorer sees it.
type Message struct {
	Role    string
	Content string
}

// File pairs the referenced file's size with its extraction, when ready.
type File struct {
	SizeBytes  int64
	Extraction *extraction.Extraction
}

// Input carries everything score() may read. FastWindows are the
// context windows of the catalog's fast-tier models.
type Input struct {
	Messages    []Message
	Files       []File
	Hints       chatmodel.CapabilitySet
	MaxTokens   int
	FastWindows []int
}

// Factors are the per-signal subscores, exposed for inspection.
type Factors struct {
	Message int `json:"message_complexity"`
	File    int `json:"file_complexity"`
	Size    int `json:"size_complexity"`
}

// Score is the deterministic result: same Input, same Score.
type Score struct {
	Value         int
	Required      chatmodel.CapabilitySet
	InputTokens   int
	OutputCeiling int
	Tags          []string
	Factors       Factors
}

const punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Compute scores the input. Pure; no I/O.
func Compute(input Input) Score {
	var (
		userChars  int
		allContent strings.Builder
		hasFence   bool
		punctCount int
	)

	for _, m := range input.Messages {
		allContent.WriteString(m.Content)
		if m.Role != "user" {
			continue
		}
		userChars += utf8.RuneCountInString(m.Content)
		if strings.Contains(m.Content, "```") {
			hasFence = true
		}
		for _, r := range m.Content {
			if r < 128 && strings.ContainsRune(punctuation, r) {
				punctCount++
			}
		}
	}

	factors := Factors{
		Message: capped(userChars/messagePointsPerChunk, messagePointsCap),
		File:    capped(len(input.Files)*filePoints, filePointsCap),
	}

	var totalFileBytes int64
	var hasImage, hasAudio, hasTabular bool
	extractedTokens := 0
	for _, f := range input.Files {
		totalFileBytes += f.SizeBytes
		if f.Extraction == nil {
			continue
		}
		switch f.Extraction.Kind {
		case extraction.KindImageCaption:
			hasImage = true
		case extraction.KindTranscript:
			if len(f.Extraction.Text) > 0 {
				hasAudio = true
			}
		case extraction.KindTable:
			hasTabular = true
		}
		extractedTokens += tokenestimate.Estimate(f.Extraction.Text)
	}
	factors.Size = capped(int(totalFileBytes/sizeChunkBytes), sizePointsCap)

	value := factors.Message + factors.File + factors.Size
	var tags []string

	if hasImage {
		value += imagePoints
		tags = append(tags, "multimodal-image")
	}
	if hasAudio {
		value += audioPoints
		tags = append(tags, "multimodal-audio")
	}
	if hasTabular {
		value += tabularPoints
		tags = append(tags, "tabular-content")
	}

	required := chatmodel.NewCapabilitySet(chatmodel.CapabilityText)
	if hasImage {
		required[chatmodel.CapabilityVision] = true
	}
	if hasAudio {
		required[chatmodel.CapabilityAudio] = true
	}
	// Walk hints in the fixed capability order so the tag sequence is
	// stable for identical inputs.
	for _, hint := range chatmodel.AllCapabilities {
		if !input.Hints[hint] || hint == chatmodel.CapabilityText {
			continue
		}
		value += hintPoints
		if !required[hint] {
			required[hint] = true
			tags = append(tags, "hint-"+string(hint))
		}
	}

	codeLike := hasFence
	if !codeLike && userChars > 0 {
		codeLike = punctCount*10 > userChars
	}
	if codeLike {
		value += codePoints
		tags = append(tags, "code-like")
	}

	inputTokens := tokenestimate.Estimate(allContent.String()) + extractedTokens
	for _, window := range input.FastWindows {
		if window > 0 && inputTokens*longContextThresholdDen > window*longContextThresholdNum {
			required[chatmodel.CapabilityLongContext] = true
			tags = append(tags, "long-context-required")
			break
		}
	}

	outputCeiling := input.MaxTokens
	if outputCeiling <= 0 {
		outputCeiling = defaultOutputCeiling
	}

	if value > scoreCap {
		value = scoreCap
	}

	return Score{
		Value:         value,
		Required:      required,
		InputTokens:   inputTokens,
		OutputCeiling: outputCeiling,
		Tags:          tags,
		Factors:       factors,
	}
}

func capped(v, max int) int {
	if v > max {
		return max
	}
	return v
}
