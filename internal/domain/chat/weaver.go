package chat

import (
	"fmt"
	"strings"

	"github.com/campersurfer/Autopicker/internal/domain/extraction"
	"github.com/campersurfer/Autopicker/internal/infrastructure/upstream"
	"github.com/campersurfer/Autopicker/internal/utils/tokenestimate"
)

// attachedFilesHeader opens the woven file-context system message.
const attachedFilesHeader = "=== Attached Files ==="

// AttachedFile is one resolved attachment ready for weaving.
type AttachedFile struct {
	Name       string
	MIME       string
	Extraction *extraction.Extraction
	// FailureReason is set when extraction failed; the file still gets
	// a placeholder so the model knows the attachment exists.
	FailureReason string
	// Image carries the raw base64 payload for vision-capable targets.
	Image *upstream.Image
}

// Weave renders the outbound request: messages pass through, attached
// file content becomes a bounded system message, and images ride inline
// when the target adapter supports vision.
func Weave(req *Request, attachments []AttachedFile, contextWindow int, visionCapable bool) *upstream.Request {
	out := &upstream.Request{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, upstream.Message{Role: m.Role, Content: m.Content})
	}

	if len(attachments) == 0 {
		return out
	}

	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += tokenestimate.Estimate(m.Content)
	}
	budget := tokenestimate.DefaultBudget(contextWindow)
	allowance := budget.FileAllowance(promptTokens)

	// The remaining allowance is split evenly across the attachments.
	perFile := 0
	if len(attachments) > 0 {
		perFile = allowance / len(attachments)
	}

	var b strings.Builder
	b.WriteString(attachedFilesHeader)
	for _, att := range attachments {
		b.WriteString("\n\n")
		b.WriteString(renderAttachment(att, perFile, visionCapable))

		if visionCapable && att.Image != nil {
			attachImage(out, *att.Image)
		}
	}
	out.System = b.String()
	return out
}

func renderAttachment(att AttachedFile, tokenCap int, visionCapable bool) string {
	if att.FailureReason != "" {
		return fmt.Sprintf("[file %s: extraction failed: %s]", att.Name, att.FailureReason)
	}
	if att.Extraction == nil {
		return fmt.Sprintf("[file %s: content not available]", att.Name)
	}

	// Inline images carry the pixels; the caption alone suffices here.
	if visionCapable && att.Image != nil {
		return fmt.Sprintf("File: %s\nType: %s\n(image attached inline)", att.Name, att.Extraction.Kind)
	}

	text, truncated := tokenestimate.Truncate(att.Extraction.Text, tokenCap)
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\nType: %s\n", att.Name, att.Extraction.Kind)
	b.WriteString(text)
	if truncated || att.Extraction.Truncated {
		b.WriteString("\n[content truncated]")
	}
	return b.String()
}

// attachImage rides the image on the last user message, creating one if
// the conversation has none.
func attachImage(out *upstream.Request, img upstream.Image) {
	for i := len(out.Messages) - 1; i >= 0; i-- {
		if out.Messages[i].Role == "user" {
			out.Messages[i].Images = append(out.Messages[i].Images, img)
			return
		}
	}
	out.Messages = append(out.Messages, upstream.Message{Role: "user", Images: []upstream.Image{img}})
}
