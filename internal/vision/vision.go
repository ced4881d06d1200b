// Package vision asks a multimodal model to locate a date control in a page
// screenshot when DOM heuristics come up empty.
package vision

import (
	"context"
	"strings"
)

// Report is the model's structured answer about the screenshot.
type Report struct {
	// Found says whether a date control is visible at all.
	Found bool `json:"found"`
	// InputMode is "input" when the control accepts typed text, "click"
	// when it must be operated through a calendar panel.
	InputMode string `json:"input_mode"`
	// IsRange says whether the control covers a start/end pair.
	IsRange bool `json:"is_range"`
	// HasConfirm says whether the panel needs a confirm click.
	HasConfirm bool `json:"has_confirm"`
	// CSSHints are selector fragments the model read off the page, best
	// guess only.
	CSSHints []string `json:"css_hints"`
	// Instruction is a one-line operation plan in plain text.
	Instruction string `json:"instruction"`
	// Reason explains a negative or uncertain answer.
	Reason string `json:"reason"`
}

// Analyzer produces a Report from a screenshot. The production
// implementation calls a chat-completions endpoint; tests use fakes.
type Analyzer interface {
	AnalyzePicker(ctx context.Context, screenshotPNG []byte) (Report, error)
}

// extractJSONObject tolerates prose and markdown fences around the model's
// JSON answer.
func extractJSONObject(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return trimmed[start : end+1]
	}
	return trimmed
}
