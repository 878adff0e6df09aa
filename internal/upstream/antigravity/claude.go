package antigravity

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// claudeSystemPreamble is the identity preamble the Cloud Code API expects
// on Claude-family requests.
const claudeSystemPreamble = "You are Antigravity, a powerful agentic AI coding assistant designed by the Google Deepmind team working on Advanced Agentic Coding." +
	"You are pair programming with a USER to solve their coding task. The task may require creating a new codebase, modifying or debugging an existing codebase, or simply answering a question." +
	"**Absolute paths only****Proactiveness**"

// preambleMarker identifies a body that already carries the preamble.
const preambleMarker = "**proactiveness**"

// IsClaudeModel reports whether the model needs the system preamble.
func IsClaudeModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "claude")
}

// EnsureClaudeSystemInstruction prepends the preamble to the body's
// systemInstruction. Idempotent: a body whose first system part contains
// the marker is returned unchanged, so retries never stack preambles.
func EnsureClaudeSystemInstruction(body []byte) []byte {
	existing := gjson.GetBytes(body, "systemInstruction.parts.0.text")
	if existing.Exists() && strings.Contains(strings.ToLower(existing.String()), preambleMarker) {
		return body
	}

	finalText := claudeSystemPreamble
	if text := existing.String(); text != "" {
		finalText = claudeSystemPreamble + "\n" + text
	}

	patched, err := sjson.SetBytes(body, "systemInstruction", map[string]any{
		"parts": []any{map[string]any{"text": finalText}},
	})
	if err != nil {
		return body
	}
	return patched
}
