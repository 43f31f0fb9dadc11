package chat

import (
	"encoding/json"
	"strings"
)

// Markers delimiting the action directive block inside a model reply. They
// are literal and case-sensitive; their position within a line is irrelevant.
const (
	actionsStartMarker = "---ACTIONS_JSON_START---"
	actionsEndMarker   = "---ACTIONS_JSON_END---"
)

// ParseResult is the outcome of splitting one model reply.
type ParseResult struct {
	// Text is the prose to display and store.
	Text string
	// ActionsJSON is the raw directive payload, "" when the reply carried
	// no usable directive block.
	ActionsJSON string
}

// HasActions reports whether the reply carried a directive block.
func (r ParseResult) HasActions() bool {
	return strings.TrimSpace(r.ActionsJSON) != ""
}

// Parse splits a model reply into prose and an optional actions document.
//
// Parsing is fail-open in two distinct ways: when either marker is missing
// (or the end marker does not follow the start marker) the reply is returned
// verbatim; when the markers are present but the payload between them is not
// well-formed JSON, the ORIGINAL reply — not the stripped prose — is
// returned, so the user sees exactly what the model produced. The payload is
// only checked for JSON well-formedness here; decoding into actions happens
// at lookup time.
func Parse(reply string) ParseResult {
	startIdx := strings.Index(reply, actionsStartMarker)
	endIdx := strings.Index(reply, actionsEndMarker)

	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return ParseResult{Text: reply}
	}

	before := strings.TrimSpace(reply[:startIdx])
	after := strings.TrimSpace(reply[endIdx+len(actionsEndMarker):])
	text := strings.TrimSpace(before + "\n" + after)

	payload := strings.TrimSpace(reply[startIdx+len(actionsStartMarker) : endIdx])
	if !json.Valid([]byte(payload)) {
		return ParseResult{Text: reply}
	}

	return ParseResult{Text: text, ActionsJSON: payload}
}
