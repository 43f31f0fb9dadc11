package domain

// User is an account row. PromptOverride replaces part 1 of the system
// prompt when non-blank; PendingPromptUpdate marks that the user's next chat
// message is the new override text rather than a chat turn.
type User struct {
	Login               string
	PasswordHash        string
	PromptOverride      string
	PendingPromptUpdate bool
}

// Settings are per-user UI and model preferences.
type Settings struct {
	ShowDebug           bool   `json:"showDebug"`
	SelectedLLMServerID string `json:"selectedLlmServerId,omitempty"`
	ModelOverride       string `json:"modelOverride,omitempty"`
}
