package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/opsbridge/opsbridge/internal/domain"
	"github.com/opsbridge/opsbridge/internal/sshagent"
)

// Capability names an action may dispatch to.
const (
	apiListServers = "list_servers"
	apiExecute     = "execute"
)

// ExecutionResult is the normalized outcome of one triggered action.
type ExecutionResult struct {
	Success    bool   `json:"success"`
	API        string `json:"api,omitempty"`
	Server     string `json:"server,omitempty"`
	Command    string `json:"command,omitempty"`
	Output     string `json:"output,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// auditStore is the slice of the repository the executor writes to.
type auditStore interface {
	AddAuditEntry(ctx context.Context, e domain.AuditEntry) error
}

// Executor resolves one action id from a staged actions document and invokes
// the matching capability.
type Executor struct {
	backend sshagent.Client
	audit   auditStore
}

// NewExecutor creates an Executor.
func NewExecutor(backend sshagent.Client, audit auditStore) *Executor {
	return &Executor{backend: backend, audit: audit}
}

// Execute runs the action with the given id from the staged document.
// All failures — unknown id, unknown capability, backend errors — are
// reported inside the result; Execute itself never fails. A successful
// dispatch is audited exactly once; nothing else is audited.
func (e *Executor) Execute(ctx context.Context, login, actionsJSON, actionID string) ExecutionResult {
	set, err := domain.DecodeActionSet(actionsJSON)
	if err != nil {
		slog.Error("staged actions document is not decodable", "login", login, "error", err)
		return ExecutionResult{Success: false, Error: err.Error()}
	}

	action := set.Find(actionID)
	if action == nil {
		return ExecutionResult{Success: false, Error: "Action not found: " + actionID}
	}

	var server, command string
	start := time.Now()
	var output string
	var callErr error

	switch action.API {
	case apiListServers:
		output, callErr = e.backend.ListServers(ctx)
	case apiExecute:
		// Missing params pass through as empty strings; the backend decides
		// what an empty server or command means.
		server = action.Params["server"]
		command = action.Params["command"]
		output, callErr = e.backend.Execute(ctx, server, command)
	default:
		return ExecutionResult{Success: false, Error: "Unknown API: " + action.API}
	}

	durationMs := time.Since(start).Milliseconds()

	if callErr != nil {
		slog.Error("action execution failed",
			"login", login, "api", action.API, "server", server, "error", callErr)
		return ExecutionResult{
			Success:    false,
			API:        action.API,
			Server:     server,
			Command:    command,
			DurationMs: durationMs,
			Error:      callErr.Error(),
		}
	}

	e.recordAudit(ctx, login, action.API, server, command, durationMs, output)

	return ExecutionResult{
		Success:    true,
		API:        action.API,
		Server:     server,
		Command:    command,
		Output:     output,
		DurationMs: durationMs,
	}
}

// recordAudit emits the audit log line and persists the audit row. A failed
// insert is logged and swallowed: auditing must never fail an action that
// already ran.
func (e *Executor) recordAudit(ctx context.Context, login, action, server, command string, durationMs int64, result string) {
	snippet := result
	if len(snippet) > 500 {
		snippet = snippet[:500]
	}
	slog.Info("audit",
		"login", login,
		"action", action,
		"server", server,
		"command", command,
		"duration_ms", durationMs,
		"result", snippet,
	)
	if err := e.audit.AddAuditEntry(ctx, domain.AuditEntry{
		Timestamp:     time.Now(),
		Login:         login,
		Action:        action,
		Server:        server,
		Command:       command,
		DurationMs:    durationMs,
		ResultSnippet: snippet,
	}); err != nil {
		slog.Error("failed to persist audit entry", "login", login, "action", action, "error", err)
	}
}
