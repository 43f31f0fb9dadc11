// Package sshagent provides clients for the remote command-execution backend.
package sshagent

import (
	"context"
	"strings"

	"github.com/opsbridge/opsbridge/internal/config"
)

// Client is the remote execution backend. Both methods return best-effort
// text on success; transport and connection failures come back on the error
// channel so callers can distinguish a failed invocation from a command that
// ran and printed something.
type Client interface {
	// ListServers returns a human-readable description of the servers the
	// backend can reach.
	ListServers(ctx context.Context) (string, error)

	// Execute runs a command on the named server and returns its output.
	Execute(ctx context.Context, server, command string) (string, error)
}

// NewFromConfig builds the backend selected by the app config's
// sshAgent.mode field: "direct" opens SSH connections itself, anything else
// talks to the external HTTP agent.
func NewFromConfig(loader *config.Loader) Client {
	if strings.EqualFold(loader.Config().SSHAgent.Mode, "direct") {
		return NewDirectClient(loader)
	}
	return NewHTTPClient(loader)
}
