package sshagent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/opsbridge/opsbridge/internal/config"
)

// DirectClient runs commands over SSH itself, against the exec targets
// defined in the app config, instead of delegating to an external agent.
// Connections are opened per command; this system executes actions one at a
// time, so pooling would buy nothing.
type DirectClient struct {
	loader *config.Loader
}

// NewDirectClient creates a direct SSH backend.
func NewDirectClient(loader *config.Loader) *DirectClient {
	return &DirectClient{loader: loader}
}

// ListServers formats the configured target inventory.
func (c *DirectClient) ListServers(ctx context.Context) (string, error) {
	targets := c.loader.Config().SSHAgent.Targets
	if len(targets) == 0 {
		return "No servers configured.", nil
	}

	var b strings.Builder
	for _, t := range targets {
		port := t.Port
		if port <= 0 {
			port = 22
		}
		fmt.Fprintf(&b, "%s\t%s@%s:%d\n", t.Name, t.User, t.Host, port)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// Execute opens an SSH session to the named target and runs the command.
// Stdout and stderr are combined, mirroring what an operator would see in a
// terminal.
func (c *DirectClient) Execute(ctx context.Context, server, command string) (string, error) {
	target := c.findTarget(server)
	if target == nil {
		return "", fmt.Errorf("unknown server: %q", server)
	}

	client, err := c.dial(target)
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			slog.Warn("failed to close ssh connection", "server", server, "error", closeErr)
		}
	}()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open ssh session to %s: %w", server, err)
	}
	defer func() { _ = session.Close() }()

	output, err := session.CombinedOutput(command)
	if err != nil {
		// A non-zero exit still produced output the operator needs to see.
		if len(output) > 0 {
			return fmt.Sprintf("%s\n(command failed: %v)", string(output), err), nil
		}
		return "", fmt.Errorf("run command on %s: %w", server, err)
	}
	return string(output), nil
}

func (c *DirectClient) findTarget(name string) *config.ExecTarget {
	targets := c.loader.Config().SSHAgent.Targets
	for i := range targets {
		if targets[i].Name == name {
			return &targets[i]
		}
	}
	return nil
}

func (c *DirectClient) dial(target *config.ExecTarget) (*ssh.Client, error) {
	var auth []ssh.AuthMethod
	if target.Password != "" {
		auth = append(auth, ssh.Password(target.Password))
	}
	if target.KeyFile != "" {
		keyData, err := os.ReadFile(target.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no authentication method configured for %s", target.Name)
	}

	port := target.Port
	if port <= 0 {
		port = 22
	}
	addr := fmt.Sprintf("%s:%d", target.Host, port)

	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            target.User,
		Auth:            auth,
		Timeout:         30 * time.Second,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return client, nil
}
