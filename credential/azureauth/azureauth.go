// Package azureauth acquires tokens by shelling out to the azureauth CLI.
// The CLI owns the interactive login flow and its own on-disk cache; this
// provider only assembles the invocation and parses the result.
package azureauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/demoray/azure-identity-helpers/credential"
)

// Mode selects an authentication mode passed to the CLI.
type Mode string

const (
	ModeAll    Mode = "all"
	ModeIWA    Mode = "iwa"
	ModeBroker Mode = "broker"
	ModeWeb    Mode = "web"
)

// Credential invokes the azureauth CLI to obtain an access token.
type Credential struct {
	tenantID   string
	clientID   string
	modes      []Mode
	promptHint string
	command    string

	lookPath func(file string) (string, error)
	run      commandRunner
}

type commandRunner func(ctx context.Context, name string, args []string) (stdout, stderr []byte, err error)

// Option configures a Credential.
type Option func(*Credential)

// WithModes sets the authentication modes passed to the CLI. Windows-only
// modes (iwa, broker) are dropped when the resolved binary is not the
// Windows executable.
func WithModes(modes ...Mode) Option {
	return func(c *Credential) {
		c.modes = modes
	}
}

// WithPromptHint sets the prompt hint shown during interactive login.
func WithPromptHint(hint string) Option {
	return func(c *Credential) {
		c.promptHint = hint
	}
}

// WithCommand overrides the binary name probed on PATH, replacing the
// default azureauth.exe/azureauth discovery.
func WithCommand(command string) Option {
	return func(c *Credential) {
		c.command = command
	}
}

// New creates a CLI credential for the given tenant and client.
func New(tenantID, clientID string, opts ...Option) *Credential {
	c := &Credential{
		tenantID: tenantID,
		clientID: clientID,
		lookPath: exec.LookPath,
		run:      runCommand,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ credential.Provider = (*Credential)(nil)

func (c *Credential) Name() string {
	return "azureauth"
}

// Available reports whether the CLI binary can be found on PATH. This is a
// filesystem probe only.
func (c *Credential) Available() bool {
	_, err := c.find()
	return err == nil
}

// GetToken runs the CLI and parses its JSON output. The requested scopes
// are passed through as repeated --scope arguments.
func (c *Credential) GetToken(ctx context.Context, req credential.TokenRequest) (credential.AccessToken, error) {
	binary, err := c.find()
	if err != nil {
		return credential.AccessToken{}, err
	}

	stdout, stderr, err := c.run(ctx, binary, c.arguments(binary, req))
	if err != nil {
		detail := strings.TrimSpace(string(stderr))
		if detail != "" {
			return credential.AccessToken{}, fmt.Errorf("azureauth command failed: %s: %w", detail, err)
		}
		return credential.AccessToken{}, fmt.Errorf("azureauth command failed: %w", err)
	}

	return parseResponse(stdout)
}

// find resolves the CLI binary. The Windows executable is probed first so
// that azureauth installed on the Windows side is usable from WSL.
func (c *Credential) find() (string, error) {
	if c.command != "" {
		path, err := c.lookPath(c.command)
		if err != nil {
			return "", fmt.Errorf("%s CLI not installed: %w", c.command, err)
		}
		return path, nil
	}

	for _, name := range []string{"azureauth.exe", "azureauth"} {
		if path, err := c.lookPath(name); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("azureauth CLI not installed")
}

func (c *Credential) arguments(binary string, req credential.TokenRequest) []string {
	windows := strings.HasSuffix(binary, ".exe")

	args := []string{
		"aad",
		"--client", c.clientID,
		"--tenant", c.tenantID,
		"--output", "json",
	}

	for _, scope := range req.Scopes {
		args = append(args, "--scope", scope)
	}

	if c.promptHint != "" {
		args = append(args, "--prompt-hint", c.promptHint)
	}

	for _, mode := range c.modes {
		switch mode {
		case ModeIWA, ModeBroker:
			if windows {
				args = append(args, "--mode", string(mode))
			}
		case ModeAll, ModeWeb:
			args = append(args, "--mode", string(mode))
		}
	}

	return args
}

// tokenResponse is the CLI's JSON output. expiration_date is unix seconds
// rendered as a string.
type tokenResponse struct {
	Token          string `json:"token"`
	ExpirationDate string `json:"expiration_date"`
}

func parseResponse(output []byte) (credential.AccessToken, error) {
	var response tokenResponse
	if err := json.Unmarshal(output, &response); err != nil {
		return credential.AccessToken{}, fmt.Errorf("parsing azureauth output: %w", err)
	}

	expiry, err := strconv.ParseInt(response.ExpirationDate, 10, 64)
	if err != nil {
		return credential.AccessToken{}, fmt.Errorf("unable to parse expiration_date %q", response.ExpirationDate)
	}

	return credential.AccessToken{
		Token:     response.Token,
		ExpiresOn: time.Unix(expiry, 0),
	}, nil
}

func runCommand(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
