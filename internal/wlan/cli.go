package wlan

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Commander issues control commands to the running supplicant.
type Commander interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// CLI runs wpa_cli against one interface's control socket.
type CLI struct {
	Binary     string
	ControlDir string
	Interface  string
}

// Run executes one wpa_cli command and returns its trimmed output.
// A literal FAIL reply is reported as ErrCommandFailed.
func (c CLI) Run(ctx context.Context, args ...string) (string, error) {
	full := make([]string, 0, len(args)+4)
	full = append(full, "-p", c.ControlDir, "-i", c.Interface)
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, c.Binary, full...) //nolint:gosec // Binary comes from operator config
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("wpa_cli %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}

	reply := strings.TrimSpace(out.String())
	if reply == "FAIL" {
		return reply, fmt.Errorf("%w: %s", ErrCommandFailed, strings.Join(args, " "))
	}
	return reply, nil
}
