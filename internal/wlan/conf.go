package wlan

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mobus-dev/mobus-core/internal/link"
)

// confFileMode keeps the passphrase readable only by the service user.
const confFileMode = 0o600

// renderConf produces a wpa_supplicant.conf with at most one network block.
// The SSID is hex-encoded so any byte sequence survives.
func renderConf(controlDir string, cfg link.Config) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "ctrl_interface=%s\n", controlDir)
	b.WriteString("update_config=0\n")

	if cfg.SSID == "" {
		return b.String(), nil
	}
	if len(cfg.SSID) > 32 {
		return "", fmt.Errorf("%w: SSID longer than 32 bytes", ErrInvalidNetwork)
	}

	b.WriteString("\nnetwork={\n")
	fmt.Fprintf(&b, "\tssid=%s\n", hex.EncodeToString([]byte(cfg.SSID)))
	b.WriteString("\tscan_ssid=1\n")

	switch {
	case cfg.Password == "":
		b.WriteString("\tkey_mgmt=NONE\n")
	case isRawPSK(cfg.Password):
		fmt.Fprintf(&b, "\tpsk=%s\n", cfg.Password)
	default:
		if n := len(cfg.Password); n < 8 || n > 63 {
			return "", fmt.Errorf("%w: passphrase must be 8 to 63 characters", ErrInvalidNetwork)
		}
		if strings.ContainsAny(cfg.Password, "\"\n\r") {
			return "", fmt.Errorf("%w: passphrase contains unsupported characters", ErrInvalidNetwork)
		}
		fmt.Fprintf(&b, "\tpsk=\"%s\"\n", cfg.Password)
	}
	b.WriteString("}\n")
	return b.String(), nil
}

// isRawPSK reports whether s is a precomputed 256-bit key.
func isRawPSK(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// writeConf replaces path atomically with 0600 permissions.
func writeConf(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".wpa_supplicant-*.conf")
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // Gone after a successful rename

	if err := tmp.Chmod(confFileMode); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return fmt.Errorf("setting config permissions: %w", err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("installing config: %w", err)
	}
	return nil
}
