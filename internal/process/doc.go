// Package process supervises the radio daemons the device depends on.
//
// A Supervisor runs one child process (wpa_supplicant, the pairing daemon)
// in its own process group, relays its output to the logger line by line,
// and restarts it with capped exponential backoff when it dies. Start can
// block until a readiness probe passes, so callers only talk to a daemon
// that is actually listening.
//
// Example usage:
//
//	sup := process.New(process.Config{
//	    Name:    "wpa_supplicant",
//	    Binary:  "/usr/sbin/wpa_supplicant",
//	    Args:    []string{"-i", "wlan0", "-c", "/data/wpa_supplicant.conf"},
//	    Restart: true,
//	    Ready:   func(ctx context.Context) error { return ping(ctx) },
//	})
//
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
package process
