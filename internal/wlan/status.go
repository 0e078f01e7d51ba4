package wlan

import (
	"bufio"
	"strings"
)

// Supplicant states from wpa_cli status.
const (
	wpaCompleted    = "COMPLETED"
	wpaDisconnected = "DISCONNECTED"
)

// linkStatus is the subset of wpa_cli status the radio tracks.
type linkStatus struct {
	State   string
	SSID    string
	Address string
}

func (s linkStatus) online() bool {
	return s.State == wpaCompleted && s.Address != ""
}

// parseStatus reads key=value lines; unknown keys are ignored.
func parseStatus(out string) linkStatus {
	var st linkStatus
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "wpa_state":
			st.State = value
		case "ssid":
			st.SSID = value
		case "ip_address":
			st.Address = value
		}
	}
	return st
}
