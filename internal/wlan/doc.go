// Package wlan is the station radio backend: it drives wpa_supplicant
// through its configuration file and wpa_cli, and turns polled status into
// link events.
package wlan
