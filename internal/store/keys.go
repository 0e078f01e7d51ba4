package store

// Persisted setting keys.
const (
	// KeyPairActive is "true" while the pairing channel owns the radio.
	KeyPairActive = "ble_pair"

	// KeyManualOff is "1" when the user switched the station link off.
	KeyManualOff = "wifi_manual_off"

	// KeyAutoFallback is "1" while the automatic pairing fallback is engaged.
	KeyAutoFallback = "ble_auto_fb"

	// KeyAutoDeferOnce is "1" to skip the automatic fallback on the next boot only.
	KeyAutoDeferOnce = "ble_auto_dfr1"

	// KeyFactorySetup is "1" while the device is in factory setup mode.
	KeyFactorySetup = "fr_setup_mode"

	// KeyUserName is the owner's display name; empty means not provisioned.
	KeyUserName = "user_name"

	// KeyPairCode and KeyPairExpiry hold the active pairing code and its
	// expiry in microseconds since boot.
	KeyPairCode   = "ble_code"
	KeyPairExpiry = "ble_exp_us"

	// KeyLinkResetPending marks a station reset requested over the pairing channel.
	KeyLinkResetPending = "ble_wifi_rst"

	// KeyPrincipalID is the messaging principal (the primary topic suffix).
	KeyPrincipalID = "principal_id"

	// KeyDeviceID is the generated device identity.
	KeyDeviceID = "device_id"
)
