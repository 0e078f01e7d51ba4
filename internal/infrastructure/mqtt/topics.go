package mqtt

// TopicPrefixDevices is the base for per-device status topics.
const TopicPrefixDevices = "mobus/devices/"

// Topics provides builders for topics owned by the session itself.
// Message topics belong to the messaging runtime.
//
//	topic := mqtt.Topics{}.DeviceStatus("3f2c...")
//	// Returns: "mobus/devices/3f2c.../status"
type Topics struct{}

// DeviceStatus returns the retained online/offline topic for a device.
func (Topics) DeviceStatus(deviceID string) string {
	return TopicPrefixDevices + deviceID + "/status"
}
