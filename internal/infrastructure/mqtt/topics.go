package mqtt

import "fmt"

// Topic prefixes for NearClip traffic.
//
// The native core (transport and pairing engine) talks to the registry over
// nearclip/core; the registry republishes device state under
// nearclip/registry.
const (
	// TopicPrefix is the root of every NearClip topic.
	TopicPrefix = "nearclip"

	// TopicPrefixCore carries native core events, commands and responses.
	TopicPrefixCore = "nearclip/core"

	// TopicPrefixRegistry carries state published by the registry.
	TopicPrefixRegistry = "nearclip/registry"

	// TopicPrefixSystem carries process status.
	TopicPrefixSystem = "nearclip/system"
)

// Topics provides builders for NearClip MQTT topics.
//
//	topic := mqtt.Topics{}.CoreCommand("connect")
//	// Returns: "nearclip/core/command/connect"
type Topics struct{}

// CoreDiscovery returns the topic the native core publishes advertisements on.
//
// Example: nearclip/core/discovery
func (Topics) CoreDiscovery() string {
	return TopicPrefixCore + "/discovery"
}

// CoreConnectionLost returns the topic signalling a dropped link.
//
// Example: nearclip/core/connection/lost/dev-1
func (Topics) CoreConnectionLost(deviceID string) string {
	return fmt.Sprintf("%s/connection/lost/%s", TopicPrefixCore, deviceID)
}

// CoreCommand returns the topic for a command to the native core.
//
// Example: nearclip/core/command/pair
func (Topics) CoreCommand(op string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefixCore, op)
}

// CoreResponse returns the topic the native core answers a command on.
//
// Example: nearclip/core/response/6f1c...
func (Topics) CoreResponse(requestID string) string {
	return fmt.Sprintf("%s/response/%s", TopicPrefixCore, requestID)
}

// RegistryDeviceStatus returns the retained status topic of one device.
//
// Example: nearclip/registry/device/dev-1/status
func (Topics) RegistryDeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/status", TopicPrefixRegistry, deviceID)
}

// SystemStatus returns the process status topic (online/offline, LWT).
//
// Example: nearclip/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllCoreConnectionLost matches every connection-lost signal.
//
// Pattern: nearclip/core/connection/lost/+
func (Topics) AllCoreConnectionLost() string {
	return TopicPrefixCore + "/connection/lost/+"
}

// AllCoreResponses matches every native core response.
//
// Pattern: nearclip/core/response/+
func (Topics) AllCoreResponses() string {
	return TopicPrefixCore + "/response/+"
}

// AllRegistryDeviceStatus matches the status topic of every device.
//
// Pattern: nearclip/registry/device/+/status
func (Topics) AllRegistryDeviceStatus() string {
	return TopicPrefixRegistry + "/device/+/status"
}

// AllTopics matches all NearClip traffic.
//
// Pattern: nearclip/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// LastSegment returns the part of topic after the final slash.
func LastSegment(topic string) string {
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '/' {
			return topic[i+1:]
		}
	}
	return topic
}
