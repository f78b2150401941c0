package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes of the Gray Logic MQTT hierarchy used by the bridge.
const (
	// TopicPrefix is the root of every Gray Logic topic.
	TopicPrefix = "graylogic"

	// TopicPrefixCore is the base for topics published by Core.
	TopicPrefixCore = "graylogic/core"

	// BridgeName identifies this bridge in flat bridge topics.
	BridgeName = "influx"
)

// EventDeviceDeleted is the Core event published when a device is removed.
const EventDeviceDeleted = "device_deleted"

// Topics provides builders for the topics the bridge reads and writes.
//
//	topics := mqtt.Topics{}
//	topics.ImportState("meter-total")
//	// Returns: "graylogic/state/influx/meter-total"
type Topics struct{}

// CoreDeviceState returns the canonical device state topic published by Core.
//
// Example: graylogic/core/device/light-living-main/state
func (Topics) CoreDeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefixCore, deviceID)
}

// CoreEvent returns the topic for a Core event type.
//
// Example: graylogic/core/event/device_deleted
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// ImportState returns the retained topic carrying an import device's value.
//
// Example: graylogic/state/influx/meter-total
func (Topics) ImportState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, BridgeName, deviceID)
}

// ImportRequest returns the topic that asks for an immediate import poll.
//
// Example: graylogic/request/influx/meter-total
func (Topics) ImportRequest(deviceID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, BridgeName, deviceID)
}

// Health returns the retained bridge health topic. It doubles as the LWT topic.
//
// Example: graylogic/health/influx
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, BridgeName)
}

// AllCoreDeviceStates matches every canonical device state.
//
// Pattern: graylogic/core/device/+/state
func (Topics) AllCoreDeviceStates() string {
	return fmt.Sprintf("%s/device/+/state", TopicPrefixCore)
}

// AllImportRequests matches poll requests for any import device.
//
// Pattern: graylogic/request/influx/+
func (Topics) AllImportRequests() string {
	return fmt.Sprintf("%s/request/%s/+", TopicPrefix, BridgeName)
}

// DeviceIDFromStateTopic extracts the device id from a Core device state
// topic. ok is false for any other topic.
func DeviceIDFromStateTopic(topic string) (id string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixCore+"/device/")
	if !found {
		return "", false
	}
	id, found = strings.CutSuffix(rest, "/state")
	if !found || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// DeviceIDFromRequestTopic extracts the device id from an import request topic.
func DeviceIDFromRequestTopic(topic string) (id string, ok bool) {
	id, found := strings.CutPrefix(topic, fmt.Sprintf("%s/request/%s/", TopicPrefix, BridgeName))
	if !found || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
