// Package host connects the bridge to Gray Logic Core over MQTT.
//
// MQTTHost is the bridge's view of the host controller. It mirrors Core
// device state into the device catalogue, forwards tracked value changes to
// the export pipeline, relays device deletions and poll requests, and
// publishes imported values back to Core as retained state.
//
// The pipeline sits behind the Sink interface so the host never holds a
// reference to a particular pipeline generation.
package host
