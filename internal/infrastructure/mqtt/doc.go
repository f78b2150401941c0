// Package mqtt connects the bridge to the Gray Logic MQTT bus.
//
// Topics the bridge uses:
//
//	graylogic/core/device/{id}/state      in   device state from Core
//	graylogic/core/event/device_deleted   in   device removal
//	graylogic/request/influx/{id}         in   poll request for an import device
//	graylogic/state/influx/{id}           out  imported value (retained)
//	graylogic/health/influx               out  bridge health (retained, also the will)
//
// Client wraps paho: it reconnects on its own, replays subscriptions after a
// reconnect and recovers panics in message handlers.
package mqtt
