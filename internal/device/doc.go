// Package device is the bridge's catalogue of Gray Logic Core devices.
//
// Core publishes device state over MQTT; the host layer feeds every message
// into the Registry, which persists the latest value and descriptive fields
// (name, room, area) in SQLite and keeps an in-memory cache for lookups.
// Devices whose values are pulled from the time-series store are marked
// with the configured import tag.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────┐
//	│                     Device Registry                      │
//	│                                                          │
//	│  ┌──────────────────┐    ┌──────────────────────────┐    │
//	│  │     Registry     │───▶│ Repository / TagRepository│   │
//	│  │ • RWMutex cache  │    │ • devices, device_tags    │   │
//	│  │ • deep copies    │    │ • parameterised SQL       │   │
//	│  └──────────────────┘    └──────────────────────────┘    │
//	└──────────────────────────────────────────────────────────┘
//
// # Usage
//
//	registry := device.NewRegistry(
//	    device.NewSQLiteRepository(db.DB),
//	    device.NewSQLiteTagRepository(db.DB),
//	)
//	registry.SetLogger(log)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	// From the MQTT state handler
//	dev, err := registry.ObserveState(ctx, device.StateUpdate{DeviceID: "meter-1", Value: &v})
//
// # Legacy import devices
//
// Older installations marked import devices with the config flag
// "influx_import". MigrateLegacyImports converts them to the tag and
// clears the flag.
//
// # Thread Safety
//
// The Registry is safe for concurrent use.
package device
