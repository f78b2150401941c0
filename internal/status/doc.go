// Package status aggregates export and import outcomes into the bridge's
// health state.
//
// The Calculator is the single owner of the health state. Mutations are
// serialised by one mutex; reads go through an atomically replaced snapshot so
// they never block a writer.
//
// # Levels
//
//   - LevelOK: no errored devices and the store is reachable
//   - LevelWarning: at least one errored device, store reachable
//   - LevelCritical: the store was reported unreachable; stays until
//     ConnectivityRestored is called
//
// Signals that do not change the level or the errored set are no-ops: they
// neither log nor notify subscribers.
package status
