// Package pipeline wires the export and import halves of the bridge to one
// configuration snapshot and hot-swaps them when the snapshot changes.
//
// A Generation owns one Collector, one import Manager and the store clients
// they use. The Supervisor keeps the current Generation behind an
// atomic.Pointer; a rebuild constructs a complete new Generation, swaps the
// pointer, closes the old one and tells the status calculator the
// configuration changed. Nothing in a running Generation is ever mutated.
//
//	settings change ─┐
//	import device    ├─▶ Supervisor.Rebuild ─▶ new Generation ─▶ swap ─▶ close old
//	deleted         ─┘
package pipeline
