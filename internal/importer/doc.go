// Package importer polls the time-series store on behalf of import devices
// and pushes the results back to the host.
//
// A Manager is built once per configuration generation. It runs one poll
// loop per import device; the set of loops is fixed at construction. A loop
// ends on its own when the device's definition disappears, and all loops end
// when the Manager is closed.
package importer
