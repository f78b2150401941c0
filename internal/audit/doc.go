// Package audit records configuration changes made to the bridge.
//
// Every accepted mutation of a persistence rule or import definition, every
// manual import poll and every SIGHUP reload is written to the audit_logs
// table together with the token subject that caused it. The trail answers
// "who stopped exporting the hall thermostat" long after the log files have
// rotated.
package audit
