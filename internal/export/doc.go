// Package export turns device value changes into time-series points and
// delivers them to the store.
//
// A Collector is built for one immutable RuleSet. Producers call Record from
// any goroutine; a single drain goroutine takes points from a bounded Queue
// and writes them one at a time. When the store is unreachable the point is
// put back at the head of the queue and the drain loop pauses for the retry
// cool-down, so delivery is at-least-once and in order. A point the store
// rejects while reachable is dropped.
//
// Rule validation belongs to the configuration boundary (see Rule.Validate
// and NewRuleSet); the Collector assumes its rules are valid.
package export
