package export

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
)

// Rule describes how one device's values are persisted.
type Rule struct {
	ID          string            `json:"id"`
	DeviceID    string            `json:"device_id"`
	Measurement string            `json:"measurement"`
	Field       string            `json:"field,omitempty"`
	StringField string            `json:"string_field,omitempty"`
	Min         *float64          `json:"min,omitempty"`
	Max         *float64          `json:"max,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// Validate checks that the rule can produce points.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.DeviceID) == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidRule)
	}
	if strings.TrimSpace(r.Measurement) == "" {
		return fmt.Errorf("%w: measurement is required", ErrInvalidRule)
	}
	if r.Field == "" && r.StringField == "" {
		return fmt.Errorf("%w: field or string_field is required", ErrInvalidRule)
	}
	if r.Field != "" && r.Field == r.StringField {
		return fmt.Errorf("%w: field and string_field must differ", ErrInvalidRule)
	}
	if r.Min != nil && math.IsNaN(*r.Min) {
		return fmt.Errorf("%w: min is NaN", ErrInvalidRule)
	}
	if r.Max != nil && math.IsNaN(*r.Max) {
		return fmt.Errorf("%w: max is NaN", ErrInvalidRule)
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return fmt.Errorf("%w: min %g is greater than max %g", ErrInvalidRule, *r.Min, *r.Max)
	}
	for k := range r.Tags {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("%w: empty tag key", ErrInvalidRule)
		}
	}
	return nil
}

// InRange reports whether v passes the rule's inclusive bounds.
// NaN and infinities never pass; a nil bound is open.
func (r Rule) InRange(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// Clone returns a deep copy of the rule.
func (r Rule) Clone() Rule {
	out := r
	if r.Min != nil {
		v := *r.Min
		out.Min = &v
	}
	if r.Max != nil {
		v := *r.Max
		out.Max = &v
	}
	out.Tags = maps.Clone(r.Tags)
	return out
}

// RuleSet is an immutable, indexed collection of rules.
// A RuleSet is never modified after NewRuleSet returns; a configuration change
// produces a new one.
type RuleSet struct {
	rules    []Rule
	byDevice map[string][]int
	version  string
}

// NewRuleSet validates and copies rules into a new set.
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	s := &RuleSet{
		rules:    make([]Rule, 0, len(rules)),
		byDevice: make(map[string][]int),
	}
	seen := make(map[string]struct{}, len(rules))

	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.ID, err)
		}
		if r.ID != "" {
			if _, dup := seen[r.ID]; dup {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, r.ID)
			}
			seen[r.ID] = struct{}{}
		}
		s.byDevice[r.DeviceID] = append(s.byDevice[r.DeviceID], len(s.rules))
		s.rules = append(s.rules, r.Clone())
	}

	s.version = s.hash()
	return s, nil
}

// EmptyRuleSet returns a set with no rules.
func EmptyRuleSet() *RuleSet {
	s, _ := NewRuleSet(nil) //nolint:errcheck // nil input cannot fail validation
	return s
}

// Len returns the number of rules.
func (s *RuleSet) Len() int { return len(s.rules) }

// Version returns a content hash. Two sets with the same rules in the same
// order have the same version.
func (s *RuleSet) Version() string { return s.version }

// Rules returns copies of all rules.
func (s *RuleSet) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.Clone()
	}
	return out
}

// ForDevice returns copies of the rules for deviceID.
func (s *RuleSet) ForDevice(deviceID string) []Rule {
	idx := s.byDevice[deviceID]
	if len(idx) == 0 {
		return nil
	}
	out := make([]Rule, len(idx))
	for i, j := range idx {
		out[i] = s.rules[j].Clone()
	}
	return out
}

// DeviceIDs returns the sorted ids of devices with at least one rule.
func (s *RuleSet) DeviceIDs() []string {
	ids := slices.Collect(maps.Keys(s.byDevice))
	slices.Sort(ids)
	return ids
}

func (s *RuleSet) hash() string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, r := range s.rules {
		// encoding/json sorts map keys, so tag order does not affect the hash.
		_ = enc.Encode(r) //nolint:errcheck // hash.Hash writes never fail
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
