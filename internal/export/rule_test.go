package export

import (
	"errors"
	"math"
	"testing"
)

func ptr(v float64) *float64 { return &v }

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{"numeric field", Rule{DeviceID: "d1", Measurement: "temp", Field: "value"}, false},
		{"string field only", Rule{DeviceID: "d1", Measurement: "state", StringField: "text"}, false},
		{"both fields with bounds", Rule{DeviceID: "d1", Measurement: "temp", Field: "value", StringField: "text", Min: ptr(0), Max: ptr(50)}, false},
		{"equal bounds", Rule{DeviceID: "d1", Measurement: "temp", Field: "value", Min: ptr(5), Max: ptr(5)}, false},
		{"missing device", Rule{Measurement: "temp", Field: "value"}, true},
		{"missing measurement", Rule{DeviceID: "d1", Field: "value"}, true},
		{"no field", Rule{DeviceID: "d1", Measurement: "temp"}, true},
		{"same field names", Rule{DeviceID: "d1", Measurement: "temp", Field: "v", StringField: "v"}, true},
		{"min above max", Rule{DeviceID: "d1", Measurement: "temp", Field: "value", Min: ptr(10), Max: ptr(1)}, true},
		{"nan min", Rule{DeviceID: "d1", Measurement: "temp", Field: "value", Min: ptr(math.NaN())}, true},
		{"nan max", Rule{DeviceID: "d1", Measurement: "temp", Field: "value", Max: ptr(math.NaN())}, true},
		{"empty tag key", Rule{DeviceID: "d1", Measurement: "temp", Field: "value", Tags: map[string]string{" ": "x"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRule) {
					t.Errorf("Validate() = %v, want ErrInvalidRule", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestRule_InRange(t *testing.T) {
	tests := []struct {
		name  string
		min   *float64
		max   *float64
		value float64
		want  bool
	}{
		{"open bounds", nil, nil, 1e9, true},
		{"inside", ptr(0), ptr(50), 21.5, true},
		{"at min", ptr(0), ptr(50), 0, true},
		{"at max", ptr(0), ptr(50), 50, true},
		{"below min", ptr(0), ptr(50), -0.1, false},
		{"above max", ptr(0), ptr(50), 55, false},
		{"min only pass", ptr(10), nil, 100, true},
		{"min only fail", ptr(10), nil, 9, false},
		{"max only pass", nil, ptr(10), -100, true},
		{"max only fail", nil, ptr(10), 11, false},
		{"nan open bounds", nil, nil, math.NaN(), false},
		{"positive infinity open", nil, nil, math.Inf(1), false},
		{"negative infinity open", nil, nil, math.Inf(-1), false},
		{"positive infinity bounded", nil, ptr(10), math.Inf(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Rule{Min: tt.min, Max: tt.max}
			if got := r.InRange(tt.value); got != tt.want {
				t.Errorf("InRange(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestNewRuleSet_CopiesInput(t *testing.T) {
	rules := []Rule{{ID: "r1", DeviceID: "d1", Measurement: "temp", Field: "value", Max: ptr(50), Tags: map[string]string{"site": "home"}}}
	set, err := NewRuleSet(rules)
	if err != nil {
		t.Fatalf("NewRuleSet() error = %v", err)
	}

	*rules[0].Max = 1
	rules[0].Tags["site"] = "office"
	rules[0].Measurement = "changed"

	got := set.ForDevice("d1")
	if len(got) != 1 {
		t.Fatalf("ForDevice() len = %d, want 1", len(got))
	}
	if got[0].Measurement != "temp" || *got[0].Max != 50 || got[0].Tags["site"] != "home" {
		t.Errorf("rule set changed through caller's slice: %+v", got[0])
	}

	got[0].Tags["site"] = "mutated"
	if again := set.ForDevice("d1"); again[0].Tags["site"] != "home" {
		t.Error("ForDevice() returned shared tag map")
	}
}

func TestNewRuleSet_Errors(t *testing.T) {
	_, err := NewRuleSet([]Rule{{ID: "r1", DeviceID: "d1"}})
	if !errors.Is(err, ErrInvalidRule) {
		t.Errorf("invalid rule: err = %v, want ErrInvalidRule", err)
	}

	_, err = NewRuleSet([]Rule{
		{ID: "r1", DeviceID: "d1", Measurement: "a", Field: "v"},
		{ID: "r1", DeviceID: "d2", Measurement: "b", Field: "v"},
	})
	if !errors.Is(err, ErrDuplicateRule) {
		t.Errorf("duplicate id: err = %v, want ErrDuplicateRule", err)
	}
}

func TestRuleSet_Version(t *testing.T) {
	a, _ := NewRuleSet([]Rule{{ID: "r1", DeviceID: "d1", Measurement: "temp", Field: "value"}})
	b, _ := NewRuleSet([]Rule{{ID: "r1", DeviceID: "d1", Measurement: "temp", Field: "value"}})
	c, _ := NewRuleSet([]Rule{{ID: "r1", DeviceID: "d1", Measurement: "temp", Field: "value", Max: ptr(50)}})

	if a.Version() != b.Version() {
		t.Error("identical rule sets should share a version")
	}
	if a.Version() == c.Version() {
		t.Error("different rule sets should differ in version")
	}
	if EmptyRuleSet().Len() != 0 {
		t.Error("EmptyRuleSet() should have no rules")
	}
}

func TestRuleSet_DeviceIDs(t *testing.T) {
	set, _ := NewRuleSet([]Rule{
		{DeviceID: "b", Measurement: "m", Field: "v"},
		{DeviceID: "a", Measurement: "m", Field: "v"},
		{DeviceID: "b", Measurement: "n", StringField: "s"},
	})
	ids := set.DeviceIDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("DeviceIDs() = %v, want [a b]", ids)
	}
	if len(set.ForDevice("b")) != 2 {
		t.Errorf("ForDevice(b) len = %d, want 2", len(set.ForDevice("b")))
	}
}
