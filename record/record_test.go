package record

import "testing"

func TestCloneNilReceiverReturnsNil(t *testing.T) {
	var r *Record
	if got := r.Clone(); got != nil {
		t.Errorf("expected nil clone of nil record, got %+v", got)
	}
}

func TestCloneIsIndependentOfSource(t *testing.T) {
	sendAt := int64(1000)
	r := &Record{
		Key:             "k1",
		Count:           3,
		ScheduledSendAt: &sendAt,
		Details:         map[string]any{"ip": "1.2.3.4"},
		StrategyData:    map[string]any{"tokens": 2.5},
	}

	clone := r.Clone()

	clone.Count = 99
	*clone.ScheduledSendAt = 2000
	clone.Details.(map[string]any)["ip"] = "9.9.9.9"
	clone.StrategyData["tokens"] = 0.0

	if r.Count != 3 {
		t.Errorf("mutating clone.Count affected source: got %d", r.Count)
	}
	if *r.ScheduledSendAt != 1000 {
		t.Errorf("mutating clone.ScheduledSendAt affected source: got %d", *r.ScheduledSendAt)
	}
	if r.Details.(map[string]any)["ip"] != "1.2.3.4" {
		t.Errorf("mutating clone.Details affected source: got %+v", r.Details)
	}
	if r.StrategyData["tokens"] != 2.5 {
		t.Errorf("mutating clone.StrategyData affected source: got %+v", r.StrategyData)
	}
}

func TestCloneHandlesNilOptionalFields(t *testing.T) {
	r := &Record{Key: "k1"}
	clone := r.Clone()
	if clone.ScheduledSendAt != nil {
		t.Error("expected nil ScheduledSendAt to remain nil")
	}
	if clone.StrategyData != nil {
		t.Error("expected nil StrategyData to remain nil")
	}
}

func TestCloneDeepCopiesNestedSlicesAndMaps(t *testing.T) {
	r := &Record{
		Key: "k1",
		Details: map[string]any{
			"tags": []any{"a", "b"},
		},
	}
	clone := r.Clone()
	tags := clone.Details.(map[string]any)["tags"].([]any)
	tags[0] = "mutated"

	original := r.Details.(map[string]any)["tags"].([]any)
	if original[0] != "a" {
		t.Errorf("expected source slice unaffected, got %v", original[0])
	}
}
