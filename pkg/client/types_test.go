package client

import (
	"encoding/json"
	"testing"
)

func TestRefUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		json string
		want Ref
	}{
		{"null", `null`, Ref{}},
		{"bare number", `123`, Ref{ID: 123}},
		{"object with value and name", `{"value": 456, "name": "Acme GmbH"}`, Ref{ID: 456, Name: "Acme GmbH"}},
		{"object with id", `{"id": 789}`, Ref{ID: 789}},
		{"object with title", `{"value": 12, "title": "Big Deal"}`, Ref{ID: 12, Name: "Big Deal"}},
		{"empty object", `{}`, Ref{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Ref
			if err := json.Unmarshal([]byte(tt.json), &got); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.json, err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRefUnmarshalResetsPreviousValue(t *testing.T) {
	r := Ref{ID: 5, Name: "stale"}
	if err := json.Unmarshal([]byte(`null`), &r); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if !r.IsZero() || r.Name != "" {
		t.Errorf("got %+v, want zero", r)
	}
}

func TestRefMarshal(t *testing.T) {
	present, err := json.Marshal(Ref{ID: 42, Name: "ignored"})
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	if string(present) != "42" {
		t.Errorf("present ref = %s, want 42", present)
	}

	absent, err := json.Marshal(Ref{})
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	if string(absent) != "null" {
		t.Errorf("absent ref = %s, want null", absent)
	}
}

func TestActivityDecodesBothReferenceShapes(t *testing.T) {
	// Versioned endpoints return bare ids, legacy endpoints return
	// objects; both must land in the same struct.
	v2 := `{"id": 1, "subject": "Call", "deal_id": 55, "person_id": 10}`
	v1 := `{"id": 1, "subject": "Call", "deal_id": {"value": 55, "name": "Acme"}, "person_id": {"value": 10, "name": "Maria"}}`

	var fromV2, fromV1 Activity
	if err := json.Unmarshal([]byte(v2), &fromV2); err != nil {
		t.Fatalf("decode v2 shape: %v", err)
	}
	if err := json.Unmarshal([]byte(v1), &fromV1); err != nil {
		t.Fatalf("decode v1 shape: %v", err)
	}

	if fromV2.Deal.ID != 55 || fromV1.Deal.ID != 55 {
		t.Errorf("deal ids = %d / %d, want 55", fromV2.Deal.ID, fromV1.Deal.ID)
	}
	if fromV1.Deal.Name != "Acme" {
		t.Errorf("deal name = %q, want Acme", fromV1.Deal.Name)
	}
	if fromV2.Deal.Name != "" {
		t.Errorf("bare id should carry no name, got %q", fromV2.Deal.Name)
	}
}

func TestPrimaryEmail(t *testing.T) {
	tests := []struct {
		name   string
		person Person
		want   string
	}{
		{
			"primary wins over order",
			Person{Email: []LabeledValue{
				{Label: "work", Value: "second@example.com"},
				{Label: "home", Value: "first@example.com", Primary: true},
			}},
			"first@example.com",
		},
		{
			"first listed when none primary",
			Person{Email: []LabeledValue{
				{Label: "work", Value: "only@example.com"},
				{Label: "home", Value: "other@example.com"},
			}},
			"only@example.com",
		},
		{"no addresses", Person{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.person.PrimaryEmail(); got != tt.want {
				t.Errorf("PrimaryEmail() = %q, want %q", got, tt.want)
			}
		})
	}
}
