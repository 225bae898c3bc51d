package client

import (
	"encoding/json"
	"fmt"
)

// Ref is a reference to a related entity as returned by the CRM API.
//
// The upstream representation is inconsistent: a relationship field is
// sometimes a bare numeric identifier and sometimes an object carrying
// the identifier plus a display name. Ref reconciles both into one
// shape so no other component needs to special-case it. An ID of 0
// means the reference is absent.
type Ref struct {
	ID   int64
	Name string
}

// IsZero reports whether the reference is absent.
func (r Ref) IsZero() bool {
	return r.ID == 0
}

// UnmarshalJSON accepts null, a bare number, or an object exposing an
// id-like field ("value" or "id") and optionally a name-like field
// ("name" or "title").
func (r *Ref) UnmarshalJSON(data []byte) error {
	*r = Ref{}

	if string(data) == "null" {
		return nil
	}

	// Bare numeric identifier, no display name.
	var id int64
	if err := json.Unmarshal(data, &id); err == nil {
		r.ID = id
		return nil
	}

	var obj struct {
		Value *int64  `json:"value"`
		ID    *int64  `json:"id"`
		Name  *string `json:"name"`
		Title *string `json:"title"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode reference value: %w", err)
	}

	switch {
	case obj.Value != nil:
		r.ID = *obj.Value
	case obj.ID != nil:
		r.ID = *obj.ID
	}
	switch {
	case obj.Name != nil:
		r.Name = *obj.Name
	case obj.Title != nil:
		r.Name = *obj.Title
	}

	return nil
}

// MarshalJSON writes the bare identifier, or null when absent.
func (r Ref) MarshalJSON() ([]byte, error) {
	if r.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(r.ID)
}

// LabeledValue is a labeled contact value ({label, value, primary}),
// the shape the CRM uses for emails and phone numbers.
type LabeledValue struct {
	Label   string `json:"label"`
	Value   string `json:"value"`
	Primary bool   `json:"primary"`
}

// Activity is an upstream activity record.
type Activity struct {
	ID      int64  `json:"id"`
	Subject string `json:"subject"`
	Type    string `json:"type"`
	Done    bool   `json:"done"`
	DueDate string `json:"due_date"`
	DueTime string `json:"due_time"`

	Deal   Ref `json:"deal_id"`
	Person Ref `json:"person_id"`
	Org    Ref `json:"org_id"`

	// Denormalized names, present on legacy endpoint responses.
	DealTitle  string `json:"deal_title"`
	PersonName string `json:"person_name"`
	OrgName    string `json:"org_name"`

	OwnerID Ref `json:"user_id"`
}

// Deal is an upstream deal record.
type Deal struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Status  string `json:"status"`
	StageID int64  `json:"stage_id"`

	Person Ref `json:"person_id"`
	Org    Ref `json:"org_id"`
	Owner  Ref `json:"user_id"`

	NextActivityID        *int64  `json:"next_activity_id"`
	UndoneActivitiesCount *int    `json:"undone_activities_count"`
	LastIncomingMailTime  *string `json:"last_incoming_mail_time"`
	LastOutgoingMailTime  *string `json:"last_outgoing_mail_time"`

	// Denormalized names, present on legacy endpoint responses.
	PersonName string `json:"person_name"`
	OrgName    string `json:"org_name"`
}

// Person is an upstream person record.
type Person struct {
	ID    int64          `json:"id"`
	Name  string         `json:"name"`
	Email []LabeledValue `json:"email"`
	Phone []LabeledValue `json:"phone"`
	Org   Ref            `json:"org_id"`
}

// PrimaryEmail returns the primary email address, falling back to the
// first listed address, or "" when the person has none.
func (p Person) PrimaryEmail() string {
	for _, e := range p.Email {
		if e.Primary {
			return e.Value
		}
	}
	if len(p.Email) > 0 {
		return p.Email[0].Value
	}
	return ""
}

// Organization is an upstream organization record.
type Organization struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Stage is a pipeline stage definition.
type Stage struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	OrderNr    int    `json:"order_nr"`
	PipelineID int64  `json:"pipeline_id"`
}

// Field is a custom or standard field definition for one object type.
type Field struct {
	ID        int64  `json:"id"`
	Key       string `json:"key"`
	Name      string `json:"name"`
	FieldType string `json:"field_type"`
}

// Filter is a saved server-side filter.
type Filter struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// apiEnvelope is the common response wrapper of the CRM API.
type apiEnvelope struct {
	Success        bool            `json:"success"`
	Data           json.RawMessage `json:"data"`
	Error          string          `json:"error"`
	AdditionalData *additionalData `json:"additional_data"`
}

type additionalData struct {
	// NextCursor is the opaque continuation token of versioned endpoints.
	NextCursor *string `json:"next_cursor"`

	// Pagination is the offset-style continuation block of legacy endpoints.
	Pagination *legacyPagination `json:"pagination"`
}

type legacyPagination struct {
	Start                 int  `json:"start"`
	Limit                 int  `json:"limit"`
	MoreItemsInCollection bool `json:"more_items_in_collection"`
	NextStart             *int `json:"next_start"`
}
