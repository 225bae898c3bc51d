// Package digest builds the consolidated, enriched digest document out
// of three independently filtered CRM result sets.
package digest

// Digest is the final consolidated output document.
type Digest struct {
	// GeneratedAt is an ISO-8601 timestamp with UTC offset, expressed
	// in the requested timezone.
	GeneratedAt string   `json:"generated_at"`
	Timezone    string   `json:"timezone"`
	Sections    Sections `json:"sections"`
	Stats       Stats    `json:"stats"`
	Source      Source   `json:"source"`
}

// Sections holds the three output sequences in upstream-returned order.
type Sections struct {
	Overdue           []ActivityRecord `json:"overdue"`
	DueToday          []ActivityRecord `json:"due_today"`
	MissingNextAction []DealRecord     `json:"missing_next_action"`
}

// Stats carries the derived counts, each equal to its section's length.
type Stats struct {
	OverdueCount           int `json:"overdue_count"`
	DueTodayCount          int `json:"due_today_count"`
	MissingNextActionCount int `json:"missing_next_action_count"`
}

// Source echoes the resolved filter identifiers for traceability.
type Source struct {
	FilterIDs FilterIDs `json:"filter_ids"`
}

// FilterIDs are the three resolved numeric filter identifiers.
type FilterIDs struct {
	Overdue           int64 `json:"overdue"`
	DueToday          int64 `json:"due_today"`
	MissingNextAction int64 `json:"missing_next_action"`
}

// ActivityRecord is one enriched activity.
type ActivityRecord struct {
	ID      int64  `json:"id"`
	Subject string `json:"subject"`
	Type    string `json:"type"`
	DueDate string `json:"due_date"`
	DueTime string `json:"due_time,omitempty"`

	// DaysOverdue is the count of whole calendar days the activity is
	// overdue. Entirely absent (not zero) unless the due day is
	// strictly earlier than the reference day.
	DaysOverdue *int `json:"days_overdue,omitempty"`

	// Reference sub-objects are omitted entirely when the source
	// record carries no identifier for them.
	Deal         *DealRef   `json:"deal,omitempty"`
	Person       *PersonRef `json:"person,omitempty"`
	Organization *OrgRef    `json:"organization,omitempty"`
}

// DealRef is the deal sub-object of an activity record.
type DealRef struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	StageID   int64  `json:"stage_id,omitempty"`
	StageName string `json:"stage_name,omitempty"`
}

// PersonRef is the person sub-object of an output record.
type PersonRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// OrgRef is the organization sub-object of an output record.
type OrgRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DealRecord is one enriched deal from the missing-next-action section.
// The pass-through metadata fields are verbatim upstream values with
// null substituted for any absent optional.
type DealRecord struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	StageID   int64  `json:"stage_id"`
	StageName string `json:"stage_name"`

	OwnerName             *string `json:"owner_name"`
	UndoneActivitiesCount *int    `json:"undone_activities_count"`
	NextActivityID        *int64  `json:"next_activity_id"`
	LastIncomingMailTime  *string `json:"last_incoming_mail_time"`
	LastOutgoingMailTime  *string `json:"last_outgoing_mail_time"`

	Person       *PersonRef `json:"person,omitempty"`
	Organization *OrgRef    `json:"organization,omitempty"`
}
