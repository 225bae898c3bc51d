package digest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fluxline/crm-digest/pkg/client"
)

type fakeCRM struct {
	mu sync.Mutex

	activitiesByFilter map[int64][]client.Activity
	dealsByFilter      map[int64][]client.Deal
	deals              map[int64]client.Deal
	persons            map[int64]client.Person
	orgs               map[int64]client.Organization
	stages             []client.Stage

	listErr     error
	bulkErr     error
	stagesErr   error
	stagesCalls int
	bulkCalls   int
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		activitiesByFilter: map[int64][]client.Activity{},
		dealsByFilter:      map[int64][]client.Deal{},
		deals:              map[int64]client.Deal{},
		persons:            map[int64]client.Person{},
		orgs:               map[int64]client.Organization{},
	}
}

func (f *fakeCRM) ListActivitiesByFilter(_ context.Context, filterID int64, cursor string, _ int) ([]client.Activity, string, error) {
	if f.listErr != nil {
		return nil, "", f.listErr
	}
	if cursor != "" {
		return nil, "", nil
	}
	return f.activitiesByFilter[filterID], "", nil
}

func (f *fakeCRM) ListDealsByFilter(_ context.Context, filterID int64, cursor string, _ int) ([]client.Deal, string, error) {
	if f.listErr != nil {
		return nil, "", f.listErr
	}
	if cursor != "" {
		return nil, "", nil
	}
	return f.dealsByFilter[filterID], "", nil
}

func (f *fakeCRM) DealsByIDs(_ context.Context, ids []int64) ([]client.Deal, error) {
	f.mu.Lock()
	f.bulkCalls++
	f.mu.Unlock()
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	var out []client.Deal
	for _, id := range ids {
		if d, ok := f.deals[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeCRM) PersonsByIDs(_ context.Context, ids []int64) ([]client.Person, error) {
	f.mu.Lock()
	f.bulkCalls++
	f.mu.Unlock()
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	var out []client.Person
	for _, id := range ids {
		if p, ok := f.persons[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCRM) OrganizationsByIDs(_ context.Context, ids []int64) ([]client.Organization, error) {
	f.mu.Lock()
	f.bulkCalls++
	f.mu.Unlock()
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	var out []client.Organization
	for _, id := range ids {
		if o, ok := f.orgs[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeCRM) ListStages(context.Context) ([]client.Stage, error) {
	f.mu.Lock()
	f.stagesCalls++
	f.mu.Unlock()
	if f.stagesErr != nil {
		return nil, f.stagesErr
	}
	return f.stages, nil
}

// seededCRM returns a source with one overdue activity referencing a
// deal and a person, one due-today activity, and one stuck deal.
func seededCRM() *fakeCRM {
	f := newFakeCRM()

	f.activitiesByFilter[1] = []client.Activity{{
		ID:      777,
		Subject: "Call about renewal",
		Type:    "call",
		DueDate: "2026-02-14",
		DueTime: "09:00",
		Deal:    client.Ref{ID: 456},
		Person:  client.Ref{ID: 10},
	}}
	f.activitiesByFilter[2] = []client.Activity{{
		ID:      778,
		Subject: "Demo",
		Type:    "meeting",
		DueDate: "2026-02-16",
		Org:     client.Ref{ID: 30},
	}}

	count := 4
	f.dealsByFilter[3] = []client.Deal{{
		ID:                    456,
		Title:                 "Acme renewal",
		StageID:               3,
		Owner:                 client.Ref{ID: 5, Name: "Sam Seller"},
		Person:                client.Ref{ID: 10},
		UndoneActivitiesCount: &count,
	}}

	f.deals[456] = client.Deal{ID: 456, Title: "Acme renewal", StageID: 3}
	f.persons[10] = client.Person{ID: 10, Name: "Maria Schmidt", Email: []client.LabeledValue{
		{Label: "work", Value: "maria@example.com", Primary: true},
	}}
	f.orgs[30] = client.Organization{ID: 30, Name: "Acme GmbH"}

	f.stages = []client.Stage{
		{ID: 3, Name: "Proposal Sent", OrderNr: 3, PipelineID: 1},
	}

	return f
}

func defaultRequest() Request {
	return Request{
		OverdueFilterID:     1,
		DueTodayFilterID:    2,
		MissingNextFilterID: 3,
		Timezone:            "UTC",
		Now:                 time.Date(2026, 2, 16, 8, 0, 0, 0, time.UTC),
		IncludeRelated:      true,
	}
}

func TestBuildDigest(t *testing.T) {
	source := seededCRM()
	p := NewPipeline(source, DefaultConfig())

	d, err := p.Build(context.Background(), defaultRequest())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if d.Timezone != "UTC" {
		t.Errorf("Timezone = %q", d.Timezone)
	}
	if _, err := time.Parse(time.RFC3339, d.GeneratedAt); err != nil {
		t.Errorf("GeneratedAt = %q is not RFC 3339: %v", d.GeneratedAt, err)
	}

	if d.Stats.OverdueCount != 1 || d.Stats.DueTodayCount != 1 || d.Stats.MissingNextActionCount != 1 {
		t.Errorf("Stats = %+v, want 1/1/1", d.Stats)
	}
	if d.Source.FilterIDs.Overdue != 1 || d.Source.FilterIDs.MissingNextAction != 3 {
		t.Errorf("Source = %+v", d.Source)
	}

	overdue := d.Sections.Overdue[0]
	if overdue.DaysOverdue == nil || *overdue.DaysOverdue != 2 {
		t.Errorf("DaysOverdue = %v, want 2", overdue.DaysOverdue)
	}
	if overdue.Deal == nil {
		t.Fatal("overdue activity should carry its deal sub-object")
	}
	if overdue.Deal.Title != "Acme renewal" {
		t.Errorf("Deal.Title = %q", overdue.Deal.Title)
	}
	if overdue.Deal.StageID != 3 || overdue.Deal.StageName != "Proposal Sent" {
		t.Errorf("Deal stage = %d/%q, want 3/Proposal Sent", overdue.Deal.StageID, overdue.Deal.StageName)
	}
	if overdue.Person == nil || overdue.Person.Name != "Maria Schmidt" {
		t.Fatalf("Person = %+v", overdue.Person)
	}
	if overdue.Person.Email != "maria@example.com" {
		t.Errorf("Person.Email = %q", overdue.Person.Email)
	}

	dueToday := d.Sections.DueToday[0]
	if dueToday.DaysOverdue != nil {
		t.Errorf("due-today DaysOverdue = %v, want absent", *dueToday.DaysOverdue)
	}
	if dueToday.Organization == nil || dueToday.Organization.Name != "Acme GmbH" {
		t.Errorf("Organization = %+v", dueToday.Organization)
	}

	deal := d.Sections.MissingNextAction[0]
	if deal.StageName != "Proposal Sent" {
		t.Errorf("deal StageName = %q", deal.StageName)
	}
	if deal.OwnerName == nil || *deal.OwnerName != "Sam Seller" {
		t.Errorf("OwnerName = %v", deal.OwnerName)
	}
	if deal.UndoneActivitiesCount == nil || *deal.UndoneActivitiesCount != 4 {
		t.Errorf("UndoneActivitiesCount = %v", deal.UndoneActivitiesCount)
	}
	if deal.NextActivityID != nil {
		t.Errorf("NextActivityID = %v, want nil pass-through", deal.NextActivityID)
	}
	if deal.Person == nil || deal.Person.Name != "Maria Schmidt" {
		t.Errorf("deal Person = %+v", deal.Person)
	}
}

func TestBuildDigestOutputShape(t *testing.T) {
	p := NewPipeline(seededCRM(), DefaultConfig())

	d, err := p.Build(context.Background(), defaultRequest())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	out := string(data)

	// Absent pass-through metadata serializes as explicit null, absent
	// enrichments disappear entirely.
	if !strings.Contains(out, `"next_activity_id":null`) {
		t.Errorf("output should carry explicit null for absent metadata: %s", out)
	}
	if strings.Contains(out, `"days_overdue":0`) {
		t.Error("a zero days_overdue must never appear")
	}
	for _, key := range []string{`"generated_at"`, `"sections"`, `"stats"`, `"source"`} {
		if !strings.Contains(out, key) {
			t.Errorf("output missing %s", key)
		}
	}
}

func TestBuildSectionLimits(t *testing.T) {
	source := seededCRM()
	source.activitiesByFilter[1] = append(source.activitiesByFilter[1], client.Activity{
		ID:      779,
		Subject: "Send follow-up",
		Type:    "email",
		DueDate: "2026-02-13",
	})
	p := NewPipeline(source, DefaultConfig())

	// Unset limits fall back to the default cap instead of truncating
	// everything to nothing.
	d, err := p.Build(context.Background(), defaultRequest())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if d.Stats.OverdueCount != 2 {
		t.Errorf("OverdueCount with unset limit = %d, want 2", d.Stats.OverdueCount)
	}

	req := defaultRequest()
	req.OverdueLimit = 1
	d, err = p.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if d.Stats.OverdueCount != 1 {
		t.Errorf("OverdueCount with limit 1 = %d, want 1", d.Stats.OverdueCount)
	}
}

func TestBuildPrimaryFetchFailureIsFatal(t *testing.T) {
	source := seededCRM()
	source.listErr = errors.New("upstream exploded")
	p := NewPipeline(source, DefaultConfig())

	_, err := p.Build(context.Background(), defaultRequest())
	if err == nil {
		t.Fatal("a primary fetch failure must fail the build")
	}
	if !strings.Contains(err.Error(), "filter") {
		t.Errorf("error = %v, should name the failing filter", err)
	}
}

func TestBuildBulkFailureIsAbsorbed(t *testing.T) {
	source := seededCRM()
	source.bulkErr = errors.New("bulk endpoint down")
	p := NewPipeline(source, DefaultConfig())

	d, err := p.Build(context.Background(), defaultRequest())
	if err != nil {
		t.Fatalf("Build() error = %v, bulk failures must be absorbed", err)
	}

	// Enrichment degrades: no data means placeholder names.
	overdue := d.Sections.Overdue[0]
	if overdue.Person == nil || overdue.Person.Name != "Unknown" {
		t.Errorf("Person = %+v, want Unknown fallback", overdue.Person)
	}
	if overdue.Person != nil && overdue.Person.Email != "" {
		t.Errorf("Email = %q, want empty without enrichment", overdue.Person.Email)
	}
	if overdue.Deal == nil || overdue.Deal.ID != 456 {
		t.Errorf("Deal = %+v, the reference id must survive", overdue.Deal)
	}
}

func TestBuildStageFetchFailureDegradesToPlaceholders(t *testing.T) {
	source := seededCRM()
	source.stagesErr = errors.New("stages endpoint down")
	p := NewPipeline(source, DefaultConfig())

	d, err := p.Build(context.Background(), defaultRequest())
	if err != nil {
		t.Fatalf("Build() error = %v, stage metadata is non-fatal", err)
	}

	if got := d.Sections.MissingNextAction[0].StageName; got != "Stage 3" {
		t.Errorf("StageName = %q, want placeholder Stage 3", got)
	}
}

func TestBuildWithoutRelatedSkipsBulkFetches(t *testing.T) {
	source := seededCRM()
	p := NewPipeline(source, DefaultConfig())

	req := defaultRequest()
	req.IncludeRelated = false

	d, err := p.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if source.bulkCalls != 0 {
		t.Errorf("bulk calls = %d, want 0", source.bulkCalls)
	}
	// Names that only exist in bulk data fall back.
	if got := d.Sections.Overdue[0].Person.Name; got != "Unknown" {
		t.Errorf("Person.Name = %q, want Unknown", got)
	}
}

func TestBuildReusesCachedStageTable(t *testing.T) {
	source := seededCRM()
	p := NewPipeline(source, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := p.Build(ctx, defaultRequest()); err != nil {
			t.Fatalf("Build() error = %v", err)
		}
	}

	if source.stagesCalls != 1 {
		t.Errorf("stage fetches = %d, want 1 within the TTL", source.stagesCalls)
	}
}

func TestBuildInvalidTimezone(t *testing.T) {
	p := NewPipeline(seededCRM(), DefaultConfig())

	req := defaultRequest()
	req.Timezone = "Mars/Olympus_Mons"

	if _, err := p.Build(context.Background(), req); err == nil {
		t.Error("an unknown timezone should fail the build")
	}
}

func TestBuildEmptyTimezoneDefaultsToUTC(t *testing.T) {
	p := NewPipeline(seededCRM(), DefaultConfig())

	req := defaultRequest()
	req.Timezone = ""

	d, err := p.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if d.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", d.Timezone)
	}
}

func TestBuildDealTitleFallsBackToEmpty(t *testing.T) {
	source := newFakeCRM()
	source.activitiesByFilter[1] = []client.Activity{{
		ID:      1,
		Subject: "Orphan",
		DueDate: "2026-02-10",
		Deal:    client.Ref{ID: 999},
	}}
	p := NewPipeline(source, DefaultConfig())

	d, err := p.Build(context.Background(), defaultRequest())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	deal := d.Sections.Overdue[0].Deal
	if deal == nil {
		t.Fatal("deal sub-object should exist for a referenced deal")
	}
	if deal.Title != "" {
		t.Errorf("Title = %q, deal titles fall back to empty, not Unknown", deal.Title)
	}
}
