package digest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fluxline/crm-digest/pkg/cache"
	"github.com/fluxline/crm-digest/pkg/client"
	"github.com/fluxline/crm-digest/pkg/logging"
	"github.com/fluxline/crm-digest/pkg/pagination"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// CRMSource is the narrow upstream surface the pipeline consumes.
// *client.Client satisfies it; tests substitute fakes.
type CRMSource interface {
	ListActivitiesByFilter(ctx context.Context, filterID int64, cursor string, pageSize int) ([]client.Activity, string, error)
	ListDealsByFilter(ctx context.Context, filterID int64, cursor string, pageSize int) ([]client.Deal, string, error)
	DealsByIDs(ctx context.Context, ids []int64) ([]client.Deal, error)
	PersonsByIDs(ctx context.Context, ids []int64) ([]client.Person, error)
	OrganizationsByIDs(ctx context.Context, ids []int64) ([]client.Organization, error)
	ListStages(ctx context.Context) ([]client.Stage, error)
}

// DefaultSectionLimit is the per-section record cap applied when a
// request leaves a limit unset.
const DefaultSectionLimit = 100

// Config holds pipeline configuration.
type Config struct {
	// StageCacheTTL bounds how long the stage-name lookup table is
	// reused before it is re-fetched.
	StageCacheTTL time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		StageCacheTTL: 5 * time.Minute,
	}
}

// Pipeline orchestrates the three filtered fetches, the bulk reference
// enrichment, and the final digest assembly.
type Pipeline struct {
	source     CRMSource
	stageCache *cache.TTLCache[map[int64]string]
	config     Config
	logger     zerolog.Logger
}

// NewPipeline creates a pipeline over the given upstream source.
func NewPipeline(source CRMSource, cfg Config) *Pipeline {
	if cfg.StageCacheTTL <= 0 {
		cfg.StageCacheTTL = DefaultConfig().StageCacheTTL
	}
	return &Pipeline{
		source:     source,
		stageCache: cache.New[map[int64]string](),
		config:     cfg,
		logger:     logging.NewLogger("digest"),
	}
}

// Request parameterizes one digest build.
type Request struct {
	OverdueFilterID     int64
	DueTodayFilterID    int64
	MissingNextFilterID int64

	// Limits cap the record count of each section. Zero or negative
	// means DefaultSectionLimit.
	OverdueLimit     int
	DueTodayLimit    int
	MissingNextLimit int

	// Timezone is an IANA zone name; empty means UTC.
	Timezone string

	// Now overrides the current instant for deterministic builds.
	// Zero means wall clock.
	Now time.Time

	// IncludeRelated controls whether cross-referenced person,
	// organization, and deal records are bulk-fetched at all. When
	// false every enrichment degrades to "no data found".
	IncludeRelated bool
}

// Build produces the digest. A failure of any of the three primary
// filtered fetches fails the whole build; bulk-enrichment batch
// failures are absorbed and only thin out the enrichment.
func (p *Pipeline) Build(ctx context.Context, req Request) (*Digest, error) {
	loc := time.UTC
	tzName := "UTC"
	if req.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(req.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", req.Timezone, err)
		}
		tzName = req.Timezone
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(loc)

	overdueLimit := sectionLimit(req.OverdueLimit)
	dueTodayLimit := sectionLimit(req.DueTodayLimit)
	missingNextLimit := sectionLimit(req.MissingNextLimit)

	stages := p.stageTable(ctx)

	// The three primary fetches run concurrently and are jointly
	// awaited; any failure aborts the build.
	var overdue, dueToday []client.Activity
	var missingNext []client.Deal

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		overdue, err = pagination.FetchAll(gctx, overdueLimit, p.activityPager(req.OverdueFilterID))
		if err != nil {
			return fmt.Errorf("fetch overdue activities (filter %d): %w", req.OverdueFilterID, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		dueToday, err = pagination.FetchAll(gctx, dueTodayLimit, p.activityPager(req.DueTodayFilterID))
		if err != nil {
			return fmt.Errorf("fetch due-today activities (filter %d): %w", req.DueTodayFilterID, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		missingNext, err = pagination.FetchAll(gctx, missingNextLimit, p.dealPager(req.MissingNextFilterID))
		if err != nil {
			return fmt.Errorf("fetch deals missing next action (filter %d): %w", req.MissingNextFilterID, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	refs := newRefData()
	if req.IncludeRelated {
		refs = p.fetchRelated(ctx, overdue, dueToday, missingNext)
	}

	overdueRecords := make([]ActivityRecord, len(overdue))
	for i, a := range overdue {
		overdueRecords[i] = p.mapActivity(a, stages, refs, now, loc)
	}
	dueTodayRecords := make([]ActivityRecord, len(dueToday))
	for i, a := range dueToday {
		dueTodayRecords[i] = p.mapActivity(a, stages, refs, now, loc)
	}
	dealRecords := make([]DealRecord, len(missingNext))
	for i, d := range missingNext {
		dealRecords[i] = p.mapDeal(d, stages, refs)
	}

	p.logger.Info().
		Int("overdue", len(overdueRecords)).
		Int("due_today", len(dueTodayRecords)).
		Int("missing_next_action", len(dealRecords)).
		Bool("include_related", req.IncludeRelated).
		Msg("Digest built")

	return &Digest{
		GeneratedAt: now.Format(time.RFC3339),
		Timezone:    tzName,
		Sections: Sections{
			Overdue:           overdueRecords,
			DueToday:          dueTodayRecords,
			MissingNextAction: dealRecords,
		},
		Stats: Stats{
			OverdueCount:           len(overdueRecords),
			DueTodayCount:          len(dueTodayRecords),
			MissingNextActionCount: len(dealRecords),
		},
		Source: Source{
			FilterIDs: FilterIDs{
				Overdue:           req.OverdueFilterID,
				DueToday:          req.DueTodayFilterID,
				MissingNextAction: req.MissingNextFilterID,
			},
		},
	}, nil
}

// sectionLimit substitutes the default cap for unset limits.
func sectionLimit(n int) int {
	if n <= 0 {
		return DefaultSectionLimit
	}
	return n
}

func (p *Pipeline) activityPager(filterID int64) pagination.PageFunc[client.Activity] {
	return func(ctx context.Context, cursor string, pageSize int) ([]client.Activity, string, error) {
		return p.source.ListActivitiesByFilter(ctx, filterID, cursor, pageSize)
	}
}

func (p *Pipeline) dealPager(filterID int64) pagination.PageFunc[client.Deal] {
	return func(ctx context.Context, cursor string, pageSize int) ([]client.Deal, string, error) {
		return p.source.ListDealsByFilter(ctx, filterID, cursor, pageSize)
	}
}

// stageTable returns the id-to-name stage lookup table, reusing a
// cached copy within the configured TTL. A metadata failure degrades
// to placeholder stage names rather than failing the build.
func (p *Pipeline) stageTable(ctx context.Context) map[int64]string {
	const key = "stages"

	if table, ok := p.stageCache.Get(key); ok {
		return table
	}

	stages, err := p.source.ListStages(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Stage metadata fetch failed, using placeholder names")
		return map[int64]string{}
	}

	table := make(map[int64]string, len(stages))
	for _, s := range stages {
		table[s.ID] = s.Name
	}
	p.stageCache.Set(key, table, p.config.StageCacheTTL)

	p.logger.Debug().Int("stages", len(table)).Msg("Stage table refreshed")
	return table
}

// refData holds the bulk-fetched reference entities keyed by id.
type refData struct {
	persons map[int64]client.Person
	orgs    map[int64]client.Organization
	deals   map[int64]client.Deal
}

func newRefData() refData {
	return refData{
		persons: map[int64]client.Person{},
		orgs:    map[int64]client.Organization{},
		deals:   map[int64]client.Deal{},
	}
}

// fetchRelated collects the referenced person, organization, and deal
// identifiers from the fetched records and bulk-resolves each set
// concurrently. Batch failures inside a bulk fetch are absorbed; the
// affected entities are simply missing from the maps.
func (p *Pipeline) fetchRelated(ctx context.Context, overdue, dueToday []client.Activity, deals []client.Deal) refData {
	personIDs := map[int64]struct{}{}
	orgIDs := map[int64]struct{}{}
	dealIDs := map[int64]struct{}{}

	for _, activities := range [][]client.Activity{overdue, dueToday} {
		for _, a := range activities {
			addRef(personIDs, a.Person)
			addRef(orgIDs, a.Org)
			addRef(dealIDs, a.Deal)
		}
	}
	for _, d := range deals {
		addRef(personIDs, d.Person)
		addRef(orgIDs, d.Org)
	}

	refs := newRefData()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		refs.persons, _ = pagination.FetchByIDs(ctx, sortedIDs(personIDs),
			func(p client.Person) int64 { return p.ID }, p.source.PersonsByIDs)
	}()
	go func() {
		defer wg.Done()
		refs.orgs, _ = pagination.FetchByIDs(ctx, sortedIDs(orgIDs),
			func(o client.Organization) int64 { return o.ID }, p.source.OrganizationsByIDs)
	}()
	go func() {
		defer wg.Done()
		refs.deals, _ = pagination.FetchByIDs(ctx, sortedIDs(dealIDs),
			func(d client.Deal) int64 { return d.ID }, p.source.DealsByIDs)
	}()
	wg.Wait()

	p.logger.Debug().
		Int("persons", len(refs.persons)).
		Int("organizations", len(refs.orgs)).
		Int("deals", len(refs.deals)).
		Msg("Reference entities fetched")

	return refs
}

func addRef(set map[int64]struct{}, ref client.Ref) {
	if !ref.IsZero() {
		set[ref.ID] = struct{}{}
	}
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// mapActivity maps one fetched activity into its output record.
func (p *Pipeline) mapActivity(a client.Activity, stages map[int64]string, refs refData, now time.Time, loc *time.Location) ActivityRecord {
	rec := ActivityRecord{
		ID:          a.ID,
		Subject:     a.Subject,
		Type:        a.Type,
		DueDate:     a.DueDate,
		DueTime:     a.DueTime,
		DaysOverdue: daysOverdue(a.DueDate, now, loc),
	}

	if !a.Deal.IsZero() {
		deal := &DealRef{ID: a.Deal.ID}
		bulk, found := refs.deals[a.Deal.ID]
		// Deal title falls back to empty, not "Unknown".
		deal.Title = firstNonEmpty(a.DealTitle, a.Deal.Name, bulk.Title)
		if found && bulk.StageID != 0 {
			deal.StageID = bulk.StageID
			deal.StageName = stageName(stages, bulk.StageID)
		}
		rec.Deal = deal
	}

	if !a.Person.IsZero() {
		bulk := refs.persons[a.Person.ID]
		rec.Person = &PersonRef{
			ID:    a.Person.ID,
			Name:  firstNonEmpty(a.PersonName, a.Person.Name, bulk.Name, "Unknown"),
			Email: bulk.PrimaryEmail(),
		}
	}

	if !a.Org.IsZero() {
		bulk := refs.orgs[a.Org.ID]
		rec.Organization = &OrgRef{
			ID:   a.Org.ID,
			Name: firstNonEmpty(a.OrgName, a.Org.Name, bulk.Name, "Unknown"),
		}
	}

	return rec
}

// mapDeal maps one fetched deal into its output record.
func (p *Pipeline) mapDeal(d client.Deal, stages map[int64]string, refs refData) DealRecord {
	rec := DealRecord{
		ID:        d.ID,
		Title:     d.Title,
		StageID:   d.StageID,
		StageName: stageName(stages, d.StageID),

		UndoneActivitiesCount: d.UndoneActivitiesCount,
		NextActivityID:        d.NextActivityID,
		LastIncomingMailTime:  d.LastIncomingMailTime,
		LastOutgoingMailTime:  d.LastOutgoingMailTime,
	}

	if d.Owner.Name != "" {
		owner := d.Owner.Name
		rec.OwnerName = &owner
	}

	if !d.Person.IsZero() {
		bulk := refs.persons[d.Person.ID]
		rec.Person = &PersonRef{
			ID:    d.Person.ID,
			Name:  firstNonEmpty(d.PersonName, d.Person.Name, bulk.Name, "Unknown"),
			Email: bulk.PrimaryEmail(),
		}
	}

	if !d.Org.IsZero() {
		bulk := refs.orgs[d.Org.ID]
		rec.Organization = &OrgRef{
			ID:   d.Org.ID,
			Name: firstNonEmpty(d.OrgName, d.Org.Name, bulk.Name, "Unknown"),
		}
	}

	return rec
}

// stageName looks a stage up in the table, substituting a placeholder
// for unknown identifiers.
func stageName(stages map[int64]string, id int64) string {
	if name, ok := stages[id]; ok {
		return name
	}
	return fmt.Sprintf("Stage %d", id)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
