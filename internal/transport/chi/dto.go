package chi

import (
	"time"

	domcand "github.com/kailas-cloud/scout/internal/domain/candidate"
	"github.com/kailas-cloud/scout/internal/domain/discovery/group"
	"github.com/kailas-cloud/scout/internal/domain/discovery/page"
	"github.com/kailas-cloud/scout/internal/domain/discovery/query"
)

// ErrorCode is the machine-readable error code of an ErrorResponse.
type ErrorCode string

// Error codes.
const (
	ErrorCodeBadRequest       ErrorCode = "bad_request"
	ErrorCodeValidationFailed ErrorCode = "validation_failed"
	ErrorCodeUnauthorized     ErrorCode = "unauthorized"
	ErrorCodeForbidden        ErrorCode = "forbidden"
	ErrorCodeUnknownKind      ErrorCode = "unknown_kind"
	ErrorCodeNotFound         ErrorCode = "not_found"
	ErrorCodeRateLimited      ErrorCode = "rate_limited"
	ErrorCodeCanceled         ErrorCode = "request_canceled"
	ErrorCodeStoreUnavailable ErrorCode = "store_unavailable"
	ErrorCodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// NumRange is an inclusive numeric range; missing bounds are open.
type NumRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Center is a query origin.
type Center struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lon float64 `json:"lon" validate:"longitude"`
}

// DiscoverRequest is the body of POST /v1/kinds/{kind}/discover.
// Out-of-range page sizes and radii are clamped, not rejected.
type DiscoverRequest struct {
	Categorical     map[string][]string `json:"categorical,omitempty" validate:"omitempty,max=32,dive,keys,min=1,max=64,endkeys,max=64"`
	AgeMin          *int                `json:"ageMin,omitempty"`
	AgeMax          *int                `json:"ageMax,omitempty"`
	Numeric         map[string]NumRange `json:"numeric,omitempty" validate:"omitempty,max=32"`
	Flags           map[string]bool     `json:"flags,omitempty" validate:"omitempty,max=32"`
	Sets            map[string][]string `json:"sets,omitempty" validate:"omitempty,max=32,dive,keys,min=1,max=64,endkeys,max=64"`
	Include         map[string]bool     `json:"include,omitempty" validate:"omitempty,max=32"`
	ActiveWithinSec int                 `json:"activeWithinSec,omitempty" validate:"min=0"`
	Center          *Center             `json:"center,omitempty"`
	RadiusKm        *float64            `json:"radiusKm,omitempty"`
	Sort            string              `json:"sort,omitempty" validate:"max=32"`
	SelfFirst       bool                `json:"selfFirst,omitempty"`
	PriorityFirst   bool                `json:"priorityFirst,omitempty"`
	PageSize        int                 `json:"pageSize,omitempty"`
	Cursor          string              `json:"cursor,omitempty" validate:"max=2048"`
	Group           bool                `json:"group,omitempty"`
}

// builder maps the request onto a spec builder.
func (r *DiscoverRequest) builder() *query.Builder {
	b := query.NewBuilder().
		Age(r.AgeMin, r.AgeMax).
		ActiveWithin(time.Duration(r.ActiveWithinSec) * time.Second).
		Sort(r.Sort).
		SelfFirst(r.SelfFirst).
		PriorityFirst(r.PriorityFirst).
		PageSize(r.PageSize).
		Cursor(r.Cursor).
		Group(r.Group)
	for attr, values := range r.Categorical {
		b.Categorical(attr, values...)
	}
	for attr, rng := range r.Numeric {
		b.Numeric(attr, query.NumRange{Min: rng.Min, Max: rng.Max})
	}
	for flag, v := range r.Flags {
		b.Flag(flag, v)
	}
	for attr, values := range r.Sets {
		b.Set(attr, values...)
	}
	for flag, v := range r.Include {
		b.Include(flag, v)
	}
	if r.Center != nil {
		b.Center(r.Center.Lat, r.Center.Lon)
	}
	if r.RadiusKm != nil {
		b.Radius(*r.RadiusKm)
	}
	return b
}

// CandidateResponse is one ranked candidate with its derived fields.
type CandidateResponse struct {
	ID               string              `json:"id"`
	OwnerID          string              `json:"ownerId"`
	Kind             string              `json:"kind"`
	Lat              *float64            `json:"lat,omitempty"`
	Lon              *float64            `json:"lon,omitempty"`
	LastActivityAt   *time.Time          `json:"lastActivityAt,omitempty"`
	CreatedAt        *time.Time          `json:"createdAt,omitempty"`
	Tags             map[string]string   `json:"tags,omitempty"`
	Numerics         map[string]float64  `json:"numerics,omitempty"`
	Flags            map[string]bool     `json:"flags,omitempty"`
	Sets             map[string][]string `json:"sets,omitempty"`
	Priority         bool                `json:"priority,omitempty"`
	Area             string              `json:"area,omitempty"`
	AgeYears         *int                `json:"ageYears,omitempty"`
	DistanceKm       *float64            `json:"distanceKm"`
	DistanceLabel    string              `json:"distanceLabel,omitempty"`
	FreshnessMinutes *float64            `json:"freshnessMinutes,omitempty"`
	FreshnessLabel   string              `json:"freshnessLabel"`
}

// AreaGroup is one bucket of a grouped page.
type AreaGroup struct {
	Label string   `json:"label"`
	Count int      `json:"count"`
	IDs   []string `json:"ids"`
}

// AppliedFilters echoes what the engine honored.
type AppliedFilters struct {
	Categorical     map[string][]string `json:"categorical"`
	Dropped         map[string][]string `json:"dropped,omitempty"`
	AgeMin          *int                `json:"ageMin,omitempty"`
	AgeMax          *int                `json:"ageMax,omitempty"`
	Numeric         map[string]NumRange `json:"numeric"`
	Flags           map[string]bool     `json:"flags"`
	Sets            map[string][]string `json:"sets"`
	Include         map[string]bool     `json:"include"`
	ActiveWithinSec int                 `json:"activeWithinSec,omitempty"`
	Center          *Center             `json:"center,omitempty"`
	RadiusKm        *float64            `json:"radiusKm,omitempty"`
	Sort            string              `json:"sort"`
	Order           string              `json:"order"`
	PageSize        int                 `json:"pageSize"`
}

// DiscoverResponse is one page of a discovery session.
type DiscoverResponse struct {
	Items           []CandidateResponse `json:"items"`
	NextCursor      string              `json:"nextCursor,omitempty"`
	HasMore         bool                `json:"hasMore"`
	Groups          []AreaGroup         `json:"groups,omitempty"`
	ServerTimestamp time.Time           `json:"serverTimestamp"`
	AppliedFilters  AppliedFilters      `json:"appliedFilters"`
	CursorReset     bool                `json:"cursorReset,omitempty"`
}

// UpsertCandidateRequest is the body of PUT /v1/kinds/{kind}/candidates/{id}.
type UpsertCandidateRequest struct {
	OwnerID        string              `json:"ownerId" validate:"required,max=128"`
	Lat            *float64            `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lon            *float64            `json:"lon,omitempty" validate:"omitempty,longitude"`
	LastActivityAt *time.Time          `json:"lastActivityAt,omitempty"`
	CreatedAt      *time.Time          `json:"createdAt,omitempty"`
	BirthDate      string              `json:"birthDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Tags           map[string]string   `json:"tags,omitempty" validate:"omitempty,max=64"`
	Numerics       map[string]float64  `json:"numerics,omitempty" validate:"omitempty,max=64"`
	Flags          map[string]bool     `json:"flags,omitempty" validate:"omitempty,max=64"`
	Sets           map[string][]string `json:"sets,omitempty" validate:"omitempty,max=64"`
	Priority       bool                `json:"priority,omitempty"`
	Area           string              `json:"area,omitempty" validate:"max=128"`
}

func (r *UpsertCandidateRequest) fields(kindName, id string) domcand.Fields {
	f := domcand.Fields{
		ID:       id,
		OwnerID:  r.OwnerID,
		Kind:     kindName,
		Lat:      r.Lat,
		Lon:      r.Lon,
		Tags:     r.Tags,
		Numerics: r.Numerics,
		Flags:    r.Flags,
		Sets:     r.Sets,
		Priority: r.Priority,
		Area:     r.Area,
	}
	if r.LastActivityAt != nil {
		f.LastActivityAt = r.LastActivityAt.UTC()
	}
	if r.CreatedAt != nil {
		f.CreatedAt = r.CreatedAt.UTC()
	}
	if r.BirthDate != "" {
		// Format is checked by the validator.
		if t, err := time.Parse(time.DateOnly, r.BirthDate); err == nil {
			f.BirthDate = &t
		}
	}
	return f
}

// HeartbeatResponse reports the stored activity time after a heartbeat.
type HeartbeatResponse struct {
	ID             string    `json:"id"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version"`
}

func candidateToResponse(c *domcand.Candidate) CandidateResponse {
	out := CandidateResponse{
		ID:       c.ID(),
		OwnerID:  c.OwnerID(),
		Kind:     c.Kind(),
		Tags:     c.Tags(),
		Numerics: c.Numerics(),
		Flags:    c.Flags(),
		Sets:     c.Sets(),
		Priority: c.Priority(),
		Area:     c.Area(),
	}
	if p := c.Position(); p != nil {
		lat, lon := p.Lat, p.Lon
		out.Lat, out.Lon = &lat, &lon
	}
	if t := c.LastActivityAt(); !t.IsZero() {
		out.LastActivityAt = &t
	}
	if t := c.CreatedAt(); !t.IsZero() {
		out.CreatedAt = &t
	}
	d := c.Derived()
	out.AgeYears = d.AgeYears
	out.DistanceKm = d.DistanceKm
	out.DistanceLabel = d.DistanceLabel
	out.FreshnessMinutes = d.FreshnessMinutes
	out.FreshnessLabel = d.FreshnessLabel
	return out
}

func pageToResponse(p *page.Page) DiscoverResponse {
	items := make([]CandidateResponse, 0, len(p.Items))
	for i := range p.Items {
		items = append(items, candidateToResponse(&p.Items[i]))
	}
	return DiscoverResponse{
		Items:           items,
		NextCursor:      p.NextCursor,
		HasMore:         p.HasMore,
		Groups:          groupsToResponse(p.Groups),
		ServerTimestamp: p.ServerTimestamp,
		AppliedFilters:  appliedToResponse(&p.Applied),
		CursorReset:     p.CursorReset,
	}
}

func groupsToResponse(groups []group.Area) []AreaGroup {
	if len(groups) == 0 {
		return nil
	}
	out := make([]AreaGroup, 0, len(groups))
	for _, g := range groups {
		ids := make([]string, 0, len(g.Items))
		for i := range g.Items {
			ids = append(ids, g.Items[i].ID())
		}
		out = append(out, AreaGroup{Label: g.Label, Count: g.Count, IDs: ids})
	}
	return out
}

func appliedToResponse(a *page.AppliedFilters) AppliedFilters {
	numeric := make(map[string]NumRange, len(a.Numeric))
	for attr, r := range a.Numeric {
		numeric[attr] = NumRange{Min: r.Min, Max: r.Max}
	}
	out := AppliedFilters{
		Categorical:     a.Categorical,
		Dropped:         a.Dropped,
		AgeMin:          a.AgeMin,
		AgeMax:          a.AgeMax,
		Numeric:         numeric,
		Flags:           a.Flags,
		Sets:            a.Sets,
		Include:         a.Include,
		ActiveWithinSec: int(a.ActiveWithin / time.Second),
		RadiusKm:        a.RadiusKm,
		Sort:            string(a.SortMode),
		Order:           a.Order,
		PageSize:        a.PageSize,
	}
	if len(out.Dropped) == 0 {
		out.Dropped = nil
	}
	if a.Center != nil {
		out.Center = &Center{Lat: a.Center.Lat, Lon: a.Center.Lon}
	}
	return out
}
