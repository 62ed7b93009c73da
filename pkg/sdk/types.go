package scout

import "time"

// NumRange is an inclusive range; nil bounds are open.
type NumRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Center is a query origin in degrees.
type Center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DiscoverRequest describes one discovery query. Only the first page of a
// session needs filters; later pages are driven by Cursor.
type DiscoverRequest struct {
	Categorical     map[string][]string `json:"categorical,omitempty"`
	AgeMin          *int                `json:"ageMin,omitempty"`
	AgeMax          *int                `json:"ageMax,omitempty"`
	Numeric         map[string]NumRange `json:"numeric,omitempty"`
	Flags           map[string]bool     `json:"flags,omitempty"`
	Sets            map[string][]string `json:"sets,omitempty"`
	Include         map[string]bool     `json:"include,omitempty"`
	ActiveWithinSec int                 `json:"activeWithinSec,omitempty"`
	Center          *Center             `json:"center,omitempty"`
	RadiusKm        *float64            `json:"radiusKm,omitempty"`
	Sort            string              `json:"sort,omitempty"`
	SelfFirst       bool                `json:"selfFirst,omitempty"`
	PriorityFirst   bool                `json:"priorityFirst,omitempty"`
	PageSize        int                 `json:"pageSize,omitempty"`
	Cursor          string              `json:"cursor,omitempty"`
	Group           bool                `json:"group,omitempty"`
}

// Candidate is one ranked result.
type Candidate struct {
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

// AppliedFilters echoes the filters the server honored.
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

// Page is one page of a discovery session.
type Page struct {
	Items           []Candidate    `json:"items"`
	NextCursor      string         `json:"nextCursor,omitempty"`
	HasMore         bool           `json:"hasMore"`
	Groups          []AreaGroup    `json:"groups,omitempty"`
	ServerTimestamp time.Time      `json:"serverTimestamp"`
	AppliedFilters  AppliedFilters `json:"appliedFilters"`
	CursorReset     bool           `json:"cursorReset,omitempty"`
}

// CandidateInput is the body of an upsert. BirthDate is YYYY-MM-DD.
type CandidateInput struct {
	OwnerID        string              `json:"ownerId"`
	Lat            *float64            `json:"lat,omitempty"`
	Lon            *float64            `json:"lon,omitempty"`
	LastActivityAt *time.Time          `json:"lastActivityAt,omitempty"`
	CreatedAt      *time.Time          `json:"createdAt,omitempty"`
	BirthDate      string              `json:"birthDate,omitempty"`
	Tags           map[string]string   `json:"tags,omitempty"`
	Numerics       map[string]float64  `json:"numerics,omitempty"`
	Flags          map[string]bool     `json:"flags,omitempty"`
	Sets           map[string][]string `json:"sets,omitempty"`
	Priority       bool                `json:"priority,omitempty"`
	Area           string              `json:"area,omitempty"`
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status  string            `json:"status"` // "ok", "degraded", "error"
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version"`
}

type heartbeatResponse struct {
	ID             string    `json:"id"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
