package page

import (
	"time"

	"github.com/kailas-cloud/scout/internal/domain/candidate"
	"github.com/kailas-cloud/scout/internal/domain/discovery/group"
	"github.com/kailas-cloud/scout/internal/domain/discovery/query"
	"github.com/kailas-cloud/scout/internal/domain/geo"
)

// Page is one ranked slice of a discovery session.
type Page struct {
	Items           []candidate.Candidate
	NextCursor      string
	HasMore         bool
	Groups          []group.Area
	ServerTimestamp time.Time
	Applied         AppliedFilters
	CursorReset     bool
}

// AppliedFilters echoes what the engine actually honored.
type AppliedFilters struct {
	Categorical map[string][]string
	// Dropped lists categorical values removed because the kind does not know them.
	Dropped  map[string][]string
	AgeMin   *int
	AgeMax   *int
	Numeric  map[string]query.NumRange
	Flags    map[string]bool
	Sets     map[string][]string
	// Include has one entry per privileged flag of the kind: true only when honored.
	Include      map[string]bool
	ActiveWithin time.Duration
	Center       *geo.Point
	RadiusKm     *float64
	SortMode     query.SortMode
	Order        string
	PageSize     int
}

// NewAppliedFilters returns an echo with initialized maps.
func NewAppliedFilters() AppliedFilters {
	return AppliedFilters{
		Categorical: map[string][]string{},
		Dropped:     map[string][]string{},
		Numeric:     map[string]query.NumRange{},
		Flags:       map[string]bool{},
		Sets:        map[string][]string{},
		Include:     map[string]bool{},
	}
}
