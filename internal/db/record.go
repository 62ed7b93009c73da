package db

import "github.com/kailas-cloud/scout/internal/domain/discovery/filter"

// Record is a flat storage row. Timestamps are Unix milliseconds.
type Record struct {
	ID             string
	OwnerID        string
	Kind           string
	Lat            *float64
	Lon            *float64
	LastActivityMs int64
	CreatedMs      int64
	BirthDateMs    *int64
	Tags           map[string]string
	Numerics       map[string]float64
	Flags          map[string]bool
	Sets           map[string][]string
	Priority       bool
	Area           string
}

// FetchQuery is a bounded predicate read. Rows come back in Order, and a
// keyset in Filters resumes that same order.
type FetchQuery struct {
	Kind    string
	Filters filter.Expression
	Order   filter.Ordering
	Limit   int
}

// Schema is the backend-neutral layout of one kind.
type Schema struct {
	Kind     string
	Tags     []string
	Numerics []string
	Flags    []string
	Sets     []string
}

// Column returns the flat column name for a condition target.
// Drivers that store attributes in one row namespace use it.
func Column(t filter.Target, key string) string {
	switch t {
	case filter.Tag:
		return "tag_" + key
	case filter.Set:
		return "set_" + key
	case filter.Flag:
		return "flag_" + key
	case filter.Numeric:
		return "num_" + key
	default:
		return key
	}
}
