// Package query defines the immutable per-request discovery filter.
package query

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/scout/internal/domain"
	"github.com/kailas-cloud/scout/internal/domain/geo"
)

// Engine-wide fallbacks used when Limits leaves a value unset.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinRadiusKm     = 1.0
	MaxRadiusKm     = 500.0
	MaxAge          = 150
)

// Limits are the engine bounds applied by Build.
type Limits struct {
	DefaultPageSize int
	MaxPageSize     int
	MinRadiusKm     float64
	MaxRadiusKm     float64
	DefaultSort     SortMode
}

func (l Limits) withDefaults() Limits {
	if l.DefaultPageSize <= 0 {
		l.DefaultPageSize = DefaultPageSize
	}
	if l.MaxPageSize <= 0 {
		l.MaxPageSize = MaxPageSize
	}
	if l.DefaultPageSize > l.MaxPageSize {
		l.DefaultPageSize = l.MaxPageSize
	}
	if l.MinRadiusKm <= 0 {
		l.MinRadiusKm = MinRadiusKm
	}
	if l.MaxRadiusKm <= 0 {
		l.MaxRadiusKm = MaxRadiusKm
	}
	if !l.DefaultSort.IsValid() {
		l.DefaultSort = Mixed
	}
	return l
}

// NumRange is an inclusive numeric range; nil bounds are open.
type NumRange struct {
	Min *float64
	Max *float64
}

// Spec is a validated, immutable discovery filter.
type Spec struct {
	categorical   map[string][]string
	ageMin        *int
	ageMax        *int
	numeric       map[string]NumRange
	flags         map[string]bool
	sets          map[string][]string
	include       map[string]bool
	activeWithin  time.Duration
	center        *geo.Point
	radiusKm      *float64
	sortMode      SortMode
	selfFirst     bool
	priorityFirst bool
	pageSize      int
	cursor        string
	group         bool
}

// Categorical returns the categorical allow-lists keyed by attribute.
func (s Spec) Categorical() map[string][]string { return cloneLists(s.categorical) }

// AgeRange returns the requested age bounds; nil bounds are open.
func (s Spec) AgeRange() (minAge, maxAge *int) { return clonePtr(s.ageMin), clonePtr(s.ageMax) }

// Numeric returns the numeric ranges keyed by attribute.
func (s Spec) Numeric() map[string]NumRange {
	if s.numeric == nil {
		return nil
	}
	out := make(map[string]NumRange, len(s.numeric))
	for k, r := range s.numeric {
		out[k] = NumRange{Min: clonePtr(r.Min), Max: clonePtr(r.Max)}
	}
	return out
}

// Flags returns the boolean toggles keyed by flag.
func (s Spec) Flags() map[string]bool { return copyBools(s.flags) }

// Sets returns the any-of filters keyed by set attribute.
func (s Spec) Sets() map[string][]string { return cloneLists(s.sets) }

// Include returns the requested privileged include toggles.
func (s Spec) Include() map[string]bool { return copyBools(s.include) }

// ActiveWithin returns the freshness cutoff, zero when unset.
func (s Spec) ActiveWithin() time.Duration { return s.activeWithin }

// Center returns the geo center, nil when absent.
func (s Spec) Center() *geo.Point { return clonePtr(s.center) }

// RadiusKm returns the clamped radius, nil when absent.
func (s Spec) RadiusKm() *float64 { return clonePtr(s.radiusKm) }

// SortMode returns the requested sort mode.
func (s Spec) SortMode() SortMode { return s.sortMode }

// SelfFirst reports whether the requester's own record ranks first.
func (s Spec) SelfFirst() bool { return s.selfFirst }

// PriorityFirst reports whether priority candidates rank first.
func (s Spec) PriorityFirst() bool { return s.priorityFirst }

// PageSize returns the clamped page size.
func (s Spec) PageSize() int { return s.pageSize }

// Cursor returns the opaque incoming cursor.
func (s Spec) Cursor() string { return s.cursor }

// Group reports whether the page should be grouped by area.
func (s Spec) Group() bool { return s.group }

// Canonical renders every result-affecting field in a stable order.
// Page size and cursor are excluded so that pages of one session agree.
func (s Spec) Canonical() string {
	var b strings.Builder
	writeStrMap(&b, "cat", s.categorical)
	writeStrMap(&b, "set", s.sets)
	writeBoolMap(&b, "flag", s.flags)
	writeBoolMap(&b, "inc", s.include)
	for _, k := range sortedKeys(s.numeric) {
		r := s.numeric[k]
		fmt.Fprintf(&b, "num:%s=%s..%s;", k, fmtFloat(r.Min), fmtFloat(r.Max))
	}
	fmt.Fprintf(&b, "age=%s..%s;", fmtInt(s.ageMin), fmtInt(s.ageMax))
	fmt.Fprintf(&b, "active=%d;", s.activeWithin.Milliseconds())
	if s.center != nil {
		fmt.Fprintf(&b, "center=%s,%s;", strconv.FormatFloat(s.center.Lat, 'g', -1, 64),
			strconv.FormatFloat(s.center.Lon, 'g', -1, 64))
	}
	fmt.Fprintf(&b, "radius=%s;sort=%s;self=%t;prio=%t", fmtFloat(s.radiusKm), s.sortMode, s.selfFirst, s.priorityFirst)
	return b.String()
}

func writeStrMap(b *strings.Builder, prefix string, m map[string][]string) {
	for _, k := range sortedKeys(m) {
		vals := append([]string(nil), m[k]...)
		sort.Strings(vals)
		fmt.Fprintf(b, "%s:%s=%s;", prefix, k, strings.Join(vals, ","))
	}
}

func writeBoolMap(b *strings.Builder, prefix string, m map[string]bool) {
	for _, k := range sortedKeys(m) {
		fmt.Fprintf(b, "%s:%s=%t;", prefix, k, m[k])
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fmtFloat(f *float64) string {
	if f == nil {
		return "_"
	}
	return strconv.FormatFloat(*f, 'g', -1, 64)
}

func fmtInt(i *int) string {
	if i == nil {
		return "_"
	}
	return strconv.Itoa(*i)
}

// Builder accumulates caller input. Build validates it once into a Spec.
type Builder struct {
	categorical   map[string][]string
	ageMin        *int
	ageMax        *int
	numeric       map[string]NumRange
	flags         map[string]bool
	sets          map[string][]string
	include       map[string]bool
	activeWithin  time.Duration
	lat, lon      *float64
	radiusKm      *float64
	sortMode      string
	selfFirst     bool
	priorityFirst bool
	pageSize      int
	cursor        string
	group         bool
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		categorical: map[string][]string{},
		numeric:     map[string]NumRange{},
		flags:       map[string]bool{},
		sets:        map[string][]string{},
		include:     map[string]bool{},
	}
}

// Categorical adds an allow-list for a categorical attribute.
func (b *Builder) Categorical(key string, values ...string) *Builder {
	b.categorical[key] = append(b.categorical[key], values...)
	return b
}

// Age sets the age bounds; nil bounds are open.
func (b *Builder) Age(minAge, maxAge *int) *Builder {
	b.ageMin, b.ageMax = minAge, maxAge
	return b
}

// Numeric sets a numeric range.
func (b *Builder) Numeric(key string, r NumRange) *Builder {
	b.numeric[key] = r
	return b
}

// Flag sets a boolean toggle.
func (b *Builder) Flag(key string, v bool) *Builder {
	b.flags[key] = v
	return b
}

// Set adds any-of values for a set attribute.
func (b *Builder) Set(key string, values ...string) *Builder {
	b.sets[key] = append(b.sets[key], values...)
	return b
}

// Include requests a privileged include toggle.
func (b *Builder) Include(flag string, v bool) *Builder {
	b.include[flag] = v
	return b
}

// ActiveWithin keeps only candidates active within d.
func (b *Builder) ActiveWithin(d time.Duration) *Builder {
	b.activeWithin = d
	return b
}

// Center sets the geo center.
func (b *Builder) Center(lat, lon float64) *Builder {
	b.lat, b.lon = &lat, &lon
	return b
}

// Radius sets the radius in kilometers.
func (b *Builder) Radius(km float64) *Builder {
	b.radiusKm = &km
	return b
}

// Sort sets the sort mode by name.
func (b *Builder) Sort(mode string) *Builder {
	b.sortMode = mode
	return b
}

// SelfFirst ranks the requester's own record first.
func (b *Builder) SelfFirst(v bool) *Builder {
	b.selfFirst = v
	return b
}

// PriorityFirst ranks priority candidates first.
func (b *Builder) PriorityFirst(v bool) *Builder {
	b.priorityFirst = v
	return b
}

// PageSize sets the requested page size.
func (b *Builder) PageSize(n int) *Builder {
	b.pageSize = n
	return b
}

// Cursor sets the incoming cursor.
func (b *Builder) Cursor(c string) *Builder {
	b.cursor = c
	return b
}

// Group requests area grouping.
func (b *Builder) Group(v bool) *Builder {
	b.group = v
	return b
}

// Build validates and clamps the accumulated input.
// Recoverable input is salvaged: page size and radius are clamped, empty
// values dropped, unknown sort modes defaulted, swapped bounds reordered.
// Only an invalid center or distance sorting without a center is rejected.
func (b *Builder) Build(limits Limits) (Spec, error) {
	l := limits.withDefaults()
	s := Spec{
		categorical:   cleanValues(b.categorical),
		numeric:       cleanRanges(b.numeric),
		flags:         copyBools(b.flags),
		sets:          cleanValues(b.sets),
		include:       copyBools(b.include),
		selfFirst:     b.selfFirst,
		priorityFirst: b.priorityFirst,
		cursor:        strings.TrimSpace(b.cursor),
		group:         b.group,
	}

	s.ageMin, s.ageMax = clampAges(b.ageMin, b.ageMax)

	if b.activeWithin > 0 {
		s.activeWithin = b.activeWithin
	}

	if (b.lat == nil) != (b.lon == nil) {
		return Spec{}, domain.NewInvalidInput("center", "both lat and lon are required")
	}
	if b.lat != nil {
		p, err := geo.NewPoint(*b.lat, *b.lon)
		if err != nil {
			return Spec{}, domain.NewInvalidInput("center", err.Error())
		}
		s.center = &p
		if b.radiusKm != nil && !math.IsNaN(*b.radiusKm) {
			r := geo.ClampRadius(*b.radiusKm, l.MinRadiusKm, l.MaxRadiusKm)
			s.radiusKm = &r
		}
	}

	s.sortMode = SortMode(strings.ToLower(strings.TrimSpace(b.sortMode)))
	if !s.sortMode.IsValid() {
		s.sortMode = l.DefaultSort
	}
	if s.sortMode == Distance && s.center == nil {
		return Spec{}, domain.NewInvalidInput("sort", "distance sort requires a center")
	}

	s.pageSize = b.pageSize
	if s.pageSize <= 0 {
		s.pageSize = l.DefaultPageSize
	}
	if s.pageSize > l.MaxPageSize {
		s.pageSize = l.MaxPageSize
	}
	return s, nil
}

func cleanValues(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, vals := range in {
		seen := make(map[string]struct{}, len(vals))
		var kept []string
		for _, v := range vals {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			kept = append(kept, v)
		}
		if k != "" && len(kept) > 0 {
			out[k] = kept
		}
	}
	return out
}

func cleanRanges(in map[string]NumRange) map[string]NumRange {
	out := make(map[string]NumRange, len(in))
	for k, r := range in {
		if r.Min != nil && math.IsNaN(*r.Min) {
			r.Min = nil
		}
		if r.Max != nil && math.IsNaN(*r.Max) {
			r.Max = nil
		}
		if k == "" || (r.Min == nil && r.Max == nil) {
			continue
		}
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			r.Min, r.Max = r.Max, r.Min
		}
		out[k] = r
	}
	return out
}

func copyBools(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		if k != "" {
			out[k] = v
		}
	}
	return out
}

func clampAges(minAge, maxAge *int) (*int, *int) {
	clamp := func(p *int) *int {
		if p == nil {
			return nil
		}
		v := max(0, min(*p, MaxAge))
		return &v
	}
	lo, hi := clamp(minAge), clamp(maxAge)
	if lo != nil && hi != nil && *lo > *hi {
		lo, hi = hi, lo
	}
	return lo, hi
}

// Getters hand out copies so a caller cannot mutate a built Spec.

func cloneLists(m map[string][]string) map[string][]string {
	if m == nil {
		return nil
	}
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
