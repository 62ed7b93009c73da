package candidate

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/scout/internal/domain/geo"
)

// Fields is the raw input for New and Reconstruct.
type Fields struct {
	ID             string
	OwnerID        string
	Kind           string
	Lat, Lon       *float64
	LastActivityAt time.Time
	CreatedAt      time.Time
	BirthDate      *time.Time
	Tags           map[string]string
	Numerics       map[string]float64
	Flags          map[string]bool
	Sets           map[string][]string
	Priority       bool
	Area           string
}

// Candidate is a discoverable entity: a profile or a live session.
type Candidate struct {
	id             string
	ownerID        string
	kind           string
	position       *geo.Point
	lastActivityAt time.Time
	createdAt      time.Time
	birthDate      *time.Time
	tags           map[string]string
	numerics       map[string]float64
	flags          map[string]bool
	sets           map[string][]string
	priority       bool
	area           string
	derived        Derived
}

// Derived holds display-only values computed per request. Nil means absent.
type Derived struct {
	AgeYears         *int
	DistanceKm       *float64
	FreshnessMinutes *float64
	FreshnessLabel   string
	DistanceLabel    string
}

// New validates and creates a Candidate for writing.
func New(f Fields) (Candidate, error) {
	if f.ID == "" {
		return Candidate{}, fmt.Errorf("candidate id is required")
	}
	if f.Kind == "" {
		return Candidate{}, fmt.Errorf("candidate kind is required")
	}
	if f.OwnerID == "" {
		return Candidate{}, fmt.Errorf("owner id is required")
	}
	if (f.Lat == nil) != (f.Lon == nil) {
		return Candidate{}, fmt.Errorf("position requires both lat and lon")
	}
	if f.Lat != nil && !geo.ValidateCoordinates(*f.Lat, *f.Lon) {
		return Candidate{}, fmt.Errorf("position out of range: lat=%v lon=%v", *f.Lat, *f.Lon)
	}
	if f.BirthDate != nil && f.BirthDate.IsZero() {
		f.BirthDate = nil
	}
	return Reconstruct(f), nil
}

// Reconstruct restores a Candidate from storage without validation.
// An invalid stored position is treated as absent.
func Reconstruct(f Fields) Candidate {
	c := Candidate{
		id:             f.ID,
		ownerID:        f.OwnerID,
		kind:           f.Kind,
		lastActivityAt: f.LastActivityAt,
		createdAt:      f.CreatedAt,
		birthDate:      f.BirthDate,
		tags:           f.Tags,
		numerics:       f.Numerics,
		flags:          f.Flags,
		sets:           f.Sets,
		priority:       f.Priority,
		area:           f.Area,
	}
	if p, ok := geo.PointFromPtrs(f.Lat, f.Lon); ok {
		c.position = &p
	}
	return c
}

// ID returns the candidate identifier.
func (c *Candidate) ID() string { return c.id }

// OwnerID returns the identity this candidate represents.
func (c *Candidate) OwnerID() string { return c.ownerID }

// Kind returns the candidate kind.
func (c *Candidate) Kind() string { return c.kind }

// Position returns the stored position, nil when absent or invalid.
func (c *Candidate) Position() *geo.Point { return c.position }

// LastActivityAt returns the last activity timestamp.
func (c *Candidate) LastActivityAt() time.Time { return c.lastActivityAt }

// CreatedAt returns the creation timestamp.
func (c *Candidate) CreatedAt() time.Time { return c.createdAt }

// BirthDate returns the birth date, nil when absent.
func (c *Candidate) BirthDate() *time.Time { return c.birthDate }

// Tags returns the categorical attributes.
func (c *Candidate) Tags() map[string]string { return c.tags }

// Numerics returns the numeric attributes.
func (c *Candidate) Numerics() map[string]float64 { return c.numerics }

// Flags returns the boolean attributes.
func (c *Candidate) Flags() map[string]bool { return c.flags }

// Sets returns the multi-valued attributes.
func (c *Candidate) Sets() map[string][]string { return c.sets }

// Priority reports whether this is an elevated or administrative candidate.
func (c *Candidate) Priority() bool { return c.priority }

// Area returns the grouping label.
func (c *Candidate) Area() string { return c.area }

// Derived returns the per-request derived values.
func (c *Candidate) Derived() Derived { return c.derived }

// WithDerived returns a copy carrying d.
func (c Candidate) WithDerived(d Derived) Candidate {
	c.derived = d
	return c
}
