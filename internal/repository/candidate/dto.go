package candidate

import (
	"time"

	"github.com/kailas-cloud/scout/internal/db"
	domcand "github.com/kailas-cloud/scout/internal/domain/candidate"
)

// toRecord flattens a domain Candidate into a storage row.
func toRecord(c *domcand.Candidate) db.Record {
	rec := db.Record{
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
	if !c.LastActivityAt().IsZero() {
		rec.LastActivityMs = c.LastActivityAt().UnixMilli()
	}
	if !c.CreatedAt().IsZero() {
		rec.CreatedMs = c.CreatedAt().UnixMilli()
	}
	if p := c.Position(); p != nil {
		lat, lon := p.Lat, p.Lon
		rec.Lat, rec.Lon = &lat, &lon
	}
	if b := c.BirthDate(); b != nil {
		ms := b.UnixMilli()
		rec.BirthDateMs = &ms
	}
	return rec
}

// fromRecord restores a domain Candidate. Invalid stored positions become absent.
func fromRecord(rec *db.Record) domcand.Candidate {
	f := domcand.Fields{
		ID:             rec.ID,
		OwnerID:        rec.OwnerID,
		Kind:           rec.Kind,
		Lat:            rec.Lat,
		Lon:            rec.Lon,
		LastActivityAt: msToTime(rec.LastActivityMs),
		CreatedAt:      msToTime(rec.CreatedMs),
		Tags:           rec.Tags,
		Numerics:       rec.Numerics,
		Flags:          rec.Flags,
		Sets:           rec.Sets,
		Priority:       rec.Priority,
		Area:           rec.Area,
	}
	if rec.BirthDateMs != nil {
		b := time.UnixMilli(*rec.BirthDateMs).UTC()
		f.BirthDate = &b
	}
	return domcand.Reconstruct(f)
}

// msToTime maps 0 to the zero time so "never active" stays detectable.
func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
