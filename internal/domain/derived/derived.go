// Package derived computes display-only candidate attributes: age, freshness
// and distance labels. Nothing here is persisted and every function is total.
package derived

import (
	"math"
	"time"
)

// Freshness labels.
const (
	LabelJustNow        = "just_now"
	LabelActive         = "active"
	LabelIdle           = "idle"
	LabelLikelyInactive = "likely_inactive"
	LabelUnknown        = "unknown"
)

// AgeYears returns whole years elapsed since birth, evaluated in UTC.
// A birthday not yet reached this year subtracts one.
// Missing or future birth dates report ok=false.
func AgeYears(birth *time.Time, now time.Time) (int, bool) {
	if birth == nil || birth.IsZero() {
		return 0, false
	}
	b := birth.UTC()
	n := now.UTC()
	if b.After(n) {
		return 0, false
	}
	age := n.Year() - b.Year()
	if n.Month() < b.Month() || (n.Month() == b.Month() && n.Day() < b.Day()) {
		age--
	}
	if age < 0 {
		return 0, false
	}
	return age, true
}

// YearsBefore returns UTC midnight of the calendar date `years` years before day.
// Feb 29 maps to Feb 28 in non-leap target years.
func YearsBefore(day time.Time, years int) time.Time {
	d := day.UTC()
	y, m, dd := d.Year()-years, d.Month(), d.Day()
	if m == time.February && dd == 29 && !isLeap(y) {
		dd = 28
	}
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// FreshnessMinutes returns minutes since last activity.
// Zero time reports ok=false; clock skew into the future clamps to 0.
func FreshnessMinutes(last, now time.Time) (float64, bool) {
	if last.IsZero() {
		return 0, false
	}
	m := now.Sub(last).Minutes()
	if m < 0 {
		m = 0
	}
	return m, true
}

// Freshness holds per-kind thresholds, in minutes.
type Freshness struct {
	JustNow       float64
	Active        float64
	InactiveAfter float64
}

// DefaultFreshness is used when a kind configures no thresholds.
var DefaultFreshness = Freshness{JustNow: 5, Active: 60, InactiveAfter: 24 * 60}

// Classify maps minutes since activity to a label.
func (f Freshness) Classify(minutes float64, ok bool) string {
	if !ok || math.IsNaN(minutes) {
		return LabelUnknown
	}
	switch {
	case minutes < f.JustNow:
		return LabelJustNow
	case minutes < f.Active:
		return LabelActive
	case minutes < f.InactiveAfter:
		return LabelIdle
	default:
		return LabelLikelyInactive
	}
}

// Band is an upper distance bound with its label.
type Band struct {
	MaxKm float64
	Label string
}

// DistanceBands labels distances by ascending bands.
type DistanceBands struct {
	Bands  []Band
	Beyond string
}

// DefaultDistanceBands is used when a kind configures no bands.
var DefaultDistanceBands = DistanceBands{
	Bands: []Band{
		{MaxKm: 1, Label: "nearby"},
		{MaxKm: 10, Label: "close"},
		{MaxKm: 50, Label: "in_area"},
	},
	Beyond: "far",
}

// Label returns the first band whose MaxKm covers km.
func (d DistanceBands) Label(km float64, ok bool) string {
	if !ok || math.IsNaN(km) {
		return LabelUnknown
	}
	for _, b := range d.Bands {
		if km <= b.MaxKm {
			return b.Label
		}
	}
	if d.Beyond == "" {
		return LabelUnknown
	}
	return d.Beyond
}
