// Package kind describes what a candidate kind can be filtered on and how its
// derived fields are labeled. One engine serves every configured kind.
package kind

import (
	"fmt"
	"slices"

	"github.com/kailas-cloud/scout/internal/domain"
	"github.com/kailas-cloud/scout/internal/domain/derived"
	"github.com/kailas-cloud/scout/internal/domain/discovery/query"
)

// Kind is the per-kind engine configuration.
type Kind struct {
	Name string
	// Categorical maps attribute -> known vocabulary. A nil vocabulary accepts any value.
	Categorical     map[string][]string
	Numerics        []string
	Flags           []string
	PrivilegedFlags []string
	Sets            []string
	HasBirthDate    bool
	Freshness       derived.Freshness
	Bands           derived.DistanceBands
	DefaultSort     query.SortMode
	// GroupLabel names the area attribute in responses.
	GroupLabel string
}

// Validate checks internal consistency.
func (k Kind) Validate() error {
	if k.Name == "" {
		return fmt.Errorf("kind name is required")
	}
	for _, f := range k.PrivilegedFlags {
		if slices.Contains(k.Flags, f) {
			return fmt.Errorf("kind %s: flag %q cannot be both public and privileged", k.Name, f)
		}
	}
	if k.DefaultSort != "" && !k.DefaultSort.IsValid() {
		return fmt.Errorf("kind %s: invalid default sort %q", k.Name, k.DefaultSort)
	}
	prev := -1.0
	for _, b := range k.Bands.Bands {
		if b.MaxKm <= prev {
			return fmt.Errorf("kind %s: distance bands must ascend", k.Name)
		}
		prev = b.MaxKm
	}
	f := k.Freshness
	if f != (derived.Freshness{}) && (f.JustNow > f.Active || f.Active > f.InactiveAfter) {
		return fmt.Errorf("kind %s: freshness thresholds must ascend", k.Name)
	}
	return nil
}

// WithDefaults fills unset label tables.
func (k Kind) WithDefaults() Kind {
	if k.Freshness == (derived.Freshness{}) {
		k.Freshness = derived.DefaultFreshness
	}
	if len(k.Bands.Bands) == 0 {
		k.Bands = derived.DefaultDistanceBands
	}
	if k.DefaultSort == "" {
		k.DefaultSort = query.Mixed
	}
	if k.GroupLabel == "" {
		k.GroupLabel = "area"
	}
	return k
}

// Vocabulary returns the known values of a categorical attribute.
// known=false means the attribute itself is not filterable.
func (k Kind) Vocabulary(attr string) (vocab []string, known bool) {
	vocab, known = k.Categorical[attr]
	return vocab, known
}

// HasFlag reports whether flag is a public boolean attribute.
func (k Kind) HasFlag(flag string) bool { return slices.Contains(k.Flags, flag) }

// IsPrivileged reports whether flag is hidden from normal requesters.
func (k Kind) IsPrivileged(flag string) bool { return slices.Contains(k.PrivilegedFlags, flag) }

// HasSet reports whether attr is a set attribute.
func (k Kind) HasSet(attr string) bool { return slices.Contains(k.Sets, attr) }

// HasNumeric reports whether attr is a numeric attribute.
func (k Kind) HasNumeric(attr string) bool { return slices.Contains(k.Numerics, attr) }

// Registry resolves kinds by name.
type Registry struct {
	kinds map[string]Kind
}

// NewRegistry validates kinds and applies defaults.
func NewRegistry(kinds ...Kind) (*Registry, error) {
	r := &Registry{kinds: make(map[string]Kind, len(kinds))}
	for _, k := range kinds {
		if err := k.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.kinds[k.Name]; dup {
			return nil, fmt.Errorf("duplicate kind %q", k.Name)
		}
		r.kinds[k.Name] = k.WithDefaults()
	}
	return r, nil
}

// Lookup returns the kind or ErrUnknownKind.
func (r *Registry) Lookup(name string) (Kind, error) {
	k, ok := r.kinds[name]
	if !ok {
		return Kind{}, fmt.Errorf("%w: %q", domain.ErrUnknownKind, name)
	}
	return k, nil
}

// Names lists configured kinds in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.kinds))
	for n := range r.kinds {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Profile is the dating-profile kind used when no kinds are configured.
func Profile() Kind {
	return Kind{
		Name: "profile",
		Categorical: map[string][]string{
			"gender":    {"female", "male", "nonbinary"},
			"seeking":   {"female", "male", "nonbinary", "any"},
			"direction": {"dating", "friendship", "networking"},
			"tier":      {"free", "plus", "premium"},
		},
		Numerics:        []string{"height_cm"},
		Flags:           []string{"verified", "online"},
		PrivilegedFlags: []string{"blocked", "inactive"},
		Sets:            []string{"languages", "interests"},
		HasBirthDate:    true,
		Freshness:       derived.Freshness{JustNow: 1, Active: 10, InactiveAfter: 7 * 24 * 60},
		DefaultSort:     query.Mixed,
	}
}

// Live is the live-broadcast kind used when no kinds are configured.
func Live() Kind {
	return Kind{
		Name: "live",
		Categorical: map[string][]string{
			"category": nil,
			"gender":   {"female", "male", "nonbinary"},
		},
		Numerics:        []string{"viewers"},
		Flags:           []string{"adult"},
		PrivilegedFlags: []string{"blocked"},
		Sets:            []string{"tags", "languages"},
		Freshness:       derived.Freshness{JustNow: 1, Active: 5, InactiveAfter: 15},
		Bands: derived.DistanceBands{
			Bands:  []derived.Band{{MaxKm: 5, Label: "nearby"}, {MaxKm: 50, Label: "in_city"}},
			Beyond: "far",
		},
		DefaultSort: query.Recency,
	}
}
