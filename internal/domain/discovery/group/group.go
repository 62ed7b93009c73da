// Package group buckets a ranked page by area label, largest bucket first.
package group

import (
	"sort"

	"github.com/kailas-cloud/scout/internal/domain/candidate"
)

// Unspecified labels candidates without an area.
const Unspecified = "unspecified"

// Area is one bucket of a grouped page.
type Area struct {
	Label string
	Count int
	Items []candidate.Candidate
}

// ByArea buckets items by area label. Buckets are ordered by count desc then
// label asc; items keep their rank order inside a bucket.
func ByArea(items []candidate.Candidate) []Area {
	idx := make(map[string]int)
	var out []Area
	for i := range items {
		label := items[i].Area()
		if label == "" {
			label = Unspecified
		}
		j, ok := idx[label]
		if !ok {
			j = len(out)
			idx[label] = j
			out = append(out, Area{Label: label})
		}
		out[j].Items = append(out[j].Items, items[i])
		out[j].Count++
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Count != out[b].Count {
			return out[a].Count > out[b].Count
		}
		return out[a].Label < out[b].Label
	})
	return out
}
