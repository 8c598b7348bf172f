// Package match finds the files inside a collection that cover a point.
package match

import (
	"sort"

	"github.com/openterrain/resolver/internal/core/model"
)

// FilesFor returns the files of c whose bounds contain the point, ordered
// for trial: ascending size by default (smaller files are more spatially
// specific), or most recent first when the collection prefers recency.
// An empty result is a normal outcome, not an error.
func FilesFor(c *model.Collection, lat, lon float64) []model.FileEntry {
	var out []model.FileEntry
	for _, f := range c.Files {
		if f.Bounds.Contains(lat, lon) {
			out = append(out, f)
		}
	}
	if len(out) < 2 {
		return out
	}
	switch c.PreferredOrder {
	case model.OrderByRecency:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].LastModified.After(out[j].LastModified)
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].SizeBytes < out[j].SizeBytes
		})
	}
	return out
}
