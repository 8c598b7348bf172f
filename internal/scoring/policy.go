package scoring

import (
	"sort"

	"github.com/openterrain/resolver/internal/core/config"
	"github.com/openterrain/resolver/internal/core/model"
)

// Policy turns a scored candidate list into a bounded search set. High
// confidence licenses narrow, cheap search: a best score at or above the
// high threshold searches only the top collection, above the mid threshold
// the top two, otherwise the top three.
type Policy struct {
	high float64
	mid  float64
}

func NewPolicy(t config.ScoringTables) *Policy {
	return &Policy{high: t.HighConfidence, mid: t.MidConfidence}
}

// Select sorts descending by total score, ties broken by lower priority
// hint, then prunes by the confidence of the best candidate.
func (p *Policy) Select(scored []model.ScoredCollection) []*model.Collection {
	if len(scored) == 0 {
		return nil
	}
	ranked := make([]model.ScoredCollection, len(scored))
	copy(ranked, scored)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].TotalScore != ranked[j].TotalScore {
			return ranked[i].TotalScore > ranked[j].TotalScore
		}
		return ranked[i].Collection.PriorityHint < ranked[j].Collection.PriorityHint
	})

	n := 3
	switch {
	case ranked[0].TotalScore >= p.high:
		n = 1
	case ranked[0].TotalScore >= p.mid:
		n = 2
	}
	if n > len(ranked) {
		n = len(ranked)
	}

	out := make([]*model.Collection, n)
	for i := 0; i < n; i++ {
		out[i] = ranked[i].Collection
	}
	return out
}
