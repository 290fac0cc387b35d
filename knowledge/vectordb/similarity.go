package vectordb

import (
	"math"
	"sort"
)

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either vector has zero magnitude or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}

	if na == 0 || nb == 0 {
		return 0
	}

	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// rank scores candidates against query, drops those below opts.MinScore and
// returns at most opts.TopK matches by descending score. Ties keep id order.
func rank(query []float32, candidates []Record, opts SearchOptions) []Match {
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	matches := make([]Match, 0, len(candidates))
	for _, rec := range candidates {
		if !matchesFilters(rec.Metadata, opts.Filters) {
			continue
		}

		score := CosineSimilarity(query, rec.Embedding)
		if score < opts.MinScore {
			continue
		}

		matches = append(matches, Match{
			ID:       rec.ID,
			Score:    score,
			Text:     rec.Text,
			Metadata: cloneMetadata(rec.Metadata),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}

		return matches[i].Score > matches[j].Score
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}

	return matches
}
