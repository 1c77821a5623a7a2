package search

import "sort"

// DefaultRRFConstant is the standard RRF smoothing parameter (k=60,
// empirically validated across domains: Azure AI Search, OpenSearch, etc.).
const DefaultRRFConstant = 60

// Candidate is one ranked hit from a single retrieval source, already
// reduced to the fields Fuse needs. Engine builds these from
// store.VectorSearchResult and store.KeywordSearchResult.
type Candidate struct {
	Path     string
	Title    string
	Excerpt  string
	Date     string
	Category string
	People   []string
	Vault    string
	Score    float64 // source-native score, preserved for display/debugging
}

// FusedResult is one document after RRF fusion across one or more
// candidate lists.
type FusedResult struct {
	Path     string
	Title    string
	Excerpt  string
	Date     string
	Category string
	People   []string
	Vault    string
	RRFScore float64

	firstSeen int // order the path was first encountered across all lists, for tie-breaking
}

// Fuse combines an arbitrary number of ranked candidate lists with
// Reciprocal Rank Fusion: score(d) = Σ weight_i / (k + rank_i).
//
// There is no separate weight parameter — a source is weighted by how many
// times its list is repeated in lists (e.g. passing the BM25 list three
// times and the vector list once gives BM25 a 3:1 boost). Rank is each
// list's own 1-indexed position; a document absent from a list simply
// contributes nothing from it (unlike the teacher's missing-rank
// backfill, dropped because with list-repetition weighting there is no
// single "the other list's length" to backfill from).
//
// Ties are broken by first-appearance order across all lists (the
// document encountered earliest, reading lists left to right and each
// list top to bottom, ranks first), not lexicographic ID — this spec has
// no stable document ID to sort by, only a filesystem path, and using
// ingestion/ranking order is more meaningful than alphabetizing paths.
//
// Documents are deduplicated by Path. When the same path appears in more
// than one list (or more than once within a repeated list), the People
// field is the union across every contributing candidate, so a hit found
// only via BM25 still surfaces People discovered by the vector index's
// metadata side-table, and vice versa; every other display field is taken
// from the highest-scoring contributing candidate.
func Fuse(k int, lists ...[]Candidate) []FusedResult {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	fused := make(map[string]*FusedResult)
	order := make(map[string]int)
	bestScore := make(map[string]float64)
	peopleSeen := make(map[string]map[string]bool)
	seq := 0

	for _, list := range lists {
		for rank, c := range list {
			fr, ok := fused[c.Path]
			if !ok {
				fr = &FusedResult{Path: c.Path, firstSeen: seq}
				fused[c.Path] = fr
				order[c.Path] = seq
				peopleSeen[c.Path] = make(map[string]bool)
				seq++
			}
			fr.RRFScore += 1.0 / float64(k+rank+1)

			if c.Score >= bestScore[c.Path] || !ok {
				bestScore[c.Path] = c.Score
				fr.Title = c.Title
				fr.Excerpt = c.Excerpt
				fr.Date = c.Date
				fr.Category = c.Category
				fr.Vault = c.Vault
			}
			for _, p := range c.People {
				if !peopleSeen[c.Path][p] {
					peopleSeen[c.Path][p] = true
					fr.People = append(fr.People, p)
				}
			}
		}
	}

	results := make([]FusedResult, 0, len(fused))
	for _, fr := range fused {
		results = append(results, *fr)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].RRFScore != results[j].RRFScore {
			return results[i].RRFScore > results[j].RRFScore
		}
		return results[i].firstSeen < results[j].firstSeen
	})

	normalize(results)
	return results
}

func normalize(results []FusedResult) {
	if len(results) == 0 {
		return
	}
	max := results[0].RRFScore
	if max == 0 {
		return
	}
	for i := range results {
		results[i].RRFScore /= max
	}
}

// Blend combines fused RRF scores with reranker scores position-aware:
// blended = alpha*rrf_norm + (1-alpha)*rerank_norm. Both inputs are
// min-max normalized to [0,1] over the set before blending, so the two
// scales (an RRF score already in [0,1] but skewed toward the top of the
// list, and an arbitrary reranker score) combine fairly. rerank must be
// the same length as fused and aligned by index; entries with no reranker
// score (rerank[i] is left at its zero value because that candidate
// wasn't in the reranked prefix) simply keep their rrf-only contribution
// scaled by alpha, with the (1-alpha) term zeroed.
func Blend(alpha float64, fused []FusedResult, rerank []float64, reranked []bool) []FusedResult {
	if len(fused) == 0 {
		return fused
	}

	rrfNorm := minMaxNormalize(scoresOf(fused))
	rerankNorm := minMaxNormalize(rerank)

	blended := make([]FusedResult, len(fused))
	copy(blended, fused)
	for i := range blended {
		if i < len(reranked) && reranked[i] {
			blended[i].RRFScore = alpha*rrfNorm[i] + (1-alpha)*rerankNorm[i]
		} else {
			blended[i].RRFScore = alpha * rrfNorm[i]
		}
	}

	sort.Slice(blended, func(i, j int) bool {
		if blended[i].RRFScore != blended[j].RRFScore {
			return blended[i].RRFScore > blended[j].RRFScore
		}
		return blended[i].firstSeen < blended[j].firstSeen
	})
	return blended
}

func scoresOf(fused []FusedResult) []float64 {
	out := make([]float64, len(fused))
	for i, f := range fused {
		out[i] = f.RRFScore
	}
	return out
}

func minMaxNormalize(vals []float64) []float64 {
	out := make([]float64, len(vals))
	if len(vals) == 0 {
		return out
	}
	min, max := vals[0], vals[0]
	for _, v := range vals {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max == min {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, v := range vals {
		out[i] = (v - min) / (max - min)
	}
	return out
}
