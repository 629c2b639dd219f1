package memory

import (
	"context"
	"sort"
	"strings"
)

const maxContextEvents = 3

const defaultRetrievalHeader = "[Relevant long-term memories]"

// Search ranks the save's entries against query by
// tagWeight*tagOverlap + vectorWeight*cosine. Only entries in the query's
// vector space are scored: embedding entries when the query could be
// embedded with the same model and dimension, local entries otherwise.
// Results under MinSimilarity are dropped unless nothing would remain.
func (x *Index) Search(ctx context.Context, query string, sc *SearchContext) ([]SearchResult, error) {
	if !x.Enabled() {
		return []SearchResult{}, nil
	}

	var events []string
	if sc != nil {
		events = sc.RecentEvents
		if len(events) > maxContextEvents {
			events = events[:maxContextEvents]
		}
	}

	queryTags := ExtractTags(query)
	for _, ev := range events {
		queryTags = append(queryTags, ExtractTags(ev)...)
	}
	queryTagSet := make(map[string]struct{}, len(queryTags))
	for _, t := range queryTags {
		queryTagSet[t] = struct{}{}
	}

	entries, err := x.store.ListEntries(ctx, x.saveID)
	if err != nil {
		return nil, err
	}

	queryType, queryVec, model := x.resolveQueryVector(ctx, query, events, entries)

	scored := make([]SearchResult, 0, len(entries))
	for _, e := range entries {
		vt := e.VectorType
		if vt == "" {
			vt = VectorTFIDF
		}
		if vt != queryType {
			continue
		}
		if vt == VectorEmbedding && (e.EmbeddingModel != model || len(e.Vector) != len(queryVec)) {
			continue
		}

		matched := []string{}
		for _, t := range e.Tags {
			if _, ok := queryTagSet[t]; ok {
				matched = append(matched, t)
			}
		}
		tagScore := float64(len(matched)) / float64(max(len(queryTags), 1))
		score := x.policy.TagWeight*tagScore + x.policy.VectorWeight*dot(queryVec, e.Vector)
		scored = append(scored, SearchResult{Entry: e, Score: score, MatchedTags: matched})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	picked := make([]SearchResult, 0, len(scored))
	for _, r := range scored {
		if r.Score >= x.policy.MinSimilarity {
			picked = append(picked, r)
		}
	}
	if len(picked) == 0 {
		picked = scored
	}
	if len(picked) > x.policy.MaxRetrieveCount {
		picked = picked[:x.policy.MaxRetrieveCount]
	}
	return picked, nil
}

// resolveQueryVector embeds the query together with its context events when
// a remote embedder is configured and some stored entry shares its model and
// dimension. Otherwise the query falls back to a local vector of the query
// text alone.
func (x *Index) resolveQueryVector(ctx context.Context, query string, events []string, entries []Entry) (VectorType, []float32, string) {
	if x.embedder != nil {
		lines := make([]string, 0, len(events)+1)
		if strings.TrimSpace(query) != "" {
			lines = append(lines, query)
		}
		for _, ev := range events {
			lines = append(lines, "Event: "+ev)
		}
		if len(lines) > 0 {
			if vecs, model := x.embed(ctx, []string{strings.Join(lines, "\n")}); vecs != nil {
				qv := vecs[0]
				for _, e := range entries {
					if e.VectorType == VectorEmbedding && e.EmbeddingModel == model && len(e.Vector) == len(qv) {
						return VectorEmbedding, qv, model
					}
				}
			}
		}
	}
	return VectorTFIDF, vectorize(query), ""
}

// FormatForPrompt renders results as a labeled list for prompt injection.
// An empty header uses the default label. No results renders as "".
func FormatForPrompt(results []SearchResult, header string) string {
	if len(results) == 0 {
		return ""
	}
	if header == "" {
		header = defaultRetrievalHeader
	}
	var b strings.Builder
	b.WriteString(header)
	for _, r := range results {
		b.WriteString("\n- ")
		if len(r.MatchedTags) > 0 {
			b.WriteString("[" + strings.Join(r.MatchedTags, ",") + "] ")
		}
		b.WriteString(r.Entry.Content)
	}
	return b.String()
}
