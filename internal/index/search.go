package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	bsearch "github.com/blevesearch/bleve/v2/search"
	bquery "github.com/blevesearch/bleve/v2/search/query"
)

var storedFields = []string{"title", "tags", "altText", "imageURL", "date"}

// fieldsForMode maps a search mode to the fields the query runs against.
// "alt" searches alt text only, "llm" (and the default) searches the
// enriched fields, "all" spans everything matchable.
func fieldsForMode(mode string) []string {
	switch mode {
	case "alt":
		return []string{"altText"}
	case "", "llm":
		return []string{"tags", "title"}
	default:
		return []string{"title", "tags", "altText"}
	}
}

// Search runs a ranked query against the index. An empty or "*" query
// matches every document. Queries that fail to parse yield empty results
// rather than an error, matching the forgiving behavior callers expect
// from a search box.
func (p *PostIndex) Search(ctx context.Context, raw, mode string, limit int) ([]Hit, error) {
	if limit < 1 {
		limit = 1
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.idx == nil {
		return []Hit{}, nil
	}

	q, ok := buildQuery(raw, fieldsForMode(mode))
	if !ok {
		return []Hit{}, nil
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = storedFields

	res, err := p.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{
			ID:       h.ID,
			Title:    fieldString(h, "title"),
			ImageURL: fieldString(h, "imageURL"),
			Tags:     fieldString(h, "tags"),
			AltText:  fieldString(h, "altText"),
			Date:     fieldString(h, "date"),
			Score:    h.Score,
		})
	}
	return hits, nil
}

// buildQuery parses the raw query string and scopes every unfielded leaf
// to the mode's fields. Returns ok=false when the query cannot be parsed.
func buildQuery(raw string, fields []string) (bquery.Query, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "*" {
		return bleve.NewMatchAllQuery(), true
	}
	parsed, err := bleve.NewQueryStringQuery(raw).Parse()
	if err != nil {
		return nil, false
	}
	return scopeToFields(parsed, fields), true
}

// scopeToFields rewrites a parsed query tree so that leaves without an
// explicit field restriction match only the given fields. Leaves the user
// fielded explicitly (e.g. title:red) pass through untouched.
func scopeToFields(q bquery.Query, fields []string) bquery.Query {
	switch t := q.(type) {
	case *bquery.BooleanQuery:
		if t.Must != nil {
			t.Must = scopeToFields(t.Must, fields)
		}
		if t.Should != nil {
			t.Should = scopeToFields(t.Should, fields)
		}
		if t.MustNot != nil {
			t.MustNot = scopeToFields(t.MustNot, fields)
		}
		return t
	case *bquery.ConjunctionQuery:
		for i, c := range t.Conjuncts {
			t.Conjuncts[i] = scopeToFields(c, fields)
		}
		return t
	case *bquery.DisjunctionQuery:
		for i, d := range t.Disjuncts {
			t.Disjuncts[i] = scopeToFields(d, fields)
		}
		return t
	}

	fq, ok := q.(bquery.FieldableQuery)
	if !ok || fq.Field() != "" {
		return q
	}
	if len(fields) == 1 {
		fq.SetField(fields[0])
		return q
	}

	dis := bleve.NewDisjunctionQuery()
	for _, f := range fields {
		if c := cloneForField(q, f); c != nil {
			dis.AddQuery(c)
		}
	}
	if len(dis.Disjuncts) == 0 {
		fq.SetField(fields[0])
		return q
	}
	return dis
}

// cloneForField copies a leaf query with its field set. Returns nil for
// leaf types that cannot be cloned, in which case the caller falls back
// to scoping the original to the first field.
func cloneForField(q bquery.Query, field string) bquery.Query {
	switch t := q.(type) {
	case *bquery.MatchQuery:
		c := bquery.NewMatchQuery(t.Match)
		c.SetField(field)
		return c
	case *bquery.MatchPhraseQuery:
		c := bquery.NewMatchPhraseQuery(t.MatchPhrase)
		c.SetField(field)
		return c
	case *bquery.PrefixQuery:
		c := bquery.NewPrefixQuery(t.Prefix)
		c.SetField(field)
		return c
	case *bquery.WildcardQuery:
		c := bquery.NewWildcardQuery(t.Wildcard)
		c.SetField(field)
		return c
	case *bquery.FuzzyQuery:
		c := bquery.NewFuzzyQuery(t.Term)
		c.SetField(field)
		return c
	case *bquery.RegexpQuery:
		c := bquery.NewRegexpQuery(t.Regexp)
		c.SetField(field)
		return c
	case *bquery.TermQuery:
		c := bquery.NewTermQuery(t.Term)
		c.SetField(field)
		return c
	}
	return nil
}

func fieldString(h *bsearch.DocumentMatch, name string) string {
	switch v := h.Fields[name].(type) {
	case string:
		return v
	case []interface{}:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
