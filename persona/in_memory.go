package persona

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/zuzya/try.idea-validator/core"
)

// Record is one indexed persona description.
type Record struct {
	ID   string
	Text string
}

// InMemoryIndex is a process-local core.PersonaIndex.
//
// Concurrency: protected by RWMutex.
// Search: linear scan scoring each record by the number of distinct query
// terms it contains (case insensitive). Records without any matching term are
// skipped; ties keep insertion order. Suitable for tests, demos and small
// curated persona sets; use the pgvector index for real corpora.
type InMemoryIndex struct {
	mu      sync.RWMutex
	records []Record
}

// NewInMemoryIndex creates an index holding texts.
func NewInMemoryIndex(texts ...string) *InMemoryIndex {
	idx := &InMemoryIndex{}
	for _, t := range texts {
		idx.Add(t)
	}
	return idx
}

// Add appends a persona description and returns its generated id.
func (m *InMemoryIndex) Add(text string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("persona_%d", len(m.records))
	m.records = append(m.records, Record{ID: id, Text: text})
	return id
}

// Len returns the number of indexed records.
func (m *InMemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Search implements core.PersonaIndex.
func (m *InMemoryIndex) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, &core.SearchError{Query: query, Cause: err}
	}

	terms := tokenize(query)
	if len(terms) == 0 || limit <= 0 {
		return []string{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type hit struct {
		text  string
		score int
		order int
	}

	hits := make([]hit, 0)
	for i, r := range m.records {
		words := map[string]bool{}
		for _, w := range tokenize(r.Text) {
			words[w] = true
		}
		score := 0
		for _, t := range terms {
			if words[t] {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{text: r.Text, score: score, order: i})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]string, 0, min(limit, len(hits)))
	for _, h := range hits {
		if len(out) >= limit {
			break
		}
		out = append(out, h.text)
	}
	return out, nil
}

// tokenize lowercases s and splits it into distinct words of at least three
// letters or digits.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := map[string]bool{}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 3 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
