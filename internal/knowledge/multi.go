package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// NamedSource labels a source for logs and errors.
type NamedSource struct {
	Name   string
	Source Source
}

// MultiSource queries several sources concurrently and merges their hits.
type MultiSource struct {
	sources []NamedSource
	logger  *zap.Logger
}

// NewMultiSource creates a MultiSource.
func NewMultiSource(logger *zap.Logger, sources ...NamedSource) *MultiSource {
	return &MultiSource{sources: sources, logger: logger}
}

type sourceHits struct {
	idx  int
	hits []Candidate
	err  error
}

// Search merges hits from every source ordered by BaseScore. A failing
// source is skipped; an error is returned only when all of them fail.
func (m *MultiSource) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if len(m.sources) == 0 {
		return nil, nil
	}

	results := make(chan sourceHits, len(m.sources))
	var wg sync.WaitGroup
	for i, ns := range m.sources {
		wg.Add(1)
		go func(i int, ns NamedSource) {
			defer wg.Done()
			hits, err := ns.Source.Search(ctx, query, limit)
			results <- sourceHits{idx: i, hits: hits, err: err}
		}(i, ns)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	perSource := make([][]Candidate, len(m.sources))
	var errs []error
	for r := range results {
		if r.err != nil {
			name := m.sources[r.idx].Name
			m.logger.Warn("knowledge source failed", zap.String("source", name), zap.Error(r.err))
			errs = append(errs, fmt.Errorf("search %s: %w", name, r.err))
			continue
		}
		perSource[r.idx] = r.hits
	}
	if len(errs) == len(m.sources) {
		return nil, errors.Join(errs...)
	}

	// Concatenate in source order so equal scores keep a stable order.
	var merged []Candidate
	for _, hits := range perSource {
		merged = append(merged, hits...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].BaseScore > merged[j].BaseScore
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}
