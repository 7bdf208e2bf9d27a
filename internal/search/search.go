// Package search maintains a cached fuzzy-match index over session metadata
// and runs combinable structural filters. The cache is invalidated explicitly
// by the lifecycle manager after every mutation; there is no subscription
// mechanism.
package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/tabvault/tabvault/internal/codec"
	"github.com/tabvault/tabvault/internal/logging"
	"github.com/tabvault/tabvault/internal/store"
	"github.com/tabvault/tabvault/internal/types"
)

const cacheTTL = 30 * time.Second

// Field weights: name dominates, tags and description matter less, domain
// previews least.
const (
	weightName   = 1.0
	weightTags   = 0.7
	weightDomain = 0.4

	weightTitle = 1.0
	weightURL   = 0.6
)

// Match pairs session metadata with a normalized relevance score in (0, 1].
type Match struct {
	Metadata types.SessionMetadata `json:"metadata"`
	Score    float64               `json:"score"`
}

// TabMatch is one tab hit from a tab-level search.
type TabMatch struct {
	SessionID string          `json:"session_id"`
	Tab       types.TabRecord `json:"tab"`
	Score     float64         `json:"score"`
}

// Filters are AND-combined with an optional text query. Zero values mean
// "no constraint".
type Filters struct {
	Query       string     `json:"query,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Domains     []string   `json:"domains,omitempty"`
	FolderID    string     `json:"folder_id,omitempty"`
	CreatedFrom *time.Time `json:"created_from,omitempty"`
	CreatedTo   *time.Time `json:"created_to,omitempty"`
	MinTabs     *int       `json:"min_tabs,omitempty"`
	MaxTabs     *int       `json:"max_tabs,omitempty"`
}

// Index serves fuzzy search over session metadata with a short-TTL cache.
type Index struct {
	store  *store.Store
	logger *logging.Logger

	mu       sync.Mutex
	cached   []types.SessionMetadata
	cachedAt time.Time
}

func NewIndex(st *store.Store, logger *logging.Logger) *Index {
	return &Index{store: st, logger: logger}
}

// Invalidate drops the metadata cache. Called by the lifecycle manager after
// any session mutation.
func (idx *Index) Invalidate() {
	idx.mu.Lock()
	idx.cached = nil
	idx.mu.Unlock()
}

func (idx *Index) metadata(ctx context.Context) ([]types.SessionMetadata, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.cached != nil && time.Since(idx.cachedAt) < cacheTTL {
		return idx.cached, nil
	}
	metas, err := idx.store.ListMetadata(ctx)
	if err != nil {
		return nil, err
	}
	idx.cached = metas
	idx.cachedAt = time.Now()
	return metas, nil
}

// SearchSessions runs a fuzzy query over the metadata index. An empty query
// returns everything at uniform score 1.
func (idx *Index) SearchSessions(ctx context.Context, query string) ([]Match, error) {
	metas, err := idx.metadata(ctx)
	if err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		all := make([]Match, len(metas))
		for i, meta := range metas {
			all[i] = Match{Metadata: meta, Score: 1}
		}
		return all, nil
	}

	best := make(map[int]float64)
	rank(best, query, metas, weightName, func(m types.SessionMetadata) string {
		return m.Name
	})
	rank(best, query, metas, weightTags, func(m types.SessionMetadata) string {
		return strings.Join(m.Tags, " ") + " " + m.Description
	})
	rank(best, query, metas, weightDomain, func(m types.SessionMetadata) string {
		return strings.Join(m.DomainPreview, " ")
	})

	matches := make([]Match, 0, len(best))
	for i, score := range best {
		matches = append(matches, Match{Metadata: metas[i], Score: score})
	}
	sortMatches(matches)
	return matches, nil
}

// SearchWithFilters composes a text search (or the full list for an empty
// query) with AND-combined structural filters.
func (idx *Index) SearchWithFilters(ctx context.Context, f Filters) ([]Match, error) {
	matches, err := idx.SearchSessions(ctx, f.Query)
	if err != nil {
		return nil, err
	}

	kept := make([]Match, 0, len(matches))
	for _, match := range matches {
		if accepts(f, match.Metadata) {
			kept = append(kept, match)
		}
	}
	return kept, nil
}

func accepts(f Filters, meta types.SessionMetadata) bool {
	if len(f.Tags) > 0 && !hasAllTags(meta.Tags, f.Tags) {
		return false
	}
	if len(f.Domains) > 0 && !intersects(meta.DomainPreview, f.Domains) {
		return false
	}
	if f.FolderID != "" && meta.FolderID != f.FolderID {
		return false
	}
	if f.CreatedFrom != nil && meta.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && meta.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.MinTabs != nil && meta.TabCount < *f.MinTabs {
		return false
	}
	if f.MaxTabs != nil && meta.TabCount > *f.MaxTabs {
		return false
	}
	return true
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, tag := range have {
		set[strings.ToLower(tag)] = true
	}
	for _, tag := range want {
		if !set[strings.ToLower(tag)] {
			return false
		}
	}
	return true
}

func intersects(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, v := range have {
		set[strings.ToLower(v)] = true
	}
	for _, v := range want {
		if set[strings.ToLower(v)] {
			return true
		}
	}
	return false
}

// SearchTabsInSession fuzzy-matches a query against one session's tabs,
// weighting title over URL. Tabs are decompressed on demand; the per-call
// index is ephemeral.
func (idx *Index) SearchTabsInSession(ctx context.Context, sessionID, query string) ([]TabMatch, error) {
	session, err := idx.store.GetSession(ctx, sessionID)
	if err != nil || session == nil {
		return nil, err
	}
	tabs := session.Tabs
	if session.IsCompressed {
		tabs = codec.DecompressTabs(session.CompressedTabs)
	}
	matches := matchTabs(sessionID, tabs, query)
	sortTabMatches(matches)
	return matches, nil
}

// SearchTabsGlobal aggregates tab matches across every stored session,
// sorted by descending score.
func (idx *Index) SearchTabsGlobal(ctx context.Context, query string) ([]TabMatch, error) {
	metas, err := idx.metadata(ctx)
	if err != nil {
		return nil, err
	}

	var all []TabMatch
	for _, meta := range metas {
		matches, err := idx.SearchTabsInSession(ctx, meta.ID, query)
		if err != nil {
			return nil, err
		}
		all = append(all, matches...)
	}
	sortTabMatches(all)
	return all, nil
}

func matchTabs(sessionID string, tabs []types.TabRecord, query string) []TabMatch {
	query = strings.TrimSpace(query)
	if query == "" || len(tabs) == 0 {
		return nil
	}

	best := make(map[int]float64)
	rankStrings(best, query, len(tabs), weightTitle, func(i int) string { return tabs[i].Title })
	rankStrings(best, query, len(tabs), weightURL, func(i int) string { return tabs[i].URL })

	matches := make([]TabMatch, 0, len(best))
	for i, score := range best {
		matches = append(matches, TabMatch{SessionID: sessionID, Tab: tabs[i], Score: score})
	}
	return matches
}

func rank(best map[int]float64, query string, metas []types.SessionMetadata, weight float64, field func(types.SessionMetadata) string) {
	rankStrings(best, query, len(metas), weight, func(i int) string { return field(metas[i]) })
}

// rankStrings fuzzy-matches the query against n strings and folds the
// weighted, normalized scores into best, keeping the maximum per index.
func rankStrings(best map[int]float64, query string, n int, weight float64, at func(int) string) {
	corpus := make([]string, n)
	for i := 0; i < n; i++ {
		corpus[i] = at(i)
	}
	for _, m := range fuzzy.Find(query, corpus) {
		score := weight * normalize(m.Score)
		if score > best[m.Index] {
			best[m.Index] = score
		}
	}
}

// normalize maps the matcher's unbounded integer score into (0, 1): a higher
// raw score approaches 1, a barely-matching one stays near 0.5.
func normalize(raw int) float64 {
	if raw < 0 {
		raw = 0
	}
	return 1 - 1/float64(raw+2)
}

func sortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
}

func sortTabMatches(matches []TabMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
}
