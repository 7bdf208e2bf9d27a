package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabvault/tabvault/internal/codec"
	"github.com/tabvault/tabvault/internal/logging"
	"github.com/tabvault/tabvault/internal/store"
	"github.com/tabvault/tabvault/internal/types"
)

func newIndex(t *testing.T) (*Index, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewIndex(st, logging.NewNop()), st
}

func saveSession(t *testing.T, st *store.Store, session *types.Session) {
	t.Helper()
	require.NoError(t, st.SaveSession(context.Background(), session))
}

func meta(id, name string, tabs int) types.SessionMetadata {
	return types.SessionMetadata{
		ID:        id,
		Name:      name,
		TabCount:  tabs,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Version:   1,
	}
}

func TestEmptyQueryReturnsAllAtScoreOne(t *testing.T) {
	idx, st := newIndex(t)
	saveSession(t, st, &types.Session{SessionMetadata: meta("sess_1", "Alpha", 1)})
	saveSession(t, st, &types.Session{SessionMetadata: meta("sess_2", "Beta", 2)})

	matches, err := idx.SearchSessions(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, 1.0, m.Score)
	}
}

func TestNameMatchOutranksDomainMatch(t *testing.T) {
	idx, st := newIndex(t)

	byName := &types.Session{SessionMetadata: meta("sess_name", "Research Papers", 3)}
	byDomain := &types.Session{SessionMetadata: meta("sess_domain", "Misc", 3)}
	byDomain.DomainPreview = []string{"research.org"}
	unrelated := &types.Session{SessionMetadata: meta("sess_none", "Shopping", 1)}

	saveSession(t, st, byName)
	saveSession(t, st, byDomain)
	saveSession(t, st, unrelated)

	matches, err := idx.SearchSessions(context.Background(), "research")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "sess_name", matches[0].Metadata.ID)
	assert.Equal(t, "sess_domain", matches[1].Metadata.ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
	for _, m := range matches {
		assert.Greater(t, m.Score, 0.0)
		assert.LessOrEqual(t, m.Score, 1.0)
	}
}

func TestTagAndDescriptionSearchable(t *testing.T) {
	idx, st := newIndex(t)

	tagged := &types.Session{SessionMetadata: meta("sess_tagged", "Untitled", 1)}
	tagged.Tags = []string{"kubernetes", "infra"}
	saveSession(t, st, tagged)

	matches, err := idx.SearchSessions(context.Background(), "kubernetes")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "sess_tagged", matches[0].Metadata.ID)
}

func TestSearchWithFilters(t *testing.T) {
	idx, st := newIndex(t)
	ctx := context.Background()

	old := &types.Session{SessionMetadata: meta("sess_old", "Old work", 2)}
	old.Tags = []string{"work", "archive"}
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	old.FolderID = "fold_a"
	old.DomainPreview = []string{"a.com"}

	fresh := &types.Session{SessionMetadata: meta("sess_fresh", "Fresh work", 8)}
	fresh.Tags = []string{"work"}
	fresh.FolderID = "fold_b"
	fresh.DomainPreview = []string{"b.com"}

	saveSession(t, st, old)
	saveSession(t, st, fresh)

	// Tag filter requires a superset of the requested tags.
	matches, err := idx.SearchWithFilters(ctx, Filters{Tags: []string{"work", "archive"}})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "sess_old", matches[0].Metadata.ID)

	// Domain filter intersects the preview.
	matches, err = idx.SearchWithFilters(ctx, Filters{Domains: []string{"b.com", "c.com"}})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "sess_fresh", matches[0].Metadata.ID)

	// Folder must match exactly.
	matches, err = idx.SearchWithFilters(ctx, Filters{FolderID: "fold_a"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "sess_old", matches[0].Metadata.ID)

	// Inclusive created-at window.
	from := time.Now().Add(-time.Hour)
	matches, err = idx.SearchWithFilters(ctx, Filters{CreatedFrom: &from})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "sess_fresh", matches[0].Metadata.ID)

	// Tab count range.
	minTabs, maxTabs := 1, 4
	matches, err = idx.SearchWithFilters(ctx, Filters{MinTabs: &minTabs, MaxTabs: &maxTabs})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "sess_old", matches[0].Metadata.ID)

	// Filters AND together.
	matches, err = idx.SearchWithFilters(ctx, Filters{Tags: []string{"work"}, FolderID: "fold_b"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "sess_fresh", matches[0].Metadata.ID)
}

func TestCacheRequiresInvalidate(t *testing.T) {
	idx, st := newIndex(t)
	ctx := context.Background()
	saveSession(t, st, &types.Session{SessionMetadata: meta("sess_1", "First", 1)})

	matches, err := idx.SearchSessions(ctx, "")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	// A write the index was not told about is invisible within the TTL.
	saveSession(t, st, &types.Session{SessionMetadata: meta("sess_2", "Second", 1)})
	matches, err = idx.SearchSessions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	idx.Invalidate()
	matches, err = idx.SearchSessions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestSearchTabsInSession(t *testing.T) {
	idx, st := newIndex(t)
	ctx := context.Background()

	tabs := []types.TabRecord{
		{ID: "t1", URL: "https://news.example.com", Title: "Go generics proposal"},
		{ID: "t2", URL: "https://generics.dev/intro", Title: "Unrelated"},
		{ID: "t3", URL: "https://cooking.example.com", Title: "Dinner ideas"},
	}
	blob, err := codec.CompressTabs(tabs)
	require.NoError(t, err)
	session := &types.Session{
		SessionMetadata: meta("sess_tabs", "Reading", 3),
		CompressedTabs:  blob,
		IsCompressed:    true,
	}
	saveSession(t, st, session)

	matches, err := idx.SearchTabsInSession(ctx, "sess_tabs", "generics")
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// Title hit outranks URL-only hit.
	assert.Equal(t, "t1", matches[0].Tab.ID)
	assert.Equal(t, "t2", matches[1].Tab.ID)
}

func TestSearchTabsGlobal(t *testing.T) {
	idx, st := newIndex(t)
	ctx := context.Background()

	first := &types.Session{SessionMetadata: meta("sess_a", "A", 1)}
	first.Tabs = []types.TabRecord{{ID: "a1", URL: "https://a.com", Title: "Kubernetes operators"}}
	second := &types.Session{SessionMetadata: meta("sess_b", "B", 1)}
	second.Tabs = []types.TabRecord{{ID: "b1", URL: "https://b.com", Title: "Gardening"}}

	saveSession(t, st, first)
	saveSession(t, st, second)

	matches, err := idx.SearchTabsGlobal(ctx, "kubernetes")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "sess_a", matches[0].SessionID)
	assert.Equal(t, "a1", matches[0].Tab.ID)
}

func TestEmptyTabQueryReturnsNothing(t *testing.T) {
	idx, st := newIndex(t)
	session := &types.Session{SessionMetadata: meta("sess_a", "A", 1)}
	session.Tabs = []types.TabRecord{{ID: "a1", URL: "https://a.com", Title: "Anything"}}
	saveSession(t, st, session)

	matches, err := idx.SearchTabsInSession(context.Background(), "sess_a", "  ")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestTagSupersetHelper(t *testing.T) {
	assert.True(t, hasAllTags([]string{"a", "b", "c"}, []string{"a", "c"}))
	assert.False(t, hasAllTags([]string{"a"}, []string{"a", "b"}))
	assert.True(t, hasAllTags([]string{"a"}, nil))
}
