package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabvault/tabvault/internal/types"
)

func sampleTabs() []types.TabRecord {
	return []types.TabRecord{
		{
			ID:      "tab-1",
			URL:     "https://example.com/article",
			Title:   "Example Article",
			Pinned:  true,
			GroupID: types.UngroupedID,
			Index:   0,
			Scroll:  &types.ScrollPosition{X: 0, Y: 420},
			FormData: map[string]string{
				"comment": "draft text",
			},
		},
		{
			ID:         "tab-2",
			URL:        "https://news.example.org/",
			Title:      "News",
			GroupID:    3,
			GroupColor: "blue",
			GroupTitle: "reading",
			Index:      1,
			Active:     true,
			Muted:      true,
		},
	}
}

func TestTabsRoundTrip(t *testing.T) {
	tabs := sampleTabs()

	blob, err := CompressTabs(tabs)
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	got := DecompressTabs(blob)
	assert.Equal(t, tabs, got)
}

func TestTabsRoundTripEmpty(t *testing.T) {
	blob, err := CompressTabs(nil)
	require.NoError(t, err)
	assert.Empty(t, DecompressTabs(blob))
}

func TestDecompressTabsCorrupt(t *testing.T) {
	assert.Empty(t, DecompressTabs("not base64 at all!!"))
	assert.Empty(t, DecompressTabs("aGVsbG8gd29ybGQ=")) // valid base64, not zstd
	assert.Empty(t, DecompressTabs(""))
}

func TestSessionRoundTrip(t *testing.T) {
	s := &types.Session{
		SessionMetadata: types.SessionMetadata{
			ID:       "sess_01",
			Name:     "Research",
			Tags:     []string{"work"},
			TabCount: 2,
			Version:  1,
		},
		Tabs: sampleTabs(),
	}

	blob, err := CompressSession(s)
	require.NoError(t, err)

	got := DecompressSession(blob)
	require.NotNil(t, got)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, s.Tabs, got.Tabs)
}

func TestDecompressSessionCorrupt(t *testing.T) {
	assert.Nil(t, DecompressSession("@@@"))
	assert.Nil(t, DecompressSession(""))
}

func TestShouldCompress(t *testing.T) {
	assert.True(t, ShouldCompress([]types.TabRecord{}, 0))
	assert.False(t, ShouldCompress([]types.TabRecord{}, 1))
	assert.True(t, ShouldCompress(sampleTabs(), 2))
	assert.False(t, ShouldCompress(sampleTabs(), 3))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, float64(0), Ratio(0, 100))
	assert.Equal(t, float64(50), Ratio(200, 100))
	assert.Less(t, Ratio(100, 150), float64(0))
}
