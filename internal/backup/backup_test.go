package backup

import (
	"context"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabvault/tabvault/internal/logging"
	"github.com/tabvault/tabvault/internal/store"
	"github.com/tabvault/tabvault/internal/types"
)

func newManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewManager(st, logging.NewNop()), st
}

func sampleSession(id, name string, urls ...string) *types.Session {
	now := time.Now()
	s := &types.Session{
		SessionMetadata: types.SessionMetadata{
			ID: id, Name: name, Tags: []string{"t"}, TabCount: len(urls),
			CreatedAt: now, UpdatedAt: now, Version: 1,
		},
	}
	for i, u := range urls {
		s.Tabs = append(s.Tabs, types.TabRecord{
			ID: u, URL: u, Title: "Tab " + u, Index: i, GroupID: types.UngroupedID,
		})
	}
	return s
}

func TestExportImportRoundTrip(t *testing.T) {
	exporter, est := newManager(t)
	ctx := context.Background()

	require.NoError(t, est.SaveSession(ctx, sampleSession("sess_1", "One", "https://a.com", "https://b.com")))
	require.NoError(t, est.SaveFolders(ctx, []types.Folder{{ID: "fold_1", Name: "Work"}}))

	blob, err := exporter.ExportJSON(ctx, true)
	require.NoError(t, err)

	var envelope types.ExportEnvelope
	require.NoError(t, sonic.Unmarshal(blob, &envelope))
	assert.Equal(t, types.ExportFormatVersion, envelope.Version)
	assert.NotZero(t, envelope.ExportedAt)
	require.Len(t, envelope.Sessions, 1)
	assert.False(t, envelope.Sessions[0].IsCompressed)
	require.NotNil(t, envelope.Settings)

	importer, ist := newManager(t)
	result, err := importer.ImportJSON(ctx, blob, false, false)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.SessionsImported)
	assert.Equal(t, 1, result.FoldersImported)
	assert.Empty(t, result.Errors)

	imported, err := ist.GetSession(ctx, "sess_1")
	require.NoError(t, err)
	require.NotNil(t, imported)
	assert.Equal(t, "One", imported.Name)
	assert.Len(t, imported.Tabs, 2)
}

func TestExportSubsetOfSessions(t *testing.T) {
	m, st := newManager(t)
	ctx := context.Background()
	require.NoError(t, st.SaveSession(ctx, sampleSession("sess_1", "One", "https://a.com")))
	require.NoError(t, st.SaveSession(ctx, sampleSession("sess_2", "Two", "https://b.com")))

	blob, err := m.ExportSessionsJSON(ctx, []string{"sess_2"}, false)
	require.NoError(t, err)

	var envelope types.ExportEnvelope
	require.NoError(t, sonic.Unmarshal(blob, &envelope))
	require.Len(t, envelope.Sessions, 1)
	assert.Equal(t, "sess_2", envelope.Sessions[0].ID)
	assert.Nil(t, envelope.Settings)
}

func TestImportRejectsInvalidEnvelope(t *testing.T) {
	m, _ := newManager(t)

	result, err := m.ImportJSON(context.Background(), []byte(`{"not":"an export"}`), false, false)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Zero(t, result.SessionsImported)
	assert.Zero(t, result.FoldersImported)
	assert.NotEmpty(t, result.Errors)
}

func TestImportFiltersInvalidTabs(t *testing.T) {
	m, st := newManager(t)
	ctx := context.Background()

	envelope := types.ExportEnvelope{
		Version: types.ExportFormatVersion,
		Sessions: []types.Session{{
			SessionMetadata: types.SessionMetadata{ID: "sess_mixed", Name: "Mixed", TabCount: 2},
			Tabs: []types.TabRecord{
				{ID: "good", URL: "https://good.com", Title: "Good"},
				{ID: "bad", URL: "javascript:alert(1)", Title: "Bad"},
			},
		}},
	}
	blob, err := sonic.Marshal(envelope)
	require.NoError(t, err)

	result, err := m.ImportJSON(ctx, blob, false, false)
	require.NoError(t, err)
	assert.True(t, result.Success)

	imported, err := st.GetSession(ctx, "sess_mixed")
	require.NoError(t, err)
	require.NotNil(t, imported)
	assert.Equal(t, 1, imported.TabCount)
	require.Len(t, imported.Tabs, 1)
	assert.Equal(t, "https://good.com", imported.Tabs[0].URL)
}

func TestImportRejectsSessionWithNoValidTabs(t *testing.T) {
	m, _ := newManager(t)

	envelope := types.ExportEnvelope{
		Version: types.ExportFormatVersion,
		Sessions: []types.Session{
			{
				SessionMetadata: types.SessionMetadata{ID: "sess_bad", Name: "Bad"},
				Tabs:            []types.TabRecord{{ID: "x", URL: "file:///etc/passwd", Title: "Nope"}},
			},
			{
				SessionMetadata: types.SessionMetadata{ID: "sess_ok", Name: "OK"},
				Tabs:            []types.TabRecord{{ID: "y", URL: "https://ok.com", Title: "Fine"}},
			},
		},
	}
	blob, err := sonic.Marshal(envelope)
	require.NoError(t, err)

	result, err := m.ImportJSON(context.Background(), blob, false, false)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.SessionsImported)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Bad")
}

func TestImportCollisionAssignsFreshID(t *testing.T) {
	m, st := newManager(t)
	ctx := context.Background()
	require.NoError(t, st.SaveSession(ctx, sampleSession("sess_1", "Original", "https://orig.com")))

	envelope := types.ExportEnvelope{
		Version:  types.ExportFormatVersion,
		Sessions: []types.Session{*sampleSession("sess_1", "Incoming", "https://new.com")},
	}
	blob, err := sonic.Marshal(envelope)
	require.NoError(t, err)

	result, err := m.ImportJSON(ctx, blob, false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SessionsImported)

	// Original untouched, incoming stored under a fresh id.
	original, err := st.GetSession(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, "Original", original.Name)

	metas, err := st.ListMetadata(ctx)
	require.NoError(t, err)
	assert.Len(t, metas, 2)
}

func TestImportRemapsFolderIDs(t *testing.T) {
	m, st := newManager(t)
	ctx := context.Background()
	require.NoError(t, st.SaveFolders(ctx, []types.Folder{{ID: "fold_1", Name: "Existing"}}))

	session := sampleSession("sess_in", "In folder", "https://a.com")
	session.FolderID = "fold_1"
	envelope := types.ExportEnvelope{
		Version:  types.ExportFormatVersion,
		Folders:  []types.Folder{{ID: "fold_1", Name: "Imported"}},
		Sessions: []types.Session{*session},
	}
	blob, err := sonic.Marshal(envelope)
	require.NoError(t, err)

	result, err := m.ImportJSON(ctx, blob, false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FoldersImported)

	folders, err := st.GetFolders(ctx)
	require.NoError(t, err)
	require.Len(t, folders, 2)
	assert.NotEqual(t, folders[0].ID, folders[1].ID)

	imported, err := st.GetSession(ctx, "sess_in")
	require.NoError(t, err)
	// The session follows the remapped folder, not the pre-existing one.
	assert.NotEqual(t, "fold_1", imported.FolderID)
	assert.Equal(t, folders[1].ID, imported.FolderID)
}

func TestImportForcesEmergencyAndCompressionOff(t *testing.T) {
	m, st := newManager(t)
	ctx := context.Background()

	session := sampleSession("sess_em", "Was emergency", "https://a.com")
	session.IsEmergency = true
	envelope := types.ExportEnvelope{Version: types.ExportFormatVersion, Sessions: []types.Session{*session}}
	blob, err := sonic.Marshal(envelope)
	require.NoError(t, err)

	_, err = m.ImportJSON(ctx, blob, false, false)
	require.NoError(t, err)

	imported, err := st.GetSession(ctx, "sess_em")
	require.NoError(t, err)
	assert.False(t, imported.IsEmergency)
	assert.False(t, imported.IsCompressed)
}

func TestVersionHistoryBounded(t *testing.T) {
	m, st := newManager(t)
	ctx := context.Background()

	settings, err := st.GetSettings(ctx)
	require.NoError(t, err)
	settings.MaxVersionsPerSession = 3
	require.NoError(t, st.SaveSettings(ctx, settings))

	require.NoError(t, st.SaveSession(ctx, sampleSession("sess_1", "V", "https://a.com")))

	var newest *types.SessionVersion
	for i := 0; i < 5; i++ {
		newest, err = m.CreateVersion(ctx, "sess_1")
		require.NoError(t, err)
	}

	versions, err := m.ListVersions(ctx, "sess_1")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, newest.ID, versions[0].ID)
}

func TestRestoreVersion(t *testing.T) {
	m, st := newManager(t)
	ctx := context.Background()

	require.NoError(t, st.SaveSession(ctx, sampleSession("sess_1", "Before", "https://a.com")))
	version, err := m.CreateVersion(ctx, "sess_1")
	require.NoError(t, err)

	// Mutate the live session past the snapshot.
	changed := sampleSession("sess_1", "After", "https://a.com", "https://b.com")
	changed.Version = 2
	require.NoError(t, st.SaveSession(ctx, changed))

	restored, err := m.RestoreVersion(ctx, "sess_1", version.ID)
	require.NoError(t, err)
	assert.Equal(t, "Before", restored.Name)
	assert.Len(t, restored.Tabs, 1)
	assert.Equal(t, 3, restored.Version)

	stored, err := st.GetSession(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, "Before", stored.Name)
}

func TestCreateVersionRefusesUndecodableTabs(t *testing.T) {
	m, st := newManager(t)
	ctx := context.Background()

	// A compressed session whose blob no longer decodes. Snapshotting it
	// would freeze an empty tab list into history.
	broken := &types.Session{
		SessionMetadata: types.SessionMetadata{ID: "sess_1", Name: "Broken", TabCount: 2},
		CompressedTabs:  "not-a-valid-blob",
		IsCompressed:    true,
	}
	require.NoError(t, st.SaveSession(ctx, broken))

	_, err := m.CreateVersion(ctx, "sess_1")
	assert.ErrorIs(t, err, ErrCorruptSession)

	versions, err := m.ListVersions(ctx, "sess_1")
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestRestoreUnknownVersion(t *testing.T) {
	m, st := newManager(t)
	ctx := context.Background()
	require.NoError(t, st.SaveSession(ctx, sampleSession("sess_1", "S", "https://a.com")))

	_, err := m.RestoreVersion(ctx, "sess_1", "ver_missing")
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestDeleteVersionHistory(t *testing.T) {
	m, st := newManager(t)
	ctx := context.Background()
	require.NoError(t, st.SaveSession(ctx, sampleSession("sess_1", "S", "https://a.com")))
	_, err := m.CreateVersion(ctx, "sess_1")
	require.NoError(t, err)

	require.NoError(t, m.DeleteVersionHistory(ctx, "sess_1"))

	versions, err := m.ListVersions(ctx, "sess_1")
	require.NoError(t, err)
	assert.Empty(t, versions)
}
