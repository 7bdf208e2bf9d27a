package ws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabvault/tabvault/internal/backup"
	"github.com/tabvault/tabvault/internal/browser"
	"github.com/tabvault/tabvault/internal/browser/browsertest"
	"github.com/tabvault/tabvault/internal/logging"
	"github.com/tabvault/tabvault/internal/recovery"
	"github.com/tabvault/tabvault/internal/search"
	"github.com/tabvault/tabvault/internal/session"
	"github.com/tabvault/tabvault/internal/store"
	"github.com/tabvault/tabvault/internal/types"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	host := browsertest.NewFakeHost()
	host.OpenTabs = []browser.Tab{
		{ID: 1, WindowID: 1, URL: "https://go.dev/doc", Title: "Docs", Index: 0, GroupID: types.UngroupedID},
		{ID: 2, WindowID: 1, URL: "https://news.ycombinator.com", Title: "HN", Index: 1, GroupID: types.UngroupedID},
	}

	logger := logging.NewNop()
	engine := browser.NewEngine(host, nil, logger)
	sessions := session.NewManager(st, engine, logger)
	machine := recovery.NewMachine(st, sessions, recovery.NewMemoryFlag(), logger)
	t.Cleanup(func() { machine.Reschedule(0) })

	return &Handler{
		sessions: sessions,
		backups:  backup.NewManager(st, logger),
		index:    search.NewIndex(st, logger),
		machine:  machine,
		engine:   engine,
		store:    st,
		logger:   logger,
	}
}

func dispatch(t *testing.T, h *Handler, msgType string, payload string) (interface{}, error) {
	t.Helper()
	msg := types.WSMessage{Type: msgType}
	if payload != "" {
		msg.Payload = []byte(payload)
	}
	return h.dispatch(context.Background(), msg)
}

func TestDispatchPing(t *testing.T) {
	h := newTestHandler(t)

	data, err := dispatch(t, h, "ping", "")
	require.NoError(t, err)
	assert.Equal(t, "pong", data)
}

func TestDispatchUnknownType(t *testing.T) {
	h := newTestHandler(t)

	_, err := dispatch(t, h, "launch_rockets", "")
	require.ErrorIs(t, err, ErrUnknownType)
	assert.Equal(t, "Unknown message type", err.Error())
}

func TestDispatchSessionRoundtrip(t *testing.T) {
	h := newTestHandler(t)

	data, err := dispatch(t, h, "save_session", `{"name":"Work"}`)
	require.NoError(t, err)
	saved, ok := data.(*types.Session)
	require.True(t, ok)
	assert.Equal(t, "Work", saved.Name)
	assert.Equal(t, 2, saved.TabCount)

	data, err = dispatch(t, h, "get_sessions", "")
	require.NoError(t, err)
	metas, ok := data.([]types.SessionMetadata)
	require.True(t, ok)
	require.Len(t, metas, 1)
	assert.Equal(t, saved.ID, metas[0].ID)

	data, err = dispatch(t, h, "get_session", `{"id":"`+saved.ID+`"}`)
	require.NoError(t, err)
	got, ok := data.(*types.Session)
	require.True(t, ok)
	assert.Equal(t, saved.ID, got.ID)

	_, err = dispatch(t, h, "delete_session", `{"id":"`+saved.ID+`"}`)
	require.NoError(t, err)

	_, err = dispatch(t, h, "get_session", `{"id":"`+saved.ID+`"}`)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestDispatchMissingID(t *testing.T) {
	h := newTestHandler(t)

	_, err := dispatch(t, h, "get_session", "")
	require.Error(t, err)
	assert.Equal(t, "missing id", err.Error())
}

func TestDispatchErrorsStayInReply(t *testing.T) {
	h := newTestHandler(t)

	// Malformed payloads come back as errors, not panics or dropped requests.
	_, err := dispatch(t, h, "save_session", `{"name":`)
	require.Error(t, err)
}

func TestDispatchCrashCheck(t *testing.T) {
	h := newTestHandler(t)

	data, err := dispatch(t, h, "check_crash", "")
	require.NoError(t, err)
	assert.Equal(t, false, data)
}
