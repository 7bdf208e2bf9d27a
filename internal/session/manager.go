// Package session orchestrates the session lifecycle: capture, storage,
// restoration, and the derived operations (duplicate, merge, split,
// emergency backup). It applies sanitization and compression policy on the
// way in and keeps statistics and the search cache in step with mutations.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tabvault/tabvault/internal/browser"
	"github.com/tabvault/tabvault/internal/codec"
	"github.com/tabvault/tabvault/internal/logging"
	"github.com/tabvault/tabvault/internal/shared/id"
	"github.com/tabvault/tabvault/internal/store"
	"github.com/tabvault/tabvault/internal/types"
	"github.com/tabvault/tabvault/internal/validate"
)

const previewLimit = 5

// Invalidator is notified after every session mutation so cached search
// indexes can drop stale data. The index has no subscription mechanism of
// its own; calling this is the manager's responsibility.
type Invalidator interface {
	Invalidate()
}

// Recorder receives usage counters for monitoring. Implemented by the
// metrics package; nil-safe via noopRecorder.
type Recorder interface {
	SessionSaved(tabs int)
	SessionRestored(tabs int)
	EmergencyBackup()
}

type noopRecorder struct{}

func (noopRecorder) SessionSaved(int)    {}
func (noopRecorder) SessionRestored(int) {}
func (noopRecorder) EmergencyBackup()    {}

// Manager handles session persistence and restoration.
type Manager struct {
	store    *store.Store
	engine   *browser.Engine
	logger   *logging.Logger
	search   Invalidator
	recorder Recorder
}

// NewManager creates a session manager. search and recorder may be nil.
func NewManager(st *store.Store, engine *browser.Engine, logger *logging.Logger) *Manager {
	return &Manager{
		store:    st,
		engine:   engine,
		logger:   logger,
		recorder: noopRecorder{},
	}
}

// SetInvalidator wires the search cache invalidation hook.
func (m *Manager) SetInvalidator(inv Invalidator) { m.search = inv }

// SetRecorder wires the metrics recorder.
func (m *Manager) SetRecorder(r Recorder) {
	if r != nil {
		m.recorder = r
	}
}

func (m *Manager) invalidate() {
	if m.search != nil {
		m.search.Invalidate()
	}
}

// Create captures the current window (or all windows) and persists a new
// session. Fails with ErrNoValidTabs when the capture yields nothing.
func (m *Manager) Create(ctx context.Context, req types.SaveRequest) (*types.Session, error) {
	settings, err := m.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	tabs, err := m.engine.Capture(ctx, browser.CaptureOptions{
		AllWindows: req.AllWindows,
		Settings:   settings,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to capture tabs: %w", err)
	}
	if len(tabs) == 0 {
		return nil, ErrNoValidTabs
	}

	session := m.newSession(req.Name, req.Description, req.Tags, req.FolderID, tabs, settings)
	if err := m.applyCompression(session, tabs, settings.CompressionThreshold); err != nil {
		return nil, err
	}
	if err := m.store.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	m.invalidate()

	if err := m.store.AddStatistics(ctx, types.Statistics{SessionsSaved: 1, TabsSaved: int64(len(tabs))}); err != nil {
		m.logger.Warn("failed to update statistics", zap.Error(err))
	}
	m.recorder.SessionSaved(len(tabs))

	m.logger.Info("session saved",
		zap.String("session_id", session.ID),
		zap.Int("tabs", len(tabs)),
		zap.Bool("compressed", session.IsCompressed),
	)

	return withTabs(session, tabs), nil
}

// Get returns a session with its tab list materialized, decompressing when
// needed. Returns nil (not an error) when the id is unknown.
func (m *Manager) Get(ctx context.Context, sessionID string) (*types.Session, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil || session == nil {
		return nil, err
	}
	if session.IsCompressed {
		session.Tabs = codec.DecompressTabs(session.CompressedTabs)
	}
	return session, nil
}

// List returns all session metadata, most recent first.
func (m *Manager) List(ctx context.Context) ([]types.SessionMetadata, error) {
	return m.store.ListMetadata(ctx)
}

// Update applies the provided fields, bumps the version, and re-evaluates
// compression policy against current settings. Returns nil when the session
// does not exist.
func (m *Manager) Update(ctx context.Context, sessionID string, req types.UpdateRequest) (*types.Session, error) {
	session, err := m.Get(ctx, sessionID)
	if err != nil || session == nil {
		return nil, err
	}
	if len(session.Tabs) == 0 {
		// Every stored session has at least one tab; an empty list here means
		// the blob failed to decompress. Writing it back would truncate the
		// session to zero tabs.
		return nil, ErrCorruptSession
	}

	settings, err := m.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		session.Name = validate.SanitizeSessionName(*req.Name)
	}
	if req.Description != nil {
		session.Description = validate.SanitizeDescription(*req.Description)
	}
	if req.Tags != nil {
		session.Tags = validate.SanitizeTags(*req.Tags, settings.MaxTags)
	}
	if req.FolderID != nil {
		session.FolderID = *req.FolderID
	}

	session.UpdatedAt = time.Now()
	session.Version++

	tabs := session.Tabs
	if err := m.applyCompression(session, tabs, settings.CompressionThreshold); err != nil {
		return nil, err
	}
	if err := m.store.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	m.invalidate()

	return withTabs(session, tabs), nil
}

// Delete removes a session together with its metadata entry.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	if err := m.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	m.invalidate()
	return nil
}

// RestoreOutcome reports what a restore actually did.
type RestoreOutcome struct {
	Session     *types.Session `json:"session"`
	TabsCreated int            `json:"tabs_created"`
}

// Restore reopens a stored session's tabs. Optionally limited to a subset of
// tab ids; tabs whose URL is already open in the current window are skipped
// when duplicate detection is enabled.
func (m *Manager) Restore(ctx context.Context, sessionID string, req types.RestoreRequest) (*RestoreOutcome, error) {
	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if len(session.Tabs) == 0 {
		// Flags and data disagree: either a stale empty tab list next to a
		// compressed blob, or a blob that failed to decompress.
		return nil, ErrCorruptSession
	}

	settings, err := m.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	tabs := session.Tabs
	if len(req.TabIDs) > 0 {
		wanted := make(map[string]bool, len(req.TabIDs))
		for _, tid := range req.TabIDs {
			wanted[tid] = true
		}
		subset := make([]types.TabRecord, 0, len(req.TabIDs))
		for _, tab := range tabs {
			if wanted[tab.ID] {
				subset = append(subset, tab)
			}
		}
		tabs = subset
	}

	if settings.DetectDuplicates {
		tabs = m.withoutOpenDuplicates(ctx, tabs, settings)
	}

	opts := browser.RestoreOptions{
		Lazy:          resolve(req.Lazy, settings.LazyLoad),
		NewWindow:     req.NewWindow,
		RestorePinned: resolve(req.RestorePinned, settings.RestorePinned),
		RestoreGroups: resolve(req.RestoreGroups, settings.SaveGroups),
	}

	created, err := m.engine.Restore(ctx, tabs, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to restore tabs: %w", err)
	}

	now := time.Now()
	session.LastAccessedAt = &now
	if err := m.store.SaveSession(ctx, stored(session)); err != nil {
		m.logger.Warn("failed to record session access", zap.Error(err))
	}
	m.invalidate()

	if err := m.store.AddStatistics(ctx, types.Statistics{SessionsRestored: 1, TabsRestored: int64(created)}); err != nil {
		m.logger.Warn("failed to update statistics", zap.Error(err))
	}
	m.recorder.SessionRestored(created)

	m.logger.Info("session restored",
		zap.String("session_id", session.ID),
		zap.Int("tabs_created", created),
	)

	return &RestoreOutcome{Session: session, TabsCreated: created}, nil
}

// withoutOpenDuplicates drops tabs whose URL is already open in the current
// window, compared against a fresh capture rather than stale data.
func (m *Manager) withoutOpenDuplicates(ctx context.Context, tabs []types.TabRecord, settings types.Settings) []types.TabRecord {
	open, err := m.engine.Capture(ctx, browser.CaptureOptions{Settings: settings})
	if err != nil {
		m.logger.Warn("duplicate check capture failed", zap.Error(err))
		return tabs
	}
	openURLs := make(map[string]bool, len(open))
	for _, tab := range open {
		openURLs[tab.URL] = true
	}
	kept := make([]types.TabRecord, 0, len(tabs))
	for _, tab := range tabs {
		if !openURLs[tab.URL] {
			kept = append(kept, tab)
		}
	}
	return kept
}

// Duplicate deep-copies a session under a new id with reset timestamps,
// cleared emergency flag and access time, and version 1.
func (m *Manager) Duplicate(ctx context.Context, sessionID, newName string) (*types.Session, error) {
	source, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, ErrSessionNotFound
	}

	settings, err := m.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	name := newName
	if name == "" {
		name = source.Name + " (Copy)"
	}

	tabs := copyTabs(source.Tabs, false)
	dup := m.newSession(name, source.Description, source.Tags, source.FolderID, tabs, settings)
	if err := m.applyCompression(dup, tabs, settings.CompressionThreshold); err != nil {
		return nil, err
	}
	if err := m.store.SaveSession(ctx, dup); err != nil {
		return nil, err
	}
	m.invalidate()

	return withTabs(dup, tabs), nil
}

// Merge concatenates the tabs of two or more sessions in input order into a
// new session, deduplicating by URL (first occurrence wins) and unioning
// tags. Source sessions are left untouched.
func (m *Manager) Merge(ctx context.Context, ids []string, newName string) (*types.Session, error) {
	if len(ids) < 2 {
		return nil, ErrNotEnoughSessions
	}

	settings, err := m.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	var merged []types.TabRecord
	var allTags []string
	seenURL := make(map[string]bool)
	for _, sid := range ids {
		source, err := m.Get(ctx, sid)
		if err != nil {
			return nil, err
		}
		if source == nil {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sid)
		}
		for _, tab := range source.Tabs {
			if seenURL[tab.URL] {
				continue
			}
			seenURL[tab.URL] = true
			tab.ID = uuid.NewString()
			tab.Index = len(merged)
			merged = append(merged, tab)
		}
		allTags = append(allTags, source.Tags...)
	}

	session := m.newSession(newName, "", allTags, "", merged, settings)
	if err := m.applyCompression(session, merged, settings.CompressionThreshold); err != nil {
		return nil, err
	}
	if err := m.store.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	m.invalidate()

	return withTabs(session, merged), nil
}

// Split partitions a session's tabs by domain into one new session per
// distinct domain, preserving relative tab order within each group.
func (m *Manager) Split(ctx context.Context, sessionID string) ([]*types.Session, error) {
	source, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, ErrSessionNotFound
	}

	settings, err := m.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	var order []string
	byDomain := make(map[string][]types.TabRecord)
	for _, tab := range source.Tabs {
		domain := validate.ExtractDomain(tab.URL)
		if _, ok := byDomain[domain]; !ok {
			order = append(order, domain)
		}
		byDomain[domain] = append(byDomain[domain], tab)
	}

	results := make([]*types.Session, 0, len(order))
	for _, domain := range order {
		tabs := copyTabs(byDomain[domain], true)
		part := m.newSession(
			fmt.Sprintf("%s - %s", source.Name, domain),
			source.Description,
			source.Tags,
			source.FolderID,
			tabs,
			settings,
		)
		if err := m.applyCompression(part, tabs, settings.CompressionThreshold); err != nil {
			return nil, err
		}
		if err := m.store.SaveSession(ctx, part); err != nil {
			return nil, err
		}
		results = append(results, withTabs(part, tabs))
	}
	m.invalidate()

	return results, nil
}

// CreateEmergency captures all windows into the bounded emergency ring
// buffer. Emergency sessions bypass the normal store and are never
// compressed so they stay readable even if the codec misbehaves.
func (m *Manager) CreateEmergency(ctx context.Context) (*types.Session, error) {
	settings, err := m.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	tabs, err := m.engine.Capture(ctx, browser.CaptureOptions{AllWindows: true, Settings: settings})
	if err != nil {
		return nil, fmt.Errorf("failed to capture tabs: %w", err)
	}
	if len(tabs) == 0 {
		return nil, ErrNoTabsToBackup
	}

	now := time.Now()
	session := m.newSession(
		"Emergency Backup "+now.Format("2006-01-02 15:04"),
		"",
		[]string{"emergency", "auto-backup"},
		"",
		tabs,
		settings,
	)
	session.IsEmergency = true
	session.Tabs = tabs

	if err := m.store.PushEmergencySession(ctx, session, settings.MaxEmergencySessions); err != nil {
		return nil, err
	}
	m.recorder.EmergencyBackup()

	m.logger.Info("emergency backup saved",
		zap.String("session_id", session.ID),
		zap.Int("tabs", len(tabs)),
	)

	return session, nil
}

// EmergencySessions returns the ring buffer contents, newest first.
func (m *Manager) EmergencySessions(ctx context.Context) ([]types.Session, error) {
	return m.store.GetEmergencySessions(ctx)
}

// ClearEmergencySessions empties the ring buffer.
func (m *Manager) ClearEmergencySessions(ctx context.Context) error {
	return m.store.ClearEmergencySessions(ctx)
}

// newSession assembles a session record with fresh id, timestamps, sanitized
// text fields, and preview arrays derived once at write time.
func (m *Manager) newSession(name, description string, tags []string, folderID string, tabs []types.TabRecord, settings types.Settings) *types.Session {
	now := time.Now()
	return &types.Session{
		SessionMetadata: types.SessionMetadata{
			ID:             id.NewSessionID().String(),
			Name:           validate.SanitizeSessionName(name),
			Description:    validate.SanitizeDescription(description),
			Tags:           validate.SanitizeTags(tags, settings.MaxTags),
			FolderID:       folderID,
			TabCount:       len(tabs),
			CreatedAt:      now,
			UpdatedAt:      now,
			Version:        1,
			FaviconPreview: faviconPreview(tabs),
			DomainPreview:  domainPreview(tabs),
		},
	}
}

// applyCompression stores the tab list compressed or plain per policy,
// keeping exactly one representation authoritative.
func (m *Manager) applyCompression(session *types.Session, tabs []types.TabRecord, threshold int) error {
	session.TabCount = len(tabs)
	if codec.ShouldCompress(tabs, threshold) {
		blob, err := codec.CompressTabs(tabs)
		if err != nil {
			return fmt.Errorf("failed to compress tabs: %w", err)
		}
		session.CompressedTabs = blob
		session.IsCompressed = true
		session.Tabs = nil
		return nil
	}
	session.Tabs = tabs
	session.CompressedTabs = ""
	session.IsCompressed = false
	return nil
}

// stored strips the materialized tab list from a compressed session before
// writing, so the compressed blob stays the single authoritative source.
func stored(session *types.Session) *types.Session {
	if !session.IsCompressed {
		return session
	}
	clone := *session
	clone.Tabs = nil
	return &clone
}

// withTabs returns the session with its tab list materialized for callers,
// regardless of how it is stored.
func withTabs(session *types.Session, tabs []types.TabRecord) *types.Session {
	out := *session
	out.Tabs = tabs
	return &out
}

func copyTabs(tabs []types.TabRecord, reindex bool) []types.TabRecord {
	out := make([]types.TabRecord, len(tabs))
	copy(out, tabs)
	for i := range out {
		out[i].ID = uuid.NewString()
		if reindex {
			out[i].Index = i
		}
	}
	return out
}

func faviconPreview(tabs []types.TabRecord) []string {
	icons := make([]string, 0, previewLimit)
	for _, tab := range tabs {
		if len(icons) >= previewLimit {
			break
		}
		if tab.FavIconURL != "" {
			icons = append(icons, tab.FavIconURL)
		}
	}
	return icons
}

func domainPreview(tabs []types.TabRecord) []string {
	domains := make([]string, 0, previewLimit)
	seen := make(map[string]bool)
	for _, tab := range tabs {
		if len(domains) >= previewLimit {
			break
		}
		domain := validate.ExtractDomain(tab.URL)
		if !seen[domain] {
			seen[domain] = true
			domains = append(domains, domain)
		}
	}
	return domains
}

func resolve(override *bool, fallback bool) bool {
	if override != nil {
		return *override
	}
	return fallback
}
