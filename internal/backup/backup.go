// Package backup serializes session sets to the versioned exchange format
// and maintains the bounded per-session version history.
package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/tabvault/tabvault/internal/codec"
	"github.com/tabvault/tabvault/internal/logging"
	"github.com/tabvault/tabvault/internal/session"
	"github.com/tabvault/tabvault/internal/shared/id"
	"github.com/tabvault/tabvault/internal/store"
	"github.com/tabvault/tabvault/internal/types"
	"github.com/tabvault/tabvault/internal/validate"
)

var (
	// ErrBadEnvelope marks an import payload whose shape is not the
	// exchange format.
	ErrBadEnvelope = errors.New("invalid export format")

	// ErrSessionNotFound mirrors the lifecycle manager's error for
	// version operations on unknown sessions.
	ErrSessionNotFound = errors.New("session not found")

	// ErrVersionNotFound is returned when a version id has no snapshot or
	// the snapshot no longer decompresses.
	ErrVersionNotFound = errors.New("version not found")

	// ErrCorruptSession is the lifecycle manager's sentinel: a snapshot of
	// undecodable tab data would freeze the truncation into history.
	ErrCorruptSession = session.ErrCorruptSession
)

// Invalidator matches the search cache hook; imports mutate sessions.
type Invalidator interface {
	Invalidate()
}

// Manager handles export, import, and version history.
type Manager struct {
	store  *store.Store
	logger *logging.Logger
	search Invalidator
}

func NewManager(st *store.Store, logger *logging.Logger) *Manager {
	return &Manager{store: st, logger: logger}
}

// SetInvalidator wires the search cache invalidation hook.
func (m *Manager) SetInvalidator(inv Invalidator) { m.search = inv }

func (m *Manager) invalidate() {
	if m.search != nil {
		m.search.Invalidate()
	}
}

// ExportJSON serializes every stored session plus folders (and optionally
// settings) into a pretty-printed exchange blob.
func (m *Manager) ExportJSON(ctx context.Context, includeSettings bool) ([]byte, error) {
	return m.ExportSessionsJSON(ctx, nil, includeSettings)
}

// ExportSessionsJSON serializes the named sessions; empty ids means all.
// Sessions are exported with tabs materialized so the file is readable
// without the codec.
func (m *Manager) ExportSessionsJSON(ctx context.Context, ids []string, includeSettings bool) ([]byte, error) {
	metas, err := m.store.ListMetadata(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(ids))
	for _, sid := range ids {
		wanted[sid] = true
	}

	sessions := make([]types.Session, 0, len(metas))
	for _, meta := range metas {
		if len(ids) > 0 && !wanted[meta.ID] {
			continue
		}
		session, err := m.store.GetSession(ctx, meta.ID)
		if err != nil {
			return nil, err
		}
		if session == nil {
			continue
		}
		if session.IsCompressed {
			session.Tabs = codec.DecompressTabs(session.CompressedTabs)
			session.CompressedTabs = ""
			session.IsCompressed = false
		}
		sessions = append(sessions, *session)
	}

	folders, err := m.store.GetFolders(ctx)
	if err != nil {
		return nil, err
	}

	envelope := types.ExportEnvelope{
		Version:    types.ExportFormatVersion,
		ExportedAt: time.Now().UnixMilli(),
		Sessions:   sessions,
		Folders:    folders,
	}
	if includeSettings {
		settings, err := m.store.GetSettings(ctx)
		if err != nil {
			return nil, err
		}
		envelope.Settings = &settings
	}

	return sonic.MarshalIndent(envelope, "", "  ")
}

// ImportJSON parses an exchange blob and imports its folders and sessions.
// Folder id collisions are remapped (unless overwrite is requested) and the
// remap is applied to sessions before they are imported. Per-session failures
// accumulate in the result's error list without aborting the rest.
func (m *Manager) ImportJSON(ctx context.Context, data []byte, overwrite, importSettings bool) (*types.ImportResult, error) {
	result := &types.ImportResult{Errors: []string{}}

	var envelope types.ExportEnvelope
	if err := sonic.Unmarshal(data, &envelope); err != nil || envelope.Sessions == nil {
		result.Errors = append(result.Errors, ErrBadEnvelope.Error())
		return result, nil
	}

	remap, imported, err := m.importFolders(ctx, envelope.Folders, overwrite)
	if err != nil {
		return nil, err
	}
	result.FoldersImported = imported

	settings, err := m.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	for i := range envelope.Sessions {
		incoming := envelope.Sessions[i]
		if err := m.importSession(ctx, &incoming, remap, overwrite, settings); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("session %q: %v", incoming.Name, err))
			continue
		}
		result.SessionsImported++
	}

	if importSettings && envelope.Settings != nil {
		if err := m.store.SaveSettings(ctx, *envelope.Settings); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("settings: %v", err))
		}
	}

	result.Success = result.SessionsImported > 0
	if result.SessionsImported > 0 {
		m.invalidate()
	}
	m.logger.Info("import finished",
		zap.Int("sessions", result.SessionsImported),
		zap.Int("folders", result.FoldersImported),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// importFolders merges incoming folders into the stored list and returns the
// old-id to new-id remap for collisions resolved by re-identification.
func (m *Manager) importFolders(ctx context.Context, incoming []types.Folder, overwrite bool) (map[string]string, int, error) {
	if len(incoming) == 0 {
		return nil, 0, nil
	}

	folders, err := m.store.GetFolders(ctx)
	if err != nil {
		return nil, 0, err
	}
	existing := make(map[string]int, len(folders))
	for i, f := range folders {
		existing[f.ID] = i
	}

	remap := make(map[string]string)
	imported := 0
	for _, folder := range incoming {
		folder.Name = validate.SanitizeFolderName(folder.Name)
		if idx, collides := existing[folder.ID]; collides {
			if overwrite {
				folders[idx] = folder
				imported++
				continue
			}
			fresh := id.NewFolderID().String()
			remap[folder.ID] = fresh
			folder.ID = fresh
		}
		folder.Order = len(folders)
		existing[folder.ID] = len(folders)
		folders = append(folders, folder)
		imported++
	}

	if err := m.store.SaveFolders(ctx, folders); err != nil {
		return nil, 0, err
	}
	return remap, imported, nil
}

// importSession validates and normalizes one incoming session in place, then
// persists it.
func (m *Manager) importSession(ctx context.Context, session *types.Session, remap map[string]string, overwrite bool, settings types.Settings) error {
	if session.ID == "" {
		return errors.New("missing id")
	}
	if session.IsCompressed && len(session.Tabs) == 0 {
		session.Tabs = codec.DecompressTabs(session.CompressedTabs)
	}

	valid := make([]types.TabRecord, 0, len(session.Tabs))
	for _, tab := range session.Tabs {
		if tab.Title == "" || !validate.IsValidURL(tab.URL) {
			continue
		}
		tab.URL = validate.SanitizeURL(tab.URL)
		valid = append(valid, tab)
	}
	if len(valid) == 0 {
		return errors.New("no valid tabs")
	}

	session.Name = validate.SanitizeSessionName(session.Name)
	session.Description = validate.SanitizeDescription(session.Description)
	session.Tags = validate.SanitizeTags(session.Tags, settings.MaxTags)
	if fresh, ok := remap[session.FolderID]; ok {
		session.FolderID = fresh
	}

	session.Tabs = valid
	session.TabCount = len(valid)
	session.FaviconPreview = faviconPreview(valid)
	session.DomainPreview = domainPreview(valid)
	session.IsEmergency = false
	session.IsCompressed = false
	session.CompressedTabs = ""

	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = now
	}
	if session.Version < 1 {
		session.Version = 1
	}

	if !overwrite {
		stored, err := m.store.GetSession(ctx, session.ID)
		if err != nil {
			return err
		}
		if stored != nil {
			session.ID = id.NewSessionID().String()
		}
	}

	return m.store.SaveSession(ctx, session)
}

func faviconPreview(tabs []types.TabRecord) []string {
	icons := make([]string, 0, 5)
	for _, tab := range tabs {
		if len(icons) >= 5 {
			break
		}
		if tab.FavIconURL != "" {
			icons = append(icons, tab.FavIconURL)
		}
	}
	return icons
}

func domainPreview(tabs []types.TabRecord) []string {
	domains := make([]string, 0, 5)
	seen := make(map[string]bool)
	for _, tab := range tabs {
		if len(domains) >= 5 {
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
