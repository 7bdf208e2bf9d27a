package backup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tabvault/tabvault/internal/codec"
	"github.com/tabvault/tabvault/internal/shared/id"
	"github.com/tabvault/tabvault/internal/types"
)

// CreateVersion snapshots the current session into its version history,
// newest first, trimming past the configured maximum (write-once snapshots,
// so eviction is strictly FIFO).
func (m *Manager) CreateVersion(ctx context.Context, sessionID string) (*types.SessionVersion, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.IsCompressed {
		session.Tabs = codec.DecompressTabs(session.CompressedTabs)
		session.CompressedTabs = ""
		session.IsCompressed = false
	}
	if len(session.Tabs) == 0 {
		return nil, ErrCorruptSession
	}

	snapshot, err := codec.CompressSession(session)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot session: %w", err)
	}

	version := types.SessionVersion{
		ID:        id.NewVersionID().String(),
		SessionID: sessionID,
		CreatedAt: time.Now(),
		Snapshot:  snapshot,
	}

	versions, err := m.store.GetVersions(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	versions = append([]types.SessionVersion{version}, versions...)

	settings, err := m.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if max := settings.MaxVersionsPerSession; max > 0 && len(versions) > max {
		versions = versions[:max]
	}

	if err := m.store.SaveVersions(ctx, sessionID, versions); err != nil {
		return nil, err
	}

	m.logger.Debug("version created",
		zap.String("session_id", sessionID),
		zap.String("version_id", version.ID),
		zap.Int("history", len(versions)),
	)
	return &version, nil
}

// ListVersions returns a session's version history, newest first.
func (m *Manager) ListVersions(ctx context.Context, sessionID string) ([]types.SessionVersion, error) {
	return m.store.GetVersions(ctx, sessionID)
}

// RestoreVersion overwrites the live session with a historical snapshot,
// bumping updatedAt and the version counter.
func (m *Manager) RestoreVersion(ctx context.Context, sessionID, versionID string) (*types.Session, error) {
	current, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrSessionNotFound
	}

	versions, err := m.store.GetVersions(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	for _, version := range versions {
		if version.ID != versionID {
			continue
		}
		snapshot := codec.DecompressSession(version.Snapshot)
		if snapshot == nil {
			return nil, ErrVersionNotFound
		}
		snapshot.ID = sessionID
		snapshot.UpdatedAt = time.Now()
		snapshot.Version = current.Version + 1
		if err := m.store.SaveSession(ctx, snapshot); err != nil {
			return nil, err
		}
		m.invalidate()
		return snapshot, nil
	}
	return nil, ErrVersionNotFound
}

// DeleteVersionHistory drops every snapshot for a session.
func (m *Manager) DeleteVersionHistory(ctx context.Context, sessionID string) error {
	return m.store.DeleteVersions(ctx, sessionID)
}
