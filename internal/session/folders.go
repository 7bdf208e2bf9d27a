package session

import (
	"context"
	"time"

	"github.com/tabvault/tabvault/internal/shared/id"
	"github.com/tabvault/tabvault/internal/types"
	"github.com/tabvault/tabvault/internal/validate"
)

// ListFolders returns all folders in display order.
func (m *Manager) ListFolders(ctx context.Context) ([]types.Folder, error) {
	return m.store.GetFolders(ctx)
}

// CreateFolder appends a new folder with a sanitized name.
func (m *Manager) CreateFolder(ctx context.Context, name, color, icon, parentID string) (*types.Folder, error) {
	folders, err := m.store.GetFolders(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	folder := types.Folder{
		ID:        id.NewFolderID().String(),
		Name:      validate.SanitizeFolderName(name),
		Color:     color,
		Icon:      icon,
		ParentID:  parentID,
		Order:     len(folders),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.store.SaveFolders(ctx, append(folders, folder)); err != nil {
		return nil, err
	}
	return &folder, nil
}

// UpdateFolder renames or restyles a folder.
func (m *Manager) UpdateFolder(ctx context.Context, folderID string, name, color, icon *string) (*types.Folder, error) {
	folders, err := m.store.GetFolders(ctx)
	if err != nil {
		return nil, err
	}

	for i := range folders {
		if folders[i].ID != folderID {
			continue
		}
		if name != nil {
			folders[i].Name = validate.SanitizeFolderName(*name)
		}
		if color != nil {
			folders[i].Color = *color
		}
		if icon != nil {
			folders[i].Icon = *icon
		}
		folders[i].UpdatedAt = time.Now()
		if err := m.store.SaveFolders(ctx, folders); err != nil {
			return nil, err
		}
		return &folders[i], nil
	}
	return nil, ErrFolderNotFound
}

// DeleteFolder removes a folder and its direct children. Sessions keep their
// folder reference cleared rather than being deleted with the folder.
func (m *Manager) DeleteFolder(ctx context.Context, folderID string) error {
	folders, err := m.store.GetFolders(ctx)
	if err != nil {
		return err
	}

	removed := map[string]bool{folderID: true}
	kept := make([]types.Folder, 0, len(folders))
	found := false
	for _, f := range folders {
		if f.ID == folderID {
			found = true
			continue
		}
		if f.ParentID == folderID {
			removed[f.ID] = true
			continue
		}
		kept = append(kept, f)
	}
	if !found {
		return ErrFolderNotFound
	}
	if err := m.store.SaveFolders(ctx, kept); err != nil {
		return err
	}

	// Detach sessions that pointed at a removed folder.
	metas, err := m.store.ListMetadata(ctx)
	if err != nil {
		return err
	}
	for _, meta := range metas {
		if !removed[meta.FolderID] {
			continue
		}
		session, err := m.store.GetSession(ctx, meta.ID)
		if err != nil || session == nil {
			continue
		}
		session.FolderID = ""
		if err := m.store.SaveSession(ctx, session); err != nil {
			return err
		}
	}
	m.invalidate()

	return nil
}
