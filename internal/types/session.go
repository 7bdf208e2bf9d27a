package types

import "time"

// UngroupedID is the sentinel group id for tabs that belong to no tab group.
const UngroupedID = -1

// ScrollPosition is a captured page scroll offset.
type ScrollPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// TabRecord represents one captured browser tab.
//
// URL is always validated and credential-stripped before a record is
// constructed; tabs with disallowed URLs are dropped at capture/import time.
type TabRecord struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	Title      string            `json:"title"`
	FavIconURL string            `json:"fav_icon_url,omitempty"`
	Pinned     bool              `json:"pinned"`
	GroupID    int               `json:"group_id"`
	GroupColor string            `json:"group_color,omitempty"`
	GroupTitle string            `json:"group_title,omitempty"`
	Index      int               `json:"index"`
	Active     bool              `json:"active"`
	Muted      bool              `json:"muted"`
	Scroll     *ScrollPosition   `json:"scroll,omitempty"`
	FormData   map[string]string `json:"form_data,omitempty"`
}

// SessionMetadata contains the lightweight summary of a session, kept in a
// separate most-recent-first list so the manager UI never loads full tab data.
type SessionMetadata struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Tags           []string   `json:"tags"`
	FolderID       string     `json:"folder_id,omitempty"`
	TabCount       int        `json:"tab_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	IsEmergency    bool       `json:"is_emergency"`
	Version        int        `json:"version"`
	FaviconPreview []string   `json:"favicon_preview"`
	DomainPreview  []string   `json:"domain_preview"`
}

// Session is a full session record: metadata plus the ordered tab list, or a
// compressed encoding of that list. Exactly one of Tabs/CompressedTabs is
// authoritative, selected by IsCompressed.
type Session struct {
	SessionMetadata
	Tabs           []TabRecord `json:"tabs,omitempty"`
	CompressedTabs string      `json:"compressed_tabs,omitempty"`
	IsCompressed   bool        `json:"is_compressed"`
}

// ToMetadata re-derives the summary view from the session. TabCount is only
// trustworthy when the tab list is the authoritative source.
func (s *Session) ToMetadata() SessionMetadata {
	return s.SessionMetadata
}

// SessionVersion is an immutable point-in-time snapshot of a session,
// stored compressed and bounded per session (oldest evicted first).
type SessionVersion struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Snapshot  string    `json:"snapshot"`
}

// Folder groups sessions in the manager UI. Folders may reference a parent
// folder; deleting a folder cascades to its direct children.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	Icon      string    `json:"icon,omitempty"`
	ParentID  string    `json:"parent_id,omitempty"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExportEnvelope is the versioned exchange format for session exports.
// Field names match the on-disk export file format.
type ExportEnvelope struct {
	Version    string    `json:"version"`
	ExportedAt int64     `json:"exportedAt"`
	Sessions   []Session `json:"sessions"`
	Folders    []Folder  `json:"folders"`
	Settings   *Settings `json:"settings,omitempty"`
}

// ExportFormatVersion identifies the current export envelope shape.
const ExportFormatVersion = "1.0"
