package types

import "encoding/json"

// WSMessage is one request on the message boundary. Every request carries an
// operation tag and an operation-specific payload and expects exactly one
// response; fire-and-forget is not supported.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the uniform reply shape on the message boundary.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SaveRequest is the payload for saving a new session.
type SaveRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	FolderID    string   `json:"folder_id,omitempty"`
	AllWindows  bool     `json:"all_windows,omitempty"`
}

// UpdateRequest carries the mutable session fields. Nil pointers leave the
// corresponding field untouched.
type UpdateRequest struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	FolderID    *string   `json:"folder_id,omitempty"`
}

// RestoreRequest selects how a session is reopened. Nil booleans fall back to
// the stored settings.
type RestoreRequest struct {
	TabIDs        []string `json:"tab_ids,omitempty"`
	NewWindow     bool     `json:"new_window,omitempty"`
	Lazy          *bool    `json:"lazy,omitempty"`
	RestorePinned *bool    `json:"restore_pinned,omitempty"`
	RestoreGroups *bool    `json:"restore_groups,omitempty"`
}

// MergeRequest merges two or more sessions into a new one.
type MergeRequest struct {
	IDs  []string `json:"ids"`
	Name string   `json:"name"`
}

// ExportRequest selects which sessions to export. Empty IDs means all.
type ExportRequest struct {
	IDs             []string `json:"ids,omitempty"`
	IncludeSettings bool     `json:"include_settings,omitempty"`
}

// ImportRequest carries an export envelope to import.
type ImportRequest struct {
	Data           json.RawMessage `json:"data"`
	Overwrite      bool            `json:"overwrite,omitempty"`
	ImportSettings bool            `json:"import_settings,omitempty"`
}

// ImportResult accumulates per-item outcomes of an import. Success is true
// iff at least one session imported.
type ImportResult struct {
	Success          bool     `json:"success"`
	SessionsImported int      `json:"sessions_imported"`
	FoldersImported  int      `json:"folders_imported"`
	Errors           []string `json:"errors"`
}

// PageState is the snapshot returned by the page-state provider for one tab.
type PageState struct {
	Scroll   *ScrollPosition   `json:"scroll,omitempty"`
	FormData map[string]string `json:"form_data,omitempty"`
}
