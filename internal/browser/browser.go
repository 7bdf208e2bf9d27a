// Package browser implements the tab capture and restore engine. It reads
// live window/tab state into session records and, in reverse, recreates
// tabs, windows, and tab groups from stored records.
//
// The actual browser is behind the Host interface; page scroll and form
// state come from an injected PageStateProvider whose failures are treated
// as "no data available", never as fatal.
package browser

import (
	"context"

	"github.com/tabvault/tabvault/internal/types"
)

// Tab is one live browser tab as reported by the host.
type Tab struct {
	ID         int    `json:"id"`
	WindowID   int    `json:"window_id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	FavIconURL string `json:"fav_icon_url,omitempty"`
	Pinned     bool   `json:"pinned"`
	Active     bool   `json:"active"`
	Muted      bool   `json:"muted"`
	Index      int    `json:"index"`
	GroupID    int    `json:"group_id"`
}

// Group is a live tab group.
type Group struct {
	ID    int    `json:"id"`
	Color string `json:"color,omitempty"`
	Title string `json:"title,omitempty"`
}

// Window is a newly created browser window. InitialTabID identifies the
// default blank tab the browser opens with it.
type Window struct {
	ID           int `json:"id"`
	InitialTabID int `json:"initial_tab_id"`
}

// CreateTabOptions parametrize tab creation.
type CreateTabOptions struct {
	WindowID int
	URL      string
	Pinned   bool
	Active   bool
	Index    int
}

// Host is the browser surface the engine drives. Implementations talk to a
// real browser (extension messaging, remote debugging protocol); tests use a
// fake.
type Host interface {
	// QueryTabs enumerates open tabs, optionally limited to the current window.
	QueryTabs(ctx context.Context, currentWindowOnly bool) ([]Tab, error)
	// GetGroup fetches group details. May fail if the group closed mid-enumeration.
	GetGroup(ctx context.Context, groupID int) (Group, error)
	// CreateWindow opens a new window with its default blank tab.
	CreateWindow(ctx context.Context) (Window, error)
	// CreateTab opens one tab.
	CreateTab(ctx context.Context, opts CreateTabOptions) (Tab, error)
	// GroupTabs puts tabs into a fresh group and returns its id.
	GroupTabs(ctx context.Context, windowID int, tabIDs []int) (int, error)
	// AddTabsToGroup adds tabs to an existing group.
	AddTabsToGroup(ctx context.Context, groupID int, tabIDs []int) error
	// UpdateGroup applies color/title to a group.
	UpdateGroup(ctx context.Context, groupID int, color, title string) error
	// RemoveTab closes a tab.
	RemoveTab(ctx context.Context, tabID int) error
}

// PageStateProvider captures scroll position and form field values for a
// tab. Pages without an injectable agent (internal browser pages) fail; the
// engine degrades to a record without page state.
type PageStateProvider interface {
	Snapshot(ctx context.Context, tabID int, wantScroll, wantFormData bool) (*types.PageState, error)
}

// DetectDuplicates groups tabs by exact URL and returns only the groups with
// more than one member.
func DetectDuplicates(tabs []types.TabRecord) map[string][]types.TabRecord {
	byURL := make(map[string][]types.TabRecord)
	for _, tab := range tabs {
		byURL[tab.URL] = append(byURL[tab.URL], tab)
	}
	for url, group := range byURL {
		if len(group) < 2 {
			delete(byURL, url)
		}
	}
	return byURL
}
