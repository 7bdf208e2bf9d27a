// Package browsertest provides an in-memory Host and PageStateProvider for
// tests that exercise capture and restore without a real browser.
package browsertest

import (
	"context"
	"errors"
	"sync"

	"github.com/tabvault/tabvault/internal/browser"
	"github.com/tabvault/tabvault/internal/types"
)

// FakeHost is an in-memory browser.Host. Pre-populate OpenTabs and Groups to
// drive capture; created tabs/windows/groups are recorded for assertions.
type FakeHost struct {
	mu sync.Mutex

	OpenTabs []browser.Tab
	Groups   map[int]browser.Group

	// FailCreateURLs makes CreateTab fail for specific URLs, to test
	// partial-failure tolerance.
	FailCreateURLs map[string]bool

	CreatedTabs    []browser.Tab
	CreatedWindows []browser.Window
	RemovedTabs    []int
	GroupUpdates   map[int]browser.Group
	TabGroups      map[int][]int // group id -> member tab ids

	nextTabID    int
	nextWindowID int
	nextGroupID  int
}

// NewFakeHost returns an empty fake host.
func NewFakeHost() *FakeHost {
	return &FakeHost{
		Groups:         make(map[int]browser.Group),
		FailCreateURLs: make(map[string]bool),
		GroupUpdates:   make(map[int]browser.Group),
		TabGroups:      make(map[int][]int),
		nextTabID:      1000,
		nextWindowID:   100,
		nextGroupID:    500,
	}
}

func (h *FakeHost) QueryTabs(_ context.Context, currentWindowOnly bool) ([]browser.Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !currentWindowOnly {
		return append([]browser.Tab(nil), h.OpenTabs...), nil
	}
	var out []browser.Tab
	for _, t := range h.OpenTabs {
		if t.WindowID == 1 {
			out = append(out, t)
		}
	}
	return out, nil
}

func (h *FakeHost) GetGroup(_ context.Context, groupID int) (browser.Group, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.Groups[groupID]
	if !ok {
		return browser.Group{}, errors.New("no such group")
	}
	return g, nil
}

func (h *FakeHost) CreateWindow(_ context.Context) (browser.Window, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextWindowID++
	h.nextTabID++
	w := browser.Window{ID: h.nextWindowID, InitialTabID: h.nextTabID}
	h.CreatedWindows = append(h.CreatedWindows, w)
	return w, nil
}

func (h *FakeHost) CreateTab(_ context.Context, opts browser.CreateTabOptions) (browser.Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.FailCreateURLs[opts.URL] {
		return browser.Tab{}, errors.New("tab creation failed")
	}
	h.nextTabID++
	tab := browser.Tab{
		ID:       h.nextTabID,
		WindowID: opts.WindowID,
		URL:      opts.URL,
		Pinned:   opts.Pinned,
		Active:   opts.Active,
		Index:    opts.Index,
		GroupID:  types.UngroupedID,
	}
	h.CreatedTabs = append(h.CreatedTabs, tab)
	return tab, nil
}

func (h *FakeHost) GroupTabs(_ context.Context, _ int, tabIDs []int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextGroupID++
	h.TabGroups[h.nextGroupID] = append([]int(nil), tabIDs...)
	return h.nextGroupID, nil
}

func (h *FakeHost) AddTabsToGroup(_ context.Context, groupID int, tabIDs []int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.TabGroups[groupID]; !ok {
		return errors.New("no such group")
	}
	h.TabGroups[groupID] = append(h.TabGroups[groupID], tabIDs...)
	return nil
}

func (h *FakeHost) UpdateGroup(_ context.Context, groupID int, color, title string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.GroupUpdates[groupID] = browser.Group{ID: groupID, Color: color, Title: title}
	return nil
}

func (h *FakeHost) RemoveTab(_ context.Context, tabID int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.RemovedTabs = append(h.RemovedTabs, tabID)
	return nil
}

// FakePages is a canned PageStateProvider. Missing tab ids fail, like pages
// without an injectable content agent.
type FakePages struct {
	States map[int]*types.PageState
}

func (p *FakePages) Snapshot(_ context.Context, tabID int, wantScroll, wantFormData bool) (*types.PageState, error) {
	state, ok := p.States[tabID]
	if !ok {
		return nil, errors.New("page not reachable")
	}
	out := &types.PageState{}
	if wantScroll {
		out.Scroll = state.Scroll
	}
	if wantFormData {
		out.FormData = state.FormData
	}
	return out, nil
}
