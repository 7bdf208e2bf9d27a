package browser

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tabvault/tabvault/internal/infrastructure/resilience"
	"github.com/tabvault/tabvault/internal/logging"
	"github.com/tabvault/tabvault/internal/types"
	"github.com/tabvault/tabvault/internal/validate"
)

// LazyPlaceholderURL is the neutral URL a lazily restored tab starts with.
// The real target is swapped in by the host's tab-activated callback via
// PendingLazyURL.
const LazyPlaceholderURL = "about:blank"

// Engine captures live tab state and recreates tabs from stored records.
type Engine struct {
	host    Host
	pages   PageStateProvider
	breaker *resilience.Breaker
	logger  *logging.Logger

	mu      sync.Mutex
	pending map[int]string // new tab id -> real target URL
}

// NewEngine creates an engine. pages may be nil when page-state capture is
// unavailable.
func NewEngine(host Host, pages PageStateProvider, logger *logging.Logger) *Engine {
	return &Engine{
		host:  host,
		pages: pages,
		breaker: resilience.New("pages", resilience.Settings{
			MaxFailures: 10,
			Cooldown:    time.Minute,
			OnStateChange: func(name string, from, to resilience.State) {
				logger.Info("breaker state changed",
					zap.String("breaker", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		}),
		logger:  logger,
		pending: make(map[int]string),
	}
}

// CaptureOptions select what Capture reads.
type CaptureOptions struct {
	AllWindows bool
	Settings   types.Settings
}

// Capture enumerates live tabs and converts them into tab records. Tabs with
// invalid URLs or excluded domains are dropped silently. Group details and
// page state are fetched best-effort.
func (e *Engine) Capture(ctx context.Context, opts CaptureOptions) ([]types.TabRecord, error) {
	tabs, err := e.host.QueryTabs(ctx, !opts.AllWindows)
	if err != nil {
		return nil, err
	}

	records := make([]types.TabRecord, 0, len(tabs))
	for _, tab := range tabs {
		if !validate.IsValidURL(tab.URL) {
			continue
		}
		if e.isExcluded(tab.URL, opts.Settings.ExcludedDomains) {
			continue
		}

		record := types.TabRecord{
			ID:         uuid.NewString(),
			URL:        validate.SanitizeURL(tab.URL),
			Title:      tab.Title,
			FavIconURL: tab.FavIconURL,
			Pinned:     tab.Pinned,
			GroupID:    types.UngroupedID,
			Index:      tab.Index,
			Active:     tab.Active,
			Muted:      tab.Muted,
		}

		if opts.Settings.SaveGroups && tab.GroupID != types.UngroupedID {
			if group, err := e.host.GetGroup(ctx, tab.GroupID); err == nil {
				record.GroupID = tab.GroupID
				record.GroupColor = group.Color
				record.GroupTitle = group.Title
			} else {
				// Group may have been closed mid-enumeration.
				e.logger.Debug("group lookup failed", zap.Int("group_id", tab.GroupID), zap.Error(err))
			}
		}

		wantScroll := opts.Settings.CaptureScroll
		wantForm := opts.Settings.CaptureFormData
		if e.pages != nil && (wantScroll || wantForm) {
			var state *types.PageState
			err := e.breaker.Do(func() error {
				var snapErr error
				state, snapErr = e.pages.Snapshot(ctx, tab.ID, wantScroll, wantForm)
				return snapErr
			})
			if err == nil && state != nil {
				record.Scroll = state.Scroll
				record.FormData = state.FormData
			} else if err != nil {
				// Internal pages have no injectable agent; degrade silently.
				e.logger.Debug("page state unavailable", zap.Int("tab_id", tab.ID), zap.Error(err))
			}
		}

		records = append(records, record)
	}

	return records, nil
}

func (e *Engine) isExcluded(url string, patterns []string) bool {
	for _, pattern := range patterns {
		if validate.MatchesDomainPattern(url, pattern) {
			return true
		}
	}
	return false
}

// RestoreOptions select how tabs are reopened.
type RestoreOptions struct {
	Lazy          bool
	NewWindow     bool
	RestorePinned bool
	RestoreGroups bool
}

// Restore recreates tabs in ascending original index order. Per-tab creation
// failures are logged and skipped; a partial restore is better than none.
// Returns the number of tabs actually created.
func (e *Engine) Restore(ctx context.Context, tabs []types.TabRecord, opts RestoreOptions) (int, error) {
	ordered := make([]types.TabRecord, len(tabs))
	copy(ordered, tabs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var windowID, initialTabID int
	if opts.NewWindow {
		window, err := e.host.CreateWindow(ctx)
		if err != nil {
			return 0, err
		}
		windowID = window.ID
		initialTabID = window.InitialTabID
	}

	created := 0
	groupMap := make(map[int]int) // stored group id -> newly created group id
	for _, record := range ordered {
		url := record.URL
		if opts.Lazy {
			url = LazyPlaceholderURL
		}

		tab, err := e.host.CreateTab(ctx, CreateTabOptions{
			WindowID: windowID,
			URL:      url,
			Pinned:   opts.RestorePinned && record.Pinned,
			Active:   record.Active,
			Index:    record.Index,
		})
		if err != nil {
			e.logger.Warn("failed to restore tab", zap.String("url", record.URL), zap.Error(err))
			continue
		}
		created++

		if opts.Lazy {
			e.stashPending(tab.ID, record.URL)
		}

		if opts.RestoreGroups && record.GroupID != types.UngroupedID {
			e.regroup(ctx, windowID, tab.ID, record, groupMap)
		}
	}

	if opts.NewWindow && initialTabID != 0 && created > 0 {
		if err := e.host.RemoveTab(ctx, initialTabID); err != nil {
			e.logger.Debug("failed to remove initial blank tab", zap.Error(err))
		}
	}

	return created, nil
}

// regroup maps a stored group onto a live one: the first tab of a stored
// group creates the new group and applies color/title, later tabs join it.
func (e *Engine) regroup(ctx context.Context, windowID, tabID int, record types.TabRecord, groupMap map[int]int) {
	if newID, ok := groupMap[record.GroupID]; ok {
		if err := e.host.AddTabsToGroup(ctx, newID, []int{tabID}); err != nil {
			e.logger.Warn("failed to add tab to group", zap.Int("group_id", newID), zap.Error(err))
		}
		return
	}

	newID, err := e.host.GroupTabs(ctx, windowID, []int{tabID})
	if err != nil {
		e.logger.Warn("failed to create tab group", zap.Error(err))
		return
	}
	groupMap[record.GroupID] = newID

	if record.GroupColor != "" || record.GroupTitle != "" {
		if err := e.host.UpdateGroup(ctx, newID, record.GroupColor, record.GroupTitle); err != nil {
			e.logger.Debug("failed to style tab group", zap.Int("group_id", newID), zap.Error(err))
		}
	}
}

func (e *Engine) stashPending(tabID int, url string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending[tabID] = url
}

// PendingLazyURL returns the stashed target URL for a lazily created tab and
// clears it. One-shot: the second call for the same tab reports false.
func (e *Engine) PendingLazyURL(tabID int) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	url, ok := e.pending[tabID]
	if ok {
		delete(e.pending, tabID)
	}
	return url, ok
}
