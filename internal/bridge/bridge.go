// Package bridge connects the capture/restore engine to the live browser.
// The extension opens one WebSocket here and answers browser commands
// (enumerate tabs, create windows, group tabs, snapshot page state) issued
// by this process. One command, one correlated reply.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tabvault/tabvault/internal/browser"
	"github.com/tabvault/tabvault/internal/logging"
	"github.com/tabvault/tabvault/internal/shared/id"
	"github.com/tabvault/tabvault/internal/types"
)

var (
	// ErrNotConnected is returned when no browser extension is attached.
	ErrNotConnected = errors.New("no browser connected")

	// ErrCallTimeout is returned when the browser does not answer in time.
	ErrCallTimeout = errors.New("browser call timed out")
)

const callTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// command is one request to the extension.
type command struct {
	ID     string      `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// reply is the extension's answer, correlated by id.
type reply struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Bridge implements browser.Host and browser.PageStateProvider over a
// WebSocket to the extension. At most one browser is attached; a newer
// connection replaces the old one.
type Bridge struct {
	logger *logging.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	pending map[string]chan reply
}

func New(logger *logging.Logger) *Bridge {
	return &Bridge{
		logger:  logger,
		pending: make(map[string]chan reply),
	}
}

// Connected reports whether a browser is currently attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// HandleConnection attaches the extension's WebSocket and pumps replies
// until it disconnects.
func (b *Bridge) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		b.logger.Warn("bridge upgrade failed", zap.Error(err))
		return
	}

	b.mu.Lock()
	if b.conn != nil {
		b.conn.Close()
	}
	b.conn = conn
	b.mu.Unlock()
	b.logger.Info("browser connected")

	for {
		var r reply
		if err := conn.ReadJSON(&r); err != nil {
			break
		}
		b.mu.Lock()
		ch, ok := b.pending[r.ID]
		if ok {
			delete(b.pending, r.ID)
		}
		b.mu.Unlock()
		if ok {
			ch <- r
		}
	}

	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	b.mu.Unlock()
	conn.Close()
	b.logger.Info("browser disconnected")
}

// call sends one command and blocks for its correlated reply.
func (b *Bridge) call(ctx context.Context, method string, params, out interface{}) error {
	b.mu.Lock()
	conn := b.conn
	if conn == nil {
		b.mu.Unlock()
		return ErrNotConnected
	}
	cmd := command{ID: id.NewRequestID(), Method: method, Params: params}
	ch := make(chan reply, 1)
	b.pending[cmd.ID] = ch
	b.mu.Unlock()

	b.writeMu.Lock()
	err := conn.WriteJSON(cmd)
	b.writeMu.Unlock()
	if err != nil {
		b.drop(cmd.ID)
		return fmt.Errorf("bridge write failed: %w", err)
	}

	timer := time.NewTimer(callTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		if r.Error != "" {
			return errors.New(r.Error)
		}
		if out != nil && len(r.Result) > 0 {
			return sonic.Unmarshal(r.Result, out)
		}
		return nil
	case <-timer.C:
		b.drop(cmd.ID)
		return ErrCallTimeout
	case <-ctx.Done():
		b.drop(cmd.ID)
		return ctx.Err()
	}
}

func (b *Bridge) drop(callID string) {
	b.mu.Lock()
	delete(b.pending, callID)
	b.mu.Unlock()
}

// QueryTabs enumerates open tabs.
func (b *Bridge) QueryTabs(ctx context.Context, currentWindowOnly bool) ([]browser.Tab, error) {
	var tabs []browser.Tab
	params := map[string]bool{"current_window": currentWindowOnly}
	if err := b.call(ctx, "query_tabs", params, &tabs); err != nil {
		return nil, err
	}
	return tabs, nil
}

// GetGroup fetches live group details.
func (b *Bridge) GetGroup(ctx context.Context, groupID int) (browser.Group, error) {
	var group browser.Group
	err := b.call(ctx, "get_group", map[string]int{"group_id": groupID}, &group)
	return group, err
}

// CreateWindow opens a new browser window.
func (b *Bridge) CreateWindow(ctx context.Context) (browser.Window, error) {
	var window browser.Window
	err := b.call(ctx, "create_window", nil, &window)
	return window, err
}

// CreateTab opens one tab.
func (b *Bridge) CreateTab(ctx context.Context, opts browser.CreateTabOptions) (browser.Tab, error) {
	var tab browser.Tab
	params := map[string]interface{}{
		"window_id": opts.WindowID,
		"url":       opts.URL,
		"pinned":    opts.Pinned,
		"active":    opts.Active,
		"index":     opts.Index,
	}
	err := b.call(ctx, "create_tab", params, &tab)
	return tab, err
}

// GroupTabs puts tabs into a fresh group.
func (b *Bridge) GroupTabs(ctx context.Context, windowID int, tabIDs []int) (int, error) {
	var result struct {
		GroupID int `json:"group_id"`
	}
	params := map[string]interface{}{"window_id": windowID, "tab_ids": tabIDs}
	if err := b.call(ctx, "group_tabs", params, &result); err != nil {
		return 0, err
	}
	return result.GroupID, nil
}

// AddTabsToGroup adds tabs to an existing group.
func (b *Bridge) AddTabsToGroup(ctx context.Context, groupID int, tabIDs []int) error {
	params := map[string]interface{}{"group_id": groupID, "tab_ids": tabIDs}
	return b.call(ctx, "add_tabs_to_group", params, nil)
}

// UpdateGroup applies color and title to a group.
func (b *Bridge) UpdateGroup(ctx context.Context, groupID int, color, title string) error {
	params := map[string]interface{}{"group_id": groupID, "color": color, "title": title}
	return b.call(ctx, "update_group", params, nil)
}

// RemoveTab closes a tab.
func (b *Bridge) RemoveTab(ctx context.Context, tabID int) error {
	return b.call(ctx, "remove_tab", map[string]int{"tab_id": tabID}, nil)
}

// Snapshot requests scroll/form state for one tab from the content agent.
func (b *Bridge) Snapshot(ctx context.Context, tabID int, wantScroll, wantFormData bool) (*types.PageState, error) {
	var state types.PageState
	params := map[string]interface{}{
		"tab_id":    tabID,
		"scroll":    wantScroll,
		"form_data": wantFormData,
	}
	if err := b.call(ctx, "page_state", params, &state); err != nil {
		return nil, err
	}
	return &state, nil
}
