package ws

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tabvault/tabvault/internal/backup"
	"github.com/tabvault/tabvault/internal/browser"
	"github.com/tabvault/tabvault/internal/infrastructure/monitoring"
	"github.com/tabvault/tabvault/internal/logging"
	"github.com/tabvault/tabvault/internal/recovery"
	"github.com/tabvault/tabvault/internal/search"
	"github.com/tabvault/tabvault/internal/session"
	"github.com/tabvault/tabvault/internal/store"
	"github.com/tabvault/tabvault/internal/types"
)

// ErrUnknownType is the reply for unrecognized operation tags.
var ErrUnknownType = errors.New("Unknown message type")

const requestTimeout = 30 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler serves the request/response message protocol over a WebSocket.
// Every request gets exactly one response; there is no fire-and-forget.
type Handler struct {
	sessions *session.Manager
	backups  *backup.Manager
	index    *search.Index
	machine  *recovery.Machine
	engine   *browser.Engine
	store    *store.Store
	metrics  *monitoring.Metrics
	logger   *logging.Logger
}

func NewHandler(
	sessions *session.Manager,
	backups *backup.Manager,
	index *search.Index,
	machine *recovery.Machine,
	engine *browser.Engine,
	st *store.Store,
	metrics *monitoring.Metrics,
	logger *logging.Logger,
) *Handler {
	return &Handler{
		sessions: sessions,
		backups:  backups,
		index:    index,
		machine:  machine,
		engine:   engine,
		store:    st,
		metrics:  metrics,
		logger:   logger,
	}
}

// response is one reply on the wire: the request's type echoed back plus the
// uniform result shape.
type response struct {
	Type string `json:"type"`
	types.Response
}

// HandleConnection upgrades the connection and serves requests until the
// peer disconnects.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	parent := c.Request.Context()
	for {
		var msg types.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		h.metrics.RecordWSMessage("in", msg.Type)

		ctx, cancel := context.WithTimeout(parent, requestTimeout)
		data, err := h.dispatch(ctx, msg)
		cancel()

		reply := response{Type: msg.Type}
		if err != nil {
			reply.Error = err.Error()
		} else {
			reply.Success = true
			reply.Data = data
		}
		if err := conn.WriteJSON(reply); err != nil {
			h.logger.Warn("websocket write failed", zap.Error(err))
			return
		}
		h.metrics.RecordWSMessage("out", msg.Type)
	}
}

// dispatch routes one request. All handler errors are returned, never
// propagated past the boundary.
func (h *Handler) dispatch(ctx context.Context, msg types.WSMessage) (interface{}, error) {
	switch msg.Type {
	case "ping":
		return "pong", nil

	case "save_session":
		var req types.SaveRequest
		if err := decode(msg.Payload, &req); err != nil {
			return nil, err
		}
		return h.sessions.Create(ctx, req)

	case "get_sessions":
		return h.sessions.List(ctx)

	case "get_session":
		id, err := payloadID(msg.Payload)
		if err != nil {
			return nil, err
		}
		found, err := h.sessions.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if found == nil {
			return nil, session.ErrSessionNotFound
		}
		return found, nil

	case "update_session":
		var req struct {
			ID string `json:"id"`
			types.UpdateRequest
		}
		if err := decode(msg.Payload, &req); err != nil {
			return nil, err
		}
		updated, err := h.sessions.Update(ctx, req.ID, req.UpdateRequest)
		if err != nil {
			return nil, err
		}
		if updated == nil {
			return nil, session.ErrSessionNotFound
		}
		return updated, nil

	case "delete_session":
		id, err := payloadID(msg.Payload)
		if err != nil {
			return nil, err
		}
		return nil, h.sessions.Delete(ctx, id)

	case "restore_session":
		var req struct {
			ID string `json:"id"`
			types.RestoreRequest
		}
		if err := decode(msg.Payload, &req); err != nil {
			return nil, err
		}
		return h.sessions.Restore(ctx, req.ID, req.RestoreRequest)

	case "duplicate_session":
		var req struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		if err := decode(msg.Payload, &req); err != nil {
			return nil, err
		}
		return h.sessions.Duplicate(ctx, req.ID, req.Name)

	case "merge_sessions":
		var req types.MergeRequest
		if err := decode(msg.Payload, &req); err != nil {
			return nil, err
		}
		return h.sessions.Merge(ctx, req.IDs, req.Name)

	case "split_session":
		id, err := payloadID(msg.Payload)
		if err != nil {
			return nil, err
		}
		return h.sessions.Split(ctx, id)

	case "get_folders":
		return h.sessions.ListFolders(ctx)

	case "create_folder":
		var req struct {
			Name     string `json:"name"`
			Color    string `json:"color"`
			Icon     string `json:"icon"`
			ParentID string `json:"parent_id"`
		}
		if err := decode(msg.Payload, &req); err != nil {
			return nil, err
		}
		return h.sessions.CreateFolder(ctx, req.Name, req.Color, req.Icon, req.ParentID)

	case "update_folder":
		var req struct {
			ID    string  `json:"id"`
			Name  *string `json:"name"`
			Color *string `json:"color"`
			Icon  *string `json:"icon"`
		}
		if err := decode(msg.Payload, &req); err != nil {
			return nil, err
		}
		return h.sessions.UpdateFolder(ctx, req.ID, req.Name, req.Color, req.Icon)

	case "delete_folder":
		id, err := payloadID(msg.Payload)
		if err != nil {
			return nil, err
		}
		return nil, h.sessions.DeleteFolder(ctx, id)

	case "get_settings":
		return h.store.GetSettings(ctx)

	case "update_settings":
		settings, err := h.store.GetSettings(ctx)
		if err != nil {
			return nil, err
		}
		previous := settings.BackupIntervalMinutes
		if err := decode(msg.Payload, &settings); err != nil {
			return nil, err
		}
		if err := h.store.SaveSettings(ctx, settings); err != nil {
			return nil, err
		}
		if settings.BackupIntervalMinutes != previous {
			h.machine.Reschedule(settings.BackupIntervalMinutes)
		}
		return settings, nil

	case "search_sessions":
		var req struct {
			Query string `json:"query"`
		}
		if err := decode(msg.Payload, &req); err != nil {
			return nil, err
		}
		return h.index.SearchSessions(ctx, req.Query)

	case "search_with_filters":
		var filters search.Filters
		if err := decode(msg.Payload, &filters); err != nil {
			return nil, err
		}
		return h.index.SearchWithFilters(ctx, filters)

	case "search_tabs":
		var req struct {
			Query     string `json:"query"`
			SessionID string `json:"session_id"`
		}
		if err := decode(msg.Payload, &req); err != nil {
			return nil, err
		}
		if req.SessionID != "" {
			return h.index.SearchTabsInSession(ctx, req.SessionID, req.Query)
		}
		return h.index.SearchTabsGlobal(ctx, req.Query)

	case "export_sessions":
		var req types.ExportRequest
		if err := decode(msg.Payload, &req); err != nil {
			return nil, err
		}
		blob, err := h.backups.ExportSessionsJSON(ctx, req.IDs, req.IncludeSettings)
		if err != nil {
			return nil, err
		}
		return base64.StdEncoding.EncodeToString(blob), nil

	case "import_sessions":
		var req types.ImportRequest
		if err := decode(msg.Payload, &req); err != nil {
			return nil, err
		}
		data := []byte(req.Data)
		var quoted string
		if err := sonic.Unmarshal(req.Data, &quoted); err == nil {
			if decoded, err := base64.StdEncoding.DecodeString(quoted); err == nil {
				data = decoded
			} else {
				data = []byte(quoted)
			}
		}
		return h.backups.ImportJSON(ctx, data, req.Overwrite, req.ImportSettings)

	case "create_version":
		id, err := payloadID(msg.Payload)
		if err != nil {
			return nil, err
		}
		return h.backups.CreateVersion(ctx, id)

	case "get_versions":
		id, err := payloadID(msg.Payload)
		if err != nil {
			return nil, err
		}
		return h.backups.ListVersions(ctx, id)

	case "restore_version":
		var req struct {
			ID        string `json:"id"`
			VersionID string `json:"version_id"`
		}
		if err := decode(msg.Payload, &req); err != nil {
			return nil, err
		}
		return h.backups.RestoreVersion(ctx, req.ID, req.VersionID)

	case "delete_version_history":
		id, err := payloadID(msg.Payload)
		if err != nil {
			return nil, err
		}
		return nil, h.backups.DeleteVersionHistory(ctx, id)

	case "get_lazy_url":
		// The extension asks for the real target when a lazily restored
		// tab becomes active. One-shot per tab.
		var req struct {
			TabID int `json:"tab_id"`
		}
		if err := decode(msg.Payload, &req); err != nil {
			return nil, err
		}
		url, pending := h.engine.PendingLazyURL(req.TabID)
		return map[string]interface{}{"url": url, "pending": pending}, nil

	case "emergency_backup":
		return h.sessions.CreateEmergency(ctx)

	case "get_emergency_sessions":
		return h.sessions.EmergencySessions(ctx)

	case "clear_emergency_sessions":
		return nil, h.sessions.ClearEmergencySessions(ctx)

	case "check_crash":
		detected, _, err := h.machine.WasCrashDetected(ctx)
		return detected, err

	case "clear_crash":
		return nil, h.machine.ClearCrashDetection(ctx)

	case "get_statistics":
		return h.store.GetStatistics(ctx)

	case "clear_statistics":
		return nil, h.store.ClearStatistics(ctx)

	default:
		return nil, ErrUnknownType
	}
}

func decode(payload []byte, out interface{}) error {
	if len(payload) == 0 {
		return nil
	}
	return sonic.Unmarshal(payload, out)
}

func payloadID(payload []byte) (string, error) {
	var req struct {
		ID string `json:"id"`
	}
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	if req.ID == "" {
		return "", errors.New("missing id")
	}
	return req.ID, nil
}
