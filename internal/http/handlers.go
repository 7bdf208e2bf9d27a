package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tabvault/tabvault/internal/backup"
	"github.com/tabvault/tabvault/internal/infrastructure/monitoring"
	"github.com/tabvault/tabvault/internal/logging"
	"github.com/tabvault/tabvault/internal/recovery"
	"github.com/tabvault/tabvault/internal/search"
	"github.com/tabvault/tabvault/internal/session"
	"github.com/tabvault/tabvault/internal/store"
	"github.com/tabvault/tabvault/internal/types"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	sessions *session.Manager
	backups  *backup.Manager
	index    *search.Index
	machine  *recovery.Machine
	store    *store.Store
	metrics  *monitoring.Metrics
	logger   *logging.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(
	sessions *session.Manager,
	backups *backup.Manager,
	index *search.Index,
	machine *recovery.Machine,
	st *store.Store,
	metrics *monitoring.Metrics,
	logger *logging.Logger,
) *Handlers {
	return &Handlers{
		sessions: sessions,
		backups:  backups,
		index:    index,
		machine:  machine,
		store:    st,
		metrics:  metrics,
		logger:   logger,
	}
}

// Root handles the basic liveness check.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "tabvault",
	})
}

// Health handles the detailed health check.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"metrics": h.metrics.GetSnapshot(),
	})
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, types.Response{Success: true, Data: data})
}

// fail maps domain errors onto HTTP status codes and the uniform response
// shape. The boundary never lets an error escape unhandled.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrFolderNotFound),
		errors.Is(err, backup.ErrSessionNotFound),
		errors.Is(err, backup.ErrVersionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrNoValidTabs),
		errors.Is(err, session.ErrNoTabsToBackup),
		errors.Is(err, session.ErrNotEnoughSessions),
		errors.Is(err, backup.ErrBadEnvelope):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrCorruptSession):
		status = http.StatusConflict
	}
	c.JSON(status, types.Response{Success: false, Error: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, types.Response{Success: false, Error: err.Error()})
}

func notFound(c *gin.Context, what string) {
	c.JSON(http.StatusNotFound, types.Response{Success: false, Error: what + " not found"})
}
