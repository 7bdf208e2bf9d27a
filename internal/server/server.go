package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tabvault/tabvault/internal/backup"
	"github.com/tabvault/tabvault/internal/bridge"
	"github.com/tabvault/tabvault/internal/browser"
	"github.com/tabvault/tabvault/internal/config"
	apihttp "github.com/tabvault/tabvault/internal/http"
	"github.com/tabvault/tabvault/internal/infrastructure/monitoring"
	"github.com/tabvault/tabvault/internal/infrastructure/tracing"
	"github.com/tabvault/tabvault/internal/logging"
	"github.com/tabvault/tabvault/internal/middleware"
	"github.com/tabvault/tabvault/internal/recovery"
	"github.com/tabvault/tabvault/internal/search"
	"github.com/tabvault/tabvault/internal/session"
	"github.com/tabvault/tabvault/internal/store"
	"github.com/tabvault/tabvault/internal/ws"
)

// Server wires the store, managers, and transport together.
type Server struct {
	cfg     *config.Config
	logger  *logging.Logger
	router  *gin.Engine
	httpSrv *http.Server

	store   *store.Store
	machine *recovery.Machine
}

// New builds a fully wired server. The browser bridge starts disconnected;
// captures fail cleanly until the extension attaches.
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	metrics := monitoring.NewMetrics()
	br := bridge.New(logger)
	engine := browser.NewEngine(br, br, logger)

	sessions := session.NewManager(st, engine, logger)
	backups := backup.NewManager(st, logger)
	index := search.NewIndex(st, logger)
	sessions.SetInvalidator(index)
	sessions.SetRecorder(metrics)
	backups.SetInvalidator(index)

	machine := recovery.NewMachine(st, sessions, recovery.NewMemoryFlag(), logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(cfg.RateLimit))
	}
	router.Use(monitoring.Middleware(metrics))
	router.Use(tracing.HTTPMiddleware(tracing.New("tabvault", logger.Logger)))

	handlers := apihttp.NewHandlers(sessions, backups, index, machine, st, metrics, logger)
	wsHandler := ws.NewHandler(sessions, backups, index, machine, engine, st, metrics, logger)

	registerRoutes(router, handlers, wsHandler, br)

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		httpSrv: &http.Server{
			Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		store:   st,
		machine: machine,
	}
	return srv, nil
}

func registerRoutes(router *gin.Engine, h *apihttp.Handlers, wsHandler *ws.Handler, br *bridge.Bridge) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Sessions
	router.POST("/sessions", h.SaveSession)
	router.GET("/sessions", h.ListSessions)
	router.GET("/sessions/:id", h.GetSession)
	router.PUT("/sessions/:id", h.UpdateSession)
	router.DELETE("/sessions/:id", h.DeleteSession)
	router.POST("/sessions/:id/restore", h.RestoreSession)
	router.POST("/sessions/:id/duplicate", h.DuplicateSession)
	router.POST("/sessions/:id/split", h.SplitSession)
	router.POST("/sessions/merge", h.MergeSessions)

	// Version history
	router.POST("/sessions/:id/versions", h.CreateVersion)
	router.GET("/sessions/:id/versions", h.ListVersions)
	router.POST("/sessions/:id/versions/:versionId/restore", h.RestoreVersion)
	router.DELETE("/sessions/:id/versions", h.DeleteVersionHistory)

	// Folders
	router.GET("/folders", h.ListFolders)
	router.POST("/folders", h.CreateFolder)
	router.PUT("/folders/:id", h.UpdateFolder)
	router.DELETE("/folders/:id", h.DeleteFolder)

	// Settings and statistics
	router.GET("/settings", h.GetSettings)
	router.PUT("/settings", h.UpdateSettings)
	router.GET("/statistics", h.GetStatistics)
	router.DELETE("/statistics", h.ClearStatistics)

	// Search
	router.GET("/search", h.SearchSessions)
	router.POST("/search/filters", h.SearchWithFilters)
	router.GET("/search/tabs", h.SearchTabs)

	// Export / import
	router.POST("/export", h.ExportSessions)
	router.POST("/import", h.ImportSessions)

	// Crash recovery
	router.GET("/emergency", h.GetEmergencySessions)
	router.POST("/emergency", h.TriggerEmergencyBackup)
	router.DELETE("/emergency", h.ClearEmergencySessions)
	router.GET("/crash", h.CheckCrash)
	router.DELETE("/crash", h.ClearCrash)

	// Extension channels
	router.GET("/stream", wsHandler.HandleConnection)
	router.GET("/bridge", br.HandleConnection)
}

// Run initializes crash recovery and serves until the listener fails or
// Shutdown is called.
func (s *Server) Run(ctx context.Context) error {
	if err := s.machine.Initialize(ctx); err != nil {
		return err
	}

	s.logger.Info("server listening", zap.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown runs the clean exit path: final emergency backup, stop the
// timers, drain HTTP, close the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.machine.Shutdown(ctx)

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
	return s.store.Close()
}
