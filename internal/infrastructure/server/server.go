package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	sd "github.com/coreos/go-systemd/v22/dbus"
	"github.com/gin-gonic/gin"
	"github.com/godbus/dbus/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/denix0/applaunchd/internal/api/http"
	"github.com/denix0/applaunchd/internal/api/middleware"
	"github.com/denix0/applaunchd/internal/api/ws"
	"github.com/denix0/applaunchd/internal/domain/catalog"
	"github.com/denix0/applaunchd/internal/domain/discovery"
	"github.com/denix0/applaunchd/internal/domain/launcher"
	"github.com/denix0/applaunchd/internal/infrastructure/config"
	"github.com/denix0/applaunchd/internal/infrastructure/logging"
	"github.com/denix0/applaunchd/internal/infrastructure/monitoring"
)

// Server wires the catalog, launcher, backends and control-plane surface.
type Server struct {
	router   *gin.Engine
	catalog  *catalog.Catalog
	launcher *launcher.Launcher
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics

	httpSrv     *http.Server
	sessionBus  *dbus.Conn
	systemdConn *sd.Conn
}

// NewServer creates a fully wired server instance.
func NewServer(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing applaunchd",
		zap.String("port", cfg.Server.Port),
		zap.Bool("systemd_units", cfg.Launcher.SystemdUnits),
	)

	metrics := monitoring.NewMetrics()

	// Populate the catalog before serving; membership is fixed afterwards.
	cat := catalog.New()
	scanner := discovery.NewScanner(cfg.Discovery.DataDirs, cfg.Launcher.SystemdUnits, logger)
	if err := scanner.Populate(cat); err != nil {
		return nil, fmt.Errorf("discovering applications: %w", err)
	}
	logger.Info("Application catalog populated", zap.Int("applications", cat.Len()))

	l := launcher.New(cat, logger).WithMetrics(metrics)

	srv := &Server{
		catalog:  cat,
		launcher: l,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}

	// Bus-activation backend needs the session bus. Its absence is not
	// fatal: bus-activated records simply cannot start until the daemon
	// runs inside a session.
	if sessionBus, err := dbus.SessionBus(); err != nil {
		logger.Warn("Session bus unavailable, bus activation disabled", zap.Error(err))
	} else {
		srv.sessionBus = sessionBus
		launcher.NewBusBackend(l, sessionBus, logger)
		logger.Info("Bus-activation backend ready")
	}

	if cfg.Launcher.SystemdUnits {
		conn, err := sd.NewSystemConnectionContext(context.Background())
		if err != nil {
			logger.Warn("System bus unavailable, unit activation disabled", zap.Error(err))
		} else if _, err := launcher.NewUnitBackend(l, conn, cfg.Launcher.UnitTemplate, logger); err != nil {
			conn.Close()
			logger.Warn("Unit-activation backend unavailable", zap.Error(err))
		} else {
			srv.systemdConn = conn
			logger.Info("Unit-activation backend ready")
		}
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	handlers := apihttp.NewHandlers(l, cat, logger)
	wsHandler := ws.NewHandler(l, logger, metrics)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/applications", handlers.ListApplications)
	router.GET("/applications/:id", handlers.GetApplicationStatus)
	router.POST("/applications/:id/start", handlers.StartApplication)

	router.GET("/stream", wsHandler.HandleConnection)

	srv.router = router
	return srv, nil
}

// Run starts the control-plane HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Control plane listening", zap.String("addr", addr))

	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close stops the HTTP server and tears down backends and bus
// connections, in that order, so no backend observes a closed connection.
func (s *Server) Close() error {
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Warn("HTTP shutdown error", zap.Error(err))
		}
	}

	s.launcher.Close()

	if s.sessionBus != nil {
		s.sessionBus.Close()
	}
	if s.systemdConn != nil {
		s.systemdConn.Close()
	}

	s.logger.Info("Shutdown complete")
	return s.logger.Sync()
}
