package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"volume-observer/src/helpers"
	"volume-observer/src/logger"
	"volume-observer/src/models"

	"github.com/gin-gonic/gin"
)

// Analyzer is the part of the analysis facade the HTTP layer drives.
type Analyzer interface {
	Fit(ctx context.Context, req models.MFitRequest) (*models.MFitResult, error)
	Decompose(req models.MDecomposeRequest) (*models.MDecomposition, error)
	ForecastNext(req models.MForecastRequest) (*models.MForecast, error)
	Model(symbol string) (*models.MVolumeModel, error)
	Symbols() []string
}

// -----------------------------------------------------------------------------
// FastAPIServer
// -----------------------------------------------------------------------------

type FastAPIServer struct {
	Config     *models.MConfig
	Logger     *logger.Logger
	engine     *gin.Engine
	httpSrv    *http.Server
	errHandler *helpers.ErrorHandler
	analyzer   Analyzer

	// WebSocket clients
	clients    map[*Client]struct{}
	broadcast  chan models.MFitProgress
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	// Latest progress per symbol
	latest      map[string]models.MFitProgress
	latestStamp int64
	stateMutex  sync.RWMutex
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewFastAPIServer(cfg *models.MConfig, log *logger.Logger) *FastAPIServer {
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &FastAPIServer{
		Config:     cfg,
		Logger:     log,
		engine:     gin.New(),
		errHandler: helpers.NewErrorHandler(log.Named("errors")),
		clients:    make(map[*Client]struct{}),
		// Queue size of 256 absorbs a burst of iterations from parallel fits
		broadcast:  make(chan models.MFitProgress, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		latest:     make(map[string]models.MFitProgress),
	}
	s.engine.Use(gin.Recovery())

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	s.setupRoutes()
	return s
}

// SetAnalyzer attaches the analysis facade. The facade itself publishes
// progress through this server, so the two are wired after construction.
func (s *FastAPIServer) SetAnalyzer(a Analyzer) {
	s.analyzer = a
}

// Handler exposes the router, mainly for httptest.
func (s *FastAPIServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *FastAPIServer) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)
	api.GET("/config", s.getConfig)
	api.GET("/progress", s.getProgress)
	api.GET("/symbols", s.getSymbols)
	api.GET("/models/:symbol", s.getModel)
	api.POST("/fit", s.postFit)
	api.POST("/decompose", s.postDecompose)
	api.POST("/forecast", s.postForecast)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Start serves until Stop is called.
func (s *FastAPIServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	s.httpSrv = &http.Server{Addr: addr, Handler: s.engine}
	go s.handleWebsockets()

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.done)
		if s.httpSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = s.httpSrv.Shutdown(ctx)
		}
	})
	return err
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *FastAPIServer) getHealth(c *gin.Context) {
	s.stateMutex.RLock()
	connections := len(s.clients)
	timestamp := s.latestStamp
	s.stateMutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"connections":   connections,
		"latest_update": timestamp,
	})
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"bins_per_day": s.Config.DataSource.BinsPerDay,
		"symbols":      s.Config.DataSource.Symbols,
		"estimator":    s.Config.Estimator,
	})
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getProgress(c *gin.Context) {
	c.JSON(http.StatusOK, s.snapshot(nil))
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getSymbols(c *gin.Context) {
	if !s.ready(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": s.analyzer.Symbols()})
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) getModel(c *gin.Context) {
	if !s.ready(c) {
		return
	}
	model, err := s.analyzer.Model(c.Param("symbol"))
	if err != nil {
		s.fail(c, err, "model")
		return
	}
	c.JSON(http.StatusOK, model)
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) postFit(c *gin.Context) {
	if !s.ready(c) {
		return
	}
	var req models.MFitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, helpers.NewInvalidInputError("bad fit request: %v", err), "fit")
		return
	}

	res, err := s.analyzer.Fit(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err, "fit")
		return
	}
	c.JSON(http.StatusOK, fitResponse(res))
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) postDecompose(c *gin.Context) {
	if !s.ready(c) {
		return
	}
	var req models.MDecomposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, helpers.NewInvalidInputError("bad decompose request: %v", err), "decompose")
		return
	}

	dec, err := s.analyzer.Decompose(req)
	if err != nil {
		s.fail(c, err, "decompose")
		return
	}
	c.JSON(http.StatusOK, decompositionResponse(dec))
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) postForecast(c *gin.Context) {
	if !s.ready(c) {
		return
	}
	var req models.MForecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, helpers.NewInvalidInputError("bad forecast request: %v", err), "forecast")
		return
	}

	fc, err := s.analyzer.ForecastNext(req)
	if err != nil {
		s.fail(c, err, "forecast")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":    fc.Symbol,
		"forecasts": safeSeries(fc.Forecasts),
		"next_bin":  fc.NextBin,
		"next":      safeFloat64(fc.Next),
	})
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) ready(c *gin.Context) bool {
	if s.analyzer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analysis not ready"})
		return false
	}
	return true
}

func (s *FastAPIServer) fail(c *gin.Context, err error, where string) {
	status := s.errHandler.Handle(err, where)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusRequestTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
