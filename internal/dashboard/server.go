package dashboard

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"rektflow/config"
	"rektflow/internal/chart"
	"rektflow/internal/rekt"
	"rektflow/logger"
)

// Server hosts the JSON chart API and the websocket push endpoint.
type Server struct {
	cfg        config.DashboardConfig
	state      *chart.State
	log        *logger.Log
	httpServer *http.Server
	hub        *hub
}

// NewServer constructs a dashboard server when the dashboard feature is
// enabled. When the dashboard is disabled the returned server will be nil.
func NewServer(cfg config.DashboardConfig, state *chart.State, log *logger.Log) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cfg.Address = normalizeAddress(cfg.Address)

	return &Server{
		cfg:   cfg,
		state: state,
		log:   log,
		hub:   newHub(state, cfg.PushInterval),
	}, nil
}

// Run starts the dashboard HTTP server and blocks until the provided
// context is cancelled or the underlying HTTP server exits with an error.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	go s.hub.run(ctx)

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// Address reports the network address the dashboard server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

type createAnchorRequest struct {
	Time      int64  `json:"time" binding:"required"`
	Kind      string `json:"kind" binding:"required"`
	Color     string `json:"color"`
	LineWidth int    `json:"line_width"`
}

type topAnchorsRequest struct {
	Kind  string `json:"kind" binding:"required"`
	Count int    `json:"count" binding:"required"`
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	api.GET("/symbols", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"symbols": s.state.Symbols()})
	})

	api.GET("/labels/:symbol", func(c *gin.Context) {
		base, quote := chart.CurrencyLabels(c.Param("symbol"))
		c.JSON(http.StatusOK, gin.H{"base": base, "quote": quote})
	})

	api.GET("/markers/:symbol", func(c *gin.Context) {
		symbol := upperSymbol(c)
		markers := s.state.Markers(symbol)
		if c.Query("timeframe") == "higher" {
			markers = s.state.HigherTimeframeMarkers(symbol)
		}
		c.JSON(http.StatusOK, gin.H{"symbol": symbol, "markers": markers})
	})

	api.GET("/candles/:symbol", func(c *gin.Context) {
		symbol := upperSymbol(c)
		c.JSON(http.StatusOK, gin.H{"symbol": symbol, "candles": s.state.Candles(symbol)})
	})

	api.GET("/volume/:symbol", func(c *gin.Context) {
		symbol := upperSymbol(c)
		c.JSON(http.StatusOK, gin.H{"symbol": symbol, "volume": s.state.Volume(symbol)})
	})

	api.GET("/open-interest/:symbol", func(c *gin.Context) {
		symbol := upperSymbol(c)
		c.JSON(http.StatusOK, gin.H{"symbol": symbol, "open_interest": s.state.OpenInterest(symbol)})
	})

	api.GET("/position-ratio/:symbol", func(c *gin.Context) {
		symbol := upperSymbol(c)
		c.JSON(http.StatusOK, gin.H{"symbol": symbol, "position_ratio": s.state.PositionRatio(symbol)})
	})

	api.GET("/pivots/:symbol", func(c *gin.Context) {
		symbol := upperSymbol(c)
		c.JSON(http.StatusOK, gin.H{"symbol": symbol, "pivots": s.state.Pivots(symbol)})
	})

	api.GET("/anchors/:symbol", func(c *gin.Context) {
		symbol := upperSymbol(c)
		c.JSON(http.StatusOK, gin.H{"symbol": symbol, "anchors": s.state.Anchors(symbol)})
	})

	api.POST("/anchors/:symbol", func(c *gin.Context) {
		symbol := upperSymbol(c)
		var req createAnchorRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		kind, ok := parseAnchorKind(req.Kind)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown anchor kind " + req.Kind})
			return
		}
		lineWidth := req.LineWidth
		if lineWidth <= 0 {
			lineWidth = 1
		}
		anchor, err := s.state.CreateAnchor(symbol, req.Time, kind, req.Color, lineWidth)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"anchor": anchor})
	})

	api.DELETE("/anchors/:symbol/:id", func(c *gin.Context) {
		symbol := upperSymbol(c)
		if !s.state.RemoveAnchor(symbol, c.Param("id")) {
			c.JSON(http.StatusNotFound, gin.H{"error": "anchor not found"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/anchors/:symbol/top", func(c *gin.Context) {
		symbol := upperSymbol(c)
		var req topAnchorsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		kind, ok := parseAnchorKind(req.Kind)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown anchor kind " + req.Kind})
			return
		}
		created := s.state.AnchorTopMarkers(symbol, kind, req.Count)
		c.JSON(http.StatusCreated, gin.H{"anchors": created})
	})

	api.GET("/combined/:symbol", func(c *gin.Context) {
		symbol := upperSymbol(c)
		anchorTime, err := strconv.ParseInt(c.Query("anchor"), 10, 64)
		if err != nil || anchorTime <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "anchor query parameter must be a positive epoch time"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"symbol": symbol,
			"anchor": anchorTime,
			"points": s.state.CombinedIndicator(symbol, anchorTime),
		})
	})

	router.GET("/ws", func(c *gin.Context) {
		s.hub.serve(c.Writer, c.Request)
	})

	return router, nil
}

func upperSymbol(c *gin.Context) string {
	return strings.ToUpper(c.Param("symbol"))
}

func parseAnchorKind(raw string) (rekt.AnchorKind, bool) {
	switch strings.ToLower(raw) {
	case "vwap":
		return rekt.KindVWAP, true
	case "alwap":
		return rekt.KindALWAP, true
	case "alwap_long", "alwaplong":
		return rekt.KindALWAPLong, true
	case "alwap_short", "alwapshort":
		return rekt.KindALWAPShort, true
	default:
		return "", false
	}
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "0.0.0.0:8088"
	}
	if strings.HasPrefix(addr, ":") {
		return "0.0.0.0" + addr
	}
	return addr
}
