// Package api exposes backtests, portfolios and simulated orders over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"papertrader/backtest"
	"papertrader/journal"
	"papertrader/sim"
	"papertrader/strategies"
)

const dateLayout = "2006-01-02"

// Store is the journal surface the API reads directly. Writes go through
// the backtest service and the order executor.
type Store interface {
	CreatePortfolio(ctx context.Context, name string, initialCapital float64) (*journal.Portfolio, error)
	GetPortfolio(ctx context.Context, portfolioID string) (*journal.Portfolio, error)
	ListPortfolios(ctx context.Context) ([]*journal.Portfolio, error)
	ListOrders(ctx context.Context, portfolioID string) ([]*sim.Order, error)
	ListBacktests(ctx context.Context) ([]*backtest.Job, error)
	DeleteBacktest(ctx context.Context, jobID string) error
}

// Server wires the HTTP surface to the service layer.
type Server struct {
	backtests *backtest.Service
	executor  *sim.Executor
	store     Store
	log       *zap.Logger

	defaultCapital float64
	allowedOrigins []string
}

func NewServer(backtests *backtest.Service, executor *sim.Executor, store Store,
	defaultCapital float64, allowedOrigins []string, log *zap.Logger) *Server {

	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		backtests:      backtests,
		executor:       executor,
		store:          store,
		log:            log,
		defaultCapital: defaultCapital,
		allowedOrigins: allowedOrigins,
	}
}

// Handler returns the complete HTTP handler: gin routes wrapped in CORS.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/strategies", s.listStrategies)

		v1.POST("/backtests", s.createBacktest)
		v1.GET("/backtests", s.listBacktests)
		v1.GET("/backtests/:id", s.getBacktest)
		v1.DELETE("/backtests/:id", s.deleteBacktest)

		v1.POST("/portfolios", s.createPortfolio)
		v1.GET("/portfolios", s.listPortfolios)
		v1.GET("/portfolios/:id", s.getPortfolio)
		v1.GET("/portfolios/:id/orders", s.listOrders)
		v1.POST("/portfolios/:id/refresh", s.refreshPortfolio)

		v1.POST("/orders", s.createOrder)
		v1.GET("/orders/:id", s.getOrder)
		v1.PUT("/orders/:id/cancel", s.cancelOrder)
	}

	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	}
	if len(s.allowedOrigins) > 0 {
		opts.AllowedOrigins = s.allowedOrigins
	} else {
		opts.AllowedOrigins = []string{"*"}
	}
	return cors.New(opts).Handler(router)
}

func (s *Server) listStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": strategies.Names()})
}

func (s *Server) createBacktest(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		fail(c, http.StatusBadRequest, "INVALID_REQUEST", "start_date must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		fail(c, http.StatusBadRequest, "INVALID_REQUEST", "end_date must be YYYY-MM-DD")
		return
	}

	capital := req.InitialCapital
	if capital == 0 {
		capital = s.defaultCapital
	}

	job, err := s.backtests.Submit(c.Request.Context(), req.Strategy,
		req.Parameters, req.Symbols, start, end, capital)
	if err != nil {
		fail(c, http.StatusBadRequest, "INVALID_BACKTEST", err.Error())
		return
	}

	s.log.Info("backtest submitted",
		zap.String("id", job.ID), zap.String("strategy", job.Strategy))
	c.JSON(http.StatusCreated, job)
}

func (s *Server) listBacktests(c *gin.Context) {
	jobs, err := s.store.ListBacktests(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, "STORAGE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"backtests": jobs})
}

func (s *Server) getBacktest(c *gin.Context) {
	job, err := s.backtests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failLookup(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) deleteBacktest(c *gin.Context) {
	if err := s.store.DeleteBacktest(c.Request.Context(), c.Param("id")); err != nil {
		failLookup(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) createPortfolio(c *gin.Context) {
	var req PortfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	capital := req.InitialCapital
	if capital == 0 {
		capital = s.defaultCapital
	}

	p, err := s.store.CreatePortfolio(c.Request.Context(), req.Name, capital)
	if err != nil {
		fail(c, http.StatusBadRequest, "INVALID_PORTFOLIO", err.Error())
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) listPortfolios(c *gin.Context) {
	all, err := s.store.ListPortfolios(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, "STORAGE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"portfolios": all})
}

func (s *Server) getPortfolio(c *gin.Context) {
	p, err := s.store.GetPortfolio(c.Request.Context(), c.Param("id"))
	if err != nil {
		failLookup(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// refreshPortfolio re-marks every position at current quotes and persists
// the result.
func (s *Server) refreshPortfolio(c *gin.Context) {
	snap, err := s.executor.MarkToMarket(c.Request.Context(), c.Param("id"))
	if err != nil {
		failLookup(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) listOrders(c *gin.Context) {
	orders, err := s.store.ListOrders(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, "STORAGE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) createOrder(c *gin.Context) {
	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	o, err := s.executor.Submit(c.Request.Context(), req.PortfolioID,
		req.Symbol, sim.Side(req.Side), req.Quantity, sim.Style(req.Style), req.Price)
	if err != nil {
		if errors.Is(err, journal.ErrNotFound) {
			failLookup(c, err)
			return
		}
		fail(c, http.StatusBadRequest, "INVALID_ORDER", err.Error())
		return
	}

	s.log.Info("order submitted",
		zap.String("id", o.ID), zap.String("portfolio", o.PortfolioID))
	c.JSON(http.StatusCreated, o)
}

func (s *Server) getOrder(c *gin.Context) {
	o, err := s.executor.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failLookup(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) cancelOrder(c *gin.Context) {
	o, err := s.executor.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sim.ErrOrderTerminal) {
			fail(c, http.StatusConflict, "ORDER_TERMINAL", err.Error())
			return
		}
		failLookup(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// failLookup maps journal misses to 404 and everything else to 500.
func failLookup(c *gin.Context, err error) {
	if errors.Is(err, journal.ErrNotFound) {
		fail(c, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	fail(c, http.StatusInternalServerError, "STORAGE_ERROR", err.Error())
}
