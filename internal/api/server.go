// Package api exposes a read-only operator API over the bot's in-memory
// state, plus a websocket stream of bus events.
package api

import (
	"net/http"
	"strconv"
	"time"

	"solbot/internal/alerts"
	"solbot/internal/events"
	"solbot/internal/ledger"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the stores and the event bus.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	Ledger    *ledger.Store
	Alerts    *alerts.Store
	JWTSecret string
	Version   string

	started time.Time
}

func NewServer(bus *events.Bus, ledgerStore *ledger.Store, alertStore *alerts.Store, jwtSecret, version string) *Server {
	r := gin.New()

	// Middleware stack (order matters)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())

	s := &Server{
		Router:    r,
		Bus:       bus,
		Ledger:    ledgerStore,
		Alerts:    alertStore,
		JWTSecret: jwtSecret,
		Version:   version,
		started:   time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.POST("/auth/token", s.issueToken)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/status", s.getStatus)
			protected.GET("/accounts", s.getAccounts)
			protected.GET("/accounts/:id/positions", s.getAccountPositions)
			protected.GET("/alerts", s.getAlerts)
			protected.GET("/stats", s.getStats)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getStatus(c *gin.Context) {
	accounts := s.Ledger.All()
	positions := 0
	for _, a := range accounts {
		positions += len(a.Positions)
	}
	c.JSON(http.StatusOK, gin.H{
		"version":       s.Version,
		"uptime":        time.Since(s.started).Round(time.Second).String(),
		"accounts":      len(accounts),
		"positions":     positions,
		"active_alerts": s.Alerts.Len(),
	})
}

func (s *Server) getAccounts(c *gin.Context) {
	accounts := s.Ledger.All()
	out := make([]gin.H, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, gin.H{
			"id":        a.ID,
			"wallet":    a.WalletAddress,
			"onboarded": a.Onboarded,
			"positions": len(a.Positions),
			"stats":     a.Stats,
		})
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}

func (s *Server) getAccountPositions(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_ACCOUNT_ID",
			"error": "account id must be numeric",
		})
		return
	}
	acct := s.Ledger.Get(id)
	c.JSON(http.StatusOK, gin.H{
		"account_id": id,
		"positions":  acct.Positions,
		"history":    acct.History,
	})
}

func (s *Server) getAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alerts": s.Alerts.All()})
}

func (s *Server) getStats(c *gin.Context) {
	var agg ledger.Stats
	for _, a := range s.Ledger.All() {
		agg.TotalTrades += a.Stats.TotalTrades
		agg.TotalVolume += a.Stats.TotalVolume
		agg.TotalPnL += a.Stats.TotalPnL
		agg.Wins += a.Stats.Wins
	}
	c.JSON(http.StatusOK, gin.H{"stats": agg})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
