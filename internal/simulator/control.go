package simulator

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/payterm/zvtsim/internal/config"
)

// controlServer is the HTTP control plane: it reads and mutates the
// simulator's shared state while TCP sessions are live.
type controlServer struct {
	engine   *Engine
	router   *gin.Engine
	httpSrv  *http.Server
	listener net.Listener
}

func newControlServer(e *Engine) *controlServer {
	gin.SetMode(gin.ReleaseMode)
	cs := &controlServer{
		engine: e,
		router: gin.New(),
	}
	cs.registerRoutes()
	return cs
}

func (cs *controlServer) registerRoutes() {
	cs.router.GET("/health", cs.getHealth)
	cs.router.GET("/config", cs.getConfig)
	cs.router.PUT("/config", cs.putConfig)
	cs.router.PATCH("/config/faults", cs.patchFaults)
	cs.router.PATCH("/config/card", cs.patchCard)
	cs.router.GET("/transactions", cs.getTransactions)
	cs.router.GET("/transactions/last", cs.getLastTransaction)
	cs.router.DELETE("/transactions", cs.deleteTransactions)
	cs.router.POST("/reset", cs.postReset)
}

func (cs *controlServer) start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	cs.listener = ln
	cs.httpSrv = &http.Server{Handler: cs.router}
	go func() {
		if err := cs.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			cs.engine.logger.Error("control plane: %v", err)
		}
	}()
	return nil
}

func (cs *controlServer) stop() {
	if cs.httpSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = cs.httpSrv.Shutdown(ctx)
}

func (cs *controlServer) addr() string {
	if cs.listener == nil {
		return ""
	}
	return cs.listener.Addr().String()
}

func (cs *controlServer) getHealth(c *gin.Context) {
	trace, receipt, turnover := cs.engine.state.Counters()
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"registered":      cs.engine.state.Registered(),
		"trace_number":    trace,
		"receipt_number":  receipt,
		"turnover_number": turnover,
		"transactions":    cs.engine.store.Len(),
	})
}

func (cs *controlServer) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, cs.engine.state.Config())
}

func (cs *controlServer) putConfig(c *gin.Context) {
	var cfg config.SimulatorConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cs.engine.state.SetConfig(cfg)
	c.JSON(http.StatusOK, cfg)
}

func (cs *controlServer) patchFaults(c *gin.Context) {
	faults := cs.engine.state.Config().Faults
	if err := c.ShouldBindJSON(&faults); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if faults.ErrorEveryN < 0 || faults.ResponseDelayMs < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fault counters must not be negative"})
		return
	}
	cs.engine.state.SetFaults(faults)
	c.JSON(http.StatusOK, faults)
}

func (cs *controlServer) patchCard(c *gin.Context) {
	card := cs.engine.state.Config().Card
	if err := c.ShouldBindJSON(&card); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cs.engine.state.SetCard(card)
	c.JSON(http.StatusOK, card)
}

func (cs *controlServer) getTransactions(c *gin.Context) {
	c.JSON(http.StatusOK, cs.engine.store.All())
}

func (cs *controlServer) getLastTransaction(c *gin.Context) {
	last, ok := cs.engine.store.Last()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no transactions recorded"})
		return
	}
	c.JSON(http.StatusOK, last)
}

func (cs *controlServer) deleteTransactions(c *gin.Context) {
	cleared := cs.engine.store.Clear()
	c.JSON(http.StatusOK, gin.H{"cleared": len(cleared)})
}

func (cs *controlServer) postReset(c *gin.Context) {
	cs.engine.store.Clear()
	cs.engine.state.Reset()
	cs.engine.faults.reset()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
