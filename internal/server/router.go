// Package server exposes a read-only observation API for the daemon.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/thornburywn/watchdog/internal/store"
	"github.com/thornburywn/watchdog/internal/supervisor"
)

// Router provides embeddable HTTP handlers for observing the supervisor.
// Endpoints:
//
//	GET {basePath}/status   supervisor state + last process snapshot
//	GET {basePath}/rules    enabled alert rules (query: type=MEMORY|SERVICE)
//	GET {basePath}/healthz  liveness of the daemon itself
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sup      *supervisor.Supervisor
	rules    store.Store // may be nil
	basePath string
}

func NewRouter(sup *supervisor.Supervisor, rules store.Store, basePath string) *Router {
	return &Router{sup: sup, rules: rules, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/rules", r.handleRules)
	group.GET("/healthz", r.handleHealthz)
	return g
}

func (r *Router) handleStatus(c *gin.Context) {
	state, snap := r.sup.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"state":   state,
		"process": snap,
	})
}

func (r *Router) handleRules(c *gin.Context) {
	if r.rules == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alert store not configured"})
		return
	}
	typ := store.RuleType(strings.ToUpper(c.DefaultQuery("type", string(store.RuleMemory))))
	if typ != store.RuleMemory && typ != store.RuleService {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be MEMORY or SERVICE"})
		return
	}
	rules, err := r.rules.ListEnabled(c.Request.Context(), typ)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (r *Router) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, sup *supervisor.Supervisor, rules store.Store) (*http.Server, error) {
	r := NewRouter(sup, rules, basePath)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv, nil
}

// sanitizeBase normalizes a base path: ensures a single leading slash, no
// trailing slash, empty stays empty.
func sanitizeBase(basePath string) string {
	bp := strings.TrimSpace(basePath)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}
