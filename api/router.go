// Package api exposes the small administrative HTTP surface spec.md's
// ambient "HTTP API" concern carries: invitation issuance/redemption,
// template sync, and task-chain status/cancellation. Grounded on the
// teacher's router/router.go shape (gin.Default(), gin-contrib/cors
// with an explicit allowed-methods/headers list, a bearer-token
// middleware gating a route group) — narrowed here to this system's
// own handful of admin operations instead of the teacher's full media
// library API, since spec.md places general request parsing and auth
// sessions out of scope and this system "piggybacks on Library Server
// tokens" rather than running its own auth provider.
package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"mediabridge/orchestrator"
	"mediabridge/templates"
)

// Router owns the gin engine and the services its handlers call.
type Router struct {
	engine    *gin.Engine
	templates *templates.Service
	orch      *orchestrator.Orchestrator
}

// New builds the gin engine with CORS and bearer-passthrough auth
// applied to every route, then registers the admin endpoint group.
func New(allowedOrigins []string, tmpl *templates.Service, orch *orchestrator.Orchestrator) *Router {
	engine := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = allowedOrigins
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Authorization", "Content-Type"}
	engine.Use(cors.New(corsCfg))

	router := &Router{engine: engine, templates: tmpl, orch: orch}

	admin := engine.Group("/admin")
	admin.Use(BearerPassthrough())
	{
		admin.POST("/templates/:id/sync", router.syncTemplate)
		admin.POST("/invitations", router.createInvitation)
		admin.POST("/invitations/:token/redeem", router.redeemInvitation)
		admin.GET("/tasks/status", router.taskStatus)
		admin.POST("/tasks/:tag/stop", router.stopTask)
	}

	return router
}

// Handler returns the underlying http.Handler for mounting.
func (r *Router) Handler() *gin.Engine {
	return r.engine
}
