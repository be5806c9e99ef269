package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// syncTemplate triggers templates.Service.SyncTemplate synchronously.
// No task chain runs SyncTemplate, so this endpoint is how an operator
// replays a template.
func (r *Router) syncTemplate(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template id"})
		return
	}
	if err := r.templates.SyncTemplate(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "synced"})
}

type createInvitationRequest struct {
	TemplateID     uint64     `json:"templateId" binding:"required"`
	ExpirationDays *int       `json:"expirationDays"`
	ExpiresAt      *time.Time `json:"expiresAt"`
}

func (r *Router) createInvitation(c *gin.Context) {
	var req createInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inv, err := r.templates.CreateInvitation(c.Request.Context(), req.TemplateID, req.ExpirationDays, req.ExpiresAt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, inv)
}

type redeemInvitationRequest struct {
	DesiredName string `json:"desiredName" binding:"required"`
}

func (r *Router) redeemInvitation(c *gin.Context) {
	var req redeemInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ext, err := r.templates.Redeem(c.Request.Context(), c.Param("token"), req.DesiredName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ext)
}

// taskStatus reports the orchestrator's current snapshot, spec.md
// §4.5 "short-lived status snapshots" surfaced to an operator.
func (r *Router) taskStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.orch.Snapshot())
}

// stopTask signals the cooperative stop flag for the named processor
// tag, spec.md §4.5 "signal_stop()".
func (r *Router) stopTask(c *gin.Context) {
	r.orch.SignalStop(c.Param("tag"))
	c.JSON(http.StatusOK, gin.H{"status": "stop requested"})
}
