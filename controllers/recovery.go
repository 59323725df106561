package controllers

import (
	"net/http"
	"strings"

	"agendazap/models"

	"github.com/gin-gonic/gin"
)

// GET /api/admin/recovery/stuck
func ListStuckInstances(c *gin.Context) {
	list, err := recoveryService.ListStuckInstances()
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, list)
}

type resetInstanceReq struct {
	TargetStatus string `json:"target_status"`
	Reason       string `json:"reason"`
}

// POST /api/admin/recovery/reset/:id
func ResetInstance(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req resetInstanceReq
	if err := c.Bind(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	target := strings.TrimSpace(req.TargetStatus)
	if target == "" {
		target = models.INSTANCE_STATUS_DISCONNECTED
	}

	connectFlow.Cancel(id)
	if err := recoveryService.ResetInstance(id, target, strings.TrimSpace(req.Reason)); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, true)
}

// POST /api/admin/recovery/emergency-cleanup
func EmergencyCleanup(c *gin.Context) {
	results, err := recoveryService.EmergencyCleanup()
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, results)
}

type flagInstanceReq struct {
	Flagged bool   `json:"flagged"`
	Reason  string `json:"reason"`
}

// POST /api/admin/recovery/flag/:id
func FlagInstance(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req flagInstanceReq
	if err := c.Bind(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	if err := recoveryService.FlagProblematic(id, req.Flagged, strings.TrimSpace(req.Reason)); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, true)
}

type adminStatusReq struct {
	Status string `json:"status"`
}

// POST /api/admin/instances/:id/status
// Administrative override: suspended/maintenance in, disconnected out.
func SetAdminStatus(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req adminStatusReq
	if err := c.Bind(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	connectFlow.Cancel(id)
	if err := instanceService.SetAdminStatus(id, strings.TrimSpace(req.Status)); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, true)
}
