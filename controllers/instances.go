package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"agendazap/models"

	"github.com/gin-gonic/gin"
)

type createInstanceReq struct {
	DisplayName string          `json:"display_name"`
	ChannelType string          `json:"channel_type"`
	Config      json.RawMessage `json:"config"`
	// ImmediateConnect skips the two-step flow and requests a linking code
	// right away.
	ImmediateConnect bool `json:"immediate_connect"`
}

type instanceView struct {
	models.ChannelInstance
	// Metrics placeholder for the dashboard list; filled by the reporting
	// layer, not this subsystem.
	Metrics map[string]any `json:"metrics"`
}

// POST /api/instances
func CreateInstance(c *gin.Context) {
	tenantID, ok := TenantID(c)
	if !ok {
		return
	}

	var req createInstanceReq
	if err := c.Bind(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	inst, result, err := instanceService.CreateInstance(
		c.Request.Context(),
		tenantID,
		req.DisplayName,
		req.ChannelType,
		string(req.Config),
		!req.ImmediateConnect,
	)
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	if req.ImmediateConnect && inst.Status == models.INSTANCE_STATUS_CONNECTING {
		if err := connectFlow.Begin(inst.ID); err != nil {
			RespondError(c, err.Error(), http.StatusTooManyRequests)
			return
		}
	}

	resp := gin.H{"instance": inst}
	if result != nil {
		resp["code"] = result.Code
		resp["code_expires_at"] = result.ExpiresAt
		resp["pending"] = result.Pending
	}
	c.JSON(http.StatusCreated, resp)
}

// POST /api/instances/:id/connect
func RequestConnection(c *gin.Context) {
	tenantID, ok := TenantID(c)
	if !ok {
		return
	}
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	if _, err := instanceService.GetForTenant(tenantID, id); err != nil {
		RespondServiceError(c, err)
		return
	}

	result, err := instanceService.RequestConnection(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	if err := connectFlow.Begin(id); err != nil {
		RespondError(c, err.Error(), http.StatusTooManyRequests)
		return
	}

	if result.Pending {
		RespondSuccess(c, gin.H{"status": models.INSTANCE_STATUS_CONNECTING, "pending": true})
		return
	}
	RespondSuccess(c, gin.H{
		"status":          models.INSTANCE_STATUS_CONNECTING,
		"code":            result.Code,
		"code_expires_at": result.ExpiresAt,
	})
}

// GET /api/instances/:id/code
// Polled by the connection modal while the user scans.
func GetConnectionCode(c *gin.Context) {
	tenantID, ok := TenantID(c)
	if !ok {
		return
	}
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	inst, err := instanceService.GetForTenant(tenantID, id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	expired := inst.CodeExpiresAt != nil && inst.CodeExpiresAt.Before(time.Now())
	RespondSuccess(c, gin.H{
		"status":          inst.Status,
		"code":            inst.Code,
		"code_expires_at": inst.CodeExpiresAt,
		"expired":         expired,
		"error_message":   inst.ErrorMessage,
	})
}

// POST /api/instances/:id/cancel-connect ("connect later")
func CancelConnection(c *gin.Context) {
	tenantID, ok := TenantID(c)
	if !ok {
		return
	}
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	if _, err := instanceService.GetForTenant(tenantID, id); err != nil {
		RespondServiceError(c, err)
		return
	}

	cancelled := connectFlow.Cancel(id)
	RespondSuccess(c, gin.H{"cancelled": cancelled})
}

// POST /api/instances/:id/disconnect
func DisconnectInstance(c *gin.Context) {
	tenantID, ok := TenantID(c)
	if !ok {
		return
	}
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	if _, err := instanceService.GetForTenant(tenantID, id); err != nil {
		RespondServiceError(c, err)
		return
	}

	connectFlow.Cancel(id)
	if err := instanceService.Disconnect(c.Request.Context(), id); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, true)
}

// DELETE /api/instances/:id
func DeleteInstance(c *gin.Context) {
	tenantID, ok := TenantID(c)
	if !ok {
		return
	}
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	if _, err := instanceService.GetForTenant(tenantID, id); err != nil {
		RespondServiceError(c, err)
		return
	}

	connectFlow.Cancel(id)
	if err := instanceService.DeleteInstance(c.Request.Context(), id); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, true)
}

// GET /api/instances
func ListInstances(c *gin.Context) {
	tenantID, ok := TenantID(c)
	if !ok {
		return
	}
	list, err := instanceService.List(tenantID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	out := make([]instanceView, 0, len(list))
	for _, inst := range list {
		out = append(out, instanceView{ChannelInstance: inst, Metrics: map[string]any{}})
	}
	RespondSuccess(c, out)
}

// GET /api/instances/:id
func GetInstance(c *gin.Context) {
	tenantID, ok := TenantID(c)
	if !ok {
		return
	}
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	inst, err := instanceService.GetForTenant(tenantID, id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, inst)
}

// POST /api/instances/:id/refresh-status
func RefreshInstanceStatus(c *gin.Context) {
	tenantID, ok := TenantID(c)
	if !ok {
		return
	}
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	if _, err := instanceService.GetForTenant(tenantID, id); err != nil {
		RespondServiceError(c, err)
		return
	}

	status, err := instanceService.RefreshStatus(c.Request.Context(), id)
	if err != nil {
		// transient provider failures still report the stored status
		RespondSuccess(c, gin.H{"status": status, "stale": true})
		return
	}
	RespondSuccess(c, gin.H{"status": status})
}

type sendMessageReq struct {
	Text string `json:"text"`
}

// POST /api/conversations/:id/messages
func SendConversationMessage(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req sendMessageReq
	if err := c.Bind(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		RespondError(c, "text is required", http.StatusBadRequest)
		return
	}

	msg, err := instanceService.SendReply(c.Request.Context(), id, strings.TrimSpace(req.Text))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
