package controllers

import (
	"net/http"
	"strconv"

	dbpkg "agendazap/db"
	"agendazap/models"

	"github.com/gin-gonic/gin"
)

// GET /api/instances/:id/conversations
func ListConversations(c *gin.Context) {
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

	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db not configured in context", http.StatusInternalServerError)
		return
	}

	var out []models.Conversation
	if err := db.Where("instance_id = ?", id).Order("last_activity desc").Find(&out).Error; err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, out)
}

// GET /api/conversations/:id/messages?limit=50
func ListMessages(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}

	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db not configured in context", http.StatusInternalServerError)
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var out []models.Message
	if err := db.Where("conversation_id = ?", id).
		Order("created_at desc").Limit(limit).Find(&out).Error; err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, out)
}
