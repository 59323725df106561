package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func ParamID(c *gin.Context, name string) (string, bool) {
	v := strings.TrimSpace(c.Param(name))
	if v == "" {
		RespondError(c, name+" is required", http.StatusBadRequest)
		return "", false
	}
	return v, true
}

// TenantID resolves the tenant from the X-Tenant-ID header or the tenant_id
// query param. Auth lives in the outer API layer; this subsystem only needs
// the scope.
func TenantID(c *gin.Context) (string, bool) {
	v := strings.TrimSpace(c.GetHeader("X-Tenant-ID"))
	if v == "" {
		v = strings.TrimSpace(c.Query("tenant_id"))
	}
	if v == "" {
		RespondError(c, "tenant_id is required", http.StatusBadRequest)
		return "", false
	}
	return v, true
}
