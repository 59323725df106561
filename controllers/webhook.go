package controllers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"agendazap/services"

	"github.com/gin-gonic/gin"
)

// POST /api/webhook/:instanceRef
//
// The gateway pushes one event per request. The response is 200 for every
// event that parses, even when downstream intent processing fails
// asynchronously; 4xx is reserved for structurally invalid payloads.
func WebhookUpdate(c *gin.Context) {
	instanceRef, ok := ParamID(c, "instanceRef")
	if !ok {
		return
	}

	inst, err := instanceService.Get(instanceRef)
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	// Per-instance shared secret, when the tenant configured one.
	if secret := inst.Settings().WebhookSecret; secret != "" {
		provided := strings.TrimSpace(c.GetHeader("apikey"))
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			RespondError(c, "forbidden", http.StatusForbidden)
			return
		}
	}

	raw, err := c.GetRawData()
	if err != nil {
		RespondError(c, "failed to read body", http.StatusBadRequest)
		return
	}

	var ev services.WebhookEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		RespondError(c, "invalid json", http.StatusBadRequest)
		return
	}

	if err := webhookService.Process(c.Request.Context(), instanceRef, ev); err != nil {
		RespondServiceError(c, err)
		return
	}

	c.String(http.StatusOK, "EVENT_RECEIVED")
}
