package controllers_test

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agendazap/channels"
	"agendazap/channels/mockchan"
	"agendazap/controllers"
	dbpkg "agendazap/db"
	"agendazap/models"
	"agendazap/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebhookRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	dbpkg.AutoMigrate(db)
	t.Cleanup(func() { db.Close() })

	channels.Reset()
	channels.Register(models.CHANNEL_TYPE_MOCK, channels.Channel{
		Connection: mockchan.NewConnectionService(),
		Processor:  mockchan.Processor{},
		Bridge:     &mockchan.Bridge{},
	})
	t.Cleanup(channels.Reset)

	instances := services.NewInstanceService(db, zerolog.Nop(), 24*time.Hour, time.Second)
	flow := services.NewConnectFlow(db, instances, services.FlowOptions{}, zerolog.Nop())
	t.Cleanup(flow.Shutdown)
	recovery := services.NewRecoveryService(db, zerolog.Nop(), time.Hour)
	webhook := services.NewWebhookService(db, instances, nil, zerolog.Nop())
	controllers.Setup(instances, flow, recovery, webhook)

	r := gin.New()
	r.POST("/api/webhook/:instanceRef", controllers.WebhookUpdate)
	return r, db
}

func seedWebhookInstance(t *testing.T, db *gorm.DB, config string) *models.ChannelInstance {
	t.Helper()
	inst := models.ChannelInstance{
		ID:          uuid.NewString(),
		TenantID:    "tenant-1",
		ChannelType: models.CHANNEL_TYPE_MOCK,
		DisplayName: "Clinic WA",
		Status:      models.INSTANCE_STATUS_CONNECTED,
		Config:      config,
	}
	require.NoError(t, db.Create(&inst).Error)
	return &inst
}

func TestWebhookUpdateAcceptsMessage(t *testing.T) {
	r, db := newWebhookRouter(t)
	inst := seedWebhookInstance(t, db, "")

	body := `{"event": "messages.upsert", "data": {"from": "15551234567", "id": "m-1", "name": "Ana", "text": "Hola"}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/"+inst.ID, strings.NewReader(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "EVENT_RECEIVED", w.Body.String())

	var msgs int
	require.NoError(t, db.Model(&models.Message{}).Where("external_id = ?", "m-1").Count(&msgs).Error)
	assert.Equal(t, 1, msgs)
}

func TestWebhookUpdateUnknownInstance(t *testing.T) {
	r, _ := newWebhookRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/"+uuid.NewString(), strings.NewReader(`{"event": "instance.created"}`))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookUpdateInvalidJSON(t *testing.T) {
	r, db := newWebhookRouter(t)
	inst := seedWebhookInstance(t, db, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/"+inst.ID, strings.NewReader("not json"))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookUpdateMalformedPayload(t *testing.T) {
	r, db := newWebhookRouter(t)
	inst := seedWebhookInstance(t, db, "")

	// parseable envelope, structurally invalid message data
	body := `{"event": "messages.upsert", "data": {"text": "no sender"}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/"+inst.ID, strings.NewReader(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookUpdateSecretCheck(t *testing.T) {
	r, db := newWebhookRouter(t)
	inst := seedWebhookInstance(t, db, `{"webhook_secret": "s3cret"}`)

	body := `{"event": "connection.update", "data": {"state": "close"}}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/"+inst.ID, strings.NewReader(body))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/webhook/"+inst.ID, strings.NewReader(body))
	req.Header.Set("apikey", "s3cret")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var stored models.ChannelInstance
	require.NoError(t, db.First(&stored, "id = ?", inst.ID).Error)
	assert.Equal(t, models.INSTANCE_STATUS_DISCONNECTED, stored.Status)
}
