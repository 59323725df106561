package services_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"agendazap/channels"
	"agendazap/models"
	"agendazap/services"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInstanceService(t *testing.T, db *gorm.DB) *services.InstanceService {
	t.Helper()
	return services.NewInstanceService(db, zerolog.Nop(), 24*time.Hour, time.Second)
}

func seedInstance(t *testing.T, db *gorm.DB, status string) *models.ChannelInstance {
	t.Helper()
	inst := models.ChannelInstance{
		ID:          uuid.NewString(),
		TenantID:    "tenant-1",
		ChannelType: models.CHANNEL_TYPE_WHATSAPP,
		DisplayName: "Clinic WA",
		Status:      status,
	}
	require.NoError(t, db.Create(&inst).Error)
	return &inst
}

func TestCreateInstanceValidation(t *testing.T) {
	db := newTestDB(t)
	registerStub(t, &connStub{})
	svc := newInstanceService(t, db)

	_, _, err := svc.CreateInstance(context.Background(), "", "Clinic WA", models.CHANNEL_TYPE_WHATSAPP, "", true)
	assert.Error(t, err)

	_, _, err = svc.CreateInstance(context.Background(), "tenant-1", "ab", models.CHANNEL_TYPE_WHATSAPP, "", true)
	assert.Error(t, err)

	_, _, err = svc.CreateInstance(context.Background(), "tenant-1", "Clinic WA", "smoke-signals", "", true)
	assert.ErrorIs(t, err, channels.ErrUnsupportedChannelType)
}

func TestCreateInstanceTwoStep(t *testing.T) {
	db := newTestDB(t)
	registerStub(t, &connStub{})
	svc := newInstanceService(t, db)

	inst, result, err := svc.CreateInstance(context.Background(), "tenant-1", "Clinic WA", models.CHANNEL_TYPE_WHATSAPP, `{"auto_reply":true}`, true)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, models.INSTANCE_STATUS_DISCONNECTED, inst.Status)
	assert.Equal(t, `{"auto_reply":true}`, inst.Config)

	stored, err := svc.Get(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"auto_reply":true}`, stored.Config)
	assert.True(t, stored.Settings().AutoReply)
}

func TestCreateInstanceImmediateConnect(t *testing.T) {
	db := newTestDB(t)
	registerStub(t, &connStub{code: "ABC-123"})
	svc := newInstanceService(t, db)

	inst, result, err := svc.CreateInstance(context.Background(), "tenant-1", "Clinic WA", models.CHANNEL_TYPE_WHATSAPP, "", false)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "ABC-123", result.Code)
	require.NotNil(t, result.ExpiresAt)
	assert.True(t, result.ExpiresAt.After(time.Now()))
	assert.Equal(t, models.INSTANCE_STATUS_CONNECTING, inst.Status)
}

func TestRequestConnectionStoresCode(t *testing.T) {
	db := newTestDB(t)
	registerStub(t, &connStub{code: "ABC-123"})
	svc := newInstanceService(t, db)
	inst := seedInstance(t, db, models.INSTANCE_STATUS_DISCONNECTED)

	result, err := svc.RequestConnection(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "ABC-123", result.Code)
	assert.False(t, result.Pending)

	stored, err := svc.Get(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.INSTANCE_STATUS_CONNECTING, stored.Status)
	assert.Equal(t, "ABC-123", stored.Code)
	require.NotNil(t, stored.CodeExpiresAt)
}

func TestRequestConnectionPendingOnProviderError(t *testing.T) {
	db := newTestDB(t)
	registerStub(t, &connStub{connectErr: assert.AnError})
	svc := newInstanceService(t, db)
	inst := seedInstance(t, db, models.INSTANCE_STATUS_DISCONNECTED)

	result, err := svc.RequestConnection(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.True(t, result.Pending)

	stored, err := svc.Get(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.INSTANCE_STATUS_CONNECTING, stored.Status)
}

func TestRequestConnectionRejectsConnected(t *testing.T) {
	db := newTestDB(t)
	registerStub(t, &connStub{code: "ABC-123"})
	svc := newInstanceService(t, db)
	inst := seedInstance(t, db, models.INSTANCE_STATUS_CONNECTED)

	_, err := svc.RequestConnection(context.Background(), inst.ID)
	assert.Error(t, err)
}

func TestDisconnectForcesLocalState(t *testing.T) {
	db := newTestDB(t)
	stub := &connStub{disconnectErr: assert.AnError}
	registerStub(t, stub)
	svc := newInstanceService(t, db)
	inst := seedInstance(t, db, models.INSTANCE_STATUS_CONNECTED)
	require.NoError(t, db.Model(inst).Updates(map[string]any{"code": "STALE", "error_message": "old"}).Error)

	require.NoError(t, svc.Disconnect(context.Background(), inst.ID))

	stored, err := svc.Get(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.INSTANCE_STATUS_DISCONNECTED, stored.Status)
	assert.Empty(t, stored.Code)
	assert.Empty(t, stored.ErrorMessage)
	assert.Equal(t, 1, stub.disconnectCalls)
}

func TestDeleteInstanceBlockedByRecentActivity(t *testing.T) {
	db := newTestDB(t)
	registerStub(t, &connStub{})
	svc := newInstanceService(t, db)
	inst := seedInstance(t, db, models.INSTANCE_STATUS_DISCONNECTED)

	now := time.Now()
	conv := models.Conversation{
		ID:           uuid.NewString(),
		InstanceID:   inst.ID,
		ContactRef:   "+15551234567",
		LastActivity: &now,
	}
	require.NoError(t, db.Create(&conv).Error)

	err := svc.DeleteInstance(context.Background(), inst.ID)
	assert.ErrorIs(t, err, channels.ErrConflictActiveConversations)

	// quiet conversations do not block
	old := now.Add(-48 * time.Hour)
	require.NoError(t, db.Model(&models.Conversation{}).Where("id = ?", conv.ID).
		UpdateColumn("last_activity", &old).Error)

	require.NoError(t, svc.DeleteInstance(context.Background(), inst.ID))
	_, err = svc.Get(inst.ID)
	assert.True(t, gorm.IsRecordNotFoundError(err))
}

func TestRefreshStatusNeverRegressesConnecting(t *testing.T) {
	db := newTestDB(t)
	stub := &connStub{state: models.INSTANCE_STATUS_DISCONNECTED}
	registerStub(t, stub)
	svc := newInstanceService(t, db)
	inst := seedInstance(t, db, models.INSTANCE_STATUS_CONNECTING)

	status, err := svc.RefreshStatus(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.INSTANCE_STATUS_CONNECTING, status)

	stored, err := svc.Get(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.INSTANCE_STATUS_CONNECTING, stored.Status)
}

func TestRefreshStatusAdoptsUpstream(t *testing.T) {
	db := newTestDB(t)
	stub := &connStub{state: models.INSTANCE_STATUS_CONNECTED}
	registerStub(t, stub)
	svc := newInstanceService(t, db)
	inst := seedInstance(t, db, models.INSTANCE_STATUS_CONNECTING)
	require.NoError(t, db.Model(inst).Updates(map[string]any{"code": "OLD", "error_message": "flaky"}).Error)

	status, err := svc.RefreshStatus(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.INSTANCE_STATUS_CONNECTED, status)

	stored, err := svc.Get(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.INSTANCE_STATUS_CONNECTED, stored.Status)
	assert.Empty(t, stored.Code)
	assert.Empty(t, stored.ErrorMessage)
}

func TestRefreshStatusTransientOnProviderFailure(t *testing.T) {
	db := newTestDB(t)
	stub := &connStub{stateErr: assert.AnError}
	registerStub(t, stub)
	svc := newInstanceService(t, db)
	inst := seedInstance(t, db, models.INSTANCE_STATUS_CONNECTED)

	status, err := svc.RefreshStatus(context.Background(), inst.ID)
	assert.ErrorIs(t, err, channels.ErrTransient)
	assert.Equal(t, models.INSTANCE_STATUS_CONNECTED, status)
}

func TestRefreshStatusSkipsAdministrativeHold(t *testing.T) {
	db := newTestDB(t)
	stub := &connStub{state: models.INSTANCE_STATUS_CONNECTED}
	registerStub(t, stub)
	svc := newInstanceService(t, db)
	inst := seedInstance(t, db, models.INSTANCE_STATUS_SUSPENDED)

	status, err := svc.RefreshStatus(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.INSTANCE_STATUS_SUSPENDED, status)
	state, _ := stub.counts()
	assert.Zero(t, state)
}

func TestSetAdminStatus(t *testing.T) {
	db := newTestDB(t)
	registerStub(t, &connStub{})
	svc := newInstanceService(t, db)
	inst := seedInstance(t, db, models.INSTANCE_STATUS_CONNECTED)

	require.NoError(t, svc.SetAdminStatus(inst.ID, models.INSTANCE_STATUS_SUSPENDED))
	stored, err := svc.Get(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.INSTANCE_STATUS_SUSPENDED, stored.Status)

	assert.Error(t, svc.SetAdminStatus(inst.ID, models.INSTANCE_STATUS_CONNECTED))
	assert.Error(t, svc.SetAdminStatus(inst.ID, "banana"))

	require.NoError(t, svc.SetAdminStatus(inst.ID, models.INSTANCE_STATUS_DISCONNECTED))
}

func TestInstanceLifecycleEndToEnd(t *testing.T) {
	db := newTestDB(t)
	stub := &connStub{code: "SCAN-ME"}
	registerStub(t, stub)
	svc := newInstanceService(t, db)
	webhooks := services.NewWebhookService(db, svc, nil, zerolog.Nop())

	inst, _, err := svc.CreateInstance(context.Background(), "tenant-1", "Clinic-WA", models.CHANNEL_TYPE_WHATSAPP, "", true)
	require.NoError(t, err)
	assert.Equal(t, models.INSTANCE_STATUS_DISCONNECTED, inst.Status)

	result, err := svc.RequestConnection(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "SCAN-ME", result.Code)
	require.NotNil(t, result.ExpiresAt)

	stored, err := svc.Get(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.INSTANCE_STATUS_CONNECTING, stored.Status)

	ev := services.WebhookEvent{
		Event: services.EVENT_CONNECTION_UPDATE,
		Data:  json.RawMessage(`{"state": "open"}`),
	}
	require.NoError(t, webhooks.Process(context.Background(), inst.ID, ev))
	stored, err = svc.Get(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.INSTANCE_STATUS_CONNECTED, stored.Status)

	require.NoError(t, svc.Disconnect(context.Background(), inst.ID))
	stored, err = svc.Get(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.INSTANCE_STATUS_DISCONNECTED, stored.Status)
}

func TestGetForTenantScoping(t *testing.T) {
	db := newTestDB(t)
	registerStub(t, &connStub{})
	svc := newInstanceService(t, db)
	inst := seedInstance(t, db, models.INSTANCE_STATUS_DISCONNECTED)

	got, err := svc.GetForTenant("tenant-1", inst.ID)
	require.NoError(t, err)
	assert.Equal(t, inst.ID, got.ID)

	_, err = svc.GetForTenant("tenant-2", inst.ID)
	assert.True(t, gorm.IsRecordNotFoundError(err))
}
