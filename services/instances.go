package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agendazap/channels"
	"agendazap/models"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/rs/zerolog"
)

// codeTTL is how long a linking code handed out synchronously is considered
// scannable before the UI should poll for a fresh one.
const codeTTL = 60 * time.Second

// InstanceService owns creation, connection initiation, disconnection,
// deletion and status refresh of channel instances. Every status mutation
// goes through the same transition rules; concurrent writers are
// last-write-wins (both sides are idempotent on terminal values).
type InstanceService struct {
	db  *gorm.DB
	log zerolog.Logger

	// deleteBlockWindow is the conversation-activity window that blocks
	// deletion.
	deleteBlockWindow time.Duration

	// callTimeout bounds every upstream provider call.
	callTimeout time.Duration
}

func NewInstanceService(db *gorm.DB, log zerolog.Logger, deleteBlockWindow, callTimeout time.Duration) *InstanceService {
	if deleteBlockWindow <= 0 {
		deleteBlockWindow = 24 * time.Hour
	}
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &InstanceService{
		db:                db,
		log:               log.With().Str("component", "instances").Logger(),
		deleteBlockWindow: deleteBlockWindow,
		callTimeout:       callTimeout,
	}
}

// CreateInstance validates and persists a new instance. With twoStep the
// instance is left disconnected and the caller connects later; otherwise a
// connection is requested immediately and the result is embedded.
func (s *InstanceService) CreateInstance(ctx context.Context, tenantID, displayName, channelType, config string, twoStep bool) (*models.ChannelInstance, *channels.ConnectResult, error) {
	tenantID = strings.TrimSpace(tenantID)
	displayName = strings.TrimSpace(displayName)
	if tenantID == "" {
		return nil, nil, fmt.Errorf("tenant_id is required")
	}
	if len(displayName) < 3 || len(displayName) > 50 {
		return nil, nil, fmt.Errorf("display_name must have between 3 and 50 characters")
	}
	ch, err := channels.Resolve(channelType)
	if err != nil {
		return nil, nil, err
	}

	inst := models.ChannelInstance{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		ChannelType: strings.ToLower(strings.TrimSpace(channelType)),
		DisplayName: displayName,
		Status:      models.INSTANCE_STATUS_DISCONNECTED,
		Config:      config,
	}
	if err := s.db.Create(&inst).Error; err != nil {
		return nil, nil, err
	}

	// Register with the upstream provider. The provider acknowledges
	// asynchronously via the instance.created webhook; a failure here is not
	// fatal, the operator can retry through requestConnection.
	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	err = ch.Connection.CreateInstance(cctx, &inst)
	cancel()
	if err != nil {
		s.log.Warn().Str("instance_id", inst.ID).Err(err).Msg("upstream instance registration failed")
		_ = s.db.Model(&models.ChannelInstance{}).Where("id = ?", inst.ID).
			Update("error_message", err.Error()).Error
	}

	if twoStep {
		return &inst, nil, nil
	}

	result, err := s.RequestConnection(ctx, inst.ID)
	if err != nil {
		// The row exists and is usable; surface the connect failure detail
		// without undoing creation.
		s.log.Warn().Str("instance_id", inst.ID).Err(err).Msg("immediate connect failed")
		return &inst, nil, nil
	}
	// reload for the status written by RequestConnection
	if err := s.db.First(&inst, "id = ?", inst.ID).Error; err != nil {
		return nil, nil, err
	}
	return &inst, result, nil
}

// RequestConnection transitions disconnected/error to connecting and asks
// the provider for a linking code. When the provider answers
// asynchronously, Pending is set and the caller polls getCode.
func (s *InstanceService) RequestConnection(ctx context.Context, instanceID string) (*channels.ConnectResult, error) {
	inst, err := s.Get(instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status == models.INSTANCE_STATUS_CONNECTED {
		return nil, fmt.Errorf("instance %s is already connected", instanceID)
	}
	if !validTransition(inst.Status, models.INSTANCE_STATUS_CONNECTING) {
		return nil, fmt.Errorf("cannot connect instance in status %q", inst.Status)
	}
	if err := s.SetStatus(instanceID, models.INSTANCE_STATUS_CONNECTING, map[string]any{
		"error_message": "",
	}); err != nil {
		return nil, err
	}
	inst.Status = models.INSTANCE_STATUS_CONNECTING

	ch, err := channels.Resolve(inst.ChannelType)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	result, err := ch.Connection.Connect(cctx, inst)
	if err != nil {
		// Transient: the instance stays connecting, the connect flow keeps
		// polling for the code.
		s.log.Warn().Str("instance_id", instanceID).Err(err).Msg("code request failed, will poll")
		return &channels.ConnectResult{Pending: true}, nil
	}
	if result == nil {
		result = &channels.ConnectResult{Pending: true}
	}
	if result.Code != "" {
		if result.ExpiresAt == nil {
			exp := time.Now().Add(codeTTL)
			result.ExpiresAt = &exp
		}
		_ = s.db.Model(&models.ChannelInstance{}).Where("id = ?", instanceID).Updates(map[string]any{
			"code":            result.Code,
			"code_expires_at": result.ExpiresAt,
		}).Error
	}
	return result, nil
}

// Disconnect terminates the upstream session and writes disconnected. The
// local state always ends disconnected, even when the upstream call fails.
func (s *InstanceService) Disconnect(ctx context.Context, instanceID string) error {
	inst, err := s.Get(instanceID)
	if err != nil {
		return err
	}
	if !validTransition(inst.Status, models.INSTANCE_STATUS_DISCONNECTED) {
		return fmt.Errorf("cannot disconnect instance in status %q", inst.Status)
	}

	if ch, err := channels.Resolve(inst.ChannelType); err == nil {
		cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
		if err := ch.Connection.Disconnect(cctx, inst); err != nil {
			s.log.Warn().Str("instance_id", instanceID).Err(err).Msg("upstream disconnect failed, forcing local state")
		}
		cancel()
	}

	return s.SetStatus(instanceID, models.INSTANCE_STATUS_DISCONNECTED, map[string]any{
		"code":            "",
		"code_expires_at": nil,
		"error_message":   "",
	})
}

// DeleteInstance removes the instance row. Deletion is blocked while
// conversations saw activity inside the configured window. Conversations
// and messages are left to the storage retention policy.
func (s *InstanceService) DeleteInstance(ctx context.Context, instanceID string) error {
	inst, err := s.Get(instanceID)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-s.deleteBlockWindow)
	var active int64
	if err := s.db.Model(&models.Conversation{}).
		Where("instance_id = ? AND last_activity IS NOT NULL AND last_activity > ?", instanceID, cutoff).
		Count(&active).Error; err != nil {
		return err
	}
	if active > 0 {
		return fmt.Errorf("%w: %d active in the last %s", channels.ErrConflictActiveConversations, active, s.deleteBlockWindow)
	}

	if ch, err := channels.Resolve(inst.ChannelType); err == nil {
		cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
		if err := ch.Connection.DeleteInstance(cctx, inst); err != nil {
			s.log.Warn().Str("instance_id", instanceID).Err(err).Msg("upstream delete failed, removing local row anyway")
		}
		cancel()
	}

	return s.db.Where("id = ?", instanceID).Delete(&models.ChannelInstance{}).Error
}

// RefreshStatus queries the provider for the live status and reconciles
// drift by writing the upstream-reported value. A connecting instance is
// never regressed to disconnected here: the provider simply has not caught
// up with the code request yet.
func (s *InstanceService) RefreshStatus(ctx context.Context, instanceID string) (string, error) {
	inst, err := s.Get(instanceID)
	if err != nil {
		return "", err
	}
	if !models.IsActiveStatus(inst.Status) {
		// suspended/maintenance only move via admin transitions
		return inst.Status, nil
	}

	ch, err := channels.Resolve(inst.ChannelType)
	if err != nil {
		return inst.Status, err
	}

	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	reported, err := ch.Connection.ConnectionState(cctx, inst)
	if err != nil {
		return inst.Status, channels.WrapTransient(err)
	}
	if !models.IsValidStatus(reported) {
		reported = models.INSTANCE_STATUS_ERROR
	}

	if reported == inst.Status {
		return inst.Status, nil
	}
	if inst.Status == models.INSTANCE_STATUS_CONNECTING && reported == models.INSTANCE_STATUS_DISCONNECTED {
		return inst.Status, nil
	}

	extra := map[string]any{}
	if reported == models.INSTANCE_STATUS_CONNECTED {
		extra["code"] = ""
		extra["code_expires_at"] = nil
		extra["error_message"] = ""
	}
	if err := s.SetStatus(instanceID, reported, extra); err != nil {
		return inst.Status, err
	}
	return reported, nil
}

// SetAdminStatus applies the administrative override transitions
// (suspended/maintenance in and out).
func (s *InstanceService) SetAdminStatus(instanceID, target string) error {
	if target != models.INSTANCE_STATUS_SUSPENDED &&
		target != models.INSTANCE_STATUS_MAINTENANCE &&
		target != models.INSTANCE_STATUS_DISCONNECTED {
		return fmt.Errorf("invalid administrative status %q", target)
	}
	if _, err := s.Get(instanceID); err != nil {
		return err
	}
	return s.SetStatus(instanceID, target, nil)
}

// Get loads one instance by id.
func (s *InstanceService) Get(instanceID string) (*models.ChannelInstance, error) {
	var inst models.ChannelInstance
	if err := s.db.First(&inst, "id = ?", instanceID).Error; err != nil {
		return nil, err
	}
	return &inst, nil
}

// GetForTenant loads one instance scoped by tenant. Cross-tenant reads come
// back as not found.
func (s *InstanceService) GetForTenant(tenantID, instanceID string) (*models.ChannelInstance, error) {
	var inst models.ChannelInstance
	if err := s.db.First(&inst, "id = ? AND tenant_id = ?", instanceID, tenantID).Error; err != nil {
		return nil, err
	}
	return &inst, nil
}

// List returns the tenant's instances, most recently updated first.
func (s *InstanceService) List(tenantID string) ([]models.ChannelInstance, error) {
	var out []models.ChannelInstance
	err := s.db.Where("tenant_id = ?", tenantID).Order("updated_at desc").Find(&out).Error
	return out, err
}

// SetStatus writes a status transition plus extra columns in one
// conditional update keyed by instance id.
func (s *InstanceService) SetStatus(instanceID, status string, extra map[string]any) error {
	updates := map[string]any{"status": status}
	for k, v := range extra {
		updates[k] = v
	}
	res := s.db.Model(&models.ChannelInstance{}).Where("id = ?", instanceID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// validTransition encodes the instance state machine. Writing the current
// status again is always allowed (idempotent webhooks and polls).
func validTransition(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case models.INSTANCE_STATUS_DISCONNECTED:
		switch to {
		case models.INSTANCE_STATUS_CONNECTING,
			models.INSTANCE_STATUS_SUSPENDED,
			models.INSTANCE_STATUS_MAINTENANCE:
			return true
		}
	case models.INSTANCE_STATUS_CONNECTING:
		switch to {
		case models.INSTANCE_STATUS_CONNECTED,
			models.INSTANCE_STATUS_ERROR,
			models.INSTANCE_STATUS_DISCONNECTED,
			models.INSTANCE_STATUS_SUSPENDED,
			models.INSTANCE_STATUS_MAINTENANCE:
			return true
		}
	case models.INSTANCE_STATUS_CONNECTED:
		switch to {
		case models.INSTANCE_STATUS_DISCONNECTED,
			models.INSTANCE_STATUS_ERROR,
			models.INSTANCE_STATUS_SUSPENDED,
			models.INSTANCE_STATUS_MAINTENANCE:
			return true
		}
	case models.INSTANCE_STATUS_ERROR:
		switch to {
		case models.INSTANCE_STATUS_CONNECTING,
			models.INSTANCE_STATUS_DISCONNECTED,
			models.INSTANCE_STATUS_SUSPENDED,
			models.INSTANCE_STATUS_MAINTENANCE:
			return true
		}
	case models.INSTANCE_STATUS_SUSPENDED, models.INSTANCE_STATUS_MAINTENANCE:
		// administrative exit only
		return to == models.INSTANCE_STATUS_DISCONNECTED
	}
	return false
}
