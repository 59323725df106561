package services

import (
	"fmt"
	"time"

	"agendazap/models"

	"github.com/jinzhu/gorm"
	"github.com/rs/zerolog"
)

// RecoveryService reclaims instances stuck in a transitional state. Forced
// resets bypass the normal transition rules on purpose; each one leaves an
// audit row (best-effort).
type RecoveryService struct {
	db         *gorm.DB
	log        zerolog.Logger
	stuckAfter time.Duration
}

// CleanupResult is the per-instance outcome of an emergency cleanup run.
type CleanupResult struct {
	InstanceID  string `json:"instance_id"`
	PriorStatus string `json:"prior_status"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

func NewRecoveryService(db *gorm.DB, log zerolog.Logger, stuckAfter time.Duration) *RecoveryService {
	if stuckAfter <= 0 {
		stuckAfter = time.Hour
	}
	return &RecoveryService{
		db:         db,
		log:        log.With().Str("component", "recovery").Logger(),
		stuckAfter: stuckAfter,
	}
}

// ListStuckInstances returns every instance in connecting or error, most
// recently updated first.
func (s *RecoveryService) ListStuckInstances() ([]models.ChannelInstance, error) {
	var out []models.ChannelInstance
	err := s.db.
		Where("status IN (?)", []string{models.INSTANCE_STATUS_CONNECTING, models.INSTANCE_STATUS_ERROR}).
		Order("updated_at desc").
		Find(&out).Error
	return out, err
}

// ResetInstance force-writes the target status (disconnected or error),
// recording the prior status for audit. Resetting to disconnected clears
// the error message; resetting to error sets one.
func (s *RecoveryService) ResetInstance(instanceID, targetStatus, reason string) error {
	if targetStatus != models.INSTANCE_STATUS_DISCONNECTED && targetStatus != models.INSTANCE_STATUS_ERROR {
		return fmt.Errorf("invalid reset target %q", targetStatus)
	}

	var inst models.ChannelInstance
	if err := s.db.First(&inst, "id = ?", instanceID).Error; err != nil {
		return err
	}

	updates := map[string]any{
		"status": targetStatus,
		"code":   "",
	}
	if targetStatus == models.INSTANCE_STATUS_DISCONNECTED {
		updates["error_message"] = ""
	} else {
		msg := reason
		if msg == "" {
			msg = "reset by recovery"
		}
		updates["error_message"] = msg
	}

	res := s.db.Model(&models.ChannelInstance{}).Where("id = ?", instanceID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	// Audit is telemetry: a failed insert is warn-and-continue.
	audit := models.StatusAudit{
		InstanceID:  instanceID,
		PriorStatus: inst.Status,
		NewStatus:   targetStatus,
		Reason:      reason,
	}
	if err := s.db.Create(&audit).Error; err != nil {
		s.log.Warn().Str("instance_id", instanceID).Err(err).Msg("audit write failed")
	}

	s.log.Info().Str("instance_id", instanceID).
		Str("prior", inst.Status).Str("target", targetStatus).
		Msg("instance reset")
	return nil
}

// EmergencyCleanup resets every instance flagged problematic to error. One
// failing instance never aborts the rest; callers get one result per
// flagged instance.
func (s *RecoveryService) EmergencyCleanup() ([]CleanupResult, error) {
	var flagged []models.ChannelInstance
	if err := s.db.Where("flagged_problematic = ?", true).Find(&flagged).Error; err != nil {
		return nil, err
	}

	results := make([]CleanupResult, 0, len(flagged))
	for _, inst := range flagged {
		reason := inst.FlagReason
		if reason == "" {
			reason = "flagged problematic"
		}
		res := CleanupResult{InstanceID: inst.ID, PriorStatus: inst.Status}
		if err := s.ResetInstance(inst.ID, models.INSTANCE_STATUS_ERROR, reason); err != nil {
			res.Error = err.Error()
			s.log.Error().Str("instance_id", inst.ID).Err(err).Msg("emergency cleanup failed for instance")
		} else {
			res.Success = true
		}
		results = append(results, res)
	}
	return results, nil
}

// FlagProblematic marks or clears the persisted problematic flag.
func (s *RecoveryService) FlagProblematic(instanceID string, flagged bool, reason string) error {
	res := s.db.Model(&models.ChannelInstance{}).Where("id = ?", instanceID).Updates(map[string]any{
		"flagged_problematic": flagged,
		"flag_reason":         reason,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SweepStuck resets instances sitting in connecting beyond the stuck
// threshold. Called periodically by the recovery worker.
func (s *RecoveryService) SweepStuck() (int, error) {
	cutoff := time.Now().Add(-s.stuckAfter)
	var stuck []models.ChannelInstance
	if err := s.db.
		Where("status = ? AND updated_at < ?", models.INSTANCE_STATUS_CONNECTING, cutoff).
		Find(&stuck).Error; err != nil {
		return 0, err
	}

	count := 0
	for _, inst := range stuck {
		reason := fmt.Sprintf("stuck in connecting for more than %s", s.stuckAfter)
		if err := s.ResetInstance(inst.ID, models.INSTANCE_STATUS_ERROR, reason); err != nil {
			s.log.Error().Str("instance_id", inst.ID).Err(err).Msg("sweep reset failed")
			continue
		}
		count++
	}
	return count, nil
}
