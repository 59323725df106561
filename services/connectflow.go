package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"agendazap/channels"
	"agendazap/models"

	"github.com/jinzhu/gorm"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// FlowOptions tunes the code-connection poll loop. Zero values fall back to
// the production defaults (30s interval, threshold 3, 60s cool-down, 10s calls).
type FlowOptions struct {
	PollInterval     time.Duration
	CallTimeout      time.Duration
	FailureThreshold int
	Cooldown         time.Duration
	MaxConcurrent    int64
}

func (o FlowOptions) withDefaults() FlowOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = 30 * time.Second
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 10 * time.Second
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 3
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 60 * time.Second
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 64
	}
	return o
}

// attempt is the in-memory record of one in-flight code-connection poll.
// Never persisted; owned exclusively by the flow for a given instance.
type attempt struct {
	cancel    context.CancelFunc
	startedAt time.Time

	failures  int
	open      bool
	reopenAt  time.Time
	openCount int
}

// ConnectFlow supervises one background poll task per instance currently in
// connecting, with cooperative cancellation and a circuit breaker around
// the upstream calls.
type ConnectFlow struct {
	db        *gorm.DB
	instances *InstanceService
	opts      FlowOptions
	log       zerolog.Logger

	sem *semaphore.Weighted

	mu      sync.Mutex
	running map[string]*attempt
}

func NewConnectFlow(db *gorm.DB, instances *InstanceService, opts FlowOptions, log zerolog.Logger) *ConnectFlow {
	opts = opts.withDefaults()
	return &ConnectFlow{
		db:        db,
		instances: instances,
		opts:      opts,
		log:       log.With().Str("component", "connect_flow").Logger(),
		sem:       semaphore.NewWeighted(opts.MaxConcurrent),
		running:   map[string]*attempt{},
	}
}

// Begin starts the poll loop for an instance. A loop already running for
// the same instance is cancelled first, so Begin is safe to call on every
// requestConnection.
func (f *ConnectFlow) Begin(instanceID string) error {
	if !f.sem.TryAcquire(1) {
		return fmt.Errorf("too many connection attempts in flight")
	}

	ctx, cancel := context.WithCancel(context.Background())

	f.mu.Lock()
	if prev, ok := f.running[instanceID]; ok {
		prev.cancel()
	}
	at := &attempt{cancel: cancel, startedAt: time.Now()}
	f.running[instanceID] = at
	f.mu.Unlock()

	go f.loop(ctx, instanceID, at)
	return nil
}

// Cancel stops the poll loop for an instance ("connect later", modal
// close). Returns false when no loop was running.
func (f *ConnectFlow) Cancel(instanceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.running[instanceID]
	if !ok {
		return false
	}
	at.cancel()
	delete(f.running, instanceID)
	return true
}

// Active reports whether a poll loop is running for the instance.
func (f *ConnectFlow) Active(instanceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.running[instanceID]
	return ok
}

// Shutdown cancels every running loop.
func (f *ConnectFlow) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, at := range f.running {
		at.cancel()
		delete(f.running, id)
	}
}

func (f *ConnectFlow) loop(ctx context.Context, instanceID string, at *attempt) {
	defer f.sem.Release(1)
	defer func() {
		f.mu.Lock()
		if cur, ok := f.running[instanceID]; ok && cur == at {
			delete(f.running, instanceID)
		}
		f.mu.Unlock()
	}()

	ticker := time.NewTicker(f.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if done := f.tick(ctx, instanceID, at); done {
			return
		}
	}
}

// tick runs one poll iteration. Every tick is independent and idempotent: a
// tick that finds the instance already connected (or gone) ends the loop
// even when it races an in-flight request.
func (f *ConnectFlow) tick(ctx context.Context, instanceID string, at *attempt) (done bool) {
	inst, err := f.instances.Get(instanceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// deleted mid-poll: terminate silently
			return true
		}
		f.log.Error().Str("instance_id", instanceID).Err(err).Msg("store read failed during poll")
		return false
	}
	if inst.Status != models.INSTANCE_STATUS_CONNECTING {
		// connected is success; disconnected/error written outside this flow
		// also stop the loop.
		f.log.Debug().Str("instance_id", instanceID).Str("status", inst.Status).Msg("poll loop ending")
		return true
	}

	now := time.Now()
	if at.open {
		if now.Before(at.reopenAt) {
			// breaker open: skip the poll entirely
			return false
		}
		// half-open: exactly one probe below
	}

	err = f.probe(ctx, inst)
	if err == nil {
		at.failures = 0
		at.open = false
		at.openCount = 0
		inst, err = f.instances.Get(instanceID)
		if err != nil {
			return errors.Is(err, gorm.ErrRecordNotFound)
		}
		return inst.Status != models.INSTANCE_STATUS_CONNECTING
	}

	if ctx.Err() != nil {
		return true
	}

	f.log.Warn().Str("instance_id", instanceID).Err(err).Msg("poll failed")

	if at.open {
		// failed half-open probe
		at.openCount++
		if at.openCount > 1 {
			f.stall(instanceID)
			return true
		}
		at.reopenAt = now.Add(2 * f.opts.Cooldown)
		return false
	}

	at.failures++
	if at.failures >= f.opts.FailureThreshold {
		at.open = true
		at.reopenAt = now.Add(f.opts.Cooldown)
		f.log.Warn().Str("instance_id", instanceID).Time("reopen_at", at.reopenAt).Msg("circuit breaker opened")
	}
	return false
}

// probe does the actual upstream work of one tick: refresh the live status
// and, when the current code expired, ask for a fresh one.
func (f *ConnectFlow) probe(ctx context.Context, inst *models.ChannelInstance) error {
	status, err := f.instances.RefreshStatus(ctx, inst.ID)
	if err != nil {
		return err
	}
	if status != models.INSTANCE_STATUS_CONNECTING {
		return nil
	}

	if inst.Code != "" && inst.CodeExpiresAt != nil && inst.CodeExpiresAt.After(time.Now()) {
		return nil
	}

	ch, err := channels.Resolve(inst.ChannelType)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, f.opts.CallTimeout)
	defer cancel()
	result, err := ch.Connection.Connect(cctx, inst)
	if err != nil {
		return channels.WrapTransient(err)
	}
	if result != nil && result.Code != "" {
		exp := result.ExpiresAt
		if exp == nil {
			e := time.Now().Add(codeTTL)
			exp = &e
		}
		return f.db.Model(&models.ChannelInstance{}).Where("id = ?", inst.ID).Updates(map[string]any{
			"code":            result.Code,
			"code_expires_at": exp,
		}).Error
	}
	return nil
}

// stall gives up after the breaker exhausted its cycles: the instance is
// left in error with a user-visible message so the UI can render the retry
// affordance.
func (f *ConnectFlow) stall(instanceID string) {
	f.log.Error().Str("instance_id", instanceID).Msg("connection stalled, giving up")
	err := f.instances.SetStatus(instanceID, models.INSTANCE_STATUS_ERROR, map[string]any{
		"error_message": channels.ErrConnectionStalled.Error(),
	})
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		f.log.Error().Str("instance_id", instanceID).Err(err).Msg("failed to record stall")
	}
}
