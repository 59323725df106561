package services_test

import (
	"testing"
	"time"

	"agendazap/channels"
	"agendazap/models"
	"agendazap/services"

	"github.com/jinzhu/gorm"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConnectFlow(t *testing.T, db *gorm.DB, opts services.FlowOptions) (*services.ConnectFlow, *services.InstanceService) {
	t.Helper()
	instances := newInstanceService(t, db)
	flow := services.NewConnectFlow(db, instances, opts, zerolog.Nop())
	t.Cleanup(flow.Shutdown)
	return flow, instances
}

func TestConnectFlowStopsOnConnected(t *testing.T) {
	db := newTestDB(t)
	stub := &connStub{state: models.INSTANCE_STATUS_CONNECTED}
	registerStub(t, stub)
	flow, instances := newConnectFlow(t, db, services.FlowOptions{PollInterval: 10 * time.Millisecond})
	inst := seedInstance(t, db, models.INSTANCE_STATUS_CONNECTING)

	require.NoError(t, flow.Begin(inst.ID))

	require.Eventually(t, func() bool {
		stored, err := instances.Get(inst.ID)
		return err == nil && stored.Status == models.INSTANCE_STATUS_CONNECTED
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return !flow.Active(inst.ID)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConnectFlowBreakerSkipsWhileOpen(t *testing.T) {
	db := newTestDB(t)
	stub := &connStub{stateErr: assert.AnError}
	registerStub(t, stub)
	flow, _ := newConnectFlow(t, db, services.FlowOptions{
		PollInterval:     20 * time.Millisecond,
		FailureThreshold: 3,
		Cooldown:         600 * time.Millisecond,
	})
	inst := seedInstance(t, db, models.INSTANCE_STATUS_CONNECTING)

	require.NoError(t, flow.Begin(inst.ID))

	// the third failure opens the breaker
	require.Eventually(t, func() bool {
		state, _ := stub.counts()
		return state == 3
	}, 2*time.Second, 5*time.Millisecond)

	// well inside the cool-down: polls are skipped, no further upstream calls
	time.Sleep(250 * time.Millisecond)
	state, _ := stub.counts()
	assert.Equal(t, 3, state)

	// after the cool-down exactly one half-open probe goes out
	require.Eventually(t, func() bool {
		state, _ := stub.counts()
		return state == 4
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	state, _ = stub.counts()
	assert.Equal(t, 4, state)
}

func TestConnectFlowStallsAfterRepeatedBreakerCycles(t *testing.T) {
	db := newTestDB(t)
	stub := &connStub{stateErr: assert.AnError}
	registerStub(t, stub)
	flow, instances := newConnectFlow(t, db, services.FlowOptions{
		PollInterval:     10 * time.Millisecond,
		FailureThreshold: 3,
		Cooldown:         40 * time.Millisecond,
	})
	inst := seedInstance(t, db, models.INSTANCE_STATUS_CONNECTING)

	require.NoError(t, flow.Begin(inst.ID))

	require.Eventually(t, func() bool {
		stored, err := instances.Get(inst.ID)
		return err == nil && stored.Status == models.INSTANCE_STATUS_ERROR
	}, 3*time.Second, 5*time.Millisecond)

	stored, err := instances.Get(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, channels.ErrConnectionStalled.Error(), stored.ErrorMessage)

	require.Eventually(t, func() bool {
		return !flow.Active(inst.ID)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConnectFlowRecoversAfterBreakerProbeSucceeds(t *testing.T) {
	db := newTestDB(t)
	stub := &connStub{stateErr: assert.AnError}
	registerStub(t, stub)
	flow, instances := newConnectFlow(t, db, services.FlowOptions{
		PollInterval:     10 * time.Millisecond,
		FailureThreshold: 3,
		Cooldown:         50 * time.Millisecond,
	})
	inst := seedInstance(t, db, models.INSTANCE_STATUS_CONNECTING)

	require.NoError(t, flow.Begin(inst.ID))

	require.Eventually(t, func() bool {
		state, _ := stub.counts()
		return state == 3
	}, 2*time.Second, 5*time.Millisecond)

	// the provider comes back before the half-open probe
	stub.setState(models.INSTANCE_STATUS_CONNECTED, nil)

	require.Eventually(t, func() bool {
		stored, err := instances.Get(inst.ID)
		return err == nil && stored.Status == models.INSTANCE_STATUS_CONNECTED
	}, 3*time.Second, 5*time.Millisecond)
}

func TestConnectFlowCancel(t *testing.T) {
	db := newTestDB(t)
	stub := &connStub{stateErr: assert.AnError}
	registerStub(t, stub)
	flow, _ := newConnectFlow(t, db, services.FlowOptions{PollInterval: 10 * time.Millisecond})
	inst := seedInstance(t, db, models.INSTANCE_STATUS_CONNECTING)

	require.NoError(t, flow.Begin(inst.ID))
	assert.True(t, flow.Active(inst.ID))

	assert.True(t, flow.Cancel(inst.ID))
	assert.False(t, flow.Active(inst.ID))
	assert.False(t, flow.Cancel(inst.ID))
}

func TestConnectFlowStopsWhenInstanceDeleted(t *testing.T) {
	db := newTestDB(t)
	stub := &connStub{state: models.INSTANCE_STATUS_CONNECTING}
	registerStub(t, stub)
	flow, _ := newConnectFlow(t, db, services.FlowOptions{PollInterval: 10 * time.Millisecond})
	inst := seedInstance(t, db, models.INSTANCE_STATUS_CONNECTING)

	require.NoError(t, flow.Begin(inst.ID))
	require.NoError(t, db.Where("id = ?", inst.ID).Delete(&models.ChannelInstance{}).Error)

	require.Eventually(t, func() bool {
		return !flow.Active(inst.ID)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConnectFlowConcurrencyLimit(t *testing.T) {
	db := newTestDB(t)
	registerStub(t, &connStub{state: models.INSTANCE_STATUS_CONNECTING})
	flow, _ := newConnectFlow(t, db, services.FlowOptions{
		PollInterval:  50 * time.Millisecond,
		MaxConcurrent: 2,
	})

	a := seedInstance(t, db, models.INSTANCE_STATUS_CONNECTING)
	b := seedInstance(t, db, models.INSTANCE_STATUS_CONNECTING)
	c := seedInstance(t, db, models.INSTANCE_STATUS_CONNECTING)

	require.NoError(t, flow.Begin(a.ID))
	require.NoError(t, flow.Begin(b.ID))
	assert.Error(t, flow.Begin(c.ID))
}
