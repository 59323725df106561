package services_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"agendazap/channels"
	"agendazap/channels/mockchan"
	"agendazap/channels/whatsapp"
	dbpkg "agendazap/db"
	"agendazap/models"

	"github.com/jinzhu/gorm"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	dbpkg.AutoMigrate(db)
	t.Cleanup(func() { db.Close() })
	return db
}

// connStub is a scriptable ConnectionService, in the style of the adapter
// stubs used across the worker tests.
type connStub struct {
	mu sync.Mutex

	state    string
	stateErr error

	code       string
	connectErr error

	disconnectErr error

	stateCalls      int
	connectCalls    int
	disconnectCalls int
	deleteCalls     int
}

func (s *connStub) CreateInstance(ctx context.Context, inst *models.ChannelInstance) error {
	return nil
}

func (s *connStub) Connect(ctx context.Context, inst *models.ChannelInstance) (*channels.ConnectResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectCalls++
	if s.connectErr != nil {
		return nil, s.connectErr
	}
	if s.code == "" {
		return &channels.ConnectResult{Pending: true}, nil
	}
	return &channels.ConnectResult{Code: s.code}, nil
}

func (s *connStub) ConnectionState(ctx context.Context, inst *models.ChannelInstance) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateCalls++
	if s.stateErr != nil {
		return "", s.stateErr
	}
	return s.state, nil
}

func (s *connStub) Disconnect(ctx context.Context, inst *models.ChannelInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectCalls++
	return s.disconnectErr
}

func (s *connStub) DeleteInstance(ctx context.Context, inst *models.ChannelInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	return nil
}

func (s *connStub) SendText(ctx context.Context, inst *models.ChannelInstance, to, text string) error {
	return nil
}

func (s *connStub) counts() (state, connect int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateCalls, s.connectCalls
}

func (s *connStub) setState(state string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.stateErr = err
}

// registerStub installs the stub as the whatsapp channel with the real
// payload processor and a recording bridge.
func registerStub(t *testing.T, stub *connStub) *mockchan.Bridge {
	t.Helper()
	bridge := &mockchan.Bridge{}
	channels.Reset()
	channels.Register(models.CHANNEL_TYPE_WHATSAPP, channels.Channel{
		Connection: stub,
		Processor:  whatsapp.Processor{},
		Bridge:     bridge,
	})
	t.Cleanup(channels.Reset)
	return bridge
}
