package syncgate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/maxpert/regnode/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type openCall struct {
	self  registry.InstanceInfo
	count int
}

type mockRegistry struct {
	mu        sync.Mutex
	syncCount int
	syncErr   error
	openErr   error
	syncCalls int
	openCalls []openCall
}

func (m *mockRegistry) SyncUp(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncCalls++
	return m.syncCount, m.syncErr
}

func (m *mockRegistry) OpenForTraffic(ctx context.Context, self registry.InstanceInfo, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openCalls = append(m.openCalls, openCall{self: self, count: count})
	return m.openErr
}

func (m *mockRegistry) Shutdown(ctx context.Context) error { return nil }

var self = registry.InstanceInfo{InstanceID: "self", AppName: "REGNODE"}

func TestGate_ZeroInstancesStillOpens(t *testing.T) {
	reg := &mockRegistry{syncCount: 0}
	g := New(reg)

	res, err := g.SyncUp(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Completed())
	assert.Equal(t, 0, res.InstancesRecovered)

	require.NoError(t, g.OpenForTraffic(context.Background(), self, res))
	require.Len(t, reg.openCalls, 1)
	assert.Equal(t, 0, reg.openCalls[0].count)
	assert.Equal(t, self, reg.openCalls[0].self)
}

func TestGate_CountPassedThrough(t *testing.T) {
	reg := &mockRegistry{syncCount: 3}
	g := New(reg)

	res, err := g.SyncUp(context.Background())
	require.NoError(t, err)
	require.NoError(t, g.OpenForTraffic(context.Background(), self, res))

	require.Len(t, reg.openCalls, 1)
	assert.Equal(t, 3, reg.openCalls[0].count)
	assert.Equal(t, 1, reg.syncCalls, "gate performs no retries")
}

func TestGate_OpenWithoutSyncRejected(t *testing.T) {
	reg := &mockRegistry{}
	g := New(reg)

	err := g.OpenForTraffic(context.Background(), self, SyncResult{InstancesRecovered: 5})
	assert.ErrorIs(t, err, ErrSyncNotCompleted)
	assert.Empty(t, reg.openCalls)
	assert.False(t, g.Opened())
}

func TestGate_OpenTwiceRejected(t *testing.T) {
	reg := &mockRegistry{syncCount: 1}
	g := New(reg)

	res, err := g.SyncUp(context.Background())
	require.NoError(t, err)
	require.NoError(t, g.OpenForTraffic(context.Background(), self, res))

	assert.ErrorIs(t, g.OpenForTraffic(context.Background(), self, res), ErrAlreadyOpen)
	assert.Len(t, reg.openCalls, 1)
}

func TestGate_SyncFailure(t *testing.T) {
	tests := []struct {
		name  string
		count int
		err   error
	}{
		{name: "registry error", err: errors.New("peers unreachable")},
		{name: "negative count", count: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(&mockRegistry{syncCount: tt.count, syncErr: tt.err})

			res, err := g.SyncUp(context.Background())
			assert.ErrorIs(t, err, ErrSyncUpFailed)
			assert.False(t, res.Completed())
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestGate_OpenErrorWrapped(t *testing.T) {
	boom := errors.New("registry closed")
	g := New(&mockRegistry{syncCount: 2, openErr: boom})

	res, err := g.SyncUp(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, g.OpenForTraffic(context.Background(), self, res), boom)
}
