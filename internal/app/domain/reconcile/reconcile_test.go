package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-routes/internal/pkg/events"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ReleaseOrphanedPins(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) ReclaimRoutePins(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestRun(t *testing.T) {
	t.Run("reports repairs and publishes", func(t *testing.T) {
		repo := new(MockRepository)
		pub := &recordingPublisher{}
		svc := NewService(repo, pub, zap.NewNop())
		repo.On("ReleaseOrphanedPins", mock.Anything).Return(int64(3), nil).Once()
		repo.On("ReclaimRoutePins", mock.Anything).Return(int64(1), nil).Once()

		report, err := svc.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(3), report.Released)
		assert.Equal(t, int64(1), report.Reclaimed)
		assert.Equal(t, int64(4), report.Repairs())

		require.Len(t, pub.events, 1)
		assert.Equal(t, events.ReconcileCompleted, pub.events[0].Type)
		assert.Equal(t, int64(3), pub.events[0].Detail["released"])
		repo.AssertExpectations(t)
	})

	t.Run("clean pass stays quiet", func(t *testing.T) {
		repo := new(MockRepository)
		pub := &recordingPublisher{}
		svc := NewService(repo, pub, zap.NewNop())
		repo.On("ReleaseOrphanedPins", mock.Anything).Return(int64(0), nil).Once()
		repo.On("ReclaimRoutePins", mock.Anything).Return(int64(0), nil).Once()

		_, err := svc.Run(context.Background())
		require.NoError(t, err)
		assert.Empty(t, pub.events)
	})

	t.Run("release failure stops the pass", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo, events.NopPublisher{}, zap.NewNop())
		repo.On("ReleaseOrphanedPins", mock.Anything).Return(int64(0), errors.New("deadlock detected")).Once()

		_, err := svc.Run(context.Background())
		assert.ErrorContains(t, err, "deadlock detected")
		repo.AssertNotCalled(t, "ReclaimRoutePins", mock.Anything)
	})
}

func TestStartRunsUntilCancelled(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, events.NopPublisher{}, zap.NewNop())

	ran := make(chan struct{}, 8)
	repo.On("ReleaseOrphanedPins", mock.Anything).Return(int64(0), nil).Run(func(mock.Arguments) {
		select {
		case ran <- struct{}{}:
		default:
		}
	})
	repo.On("ReclaimRoutePins", mock.Anything).Return(int64(0), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("reconciliation never ran")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestStartDisabled(t *testing.T) {
	svc := NewService(new(MockRepository), events.NopPublisher{}, zap.NewNop())
	svc.Start(context.Background(), 0)
}

func TestRepositoryStatements(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()
	repo := NewRepository(mockPool, zap.NewNop())

	mockPool.ExpectExec(`SET consumed = FALSE, route_id = NULL.*NOT EXISTS \(SELECT 1 FROM routes r WHERE r.id = p.route_id\)`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mockPool.ExpectExec(`jsonb_array_elements\(r.stops\).*AND r.created_at < NOW\(\) - INTERVAL '1 minute'.*AND p.consumed = FALSE`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	released, err := repo.ReleaseOrphanedPins(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), released)

	reclaimed, err := repo.ReclaimRoutePins(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), reclaimed)

	assert.NoError(t, mockPool.ExpectationsWereMet())
}
