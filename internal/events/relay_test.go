package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Insert(ctx context.Context, rec *Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockRepository) FetchPending(ctx context.Context, limit int) ([]Record, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]Record), args.Error(1)
}

func (m *MockRepository) MarkSent(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type fakePublisher struct {
	published []int64
	failOn    map[int64]error
}

func (p *fakePublisher) Publish(_ context.Context, rec Record) error {
	if err := p.failOn[rec.ID]; err != nil {
		return err
	}
	p.published = append(p.published, rec.ID)
	return nil
}

func pending(ids ...int64) []Record {
	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		records = append(records, Record{ID: id, Topic: "order-events", Key: "JD1", EventType: "order.created"})
	}
	return records
}

func TestRelay_FlushPublishesAndMarks(t *testing.T) {
	repo := new(MockRepository)
	pub := &fakePublisher{}
	relay := NewRelay(repo, pub, time.Second, 10)

	repo.On("FetchPending", mock.Anything, 10).Return(pending(1, 2, 3), nil).Once()
	repo.On("MarkSent", mock.Anything, int64(1)).Return(nil).Once()
	repo.On("MarkSent", mock.Anything, int64(2)).Return(nil).Once()
	repo.On("MarkSent", mock.Anything, int64(3)).Return(nil).Once()

	sent, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	assert.Equal(t, []int64{1, 2, 3}, pub.published)
	repo.AssertExpectations(t)
}

func TestRelay_FlushStopsAtFirstFailure(t *testing.T) {
	repo := new(MockRepository)
	pub := &fakePublisher{failOn: map[int64]error{2: errors.New("broker unavailable")}}
	relay := NewRelay(repo, pub, time.Second, 10)

	repo.On("FetchPending", mock.Anything, 10).Return(pending(1, 2, 3), nil).Once()
	repo.On("MarkSent", mock.Anything, int64(1)).Return(nil).Once()

	sent, err := relay.Flush(context.Background())
	require.ErrorContains(t, err, "broker unavailable")
	assert.Equal(t, 1, sent)
	assert.Equal(t, []int64{1}, pub.published)
	repo.AssertNotCalled(t, "MarkSent", mock.Anything, int64(3))
	repo.AssertExpectations(t)
}

func TestRelay_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	repo := new(MockRepository)
	pub := &fakePublisher{failOn: map[int64]error{1: errors.New("broker unavailable")}}
	relay := NewRelay(repo, pub, time.Second, 1)

	repo.On("FetchPending", mock.Anything, 1).Return(pending(1), nil)

	for i := 0; i < 5; i++ {
		_, err := relay.Flush(context.Background())
		require.ErrorContains(t, err, "broker unavailable")
	}

	_, err := relay.Flush(context.Background())
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	repo.AssertNotCalled(t, "MarkSent", mock.Anything, mock.Anything)
}

func TestRecorder_Record(t *testing.T) {
	repo := new(MockRepository)
	recorder := NewRecorder(repo, "order-events")
	recorder.now = func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC) }

	var captured *Record
	repo.On("Insert", mock.Anything, mock.AnythingOfType("*events.Record")).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*Record) }).
		Return(nil).Once()

	err := recorder.Record(context.Background(), "order.paid", "JD1746100800000001", map[string]any{"order_id": 7})
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.NotEqual(t, uuid.Nil, captured.EventID)
	assert.Equal(t, "order-events", captured.Topic)
	assert.Equal(t, "JD1746100800000001", captured.Key)
	assert.Equal(t, "order.paid", captured.EventType)
	assert.JSONEq(t, `{"order_id":7}`, string(captured.Payload))
	assert.Equal(t, 2025, captured.CreatedAt.Year())
}

func TestRecorder_RecordRejectsUnencodablePayload(t *testing.T) {
	repo := new(MockRepository)
	recorder := NewRecorder(repo, "order-events")

	err := recorder.Record(context.Background(), "order.paid", "k", map[string]any{"bad": make(chan int)})
	require.ErrorContains(t, err, "failed to encode")
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}
