package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/nft-ticket-protocol/internal/adapters/crdb"
	"github.com/robertarktes/nft-ticket-protocol/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetUnpublishedOutbox(ctx context.Context, limit int) ([]crdb.OutboxRecord, error) {
	args := m.Called(ctx, limit)
	recs, _ := args.Get(0).([]crdb.OutboxRecord)
	return recs, args.Error(1)
}

func (m *MockStore) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	args := m.Called(ctx, id, publishedAt)
	return args.Error(0)
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	args := m.Called(ctx, key, msg)
	return args.Error(0)
}

func record(eventType string) crdb.OutboxRecord {
	return crdb.OutboxRecord{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   []byte(`{}`),
		CreatedAt: time.Now().Add(-time.Second),
		DedupeKey: uuid.NewString(),
		Status:    "NEW",
	}
}

func TestFlushPublishesInOrder(t *testing.T) {
	store := new(MockStore)
	sink := new(MockSink)
	p := NewPublisher(store, sink, time.Second, observability.NewLogger())

	minted, sold := record("ticket.minted"), record("ticket.buy_from_organizer")
	store.On("GetUnpublishedOutbox", mock.Anything, batchSize).Return([]crdb.OutboxRecord{minted, sold}, nil)
	sink.On("Publish", mock.Anything, "ticket.minted", mock.MatchedBy(func(m amqp.Publishing) bool {
		return m.MessageId == minted.DedupeKey
	})).Return(nil).Once()
	sink.On("Publish", mock.Anything, "ticket.buy_from_organizer", mock.Anything).Return(nil).Once()
	store.On("MarkPublished", mock.Anything, minted.ID, mock.Anything).Return(nil)
	store.On("MarkPublished", mock.Anything, sold.ID, mock.Anything).Return(nil)

	n, err := p.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	store.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestFlushStopsAtFirstFailure(t *testing.T) {
	store := new(MockStore)
	sink := new(MockSink)
	p := NewPublisher(store, sink, time.Second, observability.NewLogger())

	first, second := record("ticket.list_for_resale"), record("ticket.buy_from_resale")
	store.On("GetUnpublishedOutbox", mock.Anything, batchSize).Return([]crdb.OutboxRecord{first, second}, nil)
	sink.On("Publish", mock.Anything, "ticket.list_for_resale", mock.Anything).Return(errors.New("channel closed"))

	n, err := p.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	store.AssertNotCalled(t, "MarkPublished", mock.Anything, mock.Anything, mock.Anything)
	sink.AssertNotCalled(t, "Publish", mock.Anything, "ticket.buy_from_resale", mock.Anything)
}

func TestFlushStoreError(t *testing.T) {
	store := new(MockStore)
	p := NewPublisher(store, new(MockSink), time.Second, observability.NewLogger())
	store.On("GetUnpublishedOutbox", mock.Anything, batchSize).Return(nil, errors.New("connection refused"))

	_, err := p.Flush(context.Background())
	assert.Error(t, err)
}
