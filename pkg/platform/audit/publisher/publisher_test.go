package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "algodid/pkg/platform/audit"
	"algodid/pkg/platform/audit/store/memory"
)

const testDID = "did:algo:AAAA-1"

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{DID: testDID, Action: string(audit.EventDIDCreated)})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), testDID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventDIDCreated), events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{DID: testDID, Action: string(audit.EventDocumentUpload)})
		require.NoError(t, err)
	}
	pub.Close()
	pub.Close()

	events, err := store.ListByDID(context.Background(), testDID)
	require.NoError(t, err)
	assert.Len(t, events, 10)
}

func TestPublisher_AsyncRespectsContext(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer func() {
		close(store.release)
		pub.Close()
	}()

	// First event is taken by the drainer and blocks, second fills the buffer.
	require.NoError(t, pub.Emit(context.Background(), audit.Event{DID: testDID}))
	require.Eventually(t, func() bool { return len(pub.buffer) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, pub.Emit(context.Background(), audit.Event{DID: testDID}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pub.Emit(ctx, audit.Event{DID: testDID})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPublisher_EmitAfterClose(t *testing.T) {
	for name, opts := range map[string][]Option{
		"sync":  nil,
		"async": {WithAsyncBuffer(4)},
	} {
		t.Run(name, func(t *testing.T) {
			store := memory.NewInMemoryStore()
			pub := NewPublisher(store, opts...)
			pub.Close()

			err := pub.Emit(context.Background(), audit.Event{DID: testDID, Action: string(audit.EventDocumentUpdate)})
			assert.ErrorIs(t, err, ErrClosed)

			events, err := store.ListByDID(context.Background(), testDID)
			require.NoError(t, err)
			assert.Empty(t, events)
		})
	}
}

func TestPublisher_CloseWhileWritesInFlight(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(2))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotPanics(t, func() {
				err := pub.Emit(context.Background(), audit.Event{DID: testDID, Action: string(audit.EventDocumentUpload)})
				if err != nil {
					assert.ErrorIs(t, err, ErrClosed)
				}
			})
		}()
	}
	pub.Close()
	wg.Wait()

	events, err := store.ListByDID(context.Background(), testDID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(events), 20)
}

func TestEventCategories(t *testing.T) {
	assert.Equal(t, audit.CategoryCompliance, audit.EventDocumentDeleted.Category())
	assert.Equal(t, audit.CategorySecurity, audit.EventWriteRejected.Category())
	assert.Equal(t, audit.CategoryOperations, audit.AuditEvent("resolved").Category())
}

type blockingStore struct {
	release chan struct{}
}

func (s *blockingStore) Append(context.Context, audit.Event) error {
	<-s.release
	return nil
}

func (s *blockingStore) ListByDID(context.Context, string) ([]audit.Event, error) {
	return nil, nil
}
