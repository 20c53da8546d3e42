// internal/hub/hub_test.go
package hub

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blindtest/internal/apperror"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewHub(logger)
}

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestPublishToMissingChannel(t *testing.T) {
	h := newTestHub()
	err := h.Publish(uuid.New(), Event{Kind: KindNextTrack})
	assert.True(t, errors.Is(err, apperror.ErrMissingChannel))

	_, err = h.Subscribe(uuid.New())
	assert.True(t, errors.Is(err, apperror.ErrMissingChannel))
}

func TestOpenChannelIsSingleInstance(t *testing.T) {
	h := newTestHub()
	key := uuid.New()
	require.True(t, h.OpenChannel(key, GameKinds...))

	sub, err := h.Subscribe(key)
	require.NoError(t, err)

	assert.False(t, h.OpenChannel(key, LobbyKinds...))
	assert.Equal(t, 1, h.Subscribers(key))

	require.NoError(t, h.Publish(key, Event{Kind: KindGameFinished}))
	assert.Equal(t, KindGameFinished, receive(t, sub).Kind)
}

func TestPublishRejectsForeignKinds(t *testing.T) {
	h := newTestHub()
	key := uuid.New()
	h.OpenChannel(key, LobbyKinds...)

	err := h.Publish(key, Event{Kind: KindAnswerRejected})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestSubscribeGetsOnlyLaterEvents(t *testing.T) {
	h := newTestHub()
	key := uuid.New()
	h.OpenChannel(key, LobbyKinds...)

	require.NoError(t, h.Publish(key, Event{Kind: KindNewTracks}))

	sub, err := h.Subscribe(key)
	require.NoError(t, err)
	require.NoError(t, h.Publish(key, Event{Kind: KindUserJoined, Payload: map[string]interface{}{"userName": "bob"}}))

	ev := receive(t, sub)
	assert.Equal(t, KindUserJoined, ev.Kind)
	assert.Equal(t, "bob", ev.Payload["userName"])

	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected extra event %v", ev)
	default:
	}
}

func TestCloseChannelClosesSubscriptions(t *testing.T) {
	h := newTestHub()
	key := uuid.New()
	h.OpenChannel(key, GameKinds...)
	sub, err := h.Subscribe(key)
	require.NoError(t, err)

	h.CloseChannel(key)
	_, ok := <-sub.C
	assert.False(t, ok)
	assert.False(t, h.HasChannel(key))

	// closing after the channel is gone must not panic
	sub.Close()
	sub.Close()
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	h := newTestHub()
	key := uuid.New()
	h.OpenChannel(key, GameKinds...)
	sub, err := h.Subscribe(key)
	require.NoError(t, err)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < DefaultBufferSize*3; i++ {
			_ = h.Publish(key, Event{Kind: KindAnswerRejected})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, sub.C, DefaultBufferSize)
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	h := newTestHub()
	key := uuid.New()
	h.OpenChannel(key, GameKinds...)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub, err := h.Subscribe(key)
			if err == nil {
				sub.Close()
			}
		}()
		go func() {
			defer wg.Done()
			_ = h.Publish(key, Event{Kind: KindNextTrack})
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, h.Subscribers(key))
}
