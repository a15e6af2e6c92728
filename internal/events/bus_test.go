package events

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	bus := NewBus(logrus.NewEntry(logger))
	t.Cleanup(func() { bus.Close() })
	return bus
}

func TestFeedRefreshedRoundTrip(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := bus.SubscribeFeedRefreshed(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.PublishFeedRefreshed(FeedRefreshed{FeedID: 7, NewArticles: 3}))

	select {
	case msg := <-msgs:
		ev, err := DecodeFeedRefreshed(msg)
		require.NoError(t, err)
		assert.EqualValues(t, 7, ev.FeedID)
		assert.Equal(t, 3, ev.NewArticles)
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestTopicsAreIndependent(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refreshed, err := bus.SubscribeFeedRefreshed(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.PublishArticleCreated(ArticleCreated{ArticleID: 1, FeedID: 2}))
	require.NoError(t, bus.PublishFeedRefreshed(FeedRefreshed{FeedID: 2}))

	select {
	case msg := <-refreshed:
		ev, err := DecodeFeedRefreshed(msg)
		require.NoError(t, err)
		assert.EqualValues(t, 2, ev.FeedID)
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	// Nothing else should land on this topic.
	select {
	case msg := <-refreshed:
		t.Fatalf("unexpected extra message: %s", msg.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishNeverStallsOnWedgedSubscriber(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	bus := newBus(1, 25*time.Millisecond, logrus.NewEntry(logger))
	t.Cleanup(func() { bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Subscribe and never consume: the buffer fills and stays full.
	_, err := bus.SubscribeFeedRefreshed(ctx)
	require.NoError(t, err)

	// Every publish must return within the deadline, whether the event was
	// handed off or abandoned as ErrSlowSubscriber.
	start := time.Now()
	for i := 0; i < 5; i++ {
		err := bus.PublishFeedRefreshed(FeedRefreshed{FeedID: int64(i)})
		if err != nil {
			assert.ErrorIs(t, err, ErrSlowSubscriber)
		}
	}
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDecodeFeedRefreshedRejectsGarbage(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := bus.SubscribeFeedRefreshed(ctx)
	require.NoError(t, err)
	require.NoError(t, bus.pubsub.Publish(TopicFeedRefreshed,
		message.NewMessage(watermill.NewUUID(), []byte("not json"))))

	select {
	case msg := <-msgs:
		_, err := DecodeFeedRefreshed(msg)
		assert.Error(t, err)
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}
