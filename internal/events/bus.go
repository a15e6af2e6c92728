// Package events fans out ingestion notifications over an in-process
// pub/sub with bounded buffers. Subscribers that fall behind delay only
// their own channel; publishers never accumulate an unbounded backlog.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/sirupsen/logrus"
)

// Topics.
const (
	TopicFeedRefreshed  = "feed.refreshed"
	TopicArticleCreated = "article.created"
)

// FeedRefreshed is published after every successful pipeline run.
type FeedRefreshed struct {
	FeedID      int64 `json:"feed_id"`
	NewArticles int   `json:"new_articles"`
}

// ArticleCreated is published once per newly inserted article.
type ArticleCreated struct {
	ArticleID int64 `json:"article_id"`
	FeedID    int64 `json:"feed_id"`
}

// defaultPublishTimeout bounds how long a publisher waits on delivery. A
// wedged subscriber costs the publisher at most this much per event.
const defaultPublishTimeout = 500 * time.Millisecond

// ErrSlowSubscriber is returned when delivery misses the publish deadline.
// The event is abandoned to the in-flight delivery attempt; the publisher
// moves on.
var ErrSlowSubscriber = errors.New("event delivery timed out: subscriber not keeping up")

// Bus wraps a gochannel Pub/Sub.
type Bus struct {
	pubsub         *gochannel.GoChannel
	publishTimeout time.Duration
}

// NewBus creates the process-wide bus.
func NewBus(log *logrus.Entry) *Bus {
	return newBus(256, defaultPublishTimeout, log)
}

func newBus(buffer int64, timeout time.Duration, log *logrus.Entry) *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: buffer},
			&logrusAdapter{entry: log},
		),
		publishTimeout: timeout,
	}
}

// Close shuts the bus down, closing all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// PublishFeedRefreshed emits a feed.refreshed event.
func (b *Bus) PublishFeedRefreshed(ev FeedRefreshed) error {
	return b.publish(TopicFeedRefreshed, ev)
}

// PublishArticleCreated emits an article.created event.
func (b *Bus) PublishArticleCreated(ev ArticleCreated) error {
	return b.publish(TopicArticleCreated, ev)
}

// publish hands the event to delivery and waits at most publishTimeout.
// A delivery that outlives the deadline finishes in the background or dies
// with the bus; the publisher is never stalled by a slow subscriber.
func (b *Bus) publish(topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	done := make(chan error, 1)
	go func() {
		done <- b.pubsub.Publish(topic, msg)
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(b.publishTimeout):
		return ErrSlowSubscriber
	}
}

// SubscribeFeedRefreshed returns a channel of feed.refreshed messages.
// Messages must be Acked or Nacked by the consumer.
func (b *Bus) SubscribeFeedRefreshed(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, TopicFeedRefreshed)
}

// SubscribeArticleCreated returns a channel of article.created messages.
func (b *Bus) SubscribeArticleCreated(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, TopicArticleCreated)
}

// DecodeFeedRefreshed unmarshals a feed.refreshed message payload.
func DecodeFeedRefreshed(msg *message.Message) (FeedRefreshed, error) {
	var ev FeedRefreshed
	err := json.Unmarshal(msg.Payload, &ev)
	return ev, err
}

// logrusAdapter bridges watermill's logger interface onto the process
// logger.
type logrusAdapter struct {
	entry *logrus.Entry
}

func (a *logrusAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).WithError(err).Error(msg)
}

func (a *logrusAdapter) Info(msg string, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (a *logrusAdapter) Debug(msg string, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (a *logrusAdapter) Trace(msg string, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).Trace(msg)
}

func (a *logrusAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &logrusAdapter{entry: a.entry.WithFields(logrus.Fields(fields))}
}
