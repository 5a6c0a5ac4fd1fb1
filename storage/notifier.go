package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

// NotificationsChannel is the pub/sub channel carrying a user's board
// notifications for one project.
func NotificationsChannel(userID, projectID string) string {
	return "board:" + userID + ":" + projectID + ":notifications"
}

// RedisNotifier publishes move notifications to Redis so any replica can
// stream them to the user.
type RedisNotifier struct {
	rc      *redis.Client
	channel string
}

// NewRedisNotifier returns a notifier publishing to the user's project channel.
func NewRedisNotifier(rc *redis.Client, userID, projectID string) *RedisNotifier {
	return &RedisNotifier{rc: rc, channel: NotificationsChannel(userID, projectID)}
}

// Notify publishes n. Delivery is best effort: a failed publish is logged and
// never changes the outcome of the move that produced it.
func (n *RedisNotifier) Notify(ctx context.Context, note domain.Notification) {
	if n.rc == nil {
		return
	}
	data, err := sonic.Marshal(note)
	if err != nil {
		log.WithError(err).Warn("marshal notification")
		return
	}
	if err := n.rc.Publish(ctx, n.channel, data).Err(); err != nil {
		log.WithError(err).WithField("channel", n.channel).Warn("publish notification")
	}
}

// NotifierFactory builds per-session Redis notifiers.
func NotifierFactory(rc *redis.Client) domain.NotifierFactory {
	return func(userID, projectID string) domain.Notifier {
		return NewRedisNotifier(rc, userID, projectID)
	}
}

// SubscribeNotifications relays the user's own notifications and the
// project's board-changed notices to deliver until ctx is cancelled. A
// closed subscription is re-established after a short pause.
func SubscribeNotifications(ctx context.Context, rc *redis.Client, userID, projectID string, deliver func(domain.Notification)) {
	channel := NotificationsChannel(userID, projectID)
	for {
		sub := rc.Subscribe(ctx, channel, ProjectUpdatesChannel(projectID))
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var note domain.Notification
				if err := sonic.UnmarshalString(msg.Payload, &note); err != nil {
					log.WithError(err).WithField("channel", channel).Error("unable to parse notification")
					continue
				}
				deliver(note)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		log.WithField("channel", channel).Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
