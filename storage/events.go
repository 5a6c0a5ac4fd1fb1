package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

// ProjectUpdatesChannel carries board-changed notices for everyone viewing
// a project.
func ProjectUpdatesChannel(projectID string) string {
	return "board:" + projectID + ":updates"
}

type eventConsumer interface {
	DequeueMessage(ctx context.Context, o *azqueue.DequeueMessageOptions) (azqueue.DequeueMessagesResponse, error)
	DeleteMessage(ctx context.Context, messageID string, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error)
}

// EventWorker drains the board events queue. Each issue-moved event evicts
// the project's cached board and tells the project's other viewers that the
// board changed.
type EventWorker struct {
	queue eventConsumer
	redis *redis.Client
	idle  time.Duration
}

// NewEventWorker creates a worker consuming cfg.EventsQueue.
func NewEventWorker(cfg Config, rc *redis.Client, idle time.Duration) (*EventWorker, error) {
	q, err := azqueue.NewQueueClientFromConnectionString(cfg.ConnectionString, cfg.EventsQueue, nil)
	if err != nil {
		return nil, err
	}
	return newEventWorker(q, rc, idle), nil
}

func newEventWorker(q eventConsumer, rc *redis.Client, idle time.Duration) *EventWorker {
	if idle <= 0 {
		idle = time.Second
	}
	return &EventWorker{queue: q, redis: rc, idle: idle}
}

// Run processes messages until ctx is cancelled.
func (w *EventWorker) Run(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.poll(ctx)
		if err != nil {
			log.WithError(err).Error("receive board events")
		}
		if err != nil || n == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(w.idle):
			}
		}
	}
}

// poll handles at most one message and reports how many it saw.
func (w *EventWorker) poll(ctx context.Context) (int, error) {
	resp, err := w.queue.DequeueMessage(ctx, nil)
	if err != nil {
		return 0, err
	}
	for _, msg := range resp.Messages {
		if msg == nil || msg.MessageID == nil || msg.PopReceipt == nil {
			continue
		}
		text := ""
		if msg.MessageText != nil {
			text = *msg.MessageText
		}
		if err := w.handle(ctx, text); err != nil {
			// Left on the queue; it becomes visible again for a retry.
			log.WithError(err).WithField("message", *msg.MessageID).Error("board event not applied")
			continue
		}
		if _, err := w.queue.DeleteMessage(ctx, *msg.MessageID, *msg.PopReceipt, nil); err != nil {
			log.WithError(err).WithField("message", *msg.MessageID).Warn("delete board event")
		}
	}
	return len(resp.Messages), nil
}

func (w *EventWorker) handle(ctx context.Context, text string) error {
	var ev domain.IssueMovedEvent
	if err := sonic.UnmarshalString(text, &ev); err != nil {
		log.WithError(err).Warn("dropping malformed board event")
		return nil
	}
	if ev.Type != domain.IssueMoved || ev.ProjectID == "" {
		log.WithField("type", ev.Type).Debug("ignoring board event")
		return nil
	}
	if err := w.redis.Del(ctx, columnsCacheKey(ev.ProjectID), sprintCacheKey(ev.ProjectID)).Err(); err != nil {
		return fmt.Errorf("evict project %s: %w", ev.ProjectID, err)
	}
	note, err := sonic.Marshal(domain.Notification{
		Level:     domain.NotifyBoardChanged,
		Message:   "Board updated",
		IssueID:   ev.IssueID,
		Timestamp: ev.Timestamp,
	})
	if err != nil {
		return err
	}
	if err := w.redis.Publish(ctx, ProjectUpdatesChannel(ev.ProjectID), note).Err(); err != nil {
		return fmt.Errorf("publish project %s update: %w", ev.ProjectID, err)
	}
	log.WithFields(log.Fields{"project": ev.ProjectID, "issue": ev.IssueID}).Debug("board event applied")
	return nil
}
