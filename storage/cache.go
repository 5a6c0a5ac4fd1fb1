package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

type backend interface {
	FetchColumns(ctx context.Context, projectID string) ([]domain.Column, error)
	FetchActiveSprint(ctx context.Context, projectID string) (*domain.Sprint, error)
	FetchWorkspaceMembers(ctx context.Context, workspaceID string) ([]domain.WorkspaceMember, error)
	PersistIssueColumn(ctx context.Context, projectID string, issueID domain.IssueID, columnID domain.ColumnID) error
}

// Cache wraps a backend with Redis-backed read caching. A persisted move
// evicts the project's cached columns and sprint.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// cachedSprint distinguishes "no active sprint" from a cache miss.
type cachedSprint struct {
	Sprint *domain.Sprint `json:"sprint"`
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchColumns(ctx context.Context, projectID string) ([]domain.Column, error) {
	var cols []domain.Column
	if c.load(ctx, columnsCacheKey(projectID), &cols) {
		return cols, nil
	}
	cols, err := c.base.FetchColumns(ctx, projectID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, columnsCacheKey(projectID), cols)
	return cols, nil
}

func (c *Cache) FetchActiveSprint(ctx context.Context, projectID string) (*domain.Sprint, error) {
	var cached cachedSprint
	if c.load(ctx, sprintCacheKey(projectID), &cached) {
		return cached.Sprint, nil
	}
	sprint, err := c.base.FetchActiveSprint(ctx, projectID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, sprintCacheKey(projectID), cachedSprint{Sprint: sprint})
	return sprint, nil
}

func (c *Cache) FetchWorkspaceMembers(ctx context.Context, workspaceID string) ([]domain.WorkspaceMember, error) {
	var members []domain.WorkspaceMember
	if c.load(ctx, membersCacheKey(workspaceID), &members) {
		return members, nil
	}
	members, err := c.base.FetchWorkspaceMembers(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, membersCacheKey(workspaceID), members)
	return members, nil
}

func (c *Cache) PersistIssueColumn(ctx context.Context, projectID string, issueID domain.IssueID, columnID domain.ColumnID) error {
	if err := c.base.PersistIssueColumn(ctx, projectID, issueID, columnID); err != nil {
		return err
	}
	c.evict(ctx, projectID)
	return nil
}

func (c *Cache) load(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.WithError(err).WithField("key", key).Warn("failed to store board cache entry")
	}
}

func (c *Cache) evict(ctx context.Context, projectID string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, columnsCacheKey(projectID), sprintCacheKey(projectID)).Err(); err != nil {
		log.WithError(err).WithField("project", projectID).Warn("failed to evict board cache")
	}
}

func columnsCacheKey(projectID string) string {
	return "columns:" + projectID
}

func sprintCacheKey(projectID string) string {
	return "sprint:" + projectID
}

func membersCacheKey(workspaceID string) string {
	return "members:" + workspaceID
}
