package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Alan-crt/todo-app/domain"
)

type backend interface {
	TasksForList(ctx context.Context, listID string) ([]domain.Task, error)
	ListsForOwner(ctx context.Context, ownerID string) ([]domain.List, error)
	GetList(ctx context.Context, listID string) (domain.List, error)
	CreateTask(ctx context.Context, task domain.Task, shifts []domain.PositionShift) (domain.Task, error)
	UpdateTask(ctx context.Context, task domain.Task) (domain.Task, error)
	DeleteTask(ctx context.Context, listID, taskID string) error
	ApplyShiftPlan(ctx context.Context, listID string, plan domain.ShiftPlan, now time.Time) error
	CreateList(ctx context.Context, list domain.List) (domain.List, error)
	UpdateList(ctx context.Context, list domain.List) (domain.List, error)
	DeleteList(ctx context.Context, listID string) error
}

// Cache wraps a Storage instance with Redis-backed caching for read
// operations. Any write touching a list evicts that list's cached tasks so
// readers never see a stale ordering after a confirmed mutation.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) TasksForList(ctx context.Context, listID string) ([]domain.Task, error) {
	if tasks, ok := c.loadTasksFromCache(ctx, listID); ok {
		return tasks, nil
	}

	tasks, err := c.base.TasksForList(ctx, listID)
	if err != nil {
		return nil, err
	}

	c.storeTasks(ctx, listID, tasks)
	return tasks, nil
}

func (c *Cache) ListsForOwner(ctx context.Context, ownerID string) ([]domain.List, error) {
	if lists, ok := c.loadListsFromCache(ctx, ownerID); ok {
		return lists, nil
	}

	lists, err := c.base.ListsForOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	c.storeLists(ctx, ownerID, lists)
	return lists, nil
}

func (c *Cache) CreateTask(ctx context.Context, task domain.Task, shifts []domain.PositionShift) (domain.Task, error) {
	created, err := c.base.CreateTask(ctx, task, shifts)
	if err != nil {
		return domain.Task{}, err
	}
	c.evictTasks(ctx, task.ListID)
	return created, nil
}

func (c *Cache) UpdateTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	updated, err := c.base.UpdateTask(ctx, task)
	if err != nil {
		return domain.Task{}, err
	}
	c.evictTasks(ctx, task.ListID)
	return updated, nil
}

func (c *Cache) DeleteTask(ctx context.Context, listID, taskID string) error {
	if err := c.base.DeleteTask(ctx, listID, taskID); err != nil {
		return err
	}
	c.evictTasks(ctx, listID)
	return nil
}

func (c *Cache) ApplyShiftPlan(ctx context.Context, listID string, plan domain.ShiftPlan, now time.Time) error {
	if err := c.base.ApplyShiftPlan(ctx, listID, plan, now); err != nil {
		return err
	}
	c.evictTasks(ctx, listID)
	return nil
}

func (c *Cache) CreateList(ctx context.Context, list domain.List) (domain.List, error) {
	created, err := c.base.CreateList(ctx, list)
	if err != nil {
		return domain.List{}, err
	}
	c.evictLists(ctx, list.OwnerID)
	return created, nil
}

func (c *Cache) UpdateList(ctx context.Context, list domain.List) (domain.List, error) {
	updated, err := c.base.UpdateList(ctx, list)
	if err != nil {
		return domain.List{}, err
	}
	c.evictLists(ctx, list.OwnerID)
	return updated, nil
}

func (c *Cache) DeleteList(ctx context.Context, listID string) error {
	if list, err := c.base.GetList(ctx, listID); err == nil {
		defer c.evictLists(ctx, list.OwnerID)
	}
	if err := c.base.DeleteList(ctx, listID); err != nil {
		return err
	}
	c.evictTasks(ctx, listID)
	return nil
}

func (c *Cache) loadTasksFromCache(ctx context.Context, listID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(listID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, tasksCacheKey(listID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(listID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) loadListsFromCache(ctx context.Context, ownerID string) ([]domain.List, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, listsCacheKey(ownerID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, listsCacheKey(ownerID)).Err()
		}
		return nil, false
	}
	var lists []domain.List
	if err := json.Unmarshal(data, &lists); err != nil {
		_ = c.redis.Del(ctx, listsCacheKey(ownerID)).Err()
		return nil, false
	}
	return lists, true
}

func (c *Cache) storeTasks(ctx context.Context, listID string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, tasksCacheKey(listID), data, c.ttl).Err()
}

func (c *Cache) storeLists(ctx context.Context, ownerID string, lists []domain.List) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(lists)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, listsCacheKey(ownerID), data, c.ttl).Err()
}

func (c *Cache) evictTasks(ctx context.Context, listID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, tasksCacheKey(listID)).Result()
}

func (c *Cache) evictLists(ctx context.Context, ownerID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, listsCacheKey(ownerID)).Result()
}

func tasksCacheKey(listID string) string {
	return "tasks:" + listID
}

func listsCacheKey(ownerID string) string {
	return "lists:" + ownerID
}
