package api

import (
	"context"
	"time"

	"github.com/Alan-crt/todo-app/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	TasksForList(ctx context.Context, listID string) ([]domain.Task, error)
	GetTask(ctx context.Context, taskID string) (domain.Task, error)
	CreateTask(ctx context.Context, task domain.Task, shifts []domain.PositionShift) (domain.Task, error)
	UpdateTask(ctx context.Context, task domain.Task) (domain.Task, error)
	DeleteTask(ctx context.Context, listID, taskID string) error
	ApplyShiftPlan(ctx context.Context, listID string, plan domain.ShiftPlan, now time.Time) error

	GetList(ctx context.Context, listID string) (domain.List, error)
	CreateList(ctx context.Context, list domain.List) (domain.List, error)
	UpdateList(ctx context.Context, list domain.List) (domain.List, error)
	DeleteList(ctx context.Context, listID string) error
	ListsForOwner(ctx context.Context, ownerID string) ([]domain.List, error)

	GetShare(ctx context.Context, listID, userID string) (domain.Share, error)
	PutShare(ctx context.Context, share domain.Share) error
	DeleteShare(ctx context.Context, listID, userID string) error
	SharesForUser(ctx context.Context, userID string) ([]domain.Share, error)
	SharesForList(ctx context.Context, listID string) ([]domain.Share, error)
}

// Journal appends change events to the durable event journal.
type Journal interface {
	EnqueueEvents(ctx context.Context, events []domain.Event) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents reprocessing of duplicate create requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
}

const requestBodyMaxSize = 64 * 1024 // 64 KiB

type errorResponse struct {
	Error string `json:"error"`
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type listsResponse struct {
	Lists  []domain.List `json:"lists"`
	Shared []domain.List `json:"sharedLists,omitempty"`
}

type positionRequest struct {
	NewPosition int `json:"newPosition"`
}

type shareRequest struct {
	UserID          string `json:"userId"`
	PermissionLevel string `json:"permissionLevel"`
}

type reorderListRequest struct {
	ParentID string `json:"parentId"`
}
