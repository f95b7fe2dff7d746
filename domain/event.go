package domain

import "github.com/bytedance/sonic"

// Change-event names published on the live channel after successful
// structural mutations. Sessions subscribe to these and refetch.
const (
	ListCreated   = "list:create"
	ListUpdated   = "list:update"
	ListDeleted   = "list:delete"
	ListShared    = "list:share"
	ListUnshared  = "list:unshare"
	ListReordered = "list:reorder"

	TaskCreated   = "task:create"
	TaskUpdated   = "task:update"
	TaskDeleted   = "task:delete"
	TaskReordered = "task:reorder"
)

// Event represents a change in the domain model, broadcast to other sessions.
type Event struct {
	ID         string                 `json:"id"`
	EntityID   string                 `json:"entityId"`
	EntityType string                 `json:"entityType"`
	Type       string                 `json:"type"`
	Data       sonic.NoCopyRawMessage `json:"data,omitempty"`
	Time       int64                  `json:"time"`
	UserID     string                 `json:"userId"`
}

// IsListEvent reports whether the event type affects the list collection.
func IsListEvent(eventType string) bool {
	switch eventType {
	case ListCreated, ListUpdated, ListDeleted, ListShared, ListUnshared, ListReordered:
		return true
	}
	return false
}

// IsTaskEvent reports whether the event type affects the task collection.
func IsTaskEvent(eventType string) bool {
	switch eventType {
	case TaskCreated, TaskUpdated, TaskDeleted, TaskReordered:
		return true
	}
	return false
}
