// Package storage persists lists, tasks and shares in Azure Table Storage
// and journals change events to an Azure Queue. Tasks are partitioned by
// list id, so the sibling shifts of a reorder land in a single partition
// transaction: either every position write applies or none do.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"github.com/Alan-crt/todo-app/domain"
)

// Storage provides access to the underlying persistence mechanisms.
type Storage struct {
	taskTable  *aztables.Client
	listTable  *aztables.Client
	shareTable *aztables.Client
	eventQueue *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, listsTable, sharesTable, eventQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, eventQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable:  svc.NewClient(tasksTable),
		listTable:  svc.NewClient(listsTable),
		shareTable: svc.NewClient(sharesTable),
		eventQueue: eq,
	}, nil
}

// mapAzError converts transport-level failures into the domain taxonomy.
func mapAzError(op string, err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case 404:
			return domain.NotFound(op + ": entity not found")
		case 409:
			return domain.Conflict(op + ": entity already exists")
		}
	}
	return domain.Internal(op, err)
}

// --- tasks ---

// Tasks: PartitionKey = list id, RowKey = task id. Timestamps and due dates
// are stored as unix milliseconds, tags as a JSON-encoded string, keeping
// the entity to EDM-native property types.
type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	DueDate     int64  `json:"DueDate"`
	Priority    string `json:"Priority"`
	Status      string `json:"Status"`
	Tags        string `json:"Tags"`
	Position    int    `json:"Position"`
	CreatedAt   int64  `json:"CreatedAt"`
	UpdatedAt   int64  `json:"UpdatedAt"`
}

func taskToEntity(t domain.Task) taskEntity {
	ent := taskEntity{
		Entity:      aztables.Entity{PartitionKey: t.ListID, RowKey: t.ID},
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		Position:    t.Position,
		CreatedAt:   t.CreatedAt.UnixMilli(),
		UpdatedAt:   t.UpdatedAt.UnixMilli(),
	}
	if t.DueDate != nil {
		ent.DueDate = t.DueDate.UnixMilli()
	}
	if len(t.Tags) > 0 {
		if data, err := json.Marshal(t.Tags); err == nil {
			ent.Tags = string(data)
		}
	}
	return ent
}

func entityToTask(ent taskEntity) domain.Task {
	t := domain.Task{
		ID:          ent.RowKey,
		ListID:      ent.PartitionKey,
		Title:       ent.Title,
		Description: ent.Description,
		Priority:    domain.Priority(ent.Priority),
		Status:      domain.Status(ent.Status),
		Position:    ent.Position,
		CreatedAt:   time.UnixMilli(ent.CreatedAt).UTC(),
		UpdatedAt:   time.UnixMilli(ent.UpdatedAt).UTC(),
	}
	if ent.DueDate > 0 {
		due := time.UnixMilli(ent.DueDate).UTC()
		t.DueDate = &due
	}
	if ent.Tags != "" {
		_ = json.Unmarshal([]byte(ent.Tags), &t.Tags)
	}
	return t
}

// TasksForList retrieves every task on the given list.
func (s *Storage) TasksForList(ctx context.Context, listID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + escapeODataString(listID) + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapAzError("list tasks", err)
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, domain.Internal("decode task entity", err)
			}
			tasks = append(tasks, entityToTask(ent))
		}
	}
	return tasks, nil
}

// GetTask finds a task by id alone, scanning across list partitions.
func (s *Storage) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	filter := "RowKey eq '" + escapeODataString(taskID) + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return domain.Task{}, mapAzError("get task", err)
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return domain.Task{}, domain.Internal("decode task entity", err)
			}
			return entityToTask(ent), nil
		}
	}
	return domain.Task{}, domain.NotFound("task not found")
}

// CreateTask inserts a task and applies the sibling shift plan in one
// partition transaction.
func (s *Storage) CreateTask(ctx context.Context, task domain.Task, shifts []domain.PositionShift) (domain.Task, error) {
	actions := make([]aztables.TransactionAction, 0, len(shifts)+1)
	data, err := json.Marshal(taskToEntity(task))
	if err != nil {
		return domain.Task{}, domain.Internal("encode task entity", err)
	}
	actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeAdd, Entity: data})

	shiftActions, err := shiftTransactionActions(task.ListID, shifts, task.UpdatedAt)
	if err != nil {
		return domain.Task{}, err
	}
	actions = append(actions, shiftActions...)

	if _, err := s.taskTable.SubmitTransaction(ctx, actions, nil); err != nil {
		return domain.Task{}, mapAzError("create task", err)
	}
	return task, nil
}

// UpdateTask merges non-positional task fields.
func (s *Storage) UpdateTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	data, err := json.Marshal(taskToEntity(task))
	if err != nil {
		return domain.Task{}, domain.Internal("encode task entity", err)
	}
	if _, err := s.taskTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge}); err != nil {
		return domain.Task{}, mapAzError("update task", err)
	}
	return task, nil
}

// DeleteTask removes a task from its list partition.
func (s *Storage) DeleteTask(ctx context.Context, listID, taskID string) error {
	if _, err := s.taskTable.DeleteEntity(ctx, listID, taskID, nil); err != nil {
		return mapAzError("delete task", err)
	}
	return nil
}

// ApplyShiftPlan moves a task to its target position and shifts its siblings
// in one atomic partition transaction. Partial application is impossible:
// the service either accepts the whole batch or rejects it.
func (s *Storage) ApplyShiftPlan(ctx context.Context, listID string, plan domain.ShiftPlan, now time.Time) error {
	moved := positionPatchEntity(listID, plan.TaskID, plan.Target, now)
	data, err := json.Marshal(moved)
	if err != nil {
		return domain.Internal("encode position patch", err)
	}
	actions := []aztables.TransactionAction{
		{ActionType: aztables.TransactionTypeUpdateMerge, Entity: data},
	}
	shiftActions, err := shiftTransactionActions(listID, plan.Shifts, now)
	if err != nil {
		return err
	}
	actions = append(actions, shiftActions...)

	if _, err := s.taskTable.SubmitTransaction(ctx, actions, nil); err != nil {
		return mapAzError("apply shift plan", err)
	}
	return nil
}

// positionPatch is a merge entity carrying only the fields a reorder touches.
type positionPatch struct {
	aztables.Entity
	Position  int   `json:"Position"`
	UpdatedAt int64 `json:"UpdatedAt"`
}

func positionPatchEntity(listID, taskID string, position int, now time.Time) positionPatch {
	return positionPatch{
		Entity:    aztables.Entity{PartitionKey: listID, RowKey: taskID},
		Position:  position,
		UpdatedAt: now.UnixMilli(),
	}
}

func shiftTransactionActions(listID string, shifts []domain.PositionShift, now time.Time) ([]aztables.TransactionAction, error) {
	actions := make([]aztables.TransactionAction, 0, len(shifts))
	for _, shift := range shifts {
		data, err := json.Marshal(positionPatchEntity(listID, shift.TaskID, shift.NewPosition, now))
		if err != nil {
			return nil, domain.Internal("encode position patch", err)
		}
		actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeUpdateMerge, Entity: data})
	}
	return actions, nil
}

// --- lists ---

// Lists: PartitionKey = RowKey = list id, so a list is addressable by id
// alone and owner listings go through a filter query.
type listEntity struct {
	aztables.Entity
	Name      string `json:"Name"`
	OwnerID   string `json:"OwnerID"`
	ParentID  string `json:"ParentID"`
	CreatedAt int64  `json:"CreatedAt"`
	UpdatedAt int64  `json:"UpdatedAt"`
}

func listToEntity(l domain.List) listEntity {
	return listEntity{
		Entity:    aztables.Entity{PartitionKey: l.ID, RowKey: l.ID},
		Name:      l.Name,
		OwnerID:   l.OwnerID,
		ParentID:  l.ParentID,
		CreatedAt: l.CreatedAt.UnixMilli(),
		UpdatedAt: l.UpdatedAt.UnixMilli(),
	}
}

func entityToList(ent listEntity) domain.List {
	return domain.List{
		ID:        ent.RowKey,
		Name:      ent.Name,
		OwnerID:   ent.OwnerID,
		ParentID:  ent.ParentID,
		CreatedAt: time.UnixMilli(ent.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(ent.UpdatedAt).UTC(),
	}
}

// GetList retrieves a list by id.
func (s *Storage) GetList(ctx context.Context, listID string) (domain.List, error) {
	resp, err := s.listTable.GetEntity(ctx, listID, listID, nil)
	if err != nil {
		return domain.List{}, mapAzError("get list", err)
	}
	var ent listEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.List{}, domain.Internal("decode list entity", err)
	}
	return entityToList(ent), nil
}

// CreateList inserts a new list.
func (s *Storage) CreateList(ctx context.Context, list domain.List) (domain.List, error) {
	data, err := json.Marshal(listToEntity(list))
	if err != nil {
		return domain.List{}, domain.Internal("encode list entity", err)
	}
	if _, err := s.listTable.AddEntity(ctx, data, nil); err != nil {
		return domain.List{}, mapAzError("create list", err)
	}
	return list, nil
}

// UpdateList merges list fields.
func (s *Storage) UpdateList(ctx context.Context, list domain.List) (domain.List, error) {
	data, err := json.Marshal(listToEntity(list))
	if err != nil {
		return domain.List{}, domain.Internal("encode list entity", err)
	}
	if _, err := s.listTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge}); err != nil {
		return domain.List{}, mapAzError("update list", err)
	}
	return list, nil
}

// DeleteList removes the list row. Tasks and shares of the list are removed
// by their own partition deletes.
func (s *Storage) DeleteList(ctx context.Context, listID string) error {
	if _, err := s.listTable.DeleteEntity(ctx, listID, listID, nil); err != nil {
		return mapAzError("delete list", err)
	}
	return nil
}

// ListsForOwner retrieves every list owned by the principal.
func (s *Storage) ListsForOwner(ctx context.Context, ownerID string) ([]domain.List, error) {
	filter := "OwnerID eq '" + escapeODataString(ownerID) + "'"
	pager := s.listTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	lists := []domain.List{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapAzError("list lists", err)
		}
		for _, raw := range resp.Entities {
			var ent listEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, domain.Internal("decode list entity", err)
			}
			lists = append(lists, entityToList(ent))
		}
	}
	return lists, nil
}

// --- shares ---

// Shares: PartitionKey = list id, RowKey = principal id, which makes the
// one-share-per-(list, principal) invariant a table constraint.
type shareEntity struct {
	aztables.Entity
	Level     string `json:"Level"`
	CreatedAt int64  `json:"CreatedAt"`
}

// GetShare retrieves the share for a (list, principal) pair.
func (s *Storage) GetShare(ctx context.Context, listID, userID string) (domain.Share, error) {
	resp, err := s.shareTable.GetEntity(ctx, listID, userID, nil)
	if err != nil {
		return domain.Share{}, mapAzError("get share", err)
	}
	var ent shareEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Share{}, domain.Internal("decode share entity", err)
	}
	return domain.Share{
		ListID:    ent.PartitionKey,
		UserID:    ent.RowKey,
		Level:     domain.PermissionLevel(ent.Level),
		CreatedAt: time.UnixMilli(ent.CreatedAt).UTC(),
	}, nil
}

// PutShare creates or replaces the share for a (list, principal) pair.
func (s *Storage) PutShare(ctx context.Context, share domain.Share) error {
	ent := shareEntity{
		Entity:    aztables.Entity{PartitionKey: share.ListID, RowKey: share.UserID},
		Level:     string(share.Level),
		CreatedAt: share.CreatedAt.UnixMilli(),
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return domain.Internal("encode share entity", err)
	}
	if _, err := s.shareTable.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace}); err != nil {
		return mapAzError("put share", err)
	}
	return nil
}

// DeleteShare revokes a grant.
func (s *Storage) DeleteShare(ctx context.Context, listID, userID string) error {
	if _, err := s.shareTable.DeleteEntity(ctx, listID, userID, nil); err != nil {
		return mapAzError("delete share", err)
	}
	return nil
}

// SharesForUser retrieves every share granted to the principal.
func (s *Storage) SharesForUser(ctx context.Context, userID string) ([]domain.Share, error) {
	filter := "RowKey eq '" + escapeODataString(userID) + "'"
	pager := s.shareTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	shares := []domain.Share{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapAzError("list shares", err)
		}
		for _, raw := range resp.Entities {
			var ent shareEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, domain.Internal("decode share entity", err)
			}
			shares = append(shares, domain.Share{
				ListID:    ent.PartitionKey,
				UserID:    ent.RowKey,
				Level:     domain.PermissionLevel(ent.Level),
				CreatedAt: time.UnixMilli(ent.CreatedAt).UTC(),
			})
		}
	}
	return shares, nil
}

// SharesForList retrieves every share on a list.
func (s *Storage) SharesForList(ctx context.Context, listID string) ([]domain.Share, error) {
	filter := "PartitionKey eq '" + escapeODataString(listID) + "'"
	pager := s.shareTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	shares := []domain.Share{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapAzError("list shares", err)
		}
		for _, raw := range resp.Entities {
			var ent shareEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, domain.Internal("decode share entity", err)
			}
			shares = append(shares, domain.Share{
				ListID:    ent.PartitionKey,
				UserID:    ent.RowKey,
				Level:     domain.PermissionLevel(ent.Level),
				CreatedAt: time.UnixMilli(ent.CreatedAt).UTC(),
			})
		}
	}
	return shares, nil
}

// --- event journal ---

// EnqueueEvents appends change events to the journal queue.
func (s *Storage) EnqueueEvents(ctx context.Context, events []domain.Event) error {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return domain.Internal("encode event", err)
		}
		if _, err := s.eventQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
			return mapAzError("enqueue event", err)
		}
	}
	return nil
}

// escapeODataString doubles single quotes so identifiers cannot break out of
// an OData string literal.
func escapeODataString(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'')
		}
		out = append(out, s[i])
	}
	return string(out)
}
