package api

import (
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/Alan-crt/todo-app/access"
	"github.com/Alan-crt/todo-app/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, verifier *access.Verifier, auth Authenticator, deduper Deduper, pub *Publisher, logger *log.Logger) {
	e.GET("/api/tasks", getTasks(store, verifier, auth, logger))
	e.POST("/api/tasks", postTask(store, verifier, auth, deduper, pub))
	e.PUT("/api/tasks/:id", putTask(store, verifier, auth, pub))
	e.DELETE("/api/tasks/:id", deleteTask(store, verifier, auth, pub))
	e.PATCH("/api/tasks/:id/position", patchTaskPosition(store, verifier, auth, pub))

	e.GET("/api/lists", getLists(store, auth))
	e.POST("/api/lists", postList(store, verifier, auth, pub))
	e.PUT("/api/lists/:id", putList(store, verifier, auth, pub))
	e.DELETE("/api/lists/:id", deleteList(store, verifier, auth, pub))
	e.POST("/api/lists/:id/share", postShare(store, verifier, auth, pub))
	e.DELETE("/api/lists/:id/share/:userId", deleteShare(store, verifier, auth, pub))
	e.PUT("/api/lists/:id/reorder", reorderList(store, verifier, auth, pub))

	e.GET("/healthz", healthz(store))
}

func healthz(_ Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// respondDomainError maps the error taxonomy onto HTTP statuses. Forbidden
// answers only ever come out of write checks on entities the caller can see;
// unauthorized reads surface as a uniform not-found so existence is not
// leaked.
func respondDomainError(c echo.Context, err error) error {
	msg := err.Error()
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
	case domain.KindUnauthorized:
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: msg})
	case domain.KindForbidden:
		return c.JSON(http.StatusForbidden, errorResponse{Error: "insufficient permissions"})
	case domain.KindNotFound:
		return c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
	case domain.KindConflict:
		return c.JSON(http.StatusConflict, errorResponse{Error: msg})
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func newEvent(userID, entityType, entityID, eventType string) domain.Event {
	return domain.Event{
		ID:         uuid.NewString(),
		EntityID:   entityID,
		EntityType: entityType,
		Type:       eventType,
		Time:       eventStamp(),
		UserID:     userID,
	}
}

func publish(c echo.Context, pub *Publisher, ev domain.Event) {
	if pub == nil {
		return
	}
	// Best-effort: the mutation already succeeded.
	if err := pub.Publish(c.Request().Context(), ev); err != nil {
		c.Logger().Warnf("publish %s: %v", ev.Type, err)
	}
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return domain.Validation("invalid body")
	}
	return nil
}

// visibleListIDs resolves every list the principal may read: owned ones plus
// any with a share grant.
func visibleListIDs(c echo.Context, store Storage, userID string) ([]string, error) {
	ctx := c.Request().Context()
	owned, err := store.ListsForOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	shares, err := store.SharesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(owned)+len(shares))
	seen := make(map[string]struct{}, len(owned)+len(shares))
	for _, l := range owned {
		if _, ok := seen[l.ID]; !ok {
			seen[l.ID] = struct{}{}
			ids = append(ids, l.ID)
		}
	}
	for _, s := range shares {
		if _, ok := seen[s.ListID]; !ok {
			seen[s.ListID] = struct{}{}
			ids = append(ids, s.ListID)
		}
	}
	return ids, nil
}

func getTasks(store Storage, verifier *access.Verifier, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTaskRequestMetrics(ctx, logger)
		c.SetRequest(c.Request().WithContext(spanCtx))
		ctx = spanCtx
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
			return err
		}

		filter, ferr := domain.NormalizeTaskFilter(
			c.QueryParam("listId"),
			c.QueryParam("status"),
			c.QueryParam("priority"),
			c.QueryParam("tag"),
		)
		if ferr != nil {
			metrics.SetErrorStage("invalid_filter")
			err = respondDomainError(c, ferr)
			return err
		}

		var listIDs []string
		if filter.ListID != "" {
			if aerr := verifier.CanView(ctx, userID, filter.ListID); aerr != nil {
				metrics.SetErrorStage("access")
				err = respondDomainError(c, aerr)
				return err
			}
			listIDs = []string{filter.ListID}
		} else {
			var verr error
			listIDs, verr = visibleListIDs(c, store, userID)
			if verr != nil {
				metrics.SetErrorStage("storage")
				err = respondDomainError(c, verr)
				return err
			}
		}
		metrics.SetListsScanned(len(listIDs))

		fetchStart := time.Now()
		tasks := []domain.Task{}
		for _, listID := range listIDs {
			listTasks, lerr := store.TasksForList(ctx, listID)
			if lerr != nil {
				metrics.ObserveFetch(time.Since(fetchStart))
				metrics.SetErrorStage("storage")
				err = respondDomainError(c, lerr)
				return err
			}
			for _, t := range listTasks {
				if filter.Matches(t) {
					tasks = append(tasks, t)
				}
			}
		}
		metrics.ObserveFetch(time.Since(fetchStart))

		domain.SortForDisplay(tasks)
		metrics.SetTasksReturned(len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postTask(store Storage, verifier *access.Verifier, auth Authenticator, deduper Deduper, pub *Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		var input domain.TaskInput
		if err := decodeBody(c, &input); err != nil {
			return respondDomainError(c, err)
		}
		if err := input.Validate(); err != nil {
			return respondDomainError(c, err)
		}
		if err := verifier.CanEdit(ctx, userID, input.ListID); err != nil {
			return respondDomainError(c, err)
		}

		idemKey := c.Request().Header.Get("Idempotency-Key")
		if idemKey != "" && deduper != nil {
			fresh, derr := deduper.Add(ctx, userID, idemKey)
			if derr != nil {
				return respondDomainError(c, domain.Internal("idempotency check", derr))
			}
			if !fresh {
				return c.JSON(http.StatusConflict, errorResponse{Error: "duplicate request"})
			}
		}

		siblings, err := store.TasksForList(ctx, input.ListID)
		if err != nil {
			return respondDomainError(c, err)
		}
		shifts, err := domain.PlanInsert(siblings, input.Position)
		if err != nil {
			return respondDomainError(c, err)
		}

		now := time.Now().UTC()
		task := domain.Task{
			ID:          uuid.NewString(),
			Title:       input.Title,
			Description: input.Description,
			DueDate:     input.DueDate,
			Priority:    input.Priority,
			Status:      domain.StatusTodo,
			Tags:        input.Tags,
			Position:    input.Position,
			ListID:      input.ListID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		created, err := store.CreateTask(ctx, task, shifts)
		if err != nil {
			if idemKey != "" && deduper != nil {
				if rerr := deduper.Remove(ctx, userID, idemKey); rerr != nil {
					c.Logger().Errorf("idempotency rollback failed: %v", rerr)
				}
			}
			return respondDomainError(c, err)
		}

		publish(c, pub, newEvent(userID, "task", created.ID, domain.TaskCreated))
		return c.JSON(http.StatusCreated, created)
	}
}

func putTask(store Storage, verifier *access.Verifier, auth Authenticator, pub *Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		var patch domain.TaskPatch
		if err := decodeBody(c, &patch); err != nil {
			return respondDomainError(c, err)
		}
		if err := patch.Validate(); err != nil {
			return respondDomainError(c, err)
		}

		task, err := store.GetTask(ctx, c.Param("id"))
		if err != nil {
			return respondDomainError(c, err)
		}
		if err := verifier.CanEdit(ctx, userID, task.ListID); err != nil {
			return respondDomainError(c, err)
		}

		updated, err := store.UpdateTask(ctx, patch.Apply(task, time.Now().UTC()))
		if err != nil {
			return respondDomainError(c, err)
		}

		publish(c, pub, newEvent(userID, "task", updated.ID, domain.TaskUpdated))
		return c.JSON(http.StatusOK, updated)
	}
}

func deleteTask(store Storage, verifier *access.Verifier, auth Authenticator, pub *Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		task, err := store.GetTask(ctx, c.Param("id"))
		if err != nil {
			return respondDomainError(c, err)
		}
		if err := verifier.CanEdit(ctx, userID, task.ListID); err != nil {
			return respondDomainError(c, err)
		}

		if err := store.DeleteTask(ctx, task.ListID, task.ID); err != nil {
			return respondDomainError(c, err)
		}

		publish(c, pub, newEvent(userID, "task", task.ID, domain.TaskDeleted))
		return c.NoContent(http.StatusNoContent)
	}
}

func patchTaskPosition(store Storage, verifier *access.Verifier, auth Authenticator, pub *Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		var req positionRequest
		if err := decodeBody(c, &req); err != nil {
			return respondDomainError(c, err)
		}
		if err := domain.ValidatePosition(req.NewPosition); err != nil {
			return respondDomainError(c, err)
		}

		task, err := store.GetTask(ctx, c.Param("id"))
		if err != nil {
			return respondDomainError(c, err)
		}
		if err := verifier.CanEdit(ctx, userID, task.ListID); err != nil {
			return respondDomainError(c, err)
		}

		siblings, err := store.TasksForList(ctx, task.ListID)
		if err != nil {
			return respondDomainError(c, err)
		}
		plan, err := domain.PlanMove(siblings, task.ID, req.NewPosition)
		if err != nil {
			return respondDomainError(c, err)
		}
		if err := store.ApplyShiftPlan(ctx, task.ListID, plan, time.Now().UTC()); err != nil {
			return respondDomainError(c, err)
		}

		publish(c, pub, newEvent(userID, "task", task.ID, domain.TaskReordered))
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	}
}
