package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Alan-crt/todo-app/access"
	"github.com/Alan-crt/todo-app/domain"
)

func getLists(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		lists, err := store.ListsForOwner(ctx, userID)
		if err != nil {
			return respondDomainError(c, err)
		}
		resp := listsResponse{Lists: lists}

		if includeShared, _ := strconv.ParseBool(c.QueryParam("includeShared")); includeShared {
			shares, err := store.SharesForUser(ctx, userID)
			if err != nil {
				return respondDomainError(c, err)
			}
			shared := []domain.List{}
			for _, s := range shares {
				list, err := store.GetList(ctx, s.ListID)
				if err != nil {
					if domain.IsKind(err, domain.KindNotFound) {
						// Share outlived its list; skip the orphan.
						continue
					}
					return respondDomainError(c, err)
				}
				shared = append(shared, list)
			}
			resp.Shared = shared
		}

		return c.JSON(http.StatusOK, resp)
	}
}

func postList(store Storage, verifier *access.Verifier, auth Authenticator, pub *Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		var input domain.ListInput
		if err := decodeBody(c, &input); err != nil {
			return respondDomainError(c, err)
		}
		if err := input.Validate(); err != nil {
			return respondDomainError(c, err)
		}
		if input.ParentID != "" {
			if err := verifier.CanEdit(ctx, userID, input.ParentID); err != nil {
				return respondDomainError(c, err)
			}
		}

		now := time.Now().UTC()
		list := domain.List{
			ID:        uuid.NewString(),
			Name:      input.Name,
			OwnerID:   userID,
			ParentID:  input.ParentID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		created, err := store.CreateList(ctx, list)
		if err != nil {
			return respondDomainError(c, err)
		}

		publish(c, pub, newEvent(userID, "list", created.ID, domain.ListCreated))
		return c.JSON(http.StatusCreated, created)
	}
}

func putList(store Storage, verifier *access.Verifier, auth Authenticator, pub *Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		var input domain.ListInput
		if err := decodeBody(c, &input); err != nil {
			return respondDomainError(c, err)
		}
		if err := input.Validate(); err != nil {
			return respondDomainError(c, err)
		}

		listID := c.Param("id")
		if err := verifier.CanEdit(ctx, userID, listID); err != nil {
			return respondDomainError(c, err)
		}
		list, err := store.GetList(ctx, listID)
		if err != nil {
			return respondDomainError(c, err)
		}

		list.Name = input.Name
		list.UpdatedAt = time.Now().UTC()
		updated, err := store.UpdateList(ctx, list)
		if err != nil {
			return respondDomainError(c, err)
		}

		publish(c, pub, newEvent(userID, "list", updated.ID, domain.ListUpdated))
		return c.JSON(http.StatusOK, updated)
	}
}

func deleteList(store Storage, verifier *access.Verifier, auth Authenticator, pub *Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		listID := c.Param("id")
		if err := verifier.CanManage(ctx, userID, listID); err != nil {
			return respondDomainError(c, err)
		}

		// Cascade tasks and shares before the list row so a crash leaves
		// orphans rather than dangling references to a live list.
		tasks, err := store.TasksForList(ctx, listID)
		if err != nil {
			return respondDomainError(c, err)
		}
		for _, t := range tasks {
			if err := store.DeleteTask(ctx, listID, t.ID); err != nil && !domain.IsKind(err, domain.KindNotFound) {
				return respondDomainError(c, err)
			}
		}
		shares, err := store.SharesForList(ctx, listID)
		if err != nil {
			return respondDomainError(c, err)
		}
		for _, s := range shares {
			if err := store.DeleteShare(ctx, listID, s.UserID); err != nil && !domain.IsKind(err, domain.KindNotFound) {
				return respondDomainError(c, err)
			}
		}
		if err := store.DeleteList(ctx, listID); err != nil {
			return respondDomainError(c, err)
		}

		publish(c, pub, newEvent(userID, "list", listID, domain.ListDeleted))
		return c.NoContent(http.StatusNoContent)
	}
}

func postShare(store Storage, verifier *access.Verifier, auth Authenticator, pub *Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		var req shareRequest
		if err := decodeBody(c, &req); err != nil {
			return respondDomainError(c, err)
		}
		if req.UserID == "" {
			return respondDomainError(c, domain.Validation("userId is required"))
		}
		level, err := domain.ParsePermissionLevel(req.PermissionLevel)
		if err != nil {
			return respondDomainError(c, err)
		}

		listID := c.Param("id")
		if err := verifier.CanManage(ctx, userID, listID); err != nil {
			return respondDomainError(c, err)
		}
		list, err := store.GetList(ctx, listID)
		if err != nil {
			return respondDomainError(c, err)
		}
		if list.OwnerID == req.UserID {
			return respondDomainError(c, domain.Validation("cannot share a list with its owner"))
		}

		share := domain.Share{
			ListID:    listID,
			UserID:    req.UserID,
			Level:     level,
			CreatedAt: time.Now().UTC(),
		}
		if err := store.PutShare(ctx, share); err != nil {
			return respondDomainError(c, err)
		}

		publish(c, pub, newEvent(userID, "list", listID, domain.ListShared))
		return c.JSON(http.StatusCreated, share)
	}
}

func deleteShare(store Storage, verifier *access.Verifier, auth Authenticator, pub *Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		listID := c.Param("id")
		if err := verifier.CanManage(ctx, userID, listID); err != nil {
			return respondDomainError(c, err)
		}
		if err := store.DeleteShare(ctx, listID, c.Param("userId")); err != nil {
			return respondDomainError(c, err)
		}

		publish(c, pub, newEvent(userID, "list", listID, domain.ListUnshared))
		return c.NoContent(http.StatusNoContent)
	}
}

func reorderList(store Storage, verifier *access.Verifier, auth Authenticator, pub *Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		var req reorderListRequest
		if err := decodeBody(c, &req); err != nil {
			return respondDomainError(c, err)
		}

		listID := c.Param("id")
		if err := verifier.CanEdit(ctx, userID, listID); err != nil {
			return respondDomainError(c, err)
		}
		list, err := store.GetList(ctx, listID)
		if err != nil {
			return respondDomainError(c, err)
		}

		if req.ParentID != "" {
			if err := verifier.CanView(ctx, userID, req.ParentID); err != nil {
				return respondDomainError(c, err)
			}
			if err := checkNoCycle(c, store, listID, req.ParentID); err != nil {
				return respondDomainError(c, err)
			}
		}

		list.ParentID = req.ParentID
		list.UpdatedAt = time.Now().UTC()
		if _, err := store.UpdateList(ctx, list); err != nil {
			return respondDomainError(c, err)
		}

		publish(c, pub, newEvent(userID, "list", listID, domain.ListReordered))
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	}
}

// checkNoCycle rejects a re-parenting that would make listID its own
// ancestor, walking up from the proposed parent.
func checkNoCycle(c echo.Context, store Storage, listID, newParentID string) error {
	ctx := c.Request().Context()
	const maxDepth = 100
	current := newParentID
	for depth := 0; current != ""; depth++ {
		if depth >= maxDepth {
			return domain.Validation("list hierarchy too deep")
		}
		if current == listID {
			return domain.Validation("list cannot be its own ancestor")
		}
		parent, err := store.GetList(ctx, current)
		if err != nil {
			if domain.IsKind(err, domain.KindNotFound) {
				return nil
			}
			return err
		}
		current = parent.ParentID
	}
	return nil
}
