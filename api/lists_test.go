package api

import (
	"net/http"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/Alan-crt/todo-app/domain"
)

func TestPostListCreates(t *testing.T) {
	e, store := handlerFixture(t)

	rec := doRequest(e, http.MethodPost, "/api/lists", "alice", `{"name":"groceries"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	var created domain.List
	if err := sonic.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created list: %v", err)
	}
	if created.Name != "groceries" || created.OwnerID != "alice" || created.ID == "" {
		t.Fatalf("unexpected list: %+v", created)
	}
	if _, ok := store.lists[created.ID]; !ok {
		t.Fatal("list not persisted")
	}
}

func TestPostListValidation(t *testing.T) {
	e, _ := handlerFixture(t)
	rec := doRequest(e, http.MethodPost, "/api/lists", "alice", `{"name":" "}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestPostListNestedRequiresEditOnParent(t *testing.T) {
	e, store := handlerFixture(t)
	seedList(store, "parent", "alice")
	seedShare(store, "parent", "bob", domain.PermissionView)

	rec := doRequest(e, http.MethodPost, "/api/lists", "bob", `{"name":"sub","parentId":"parent"}`, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", rec.Code)
	}
}

func TestGetListsIncludeShared(t *testing.T) {
	e, store := handlerFixture(t)
	seedList(store, "mine", "alice")
	seedList(store, "theirs", "bob")
	seedShare(store, "theirs", "alice", domain.PermissionView)

	rec := doRequest(e, http.MethodGet, "/api/lists?includeShared=true", "alice", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp listsResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Lists) != 1 || resp.Lists[0].ID != "mine" {
		t.Fatalf("owned lists: %+v", resp.Lists)
	}
	if len(resp.Shared) != 1 || resp.Shared[0].ID != "theirs" {
		t.Fatalf("shared lists: %+v", resp.Shared)
	}
}

func TestGetListsSkipsOrphanedShares(t *testing.T) {
	e, store := handlerFixture(t)
	seedShare(store, "gone", "alice", domain.PermissionView)

	rec := doRequest(e, http.MethodGet, "/api/lists?includeShared=true", "alice", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp listsResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Shared) != 0 {
		t.Fatalf("orphaned share surfaced: %+v", resp.Shared)
	}
}

func TestPutListRename(t *testing.T) {
	e, store := handlerFixture(t)
	seedList(store, "l1", "alice")
	seedShare(store, "l1", "bob", domain.PermissionEdit)

	rec := doRequest(e, http.MethodPut, "/api/lists/l1", "bob", `{"name":"renamed"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	if store.lists["l1"].Name != "renamed" {
		t.Fatalf("name not updated: %q", store.lists["l1"].Name)
	}
}

func TestDeleteListRequiresAdmin(t *testing.T) {
	e, store := handlerFixture(t)
	seedList(store, "l1", "alice")
	seedShare(store, "l1", "bob", domain.PermissionEdit)

	rec := doRequest(e, http.MethodDelete, "/api/lists/l1", "bob", "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", rec.Code)
	}
	if _, ok := store.lists["l1"]; !ok {
		t.Fatal("list deleted without admin grant")
	}
}

func TestDeleteListCascades(t *testing.T) {
	e, store := handlerFixture(t)
	seedList(store, "l1", "alice")
	seedTask(store, "t1", "l1", 1)
	seedTask(store, "t2", "l1", 2)
	seedShare(store, "l1", "bob", domain.PermissionView)

	rec := doRequest(e, http.MethodDelete, "/api/lists/l1", "alice", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	if len(store.tasks) != 0 {
		t.Fatalf("tasks survived list delete: %d", len(store.tasks))
	}
	if len(store.shares) != 0 {
		t.Fatalf("shares survived list delete: %d", len(store.shares))
	}
	if _, ok := store.lists["l1"]; ok {
		t.Fatal("list row survived")
	}
}

func TestPostShare(t *testing.T) {
	e, store := handlerFixture(t)
	seedList(store, "l1", "alice")

	rec := doRequest(e, http.MethodPost, "/api/lists/l1/share", "alice", `{"userId":"bob","permissionLevel":"EDIT"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	share, ok := store.shares[shareKey("l1", "bob")]
	if !ok || share.Level != domain.PermissionEdit {
		t.Fatalf("share not persisted: %+v", share)
	}
}

func TestPostShareUpgradesExistingGrant(t *testing.T) {
	e, store := handlerFixture(t)
	seedList(store, "l1", "alice")
	seedShare(store, "l1", "bob", domain.PermissionView)

	rec := doRequest(e, http.MethodPost, "/api/lists/l1/share", "alice", `{"userId":"bob","permissionLevel":"ADMIN"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d", rec.Code)
	}
	if store.shares[shareKey("l1", "bob")].Level != domain.PermissionAdmin {
		t.Fatal("existing grant not replaced")
	}
}

func TestPostShareWithOwnerRejected(t *testing.T) {
	e, store := handlerFixture(t)
	seedList(store, "l1", "alice")

	rec := doRequest(e, http.MethodPost, "/api/lists/l1/share", "alice", `{"userId":"alice","permissionLevel":"VIEW"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestPostShareInvalidLevel(t *testing.T) {
	e, store := handlerFixture(t)
	seedList(store, "l1", "alice")

	rec := doRequest(e, http.MethodPost, "/api/lists/l1/share", "alice", `{"userId":"bob","permissionLevel":"OWNER"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestPostShareRequiresAdmin(t *testing.T) {
	e, store := handlerFixture(t)
	seedList(store, "l1", "alice")
	seedShare(store, "l1", "bob", domain.PermissionEdit)

	rec := doRequest(e, http.MethodPost, "/api/lists/l1/share", "bob", `{"userId":"carol","permissionLevel":"VIEW"}`, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", rec.Code)
	}
}

func TestDeleteShareRevokesAccess(t *testing.T) {
	e, store := handlerFixture(t)
	seedList(store, "l1", "alice")
	seedShare(store, "l1", "bob", domain.PermissionView)

	rec := doRequest(e, http.MethodDelete, "/api/lists/l1/share/bob", "alice", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d", rec.Code)
	}

	// Revoked principal now gets the uniform not-found answer.
	rec = doRequest(e, http.MethodGet, "/api/tasks?listId=l1", "bob", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d after revocation, want 404", rec.Code)
	}
}

func TestReorderListReparents(t *testing.T) {
	e, store := handlerFixture(t)
	seedList(store, "parent", "alice")
	seedList(store, "child", "alice")

	rec := doRequest(e, http.MethodPut, "/api/lists/child/reorder", "alice", `{"parentId":"parent"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	if store.lists["child"].ParentID != "parent" {
		t.Fatalf("parent not updated: %q", store.lists["child"].ParentID)
	}
}

func TestReorderListRejectsCycle(t *testing.T) {
	e, store := handlerFixture(t)
	seedList(store, "a", "alice")
	seedList(store, "b", "alice")
	seedList(store, "c", "alice")
	b := store.lists["b"]
	b.ParentID = "a"
	store.lists["b"] = b
	c := store.lists["c"]
	c.ParentID = "b"
	store.lists["c"] = c

	// a -> b -> c; making c the parent of a closes the loop.
	rec := doRequest(e, http.MethodPut, "/api/lists/a/reorder", "alice", `{"parentId":"c"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
	if store.lists["a"].ParentID != "" {
		t.Fatal("cycle-forming reparent persisted")
	}
}

func TestReorderListSelfParentRejected(t *testing.T) {
	e, store := handlerFixture(t)
	seedList(store, "a", "alice")

	rec := doRequest(e, http.MethodPut, "/api/lists/a/reorder", "alice", `{"parentId":"a"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestReorderListDetach(t *testing.T) {
	e, store := handlerFixture(t)
	seedList(store, "parent", "alice")
	seedList(store, "child", "alice")
	child := store.lists["child"]
	child.ParentID = "parent"
	store.lists["child"] = child

	rec := doRequest(e, http.MethodPut, "/api/lists/child/reorder", "alice", `{"parentId":""}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if store.lists["child"].ParentID != "" {
		t.Fatal("list not detached from parent")
	}
}
