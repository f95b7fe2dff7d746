// Package access decides whether a principal may read or mutate lists and
// their tasks, based on ownership or a sharing grant.
//
// Existence is never leaked: a principal with no relationship to a list gets
// the same not-found answer whether the list is missing or merely unshared.
// A principal who can see a list but lacks the required level for a write
// gets an explicit forbidden answer.
package access

import (
	"context"
	"errors"

	"github.com/Alan-crt/todo-app/domain"
)

// Store provides the lookups the verifier needs.
type Store interface {
	GetList(ctx context.Context, listID string) (domain.List, error)
	GetShare(ctx context.Context, listID, userID string) (domain.Share, error)
}

// Verifier answers permission questions for one storage backend.
type Verifier struct {
	store Store
}

// NewVerifier creates a Verifier backed by the given store.
func NewVerifier(store Store) *Verifier {
	if store == nil {
		panic("access.NewVerifier: store is nil")
	}
	return &Verifier{store: store}
}

var errNotFound = domain.NotFound("list not found")

// grant resolves the principal's effective level on a list. Owners hold ADMIN.
// A missing list and a list the principal has no relationship to both come
// back as not-found.
func (v *Verifier) grant(ctx context.Context, userID, listID string) (domain.PermissionLevel, error) {
	list, err := v.store.GetList(ctx, listID)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return "", errNotFound
		}
		return "", err
	}
	if list.OwnerID == userID {
		return domain.PermissionAdmin, nil
	}
	share, err := v.store.GetShare(ctx, listID, userID)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return "", errNotFound
		}
		return "", err
	}
	return share.Level, nil
}

// CanView reports whether the principal may read the list and its tasks.
func (v *Verifier) CanView(ctx context.Context, userID, listID string) error {
	_, err := v.grant(ctx, userID, listID)
	return err
}

// CanEdit reports whether the principal may mutate tasks on the list.
func (v *Verifier) CanEdit(ctx context.Context, userID, listID string) error {
	return v.require(ctx, userID, listID, domain.PermissionEdit)
}

// CanManage reports whether the principal may grant or revoke shares, or
// delete the list itself.
func (v *Verifier) CanManage(ctx context.Context, userID, listID string) error {
	return v.require(ctx, userID, listID, domain.PermissionAdmin)
}

func (v *Verifier) require(ctx context.Context, userID, listID string, min domain.PermissionLevel) error {
	level, err := v.grant(ctx, userID, listID)
	if err != nil {
		return err
	}
	if !level.AtLeast(min) {
		return domain.Forbidden("insufficient permission")
	}
	return nil
}

// IsDenied reports whether err is an access outcome rather than a storage
// failure.
func IsDenied(err error) bool {
	return errors.Is(err, errNotFound) || domain.IsKind(err, domain.KindForbidden)
}
