package services

import "github.com/yamdb/apiserver/types"

// A nil *types.User is an anonymous caller throughout this file.

// CanManageCatalog reports whether u may write categories, genres and titles.
func CanManageCatalog(u *types.User) bool {
	return u != nil && u.IsAdmin()
}

// CanManageUsers reports whether u may list, create, edit and delete other users.
func CanManageUsers(u *types.User) bool {
	return u != nil && u.IsAdmin()
}

// CanModifyContent reports whether u may edit or delete a review or comment
// written by authorID.
func CanModifyContent(u *types.User, authorID int) bool {
	if u == nil {
		return false
	}
	return u.ID == authorID || u.IsModerator() || u.IsAdmin()
}

// authorize turns a policy decision into ErrAuthentication for anonymous
// callers and ErrForbidden for denied ones.
func authorize(actor *types.User, allowed bool) error {
	if actor == nil {
		return ErrAuthentication
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}
