package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yamdb/apiserver/types"
)

func TestPolicy(t *testing.T) {
	author := &types.User{ID: 1, Role: types.RoleUser}
	stranger := &types.User{ID: 2, Role: types.RoleUser}
	moderator := &types.User{ID: 3, Role: types.RoleModerator}
	admin := &types.User{ID: 4, Role: types.RoleAdmin}
	superuser := &types.User{ID: 5, Role: types.RoleUser, IsSuperuser: true}

	tests := []struct {
		name    string
		user    *types.User
		catalog bool
		content bool
	}{
		{name: "anonymous", user: nil, catalog: false, content: false},
		{name: "author", user: author, catalog: false, content: true},
		{name: "stranger", user: stranger, catalog: false, content: false},
		{name: "moderator", user: moderator, catalog: false, content: true},
		{name: "admin", user: admin, catalog: true, content: true},
		{name: "superuser", user: superuser, catalog: true, content: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.catalog, CanManageCatalog(tt.user))
			assert.Equal(t, tt.catalog, CanManageUsers(tt.user))
			assert.Equal(t, tt.content, CanModifyContent(tt.user, author.ID))
		})
	}
}

func TestAuthorize(t *testing.T) {
	assert.ErrorIs(t, authorize(nil, false), ErrAuthentication)
	assert.ErrorIs(t, authorize(&types.User{ID: 1}, false), ErrForbidden)
	assert.NoError(t, authorize(&types.User{ID: 1}, true))
}
