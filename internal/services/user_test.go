package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yamdb/apiserver/internal/store"
	"github.com/yamdb/apiserver/types"
)

func TestUserManagementRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "alice", types.RoleUser)
	moderator := env.user(t, "mod", types.RoleModerator)

	_, _, err := env.users.List(ctx, nil, types.PageRequest{})
	assert.ErrorIs(t, err, ErrAuthentication)
	_, _, err = env.users.List(ctx, user, types.PageRequest{})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.users.Get(ctx, moderator, "alice")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.users.Create(ctx, moderator, UserInput{Username: "x", Email: "x@example.com"})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, env.users.Delete(ctx, user, "mod"), ErrForbidden)
}

func TestAdminCreatesAndEditsUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.user(t, "root", types.RoleAdmin)

	created, err := env.users.Create(ctx, admin, UserInput{
		Username:  "carol",
		Email:     "carol@example.com",
		FirstName: "Carol",
		Role:      types.RoleModerator,
	})
	require.NoError(t, err)
	assert.Equal(t, types.RoleModerator, created.Role)

	_, err = env.users.Create(ctx, admin, UserInput{Username: "carol", Email: "other@example.com"})
	verr := requireValidation(t, err)
	assert.Contains(t, verr.Fields, "username")

	_, err = env.users.Create(ctx, admin, UserInput{Username: "dave", Email: "carol@example.com"})
	verr = requireValidation(t, err)
	assert.Contains(t, verr.Fields, "email")

	_, err = env.users.Create(ctx, admin, UserInput{Username: "erin", Email: "erin@example.com", Role: "owner"})
	verr = requireValidation(t, err)
	assert.Contains(t, verr.Fields, "role")

	updated, err := env.users.Update(ctx, admin, "carol", UserPatch{Role: rolePtr(types.RoleAdmin), Bio: strPtr("hi")})
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, updated.Role)
	assert.Equal(t, "hi", updated.Bio)
	assert.Equal(t, "Carol", updated.FirstName)

	users, total, err := env.users.List(ctx, admin, types.PageRequest{Limit: 10, Search: "car"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "carol", users[0].Username)

	require.NoError(t, env.users.Delete(ctx, admin, "carol"))
	_, err = env.users.Get(ctx, admin, "carol")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateMeIgnoresRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.user(t, "alice", types.RoleUser)

	updated, err := env.users.UpdateMe(ctx, user, UserPatch{
		Role:      rolePtr(types.RoleAdmin),
		FirstName: strPtr("Alice"),
	})
	require.NoError(t, err)
	assert.Equal(t, types.RoleUser, updated.Role)
	assert.Equal(t, "Alice", updated.FirstName)

	me, err := env.users.Me(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, types.RoleUser, me.Role)

	_, err = env.users.UpdateMe(ctx, nil, UserPatch{})
	assert.ErrorIs(t, err, ErrAuthentication)

	_, err = env.users.UpdateMe(ctx, user, UserPatch{Username: strPtr("me")})
	verr := requireValidation(t, err)
	assert.Contains(t, verr.Fields, "username")
}

func TestCreateSuperuserIsAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.users.CreateSuperuser(ctx, "root", "root@example.com")
	require.NoError(t, err)
	assert.True(t, user.IsSuperuser)
	assert.Equal(t, types.RoleAdmin, user.Role)

	demoted, err := env.users.Update(ctx, &user, "root", UserPatch{Role: rolePtr(types.RoleUser)})
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, demoted.Role)
}

func TestDeletingUserRemovesTheirContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.user(t, "root", types.RoleAdmin)
	author := env.user(t, "alice", types.RoleUser)
	title := env.title(t, "Heat")

	review, err := env.reviews.Create(ctx, author, title.ID, ReviewInput{Text: "great", Score: 9})
	require.NoError(t, err)

	require.NoError(t, env.users.Delete(ctx, admin, "alice"))

	_, err = env.reviews.Get(ctx, title.ID, review.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	got, err := env.titles.Get(ctx, title.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Rating)
}
