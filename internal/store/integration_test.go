//go:build integration

package store_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/yamdb/apiserver/internal/db"
	"github.com/yamdb/apiserver/internal/store"
	"github.com/yamdb/apiserver/types"
)

// setupTestDB starts PostgreSQL, applies the migrations and returns a pool.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("yamdb"),
		postgres.WithUsername("yamdb"),
		postgres.WithPassword("yamdb"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrator, err := migrate.New("file://../db/migrations", dsn)
	require.NoError(t, err)
	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("migrate up: %v", err)
	}
	_, _ = migrator.Close()

	pool, err := db.OpenDSN(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

type fixture struct {
	users      *store.UserRepository
	categories *store.CategoryRepository
	genres     *store.GenreRepository
	titles     *store.TitleRepository
	reviews    *store.ReviewRepository
	comments   *store.CommentRepository
}

func newFixture(t *testing.T) fixture {
	pool := setupTestDB(t)
	return fixture{
		users:      store.NewUserRepository(pool),
		categories: store.NewCategoryRepository(pool),
		genres:     store.NewGenreRepository(pool),
		titles:     store.NewTitleRepository(pool),
		reviews:    store.NewReviewRepository(pool),
		comments:   store.NewCommentRepository(pool),
	}
}

func TestStoreIntegration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page := types.PageRequest{Limit: 20}

	alice, err := f.users.Create(ctx, types.User{Username: "alice", Email: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, types.RoleUser, alice.Role)
	bob, err := f.users.Create(ctx, types.User{Username: "bob", Email: "bob@example.com"})
	require.NoError(t, err)

	root, err := f.users.Create(ctx, types.User{Username: "root", Email: "root@example.com", IsSuperuser: true})
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, root.Role)

	_, err = f.users.Create(ctx, types.User{Username: "alice", Email: "other@example.com"})
	require.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, "users_username_key", store.ConstraintOf(err))

	movie, err := f.categories.Create(ctx, types.Category{Name: "Movie", Slug: "movie"})
	require.NoError(t, err)
	drama, err := f.genres.Create(ctx, types.Genre{Name: "Drama", Slug: "drama"})
	require.NoError(t, err)

	title, err := f.titles.Create(ctx, types.Title{
		Name:     "The Godfather",
		Year:     1972,
		Category: &movie,
		Genres:   []types.Genre{drama},
	})
	require.NoError(t, err)
	assert.Nil(t, title.Rating)
	require.Len(t, title.Genres, 1)
	assert.Equal(t, "drama", title.Genres[0].Slug)

	t.Run("rating is the mean of review scores", func(t *testing.T) {
		_, err := f.reviews.Create(ctx, types.Review{TitleID: title.ID, AuthorID: alice.ID, Text: "ok", Score: 4})
		require.NoError(t, err)
		_, err = f.reviews.Create(ctx, types.Review{TitleID: title.ID, AuthorID: bob.ID, Text: "great", Score: 8})
		require.NoError(t, err)

		got, err := f.titles.Get(ctx, title.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Rating)
		assert.InDelta(t, 6.0, *got.Rating, 1e-9)
	})

	t.Run("second review by the same author conflicts", func(t *testing.T) {
		_, err := f.reviews.Create(ctx, types.Review{TitleID: title.ID, AuthorID: alice.ID, Text: "again", Score: 5})
		require.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("filters", func(t *testing.T) {
		year := 1972
		items, total, err := f.titles.List(ctx, types.TitleFilter{Genre: "drama", Category: "movie", Name: "Godf", Year: &year}, page)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, items, 1)

		_, total, err = f.titles.List(ctx, types.TitleFilter{Genre: "comedy"}, page)
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("confirmation code compare-and-swap", func(t *testing.T) {
		expires := time.Now().Add(time.Hour)
		require.NoError(t, f.users.SetConfirmationCode(ctx, alice.ID, "hash-1", expires))
		require.NoError(t, f.users.RotateConfirmationCode(ctx, alice.ID, "hash-1", "hash-2", expires))
		require.ErrorIs(t, f.users.RotateConfirmationCode(ctx, alice.ID, "hash-1", "hash-3", expires), store.ErrConflict)

		got, err := f.users.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "hash-2", got.ConfirmationCodeHash)
	})

	t.Run("category delete sets title category to null", func(t *testing.T) {
		require.NoError(t, f.categories.DeleteBySlug(ctx, "movie"))

		got, err := f.titles.Get(ctx, title.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Category)
	})

	t.Run("title delete cascades to reviews and comments", func(t *testing.T) {
		reviews, _, err := f.reviews.List(ctx, title.ID, page)
		require.NoError(t, err)
		require.NotEmpty(t, reviews)
		comment, err := f.comments.Create(ctx, types.Comment{ReviewID: reviews[0].ID, AuthorID: bob.ID, Text: "agreed"})
		require.NoError(t, err)

		require.NoError(t, f.titles.Delete(ctx, title.ID))

		_, err = f.reviews.Get(ctx, title.ID, reviews[0].ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = f.comments.Get(ctx, reviews[0].ID, comment.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}
