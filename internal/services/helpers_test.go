package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yamdb/apiserver/config"
	"github.com/yamdb/apiserver/internal/store/memstore"
	"github.com/yamdb/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

type recordingSender struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func newRecordingSender() *recordingSender {
	return &recordingSender{codes: make(map[string]string)}
}

func (s *recordingSender) SendConfirmation(_ context.Context, user types.User, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.codes[user.Username] = code
	return nil
}

func (s *recordingSender) code(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[username]
}

type testEnv struct {
	store    *memstore.Store
	sender   *recordingSender
	auth     *AuthService
	users    *UserService
	catalog  *CatalogService
	titles   *TitleService
	reviews  *ReviewService
	comments *CommentService
}

func newTestEnv(t *testing.T, opts ...AuthOption) *testEnv {
	t.Helper()
	st := memstore.New()
	sender := newRecordingSender()
	cfg := testAuthConfig()
	opts = append([]AuthOption{WithCodeCost(bcrypt.MinCost)}, opts...)
	return &testEnv{
		store:    st,
		sender:   sender,
		auth:     NewAuthService(st.Users(), sender, cfg, opts...),
		users:    NewUserService(st.Users()),
		catalog:  NewCatalogService(st.Categories(), st.Genres()),
		titles:   NewTitleService(st.Titles(), st.Categories(), st.Genres()),
		reviews:  NewReviewService(st.Reviews(), st.Titles()),
		comments: NewCommentService(st.Comments(), st.Reviews()),
	}
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:           "test-secret",
		TokenTTL:            time.Hour,
		ConfirmationCodeTTL: time.Hour,
	}
}

func (e *testEnv) user(t *testing.T, username string, role types.Role) *types.User {
	t.Helper()
	user, err := e.store.Users().Create(context.Background(), types.User{
		Username: username,
		Email:    username + "@example.com",
		Role:     role,
	})
	require.NoError(t, err)
	return &user
}

func (e *testEnv) title(t *testing.T, name string) types.Title {
	t.Helper()
	title, err := e.store.Titles().Create(context.Background(), types.Title{Name: name, Year: 2000})
	require.NoError(t, err)
	return title
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func rolePtr(v types.Role) *types.Role { return &v }

func requireValidation(t *testing.T, err error) *ValidationError {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	return verr
}
