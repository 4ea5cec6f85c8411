package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yamdb/apiserver/config"
	"github.com/yamdb/apiserver/internal/services"
	"github.com/yamdb/apiserver/internal/store/memstore"
	"github.com/yamdb/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

type stubSender struct {
	codes map[string]string
	err   error
}

func (s *stubSender) SendConfirmation(_ context.Context, user types.User, code string) error {
	if s.err != nil {
		return s.err
	}
	s.codes[user.Username] = code
	return nil
}

type testAPI struct {
	router http.Handler
	store  *memstore.Store
	auth   *services.AuthService
	sender *stubSender
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	st := memstore.New()
	sender := &stubSender{codes: make(map[string]string)}
	authService := services.NewAuthService(st.Users(), sender, config.AuthConfig{
		JWTSecret:           "handler-secret",
		TokenTTL:            time.Hour,
		ConfirmationCodeTTL: time.Hour,
	}, services.WithCodeCost(bcrypt.MinCost))
	userService := services.NewUserService(st.Users())
	catalogService := services.NewCatalogService(st.Categories(), st.Genres())
	titleService := services.NewTitleService(st.Titles(), st.Categories(), st.Genres())
	reviewService := services.NewReviewService(st.Reviews(), st.Titles())
	commentService := services.NewCommentService(st.Comments(), st.Reviews())
	authMiddleware := RequireAuth(authService)

	router := chi.NewRouter()
	router.Get("/healthz", Healthz)
	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			AuthRouter(r, authService)
		})
		r.Route("/categories", func(r chi.Router) {
			CategoryRouter(r, catalogService, authMiddleware)
		})
		r.Route("/genres", func(r chi.Router) {
			GenreRouter(r, catalogService, authMiddleware)
		})
		r.Route("/titles", func(r chi.Router) {
			TitleRouter(r, titleService, reviewService, commentService, authMiddleware)
		})
		r.Route("/users", func(r chi.Router) {
			UserRouter(r, userService, authMiddleware)
		})
	})

	return &testAPI{router: router, store: st, auth: authService, sender: sender}
}

func (a *testAPI) user(t *testing.T, username string, role types.Role) string {
	t.Helper()
	user, err := a.store.Users().Create(context.Background(), types.User{
		Username: username,
		Email:    username + "@example.com",
		Role:     role,
	})
	require.NoError(t, err)
	token, err := a.auth.IssueToken(user)
	require.NoError(t, err)
	return token
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSignupAndTokenFlow(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, SignupResponse{Username: "alice", Email: "alice@example.com"}, decode[SignupResponse](t, rec))

	code := api.sender.codes["alice"]
	rec = api.do(t, http.MethodPost, "/api/v1/auth/token", "", map[string]string{
		"username":          "alice",
		"confirmation_code": code,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := decode[TokenResponse](t, rec).Token
	require.NotEmpty(t, token)

	rec = api.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[map[string]any](t, rec)
	assert.Equal(t, "alice", me["username"])
	assert.Equal(t, "user", me["role"])
	assert.NotContains(t, me, "confirmation_code")

	rec = api.do(t, http.MethodPost, "/api/v1/auth/token", "", map[string]string{
		"username":          "alice",
		"confirmation_code": code,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignupUnicodeUsername(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"username": "José",
		"email":    "jose@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/v1/auth/token", "", map[string]string{
		"username":          "José",
		"confirmation_code": api.sender.codes["José"],
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/v1/users/me", decode[TokenResponse](t, rec).Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "José", decode[types.User](t, rec).Username)
}

func TestSignupErrors(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"username": "me",
		"email":    "me@example.com",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Contains(t, resp.Fields, "username")

	rec = api.do(t, http.MethodPost, "/api/v1/auth/token", "", map[string]string{
		"username":          "nobody",
		"confirmation_code": "abc",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	api.router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	api.sender.err = errors.New("smtp down")
	rec = api.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"username": "bob",
		"email":    "bob@example.com",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCatalogPermissions(t *testing.T) {
	api := newTestAPI(t)
	userToken := api.user(t, "alice", types.RoleUser)
	adminToken := api.user(t, "root", types.RoleAdmin)
	body := map[string]string{"name": "Movie", "slug": "movie"}

	rec := api.do(t, http.MethodPost, "/api/v1/categories", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/categories", "garbage", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/categories", userToken, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/categories", adminToken, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, types.Category{Name: "Movie", Slug: "movie"}, decode[types.Category](t, rec))

	rec = api.do(t, http.MethodGet, "/api/v1/categories", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[PageResponse[types.Category]](t, rec)
	assert.Equal(t, 1, page.Count)
	assert.Nil(t, page.Next)

	rec = api.do(t, http.MethodGet, "/api/v1/categories?page=184467440737095517&limit=100", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid page", decode[ErrorResponse](t, rec).Error)

	rec = api.do(t, http.MethodDelete, "/api/v1/categories/movie", adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(t, http.MethodDelete, "/api/v1/categories/movie", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTitleEndpoints(t *testing.T) {
	api := newTestAPI(t)
	adminToken := api.user(t, "root", types.RoleAdmin)

	rec := api.do(t, http.MethodPost, "/api/v1/genres", adminToken, map[string]string{"name": "Drama", "slug": "drama"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = api.do(t, http.MethodPost, "/api/v1/categories", adminToken, map[string]string{"name": "Movie", "slug": "movie"})
	require.Equal(t, http.StatusCreated, rec.Code)

	for i, name := range []string{"Heat", "Ronin", "Collateral"} {
		rec := api.do(t, http.MethodPost, "/api/v1/titles", adminToken, map[string]any{
			"name":     name,
			"year":     1995 + i,
			"genre":    []string{"drama"},
			"category": "movie",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodGet, "/api/v1/titles?limit=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[map[string]any](t, rec)
	assert.EqualValues(t, 3, page["count"])
	assert.Contains(t, page["next"], "page=2")
	assert.Nil(t, page["previous"])
	results := page["results"].([]any)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	assert.Equal(t, "Collateral", first["name"])
	assert.Nil(t, first["rating"])
	assert.Equal(t, map[string]any{"name": "Movie", "slug": "movie"}, first["category"])

	rec = api.do(t, http.MethodGet, "/api/v1/titles?year=1995", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["count"])

	rec = api.do(t, http.MethodGet, "/api/v1/titles?year=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = api.do(t, http.MethodGet, "/api/v1/titles?year=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/titles?year=0", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode[map[string]any](t, rec)["count"])

	rec = api.do(t, http.MethodPost, "/api/v1/titles", adminToken, map[string]any{"name": "Gilgamesh", "year": 0})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = api.do(t, http.MethodGet, "/api/v1/titles?year=0", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	yearZero := decode[PageResponse[types.Title]](t, rec)
	require.Equal(t, 1, yearZero.Count)
	assert.Equal(t, "Gilgamesh", yearZero.Results[0].Name)
	rec = api.do(t, http.MethodDelete, "/api/v1/titles/"+strconv.Itoa(yearZero.Results[0].ID), adminToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	id := int(first["id"].(float64))
	path := "/api/v1/titles/" + strconv.Itoa(id)

	rec = api.do(t, http.MethodPatch, path, adminToken, map[string]any{"description": "LA"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "LA", decode[map[string]any](t, rec)["description"])

	rec = api.do(t, http.MethodPut, path, adminToken, map[string]any{"name": "x"})
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/titles", adminToken, map[string]any{
		"name": "Future",
		"year": time.Now().Year() + 5,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Fields, "year")

	rec = api.do(t, http.MethodDelete, path, adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReviewAndCommentEndpoints(t *testing.T) {
	api := newTestAPI(t)
	authorToken := api.user(t, "alice", types.RoleUser)
	strangerToken := api.user(t, "bob", types.RoleUser)
	moderatorToken := api.user(t, "mod", types.RoleModerator)

	title, err := api.store.Titles().Create(context.Background(), types.Title{Name: "Heat", Year: 1995})
	require.NoError(t, err)
	reviews := "/api/v1/titles/" + strconv.Itoa(title.ID) + "/reviews"

	rec := api.do(t, http.MethodPost, reviews, "", map[string]any{"text": "great", "score": 9})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, reviews, authorToken, map[string]any{"text": "great", "score": 9})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	review := decode[map[string]any](t, rec)
	assert.Equal(t, "alice", review["author"])
	assert.Contains(t, review, "pub_date")
	reviewPath := reviews + "/" + strconv.Itoa(int(review["id"].(float64)))

	rec = api.do(t, http.MethodPost, reviews, authorToken, map[string]any{"text": "again", "score": 2})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, decode[ErrorResponse](t, rec).Fields)

	rec = api.do(t, http.MethodPost, reviews, strangerToken, map[string]any{"text": "bad", "score": 11})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Fields, "score")

	rec = api.do(t, http.MethodPatch, reviewPath, strangerToken, map[string]any{"text": "mine now"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPatch, reviewPath, authorToken, map[string]any{"score": 7})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 7, decode[map[string]any](t, rec)["score"])

	rec = api.do(t, http.MethodGet, "/api/v1/titles/"+strconv.Itoa(title.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 7, decode[map[string]any](t, rec)["rating"])

	comments := reviewPath + "/comments"
	rec = api.do(t, http.MethodPost, comments, strangerToken, map[string]any{"text": "agreed"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	commentPath := comments + "/" + strconv.Itoa(int(decode[map[string]any](t, rec)["id"].(float64)))

	rec = api.do(t, http.MethodPatch, commentPath, authorToken, map[string]any{"text": "edited by someone else"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, comments, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["count"])

	rec = api.do(t, http.MethodDelete, commentPath, moderatorToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/titles/999/reviews", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUserEndpoints(t *testing.T) {
	api := newTestAPI(t)
	userToken := api.user(t, "alice", types.RoleUser)
	adminToken := api.user(t, "root", types.RoleAdmin)

	rec := api.do(t, http.MethodGet, "/api/v1/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/users", userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPatch, "/api/v1/users/me", userToken, map[string]any{"role": "admin", "bio": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[map[string]any](t, rec)
	assert.Equal(t, "user", me["role"])
	assert.Equal(t, "hello", me["bio"])

	rec = api.do(t, http.MethodPost, "/api/v1/users", adminToken, map[string]any{
		"username": "carol",
		"email":    "carol@example.com",
		"role":     "moderator",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/v1/users?search=car", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["count"])

	rec = api.do(t, http.MethodPatch, "/api/v1/users/carol", adminToken, map[string]any{"role": "admin"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", decode[map[string]any](t, rec)["role"])

	rec = api.do(t, http.MethodDelete, "/api/v1/users/carol", adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(t, http.MethodGet, "/api/v1/users/carol", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query  string
		page   int
		limit  int
		offset int
		fails  bool
	}{
		{query: "", page: 1, limit: 20, offset: 0},
		{query: "page=3&limit=10", page: 3, limit: 10, offset: 20},
		{query: "per_page=5", page: 1, limit: 5, offset: 0},
		{query: "limit=1000", page: 1, limit: 100, offset: 0},
		{query: "page=0", fails: true},
		{query: "page=184467440737095517&limit=100", fails: true},
		{query: "page=99999999999999999999", fails: true},
		{query: "limit=abc", fails: true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
			page, limit, offset, err := parsePagination(req)
			if tt.fails {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.page, page)
			assert.Equal(t, tt.limit, limit)
			assert.Equal(t, tt.offset, offset)
		})
	}
}
