//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/yamdb/apiserver/config"
	"github.com/yamdb/apiserver/internal/db"
	"github.com/yamdb/apiserver/internal/server"
	"golang.org/x/crypto/bcrypt"
)

const (
	serverPort = 18080
	knownCode  = "0123456789abcdef0123456789abcdef"
)

var (
	baseURL = fmt.Sprintf("http://localhost:%d/api/v1", serverPort)
	dsn     string
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("yamdb"),
		postgres.WithUsername("yamdb"),
		postgres.WithPassword("yamdb"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres: %v\n", err)
		os.Exit(1)
	}

	code := run(ctx, m, root, pg)

	_ = pg.Terminate(context.Background())
	os.Exit(code)
}

func run(ctx context.Context, m *testing.M, root string, pg *postgres.PostgresContainer) int {
	host, err := pg.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "container host: %v\n", err)
		return 1
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "container port: %v\n", err)
		return 1
	}

	cfg := config.Config{
		ServerPort: serverPort,
		Database: config.DatabaseConfig{
			Host:     host,
			Port:     port.Int(),
			User:     "yamdb",
			Password: "yamdb",
			DBName:   "yamdb",
		},
		Auth: config.AuthConfig{
			JWTSecret:           "test-secret",
			TokenTTL:            time.Hour,
			ConfirmationCodeTTL: time.Hour,
		},
		Mail: config.MailConfig{Backend: "log", From: "noreply@yamdb.local"},
	}
	dsn = db.DSN(cfg.Database)

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		return 1
	}

	srv, err := server.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		return 1
	}
	go func() {
		_ = srv.Start()
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := waitForHealth(ctx, fmt.Sprintf("http://localhost:%d/healthz", serverPort)); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		return 1
	}

	return m.Run()
}

func TestReviewLifecycle(t *testing.T) {
	suffix := strconv.FormatInt(time.Now().UnixNano(), 36)
	admin := "admin_" + suffix
	reader := "reader_" + suffix

	adminToken := login(t, admin)
	if err := promote(admin, "admin"); err != nil {
		t.Fatalf("promote admin: %v", err)
	}
	readerToken := login(t, reader)

	expect(t, call(t, http.MethodPost, "/categories/", adminToken, map[string]string{"name": "Movie", "slug": "movie-" + suffix}), http.StatusCreated, nil)
	expect(t, call(t, http.MethodPost, "/genres/", adminToken, map[string]string{"name": "Drama", "slug": "drama-" + suffix}), http.StatusCreated, nil)
	expect(t, call(t, http.MethodPost, "/categories/", readerToken, map[string]string{"name": "Nope", "slug": "nope-" + suffix}), http.StatusForbidden, nil)

	var title struct {
		ID     int      `json:"id"`
		Rating *float64 `json:"rating"`
	}
	expect(t, call(t, http.MethodPost, "/titles/", adminToken, map[string]any{
		"name":     "Stalker",
		"year":     1979,
		"genre":    []string{"drama-" + suffix},
		"category": "movie-" + suffix,
	}), http.StatusCreated, &title)
	if title.ID == 0 || title.Rating != nil {
		t.Fatalf("unexpected title: %+v", title)
	}

	reviews := fmt.Sprintf("/titles/%d/reviews/", title.ID)
	var review struct {
		ID     int    `json:"id"`
		Author string `json:"author"`
	}
	expect(t, call(t, http.MethodPost, reviews, readerToken, map[string]any{"text": "Slow and great", "score": 9}), http.StatusCreated, &review)
	if review.Author != reader {
		t.Fatalf("unexpected review author %q", review.Author)
	}
	expect(t, call(t, http.MethodPost, reviews, readerToken, map[string]any{"text": "Again", "score": 1}), http.StatusBadRequest, nil)
	expect(t, call(t, http.MethodPost, reviews, adminToken, map[string]any{"text": "Fine", "score": 6}), http.StatusCreated, nil)

	expect(t, call(t, http.MethodGet, fmt.Sprintf("/titles/%d/", title.ID), "", nil), http.StatusOK, &title)
	if title.Rating == nil || *title.Rating != 7.5 {
		t.Fatalf("unexpected rating: %v", title.Rating)
	}

	comments := fmt.Sprintf("%s%d/comments/", reviews, review.ID)
	var comment struct {
		ID int `json:"id"`
	}
	expect(t, call(t, http.MethodPost, comments, adminToken, map[string]string{"text": "Agreed"}), http.StatusCreated, &comment)
	expect(t, call(t, http.MethodDelete, fmt.Sprintf("%s%d/", comments, comment.ID), readerToken, nil), http.StatusForbidden, nil)

	expect(t, call(t, http.MethodDelete, fmt.Sprintf("%s%d/", reviews, review.ID), adminToken, nil), http.StatusNoContent, nil)
	expect(t, call(t, http.MethodGet, comments, "", nil), http.StatusNotFound, nil)
}

// login signs the user up, replaces the mailed code with a known one and
// exchanges it for a token.
func login(t *testing.T, username string) string {
	t.Helper()

	expect(t, call(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
	}), http.StatusOK, nil)

	if err := setConfirmationCode(username, knownCode); err != nil {
		t.Fatalf("set confirmation code: %v", err)
	}

	var token struct {
		Token string `json:"token"`
	}
	expect(t, call(t, http.MethodPost, "/auth/token", "", map[string]string{
		"username":          username,
		"confirmation_code": knownCode,
	}), http.StatusOK, &token)
	if token.Token == "" {
		t.Fatalf("empty token for %s", username)
	}
	return token.Token
}

func call(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, payload)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func expect(t *testing.T, resp *http.Response, status int, out any) {
	t.Helper()
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != status {
		t.Fatalf("%s %s: unexpected status %d (want %d): %s",
			resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, status, string(body))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func setConfirmationCode(username, code string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	if err != nil {
		return err
	}
	return exec("UPDATE users SET confirmation_code = $1, confirmation_code_expires_at = NOW() + INTERVAL '1 hour' WHERE username = $2", string(hash), username)
}

func promote(username, role string) error {
	return exec("UPDATE users SET role = $1 WHERE username = $2", role, username)
}

func exec(query string, args ...any) error {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = conn.ExecContext(ctx, query, args...)
	return err
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	migrationsURL := "file://" + filepath.Join(root, "internal", "db", "migrations")

	migrator, err := migrate.New(migrationsURL, dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
