package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	api "github.com/spec-kit/request-tracker/internal/api/http"
	"github.com/spec-kit/request-tracker/internal/api/http/handlers"
	"github.com/spec-kit/request-tracker/internal/auth"
	"github.com/spec-kit/request-tracker/internal/config"
	"github.com/spec-kit/request-tracker/internal/domain"
	"github.com/spec-kit/request-tracker/internal/events"
	"github.com/spec-kit/request-tracker/internal/observability"
	"github.com/spec-kit/request-tracker/internal/repository"
	"github.com/spec-kit/request-tracker/internal/service"
)

// End-to-end handler tests over a real fiber app with in-memory stores.

type stubRequestRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Request
	seq  int
	base time.Time
}

func newStubRequestRepo() *stubRequestRepo {
	return &stubRequestRepo{
		rows: make(map[string]*domain.Request),
		base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *stubRequestRepo) Create(_ context.Context, request *domain.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	request.ID = uuid.NewString()
	request.CreatedAt = r.base.Add(time.Duration(r.seq) * time.Minute)
	request.UpdatedAt = request.CreatedAt
	clone := *request
	r.rows[request.ID] = &clone
	return nil
}

func (r *stubRequestRepo) GetByID(_ context.Context, id string) (*domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *row
	return &clone, nil
}

func (r *stubRequestRepo) UpdateStatus(_ context.Context, id string, status domain.RequestStatus, assigneeID string) (*domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	r.seq++
	assignee := assigneeID
	row.Status = status
	row.AssignedTo = &assignee
	row.UpdatedAt = r.base.Add(time.Duration(r.seq) * time.Minute)
	clone := *row
	return &clone, nil
}

func (r *stubRequestRepo) List(_ context.Context, filter repository.RequestFilter) ([]domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Request
	for _, row := range r.rows {
		if filter.CreatedBy != nil && row.CreatedBy != *filter.CreatedBy {
			continue
		}
		if filter.Status != nil && row.Status != *filter.Status {
			continue
		}
		result = append(result, *row)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter.Status == nil {
		sort.SliceStable(result, func(i, j int) bool {
			return result[i].Status != domain.RequestStatusClosed &&
				result[j].Status == domain.RequestStatusClosed
		})
	}
	return result, nil
}

type stubLogRepo struct {
	mu   sync.Mutex
	logs []domain.RequestLog
	seq  int64
	base time.Time
}

func newStubLogRepo() *stubLogRepo {
	return &stubLogRepo{base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (r *stubLogRepo) Create(_ context.Context, log *domain.RequestLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	log.ID = r.seq
	log.CreatedAt = r.base.Add(time.Duration(r.seq) * time.Second)
	r.logs = append(r.logs, *log)
	return nil
}

func (r *stubLogRepo) ListByRequest(_ context.Context, requestID string) ([]domain.RequestLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.RequestLog
	for _, log := range r.logs {
		if log.RequestID == requestID {
			result = append(result, log)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

type stubProfileRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Profile
}

func newStubProfileRepo() *stubProfileRepo {
	return &stubProfileRepo{rows: make(map[string]*domain.Profile)}
}

func (r *stubProfileRepo) Create(_ context.Context, profile *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Email == profile.Email {
			return &pgconn.PgError{Code: "23505"}
		}
	}
	profile.ID = uuid.NewString()
	profile.CreatedAt = time.Now()
	profile.UpdatedAt = profile.CreatedAt
	clone := *profile
	r.rows[profile.ID] = &clone
	return nil
}

func (r *stubProfileRepo) GetByID(_ context.Context, id string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *row
	return &clone, nil
}

func (r *stubProfileRepo) GetByEmail(_ context.Context, email string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.Email == email {
			clone := *row
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	cfg := config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.AccessTokenTTLMinutes = 15
	cfg.Auth.BcryptCost = bcrypt.MinCost

	logger := zap.NewNop()
	requestRepo := newStubRequestRepo()
	logRepo := newStubLogRepo()
	profileRepo := newStubProfileRepo()

	activity := service.NewActivityService(service.ActivityDependencies{
		LogRepo:     logRepo,
		ProfileRepo: profileRepo,
		Logger:      logger,
	})
	requests := service.NewRequestService(service.RequestDependencies{
		RequestRepo: requestRepo,
		Activity:    activity,
		Dispatcher:  events.NewInMemoryDispatcher(),
		Logger:      logger,
	})
	authService := service.NewAuthService(cfg, profileRepo)

	app := fiber.New()
	api.RegisterMiddlewares(app, logger, observability.NewMetrics(), 0)
	api.RegisterRoutes(app, api.RouteConfig{
		Health:         handlers.NewHealthHandler(),
		Auth:           handlers.NewAuthHandler(authService),
		Requests:       handlers.NewRequestsHandler(requests, activity),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), profileRepo),
	})
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func registerUser(t *testing.T, app *fiber.App, email, name string) string {
	t.Helper()
	resp, body := doJSON(t, app, http.MethodPost, "/auth/register", "", map[string]any{
		"email":    email,
		"password": "correct horse",
		"name":     name,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]any)
	return data["token"].(string)
}

func errorEnvelope(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	envelope, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %v", body)
	return envelope
}

func TestAuthenticationGuard(t *testing.T) {
	app := newTestApp(t)

	t.Run("missing token", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodGet, "/requests", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHORIZED", errorEnvelope(t, body)["code"])
	})

	t.Run("malformed token", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodGet, "/requests", "not.a.token", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHORIZED", errorEnvelope(t, body)["code"])
	})

	t.Run("health needs no token", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodGet, "/health/live", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestRequestEndpoints(t *testing.T) {
	app := newTestApp(t)
	requester := registerUser(t, app, "dana@example.com", "Dana")
	staff := registerUser(t, app, "sam@example.com", "Sam")

	var requestID string

	t.Run("create forces open status", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPost, "/requests", requester, map[string]any{
			"title":       "Printer broken",
			"description": "Office printer out of order",
			"type":        "support",
			"priority":    "medium",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		data := body["data"].(map[string]any)
		requestID = data["id"].(string)
		assert.Equal(t, "open", data["status"])
		assert.Nil(t, data["assigned_to"])
		assert.Regexp(t, `^REQ-[0-9A-F]{8}$`, data["public_id"])
	})

	t.Run("create rejects bad vocabulary", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPost, "/requests", requester, map[string]any{
			"title":       "Printer broken",
			"description": "Office printer out of order",
			"type":        "incident",
			"priority":    "medium",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION_FAILED", errorEnvelope(t, body)["code"])
	})

	t.Run("status update attributes the actor", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPost, "/requests/"+requestID+"/status", staff, map[string]any{
			"status": "in-progress",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		data := body["data"].(map[string]any)
		assert.Equal(t, "in-progress", data["status"])
		assert.NotNil(t, data["assigned_to"])
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPost, "/requests/"+requestID+"/status", staff, map[string]any{
			"status": "archived",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, "INVALID_TRANSITION", errorEnvelope(t, body)["code"])
	})

	t.Run("detail carries the newest-first timeline with actor names", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodGet, "/requests/"+requestID, requester, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		data := body["data"].(map[string]any)
		activity := data["activity"].([]any)
		require.Len(t, activity, 2)

		newest := activity[0].(map[string]any)
		assert.Equal(t, "STATUS_CHANGED", newest["event"])
		assert.Equal(t, "Sam", newest["actor_name"])

		oldest := activity[1].(map[string]any)
		assert.Equal(t, "REQUEST_CREATED", oldest["event"])
		assert.Equal(t, "Dana", oldest["actor_name"])
	})

	t.Run("closed requests reject status updates", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, "/requests/"+requestID+"/status", staff, map[string]any{
			"status": "closed",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := doJSON(t, app, http.MethodPost, "/requests/"+requestID+"/status", staff, map[string]any{
			"status": "in-progress",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "REQUEST_CLOSED", errorEnvelope(t, body)["code"])
	})

	t.Run("reopen brings a closed request back to triage", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPost, "/requests/"+requestID+"/reopen", staff, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		data := body["data"].(map[string]any)
		assert.Equal(t, "in-progress", data["status"])
	})

	t.Run("missing request is not found", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodGet, "/requests/"+uuid.NewString(), requester, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", errorEnvelope(t, body)["code"])
	})
}

func TestListEndpoint(t *testing.T) {
	app := newTestApp(t)
	requester := registerUser(t, app, "dana@example.com", "Dana")
	other := registerUser(t, app, "sam@example.com", "Sam")

	createRequest := func(token, title string) string {
		resp, body := doJSON(t, app, http.MethodPost, "/requests", token, map[string]any{
			"title":       title,
			"description": "details for " + title,
			"type":        "support",
			"priority":    "low",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		return body["data"].(map[string]any)["id"].(string)
	}

	createRequest(requester, "first")
	second := createRequest(other, "second")
	createRequest(requester, "third")

	resp, _ := doJSON(t, app, http.MethodPost, "/requests/"+second+"/status", other, map[string]any{
		"status": "closed",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	listTitles := func(path string) []string {
		resp, body := doJSON(t, app, http.MethodGet, path, requester, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		items := body["data"].([]any)
		titles := make([]string, 0, len(items))
		for _, item := range items {
			titles = append(titles, item.(map[string]any)["title"].(string))
		}
		return titles
	}

	t.Run("unfiltered listing puts closed last", func(t *testing.T) {
		assert.Equal(t, []string{"third", "first", "second"}, listTitles("/requests"))
	})

	t.Run("status filter keeps plain recency", func(t *testing.T) {
		assert.Equal(t, []string{"second"}, listTitles("/requests?status=closed"))
	})

	t.Run("mine filter scopes to the caller", func(t *testing.T) {
		assert.Equal(t, []string{"third", "first"}, listTitles("/requests?mine=true"))
	})

	t.Run("unknown status filter is rejected", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodGet, "/requests?status=archived", requester, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION_FAILED", errorEnvelope(t, body)["code"])
	})
}
