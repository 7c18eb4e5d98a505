package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/owdiscord/trakt/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.err
}

type mockReporter struct {
	user       *domain.User
	userErr    error
	cacheScore int
	cacheErr   error
}

func (m *mockReporter) UserReport(ctx context.Context, id domain.UserID) (*domain.User, error) {
	if m.userErr != nil {
		return nil, m.userErr
	}
	return m.user, nil
}

func (m *mockReporter) MessageScoreForUser(ctx context.Context, id domain.UserID) (int, error) {
	if m.cacheErr != nil {
		return 0, m.cacheErr
	}
	return m.cacheScore, nil
}

// --- Helpers ---

func doRequest(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// --- Tests ---

func TestLiveness(t *testing.T) {
	srv := NewServer(&mockPinger{}, &mockReporter{})

	rec := doRequest(t, srv, http.MethodGet, "/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadiness_Ready(t *testing.T) {
	srv := NewServer(&mockPinger{}, &mockReporter{})

	rec := doRequest(t, srv, http.MethodGet, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadiness_StorageDown(t *testing.T) {
	srv := NewServer(&mockPinger{err: errors.New("connection refused")}, &mockReporter{})

	rec := doRequest(t, srv, http.MethodGet, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestVersionEndpoint(t *testing.T) {
	srv := NewServer(&mockPinger{}, &mockReporter{})

	rec := doRequest(t, srv, http.MethodGet, "/version")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_version")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer(&mockPinger{}, &mockReporter{})

	rec := doRequest(t, srv, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestUserReport(t *testing.T) {
	sanctioned := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	reporter := &mockReporter{
		user: &domain.User{
			ID:           42,
			MessageScore: 100,
			TimeScore:    3,
			HasAward:     true,
			IsMuted:      true,
			SanctionedAt: &sanctioned,
		},
		cacheScore: 105,
	}
	srv := NewServer(&mockPinger{}, reporter)

	rec := doRequest(t, srv, http.MethodGet, "/api/users/42")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp userReportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "42", resp.UserID)
	assert.Equal(t, 105, resp.MessageScore, "live score overrides the stored one")
	assert.Equal(t, 3, resp.TimeScore)
	assert.True(t, resp.HasAward)
	assert.True(t, resp.IsMuted)
	assert.Equal(t, "2025-03-01T12:00:00Z", resp.SanctionedAt)
}

func TestUserReport_NotFound(t *testing.T) {
	srv := NewServer(&mockPinger{}, &mockReporter{userErr: domain.ErrUserNotFound})

	rec := doRequest(t, srv, http.MethodGet, "/api/users/42")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUserReport_InvalidID(t *testing.T) {
	srv := NewServer(&mockPinger{}, &mockReporter{})

	rec := doRequest(t, srv, http.MethodGet, "/api/users/not-a-snowflake")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserReport_StorageError(t *testing.T) {
	srv := NewServer(&mockPinger{}, &mockReporter{userErr: errors.New("connection refused")})

	rec := doRequest(t, srv, http.MethodGet, "/api/users/42")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
