package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/halcyonlabs/admind/internal/capability"
	"github.com/halcyonlabs/admind/internal/entity"
	"github.com/halcyonlabs/admind/internal/orchestrator"
	"github.com/halcyonlabs/admind/internal/session"
	"github.com/halcyonlabs/admind/internal/tools"
)

type stubParser struct{}

func (stubParser) ExtractEntities(ctx context.Context, text string) (entity.Collection, error) {
	c := entity.Collection{}
	c.Add(entity.Entity{Type: entity.TypeAction, Value: "grant access", Confidence: 0.9})
	c.Add(entity.Entity{Type: entity.TypeUser, Value: "jane.doe@corp.example.com", Confidence: 0.9})
	c.Add(entity.Entity{Type: entity.TypeMailbox, Value: "shared_finance", Confidence: 0.9})
	c.Add(entity.Entity{Type: entity.TypeAccessRights, Value: "FullAccess", Confidence: 0.9})
	return c, nil
}

func (stubParser) FallbackParse(ctx context.Context, text string) entity.Collection {
	return entity.Collection{}
}

type stubValidator struct{}

func (stubValidator) Validate(ctx context.Context, entities entity.Collection, sess *session.Session) (capability.ValidationResult, error) {
	return capability.ValidationResult{IsValid: true}, nil
}

func setupTestServer(t *testing.T) *Server {
	t.Helper()

	orch, err := orchestrator.New(orchestrator.Capabilities{
		Parser:    stubParser{},
		Validator: stubValidator{},
		Tools:     tools.NewRegistry(nil),
	}, orchestrator.Config{}, nil)
	require.NoError(t, err)

	service := orchestrator.NewService(orch, orchestrator.ServiceConfig{}, nil)
	t.Cleanup(service.Close)

	server, err := NewServer(service, zap.NewNop(), nil)
	require.NoError(t, err)
	return server
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server := setupTestServer(t)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 8710, server.config.Port)
	})

	t.Run("returns error when service is nil", func(t *testing.T) {
		_, err := NewServer(nil, zap.NewNop(), nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "service cannot be nil")
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		server := setupTestServer(t)
		_, err := NewServer(server.service, nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleProcessRequest(t *testing.T) {
	server := setupTestServer(t)

	t.Run("processes a valid request", func(t *testing.T) {
		body, _ := json.Marshal(SubmitRequest{
			Text:      "grant jane.doe@corp.example.com FullAccess on shared_finance",
			Initiator: "admin@corp.example.com",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var result orchestrator.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.True(t, result.Success)
		assert.NotEmpty(t, result.SessionID)
	})

	t.Run("rejects empty text", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", bytes.NewReader([]byte(`{}`)))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", bytes.NewReader([]byte(`{not json`)))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleSubmitAsyncAndPoll(t *testing.T) {
	server := setupTestServer(t)

	body, _ := json.Marshal(SubmitRequest{Text: "grant access", Initiator: "admin"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests/async", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	server.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitResp SubmitAsyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitResp))
	require.NotEmpty(t, submitResp.JobID)

	require.Eventually(t, func() bool {
		pollReq := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+submitResp.JobID, nil)
		pollRec := httptest.NewRecorder()
		server.echo.ServeHTTP(pollRec, pollReq)
		if pollRec.Code != http.StatusOK {
			return false
		}
		var jobResp JobResponse
		if err := json.Unmarshal(pollRec.Body.Bytes(), &jobResp); err != nil {
			return false
		}
		return jobResp.Status == orchestrator.JobCompleted && jobResp.Result != nil && jobResp.Result.Success
	}, 5*time.Second, 20*time.Millisecond)
}

func TestHandlePollUnknownJob(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/does-not-exist", nil)
	rec := httptest.NewRecorder()

	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}
