package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/contextflow/contextflow/internal/auth"
	"github.com/contextflow/contextflow/internal/core"
	"github.com/contextflow/contextflow/internal/store"
)

type stubModel struct {
	reply string
}

func (m *stubModel) Generate(ctx context.Context, req core.ModelRequest) (string, error) {
	return m.reply, nil
}
func (m *stubModel) Name() string { return "stub" }
func (m *stubModel) Close() error { return nil }

type testServer struct {
	handler http.Handler
	model   *stubModel
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	rs, err := store.OpenSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { rs.Close() })

	model := &stubModel{reply: `{"text": "Hello from the model."}`}
	logger := zap.NewNop()
	svc := core.NewChatService(store.NewBackend(rs), core.NewQueryClient(model, logger), core.ChatOptions{MaxUploadBytes: 1 << 20}, logger)
	h := NewAPIHandler(svc, auth.NewTokenIssuer("test-secret", time.Hour), logger, 1<<20)
	return &testServer{handler: NewRouter(h, logger), model: model}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) register(t *testing.T, username string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/register", "", store.RegisterRequest{Username: username, Password: "pw", Name: "Alex"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alex")

	rec := s.do(t, http.MethodPost, "/api/register", "", store.RegisterRequest{Username: "alex", Password: "other"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/register", "", store.RegisterRequest{Username: "", Password: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/login", "", LoginRequest{Username: "alex", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid username or access token.")

	rec = s.do(t, http.MethodPost, "/api/login", "", LoginRequest{Username: "alex", Password: "pw"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alex", resp.Account.Username)
	assert.NotContains(t, rec.Body.String(), `"pw"`)
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/state", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/state", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	orphan, err := auth.NewTokenIssuer("test-secret", time.Hour).GenerateJWT("ghost")
	require.NoError(t, err)
	rec = s.do(t, http.MethodGet, "/api/state", orphan, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMessageFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "alex")

	rec := s.do(t, http.MethodPost, "/api/messages", token, PostMessageRequest{Content: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.model.reply = `{"text": "Task saved.", "detectedAction": "create_task", "actionData": {"title": "Follow up"}}`
	rec = s.do(t, http.MethodPost, "/api/messages", token, PostMessageRequest{Content: "remind me to follow up"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var turn core.ChatTurn
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turn))
	assert.Equal(t, "Task saved.", turn.AssistantMessage.Content)
	require.NotNil(t, turn.Task)

	rec = s.do(t, http.MethodGet, "/api/messages", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []store.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	assert.Len(t, msgs, 2)

	rec = s.do(t, http.MethodGet, "/api/tasks", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks []store.ScheduledTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "Follow up", tasks[0].Title)

	rec = s.do(t, http.MethodDelete, "/api/messages", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/state", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var state StateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Empty(t, state.Messages)
	assert.Len(t, state.Tasks, 1)
	assert.Equal(t, "Alex", state.Profile.Name)
}

func TestProfile(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "alex")

	rec := s.do(t, http.MethodPut, "/api/profile", token, store.UserProfile{Name: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/profile", token, store.UserProfile{Name: "Alex", Role: "Analyst"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile store.UserProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "Analyst", profile.Role)
}

func upload(t *testing.T, s *testServer, token, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestFiles(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "alex")

	rec := upload(t, s, token, "photo.png", "binary")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unsupported file format")

	rec = upload(t, s, token, "sales.csv", "region,value\nEU,10")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result core.UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "sales.csv", result.File.Name)

	rec = s.do(t, http.MethodGet, "/api/context", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ctxResp ContextResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ctxResp))
	assert.True(t, strings.Contains(ctxResp.Context, "FILE [1]: sales.csv"))

	rec = s.do(t, http.MethodPost, "/api/files/"+result.File.ID+"/visualize", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/files/missing/visualize", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/files/"+result.File.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/files/"+result.File.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/files", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
