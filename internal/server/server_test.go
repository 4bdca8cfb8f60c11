package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/comigor/twin/internal/chat"
	"github.com/comigor/twin/internal/config"
	"github.com/comigor/twin/internal/history"
	"github.com/comigor/twin/internal/llm"
)

type mockService struct {
	chatFn    func(ctx context.Context, req chat.Request) (*chat.Response, error)
	historyFn func(ctx context.Context, id string) ([]history.Message, error)
	info      chat.Info
}

func (m *mockService) Chat(ctx context.Context, req chat.Request) (*chat.Response, error) {
	return m.chatFn(ctx, req)
}

func (m *mockService) History(ctx context.Context, id string) ([]history.Message, error) {
	return m.historyFn(ctx, id)
}

func (m *mockService) Info() chat.Info { return m.info }

func testConfig() config.ServerConfig {
	return config.ServerConfig{CORSOrigins: "http://localhost:3000", RequestTimeout: time.Minute}
}

func do(t *testing.T, e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRootAndHealth(t *testing.T) {
	svc := &mockService{info: chat.Info{Storage: "S3", Model: "amazon.nova-lite-v1:0", Provider: "bedrock"}}
	e := New(svc, testConfig())

	rec := do(t, e, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, map[string]any{
		"message":        "AI Digital Twin API (Powered by AWS Bedrock)",
		"memory_enabled": true,
		"storage":        "S3",
		"ai_model":       "amazon.nova-lite-v1:0",
	}, decode(t, rec))

	rec = do(t, e, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "healthy", body["status"])
	require.Equal(t, true, body["use_s3"])
	require.Equal(t, "amazon.nova-lite-v1:0", body["bedrock_model"])
}

func TestChat(t *testing.T) {
	var got chat.Request
	svc := &mockService{chatFn: func(_ context.Context, req chat.Request) (*chat.Response, error) {
		got = req
		return &chat.Response{Response: "hello", SessionID: "generated"}, nil
	}}
	e := New(svc, testConfig())

	rec := do(t, e, http.MethodPost, "/chat", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, chat.Request{Message: "hi"}, got)
	require.Equal(t, map[string]any{"response": "hello", "session_id": "generated"}, decode(t, rec))

	rec = do(t, e, http.MethodPost, "/chat", `{"message":"again","session_id":"abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "abc", got.SessionID)
}

func TestChat_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"empty message", chat.ErrEmptyMessage, http.StatusBadRequest, "Message must not be empty"},
		{"bad session id", history.ErrInvalidSessionID, http.StatusBadRequest, ""},
		{"invalid request", &llm.Error{Kind: llm.ErrInvalidRequest, Provider: "bedrock", Err: errors.New("ValidationException")}, http.StatusBadRequest, "Invalid message format for model"},
		{"access denied", &llm.Error{Kind: llm.ErrAccessDenied, Provider: "bedrock", Err: errors.New("AccessDeniedException")}, http.StatusForbidden, "Access denied to model"},
		{"provider", &llm.Error{Kind: llm.ErrProvider, Provider: "bedrock", Err: errors.New("throttled")}, http.StatusInternalServerError, "bedrock: model provider error: throttled"},
		{"storage", &history.StorageError{Backend: "local", Op: "save", SessionID: "s", Err: errors.New("disk full")}, http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{chatFn: func(context.Context, chat.Request) (*chat.Response, error) { return nil, tt.err }}
			rec := do(t, New(svc, testConfig()), http.MethodPost, "/chat", `{"message":"hi"}`)
			require.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			require.NotEmpty(t, body["detail"])
			if tt.detail != "" {
				require.Equal(t, tt.detail, body["detail"])
			}
		})
	}
}

func TestChat_MalformedBody(t *testing.T) {
	svc := &mockService{chatFn: func(context.Context, chat.Request) (*chat.Response, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	rec := do(t, New(svc, testConfig()), http.MethodPost, "/chat", `{"message":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Invalid request body", decode(t, rec)["detail"])
}

func TestChat_Timeout(t *testing.T) {
	svc := &mockService{chatFn: func(ctx context.Context, _ chat.Request) (*chat.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	cfg := testConfig()
	cfg.RequestTimeout = 10 * time.Millisecond

	rec := do(t, New(svc, cfg), http.MethodPost, "/chat", `{"message":"hi"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, decode(t, rec)["detail"], "context deadline exceeded")
}

func TestChat_TimeoutKeepsProviderDetail(t *testing.T) {
	client := &blockingClient{}
	svc, err := chat.New(history.NewFileStore(t.TempDir()), client, config.LLMConfig{Provider: "bedrock", ModelID: "m"})
	require.NoError(t, err)
	cfg := testConfig()
	cfg.RequestTimeout = 20 * time.Millisecond

	rec := do(t, New(svc, cfg), http.MethodPost, "/chat", `{"message":"hi","session_id":"s1"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "bedrock: model provider error: context deadline exceeded", decode(t, rec)["detail"])
}

// blockingClient waits for the request to expire, like a hung model call.
type blockingClient struct{}

func (blockingClient) Complete(ctx context.Context, _ []llm.Message, _ string, _ llm.Sampling) (string, error) {
	<-ctx.Done()
	return "", &llm.Error{Kind: llm.ErrProvider, Provider: "bedrock", Err: ctx.Err()}
}

func TestChatThenConversation_RoundTrip(t *testing.T) {
	svc, err := chat.New(history.NewFileStore(t.TempDir()), llm.NewMockClient(), config.LLMConfig{Provider: "mock", ModelID: "m"})
	require.NoError(t, err)
	e := New(svc, testConfig())

	rec := do(t, e, http.MethodPost, "/chat", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp chat.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	require.Equal(t, `[MOCK m] Received your message: "hi".`, resp.Response)

	rec = do(t, e, http.MethodGet, "/conversation/"+resp.SessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var conv ConversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	require.Equal(t, resp.SessionID, conv.SessionID)
	require.Len(t, conv.Messages, 2)
	require.Equal(t, history.RoleUser, conv.Messages[0].Role)
	require.Equal(t, "hi", conv.Messages[0].Content)
	require.Equal(t, history.RoleAssistant, conv.Messages[1].Role)
	require.Equal(t, resp.Response, conv.Messages[1].Content)

	userAt, err := conv.Messages[0].Time()
	require.NoError(t, err)
	assistantAt, err := conv.Messages[1].Time()
	require.NoError(t, err)
	require.False(t, assistantAt.Before(userAt))

	again := do(t, e, http.MethodGet, "/conversation/"+resp.SessionID, "")
	require.Equal(t, rec.Body.String(), again.Body.String())
}

func TestConversation(t *testing.T) {
	stored := []history.Message{
		{Role: "user", Content: "hi", Timestamp: "2025-01-01T00:00:00.000000Z"},
		{Role: "assistant", Content: "hello", Timestamp: "2025-01-01T00:00:01.000000Z"},
	}
	svc := &mockService{historyFn: func(_ context.Context, id string) ([]history.Message, error) {
		if id == "known" {
			return stored, nil
		}
		return []history.Message{}, nil
	}}
	e := New(svc, testConfig())

	rec := do(t, e, http.MethodGet, "/conversation/known", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ConversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, ConversationResponse{SessionID: "known", Messages: stored}, resp)

	rec = do(t, e, http.MethodGet, "/conversation/unknown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"session_id":"unknown","messages":[]}`, rec.Body.String())
}

func TestConversation_StorageFailure(t *testing.T) {
	svc := &mockService{historyFn: func(context.Context, string) ([]history.Message, error) {
		return nil, errors.New("load history: connection refused")
	}}
	rec := do(t, New(svc, testConfig()), http.MethodGet, "/conversation/s1", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "load history: connection refused", decode(t, rec)["detail"])
}

func TestRecoverReturnsDetail(t *testing.T) {
	svc := &mockService{chatFn: func(context.Context, chat.Request) (*chat.Response, error) { panic("boom") }}
	rec := do(t, New(svc, testConfig()), http.MethodPost, "/chat", `{"message":"hi"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, decode(t, rec)["detail"], "boom")
}

func TestCORS(t *testing.T) {
	e := New(&mockService{}, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set(echo.HeaderOrigin, "http://localhost:3000")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "http://localhost:3000", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	req = httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set(echo.HeaderOrigin, "http://evil.example")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestOptionalRoutes(t *testing.T) {
	e := New(&mockService{}, testConfig())
	require.Equal(t, http.StatusNotFound, do(t, e, http.MethodGet, "/metrics", "").Code)

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	e = New(&mockService{}, testConfig(), WithMetrics(ok), WithMCP(ok))
	require.Equal(t, http.StatusTeapot, do(t, e, http.MethodGet, "/metrics", "").Code)
	require.Equal(t, http.StatusTeapot, do(t, e, http.MethodPost, "/mcp", `{}`).Code)
}
