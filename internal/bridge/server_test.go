package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type staticUsers map[string]string

func (u staticUsers) TestUser(user string, pass string) bool {
	want, ok := u[user]
	return ok && want == pass
}

func newServer(t *testing.T, opts ServerOptions, users Users) *Server {
	h, _ := newHandler(t, &fakeSearch{}, nil)
	s, err := NewServer(opts, h, users, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func post(t *testing.T, s *Server, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServerMessages(t *testing.T) {
	s := newServer(t, ServerOptions{}, nil)

	rec := post(t, s, `{"type":"search","query":"lake","provider":"pixabay"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	var msgs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "searching", msgs[0]["type"])
	assert.Equal(t, "searchResults", msgs[1]["type"])
	data := msgs[1]["data"].(map[string]any)
	assert.Equal(t, "pixabay", data["provider"])
}

func TestServerRejectsBadBody(t *testing.T) {
	s := newServer(t, ServerOptions{}, nil)
	rec := post(t, s, `{"type":`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"type":"error","message":"Invalid request body."}]`, rec.Body.String())
}

func TestServerBrotli(t *testing.T) {
	s := newServer(t, ServerOptions{}, nil)
	rec := post(t, s, `{"type":"getConfig"}`, http.Header{"Accept-Encoding": {"br"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "br", rec.Header().Get("Content-Encoding"))

	var msgs []Config
	require.NoError(t, json.NewDecoder(brotli.NewReader(rec.Body)).Decode(&msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, TypeConfig, msgs[0].Type)
}

func TestServerAuth(t *testing.T) {
	s := newServer(t, ServerOptions{RequireAuth: true}, staticUsers{"ana": "pw"})

	rec := post(t, s, `{"type":"ready"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"type":"ready"}`))
	req.SetBasicAuth("ana", "pw")
	ok := httptest.NewRecorder()
	s.Handler().ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)

	health := httptest.NewRecorder()
	s.Handler().ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, health.Code, "health stays open")

	_, err := NewServer(ServerOptions{RequireAuth: true}, nil, nil, nil, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestServerMetrics(t *testing.T) {
	s := newServer(t, ServerOptions{}, nil)
	post(t, s, `{"type":"ready"}`, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "devstock_bridge_messages_total")
}

type countingPruner struct{ calls int }

func (p *countingPruner) PruneMissing(context.Context, string) (int, error) {
	p.calls++
	return 0, nil
}

func TestServerPruneSchedule(t *testing.T) {
	h, _ := newHandler(t, &fakeSearch{}, nil)
	_, err := NewServer(ServerOptions{PruneSchedule: "not a schedule", Workspace: t.TempDir()}, h, nil, &countingPruner{}, zaptest.NewLogger(t))
	assert.Error(t, err)

	p := &countingPruner{}
	s, err := NewServer(ServerOptions{PruneSchedule: "@hourly", Workspace: t.TempDir()}, h, nil, p, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 1)
	s.prune()
	assert.Equal(t, 1, p.calls)
}
