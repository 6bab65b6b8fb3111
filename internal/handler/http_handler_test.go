package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/overlay-service/internal/hub"
	"github.com/weiawesome/wes-io-live/overlay-service/internal/overlay"
	"github.com/weiawesome/wes-io-live/overlay-service/internal/service"
	"github.com/weiawesome/wes-io-live/overlay-service/pkg/log"
	"github.com/weiawesome/wes-io-live/overlay-service/pkg/pubsub"
)

type testEnv struct {
	router *gin.Engine
	hub    *hub.Hub
	store  *overlay.Store
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	transport := pubsub.NewManager(nil, pubsub.DefaultManagerConfig())
	hb := hub.New(transport)
	store := overlay.NewStore(transport, nil, overlay.DefaultConfig())
	svc := service.NewOverlayService(store, hb)

	r := gin.New()
	r.Use(log.GinMiddleware(log.L()))
	NewHandler(hb, svc, transport, opts).RegisterRoutes(r)

	return &testEnv{router: r, hub: hb, store: store}
}

func (e *testEnv) serve(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type sseClient struct {
	resp   *http.Response
	reader *bufio.Reader
}

func openStream(t *testing.T, srv *httptest.Server, path string) *sseClient {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	c := &sseClient{resp: resp, reader: bufio.NewReader(resp.Body)}
	assert.Equal(t, ": connected", c.line(t))
	assert.Equal(t, "", c.line(t))
	return c
}

func (c *sseClient) line(t *testing.T) string {
	t.Helper()
	s, err := c.reader.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimSuffix(s, "\n")
}

func TestStreamerEventsReceivesPublishedFrames(t *testing.T) {
	env := newTestEnv(t, Options{HeartbeatInterval: time.Minute, WriteTimeout: time.Second})
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	stream := openStream(t, srv, "/events/42")
	require.Eventually(t, func() bool { return env.hub.ConnectionCount("42") == 1 }, time.Second, 5*time.Millisecond)

	rec := env.serve(http.MethodPost, "/api/v1/streamers/42/events", `{"event":"donation","data":{"amount":5}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	assert.Equal(t, "event: donation", stream.line(t))
	assert.Equal(t, `data: {"amount":5}`, stream.line(t))
	assert.Equal(t, "", stream.line(t))

	stream.resp.Body.Close()
	require.Eventually(t, func() bool { return env.hub.ConnectionCount("42") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestGlobalEventsAndHeartbeat(t *testing.T) {
	env := newTestEnv(t, Options{HeartbeatInterval: 20 * time.Millisecond, WriteTimeout: time.Second})
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	stream := openStream(t, srv, "/events")
	assert.Equal(t, ": heartbeat", stream.line(t))
	assert.Equal(t, 1, env.hub.ConnectionCount(""))
}

func TestStreamerEventsRejectsInvalidID(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.serve(http.MethodGet, "/events/a*b", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOverlayRoutes(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.serve(http.MethodPost, "/api/v1/streamers/42/avatars/u1/activity", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"userId":"u1","spawned":true}}`, rec.Body.String())

	rec = env.serve(http.MethodPut, "/api/v1/streamers/42/avatars/u1/state", `{"state":"walking"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.serve(http.MethodPut, "/api/v1/streamers/42/avatars/u1/state", `{"state":"flying"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.serve(http.MethodGet, "/api/v1/streamers/42/overlay", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool             `json:"success"`
		Data    overlay.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, []string{"u1"}, body.Data.ActiveAvatars)
	require.Len(t, body.Data.AvatarStates, 1)
	assert.Equal(t, overlay.AvatarWalking, body.Data.AvatarStates[0].Value)

	rec = env.serve(http.MethodDelete, "/api/v1/streamers/42/avatars/u1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.serve(http.MethodDelete, "/api/v1/streamers/42/avatars/u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublishValidation(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"global", "/api/v1/events", `{"event":"announce","data":"hi"}`, http.StatusAccepted},
		{"missing event", "/api/v1/events", `{"data":1}`, http.StatusBadRequest},
		{"not json", "/api/v1/streamers/42/events", `nope`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.serve(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.serve(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","transport":false}`, rec.Body.String())
}

func TestStreamWriterFlushesEachWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newStreamWriter(rec, time.Second)

	_, err := w.Write([]byte("event: x\ndata: 1\n\n"))
	require.NoError(t, err)
	assert.True(t, rec.Flushed)
	assert.Equal(t, "event: x\ndata: 1\n\n", rec.Body.String())
}

func TestGetOverlayTimesOutWhileLoading(t *testing.T) {
	env := newTestEnv(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/streamers/99/overlay", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	// Hydration without stores finishes almost immediately, so either outcome
	// is valid; the request must not hang.
	assert.Contains(t, []int{http.StatusOK, http.StatusGatewayTimeout}, rec.Code)
}
