// SPDX-License-Identifier: MIT

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kahvel/notifyd/internal/config"
	"github.com/kahvel/notifyd/internal/health"
	"github.com/kahvel/notifyd/internal/notification"
	"github.com/kahvel/notifyd/internal/queue"
	"github.com/kahvel/notifyd/internal/termination"
)

type testEnv struct {
	server *Server
	ts     *httptest.Server
	mr     *miniredis.Miniredis
	store  *queue.Store
	source *notification.Source
	sched  *termination.Scheduler
}

func setupEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	cfg := config.Config{
		ListenAddr:       ":0",
		RedisAddr:        mr.Addr(),
		PollInterval:     20 * time.Millisecond,
		TerminationDelay: 30 * time.Millisecond,
		RateLimitPerMin:  10_000,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	store := queue.NewStore(client, zerolog.Nop())
	source := notification.NewSource(client, zerolog.Nop())
	sched := termination.NewScheduler(cfg.TerminationDelay, zerolog.Nop())
	t.Cleanup(sched.Stop)

	mgr := health.NewManager("test")
	mgr.RegisterChecker(health.NewPingChecker("redis", time.Second, func(ctx context.Context) error {
		return store.HealthCheck(ctx)
	}))

	srv := New(cfg, Deps{Store: store, Source: source, Scheduler: sched, HealthMgr: mgr})
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: srv, ts: ts, mr: mr, store: store, source: source, sched: sched}
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) map[string]string {
	t.Helper()
	defer resp.Body.Close()

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestEnqueue(t *testing.T) {
	env := setupEnv(t, nil)

	resp := postJSON(t, env.ts.URL+"/enqueue", `{"id":"chat-1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "enqueued successfully", decodeResponse(t, resp)["response"])

	pos, inQueue, err := env.store.Position(context.Background(), "chat-1")
	require.NoError(t, err)
	require.True(t, inQueue)
	require.Equal(t, int64(0), pos)
}

func TestEnqueue_MissingID(t *testing.T) {
	env := setupEnv(t, nil)

	resp := postJSON(t, env.ts.URL+"/enqueue", `{}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "id is required", decodeResponse(t, resp)["error"])
}

func TestEnqueue_MalformedBody(t *testing.T) {
	env := setupEnv(t, nil)

	resp := postJSON(t, env.ts.URL+"/enqueue", `{"id":`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestEnqueue_StoreUnavailable(t *testing.T) {
	env := setupEnv(t, nil)
	env.mr.Close()

	resp := postJSON(t, env.ts.URL+"/enqueue", `{"id":"chat-1"}`)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestDequeue(t *testing.T) {
	env := setupEnv(t, nil)
	require.NoError(t, env.store.Enqueue(context.Background(), "chat-1"))

	resp := postJSON(t, env.ts.URL+"/dequeue", `{"id":"chat-1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "dequeued successfully", decodeResponse(t, resp)["response"])

	_, inQueue, err := env.store.Position(context.Background(), "chat-1")
	require.NoError(t, err)
	require.False(t, inQueue)
}

func TestAddTermination_FiresEndChatAction(t *testing.T) {
	var calls atomic.Int64
	gotBody := make(chan []byte, 1)
	endChat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		gotBody <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer endChat.Close()

	env := setupEnv(t, func(cfg *config.Config) {
		cfg.EndChatURL = endChat.URL + "/end-chat"
	})

	resp := postJSON(t, env.ts.URL+"/add-chat-to-termination-queue", `{"chatId":"chat-9"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Chat will be terminated soon", decodeResponse(t, resp)["response"])

	select {
	case body := <-gotBody:
		var req struct {
			Message struct {
				ChatID string `json:"chatId"`
			} `json:"message"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		require.Equal(t, "chat-9", req.Message.ChatID)
	case <-time.After(2 * time.Second):
		t.Fatal("end-chat action did not fire")
	}
	require.Equal(t, int64(1), calls.Load())
}

func TestAddTermination_EndpointNotConfigured(t *testing.T) {
	env := setupEnv(t, nil)

	resp := postJSON(t, env.ts.URL+"/add-chat-to-termination-queue", `{"chatId":"chat-9"}`)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestRemoveTermination_CancelsPending(t *testing.T) {
	var calls atomic.Int64
	endChat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer endChat.Close()

	env := setupEnv(t, func(cfg *config.Config) {
		cfg.EndChatURL = endChat.URL
		cfg.TerminationDelay = 80 * time.Millisecond
	})

	resp := postJSON(t, env.ts.URL+"/add-chat-to-termination-queue", `{"chatId":"chat-9"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, env.ts.URL+"/remove-chat-from-termination-queue", `{"chatId":"chat-9"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Chat termination will be canceled", decodeResponse(t, resp)["response"])

	time.Sleep(200 * time.Millisecond)
	require.Zero(t, calls.Load(), "cancelled termination must not fire")
}

func TestPublishNotification(t *testing.T) {
	env := setupEnv(t, nil)

	resp := postJSON(t, env.ts.URL+"/internal/notifications/channel-1", `{"event":"agent_reply"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeResponse(t, resp)
	require.Equal(t, "notification published", out["response"])
	require.NotEmpty(t, out["id"])

	payload, _, ok, err := env.source.FetchLatest(context.Background(), "channel-1", "")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"event":"agent_reply"}`, string(payload))
}

func TestPublishNotification_RejectsNonJSON(t *testing.T) {
	env := setupEnv(t, nil)

	resp := postJSON(t, env.ts.URL+"/internal/notifications/channel-1", `not json`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

// readEvent reads SSE lines until one data event is complete.
func readEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()

	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimSuffix(strings.TrimPrefix(line, "data: "), "\n")
		}
	}
}

func openStream(t *testing.T, ctx context.Context, url string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = resp.Body.Close()
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return resp
}

func TestQueueStream_EmitsPositionChanges(t *testing.T) {
	env := setupEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, env.store.Enqueue(ctx, "chat-a"))
	require.NoError(t, env.store.Enqueue(ctx, "chat-b"))

	resp := openStream(t, ctx, env.ts.URL+"/sse/queue/chat-b")
	reader := bufio.NewReader(resp.Body)

	var pos struct {
		ChatID   string `json:"chatId"`
		Position int64  `json:"position"`
		InQueue  bool   `json:"inQueue"`
	}
	require.NoError(t, json.Unmarshal([]byte(readEvent(t, reader)), &pos))
	require.Equal(t, "chat-b", pos.ChatID)
	require.Equal(t, int64(1), pos.Position)
	require.True(t, pos.InQueue)

	require.NoError(t, env.store.Dequeue(ctx, "chat-a"))

	require.NoError(t, json.Unmarshal([]byte(readEvent(t, reader)), &pos))
	require.Equal(t, int64(0), pos.Position)
}

func TestNotificationStream_DeliversPublishedPayloads(t *testing.T) {
	env := setupEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := env.source.Publish(ctx, "channel-7", json.RawMessage(`{"event":"first"}`))
	require.NoError(t, err)

	resp := openStream(t, ctx, env.ts.URL+"/sse/notifications/channel-7")
	reader := bufio.NewReader(resp.Body)

	require.JSONEq(t, `{"event":"first"}`, readEvent(t, reader))

	_, err = env.source.Publish(ctx, "channel-7", json.RawMessage(`{"event":"second"}`))
	require.NoError(t, err)

	require.JSONEq(t, `{"event":"second"}`, readEvent(t, reader))
}

func TestServerClose_EndsOpenStreams(t *testing.T) {
	env := setupEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, env.store.Enqueue(ctx, "chat-a"))
	resp := openStream(t, ctx, env.ts.URL+"/sse/queue/chat-a")
	reader := bufio.NewReader(resp.Body)
	readEvent(t, reader)

	env.server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after server close")
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := setupEnv(t, nil)

	resp, err := http.Get(env.ts.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(env.ts.URL + "/readyz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestReadyz_FailsWhenRedisDown(t *testing.T) {
	env := setupEnv(t, nil)
	env.mr.Close()

	resp, err := http.Get(env.ts.URL + "/readyz")
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupEnv(t, nil)

	resp, err := http.Get(env.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "notifyd_")
}
