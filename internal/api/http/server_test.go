package apihttp

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/elsbrock/putioarr/internal/domain"
	"github.com/elsbrock/putioarr/internal/usecase"
)

func trackedPipeline() *fakePipeline {
	return &fakePipeline{
		tracked: map[domain.TransferID]domain.TrackedTransfer{
			42: {
				Transfer:  domain.Transfer{ID: 42, Name: "Show", Hash: "abcd1234"},
				Stage:     domain.StageDownloading,
				UpdatedAt: time.Unix(1700000000, 0).UTC(),
			},
		},
		failed: []domain.FailedTransfer{{TransferID: 7, Name: "Broken", Attempts: 3, Reason: "boom"}},
		watchers: map[string]int{
			usecase.WatcherImport: 2,
		},
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&fakeRemote{}, nil)
	defer s.Close()

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestPipelineEndpoint(t *testing.T) {
	s := newTestServer(&fakeRemote{}, trackedPipeline())
	defer s.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/pipeline", nil)
	req.SetBasicAuth("sonarr", "secret")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp pipelineResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Transfers) != 1 || resp.Transfers[0].Transfer.ID != 42 || resp.Transfers[0].Stage != domain.StageDownloading {
		t.Fatalf("transfers = %+v", resp.Transfers)
	}
	if len(resp.Failed) != 1 || resp.Failed[0].TransferID != 7 {
		t.Fatalf("failed = %+v", resp.Failed)
	}
	if resp.Watchers[usecase.WatcherImport] != 2 || resp.Watchers[usecase.WatcherSeeding] != 0 {
		t.Fatalf("watchers = %v", resp.Watchers)
	}
}

func TestPipelineEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name     string
		pipeline *fakePipeline
		method   string
		auth     bool
		want     int
	}{
		{"no pipeline", nil, http.MethodGet, true, http.StatusServiceUnavailable},
		{"wrong method", trackedPipeline(), http.MethodPost, true, http.StatusMethodNotAllowed},
		{"no auth", trackedPipeline(), http.MethodGet, false, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeRemote{}, tt.pipeline)
			defer s.Close()

			req := httptest.NewRequest(tt.method, "/api/pipeline", nil)
			if tt.auth {
				req.SetBasicAuth("sonarr", "secret")
			}
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&fakeRemote{}, nil)
	defer s.Close()

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("sonarr:secret")))
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	resp.Body.Close()
	return conn
}

func readWSMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ws message: %v", err)
	}
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal ws message: %v (raw: %s)", err, data)
	}
	return msg
}

func TestWS_SendsSnapshotOnConnectAndBroadcast(t *testing.T) {
	s := newTestServer(&fakeRemote{}, trackedPipeline())
	srv := httptest.NewServer(s)
	defer srv.Close()
	defer s.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	msg := readWSMessage(t, conn)
	if msg.Type != "transfers" {
		t.Fatalf("type = %q, want transfers", msg.Type)
	}
	items, ok := msg.Data.([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("data = %#v, want one transfer", msg.Data)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.wsHub.clientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	s.BroadcastSnapshot()
	if msg := readWSMessage(t, conn); msg.Type != "transfers" {
		t.Fatalf("broadcast type = %q, want transfers", msg.Type)
	}
}

func TestWS_RequiresCredentials(t *testing.T) {
	s := newTestServer(&fakeRemote{}, trackedPipeline())
	srv := httptest.NewServer(s)
	defer srv.Close()
	defer s.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail without credentials")
	}
	if resp != nil {
		resp.Body.Close()
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("response = %v, want 401", resp)
	}
}

func TestWSHub_BroadcastAndUnregister(t *testing.T) {
	hub := newWSHub(discardLogger())
	go hub.run()
	defer hub.Close()

	c1 := &wsClient{hub: hub, send: make(chan []byte, 4)}
	c2 := &wsClient{hub: hub, send: make(chan []byte, 4)}
	hub.register <- c1
	hub.register <- c2
	if got := hub.clientCount(); got != 2 {
		t.Fatalf("clients = %d, want 2", got)
	}

	hub.BroadcastSnapshot(nil)
	for i, c := range []*wsClient{c1, c2} {
		select {
		case got := <-c.send:
			var m wsMessage
			if err := json.Unmarshal(got, &m); err != nil {
				t.Fatalf("client %d: unmarshal: %v", i, err)
			}
			if m.Type != "transfers" {
				t.Fatalf("client %d: type = %q", i, m.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("client %d: no message received", i)
		}
	}

	hub.unregister <- c1
	hub.unregister <- c2
	if got := hub.clientCount(); got != 0 {
		t.Fatalf("clients = %d, want 0", got)
	}
	if _, ok := <-c1.send; ok {
		t.Fatal("expected send channel closed on unregister")
	}
}

func TestWSHub_DropsSlowClient(t *testing.T) {
	hub := newWSHub(discardLogger())
	go hub.run()
	defer hub.Close()

	slow := &wsClient{hub: hub, send: make(chan []byte)}
	hub.register <- slow
	hub.broadcast <- []byte(`{}`)

	deadline := time.Now().Add(2 * time.Second)
	for hub.clientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("slow client was not dropped")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
