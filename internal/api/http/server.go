package apihttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/elsbrock/putioarr/internal/domain"
	"github.com/elsbrock/putioarr/internal/usecase"
)

// RemoteClient is the part of the remote service the RPC facade drives.
type RemoteClient interface {
	ListTransfers(ctx context.Context) ([]domain.RemoteTransfer, error)
	AddTransfer(ctx context.Context, link string, parent domain.FileID) (domain.RemoteTransfer, error)
	UploadTorrent(ctx context.Context, filename string, data []byte, parent domain.FileID) (domain.RemoteTransfer, error)
	RemoveTransfer(ctx context.Context, id domain.TransferID) error
	DeleteFile(ctx context.Context, id domain.FileID) error
}

// Pipeline is the read side of the download pipeline plus its enqueue hook.
type Pipeline interface {
	Enqueue(ctx context.Context, t domain.Transfer) error
	Snapshot() []domain.TrackedTransfer
	Lookup(id domain.TransferID) (domain.TrackedTransfer, bool)
	FailedTransfers(ctx context.Context) ([]domain.FailedTransfer, error)
	Watchers(kind string) int
}

type Server struct {
	remote         RemoteClient
	pipeline       Pipeline
	rootFolder     domain.FileID
	downloadDir    string
	username       string
	password       string
	sessionID      string
	allowedOrigins []string
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
}

type ServerOption func(*Server)

func WithPipeline(p Pipeline) ServerOption {
	return func(s *Server) {
		s.pipeline = p
	}
}

func WithDownloadDir(dir string) ServerOption {
	return func(s *Server) {
		s.downloadDir = dir
	}
}

// WithCredentials enables HTTP basic auth for the RPC and dashboard routes.
func WithCredentials(username, password string) ServerOption {
	return func(s *Server) {
		s.username = username
		s.password = password
	}
}

func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(remote RemoteClient, startup domain.StartupContext, opts ...ServerOption) *Server {
	s := &Server{
		remote:     remote,
		rootFolder: startup.RootFolderID,
		sessionID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	protect := func(h http.HandlerFunc) http.Handler {
		return basicAuthMiddleware(s.username, s.password, h)
	}

	mux := http.NewServeMux()
	mux.Handle("/transmission/rpc", protect(s.handleRPC))
	mux.Handle("/api/pipeline", protect(s.handlePipeline))
	mux.Handle("/ws", protect(s.handleWS))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "putioarr",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/healthz"
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if s.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline_unavailable", "pipeline not running")
		return
	}
	failed, err := s.pipeline.FailedTransfers(r.Context())
	if err != nil {
		s.logger.Error("api: list failed transfers", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "repository_error", "failed to list failed transfers")
		return
	}
	if failed == nil {
		failed = []domain.FailedTransfer{}
	}
	transfers := s.pipeline.Snapshot()
	if transfers == nil {
		transfers = []domain.TrackedTransfer{}
	}
	writeJSON(w, http.StatusOK, pipelineResponse{
		Transfers: transfers,
		Failed:    failed,
		Watchers: map[string]int{
			usecase.WatcherImport:  s.pipeline.Watchers(usecase.WatcherImport),
			usecase.WatcherSeeding: s.pipeline.Watchers(usecase.WatcherSeeding),
			usecase.WatcherRetry:   s.pipeline.Watchers(usecase.WatcherRetry),
		},
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	select {
	case s.wsHub.register <- client:
	case <-s.wsHub.done:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()

	if s.pipeline != nil {
		s.wsHub.BroadcastSnapshot(s.pipeline.Snapshot())
	}
}

// BroadcastSnapshot pushes the current pipeline snapshot to WebSocket
// clients. It is a no-op while nobody is connected.
func (s *Server) BroadcastSnapshot() {
	if s.pipeline == nil || s.wsHub.clientCount() == 0 {
		return
	}
	s.wsHub.BroadcastSnapshot(s.pipeline.Snapshot())
}

// Close disconnects all WebSocket clients.
func (s *Server) Close() {
	s.wsHub.Close()
}
