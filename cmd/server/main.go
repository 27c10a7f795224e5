package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	apihttp "github.com/elsbrock/putioarr/internal/api/http"
	"github.com/elsbrock/putioarr/internal/app"
	"github.com/elsbrock/putioarr/internal/domain"
	"github.com/elsbrock/putioarr/internal/domain/ports"
	"github.com/elsbrock/putioarr/internal/metrics"
	memoryrepo "github.com/elsbrock/putioarr/internal/repository/memory"
	mongorepo "github.com/elsbrock/putioarr/internal/repository/mongo"
	"github.com/elsbrock/putioarr/internal/services/arr"
	"github.com/elsbrock/putioarr/internal/services/putio"
	"github.com/elsbrock/putioarr/internal/storage/local"
	"github.com/elsbrock/putioarr/internal/telemetry"
	"github.com/elsbrock/putioarr/internal/usecase"
)

const (
	serviceName       = "putioarr"
	startupTimeout    = 30 * time.Second
	shutdownTimeout   = 15 * time.Second
	apiTimeout        = 30 * time.Second
	broadcastInterval = 2 * time.Second
)

func main() {
	cliApp := &cli.App{
		Name:   serviceName,
		Usage:  "put.io download client for Sonarr, Radarr and Whisparr",
		Action: runServer,
		Commands: []*cli.Command{{
			Name:   "run",
			Usage:  "start the Transmission-compatible proxy and the download pipeline",
			Action: runServer,
		}, {
			Name:  "get-token",
			Usage: "link putioarr with a put.io account and print the API token",
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:  "interval",
					Usage: "how often to check whether the code was linked",
					Value: 3 * time.Second,
				},
				&cli.StringFlag{
					Name:    "api-url",
					Usage:   "put.io API base URL",
					Value:   "https://api.put.io/v2",
					EnvVars: []string{"PUTIO_API_URL"},
				},
			},
			Action: getToken,
		}},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cliApp.RunContext(ctx, os.Args)
	stop()
	if err != nil {
		slog.Error("putioarr: exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func getToken(c *cli.Context) error {
	client := putio.NewClient(putio.Config{
		BaseURL: c.String("api-url"),
		Client:  &http.Client{Timeout: apiTimeout},
	})
	code, err := client.NewOOBCode(c.Context)
	if err != nil {
		return fmt.Errorf("request link code: %w", err)
	}
	fmt.Printf("Go to https://put.io/link and enter the code: %s\n", code)
	fmt.Println("Waiting for the code to be linked...")

	token, err := client.WaitForToken(c.Context, code, c.Duration("interval"))
	if err != nil {
		return fmt.Errorf("wait for token: %w", err)
	}
	fmt.Printf("PUTIO_API_KEY=%s\n", token)
	return nil
}

func runServer(c *cli.Context) error {
	rootCtx := c.Context
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(rootCtx, serviceName, logger)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("downloadDir", cfg.DownloadDir),
		slog.Int("downloadWorkers", cfg.DownloadWorkers),
		slog.Int("orchestrationWorkers", cfg.OrchestrationWorkers),
		slog.Duration("pollingInterval", cfg.PollingInterval),
		slog.String("skipDirectories", strings.Join(cfg.SkipDirectories, ",")),
		slog.Int("arrInstances", len(cfg.Arr)),
	)

	ctx, cancel := context.WithTimeout(rootCtx, startupTimeout)
	defer cancel()

	apiClient := &http.Client{Timeout: apiTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	// Downloads can take hours; they are bounded by ctx instead.
	downloadClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	putioClient := putio.NewClient(putio.Config{
		Token:     cfg.PutioAPIKey,
		BaseURL:   cfg.PutioAPIURL,
		UploadURL: cfg.PutioUploadURL,
		Client:    apiClient,
		Limiter:   rate.NewLimiter(rate.Limit(cfg.PutioRateLimitRPS), max(1, int(cfg.PutioRateLimitRPS))),
	})

	account, err := putioClient.AccountInfo(ctx)
	if err != nil {
		return fmt.Errorf("putio account info: %w", err)
	}
	logger.Info("putio: account",
		slog.String("username", account.Username),
		slog.Int64("freeBytes", account.Disk.Avail),
		slog.Int64("sizeBytes", account.Disk.Size),
	)

	rootFolder, err := putioClient.EnsureFolder(ctx, cfg.PutioRootFolder, 0)
	if err != nil {
		return fmt.Errorf("putio root folder %q: %w", cfg.PutioRootFolder, err)
	}
	startup := domain.StartupContext{RootFolderID: rootFolder}
	logger.Info("putio: root folder resolved",
		slog.String("name", cfg.PutioRootFolder),
		slog.Int64("fileId", int64(rootFolder)),
	)

	failures, closeFailures, err := newFailureRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFailures()

	cache, closeCache := newHistoryCache(ctx, cfg, logger)
	defer closeCache()

	arrClients := make([]*arr.Client, 0, len(cfg.Arr))
	for _, inst := range cfg.Arr {
		arrClients = append(arrClients, arr.NewClient(arr.Config{
			Name:    inst.Name,
			BaseURL: inst.URL,
			APIKey:  inst.APIKey,
			Client:  apiClient,
		}))
	}
	oracle := arr.NewOracle(arrClients, cache, cfg.ArrHistoryCache, logger)
	if err := oracle.VerifyAuth(ctx); err != nil {
		return fmt.Errorf("arr auth: %w", err)
	}

	storage := local.New(local.Config{
		Client:   downloadClient,
		OwnerUID: cfg.FileOwnerUID,
		OwnerGID: cfg.FileOwnerGID,
		Logger:   logger,
	})

	pipeline := usecase.NewPipeline(cfg.Pipeline(), startup, usecase.Dependencies{
		Remote:   putioClient,
		Storage:  storage,
		Oracle:   oracle,
		Failures: failures,
		Logger:   logger,
	})

	handler := apihttp.NewServer(putioClient, startup,
		apihttp.WithPipeline(pipeline),
		apihttp.WithDownloadDir(cfg.DownloadDir),
		apihttp.WithCredentials(cfg.TransmissionUsername, cfg.TransmissionPassword),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
		apihttp.WithLogger(logger),
	)

	pipelineCtx, stopPipeline := context.WithCancel(rootCtx)
	defer stopPipeline()
	pipelineErr := make(chan error, 1)
	go func() {
		pipelineErr <- pipeline.Run(pipelineCtx)
	}()
	go broadcastSnapshots(pipelineCtx, handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()
	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	var runErr error
	pipelineDone := false
	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server: %w", err)
		}
	case err := <-pipelineErr:
		pipelineDone = true
		if err != nil {
			runErr = fmt.Errorf("pipeline: %w", err)
		}
	}

	stopPipeline()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if !pipelineDone {
		select {
		case err := <-pipelineErr:
			if err != nil && runErr == nil {
				runErr = fmt.Errorf("pipeline: %w", err)
			}
		case <-shutdownCtx.Done():
			logger.Warn("pipeline did not stop in time")
		}
	}

	logger.Info("server stopped")
	return runErr
}

// newFailureRepository returns the Mongo dead-letter store when MONGO_URI is
// set and an in-memory one otherwise.
func newFailureRepository(ctx context.Context, cfg app.Config, logger *slog.Logger) (ports.FailedTransferRepository, func(), error) {
	if cfg.MongoURI == "" {
		logger.Info("failed transfers kept in memory")
		return memoryrepo.NewFailedTransferRepository(), func() {}, nil
	}

	client, err := mongorepo.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	repo := mongorepo.NewFailedTransferRepository(client, cfg.MongoDatabase, cfg.MongoCollection)
	if err := repo.EnsureIndexes(ctx); err != nil {
		logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
	}
	closeFn := func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
		}
	}
	return repo, closeFn, nil
}

// newHistoryCache returns a Redis-backed Arr history cache when REDIS_URL is
// set and reachable, falling back to process memory.
func newHistoryCache(ctx context.Context, cfg app.Config, logger *slog.Logger) (arr.PageCache, func()) {
	if cfg.RedisURL == "" {
		return arr.NewMemoryCache(), func() {}
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis url invalid, using memory cache", slog.String("error", err.Error()))
		return arr.NewMemoryCache(), func() {}
	}
	client := redis.NewClient(opts)
	cache := arr.NewRedisCache(client)
	if err := cache.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, using memory cache", slog.String("error", err.Error()))
		_ = client.Close()
		return arr.NewMemoryCache(), func() {}
	}
	logger.Info("arr history cached in redis", slog.String("addr", opts.Addr))
	return cache, func() { _ = client.Close() }
}

func broadcastSnapshots(ctx context.Context, handler *apihttp.Server) {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			handler.BroadcastSnapshot()
		}
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	handlerOpts := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, handlerOpts))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
