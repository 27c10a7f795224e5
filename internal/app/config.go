package app

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/elsbrock/putioarr/internal/usecase"
)

// ArrInstance is one Sonarr, Radarr or Whisparr installation consulted for
// import status.
type ArrInstance struct {
	Name   string
	URL    string
	APIKey string
}

type Config struct {
	HTTPAddr           string
	LogLevel           string
	LogFormat          string
	CORSAllowedOrigins []string

	PutioAPIKey       string
	PutioAPIURL       string
	PutioUploadURL    string
	PutioRootFolder   string
	PutioRateLimitRPS float64

	DownloadDir          string
	DownloadWorkers      int
	OrchestrationWorkers int
	PollingInterval      time.Duration
	SkipDirectories      []string
	DownloadMaxAttempts  int
	FileOwnerUID         int // -1 = leave ownership unchanged
	FileOwnerGID         int // -1 = same as FileOwnerUID

	TransmissionUsername string
	TransmissionPassword string

	Arr             []ArrInstance
	ArrHistoryCache time.Duration

	MongoURI        string // empty = in-memory dead-letter store
	MongoDatabase   string
	MongoCollection string
	RedisURL        string // empty = in-memory history cache
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":9091"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		CORSAllowedOrigins: parseCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),

		PutioAPIKey:       strings.TrimSpace(getEnv("PUTIO_API_KEY", "")),
		PutioAPIURL:       getEnv("PUTIO_API_URL", "https://api.put.io/v2"),
		PutioUploadURL:    getEnv("PUTIO_UPLOAD_URL", "https://upload.put.io/v2"),
		PutioRootFolder:   getEnv("PUTIO_ROOT_FOLDER", "putioarr"),
		PutioRateLimitRPS: getEnvFloat("PUTIO_RATE_LIMIT_RPS", 5),

		DownloadDir:          getEnv("DOWNLOAD_DIR", ""),
		DownloadWorkers:      int(getEnvInt64("DOWNLOAD_WORKERS", 4)),
		OrchestrationWorkers: int(getEnvInt64("ORCHESTRATION_WORKERS", 10)),
		PollingInterval:      time.Duration(getEnvInt64("POLLING_INTERVAL_SECONDS", 10)) * time.Second,
		SkipDirectories:      parseCSV(getEnv("SKIP_DIRECTORIES", "sample,extras")),
		DownloadMaxAttempts:  int(getEnvInt64("DOWNLOAD_MAX_ATTEMPTS", 3)),
		FileOwnerUID:         getEnvOwner("FILE_OWNER_UID"),
		FileOwnerGID:         getEnvOwner("FILE_OWNER_GID"),

		TransmissionUsername: getEnv("TRANSMISSION_USERNAME", ""),
		TransmissionPassword: getEnv("TRANSMISSION_PASSWORD", ""),

		Arr:             loadArrInstances(),
		ArrHistoryCache: time.Duration(getEnvInt64("ARR_HISTORY_CACHE_SECONDS", 5)) * time.Second,

		MongoURI:        getEnv("MONGO_URI", ""),
		MongoDatabase:   getEnv("MONGO_DB", "putioarr"),
		MongoCollection: getEnv("MONGO_COLLECTION", "failed_transfers"),
		RedisURL:        getEnv("REDIS_URL", ""),
	}
}

func loadArrInstances() []ArrInstance {
	var out []ArrInstance
	for _, name := range []string{"sonarr", "radarr", "whisparr"} {
		prefix := strings.ToUpper(name)
		url := strings.TrimSpace(os.Getenv(prefix + "_URL"))
		key := strings.TrimSpace(os.Getenv(prefix + "_API_KEY"))
		if url == "" && key == "" {
			continue
		}
		out = append(out, ArrInstance{Name: name, URL: url, APIKey: key})
	}
	return out
}

// Validate reports every missing or inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.PutioAPIKey == "" {
		errs = append(errs, errors.New("PUTIO_API_KEY is required"))
	}
	if c.DownloadDir == "" {
		errs = append(errs, errors.New("DOWNLOAD_DIR is required"))
	}
	if c.TransmissionUsername == "" || c.TransmissionPassword == "" {
		errs = append(errs, errors.New("TRANSMISSION_USERNAME and TRANSMISSION_PASSWORD are required"))
	}
	if len(c.Arr) == 0 {
		errs = append(errs, errors.New("at least one of SONARR_URL, RADARR_URL or WHISPARR_URL is required"))
	}
	for _, a := range c.Arr {
		if a.URL == "" || a.APIKey == "" {
			prefix := strings.ToUpper(a.Name)
			errs = append(errs, errors.New(prefix+"_URL and "+prefix+"_API_KEY must both be set"))
		}
	}
	return errors.Join(errs...)
}

func (c Config) Pipeline() usecase.PipelineConfig {
	return usecase.PipelineConfig{
		PollingInterval:      c.PollingInterval,
		DownloadWorkers:      c.DownloadWorkers,
		OrchestrationWorkers: c.OrchestrationWorkers,
		SkipDirectories:      c.SkipDirectories,
		DownloadDir:          c.DownloadDir,
		MaxAttempts:          c.DownloadMaxAttempts,
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// getEnvOwner parses a uid/gid, returning -1 when unset or invalid.
func getEnvOwner(key string) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return -1
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return -1
	}
	return parsed
}

func parseCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
