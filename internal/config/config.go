package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIBaseURL       string
	APIToken         string
	APITimeout       time.Duration
	WarehouseID      int64
	SQLitePath       string
	DatabaseURL      string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	ShiftMode        bool
	ProbeInterval    time.Duration
	SyncInterval     time.Duration
	AutosaveDelay    time.Duration
	MinFetchInterval time.Duration
	SalesPerPage     int
	SalesCacheTTL    time.Duration
}

func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	warehouseID, _ := strconv.ParseInt(getEnv("WAREHOUSE_ID", "1"), 10, 64)
	perPage, err := strconv.Atoi(getEnv("SALES_PER_PAGE", "100"))
	if err != nil || perPage < 1 {
		perPage = 100
	}

	cfg := Config{
		APIBaseURL:       strings.TrimRight(getEnv("API_BASE_URL", "http://127.0.0.1:8080"), "/"),
		APIToken:         strings.TrimSpace(os.Getenv("API_TOKEN")),
		APITimeout:       durationEnv("API_TIMEOUT_SECONDS", 15*time.Second),
		WarehouseID:      warehouseID,
		SQLitePath:       getEnv("SQLITE_PATH", "terminal.db"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          redisDB,
		ShiftMode:        getEnv("SHIFT_MODE", "true") == "true",
		ProbeInterval:    durationEnv("PROBE_INTERVAL_SECONDS", 20*time.Second),
		SyncInterval:     durationEnv("SYNC_INTERVAL_SECONDS", 60*time.Second),
		AutosaveDelay:    durationMillisEnv("AUTOSAVE_DELAY_MS", 500*time.Millisecond),
		MinFetchInterval: durationEnv("MIN_FETCH_INTERVAL_SECONDS", 4*time.Second),
		SalesPerPage:     perPage,
		SalesCacheTTL:    durationEnv("SALES_CACHE_TTL_SECONDS", 300*time.Second),
	}

	return cfg
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	secs, err := strconv.Atoi(os.Getenv(key))
	if err != nil || secs < 1 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

func durationMillisEnv(key string, fallback time.Duration) time.Duration {
	ms, err := strconv.Atoi(os.Getenv(key))
	if err != nil || ms < 1 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
