package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	WebhookToken string

	ZohoAccountsURL  string
	ZohoAPIBase      string
	ZohoClientID     string
	ZohoClientSecret string
	ZohoRefreshToken string

	GitHubAPIBase string
	GitHubRepo    string
	GitHubBranch  string
	GitHubToken   string
	ContentDir    string

	BuildHookURL      string
	DispatchRepo      string
	DispatchEventType string

	Workers  int
	CacheTTL time.Duration
}

func Load() Config {
	// .env is a dev convenience; absence is fine
	_ = godotenv.Load()

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/farmsync?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),

		WebhookToken: env("WEBHOOK_TOKEN", ""),

		ZohoAccountsURL:  env("ZOHO_ACCOUNTS_URL", "https://accounts.zohocloud.ca"),
		ZohoAPIBase:      env("ZOHO_API_BASE", "https://www.zohoapis.ca/crm/v2"),
		ZohoClientID:     env("ZOHO_CLIENT_ID", ""),
		ZohoClientSecret: env("ZOHO_CLIENT_SECRET", ""),
		ZohoRefreshToken: env("ZOHO_REFRESH_TOKEN", ""),

		GitHubAPIBase: env("GITHUB_API_BASE", "https://api.github.com"),
		GitHubRepo:    env("GITHUB_REPO", ""),
		GitHubBranch:  env("GITHUB_BRANCH", ""),
		GitHubToken:   env("GITHUB_TOKEN", ""),
		ContentDir:    env("CONTENT_DIR", "content/farms"),

		BuildHookURL:      env("BUILD_HOOK_URL", ""),
		DispatchRepo:      env("DISPATCH_REPO", ""),
		DispatchEventType: env("DISPATCH_EVENT_TYPE", "farm-updated"),

		Workers:  atoi("BACKFILL_WORKERS", 8),
		CacheTTL: time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
	}
	if c.WebhookToken == "" {
		log.Warn().Msg("WEBHOOK_TOKEN is empty; all webhook deliveries will be rejected")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
