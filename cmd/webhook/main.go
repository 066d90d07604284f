package main

import (
	"database/sql"
	"net/http"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"farm_sync/internal/adapters/deploy"
	"farm_sync/internal/adapters/github"
	server "farm_sync/internal/adapters/http_server"
	"farm_sync/internal/adapters/observability"
	redisad "farm_sync/internal/adapters/redis"
	"farm_sync/internal/adapters/zoho"
	"farm_sync/internal/app"
	"farm_sync/internal/domain"
	"farm_sync/internal/shared"
	mysqlrepo "farm_sync/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	// optional collaborators: missing config just disables the side effect
	var content domain.ContentRepo
	if cfg.GitHubRepo != "" && cfg.GitHubToken != "" {
		gh, err := github.New(cfg.GitHubAPIBase, cfg.GitHubRepo, cfg.GitHubBranch, cfg.GitHubToken, 5)
		if err != nil {
			log.Fatal().Err(err).Msg("github client init failed")
		}
		content = gh
	} else {
		log.Warn().Msg("content repo not configured; artifact updates disabled")
	}

	var trigger domain.RebuildTrigger
	switch {
	case cfg.BuildHookURL != "":
		trigger = deploy.NewHook(cfg.BuildHookURL)
	case cfg.DispatchRepo != "":
		trigger = deploy.NewDispatch(cfg.GitHubAPIBase, cfg.DispatchRepo, cfg.DispatchEventType, cfg.GitHubToken)
	default:
		log.Warn().Msg("rebuild trigger not configured; rebuild signals disabled")
	}

	var crm domain.CRMClient
	if cfg.ZohoClientID != "" {
		zc, err := zoho.New(cfg.ZohoAccountsURL, cfg.ZohoAPIBase, cfg.ZohoClientID, cfg.ZohoClientSecret, cfg.ZohoRefreshToken, 5)
		if err != nil {
			log.Fatal().Err(err).Msg("zoho client init failed")
		}
		crm = zc
	} else {
		log.Warn().Msg("zoho client not configured; id-only payloads will be rejected")
	}

	rec := app.NewReconcileService(repo, content, trigger, cache, cfg.ContentDir)
	q := app.NewQueryService(repo, cache, cfg.CacheTTL)

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Rec: rec, Q: q, CRM: crm, WebhookToken: cfg.WebhookToken})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("webhook service listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
