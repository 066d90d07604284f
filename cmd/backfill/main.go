package main

import (
	"context"
	"database/sql"
	"os"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"farm_sync/internal/adapters/deploy"
	"farm_sync/internal/adapters/github"
	"farm_sync/internal/adapters/observability"
	redisad "farm_sync/internal/adapters/redis"
	"farm_sync/internal/adapters/zoho"
	"farm_sync/internal/app"
	"farm_sync/internal/domain"
	"farm_sync/internal/shared"
	mysqlrepo "farm_sync/internal/storage/mysql"
)

// backfill re-runs the reconcile pipeline for explicitly named CRM record
// ids, e.g. after a side-effect outage. Usage: backfill <zoho_id>...
func main() {
	ctx := context.Background()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv)

	ids := os.Args[1:]
	if len(ids) == 0 {
		log.Fatal().Msg("no record ids given")
	}
	log.Info().Int("records", len(ids)).Int("workers", cfg.Workers).Msg("backfill starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	crm, err := zoho.New(cfg.ZohoAccountsURL, cfg.ZohoAPIBase, cfg.ZohoClientID, cfg.ZohoClientSecret, cfg.ZohoRefreshToken, 5)
	if err != nil {
		log.Fatal().Err(err).Msg("zoho client init failed")
	}

	var content domain.ContentRepo
	if cfg.GitHubRepo != "" && cfg.GitHubToken != "" {
		gh, err := github.New(cfg.GitHubAPIBase, cfg.GitHubRepo, cfg.GitHubBranch, cfg.GitHubToken, 5)
		if err != nil {
			log.Fatal().Err(err).Msg("github client init failed")
		}
		content = gh
	}
	var trigger domain.RebuildTrigger
	switch {
	case cfg.BuildHookURL != "":
		trigger = deploy.NewHook(cfg.BuildHookURL)
	case cfg.DispatchRepo != "":
		trigger = deploy.NewDispatch(cfg.GitHubAPIBase, cfg.DispatchRepo, cfg.DispatchEventType, cfg.GitHubToken)
	}

	rec := app.NewReconcileService(repo, content, trigger, cache, cfg.ContentDir)
	sem := semaphore.NewWeighted(int64(cfg.Workers))
	var wg sync.WaitGroup

	for _, id := range ids {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func(zohoID string) {
			defer wg.Done()
			defer sem.Release(1)

			record, err := crm.GetRecord(ctx, zohoID)
			if err != nil {
				log.Warn().Str("zoho_id", zohoID).Err(err).Msg("fetch failed")
				return
			}
			res, err := rec.Reconcile(ctx, record)
			if err != nil {
				log.Warn().Str("zoho_id", zohoID).Err(err).Msg("reconcile failed")
				return
			}
			observability.ObserveReconcile(string(res.Change))
			if res.Change == domain.StructuralChange {
				observability.ObserveSideEffect("content", res.ContentUpdated)
				observability.ObserveSideEffect("rebuild", res.RebuildTriggered)
			}
			log.Info().
				Str("zoho_id", res.ZohoID).
				Str("slug", res.Slug).
				Str("change", string(res.Change)).
				Bool("content_updated", res.ContentUpdated).
				Bool("rebuild_triggered", res.RebuildTriggered).
				Msg("reconcile ok")
		}(id)
	}

	wg.Wait()
	log.Info().Msg("backfill completed")
}
