//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"farm_sync/internal/domain"
	mysqlrepo "farm_sync/internal/storage/mysql"
)

// ---------- small helpers ----------
func pfloat(f float64) *float64 { return &f }

func mustEnv(t *testing.T, k string) string {
	t.Helper()
	v := os.Getenv(k)
	if v == "" {
		t.Fatalf("%s not set; export it (e.g. MIGRATIONS_DIR=/path/to/sql)", k)
	}
	return v
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := mustEnv(t, "MIGRATIONS_DIR")

	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		t.Fatalf("MIGRATIONS_DIR=%s is not a directory or missing", dir)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)

	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}

	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=farmsync",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:%s@tcp(127.0.0.1:%s)/%s?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		"root", hostPort, "farmsync")

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)
	return db
}

// ---------- the test ----------
func TestRepo_MySQL_UpsertAndQuery(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	f := domain.Farm{
		ZohoID:       "A100",
		Slug:         "green-acres",
		Name:         "Green Acres",
		City:         "Springfield",
		Region:       "ON",
		Lat:          pfloat(43.65),
		Lon:          pfloat(-79.38),
		PlaceID:      "pl-123",
		Categories:   []string{"apple-orchard"},
		Services:     []string{"Pick Your Own"},
		Content:      domain.ContentFields{Phone: "555-0100", Description: "A family farm."},
		SnapshotJSON: []byte(`{"slug":"green-acres"}`),
	}
	if err := repo.Upsert(ctx, f); err != nil {
		t.Fatalf("Upsert (create): %v", err)
	}

	got, err := repo.GetByID(ctx, "A100")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Slug != "green-acres" || got.City != "Springfield" || got.Lat == nil || *got.Lat != 43.65 {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.Content.Phone != "555-0100" {
		t.Fatalf("content not round-tripped: %+v", got.Content)
	}
	if string(got.SnapshotJSON) != `{"slug":"green-acres"}` {
		t.Fatalf("snapshot not round-tripped: %s", got.SnapshotJSON)
	}

	// Overwrite the same id; lat/lon dropped must store as NULL.
	f.City = "Shelbyville"
	f.Lat, f.Lon = nil, nil
	if err := repo.Upsert(ctx, f); err != nil {
		t.Fatalf("Upsert (update): %v", err)
	}
	got, err = repo.GetByID(ctx, "A100")
	if err != nil {
		t.Fatalf("GetByID after update: %v", err)
	}
	if got.City != "Shelbyville" || got.Lat != nil || got.Lon != nil {
		t.Fatalf("update not applied: %+v", got)
	}

	bySlug, err := repo.GetBySlug(ctx, "green-acres")
	if err != nil {
		t.Fatalf("GetBySlug: %v", err)
	}
	if bySlug.ZohoID != "A100" {
		t.Fatalf("GetBySlug returned %+v", bySlug)
	}

	if _, err := repo.GetByID(ctx, "NOPE"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepo_MySQL_SlugUniqueness(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	base := domain.Farm{
		Slug: "green-acres", Name: "Green Acres",
		Categories: []string{}, Services: []string{},
		SnapshotJSON: []byte(`{}`),
	}

	a := base
	a.ZohoID = "A100"
	if err := repo.Upsert(ctx, a); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Different id, same slug: the unique key must reject it.
	b := base
	b.ZohoID = "A200"
	if err := repo.Upsert(ctx, b); !errors.Is(err, domain.ErrSlugTaken) {
		t.Fatalf("expected ErrSlugTaken, got %v", err)
	}

	// Same id re-upserting its own slug is fine.
	if err := repo.Upsert(ctx, a); err != nil {
		t.Fatalf("idempotent re-upsert: %v", err)
	}

	// The loser retries with a different slug and lands.
	b.Slug = "green-acres-shelbyville"
	if err := repo.Upsert(ctx, b); err != nil {
		t.Fatalf("retry with new slug: %v", err)
	}
}

func TestRepo_MySQL_LogDelivery(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	if err := repo.LogDelivery(ctx, domain.DeliveryLog{
		ZohoID: "A100", Slug: "green-acres",
		Change: domain.StructuralChange, ContentPushed: true, RebuildFired: true,
	}); err != nil {
		t.Fatalf("LogDelivery: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM reconcile_log WHERE zoho_id = 'A100'`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("reconcile_log rows = %d", n)
	}
}
