package app_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"farm_sync/internal/app"
	"farm_sync/internal/domain"
)

// ---- fakes ----

// fakeRepo enforces slug uniqueness like the real store. Slugs listed in
// hidden are invisible to GetBySlug but still enforced by Upsert, which
// simulates the window between an advisory lookup and the constraint check.
type fakeRepo struct {
	byID    map[string]domain.Farm
	hidden  map[string]bool
	failUps error
	logs    []domain.DeliveryLog
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: map[string]domain.Farm{}, hidden: map[string]bool{}}
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (domain.Farm, error) {
	if r, ok := f.byID[id]; ok {
		return r, nil
	}
	return domain.Farm{}, domain.ErrNotFound
}

func (f *fakeRepo) GetBySlug(_ context.Context, slug string) (domain.Farm, error) {
	if f.hidden[slug] {
		return domain.Farm{}, domain.ErrNotFound
	}
	for _, r := range f.byID {
		if r.Slug == slug {
			return r, nil
		}
	}
	return domain.Farm{}, domain.ErrNotFound
}

func (f *fakeRepo) Upsert(_ context.Context, r domain.Farm) error {
	if f.failUps != nil {
		return f.failUps
	}
	for id, existing := range f.byID {
		if id != r.ZohoID && existing.Slug == r.Slug {
			return domain.ErrSlugTaken
		}
	}
	f.byID[r.ZohoID] = r
	return nil
}

func (f *fakeRepo) LogDelivery(_ context.Context, d domain.DeliveryLog) error {
	f.logs = append(f.logs, d)
	return nil
}

type fakeContent struct {
	revs    map[string]string
	files   map[string]string
	putErr  error
	puts    int
	lastRev string
}

func newFakeContent() *fakeContent {
	return &fakeContent{revs: map[string]string{}, files: map[string]string{}}
}

func (c *fakeContent) GetRevision(_ context.Context, path string) (string, error) {
	if rev, ok := c.revs[path]; ok {
		return rev, nil
	}
	return "", domain.ErrNotFound
}

func (c *fakeContent) Put(_ context.Context, path, content, revision, _ string) error {
	if c.putErr != nil {
		return c.putErr
	}
	c.puts++
	c.lastRev = revision
	c.files[path] = content
	c.revs[path] = fmt.Sprintf("rev-%d", c.puts)
	return nil
}

type fakeTrigger struct {
	err    error
	events []domain.RebuildEvent
}

func (tr *fakeTrigger) Trigger(_ context.Context, ev domain.RebuildEvent) error {
	if tr.err != nil {
		return tr.err
	}
	tr.events = append(tr.events, ev)
	return nil
}

func greenAcres() map[string]any {
	return map[string]any{
		"id":           "A100",
		"Account_Name": "Green Acres",
		"Billing_City": "Springfield",
		"Phone":        "555-0100",
	}
}

// ---- tests ----

func TestReconcile_FirstDeliveryCreates(t *testing.T) {
	repo := newFakeRepo()
	content := newFakeContent()
	trigger := &fakeTrigger{}
	svc := app.NewReconcileService(repo, content, trigger, nil, "content/farms")

	res, err := svc.Reconcile(context.Background(), greenAcres())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.Slug != "green-acres" || res.Change != domain.StructuralChange {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !res.ContentUpdated || !res.RebuildTriggered {
		t.Fatalf("side effects not attempted: %+v", res)
	}
	if content.lastRev != "" {
		t.Fatalf("first write should create, got revision %q", content.lastRev)
	}
	if len(trigger.events) != 1 || trigger.events[0].City != "Springfield" {
		t.Fatalf("trigger events: %+v", trigger.events)
	}
	if len(repo.logs) != 1 || repo.logs[0].Change != domain.StructuralChange {
		t.Fatalf("delivery log: %+v", repo.logs)
	}
	if repo.logs[0].Note != "" {
		t.Fatalf("clean delivery should log an empty note, got %q", repo.logs[0].Note)
	}
}

func TestReconcile_SecondIdenticalDeliveryIsContentUpdate(t *testing.T) {
	repo := newFakeRepo()
	content := newFakeContent()
	trigger := &fakeTrigger{}
	svc := app.NewReconcileService(repo, content, trigger, nil, "content/farms")

	if _, err := svc.Reconcile(context.Background(), greenAcres()); err != nil {
		t.Fatalf("first: %v", err)
	}
	first := repo.byID["A100"]

	// only the phone changed
	rec := greenAcres()
	rec["Phone"] = "555-0199"
	res, err := svc.Reconcile(context.Background(), rec)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if res.Change != domain.ContentUpdate {
		t.Fatalf("expected content_update, got %s", res.Change)
	}
	if res.Slug != "green-acres" {
		t.Fatalf("slug must be stable, got %q", res.Slug)
	}
	if res.ContentUpdated || res.RebuildTriggered {
		t.Fatalf("side effects must be skipped: %+v", res)
	}
	if content.puts != 1 || len(trigger.events) != 1 {
		t.Fatalf("side effects re-ran: puts=%d events=%d", content.puts, len(trigger.events))
	}
	if string(repo.byID["A100"].SnapshotJSON) != string(first.SnapshotJSON) {
		t.Fatalf("snapshot changed on content update")
	}
	if repo.byID["A100"].Content.Phone != "555-0199" {
		t.Fatalf("phone not refreshed")
	}
}

func TestReconcile_CollisionGetsCitySuffix(t *testing.T) {
	repo := newFakeRepo()
	svc := app.NewReconcileService(repo, newFakeContent(), &fakeTrigger{}, nil, "content/farms")

	if _, err := svc.Reconcile(context.Background(), greenAcres()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := svc.Reconcile(context.Background(), map[string]any{
		"id":           "A200",
		"Account_Name": "Green Acres",
		"Billing_City": "Shelbyville",
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.Slug != "green-acres-shelbyville" {
		t.Fatalf("expected city-suffixed slug, got %q", res.Slug)
	}
}

func TestReconcile_DoubleCollisionGetsIDSuffix(t *testing.T) {
	repo := newFakeRepo()
	svc := app.NewReconcileService(repo, newFakeContent(), &fakeTrigger{}, nil, "content/farms")

	seed := func(id, city string) {
		if _, err := svc.Reconcile(context.Background(), map[string]any{
			"id": id, "Account_Name": "Green Acres", "Billing_City": city,
		}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	seed("A100", "Shelbyville")
	seed("A200", "Shelbyville") // takes green-acres-shelbyville

	res, err := svc.Reconcile(context.Background(), map[string]any{
		"id": "ZX9301", "Account_Name": "Green Acres", "Billing_City": "Shelbyville",
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.Slug != "green-acres-zx9301" {
		t.Fatalf("expected id-suffixed slug, got %q", res.Slug)
	}
}

func TestReconcile_ConstraintRaceRetriesDownTheChain(t *testing.T) {
	repo := newFakeRepo()
	// A100 holds green-acres but the advisory lookup can't see it yet.
	repo.byID["A100"] = domain.Farm{ZohoID: "A100", Slug: "green-acres"}
	repo.hidden["green-acres"] = true

	svc := app.NewReconcileService(repo, newFakeContent(), &fakeTrigger{}, nil, "content/farms")
	res, err := svc.Reconcile(context.Background(), map[string]any{
		"id": "A200", "Account_Name": "Green Acres", "Billing_City": "Shelbyville",
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.Slug != "green-acres-shelbyville" {
		t.Fatalf("expected retry onto city suffix, got %q", res.Slug)
	}
}

func TestReconcile_StoreFailureAbortsBeforeSideEffects(t *testing.T) {
	repo := newFakeRepo()
	repo.failUps = errors.New("connection refused")
	content := newFakeContent()
	trigger := &fakeTrigger{}
	svc := app.NewReconcileService(repo, content, trigger, nil, "content/farms")

	_, err := svc.Reconcile(context.Background(), greenAcres())
	if err == nil {
		t.Fatalf("expected store write error")
	}
	if content.puts != 0 || len(trigger.events) != 0 {
		t.Fatalf("side effects attempted after store failure")
	}
}

func TestReconcile_SideEffectFailuresAreIsolated(t *testing.T) {
	repo := newFakeRepo()
	content := newFakeContent()
	content.putErr = errors.New("merge conflict")
	trigger := &fakeTrigger{}
	svc := app.NewReconcileService(repo, content, trigger, nil, "content/farms")

	res, err := svc.Reconcile(context.Background(), greenAcres())
	if err != nil {
		t.Fatalf("side-effect failure must not fail the request: %v", err)
	}
	if res.ContentUpdated {
		t.Fatalf("content update should report false")
	}
	if !res.RebuildTriggered {
		t.Fatalf("rebuild must still be attempted after content failure")
	}
	if len(repo.logs) != 1 || !strings.Contains(repo.logs[0].Note, "merge conflict") {
		t.Fatalf("audit note should carry the failure reason: %+v", repo.logs)
	}
}

func TestReconcile_MissingRequiredField(t *testing.T) {
	svc := app.NewReconcileService(newFakeRepo(), newFakeContent(), &fakeTrigger{}, nil, "content/farms")
	_, err := svc.Reconcile(context.Background(), map[string]any{"Account_Name": "Nameless"})
	if !errors.Is(err, domain.ErrMissingRequiredField) {
		t.Fatalf("expected ErrMissingRequiredField, got %v", err)
	}
}

func TestReconcile_AbsentOptionalFieldsDoNotBlock(t *testing.T) {
	repo := newFakeRepo()
	svc := app.NewReconcileService(repo, newFakeContent(), &fakeTrigger{}, nil, "content/farms")

	res, err := svc.Reconcile(context.Background(), map[string]any{
		"id": "A300", "Account_Name": "Bare Minimum Farm",
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.Change != domain.StructuralChange {
		t.Fatalf("first creation must be structural, got %s", res.Change)
	}
	f := repo.byID["A300"]
	if f.Lat != nil || f.Lon != nil {
		t.Fatalf("absent coordinates must store as nil")
	}
}
