package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"farm_sync/internal/domain"
)

// ReconcileService drives one delivery through the full pipeline:
// coerce -> resolve slug -> classify -> upsert -> side effects.
type ReconcileService struct {
	repo       domain.FarmRepository
	content    domain.ContentRepo
	trigger    domain.RebuildTrigger
	cache      domain.Cache
	contentDir string
}

func NewReconcileService(repo domain.FarmRepository, content domain.ContentRepo, trigger domain.RebuildTrigger, cache domain.Cache, contentDir string) *ReconcileService {
	return &ReconcileService{repo: repo, content: content, trigger: trigger, cache: cache, contentDir: contentDir}
}

// Reconcile upserts the record and, when structure changed, best-effort
// pushes the regenerated artifact and fires the rebuild signal. A store
// failure aborts before any side effect; side-effect failures are logged
// and surfaced as false booleans, never as errors.
func (s *ReconcileService) Reconcile(ctx context.Context, rec map[string]any) (domain.ReconcileResult, error) {
	f, err := Coerce(rec)
	if err != nil {
		return domain.ReconcileResult{}, err
	}

	// Baseline for the diff and for cache invalidation of a renamed slug.
	var prevSlug string
	var prevSnapshot []byte
	if prev, err := s.repo.GetByID(ctx, f.ZohoID); err == nil {
		prevSlug = prev.Slug
		prevSnapshot = prev.SnapshotJSON
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.ReconcileResult{}, fmt.Errorf("store read: %w", err)
	}

	// The pre-resolve lookups are advisory; the unique key on slug is the
	// arbiter. When two first-time creations race onto the same desired
	// slug the loser comes back here and walks further down the chain.
	var change domain.ChangeKind
	skip := map[string]bool{}
	for attempt := 0; ; attempt++ {
		if attempt > 3 {
			return domain.ReconcileResult{}, fmt.Errorf("store write: slug conflict not resolved for %s", f.ZohoID)
		}
		slug, err := ResolveSlug(ctx, s.repo, f, skip)
		if err != nil {
			return domain.ReconcileResult{}, err
		}
		f.Slug = slug
		snap := BuildSnapshot(f)
		change = Classify(prevSnapshot, snap)
		f.SnapshotJSON = MarshalSnapshot(snap)

		err = s.repo.Upsert(ctx, f)
		if errors.Is(err, domain.ErrSlugTaken) {
			log.Info().Str("zoho_id", f.ZohoID).Str("slug", slug).Msg("slug constraint lost, re-resolving")
			skip[slug] = true
			continue
		}
		if err != nil {
			return domain.ReconcileResult{}, fmt.Errorf("store write: %w", err)
		}
		break
	}

	if s.cache != nil {
		_ = s.cache.Del(ctx, "farm:"+f.Slug)
		if prevSlug != "" && prevSlug != f.Slug {
			_ = s.cache.Del(ctx, "farm:"+prevSlug)
		}
	}

	res := domain.ReconcileResult{ZohoID: f.ZohoID, Slug: f.Slug, Change: change}

	var notes []string
	if change == domain.StructuralChange {
		var note string
		res.ContentUpdated, note = s.pushContent(ctx, f)
		if note != "" {
			notes = append(notes, note)
		}
		res.RebuildTriggered, note = s.fireRebuild(ctx, f)
		if note != "" {
			notes = append(notes, note)
		}
	}

	// Audit row is best-effort; the canonical write already succeeded.
	if err := s.repo.LogDelivery(ctx, domain.DeliveryLog{
		ZohoID:        f.ZohoID,
		Slug:          f.Slug,
		Change:        change,
		ContentPushed: res.ContentUpdated,
		RebuildFired:  res.RebuildTriggered,
		Note:          strings.Join(notes, "; "),
	}); err != nil {
		log.Warn().Err(err).Str("zoho_id", f.ZohoID).Msg("delivery log write failed")
	}

	return res, nil
}

// pushContent renders and writes the artifact with optimistic concurrency:
// read the current revision token, include it on write, absent means create.
// The note is the failure reason, kept for the delivery audit row.
func (s *ReconcileService) pushContent(ctx context.Context, f domain.Farm) (bool, string) {
	if s.content == nil {
		return false, ""
	}
	md, err := RenderMarkdown(f)
	if err != nil {
		log.Error().Err(err).Str("zoho_id", f.ZohoID).Msg("render artifact failed")
		return false, "render: " + err.Error()
	}
	p := ArtifactPath(s.contentDir, f.Slug)
	rev, err := s.content.GetRevision(ctx, p)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Error().Err(err).Str("path", p).Msg("read artifact revision failed")
		return false, "content read: " + err.Error()
	}
	msg := fmt.Sprintf("Update farm: %s (%s)", f.Name, f.ZohoID)
	if err := s.content.Put(ctx, p, md, rev, msg); err != nil {
		log.Error().Err(err).Str("path", p).Msg("write artifact failed")
		return false, "content write: " + err.Error()
	}
	return true, ""
}

func (s *ReconcileService) fireRebuild(ctx context.Context, f domain.Farm) (bool, string) {
	if s.trigger == nil {
		return false, ""
	}
	ev := domain.RebuildEvent{Slug: f.Slug, City: f.City, Region: f.Region, Reason: string(domain.StructuralChange)}
	if err := s.trigger.Trigger(ctx, ev); err != nil {
		log.Error().Err(err).Str("slug", f.Slug).Msg("rebuild trigger failed")
		return false, "rebuild: " + err.Error()
	}
	return true, ""
}
