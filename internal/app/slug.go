package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"farm_sync/internal/domain"
)

// deaccent decomposes to NFD, drops combining marks, recomposes. "Café" -> "Cafe".
var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify converts a display name to lower-kebab ASCII.
// Rules: strip diacritics, lower-case, "&" -> "and", any run of
// non-alphanumerics becomes one hyphen, trim leading/trailing hyphens.
func Slugify(title string) string {
	if flat, _, err := transform.String(deaccent, title); err == nil {
		title = flat
	}
	title = strings.ReplaceAll(strings.ToLower(title), "&", " and ")

	var b strings.Builder
	b.Grow(len(title))
	lastWasDash := false
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastWasDash = false
		default:
			if !lastWasDash {
				b.WriteRune('-')
				lastWasDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// idTail returns the last n characters of an external id, used as the
// unconditional disambiguator (ids are unique, so the suffix form is too).
func idTail(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[len(id)-n:]
}

// slugCandidates is the deterministic candidate chain for a record:
// desired, then city-suffixed, then id-suffixed. The final candidate is
// unique by construction and always present.
func slugCandidates(f domain.Farm) []string {
	desired := Slugify(f.Name)
	if desired == "" {
		desired = "farm"
	}
	cands := []string{desired}
	if city := Slugify(f.City); city != "" {
		cands = append(cands, desired+"-"+city)
	}
	return append(cands, desired+"-"+strings.ToLower(idTail(f.ZohoID, 6)))
}

// ResolveSlug returns a slug for the record that is stable where possible and
// unique as far as the store can currently tell. A previously assigned slug
// always wins. The lookups here are advisory; the store's unique key is the
// final arbiter and the pipeline retries down the same chain on conflict.
//
// skip marks candidates already rejected by the store in this delivery.
func ResolveSlug(ctx context.Context, repo domain.FarmRepository, f domain.Farm, skip map[string]bool) (string, error) {
	// A slug already assigned to this id is always acceptable, even after a
	// constraint conflict: the row holding it is ours, so the update path
	// cannot collide on it.
	existing, err := repo.GetByID(ctx, f.ZohoID)
	if err == nil && existing.Slug != "" {
		return existing.Slug, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("slug resolve: lookup by id: %w", err)
	}

	cands := slugCandidates(f)
	for i, cand := range cands {
		if skip[cand] {
			continue
		}
		// Final candidate is accepted without a lookup.
		if i == len(cands)-1 {
			return cand, nil
		}
		holder, err := repo.GetBySlug(ctx, cand)
		if errors.Is(err, domain.ErrNotFound) || (err == nil && holder.ZohoID == f.ZohoID) {
			return cand, nil
		}
		if err != nil {
			return "", fmt.Errorf("slug resolve: lookup by slug: %w", err)
		}
	}
	// Every candidate including the id-suffixed one was rejected by the
	// store; ids are unique so this means the same delivery raced itself.
	return "", fmt.Errorf("slug resolve: candidate chain exhausted for %s", f.ZohoID)
}
