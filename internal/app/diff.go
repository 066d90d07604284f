package app

import (
	"bytes"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"farm_sync/internal/domain"
)

// BuildSnapshot extracts exactly the structure-affecting fields. Lists stay
// in delivery order; reordering is a structural change.
func BuildSnapshot(f domain.Farm) domain.StructuralSnapshot {
	return domain.StructuralSnapshot{
		Slug:       f.Slug,
		City:       f.City,
		Region:     f.Region,
		Lat:        f.Lat,
		Lon:        f.Lon,
		PlaceID:    f.PlaceID,
		Categories: f.Categories,
		Services:   f.Services,
	}
}

// MarshalSnapshot produces the canonical stored form of a snapshot.
func MarshalSnapshot(s domain.StructuralSnapshot) []byte {
	b, err := json.Marshal(s)
	if err != nil {
		log.Error().Err(err).Str("context", "MarshalSnapshot").Msg("marshal snapshot failed")
		return nil
	}
	return b
}

// Classify compares the last committed snapshot against the incoming one.
// A missing or malformed baseline conservatively counts as structural: on
// first creation the artifact does not exist yet, and on corrupt state a
// regenerate is the safe call.
func Classify(prevJSON []byte, next domain.StructuralSnapshot) domain.ChangeKind {
	if len(prevJSON) == 0 {
		return domain.StructuralChange
	}
	var prev domain.StructuralSnapshot
	if err := json.Unmarshal(prevJSON, &prev); err != nil {
		log.Warn().Err(err).Msg("stored snapshot unreadable, treating as structural")
		return domain.StructuralChange
	}
	// Round-trip the stored baseline through the canonical marshal so that
	// legacy encodings of the same values compare equal.
	if bytes.Equal(MarshalSnapshot(prev), MarshalSnapshot(next)) {
		return domain.ContentUpdate
	}
	return domain.StructuralChange
}
