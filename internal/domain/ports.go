package domain

import "context"

type FarmRepository interface {
	// Write paths
	// Upsert is atomic per row; ErrSlugTaken signals a unique-key loss on slug.
	Upsert(ctx context.Context, f Farm) error
	LogDelivery(ctx context.Context, d DeliveryLog) error

	// Read paths (advisory inside the pipeline; the unique key is the arbiter)
	GetByID(ctx context.Context, zohoID string) (Farm, error)
	GetBySlug(ctx context.Context, slug string) (Farm, error)
}

// CRMClient hydrates a full account record when the webhook only carries an id.
type CRMClient interface {
	GetRecord(ctx context.Context, id string) (map[string]any, error)
}

// ContentRepo is the generated-content store (a git-backed contents API).
// GetRevision returns the current revision token for a path, or ErrNotFound
// when the file does not exist yet. Put writes conditioned on that token;
// an empty token means create.
type ContentRepo interface {
	GetRevision(ctx context.Context, path string) (string, error)
	Put(ctx context.Context, path, content, revision, message string) error
}

// RebuildEvent is the payload for trigger mechanisms that accept one.
type RebuildEvent struct {
	Slug   string `json:"slug"`
	City   string `json:"city"`
	Region string `json:"region"`
	Reason string `json:"reason"`
}

type RebuildTrigger interface {
	Trigger(ctx context.Context, ev RebuildEvent) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// FarmView is the read model served by the public API.
type FarmView struct {
	ZohoID     string        `json:"zoho_id"`
	Slug       string        `json:"slug"`
	Name       string        `json:"name"`
	City       string        `json:"city,omitempty"`
	Region     string        `json:"region,omitempty"`
	Coords     *Coords       `json:"coordinates,omitempty"`
	PlaceID    string        `json:"place_id,omitempty"`
	Categories []string      `json:"categories,omitempty"`
	Services   []string      `json:"services,omitempty"`
	Content    ContentFields `json:"content"`
}

type Coords struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}
