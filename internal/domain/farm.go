package domain

import "time"

// ChangeKind classifies a delivery against the last committed snapshot.
type ChangeKind string

const (
	StructuralChange ChangeKind = "structural_change"
	ContentUpdate    ChangeKind = "content_update"
)

// Farm is the canonical persisted record for one CRM account.
// ZohoID is immutable; Slug is unique across all rows and stable once
// assigned except during first-write collision resolution.
type Farm struct {
	ZohoID     string
	Slug       string
	Name       string
	City       string
	Region     string
	Lat, Lon   *float64
	PlaceID    string
	Categories []string
	Services   []string
	Content    ContentFields
	// SnapshotJSON is the structural snapshot as of the last successful
	// upsert. It is the diff baseline for the next delivery, never the
	// in-flight state.
	SnapshotJSON []byte
	UpdatedAt    time.Time
}

// ContentFields are the freely-updatable attributes; changing any of them
// never regenerates a site artifact.
type ContentFields struct {
	Phone          string    `json:"phone,omitempty"`
	Email          string    `json:"email,omitempty"`
	Website        string    `json:"website,omitempty"`
	LocationLink   string    `json:"location_link,omitempty"`
	PriceRange     string    `json:"price_range,omitempty"`
	Description    string    `json:"description,omitempty"`
	Established    string    `json:"established,omitempty"`
	OpeningDate    string    `json:"opening_date,omitempty"`
	PetFriendly    bool      `json:"pet_friendly,omitempty"`
	Amenities      []string  `json:"amenities,omitempty"`
	Varieties      []string  `json:"varieties,omitempty"`
	PaymentMethods []string  `json:"payment_methods,omitempty"`
	Hours          WeekHours `json:"hours,omitempty"`
	SchemaHours    string    `json:"schema_hours,omitempty"`
	Street         string    `json:"street,omitempty"`
	PostalCode     string    `json:"postal_code,omitempty"`
	Country        string    `json:"country,omitempty"`
	Facebook       string    `json:"facebook,omitempty"`
	Instagram      string    `json:"instagram,omitempty"`
}

// WeekHours holds seven fixed slots, Sunday first. An empty string means the
// day is not listed; interpreting "Closed" is the renderer's concern.
type WeekHours [7]string

// DayNames matches the CRM's weekday field names, index-aligned with WeekHours.
var DayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// StructuralSnapshot is the exact set of fields whose change requires
// regenerating the site artifact. List order is significant: the CRM sends
// ordered lists and reordering counts as a structural change.
type StructuralSnapshot struct {
	Slug       string   `json:"slug"`
	City       string   `json:"city"`
	Region     string   `json:"region"`
	Lat        *float64 `json:"latitude"`
	Lon        *float64 `json:"longitude"`
	PlaceID    string   `json:"place_id"`
	Categories []string `json:"categories"`
	Services   []string `json:"services"`
}

// DeliveryLog is the audit row written after each processed delivery.
type DeliveryLog struct {
	ZohoID         string
	Slug           string
	Change         ChangeKind
	ContentPushed  bool
	RebuildFired   bool
	Note           string
}

// ReconcileResult is the acknowledgment returned to the webhook caller.
// ContentUpdated and RebuildTriggered are independent best-effort outcomes;
// a true store write does not imply either.
type ReconcileResult struct {
	ZohoID           string     `json:"zoho_id"`
	Slug             string     `json:"slug"`
	Change           ChangeKind `json:"change"`
	ContentUpdated   bool       `json:"content_updated"`
	RebuildTriggered bool       `json:"rebuild_triggered"`
}
