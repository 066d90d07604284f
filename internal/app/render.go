package app

import (
	"fmt"
	"path"
	"strings"

	"github.com/goccy/go-yaml"

	"farm_sync/internal/domain"
)

// ArtifactPath is where a farm's generated page lives in the content repo.
func ArtifactPath(contentDir, slug string) string {
	return path.Join(contentDir, slug+".md")
}

// RenderMarkdown renders a farm into the flat site artifact: YAML
// frontmatter between --- fences, then the description body. Empty optional
// sections (hours, coordinates, lists, social) are omitted rather than
// emitted empty, matching what the site generator expects.
func RenderMarkdown(f domain.Farm) (string, error) {
	c := f.Content

	fm := yaml.MapSlice{
		{Key: "title", Value: f.Name},
		{Key: "slug", Value: f.Slug},
		{Key: "zoho_id", Value: f.ZohoID},
		{Key: "categories", Value: f.Categories},
		{Key: "type", Value: strings.Join(f.Services, ", ")},
		{Key: "established", Value: c.Established},
		{Key: "opening_date", Value: c.OpeningDate},
	}
	if len(c.Amenities) > 0 {
		fm = append(fm, yaml.MapItem{Key: "amenities", Value: c.Amenities})
	}
	if len(c.Varieties) > 0 {
		fm = append(fm, yaml.MapItem{Key: "varieties", Value: c.Varieties})
	}
	fm = append(fm,
		yaml.MapItem{Key: "pet_friendly", Value: c.PetFriendly},
		yaml.MapItem{Key: "price_range", Value: c.PriceRange},
	)
	if len(c.PaymentMethods) > 0 {
		fm = append(fm, yaml.MapItem{Key: "payment_methods", Value: c.PaymentMethods})
	}
	fm = append(fm,
		yaml.MapItem{Key: "website", Value: c.Website},
		yaml.MapItem{Key: "location_link", Value: c.LocationLink},
	)
	if hours := listedHours(c.Hours); len(hours) > 0 {
		fm = append(fm, yaml.MapItem{Key: "hours", Value: hours})
	}
	fm = append(fm,
		yaml.MapItem{Key: "schema_hours", Value: c.SchemaHours},
		yaml.MapItem{Key: "address", Value: yaml.MapSlice{
			{Key: "street", Value: c.Street},
			{Key: "city", Value: f.City},
			{Key: "postal_code", Value: c.PostalCode},
			{Key: "province", Value: f.Region},
			{Key: "country", Value: c.Country},
		}},
	)
	if f.Lat != nil || f.Lon != nil {
		coords := yaml.MapSlice{}
		if f.Lat != nil {
			coords = append(coords, yaml.MapItem{Key: "latitude", Value: *f.Lat})
		}
		if f.Lon != nil {
			coords = append(coords, yaml.MapItem{Key: "longitude", Value: *f.Lon})
		}
		fm = append(fm, yaml.MapItem{Key: "coordinates", Value: coords})
	}
	fm = append(fm,
		yaml.MapItem{Key: "place_id", Value: f.PlaceID},
		yaml.MapItem{Key: "phone", Value: c.Phone},
		yaml.MapItem{Key: "email", Value: c.Email},
		yaml.MapItem{Key: "status", Value: "active"},
	)
	if c.Facebook != "" || c.Instagram != "" {
		social := yaml.MapSlice{}
		if c.Facebook != "" {
			social = append(social, yaml.MapItem{Key: "facebook", Value: c.Facebook})
		}
		if c.Instagram != "" {
			social = append(social, yaml.MapItem{Key: "instagram", Value: c.Instagram})
		}
		fm = append(fm, yaml.MapItem{Key: "social", Value: social})
	}

	y, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("render frontmatter: %w", err)
	}
	return "---\n" + string(y) + "---\n\n" + c.Description + "\n", nil
}

// listedHours keeps only listed days, lowercased keys, in week order.
// Empty and "Closed" slots are not listed.
func listedHours(h domain.WeekHours) yaml.MapSlice {
	var out yaml.MapSlice
	for i, day := range domain.DayNames {
		v := strings.TrimSpace(h[i])
		if v == "" || v == "Closed" {
			continue
		}
		out = append(out, yaml.MapItem{Key: strings.ToLower(day), Value: v})
	}
	return out
}
