package app

import (
	"fmt"
	"strconv"
	"strings"

	"farm_sync/internal/domain"
)

/********** alias registry (single source of truth) **********/

// The CRM is not consistent about the id field name across webhook
// configurations; accept every variant we have seen.
var idAliases = []string{"id", "recordId", "record_id", "accountId", "zoho_id"}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// coerceString: trimmed string form of a value; nil/absent -> "".
func coerceString(m map[string]any, path string) string {
	switch v := lookupAny(m, path).(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimSpace(strconv.FormatFloat(v, 'f', -1, 64))
	case bool:
		return strconv.FormatBool(v)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func firstNonEmpty(m map[string]any, paths ...string) string {
	for _, p := range paths {
		if s := coerceString(m, p); s != "" {
			return s
		}
	}
	return ""
}

// coerceBool reproduces the CRM's permissive truthy convention exactly:
// native booleans pass through, numbers are true iff nonzero, strings are
// true iff trimmed+lowercased they land in {"true","yes","1","y"}, and
// everything else is false.
func coerceBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "1", "y":
			return true
		}
		return false
	default:
		return false
	}
}

// coerceList: absent -> empty, sequence -> as-is, scalar -> one-element wrap.
// No comma-splitting here; that is a bulk-import convention, not a webhook one.
func coerceList(v any) []string {
	switch t := v.(type) {
	case nil:
		return []string{}
	case []any:
		out := make([]string, 0, len(t))
		for _, it := range t {
			if s := strings.TrimSpace(fmt.Sprintf("%v", it)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := strings.TrimSpace(fmt.Sprintf("%v", t)); s != "" {
			return []string{s}
		}
		return []string{}
	}
}

// coerceFloat: empty or unparseable -> nil, never an error. Geocoding may
// legitimately be absent.
func coerceFloat(v any) *float64 {
	switch t := v.(type) {
	case float64:
		f := t
		return &f
	case int:
		f := float64(t)
		return &f
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return &f
		}
		return nil
	default:
		return nil
	}
}

// normalizeCategory follows the CRM taxonomy convention: trimmed, lowered,
// inner whitespace collapsed to hyphens.
func normalizeCategory(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), "-")
}

func normalizeCategories(v any) []string {
	in := coerceList(v)
	out := make([]string, 0, len(in))
	for _, c := range in {
		if n := normalizeCategory(c); n != "" {
			out = append(out, n)
		}
	}
	return out
}

/********** record coercion **********/

// Coerce maps a normalized CRM record into a typed Farm. The external id and
// a non-empty display name are mandatory; everything else degrades to its
// zero form. No store access happens here.
func Coerce(rec map[string]any) (domain.Farm, error) {
	id := firstNonEmpty(rec, idAliases...)
	if id == "" {
		return domain.Farm{}, fmt.Errorf("%w: external id", domain.ErrMissingRequiredField)
	}
	name := coerceString(rec, "Account_Name")
	if name == "" {
		return domain.Farm{}, fmt.Errorf("%w: display name", domain.ErrMissingRequiredField)
	}

	var hours domain.WeekHours
	for i, day := range domain.DayNames {
		hours[i] = coerceString(rec, day)
	}

	return domain.Farm{
		ZohoID:     id,
		Name:       name,
		City:       coerceString(rec, "Billing_City"),
		Region:     coerceString(rec, "Billing_State"),
		Lat:        coerceFloat(lookupAny(rec, "latitude")),
		Lon:        coerceFloat(lookupAny(rec, "longitude")),
		PlaceID:    coerceString(rec, "PlaceID"),
		Categories: normalizeCategories(lookupAny(rec, "Type_of_Farm")),
		Services:   coerceList(lookupAny(rec, "Services_Type")),
		Content: domain.ContentFields{
			Phone:          coerceString(rec, "Phone"),
			Email:          coerceString(rec, "Email"),
			Website:        coerceString(rec, "Website"),
			LocationLink:   coerceString(rec, "Google_My_Business"),
			PriceRange:     coerceString(rec, "Price_Range"),
			Description:    coerceString(rec, "Description"),
			Established:    coerceString(rec, "Year_Established"),
			OpeningDate:    coerceString(rec, "Open_Date"),
			PetFriendly:    coerceBool(lookupAny(rec, "Pet_Friendly")),
			Amenities:      coerceList(lookupAny(rec, "Amenities")),
			Varieties:      coerceList(lookupAny(rec, "Varieties")),
			PaymentMethods: coerceList(lookupAny(rec, "Payment_Methods")),
			Hours:          hours,
			SchemaHours:    coerceString(rec, "Schema_Hours"),
			Street:         coerceString(rec, "Billing_Street"),
			PostalCode:     coerceString(rec, "Billing_Code"),
			Country:        coerceString(rec, "Billing_Country"),
			Facebook:       coerceString(rec, "Facebook"),
			Instagram:      coerceString(rec, "Instagram"),
		},
	}, nil
}

// HasInlineRecord reports whether the payload carries the record itself, as
// opposed to a bare id reference that needs hydrating from the CRM.
func HasInlineRecord(rec map[string]any) bool {
	return coerceString(rec, "Account_Name") != ""
}

// RecordID extracts the external id from a payload, or "".
func RecordID(rec map[string]any) string {
	return firstNonEmpty(rec, idAliases...)
}
