package app

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"strings"

	"farm_sync/internal/domain"
)

// Normalize turns a raw webhook body into a single record of named fields.
// Zoho sends three shapes in the wild: plain JSON, form-encoded bodies whose
// "payload"/"data" field holds a JSON record, and bare text from custom
// functions. Whatever arrives, the caller gets one map or ErrInvalidPayload.
func Normalize(body []byte, contentType string) (map[string]any, error) {
	mt := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mt = parsed
	}

	switch mt {
	case "application/json":
		rec, err := decodeRecord(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		return unwrapEnvelope(rec), nil

	case "application/x-www-form-urlencoded":
		vals, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		// A JSON record nested under payload/data wins over the flat form.
		for _, key := range []string{"payload", "data"} {
			if raw := vals.Get(key); raw != "" {
				if rec, err := decodeRecord([]byte(raw)); err == nil {
					return unwrapEnvelope(rec), nil
				}
			}
		}
		rec := make(map[string]any, len(vals))
		for k := range vals {
			rec[k] = vals.Get(k)
		}
		if len(rec) == 0 {
			return nil, fmt.Errorf("%w: empty form body", domain.ErrInvalidPayload)
		}
		return rec, nil

	default:
		// Unspecified or unknown content type: JSON first, then the raw
		// text reparsed, then wrap the text instead of failing outright.
		if rec, err := decodeRecord(body); err == nil {
			return unwrapEnvelope(rec), nil
		}
		trimmed := strings.TrimSpace(string(body))
		if rec, err := decodeRecord([]byte(trimmed)); err == nil {
			return unwrapEnvelope(rec), nil
		}
		if trimmed == "" {
			return nil, fmt.Errorf("%w: empty body", domain.ErrInvalidPayload)
		}
		return map[string]any{"_raw": trimmed}, nil
	}
}

func decodeRecord(b []byte) (map[string]any, error) {
	var rec map[string]any
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("null record")
	}
	return rec, nil
}

// unwrapEnvelope reduces the CRM's list envelope {"data":[{...}]} to its
// first element. Anything else passes through untouched.
func unwrapEnvelope(rec map[string]any) map[string]any {
	list, ok := rec["data"].([]any)
	if !ok || len(list) == 0 {
		return rec
	}
	first, ok := list[0].(map[string]any)
	if !ok {
		return rec
	}
	return first
}
