package mysql

// The farms table carries two unique keys (zoho_id primary, slug unique).
// A bare INSERT ... ON DUPLICATE KEY UPDATE can fire on the slug key and
// rewrite another farm's row, so the upsert matches on zoho_id explicitly
// inside a transaction; the slug key then only ever surfaces as error 1062.

const lockFarmSQL = `SELECT zoho_id FROM farms WHERE zoho_id = ? FOR UPDATE`

const insertFarmSQL = `
INSERT INTO farms
  (zoho_id, slug, name, city, region, lat, lon, place_id, categories, services, content, snapshot)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const updateFarmSQL = `
UPDATE farms SET
  slug       = ?,
  name       = ?,
  city       = ?,
  region     = ?,
  lat        = ?,
  lon        = ?,
  place_id   = ?,
  categories = ?,
  services   = ?,
  content    = ?,
  snapshot   = ?,
  updated_at = CURRENT_TIMESTAMP
WHERE zoho_id = ?
`

const selectFarmColumns = `
  zoho_id, slug, name, city, region, lat, lon, place_id, categories, services, content, snapshot, updated_at
`

const getByIDSQL = `SELECT` + selectFarmColumns + `FROM farms WHERE zoho_id = ?`

const getBySlugSQL = `SELECT` + selectFarmColumns + `FROM farms WHERE slug = ?`

const insertDeliveryLogSQL = `
INSERT INTO reconcile_log (zoho_id, slug, change_kind, content_pushed, rebuild_fired, note)
VALUES (?, ?, ?, ?, ?, ?)
`
