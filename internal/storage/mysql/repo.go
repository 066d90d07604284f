package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"farm_sync/internal/domain"
)

func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// Upsert inserts or fully overwrites the row keyed by zoho_id. The FOR
// UPDATE lock serializes concurrent deliveries for the same id; a duplicate
// slug from either path comes back as domain.ErrSlugTaken for the pipeline
// to re-resolve.
func (r *Repo) Upsert(ctx context.Context, f domain.Farm) error {
	cats, _ := json.Marshal(f.Categories)
	svcs, _ := json.Marshal(f.Services)
	content, err := json.Marshal(f.Content)
	if err != nil {
		return fmt.Errorf("marshal content fields: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, lockFarmSQL, f.ZohoID).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, insertFarmSQL,
			f.ZohoID, f.Slug, f.Name, f.City, f.Region,
			valF64(f.Lat), valF64(f.Lon), f.PlaceID,
			string(cats), string(svcs), string(content), string(f.SnapshotJSON),
		)
	case err == nil:
		_, err = tx.ExecContext(ctx, updateFarmSQL,
			f.Slug, f.Name, f.City, f.Region,
			valF64(f.Lat), valF64(f.Lon), f.PlaceID,
			string(cats), string(svcs), string(content), string(f.SnapshotJSON),
			f.ZohoID,
		)
	default:
		return err
	}
	if err != nil {
		if isDuplicateKey(err) {
			return domain.ErrSlugTaken
		}
		return err
	}
	return tx.Commit()
}

// isDuplicateKey matches MySQL error 1062. On the insert path this can also
// be a primary-key duplicate from a same-id creation race; re-resolving
// handles both identically, so no distinction is made.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func (r *Repo) GetByID(ctx context.Context, zohoID string) (domain.Farm, error) {
	return r.scanFarm(r.db.QueryRowContext(ctx, getByIDSQL, zohoID))
}

func (r *Repo) GetBySlug(ctx context.Context, slug string) (domain.Farm, error) {
	return r.scanFarm(r.db.QueryRowContext(ctx, getBySlugSQL, slug))
}

func (r *Repo) scanFarm(row *sql.Row) (domain.Farm, error) {
	var f domain.Farm
	var lat, lon sql.NullFloat64
	var catsJSON, svcsJSON, contentJSON, snapJSON []byte

	if err := row.Scan(
		&f.ZohoID, &f.Slug, &f.Name, &f.City, &f.Region,
		&lat, &lon, &f.PlaceID,
		&catsJSON, &svcsJSON, &contentJSON, &snapJSON,
		&f.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Farm{}, domain.ErrNotFound
		}
		return domain.Farm{}, err
	}

	if lat.Valid {
		v := lat.Float64
		f.Lat = &v
	}
	if lon.Valid {
		v := lon.Float64
		f.Lon = &v
	}
	_ = json.Unmarshal(catsJSON, &f.Categories)
	_ = json.Unmarshal(svcsJSON, &f.Services)
	_ = json.Unmarshal(contentJSON, &f.Content)
	if len(snapJSON) > 0 {
		f.SnapshotJSON = append([]byte(nil), snapJSON...)
	}
	return f, nil
}

func (r *Repo) LogDelivery(ctx context.Context, d domain.DeliveryLog) error {
	_, err := r.db.ExecContext(ctx, insertDeliveryLogSQL,
		d.ZohoID, d.Slug, string(d.Change), d.ContentPushed, d.RebuildFired, d.Note)
	return err
}
