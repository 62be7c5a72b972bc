package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/delivery-admin/internal/domain/catalog"
)

const (
	getRestaurantSQL = `SELECT id, tenant_id, name, delivery_fee, prep_minutes, active
		FROM restaurants WHERE tenant_id = $1 AND id = $2 AND active = TRUE`

	getMenuItemsSQL = `SELECT id, restaurant_id, name, category, price, variants
		FROM menu_items WHERE restaurant_id = $1 AND id = ANY($2) AND available = TRUE`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetRestaurant returns an active restaurant of the tenant.
func (r *CatalogRepository) GetRestaurant(ctx context.Context, tenantID, id string) (*catalog.Restaurant, error) {
	var rest catalog.Restaurant
	err := r.pool.QueryRow(ctx, getRestaurantSQL, tenantID, id).Scan(
		&rest.ID, &rest.TenantID, &rest.Name, &rest.DeliveryFee, &rest.PrepMinutes, &rest.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get restaurant %q", id)
	}
	return &rest, nil
}

// GetMenuItems returns the available menu items of a restaurant matching any
// of the given IDs.
func (r *CatalogRepository) GetMenuItems(ctx context.Context, restaurantID string, ids []string) ([]catalog.MenuItem, error) {
	rows, err := r.pool.Query(ctx, getMenuItemsSQL, restaurantID, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get menu items")
	}
	return pgx.CollectRows(rows, scanMenuItem)
}

func scanMenuItem(row pgx.CollectableRow) (catalog.MenuItem, error) {
	var (
		m        catalog.MenuItem
		variants []byte
	)
	if err := row.Scan(&m.ID, &m.RestaurantID, &m.Name, &m.Category, &m.Price, &variants); err != nil {
		return m, err
	}
	if err := json.Unmarshal(variants, &m.Variants); err != nil {
		return m, errors.Wrapf(err, "decode variants of %q", m.ID)
	}
	return m, nil
}
