package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested restaurant does not exist for the
// tenant or is not accepting orders.
var ErrNotFound = errors.New("restaurant not found")

// Restaurant is a tenant's kitchen that accepts delivery orders.
type Restaurant struct {
	ID          string
	TenantID    string
	Name        string
	DeliveryFee decimal.Decimal
	// PrepMinutes is the default estimated time to delivery for new orders.
	PrepMinutes int
	Active      bool
}

// MenuItem is a dish a restaurant sells.
type MenuItem struct {
	ID           string
	RestaurantID string
	Name         string
	Category     string
	Price        decimal.Decimal
	Variants     []Variant
}

// Variant is a selectable option of a menu item, priced as a delta over the
// item's base price.
type Variant struct {
	ID         string          `json:"id"`
	Group      string          `json:"group"`
	Name       string          `json:"name"`
	PriceDelta decimal.Decimal `json:"price_delta"`
}

// Variant returns the item's variant with the given id.
func (m MenuItem) Variant(id string) (Variant, bool) {
	for _, v := range m.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// Repository defines read operations for restaurants and their menus.
type Repository interface {
	GetRestaurant(ctx context.Context, tenantID, id string) (*Restaurant, error)
	// GetMenuItems returns the restaurant's items matching ids. Unknown ids are
	// omitted from the result.
	GetMenuItems(ctx context.Context, restaurantID string, ids []string) ([]MenuItem, error)
}
