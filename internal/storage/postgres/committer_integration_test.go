//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/delivery-admin/internal/domain/order"
	"github.com/xenking/delivery-admin/internal/event"
	"github.com/xenking/delivery-admin/internal/uow"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "delivery",
				"POSTGRES_PASSWORD": "delivery",
				"POSTGRES_DB":       "delivery",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(pg); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := pg.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://delivery:delivery@%s:%s/delivery?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	return m.Run()
}

type recordingBus struct {
	published []event.Event
}

func (b *recordingBus) PublishRange(_ context.Context, events []event.Event) error {
	b.published = append(b.published, events...)
	return nil
}

func placeTestOrder(t *testing.T, id string) *order.Order {
	t.Helper()
	o, err := order.Place(order.PlaceParams{
		ID:              id,
		TenantID:        "tenant-it",
		CustomerID:      "cust-1",
		RestaurantID:    "rest-1",
		DeliveryAddress: "1 Main St",
		Items: []order.LineItem{
			{MenuItemID: "m1", Name: "Margherita", Quantity: 1, UnitPrice: decimal.RequireFromString("9.00")},
		},
		DeliveryFee: decimal.RequireFromString("2.00"),
	}, time.Now())
	require.NoError(t, err)
	return o
}

func countOrders(t *testing.T, ctx context.Context, id string) int {
	t.Helper()
	var n int
	require.NoError(t, testPool.QueryRow(ctx,
		`SELECT count(*) FROM orders WHERE tenant_id = $1 AND external_id = $2`, "tenant-it", id,
	).Scan(&n))
	return n
}

func TestCommit_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)
	work := uow.New(NewCommitter(testPool))
	bus := &recordingBus{}

	existing := placeTestOrder(t, "ord-existing")
	require.NoError(t, work.SaveChanges(ctx, bus, existing))

	// Two copies of the same stored order; the first one wins.
	fresh, err := repo.Get(ctx, "tenant-it", "ord-existing")
	require.NoError(t, err)
	stale, err := repo.Get(ctx, "tenant-it", "ord-existing")
	require.NoError(t, err)

	require.NoError(t, fresh.Confirm(time.Now()))
	require.NoError(t, work.SaveChanges(ctx, bus, fresh))
	require.Len(t, bus.published, 1)

	require.NoError(t, stale.Cancel(time.Now(), "duplicate"))
	newOrder := placeTestOrder(t, "ord-new")
	require.NoError(t, newOrder.Confirm(time.Now()))

	err = work.SaveChanges(ctx, bus, newOrder, stale)
	require.Error(t, err)
	assert.ErrorIs(t, err, uow.ErrPersistence)
	assert.ErrorIs(t, err, order.ErrConcurrentUpdate)

	// The insert of the new order was rolled back with the stale update.
	assert.Zero(t, countOrders(t, ctx, "ord-new"))
	var events int
	require.NoError(t, testPool.QueryRow(ctx,
		`SELECT count(*) FROM order_events WHERE event_id = $1`, newOrder.PendingEvents()[0].EventID(),
	).Scan(&events))
	assert.Zero(t, events)

	// Nothing was applied to the in-memory aggregates or published.
	assert.True(t, newOrder.IsNew())
	assert.Len(t, newOrder.PendingEvents(), 1)
	assert.Len(t, stale.PendingEvents(), 1)
	assert.Len(t, bus.published, 1)

	stored, err := repo.Get(ctx, "tenant-it", "ord-existing")
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, stored.Status())
	assert.Equal(t, 2, stored.Version())

	// Retrying without the stale order commits the new one.
	require.NoError(t, work.SaveChanges(ctx, bus, newOrder))
	assert.False(t, newOrder.IsNew())
	assert.Equal(t, 1, countOrders(t, ctx, "ord-new"))
	require.Len(t, bus.published, 2)
	assert.Equal(t, order.KindConfirmed, bus.published[1].Kind())
}

func TestCommit_DuplicateIdentity(t *testing.T) {
	ctx := context.Background()
	work := uow.New(NewCommitter(testPool))
	bus := &recordingBus{}

	require.NoError(t, work.SaveChanges(ctx, bus, placeTestOrder(t, "ord-dup")))

	err := work.SaveChanges(ctx, bus, placeTestOrder(t, "ord-dup"))
	require.Error(t, err)
	assert.ErrorIs(t, err, uow.ErrPersistence)
	assert.True(t, errors.Is(err, ErrConcurrentUpdate))
	assert.Equal(t, 1, countOrders(t, ctx, "ord-dup"))
}
