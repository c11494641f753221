package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"restaurantintel/backend/internal/domain"
	"restaurantintel/backend/internal/store"
)

func TestUpsertRestaurantKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.UpsertRestaurant(ctx, domain.RestaurantRecord{ExternalID: "r-1", Name: "Harbor", Slug: "harbor"})
	require.NoError(t, err)
	second, err := s.UpsertRestaurant(ctx, domain.RestaurantRecord{ExternalID: "r-1", Name: "Harbor Grill"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "harbor", second.Slug)

	found, err := s.FindRestaurantByExternalID(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "Harbor Grill", found.Name)

	_, err = s.FindRestaurantByExternalID(ctx, "r-2")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	_, err = s.UpsertRestaurant(ctx, domain.RestaurantRecord{Name: "no external id"})
	assert.ErrorIs(t, err, store.ErrInvalidRecord)
}

func TestUpsertChildrenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()

	items := []domain.MenuItemRecord{{RestaurantID: "rst-1", ExternalID: "i-1", Name: "Soup"}}
	_, err := s.UpsertMenuItems(ctx, items)
	require.NoError(t, err)
	items[0].Name = "Tomato Soup"
	_, err = s.UpsertMenuItems(ctx, items)
	require.NoError(t, err)

	_, err = s.UpsertCustomers(ctx, []domain.CustomerRecord{{RestaurantID: "rst-1", ExternalID: "c-1"}})
	require.NoError(t, err)

	counts, err := s.CountEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.MenuItems)
	assert.Equal(t, 1, counts.Customers)

	n, err := s.CountCustomers(ctx, "rst-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.UpsertTransactions(ctx, []domain.TransactionRecord{{RestaurantID: "rst-1"}})
	assert.ErrorIs(t, err, store.ErrInvalidRecord)
}

func TestListTransactionsAndTopItems(t *testing.T) {
	ctx := context.Background()
	s := New()
	day := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)

	_, err := s.UpsertTransactions(ctx, []domain.TransactionRecord{
		{RestaurantID: "rst-1", ExternalID: "o-1", TransactionDate: day.Add(9 * time.Hour), TotalCents: 1000,
			Items: []domain.TransactionItem{{Name: "Tea", Quantity: 1, AmountCents: 300}}},
		{RestaurantID: "rst-1", ExternalID: "o-2", TransactionDate: day.Add(12 * time.Hour), TotalCents: 2000,
			Items: []domain.TransactionItem{{Name: "Cake", Quantity: 2, AmountCents: 800}, {Name: "Tea", Quantity: 2, AmountCents: 600}}},
		{RestaurantID: "rst-1", ExternalID: "o-3", TransactionDate: day.Add(-time.Hour), TotalCents: 500},
		{RestaurantID: "rst-2", ExternalID: "o-4", TransactionDate: day.Add(time.Hour), TotalCents: 700},
	})
	require.NoError(t, err)

	txs, err := s.ListTransactions(ctx, "rst-1", day, day.Add(24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "o-2", txs[0].ExternalID)

	top, err := s.TopMenuItems(ctx, "rst-1", day, 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, domain.TopMenuItem{Name: "Tea", Quantity: 3, RevenueCents: 900}, top[0])
}

func TestSyncRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.RecordSyncRun(ctx, domain.SyncRun{ID: "run-1"}))
	require.NoError(t, s.RecordSyncRun(ctx, domain.SyncRun{ID: "run-2"}))
	require.Error(t, s.RecordSyncRun(ctx, domain.SyncRun{}))

	runs, err := s.ListSyncRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-2", runs[0].ID)
}

func TestSeededStoreHasHashedAdmin(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "from-environment")
	s := NewSeeded("s3cret-pass")

	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "admin", users[0].Username)
	assert.NotEqual(t, "s3cret-pass", users[0].Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(users[0].Password), []byte("s3cret-pass")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(users[0].Password), []byte("from-environment")))

	err = s.CreateUser(context.Background(), domain.UserAccount{Username: "Admin", Password: "x"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}
