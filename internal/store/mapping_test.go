package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurantintel/backend/internal/domain"
)

var mappedAt = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "joe-s-bar-grill", Slugify("  Joe's Bar & Grill! "))
	assert.Equal(t, "cafe-42", Slugify("Cafe 42"))
}

func TestRestaurantFromVendor(t *testing.T) {
	rec := RestaurantFromVendor(domain.Restaurant{
		GUID:     "r-1",
		General:  domain.RestaurantGeneral{Name: "Harbor Grill", TimeZone: "America/Los_Angeles"},
		Location: domain.Address{Address1: "1 Pier", City: "Seattle", StateCode: "WA"},
	}, mappedAt)

	assert.Equal(t, "r-1", rec.ExternalID)
	assert.Equal(t, "harbor-grill", rec.Slug)
	assert.Equal(t, "US", rec.Country)
	assert.Equal(t, "toast", rec.POSSystem)
	assert.Equal(t, "WA", rec.State)
}

func TestMenuItemsSkipArchived(t *testing.T) {
	recs := MenuItemsFromVendor("rst-1", []domain.MenuItem{
		{GUID: "a", Name: "Soup", Price: 6.5, Group: "Starters"},
		{GUID: "b", Name: "Old", IsArchived: true},
		{GUID: "c", Name: "Secret", Visibility: "HIDDEN"},
	}, mappedAt)

	require.Len(t, recs, 2)
	assert.Equal(t, int64(650), recs[0].PriceCents)
	assert.Equal(t, "Starters", recs[0].Category)
	assert.Equal(t, "inactive", recs[1].Status)
}

func TestTransactionsFromVendor(t *testing.T) {
	opened := time.Date(2024, 5, 15, 19, 0, 0, 0, time.UTC)
	orders := []domain.Order{
		{
			GUID:              "o-1",
			OpenedDate:        domain.VendorTime{Time: opened},
			RestaurantService: "TAKEOUT",
			Checks: []domain.Check{
				{
					TotalAmount: 21.50, TaxAmount: 1.50,
					Payments:   []domain.Payment{{Type: "CREDIT", Amount: 21.50, TipAmount: 3}},
					Selections: []domain.Selection{{DisplayName: "Burger", Quantity: 1, Price: 20}},
					Customer:   &domain.CheckCustomer{GUID: "cust-1"},
				},
				{TotalAmount: 10, Voided: true},
			},
		},
		{GUID: "o-2", Voided: true},
		{GUID: "o-3", Deleted: true},
		{GUID: "o-4", DiningOption: &domain.EntityRef{Name: "Dine In"}, NumberOfGuests: 4},
	}

	recs := TransactionsFromVendor("rst-1", orders, time.UTC, mappedAt)
	require.Len(t, recs, 2)

	first := recs[0]
	assert.Equal(t, int64(2150), first.TotalCents)
	assert.Equal(t, int64(150), first.TaxCents)
	assert.Equal(t, int64(2000), first.SubtotalCents)
	assert.Equal(t, int64(300), first.TipCents)
	assert.Equal(t, "credit", first.PaymentMethod)
	assert.Equal(t, "takeout", first.OrderType)
	assert.Equal(t, 1, first.GuestCount)
	assert.Equal(t, "cust-1", first.CustomerID)
	assert.Equal(t, "20240515", first.BusinessDate)
	require.Len(t, first.Items, 1)

	second := recs[1]
	assert.Equal(t, "dine_in", second.OrderType)
	assert.Equal(t, "unknown", second.PaymentMethod)
	assert.Equal(t, 4, second.GuestCount)
}

func TestTransactionDateFallsBackToBusinessDate(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	orders := []domain.Order{{GUID: "o-1", BusinessDate: domain.BusinessDate(20240515), Checks: []domain.Check{{TotalAmount: 5}}}}
	recs := TransactionsFromVendor("rst-1", orders, la, mappedAt)

	require.Len(t, recs, 1)
	assert.Equal(t, "20240515", recs[0].BusinessDate)
	assert.Equal(t, time.Date(2024, 5, 15, 7, 0, 0, 0, time.UTC), recs[0].TransactionDate)
}

func TestCustomersNeedEmailOrPhone(t *testing.T) {
	recs := CustomersFromVendor("rst-1", []domain.Customer{
		{GUID: "a", Email: "a@example.com"},
		{GUID: "b", FirstName: "Anonymous"},
		{GUID: "c", Phone: "555-0100"},
	}, mappedAt)

	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].ExternalID)
	assert.Equal(t, "c", recs[1].ExternalID)
}

func TestOrderType(t *testing.T) {
	assert.Equal(t, "delivery", OrderType("DELIVERY"))
	assert.Equal(t, "catering", OrderType("catering"))
	assert.Equal(t, "other", OrderType("DRIVE_THRU"))
	assert.Equal(t, "other", OrderType(""))
}
