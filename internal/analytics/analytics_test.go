package analytics

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurantintel/backend/internal/bizdate"
	"restaurantintel/backend/internal/domain"
)

func la(t *testing.T) *time.Location {
	t.Helper()
	loc, err := bizdate.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	return loc
}

func order(guid string, opened time.Time, total float64, payType string, sels ...domain.Selection) domain.Order {
	return domain.Order{
		GUID:           guid,
		OpenedDate:     domain.VendorTime{Time: opened},
		NumberOfGuests: 2,
		Checks: []domain.Check{{
			GUID:        guid + "-c",
			TotalAmount: total,
			TaxAmount:   total / 10,
			Selections:  sels,
			Payments:    []domain.Payment{{Type: payType, Amount: total, TipAmount: 1}},
		}},
	}
}

func sel(guid, name string, qty float64) domain.Selection {
	return domain.Selection{DisplayName: name, Item: &domain.EntityRef{GUID: guid}, Quantity: qty, Price: qty * 5}
}

func TestComputeEmptyInputIsZeroed(t *testing.T) {
	summary := Compute(nil, bizdate.Range{}, Options{})

	assert.Equal(t, 0, summary.TotalOrders)
	assert.Zero(t, summary.TotalRevenue)
	assert.Zero(t, summary.AverageOrderValue)
	assert.Equal(t, [24]int{}, summary.OrdersByHour)
	assert.Empty(t, summary.TopItems)
	assert.NotNil(t, summary.TopItems)
	assert.Empty(t, summary.PaymentMethodBreakdown)
}

func TestComputeTotalsAndBuckets(t *testing.T) {
	loc := la(t)
	orders := []domain.Order{
		order("o1", time.Date(2024, 5, 15, 12, 10, 0, 0, loc), 20.10, "CREDIT", sel("burger", "Burger", 2)),
		order("o2", time.Date(2024, 5, 15, 12, 45, 0, 0, loc), 10.20, "cash", sel("fries", "Fries", 1)),
		order("o3", time.Date(2024, 5, 15, 19, 0, 0, 0, loc), 30.30, "CREDIT", sel("burger", "Burger", 1)),
	}

	summary := Compute(orders, bizdate.Range{}, Options{Location: loc})

	assert.Equal(t, 3, summary.TotalOrders)
	assert.Equal(t, 60.6, summary.TotalRevenue)
	assert.Equal(t, 20.2, summary.AverageOrderValue)
	assert.Equal(t, 6.06, summary.TotalTax)
	assert.Equal(t, 3.0, summary.TotalTips)
	assert.Equal(t, 6, summary.GuestCount)
	assert.Equal(t, 2, summary.OrdersByHour[12])
	assert.Equal(t, 1, summary.OrdersByHour[19])
	assert.Equal(t, 30.3, summary.RevenueByHour[12])
	assert.Equal(t, domain.PaymentMethodStat{Count: 2, Amount: 50.4}, summary.PaymentMethodBreakdown["CREDIT"])
	assert.Equal(t, domain.PaymentMethodStat{Count: 1, Amount: 10.2}, summary.PaymentMethodBreakdown["CASH"])

	require.Len(t, summary.TopItems, 2)
	assert.Equal(t, "Burger", summary.TopItems[0].Name)
	assert.Equal(t, 3.0, summary.TopItems[0].Quantity)
	assert.Equal(t, 15.0, summary.TopItems[0].Revenue)

	require.Len(t, summary.DailySales, 1)
	assert.Equal(t, "20240515", summary.DailySales[0].BusinessDate)
	assert.Equal(t, 3, summary.DailySales[0].Orders)
}

func TestComputeBucketsInReferenceZone(t *testing.T) {
	loc := la(t)
	// 02:30 UTC is 19:30 the previous evening in Los Angeles.
	o := order("o1", time.Date(2024, 5, 16, 2, 30, 0, 0, time.UTC), 10, "CASH")

	summary := Compute([]domain.Order{o}, bizdate.Range{}, Options{Location: loc})
	assert.Equal(t, 1, summary.OrdersByHour[19])
	assert.Equal(t, "20240515", summary.DailySales[0].BusinessDate)
}

func TestComputeSkipsVoidedAndDeleted(t *testing.T) {
	loc := la(t)
	opened := time.Date(2024, 5, 15, 9, 0, 0, 0, loc)
	voided := order("v", opened, 99, "CASH")
	voided.Voided = true
	deleted := order("d", opened, 99, "CASH")
	deleted.Deleted = true
	partial := order("p", opened, 10, "CASH", domain.Selection{DisplayName: "Soup", Quantity: 1, Voided: true})
	partial.Checks = append(partial.Checks, domain.Check{GUID: "voided-check", Voided: true, TotalAmount: 50})

	summary := Compute([]domain.Order{voided, deleted, partial}, bizdate.Range{}, Options{Location: loc})
	assert.Equal(t, 1, summary.TotalOrders)
	assert.Equal(t, 10.0, summary.TotalRevenue)
	assert.Empty(t, summary.TopItems)
}

func TestTopItemsKeepFirstSeenOrderOnTies(t *testing.T) {
	loc := la(t)
	opened := time.Date(2024, 5, 15, 9, 0, 0, 0, loc)
	orders := []domain.Order{
		order("o1", opened, 5, "CASH", sel("tea", "Tea", 1), sel("cake", "Cake", 1)),
		order("o2", opened, 5, "CASH", sel("soda", "Soda", 1), sel("pie", "Pie", 3)),
	}

	summary := Compute(orders, bizdate.Range{}, Options{Location: loc, TopN: 3})
	require.Len(t, summary.TopItems, 3)
	assert.Equal(t, []string{"Pie", "Tea", "Cake"}, []string{
		summary.TopItems[0].Name, summary.TopItems[1].Name, summary.TopItems[2].Name,
	})
}

func TestTotalsDoNotDependOnOrder(t *testing.T) {
	loc := la(t)
	base := time.Date(2024, 5, 15, 8, 0, 0, 0, loc)
	orders := make([]domain.Order, 0, 40)
	for i := 0; i < 40; i++ {
		orders = append(orders, order(
			"o", base.Add(time.Duration(i)*17*time.Minute), 0.1*float64(i+1)+0.07, "CREDIT",
		))
	}
	want := Compute(orders, bizdate.Range{}, Options{Location: loc})

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5; i++ {
		shuffled := append([]domain.Order(nil), orders...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := Compute(shuffled, bizdate.Range{}, Options{Location: loc})
		assert.Equal(t, want.TotalRevenue, got.TotalRevenue)
		assert.Equal(t, want.TotalOrders, got.TotalOrders)
		assert.Equal(t, want.OrdersByHour, got.OrdersByHour)
	}
}

func TestCustomerCountIsDistinct(t *testing.T) {
	loc := la(t)
	opened := time.Date(2024, 5, 15, 9, 0, 0, 0, loc)
	a := order("a", opened, 5, "CASH")
	a.Checks[0].Customer = &domain.CheckCustomer{GUID: "cust-1"}
	b := order("b", opened, 5, "CASH")
	b.Checks[0].Customer = &domain.CheckCustomer{GUID: "cust-1"}
	c := order("c", opened, 5, "CASH")
	c.Checks[0].Customer = &domain.CheckCustomer{GUID: "cust-2"}

	summary := Compute([]domain.Order{a, b, c}, bizdate.Range{}, Options{Location: loc})
	assert.Equal(t, 2, summary.CustomerCount)
}
