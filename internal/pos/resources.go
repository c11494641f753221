package pos

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"restaurantintel/backend/internal/bizdate"
	"restaurantintel/backend/internal/domain"
)

// ConfigResource names one of the restaurant configuration lists.
type ConfigResource string

const (
	TaxRates       ConfigResource = "tax-rates"
	DiningOptions  ConfigResource = "dining-options"
	Tables         ConfigResource = "tables"
	Discounts      ConfigResource = "discounts"
	ServiceCharges ConfigResource = "service-charges"
	RevenueCenters ConfigResource = "revenue-centers"
)

var configPaths = map[ConfigResource]string{
	TaxRates:       "/config/v2/taxRates",
	DiningOptions:  "/config/v2/diningOptions",
	Tables:         "/config/v2/tables",
	Discounts:      "/config/v2/discounts",
	ServiceCharges: "/config/v2/serviceCharges",
	RevenueCenters: "/config/v2/revenueCenters",
}

func ParseConfigResource(raw string) (ConfigResource, bool) {
	r := ConfigResource(raw)
	_, ok := configPaths[r]
	return r, ok
}

// OrderQuery bounds an order fetch. A nil range means the current business day.
type OrderQuery struct {
	Start    *time.Time
	End      *time.Time
	PageSize int
}

func (c *Client) GetRestaurant(ctx context.Context) (domain.Restaurant, error) {
	var restaurant domain.Restaurant
	path := "/restaurants/v1/restaurants/" + url.PathEscape(c.creds.TenantGUID)
	if err := c.get(ctx, "restaurant", path, nil, &restaurant); err != nil {
		return domain.Restaurant{}, err
	}
	return restaurant, nil
}

func (c *Client) GetMenus(ctx context.Context) ([]domain.Menu, error) {
	var payload struct {
		Menus []domain.Menu `json:"menus" validate:"dive"`
	}
	if err := c.get(ctx, "menus", "/menus/v2/menus", nil, &payload); err != nil {
		return nil, err
	}
	if payload.Menus == nil {
		return []domain.Menu{}, nil
	}
	return payload.Menus, nil
}

// GetOrders fetches orders for the query range. A range that falls inside one
// business day is sent as businessDate; longer ranges use startDate/endDate.
// Pages are requested until a short page or the page limit.
func (c *Client) GetOrders(ctx context.Context, q OrderQuery) ([]domain.Order, error) {
	params := c.orderRangeParams(q)
	pageSize := c.pageSize
	if q.PageSize > 0 {
		pageSize = clampPageSize(q.PageSize)
	}
	params.Set("pageSize", strconv.Itoa(pageSize))

	orders := make([]domain.Order, 0)
	for page := 1; page <= c.maxPages; page++ {
		params.Set("page", strconv.Itoa(page))
		var batch []domain.Order
		if err := c.get(ctx, "orders", "/orders/v2/ordersBulk", params, &batch); err != nil {
			return nil, err
		}
		orders = append(orders, batch...)
		if len(batch) < pageSize {
			break
		}
	}
	return orders, nil
}

func (c *Client) orderRangeParams(q OrderQuery) url.Values {
	params := url.Values{}
	start, end := q.Start, q.End
	switch {
	case start == nil && end == nil:
		params.Set("businessDate", bizdate.BusinessDate(c.now(), c.loc))
		return params
	case start == nil:
		start = end
	case end == nil:
		end = start
	}
	if start.After(*end) {
		start, end = end, start
	}
	if bizdate.SameDay(*start, *end, c.loc) {
		params.Set("businessDate", bizdate.BusinessDate(*start, c.loc))
		return params
	}
	params.Set("startDate", bizdate.VendorTimestamp(*start, true, c.loc))
	params.Set("endDate", bizdate.VendorTimestamp(*end, false, c.loc))
	return params
}

func (c *Client) GetOrder(ctx context.Context, orderGUID string) (domain.Order, error) {
	var order domain.Order
	if err := c.get(ctx, "order", "/orders/v2/orders/"+url.PathEscape(orderGUID), nil, &order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (c *Client) GetCustomers(ctx context.Context) ([]domain.Customer, error) {
	customers := make([]domain.Customer, 0)
	if err := c.get(ctx, "customers", "/customers/v1/customers", nil, &customers); err != nil {
		return nil, err
	}
	return customers, nil
}

func (c *Client) GetEmployees(ctx context.Context) ([]domain.Employee, error) {
	employees := make([]domain.Employee, 0)
	if err := c.get(ctx, "employees", "/labor/v1/employees", nil, &employees); err != nil {
		return nil, err
	}
	return employees, nil
}

// GetShifts returns the scheduled shifts of the business day containing date.
func (c *Client) GetShifts(ctx context.Context, date time.Time) ([]domain.Shift, error) {
	params := url.Values{}
	params.Set("startDate", bizdate.VendorTimestamp(date, true, c.loc))
	params.Set("endDate", bizdate.VendorTimestamp(date, false, c.loc))

	shifts := make([]domain.Shift, 0)
	if err := c.get(ctx, "shifts", "/labor/v1/shifts", params, &shifts); err != nil {
		return nil, err
	}
	return shifts, nil
}

func (c *Client) GetTimeEntries(ctx context.Context, date time.Time) ([]domain.TimeEntry, error) {
	params := url.Values{}
	params.Set("businessDate", bizdate.BusinessDate(date, c.loc))

	entries := make([]domain.TimeEntry, 0)
	if err := c.get(ctx, "timeEntries", "/labor/v1/timeEntries", params, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) GetConfig(ctx context.Context, kind ConfigResource) ([]domain.ConfigEntity, error) {
	path, ok := configPaths[kind]
	if !ok {
		return nil, fmt.Errorf("unknown config resource %q", kind)
	}
	entities := make([]domain.ConfigEntity, 0)
	if err := c.get(ctx, string(kind), path, nil, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

func (c *Client) GetTaxRates(ctx context.Context) ([]domain.ConfigEntity, error) {
	return c.GetConfig(ctx, TaxRates)
}

func (c *Client) GetDiningOptions(ctx context.Context) ([]domain.ConfigEntity, error) {
	return c.GetConfig(ctx, DiningOptions)
}

func (c *Client) GetTables(ctx context.Context) ([]domain.ConfigEntity, error) {
	return c.GetConfig(ctx, Tables)
}

func (c *Client) GetDiscounts(ctx context.Context) ([]domain.ConfigEntity, error) {
	return c.GetConfig(ctx, Discounts)
}

func (c *Client) GetServiceCharges(ctx context.Context) ([]domain.ConfigEntity, error) {
	return c.GetConfig(ctx, ServiceCharges)
}

func (c *Client) GetRevenueCenters(ctx context.Context) ([]domain.ConfigEntity, error) {
	return c.GetConfig(ctx, RevenueCenters)
}

func (c *Client) GetStockCounts(ctx context.Context) ([]domain.StockCount, error) {
	counts := make([]domain.StockCount, 0)
	if err := c.get(ctx, "stock", "/stock/v1/inventory", nil, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

type ConnectionReport struct {
	Authenticated  bool      `json:"authenticated"`
	RestaurantGUID string    `json:"restaurantGuid"`
	RestaurantName string    `json:"restaurantName,omitempty"`
	Latency        string    `json:"latency"`
	CheckedAt      time.Time `json:"checkedAt"`
}

// TestConnection logs in and reads the restaurant record.
func (c *Client) TestConnection(ctx context.Context) (ConnectionReport, error) {
	started := c.now()
	report := ConnectionReport{RestaurantGUID: c.creds.TenantGUID, CheckedAt: started}

	if err := c.tokens.EnsureAuthenticated(ctx); err != nil {
		return report, authFailure("authentication", err)
	}
	report.Authenticated = true

	restaurant, err := c.GetRestaurant(ctx)
	if err != nil {
		return report, err
	}
	report.RestaurantName = restaurant.DisplayName()
	report.Latency = c.now().Sub(started).Round(time.Millisecond).String()
	return report, nil
}
