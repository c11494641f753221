package pos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVendor struct {
	t       *testing.T
	mux     *http.ServeMux
	srv     *httptest.Server
	logins  atomic.Int32
	tokenNo atomic.Int32
}

func newFakeVendor(t *testing.T) *fakeVendor {
	t.Helper()
	v := &fakeVendor{t: t, mux: http.NewServeMux()}
	v.mux.HandleFunc(loginPath, func(w http.ResponseWriter, r *http.Request) {
		v.logins.Add(1)
		n := v.tokenNo.Add(1)
		_, _ = fmt.Fprintf(w, `{"token":{"accessToken":"token-%d","expiresIn":3600}}`, n)
	})
	v.srv = httptest.NewServer(v.mux)
	t.Cleanup(v.srv.Close)
	return v
}

func (v *fakeVendor) client(opts ...Option) *Client {
	v.t.Helper()
	opts = append([]Option{WithHTTPClient(v.srv.Client())}, opts...)
	c, err := New(testCredentials(v.srv.URL), opts...)
	require.NoError(v.t, err)
	return c
}

func TestNewRejectsMissingCredentials(t *testing.T) {
	_, err := New(Credentials{BaseURL: "http://vendor"})

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Missing, "client id")
	assert.Contains(t, cfgErr.Missing, "restaurant guid")
}

func TestRequestsCarryAuthAndTenantHeaders(t *testing.T) {
	v := newFakeVendor(t)
	v.mux.HandleFunc("/restaurants/v1/restaurants/rest-guid-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "rest-guid-1", r.Header.Get(tenantHeader))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"guid":"rest-guid-1","general":{"name":"Harbor Grill","timeZone":"America/Los_Angeles"}}`))
	})

	restaurant, err := v.client().GetRestaurant(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Harbor Grill", restaurant.DisplayName())
}

func TestUnauthorizedResponseRetriesOnceWithFreshToken(t *testing.T) {
	v := newFakeVendor(t)
	var calls atomic.Int32
	v.mux.HandleFunc("/labor/v1/employees", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") == "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"token expired"}`))
			return
		}
		_, _ = w.Write([]byte(`[{"guid":"e1","firstName":"Ana"}]`))
	})

	employees, err := v.client().GetEmployees(context.Background())
	require.NoError(t, err)
	require.Len(t, employees, 1)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(2), v.logins.Load())
}

func TestRepeatedUnauthorizedIsNotRetriedForever(t *testing.T) {
	v := newFakeVendor(t)
	var calls atomic.Int32
	v.mux.HandleFunc("/customers/v1/customers", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"restaurant not permitted"}`))
	})

	_, err := v.client().GetCustomers(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, "restaurant not permitted", Message(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestVendorErrorBodiesAreNormalized(t *testing.T) {
	v := newFakeVendor(t)
	v.mux.HandleFunc("/config/v2/taxRates", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad page"},{"message":"bad size"}]}`))
	})
	v.mux.HandleFunc("/config/v2/tables", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`plain denial`))
	})
	c := v.client()

	_, err := c.GetTaxRates(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "bad page; bad size", apiErr.Message)
	assert.Equal(t, "tax-rates", apiErr.Resource)

	_, err = c.GetTables(context.Background())
	assert.Equal(t, "plain denial", Message(err))
}

func TestGetOrderNotFound(t *testing.T) {
	v := newFakeVendor(t)
	v.mux.HandleFunc("/orders/v2/orders/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Order not found"}`, http.StatusNotFound)
	})

	_, err := v.client().GetOrder(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
}

func TestGetOrdersUsesBusinessDateForSingleDay(t *testing.T) {
	v := newFakeVendor(t)
	v.mux.HandleFunc("/orders/v2/ordersBulk", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "20240515", q.Get("businessDate"))
		assert.Empty(t, q.Get("startDate"))
		assert.Equal(t, "1", q.Get("page"))
		assert.Equal(t, "100", q.Get("pageSize"))
		_, _ = w.Write([]byte(`[{"guid":"o1","businessDate":20240515}]`))
	})
	clock := newFakeClock()
	c := v.client(WithClock(clock.Now))

	loc := c.Location()
	start := time.Date(2024, 5, 15, 9, 0, 0, 0, loc)
	end := time.Date(2024, 5, 15, 21, 0, 0, 0, loc)
	orders, err := c.GetOrders(context.Background(), OrderQuery{Start: &start, End: &end})
	require.NoError(t, err)
	require.Len(t, orders, 1)

	// No range means the clock's business day in the reference zone.
	orders, err = c.GetOrders(context.Background(), OrderQuery{})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestGetOrdersUsesTimestampsAcrossDays(t *testing.T) {
	v := newFakeVendor(t)
	v.mux.HandleFunc("/orders/v2/ordersBulk", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Empty(t, q.Get("businessDate"))
		assert.Equal(t, "2024-05-13T00:00:00.000-0700", q.Get("startDate"))
		assert.Equal(t, "2024-05-15T23:59:59.999-0700", q.Get("endDate"))
		_, _ = w.Write([]byte(`[]`))
	})
	c := v.client()

	loc := c.Location()
	start := time.Date(2024, 5, 15, 12, 0, 0, 0, loc)
	end := time.Date(2024, 5, 13, 12, 0, 0, 0, loc)
	orders, err := c.GetOrders(context.Background(), OrderQuery{Start: &start, End: &end})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestGetOrdersPaginatesUntilShortPage(t *testing.T) {
	v := newFakeVendor(t)
	var pages atomic.Int32
	v.mux.HandleFunc("/orders/v2/ordersBulk", func(w http.ResponseWriter, r *http.Request) {
		pages.Add(1)
		assert.Equal(t, "2", r.URL.Query().Get("pageSize"))
		switch r.URL.Query().Get("page") {
		case "1":
			_, _ = w.Write([]byte(`[{"guid":"o1"},{"guid":"o2"}]`))
		case "2":
			_, _ = w.Write([]byte(`[{"guid":"o3"},{"guid":"o4"}]`))
		default:
			_, _ = w.Write([]byte(`[{"guid":"o5"}]`))
		}
	})

	orders, err := v.client(WithPageSize(2)).GetOrders(context.Background(), OrderQuery{})
	require.NoError(t, err)
	assert.Len(t, orders, 5)
	assert.Equal(t, int32(3), pages.Load())
}

func TestGetOrdersStopsAtMaxPages(t *testing.T) {
	v := newFakeVendor(t)
	var pages atomic.Int32
	v.mux.HandleFunc("/orders/v2/ordersBulk", func(w http.ResponseWriter, r *http.Request) {
		n := pages.Add(1)
		_, _ = fmt.Fprintf(w, `[{"guid":"o%d"}]`, n)
	})

	orders, err := v.client(WithPageSize(1), WithMaxPages(3)).GetOrders(context.Background(), OrderQuery{})
	require.NoError(t, err)
	assert.Len(t, orders, 3)
	assert.Equal(t, int32(3), pages.Load())
}

func TestMalformedRecordsFailValidation(t *testing.T) {
	v := newFakeVendor(t)
	v.mux.HandleFunc("/orders/v2/ordersBulk", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"guid":"o1"},{"displayNumber":"42"}]`))
	})
	v.mux.HandleFunc("/menus/v2/menus", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"menus":[{"guid":"m1","menuGroups":[{"guid":"g1","menuItems":[{"name":"no guid"}]}]}]}`))
	})
	c := v.client()

	_, err := c.GetOrders(context.Background(), OrderQuery{})
	require.Error(t, err)
	assert.Contains(t, Message(err), "invalid orders response")
	assert.Contains(t, Message(err), "record 1")

	_, err = c.GetMenus(context.Background())
	require.Error(t, err)
	assert.Contains(t, Message(err), "invalid menus response")
}

func TestUndecodableBodyIsAnAPIError(t *testing.T) {
	v := newFakeVendor(t)
	v.mux.HandleFunc("/stock/v1/inventory", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>gateway</html>`))
	})

	_, err := v.client().GetStockCounts(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, strings.HasPrefix(apiErr.Message, "invalid stock response"))
}

func TestCircuitOpensAfterServerErrors(t *testing.T) {
	v := newFakeVendor(t)
	var calls atomic.Int32
	v.mux.HandleFunc("/labor/v1/employees", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c := v.client(WithBreakerThreshold(2, time.Minute))

	for i := 0; i < 2; i++ {
		_, err := c.GetEmployees(context.Background())
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	}

	_, err := c.GetEmployees(context.Background())
	require.Error(t, err)
	assert.Contains(t, Message(err), "circuit open")
	assert.Equal(t, int32(2), calls.Load())
}

func TestTimeoutMapsToAPIError(t *testing.T) {
	v := newFakeVendor(t)
	v.mux.HandleFunc("/labor/v1/shifts", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`[]`))
	})
	c := v.client(WithTimeout(50 * time.Millisecond))

	_, err := c.GetShifts(context.Background(), time.Now())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 0, apiErr.Status)
}

func TestGetTimeEntriesSendsBusinessDate(t *testing.T) {
	v := newFakeVendor(t)
	v.mux.HandleFunc("/labor/v1/timeEntries", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "20240514", r.URL.Query().Get("businessDate"))
		_, _ = w.Write([]byte(`[{"guid":"te1","businessDate":"20240514","regularHours":7.5}]`))
	})
	c := v.client()

	// 03:00 UTC on the 15th is still the 14th on the west coast.
	entries, err := c.GetTimeEntries(context.Background(), time.Date(2024, 5, 15, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 7.5, entries[0].RegularHours)
}

func TestUnknownConfigResource(t *testing.T) {
	v := newFakeVendor(t)
	_, err := v.client().GetConfig(context.Background(), ConfigResource("menus"))
	assert.Error(t, err)

	_, ok := ParseConfigResource("service-charges")
	assert.True(t, ok)
}

func TestTestConnectionReportsRestaurant(t *testing.T) {
	v := newFakeVendor(t)
	v.mux.HandleFunc("/restaurants/v1/restaurants/rest-guid-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"guid":"rest-guid-1","general":{"locationName":"Downtown"}}`))
	})

	report, err := v.client().TestConnection(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Authenticated)
	assert.Equal(t, "Downtown", report.RestaurantName)
}

func TestAuthFailureSurfacesAsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid client"}`))
	}))
	defer srv.Close()

	c, err := New(testCredentials(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = c.GetCustomers(context.Background())
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, Message(err), "invalid client")
}
