package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"restaurantintel/backend/internal/bizdate"
	"restaurantintel/backend/internal/domain"
	"restaurantintel/backend/internal/pos"
	"restaurantintel/backend/internal/service"
)

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := a.service.AuthStatus()
	writeData(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"uptime":        time.Since(a.started).Round(time.Second).String(),
		"posTokenValid": status.TokenValid,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

// handleDebugConfig shows which vendor settings are present without exposing
// secret values.
func (a *API) handleDebugConfig(w http.ResponseWriter, _ *http.Request) {
	status := a.service.AuthStatus()
	writeData(w, http.StatusOK, map[string]any{
		"clientId":          status.ClientID,
		"restaurantGuid":    status.RestaurantGUID,
		"baseUrl":           status.BaseURL,
		"authUrl":           status.AuthURL,
		"secretsConfigured": status.SecretsConfigured,
		"timezone":          a.service.Location().String(),
	})
}

func (a *API) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.TestConnection(r.Context())
	if err != nil {
		writeVendorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		Message:   "connected to POS vendor",
		Data:      report,
		Timestamp: timestamp(),
	})
}

func (a *API) handleAuthStatus(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, a.service.AuthStatus())
}

func (a *API) handleRestaurant(w http.ResponseWriter, r *http.Request) {
	restaurant, err := a.service.Restaurant(r.Context())
	if err != nil {
		writeVendorError(w, err)
		return
	}
	writeData(w, http.StatusOK, restaurant)
}

func (a *API) handleMenuItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.MenuItems(r.Context())
	if err != nil {
		writeVendorError(w, err)
		return
	}
	writeList(w, items)
}

// handleOrders accepts startDate/endDate or a single businessDate. Without
// any of them, or with dates that do not parse, the current business day is
// used.
func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := pos.OrderQuery{PageSize: parsePositiveLimit(query.Get("pageSize"), 0, 100)}

	if raw := strings.TrimSpace(query.Get("businessDate")); raw != "" {
		day := a.dayOrToday(r, raw)
		q.Start, q.End = &day, &day
	} else {
		q.Start = a.optionalDay(r, query.Get("startDate"))
		q.End = a.optionalDay(r, query.Get("endDate"))
	}

	orders, err := a.service.Orders(r.Context(), q)
	if err != nil {
		writeVendorError(w, err)
		return
	}
	writeList(w, orders)
}

func (a *API) handleOrder(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		writeError(w, http.StatusBadRequest, errors.New("order id is required"))
		return
	}
	order, err := a.service.Order(r.Context(), orderID)
	if err != nil {
		writeVendorError(w, err)
		return
	}
	writeData(w, http.StatusOK, order)
}

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.service.Customers(r.Context())
	if err != nil {
		writeVendorError(w, err)
		return
	}
	writeList(w, customers)
}

func (a *API) handleEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := a.service.Employees(r.Context())
	if err != nil {
		writeVendorError(w, err)
		return
	}
	writeList(w, employees)
}

func (a *API) handleShifts(w http.ResponseWriter, r *http.Request) {
	date := a.dayOrToday(r, r.URL.Query().Get("date"))
	shifts, err := a.service.Shifts(r.Context(), date)
	if err != nil {
		writeVendorError(w, err)
		return
	}
	writeList(w, shifts)
}

func (a *API) handleTimeEntries(w http.ResponseWriter, r *http.Request) {
	date := a.dayOrToday(r, r.URL.Query().Get("date"))
	entries, err := a.service.TimeEntries(r.Context(), date)
	if err != nil {
		writeVendorError(w, err)
		return
	}
	writeList(w, entries)
}

func (a *API) handleConfig(w http.ResponseWriter, r *http.Request) {
	kind, ok := pos.ParseConfigResource(chi.URLParam(r, "resource"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown config resource %q", chi.URLParam(r, "resource")))
		return
	}
	entities, err := a.service.Config(r.Context(), kind)
	if err != nil {
		writeVendorError(w, err)
		return
	}
	writeList(w, entities)
}

func (a *API) handleStock(w http.ResponseWriter, r *http.Request) {
	counts, err := a.service.StockCounts(r.Context())
	if err != nil {
		writeVendorError(w, err)
		return
	}
	writeList(w, counts)
}

func (a *API) handleOverview(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, a.service.Overview(r.Context()))
}

func (a *API) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	summary, err := a.service.Analytics(r.Context(), service.AnalyticsQuery{
		Preset: query.Get("preset"),
		Start:  query.Get("startDate"),
		End:    query.Get("endDate"),
		TopN:   parsePositiveLimit(query.Get("topN"), 0, 50),
	})
	if err != nil {
		writeVendorError(w, err)
		return
	}
	writeData(w, http.StatusOK, summary)
}

type syncRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	PageSize  int    `json:"pageSize"`
	Persist   *bool  `json:"persist"`
}

// handleSync fetches every resource and, unless persist is false, writes the
// result to the store. Partial vendor failures still answer 200 with the
// failing resources listed in errors.
func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	opts := domain.SyncOptions{
		Start:    a.optionalDay(r, req.StartDate),
		End:      a.optionalDay(r, req.EndDate),
		PageSize: req.PageSize,
	}

	if req.Persist != nil && !*req.Persist {
		result, err := a.service.SyncAll(r.Context(), opts)
		if err != nil {
			writeError(w, http.StatusGatewayTimeout, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{Success: result.Success, Data: result, Timestamp: timestamp()})
		return
	}

	summary, err := a.service.SyncAndPersist(r.Context(), opts)
	if err != nil {
		if errors.Is(err, service.ErrStoreUnavailable) {
			writeStoreError(w, err)
			return
		}
		writeError(w, http.StatusGatewayTimeout, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: summary.Success, Data: summary, Timestamp: timestamp()})
}

func (a *API) handleSyncRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := a.service.ListSyncRuns(r.Context(), parsePositiveLimit(r.URL.Query().Get("limit"), 20, 100))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeList(w, runs)
}

func (a *API) handleRestaurants(w http.ResponseWriter, r *http.Request) {
	restaurants, err := a.service.ListRestaurants(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeList(w, restaurants)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := a.service.Dashboard(r.Context(), chi.URLParam(r, "restaurantID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeData(w, http.StatusOK, dashboard)
}

// handleDatabaseStatus reports store connectivity. An unreachable store is a
// 503 rather than a 500 so operators see the reason.
func (a *API) handleDatabaseStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.service.DatabaseStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		Message:   "database connected",
		Data:      status,
		Timestamp: timestamp(),
	})
}

// optionalDay parses a caller-supplied day. Empty input means no bound;
// input that does not parse falls back to today rather than failing the
// request.
func (a *API) optionalDay(r *http.Request, raw string) *time.Time {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	day, err := bizdate.ParseDay(raw, a.service.Location())
	if err != nil {
		a.logger.WarnContext(r.Context(), "unparseable date, using today",
			slog.String("input", raw),
			slog.String("error", err.Error()),
		)
		today := bizdate.StartOfDay(time.Now(), a.service.Location())
		return &today
	}
	return &day
}

func (a *API) dayOrToday(r *http.Request, raw string) time.Time {
	if day := a.optionalDay(r, raw); day != nil {
		return *day
	}
	return time.Now().In(a.service.Location())
}
