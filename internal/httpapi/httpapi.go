package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"restaurantintel/backend/internal/cache"
	"restaurantintel/backend/internal/logging"
	"restaurantintel/backend/internal/pos"
	"restaurantintel/backend/internal/service"
	"restaurantintel/backend/internal/store"
)

const (
	loginRateLimit  = 5
	loginRateWindow = time.Minute
)

var (
	errTooManyRequests = errors.New("too many requests, please try again later")
	errMissingBearer   = errors.New("missing bearer token")
)

type Options struct {
	AllowedOrigin   string
	Counter         cache.Counter
	RateLimitMax    int
	RateLimitWindow time.Duration
	Logger          *slog.Logger
}

type API struct {
	service         *service.Service
	auth            *AuthManager
	allowedOrigin   string
	counter         cache.Counter
	rateLimitMax    int
	rateLimitWindow time.Duration
	logger          *slog.Logger
	started         time.Time
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Counter == nil {
		opts.Counter = cache.NewMemoryCounter()
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = 15 * time.Minute
	}
	return &API{
		service:         svc,
		auth:            auth,
		allowedOrigin:   opts.AllowedOrigin,
		counter:         opts.Counter,
		rateLimitMax:    opts.RateLimitMax,
		rateLimitWindow: opts.RateLimitWindow,
		logger:          opts.Logger,
		started:         time.Now(),
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(a.recoverer)
	r.Use(a.securityHeaders)
	r.Use(chimw.Compress(5))
	r.Use(a.requestLogging)
	r.Use(prometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.With(a.rateLimit("login", loginRateLimit, loginRateWindow)).
		Post("/api/v1/auth/login", a.handleLogin)

	r.Route("/api", func(r chi.Router) {
		r.Use(a.rateLimit("api", a.rateLimitMax, a.rateLimitWindow))
		r.Use(a.requireAuth)

		r.Route("/toast", func(r chi.Router) {
			r.Get("/debug-config", a.handleDebugConfig)
			r.Get("/test-connection", a.handleTestConnection)
			r.Get("/auth-status", a.handleAuthStatus)
			r.Get("/restaurant", a.handleRestaurant)
			r.Get("/menu-items", a.handleMenuItems)
			r.Get("/orders", a.handleOrders)
			r.Get("/orders/{orderID}", a.handleOrder)
			r.Get("/customers", a.handleCustomers)
			r.Get("/employees", a.handleEmployees)
			r.Get("/shifts", a.handleShifts)
			r.Get("/time-entries", a.handleTimeEntries)
			r.Get("/config/{resource}", a.handleConfig)
			r.Get("/stock", a.handleStock)
			r.Get("/overview", a.handleOverview)
			r.Get("/analytics", a.handleAnalytics)
			r.Get("/sync-runs", a.handleSyncRuns)
			r.With(requireRole("admin")).Post("/sync", a.handleSync)
		})

		r.Get("/restaurants", a.handleRestaurants)
		r.Get("/analytics/dashboard/{restaurantID}", a.handleDashboard)
		r.Get("/test-connection", a.handleDatabaseStatus)
	})

	return r
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errMissingBearer)
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok || !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

// envelope is the response shape shared by every route.
type envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Count     *int   `json:"count,omitempty"`
	Timestamp string `json:"timestamp"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data, Timestamp: timestamp()})
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: items, Count: &n, Timestamp: timestamp()})
}

// writeError hides the detail of 500s. Everything else, including vendor
// failures surfaced as 502, carries its message.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Default().Error("internal error", slog.Int("status", status), slog.String("error", msg))
		msg = "internal server error"
	}
	writeJSON(w, status, envelope{Success: false, Error: msg, Timestamp: timestamp()})
}

// writeVendorError maps a failed vendor call: a missing order is a 404,
// anything else is a 502 with the vendor's message verbatim.
func writeVendorError(w http.ResponseWriter, err error) {
	if pos.IsNotFound(err) {
		writeError(w, http.StatusNotFound, errors.New(pos.Message(err)))
		return
	}
	writeError(w, http.StatusBadGateway, errors.New(pos.Message(err)))
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, service.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// decodeJSON treats an empty body as "no options".
func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}
