package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"restaurantintel/backend/internal/analytics"
	"restaurantintel/backend/internal/bizdate"
	"restaurantintel/backend/internal/domain"
	"restaurantintel/backend/internal/events"
	"restaurantintel/backend/internal/logging"
	"restaurantintel/backend/internal/pos"
	"restaurantintel/backend/internal/store"
	"restaurantintel/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// POSClient is the vendor surface the service depends on. *pos.Client
// satisfies it.
type POSClient interface {
	GetRestaurant(ctx context.Context) (domain.Restaurant, error)
	GetMenus(ctx context.Context) ([]domain.Menu, error)
	GetOrders(ctx context.Context, q pos.OrderQuery) ([]domain.Order, error)
	GetOrder(ctx context.Context, orderGUID string) (domain.Order, error)
	GetCustomers(ctx context.Context) ([]domain.Customer, error)
	GetEmployees(ctx context.Context) ([]domain.Employee, error)
	GetShifts(ctx context.Context, date time.Time) ([]domain.Shift, error)
	GetTimeEntries(ctx context.Context, date time.Time) ([]domain.TimeEntry, error)
	GetConfig(ctx context.Context, kind pos.ConfigResource) ([]domain.ConfigEntity, error)
	GetStockCounts(ctx context.Context) ([]domain.StockCount, error)
	TestConnection(ctx context.Context) (pos.ConnectionReport, error)
	Status() pos.TokenStatus
	Location() *time.Location
}

var _ POSClient = (*pos.Client)(nil)

// ErrStoreUnavailable is returned by persisted-data operations when the
// service runs without a repository.
var ErrStoreUnavailable = errors.New("persistence store not configured")

const (
	dashboardTopItems     = 5
	dashboardRecent       = 10
	dashboardTopItemsDays = 30
	maxDayTransactions    = 10000
	overviewSampleSize    = 3
)

type Service struct {
	pos       POSClient
	repo      store.Repository
	publisher events.Publisher
	logger    *slog.Logger
	loc       *time.Location
	now       func() time.Time
}

func New(client POSClient, repo store.Repository, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	loc := client.Location()
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		pos:       client,
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		loc:       loc,
		now:       time.Now,
	}
}

func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) AuthStatus() pos.TokenStatus {
	return s.pos.Status()
}

func (s *Service) TestConnection(ctx context.Context) (pos.ConnectionReport, error) {
	return s.pos.TestConnection(ctx)
}

func (s *Service) Restaurant(ctx context.Context) (domain.Restaurant, error) {
	return s.pos.GetRestaurant(ctx)
}

// MenuItems flattens every menu's groups into a single item list.
func (s *Service) MenuItems(ctx context.Context) ([]domain.MenuItem, error) {
	menus, err := s.pos.GetMenus(ctx)
	if err != nil {
		return nil, err
	}
	return domain.FlattenMenuItems(menus), nil
}

func (s *Service) Orders(ctx context.Context, q pos.OrderQuery) ([]domain.Order, error) {
	return s.pos.GetOrders(ctx, q)
}

func (s *Service) Order(ctx context.Context, orderGUID string) (domain.Order, error) {
	return s.pos.GetOrder(ctx, orderGUID)
}

func (s *Service) Customers(ctx context.Context) ([]domain.Customer, error) {
	return s.pos.GetCustomers(ctx)
}

func (s *Service) Employees(ctx context.Context) ([]domain.Employee, error) {
	return s.pos.GetEmployees(ctx)
}

func (s *Service) Shifts(ctx context.Context, date time.Time) ([]domain.Shift, error) {
	return s.pos.GetShifts(ctx, date)
}

func (s *Service) TimeEntries(ctx context.Context, date time.Time) ([]domain.TimeEntry, error) {
	return s.pos.GetTimeEntries(ctx, date)
}

func (s *Service) Config(ctx context.Context, kind pos.ConfigResource) ([]domain.ConfigEntity, error) {
	return s.pos.GetConfig(ctx, kind)
}

func (s *Service) StockCounts(ctx context.Context) ([]domain.StockCount, error) {
	return s.pos.GetStockCounts(ctx)
}

// syncCollector gathers per-resource outcomes from concurrent fetches.
type syncCollector struct {
	mu     sync.Mutex
	result *domain.SyncResult
	logger *slog.Logger
}

func (c *syncCollector) fail(ctx context.Context, key string, label string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.Resources[key] = false
	c.result.Errors = append(c.result.Errors, label+": "+pos.Message(err))
	c.logger.WarnContext(ctx, "sync resource failed", slog.String("resource", key), slog.String("error", err.Error()))
}

func (c *syncCollector) succeed(key string, apply func(r *domain.SyncResult)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.Resources[key] = true
	apply(c.result)
}

// SyncAll fetches restaurant, menus, orders, customers and time entries
// concurrently. A failing resource leaves its slice empty and adds an entry to
// Errors; the remaining resources are still returned. The error return is only
// set when ctx ends before the fetches settle.
func (s *Service) SyncAll(ctx context.Context, opts domain.SyncOptions) (domain.SyncResult, error) {
	result := domain.SyncResult{
		Success:     true,
		MenuItems:   []domain.MenuItem{},
		Orders:      []domain.Order{},
		Customers:   []domain.Customer{},
		TimeEntries: []domain.TimeEntry{},
		Resources:   make(map[string]bool, 5),
		Errors:      []string{},
	}
	collect := &syncCollector{result: &result, logger: s.logger}

	laborDate := s.now()
	if opts.Start != nil {
		laborDate = *opts.Start
	}

	// Goroutines never return an error so every fetch runs to completion.
	var g errgroup.Group
	g.Go(func() error {
		restaurant, err := s.pos.GetRestaurant(ctx)
		if err != nil {
			collect.fail(ctx, "restaurant", "Restaurant", err)
			return nil
		}
		collect.succeed("restaurant", func(r *domain.SyncResult) { r.Restaurant = &restaurant })
		return nil
	})
	g.Go(func() error {
		menus, err := s.pos.GetMenus(ctx)
		if err != nil {
			collect.fail(ctx, "menus", "Menus", err)
			return nil
		}
		items := domain.FlattenMenuItems(menus)
		collect.succeed("menus", func(r *domain.SyncResult) { r.MenuItems = items })
		return nil
	})
	g.Go(func() error {
		orders, err := s.pos.GetOrders(ctx, pos.OrderQuery{Start: opts.Start, End: opts.End, PageSize: opts.PageSize})
		if err != nil {
			collect.fail(ctx, "orders", "Orders", err)
			return nil
		}
		collect.succeed("orders", func(r *domain.SyncResult) { r.Orders = orders })
		return nil
	})
	g.Go(func() error {
		customers, err := s.pos.GetCustomers(ctx)
		if err != nil {
			collect.fail(ctx, "customers", "Customers", err)
			return nil
		}
		collect.succeed("customers", func(r *domain.SyncResult) { r.Customers = customers })
		return nil
	})
	g.Go(func() error {
		entries, err := s.pos.GetTimeEntries(ctx, laborDate)
		if err != nil {
			collect.fail(ctx, "timeEntries", "TimeEntries", err)
			return nil
		}
		collect.succeed("timeEntries", func(r *domain.SyncResult) { r.TimeEntries = entries })
		return nil
	})
	_ = g.Wait()

	sort.Strings(result.Errors)
	if len(result.Errors) == len(result.Resources) {
		result.Success = false
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// SyncAndPersist runs SyncAll, upserts what was fetched, records the run and
// publishes a completion event. Persistence failures are reported in the
// summary alongside fetch failures.
func (s *Service) SyncAndPersist(ctx context.Context, opts domain.SyncOptions) (domain.SyncSummary, error) {
	if s.repo == nil {
		return domain.SyncSummary{}, ErrStoreUnavailable
	}
	started := s.now()

	result, err := s.SyncAll(ctx, opts)
	if err != nil {
		return domain.SyncSummary{}, err
	}

	summary := domain.SyncSummary{
		RunID:     xid.New("sync"),
		Success:   result.Success,
		Resources: result.Resources,
		Counts: map[string]int{
			"menuItems":   len(result.MenuItems),
			"orders":      len(result.Orders),
			"customers":   len(result.Customers),
			"timeEntries": len(result.TimeEntries),
		},
		Errors: append([]string{}, result.Errors...),
	}

	if result.Restaurant == nil {
		summary.Errors = append(summary.Errors, "Persist: restaurant unavailable, nothing stored")
	} else {
		s.persist(ctx, result, &summary)
	}

	finished := s.now()
	summary.Duration = finished.Sub(started).Round(time.Millisecond).String()
	s.recordRun(ctx, summary, opts, started, finished)
	s.publishCompleted(ctx, summary, finished)
	return summary, nil
}

func (s *Service) persist(ctx context.Context, result domain.SyncResult, summary *domain.SyncSummary) {
	now := s.now().UTC()
	restaurant, err := s.repo.UpsertRestaurant(ctx, store.RestaurantFromVendor(*result.Restaurant, now))
	if err != nil {
		summary.Errors = append(summary.Errors, "Persist restaurant: "+err.Error())
		return
	}
	summary.Restaurant = restaurant.ID

	var (
		mu                   sync.Mutex
		items, txs, customer int
	)
	fail := func(label string, err error) {
		mu.Lock()
		defer mu.Unlock()
		summary.Errors = append(summary.Errors, "Persist "+label+": "+err.Error())
	}

	var g errgroup.Group
	g.Go(func() error {
		n, err := s.repo.UpsertMenuItems(ctx, store.MenuItemsFromVendor(restaurant.ID, result.MenuItems, now))
		if err != nil {
			fail("menu items", err)
			return nil
		}
		items = n
		return nil
	})
	g.Go(func() error {
		n, err := s.repo.UpsertTransactions(ctx, store.TransactionsFromVendor(restaurant.ID, result.Orders, s.loc, now))
		if err != nil {
			fail("transactions", err)
			return nil
		}
		txs = n
		return nil
	})
	g.Go(func() error {
		n, err := s.repo.UpsertCustomers(ctx, store.CustomersFromVendor(restaurant.ID, result.Customers, now))
		if err != nil {
			fail("customers", err)
			return nil
		}
		customer = n
		return nil
	})
	_ = g.Wait()

	summary.Counts["persistedMenuItems"] = items
	summary.Counts["persistedTransactions"] = txs
	summary.Counts["persistedCustomers"] = customer
}

func (s *Service) recordRun(ctx context.Context, summary domain.SyncSummary, opts domain.SyncOptions, started, finished time.Time) {
	run := domain.SyncRun{
		ID:           summary.RunID,
		RestaurantID: summary.Restaurant,
		StartedAt:    started.UTC(),
		FinishedAt:   finished.UTC(),
		Success:      summary.Success,
		Resources:    summary.Resources,
		Counts:       summary.Counts,
		Errors:       summary.Errors,
		Metadata:     map[string]string{},
	}
	if actor, ok := ActorFromContext(ctx); ok {
		run.TriggeredBy = actor.Username
	}
	if opts.Start != nil {
		run.Metadata["start"] = opts.Start.UTC().Format(time.RFC3339)
	}
	if opts.End != nil {
		run.Metadata["end"] = opts.End.UTC().Format(time.RFC3339)
	}
	if err := s.repo.RecordSyncRun(ctx, run); err != nil {
		s.logger.ErrorContext(ctx, "record sync run failed", slog.String("run_id", run.ID), slog.String("error", err.Error()))
	}
}

// publishCompleted is best effort; a broker outage must not fail the sync.
func (s *Service) publishCompleted(ctx context.Context, summary domain.SyncSummary, at time.Time) {
	event, err := events.New(events.TypeSyncCompleted, summary.Restaurant, summary, at)
	if err != nil {
		s.logger.ErrorContext(ctx, "build sync event failed", slog.String("error", err.Error()))
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "sync event not published", slog.String("run_id", summary.RunID), slog.String("error", err.Error()))
	}
}

type AnalyticsQuery struct {
	Preset string
	Start  string
	End    string
	TopN   int
}

// Analytics resolves the requested range, pulls the orders in it and folds
// them into a summary.
func (s *Service) Analytics(ctx context.Context, q AnalyticsQuery) (domain.AnalyticsSummary, error) {
	rng := bizdate.ResolveRange(q.Preset, q.Start, q.End, s.now(), s.loc)
	orders, err := s.pos.GetOrders(ctx, pos.OrderQuery{Start: &rng.Start, End: &rng.End})
	if err != nil {
		return domain.AnalyticsSummary{}, err
	}
	return analytics.Compute(orders, rng, analytics.Options{Location: s.loc, TopN: q.TopN}), nil
}

// Overview samples the four headline resources concurrently. Each section
// reports its own outcome.
func (s *Service) Overview(ctx context.Context) domain.Overview {
	var overview domain.Overview

	section := func(count int, sample any, err error) domain.SectionStatus {
		if err != nil {
			return domain.SectionStatus{Error: pos.Message(err)}
		}
		return domain.SectionStatus{Success: true, Count: count, Sample: sample}
	}

	var g errgroup.Group
	g.Go(func() error {
		r, err := s.pos.GetRestaurant(ctx)
		var sample any
		if err == nil {
			sample = map[string]string{"guid": r.GUID, "name": r.DisplayName()}
		}
		overview.Restaurant = section(1, sample, err)
		return nil
	})
	g.Go(func() error {
		items, err := s.MenuItems(ctx)
		names := make([]string, 0, overviewSampleSize)
		for i := 0; i < len(items) && i < overviewSampleSize; i++ {
			names = append(names, items[i].Name)
		}
		overview.Menus = section(len(items), names, err)
		return nil
	})
	g.Go(func() error {
		orders, err := s.pos.GetOrders(ctx, pos.OrderQuery{})
		guids := make([]string, 0, overviewSampleSize)
		for i := 0; i < len(orders) && i < overviewSampleSize; i++ {
			guids = append(guids, orders[i].GUID)
		}
		overview.Orders = section(len(orders), guids, err)
		return nil
	})
	g.Go(func() error {
		customers, err := s.pos.GetCustomers(ctx)
		overview.Customers = section(len(customers), nil, err)
		return nil
	})
	_ = g.Wait()

	overview.FetchedAt = s.now().UTC()
	return overview
}

func (s *Service) ListRestaurants(ctx context.Context) ([]domain.RestaurantRecord, error) {
	if s.repo == nil {
		return nil, ErrStoreUnavailable
	}
	return s.repo.ListRestaurants(ctx)
}

func (s *Service) ListSyncRuns(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	if s.repo == nil {
		return nil, ErrStoreUnavailable
	}
	return s.repo.ListSyncRuns(ctx, limit)
}

// Dashboard summarises persisted data for one restaurant: today's takings in
// the reference zone, customer count, top items over the last 30 days and the
// most recent transactions.
func (s *Service) Dashboard(ctx context.Context, restaurantID string) (domain.Dashboard, error) {
	if s.repo == nil {
		return domain.Dashboard{}, ErrStoreUnavailable
	}
	if _, err := s.repo.GetRestaurant(ctx, restaurantID); err != nil {
		return domain.Dashboard{}, err
	}

	now := s.now()
	dayStart := bizdate.StartOfDay(now, s.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)
	dashboard := domain.Dashboard{
		RestaurantID: restaurantID,
		Date:         dayStart.Format(bizdate.DayLayout),
	}

	var today []domain.TransactionRecord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		today, err = s.repo.ListTransactions(gctx, restaurantID, dayStart, dayEnd, maxDayTransactions)
		if err != nil {
			return fmt.Errorf("today's transactions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		n, err := s.repo.CountCustomers(gctx, restaurantID)
		if err != nil {
			return fmt.Errorf("customer count: %w", err)
		}
		dashboard.CustomerCount = n
		return nil
	})
	g.Go(func() error {
		top, err := s.repo.TopMenuItems(gctx, restaurantID, now.AddDate(0, 0, -dashboardTopItemsDays), dashboardTopItems)
		if err != nil {
			return fmt.Errorf("top items: %w", err)
		}
		dashboard.TopItems = top
		return nil
	})
	g.Go(func() error {
		recent, err := s.repo.ListTransactions(gctx, restaurantID, time.Time{}, dayEnd, dashboardRecent)
		if err != nil {
			return fmt.Errorf("recent transactions: %w", err)
		}
		dashboard.RecentTransactions = recent
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.Dashboard{}, err
	}

	for _, tx := range today {
		dashboard.TodayRevenueCents += tx.TotalCents
	}
	dashboard.TodayTransactions = len(today)
	if dashboard.TodayTransactions > 0 {
		dashboard.AverageTicketCents = dashboard.TodayRevenueCents / int64(dashboard.TodayTransactions)
	}
	if dashboard.TopItems == nil {
		dashboard.TopItems = []domain.TopMenuItem{}
	}
	if dashboard.RecentTransactions == nil {
		dashboard.RecentTransactions = []domain.TransactionRecord{}
	}
	return dashboard, nil
}

// DatabaseStatus reports connectivity and row counts. A failed ping is
// reported as Connected=false together with the error.
func (s *Service) DatabaseStatus(ctx context.Context) (domain.DatabaseStatus, error) {
	if s.repo == nil {
		return domain.DatabaseStatus{}, ErrStoreUnavailable
	}
	if err := s.repo.Ping(ctx); err != nil {
		return domain.DatabaseStatus{}, fmt.Errorf("ping store: %w", err)
	}

	status := domain.DatabaseStatus{Connected: true}
	counts, err := s.repo.CountEntities(ctx)
	if err != nil {
		return status, fmt.Errorf("count entities: %w", err)
	}
	status.Counts = counts

	runs, err := s.repo.ListSyncRuns(ctx, 1)
	if err != nil {
		return status, fmt.Errorf("latest sync run: %w", err)
	}
	if len(runs) > 0 {
		status.Latest = &runs[0]
	}
	return status, nil
}
