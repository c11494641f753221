package memory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"restaurantintel/backend/internal/domain"
	"restaurantintel/backend/internal/store"
	"restaurantintel/backend/internal/xid"
)

type Store struct {
	mu                sync.RWMutex
	restaurantsByID   map[string]domain.RestaurantRecord
	restaurantByExtID map[string]string
	menuItems         map[string]domain.MenuItemRecord
	transactions      map[string]domain.TransactionRecord
	customers         map[string]domain.CustomerRecord
	syncRuns          []domain.SyncRun
	usersByUsername   map[string]domain.UserAccount
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		restaurantsByID:   make(map[string]domain.RestaurantRecord),
		restaurantByExtID: make(map[string]string),
		menuItems:         make(map[string]domain.MenuItemRecord),
		transactions:      make(map[string]domain.TransactionRecord),
		customers:         make(map[string]domain.CustomerRecord),
		usersByUsername:   make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns an empty store with a single "admin" operator account
// using adminPwd. An empty password falls back to a dev default.
func NewSeeded(adminPwd string) *Store {
	s := New()
	s.usersByUsername = seedUsers(adminPwd)
	return s
}

func seedUsers(adminPwd string) map[string]domain.UserAccount {
	if adminPwd == "" {
		adminPwd = "admin123"
		slog.Warn("memory store using default dev credentials; set SEED_ADMIN_PASSWORD to override")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPwd), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("memory store: hash seed password: %v", err))
	}
	return map[string]domain.UserAccount{
		"admin": {
			Username:  "admin",
			Password:  string(hash),
			Role:      "admin",
			Active:    true,
			CreatedAt: time.Now().UTC(),
		},
	}
}

func childKey(restaurantID, externalID string) string {
	return restaurantID + "/" + externalID
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) UpsertRestaurant(_ context.Context, restaurant domain.RestaurantRecord) (domain.RestaurantRecord, error) {
	if strings.TrimSpace(restaurant.ExternalID) == "" {
		return domain.RestaurantRecord{}, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if id, ok := s.restaurantByExtID[restaurant.ExternalID]; ok {
		existing := s.restaurantsByID[id]
		restaurant.ID = existing.ID
		restaurant.CreatedAt = existing.CreatedAt
		if restaurant.Slug == "" {
			restaurant.Slug = existing.Slug
		}
	} else {
		restaurant.ID = xid.New("rst")
		restaurant.CreatedAt = now
	}
	restaurant.UpdatedAt = now
	s.restaurantsByID[restaurant.ID] = restaurant
	s.restaurantByExtID[restaurant.ExternalID] = restaurant.ID
	return restaurant, nil
}

func (s *Store) FindRestaurantByExternalID(_ context.Context, externalID string) (*domain.RestaurantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.restaurantByExtID[externalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	rec := s.restaurantsByID[id]
	return &rec, nil
}

func (s *Store) GetRestaurant(_ context.Context, id string) (*domain.RestaurantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.restaurantsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (s *Store) ListRestaurants(_ context.Context) ([]domain.RestaurantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RestaurantRecord, 0, len(s.restaurantsByID))
	for _, rec := range s.restaurantsByID {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b domain.RestaurantRecord) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) UpsertMenuItems(_ context.Context, items []domain.MenuItemRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if item.RestaurantID == "" || item.ExternalID == "" {
			return 0, store.ErrInvalidRecord
		}
	}
	for _, item := range items {
		key := childKey(item.RestaurantID, item.ExternalID)
		if existing, ok := s.menuItems[key]; ok {
			item.ID = existing.ID
		} else {
			item.ID = xid.New("itm")
		}
		s.menuItems[key] = item
	}
	return len(items), nil
}

func (s *Store) UpsertTransactions(_ context.Context, transactions []domain.TransactionRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range transactions {
		if tx.RestaurantID == "" || tx.ExternalID == "" {
			return 0, store.ErrInvalidRecord
		}
	}
	for _, tx := range transactions {
		key := childKey(tx.RestaurantID, tx.ExternalID)
		if existing, ok := s.transactions[key]; ok {
			tx.ID = existing.ID
		} else {
			tx.ID = xid.New("trx")
		}
		tx.Items = append([]domain.TransactionItem(nil), tx.Items...)
		s.transactions[key] = tx
	}
	return len(transactions), nil
}

func (s *Store) UpsertCustomers(_ context.Context, customers []domain.CustomerRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range customers {
		if c.RestaurantID == "" || c.ExternalID == "" {
			return 0, store.ErrInvalidRecord
		}
	}
	for _, c := range customers {
		key := childKey(c.RestaurantID, c.ExternalID)
		if existing, ok := s.customers[key]; ok {
			c.ID = existing.ID
		} else {
			c.ID = xid.New("cus")
		}
		s.customers[key] = c
	}
	return len(customers), nil
}

// ListTransactions returns the newest transactions first within [from, to).
func (s *Store) ListTransactions(_ context.Context, restaurantID string, from time.Time, to time.Time, limit int) ([]domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.TransactionRecord, 0)
	for _, tx := range s.transactions {
		if tx.RestaurantID != restaurantID {
			continue
		}
		if !from.IsZero() && tx.TransactionDate.Before(from) {
			continue
		}
		if !to.IsZero() && !tx.TransactionDate.Before(to) {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TransactionDate.Equal(out[j].TransactionDate) {
			return out[i].ExternalID < out[j].ExternalID
		}
		return out[i].TransactionDate.After(out[j].TransactionDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) TopMenuItems(_ context.Context, restaurantID string, since time.Time, limit int) ([]domain.TopMenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]*domain.TopMenuItem)
	for _, tx := range s.transactions {
		if tx.RestaurantID != restaurantID || tx.TransactionDate.Before(since) {
			continue
		}
		for _, item := range tx.Items {
			acc, ok := totals[item.Name]
			if !ok {
				acc = &domain.TopMenuItem{Name: item.Name}
				totals[item.Name] = acc
			}
			acc.Quantity += item.Quantity
			acc.RevenueCents += item.AmountCents
		}
	}

	out := make([]domain.TopMenuItem, 0, len(totals))
	for _, acc := range totals {
		out = append(out, *acc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity == out[j].Quantity {
			return out[i].Name < out[j].Name
		}
		return out[i].Quantity > out[j].Quantity
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountCustomers(_ context.Context, restaurantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.customers {
		if c.RestaurantID == restaurantID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountEntities(_ context.Context) (domain.EntityCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return domain.EntityCounts{
		Restaurants:  len(s.restaurantsByID),
		MenuItems:    len(s.menuItems),
		Transactions: len(s.transactions),
		Customers:    len(s.customers),
		SyncRuns:     len(s.syncRuns),
	}, nil
}

func (s *Store) RecordSyncRun(_ context.Context, run domain.SyncRun) error {
	if run.ID == "" {
		return store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncRuns = append(s.syncRuns, run)
	return nil
}

// ListSyncRuns returns the most recent runs first.
func (s *Store) ListSyncRuns(_ context.Context, limit int) ([]domain.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SyncRun, 0, len(s.syncRuns))
	for i := len(s.syncRuns) - 1; i >= 0; i-- {
		out = append(out, s.syncRuns[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrDuplicate
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "analyst"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
