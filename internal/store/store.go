package store

import (
	"context"
	"errors"
	"time"

	"restaurantintel/backend/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
	ErrDuplicate     = errors.New("already exists")
)

// Repository persists synced vendor data. Upserts are keyed by the vendor
// external id of each entity; callers never build queries themselves.
type Repository interface {
	Ping(ctx context.Context) error

	UpsertRestaurant(ctx context.Context, restaurant domain.RestaurantRecord) (domain.RestaurantRecord, error)
	FindRestaurantByExternalID(ctx context.Context, externalID string) (*domain.RestaurantRecord, error)
	GetRestaurant(ctx context.Context, id string) (*domain.RestaurantRecord, error)
	ListRestaurants(ctx context.Context) ([]domain.RestaurantRecord, error)

	UpsertMenuItems(ctx context.Context, items []domain.MenuItemRecord) (int, error)
	UpsertTransactions(ctx context.Context, transactions []domain.TransactionRecord) (int, error)
	UpsertCustomers(ctx context.Context, customers []domain.CustomerRecord) (int, error)

	ListTransactions(ctx context.Context, restaurantID string, from time.Time, to time.Time, limit int) ([]domain.TransactionRecord, error)
	TopMenuItems(ctx context.Context, restaurantID string, since time.Time, limit int) ([]domain.TopMenuItem, error)
	CountCustomers(ctx context.Context, restaurantID string) (int, error)
	CountEntities(ctx context.Context) (domain.EntityCounts, error)

	RecordSyncRun(ctx context.Context, run domain.SyncRun) error
	ListSyncRuns(ctx context.Context, limit int) ([]domain.SyncRun, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
