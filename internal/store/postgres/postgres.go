package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"restaurantintel/backend/internal/domain"
	"restaurantintel/backend/internal/store"
	"restaurantintel/backend/internal/xid"
)

// DBTX is the subset of *pgxpool.Pool the store needs. pgxmock pools satisfy
// it in tests.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

type Store struct {
	db    DBTX
	close func()
}

var _ store.Repository = (*Store)(nil)

const (
	connectAttempts = 3
	connectBackoff  = time.Second
)

// New opens a pool, retrying the first connection with exponential backoff.
func New(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	var lastErr error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
			err = pool.Ping(pingCtx)
			cancel()
			if err == nil {
				return &Store{db: pool, close: pool.Close}, nil
			}
			pool.Close()
		}
		lastErr = err
		if attempt == connectAttempts-1 {
			break
		}
		wait := connectBackoff << attempt
		if logger != nil {
			logger.Warn("postgres connection failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to postgres: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("connect to postgres after %d attempts: %w", connectAttempts, lastErr)
}

// NewWithDB wraps an existing connection, typically a pgxmock pool.
func NewWithDB(db DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) DB() DBTX {
	return s.db
}

func (s *Store) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const restaurantColumns = `id, external_id, name, slug, address, city, state, zip_code, country,
	phone, timezone, pos_system, status, created_at, updated_at`

func scanRestaurant(row pgx.Row) (domain.RestaurantRecord, error) {
	var r domain.RestaurantRecord
	err := row.Scan(&r.ID, &r.ExternalID, &r.Name, &r.Slug, &r.Address, &r.City, &r.State, &r.ZipCode,
		&r.Country, &r.Phone, &r.Timezone, &r.POSSystem, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return domain.RestaurantRecord{}, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func (s *Store) UpsertRestaurant(ctx context.Context, r domain.RestaurantRecord) (domain.RestaurantRecord, error) {
	if strings.TrimSpace(r.ExternalID) == "" {
		return domain.RestaurantRecord{}, store.ErrInvalidRecord
	}
	if r.ID == "" {
		r.ID = xid.New("rst")
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO restaurants (id, external_id, name, slug, address, city, state, zip_code, country,
			phone, timezone, pos_system, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13, now(), now())
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			zip_code = EXCLUDED.zip_code,
			phone = EXCLUDED.phone,
			timezone = EXCLUDED.timezone,
			pos_system = EXCLUDED.pos_system,
			updated_at = now()
		RETURNING `+restaurantColumns,
		r.ID, r.ExternalID, r.Name, r.Slug, r.Address, r.City, r.State, r.ZipCode, r.Country,
		r.Phone, r.Timezone, r.POSSystem, r.Status,
	)
	saved, err := scanRestaurant(row)
	if err != nil {
		return domain.RestaurantRecord{}, fmt.Errorf("upsert restaurant: %w", err)
	}
	return saved, nil
}

func (s *Store) FindRestaurantByExternalID(ctx context.Context, externalID string) (*domain.RestaurantRecord, error) {
	r, err := scanRestaurant(s.db.QueryRow(ctx,
		`SELECT `+restaurantColumns+` FROM restaurants WHERE external_id = $1`, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetRestaurant(ctx context.Context, id string) (*domain.RestaurantRecord, error) {
	r, err := scanRestaurant(s.db.QueryRow(ctx,
		`SELECT `+restaurantColumns+` FROM restaurants WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListRestaurants(ctx context.Context) ([]domain.RestaurantRecord, error) {
	rows, err := s.db.Query(ctx, `SELECT `+restaurantColumns+` FROM restaurants ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.RestaurantRecord, 0, 8)
	for rows.Next() {
		r, err := scanRestaurant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// inTx runs fn inside a transaction, rolling back on any error.
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) UpsertMenuItems(ctx context.Context, items []domain.MenuItemRecord) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	for _, item := range items {
		if item.RestaurantID == "" || item.ExternalID == "" {
			return 0, store.ErrInvalidRecord
		}
	}

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		for _, item := range items {
			_, err := tx.Exec(ctx, `
				INSERT INTO menu_items (id, restaurant_id, external_id, name, description, category,
					price_cents, status, available, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now())
				ON CONFLICT (restaurant_id, external_id) DO UPDATE SET
					name = EXCLUDED.name,
					description = EXCLUDED.description,
					category = EXCLUDED.category,
					price_cents = EXCLUDED.price_cents,
					status = EXCLUDED.status,
					updated_at = now()
			`, xid.New("itm"), item.RestaurantID, item.ExternalID, item.Name, item.Description,
				item.Category, item.PriceCents, item.Status, item.Available)
			if err != nil {
				return fmt.Errorf("upsert menu item %s: %w", item.ExternalID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (s *Store) UpsertTransactions(ctx context.Context, transactions []domain.TransactionRecord) (int, error) {
	if len(transactions) == 0 {
		return 0, nil
	}
	for _, t := range transactions {
		if t.RestaurantID == "" || t.ExternalID == "" {
			return 0, store.ErrInvalidRecord
		}
	}

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		for _, t := range transactions {
			items := t.Items
			if items == nil {
				items = []domain.TransactionItem{}
			}
			itemsJSON, err := json.Marshal(items)
			if err != nil {
				return fmt.Errorf("marshal items for %s: %w", t.ExternalID, err)
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO transactions (id, restaurant_id, external_id, total_cents, subtotal_cents,
					tax_cents, tip_cents, transaction_date, business_date, payment_method, order_type,
					guest_count, customer_external_id, items, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14, now())
				ON CONFLICT (restaurant_id, external_id) DO UPDATE SET
					total_cents = EXCLUDED.total_cents,
					subtotal_cents = EXCLUDED.subtotal_cents,
					tax_cents = EXCLUDED.tax_cents,
					tip_cents = EXCLUDED.tip_cents,
					transaction_date = EXCLUDED.transaction_date,
					business_date = EXCLUDED.business_date,
					payment_method = EXCLUDED.payment_method,
					order_type = EXCLUDED.order_type,
					guest_count = EXCLUDED.guest_count,
					customer_external_id = EXCLUDED.customer_external_id,
					items = EXCLUDED.items,
					updated_at = now()
			`, xid.New("trx"), t.RestaurantID, t.ExternalID, t.TotalCents, t.SubtotalCents,
				t.TaxCents, t.TipCents, t.TransactionDate, t.BusinessDate, t.PaymentMethod, t.OrderType,
				t.GuestCount, t.CustomerID, itemsJSON)
			if err != nil {
				return fmt.Errorf("upsert transaction %s: %w", t.ExternalID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(transactions), nil
}

func (s *Store) UpsertCustomers(ctx context.Context, customers []domain.CustomerRecord) (int, error) {
	if len(customers) == 0 {
		return 0, nil
	}
	for _, c := range customers {
		if c.RestaurantID == "" || c.ExternalID == "" {
			return 0, store.ErrInvalidRecord
		}
	}

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		for _, c := range customers {
			_, err := tx.Exec(ctx, `
				INSERT INTO customers (id, restaurant_id, external_id, first_name, last_name, email, phone, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7, now())
				ON CONFLICT (restaurant_id, external_id) DO UPDATE SET
					first_name = EXCLUDED.first_name,
					last_name = EXCLUDED.last_name,
					email = EXCLUDED.email,
					phone = EXCLUDED.phone,
					updated_at = now()
			`, xid.New("cus"), c.RestaurantID, c.ExternalID, c.FirstName, c.LastName, c.Email, c.Phone)
			if err != nil {
				return fmt.Errorf("upsert customer %s: %w", c.ExternalID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(customers), nil
}

func (s *Store) ListTransactions(ctx context.Context, restaurantID string, from time.Time, to time.Time, limit int) ([]domain.TransactionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, restaurant_id, external_id, total_cents, subtotal_cents, tax_cents, tip_cents,
			transaction_date, business_date, payment_method, order_type, guest_count,
			customer_external_id, items, updated_at
		FROM transactions
		WHERE restaurant_id = $1 AND transaction_date >= $2 AND transaction_date < $3
		ORDER BY transaction_date DESC, external_id ASC
		LIMIT $4
	`, restaurantID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.TransactionRecord, 0, limit)
	for rows.Next() {
		var t domain.TransactionRecord
		var itemsJSON []byte
		if err := rows.Scan(&t.ID, &t.RestaurantID, &t.ExternalID, &t.TotalCents, &t.SubtotalCents,
			&t.TaxCents, &t.TipCents, &t.TransactionDate, &t.BusinessDate, &t.PaymentMethod,
			&t.OrderType, &t.GuestCount, &t.CustomerID, &itemsJSON, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if len(itemsJSON) > 0 {
			if err := json.Unmarshal(itemsJSON, &t.Items); err != nil {
				return nil, fmt.Errorf("decode items for %s: %w", t.ExternalID, err)
			}
		}
		t.TransactionDate = t.TransactionDate.UTC()
		t.UpdatedAt = t.UpdatedAt.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) TopMenuItems(ctx context.Context, restaurantID string, since time.Time, limit int) ([]domain.TopMenuItem, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx, `
		SELECT item.name, SUM(item.quantity)::float8 AS quantity, SUM(item.amount_cents)::bigint AS revenue_cents
		FROM transactions t,
			jsonb_to_recordset(t.items) AS item(name text, quantity float8, amount_cents bigint)
		WHERE t.restaurant_id = $1 AND t.transaction_date >= $2
		GROUP BY item.name
		ORDER BY quantity DESC, item.name ASC
		LIMIT $3
	`, restaurantID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.TopMenuItem, 0, limit)
	for rows.Next() {
		var item domain.TopMenuItem
		if err := rows.Scan(&item.Name, &item.Quantity, &item.RevenueCents); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) CountCustomers(ctx context.Context, restaurantID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM customers WHERE restaurant_id = $1`, restaurantID).Scan(&n)
	return n, err
}

func (s *Store) CountEntities(ctx context.Context) (domain.EntityCounts, error) {
	var c domain.EntityCounts
	err := s.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM restaurants),
			(SELECT COUNT(*) FROM menu_items),
			(SELECT COUNT(*) FROM transactions),
			(SELECT COUNT(*) FROM customers),
			(SELECT COUNT(*) FROM sync_runs)
	`).Scan(&c.Restaurants, &c.MenuItems, &c.Transactions, &c.Customers, &c.SyncRuns)
	return c, err
}

func (s *Store) RecordSyncRun(ctx context.Context, run domain.SyncRun) error {
	if run.ID == "" {
		return store.ErrInvalidRecord
	}
	resources, err := json.Marshal(run.Resources)
	if err != nil {
		return err
	}
	counts, err := json.Marshal(run.Counts)
	if err != nil {
		return err
	}
	errs := run.Errors
	if errs == nil {
		errs = []string{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(run.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO sync_runs (id, restaurant_id, started_at, finished_at, success, resources, counts, errors, triggered_by, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, run.ID, run.RestaurantID, run.StartedAt, run.FinishedAt, run.Success, resources, counts, errorsJSON, run.TriggeredBy, metadata)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("record sync run: %w", err)
	}
	return nil
}

func (s *Store) ListSyncRuns(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, restaurant_id, started_at, finished_at, success, resources, counts, errors, triggered_by, metadata
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.SyncRun, 0, limit)
	for rows.Next() {
		var run domain.SyncRun
		var resources, counts, errs, metadata []byte
		if err := rows.Scan(&run.ID, &run.RestaurantID, &run.StartedAt, &run.FinishedAt, &run.Success,
			&resources, &counts, &errs, &run.TriggeredBy, &metadata); err != nil {
			return nil, err
		}
		for _, field := range []struct {
			raw  []byte
			dest any
		}{
			{resources, &run.Resources},
			{counts, &run.Counts},
			{errs, &run.Errors},
			{metadata, &run.Metadata},
		} {
			if len(field.raw) == 0 {
				continue
			}
			if err := json.Unmarshal(field.raw, field.dest); err != nil {
				return nil, fmt.Errorf("decode sync run %s: %w", run.ID, err)
			}
		}
		run.StartedAt = run.StartedAt.UTC()
		run.FinishedAt = run.FinishedAt.UTC()
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	if user.Role == "" {
		user.Role = "analyst"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.Query(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}
	tag, err := s.db.Exec(ctx, `UPDATE app_users SET password = $2, updated_at = now() WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
