package domain

import "time"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Persisted records. Every record carries the vendor GUID it was derived from
// in ExternalID; upserts are keyed on (restaurant, external id).

type RestaurantRecord struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	Address    string    `json:"address"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	ZipCode    string    `json:"zip_code"`
	Country    string    `json:"country"`
	Phone      string    `json:"phone"`
	Timezone   string    `json:"timezone"`
	POSSystem  string    `json:"pos_system"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type MenuItemRecord struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurant_id"`
	ExternalID   string    `json:"external_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	PriceCents   int64     `json:"price_cents"`
	Status       string    `json:"status"`
	Available    bool      `json:"available"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type TransactionItem struct {
	ExternalID  string  `json:"external_id"`
	Name        string  `json:"name"`
	Quantity    float64 `json:"quantity"`
	AmountCents int64   `json:"amount_cents"`
}

type TransactionRecord struct {
	ID              string            `json:"id"`
	RestaurantID    string            `json:"restaurant_id"`
	ExternalID      string            `json:"external_id"`
	TotalCents      int64             `json:"total_cents"`
	SubtotalCents   int64             `json:"subtotal_cents"`
	TaxCents        int64             `json:"tax_cents"`
	TipCents        int64             `json:"tip_cents"`
	TransactionDate time.Time         `json:"transaction_date"`
	BusinessDate    string            `json:"business_date"`
	PaymentMethod   string            `json:"payment_method"`
	OrderType       string            `json:"order_type"`
	GuestCount      int               `json:"guest_count"`
	CustomerID      string            `json:"customer_external_id,omitempty"`
	Items           []TransactionItem `json:"items"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type CustomerRecord struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurant_id"`
	ExternalID   string    `json:"external_id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type SyncRun struct {
	ID           string            `json:"id"`
	RestaurantID string            `json:"restaurant_id,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	Success      bool              `json:"success"`
	Resources    map[string]bool   `json:"resources"`
	Counts       map[string]int    `json:"counts"`
	Errors       []string          `json:"errors"`
	TriggeredBy  string            `json:"triggered_by,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type EntityCounts struct {
	Restaurants  int `json:"restaurants"`
	MenuItems    int `json:"menu_items"`
	Transactions int `json:"transactions"`
	Customers    int `json:"customers"`
	SyncRuns     int `json:"sync_runs"`
}

type TopMenuItem struct {
	Name         string  `json:"name"`
	Quantity     float64 `json:"quantity"`
	RevenueCents int64   `json:"revenue_cents"`
}

type Dashboard struct {
	RestaurantID       string              `json:"restaurant_id"`
	Date               string              `json:"date"`
	TodayRevenueCents  int64               `json:"today_revenue_cents"`
	TodayTransactions  int                 `json:"today_transactions"`
	AverageTicketCents int64               `json:"average_ticket_cents"`
	CustomerCount      int                 `json:"customer_count"`
	TopItems           []TopMenuItem       `json:"top_items"`
	RecentTransactions []TransactionRecord `json:"recent_transactions"`
}

// Sync and analytics results returned by the service layer.

type SyncOptions struct {
	Start    *time.Time
	End      *time.Time
	PageSize int
}

type SyncResult struct {
	Success     bool            `json:"success"`
	Restaurant  *Restaurant     `json:"restaurant,omitempty"`
	MenuItems   []MenuItem      `json:"menuItems"`
	Orders      []Order         `json:"orders"`
	Customers   []Customer      `json:"customers"`
	TimeEntries []TimeEntry     `json:"timeEntries"`
	Resources   map[string]bool `json:"resources"`
	Errors      []string        `json:"errors"`
}

type SyncSummary struct {
	RunID      string          `json:"runId"`
	Restaurant string          `json:"restaurantId,omitempty"`
	Success    bool            `json:"success"`
	Resources  map[string]bool `json:"resources"`
	Counts     map[string]int  `json:"counts"`
	Errors     []string        `json:"errors"`
	Duration   string          `json:"duration"`
}

type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type PaymentMethodStat struct {
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

type TopItem struct {
	Key      string  `json:"key"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Revenue  float64 `json:"revenue"`
}

type DailySales struct {
	BusinessDate string  `json:"businessDate"`
	Orders       int     `json:"orders"`
	Revenue      float64 `json:"revenue"`
}

type AnalyticsSummary struct {
	Range                  DateRange                    `json:"range"`
	TotalRevenue           float64                      `json:"totalRevenue"`
	TotalOrders            int                          `json:"totalOrders"`
	AverageOrderValue      float64                      `json:"averageOrderValue"`
	TotalTax               float64                      `json:"totalTax"`
	TotalTips              float64                      `json:"totalTips"`
	GuestCount             int                          `json:"guestCount"`
	CustomerCount          int                          `json:"customerCount"`
	OrdersByHour           [24]int                      `json:"ordersByHour"`
	RevenueByHour          [24]float64                  `json:"revenueByHour"`
	PaymentMethodBreakdown map[string]PaymentMethodStat `json:"paymentMethodBreakdown"`
	TopItems               []TopItem                    `json:"topItems"`
	DailySales             []DailySales                 `json:"dailySales"`
}

type SectionStatus struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
	Sample  any    `json:"sample,omitempty"`
}

type Overview struct {
	Restaurant SectionStatus `json:"restaurant"`
	Menus      SectionStatus `json:"menus"`
	Orders     SectionStatus `json:"orders"`
	Customers  SectionStatus `json:"customers"`
	FetchedAt  time.Time     `json:"fetchedAt"`
}

type DatabaseStatus struct {
	Connected bool         `json:"connected"`
	Counts    EntityCounts `json:"counts"`
	Latest    *SyncRun     `json:"latestSync,omitempty"`
}
