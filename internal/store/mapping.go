package store

import (
	"math"
	"regexp"
	"strings"
	"time"

	"restaurantintel/backend/internal/bizdate"
	"restaurantintel/backend/internal/domain"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func Slugify(name string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	return strings.Trim(slug, "-")
}

func cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func RestaurantFromVendor(r domain.Restaurant, now time.Time) domain.RestaurantRecord {
	country := r.Location.Country
	if country == "" {
		country = "US"
	}
	return domain.RestaurantRecord{
		ExternalID: r.GUID,
		Name:       r.DisplayName(),
		Slug:       Slugify(r.DisplayName()),
		Address:    r.Location.Address1,
		City:       r.Location.City,
		State:      r.Location.StateCode,
		ZipCode:    r.Location.ZipCode,
		Country:    country,
		Phone:      r.Location.Phone,
		Timezone:   r.General.TimeZone,
		POSSystem:  "toast",
		Status:     "active",
		UpdatedAt:  now,
	}
}

// MenuItemsFromVendor drops archived items.
func MenuItemsFromVendor(restaurantID string, items []domain.MenuItem, now time.Time) []domain.MenuItemRecord {
	out := make([]domain.MenuItemRecord, 0, len(items))
	for _, item := range items {
		if item.IsArchived || item.GUID == "" {
			continue
		}
		status := "active"
		if strings.EqualFold(item.Visibility, "HIDDEN") || strings.EqualFold(item.Visibility, "NONE") {
			status = "inactive"
		}
		out = append(out, domain.MenuItemRecord{
			RestaurantID: restaurantID,
			ExternalID:   item.GUID,
			Name:         item.Name,
			Description:  item.Description,
			Category:     item.Group,
			PriceCents:   cents(item.Price),
			Status:       status,
			Available:    true,
			UpdatedAt:    now,
		})
	}
	return out
}

// TransactionsFromVendor drops deleted and voided orders. Amounts are summed
// over the order's live checks; tips come from the check payments.
func TransactionsFromVendor(restaurantID string, orders []domain.Order, loc *time.Location, now time.Time) []domain.TransactionRecord {
	out := make([]domain.TransactionRecord, 0, len(orders))
	for _, order := range orders {
		if order.Excluded() || order.GUID == "" {
			continue
		}

		var total, tax, tip int64
		var customerID string
		items := make([]domain.TransactionItem, 0)
		for _, check := range order.Checks {
			if check.Deleted || check.Voided {
				continue
			}
			total += cents(check.TotalAmount)
			tax += cents(check.TaxAmount)
			for _, p := range check.Payments {
				tip += cents(p.TipAmount)
			}
			if customerID == "" && check.Customer != nil {
				customerID = check.Customer.GUID
			}
			for _, sel := range check.Selections {
				if sel.Voided {
					continue
				}
				items = append(items, domain.TransactionItem{
					ExternalID:  sel.Key(),
					Name:        sel.Name(),
					Quantity:    sel.Quantity,
					AmountCents: cents(sel.Price),
				})
			}
		}

		guests := order.NumberOfGuests
		if guests < 1 {
			guests = 1
		}
		serviceName := order.RestaurantService
		if order.DiningOption != nil && order.DiningOption.Name != "" {
			serviceName = order.DiningOption.Name
		}

		businessDate := order.BusinessDate.String()
		if businessDate == "" && !order.OpenedDate.IsZero() {
			businessDate = bizdate.BusinessDate(order.OpenedDate.Time, loc)
		}
		occurred := order.OpenedDate.Time
		if occurred.IsZero() && businessDate != "" {
			if day, err := bizdate.ParseBusinessDate(businessDate, loc); err == nil {
				occurred = day
			}
		}

		out = append(out, domain.TransactionRecord{
			RestaurantID:    restaurantID,
			ExternalID:      order.GUID,
			TotalCents:      total,
			SubtotalCents:   total - tax,
			TaxCents:        tax,
			TipCents:        tip,
			TransactionDate: occurred.UTC(),
			BusinessDate:    businessDate,
			PaymentMethod:   PaymentMethod(order),
			OrderType:       OrderType(serviceName),
			GuestCount:      guests,
			CustomerID:      customerID,
			Items:           items,
			UpdatedAt:       now,
		})
	}
	return out
}

// CustomersFromVendor drops customers with no way to contact them.
func CustomersFromVendor(restaurantID string, customers []domain.Customer, now time.Time) []domain.CustomerRecord {
	out := make([]domain.CustomerRecord, 0, len(customers))
	for _, c := range customers {
		if c.GUID == "" || (strings.TrimSpace(c.Email) == "" && strings.TrimSpace(c.Phone) == "") {
			continue
		}
		out = append(out, domain.CustomerRecord{
			RestaurantID: restaurantID,
			ExternalID:   c.GUID,
			FirstName:    c.FirstName,
			LastName:     c.LastName,
			Email:        strings.TrimSpace(c.Email),
			Phone:        strings.TrimSpace(c.Phone),
			UpdatedAt:    now,
		})
	}
	return out
}

func OrderType(service string) string {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(service), " ", "_")) {
	case "DINE_IN":
		return "dine_in"
	case "TAKEOUT", "TAKE_OUT":
		return "takeout"
	case "DELIVERY":
		return "delivery"
	case "CATERING":
		return "catering"
	default:
		return "other"
	}
}

// PaymentMethod is the lowercased type of the first payment on the order.
func PaymentMethod(order domain.Order) string {
	for _, check := range order.Checks {
		for _, p := range check.Payments {
			if t := strings.TrimSpace(p.Type); t != "" {
				return strings.ToLower(t)
			}
		}
	}
	return "unknown"
}
