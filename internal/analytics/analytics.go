// Package analytics folds vendor orders into dashboard summaries. Money is
// accumulated in integer cents so totals do not depend on input order.
package analytics

import (
	"math"
	"sort"
	"strings"
	"time"

	"restaurantintel/backend/internal/bizdate"
	"restaurantintel/backend/internal/domain"
)

const DefaultTopN = 10

type Options struct {
	Location *time.Location
	TopN     int
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromCents(cents int64) float64 {
	return float64(cents) / 100
}

type itemAcc struct {
	key      string
	name     string
	quantity float64
	revenue  int64
	seen     int
}

// Compute summarises orders over rng. Deleted or voided orders and checks and
// voided selections are ignored. An empty input yields a zeroed summary.
func Compute(orders []domain.Order, rng bizdate.Range, opts Options) domain.AnalyticsSummary {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	topN := opts.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}

	summary := domain.AnalyticsSummary{
		Range:                  domain.DateRange{Start: rng.Start, End: rng.End},
		PaymentMethodBreakdown: make(map[string]domain.PaymentMethodStat),
		TopItems:               []domain.TopItem{},
		DailySales:             []domain.DailySales{},
	}

	var (
		revenue, tax, tips int64
		hourRevenue        [24]int64
		paymentCents       = make(map[string]int64)
		paymentCounts      = make(map[string]int)
		items              = make(map[string]*itemAcc)
		dailyRevenue       = make(map[string]int64)
		dailyOrders        = make(map[string]int)
		customers          = make(map[string]struct{})
	)

	for _, order := range orders {
		if order.Excluded() {
			continue
		}
		summary.TotalOrders++
		summary.GuestCount += order.NumberOfGuests

		var orderCents int64
		for _, check := range order.Checks {
			if check.Deleted || check.Voided {
				continue
			}
			orderCents += toCents(check.TotalAmount)
			tax += toCents(check.TaxAmount)
			if check.Customer != nil && check.Customer.GUID != "" {
				customers[check.Customer.GUID] = struct{}{}
			}

			for _, payment := range check.Payments {
				method := strings.ToUpper(strings.TrimSpace(payment.Type))
				if method == "" {
					method = "OTHER"
				}
				paymentCounts[method]++
				paymentCents[method] += toCents(payment.Amount)
				tips += toCents(payment.TipAmount)
			}

			for _, sel := range check.Selections {
				if sel.Voided {
					continue
				}
				key := sel.Key()
				acc, ok := items[key]
				if !ok {
					acc = &itemAcc{key: key, name: sel.Name(), seen: len(items)}
					items[key] = acc
				}
				acc.quantity += sel.Quantity
				acc.revenue += toCents(sel.Price)
			}
		}
		revenue += orderCents

		if !order.OpenedDate.IsZero() {
			hour := order.OpenedDate.In(loc).Hour()
			summary.OrdersByHour[hour]++
			hourRevenue[hour] += orderCents
		}

		day := businessDay(order, loc)
		if day != "" {
			dailyOrders[day]++
			dailyRevenue[day] += orderCents
		}
	}

	summary.TotalRevenue = fromCents(revenue)
	summary.TotalTax = fromCents(tax)
	summary.TotalTips = fromCents(tips)
	summary.CustomerCount = len(customers)
	if summary.TotalOrders > 0 {
		summary.AverageOrderValue = math.Round(float64(revenue)/float64(summary.TotalOrders)) / 100
	}
	for h, cents := range hourRevenue {
		summary.RevenueByHour[h] = fromCents(cents)
	}
	for method, count := range paymentCounts {
		summary.PaymentMethodBreakdown[method] = domain.PaymentMethodStat{
			Count:  count,
			Amount: fromCents(paymentCents[method]),
		}
	}

	summary.TopItems = rankItems(items, topN)

	days := make([]string, 0, len(dailyOrders))
	for day := range dailyOrders {
		days = append(days, day)
	}
	sort.Strings(days)
	for _, day := range days {
		summary.DailySales = append(summary.DailySales, domain.DailySales{
			BusinessDate: day,
			Orders:       dailyOrders[day],
			Revenue:      fromCents(dailyRevenue[day]),
		})
	}

	return summary
}

// rankItems orders items by quantity, keeping first-seen order on ties.
func rankItems(items map[string]*itemAcc, topN int) []domain.TopItem {
	ranked := make([]*itemAcc, 0, len(items))
	for _, acc := range items {
		ranked = append(ranked, acc)
	}
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].seen < ranked[j].seen
	})
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].quantity > ranked[j].quantity
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	out := make([]domain.TopItem, 0, len(ranked))
	for _, acc := range ranked {
		out = append(out, domain.TopItem{
			Key:      acc.key,
			Name:     acc.name,
			Quantity: acc.quantity,
			Revenue:  fromCents(acc.revenue),
		})
	}
	return out
}

func businessDay(order domain.Order, loc *time.Location) string {
	if order.BusinessDate != 0 {
		return order.BusinessDate.String()
	}
	if !order.OpenedDate.IsZero() {
		return bizdate.BusinessDate(order.OpenedDate.Time, loc)
	}
	return ""
}
