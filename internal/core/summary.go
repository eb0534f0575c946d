package core

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when a form amount cannot be parsed.
var ErrInvalidAmount = errors.New("invalid amount")

// Metric selects one numeric column of a derived record.
type Metric string

const (
	MetricRevenue Metric = "receitas"
	MetricExpense Metric = "despesas"
	MetricProfit  Metric = "lucros"
)

// Metrics lists the selectable metrics in display order.
var Metrics = []Metric{MetricRevenue, MetricExpense, MetricProfit}

// ParseMetric validates a metric name. An empty name selects revenue.
func ParseMetric(s string) (Metric, error) {
	if s == "" {
		return MetricRevenue, nil
	}
	for _, m := range Metrics {
		if string(m) == s {
			return m, nil
		}
	}
	return "", &ValidationError{Field: "metric", Reason: "must be receitas, despesas or lucros"}
}

// Label returns the human label shown in selectors and chart titles.
func (m Metric) Label() string {
	switch m {
	case MetricExpense:
		return "Despesas"
	case MetricProfit:
		return "Lucros"
	default:
		return "Receitas"
	}
}

// Of returns the metric's value for a derived record.
func (m Metric) Of(r DerivedRecord) decimal.Decimal {
	switch m {
	case MetricExpense:
		return r.Expense
	case MetricProfit:
		return r.Profit
	default:
		return r.Revenue
	}
}

// Summary holds the landing page totals.
type Summary struct {
	Revenue decimal.Decimal
	Expense decimal.Decimal
	Profit  decimal.Decimal
	Count   int
}

// Summarize totals a derived record set.
func Summarize(records []DerivedRecord) Summary {
	s := Summary{Revenue: decimal.Zero, Expense: decimal.Zero, Profit: decimal.Zero}
	for _, r := range records {
		s.Revenue = s.Revenue.Add(r.Revenue)
		s.Expense = s.Expense.Add(r.Expense)
		s.Profit = s.Profit.Add(r.Profit)
		s.Count++
	}
	return s
}
