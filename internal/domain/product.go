package domain

import (
	"context"
	"time"
)

// ProductKind identifies a derived output.
type ProductKind string

const (
	ProductDailyAggregate ProductKind = "daily_aggregate"
	ProductReturnPeriods  ProductKind = "return_periods"
)

// Product describes an output container committed at its final path.
type Product struct {
	RunID      string      `json:"run_id"`
	Kind       ProductKind `json:"kind"`
	Path       string      `json:"path"`
	SourcePath string      `json:"source_path"`
	Variable   string      `json:"variable,omitempty"`
	Date       *time.Time  `json:"date,omitempty"`       // daily aggregates
	StartYear  int         `json:"start_year,omitempty"` // return periods
	EndYear    int         `json:"end_year,omitempty"`
	Units      int         `json:"units,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ProductNotifier announces committed products to downstream consumers.
type ProductNotifier interface {
	NotifyProduct(ctx context.Context, p Product) error
}
